package alertclient

import (
	"context"
	"errors"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/charlesng35/safeguard/internal/models"
)

const (
	// DefaultPollInterval matches the cadence family apps use to check for alerts.
	DefaultPollInterval = 30 * time.Second
	defaultSeenCapacity = 1024
)

// PollerConfig configures a Poller.
type PollerConfig struct {
	FamilyMemberID string
	Interval       time.Duration

	// SeenCapacity bounds how many alert ids are remembered for dedupe.
	SeenCapacity int

	// OnAlert is called once per active alert not seen before.
	OnAlert func(*models.EmergencyAlert)

	// OnUnreadCount, when set, receives the unread count after each poll.
	OnUnreadCount func(int)

	// OnError receives request failures; polling continues afterwards.
	OnError func(error)
}

// Poller periodically lists a family member's active alerts and reports the new ones.
type Poller struct {
	client   *Client
	member   string
	interval time.Duration
	seen     *lru.Cache[string, struct{}]
	onAlert  func(*models.EmergencyAlert)
	onUnread func(int)
	onError  func(error)
}

// NewPoller builds a Poller for cfg.FamilyMemberID.
func NewPoller(client *Client, cfg PollerConfig) (*Poller, error) {
	if client == nil {
		return nil, errors.New("alertclient: poller requires a client")
	}
	member := strings.TrimSpace(cfg.FamilyMemberID)
	if member == "" {
		return nil, errors.New("alertclient: poller requires a family member id")
	}
	if cfg.OnAlert == nil {
		return nil, errors.New("alertclient: poller requires an OnAlert callback")
	}

	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	capacity := cfg.SeenCapacity
	if capacity <= 0 {
		capacity = defaultSeenCapacity
	}
	seen, err := lru.New[string, struct{}](capacity)
	if err != nil {
		return nil, err
	}

	return &Poller{
		client:   client,
		member:   member,
		interval: interval,
		seen:     seen,
		onAlert:  cfg.OnAlert,
		onUnread: cfg.OnUnreadCount,
		onError:  cfg.OnError,
	}, nil
}

// Run polls until ctx is cancelled. The first poll happens immediately.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		if _, err := p.Poll(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if p.onError != nil {
				p.onError(err)
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Poll performs a single check and returns how many new alerts were reported.
// The server lists newest first; callbacks fire oldest first.
func (p *Poller) Poll(ctx context.Context) (int, error) {
	alerts, err := p.client.ListActiveAlerts(ctx, p.member)
	if err != nil {
		return 0, err
	}

	reported := 0
	for i := len(alerts) - 1; i >= 0; i-- {
		alert := alerts[i]
		if alert == nil || alert.ID == "" {
			continue
		}
		if ok, _ := p.seen.ContainsOrAdd(alert.ID, struct{}{}); ok {
			continue
		}
		p.onAlert(alert)
		reported++
	}

	if p.onUnread != nil {
		unread, err := p.client.UnreadCount(ctx, p.member)
		if err != nil {
			return reported, err
		}
		p.onUnread(unread)
	}
	return reported, nil
}
