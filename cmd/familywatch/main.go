// Command familywatch polls the alert API on behalf of one family member and
// logs every new active alert.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/charlesng35/safeguard/internal/models"
	"github.com/charlesng35/safeguard/pkg/alertclient"
	"github.com/charlesng35/safeguard/pkg/logger"
)

const ackTimeout = 10 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("familywatch", flag.ContinueOnError)
	fs.SetOutput(os.Stdout)

	var (
		server   string
		basePath string
		member   string
		level    string
		interval time.Duration
		ack      bool
	)
	fs.StringVar(&server, "server", "http://localhost:3000", "Alert server base URL")
	fs.StringVar(&basePath, "base-path", "/api", "API prefix on the server")
	fs.StringVar(&member, "member", "", "Family member id to watch, e.g. user:555-0199")
	fs.DurationVar(&interval, "interval", alertclient.DefaultPollInterval, "Poll interval")
	fs.StringVar(&level, "log-level", "info", "Log level")
	fs.BoolVar(&ack, "ack", false, "Mark alerts as read once reported")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if member == "" {
		return errors.New("-member is required")
	}

	if err := logger.Init(level); err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	defer logger.Sync() // best effort
	log := logger.WithModule("familywatch")

	client, err := alertclient.New(server, alertclient.WithBasePath(basePath))
	if err != nil {
		return err
	}

	poller, err := alertclient.NewPoller(client, alertclient.PollerConfig{
		FamilyMemberID: member,
		Interval:       interval,
		OnAlert: func(alert *models.EmergencyAlert) {
			fields := []zap.Field{
				zap.String("alert_id", alert.ID),
				zap.String("elderly_name", alert.ElderlyName),
				zap.String("elderly_phone", alert.ElderlyPhone),
				zap.String("timestamp", alert.Timestamp),
			}
			if alert.Location != nil {
				fields = append(fields,
					zap.Float64("latitude", alert.Location.Latitude),
					zap.Float64("longitude", alert.Location.Longitude),
					zap.String("address", alert.Location.Address),
				)
			}
			log.Warn("emergency alert", fields...)

			if !ack {
				return
			}
			ackCtx, cancel := context.WithTimeout(ctx, ackTimeout)
			defer cancel()
			if _, err := client.MarkRead(ackCtx, alert.ID, member); err != nil {
				log.Error("mark read failed", zap.String("alert_id", alert.ID), zap.Error(err))
			}
		},
		OnUnreadCount: func(n int) {
			log.Debug("unread alerts", zap.Int("count", n))
		},
		OnError: func(err error) {
			log.Error("poll failed", zap.Error(err))
		},
	})
	if err != nil {
		return err
	}

	log.Info("watching for alerts",
		zap.String("server", server),
		zap.String("member", member),
		zap.Duration("interval", interval),
	)
	if err := poller.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("stopped")
	return nil
}
