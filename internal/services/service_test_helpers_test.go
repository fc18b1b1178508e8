package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/safeguard/internal/kvstore"
	"github.com/charlesng35/safeguard/internal/models"
)

var errInjected = errors.New("injected store failure")

// faultyStore wraps a Store and fails writes to selected keys.
type faultyStore struct {
	kvstore.Store

	mu       sync.Mutex
	failSet  map[string]int // remaining failures per key, -1 for always
	failGet  map[string]bool
	failScan bool
	setCalls map[string]int
}

func newFaultyStore() *faultyStore {
	return &faultyStore{
		Store:    kvstore.NewMemoryStore(),
		failSet:  map[string]int{},
		failGet:  map[string]bool{},
		setCalls: map[string]int{},
	}
}

func (f *faultyStore) failSetFor(key string, times int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failSet[key] = times
}

func (f *faultyStore) clearFailures() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failSet = map[string]int{}
	f.failGet = map[string]bool{}
	f.failScan = false
}

func (f *faultyStore) Set(ctx context.Context, key string, value []byte) error {
	f.mu.Lock()
	f.setCalls[key]++
	remaining, ok := f.failSet[key]
	if ok && remaining != 0 {
		if remaining > 0 {
			f.failSet[key] = remaining - 1
		}
		f.mu.Unlock()
		return errInjected
	}
	f.mu.Unlock()
	return f.Store.Set(ctx, key, value)
}

func (f *faultyStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	f.mu.Lock()
	fail := f.failGet[key]
	f.mu.Unlock()
	if fail {
		return nil, false, errInjected
	}
	return f.Store.Get(ctx, key)
}

func (f *faultyStore) ScanPrefix(ctx context.Context, prefix string) ([]kvstore.Entry, error) {
	f.mu.Lock()
	fail := f.failScan
	f.mu.Unlock()
	if fail {
		return nil, errInjected
	}
	return f.Store.ScanPrefix(ctx, prefix)
}

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFixedClock(now time.Time) *fixedClock {
	return &fixedClock{now: now}
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testServices struct {
	store  kvstore.Store
	links  *FamilyLinkService
	alerts *AlertService
	clock  *fixedClock
}

func newTestServices(t *testing.T, store kvstore.Store, opts ...AlertOption) testServices {
	t.Helper()

	if store == nil {
		store = kvstore.NewMemoryStore()
	}
	clock := newFixedClock(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))

	links, err := NewFamilyLinkService(store)
	require.NoError(t, err)

	opts = append([]AlertOption{WithClock(clock.Now)}, opts...)
	alerts, err := NewAlertService(store, links, opts...)
	require.NoError(t, err)

	return testServices{store: store, links: links, alerts: alerts, clock: clock}
}

func sequentialIDs(ids ...string) func(time.Time) string {
	var mu sync.Mutex
	next := 0
	return func(time.Time) string {
		mu.Lock()
		defer mu.Unlock()
		if next >= len(ids) {
			return "exhausted-" + strings.Repeat("x", next)
		}
		id := ids[next]
		next++
		return id
	}
}

func alertIDs(alerts []*models.EmergencyAlert) []string {
	out := make([]string, len(alerts))
	for i, alert := range alerts {
		out[i] = alert.ID
	}
	return out
}
