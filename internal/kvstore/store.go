package kvstore

import (
	"context"
	"errors"
)

// ErrNotInitialised is returned when a nil store is used.
var ErrNotInitialised = errors.New("kvstore: store not initialised")

// Entry is a key/value pair returned by prefix scans.
type Entry struct {
	Key   string
	Value []byte
}

// Store is the durable string-keyed mapping backing alerts, recipient indexes
// and family links. Implementations guarantee read-your-writes per key and
// nothing across keys.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, keys ...string) error
	// ScanPrefix returns every entry whose key starts with prefix, ordered by key.
	ScanPrefix(ctx context.Context, prefix string) ([]Entry, error)
	Ping(ctx context.Context) error
	Close() error
}

func ensureContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

func cloneBytes(value []byte) []byte {
	if value == nil {
		return nil
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out
}
