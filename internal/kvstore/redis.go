package kvstore

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig captures the connection parameters for the Redis-backed store.
type RedisConfig struct {
	Address   string
	Username  string
	Password  string
	DB        int
	TLS       bool
	Timeout   time.Duration
	KeyPrefix string
}

const (
	defaultRedisTimeout   = 5 * time.Second
	defaultRedisKeyPrefix = "safeguard:"
	redisScanBatch        = 200
)

// RedisStore implements Store on a Redis server. Every key is namespaced with
// a configurable prefix so the database can be shared.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore connects to Redis and verifies the connection with PING so
// misconfiguration surfaces during start-up.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	cfg.Address = strings.TrimSpace(cfg.Address)
	if cfg.Address == "" {
		return nil, errors.New("redis: address is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultRedisTimeout
	}

	opts := &redis.Options{
		Addr:         cfg.Address,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.Timeout,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	}
	if cfg.TLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	store := NewRedisStoreFromClient(redis.NewClient(opts), cfg.KeyPrefix)

	pingCtx, cancel := context.WithTimeout(ensureContext(ctx), cfg.Timeout)
	defer cancel()
	if err := store.Ping(pingCtx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("redis: connect %s: %w", cfg.Address, err)
	}

	return store, nil
}

// NewRedisStoreFromClient wraps an existing client. An empty prefix selects the default.
func NewRedisStoreFromClient(client *redis.Client, prefix string) *RedisStore {
	if client == nil {
		return nil
	}
	if prefix == "" {
		prefix = defaultRedisKeyPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

// Get retrieves a value by key.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if s == nil {
		return nil, false, ErrNotInitialised
	}
	value, err := s.client.Get(ensureContext(ctx), s.prefixed(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

// Set stores value under key without expiry.
func (s *RedisStore) Set(ctx context.Context, key string, value []byte) error {
	if s == nil {
		return ErrNotInitialised
	}
	return s.client.Set(ensureContext(ctx), s.prefixed(key), value, 0).Err()
}

// Delete removes keys from the store.
func (s *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if s == nil {
		return ErrNotInitialised
	}
	if len(keys) == 0 {
		return nil
	}
	prefixed := make([]string, len(keys))
	for i, key := range keys {
		prefixed[i] = s.prefixed(key)
	}
	return s.client.Del(ensureContext(ctx), prefixed...).Err()
}

// ScanPrefix walks matching keys with SCAN and loads their values with MGET.
// Keys removed between the two steps are omitted.
func (s *RedisStore) ScanPrefix(ctx context.Context, prefix string) ([]Entry, error) {
	if s == nil {
		return nil, ErrNotInitialised
	}
	ctx = ensureContext(ctx)

	pattern := escapeGlob(s.prefixed(prefix)) + "*"
	seen := make(map[string]struct{})
	keys := make([]string, 0)
	iter := s.client.Scan(ctx, 0, pattern, redisScanBatch).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	sort.Strings(keys)

	entries := make([]Entry, 0, len(keys))
	for start := 0; start < len(keys); start += redisScanBatch {
		end := start + redisScanBatch
		if end > len(keys) {
			end = len(keys)
		}
		batch := keys[start:end]
		values, err := s.client.MGet(ctx, batch...).Result()
		if err != nil {
			return nil, err
		}
		for i, raw := range values {
			str, ok := raw.(string)
			if !ok {
				continue
			}
			entries = append(entries, Entry{
				Key:   s.unprefixed(batch[i]),
				Value: []byte(str),
			})
		}
	}
	return entries, nil
}

// Ping checks connectivity to the Redis server.
func (s *RedisStore) Ping(ctx context.Context) error {
	if s == nil {
		return ErrNotInitialised
	}
	return s.client.Ping(ensureContext(ctx)).Err()
}

// Client exposes the underlying connection for components that share it.
func (s *RedisStore) Client() *redis.Client {
	if s == nil {
		return nil
	}
	return s.client
}

// Prefix returns the namespace applied to every key.
func (s *RedisStore) Prefix() string {
	if s == nil {
		return ""
	}
	return s.prefix
}

// Close releases the connection pool.
func (s *RedisStore) Close() error {
	if s == nil {
		return nil
	}
	return s.client.Close()
}

func (s *RedisStore) prefixed(key string) string {
	return s.prefix + key
}

func (s *RedisStore) unprefixed(key string) string {
	return strings.TrimPrefix(key, s.prefix)
}

// escapeGlob quotes the characters SCAN MATCH treats as wildcards.
func escapeGlob(value string) string {
	var b strings.Builder
	b.Grow(len(value))
	for _, r := range value {
		switch r {
		case '*', '?', '[', ']', '\\', '^', '-':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
