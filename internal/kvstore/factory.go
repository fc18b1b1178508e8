package kvstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// Supported store drivers.
const (
	DriverDatabase = "database"
	DriverRedis    = "redis"
	DriverMemory   = "memory"
)

// Config selects and configures a Store implementation.
type Config struct {
	Driver string
	Redis  RedisConfig
}

// New builds the Store selected by cfg.Driver. The database driver requires db.
func New(ctx context.Context, cfg Config, db *gorm.DB) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" {
		driver = DriverDatabase
	}

	switch driver {
	case DriverDatabase:
		if db == nil {
			return nil, errors.New("kvstore: database driver requires a database handle")
		}
		return NewDatabaseStore(db), nil
	case DriverRedis:
		return NewRedisStore(ctx, cfg.Redis)
	case DriverMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("kvstore: unsupported driver %q", cfg.Driver)
	}
}
