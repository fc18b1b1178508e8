package app

import (
	"strings"

	"github.com/charlesng35/safeguard/internal/database"
	"github.com/charlesng35/safeguard/internal/kvstore"
)

// UsesDatabase reports whether the configured store needs a SQL connection.
func (c *Config) UsesDatabase() bool {
	driver := strings.ToLower(strings.TrimSpace(c.Store.Driver))
	return driver == "" || driver == kvstore.DriverDatabase
}

// KVStoreConfig converts the store and redis sections into the kvstore representation.
func (c *Config) KVStoreConfig() kvstore.Config {
	return kvstore.Config{
		Driver: strings.ToLower(strings.TrimSpace(c.Store.Driver)),
		Redis: kvstore.RedisConfig{
			Address:   strings.TrimSpace(c.Redis.Address),
			Username:  strings.TrimSpace(c.Redis.Username),
			Password:  c.Redis.Password,
			DB:        c.Redis.DB,
			TLS:       c.Redis.TLS,
			Timeout:   c.Redis.Timeout,
			KeyPrefix: c.Redis.KeyPrefix,
		},
	}
}

// DatabaseConnConfig converts the database section into a connection config,
// picking the host parameters that match the selected driver.
func (c DatabaseConfig) DatabaseConnConfig() database.Config {
	cfg := database.Config{
		Driver: strings.ToLower(strings.TrimSpace(c.Driver)),
		Path:   strings.TrimSpace(c.Path),
		DSN:    strings.TrimSpace(c.DSN),
	}

	var auth DBAuthConfig
	switch cfg.Driver {
	case "postgres", "postgresql":
		auth = c.Postgres
	case "mysql":
		auth = c.MySQL
	default:
		return cfg
	}

	cfg.Host = strings.TrimSpace(auth.Host)
	cfg.Port = auth.Port
	cfg.User = auth.Username
	cfg.Password = auth.Password
	cfg.Name = strings.TrimSpace(auth.Database)
	return cfg
}
