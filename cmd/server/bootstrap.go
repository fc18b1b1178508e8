package main

import (
	"context"
	"fmt"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/ulule/limiter/v3"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/safeguard/internal/api"
	"github.com/charlesng35/safeguard/internal/app"
	"github.com/charlesng35/safeguard/internal/app/maintenance"
	"github.com/charlesng35/safeguard/internal/database"
	"github.com/charlesng35/safeguard/internal/handlers"
	"github.com/charlesng35/safeguard/internal/kvstore"
	"github.com/charlesng35/safeguard/internal/services"
	"github.com/charlesng35/safeguard/pkg/logger"
)

// runtimeStack bundles long-lived services used by the HTTP server.
type runtimeStack struct {
	DB        *gorm.DB
	Store     kvstore.Store
	Links     *services.FamilyLinkService
	Alerts    *services.AlertService
	Cleaner   *maintenance.Cleaner
	RateStore limiter.Store
	Router    *gin.Engine
}

// bootstrapRuntime initialises the store, services, maintenance jobs and the HTTP router.
func bootstrapRuntime(ctx context.Context, cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			stack.Shutdown(context.Background(), log)
		}
	}()

	// enable gin debug mod
	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	if cfg.UsesDatabase() {
		stack.DB, err = initialiseDatabase(cfg)
		if err != nil {
			return nil, err
		}
	}

	stack.Store, err = kvstore.New(ctx, cfg.KVStoreConfig(), stack.DB)
	if err != nil {
		return nil, fmt.Errorf("initialise kv store: %w", err)
	}
	log.Info("kv store ready", zap.String("driver", cfg.KVStoreConfig().Driver))

	stack.Links, err = services.NewFamilyLinkService(stack.Store)
	if err != nil {
		return nil, fmt.Errorf("initialise family link service: %w", err)
	}

	stack.Alerts, err = services.NewAlertService(stack.Store, stack.Links,
		services.WithFanoutJournal(cfg.Alerts.FanoutRecovery.Enabled),
	)
	if err != nil {
		return nil, fmt.Errorf("initialise alert service: %w", err)
	}

	stack.Cleaner = maintenance.NewCleaner(stack.Alerts,
		maintenance.WithRetentionDays(cfg.Alerts.RetentionDays),
		maintenance.WithCleanupSchedule(cfg.Alerts.CleanupSchedule),
		maintenance.WithFanoutRecovery(cfg.Alerts.FanoutRecovery.Enabled),
		maintenance.WithRecoverySchedule(cfg.Alerts.FanoutRecovery.Schedule),
	)
	if err := stack.Cleaner.Start(); err != nil {
		return nil, fmt.Errorf("start maintenance jobs: %w", err)
	}

	if rs, ok := stack.Store.(*kvstore.RedisStore); ok && cfg.Server.RateLimit.Enabled {
		stack.RateStore, err = sredis.NewStoreWithOptions(rs.Client(), limiter.StoreOptions{
			Prefix: rs.Prefix() + "ratelimit",
		})
		if err != nil {
			return nil, fmt.Errorf("initialise rate limit store: %w", err)
		}
	}

	alertHandler, err := handlers.NewAlertHandler(stack.Alerts, stack.Links, cfg.Alerts.RetentionDays)
	if err != nil {
		return nil, fmt.Errorf("initialise alert handler: %w", err)
	}

	stack.Router, err = api.NewRouter(api.Options{
		BasePath:         cfg.Server.BasePath,
		Alerts:           alertHandler,
		Store:            stack.Store,
		AllowedOrigins:   cfg.Server.CORS.AllowedOrigins,
		RateLimitEnabled: cfg.Server.RateLimit.Enabled,
		RateLimit:        cfg.Server.RateLimit.Rate,
		RateLimitStore:   stack.RateStore,
		MetricsEnabled:   cfg.Monitoring.Prometheus.Enabled,
		MetricsEndpoint:  cfg.Monitoring.Prometheus.Endpoint,
	})
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

// Shutdown gracefully stops background jobs and releases resources.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) {
	if s == nil {
		return
	}

	if s.Cleaner != nil {
		select {
		case <-s.Cleaner.Stop().Done():
		case <-ctx.Done():
		}
		if err := s.Cleaner.RunOnce(ctx); err != nil {
			log.Warn("maintenance shutdown cleanup failed", zap.Error(err))
		}
	}

	if s.Store != nil {
		if err := s.Store.Close(); err != nil {
			log.Warn("kv store shutdown", zap.Error(err))
		}
	}

	if s.DB != nil {
		if err := database.Close(s.DB); err != nil {
			log.Warn("failed to close database", zap.Error(err))
		}
	}
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := cfg.Database.DatabaseConnConfig()
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.AutoMigrate(db); err != nil {
		_ = database.Close(db)
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	logger.WithModule("database").Info("database connected", zap.String("driver", dbCfg.Driver))
	return db, nil
}
