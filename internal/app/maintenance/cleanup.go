package maintenance

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/charlesng35/safeguard/pkg/logger"
)

const (
	defaultRetentionDays  = 30
	defaultCleanupSpec    = "@daily"
	defaultRecoverySpec   = "@every 5m"
	maintenanceJobTimeout = 5 * time.Minute
)

// AlertMaintainer is the subset of the alert repository the cleaner drives.
type AlertMaintainer interface {
	Cleanup(ctx context.Context, retentionDays int) (int, error)
	RecoverPendingFanouts(ctx context.Context) (int, error)
}

// Cleaner schedules the alert retention sweep and, when enabled, the
// completion of fan-outs left pending by failed creates.
type Cleaner struct {
	alerts    AlertMaintainer
	cron      *cron.Cron
	log       *zap.Logger
	retention int
	recovery  bool

	cleanupSchedule  string
	recoverySchedule string
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithRetentionDays adjusts how long alerts are kept before cleanup.
func WithRetentionDays(days int) Option {
	return func(cleaner *Cleaner) {
		if days > 0 {
			cleaner.retention = days
		}
	}
}

// WithCleanupSchedule overrides the cron expression for the retention sweep.
func WithCleanupSchedule(schedule string) Option {
	return func(cleaner *Cleaner) {
		if schedule != "" {
			cleaner.cleanupSchedule = schedule
		}
	}
}

// WithFanoutRecovery enables the pending fan-out recovery job.
func WithFanoutRecovery(enabled bool) Option {
	return func(cleaner *Cleaner) {
		cleaner.recovery = enabled
	}
}

// WithRecoverySchedule overrides the cron expression for fan-out recovery.
func WithRecoverySchedule(schedule string) Option {
	return func(cleaner *Cleaner) {
		if schedule != "" {
			cleaner.recoverySchedule = schedule
		}
	}
}

// NewCleaner constructs a Cleaner with sensible defaults. A nil alerts
// dependency disables every job.
func NewCleaner(alerts AlertMaintainer, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		alerts:           alerts,
		retention:        defaultRetentionDays,
		cleanupSchedule:  defaultCleanupSpec,
		recoverySchedule: defaultRecoverySpec,
		log:              logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	return cleaner
}

// Start registers the jobs with the cron scheduler and launches it.
func (c *Cleaner) Start() error {
	if c.alerts == nil {
		return nil
	}

	if _, err := c.cron.AddFunc(c.cleanupSchedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), maintenanceJobTimeout)
		defer cancel()
		if _, err := c.cleanup(ctx); err != nil {
			c.log.Warn("alert cleanup failed", zap.Error(err))
		}
	}); err != nil {
		return err
	}

	if c.recovery {
		if _, err := c.cron.AddFunc(c.recoverySchedule, func() {
			ctx, cancel := context.WithTimeout(context.Background(), maintenanceJobTimeout)
			defer cancel()
			if _, err := c.recover(ctx); err != nil {
				c.log.Warn("fan-out recovery failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}

	c.cron.Start()
	c.log.Info("maintenance scheduled",
		zap.String("cleanup_schedule", c.cleanupSchedule),
		zap.Int("retention_days", c.retention),
		zap.Bool("fanout_recovery", c.recovery),
	)
	return nil
}

// Stop halts the underlying scheduler, waiting for any running jobs to complete.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// RunOnce executes the configured jobs sequentially. Recovery runs first so
// completed fan-outs are not left pointing at alerts the sweep then removes.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if c.alerts == nil {
		return nil
	}

	var errs error

	if c.recovery {
		if _, err := c.recover(ctx); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	if _, err := c.cleanup(ctx); err != nil {
		errs = multierr.Append(errs, err)
	}

	return errs
}

func (c *Cleaner) cleanup(ctx context.Context) (int, error) {
	return c.alerts.Cleanup(ctx, c.retention)
}

func (c *Cleaner) recover(ctx context.Context) (int, error) {
	return c.alerts.RecoverPendingFanouts(ctx)
}
