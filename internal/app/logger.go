package app

import (
	"strings"

	"github.com/charlesng35/safeguard/pkg/logger"
)

// ConfigureLogging initialises the global logger with the provided level, defaulting to info.
// A non-empty file path in cfg adds a rotating file sink.
func ConfigureLogging(level string, cfg LogConfig) error {
	level = strings.TrimSpace(level)
	if level == "" {
		level = "info"
	}
	return logger.Init(level, logger.WithFileOutput(logger.FileOutput{
		Path:       strings.TrimSpace(cfg.File),
		MaxSizeMB:  cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAgeDays: cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}))
}
