package logger

import (
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	globalLogger *zap.Logger
	mu           sync.RWMutex
)

func init() { // ensure we always have a usable logger even before Init is called
	globalLogger = zap.NewNop()
}

// FileOutput describes an optional rotating log file written alongside stdout.
type FileOutput struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Option customises Init.
type Option func(*options)

type options struct {
	file *FileOutput
}

// WithFileOutput tees log entries into a lumberjack-rotated file.
func WithFileOutput(file FileOutput) Option {
	return func(o *options) {
		if strings.TrimSpace(file.Path) == "" {
			return
		}
		f := file
		o.file = &f
	}
}

// Init configures the global logger using the provided level string.
func Init(level string, opts ...Option) error {
	settings := options{}
	for _, opt := range opts {
		if opt != nil {
			opt(&settings)
		}
	}

	cfg := zap.NewProductionConfig()

	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		zapLevel = zapcore.InfoLevel
	}
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)

	logger, err := cfg.Build()
	if err != nil {
		return err
	}

	if settings.file != nil {
		logger = logger.WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
			return zapcore.NewTee(core, newFileCore(cfg, *settings.file))
		}))
	}

	mu.Lock()
	defer mu.Unlock()

	globalLogger = logger
	return nil
}

func newFileCore(cfg zap.Config, file FileOutput) zapcore.Core {
	writer := &lumberjack.Logger{
		Filename:   file.Path,
		MaxSize:    file.MaxSizeMB,
		MaxBackups: file.MaxBackups,
		MaxAge:     file.MaxAgeDays,
		Compress:   file.Compress,
	}
	encoder := zapcore.NewJSONEncoder(cfg.EncoderConfig)
	return zapcore.NewCore(encoder, zapcore.AddSync(writer), cfg.Level)
}

// Logger returns the configured global logger.
func Logger() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()

	return globalLogger
}

// ReplaceGlobal swaps the global logger and returns a function restoring the previous one.
func ReplaceGlobal(l *zap.Logger) func() {
	if l == nil {
		l = zap.NewNop()
	}

	mu.Lock()
	prev := globalLogger
	globalLogger = l
	mu.Unlock()

	return func() {
		mu.Lock()
		globalLogger = prev
		mu.Unlock()
	}
}

// Sync flushes buffered log entries.
func Sync() error {
	err := Logger().Sync()
	if err != nil && isIgnorableSyncError(err) {
		return nil
	}
	return err
}

// stdout/stderr report EINVAL or ENOTTY on sync when attached to a terminal or pipe.
func isIgnorableSyncError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, os.Stdout.Name()) || strings.Contains(msg, os.Stderr.Name())
}

// WithModule returns a child logger annotated with the module name.
func WithModule(module string) *zap.Logger {
	return Logger().With(zap.String("module", module))
}

// Info logs an informational message using the global logger.
func Info(msg string, fields ...zap.Field) {
	Logger().Info(msg, fields...)
}

// Error logs an error message using the global logger.
func Error(msg string, fields ...zap.Field) {
	Logger().Error(msg, fields...)
}

// Warn logs a warning message using the global logger.
func Warn(msg string, fields ...zap.Field) {
	Logger().Warn(msg, fields...)
}

// Debug logs a debug message using the global logger.
func Debug(msg string, fields ...zap.Field) {
	Logger().Debug(msg, fields...)
}
