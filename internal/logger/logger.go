package logger

import (
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	globalLogger *zap.Logger
	mu           sync.RWMutex
)

func init() {
	globalLogger = zap.NewNop()
}

// Init configures the global logger using the provided level string.
// Unknown levels fall back to info.
func Init(level string) error {
	cfg := zap.NewProductionConfig()

	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		zapLevel = zapcore.InfoLevel
	}
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)

	l, err := cfg.Build()
	if err != nil {
		return err
	}

	Set(l)
	return nil
}

// Set replaces the global logger. Tests use it to install an observer core.
func Set(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	mu.Lock()
	defer mu.Unlock()
	globalLogger = l
}

// Logger returns the configured global logger.
func Logger() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()

	return globalLogger
}

// Sync flushes buffered log entries.
func Sync() error {
	return Logger().Sync()
}

// WithModule returns a child logger annotated with the module name.
func WithModule(module string) *zap.Logger {
	return Logger().With(zap.String("module", module))
}
