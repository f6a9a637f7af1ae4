package logging

import (
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// The package keeps one process-wide logger so components can log before
// the entrypoint finishes wiring; main replaces it via SetGlobal.
var global atomic.Pointer[zap.Logger]

func init() {
	l, _ := zap.NewProduction()
	global.Store(l)
}

// New builds the gateway logger. Unrecognized level strings fall back to
// the production default (info).
func New(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if lvl, err := zapcore.ParseLevel(strings.ToLower(level)); err == nil {
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	// Skip the package-level wrappers when reporting the caller
	return cfg.Build(zap.AddCallerSkip(1))
}

// Global returns the process-wide logger.
func Global() *zap.Logger { return global.Load() }

// SetGlobal replaces the process-wide logger.
func SetGlobal(l *zap.Logger) { global.Store(l) }

// Package-level helpers for call sites without a component logger.

func Info(msg string, fields ...zap.Field)  { Global().Info(msg, fields...) }
func Warn(msg string, fields ...zap.Field)  { Global().Warn(msg, fields...) }
func Error(msg string, fields ...zap.Field) { Global().Error(msg, fields...) }
func Debug(msg string, fields ...zap.Field) { Global().Debug(msg, fields...) }

// Sync flushes buffered entries; called on shutdown.
func Sync() { Global().Sync() }
