// Package logging wires zap into the rest of the node so every
// component logs through one configured sink instead of calling the
// log package directly.
package logging

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config controls the global logger.
type Config struct {
	Level   string // debug, info, warn, error
	Console bool   // human-readable console encoding instead of JSON
}

var (
	global     *zap.Logger
	globalOnce sync.Once
)

// Init builds the global zap logger once. Later calls are no-ops.
func Init(cfg Config) *zap.Logger {
	globalOnce.Do(func() {
		global = newLogger(cfg)
		zap.ReplaceGlobals(global)
	})
	return global
}

func newLogger(cfg Config) *zap.Logger {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		_ = level.Set(cfg.Level)
	}

	zcfg := zap.NewProductionConfig()
	if cfg.Console {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)

	l, err := zcfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return l
}

// L returns the global logger, falling back to a no-op logger if Init
// was never called (keeps tests quiet without requiring setup).
func L() *zap.Logger {
	if global != nil {
		return global
	}
	return zap.NewNop()
}

// Named returns a sugared child logger scoped to component.
func Named(component string) *zap.SugaredLogger {
	return L().Named(component).Sugar()
}
