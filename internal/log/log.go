// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package log provides the process-wide zap logger. Components receive a
// named *zap.SugaredLogger from Named so every line carries its origin.
package log

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	logger *zap.SugaredLogger
	once   sync.Once
	mu     sync.RWMutex
)

// Init builds the global logger at the given level ("debug", "info",
// "warn", "error"). Unknown levels fall back to info. Only the first call
// has an effect.
func Init(level string) {
	once.Do(func() {
		lvl, err := zapcore.ParseLevel(level)
		if err != nil {
			lvl = zapcore.InfoLevel
		}

		// JSON in production, console output in development
		var cfg zap.Config
		if os.Getenv("GO_ENV") == "production" {
			cfg = zap.NewProductionConfig()
		} else {
			cfg = zap.NewDevelopmentConfig()
			cfg.DisableStacktrace = true
		}
		cfg.Level = zap.NewAtomicLevelAt(lvl)

		l, err := cfg.Build()
		if err != nil {
			l = zap.NewExample()
		}

		mu.Lock()
		logger = l.Sugar()
		mu.Unlock()
	})
}

// L returns the global logger, initializing it at info level if needed.
func L() *zap.SugaredLogger {
	mu.RLock()
	l := logger
	mu.RUnlock()
	if l == nil {
		Init("info")
		mu.RLock()
		l = logger
		mu.RUnlock()
	}
	return l
}

// Named returns a child logger for a component.
func Named(name string) *zap.SugaredLogger {
	return L().Named(name)
}

// Sync flushes buffered log entries.
func Sync() {
	_ = L().Sync()
}
