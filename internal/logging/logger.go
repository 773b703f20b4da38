// Proxywatch - Streaming Proxy Bandwidth Monitoring and Analytics Export
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/proxywatch

// Package logging provides the process-wide zerolog logger for Proxywatch.
//
// Initialize once from main and log through the package helpers:
//
//	logging.Init(logging.Config{Level: "info", Format: "json"})
//	logging.Info().Str("proxy_id", id).Msg("Poller started")
//	logging.Ctx(ctx).Warn().Err(err).Msg("Metrics API unavailable")
//
// Always terminate an event chain with Msg or Send, otherwise nothing is written.
package logging

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Config holds logging configuration.
type Config struct {
	// Level is the minimum level: trace, debug, info, warn, error, fatal, panic or disabled.
	Level string

	// Format is json or console.
	Format string

	// Caller adds file:line to every event.
	Caller bool

	// Timestamp adds a time field to every event.
	Timestamp bool

	// Service is stamped on every event as the service field.
	Service string

	// Output defaults to os.Stderr.
	Output io.Writer
}

// DefaultConfig is what the process logs with until Init runs.
func DefaultConfig() Config {
	return Config{
		Level:     "info",
		Format:    "json",
		Timestamp: true,
		Service:   "proxywatch",
		Output:    os.Stderr,
	}
}

var (
	mu  sync.RWMutex
	log = newLogger(DefaultConfig())
)

// Init reconfigures the global logger. Safe to call more than once.
func Init(cfg Config) {
	l := newLogger(cfg)
	mu.Lock()
	log = l
	mu.Unlock()
}

// newLogger builds a logger from cfg and applies its level globally.
func newLogger(cfg Config) zerolog.Logger {
	defaults := DefaultConfig()
	if cfg.Output == nil {
		cfg.Output = defaults.Output
	}
	if cfg.Service == "" {
		cfg.Service = defaults.Service
	}
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	out := cfg.Output
	if strings.EqualFold(cfg.Format, "console") {
		out = zerolog.ConsoleWriter{Out: cfg.Output, TimeFormat: "15:04:05"}
	}

	lc := zerolog.New(out).With().Str("service", cfg.Service)
	if cfg.Timestamp {
		lc = lc.Timestamp()
	}
	if cfg.Caller {
		lc = lc.Caller()
	}
	return lc.Logger()
}

// parseLevel maps a level name to zerolog. Empty and unknown names are info.
func parseLevel(name string) zerolog.Level {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "warning" {
		name = "warn"
	}
	lvl, err := zerolog.ParseLevel(name)
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

// Logger returns the global logger instance.
func Logger() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return log
}

// SetLogger replaces the global logger. Tests use it with NewTestLogger.
//
//nolint:gocritic // zerolog.Logger is passed by value
func SetLogger(l zerolog.Logger) {
	mu.Lock()
	log = l
	mu.Unlock()
}

// With starts a child logger context from the global logger.
func With() zerolog.Context {
	l := Logger()
	return l.With()
}

func Debug() *zerolog.Event { l := Logger(); return l.Debug() }
func Info() *zerolog.Event  { l := Logger(); return l.Info() }
func Warn() *zerolog.Event  { l := Logger(); return l.Warn() }
func Error() *zerolog.Event { l := Logger(); return l.Error() }

// Fatal exits the process with status 1 once the event is written.
func Fatal() *zerolog.Event { l := Logger(); return l.Fatal() }

// Err logs at error level when err is non-nil and at info otherwise.
//
//	logging.Err(err).Str("job_id", id).Msg("Export finished")
func Err(err error) *zerolog.Event { l := Logger(); return l.Err(err) }

// NewTestLogger writes JSON events to w.
func NewTestLogger(w io.Writer) zerolog.Logger {
	return zerolog.New(w).With().Timestamp().Logger()
}
