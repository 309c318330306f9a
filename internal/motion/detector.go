// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package motion acquires head motion samples and tracks whether a sensor
// is connected.
package motion

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/relabs-tech/head_tracker/internal/imu"
)

// ErrStale is reported when a connected source stops delivering samples.
var ErrStale = errors.New("motion: no samples within stale timeout")

// Opener connects to a sample source. It is called again after every
// failure or disconnect.
type Opener func(ctx context.Context) (imu.Source, error)

// DetectorConfig controls polling. Zero fields take the defaults below.
type DetectorConfig struct {
	Interval     time.Duration // between reads, default 10ms
	StaleTimeout time.Duration // without samples before disconnecting, default 1s
	Retry        time.Duration // between open attempts, default 1s
}

func (c DetectorConfig) withDefaults() DetectorConfig {
	if c.Interval <= 0 {
		c.Interval = 10 * time.Millisecond
	}
	if c.StaleTimeout <= 0 {
		c.StaleTimeout = time.Second
	}
	if c.Retry <= 0 {
		c.Retry = time.Second
	}
	return c
}

// Detector polls a source and delivers samples on a single goroutine.
// Connected becomes true on the first sample after opening and false
// after a read error or when samples stop for StaleTimeout.
type Detector struct {
	open   Opener
	cfg    DetectorConfig
	clock  clock.Clock
	logger *zap.SugaredLogger

	// OnSample and OnConnectionChange must be set before Run.
	OnSample           func(imu.Sample)
	OnConnectionChange func(connected bool)

	mu        sync.RWMutex
	connected bool
}

// NewDetector creates a detector. Callbacks default to no-ops.
func NewDetector(open Opener, cfg DetectorConfig, clk clock.Clock, logger *zap.SugaredLogger) *Detector {
	return &Detector{
		open:               open,
		cfg:                cfg.withDefaults(),
		clock:              clk,
		logger:             logger,
		OnSample:           func(imu.Sample) {},
		OnConnectionChange: func(bool) {},
	}
}

// Connected reports the current connection state.
func (d *Detector) Connected() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.connected
}

func (d *Detector) setConnected(v bool) {
	d.mu.Lock()
	changed := d.connected != v
	d.connected = v
	d.mu.Unlock()
	if changed {
		d.logger.Infow("connection changed", "connected", v)
		d.OnConnectionChange(v)
	}
}

// Run opens the source and reads from it until ctx is done, reopening
// after failures. It always returns nil once ctx is cancelled.
func (d *Detector) Run(ctx context.Context) error {
	for {
		src, err := d.open(ctx)
		if err != nil {
			d.logger.Debugw("source not available", "error", err)
		} else {
			err = d.session(ctx, src)
			if cerr := src.Close(); cerr != nil {
				d.logger.Debugw("close source", "error", cerr)
			}
			d.setConnected(false)
			if err != nil && ctx.Err() == nil {
				d.logger.Warnw("source disconnected", "error", err)
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-d.clock.After(d.cfg.Retry):
		}
	}
}

// session reads from src until it fails, goes stale or ctx is done.
func (d *Detector) session(ctx context.Context, src imu.Source) error {
	ticker := d.clock.Ticker(d.cfg.Interval)
	defer ticker.Stop()

	lastSample := d.clock.Now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		s, err := src.Next(ctx)
		switch {
		case errors.Is(err, imu.ErrNoSample):
			if d.clock.Since(lastSample) >= d.cfg.StaleTimeout {
				return ErrStale
			}
			continue
		case err != nil:
			return fmt.Errorf("motion: read: %w", err)
		}

		lastSample = d.clock.Now()
		d.setConnected(true)
		d.OnSample(s)
	}
}
