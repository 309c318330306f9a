// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package calibration owns the head calibration state: the idle reference
// rotation captured by a reset, and the correction rotation computed by the
// press-nod-release gesture.
package calibration

import (
	"errors"
	"sync"

	"github.com/golang/geo/r3"
	"go.uber.org/zap"

	"github.com/relabs-tech/head_tracker/internal/imu"
	"github.com/relabs-tech/head_tracker/internal/orientation"
	"github.com/relabs-tech/head_tracker/internal/store"
)

// StoreKey is the key the calibration record is persisted under.
const StoreKey = "calibration"

// ErrCalibrationNotStarted is returned by FinishCalibration when no gesture
// was started.
var ErrCalibrationNotStarted = errors.New("calibration: gesture not started")

// Calibrator turns raw samples into corrected orientations. All methods are
// safe for concurrent use: samples arrive on the motion goroutine while
// gestures arrive from viewer connections.
type Calibrator struct {
	store  store.Store
	logger *zap.SugaredLogger

	mu          sync.RWMutex
	rec         Record
	raw         imu.Sample
	idleGravity r3.Vector
	started     bool
}

// New restores the persisted record from s, falling back to Default when
// nothing usable is stored.
func New(s store.Store, logger *zap.SugaredLogger) *Calibrator {
	c := &Calibrator{
		store:  s,
		logger: logger,
		rec:    Default,
		raw:    imu.Sample{Quaternion: orientation.Identity()},
	}
	c.restore()
	return c
}

func (c *Calibrator) restore() {
	data, err := c.store.Load(StoreKey)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			c.logger.Warnw("cannot load calibration, using identity", "error", err)
		}
		return
	}
	rec, err := DecodeRecord(data)
	if err != nil {
		c.logger.Warnw("stored calibration unusable, using identity", "error", err)
		return
	}
	c.rec = rec
	c.logger.Infow("calibration restored", "idle", rec.Idle, "correction", rec.Correction)
}

// Update stores s as the latest raw sample.
func (c *Calibrator) Update(s imu.Sample) {
	c.mu.Lock()
	c.raw = s
	c.mu.Unlock()
}

// Correct applies the calibration to a raw device quaternion:
//
//	steering  = idle * raw
//	corrected = correction' * steering * correction
//
// It does not modify the calibrator.
func (c *Calibrator) Correct(raw orientation.Quaternion) orientation.Quaternion {
	c.mu.RLock()
	idle, corr := c.rec.Idle, c.rec.Correction
	c.mu.RUnlock()

	steering := idle.Mul(raw)
	return corr.Conj().Mul(steering).Mul(corr).Normalize()
}

// Process stores s and returns its corrected orientation.
func (c *Calibrator) Process(s imu.Sample) orientation.Quaternion {
	c.Update(s)
	return c.Correct(s.Quaternion)
}

// ResetOrientation makes the current raw attitude the new zero reference.
func (c *Calibrator) ResetOrientation() {
	c.mu.Lock()
	c.resetLocked()
	c.mu.Unlock()
	c.logger.Debug("orientation reset")
}

func (c *Calibrator) resetLocked() {
	c.rec.Idle = c.raw.Quaternion.Conj()
}

// StartCalibration captures the current gravity and resets the orientation.
// The user then nods and releases, which calls FinishCalibration.
func (c *Calibrator) StartCalibration() {
	c.mu.Lock()
	gravity := c.raw.Gravity
	c.idleGravity = gravity
	c.started = true
	c.resetLocked()
	c.mu.Unlock()
	c.logger.Debugw("calibration started", "gravity", gravity)
}

// FinishCalibration computes the correction from the gravity captured by
// StartCalibration and the current gravity, then persists the record. On
// error the previous correction is kept.
func (c *Calibrator) FinishCalibration() error {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return ErrCalibrationNotStarted
	}
	corr, err := correctionFromGravity(c.idleGravity, c.raw.Gravity)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	c.rec.Correction = corr
	rec := c.rec
	c.mu.Unlock()

	c.logger.Infow("calibration finished", "correction", corr)
	c.persist(rec)
	return nil
}

// Record returns a snapshot of the calibration state.
func (c *Calibrator) Record() Record {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.rec
}

// Save persists the current record. Failures are logged, not returned.
func (c *Calibrator) Save() {
	c.persist(c.Record())
}

func (c *Calibrator) persist(rec Record) {
	data, err := EncodeRecord(rec)
	if err != nil {
		c.logger.Warnw("cannot encode calibration", "error", err)
		return
	}
	if err := c.store.Save(StoreKey, data); err != nil {
		c.logger.Warnw("cannot save calibration", "error", err)
	}
}
