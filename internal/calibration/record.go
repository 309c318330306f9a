// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package calibration

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/relabs-tech/head_tracker/internal/orientation"
)

// ErrInvalidRecord is returned by DecodeRecord for blobs that parse but do
// not hold two usable rotations.
var ErrInvalidRecord = errors.New("calibration: invalid record")

// unitTolerance is how far a stored quaternion norm may drift from 1.
const unitTolerance = 1e-3

// Record is the persisted calibration state.
type Record struct {
	Idle       orientation.Quaternion
	Correction orientation.Quaternion
}

// Default is the record used when nothing valid was persisted.
var Default = Record{
	Idle:       orientation.Identity(),
	Correction: orientation.Identity(),
}

// storedRecord is the on-disk layout: eight named doubles.
type storedRecord struct {
	CorrectionW float64 `json:"correction_w"`
	CorrectionX float64 `json:"correction_x"`
	CorrectionY float64 `json:"correction_y"`
	CorrectionZ float64 `json:"correction_z"`

	IdleW float64 `json:"idle_w"`
	IdleX float64 `json:"idle_x"`
	IdleY float64 `json:"idle_y"`
	IdleZ float64 `json:"idle_z"`
}

// EncodeRecord serializes r.
func EncodeRecord(r Record) ([]byte, error) {
	data, err := json.Marshal(storedRecord{
		CorrectionW: r.Correction.W,
		CorrectionX: r.Correction.X,
		CorrectionY: r.Correction.Y,
		CorrectionZ: r.Correction.Z,
		IdleW:       r.Idle.W,
		IdleX:       r.Idle.X,
		IdleY:       r.Idle.Y,
		IdleZ:       r.Idle.Z,
	})
	if err != nil {
		return nil, fmt.Errorf("calibration: encode record: %w", err)
	}
	return data, nil
}

// DecodeRecord parses a blob written by EncodeRecord. Callers fall back to
// Default on any error.
func DecodeRecord(data []byte) (Record, error) {
	var s storedRecord
	if err := json.Unmarshal(data, &s); err != nil {
		return Record{}, fmt.Errorf("calibration: decode record: %w", err)
	}
	r := Record{
		Idle:       orientation.Quaternion{X: s.IdleX, Y: s.IdleY, Z: s.IdleZ, W: s.IdleW},
		Correction: orientation.Quaternion{X: s.CorrectionX, Y: s.CorrectionY, Z: s.CorrectionZ, W: s.CorrectionW},
	}
	if !isUnit(r.Idle) {
		return Record{}, fmt.Errorf("%w: idle quaternion %+v", ErrInvalidRecord, r.Idle)
	}
	if !isUnit(r.Correction) {
		return Record{}, fmt.Errorf("%w: correction quaternion %+v", ErrInvalidRecord, r.Correction)
	}
	return r, nil
}

func isUnit(q orientation.Quaternion) bool {
	return q.IsFinite() && math.Abs(q.Norm()-1) <= unitTolerance
}
