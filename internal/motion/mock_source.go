// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package motion

import (
	"context"
	"math"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang/geo/r3"

	"github.com/relabs-tech/head_tracker/internal/imu"
	"github.com/relabs-tech/head_tracker/internal/orientation"
)

// down is gravity in world coordinates.
var down = r3.Vector{Z: -1}

type mockSource struct {
	clock clock.Clock
	start time.Time
}

// NewMockSource creates a source that generates smoothly changing head
// motion. It starts level and facing forward.
func NewMockSource(clk clock.Clock) imu.Source {
	return &mockSource{clock: clk, start: clk.Now()}
}

func (m *mockSource) Next(ctx context.Context) (imu.Sample, error) {
	if err := ctx.Err(); err != nil {
		return imu.Sample{}, err
	}
	now := m.clock.Now()
	elapsed := now.Sub(m.start).Seconds()

	q := orientation.FromEuler(
		orientation.DegToRad(40*math.Sin(elapsed*0.3)),
		orientation.DegToRad(15*math.Sin(elapsed*0.7)),
		orientation.DegToRad(20*math.Sin(elapsed)),
	)
	return imu.Sample{
		Quaternion: q,
		Gravity:    q.Conj().Rotate(down),
		Time:       now,
	}, nil
}

func (m *mockSource) Close() error { return nil }
