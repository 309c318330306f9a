// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package calibration

import (
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/golang/geo/r3"
	"go.uber.org/zap/zaptest"
	"go.viam.com/test"

	"github.com/relabs-tech/head_tracker/internal/imu"
	"github.com/relabs-tech/head_tracker/internal/orientation"
	"github.com/relabs-tech/head_tracker/internal/store"
)

const tol = 1e-9

func newCalibrator(t *testing.T, s store.Store) *Calibrator {
	t.Helper()
	return New(s, zaptest.NewLogger(t).Sugar())
}

func sample(q orientation.Quaternion, g r3.Vector) imu.Sample {
	return imu.Sample{Quaternion: q, Gravity: g}
}

func TestDefaultIsIdentity(t *testing.T) {
	c := newCalibrator(t, store.NewMemory())
	test.That(t, c.Record(), test.ShouldResemble, Default)

	raw := orientation.FromEuler(0.3, -0.2, 0.1)
	got := c.Correct(raw)
	test.That(t, got.ApproxEqual(raw, tol), test.ShouldBeTrue)
}

func TestResetNeutralizesPose(t *testing.T) {
	c := newCalibrator(t, store.NewMemory())
	raw := orientation.FromEuler(1.1, 0.4, -0.7)
	c.Update(sample(raw, r3.Vector{Z: -1}))
	c.ResetOrientation()

	test.That(t, c.Record().Idle.ApproxEqual(raw.Conj(), tol), test.ShouldBeTrue)
	test.That(t, c.Correct(raw).ApproxEqual(orientation.Identity(), tol), test.ShouldBeTrue)

	// a later sample is reported relative to the reset attitude
	turn := orientation.FromAxisAngle(r3.Vector{Z: 1}, 0.5)
	got := c.Process(sample(raw.Mul(turn), r3.Vector{Z: -1}))
	test.That(t, got.ApproxEqual(raw.Conj().Mul(raw).Mul(turn), 1e-9), test.ShouldBeTrue)
}

func TestResetNeutralizesPoseWithCorrection(t *testing.T) {
	c := newCalibrator(t, store.NewMemory())
	c.Update(sample(orientation.Identity(), r3.Vector{X: 0.2, Y: -0.3, Z: -0.93}))
	c.StartCalibration()
	c.Update(sample(orientation.Identity(), r3.Vector{X: 0.1, Y: 0.2, Z: -0.97}))
	test.That(t, c.FinishCalibration(), test.ShouldBeNil)
	corr := c.Record().Correction
	test.That(t, corr.ApproxEqual(orientation.Identity(), 1e-3), test.ShouldBeFalse)

	for _, raw := range []orientation.Quaternion{
		orientation.FromEuler(1.1, 0.4, -0.7),
		orientation.FromEuler(-2.5, -1.2, 3),
		orientation.FromAxisAngle(r3.Vector{X: 1, Y: 1}, 2),
	} {
		c.Update(sample(raw, r3.Vector{Z: -1}))
		c.ResetOrientation()
		test.That(t, c.Record().Correction, test.ShouldResemble, corr)
		test.That(t, c.Correct(raw).ApproxEqual(orientation.Identity(), tol), test.ShouldBeTrue)
	}
}

func TestCalibrationDeterministic(t *testing.T) {
	idle := r3.Vector{X: -0.9, Y: 0.1, Z: 0.3}
	current := r3.Vector{X: -0.8, Y: 0.5, Z: 0.2}
	raw := orientation.FromEuler(0.3, 0.2, -0.1)

	run := func(c *Calibrator) orientation.Quaternion {
		c.Update(sample(raw, idle))
		c.StartCalibration()
		c.Update(sample(raw, current))
		test.That(t, c.FinishCalibration(), test.ShouldBeNil)
		return c.Record().Correction
	}

	c := newCalibrator(t, store.NewMemory())
	first := run(c)
	test.That(t, run(c), test.ShouldResemble, first)
	test.That(t, run(newCalibrator(t, store.NewMemory())), test.ShouldResemble, first)
}

func TestConcurrentGestures(t *testing.T) {
	c := newCalibrator(t, store.NewMemory())
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				g := r3.Vector{X: float64(i) * 0.1, Y: float64(j) * 0.01, Z: -1}
				c.Update(sample(orientation.FromEuler(float64(j)*0.01, 0, 0), g))
				switch j % 3 {
				case 0:
					c.StartCalibration()
				case 1:
					_ = c.FinishCalibration()
				default:
					c.ResetOrientation()
				}
				_ = c.Record()
			}
		}(i)
	}
	wg.Wait()

	rec := c.Record()
	test.That(t, math.Abs(rec.Correction.Norm()-1), test.ShouldBeLessThan, 1e-9)
	test.That(t, math.Abs(rec.Idle.Norm()-1), test.ShouldBeLessThan, 1e-9)
}

func TestCorrectDoesNotMutate(t *testing.T) {
	c := newCalibrator(t, store.NewMemory())
	before := c.Record()
	c.Correct(orientation.FromEuler(0.1, 0.2, 0.3))
	test.That(t, c.Record(), test.ShouldResemble, before)
}

func TestFinishWithoutStart(t *testing.T) {
	s := store.NewMemory()
	c := newCalibrator(t, s)
	err := c.FinishCalibration()
	test.That(t, errors.Is(err, ErrCalibrationNotStarted), test.ShouldBeTrue)

	_, err = s.Load(StoreKey)
	test.That(t, errors.Is(err, store.ErrNotFound), test.ShouldBeTrue)
}

func TestCalibrationUprightNodIsIdentity(t *testing.T) {
	s := store.NewMemory()
	c := newCalibrator(t, s)

	c.Update(sample(orientation.Identity(), r3.Vector{Z: -1}))
	c.StartCalibration()
	c.Update(sample(orientation.Identity(), r3.Vector{Y: 0.1, Z: -0.995}))
	test.That(t, c.FinishCalibration(), test.ShouldBeNil)

	corr := c.Record().Correction
	test.That(t, corr.ApproxEqual(orientation.Identity(), 1e-9), test.ShouldBeTrue)
	test.That(t, corr.W, test.ShouldBeGreaterThanOrEqualTo, 0)

	_, err := s.Load(StoreKey)
	test.That(t, err, test.ShouldBeNil)
}

func TestCalibrationUpsideDownUsesLargestDiagonal(t *testing.T) {
	c := newCalibrator(t, store.NewMemory())

	c.Update(sample(orientation.Identity(), r3.Vector{Z: 1}))
	c.StartCalibration()
	c.Update(sample(orientation.Identity(), r3.Vector{Y: 0.1, Z: 0.995}))
	test.That(t, c.FinishCalibration(), test.ShouldBeNil)

	corr := c.Record().Correction
	test.That(t, corr.IsNaN(), test.ShouldBeFalse)
	test.That(t, corr.ApproxEqual(orientation.Quaternion{Y: 1}, 1e-9), test.ShouldBeTrue)
}

func TestCalibrationDegenerate(t *testing.T) {
	for _, tc := range []struct {
		name          string
		idle, current r3.Vector
	}{
		{"antiparallel", r3.Vector{Z: -1}, r3.Vector{Z: 1}},
		{"parallel", r3.Vector{Z: -1}, r3.Vector{Z: -2}},
		{"zero idle", r3.Vector{}, r3.Vector{Y: 0.1, Z: -0.995}},
		{"zero current", r3.Vector{Z: -1}, r3.Vector{}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			s := store.NewMemory()
			c := newCalibrator(t, s)
			before := c.Record().Correction

			c.Update(sample(orientation.Identity(), tc.idle))
			c.StartCalibration()
			c.Update(sample(orientation.Identity(), tc.current))
			err := c.FinishCalibration()
			test.That(t, errors.Is(err, ErrDegenerateGravity), test.ShouldBeTrue)

			after := c.Record().Correction
			test.That(t, after.IsNaN(), test.ShouldBeFalse)
			test.That(t, after, test.ShouldResemble, before)

			_, err = s.Load(StoreKey)
			test.That(t, errors.Is(err, store.ErrNotFound), test.ShouldBeTrue)
		})
	}
}

func TestCorrectionAxes(t *testing.T) {
	for _, tc := range []struct {
		idle, current r3.Vector
	}{
		{r3.Vector{X: 0.2, Y: -0.3, Z: -0.93}, r3.Vector{X: 0.1, Y: 0.2, Z: -0.97}},
		{r3.Vector{X: -0.9, Y: 0.1, Z: 0.3}, r3.Vector{X: -0.8, Y: 0.5, Z: 0.2}},
		{r3.Vector{X: 0.1, Y: 0.05, Z: 0.99}, r3.Vector{X: -0.2, Y: 0.3, Z: 0.93}},
		{r3.Vector{Y: 9.81}, r3.Vector{X: 1, Y: 9.7}},
	} {
		q, err := correctionFromGravity(tc.idle, tc.current)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, math.Abs(q.Norm()-1), test.ShouldBeLessThan, 1e-9)
		test.That(t, q.W, test.ShouldBeGreaterThanOrEqualTo, 0)

		z := q.Rotate(r3.Vector{Z: 1})
		up := tc.idle.Mul(-1).Normalize()
		test.That(t, z.Sub(up).Norm(), test.ShouldBeLessThan, 1e-9)

		x := q.Rotate(r3.Vector{X: 1})
		test.That(t, math.Abs(x.Dot(tc.idle.Normalize())), test.ShouldBeLessThan, 1e-9)
		test.That(t, math.Abs(x.Dot(tc.current.Normalize())), test.ShouldBeLessThan, 1e-9)
	}
}

func TestCalibrationRestored(t *testing.T) {
	s := store.NewMemory()
	c := newCalibrator(t, s)
	raw := orientation.FromEuler(0.4, 0, 0)
	c.Update(sample(raw, r3.Vector{X: 0.1, Z: -1}))
	c.StartCalibration()
	c.Update(sample(raw, r3.Vector{X: 0.1, Y: 0.2, Z: -0.97}))
	test.That(t, c.FinishCalibration(), test.ShouldBeNil)
	want := c.Record()

	again := newCalibrator(t, s)
	got := again.Record()
	test.That(t, got.Idle.ApproxEqual(want.Idle, 1e-12), test.ShouldBeTrue)
	test.That(t, got.Correction.ApproxEqual(want.Correction, 1e-12), test.ShouldBeTrue)
}

func TestSaveWritesIdle(t *testing.T) {
	s := store.NewMemory()
	c := newCalibrator(t, s)
	raw := orientation.FromEuler(-0.8, 0.1, 0)
	c.Update(sample(raw, r3.Vector{Z: -1}))
	c.ResetOrientation()
	c.Save()

	data, err := s.Load(StoreKey)
	test.That(t, err, test.ShouldBeNil)
	rec, err := DecodeRecord(data)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, rec.Idle.ApproxEqual(raw.Conj(), 1e-12), test.ShouldBeTrue)
}

func TestCorruptRecordFallsBack(t *testing.T) {
	for _, blob := range []string{
		"not json",
		`{"correction_w":2,"correction_x":0,"correction_y":0,"correction_z":0,"idle_w":1,"idle_x":0,"idle_y":0,"idle_z":0}`,
		`{}`,
	} {
		s := store.NewMemory()
		test.That(t, s.Save(StoreKey, []byte(blob)), test.ShouldBeNil)
		c := newCalibrator(t, s)
		test.That(t, c.Record(), test.ShouldResemble, Default)
	}
}

func TestRecordCodec(t *testing.T) {
	rec := Record{
		Idle:       orientation.FromEuler(0.2, 0.1, 0),
		Correction: orientation.FromAxisAngle(r3.Vector{X: 1}, 0.3),
	}
	data, err := EncodeRecord(rec)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(data), test.ShouldContainSubstring, `"correction_w"`)
	test.That(t, string(data), test.ShouldContainSubstring, `"idle_z"`)

	got, err := DecodeRecord(data)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, got, test.ShouldResemble, rec)

	_, err = DecodeRecord([]byte(`{"correction_w":0.5,"idle_w":1}`))
	test.That(t, errors.Is(err, ErrInvalidRecord), test.ShouldBeTrue)
}
