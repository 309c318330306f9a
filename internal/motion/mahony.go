// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package motion

import (
	"github.com/golang/geo/r3"

	"github.com/relabs-tech/head_tracker/internal/orientation"
)

// Mahony is a 6DOF (gyro + accelerometer) complementary filter. Without a
// magnetometer yaw drifts slowly, which a reset compensates.
type Mahony struct {
	Kp, Ki float64

	q        orientation.Quaternion
	integral r3.Vector
}

// NewMahony returns a filter at the identity attitude with the usual gains.
func NewMahony() *Mahony {
	return &Mahony{Kp: 2, Ki: 0.01, q: orientation.Identity()}
}

// Update integrates one sample. gyro is in rad/s, accel in any unit, dt in
// seconds. A zero accelerometer reading skips the feedback step.
func (m *Mahony) Update(gyro, accel r3.Vector, dt float64) {
	if n := accel.Norm(); n > 0 {
		a := accel.Mul(1 / n)
		// estimated "up" in the body frame
		v := m.q.Conj().Rotate(r3.Vector{Z: 1})
		e := a.Cross(v)

		if m.Ki > 0 {
			m.integral = m.integral.Add(e.Mul(m.Ki * dt))
			gyro = gyro.Add(m.integral)
		}
		gyro = gyro.Add(e.Mul(m.Kp))
	}

	rate := orientation.Quaternion{X: gyro.X, Y: gyro.Y, Z: gyro.Z}
	dq := m.q.Mul(rate)
	h := 0.5 * dt
	m.q = orientation.Quaternion{
		X: m.q.X + dq.X*h,
		Y: m.q.Y + dq.Y*h,
		Z: m.q.Z + dq.Z*h,
		W: m.q.W + dq.W*h,
	}.Normalize()
}

// Quaternion returns the current attitude.
func (m *Mahony) Quaternion() orientation.Quaternion {
	return m.q
}

// Gravity returns the estimated gravity direction in body coordinates.
func (m *Mahony) Gravity() r3.Vector {
	return m.q.Conj().Rotate(down)
}
