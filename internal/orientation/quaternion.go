// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package orientation

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
)

// Quaternion is a rotation stored as (x, y, z, w). Values are immutable;
// every operation returns a new Quaternion.
type Quaternion struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
	W float64 `json:"w"`
}

// Identity returns the quaternion of no rotation.
func Identity() Quaternion {
	return Quaternion{W: 1}
}

// FromNumber converts a gonum quaternion (real part first) to a Quaternion.
func FromNumber(n quat.Number) Quaternion {
	return Quaternion{X: n.Imag, Y: n.Jmag, Z: n.Kmag, W: n.Real}
}

// Number returns q as a gonum quaternion.
func (q Quaternion) Number() quat.Number {
	return quat.Number{Real: q.W, Imag: q.X, Jmag: q.Y, Kmag: q.Z}
}

// Mul returns the Hamilton product q*r. Order matters: q*r applies r first
// when rotating vectors.
func (q Quaternion) Mul(r Quaternion) Quaternion {
	return FromNumber(quat.Mul(q.Number(), r.Number()))
}

// Conj returns the conjugate of q, which is its inverse for unit quaternions.
func (q Quaternion) Conj() Quaternion {
	return FromNumber(quat.Conj(q.Number()))
}

// Norm returns the Euclidean length of q.
func (q Quaternion) Norm() float64 {
	return quat.Abs(q.Number())
}

// Normalize returns q scaled to unit length. A zero quaternion is returned
// unchanged.
func (q Quaternion) Normalize() Quaternion {
	n := q.Norm()
	if n == 0 {
		return q
	}
	return FromNumber(quat.Scale(1/n, q.Number()))
}

// IsNaN reports whether any component of q is NaN.
func (q Quaternion) IsNaN() bool {
	return quat.IsNaN(q.Number())
}

// IsFinite reports whether every component of q is a finite number.
func (q Quaternion) IsFinite() bool {
	for _, v := range [4]float64{q.X, q.Y, q.Z, q.W} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// ApproxEqual compares q and r component-wise within tol.
func (q Quaternion) ApproxEqual(r Quaternion, tol float64) bool {
	return math.Abs(q.X-r.X) <= tol &&
		math.Abs(q.Y-r.Y) <= tol &&
		math.Abs(q.Z-r.Z) <= tol &&
		math.Abs(q.W-r.W) <= tol
}

// Rotate rotates v by q (q * v * q').
func (q Quaternion) Rotate(v r3.Vector) r3.Vector {
	p := Quaternion{X: v.X, Y: v.Y, Z: v.Z}
	out := q.Mul(p).Mul(q.Conj())
	return r3.Vector{X: out.X, Y: out.Y, Z: out.Z}
}

// FromAxisAngle returns the rotation of angle radians about axis. The axis
// does not need to be normalized.
func FromAxisAngle(axis r3.Vector, angle float64) Quaternion {
	axis = axis.Normalize()
	s := math.Sin(angle / 2)
	return Quaternion{X: axis.X * s, Y: axis.Y * s, Z: axis.Z * s, W: math.Cos(angle / 2)}
}

// FromEuler builds the rotation yaw about Z, then pitch about Y, then roll
// about X (aerospace sequence). It is the inverse of ToEuler.
func FromEuler(yaw, pitch, roll float64) Quaternion {
	qz := FromAxisAngle(r3.Vector{Z: 1}, yaw)
	qy := FromAxisAngle(r3.Vector{Y: 1}, pitch)
	qx := FromAxisAngle(r3.Vector{X: 1}, roll)
	return qz.Mul(qy).Mul(qx)
}
