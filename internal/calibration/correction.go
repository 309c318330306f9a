// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package calibration

import (
	"errors"
	"fmt"
	"math"

	"github.com/golang/geo/r3"

	"github.com/relabs-tech/head_tracker/internal/orientation"
)

// ErrDegenerateGravity is returned when the two gravity samples are
// (anti)parallel or zero, so they do not define a nod axis.
var ErrDegenerateGravity = errors.New("calibration: gravity samples do not define a rotation axis")

// minAxisSine is the smallest sine of the angle between the two gravity
// samples that still yields a usable nod axis (about 0.06°).
const minAxisSine = 1e-3

// correctionFromGravity builds the correction rotation from the gravity
// captured at gesture start (idle) and the gravity at gesture end
// (current). The rotation maps the unit Z axis onto the idle "up"
// direction and the unit X axis onto the nod axis:
//
//	z = normalize(-idle)
//	x = normalize(current × -idle)
//	y = z × x
func correctionFromGravity(idle, current r3.Vector) (orientation.Quaternion, error) {
	up := idle.Mul(-1)
	axis := current.Cross(up)

	norms := up.Norm() * current.Norm()
	if norms == 0 || math.IsNaN(norms) || axis.Norm()/norms < minAxisSine {
		return orientation.Quaternion{}, fmt.Errorf("%w: idle=%v current=%v", ErrDegenerateGravity, idle, current)
	}

	z := up.Normalize()
	x := axis.Normalize()
	y := z.Cross(x)
	return quaternionFromBasis(x, y, z), nil
}

// quaternionFromBasis returns the rotation whose matrix has columns x, y, z.
// With a positive trace the closed form
//
//	w = ½·√(1 + x.x + y.y + z.z),  f = 1/(4w)
//	q = (f(y.z − z.y), f(z.x − x.z), f(x.y − y.x), w)
//
// is used. Otherwise w is too close to zero for that division, so the
// component belonging to the largest diagonal element is solved for first.
// The result always has w ≥ 0.
func quaternionFromBasis(x, y, z r3.Vector) orientation.Quaternion {
	m00, m11, m22 := x.X, y.Y, z.Z
	trace := m00 + m11 + m22

	var q orientation.Quaternion
	switch {
	case trace > 0:
		w := 0.5 * math.Sqrt(1+trace)
		f := 1 / (4 * w)
		q = orientation.Quaternion{
			X: f * (y.Z - z.Y),
			Y: f * (z.X - x.Z),
			Z: f * (x.Y - y.X),
			W: w,
		}
	case m00 >= m11 && m00 >= m22:
		s := 2 * math.Sqrt(1+m00-m11-m22)
		q = orientation.Quaternion{
			X: s / 4,
			Y: (y.X + x.Y) / s,
			Z: (z.X + x.Z) / s,
			W: (y.Z - z.Y) / s,
		}
	case m11 >= m22:
		s := 2 * math.Sqrt(1+m11-m00-m22)
		q = orientation.Quaternion{
			X: (y.X + x.Y) / s,
			Y: s / 4,
			Z: (z.Y + y.Z) / s,
			W: (z.X - x.Z) / s,
		}
	default:
		s := 2 * math.Sqrt(1+m22-m00-m11)
		q = orientation.Quaternion{
			X: (z.X + x.Z) / s,
			Y: (z.Y + y.Z) / s,
			Z: s / 4,
			W: (x.Y - y.X) / s,
		}
	}

	if q.W < 0 {
		q = orientation.Quaternion{X: -q.X, Y: -q.Y, Z: -q.Z, W: -q.W}
	}
	return q.Normalize()
}
