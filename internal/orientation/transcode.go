// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package orientation

import "math"

// TaitBryan holds yaw, pitch and roll in radians. It is an output-only
// representation.
type TaitBryan struct {
	Yaw   float64 `json:"yaw"`
	Pitch float64 `json:"pitch"`
	Roll  float64 `json:"roll"`
}

// Degrees returns the angles converted to degrees.
func (tb TaitBryan) Degrees() TaitBryan {
	return TaitBryan{
		Yaw:   RadToDeg(tb.Yaw),
		Pitch: RadToDeg(tb.Pitch),
		Roll:  RadToDeg(tb.Roll),
	}
}

// ToOutputFrame relabels the axes of a device-frame quaternion into the
// ambisonic convention used on the wire:
//
//	(x, y, z, w) -> (y, -x, z, w)
//
// This is an axis relabeling, not a rotation composition. Swapping or
// dropping the sign here silently flips the sense of yaw and roll.
func ToOutputFrame(q Quaternion) Quaternion {
	return Quaternion{X: q.Y, Y: -q.X, Z: q.Z, W: q.W}
}

// ToEuler extracts Tait-Bryan angles from q:
//
//	yaw   = atan2(2(wz+xy), 1-2(y²+z²))
//	pitch = asin(clamp(2(wy-zx), -1, 1))
//	roll  = atan2(2(wx+yz), 1-2(x²+y²))
//
// q must already be in the output frame (see ToOutputFrame). Pitch saturates
// at ±π/2.
func ToEuler(q Quaternion) TaitBryan {
	x, y, z, w := q.X, q.Y, q.Z, q.W
	return TaitBryan{
		Yaw:   math.Atan2(2*(w*z+x*y), 1-2*(y*y+z*z)),
		Pitch: clampedAsin(2 * (w*y - z*x)),
		Roll:  math.Atan2(2*(w*x+y*z), 1-2*(x*x+y*y)),
	}
}

func clampedAsin(v float64) float64 {
	return math.Asin(math.Max(-1, math.Min(1, v)))
}

// RadToDeg converts radians to degrees.
func RadToDeg(rad float64) float64 {
	return rad * 180 / math.Pi
}

// DegToRad converts degrees to radians.
func DegToRad(deg float64) float64 {
	return deg * math.Pi / 180
}
