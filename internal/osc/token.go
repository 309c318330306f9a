// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package osc

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/relabs-tech/head_tracker/internal/orientation"
)

// ErrUnknownToken is returned for a pattern token outside the vocabulary.
var ErrUnknownToken = errors.New("osc: unknown token")

// Kind is one value a pattern can ask for.
type Kind int

const (
	Yaw Kind = iota
	Pitch
	Roll
	YawWrapped
	PitchWrapped
	RollWrapped
	YawRad
	PitchRad
	RollRad
	YawRadWrapped
	PitchRadWrapped
	RollRadWrapped
	QuatW
	QuatX
	QuatY
	QuatZ
)

var kindNames = [...]string{
	Yaw:             "yaw",
	Pitch:           "pitch",
	Roll:            "roll",
	YawWrapped:      "yaw+",
	PitchWrapped:    "pitch+",
	RollWrapped:     "roll+",
	YawRad:          "yawRad",
	PitchRad:        "pitchRad",
	RollRad:         "rollRad",
	YawRadWrapped:   "yawRad+",
	PitchRadWrapped: "pitchRad+",
	RollRadWrapped:  "rollRad+",
	QuatW:           "qw",
	QuatX:           "qx",
	QuatY:           "qy",
	QuatZ:           "qz",
}

var kindsByName = func() map[string]Kind {
	m := make(map[string]Kind, len(kindNames))
	for k, name := range kindNames {
		m[name] = Kind(k)
	}
	return m
}()

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

// Kinds returns every token kind in declaration order.
func Kinds() []Kind {
	out := make([]Kind, len(kindNames))
	for i := range out {
		out[i] = Kind(i)
	}
	return out
}

// Token is a parsed pattern token.
type Token struct {
	Kind   Kind
	Negate bool
}

// ParseToken parses one pattern token such as "yaw", "-pitch+" or "qw".
func ParseToken(s string) (Token, error) {
	name, negate := strings.CutPrefix(s, "-")
	k, ok := kindsByName[name]
	if !ok {
		return Token{}, fmt.Errorf("%w: %q", ErrUnknownToken, s)
	}
	return Token{Kind: k, Negate: negate}, nil
}

func (t Token) String() string {
	if t.Negate {
		return "-" + t.Kind.String()
	}
	return t.Kind.String()
}

// Attitude is what tokens are evaluated against: the output-frame
// quaternion and its Tait-Bryan angles in radians.
type Attitude struct {
	Quaternion orientation.Quaternion
	Angles     orientation.TaitBryan
}

// NewAttitude remaps a corrected device-frame quaternion to the output
// frame and extracts its angles.
func NewAttitude(corrected orientation.Quaternion) Attitude {
	q := orientation.ToOutputFrame(corrected)
	return Attitude{Quaternion: q, Angles: orientation.ToEuler(q)}
}

// Eval returns the value t selects from a. Wrapped kinds fall in
// [0, 360) or [0, 2π); negation is applied last.
func (t Token) Eval(a Attitude) float64 {
	v := t.Kind.eval(a)
	if t.Negate {
		return -v
	}
	return v
}

func (k Kind) eval(a Attitude) float64 {
	ang := a.Angles
	switch k {
	case Yaw:
		return orientation.RadToDeg(ang.Yaw)
	case Pitch:
		return orientation.RadToDeg(ang.Pitch)
	case Roll:
		return orientation.RadToDeg(ang.Roll)
	case YawWrapped:
		return wrap(orientation.RadToDeg(ang.Yaw), 360)
	case PitchWrapped:
		return wrap(orientation.RadToDeg(ang.Pitch), 360)
	case RollWrapped:
		return wrap(orientation.RadToDeg(ang.Roll), 360)
	case YawRad:
		return ang.Yaw
	case PitchRad:
		return ang.Pitch
	case RollRad:
		return ang.Roll
	case YawRadWrapped:
		return wrap(ang.Yaw, 2*math.Pi)
	case PitchRadWrapped:
		return wrap(ang.Pitch, 2*math.Pi)
	case RollRadWrapped:
		return wrap(ang.Roll, 2*math.Pi)
	case QuatW:
		return a.Quaternion.W
	case QuatX:
		return a.Quaternion.X
	case QuatY:
		return a.Quaternion.Y
	case QuatZ:
		return a.Quaternion.Z
	}
	panic(fmt.Sprintf("osc: unhandled token kind %d", int(k)))
}

// wrap maps v into [0, period).
func wrap(v, period float64) float64 {
	r := math.Mod(v, period)
	if r < 0 {
		r += period
	}
	// -1e-17 + 360 rounds to 360
	if r >= period {
		r = 0
	}
	return r
}
