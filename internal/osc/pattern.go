// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package osc turns corrected head orientations into OSC messages. A
// user-editable pattern such as "/SceneRotator/ypr yaw pitch roll" names
// the address and the ordered values to send.
package osc

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrEmptyPattern is returned for a pattern without an address.
	ErrEmptyPattern = errors.New("osc: empty pattern")
	// ErrInvalidAddress is returned when the address does not start with "/".
	ErrInvalidAddress = errors.New("osc: address must start with /")
)

// Pattern is a parsed "<address> <token> <token> ..." string.
type Pattern struct {
	Address string
	Tokens  []Token
}

// ParsePattern splits s on whitespace and parses every token after the
// address. A pattern with an address and no tokens is valid and sends an
// empty message.
func ParsePattern(s string) (Pattern, error) {
	parts := strings.Fields(s)
	if len(parts) == 0 {
		return Pattern{}, ErrEmptyPattern
	}
	if !strings.HasPrefix(parts[0], "/") {
		return Pattern{}, fmt.Errorf("%w: %q", ErrInvalidAddress, parts[0])
	}

	p := Pattern{Address: parts[0], Tokens: make([]Token, 0, len(parts)-1)}
	for _, part := range parts[1:] {
		tok, err := ParseToken(part)
		if err != nil {
			return Pattern{}, err
		}
		p.Tokens = append(p.Tokens, tok)
	}
	return p, nil
}

// Values evaluates every token against a, in order.
func (p Pattern) Values(a Attitude) []float64 {
	out := make([]float64, len(p.Tokens))
	for i, tok := range p.Tokens {
		out[i] = tok.Eval(a)
	}
	return out
}

func (p Pattern) String() string {
	var b strings.Builder
	b.WriteString(p.Address)
	for _, tok := range p.Tokens {
		b.WriteByte(' ')
		b.WriteString(tok.String())
	}
	return b.String()
}
