// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package osc

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"

	gosc "github.com/hypebeast/go-osc/osc"
	"go.uber.org/zap"

	"github.com/relabs-tech/head_tracker/internal/orientation"
	"github.com/relabs-tech/head_tracker/internal/store"
)

// StoreKey is the key the settings are persisted under.
const StoreKey = "osc"

// ErrInvalidPattern is returned by Send while the current pattern does not
// parse. Nothing is sent.
var ErrInvalidPattern = errors.New("osc: pattern invalid")

// Sender sends one OSC message per corrected orientation. Delivery is
// fire-and-forget UDP over a socket that is dialled once per destination.
type Sender struct {
	store  store.Store
	logger *zap.SugaredLogger

	mu       sync.RWMutex
	settings Settings
	pattern  Pattern
	valid    bool
	conn     *net.UDPConn // nil until the next Send dials
}

// NewSender restores the settings persisted in s, falling back to
// DefaultSettings.
func NewSender(s store.Store, logger *zap.SugaredLogger) *Sender {
	snd := &Sender{store: s, logger: logger}
	snd.apply(snd.restore())
	return snd
}

func (s *Sender) restore() Settings {
	data, err := s.store.Load(StoreKey)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.logger.Warnw("cannot load osc settings, using defaults", "error", err)
		}
		return DefaultSettings
	}
	settings, err := DecodeSettings(data)
	if err != nil {
		s.logger.Warnw("stored osc settings unusable, using defaults", "error", err)
		return DefaultSettings
	}
	return settings
}

// apply installs settings without persisting them. It returns the pattern
// parse error, if any.
func (s *Sender) apply(settings Settings) error {
	p, err := ParsePattern(settings.Pattern)

	s.mu.Lock()
	s.settings = settings
	s.closeConnLocked()
	s.pattern = p
	s.valid = err == nil
	s.mu.Unlock()

	if err != nil {
		s.logger.Infow("osc pattern invalid", "pattern", settings.Pattern, "error", err)
	}
	return err
}

// Settings returns the current settings.
func (s *Sender) Settings() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// Valid reports whether the current pattern parses.
func (s *Sender) Valid() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.valid
}

// SetSettings replaces host, port and pattern and persists them. Invalid
// host or port are rejected. An invalid pattern is stored anyway, clears the
// validity flag and is returned as the error.
func (s *Sender) SetSettings(settings Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	err := s.apply(settings)
	s.Save()
	return err
}

// SetHost changes the destination host.
func (s *Sender) SetHost(host string) error {
	settings := s.Settings()
	settings.Host = host
	return s.SetSettings(settings)
}

// SetPort changes the destination port.
func (s *Sender) SetPort(port int) error {
	settings := s.Settings()
	settings.Port = port
	return s.SetSettings(settings)
}

// SetPattern changes the message pattern.
func (s *Sender) SetPattern(pattern string) error {
	settings := s.Settings()
	settings.Pattern = pattern
	return s.SetSettings(settings)
}

// Send evaluates the pattern against a corrected device-frame quaternion
// and sends the result. Transport errors are returned, never retried; the
// next Send dials again.
func (s *Sender) Send(corrected orientation.Quaternion) error {
	s.mu.RLock()
	valid, p := s.valid, s.pattern
	s.mu.RUnlock()

	if !valid {
		return ErrInvalidPattern
	}

	data, err := NewMessage(p, NewAttitude(corrected)).MarshalBinary()
	if err != nil {
		return fmt.Errorf("osc: encode %s: %w", p.Address, err)
	}
	conn, err := s.dial()
	if err != nil {
		return err
	}
	if _, err := conn.Write(data); err != nil {
		s.mu.Lock()
		if s.conn == conn {
			s.closeConnLocked()
		}
		s.mu.Unlock()
		return fmt.Errorf("osc: send %s: %w", p.Address, err)
	}
	return nil
}

// dial returns the socket for the current destination, resolving the host
// only when there is none.
func (s *Sender) dial() (*net.UDPConn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		return s.conn, nil
	}
	addr := net.JoinHostPort(s.settings.Host, strconv.Itoa(s.settings.Port))
	raddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("osc: resolve %s: %w", addr, err)
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, fmt.Errorf("osc: dial %s: %w", addr, err)
	}
	s.conn = conn
	return conn, nil
}

func (s *Sender) closeConnLocked() {
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
}

// Close releases the socket. A later Send dials again.
func (s *Sender) Close() error {
	s.mu.Lock()
	s.closeConnLocked()
	s.mu.Unlock()
	return nil
}

// NewMessage builds the OSC message for p evaluated at a. Values are sent
// as 32-bit floats.
func NewMessage(p Pattern, a Attitude) *gosc.Message {
	msg := gosc.NewMessage(p.Address)
	for _, v := range p.Values(a) {
		msg.Append(float32(v))
	}
	return msg
}

// Save persists the current settings. Failures are logged, not returned.
func (s *Sender) Save() {
	data, err := EncodeSettings(s.Settings())
	if err != nil {
		s.logger.Warnw("cannot encode osc settings", "error", err)
		return
	}
	if err := s.store.Save(StoreKey, data); err != nil {
		s.logger.Warnw("cannot save osc settings", "error", err)
	}
}
