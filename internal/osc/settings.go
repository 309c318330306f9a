// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package osc

import (
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

// ErrInvalidSettings is returned for a host or port that cannot be used.
var ErrInvalidSettings = errors.New("osc: invalid settings")

// Settings are the user-editable transport settings.
type Settings struct {
	Host    string `yaml:"host" json:"host"`
	Port    int    `yaml:"port" json:"port"`
	Pattern string `yaml:"pattern" json:"pattern"`
}

// DefaultSettings target the IEM SceneRotator on the local machine.
var DefaultSettings = Settings{
	Host:    "localhost",
	Port:    3001,
	Pattern: "/SceneRotator/ypr yaw pitch roll",
}

// Validate checks host and port. The pattern is not checked here: an
// invalid pattern is kept so the user can fix it.
func (s Settings) Validate() error {
	if s.Host == "" {
		return fmt.Errorf("%w: empty host", ErrInvalidSettings)
	}
	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidSettings, s.Port)
	}
	return nil
}

// EncodeSettings serializes s as YAML.
func EncodeSettings(s Settings) ([]byte, error) {
	data, err := yaml.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("osc: encode settings: %w", err)
	}
	return data, nil
}

// DecodeSettings parses a blob written by EncodeSettings.
func DecodeSettings(data []byte) (Settings, error) {
	var s Settings
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Settings{}, fmt.Errorf("osc: decode settings: %w", err)
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}
