// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package store persists small opaque blobs (calibration, OSC settings)
// under string keys.
package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

var (
	// ErrNotFound is returned by Load when nothing was saved under the key.
	ErrNotFound = errors.New("store: key not found")
	// ErrInvalidKey is returned for keys that are empty or contain path
	// separators.
	ErrInvalidKey = errors.New("store: invalid key")
)

// Store loads and saves blobs by key.
type Store interface {
	Load(key string) ([]byte, error)
	Save(key string, data []byte) error
}

func checkKey(key string) error {
	if key == "" || key == "." || key == ".." || strings.ContainsAny(key, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}

// Dir keeps one file per key inside a directory.
type Dir struct {
	path string
	mu   sync.Mutex
}

// NewDir creates the directory if needed and returns a Dir store rooted there.
func NewDir(path string) (*Dir, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("store: create %s: %w", path, err)
	}
	return &Dir{path: path}, nil
}

// Path returns the directory backing the store.
func (d *Dir) Path() string {
	return d.path
}

// Load reads the blob saved under key.
func (d *Dir) Load(key string) ([]byte, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	data, err := os.ReadFile(filepath.Join(d.path, key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("store: read %q: %w", key, err)
	}
	return data, nil
}

// Save writes the blob through a temporary file and a rename so a crash
// never leaves a half-written blob behind.
func (d *Dir) Save(key string, data []byte) error {
	if err := checkKey(key); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	tmp, err := os.CreateTemp(d.path, "."+key+".*")
	if err != nil {
		return fmt.Errorf("store: save %q: %w", key, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("store: write %q: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("store: close %q: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(d.path, key)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("store: rename %q: %w", key, err)
	}
	return nil
}

// Memory is an in-process Store for tests.
type Memory struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{blobs: make(map[string][]byte)}
}

// Load returns a copy of the blob saved under key.
func (m *Memory) Load(key string) ([]byte, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.blobs[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, key)
	}
	return append([]byte(nil), data...), nil
}

// Save stores a copy of data under key.
func (m *Memory) Save(key string, data []byte) error {
	if err := checkKey(key); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[key] = append([]byte(nil), data...)
	return nil
}
