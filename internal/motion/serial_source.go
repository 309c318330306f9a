// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package motion

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/jacobsa/go-serial/serial"
	"go.uber.org/zap"

	"github.com/relabs-tech/head_tracker/internal/imu"
)

var errSourceClosed = errors.New("serial: source closed")

type streamSource struct {
	rc     io.ReadCloser
	clock  clock.Clock
	logger *zap.SugaredLogger
	latest latest

	mu      sync.Mutex
	readErr error
	closed  bool
}

// NewSerialSource opens a serial device that streams "$HTORI" sentences.
func NewSerialSource(port string, baud uint, clk clock.Clock, logger *zap.SugaredLogger) (imu.Source, error) {
	options := serial.OpenOptions{
		PortName:        port,
		BaudRate:        baud,
		DataBits:        8,
		StopBits:        1,
		MinimumReadSize: 1,
		ParityMode:      serial.PARITY_NONE,
	}
	rc, err := serial.Open(options)
	if err != nil {
		return nil, fmt.Errorf("serial: open %s: %w", port, err)
	}
	logger.Infow("serial port opened", "port", port, "baud", baud)
	return NewStreamSource(rc, clk, logger), nil
}

// NewStreamSource reads "$HTORI" sentences from rc in the background. Only
// the most recent valid sentence is kept.
func NewStreamSource(rc io.ReadCloser, clk clock.Clock, logger *zap.SugaredLogger) imu.Source {
	s := &streamSource{rc: rc, clock: clk, logger: logger}
	go s.readLoop()
	return s
}

// readLoop parses lines until the stream fails or is closed. Malformed
// lines are logged and skipped.
func (s *streamSource) readLoop() {
	r := bufio.NewReader(s.rc)
	for {
		line, err := r.ReadString('\n')
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			sample, perr := ParseSample(trimmed)
			if perr == nil {
				sample.Time = s.clock.Now()
				s.latest.put(sample)
			} else {
				s.logger.Debugw("skipping line", "line", trimmed, "error", perr)
			}
		}
		if err != nil {
			s.mu.Lock()
			s.readErr = err
			s.mu.Unlock()
			return
		}
	}
}

// Next returns the newest sentence since the previous call, or
// imu.ErrNoSample. Once the stream failed and nothing is pending it
// returns the read error.
func (s *streamSource) Next(ctx context.Context) (imu.Sample, error) {
	if err := ctx.Err(); err != nil {
		return imu.Sample{}, err
	}
	if sample, ok := s.latest.take(); ok {
		return sample, nil
	}
	s.mu.Lock()
	err, closed := s.readErr, s.closed
	s.mu.Unlock()
	switch {
	case closed:
		return imu.Sample{}, errSourceClosed
	case err != nil:
		return imu.Sample{}, fmt.Errorf("serial: read: %w", err)
	}
	return imu.Sample{}, imu.ErrNoSample
}

// Close closes the stream, which ends the background reader.
func (s *streamSource) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return s.rc.Close()
}
