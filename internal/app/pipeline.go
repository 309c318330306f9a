// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/relabs-tech/head_tracker/internal/calibration"
	"github.com/relabs-tech/head_tracker/internal/imu"
	"github.com/relabs-tech/head_tracker/internal/orientation"
	"github.com/relabs-tech/head_tracker/internal/osc"
)

// sendErrorInterval limits how often OSC transport errors are logged.
const sendErrorInterval = time.Second

// Status is the tracker state shown next to the pose.
type Status struct {
	Connected    bool `json:"connected"`
	PatternValid bool `json:"pattern_valid"`
}

// PoseSink receives corrected poses and status changes. Implementations
// must not block.
type PoseSink interface {
	PublishPose(orientation.Pose)
	PublishStatus(Status)
}

// Pipeline is the per-sample path: calibrate, send over OSC, fan out to
// viewers.
type Pipeline struct {
	calibrator *calibration.Calibrator
	sender     *osc.Sender
	clock      clock.Clock
	logger     *zap.SugaredLogger

	mu         sync.RWMutex
	sinks      []PoseSink
	pose       orientation.Pose
	havePose   bool
	connected  bool
	lastErrLog time.Time
	suppressed int
}

// NewPipeline wires a calibrator and a sender.
func NewPipeline(cal *calibration.Calibrator, snd *osc.Sender, clk clock.Clock, logger *zap.SugaredLogger) *Pipeline {
	return &Pipeline{calibrator: cal, sender: snd, clock: clk, logger: logger}
}

// AddSink registers s for every following pose and status.
func (p *Pipeline) AddSink(s PoseSink) {
	p.mu.Lock()
	p.sinks = append(p.sinks, s)
	p.mu.Unlock()
}

func (p *Pipeline) sinksSnapshot() []PoseSink {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]PoseSink(nil), p.sinks...)
}

// HandleSample processes one raw sample.
func (p *Pipeline) HandleSample(s imu.Sample) {
	corrected := p.calibrator.Process(s)

	if err := p.sender.Send(corrected); err != nil && !errors.Is(err, osc.ErrInvalidPattern) {
		p.logSendError(err)
	}

	pose := orientation.NewPose(corrected)
	p.mu.Lock()
	p.pose = pose
	p.havePose = true
	p.mu.Unlock()

	for _, sink := range p.sinksSnapshot() {
		sink.PublishPose(pose)
	}
}

// logSendError logs at most one transport error per sendErrorInterval.
func (p *Pipeline) logSendError(err error) {
	now := p.clock.Now()
	p.mu.Lock()
	if !p.lastErrLog.IsZero() && now.Sub(p.lastErrLog) < sendErrorInterval {
		p.suppressed++
		p.mu.Unlock()
		return
	}
	suppressed := p.suppressed
	p.suppressed = 0
	p.lastErrLog = now
	p.mu.Unlock()

	p.logger.Warnw("osc send failed", "error", err, "suppressed", suppressed)
}

// HandleConnection records a sensor connection change and notifies sinks.
func (p *Pipeline) HandleConnection(connected bool) {
	p.mu.Lock()
	p.connected = connected
	p.mu.Unlock()
	p.PublishStatus()
}

// Status returns the current status.
func (p *Pipeline) Status() Status {
	p.mu.RLock()
	connected := p.connected
	p.mu.RUnlock()
	return Status{Connected: connected, PatternValid: p.sender.Valid()}
}

// PublishStatus sends the current status to every sink.
func (p *Pipeline) PublishStatus() {
	st := p.Status()
	for _, sink := range p.sinksSnapshot() {
		sink.PublishStatus(st)
	}
}

// Latest returns the most recent pose, if any sample was processed.
func (p *Pipeline) Latest() (orientation.Pose, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.pose, p.havePose
}
