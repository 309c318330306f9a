// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"fmt"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/relabs-tech/head_tracker/internal/config"
	"github.com/relabs-tech/head_tracker/internal/imu"
	"github.com/relabs-tech/head_tracker/internal/motion"
)

// NewOpener returns the opener for the configured SOURCE.
func NewOpener(cfg *config.Config, clk clock.Clock, logger *zap.SugaredLogger) (motion.Opener, error) {
	switch cfg.Source {
	case config.SourceMock:
		return func(context.Context) (imu.Source, error) {
			return motion.NewMockSource(clk), nil
		}, nil

	case config.SourceSerial:
		return func(context.Context) (imu.Source, error) {
			return motion.NewSerialSource(cfg.SerialPort, cfg.SerialBaudRate, clk, logger)
		}, nil

	case config.SourceMQTT:
		return func(context.Context) (imu.Source, error) {
			return motion.NewMQTTSource(cfg.MQTTBroker, cfg.TopicSample, clk, logger)
		}, nil

	case config.SourceIMU:
		opts := motion.IMUOptions{
			SPIDevice:  cfg.IMUSPIDevice,
			CSPin:      cfg.IMUCSPin,
			AccelRange: cfg.IMUAccelRange,
			GyroRange:  cfg.IMUGyroRange,
		}
		return func(context.Context) (imu.Source, error) {
			return motion.NewIMUSource(opts, clk, logger)
		}, nil
	}
	return nil, fmt.Errorf("unknown source %q", cfg.Source)
}

// NewDetector builds a detector for the configured source and timing.
func NewDetector(cfg *config.Config, clk clock.Clock, logger *zap.SugaredLogger) (*motion.Detector, error) {
	open, err := NewOpener(cfg, clk, logger.Named(cfg.Source))
	if err != nil {
		return nil, err
	}
	return motion.NewDetector(open, motion.DetectorConfig{
		Interval:     cfg.SampleIntervalDuration(),
		StaleTimeout: cfg.StaleTimeoutDuration(),
		Retry:        cfg.RetryDuration(),
	}, clk, logger), nil
}
