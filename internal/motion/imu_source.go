// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package motion

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang/geo/r3"
	"go.uber.org/zap"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/devices/v3/mpu9250"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/head_tracker/internal/imu"
)

// IMUOptions select the MPU9250 wiring and ranges. Ranges are register
// indices: accel 0..3 = ±2/4/8/16 g, gyro 0..3 = ±250/500/1000/2000 °/s.
type IMUOptions struct {
	SPIDevice  string
	CSPin      string
	AccelRange byte
	GyroRange  byte
}

type imuSource struct {
	dev    *mpu9250.MPU9250
	filter *Mahony
	clock  clock.Clock
	last   time.Time

	accelLSB float64 // counts per g
	gyroLSB  float64 // counts per °/s
}

// NewIMUSource initializes an MPU9250 over SPI and fuses gyro and
// accelerometer into an attitude with a Mahony filter.
func NewIMUSource(opts IMUOptions, clk clock.Clock, logger *zap.SugaredLogger) (imu.Source, error) {
	if opts.AccelRange > 3 || opts.GyroRange > 3 {
		return nil, fmt.Errorf("imu: range index out of bounds (accel=%d gyro=%d)", opts.AccelRange, opts.GyroRange)
	}
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("imu: periph host init: %w", err)
	}

	cs := gpioreg.ByName(opts.CSPin)
	if cs == nil {
		return nil, fmt.Errorf("imu: CS pin %q not found", opts.CSPin)
	}

	tr, err := mpu9250.NewSpiTransport(opts.SPIDevice, cs)
	if err != nil {
		return nil, fmt.Errorf("imu: SPI transport (%s): %w", opts.SPIDevice, err)
	}

	dev, err := mpu9250.New(*tr)
	if err != nil {
		return nil, fmt.Errorf("imu: device creation: %w", err)
	}
	if err := dev.Init(); err != nil {
		return nil, fmt.Errorf("imu: initialization: %w", err)
	}
	if err := dev.SetAccelRange(opts.AccelRange); err != nil {
		return nil, fmt.Errorf("imu: set accel range: %w", err)
	}
	if err := dev.SetGyroRange(opts.GyroRange); err != nil {
		return nil, fmt.Errorf("imu: set gyro range: %w", err)
	}
	logger.Infow("imu ranges set",
		"accel_g", []int{2, 4, 8, 16}[opts.AccelRange],
		"gyro_dps", []int{250, 500, 1000, 2000}[opts.GyroRange])

	if res, err := dev.SelfTest(); err != nil {
		logger.Warnw("imu self-test failed", "error", err)
	} else {
		logger.Debugw("imu self-test passed",
			"accel_dev", res.AccelDeviation, "gyro_dev", res.GyroDeviation)
	}
	if err := dev.Calibrate(); err != nil {
		logger.Warnw("imu calibration failed", "error", err)
	}

	return &imuSource{
		dev:      dev,
		filter:   NewMahony(),
		clock:    clk,
		accelLSB: 16384 / float64(int(1)<<opts.AccelRange),
		gyroLSB:  131 / float64(int(1)<<opts.GyroRange),
	}, nil
}

func (s *imuSource) Next(ctx context.Context) (imu.Sample, error) {
	if err := ctx.Err(); err != nil {
		return imu.Sample{}, err
	}
	accel, gyro, err := s.read()
	if err != nil {
		return imu.Sample{}, err
	}

	now := s.clock.Now()
	dt := 0.0
	if !s.last.IsZero() {
		dt = now.Sub(s.last).Seconds()
	}
	s.last = now

	s.filter.Update(gyro, accel, dt)
	return imu.Sample{
		Quaternion: s.filter.Quaternion(),
		Gravity:    s.filter.Gravity(),
		Time:       now,
	}, nil
}

// read returns acceleration in g and rotation rate in rad/s.
func (s *imuSource) read() (accel, gyro r3.Vector, err error) {
	var raw [6]int16
	reads := [6]func() (int16, error){
		s.dev.GetAccelerationX, s.dev.GetAccelerationY, s.dev.GetAccelerationZ,
		s.dev.GetRotationX, s.dev.GetRotationY, s.dev.GetRotationZ,
	}
	for i, read := range reads {
		if raw[i], err = read(); err != nil {
			return r3.Vector{}, r3.Vector{}, fmt.Errorf("imu: read axis %d: %w", i, err)
		}
	}

	accel = r3.Vector{X: float64(raw[0]), Y: float64(raw[1]), Z: float64(raw[2])}.Mul(1 / s.accelLSB)
	rad := math.Pi / 180 / s.gyroLSB
	gyro = r3.Vector{X: float64(raw[3]), Y: float64(raw[4]), Z: float64(raw[5])}.Mul(rad)
	return accel, gyro, nil
}

func (s *imuSource) Close() error { return nil }
