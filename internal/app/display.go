// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/devices/v3/ssd1306/image1bit"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/head_tracker/internal/config"
	"github.com/relabs-tech/head_tracker/internal/orientation"
)

const (
	displayWidth  = 128
	displayHeight = 64
)

// addrBus sends every transaction to addr, so the driver reaches panels
// strapped to an address other than its built-in 0x3C.
type addrBus struct {
	i2c.Bus
	addr uint16
}

func (b *addrBus) Tx(_ uint16, w, r []byte) error {
	return b.Bus.Tx(b.addr, w, r)
}

// displayData holds the latest pose and status for the display.
type displayData struct {
	mu       sync.RWMutex
	pose     orientation.Pose
	havePose bool
	status   Status
}

func (d *displayData) snapshot() (orientation.Pose, bool, Status) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.pose, d.havePose, d.status
}

// RunDisplay shows the pose published by a tracker on an SSD1306 OLED
// until ctx is cancelled.
func RunDisplay(ctx context.Context, cfg *config.Config, logger *zap.SugaredLogger) error {
	// Initialize periph
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("failed to initialize periph: %w", err)
	}

	// Open I2C bus
	bus, err := i2creg.Open("")
	if err != nil {
		return fmt.Errorf("failed to open I2C bus: %w", err)
	}
	defer bus.Close()

	dev, err := ssd1306.NewI2C(&addrBus{Bus: bus, addr: cfg.DisplayI2CAddr}, &ssd1306.DefaultOpts)
	if err != nil {
		return fmt.Errorf("failed to initialize display: %w", err)
	}
	defer dev.Halt()
	logger.Infof("display initialized at 0x%02X", cfg.DisplayI2CAddr)

	if err := dev.Draw(dev.Bounds(), renderLines("Head Tracker", "Waiting..."), image.Point{}); err != nil {
		logger.Warnw("error showing splash", "error", err)
	}

	client, err := newMQTTClient(cfg.MQTTBroker, cfg.MQTTClientID+"-display", "", nil)
	if err != nil {
		return err
	}
	defer client.Disconnect(disconnectQuiesce)
	logger.Infow("connected to MQTT broker", "broker", cfg.MQTTBroker)

	data := &displayData{}
	if err := subscribe(client, cfg.TopicPose, func(payload []byte) {
		var p orientation.Pose
		if err := json.Unmarshal(payload, &p); err != nil {
			logger.Debugw("pose unmarshal error", "error", err)
			return
		}
		data.mu.Lock()
		data.pose = p
		data.havePose = true
		data.mu.Unlock()
	}); err != nil {
		return err
	}
	if err := subscribe(client, cfg.TopicStatus, func(payload []byte) {
		var st Status
		if err := json.Unmarshal(payload, &st); err != nil {
			logger.Debugw("status unmarshal error", "error", err)
			return
		}
		data.mu.Lock()
		data.status = st
		data.mu.Unlock()
	}); err != nil {
		return err
	}

	ticker := time.NewTicker(time.Duration(cfg.DisplayUpdateInterval) * time.Millisecond)
	defer ticker.Stop()

	logger.Info("starting update loop")
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		pose, ok, st := data.snapshot()
		if err := dev.Draw(dev.Bounds(), renderPose(pose, ok, st), image.Point{}); err != nil {
			logger.Warnw("error updating display", "error", err)
		}
	}
}

// renderPose draws the pose in degrees with the sensor and OSC state on
// the last line.
func renderPose(pose orientation.Pose, haveData bool, st Status) *image1bit.VerticalLSB {
	if !haveData {
		return renderLines("Orientation", "Waiting...")
	}
	state := "no sensor"
	if st.Connected {
		state = "sensor ok"
	}
	if !st.PatternValid {
		state += " !osc"
	}
	return renderLines(
		fmt.Sprintf("Y: %6.1f", pose.Yaw),
		fmt.Sprintf("P: %6.1f", pose.Pitch),
		fmt.Sprintf("R: %6.1f", pose.Roll),
		state,
	)
}

// renderLines draws up to four lines of 7x13 text.
func renderLines(lines ...string) *image1bit.VerticalLSB {
	img := image1bit.NewVerticalLSB(image.Rect(0, 0, displayWidth, displayHeight))
	drawer := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{image1bit.On},
		Face: basicfont.Face7x13,
	}
	for i, line := range lines {
		drawer.Dot = fixed.P(0, 13*(i+1))
		drawer.DrawString(line)
	}
	return img
}
