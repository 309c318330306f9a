// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/relabs-tech/head_tracker/internal/config"
	"github.com/relabs-tech/head_tracker/internal/orientation"
)

// RunConsoleMQTT prints poses and status published by a tracker until ctx
// is cancelled.
func RunConsoleMQTT(ctx context.Context, cfg *config.Config, logger *zap.SugaredLogger, out io.Writer) error {
	client, err := newMQTTClient(cfg.MQTTBroker, cfg.MQTTClientID+"-console", "", nil)
	if err != nil {
		return err
	}
	defer client.Disconnect(disconnectQuiesce)
	logger.Infow("connected to MQTT broker", "broker", cfg.MQTTBroker)

	var mu sync.Mutex
	printLine := func(line string) {
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintln(out, line)
	}

	// Subscribe to corrected poses
	if err := subscribe(client, cfg.TopicPose, func(payload []byte) {
		var p orientation.Pose
		if err := json.Unmarshal(payload, &p); err != nil {
			logger.Debugw("pose unmarshal error", "error", err)
			return
		}
		printLine(formatPose(p))
	}); err != nil {
		return err
	}
	logger.Infow("subscribed", "topic", cfg.TopicPose)

	// Subscribe to tracker status
	if err := subscribe(client, cfg.TopicStatus, func(payload []byte) {
		var st Status
		if err := json.Unmarshal(payload, &st); err != nil {
			logger.Debugw("status unmarshal error", "error", err)
			return
		}
		printLine(formatStatus(st))
	}); err != nil {
		return err
	}
	logger.Infow("subscribed", "topic", cfg.TopicStatus)

	<-ctx.Done()
	logger.Info("console: shutting down")
	return nil
}

func subscribe(client mqtt.Client, topic string, handle func([]byte)) error {
	token := client.Subscribe(topic, 0, func(_ mqtt.Client, msg mqtt.Message) {
		handle(msg.Payload())
	})
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt: subscribe %s: %w", topic, err)
	}
	return nil
}

func formatPose(p orientation.Pose) string {
	q := p.Quaternion
	return fmt.Sprintf(
		"[POSE]   YAW=%7.2f  PITCH=%7.2f  ROLL=%7.2f  q=(%6.3f %6.3f %6.3f %6.3f)",
		p.Yaw, p.Pitch, p.Roll, q.W, q.X, q.Y, q.Z,
	)
}

func formatStatus(st Status) string {
	conn := "disconnected"
	if st.Connected {
		conn = "connected"
	}
	pattern := "invalid"
	if st.PatternValid {
		pattern = "valid"
	}
	return fmt.Sprintf("[STATUS] sensor %s, OSC pattern %s", conn, pattern)
}
