// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/benbjohnson/clock"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/relabs-tech/head_tracker/internal/config"
	"github.com/relabs-tech/head_tracker/internal/imu"
	"github.com/relabs-tech/head_tracker/internal/motion"
)

// RunSampleProducer reads the local SOURCE and publishes raw samples on
// TOPIC_SAMPLE, for a tracker on another machine running SOURCE=mqtt.
func RunSampleProducer(ctx context.Context, cfg *config.Config, logger *zap.SugaredLogger) error {
	if cfg.Source == config.SourceMQTT {
		return fmt.Errorf("producer: SOURCE=mqtt would republish its own input")
	}

	clk := clock.New()
	det, err := NewDetector(cfg, clk, logger.Named("motion"))
	if err != nil {
		return err
	}

	client, err := newMQTTClient(cfg.MQTTBroker, cfg.MQTTClientID+"-producer", "", nil)
	if err != nil {
		return err
	}
	defer client.Disconnect(disconnectQuiesce)
	logger.Infow("connected to MQTT, starting publish loop",
		"broker", cfg.MQTTBroker, "topic", cfg.TopicSample, "format", cfg.SampleFormat)

	det.OnSample = sampleForwarder(client, cfg.TopicSample, cfg.SampleFormat, logger)
	return det.Run(ctx)
}

// sampleForwarder publishes each sample as JSON or, for FormatNMEA, as a
// "$HTORI" sentence.
func sampleForwarder(client mqtt.Client, topic, format string, logger *zap.SugaredLogger) func(imu.Sample) {
	return func(s imu.Sample) {
		var payload []byte
		if format == config.FormatNMEA {
			payload = []byte(motion.FormatSample(s))
		} else {
			var err error
			if payload, err = json.Marshal(s); err != nil {
				logger.Debugw("json marshal error (sample)", "error", err)
				return
			}
		}
		client.Publish(topic, 0, false, payload)
	}
}
