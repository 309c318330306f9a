// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/relabs-tech/head_tracker/internal/orientation"
)

// disconnectQuiesce is how long Disconnect waits for in-flight messages, in
// milliseconds.
const disconnectQuiesce = 250

// newMQTTClient connects to broker with a unique client ID built from
// prefix. A non-empty willTopic gets willPayload retained if the connection
// drops.
func newMQTTClient(broker, prefix, willTopic string, willPayload []byte) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(prefix + "-" + uuid.NewString()).
		SetConnectTimeout(5 * time.Second).
		SetAutoReconnect(true)
	if willTopic != "" {
		opts.SetBinaryWill(willTopic, willPayload, 1, true)
	}

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt: connect %s: %w", broker, token.Error())
	}
	return client, nil
}

// Publisher mirrors corrected poses and tracker status to MQTT.
type Publisher struct {
	client      mqtt.Client
	topicPose   string
	topicStatus string
	logger      *zap.SugaredLogger
}

// NewPublisher connects to broker. The status topic is retained and
// reports disconnected if the tracker goes away uncleanly.
func NewPublisher(broker, clientPrefix, topicPose, topicStatus string, logger *zap.SugaredLogger) (*Publisher, error) {
	will, err := json.Marshal(Status{})
	if err != nil {
		return nil, err
	}
	client, err := newMQTTClient(broker, clientPrefix, topicStatus, will)
	if err != nil {
		return nil, err
	}
	logger.Infow("connected to MQTT broker", "broker", broker)
	return newPublisher(client, topicPose, topicStatus, logger), nil
}

func newPublisher(client mqtt.Client, topicPose, topicStatus string, logger *zap.SugaredLogger) *Publisher {
	return &Publisher{client: client, topicPose: topicPose, topicStatus: topicStatus, logger: logger}
}

// PublishPose publishes pose without waiting for delivery.
func (p *Publisher) PublishPose(pose orientation.Pose) {
	payload, err := json.Marshal(pose)
	if err != nil {
		p.logger.Debugw("json marshal error (pose)", "error", err)
		return
	}
	p.client.Publish(p.topicPose, 0, false, payload)
}

// PublishStatus publishes st as a retained message.
func (p *Publisher) PublishStatus(st Status) {
	payload, err := json.Marshal(st)
	if err != nil {
		p.logger.Debugw("json marshal error (status)", "error", err)
		return
	}
	token := p.client.Publish(p.topicStatus, 1, true, payload)
	go func() {
		if token.WaitTimeout(2*time.Second) && token.Error() != nil {
			p.logger.Warnw("MQTT publish error (status)", "error", token.Error())
		}
	}()
}

// Close marks the tracker disconnected and leaves the broker.
func (p *Publisher) Close() error {
	payload, _ := json.Marshal(Status{})
	token := p.client.Publish(p.topicStatus, 1, true, payload)
	token.WaitTimeout(time.Second)
	p.client.Disconnect(disconnectQuiesce)
	return token.Error()
}
