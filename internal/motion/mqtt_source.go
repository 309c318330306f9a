// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package motion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/relabs-tech/head_tracker/internal/imu"
)

// ErrConnectionLost is returned by Next once the broker connection dropped.
var ErrConnectionLost = errors.New("mqtt: connection to broker lost")

// latest holds the most recent sample. Each put overwrites the previous
// one; take reports whether anything new arrived since the last take.
type latest struct {
	mu    sync.Mutex
	s     imu.Sample
	fresh bool
}

func (l *latest) put(s imu.Sample) {
	l.mu.Lock()
	l.s = s
	l.fresh = true
	l.mu.Unlock()
}

func (l *latest) take() (imu.Sample, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.fresh {
		return imu.Sample{}, false
	}
	l.fresh = false
	return l.s, true
}

type mqttSource struct {
	client mqtt.Client
	topic  string
	clock  clock.Clock
	logger *zap.SugaredLogger
	latest latest
}

// NewMQTTSource subscribes to topic on broker and delivers samples sent as
// JSON or as "$HTORI" sentences, latest first.
func NewMQTTSource(broker, topic string, clk clock.Clock, logger *zap.SugaredLogger) (imu.Source, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID("head-tracker-source-" + uuid.NewString()).
		SetConnectTimeout(5 * time.Second)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt: connect %s: %w", broker, token.Error())
	}

	s := &mqttSource{client: client, topic: topic, clock: clk, logger: logger}
	token := client.Subscribe(topic, 0, func(_ mqtt.Client, msg mqtt.Message) {
		s.handle(msg.Payload())
	})
	token.Wait()
	if err := token.Error(); err != nil {
		client.Disconnect(250)
		return nil, fmt.Errorf("mqtt: subscribe %s: %w", topic, err)
	}
	logger.Infow("subscribed to samples", "broker", broker, "topic", topic)
	return s, nil
}

// handle accepts a JSON sample or a "$HTORI" sentence.
func (s *mqttSource) handle(payload []byte) {
	var sample imu.Sample
	if trimmed := bytes.TrimSpace(payload); len(trimmed) > 0 && trimmed[0] == '$' {
		parsed, err := ParseSample(string(trimmed))
		if err != nil {
			s.logger.Debugw("sentence parse error", "error", err)
			return
		}
		sample = parsed
	} else if err := json.Unmarshal(payload, &sample); err != nil {
		s.logger.Debugw("sample unmarshal error", "error", err)
		return
	}
	q := sample.Quaternion
	if !q.IsFinite() || q.Norm() == 0 {
		s.logger.Debugw("dropping sample with unusable quaternion", "q", q)
		return
	}
	sample.Quaternion = q.Normalize()
	if sample.Time.IsZero() {
		sample.Time = s.clock.Now()
	}
	s.latest.put(sample)
}

func (s *mqttSource) Next(ctx context.Context) (imu.Sample, error) {
	if err := ctx.Err(); err != nil {
		return imu.Sample{}, err
	}
	if !s.client.IsConnectionOpen() {
		return imu.Sample{}, ErrConnectionLost
	}
	sample, ok := s.latest.take()
	if !ok {
		return imu.Sample{}, imu.ErrNoSample
	}
	return sample, nil
}

func (s *mqttSource) Close() error {
	s.client.Unsubscribe(s.topic).Wait()
	s.client.Disconnect(250)
	return nil
}
