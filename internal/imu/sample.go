package imu

import (
	"context"
	"errors"
	"time"

	"github.com/golang/geo/r3"

	"github.com/relabs-tech/head_tracker/internal/orientation"
)

// ErrNoSample is returned by Source.Next when no new sample arrived since
// the previous call.
var ErrNoSample = errors.New("imu: no new sample")

// Sample is a single motion reading: the attitude quaternion in the device
// frame and the gravity direction in device coordinates (≈ (0, 0, -1) when
// the device lies flat).
type Sample struct {
	Quaternion orientation.Quaternion `json:"q"`
	Gravity    r3.Vector              `json:"gravity"`
	Time       time.Time              `json:"time"`
}

// Source is anything that can provide motion samples over time:
// mock, serial bridge, MQTT or a local IMU.
type Source interface {
	// Next returns the most recent sample. Sources that are fed
	// asynchronously return ErrNoSample when nothing new arrived.
	Next(ctx context.Context) (Sample, error)
	Close() error
}
