package config

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Sample sources selectable with SOURCE.
const (
	SourceMock   = "mock"
	SourceSerial = "serial"
	SourceMQTT   = "mqtt"
	SourceIMU    = "imu"
)

// Sample payload formats selectable with SAMPLE_FORMAT.
const (
	FormatJSON = "json"
	FormatNMEA = "nmea" // "$HTORI" sentences, as sent by serial bridges
)

// Config holds all application configuration values.
type Config struct {
	// Motion source
	Source         string // mock, serial, mqtt or imu
	SampleInterval int    // milliseconds between reads
	StaleTimeout   int    // milliseconds without samples before disconnecting
	RetryInterval  int    // milliseconds between open attempts
	SerialPort     string
	SerialBaudRate uint

	// IMU Hardware
	IMUSPIDevice  string
	IMUCSPin      string
	IMUAccelRange byte // 0=±2g, 1=±4g, 2=±8g, 3=±16g
	IMUGyroRange  byte // 0=±250°/s, 1=±500°/s, 2=±1000°/s, 3=±2000°/s

	// MQTT
	MQTTBroker   string
	MQTTClientID string // prefix, a unique suffix is appended
	MQTTPublish  bool   // publish corrected poses while tracking

	// Topics
	TopicSample  string
	TopicPose    string
	TopicStatus  string
	SampleFormat string // json or nmea, payload written by the producer

	// Web Server
	WebServerPort int
	WebStaticDir  string
	WebMirror     bool // mirror the head model, as if looking into a mirror

	// Persistence
	StateDir string

	// Display
	DisplayI2CAddr        uint16
	DisplayUpdateInterval int // milliseconds

	// Logging
	LogLevel string
}

// Default returns the configuration used when no file is given. Every key
// in a file overrides the matching default.
func Default() *Config {
	return &Config{
		Source:         SourceMock,
		SampleInterval: 10,
		StaleTimeout:   1000,
		RetryInterval:  1000,
		SerialPort:     "/dev/ttyUSB0",
		SerialBaudRate: 115200,
		IMUSPIDevice:   "/dev/spidev0.0",
		IMUCSPin:       "8",

		MQTTBroker:   "tcp://localhost:1883",
		MQTTClientID: "head-tracker",

		TopicSample: "headtracker/sample",
		TopicPose:   "headtracker/pose",
		TopicStatus: "headtracker/status",

		SampleFormat: FormatJSON,

		WebServerPort: 8080,
		WebStaticDir:  "./web",

		StateDir: defaultStateDir(),

		DisplayI2CAddr:        0x3C,
		DisplayUpdateInterval: 200,

		LogLevel: "info",
	}
}

func defaultStateDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "head_tracker")
	}
	return ".head_tracker"
}

// Package-level unexported variables for singleton pattern:
//   - globalConfig: only InitGlobal writes it, Get reads it.
//   - configOnce: ensures InitGlobal() only runs once, even if called multiple times.
//   - configMu: write lock for initialization, read lock for Get().
var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// Load reads the configuration file and returns a Config struct. An empty
// path returns Default(). LOG_LEVEL in the environment wins over the file.
func Load(configPath string) (*Config, error) {
	cfg := Default()
	if configPath != "" {
		if err := cfg.loadFile(configPath); err != nil {
			return nil, err
		}
	}
	if lvl := os.Getenv("LOG_LEVEL"); lvl != "" {
		cfg.LogLevel = lvl
	}

	// Validate required fields
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(configPath string) error {
	file, err := os.Open(configPath)
	if err != nil {
		return fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse KEY=VALUE
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return fmt.Errorf("invalid config line %d: %q", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if err := c.setValue(key, value); err != nil {
			return fmt.Errorf("config line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}
	return nil
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	switch key {
	// Motion source
	case "SOURCE":
		c.Source = strings.ToLower(value)
	case "SAMPLE_INTERVAL_MS":
		interval, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid SAMPLE_INTERVAL_MS %q: %w", value, err)
		}
		c.SampleInterval = interval
	case "STALE_TIMEOUT_MS":
		timeout, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid STALE_TIMEOUT_MS %q: %w", value, err)
		}
		c.StaleTimeout = timeout
	case "RETRY_MS":
		interval, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid RETRY_MS %q: %w", value, err)
		}
		c.RetryInterval = interval
	case "SAMPLE_FORMAT":
		c.SampleFormat = strings.ToLower(value)
	case "SERIAL_PORT":
		c.SerialPort = value
	case "SERIAL_BAUD":
		rate, err := strconv.ParseUint(value, 10, 32)
		if err != nil {
			return fmt.Errorf("invalid SERIAL_BAUD %q: %w", value, err)
		}
		c.SerialBaudRate = uint(rate)

	// IMU Hardware
	case "IMU_SPI_DEVICE":
		c.IMUSPIDevice = value
	case "IMU_CS_PIN":
		c.IMUCSPin = value
	case "IMU_ACCEL_RANGE":
		rangeVal, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid IMU_ACCEL_RANGE %q: %w", value, err)
		}
		if rangeVal < 0 || rangeVal > 3 {
			return fmt.Errorf("IMU_ACCEL_RANGE must be 0-3 (0=±2g, 1=±4g, 2=±8g, 3=±16g), got %d", rangeVal)
		}
		c.IMUAccelRange = byte(rangeVal)
	case "IMU_GYRO_RANGE":
		rangeVal, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid IMU_GYRO_RANGE %q: %w", value, err)
		}
		if rangeVal < 0 || rangeVal > 3 {
			return fmt.Errorf("IMU_GYRO_RANGE must be 0-3 (0=±250°/s, 1=±500°/s, 2=±1000°/s, 3=±2000°/s), got %d", rangeVal)
		}
		c.IMUGyroRange = byte(rangeVal)

	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID":
		c.MQTTClientID = value
	case "MQTT_PUBLISH":
		publish, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid MQTT_PUBLISH %q: %w", value, err)
		}
		c.MQTTPublish = publish

	// Topics
	case "TOPIC_SAMPLE":
		c.TopicSample = value
	case "TOPIC_POSE":
		c.TopicPose = value
	case "TOPIC_STATUS":
		c.TopicStatus = value

	// Web Server
	case "WEB_SERVER_PORT":
		port, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid WEB_SERVER_PORT %q: %w", value, err)
		}
		c.WebServerPort = port
	case "WEB_STATIC_DIR":
		c.WebStaticDir = value
	case "WEB_MIRROR":
		mirror, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid WEB_MIRROR %q: %w", value, err)
		}
		c.WebMirror = mirror

	// Persistence
	case "STATE_DIR":
		c.StateDir = value

	// Display
	case "DISPLAY_I2C_ADDR":
		addr, err := strconv.ParseUint(value, 0, 16)
		if err != nil {
			return fmt.Errorf("invalid DISPLAY_I2C_ADDR %q: %w", value, err)
		}
		c.DisplayI2CAddr = uint16(addr)
	case "DISPLAY_UPDATE_INTERVAL":
		interval, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid DISPLAY_UPDATE_INTERVAL %q: %w", value, err)
		}
		c.DisplayUpdateInterval = interval

	// Logging
	case "LOG_LEVEL":
		c.LogLevel = value

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	return nil
}

// validate checks that all required fields are set.
func (c *Config) validate() error {
	switch c.Source {
	case SourceMock:
	case SourceSerial:
		if c.SerialPort == "" {
			return fmt.Errorf("SERIAL_PORT is required for SOURCE=serial")
		}
		if c.SerialBaudRate == 0 {
			return fmt.Errorf("SERIAL_BAUD is required for SOURCE=serial")
		}
	case SourceMQTT:
		if c.TopicSample == "" {
			return fmt.Errorf("TOPIC_SAMPLE is required for SOURCE=mqtt")
		}
	case SourceIMU:
		if c.IMUSPIDevice == "" {
			return fmt.Errorf("IMU_SPI_DEVICE is required for SOURCE=imu")
		}
	default:
		return fmt.Errorf("SOURCE must be one of mock, serial, mqtt, imu, got %q", c.Source)
	}
	if c.SampleFormat != FormatJSON && c.SampleFormat != FormatNMEA {
		return fmt.Errorf("SAMPLE_FORMAT must be json or nmea, got %q", c.SampleFormat)
	}
	if (c.Source == SourceMQTT || c.MQTTPublish) && c.MQTTBroker == "" {
		return fmt.Errorf("MQTT_BROKER is required")
	}
	if c.SampleInterval <= 0 {
		return fmt.Errorf("SAMPLE_INTERVAL_MS must be positive")
	}
	if c.StaleTimeout <= 0 {
		return fmt.Errorf("STALE_TIMEOUT_MS must be positive")
	}
	if c.RetryInterval <= 0 {
		return fmt.Errorf("RETRY_MS must be positive")
	}
	if c.WebServerPort < 0 || c.WebServerPort > 65535 {
		return fmt.Errorf("WEB_SERVER_PORT must be 0-65535, got %d", c.WebServerPort)
	}
	if c.StateDir == "" {
		return fmt.Errorf("STATE_DIR is required")
	}
	return nil
}

// SampleIntervalDuration returns SampleInterval as a time.Duration.
func (c *Config) SampleIntervalDuration() time.Duration {
	return time.Duration(c.SampleInterval) * time.Millisecond
}

// StaleTimeoutDuration returns StaleTimeout as a time.Duration.
func (c *Config) StaleTimeoutDuration() time.Duration {
	return time.Duration(c.StaleTimeout) * time.Millisecond
}

// RetryDuration returns RetryInterval as a time.Duration.
func (c *Config) RetryDuration() time.Duration {
	return time.Duration(c.RetryInterval) * time.Millisecond
}

// InitGlobal initializes the global configuration from file.
// Uses sync.Once to ensure this only runs once, even if called multiple times.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, err = Load(configPath)
	})
	return err
}

// Get returns the global configuration instance.
// InitGlobal must be called first, or this will return nil.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
