// Package config provides configuration loading for go-gaze commands.
// Values come from defaults, an optional YAML file, then environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/teslashibe/go-gaze/pkg/tracking"
)

// Default ports and cadences.
const (
	DefaultRegistrationPort = 12344
	DefaultUpstreamPort     = 12345
	DefaultWSPort           = 8765
	DefaultInterval         = 10 * time.Millisecond
	DefaultReadTimeout      = time.Second
	DefaultStaleness        = 100 * time.Millisecond
	DefaultHistoryCapacity  = 1000
	DefaultQueueSize        = 256
	DefaultNATSSubject      = "gaze.frames"
)

// Relay broadcast modes.
const (
	ModeTicker = "ticker" // Broadcast the latest frame on a fixed cadence
	ModeEvent  = "event"  // Broadcast as soon as a frame is produced
)

// Staleness clocks.
const (
	ClockSensor = "sensor" // Staleness is measured in the sensor's own time base (default)
	ClockWall   = "wall"   // Sample timestamps are Unix seconds
)

// ErrInvalid is wrapped by all validation failures.
var ErrInvalid = errors.New("config: invalid")

// Config is the complete service configuration
type Config struct {
	LogLevel string         `yaml:"log_level"`
	Tracking TrackingConfig `yaml:"tracking"`
	History  HistoryConfig  `yaml:"history"`
	Relay    RelayConfig    `yaml:"relay"`
	Bridge   BridgeConfig   `yaml:"bridge"`
	Source   SourceConfig   `yaml:"source"`
	NATS     NATSConfig     `yaml:"nats"`
}

// TrackingConfig holds filter and fixation parameters
type TrackingConfig struct {
	MinCutoff         float64 `yaml:"min_cutoff"`
	Beta              float64 `yaml:"beta"`
	DCutoff           float64 `yaml:"d_cutoff"`
	FixationThreshold float64 `yaml:"fixation_threshold"`
}

// HistoryConfig sizes the frame history
type HistoryConfig struct {
	Capacity  int           `yaml:"capacity"`
	Staleness time.Duration `yaml:"staleness"`
}

// RelayConfig controls registration and UDP broadcast
type RelayConfig struct {
	Bind             string        `yaml:"bind"`
	RegistrationPort int           `yaml:"registration_port"`
	Interval         time.Duration `yaml:"interval"`
	Mode             string        `yaml:"mode"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	ClientTTL        time.Duration `yaml:"client_ttl"` // 0 keeps clients until restart
	Clock            string        `yaml:"clock"`
}

// BridgeConfig controls the upstream listener and websocket subscribers
type BridgeConfig struct {
	Bind          string `yaml:"bind"`
	UpstreamPort  int    `yaml:"upstream_port"`
	WSPort        int    `yaml:"ws_port"`
	PublishFrames bool   `yaml:"publish_frames"` // Also push relay frames to websocket subscribers
	QueueSize     int    `yaml:"queue_size"`
}

// SourceConfig controls the UDP CSV sample source used by serve
type SourceConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Bind          string `yaml:"bind"`
	Port          int    `yaml:"port"`
	TrackerName   string `yaml:"tracker_name"`
	TrackerSerial string `yaml:"tracker_serial"`
}

// NATSConfig enables the optional NATS frame sink
type NATSConfig struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

// Default returns the reference configuration
func Default() Config {
	tc := tracking.DefaultConfig()
	return Config{
		LogLevel: "info",
		Tracking: TrackingConfig{
			MinCutoff:         tc.MinCutoff,
			Beta:              tc.Beta,
			DCutoff:           tc.DCutoff,
			FixationThreshold: tc.FixationThreshold,
		},
		History: HistoryConfig{
			Capacity:  DefaultHistoryCapacity, // ~10s at 100 Hz
			Staleness: DefaultStaleness,
		},
		Relay: RelayConfig{
			Bind:             "127.0.0.1",
			RegistrationPort: DefaultRegistrationPort,
			Interval:         DefaultInterval,
			Mode:             ModeTicker,
			ReadTimeout:      DefaultReadTimeout,
			Clock:            ClockSensor,
		},
		Bridge: BridgeConfig{
			Bind:          "0.0.0.0",
			UpstreamPort:  DefaultUpstreamPort,
			WSPort:        DefaultWSPort,
			PublishFrames: true,
			QueueSize:     DefaultQueueSize,
		},
		Source: SourceConfig{
			Enabled:       true,
			Bind:          "0.0.0.0",
			Port:          DefaultUpstreamPort,
			TrackerName:   "udp",
			TrackerSerial: "upstream",
		},
		NATS: NATSConfig{
			Subject: DefaultNATSSubject,
		},
	}
}

// Load reads a YAML file over the defaults. An empty path returns defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from GAZE_* environment variables
func (c *Config) ApplyEnv() error {
	if v := os.Getenv("GAZE_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("GAZE_BIND"); v != "" {
		c.Relay.Bind = v
	}
	if v := os.Getenv("GAZE_NATS_URL"); v != "" {
		c.NATS.URL = v
	}

	ports := []struct {
		env string
		dst *int
	}{
		{"GAZE_REGISTRATION_PORT", &c.Relay.RegistrationPort},
		{"GAZE_UPSTREAM_PORT", &c.Bridge.UpstreamPort},
		{"GAZE_SOURCE_PORT", &c.Source.Port},
		{"GAZE_WS_PORT", &c.Bridge.WSPort},
	}
	for _, p := range ports {
		v := os.Getenv(p.env)
		if v == "" {
			continue
		}
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not a port", ErrInvalid, p.env, v)
		}
		*p.dst = port
	}
	return nil
}

// TrackingParams converts the tracking section for the conditioner
func (c Config) TrackingParams() tracking.Config {
	return tracking.Config{
		MinCutoff:         c.Tracking.MinCutoff,
		Beta:              c.Tracking.Beta,
		DCutoff:           c.Tracking.DCutoff,
		FixationThreshold: c.Tracking.FixationThreshold,
	}
}

// Validate checks the configuration for unusable values
func (c Config) Validate() error {
	if err := c.TrackingParams().Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if c.History.Capacity <= 0 {
		return fmt.Errorf("%w: history.capacity must be positive", ErrInvalid)
	}
	if c.History.Staleness <= 0 {
		return fmt.Errorf("%w: history.staleness must be positive", ErrInvalid)
	}
	if c.Relay.Interval <= 0 {
		return fmt.Errorf("%w: relay.interval must be positive", ErrInvalid)
	}
	if c.Relay.ReadTimeout <= 0 {
		return fmt.Errorf("%w: relay.read_timeout must be positive", ErrInvalid)
	}
	if c.Relay.ClientTTL < 0 {
		return fmt.Errorf("%w: relay.client_ttl must not be negative", ErrInvalid)
	}
	if c.Relay.Mode != ModeTicker && c.Relay.Mode != ModeEvent {
		return fmt.Errorf("%w: relay.mode must be %q or %q", ErrInvalid, ModeTicker, ModeEvent)
	}
	if c.Relay.Clock != ClockWall && c.Relay.Clock != ClockSensor {
		return fmt.Errorf("%w: relay.clock must be %q or %q", ErrInvalid, ClockWall, ClockSensor)
	}
	if c.Bridge.QueueSize <= 0 {
		return fmt.Errorf("%w: bridge.queue_size must be positive", ErrInvalid)
	}

	for name, port := range map[string]int{
		"relay.registration_port": c.Relay.RegistrationPort,
		"bridge.upstream_port":    c.Bridge.UpstreamPort,
		"bridge.ws_port":          c.Bridge.WSPort,
		"source.port":             c.Source.Port,
	} {
		if port < 0 || port > 65535 {
			return fmt.Errorf("%w: %s %d out of range", ErrInvalid, name, port)
		}
	}
	return nil
}
