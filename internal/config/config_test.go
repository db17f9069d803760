package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_ReferenceValues(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 12344, cfg.Relay.RegistrationPort)
	assert.Equal(t, 12345, cfg.Bridge.UpstreamPort)
	assert.Equal(t, 8765, cfg.Bridge.WSPort)
	assert.Equal(t, 10*time.Millisecond, cfg.Relay.Interval)
	assert.Equal(t, time.Second, cfg.Relay.ReadTimeout)
	assert.Equal(t, 100*time.Millisecond, cfg.History.Staleness)
	assert.Equal(t, 1000, cfg.History.Capacity)
	assert.Equal(t, 3.0, cfg.Tracking.FixationThreshold)
	assert.Equal(t, time.Duration(0), cfg.Relay.ClientTTL)
	assert.Equal(t, ClockSensor, cfg.Relay.Clock)
	require.NoError(t, cfg.Validate())
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gaze.yaml")
	data := []byte(`
log_level: debug
tracking:
  beta: 0.7
history:
  staleness: 250ms
relay:
  registration_port: 20000
  mode: event
  client_ttl: 30s
nats:
  url: nats://localhost:4222
`)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 0.7, cfg.Tracking.Beta)
	assert.Equal(t, 1.0, cfg.Tracking.MinCutoff) // untouched default
	assert.Equal(t, 250*time.Millisecond, cfg.History.Staleness)
	assert.Equal(t, 20000, cfg.Relay.RegistrationPort)
	assert.Equal(t, ModeEvent, cfg.Relay.Mode)
	assert.Equal(t, 30*time.Second, cfg.Relay.ClientTTL)
	assert.Equal(t, "nats://localhost:4222", cfg.NATS.URL)
	assert.Equal(t, DefaultNATSSubject, cfg.NATS.Subject)
	require.NoError(t, cfg.Validate())
}

func TestLoad_EmptyPath(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("relay: [unclosed"), 0o600))
	_, err = Load(path)
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("GAZE_REGISTRATION_PORT", "15000")
	t.Setenv("GAZE_WS_PORT", "9000")
	t.Setenv("GAZE_BIND", "0.0.0.0")
	t.Setenv("GAZE_NATS_URL", "nats://broker:4222")
	t.Setenv("GAZE_LOG_LEVEL", "warn")

	cfg := Default()
	require.NoError(t, cfg.ApplyEnv())

	assert.Equal(t, 15000, cfg.Relay.RegistrationPort)
	assert.Equal(t, 9000, cfg.Bridge.WSPort)
	assert.Equal(t, "0.0.0.0", cfg.Relay.Bind)
	assert.Equal(t, "nats://broker:4222", cfg.NATS.URL)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestApplyEnv_BadPort(t *testing.T) {
	t.Setenv("GAZE_UPSTREAM_PORT", "twelve")

	cfg := Default()
	err := cfg.ApplyEnv()
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero capacity", func(c *Config) { c.History.Capacity = 0 }},
		{"zero staleness", func(c *Config) { c.History.Staleness = 0 }},
		{"zero interval", func(c *Config) { c.Relay.Interval = 0 }},
		{"zero read timeout", func(c *Config) { c.Relay.ReadTimeout = 0 }},
		{"negative ttl", func(c *Config) { c.Relay.ClientTTL = -time.Second }},
		{"unknown mode", func(c *Config) { c.Relay.Mode = "burst" }},
		{"unknown clock", func(c *Config) { c.Relay.Clock = "gps" }},
		{"zero queue", func(c *Config) { c.Bridge.QueueSize = 0 }},
		{"port out of range", func(c *Config) { c.Bridge.WSPort = 70000 }},
		{"bad tracking", func(c *Config) { c.Tracking.DCutoff = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalid)
		})
	}
}
