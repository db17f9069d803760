package tracking

import (
	"errors"
	"testing"
)

func TestDefaultConfig_Values(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.MinCutoff != 1.0 {
		t.Errorf("Expected MinCutoff=1.0, got %v", cfg.MinCutoff)
	}
	if cfg.Beta != 0.0 {
		t.Errorf("Expected Beta=0.0, got %v", cfg.Beta)
	}
	if cfg.DCutoff != 1.0 {
		t.Errorf("Expected DCutoff=1.0, got %v", cfg.DCutoff)
	}
	if cfg.FixationThreshold != 3.0 {
		t.Errorf("Expected FixationThreshold=3.0, got %v", cfg.FixationThreshold)
	}
}

func TestPresets_AreValid(t *testing.T) {
	configs := []struct {
		name string
		cfg  Config
	}{
		{"Default", DefaultConfig()},
		{"Responsive", ResponsiveConfig()},
		{"Smooth", SmoothConfig()},
	}

	for _, tc := range configs {
		if err := tc.cfg.Validate(); err != nil {
			t.Errorf("%s: unexpected error %v", tc.name, err)
		}
	}
}

func TestResponsiveConfig_AdaptsToSpeed(t *testing.T) {
	if ResponsiveConfig().Beta <= DefaultConfig().Beta {
		t.Error("ResponsiveConfig should weight speed more than the default")
	}
}

func TestSmoothConfig_LowerCutoff(t *testing.T) {
	if SmoothConfig().MinCutoff >= DefaultConfig().MinCutoff {
		t.Error("SmoothConfig should have a lower minimum cutoff than the default")
	}
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero min cutoff", func(c *Config) { c.MinCutoff = 0 }},
		{"negative beta", func(c *Config) { c.Beta = -0.1 }},
		{"zero d cutoff", func(c *Config) { c.DCutoff = 0 }},
		{"zero threshold", func(c *Config) { c.FixationThreshold = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrConfig) {
				t.Errorf("Expected ErrConfig, got %v", err)
			}
		})
	}
}
