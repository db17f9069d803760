package tracking

// Config holds all tunable parameters for gaze conditioning
type Config struct {
	// One Euro filter (applied per axis)
	MinCutoff float64 // Minimum cutoff frequency (Hz); lower = smoother at rest
	Beta      float64 // Speed coefficient; higher = less lag during fast movement
	DCutoff   float64 // Cutoff frequency for the derivative (Hz)

	// I-VT fixation detection
	FixationThreshold float64 // Saccade velocity threshold (units per second)
}

// DefaultConfig returns the standard tuning
func DefaultConfig() Config {
	return Config{
		MinCutoff: 1.0,
		Beta:      0.0, // Plain low-pass, no speed adaptation
		DCutoff:   1.0,

		FixationThreshold: 3.0,
	}
}

// ResponsiveConfig returns a configuration that follows fast eye movements
// closely at the cost of more jitter during fixations
func ResponsiveConfig() Config {
	cfg := DefaultConfig()
	cfg.Beta = 1.0
	return cfg
}

// SmoothConfig returns a configuration for steadier output on noisy trackers
func SmoothConfig() Config {
	cfg := DefaultConfig()
	cfg.MinCutoff = 0.5
	cfg.Beta = 0.005
	return cfg
}

// Validate checks that all parameters are usable
func (c Config) Validate() error {
	if c.MinCutoff <= 0 {
		return ErrInvalidConfig("min_cutoff must be positive")
	}
	if c.Beta < 0 {
		return ErrInvalidConfig("beta must not be negative")
	}
	if c.DCutoff <= 0 {
		return ErrInvalidConfig("d_cutoff must be positive")
	}
	if c.FixationThreshold <= 0 {
		return ErrInvalidConfig("fixation_threshold must be positive")
	}
	return nil
}
