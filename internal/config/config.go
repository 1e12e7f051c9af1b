// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New(...) initializer to build a Config with defaults.
// - External errors must be wrapped via this package's error helpers.
package config

import "time"

// Config contains process configuration. Extend as needed.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":8900".
	Addr string `koanf:"addr"`

	// ArtifactDir holds persisted model parameters.
	ArtifactDir string `koanf:"artifact_dir"`

	// DefaultSeason is assumed for race IDs carrying no year suffix.
	DefaultSeason int `koanf:"default_season"`

	// HistoryCapacity bounds the recorded performance window.
	HistoryCapacity int `koanf:"history_capacity"`

	// RetrainIntervalHours sets the scheduled model refresh age.
	RetrainIntervalHours int `koanf:"retrain_interval_hours"`

	// RetrainCheckSec sets how often retrain triggers are evaluated.
	RetrainCheckSec int `koanf:"retrain_check_sec"`

	// BroadcastIntervalMS sets the live prediction cadence.
	BroadcastIntervalMS int `koanf:"broadcast_interval_ms"`

	// SweepIntervalSec sets how often expired sessions are reaped.
	SweepIntervalSec int `koanf:"sweep_interval_sec"`

	// SessionIdleExpirySec ends sessions nobody watches.
	SessionIdleExpirySec int `koanf:"session_idle_expiry_sec"`

	// MaxSessionDurationMin hard-caps one session's lifetime.
	MaxSessionDurationMin int `koanf:"max_session_duration_min"`

	// PerformanceWindow is how many recent races the degradation trigger
	// averages over.
	PerformanceWindow int `koanf:"performance_window"`

	// AccuracyThreshold is the window accuracy below which a retrain is
	// triggered.
	AccuracyThreshold float64 `koanf:"accuracy_threshold"`

	// MinValidationAccuracy, MinValidationPrecision and
	// MinValidationRecall gate candidate model promotion on the holdout
	// set.
	MinValidationAccuracy  float64 `koanf:"min_validation_accuracy"`
	MinValidationPrecision float64 `koanf:"min_validation_precision"`
	MinValidationRecall    float64 `koanf:"min_validation_recall"`

	// FormWeight, GridWeight and PaceWeight are the ensemble combination
	// weights bound to the stock units.
	FormWeight float64 `koanf:"form_weight"`
	GridWeight float64 `koanf:"grid_weight"`
	PaceWeight float64 `koanf:"pace_weight"`

	// CandidatePool overrides the fallback candidate pool. Empty means
	// the data source's roster is used.
	CandidatePool []string `koanf:"candidate_pool"`

	// SubscriberBuffer is the per-subscriber prediction channel depth.
	SubscriberBuffer int `koanf:"subscriber_buffer"`

	// SimLapDurationMS sets the simulated feed's lap pace.
	SimLapDurationMS int `koanf:"sim_lap_duration_ms"`

	// FeedLatencyMinMS and FeedLatencyMaxMS simulate timing provider
	// latency bounds.
	FeedLatencyMinMS int `koanf:"feed_latency_min_ms"`
	FeedLatencyMaxMS int `koanf:"feed_latency_max_ms"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:              "info",
		Addr:                  ":8900",
		ArtifactDir:           "data/models",
		DefaultSeason:         time.Now().Year(),
		HistoryCapacity:       500,
		RetrainIntervalHours:  24,
		RetrainCheckSec:       600,
		BroadcastIntervalMS:   5_000,
		SweepIntervalSec:      60,
		SessionIdleExpirySec:  60,
		MaxSessionDurationMin: 240,
		SimLapDurationMS:      5_000,
		FeedLatencyMinMS:      20,
		FeedLatencyMaxMS:      60,

		PerformanceWindow:      10,
		AccuracyThreshold:      0.45,
		MinValidationAccuracy:  0.2,
		MinValidationPrecision: 0.1,
		MinValidationRecall:    0.1,
		FormWeight:             0.3,
		GridWeight:             0.4,
		PaceWeight:             0.3,
		SubscriberBuffer:       8,
	}
}

// RetrainInterval returns the scheduled refresh age as a duration.
func (c *Config) RetrainInterval() time.Duration {
	return time.Duration(c.RetrainIntervalHours) * time.Hour
}

// RetrainCheck returns the trigger evaluation cadence as a duration.
func (c *Config) RetrainCheck() time.Duration {
	return time.Duration(c.RetrainCheckSec) * time.Second
}

// BroadcastInterval returns the live cadence as a duration.
func (c *Config) BroadcastInterval() time.Duration {
	return time.Duration(c.BroadcastIntervalMS) * time.Millisecond
}

// SweepInterval returns the expiry sweep cadence as a duration.
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSec) * time.Second
}

// SessionIdleExpiry returns the idle window as a duration.
func (c *Config) SessionIdleExpiry() time.Duration {
	return time.Duration(c.SessionIdleExpirySec) * time.Second
}

// MaxSessionDuration returns the session cap as a duration.
func (c *Config) MaxSessionDuration() time.Duration {
	return time.Duration(c.MaxSessionDurationMin) * time.Minute
}

// SimLapDuration returns the simulated lap pace as a duration.
func (c *Config) SimLapDuration() time.Duration {
	return time.Duration(c.SimLapDurationMS) * time.Millisecond
}
