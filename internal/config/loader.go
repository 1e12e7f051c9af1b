package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):.
//  1. defaults (New())
//  2. file (YAML) if GRIDCAST_CONFIG is set
//  3. env (prefix GRIDCAST_)
func Load(_ context.Context) (*Config, error) {
	// Start with defaults
	base := New()

	k := koanf.New(".")

	// Load from file if provided
	if path := os.Getenv("GRIDCAST_CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
		}
	}

	// Environment variables: GRIDCAST_ADDR, GRIDCAST_ARTIFACT_DIR, ...
	// Map env keys like GRIDCAST_ARTIFACT_DIR -> artifact_dir (flat keys)
	// Preserve underscores to match koanf tags on the struct.
	envProvider := env.Provider("GRIDCAST_", ".", func(s string) string {
		s = strings.ToLower(s)
		s = strings.TrimPrefix(s, "gridcast_")
		return s
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	// Unmarshal into a copy
	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Addr == "" {
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	}
	if c.ArtifactDir == "" {
		return fmt.Errorf("%w: artifact_dir must not be empty", ErrInvalidConfig)
	}
	if c.BroadcastIntervalMS <= 0 {
		return fmt.Errorf("%w: broadcast_interval_ms must be positive", ErrInvalidConfig)
	}
	if c.FeedLatencyMaxMS < c.FeedLatencyMinMS {
		return fmt.Errorf("%w: feed_latency_max_ms must be >= feed_latency_min_ms", ErrInvalidConfig)
	}
	if c.SweepIntervalSec <= 0 {
		return fmt.Errorf("%w: sweep_interval_sec must be positive", ErrInvalidConfig)
	}
	if c.PerformanceWindow <= 0 {
		return fmt.Errorf("%w: performance_window must be positive", ErrInvalidConfig)
	}
	if c.SubscriberBuffer <= 0 {
		return fmt.Errorf("%w: subscriber_buffer must be positive", ErrInvalidConfig)
	}
	thresholds := map[string]float64{
		"accuracy_threshold":       c.AccuracyThreshold,
		"min_validation_accuracy":  c.MinValidationAccuracy,
		"min_validation_precision": c.MinValidationPrecision,
		"min_validation_recall":    c.MinValidationRecall,
	}
	for name, v := range thresholds {
		if v < 0 || v > 1 {
			return fmt.Errorf("%w: %s must be within [0, 1]", ErrInvalidConfig, name)
		}
	}
	for name, w := range map[string]float64{
		"form_weight": c.FormWeight,
		"grid_weight": c.GridWeight,
		"pace_weight": c.PaceWeight,
	} {
		if w <= 0 {
			return fmt.Errorf("%w: %s must be positive", ErrInvalidConfig, name)
		}
	}
	return nil
}
