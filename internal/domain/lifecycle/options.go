package lifecycle

import (
	"time"

	"github.com/paddocklabs/gridcast/internal/domain/ensemble"
	"github.com/paddocklabs/gridcast/pkg/logger"
)

// Option applies a configuration option to the Manager.
type Option func(*Manager)

// WithRetrainInterval sets how old a model may grow before the schedule
// trigger fires.
func WithRetrainInterval(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.retrainInterval = d
		}
	}
}

// WithCheckInterval sets how often the scheduler evaluates the triggers.
func WithCheckInterval(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.checkInterval = d
		}
	}
}

// WithPerformanceWindow sets how many recent races the accuracy trigger
// looks at.
func WithPerformanceWindow(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.perfWindow = n
		}
	}
}

// WithAccuracyThreshold sets the window accuracy below which the
// performance trigger fires.
func WithAccuracyThreshold(v float64) Option {
	return func(m *Manager) {
		if v > 0 && v <= 1 {
			m.accuracyThreshold = v
		}
	}
}

// WithMinValidationAccuracy sets the holdout accuracy a candidate model
// must reach to be promoted.
func WithMinValidationAccuracy(v float64) Option {
	return func(m *Manager) {
		if v >= 0 && v <= 1 {
			m.minValidation = v
		}
	}
}

// WithMinValidationPrecision sets the holdout macro precision a candidate
// model must reach to be promoted.
func WithMinValidationPrecision(v float64) Option {
	return func(m *Manager) {
		if v >= 0 && v <= 1 {
			m.minPrecision = v
		}
	}
}

// WithMinValidationRecall sets the holdout macro recall a candidate model
// must reach to be promoted.
func WithMinValidationRecall(v float64) Option {
	return func(m *Manager) {
		if v >= 0 && v <= 1 {
			m.minRecall = v
		}
	}
}

// WithNewDataThreshold sets how many new race outcomes trigger a retrain.
func WithNewDataThreshold(n int64) Option {
	return func(m *Manager) {
		if n > 0 {
			m.newDataThreshold = n
		}
	}
}

// WithHistoryDepth sets how many past races feed a training cycle.
func WithHistoryDepth(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.historyDepth = n
		}
	}
}

// WithUnitFactory replaces the stock unit set builder.
func WithUnitFactory(f UnitFactory) Option {
	return func(m *Manager) {
		if f != nil {
			m.factory = f
		}
	}
}

// WithCombinerOptions forwards options to every combiner the manager
// builds.
func WithCombinerOptions(opts ...ensemble.Option) Option {
	return func(m *Manager) {
		m.combinerOpts = opts
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithLogger overrides the manager's logger.
func WithLogger(log logger.Logger) Option {
	return func(m *Manager) {
		m.log = log
	}
}
