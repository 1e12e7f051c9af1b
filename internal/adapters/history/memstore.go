package history

import (
	"context"
	"sync"

	"github.com/paddocklabs/gridcast/internal/domain/model"
	"github.com/paddocklabs/gridcast/internal/domain/types"
	"github.com/paddocklabs/gridcast/pkg/logger"
)

const defaultCapacity = 500

// MemStore is an in-memory Store with a bounded record window: once the
// capacity is reached, appending evicts the oldest record. Duplicate race
// IDs are rejected so a replayed outcome cannot skew the accuracy window.
type MemStore struct {
	mu      sync.RWMutex
	records []model.PerformanceRecord
	seen    map[string]struct{}

	capacity int
	log      logger.Logger
}

// Option applies a configuration option to the MemStore.
type Option func(*MemStore)

// WithCapacity bounds the number of retained records.
func WithCapacity(n int) Option {
	return func(s *MemStore) {
		if n > 0 {
			s.capacity = n
		}
	}
}

// WithLogger overrides the store's logger.
func WithLogger(log logger.Logger) Option {
	return func(s *MemStore) {
		s.log = log
	}
}

// NewMemStore creates an empty in-memory history store.
func NewMemStore(opts ...Option) *MemStore {
	s := &MemStore{
		seen:     map[string]struct{}{},
		capacity: defaultCapacity,
		log:      logger.Named("history"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Append records one race outcome, evicting the oldest record at capacity.
func (s *MemStore) Append(_ context.Context, rec model.PerformanceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.seen[rec.RaceID]; dup {
		return ErrDuplicate
	}

	if len(s.records) >= s.capacity {
		evicted := s.records[0]
		s.records = s.records[1:]
		delete(s.seen, evicted.RaceID)
	}

	s.records = append(s.records, rec)
	s.seen[rec.RaceID] = struct{}{}

	s.log.Debug("recorded race outcome",
		logger.String("race_id", rec.RaceID),
		logger.Float64("overall_accuracy", rec.Metrics.OverallAccuracy))
	return nil
}

// Recent returns up to n records, newest first.
func (s *MemStore) Recent(_ context.Context, n int) ([]model.PerformanceRecord, error) {
	if n <= 0 {
		return nil, ErrInvalidLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if n > len(s.records) {
		n = len(s.records)
	}

	out := make([]model.PerformanceRecord, n)
	for i := 0; i < n; i++ {
		out[i] = s.records[len(s.records)-1-i]
	}
	return out, nil
}

// Summary aggregates mean accuracy over every retained record.
func (s *MemStore) Summary(_ context.Context) types.PerformanceSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.records)
	if n == 0 {
		return types.PerformanceSummary{}
	}

	var sum types.PerformanceSummary
	for _, rec := range s.records {
		sum.AvgOverallAccuracy += rec.Metrics.OverallAccuracy
		sum.AvgWinnerAccuracy += rec.Metrics.WinnerAccuracy
		sum.AvgTop3Accuracy += rec.Metrics.Top3Accuracy
		sum.AvgCalibrationErr += rec.Metrics.ConfidenceCalibration
	}

	div := float64(n)
	sum.AvgOverallAccuracy /= div
	sum.AvgWinnerAccuracy /= div
	sum.AvgTop3Accuracy /= div
	sum.AvgCalibrationErr /= div
	sum.RecordCount = n
	return sum
}

// Count returns the number of retained records.
func (s *MemStore) Count(_ context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
