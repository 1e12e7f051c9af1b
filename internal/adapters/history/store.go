// Package history defines the performance record store interface and errors.
package history

import (
	"context"

	"github.com/paddocklabs/gridcast/internal/domain/model"
	"github.com/paddocklabs/gridcast/internal/domain/types"
)

// Store provides read/write access to recorded prediction performance.
type Store interface {
	// Append records the outcome of one race. Returns ErrDuplicate when
	// the race was already recorded.
	Append(ctx context.Context, rec model.PerformanceRecord) error

	// Recent returns up to n records, newest first.
	// Returns ErrInvalidLimit when n is not positive.
	Recent(ctx context.Context, n int) ([]model.PerformanceRecord, error)

	// Summary aggregates accuracy across all retained records.
	Summary(ctx context.Context) types.PerformanceSummary

	// Count returns the number of retained records.
	Count(ctx context.Context) int
}
