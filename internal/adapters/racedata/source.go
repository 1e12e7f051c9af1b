// Package racedata defines the contract for fetching race state and
// historical results from a timing feed.
package racedata

import (
	"context"

	"github.com/paddocklabs/gridcast/internal/domain/ensemble"
	"github.com/paddocklabs/gridcast/internal/domain/feature"
	"github.com/paddocklabs/gridcast/internal/domain/model"
)

// Source provides race state for the live path and grids and results for
// the batch and training paths. The implementation may simulate latency to
// model an external timing provider.
type Source interface {
	// Snapshot returns the current in-race state, honoring ctx for
	// cancellation.
	Snapshot(ctx context.Context, raceID string) (model.RaceSnapshot, error)

	// Grid returns the starting grid and standings for a race.
	Grid(ctx context.Context, ref model.RaceRef) ([]feature.Entry, error)

	// History returns up to n completed races as training samples, oldest
	// first.
	History(ctx context.Context, n int) ([]ensemble.TrainingSample, error)

	// Roster returns the full candidate pool the source knows about.
	Roster() []string
}
