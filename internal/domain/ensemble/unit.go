// Package ensemble holds the predictor units and the combiner that merges
// their outputs into a single result.
package ensemble

import (
	"context"

	"github.com/paddocklabs/gridcast/internal/domain/feature"
	"github.com/paddocklabs/gridcast/internal/domain/model"
)

// UnitPrediction is a single unit's raw output before combination.
type UnitPrediction struct {
	// Winner is the unit's own top choice.
	Winner string

	// Confidence is the unit's self-reported confidence in [0,1].
	Confidence float64

	// WinProbabilities maps candidate -> probability. A unit may omit
	// candidates it has no signal for; omitted candidates are excluded
	// from that candidate's combined average rather than counted as zero.
	WinProbabilities map[string]float64
}

// LiveUnitPrediction extends a UnitPrediction with in-race fields.
type LiveUnitPrediction struct {
	UnitPrediction

	PositionChanges []model.PositionChange
	PitWindows      map[string]int
}

// Unit is one trained model. Every unit must predict; the podium and live
// variants are optional capabilities declared via the interfaces below.
type Unit interface {
	Name() string

	// Weight is the unit's fixed combination weight, bound at
	// construction and never mutated while the unit is in use.
	Weight() float64

	Trained() bool

	Predict(ctx context.Context, v feature.Vector) (UnitPrediction, error)
}

// PodiumPredictor is the optional podium-probability capability. Output is
// one scalar per candidate in the vector's fixed candidate order.
type PodiumPredictor interface {
	PredictPodium(ctx context.Context, v feature.Vector) ([]float64, error)
}

// LivePredictor is the optional live-prediction capability.
type LivePredictor interface {
	PredictLive(ctx context.Context, v feature.Vector) (LiveUnitPrediction, error)
}

// TrainingSample is one historical race used for training and validation.
type TrainingSample struct {
	RaceID   string
	Features feature.Vector
	Outcome  model.RaceOutcome
}

// Params is the serializable parameter set of one unit. The artifact store
// persists these; each unit interprets its own scalar and table entries.
type Params struct {
	Version string             `yaml:"version"`
	Scalars map[string]float64 `yaml:"scalars,omitempty"`
	Table   map[string]float64 `yaml:"table,omitempty"`
}

// Trainable is a unit whose parameters can be fitted and persisted. The
// lifecycle manager works exclusively with trainable units.
type Trainable interface {
	Unit

	Train(ctx context.Context, samples []TrainingSample) error

	// Params returns a copy of the current parameter set for persistence.
	Params() Params

	// Restore replaces the unit's parameters from a persisted set.
	Restore(p Params) error

	// Version is the tag of the currently held parameter set.
	Version() string
}
