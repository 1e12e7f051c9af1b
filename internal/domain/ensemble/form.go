package ensemble

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/paddocklabs/gridcast/internal/domain/feature"
)

// Form rewards per finishing class when fitting the form table.
const (
	formDecay         = 0.7
	formWinnerReward  = 1.0
	formSecondReward  = 0.7
	formThirdReward   = 0.5
	formDefaultReward = 0.1
)

// FormUnit scores candidates by recent-result form: an exponentially
// decayed reward table keyed by driver. It has no signal until trained, so
// an untrained instance reports ErrUntrained and is excluded by the
// combiner rather than guessing.
type FormUnit struct {
	weight float64

	mu      sync.RWMutex
	table   map[string]float64
	version string
	trained bool
}

// NewFormUnit creates an untrained form unit with a fixed combination weight.
func NewFormUnit(weight float64) *FormUnit {
	return &FormUnit{
		weight: weight,
		table:  map[string]float64{},
	}
}

func (u *FormUnit) Name() string    { return "form" }
func (u *FormUnit) Weight() float64 { return u.weight }

func (u *FormUnit) Trained() bool {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.trained
}

func (u *FormUnit) Version() string {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.version
}

// Predict maps the form table onto the vector's candidates. Candidates
// absent from the table are omitted, not zeroed.
func (u *FormUnit) Predict(_ context.Context, v feature.Vector) (UnitPrediction, error) {
	u.mu.RLock()
	defer u.mu.RUnlock()

	if !u.trained {
		return UnitPrediction{}, ErrUntrained
	}

	scores := make(map[string]float64, len(v.Candidates))
	for _, c := range v.Candidates {
		if form, ok := u.table[c]; ok && form > 0 {
			scores[c] = form
		}
	}
	if len(scores) == 0 {
		return UnitPrediction{}, ErrNoFeatures
	}

	probs := normalize(scores)
	winner := topCandidate(probs)

	return UnitPrediction{
		Winner:           winner,
		Confidence:       confidenceFromProbs(probs),
		WinProbabilities: probs,
	}, nil
}

// Train rebuilds the form table from the sample history in order: each
// race decays all prior form and folds in the latest finishing rewards.
func (u *FormUnit) Train(_ context.Context, samples []TrainingSample) error {
	if len(samples) == 0 {
		return ErrNoSamples
	}

	table := map[string]float64{}
	for _, s := range samples {
		rewards := map[string]float64{}
		for _, c := range s.Features.Candidates {
			rewards[c] = formDefaultReward
		}
		for i, driver := range s.Outcome.Top3 {
			switch i {
			case 0:
				rewards[driver] = formWinnerReward
			case 1:
				rewards[driver] = formSecondReward
			case 2:
				rewards[driver] = formThirdReward
			}
		}
		if s.Outcome.Winner != "" {
			rewards[s.Outcome.Winner] = formWinnerReward
		}

		for driver, reward := range rewards {
			table[driver] = formDecay*table[driver] + (1-formDecay)*reward
		}
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	u.table = table
	u.trained = true
	u.version = uuid.NewString()
	return nil
}

// Params returns a copy of the form table for persistence.
func (u *FormUnit) Params() Params {
	u.mu.RLock()
	defer u.mu.RUnlock()

	table := make(map[string]float64, len(u.table))
	for k, val := range u.table {
		table[k] = val
	}
	return Params{Version: u.version, Table: table}
}

// Restore replaces the form table from a persisted parameter set.
func (u *FormUnit) Restore(p Params) error {
	table := make(map[string]float64, len(p.Table))
	for k, val := range p.Table {
		table[k] = val
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	u.table = table
	u.trained = len(table) > 0
	u.version = p.Version
	return nil
}
