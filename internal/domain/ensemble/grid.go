package ensemble

import (
	"context"
	"math"
	"sync"

	"github.com/google/uuid"
	"github.com/paddocklabs/gridcast/internal/domain/feature"
)

const (
	gridScalarSteepness = "steepness"
	gridScalarMidpoint  = "midpoint"

	gridDefaultSteepness = 0.55
	gridDefaultMidpoint  = 4.0
)

// GridUnit predicts from track position: a logistic decay over grid slot
// (or current running position on the live path). It ships with default
// parameters, so it produces output even before the first training pass;
// Train only refits the decay curve to the observed win distribution.
type GridUnit struct {
	weight float64

	mu        sync.RWMutex
	steepness float64
	midpoint  float64
	version   string
	trained   bool
}

// NewGridUnit creates a grid unit with default decay parameters.
func NewGridUnit(weight float64) *GridUnit {
	return &GridUnit{
		weight:    weight,
		steepness: gridDefaultSteepness,
		midpoint:  gridDefaultMidpoint,
	}
}

func (u *GridUnit) Name() string    { return "grid" }
func (u *GridUnit) Weight() float64 { return u.weight }

func (u *GridUnit) Trained() bool {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.trained
}

func (u *GridUnit) Version() string {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.version
}

// score is the logistic win weight for one track position.
func (u *GridUnit) score(position float64) float64 {
	return 1 / (1 + math.Exp(u.steepness*(position-u.midpoint)))
}

// positionOf picks the best positional feature for a candidate: grid slot
// pre-race, running position live.
func positionOf(v feature.Vector, candidate string) (float64, bool) {
	if pos, ok := v.Lookup(candidate, feature.GridPosition); ok {
		return pos, true
	}
	if pos, ok := v.Lookup(candidate, feature.Position); ok {
		return pos, true
	}
	return 0, false
}

func (u *GridUnit) Predict(_ context.Context, v feature.Vector) (UnitPrediction, error) {
	u.mu.RLock()
	defer u.mu.RUnlock()

	scores := make(map[string]float64, len(v.Candidates))
	for _, c := range v.Candidates {
		if pos, ok := positionOf(v, c); ok {
			scores[c] = u.score(pos)
		}
	}
	if len(scores) == 0 {
		return UnitPrediction{}, ErrNoFeatures
	}

	probs := normalize(scores)
	return UnitPrediction{
		Winner:           topCandidate(probs),
		Confidence:       confidenceFromProbs(probs),
		WinProbabilities: probs,
	}, nil
}

// PredictPodium returns per-candidate podium probabilities in the vector's
// candidate order. Podium chances decay more gently than win chances, so
// the logistic is stretched by a fixed factor.
func (u *GridUnit) PredictPodium(_ context.Context, v feature.Vector) ([]float64, error) {
	u.mu.RLock()
	defer u.mu.RUnlock()

	if len(v.Candidates) == 0 {
		return nil, ErrNoFeatures
	}

	out := make([]float64, len(v.Candidates))
	for i, c := range v.Candidates {
		pos, ok := positionOf(v, c)
		if !ok {
			continue
		}
		out[i] = clamp01(3 * u.score(pos) / (1 + 2*u.score(1)))
	}
	return out, nil
}

// Train refits the logistic midpoint to the average winning track position
// in the sample set. Steepness is kept; it is a shape, not a fit target.
func (u *GridUnit) Train(_ context.Context, samples []TrainingSample) error {
	if len(samples) == 0 {
		return ErrNoSamples
	}

	var (
		sum float64
		n   int
	)
	for _, s := range samples {
		if s.Outcome.Winner == "" {
			continue
		}
		if pos, ok := positionOf(s.Features, s.Outcome.Winner); ok {
			sum += pos
			n++
		}
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	if n > 0 {
		// Midpoint sits past the typical winning slot so those slots keep
		// high weight.
		u.midpoint = sum/float64(n) + 2
	}
	u.trained = true
	u.version = uuid.NewString()
	return nil
}

func (u *GridUnit) Params() Params {
	u.mu.RLock()
	defer u.mu.RUnlock()

	return Params{
		Version: u.version,
		Scalars: map[string]float64{
			gridScalarSteepness: u.steepness,
			gridScalarMidpoint:  u.midpoint,
		},
	}
}

func (u *GridUnit) Restore(p Params) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if s, ok := p.Scalars[gridScalarSteepness]; ok && s > 0 {
		u.steepness = s
	}
	if m, ok := p.Scalars[gridScalarMidpoint]; ok && m > 0 {
		u.midpoint = m
	}
	u.trained = len(p.Scalars) > 0
	u.version = p.Version
	return nil
}
