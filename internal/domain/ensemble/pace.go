package ensemble

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/paddocklabs/gridcast/internal/domain/feature"
	"github.com/paddocklabs/gridcast/internal/domain/model"
)

const (
	paceScalarTemperature = "temperature"
	paceScalarStintLaps   = "stint_laps"

	paceDefaultTemperature = 0.8
	paceDefaultStintLaps   = 22
)

// PaceUnit predicts from raw lap pace: a softmax over pace deficit to the
// fastest car, blended with track position so a fast car stuck in traffic
// does not read as a sure winner. It is the only unit carrying the live
// capabilities (position-change projection and pit windows).
type PaceUnit struct {
	weight float64

	mu          sync.RWMutex
	temperature float64
	stintLaps   float64
	version     string
	trained     bool
}

// NewPaceUnit creates a pace unit with default softmax temperature.
func NewPaceUnit(weight float64) *PaceUnit {
	return &PaceUnit{
		weight:      weight,
		temperature: paceDefaultTemperature,
		stintLaps:   paceDefaultStintLaps,
	}
}

func (u *PaceUnit) Name() string    { return "pace" }
func (u *PaceUnit) Weight() float64 { return u.weight }

func (u *PaceUnit) Trained() bool {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.trained
}

func (u *PaceUnit) Version() string {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.version
}

// paceScores converts per-candidate pace into softmax-ready scores. Returns
// nil when no candidate reports pace.
func (u *PaceUnit) paceScores(v feature.Vector) map[string]float64 {
	fastest := math.Inf(1)
	paces := make(map[string]float64, len(v.Candidates))
	for _, c := range v.Candidates {
		if pace, ok := v.Lookup(c, feature.AvgPace); ok && pace > 0 {
			paces[c] = pace
			if pace < fastest {
				fastest = pace
			}
		}
	}
	if len(paces) == 0 {
		return nil
	}

	scores := make(map[string]float64, len(paces))
	for c, pace := range paces {
		score := fastest - pace
		if pos, ok := v.Lookup(c, feature.Position); ok {
			score -= 0.05 * (pos - 1)
		}
		scores[c] = score
	}
	return scores
}

func (u *PaceUnit) Predict(_ context.Context, v feature.Vector) (UnitPrediction, error) {
	u.mu.RLock()
	defer u.mu.RUnlock()

	scores := u.paceScores(v)
	if scores == nil {
		return UnitPrediction{}, ErrNoFeatures
	}

	probs := softmax(scores, u.temperature)
	return UnitPrediction{
		Winner:           topCandidate(probs),
		Confidence:       confidenceFromProbs(probs),
		WinProbabilities: probs,
	}, nil
}

// PredictPodium spreads the win distribution into podium chances: three
// podium slots, so each win probability is scaled up and capped.
func (u *PaceUnit) PredictPodium(ctx context.Context, v feature.Vector) ([]float64, error) {
	pred, err := u.Predict(ctx, v)
	if err != nil {
		return nil, err
	}

	out := make([]float64, len(v.Candidates))
	for i, c := range v.Candidates {
		out[i] = clamp01(3 * pred.WinProbabilities[c])
	}
	return out, nil
}

// PredictLive extends the pace prediction with projected position changes
// and pit windows derived from tire age.
func (u *PaceUnit) PredictLive(ctx context.Context, v feature.Vector) (LiveUnitPrediction, error) {
	pred, err := u.Predict(ctx, v)
	if err != nil {
		return LiveUnitPrediction{}, err
	}

	u.mu.RLock()
	stint := u.stintLaps
	u.mu.RUnlock()

	return LiveUnitPrediction{
		UnitPrediction:  pred,
		PositionChanges: projectPositionChanges(v, pred.WinProbabilities),
		PitWindows:      projectPitWindows(v, stint),
	}, nil
}

// projectPositionChanges ranks candidates by win probability and reports
// every candidate whose projected slot differs from the current one.
func projectPositionChanges(v feature.Vector, probs map[string]float64) []model.PositionChange {
	type ranked struct {
		driver string
		prob   float64
	}

	order := make([]ranked, 0, len(v.Candidates))
	for _, c := range v.Candidates {
		if _, ok := v.Lookup(c, feature.Position); ok {
			order = append(order, ranked{driver: c, prob: probs[c]})
		}
	}
	sort.SliceStable(order, func(i, j int) bool {
		if order[i].prob != order[j].prob {
			return order[i].prob > order[j].prob
		}
		return order[i].driver < order[j].driver
	})

	changes := []model.PositionChange{}
	for projected, r := range order {
		current, _ := v.Lookup(r.driver, feature.Position)
		from := int(current)
		to := projected + 1
		if from == to {
			continue
		}
		changes = append(changes, model.PositionChange{
			Candidate:    r.driver,
			FromPosition: from,
			ToPosition:   to,
			Probability:  clamp01(0.3 + r.prob),
		})
	}
	return changes
}

// projectPitWindows estimates the next pit lap per candidate from tire age
// and the fitted typical stint length. Fresh tires beyond the stint budget
// report the next lap.
func projectPitWindows(v feature.Vector, stintLaps float64) map[string]int {
	lap := int(v.Global[feature.CurrentLap])
	windows := map[string]int{}
	for _, c := range v.Candidates {
		age, ok := v.Lookup(c, feature.TireAge)
		if !ok {
			continue
		}
		remaining := int(stintLaps - age)
		if remaining < 1 {
			remaining = 1
		}
		windows[c] = lap + remaining
	}
	return windows
}

// Train refits the softmax temperature from how decisive historical wins
// were, and the typical stint length from observed pit-stop counts.
func (u *PaceUnit) Train(_ context.Context, samples []TrainingSample) error {
	if len(samples) == 0 {
		return ErrNoSamples
	}

	var (
		hits, preds int
		stintSum    float64
		stintN      int
	)
	for _, s := range samples {
		if scores := u.paceScores(s.Features); scores != nil {
			probs := softmax(scores, paceDefaultTemperature)
			if topCandidate(probs) == s.Outcome.Winner {
				hits++
			}
			preds++
		}
		for _, c := range s.Features.Candidates {
			stops, ok := s.Features.Lookup(c, feature.PitStops)
			if !ok || stops <= 0 {
				continue
			}
			laps := s.Features.Global[feature.CurrentLap]
			if laps > 0 {
				stintSum += laps / (stops + 1)
				stintN++
			}
		}
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	if preds > 0 {
		// Sharper distribution when pace has been predictive, flatter
		// when it has not.
		hitRate := float64(hits) / float64(preds)
		u.temperature = clampRange(paceDefaultTemperature*(1.5-hitRate), 0.3, 2.0)
	}
	if stintN > 0 {
		u.stintLaps = stintSum / float64(stintN)
	}
	u.trained = true
	u.version = uuid.NewString()
	return nil
}

func clampRange(v, lo, hi float64) float64 {
	switch {
	case v < lo:
		return lo
	case v > hi:
		return hi
	}
	return v
}

func (u *PaceUnit) Params() Params {
	u.mu.RLock()
	defer u.mu.RUnlock()

	return Params{
		Version: u.version,
		Scalars: map[string]float64{
			paceScalarTemperature: u.temperature,
			paceScalarStintLaps:   u.stintLaps,
		},
	}
}

func (u *PaceUnit) Restore(p Params) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if t, ok := p.Scalars[paceScalarTemperature]; ok && t > 0 {
		u.temperature = t
	}
	if s, ok := p.Scalars[paceScalarStintLaps]; ok && s > 0 {
		u.stintLaps = s
	}
	u.trained = len(p.Scalars) > 0
	u.version = p.Version
	return nil
}
