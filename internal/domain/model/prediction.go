// Package model defines the value types shared across the prediction core.
//
// Everything here is an immutable value: results are built once, timestamped
// and never mutated after they leave the component that produced them.
package model

import (
	"sort"
	"time"
)

// PredictionResult is the combined output of the ensemble for one race.
type PredictionResult struct {
	// Winner is the selected top choice among candidates.
	Winner string `json:"winner"`

	// Confidence is the aggregate ensemble confidence in [0,1].
	Confidence float64 `json:"confidence"`

	// WinProbabilities maps candidate -> probability. Probabilities sum to
	// at most 1; after partial unit failures they may sum to less.
	WinProbabilities map[string]float64 `json:"win_probabilities"`

	// Ranking orders candidates by descending win probability.
	Ranking []string `json:"ranking"`

	// Fallback marks a result produced by the deterministic fallback path
	// rather than by any trained unit.
	Fallback bool `json:"fallback,omitempty"`

	// GeneratedAt records when the result was produced.
	GeneratedAt time.Time `json:"generated_at"`
}

// LivePrediction extends a PredictionResult with in-race fields.
type LivePrediction struct {
	PredictionResult

	// PositionChanges lists expected position swaps for the remaining laps.
	PositionChanges []PositionChange `json:"position_changes"`

	// PitWindows maps candidate -> expected pit-stop lap, when a unit
	// reported one.
	PitWindows map[string]int `json:"pit_windows"`

	// RaceID and lap context are stamped by the session that requested
	// the prediction, not by the combiner.
	RaceID       string  `json:"race_id,omitempty"`
	CurrentLap   int     `json:"current_lap,omitempty"`
	RaceProgress float64 `json:"race_progress,omitempty"`
}

// PositionChange describes one expected overtake.
type PositionChange struct {
	Candidate    string  `json:"candidate"`
	FromPosition int     `json:"from_position"`
	ToPosition   int     `json:"to_position"`
	Probability  float64 `json:"probability"`
}

// PodiumProbabilities holds one podium probability per candidate, in the
// fixed candidate order the combiner was configured with.
type PodiumProbabilities struct {
	Candidates    []string  `json:"candidates"`
	Probabilities []float64 `json:"probabilities"`
	LowConfidence bool      `json:"low_confidence,omitempty"`
	GeneratedAt   time.Time `json:"generated_at"`
}

// RankingFromProbabilities orders candidates by descending probability.
// Ties break lexicographically so the ordering is deterministic.
func RankingFromProbabilities(probs map[string]float64) []string {
	ranking := make([]string, 0, len(probs))
	for candidate := range probs {
		ranking = append(ranking, candidate)
	}
	sort.Slice(ranking, func(i, j int) bool {
		pi, pj := probs[ranking[i]], probs[ranking[j]]
		if pi != pj {
			return pi > pj
		}
		return ranking[i] < ranking[j]
	})
	return ranking
}
