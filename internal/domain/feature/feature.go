// Package feature computes feature vectors for the prediction units.
//
// Everything here is a pure function of its inputs: no I/O, no stored state.
// Unit-specific reshaping happens inside the units themselves; this package
// only defines the shared vector shape and the builders for the two entry
// paths (pre-race and live).
package feature

import (
	"sort"

	"github.com/paddocklabs/gridcast/internal/domain/model"
)

// Feature names shared between builders and units.
const (
	Progress     = "progress"
	CurrentLap   = "current_lap"
	SafetyCar    = "safety_car"
	TrackTemp    = "track_temp_c"
	Precip       = "precipitation"
	Position     = "position"
	GapSecs      = "gap_secs"
	AvgPace      = "avg_pace"
	TireAge      = "tire_age"
	PitStops     = "pit_stops"
	GridPosition = "grid_position"
	SeasonPoints = "season_points"
)

// Vector is the input to every predictor unit: a fixed candidate order, a
// set of global features and per-candidate feature maps.
type Vector struct {
	Candidates  []string
	Global      map[string]float64
	ByCandidate map[string]map[string]float64
}

// Candidate returns the feature map for one candidate, or nil when the
// candidate is unknown to this vector.
func (v Vector) Candidate(name string) map[string]float64 {
	return v.ByCandidate[name]
}

// Lookup returns a per-candidate feature value and whether it was present.
func (v Vector) Lookup(candidate, feat string) (float64, bool) {
	m, ok := v.ByCandidate[candidate]
	if !ok {
		return 0, false
	}
	val, ok := m[feat]
	return val, ok
}

// FromSnapshot builds the live feature vector from a race-data snapshot.
// Candidates are ordered by current position so units see a stable order.
func FromSnapshot(snap model.RaceSnapshot) Vector {
	positions := make([]model.DriverPosition, len(snap.Positions))
	copy(positions, snap.Positions)
	sort.Slice(positions, func(i, j int) bool { return positions[i].Position < positions[j].Position })

	v := Vector{
		Candidates:  make([]string, 0, len(positions)),
		Global:      map[string]float64{},
		ByCandidate: make(map[string]map[string]float64, len(positions)),
	}

	v.Global[Progress] = snap.Progress()
	v.Global[CurrentLap] = float64(snap.CurrentLap)
	v.Global[SafetyCar] = boolFeature(snap.SafetyCar)
	v.Global[TrackTemp] = snap.Weather.TrackTempC
	v.Global[Precip] = boolFeature(snap.Weather.Precipitation)

	for _, p := range positions {
		v.Candidates = append(v.Candidates, p.Driver)
		feats := map[string]float64{
			Position: float64(p.Position),
			GapSecs:  p.GapSecs,
		}
		if laps, ok := snap.LapTimes[p.Driver]; ok && len(laps) > 0 {
			feats[AvgPace] = mean(laps)
		}
		if tire, ok := snap.Tires[p.Driver]; ok {
			feats[TireAge] = float64(tire.AgeLaps)
			feats[PitStops] = float64(tire.PitStops)
		}
		v.ByCandidate[p.Driver] = feats
	}

	return v
}

// Entry is one candidate's pre-race standing, supplied by the excluded
// persistence layer.
type Entry struct {
	Driver       string
	GridPosition int
	SeasonPoints float64
}

// PreRace builds the batch-path feature vector from grid and standings data.
func PreRace(ref model.RaceRef, entries []Entry) Vector {
	v := Vector{
		Candidates:  make([]string, 0, len(entries)),
		Global:      map[string]float64{"season": float64(ref.Season)},
		ByCandidate: make(map[string]map[string]float64, len(entries)),
	}

	for _, e := range entries {
		v.Candidates = append(v.Candidates, e.Driver)
		v.ByCandidate[e.Driver] = map[string]float64{
			GridPosition: float64(e.GridPosition),
			SeasonPoints: e.SeasonPoints,
		}
	}

	return v
}

func mean(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

func boolFeature(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
