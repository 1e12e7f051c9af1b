package model

import (
	"strconv"
	"strings"
	"time"
)

// RaceRef identifies a race as circuit plus season, parsed from the wire
// form "<circuit>-<year>".
type RaceRef struct {
	ID      string
	Circuit string
	Season  int
}

// ParseRaceRef splits a race id of the form "<circuit>-<year>". When the
// trailing segment is not a plausible year the whole id is treated as the
// circuit name and the provided default season is used.
func ParseRaceRef(id string, defaultSeason int) RaceRef {
	ref := RaceRef{ID: id, Circuit: id, Season: defaultSeason}

	idx := strings.LastIndex(id, "-")
	if idx <= 0 || idx == len(id)-1 {
		return ref
	}
	year, err := strconv.Atoi(id[idx+1:])
	if err != nil || year < 1950 || year > 2100 {
		return ref
	}
	ref.Circuit = id[:idx]
	ref.Season = year
	return ref
}

// DriverPosition is one running-order entry in a live snapshot.
type DriverPosition struct {
	Position int     `json:"position"`
	Driver   string  `json:"driver"`
	GapSecs  float64 `json:"gap_secs"`
}

// TireState describes a driver's current tires.
type TireState struct {
	Compound string `json:"compound"`
	AgeLaps  int    `json:"age_laps"`
	PitStops int    `json:"pit_stops"`
}

// Weather holds ambient conditions for a snapshot.
type Weather struct {
	TrackTempC    float64 `json:"track_temp_c"`
	Humidity      float64 `json:"humidity"`
	WindSpeedKPH  float64 `json:"wind_speed_kph"`
	Precipitation bool    `json:"precipitation"`
}

// RaceSnapshot is one point-in-time view of a live race, as returned by the
// external race-data source.
type RaceSnapshot struct {
	RaceID     string                `json:"race_id"`
	CurrentLap int                   `json:"current_lap"`
	TotalLaps  int                   `json:"total_laps"`
	Positions  []DriverPosition      `json:"positions"`
	LapTimes   map[string][]float64  `json:"lap_times"`
	Tires      map[string]TireState  `json:"tires"`
	Weather    Weather               `json:"weather"`
	SafetyCar  bool                  `json:"safety_car"`
	FetchedAt  time.Time             `json:"fetched_at"`
}

// Progress reports race completion in [0,1].
func (s RaceSnapshot) Progress() float64 {
	if s.TotalLaps <= 0 {
		return 0
	}
	p := float64(s.CurrentLap) / float64(s.TotalLaps)
	if p > 1 {
		return 1
	}
	return p
}

// RaceOutcome is the observed result of a finished race, used for
// performance bookkeeping.
type RaceOutcome struct {
	Winner string   `json:"winner"`
	Top3   []string `json:"top_3"`
}

// PerformanceRecord pairs a served prediction with the observed outcome and
// the derived accuracy metrics. Records are append-only.
type PerformanceRecord struct {
	RaceID     string           `json:"race_id"`
	Predicted  PredictionResult `json:"predicted"`
	Actual     RaceOutcome      `json:"actual"`
	Metrics    AccuracyMetrics  `json:"metrics"`
	RecordedAt time.Time        `json:"recorded_at"`
}

// AccuracyMetrics are the derived per-race accuracy figures.
type AccuracyMetrics struct {
	WinnerAccuracy        float64 `json:"winner_accuracy"`
	Top3Accuracy          float64 `json:"top3_accuracy"`
	OverallAccuracy       float64 `json:"overall_accuracy"`
	ConfidenceCalibration float64 `json:"confidence_calibration"`
}
