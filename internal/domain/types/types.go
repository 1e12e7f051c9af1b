// Package types contains read-side view types shared between the service
// facade and the HTTP/websocket adapters.
package types

import (
	"time"

	"github.com/paddocklabs/gridcast/internal/domain/model"
)

// SessionInfo is the externally visible state of one live race session.
type SessionInfo struct {
	RaceID          string                `json:"race_id"`
	Status          string                `json:"status"`
	StartedAt       time.Time             `json:"started_at"`
	PredictionCount int64                 `json:"prediction_count"`
	LastPrediction  *model.LivePrediction `json:"last_prediction,omitempty"`
}

// ModelStatus is the read accessor shape for model lifecycle state.
type ModelStatus struct {
	Loaded              bool               `json:"loaded"`
	State               string             `json:"state"`
	LastUpdate          time.Time          `json:"last_update"`
	NextScheduledUpdate time.Time          `json:"next_scheduled_update"`
	Versions            map[string]string  `json:"versions"`
	Performance         PerformanceSummary `json:"performance"`
}

// PerformanceSummary aggregates the recorded accuracy history.
type PerformanceSummary struct {
	AvgOverallAccuracy float64 `json:"avg_overall_accuracy"`
	AvgWinnerAccuracy  float64 `json:"avg_winner_accuracy"`
	AvgTop3Accuracy    float64 `json:"avg_top3_accuracy"`
	AvgCalibrationErr  float64 `json:"avg_calibration_err"`
	RecordCount        int     `json:"record_count"`
}
