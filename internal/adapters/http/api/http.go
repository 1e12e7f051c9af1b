// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/paddocklabs/gridcast/internal/adapters/history"
	"github.com/paddocklabs/gridcast/internal/domain/lifecycle"
	"github.com/paddocklabs/gridcast/internal/domain/model"
	"github.com/paddocklabs/gridcast/internal/domain/types"
	"github.com/paddocklabs/gridcast/internal/live"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	// Prediction reads.
	PredictRace(ctx context.Context, raceID string) (model.PredictionResult, error)
	PredictPodium(ctx context.Context, raceID string) (model.PodiumProbabilities, error)

	// Model lifecycle.
	ModelStatus(ctx context.Context) types.ModelStatus
	TriggerRetrain()
	RecordOutcome(ctx context.Context, raceID string, actual model.RaceOutcome) (model.AccuracyMetrics, error)

	// Live sessions.
	StartRace(ctx context.Context, raceID string) (types.SessionInfo, error)
	StopRace(raceID string) error
	ActiveRaces() []types.SessionInfo
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler  *HealthHandler
	statsHandler   *StatsHandler
	modelHandler   *ModelHandler
	racesHandler   *RacesHandler
	predictHandler *PredictHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	return &Server{
		healthHandler:  NewHealthHandler(),
		statsHandler:   NewStatsHandler(statsProvider),
		modelHandler:   NewModelHandler(deps),
		racesHandler:   NewRacesHandler(deps),
		predictHandler: NewPredictHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(ctx context.Context, mux *http.ServeMux) {
	// Specific paths first (most specific to least specific)
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/model/status", MetricsMiddleware(s.modelHandler.HandleStatus, "model_status"))
	mux.HandleFunc("/model/retrain", MetricsMiddleware(s.modelHandler.HandleRetrain, "model_retrain"))
	mux.HandleFunc("/races", MetricsMiddleware(s.racesHandler.HandleList, "races"))
	mux.HandleFunc("/races/", MetricsMiddleware(s.racesHandler.HandleRace, "race"))
	mux.HandleFunc("/predict/", MetricsMiddleware(s.predictHandler.HandlePredict, "predict"))
}

// outcomeRequest mirrors the OpenAPI schema for POST /races/{id}/outcome.
type outcomeRequest struct {
	Winner string   `json:"winner"`
	Top3   []string `json:"top_3"`
}

func (o outcomeRequest) validate() error {
	switch {
	case strings.TrimSpace(o.Winner) == "":
		return errors.New("missing winner")
	case len(o.Top3) != 3:
		return errors.New("top_3 must list exactly three drivers")
	}
	for _, driver := range o.Top3 {
		if strings.TrimSpace(driver) == "" {
			return errors.New("top_3 entries must not be empty")
		}
	}
	return nil
}

type ackResponse struct {
	Status string `json:"status"`
	RaceID string `json:"race_id,omitempty"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeDomainError translates known sentinel errors into HTTP responses so
// handlers do not repeat the mapping.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, lifecycle.ErrNotLoaded):
		writeError(w, http.StatusServiceUnavailable, "model_not_loaded", err)
	case errors.Is(err, live.ErrNotActive):
		writeError(w, http.StatusNotFound, "race_not_active", err)
	case errors.Is(err, live.ErrAlreadyActive):
		writeError(w, http.StatusConflict, "already_active", err)
	case errors.Is(err, history.ErrDuplicate):
		writeError(w, http.StatusConflict, "duplicate_outcome", err)
	case errors.Is(err, lifecycle.ErrOutcomeIncomplete):
		writeError(w, http.StatusBadRequest, "bad_request", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err)
	}
}
