// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/paddocklabs/gridcast/internal/domain/model"
)

// PredictDependencies defines the interface for prediction reads.
type PredictDependencies interface {
	PredictRace(ctx context.Context, raceID string) (model.PredictionResult, error)
	PredictPodium(ctx context.Context, raceID string) (model.PodiumProbabilities, error)
}

// PredictHandler handles prediction requests.
type PredictHandler struct {
	deps PredictDependencies
}

// NewPredictHandler creates a new prediction handler.
func NewPredictHandler(deps PredictDependencies) *PredictHandler {
	return &PredictHandler{deps: deps}
}

// HandlePredict handles GET /predict/{race_id} and
// GET /predict/{race_id}/podium requests.
func (h *PredictHandler) HandlePredict(w http.ResponseWriter, r *http.Request) {
	const op = "api.predict"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/predict/")
	raceID, podium := path, false
	if rest, ok := strings.CutSuffix(path, "/podium"); ok {
		raceID, podium = rest, true
	}
	if raceID == "" || strings.Contains(raceID, "/") {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}

	if podium {
		probs, err := h.deps.PredictPodium(r.Context(), raceID)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, probs)
		return
	}

	result, err := h.deps.PredictRace(r.Context(), raceID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
