// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/paddocklabs/gridcast/internal/domain/model"
	"github.com/paddocklabs/gridcast/internal/domain/types"
)

// ModelDependencies defines the interface for model lifecycle operations.
type ModelDependencies interface {
	ModelStatus(ctx context.Context) types.ModelStatus
	TriggerRetrain()
	RecordOutcome(ctx context.Context, raceID string, actual model.RaceOutcome) (model.AccuracyMetrics, error)
}

// ModelHandler handles model status and retrain requests.
type ModelHandler struct {
	deps ModelDependencies
}

// NewModelHandler creates a new model handler.
func NewModelHandler(deps ModelDependencies) *ModelHandler {
	return &ModelHandler{deps: deps}
}

// HandleStatus handles GET /model/status requests.
func (h *ModelHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, h.deps.ModelStatus(r.Context()))
}

// HandleRetrain handles POST /model/retrain requests. The retrain runs in
// the background; the response only acknowledges the trigger.
func (h *ModelHandler) HandleRetrain(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	h.deps.TriggerRetrain()
	writeJSON(w, http.StatusAccepted, ackResponse{Status: "retrain_triggered"})
}

// handleOutcome handles POST /races/{id}/outcome requests. It lives on the
// model handler because outcomes feed model performance tracking.
func (h *ModelHandler) handleOutcome(w http.ResponseWriter, r *http.Request, raceID string) {
	const op = "api.post_outcome"

	var req outcomeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	acc, err := h.deps.RecordOutcome(r.Context(), raceID, model.RaceOutcome{
		Winner: req.Winner,
		Top3:   req.Top3,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, acc)
}
