// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"net/http"
	"strings"
)

// RacesHandler handles live race session requests.
type RacesHandler struct {
	deps  Dependencies
	model *ModelHandler
}

// NewRacesHandler creates a new races handler.
func NewRacesHandler(deps Dependencies) *RacesHandler {
	return &RacesHandler{deps: deps, model: NewModelHandler(deps)}
}

// HandleList handles GET /races requests.
func (h *RacesHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	sessions := h.deps.ActiveRaces()
	writeJSON(w, http.StatusOK, map[string]any{
		"count": len(sessions),
		"races": sessions,
	})
}

// HandleRace routes POST /races/{id}/start, /races/{id}/stop and
// /races/{id}/outcome requests.
func (h *RacesHandler) HandleRace(w http.ResponseWriter, r *http.Request) {
	const op = "api.race_session"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}

	// Path shape: /races/{id}/{action}
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/races/"), "/")
	if len(parts) != 2 || parts[0] == "" {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}
	raceID, action := parts[0], parts[1]

	switch action {
	case "start":
		info, err := h.deps.StartRace(r.Context(), raceID)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, info)
	case "stop":
		if err := h.deps.StopRace(raceID); err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, ackResponse{Status: "stopped", RaceID: raceID})
	case "outcome":
		h.model.handleOutcome(w, r, raceID)
	default:
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
	}
}
