package ws

import (
	"encoding/json"

	"github.com/paddocklabs/gridcast/internal/domain/types"
)

// Inbound frame types.
const (
	frameSubscribe      = "subscribe"
	frameGetActiveRaces = "get_active_races"
	frameDisconnect     = "disconnect"
)

// Outbound frame types.
const (
	frameWelcome     = "welcome"
	framePrediction  = "prediction"
	frameActiveRaces = "active_races"
	frameError       = "error"
)

// Error codes carried in error frames.
const (
	codeInvalidPayload    = "invalid_payload"
	codeUnsupportedType   = "unsupported_type"
	codeRaceNotActive     = "race_not_active"
	codeAlreadySubscribed = "already_subscribed"
)

// frame is the wire envelope in both directions.
type frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type subscribePayload struct {
	RaceID string `json:"race_id"`
}

type welcomePayload struct {
	Message     string              `json:"message"`
	ActiveRaces []types.SessionInfo `json:"active_races"`
}

type activeRacesPayload struct {
	ActiveRaces []types.SessionInfo `json:"active_races"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
