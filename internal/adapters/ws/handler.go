// Package ws exposes the live prediction feed over a websocket endpoint.
//
// The protocol is a small JSON frame exchange: a client subscribes to an
// active race and receives prediction frames until it disconnects or the
// session closes. Requests for inactive races get an explicit error frame
// instead of a silent no-op.
package ws

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"

	"golang.org/x/net/websocket"

	"github.com/paddocklabs/gridcast/internal/live"
	"github.com/paddocklabs/gridcast/pkg/logger"
	"github.com/paddocklabs/gridcast/pkg/metrics"
)

const maxDecodeErrorsPerConn = 5

// Handler serves the websocket feed endpoint.
type Handler struct {
	engine *live.Engine
	log    logger.Logger
}

// Option applies a configuration option to the Handler.
type Option func(*Handler)

// WithLogger overrides the handler's logger.
func WithLogger(log logger.Logger) Option {
	return func(h *Handler) {
		h.log = log
	}
}

// NewHandler creates a websocket handler over the live engine.
func NewHandler(engine *live.Engine, opts ...Option) *Handler {
	h := &Handler{
		engine: engine,
		log:    logger.Named("ws"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HTTPHandler returns the endpoint handler. Only GET upgrades are accepted.
func (h *Handler) HTTPHandler() http.Handler {
	wsHandler := websocket.Handler(h.serve)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		wsHandler.ServeHTTP(w, r)
	})
}

// peer serializes frame writes; the prediction pump and the request loop
// share one connection.
type peer struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func (p *peer) write(f frame) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enc.Encode(f)
}

func (p *peer) writeError(code, message string) {
	payload, _ := json.Marshal(errorPayload{Code: code, Message: message})
	_ = p.write(frame{Type: frameError, Payload: payload})
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}

// serve runs one client connection until it disconnects.
func (h *Handler) serve(conn *websocket.Conn) {
	defer func() {
		_ = conn.Close()
	}()

	p := &peer{enc: json.NewEncoder(conn)}
	decoder := json.NewDecoder(conn)

	subs := map[string]*live.Subscription{}
	var wg sync.WaitGroup
	defer func() {
		for raceID, sub := range subs {
			h.engine.Unsubscribe(raceID, sub.ID)
		}
		wg.Wait()
	}()

	_ = p.write(frame{
		Type: frameWelcome,
		Payload: mustJSON(welcomePayload{
			Message:     "connected to live prediction feed",
			ActiveRaces: h.engine.ActiveRaces(),
		}),
	})

	decodeErrors := 0
	for {
		var f frame
		if err := decoder.Decode(&f); err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			decodeErrors++
			metrics.RecordErrorByComponent("ws", "decode_error")
			p.writeError(codeInvalidPayload, "invalid frame payload")
			if decodeErrors >= maxDecodeErrorsPerConn {
				return
			}
			continue
		}
		decodeErrors = 0

		switch f.Type {
		case frameSubscribe:
			h.handleSubscribe(p, f, subs, &wg)
		case frameGetActiveRaces:
			_ = p.write(frame{
				Type:    frameActiveRaces,
				Payload: mustJSON(activeRacesPayload{ActiveRaces: h.engine.ActiveRaces()}),
			})
		case frameDisconnect:
			return
		default:
			p.writeError(codeUnsupportedType, "unsupported frame type")
		}
	}
}

func (h *Handler) handleSubscribe(p *peer, f frame, subs map[string]*live.Subscription, wg *sync.WaitGroup) {
	var payload subscribePayload
	if err := json.Unmarshal(f.Payload, &payload); err != nil || payload.RaceID == "" {
		p.writeError(codeInvalidPayload, "race_id is required")
		return
	}

	if _, dup := subs[payload.RaceID]; dup {
		p.writeError(codeAlreadySubscribed, "already subscribed to "+payload.RaceID)
		return
	}

	sub, err := h.engine.Subscribe(payload.RaceID)
	if err != nil {
		if errors.Is(err, live.ErrNotActive) {
			p.writeError(codeRaceNotActive, "race "+payload.RaceID+" is not being monitored")
			return
		}
		p.writeError(codeInvalidPayload, err.Error())
		return
	}

	subs[payload.RaceID] = sub
	h.log.Debug("websocket subscriber attached",
		logger.String("race_id", payload.RaceID),
		logger.String("subscriber_id", sub.ID.String()))

	// Catch the subscriber up before the pump starts so it does not sit
	// frameless until the next tick.
	if sub.Last != nil {
		_ = p.write(frame{Type: framePrediction, Payload: mustJSON(*sub.Last)})
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		for pred := range sub.C {
			if err := p.write(frame{Type: framePrediction, Payload: mustJSON(pred)}); err != nil {
				return
			}
		}
	}()
}
