// Command replay drives a running gridcast instance end to end: it opens a
// live session, subscribes to the websocket feed, prints the prediction
// stream, and optionally records an outcome when it stops watching.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"time"

	"golang.org/x/net/websocket"
)

type frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type prediction struct {
	Winner     string   `json:"winner"`
	Confidence float64  `json:"confidence"`
	Ranking    []string `json:"ranking"`
	CurrentLap int      `json:"current_lap"`
}

func main() {
	var (
		addr     = flag.String("addr", "http://localhost:8900", "gridcast base URL")
		raceID   = flag.String("race", "monaco-2026", "race to watch")
		duration = flag.Duration("duration", 30*time.Second, "how long to watch the feed")
		outcome  = flag.Bool("outcome", false, "record the last prediction as the race outcome on exit")
	)
	flag.Parse()

	if err := run(*addr, *raceID, *duration, *outcome); err != nil {
		fmt.Fprintln(os.Stderr, "replay:", err)
		os.Exit(1)
	}
}

func run(addr, raceID string, duration time.Duration, recordOutcome bool) error {
	if err := post(addr+"/races/"+raceID+"/start", nil); err != nil {
		return fmt.Errorf("start race: %w", err)
	}
	defer func() { _ = post(addr+"/races/"+raceID+"/stop", nil) }()

	conn, err := dial(addr)
	if err != nil {
		return fmt.Errorf("dial websocket: %w", err)
	}
	defer conn.Close()

	sub, _ := json.Marshal(map[string]string{"race_id": raceID})
	if err := json.NewEncoder(conn).Encode(frame{Type: "subscribe", Payload: sub}); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	deadline := time.Now().Add(duration)
	dec := json.NewDecoder(conn)
	var last prediction
	for time.Now().Before(deadline) {
		_ = conn.SetReadDeadline(deadline)

		var f frame
		if err := dec.Decode(&f); err != nil {
			break
		}
		switch f.Type {
		case "welcome":
			fmt.Printf("connected, watching %s\n", raceID)
		case "prediction":
			if err := json.Unmarshal(f.Payload, &last); err != nil {
				continue
			}
			fmt.Printf("lap %3d  winner=%-12s confidence=%.2f\n", last.CurrentLap, last.Winner, last.Confidence)
		case "error":
			return fmt.Errorf("feed error: %s", string(f.Payload))
		}
	}

	if recordOutcome && len(last.Ranking) >= 3 {
		body, _ := json.Marshal(map[string]any{
			"winner": last.Winner,
			"top_3":  last.Ranking[:3],
		})
		if err := post(addr+"/races/"+raceID+"/outcome", body); err != nil {
			return fmt.Errorf("record outcome: %w", err)
		}
		fmt.Printf("recorded outcome: winner=%s\n", last.Winner)
	}
	return nil
}

// dial opens the websocket feed for the given HTTP base URL.
func dial(addr string) (*websocket.Conn, error) {
	u, err := url.Parse(addr)
	if err != nil {
		return nil, fmt.Errorf("parse addr: %w", err)
	}
	wsURL := "ws://" + u.Host + "/ws"
	if u.Scheme == "https" {
		wsURL = "wss://" + u.Host + "/ws"
	}
	conn, err := websocket.Dial(wsURL, "", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", wsURL, err)
	}
	return conn, nil
}

func post(rawURL string, body []byte) error {
	resp, err := http.Post(rawURL, "application/json", bytes.NewReader(body)) //nolint:gosec // operator-supplied URL
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("%s: HTTP %d", rawURL, resp.StatusCode)
	}
	return nil
}
