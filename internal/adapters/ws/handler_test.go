package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	"golang.org/x/net/websocket"

	"github.com/paddocklabs/gridcast/internal/adapters/racedata"
	"github.com/paddocklabs/gridcast/internal/domain/ensemble"
	"github.com/paddocklabs/gridcast/internal/domain/model"
	"github.com/paddocklabs/gridcast/internal/live"
)

// staticPredictor serves one fixed combiner.
type staticPredictor struct {
	c *ensemble.Combiner
}

func (p staticPredictor) Combiner() *ensemble.Combiner { return p.c }

func testEngine() *live.Engine {
	src := racedata.NewSimSource(
		racedata.WithLatencyRange(0, time.Millisecond),
		racedata.WithLapDuration(time.Minute),
	)
	predictor := staticPredictor{
		c: ensemble.NewCombiner(ensemble.AsUnits(ensemble.NewDefaultUnits())),
	}
	return live.NewEngine(predictor, src, live.NewRegistry(),
		live.WithTickInterval(10*time.Millisecond))
}

func dialWS(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := strings.Replace(srv.URL, "http://", "ws://", 1)
	conn, err := websocket.Dial(wsURL, "", srv.URL)
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	return conn
}

func sendFrame(t *testing.T, conn *websocket.Conn, f frame) {
	t.Helper()
	if err := json.NewEncoder(conn).Encode(f); err != nil {
		t.Fatalf("send frame: %v", err)
	}
}

// readFrameOfType skips frames until one of the wanted type arrives.
func readFrameOfType(t *testing.T, dec *json.Decoder, wanted string) frame {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		var f frame
		if err := dec.Decode(&f); err != nil {
			t.Fatalf("read frame: %v", err)
		}
		if f.Type == wanted {
			return f
		}
	}
	t.Fatalf("no %q frame before deadline", wanted)
	return frame{}
}

func TestWebsocketProtocol(t *testing.T) {
	ctx := context.Background()

	Convey("Given a live engine with one active race", t, func() {
		engine := testEngine()
		defer engine.Stop()
		_, err := engine.StartRace(ctx, "monaco-2026")
		So(err, ShouldBeNil)

		srv := httptest.NewServer(NewHandler(engine).HTTPHandler())
		defer srv.Close()

		Convey("When a client connects", func() {
			conn := dialWS(t, srv)
			defer conn.Close()
			dec := json.NewDecoder(conn)

			Convey("Then a welcome frame lists the active races", func() {
				welcome := readFrameOfType(t, dec, frameWelcome)
				var payload welcomePayload
				So(json.Unmarshal(welcome.Payload, &payload), ShouldBeNil)
				So(payload.ActiveRaces, ShouldHaveLength, 1)
				So(payload.ActiveRaces[0].RaceID, ShouldEqual, "monaco-2026")
			})

			Convey("Then subscribing streams prediction frames", func() {
				readFrameOfType(t, dec, frameWelcome)
				sendFrame(t, conn, frame{
					Type:    frameSubscribe,
					Payload: mustJSON(subscribePayload{RaceID: "monaco-2026"}),
				})

				pred := readFrameOfType(t, dec, framePrediction)
				var got struct {
					RaceID     string `json:"race_id"`
					CurrentLap int    `json:"current_lap"`
				}
				So(json.Unmarshal(pred.Payload, &got), ShouldBeNil)
				So(got.RaceID, ShouldEqual, "monaco-2026")
				So(got.CurrentLap, ShouldBeGreaterThan, 0)
			})

			Convey("Then subscribing twice yields an error frame", func() {
				readFrameOfType(t, dec, frameWelcome)
				sendFrame(t, conn, frame{
					Type:    frameSubscribe,
					Payload: mustJSON(subscribePayload{RaceID: "monaco-2026"}),
				})
				sendFrame(t, conn, frame{
					Type:    frameSubscribe,
					Payload: mustJSON(subscribePayload{RaceID: "monaco-2026"}),
				})

				errFrame := readFrameOfType(t, dec, frameError)
				var payload errorPayload
				So(json.Unmarshal(errFrame.Payload, &payload), ShouldBeNil)
				So(payload.Code, ShouldEqual, codeAlreadySubscribed)
			})

			Convey("Then an inactive race gets an explicit error", func() {
				readFrameOfType(t, dec, frameWelcome)
				sendFrame(t, conn, frame{
					Type:    frameSubscribe,
					Payload: mustJSON(subscribePayload{RaceID: "nowhere-2026"}),
				})

				errFrame := readFrameOfType(t, dec, frameError)
				var payload errorPayload
				So(json.Unmarshal(errFrame.Payload, &payload), ShouldBeNil)
				So(payload.Code, ShouldEqual, codeRaceNotActive)
				So(payload.Message, ShouldContainSubstring, "nowhere-2026")
			})

			Convey("Then get_active_races returns the listing", func() {
				readFrameOfType(t, dec, frameWelcome)
				sendFrame(t, conn, frame{Type: frameGetActiveRaces})

				listing := readFrameOfType(t, dec, frameActiveRaces)
				var payload activeRacesPayload
				So(json.Unmarshal(listing.Payload, &payload), ShouldBeNil)
				So(payload.ActiveRaces, ShouldHaveLength, 1)
			})

			Convey("Then an unknown frame type is rejected", func() {
				readFrameOfType(t, dec, frameWelcome)
				sendFrame(t, conn, frame{Type: "warp_drive"})

				errFrame := readFrameOfType(t, dec, frameError)
				var payload errorPayload
				So(json.Unmarshal(errFrame.Payload, &payload), ShouldBeNil)
				So(payload.Code, ShouldEqual, codeUnsupportedType)
			})
		})
	})
}

// stallingSource serves one good snapshot and then fails, so no further
// predictions are produced after the first.
type stallingSource struct {
	racedata.Source
	served atomic.Bool
}

func (s *stallingSource) Snapshot(ctx context.Context, raceID string) (model.RaceSnapshot, error) {
	if s.served.CompareAndSwap(false, true) {
		return s.Source.Snapshot(ctx, raceID)
	}
	return model.RaceSnapshot{}, errors.New("feed stalled")
}

func TestWebsocketSubscribeCatchUp(t *testing.T) {
	ctx := context.Background()

	Convey("Given a race whose feed stalled after one prediction", t, func() {
		src := &stallingSource{Source: racedata.NewSimSource(
			racedata.WithLatencyRange(0, time.Millisecond),
			racedata.WithLapDuration(time.Minute),
		)}
		engine := live.NewEngine(staticPredictor{
			c: ensemble.NewCombiner(ensemble.AsUnits(ensemble.NewDefaultUnits())),
		}, src, live.NewRegistry(), live.WithTickInterval(10*time.Millisecond))
		defer engine.Stop()
		_, err := engine.StartRace(ctx, "monza-2026")
		So(err, ShouldBeNil)

		deadline := time.Now().Add(3 * time.Second)
		for time.Now().Before(deadline) {
			races := engine.ActiveRaces()
			if len(races) == 1 && races[0].LastPrediction != nil {
				break
			}
			time.Sleep(10 * time.Millisecond)
		}
		So(engine.ActiveRaces()[0].LastPrediction, ShouldNotBeNil)

		srv := httptest.NewServer(NewHandler(engine).HTTPHandler())
		defer srv.Close()

		Convey("When a client subscribes after the stall", func() {
			conn := dialWS(t, srv)
			defer conn.Close()
			dec := json.NewDecoder(conn)
			readFrameOfType(t, dec, frameWelcome)
			sendFrame(t, conn, frame{
				Type:    frameSubscribe,
				Payload: mustJSON(subscribePayload{RaceID: "monza-2026"}),
			})

			Convey("Then the retained prediction is replayed without a fresh tick", func() {
				pred := readFrameOfType(t, dec, framePrediction)
				var got struct {
					RaceID     string `json:"race_id"`
					CurrentLap int    `json:"current_lap"`
				}
				So(json.Unmarshal(pred.Payload, &got), ShouldBeNil)
				So(got.RaceID, ShouldEqual, "monza-2026")
				So(got.CurrentLap, ShouldBeGreaterThan, 0)
			})
		})
	})
}

func TestWebsocketDisconnect(t *testing.T) {
	ctx := context.Background()

	Convey("Given a subscribed client", t, func() {
		src := racedata.NewSimSource(
			racedata.WithLatencyRange(0, time.Millisecond),
			racedata.WithLapDuration(time.Minute),
		)
		registry := live.NewRegistry()
		engine := live.NewEngine(staticPredictor{
			c: ensemble.NewCombiner(ensemble.AsUnits(ensemble.NewDefaultUnits())),
		}, src, registry, live.WithTickInterval(10*time.Millisecond))
		defer engine.Stop()
		_, err := engine.StartRace(ctx, "spa-2026")
		So(err, ShouldBeNil)

		srv := httptest.NewServer(NewHandler(engine).HTTPHandler())
		defer srv.Close()

		conn := dialWS(t, srv)
		defer conn.Close()
		dec := json.NewDecoder(conn)
		readFrameOfType(t, dec, frameWelcome)
		sendFrame(t, conn, frame{
			Type:    frameSubscribe,
			Payload: mustJSON(subscribePayload{RaceID: "spa-2026"}),
		})
		readFrameOfType(t, dec, framePrediction)

		Convey("When the client sends a disconnect frame", func() {
			sendFrame(t, conn, frame{Type: frameDisconnect})

			Convey("Then the server releases the subscription", func() {
				deadline := time.Now().Add(3 * time.Second)
				for time.Now().Before(deadline) && registry.Count("spa-2026") > 0 {
					time.Sleep(10 * time.Millisecond)
				}
				So(registry.Count("spa-2026"), ShouldEqual, 0)
			})
		})
	})
}
