package live

import (
	"context"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/paddocklabs/gridcast/internal/adapters/racedata"
	"github.com/paddocklabs/gridcast/internal/domain/ensemble"
)

// staticPredictor serves one fixed combiner.
type staticPredictor struct {
	c *ensemble.Combiner
}

func (p staticPredictor) Combiner() *ensemble.Combiner { return p.c }

func testPredictor() staticPredictor {
	return staticPredictor{
		c: ensemble.NewCombiner(ensemble.AsUnits(ensemble.NewDefaultUnits())),
	}
}

func fastSource(opts ...racedata.Option) *racedata.SimSource {
	base := []racedata.Option{
		racedata.WithLatencyRange(0, time.Millisecond),
		racedata.WithLapDuration(time.Minute),
	}
	return racedata.NewSimSource(append(base, opts...)...)
}

func waitFor(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func TestEngineSessions(t *testing.T) {
	ctx := context.Background()

	Convey("Given an engine with a fast tick", t, func() {
		e := NewEngine(testPredictor(), fastSource(), NewRegistry(),
			WithTickInterval(10*time.Millisecond))
		defer e.Stop()

		Convey("When starting a race", func() {
			info, err := e.StartRace(ctx, "monaco-2026")
			So(err, ShouldBeNil)
			So(info.RaceID, ShouldEqual, "monaco-2026")
			So(e.IsActive("monaco-2026"), ShouldBeTrue)

			Convey("Then starting it again is rejected", func() {
				_, err := e.StartRace(ctx, "monaco-2026")
				So(err, ShouldEqual, ErrAlreadyActive)
			})

			Convey("Then a subscriber receives live predictions", func() {
				sub, err := e.Subscribe("monaco-2026")
				So(err, ShouldBeNil)

				select {
				case pred := <-sub.C:
					So(pred.RaceID, ShouldEqual, "monaco-2026")
					So(pred.CurrentLap, ShouldBeGreaterThan, 0)
					So(pred.PositionChanges, ShouldNotBeNil)
					So(pred.PitWindows, ShouldNotBeNil)
				case <-time.After(2 * time.Second):
					t.Fatal("no prediction received")
				}
			})

			Convey("Then stopping closes subscriber channels", func() {
				sub, err := e.Subscribe("monaco-2026")
				So(err, ShouldBeNil)

				So(e.StopRace("monaco-2026"), ShouldBeNil)
				So(e.IsActive("monaco-2026"), ShouldBeFalse)

				ok := waitFor(time.Second, func() bool {
					for {
						select {
						case _, open := <-sub.C:
							if !open {
								return true
							}
						default:
							return false
						}
					}
				})
				So(ok, ShouldBeTrue)
			})

			Convey("Then active races list the session", func() {
				_, err := e.StartRace(ctx, "spa-2026")
				So(err, ShouldBeNil)

				races := e.ActiveRaces()
				So(races, ShouldHaveLength, 2)
				So(races[0].RaceID, ShouldEqual, "monaco-2026")
				So(races[1].RaceID, ShouldEqual, "spa-2026")
			})
		})

		Convey("When touching an inactive race", func() {
			_, err := e.Subscribe("nowhere-2026")
			So(err, ShouldEqual, ErrNotActive)
			So(e.StopRace("nowhere-2026"), ShouldEqual, ErrNotActive)
		})
	})
}

func TestEngineLastPrediction(t *testing.T) {
	ctx := context.Background()

	Convey("Given a race that has already produced predictions", t, func() {
		e := NewEngine(testPredictor(), fastSource(), NewRegistry(),
			WithTickInterval(10*time.Millisecond))
		defer e.Stop()

		_, err := e.StartRace(ctx, "monaco-2026")
		So(err, ShouldBeNil)

		So(waitFor(2*time.Second, func() bool {
			races := e.ActiveRaces()
			return len(races) == 1 && races[0].LastPrediction != nil
		}), ShouldBeTrue)

		Convey("When a new consumer subscribes", func() {
			sub, err := e.Subscribe("monaco-2026")
			So(err, ShouldBeNil)

			Convey("Then it starts from the retained prediction", func() {
				So(sub.Last, ShouldNotBeNil)
				So(sub.Last.RaceID, ShouldEqual, "monaco-2026")
				So(sub.Last.CurrentLap, ShouldBeGreaterThan, 0)
			})
		})

		Convey("Then the session info carries the retained prediction", func() {
			races := e.ActiveRaces()
			So(races[0].LastPrediction, ShouldNotBeNil)
			So(races[0].LastPrediction.RaceID, ShouldEqual, "monaco-2026")
		})
	})
}

func TestEngineDefaults(t *testing.T) {
	Convey("Given an engine built with no options", t, func() {
		e := NewEngine(testPredictor(), fastSource(), NewRegistry())
		defer e.Stop()

		Convey("Then the expiry sweep runs once a minute", func() {
			So(e.sweep, ShouldEqual, time.Minute)
		})
	})
}

func TestEngineIdleExpiry(t *testing.T) {
	ctx := context.Background()

	Convey("Given an engine with a short idle window", t, func() {
		e := NewEngine(testPredictor(), fastSource(), NewRegistry(),
			WithTickInterval(10*time.Millisecond),
			WithSweepInterval(10*time.Millisecond),
			WithIdleExpiry(30*time.Millisecond))
		e.Start(ctx)
		defer e.Stop()

		Convey("When a race runs with no subscribers", func() {
			_, err := e.StartRace(ctx, "suzuka-2026")
			So(err, ShouldBeNil)

			Convey("Then the session expires on its own", func() {
				So(waitFor(2*time.Second, func() bool {
					return !e.IsActive("suzuka-2026")
				}), ShouldBeTrue)
			})
		})
	})
}

func TestEngineDurationCap(t *testing.T) {
	ctx := context.Background()

	Convey("Given an engine with a tiny session cap", t, func() {
		e := NewEngine(testPredictor(), fastSource(), NewRegistry(),
			WithTickInterval(10*time.Millisecond),
			WithSweepInterval(10*time.Millisecond),
			WithMaxSessionDuration(20*time.Millisecond))
		e.Start(ctx)
		defer e.Stop()

		Convey("When a race outlives the cap despite a subscriber", func() {
			_, err := e.StartRace(ctx, "monza-2026")
			So(err, ShouldBeNil)
			sub, err := e.Subscribe("monza-2026")
			So(err, ShouldBeNil)

			// Keep draining so the subscriber never stalls.
			go func() {
				for range sub.C { //nolint:revive // drain until closed
				}
			}()

			Convey("Then the session is closed anyway", func() {
				So(waitFor(2*time.Second, func() bool {
					return !e.IsActive("monza-2026")
				}), ShouldBeTrue)
			})
		})
	})
}

func TestEngineRaceFinished(t *testing.T) {
	ctx := context.Background()

	Convey("Given a race that runs out of laps almost immediately", t, func() {
		src := racedata.NewSimSource(
			racedata.WithLatencyRange(0, time.Millisecond),
			racedata.WithLapDuration(time.Millisecond),
		)
		e := NewEngine(testPredictor(), src, NewRegistry(),
			WithTickInterval(10*time.Millisecond))
		defer e.Stop()

		Convey("When monitoring it", func() {
			_, err := e.StartRace(ctx, "vegas-2026")
			So(err, ShouldBeNil)

			Convey("Then the session closes itself at the flag", func() {
				So(waitFor(3*time.Second, func() bool {
					return !e.IsActive("vegas-2026")
				}), ShouldBeTrue)
			})
		})
	})
}
