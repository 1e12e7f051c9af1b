package racedata

import (
	"context"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/paddocklabs/gridcast/internal/domain/model"
)

func fastSim(opts ...Option) *SimSource {
	base := []Option{WithLatencyRange(0, time.Millisecond)}
	return NewSimSource(append(base, opts...)...)
}

func TestSimSnapshot(t *testing.T) {
	ctx := context.Background()

	Convey("Given a simulated feed with a frozen clock", t, func() {
		now := time.Date(2026, 5, 24, 14, 0, 0, 0, time.UTC)
		src := fastSim(
			WithLapDuration(time.Minute),
			WithClock(func() time.Time { return now }),
		)

		Convey("When fetching the first snapshot", func() {
			snap, err := src.Snapshot(ctx, "monaco-2026")
			So(err, ShouldBeNil)

			Convey("Then the field is complete and ordered", func() {
				So(snap.CurrentLap, ShouldEqual, 1)
				So(snap.Positions, ShouldHaveLength, len(src.Roster()))
				So(snap.Positions[0].Position, ShouldEqual, 1)
				So(snap.Positions[0].GapSecs, ShouldEqual, 0)
				So(snap.Positions[5].GapSecs, ShouldBeGreaterThan, snap.Positions[1].GapSecs)
			})

			Convey("Then lap times and tires cover every driver", func() {
				So(snap.LapTimes, ShouldHaveLength, len(snap.Positions))
				So(snap.Tires, ShouldHaveLength, len(snap.Positions))
			})

			Convey("Then the same race replays identically", func() {
				other := fastSim(
					WithLapDuration(time.Minute),
					WithClock(func() time.Time { return now }),
				)
				again, err := other.Snapshot(ctx, "monaco-2026")
				So(err, ShouldBeNil)
				So(again.Positions, ShouldResemble, snap.Positions)
			})
		})

		Convey("When the clock advances past the total laps", func() {
			first, err := src.Snapshot(ctx, "spa-2026")
			So(err, ShouldBeNil)

			now = now.Add(time.Duration(first.TotalLaps+1) * time.Minute)
			_, err = src.Snapshot(ctx, "spa-2026")
			So(err, ShouldEqual, ErrRaceFinished)
		})
	})

	Convey("Given a cancelled context", t, func() {
		src := NewSimSource()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		Convey("Then the fetch aborts", func() {
			_, err := src.Snapshot(ctx, "monza-2026")
			So(err, ShouldNotBeNil)
		})
	})
}

func TestSimGridAndHistory(t *testing.T) {
	ctx := context.Background()

	Convey("Given a simulated feed", t, func() {
		src := fastSim()

		Convey("When fetching a grid", func() {
			ref := model.ParseRaceRef("silverstone-2026", 2026)
			entries, err := src.Grid(ctx, ref)
			So(err, ShouldBeNil)

			Convey("Then every roster driver qualifies exactly once", func() {
				So(entries, ShouldHaveLength, len(src.Roster()))
				seen := map[string]bool{}
				for i, e := range entries {
					So(e.GridPosition, ShouldEqual, i+1)
					So(seen[e.Driver], ShouldBeFalse)
					seen[e.Driver] = true
				}
			})
		})

		Convey("When fetching training history", func() {
			samples, err := src.History(ctx, 5)
			So(err, ShouldBeNil)

			Convey("Then each sample carries features and an outcome", func() {
				So(samples, ShouldHaveLength, 5)
				for _, s := range samples {
					So(s.Features.Candidates, ShouldHaveLength, len(src.Roster()))
					So(s.Outcome.Winner, ShouldNotBeEmpty)
					So(s.Outcome.Top3, ShouldHaveLength, 3)
					So(s.Outcome.Top3[0], ShouldEqual, s.Outcome.Winner)
				}
			})
		})

		Convey("When requesting an empty history", func() {
			_, err := src.History(ctx, 0)
			So(err, ShouldEqual, ErrNoHistory)
		})
	})
}
