package feature_test

import (
	"testing"
	"time"

	"github.com/paddocklabs/gridcast/internal/domain/feature"
	"github.com/paddocklabs/gridcast/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestFromSnapshot(t *testing.T) {
	Convey("Given a live race snapshot", t, func() {
		snap := model.RaceSnapshot{
			RaceID:     "monaco-2026",
			CurrentLap: 29,
			TotalLaps:  58,
			Positions: []model.DriverPosition{
				{Position: 2, Driver: "hamilton", GapSecs: 5.2},
				{Position: 1, Driver: "verstappen", GapSecs: 0},
				{Position: 3, Driver: "leclerc", GapSecs: 12.5},
			},
			LapTimes: map[string][]float64{
				"verstappen": {92.0, 91.0, 90.0},
				"hamilton":   {92.5, 91.5},
			},
			Tires: map[string]model.TireState{
				"verstappen": {Compound: "medium", AgeLaps: 15, PitStops: 1},
			},
			Weather:   model.Weather{TrackTempC: 28.5, Precipitation: false},
			SafetyCar: true,
			FetchedAt: time.Now(),
		}

		Convey("When building the feature vector", func() {
			v := feature.FromSnapshot(snap)

			Convey("Then candidates are ordered by running position", func() {
				So(v.Candidates, ShouldResemble, []string{"verstappen", "hamilton", "leclerc"})
			})

			Convey("Then global features are present", func() {
				So(v.Global[feature.Progress], ShouldEqual, 0.5)
				So(v.Global[feature.SafetyCar], ShouldEqual, 1)
				So(v.Global[feature.TrackTemp], ShouldEqual, 28.5)
				So(v.Global[feature.Precip], ShouldEqual, 0)
			})

			Convey("Then per-candidate features include position and gap", func() {
				pos, ok := v.Lookup("hamilton", feature.Position)
				So(ok, ShouldBeTrue)
				So(pos, ShouldEqual, 2)

				gap, ok := v.Lookup("leclerc", feature.GapSecs)
				So(ok, ShouldBeTrue)
				So(gap, ShouldEqual, 12.5)
			})

			Convey("Then lap pace averages over available laps", func() {
				pace, ok := v.Lookup("verstappen", feature.AvgPace)
				So(ok, ShouldBeTrue)
				So(pace, ShouldEqual, 91.0)
			})

			Convey("Then drivers without lap data omit the pace feature", func() {
				_, ok := v.Lookup("leclerc", feature.AvgPace)
				So(ok, ShouldBeFalse)
			})

			Convey("Then tire features flow through when present", func() {
				age, ok := v.Lookup("verstappen", feature.TireAge)
				So(ok, ShouldBeTrue)
				So(age, ShouldEqual, 15)
			})
		})
	})
}

func TestPreRace(t *testing.T) {
	Convey("Given pre-race grid entries", t, func() {
		ref := model.ParseRaceRef("monza-2026", 2025)
		entries := []feature.Entry{
			{Driver: "verstappen", GridPosition: 1, SeasonPoints: 310},
			{Driver: "norris", GridPosition: 2, SeasonPoints: 285},
		}

		Convey("When building the vector", func() {
			v := feature.PreRace(ref, entries)

			Convey("Then candidates keep entry order", func() {
				So(v.Candidates, ShouldResemble, []string{"verstappen", "norris"})
			})

			Convey("Then grid and standings features are set", func() {
				grid, ok := v.Lookup("norris", feature.GridPosition)
				So(ok, ShouldBeTrue)
				So(grid, ShouldEqual, 2)

				pts, ok := v.Lookup("verstappen", feature.SeasonPoints)
				So(ok, ShouldBeTrue)
				So(pts, ShouldEqual, 310)
			})

			Convey("Then an unknown candidate looks up to nothing", func() {
				So(v.Candidate("piastri"), ShouldBeNil)
				_, ok := v.Lookup("piastri", feature.GridPosition)
				So(ok, ShouldBeFalse)
			})
		})
	})
}
