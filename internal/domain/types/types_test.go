package types_test

import (
	"testing"
	"time"

	types "github.com/paddocklabs/gridcast/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

func TestSessionInfo(t *testing.T) {
	Convey("Given a SessionInfo struct", t, func() {
		Convey("When creating an active session view", func() {
			started := time.Now()
			info := types.SessionInfo{
				RaceID:          "monaco-2026",
				Status:          "active",
				StartedAt:       started,
				PredictionCount: 12,
			}

			Convey("Then it should hold the provided values", func() {
				So(info.RaceID, ShouldEqual, "monaco-2026")
				So(info.Status, ShouldEqual, "active")
				So(info.StartedAt, ShouldEqual, started)
				So(info.PredictionCount, ShouldEqual, 12)
			})
		})

		Convey("When creating a zero-value session view", func() {
			info := types.SessionInfo{}

			Convey("Then it should have defaults", func() {
				So(info.RaceID, ShouldBeEmpty)
				So(info.Status, ShouldBeEmpty)
				So(info.PredictionCount, ShouldEqual, 0)
			})
		})
	})
}

func TestModelStatus(t *testing.T) {
	Convey("Given a ModelStatus struct", t, func() {
		Convey("When populated with lifecycle data", func() {
			status := types.ModelStatus{
				Loaded: true,
				State:  "loaded",
				Versions: map[string]string{
					"form": "v1",
					"grid": "v1",
					"pace": "v1",
				},
				Performance: types.PerformanceSummary{
					AvgOverallAccuracy: 0.82,
					RecordCount:        7,
				},
			}

			Convey("Then the read shape is complete", func() {
				So(status.Loaded, ShouldBeTrue)
				So(status.Versions, ShouldContainKey, "grid")
				So(status.Performance.AvgOverallAccuracy, ShouldEqual, 0.82)
				So(status.Performance.RecordCount, ShouldEqual, 7)
			})
		})

		Convey("When no predictions have been recorded yet", func() {
			status := types.ModelStatus{Loaded: true, State: "loaded"}

			Convey("Then the performance summary is empty but valid", func() {
				So(status.Performance.RecordCount, ShouldEqual, 0)
				So(status.Performance.AvgOverallAccuracy, ShouldEqual, 0)
			})
		})
	})
}
