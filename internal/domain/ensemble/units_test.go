package ensemble

import (
	"context"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/paddocklabs/gridcast/internal/domain/feature"
	"github.com/paddocklabs/gridcast/internal/domain/model"
)

func trainingHistory() []TrainingSample {
	samples := make([]TrainingSample, 0, 6)
	for i := 0; i < 6; i++ {
		v := vectorOf("verstappen", "norris", "leclerc")
		v.ByCandidate["verstappen"][feature.GridPosition] = 1
		v.ByCandidate["norris"][feature.GridPosition] = 2
		v.ByCandidate["leclerc"][feature.GridPosition] = 5
		samples = append(samples, TrainingSample{
			RaceID:   "race",
			Features: v,
			Outcome: model.RaceOutcome{
				Winner: "verstappen",
				Top3:   []string{"verstappen", "norris", "leclerc"},
			},
		})
	}
	return samples
}

func TestFormUnit(t *testing.T) {
	ctx := context.Background()

	Convey("Given a fresh form unit", t, func() {
		u := NewFormUnit(DefaultFormWeight)

		Convey("Then it reports untrained and refuses to predict", func() {
			So(u.Trained(), ShouldBeFalse)
			_, err := u.Predict(ctx, vectorOf("verstappen"))
			So(err, ShouldEqual, ErrUntrained)
		})

		Convey("When trained on a consistent history", func() {
			So(u.Train(ctx, trainingHistory()), ShouldBeNil)

			Convey("Then it favors the repeat winner", func() {
				pred, err := u.Predict(ctx, vectorOf("verstappen", "norris", "leclerc"))
				So(err, ShouldBeNil)
				So(pred.Winner, ShouldEqual, "verstappen")
				So(pred.WinProbabilities["verstappen"], ShouldBeGreaterThan, pred.WinProbabilities["norris"])
			})

			Convey("Then it tags a version", func() {
				So(u.Trained(), ShouldBeTrue)
				So(u.Version(), ShouldNotBeEmpty)
			})

			Convey("Then parameters round-trip through Restore", func() {
				p := u.Params()
				restored := NewFormUnit(DefaultFormWeight)
				So(restored.Restore(p), ShouldBeNil)
				So(restored.Trained(), ShouldBeTrue)
				So(restored.Version(), ShouldEqual, u.Version())

				a, _ := u.Predict(ctx, vectorOf("verstappen", "norris"))
				b, _ := restored.Predict(ctx, vectorOf("verstappen", "norris"))
				So(b.WinProbabilities, ShouldResemble, a.WinProbabilities)
			})
		})

		Convey("When trained with no samples", func() {
			So(u.Train(ctx, nil), ShouldEqual, ErrNoSamples)
		})
	})
}

func TestGridUnit(t *testing.T) {
	ctx := context.Background()

	Convey("Given an untrained grid unit", t, func() {
		u := NewGridUnit(DefaultGridWeight)

		v := vectorOf("verstappen", "norris", "leclerc")
		v.ByCandidate["verstappen"][feature.GridPosition] = 1
		v.ByCandidate["norris"][feature.GridPosition] = 3
		v.ByCandidate["leclerc"][feature.GridPosition] = 10

		Convey("Then it predicts from default parameters", func() {
			pred, err := u.Predict(ctx, v)
			So(err, ShouldBeNil)
			So(pred.Winner, ShouldEqual, "verstappen")
			So(pred.WinProbabilities["verstappen"], ShouldBeGreaterThan, pred.WinProbabilities["leclerc"])
		})

		Convey("Then podium probabilities follow grid order", func() {
			podium, err := u.PredictPodium(ctx, v)
			So(err, ShouldBeNil)
			So(podium, ShouldHaveLength, 3)
			So(podium[0], ShouldBeGreaterThan, podium[2])
			for _, p := range podium {
				So(p, ShouldBeBetweenOrEqual, 0, 1)
			}
		})

		Convey("Then a vector with no positional features fails", func() {
			_, err := u.Predict(ctx, vectorOf("verstappen"))
			So(err, ShouldEqual, ErrNoFeatures)
		})

		Convey("When trained, the midpoint tracks the winning slots", func() {
			So(u.Train(ctx, trainingHistory()), ShouldBeNil)
			So(u.Trained(), ShouldBeTrue)
			So(u.Params().Scalars[gridScalarMidpoint], ShouldAlmostEqual, 3, 1e-9)
		})
	})
}

func TestPaceUnit(t *testing.T) {
	ctx := context.Background()

	Convey("Given a pace unit and a live vector", t, func() {
		u := NewPaceUnit(DefaultPaceWeight)

		v := vectorOf("verstappen", "hamilton")
		v.Global[feature.CurrentLap] = 20
		v.ByCandidate["verstappen"][feature.Position] = 1
		v.ByCandidate["verstappen"][feature.AvgPace] = 90.0
		v.ByCandidate["hamilton"][feature.Position] = 2
		v.ByCandidate["hamilton"][feature.AvgPace] = 91.0

		Convey("Then the faster car leads the distribution", func() {
			pred, err := u.Predict(ctx, v)
			So(err, ShouldBeNil)
			So(pred.Winner, ShouldEqual, "verstappen")
			So(pred.WinProbabilities["verstappen"], ShouldBeGreaterThan, 0.5)
		})

		Convey("Then a vector without pace data fails", func() {
			_, err := u.Predict(ctx, vectorOf("verstappen"))
			So(err, ShouldEqual, ErrNoFeatures)
		})

		Convey("Then parameters round-trip through Restore", func() {
			So(u.Train(ctx, trainingHistory()), ShouldBeNil)
			p := u.Params()

			restored := NewPaceUnit(DefaultPaceWeight)
			So(restored.Restore(p), ShouldBeNil)
			So(restored.Params().Scalars, ShouldResemble, p.Scalars)
			So(restored.Version(), ShouldEqual, u.Version())
		})
	})
}

func TestNewDefaultUnits(t *testing.T) {
	Convey("Given the stock unit set", t, func() {
		units := NewDefaultUnits()

		Convey("Then weights cover form, grid and pace", func() {
			So(units, ShouldHaveLength, 3)
			var total float64
			for _, u := range units {
				total += u.Weight()
			}
			So(total, ShouldAlmostEqual, 1.0, 1e-9)
		})

		Convey("Then AsUnits widens without loss", func() {
			So(AsUnits(units), ShouldHaveLength, 3)
		})
	})
}
