package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with default options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithPrometheusRegistry(registry))

			Convey("Then it should be created successfully", func() {
				So(manager, ShouldNotBeNil)
			})
		})

		Convey("When creating with custom options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test_namespace"),
				WithSubsystem("test_subsystem"),
				WithHistogramBuckets([]float64{0.1, 0.5, 1.0}),
				WithMetricsEnabled(true),
				WithRefreshInterval(10*time.Second),
				WithPrometheusRegistry(registry),
			)

			Convey("Then it should be created successfully", func() {
				So(manager, ShouldNotBeNil)
			})
		})

		Convey("When creating with empty or zero option values", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace(""),
				WithSubsystem(""),
				WithHistogramBuckets(nil),
				WithRefreshInterval(0),
				WithPrometheusRegistry(registry),
			)

			Convey("Then defaults should be kept and creation should succeed", func() {
				So(manager, ShouldNotBeNil)
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the global metrics helpers", t, func() {
		Convey("When recording ensemble metrics", func() {
			So(func() {
				RecordPrediction("race")
				RecordPrediction("podium")
				RecordPrediction("live")
				RecordUnitFailure("form")
				RecordFallbackResult()
				RecordCombineLatency(12.5)
			}, ShouldNotPanic)
		})

		Convey("When recording lifecycle metrics", func() {
			So(func() {
				UpdateModelLoaded(true)
				UpdateModelLoaded(false)
				RecordRetrain()
				RecordPromotion()
				RecordRollback()
				RecordValidationFailure()
				RecordOutcome(0.867)
			}, ShouldNotPanic)
		})

		Convey("When recording live broadcast metrics", func() {
			So(func() {
				UpdateActiveSessions(3)
				UpdateSubscribers(42)
				RecordBroadcast()
				RecordDelivery()
				RecordDroppedSubscriber()
				RecordExpiredSession()
				RecordSnapshotError()
				RecordTickLatency(8.0)
			}, ShouldNotPanic)
		})

		Convey("When recording HTTP metrics", func() {
			So(func() {
				RecordHTTPRequest("/healthz", "GET", "200")
				RecordHTTPRequestDuration("/model/status", "GET", "200", 5.0)
				RecordErrorByComponent("combiner", "unit_failure")
			}, ShouldNotPanic)
		})

		Convey("When recording system metrics", func() {
			So(func() {
				UpdateSystemMemoryUsage(1024 * 1024 * 100)
				UpdateSystemGoroutineCount(200)
				RecordSystemGCPauseTime(1.5)
			}, ShouldNotPanic)
		})

		Convey("When recording edge values", func() {
			So(func() {
				UpdateActiveSessions(0)
				UpdateSubscribers(-1)
				RecordCombineLatency(0.0)
				RecordHTTPRequest("", "", "200")
			}, ShouldNotPanic)
		})
	})
}

func TestMetricsConcurrency(t *testing.T) {
	Convey("Given concurrent metric recording", t, func() {
		done := make(chan bool, 10)

		for i := 0; i < 10; i++ {
			go func() {
				for j := 0; j < 100; j++ {
					RecordPrediction("live")
					RecordDelivery()
					UpdateSubscribers(j)
					RecordCombineLatency(float64(j))
				}
				done <- true
			}()
		}

		for i := 0; i < 10; i++ {
			<-done
		}

		Convey("Then concurrent access should not panic", func() {
			So(true, ShouldBeTrue)
		})
	})
}
