package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/paddocklabs/gridcast/internal/adapters/http/api"
	"github.com/paddocklabs/gridcast/internal/adapters/http/swagger"
	"github.com/paddocklabs/gridcast/internal/adapters/racedata"
	app "github.com/paddocklabs/gridcast/internal/app"
	"github.com/paddocklabs/gridcast/internal/config"
	"github.com/paddocklabs/gridcast/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

func TestMainFunction(t *testing.T) {
	convey.Convey("Given the main application", t, func() {
		convey.Convey("When testing configuration loading", func() {
			_ = os.Setenv("GRIDCAST_ADDR", ":8080")
			_ = os.Setenv("GRIDCAST_HISTORY_CAPACITY", "100")
			defer func() {
				_ = os.Unsetenv("GRIDCAST_ADDR")
				_ = os.Unsetenv("GRIDCAST_HISTORY_CAPACITY")
			}()

			convey.Convey("Then configuration should be loadable", func() {
				ctx := context.Background()
				cfg, err := config.Load(ctx)
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldNotBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.HistoryCapacity, convey.ShouldEqual, 100)
			})
		})

		convey.Convey("When testing service creation", func() {
			convey.Convey("Then service should be creatable with default options", func() {
				svc := app.New()
				convey.So(svc, convey.ShouldNotBeNil)
			})
		})

		convey.Convey("When wiring the full HTTP surface", func() {
			ctx := context.Background()
			svc := app.New(
				app.WithArtifactDir(t.TempDir()),
				app.WithSource(racedata.NewSimSource(
					racedata.WithLatencyRange(0, time.Millisecond),
				)),
			)
			convey.So(svc.Start(ctx), convey.ShouldBeNil)
			defer svc.Stop()

			mux := http.NewServeMux()
			swagger.Register(ctx, mux)
			api.NewServer(svc, svc).Register(ctx, mux)

			ts := httptest.NewServer(mux)
			defer ts.Close()

			convey.Convey("Then the health endpoint responds", func() {
				resp, err := http.Get(ts.URL + "/healthz")
				convey.So(err, convey.ShouldBeNil)
				defer resp.Body.Close()
				convey.So(resp.StatusCode, convey.ShouldEqual, http.StatusOK)
			})

			convey.Convey("Then the model status endpoint responds", func() {
				resp, err := http.Get(ts.URL + "/model/status")
				convey.So(err, convey.ShouldBeNil)
				defer resp.Body.Close()
				convey.So(resp.StatusCode, convey.ShouldEqual, http.StatusOK)
			})

			convey.Convey("Then the API docs respond", func() {
				resp, err := http.Get(ts.URL + "/api-docs")
				convey.So(err, convey.ShouldBeNil)
				defer resp.Body.Close()
				convey.So(resp.StatusCode, convey.ShouldEqual, http.StatusOK)
			})
		})
	})
}

func TestSystemMetricsUpdater(t *testing.T) {
	convey.Convey("Given the system metrics updater", t, func() {
		convey.Convey("When updating system metrics", func() {
			convey.Convey("Then it should not panic", func() {
				convey.So(updateSystemMetrics, convey.ShouldNotPanic)
			})
		})
	})
}
