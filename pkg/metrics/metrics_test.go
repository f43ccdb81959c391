package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with a private registry", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithPrometheusRegistry(registry))

			Convey("Then metrics are registered under the default namespace", func() {
				So(manager, ShouldNotBeNil)
				manager.eventsIngested.WithLabelValues(ResultApplied).Inc()
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				found := false
				for _, f := range families {
					if f.GetName() == "courtside_leaderboard_events_ingested_total" {
						found = true
					}
				}
				So(found, ShouldBeTrue)
			})
		})

		Convey("When creating with custom options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test"),
				WithSubsystem("lb"),
				WithMetricPrefix("x_"),
				WithHistogramBuckets([]float64{1, 10}),
				WithMetricsEnabled(true),
				WithCustomLabels(map[string]string{"env": "test"}),
				WithPrometheusRegistry(registry),
			)

			Convey("Then names carry the namespace, subsystem and prefix", func() {
				manager.pointsAwarded.Add(3)
				So(testutil.ToFloat64(manager.pointsAwarded), ShouldEqual, 3)
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				names := map[string]bool{}
				for _, f := range families {
					names[f.GetName()] = true
				}
				So(names["test_lb_x_points_awarded_total"], ShouldBeTrue)
			})
		})

		Convey("When metrics are disabled", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithMetricsEnabled(false), WithPrometheusRegistry(registry))

			Convey("Then collectors record but nothing is registered", func() {
				manager.pointsAwarded.Add(2)
				So(testutil.ToFloat64(manager.pointsAwarded), ShouldEqual, 2)
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				So(families, ShouldBeEmpty)
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the global manager", t, func() {
		Convey("Ingestion counters move by result", func() {
			before := testutil.ToFloat64(globalManager.eventsIngested.WithLabelValues(ResultDuplicate))
			RecordEventIngested(ResultDuplicate)
			So(testutil.ToFloat64(globalManager.eventsIngested.WithLabelValues(ResultDuplicate)), ShouldEqual, before+1)
		})

		Convey("Points ignore non-positive deltas", func() {
			before := testutil.ToFloat64(globalManager.pointsAwarded)
			RecordPointsAwarded(0)
			RecordPointsAwarded(-5)
			RecordPointsAwarded(12)
			So(testutil.ToFloat64(globalManager.pointsAwarded), ShouldEqual, before+12)
		})

		Convey("Resets record both result and last reset time", func() {
			at := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
			RecordReset("weekly", "manual", true, at)
			RecordReset("weekly", "schedule", false, at.Add(time.Hour))
			So(testutil.ToFloat64(globalManager.lastResetUnix.WithLabelValues("weekly")), ShouldEqual, float64(at.Unix()))
			So(testutil.ToFloat64(globalManager.resets.WithLabelValues("weekly", "schedule", ResultSkipped)), ShouldBeGreaterThanOrEqualTo, 1)
		})

		Convey("Store errors are counted per op", func() {
			before := testutil.ToFloat64(globalManager.storeErrors.WithLabelValues("cas"))
			RecordStoreOperation("cas", 1.5, nil)
			RecordStoreOperation("cas", 2.5, errors.New("conflict"))
			So(testutil.ToFloat64(globalManager.storeErrors.WithLabelValues("cas")), ShouldEqual, before+1)
		})

		Convey("The applied-event gauge tracks the ledger size", func() {
			UpdateAppliedEvents(7)
			So(testutil.ToFloat64(globalManager.appliedEvents), ShouldEqual, 7)
		})

		Convey("Remaining helpers do not panic", func() {
			So(func() {
				RecordVersionConflict()
				RecordRetriesExhausted()
				RecordApplyLatency(1)
				RecordProfileUpdate()
				UpdateTotalPlayers(10)
				UpdateAppliedEvents(3)
				RecordAchievementAwarded("first_workout")
				RecordRankQueryLatency("rank", 0.3)
				RecordRecomputeLatency(4)
				RecordStatsCache(true)
				RecordStatsCache(false)
				RecordHTTPRequest("leaderboard", "GET", "200")
				RecordHTTPRequestDuration("leaderboard", "GET", "200", 2)
				UpdateQueueCapacity(10)
				UpdateQueueSize(1)
				UpdateQueueUtilization(0.1)
				RecordQueueEnqueue()
				RecordQueueDequeue()
				RecordQueueEnqueueError()
				RecordQueueProcessingLatency(0.1)
				UpdateWorkerActiveCount(2)
				UpdateWorkerMessagesPerSecond(1.5)
				RecordWorkerProcessingLatency(3)
				RecordWorkerError()
				RecordSubscriberMessage("courtside.progress", ResultApplied)
				RecordErrorByComponent("worker", "evaluate")
				RecordErrorByType("server_error", "high")
				RecordErrorByEndpoint("leaderboard", "GET", "client_error")
				UpdateSystemMemoryUsage(1024)
				UpdateSystemGoroutineCount(8)
				RecordSystemGCPauseTime(0.2)
			}, ShouldNotPanic)
		})
	})
}

func TestRegisterCollector(t *testing.T) {
	Convey("Given an external collector", t, func() {
		c := prometheus.NewGauge(prometheus.GaugeOpts{Name: "courtside_test_external_gauge", Help: "test"})

		Convey("It can be registered more than once", func() {
			So(RegisterCollector(c), ShouldBeNil)
			So(RegisterCollector(c), ShouldBeNil)
			So(GetRegistry().Unregister(c), ShouldBeTrue)
		})

		Convey("A conflicting descriptor is rejected", func() {
			So(RegisterCollector(c), ShouldBeNil)
			clash := prometheus.NewGauge(prometheus.GaugeOpts{Name: "courtside_test_external_gauge", Help: "other help"})
			err := RegisterCollector(clash)
			So(errors.Is(err, ErrRegisterFailed), ShouldBeTrue)
			So(GetRegistry().Unregister(c), ShouldBeTrue)
		})
	})
}

func TestSince(t *testing.T) {
	Convey("Since reports milliseconds", t, func() {
		ms := Since(time.Now().Add(-20 * time.Millisecond))
		So(ms, ShouldBeGreaterThanOrEqualTo, 20)
		So(ms, ShouldBeLessThan, 5000)
	})
}
