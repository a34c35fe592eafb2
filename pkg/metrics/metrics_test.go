package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating on a fresh registry", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test"),
				WithSubsystem("unit"),
				WithHistogramBuckets([]float64{1, 10}),
				WithPrometheusRegistry(registry),
			)

			Convey("Then every collector is registered under the namespace", func() {
				So(manager, ShouldNotBeNil)
				manager.ticks.Inc()
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				So(len(families), ShouldBeGreaterThan, 0)
				found := false
				for _, f := range families {
					if f.GetName() == "test_unit_ticks_total" {
						found = true
					}
				}
				So(found, ShouldBeTrue)
			})
		})

		Convey("When registering twice on the same registry", func() {
			registry := prometheus.NewRegistry()
			NewManager(WithPrometheusRegistry(registry))

			Convey("Then the duplicate registration panics", func() {
				So(func() { NewManager(WithPrometheusRegistry(registry)) }, ShouldPanic)
			})
		})
	})
}

func TestGlobalRecorders(t *testing.T) {
	Convey("Given the global metrics manager", t, func() {
		Convey("When recording loop activity", func() {
			before := testutil.ToFloat64(globalManager.ticks)
			RecordTick(12)
			RecordTickSkipped()
			RecordOutcome("match")
			UpdateLoopActive(true)

			Convey("Then the collectors reflect it", func() {
				So(testutil.ToFloat64(globalManager.ticks), ShouldEqual, before+1)
				So(testutil.ToFloat64(globalManager.loopActive), ShouldEqual, 1)
				So(testutil.ToFloat64(globalManager.outcomes.WithLabelValues("match")), ShouldBeGreaterThanOrEqualTo, 1)
			})
		})

		Convey("When recording attendance and queue state", func() {
			RecordAttendanceSuppressed("cooldown")
			UpdateQueueSize("delivery", 5, 10)
			UpdateDailySummary(7, 35)

			Convey("Then gauges and labelled counters update", func() {
				So(testutil.ToFloat64(globalManager.attendanceSuppressed.WithLabelValues("cooldown")), ShouldBeGreaterThanOrEqualTo, 1)
				So(testutil.ToFloat64(globalManager.queueUtilization.WithLabelValues("delivery")), ShouldEqual, 0.5)
				So(testutil.ToFloat64(globalManager.dailyCheckIns), ShouldEqual, 7)
				So(testutil.ToFloat64(globalManager.attendanceRate), ShouldEqual, 35)
			})
		})

		Convey("Then the custom registry is exposed", func() {
			So(GetRegistry(), ShouldNotBeNil)
		})
	})
}
