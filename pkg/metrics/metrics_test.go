package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with a custom registry", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test"),
				WithSubsystem("pipeline"),
				WithHistogramBuckets([]float64{0.1, 0.5, 1.0}),
				WithPrometheusRegistry(registry),
			)

			Convey("Then its collectors are registered there", func() {
				So(manager, ShouldNotBeNil)
				manager.recordsProcessed.WithLabelValues("ScoreImported").Inc()
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				So(len(families), ShouldBeGreaterThan, 0)
				So(families[0].GetName(), ShouldStartWith, "test_pipeline_")
			})
		})

		Convey("When metrics are disabled", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithMetricsEnabled(false), WithPrometheusRegistry(registry))

			Convey("Then nothing is exported on the supplied registry", func() {
				manager.scoresInserted.Inc()
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				So(families, ShouldBeEmpty)
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the package-level helpers", t, func() {
		Convey("When recording import outcomes", func() {
			before := testutil.ToFloat64(globalManager.recordsProcessed.WithLabelValues("InvalidDatapoint"))
			RecordOutcome("InvalidDatapoint")
			RecordOutcome("InvalidDatapoint")

			Convey("Then the outcome counter increases", func() {
				after := testutil.ToFloat64(globalManager.recordsProcessed.WithLabelValues("InvalidDatapoint"))
				So(after-before, ShouldEqual, 2)
			})
		})

		Convey("When recording a flush", func() {
			before := testutil.ToFloat64(globalManager.scoresInserted)
			RecordFlush(7)

			Convey("Then inserted scores are added", func() {
				So(testutil.ToFloat64(globalManager.scoresInserted)-before, ShouldEqual, 7)
			})
		})

		Convey("When recording the remaining helpers", func() {
			Convey("Then none of them panic", func() {
				So(func() {
					RecordSkip("duplicate")
					RecordImportDuration(0.2)
					RecordImportAborted()
					RecordFlushError()
					RecordOrphanCreated(2)
					RecordOrphanResolved("corroboration")
					RecordOrphanReimport("success")
					RecordGoalUpdates(3, 1)
					RecordGoalEvaluationError()
					RecordWebhookEvent("sent")
					UpdateJobQueueSize(4)
					UpdateJobQueueCapacity(100)
					RecordJobEnqueueError("queue_full")
					RecordJobProcessed("deorphan")
					RecordJobError("deorphan")
					UpdateWorkerActiveCount(2)
				}, ShouldNotPanic)
				So(GetRegistry(), ShouldNotBeNil)
			})
		})
	})
}
