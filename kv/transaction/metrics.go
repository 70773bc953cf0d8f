package transaction

import "github.com/prometheus/client_golang/prometheus"

var (
	stageCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tinyolap",
			Subsystem: "txn",
			Name:      "stage_total",
			Help:      "Counter of staged rowsets.",
		}, []string{"result"})

	stagedRowsetsGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "tinyolap",
			Subsystem: "txn",
			Name:      "staged_rowsets",
			Help:      "Number of rowsets held in the staging index.",
		})

	publishCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tinyolap",
			Subsystem: "txn",
			Name:      "publish_total",
			Help:      "Counter of publish version requests.",
		}, []string{"status"})

	publishErrorTabletCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "tinyolap",
			Subsystem: "txn",
			Name:      "publish_error_tablets_total",
			Help:      "Counter of tablets that failed to publish.",
		})

	publishDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "tinyolap",
			Subsystem: "txn",
			Name:      "publish_duration_seconds",
			Help:      "Bucketed histogram of processing time (s) of publish version requests.",
			Buckets:   prometheus.ExponentialBuckets(0.00005, 2, 16),
		})
)

func init() {
	prometheus.MustRegister(stageCounter)
	prometheus.MustRegister(stagedRowsetsGauge)
	prometheus.MustRegister(publishCounter)
	prometheus.MustRegister(publishErrorTabletCounter)
	prometheus.MustRegister(publishDuration)
}
