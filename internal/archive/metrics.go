package archive

import "github.com/prometheus/client_golang/prometheus"

var (
	enqueuedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "grouplift",
		Subsystem: "archive",
		Name:      "sessions_enqueued_total",
		Help:      "Number of finished sessions written to the spool.",
	})

	deliveredCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "grouplift",
		Subsystem: "archive",
		Name:      "sessions_delivered_total",
		Help:      "Number of spooled sessions delivered to the archive sink.",
	})

	failedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "grouplift",
		Subsystem: "archive",
		Name:      "delivery_failures_total",
		Help:      "Number of failed delivery attempts.",
	})

	parkedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "grouplift",
		Subsystem: "archive",
		Name:      "sessions_parked_total",
		Help:      "Number of sessions parked after exhausting delivery attempts.",
	})

	batchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "grouplift",
		Subsystem: "archive",
		Name:      "batch_duration_seconds",
		Help:      "Time spent fetching, delivering, and marking spool batches.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
	})
)

func init() {
	prometheus.MustRegister(enqueuedCounter, deliveredCounter, failedCounter, parkedCounter, batchDuration)
}
