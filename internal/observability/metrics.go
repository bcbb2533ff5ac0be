package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	sessionsStarted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "grouplift",
		Subsystem: "sessions",
		Name:      "started_total",
		Help:      "Number of live sessions started.",
	})

	sessionsEnded = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "grouplift",
		Subsystem: "sessions",
		Name:      "ended_total",
		Help:      "Number of live sessions that ended, labeled by final state.",
	}, []string{"state"})

	activeSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "grouplift",
		Subsystem: "sessions",
		Name:      "active",
		Help:      "Number of sessions currently registered.",
	})

	mutations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "grouplift",
		Subsystem: "sessions",
		Name:      "mutations_total",
		Help:      "Session operations, labeled by operation and outcome.",
	}, []string{"op", "outcome"})

	liveConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "grouplift",
		Subsystem: "live",
		Name:      "connections",
		Help:      "Number of open live session websocket subscribers.",
	})

	sessionDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "grouplift",
		Subsystem: "sessions",
		Name:      "duration_seconds",
		Help:      "Wall time from session start to finish.",
		Buckets:   prometheus.ExponentialBuckets(60, 2, 9),
	})
)

func init() {
	prometheus.MustRegister(sessionsStarted, sessionsEnded, activeSessions, mutations, liveConnections, sessionDuration)
}

// RecordSessionStarted counts a new session and sets the active gauge.
func RecordSessionStarted(active int) {
	sessionsStarted.Inc()
	activeSessions.Set(float64(active))
}

// RecordSessionEnded counts a finished or abandoned session.
func RecordSessionEnded(state string, started, ended time.Time, active int) {
	sessionsEnded.WithLabelValues(state).Inc()
	activeSessions.Set(float64(active))
	if !started.IsZero() && ended.After(started) {
		sessionDuration.Observe(ended.Sub(started).Seconds())
	}
}

// RecordMutation counts one session operation. outcome is "ok" or a short
// error class such as "permission".
func RecordMutation(op, outcome string) {
	mutations.WithLabelValues(op, outcome).Inc()
}

// SetLiveConnections sets the live subscriber gauge.
func SetLiveConnections(n int64) {
	liveConnections.Set(float64(n))
}
