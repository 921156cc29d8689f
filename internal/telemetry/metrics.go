package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the service's Prometheus collectors.
type Metrics struct {
	Submissions *prometheus.CounterVec
	Scores      prometheus.Histogram
	HTTP        *prometheus.HistogramVec
}

// NewMetrics registers the collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		Submissions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "classquiz",
			Name:      "submissions_total",
			Help:      "Quiz submissions by outcome reason.",
		}, []string{"outcome"}),

		Scores: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "classquiz",
			Name:      "submission_score_percent",
			Help:      "Aggregate score of committed submissions.",
			Buckets:   prometheus.LinearBuckets(0, 10, 11),
		}),

		HTTP: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "classquiz",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
}
