package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "gaitkeepr"

var (
	UploadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_total",
			Help:      "Total number of video uploads, labeled by outcome.",
		},
		[]string{"outcome"},
	)

	UploadBytes = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upload_bytes",
			Help:      "Size of accepted uploads in bytes.",
			Buckets:   prometheus.ExponentialBuckets(1<<20, 2, 9),
		},
	)

	ResultPollsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "result_polls_total",
			Help:      "Total number of result lookups, labeled by the status returned.",
		},
		[]string{"status"},
	)

	JobsCompletedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_completed_total",
			Help:      "Total number of jobs that reached a terminal status.",
		},
		[]string{"status"},
	)

	JobLatencySeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_latency_seconds",
			Help:      "Time from upload to terminal status (seconds).",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"status"},
	)

	ChatRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_requests_total",
			Help:      "Total number of coach chat requests, labeled by matched topic.",
		},
		[]string{"topic"},
	)

	RateLimitHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_hits_total",
			Help:      "Total number of requests rejected by the rate limiter.",
		},
		[]string{"scope", "operation"},
	)
)

func init() {
	prometheus.MustRegister(
		UploadsTotal,
		UploadBytes,
		ResultPollsTotal,
		JobsCompletedTotal,
		JobLatencySeconds,
		ChatRequestsTotal,
		RateLimitHitsTotal,
	)
}
