package ingest

import "github.com/prometheus/client_golang/prometheus"

var (
	messagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lyricsync_ingest_messages_total",
			Help: "Decoded messages by envelope type",
		},
		[]string{"type"},
	)
	failuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lyricsync_ingest_failures_total",
			Help: "Rejected requests by reason",
		},
		[]string{"reason"},
	)
	requestDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "lyricsync_ingest_request_duration_seconds",
			Help:    "Time spent reading and decoding a pushed message",
			Buckets: prometheus.DefBuckets,
		},
	)
)

// RegisterMetrics registers the ingestion metrics with reg.
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(messagesTotal, failuresTotal, requestDuration)
}
