package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TranscodeSessionsActive tracks encoder processes currently streaming
	TranscodeSessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mediad_transcode_sessions_active",
		Help: "Number of running transcode sessions",
	})

	transcodeSessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediad_transcode_sessions_total",
		Help: "Total transcode sessions by terminal outcome",
	}, []string{"outcome"})

	// TranscodeBytesOutput tracks fMP4 bytes written to clients
	TranscodeBytesOutput = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mediad_transcode_bytes_output_total",
		Help: "Total bytes produced by the transcoder and delivered to clients",
	})

	// TranscodeDuration tracks wall time from spawn to terminal state
	TranscodeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mediad_transcode_duration_seconds",
		Help:    "Wall time of transcode sessions",
		Buckets: prometheus.ExponentialBuckets(1, 2.0, 14), // 1s to ~2h
	}, []string{"outcome"})
)

// RecordTranscodeOutcome records a session's terminal state (completed,
// aborted, failed) or an admission/spawn failure (busy, spawn_error).
func RecordTranscodeOutcome(outcome string) {
	transcodeSessionsTotal.WithLabelValues(normalizeOutcomeLabel(outcome)).Inc()
}

func normalizeOutcomeLabel(outcome string) string {
	switch outcome {
	case "completed", "aborted", "failed", "busy", "spawn_error":
		return outcome
	default:
		return "unknown"
	}
}
