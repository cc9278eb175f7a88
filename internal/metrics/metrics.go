// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	decisionTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediad_decision_total",
		Help: "Total number of delivery decisions by kind, reason and reference kind",
	}, []string{"decision", "reason", "source"})

	probeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mediad_probe_duration_seconds",
		Help:    "Duration of ffprobe invocations",
		Buckets: prometheus.ExponentialBuckets(0.01, 2.0, 12), // 10ms to ~20s
	}, []string{"result"})

	deliveryTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediad_delivery_total",
		Help: "Total number of delivery responses by mode and status",
	}, []string{"mode", "status"})

	// RangeBytesServed tracks bytes copied by the range server
	RangeBytesServed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediad_range_bytes_served_total",
		Help: "Total bytes served from local files",
	}, []string{"mode"})
)

// RecordDecision records one delivery policy outcome.
func RecordDecision(decision, reason, source string) {
	decisionTotal.WithLabelValues(
		normalizeDecisionLabel(decision),
		normalizeReasonLabel(reason),
		normalizeSourceLabel(source),
	).Inc()
}

// ObserveProbe records the duration of one ffprobe call.
func ObserveProbe(seconds float64, ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	probeDuration.WithLabelValues(result).Observe(seconds)
}

// RecordDelivery records how one playback request was answered.
func RecordDelivery(mode string, status int) {
	deliveryTotal.WithLabelValues(normalizeModeLabel(mode), statusClass(status)).Inc()
}

func normalizeDecisionLabel(decision string) string {
	switch d := strings.ToLower(strings.TrimSpace(decision)); d {
	case "passthrough", "transcode":
		return d
	default:
		return "unknown"
	}
}

func normalizeReasonLabel(reason string) string {
	switch r := strings.ToLower(strings.TrimSpace(reason)); r {
	case "forced", "remote_native", "remote_not_native", "not_native",
		"unsafe_video_codec", "unsafe_audio_codec", "probe_failed", "codecs_safe", "native":
		return r
	default:
		return "unknown"
	}
}

func normalizeSourceLabel(source string) string {
	switch s := strings.ToLower(strings.TrimSpace(source)); s {
	case "local", "remote":
		return s
	default:
		return "unknown"
	}
}

func normalizeModeLabel(mode string) string {
	switch m := strings.ToLower(strings.TrimSpace(mode)); m {
	case "range", "transcode", "redirect", "error":
		return m
	default:
		return "unknown"
	}
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	default:
		return "unknown"
	}
}
