package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CastServerActive is 1 while a cast server is listening
	CastServerActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mediad_cast_server_active",
		Help: "Whether a cast server is currently listening (0 or 1)",
	})

	// CastStartsTotal counts cast server starts, including replacements
	CastStartsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mediad_cast_starts_total",
		Help: "Total number of cast servers started",
	})

	// LibraryWatches tracks the number of watched directories
	LibraryWatches = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mediad_library_watches",
		Help: "Number of directories currently watched",
	})

	libraryEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediad_library_events_total",
		Help: "Total filesystem events applied to the library index by operation",
	}, []string{"op"})
)

// RecordLibraryEvent records one applied filesystem event (upsert, remove, error).
func RecordLibraryEvent(op string) {
	switch op {
	case "upsert", "remove", "error":
	default:
		op = "unknown"
	}
	libraryEventsTotal.WithLabelValues(op).Inc()
}
