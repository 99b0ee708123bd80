package sweep

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus instrumentation on the default registry. The harness exposes no HTTP
// surface itself; embedders that want scraping serve promhttp alongside.
var (
	casesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crosscheck_sweep_cases_total",
		Help: "Sweep cases by family, precision, backend and final status",
	}, []string{"family", "precision", "backend", "status"})

	caseDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "crosscheck_sweep_case_duration_seconds",
		Help:    "Wall time of one case end to end",
		Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
	})

	rangeRepairsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crosscheck_sweep_range_repairs_total",
		Help: "Degenerate quantization ranges repaired during precision adaptation",
	})
)
