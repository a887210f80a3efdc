package revset

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("weft.revset")

var (
	evaluateDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "weft_revset_evaluate_duration_seconds",
		Help:    "Time to resolve and compile a revset expression",
		Buckets: []float64{0.00001, 0.0001, 0.001, 0.01, 0.1, 1},
	})

	evaluateErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "weft_revset_errors_total",
		Help: "Revset expressions rejected, by stage",
	}, []string{"stage"})
)

func recordError(stage string) {
	evaluateErrors.WithLabelValues(stage).Inc()
}
