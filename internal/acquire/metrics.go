package acquire

import "github.com/prometheus/client_golang/prometheus"

var (
	acquireTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ovchat",
			Subsystem: "acquire",
			Name:      "total",
			Help:      "Completed model acquisitions by source",
		},
		[]string{"source"},
	)

	acquireErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ovchat",
			Subsystem: "acquire",
			Name:      "errors_total",
			Help:      "Failed model acquisitions by source",
		},
		[]string{"source"},
	)

	conversionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "ovchat",
			Subsystem: "acquire",
			Name:      "conversion_duration_seconds",
			Help:      "Duration of external model conversions in seconds",
			Buckets:   []float64{10, 30, 60, 120, 300, 600, 1200, 2400},
		},
	)
)

func init() {
	prometheus.MustRegister(acquireTotal, acquireErrors, conversionDuration)
}
