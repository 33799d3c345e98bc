package report

import "github.com/prometheus/client_golang/prometheus"

// Metrics exposes counters and histograms for report generation.
type Metrics struct {
	generations *prometheus.CounterVec
	duration    prometheus.Histogram
	pages       prometheus.Histogram
	bytes       prometheus.Histogram
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		generations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinicreport",
			Subsystem: "report",
			Name:      "generations_total",
			Help:      "Report generations by outcome and failing stage",
		}, []string{"outcome", "stage"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "clinicreport",
			Subsystem: "report",
			Name:      "generation_seconds",
			Help:      "Wall time of a report generation",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}),
		pages: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "clinicreport",
			Subsystem: "report",
			Name:      "pages",
			Help:      "Page count of generated reports",
			Buckets:   []float64{1, 2, 3, 5, 8, 13, 21, 34},
		}),
		bytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "clinicreport",
			Subsystem: "report",
			Name:      "size_bytes",
			Help:      "Size of generated report documents",
			Buckets:   prometheus.ExponentialBuckets(4096, 2, 10),
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.generations, m.duration, m.pages, m.bytes)
	return m
}

// ObserveSuccess records a completed generation.
func (m *Metrics) ObserveSuccess(seconds float64, pages, size int) {
	if m == nil {
		return
	}
	m.generations.WithLabelValues("success", "").Inc()
	m.duration.Observe(seconds)
	m.pages.Observe(float64(pages))
	m.bytes.Observe(float64(size))
}

// ObserveFailure records a failed generation and the stage it failed in.
func (m *Metrics) ObserveFailure(seconds float64, stage string) {
	if m == nil {
		return
	}
	m.generations.WithLabelValues("failure", stage).Inc()
	m.duration.Observe(seconds)
}
