package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus records metrics as Prometheus counters and histograms.
type Prometheus struct {
	hits      *prometheus.CounterVec
	misses    *prometheus.CounterVec
	writes    *prometheus.CounterVec
	errors    *prometheus.CounterVec
	durations *prometheus.HistogramVec
}

// NewPrometheus registers the envelope metrics with reg under namespace.
// A nil reg uses prometheus.DefaultRegisterer.
func NewPrometheus(reg prometheus.Registerer, namespace string) *Prometheus {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "envelope"
	}
	f := promauto.With(reg)
	return &Prometheus{
		hits: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_hits_total",
				Help:      "Total number of cache hits",
			},
			[]string{"scope"},
		),
		misses: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_misses_total",
				Help:      "Total number of cache misses",
			},
			[]string{"scope"},
		),
		writes: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_writes_total",
				Help:      "Total number of envelopes written",
			},
			[]string{"scope"},
		),
		errors: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_errors_total",
				Help:      "Total number of failed cache operations",
			},
			[]string{"scope", "op"},
		),
		durations: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "cache_operation_duration_seconds",
				Help:      "Cache operation duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"scope", "op"},
		),
	}
}

func (p *Prometheus) RecordHit(scope string)   { p.hits.WithLabelValues(scope).Inc() }
func (p *Prometheus) RecordMiss(scope string)  { p.misses.WithLabelValues(scope).Inc() }
func (p *Prometheus) RecordWrite(scope string) { p.writes.WithLabelValues(scope).Inc() }

func (p *Prometheus) RecordLatency(scope, op string, d time.Duration) {
	p.durations.WithLabelValues(scope, op).Observe(d.Seconds())
}

func (p *Prometheus) RecordError(scope, op string) {
	p.errors.WithLabelValues(scope, op).Inc()
}
