package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "eventhub"

// PrometheusRecorder exports counters through a Prometheus registry.
type PrometheusRecorder struct {
	eventsCreated prometheus.Counter
	registrations *prometheus.CounterVec
	cancellations prometheus.Counter
	cacheLookups  *prometheus.CounterVec
}

// NewPrometheus registers the application collectors, plus the Go runtime and
// process collectors, on reg.
func NewPrometheus(reg prometheus.Registerer) *PrometheusRecorder {
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	factory := promauto.With(reg)
	return &PrometheusRecorder{
		eventsCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_created_total",
			Help:      "Number of events created.",
		}),
		registrations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registrations_total",
			Help:      "Registration attempts by outcome.",
		}, []string{"outcome"}),
		cancellations: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cancellations_total",
			Help:      "Number of registrations cancelled.",
		}),
		cacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Event cache lookups by result.",
		}, []string{"result"}),
	}
}

// IncEventCreated increments event created counter.
func (p *PrometheusRecorder) IncEventCreated() {
	p.eventsCreated.Inc()
}

// IncRegistration increments the registration counter for an outcome.
func (p *PrometheusRecorder) IncRegistration(outcome string) {
	p.registrations.WithLabelValues(outcome).Inc()
}

// IncCancellation increments cancellation counter.
func (p *PrometheusRecorder) IncCancellation() {
	p.cancellations.Inc()
}

// IncCacheHit increments cache hit counter.
func (p *PrometheusRecorder) IncCacheHit() {
	p.cacheLookups.WithLabelValues("hit").Inc()
}

// IncCacheMiss increments cache miss counter.
func (p *PrometheusRecorder) IncCacheMiss() {
	p.cacheLookups.WithLabelValues("miss").Inc()
}
