package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns the service Prometheus registry and counters.
type Metrics struct {
	registry *prometheus.Registry

	ExecutionsTotal *prometheus.CounterVec
	StepsTotal      *prometheus.CounterVec
	EventsPublished *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())

	m := &Metrics{
		registry: reg,
		ExecutionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pipeline_executions_total",
			Help: "Pipeline executions by terminal status.",
		}, []string{"status"}),
		StepsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pipeline_steps_total",
			Help: "Pipeline step outcomes by status.",
		}, []string{"status"}),
		EventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "events_published_total",
			Help: "Events published on the bus by type.",
		}, []string{"type"}),
	}
	reg.MustRegister(m.ExecutionsTotal, m.StepsTotal, m.EventsPublished)
	return m
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
