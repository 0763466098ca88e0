// Package metrics exposes engine counters in Prometheus format.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "animus_flow"

// Metrics owns a registry with the engine collectors. It satisfies the
// commands recorder and is safe for concurrent use.
type Metrics struct {
	registry *prometheus.Registry

	commandsTotal   *prometheus.CounterVec
	dispatchesTotal *prometheus.CounterVec
	startsTotal     *prometheus.CounterVec
	resumesTotal    *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		commandsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "commands_total",
				Help:      "Total number of engine commands run",
			},
			[]string{"command", "result"}, // result: continue, halt, error
		),
		dispatchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dispatches_total",
				Help:      "Total number of tasks dispatched",
			},
			[]string{"kind"}, // kind: action, workflow
		),
		startsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "workflow_starts_total",
				Help:      "Total number of workflow start requests handled",
			},
			[]string{"status"},
		),
		resumesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "task_resumes_total",
				Help:      "Total number of delayed task runs resumed",
			},
			[]string{"status"},
		),
	}
	m.registry.MustRegister(
		m.commandsTotal,
		m.dispatchesTotal,
		m.startsTotal,
		m.resumesTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

func (m *Metrics) CommandRun(command, result string) {
	m.commandsTotal.WithLabelValues(command, result).Inc()
}

func (m *Metrics) Dispatched(kind string) {
	m.dispatchesTotal.WithLabelValues(kind).Inc()
}

func (m *Metrics) WorkflowStarted(err error) {
	m.startsTotal.WithLabelValues(status(err)).Inc()
}

func (m *Metrics) TaskResumed(err error) {
	m.resumesTotal.WithLabelValues(status(err)).Inc()
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
