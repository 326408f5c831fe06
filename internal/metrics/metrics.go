// Package metrics exposes rule and table counters in the Prometheus format
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/liamcoop/cellrules/internal/logger"
)

const namespace = "cellrules"

// Metrics holds the process collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry *prometheus.Registry

	rulesAdded     prometheus.Counter
	rulesRemoved   prometheus.Counter
	cellsEvaluated prometheus.Counter
	cellsStyled    prometheus.Counter
	renderErrors   prometheus.Counter
	sessions       prometheus.Gauge
}

// New registers every collector on a fresh registry, together with the Go
// runtime collectors and the logger's warning and error totals.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	f := promauto.With(reg)
	m := &Metrics{
		registry: reg,
		rulesAdded: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rules_added_total",
			Help:      "Rules appended to a session's rule store.",
		}),
		rulesRemoved: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rules_removed_total",
			Help:      "Rules deleted from a session's rule store.",
		}),
		cellsEvaluated: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cells_evaluated_total",
			Help:      "Cells passed through the rule evaluator.",
		}),
		cellsStyled: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cells_styled_total",
			Help:      "Evaluated cells that received a non-empty style.",
		}),
		renderErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "render_errors_total",
			Help:      "Table renders that failed.",
		}),
		sessions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions",
			Help:      "Open sessions.",
		}),
	}

	f.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "log_warnings_total",
		Help:      "Warnings logged, before sampling.",
	}, func() float64 { return float64(logger.TotalWarnings.Load()) })
	f.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "log_errors_total",
		Help:      "Errors logged, before sampling.",
	}, func() float64 { return float64(logger.TotalErrors.Load()) })

	return m
}

// Handler serves the registry
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry for tests and extra collectors
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) RuleAdded() {
	if m != nil {
		m.rulesAdded.Inc()
	}
}

func (m *Metrics) RuleRemoved() {
	if m != nil {
		m.rulesRemoved.Inc()
	}
}

// CellEvaluated counts one evaluation; styled reports a non-empty result
func (m *Metrics) CellEvaluated(styled bool) {
	if m == nil {
		return
	}
	m.cellsEvaluated.Inc()
	if styled {
		m.cellsStyled.Inc()
	}
}

func (m *Metrics) RenderFailed() {
	if m != nil {
		m.renderErrors.Inc()
	}
}

func (m *Metrics) SessionOpened() {
	if m != nil {
		m.sessions.Inc()
	}
}

func (m *Metrics) SessionClosed() {
	if m != nil {
		m.sessions.Dec()
	}
}
