// Package metrics exposes Prometheus metrics for the advisor.
//
//   - advisor_sweeps_total{kind,result}         sweeps by kind (monitor|eod) and result (ok|error|skipped)
//   - advisor_transitions_total{status}          terminal transitions by target status
//   - advisor_provider_failures_total{instrument} chain fetches that yielded no data
//   - advisor_trades_adopted_total{instrument}   trades created by adoption
//   - advisor_running_trades                     Running trades after the last sweep
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry         *prometheus.Registry
	sweeps           *prometheus.CounterVec
	transitions      *prometheus.CounterVec
	providerFailures *prometheus.CounterVec
	adopted          *prometheus.CounterVec
	running          prometheus.Gauge
}

// New creates the collectors on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		sweeps: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "advisor_sweeps_total", Help: "Sweeps run"},
			[]string{"kind", "result"},
		),
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "advisor_transitions_total", Help: "Terminal trade transitions"},
			[]string{"status"},
		),
		providerFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "advisor_provider_failures_total", Help: "Option-chain fetches that returned no data"},
			[]string{"instrument"},
		),
		adopted: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "advisor_trades_adopted_total", Help: "Trades created from strategy tables"},
			[]string{"instrument"},
		),
		running: prometheus.NewGauge(
			prometheus.GaugeOpts{Name: "advisor_running_trades", Help: "Running trades seen by the last sweep"},
		),
	}
	m.registry.MustRegister(
		m.sweeps, m.transitions, m.providerFailures, m.adopted, m.running,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Sweep counts one sweep.
func (m *Metrics) Sweep(kind, result string) {
	if m == nil {
		return
	}
	m.sweeps.WithLabelValues(kind, result).Inc()
}

// Transition counts one terminal transition.
func (m *Metrics) Transition(status string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(status).Inc()
}

// ProviderFailure counts a skipped instrument group.
func (m *Metrics) ProviderFailure(instrument string) {
	if m == nil {
		return
	}
	m.providerFailures.WithLabelValues(instrument).Inc()
}

// Adopted counts newly created trades.
func (m *Metrics) Adopted(instrument string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.adopted.WithLabelValues(instrument).Add(float64(n))
}

// SetRunning records the Running trade count.
func (m *Metrics) SetRunning(n int) {
	if m == nil {
		return
	}
	m.running.Set(float64(n))
}
