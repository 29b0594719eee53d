// Package metrics exposes log buffer activity as Prometheus metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Buffer implements logbuffer.MetricsHook.
type Buffer struct {
	reg *prometheus.Registry

	linesAdded      prometheus.Counter
	linesEvicted    prometheus.Counter
	linesRemoved    prometheus.Counter
	listenerPanics  prometheus.Counter
	lines           prometheus.Gauge
	listeners       prometheus.Gauge
	tailDropped     prometheus.Counter
	capturesStarted prometheus.Counter
}

// New registers the buffer metrics, plus Go runtime and process
// collectors, on a fresh registry.
func New() *Buffer {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)
	return &Buffer{
		reg: reg,
		linesAdded: f.NewCounter(prometheus.CounterOpts{
			Name: "logbuffer_lines_added_total",
			Help: "Total log lines added to the buffer",
		}),
		linesEvicted: f.NewCounter(prometheus.CounterOpts{
			Name: "logbuffer_lines_evicted_total",
			Help: "Total log lines evicted because the buffer was full",
		}),
		linesRemoved: f.NewCounter(prometheus.CounterOpts{
			Name: "logbuffer_lines_removed_total",
			Help: "Total log lines removed by clear, channel removal or sweeping",
		}),
		listenerPanics: f.NewCounter(prometheus.CounterOpts{
			Name: "logbuffer_listener_panics_total",
			Help: "Total panics recovered from log listeners",
		}),
		lines: f.NewGauge(prometheus.GaugeOpts{
			Name: "logbuffer_lines",
			Help: "Log lines currently stored",
		}),
		listeners: f.NewGauge(prometheus.GaugeOpts{
			Name: "logbuffer_listeners",
			Help: "Registered log listeners",
		}),
		tailDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "logbuffer_tail_dropped_total",
			Help: "Total lines dropped for slow WebSocket tail clients",
		}),
		capturesStarted: f.NewCounter(prometheus.CounterOpts{
			Name: "logbuffer_captures_started_total",
			Help: "Total process captures started",
		}),
	}
}

func (m *Buffer) ObserveAdd(size int, evicted int) {
	m.linesAdded.Inc()
	if evicted > 0 {
		m.linesEvicted.Add(float64(evicted))
	}
	m.lines.Set(float64(size))
}

func (m *Buffer) ObserveRemove(removed int, size int) {
	if removed > 0 {
		m.linesRemoved.Add(float64(removed))
	}
	m.lines.Set(float64(size))
}

func (m *Buffer) ObserveListenerPanic() { m.listenerPanics.Inc() }

func (m *Buffer) ObserveListeners(n int) { m.listeners.Set(float64(n)) }

func (m *Buffer) TailDropped() { m.tailDropped.Inc() }

func (m *Buffer) CaptureStarted() { m.capturesStarted.Inc() }

// Registry returns the registry the metrics live on.
func (m *Buffer) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the Prometheus exposition format.
func (m *Buffer) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}
