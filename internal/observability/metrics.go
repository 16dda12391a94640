package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rahul/orbit/internal/executor"
)

// Metrics owns a private registry so several agents (and tests) can live in
// one process.
type Metrics struct {
	Registry *prometheus.Registry

	runs         *prometheus.CounterVec
	runDuration  prometheus.Histogram
	steps        *prometheus.CounterVec
	stepDuration *prometheus.HistogramVec
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	rejected     *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "orbit",
				Subsystem: "runs",
				Name:      "total",
				Help:      "Finished runs by final status.",
			},
			[]string{"status"},
		),
		runDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "orbit",
				Subsystem: "runs",
				Name:      "duration_seconds",
				Help:      "Wall time from run creation to its last step.",
				Buckets:   prometheus.DefBuckets,
			},
		),
		steps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "orbit",
				Subsystem: "steps",
				Name:      "total",
				Help:      "Executed steps by tool and outcome.",
			},
			[]string{"tool", "status"},
		),
		stepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "orbit",
				Subsystem: "steps",
				Name:      "duration_seconds",
				Help:      "Tool execution time in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"tool"},
		),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "orbit",
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total HTTP requests.",
			},
			[]string{"method", "path", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "orbit",
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
		rejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "orbit",
				Subsystem: "commands",
				Name:      "rejected_total",
				Help:      "Commands refused before a run was created, by error kind.",
			},
			[]string{"kind"},
		),
	}
	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.runs, m.runDuration, m.steps, m.stepDuration,
		m.httpRequests, m.httpDuration, m.rejected,
	)
	return m
}

// HubStats is the slice of the step hub the metrics read.
type HubStats interface {
	Len() int
	Published() uint64
	Evicted() uint64
}

// WatchHub exports the hub's counters.
func (m *Metrics) WatchHub(h HubStats) {
	m.Registry.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "orbit",
			Subsystem: "hub",
			Name:      "observers",
			Help:      "Currently subscribed observers.",
		}, func() float64 { return float64(h.Len()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "orbit",
			Subsystem: "hub",
			Name:      "events_published_total",
			Help:      "Step events published.",
		}, func() float64 { return float64(h.Published()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "orbit",
			Subsystem: "hub",
			Name:      "observers_evicted_total",
			Help:      "Observers dropped for falling behind.",
		}, func() float64 { return float64(h.Evicted()) }),
	)
}

// WatchActiveRuns exports the number of runs still executing.
func (m *Metrics) WatchActiveRuns(active func() int) {
	m.Registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "orbit",
		Subsystem: "runs",
		Name:      "active",
		Help:      "Runs not yet finished.",
	}, func() float64 { return float64(active()) }))
}

func (m *Metrics) RecordRejected(kind string) {
	m.rejected.WithLabelValues(kind).Inc()
}

func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	statusLabel := strconv.Itoa(status)
	m.httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	m.httpDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

func (m *Metrics) RunStarted(r executor.Run) {}

func (m *Metrics) StepStarted(r executor.Run, s executor.Step) {}

func (m *Metrics) StepFinished(r executor.Run, s executor.Step) {
	m.steps.WithLabelValues(s.Tool, string(s.Status)).Inc()
	m.stepDuration.WithLabelValues(s.Tool).Observe(s.Duration().Seconds())
}

func (m *Metrics) RunFinished(r executor.Run) {
	m.runs.WithLabelValues(string(r.Status)).Inc()
	m.runDuration.Observe(r.Duration().Seconds())
}
