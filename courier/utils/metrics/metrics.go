package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcomes recorded for every gateway operation.
const (
	OutcomeOK         = "ok"
	OutcomeValidation = "validation"
	OutcomeBackend    = "backend"
	OutcomeDenied     = "denied"
)

type Metrics struct {
	registry *prometheus.Registry
	ops      *prometheus.CounterVec
	uploaded prometheus.Counter
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "courier",
			Subsystem: "gateway",
			Name:      "ops_total",
			Help:      "Gateway operations by outcome.",
		}, []string{"op", "outcome"}),
		uploaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "courier",
			Subsystem: "gateway",
			Name:      "uploaded_bytes_total",
			Help:      "Bytes sent to the blob store.",
		}),
	}
	reg.MustRegister(m.ops, m.uploaded, collectors.NewGoCollector())
	return m
}

// Op counts one gateway operation. A nil receiver is a no-op.
func (m *Metrics) Op(op, outcome string) {
	if m == nil {
		return
	}
	m.ops.WithLabelValues(op, outcome).Inc()
}

func (m *Metrics) Uploaded(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.uploaded.Add(float64(n))
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Counter exposes one op counter, mainly for assertions in tests.
func (m *Metrics) Counter(op, outcome string) prometheus.Counter {
	return m.ops.WithLabelValues(op, outcome)
}
