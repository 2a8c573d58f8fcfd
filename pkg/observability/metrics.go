package observability

import (
    "net/http"

    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the run's Prometheus collectors. A nil *Metrics records nothing.
type Metrics struct {
    sessionsStarted  prometheus.Counter
    sessionsFailed   prometheus.Counter
    sessionsActive   prometheus.Gauge
    bytes            *prometheus.CounterVec // by direction
    broadcastDropped prometheus.Counter
    reconnects       *prometheus.CounterVec // by outcome
    reuseConnections prometheus.Counter
}

// Default is the process-wide instance used by packages that have no other
// handle. It is not registered until Register is called.
var Default = NewMetrics()

func NewMetrics() *Metrics {
    return &Metrics{
        sessionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
            Namespace: "websocat", Subsystem: "session", Name: "started_total",
            Help: "Sessions started",
        }),
        sessionsFailed: prometheus.NewCounter(prometheus.CounterOpts{
            Namespace: "websocat", Subsystem: "session", Name: "failed_total",
            Help: "Sessions that ended with an error",
        }),
        sessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
            Namespace: "websocat", Subsystem: "session", Name: "active",
            Help: "Sessions currently running",
        }),
        bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
            Namespace: "websocat", Subsystem: "transfer", Name: "bytes_total",
            Help: "Bytes copied, by direction (forward/reverse)",
        }, []string{"direction"}),
        broadcastDropped: prometheus.NewCounter(prometheus.CounterOpts{
            Namespace: "websocat", Subsystem: "broadcast", Name: "dropped_total",
            Help: "Messages dropped from full per-consumer broadcast queues",
        }),
        reconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
            Namespace: "websocat", Subsystem: "reconnect", Name: "attempts_total",
            Help: "Reconnect attempts, by outcome (ok/failed)",
        }, []string{"outcome"}),
        reuseConnections: prometheus.NewCounter(prometheus.CounterOpts{
            Namespace: "websocat", Subsystem: "reuse", Name: "connections_total",
            Help: "Real connections established behind reuse slots",
        }),
    }
}

// Collectors lists every collector for registration.
func (m *Metrics) Collectors() []prometheus.Collector {
    return []prometheus.Collector{m.sessionsStarted, m.sessionsFailed, m.sessionsActive, m.bytes, m.broadcastDropped, m.reconnects, m.reuseConnections}
}

func (m *Metrics) Register(r prometheus.Registerer) error {
    for _, c := range m.Collectors() {
        if err := r.Register(c); err != nil { return err }
    }
    return nil
}

// Handler serves the collectors of m on a private registry.
func (m *Metrics) Handler() (http.Handler, error) {
    reg := prometheus.NewRegistry()
    if err := m.Register(reg); err != nil { return nil, err }
    return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), nil
}

func (m *Metrics) SessionStarted() {
    if m == nil { return }
    m.sessionsStarted.Inc()
    m.sessionsActive.Inc()
}

func (m *Metrics) SessionEnded(err error) {
    if m == nil { return }
    m.sessionsActive.Dec()
    if err != nil { m.sessionsFailed.Inc() }
}

func (m *Metrics) Transferred(direction string, n int) {
    if m == nil || n <= 0 { return }
    m.bytes.WithLabelValues(direction).Add(float64(n))
}

func (m *Metrics) BroadcastDropped() {
    if m == nil { return }
    m.broadcastDropped.Inc()
}

func (m *Metrics) ReconnectAttempt(ok bool) {
    if m == nil { return }
    outcome := "failed"
    if ok { outcome = "ok" }
    m.reconnects.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ReuseConnection() {
    if m == nil { return }
    m.reuseConnections.Inc()
}
