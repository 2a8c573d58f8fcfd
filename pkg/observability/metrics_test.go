package observability

import (
    "errors"
    "io"
    "net/http/httptest"
    "testing"

    "github.com/prometheus/client_golang/prometheus/testutil"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

func TestRecorders(t *testing.T) {
    m := NewMetrics()
    m.SessionStarted()
    m.SessionStarted()
    m.SessionEnded(nil)
    m.SessionEnded(errors.New("boom"))
    m.Transferred("forward", 10)
    m.Transferred("forward", 5)
    m.Transferred("reverse", 0)
    m.ReconnectAttempt(false)
    m.ReconnectAttempt(true)
    m.BroadcastDropped()
    m.ReuseConnection()

    assert.Equal(t, 2.0, testutil.ToFloat64(m.sessionsStarted))
    assert.Equal(t, 1.0, testutil.ToFloat64(m.sessionsFailed))
    assert.Equal(t, 0.0, testutil.ToFloat64(m.sessionsActive))
    assert.Equal(t, 15.0, testutil.ToFloat64(m.bytes.WithLabelValues("forward")))
    assert.Equal(t, 1.0, testutil.ToFloat64(m.reconnects.WithLabelValues("failed")))
    assert.Equal(t, 1.0, testutil.ToFloat64(m.broadcastDropped))
    assert.Equal(t, 1.0, testutil.ToFloat64(m.reuseConnections))
}

func TestNilMetricsRecordNothing(t *testing.T) {
    var m *Metrics
    assert.NotPanics(t, func() {
        m.SessionStarted()
        m.SessionEnded(nil)
        m.Transferred("forward", 1)
        m.ReconnectAttempt(true)
        m.BroadcastDropped()
        m.ReuseConnection()
    })
}

func TestHandlerExposesCollectors(t *testing.T) {
    m := NewMetrics()
    m.SessionStarted()
    h, err := m.Handler()
    require.NoError(t, err)
    rec := httptest.NewRecorder()
    h.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
    body, _ := io.ReadAll(rec.Body)
    assert.Contains(t, string(body), "websocat_session_started_total 1")
}
