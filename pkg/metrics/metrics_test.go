package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.LineReceived()
		m.LineDiscarded()
		m.ReadingPublished()
		m.SimulatedServed()
		m.ReadError()
		m.ConnectAttempt("mock", nil)
		m.SetConnected(true)
		m.SetSensors(7, 1)
	})
	assert.Nil(t, m.Registry())

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.LineReceived()
	m.LineReceived()
	m.LineDiscarded()
	m.ReadingPublished()
	m.SimulatedServed()
	m.ReadError()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.linesReceived))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.linesDiscarded))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.readingsPublished))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.simulatedServed))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.readErrors))
}

func TestMetrics_ConnectAttempts(t *testing.T) {
	m := New()

	m.ConnectAttempt("serial:COM6", errors.New("busy"))
	m.ConnectAttempt("serial:COM6", errors.New("busy"))
	m.ConnectAttempt("serial:COM6", nil)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.connectAttempts.WithLabelValues("serial:COM6", ResultError)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.connectAttempts.WithLabelValues("serial:COM6", ResultOK)))
}

func TestMetrics_Gauges(t *testing.T) {
	m := New()

	m.SetConnected(true)
	m.SetSensors(9, 2)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.connected))
	assert.Equal(t, 9.0, testutil.ToFloat64(m.registrySize))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.autoDisabled))

	m.SetConnected(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.connected))
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.ReadingPublished()
	require.NotNil(t, m.Registry())

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "insole_readings_published_total 1")
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
