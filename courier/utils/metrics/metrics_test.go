package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpCounts(t *testing.T) {
	m := New()
	m.Op("post_message", OutcomeOK)
	m.Op("post_message", OutcomeOK)
	m.Op("post_message", OutcomeValidation)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Counter("post_message", OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Counter("post_message", OutcomeValidation)))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Op("x", OutcomeOK)
		m.Uploaded(10)
	})
}

func TestHandlerExposesCounters(t *testing.T) {
	m := New()
	m.Op("sign_in", OutcomeBackend)
	m.Uploaded(42)

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rr.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `courier_gateway_ops_total{op="sign_in",outcome="backend"} 1`)
	assert.Contains(t, string(body), "courier_gateway_uploaded_bytes_total 42")
}
