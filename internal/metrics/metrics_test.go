package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.IngestionRequests.WithLabelValues(OutcomeSuccess).Inc()
	m.IngestionRequests.WithLabelValues(OutcomeSuccess).Inc()
	m.IngestionRequests.WithLabelValues(OutcomeRunFailed).Inc()
	m.IngestionPoints.Add(5)
	m.Announcements.WithLabelValues(ResultSent).Inc()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.IngestionRequests.WithLabelValues(OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.IngestionRequests.WithLabelValues(OutcomeRunFailed)))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.IngestionPoints))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Announcements.WithLabelValues(ResultSent)))
}

func TestMetrics_SeparateRegistries(t *testing.T) {
	a, b := New(), New()
	a.IngestionPoints.Inc()

	assert.Equal(t, 1.0, testutil.ToFloat64(a.IngestionPoints))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.IngestionPoints))
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.DiscoveryRequests.WithLabelValues(ResultAnswered).Inc()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `drilltrack_discovery_requests_total{result="answered"} 1`)
}
