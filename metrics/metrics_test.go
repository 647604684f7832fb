package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserversCount(t *testing.T) {
	m := New()

	m.ObserveRequest("fileStatus", "ok", 20*time.Millisecond)
	m.ObserveRequest("fileStatus", "ok", 30*time.Millisecond)
	m.ObserveRequest("metaobjectUpsert", "error", time.Second)
	m.ObserveResolution("resolved", 250*time.Millisecond)
	m.ObserveResolution("exhausted", time.Second)
	m.ObserveUpload("ready", 3*time.Second)
	m.ObserveHTTP(http.MethodGet, "/content", 200, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.platformRequests.WithLabelValues("fileStatus", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.platformRequests.WithLabelValues("metaobjectUpsert", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.resolutions.WithLabelValues("exhausted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.uploads.WithLabelValues("ready")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "/content", "200")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveRequest("x", "ok", time.Millisecond)
		m.ObserveResolution("resolved", time.Millisecond)
		m.ObserveUpload("ready", time.Millisecond)
		m.ObserveHTTP("GET", "/", 200, time.Millisecond)
	})
	assert.Nil(t, m.Registry())
}

func TestHandlerExposesCollectors(t *testing.T) {
	m := New()
	m.ObserveUpload("pending", time.Second)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `storefront_asset_uploads_total{outcome="pending"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}
