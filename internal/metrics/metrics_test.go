package metrics_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muralapp/mural/internal/metrics"
)

func getCounterValue(t *testing.T, counter *prometheus.CounterVec, labels ...string) float64 {
	t.Helper()
	m := &dto.Metric{}
	c, err := counter.GetMetricWithLabelValues(labels...)
	if err != nil {
		return 0
	}
	_ = c.(prometheus.Metric).Write(m)
	return m.GetCounter().GetValue()
}

func getHistogramCount(t *testing.T, hist *prometheus.HistogramVec, labels ...string) uint64 {
	t.Helper()
	m := &dto.Metric{}
	o, err := hist.GetMetricWithLabelValues(labels...)
	if err != nil {
		return 0
	}
	_ = o.(prometheus.Metric).Write(m)
	return m.GetHistogram().GetSampleCount()
}

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/spaces", "/spaces"},
		{"/spaces/save", "/spaces/save"},
		{"/spaces/load/my-space", "/spaces/load"},
		{"/spaces/load/another", "/spaces/load"},
		{"/upload", "/upload"},
		{"/ws", "/ws"},
		{"/metrics", "/metrics"},
		{"/assets/flux_output_1.png", "/assets"},
		{"/index.html", "/static"},
		{"/", "/static"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, metrics.NormalizePath(tt.path))
		})
	}
}

func TestHTTPMiddleware_RecordsRequest(t *testing.T) {
	handler := metrics.HTTPMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	before := getCounterValue(t, metrics.HTTPRequestsTotal, "GET", "/spaces", "418")
	beforeHist := getHistogramCount(t, metrics.HTTPRequestDuration, "GET", "/spaces")

	req := httptest.NewRequest(http.MethodGet, "/spaces", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, before+1, getCounterValue(t, metrics.HTTPRequestsTotal, "GET", "/spaces", "418"))
	assert.Equal(t, beforeHist+1, getHistogramCount(t, metrics.HTTPRequestDuration, "GET", "/spaces"))
}

func TestHTTPMiddleware_GroupsAssetPaths(t *testing.T) {
	handler := metrics.HTTPMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	before := getCounterValue(t, metrics.HTTPRequestsTotal, "GET", "/assets", "200")

	for _, p := range []string{"/assets/a.png", "/assets/b.png"} {
		req := httptest.NewRequest(http.MethodGet, p, nil)
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}

	assert.Equal(t, before+2, getCounterValue(t, metrics.HTTPRequestsTotal, "GET", "/assets", "200"))
}
