package observability

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/Additional-Code/auctioneer/internal/config"
)

func TestManager_Disabled(t *testing.T) {
	mgr, err := newManager(context.Background(), config.Observability{ServiceName: "auctioneer"}, zap.NewNop())
	require.NoError(t, err)

	assert.False(t, mgr.TracingEnabled())
	assert.False(t, mgr.MetricsEnabled())
	assert.Nil(t, mgr.MetricsHandler())
	assert.NoError(t, mgr.Shutdown(context.Background()))
}

func TestManager_UnsupportedExporters(t *testing.T) {
	mgr, err := newManager(context.Background(), config.Observability{
		ServiceName:     "auctioneer",
		EnableTracing:   true,
		TraceExporter:   "zipkin",
		EnableMetrics:   true,
		MetricsExporter: "statsd",
	}, zap.NewNop())
	require.NoError(t, err)

	assert.False(t, mgr.TracingEnabled())
	assert.False(t, mgr.MetricsEnabled())
}

func TestManager_OTLPRequiresEndpoint(t *testing.T) {
	_, err := newManager(context.Background(), config.Observability{
		EnableTracing: true,
		TraceExporter: "otlp",
	}, zap.NewNop())
	assert.ErrorContains(t, err, "OBS_OTLP_ENDPOINT")
}

func TestManager_PrometheusUsesSweepBuckets(t *testing.T) {
	mgr, err := newManager(context.Background(), config.Observability{
		ServiceName:     "auctioneer",
		EnableMetrics:   true,
		MetricsExporter: "prometheus",
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = mgr.Shutdown(context.Background()) })
	require.True(t, mgr.MetricsEnabled())
	require.NotNil(t, mgr.MetricsHandler())

	hist, err := mgr.meterProvider.Meter("test").
		Float64Histogram("auction.sweep.duration", metric.WithUnit("s"))
	require.NoError(t, err)
	hist.Record(context.Background(), 0.02, metric.WithAttributes(attribute.String("dispatch", "inline")))

	// A second manager must not collide on collector registration.
	other, err := newManager(context.Background(), config.Observability{
		EnableMetrics:   true,
		MetricsExporter: "prometheus",
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = other.Shutdown(context.Background()) })

	rec := httptest.NewRecorder()
	mgr.MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "auction_sweep_duration")
	assert.Contains(t, string(body), `le="0.025"`)
}
