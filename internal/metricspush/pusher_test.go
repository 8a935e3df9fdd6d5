package metricspush

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang/snappy"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/prometheus/prometheus/prompb"
	"github.com/smallbiznis/genstudio/internal/config"
	"github.com/smallbiznis/genstudio/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/protoadapt"
)

func newTestRegistry(t *testing.T) *prometheus.Registry {
	t.Helper()
	reg := prometheus.NewRegistry()
	finalized := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "genstudio_poller_jobs_finalized_total",
		Help: "test",
	}, []string{"outcome", "env"})
	lag := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name: "genstudio_poller_run_loop_lag_seconds",
		Help: "test",
	})
	reg.MustRegister(finalized, lag)
	finalized.WithLabelValues("completed", "test").Add(3)
	lag.Observe(0.2)
	return reg
}

func TestBuildRemoteWriteSeriesSkipsHistograms(t *testing.T) {
	families, err := newTestRegistry(t).Gather()
	require.NoError(t, err)

	series := buildRemoteWriteSeries(families, 1000)
	require.Len(t, series, 1)
	assert.Equal(t, []prompb.Label{
		{Name: "__name__", Value: "genstudio_poller_jobs_finalized_total"},
		{Name: "env", Value: "test"},
		{Name: "outcome", Value: "completed"},
	}, series[0].Labels)
	assert.Equal(t, []prompb.Sample{{Value: 3, Timestamp: 1000}}, series[0].Samples)
}

func TestRemoteWritePusher(t *testing.T) {
	var got prompb.WriteRequest
	var headers http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers = r.Header.Clone()
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		decoded, err := snappy.Decode(nil, body)
		require.NoError(t, err)
		require.NoError(t, proto.Unmarshal(decoded, protoadapt.MessageV2Of(&got)))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	pusher := NewRemoteWritePusher(srv.URL, "tok")
	require.NoError(t, pusher.Push(context.Background(), newTestRegistry(t)))

	assert.Equal(t, "snappy", headers.Get("Content-Encoding"))
	assert.Equal(t, "Bearer tok", headers.Get("Authorization"))
	require.Len(t, got.Timeseries, 1)
	assert.Equal(t, float64(3), got.Timeseries[0].Samples[0].Value)
}

func TestRemoteWritePusherRejectedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	err := NewRemoteWritePusher(srv.URL, "").Push(context.Background(), newTestRegistry(t))
	assert.ErrorContains(t, err, "remote write returned 400")
}

func TestPushgatewayPusher(t *testing.T) {
	var method, path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		path = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	pusher := NewPushgatewayPusher(srv.URL, "genstudio-poller", map[string]string{"environment": "staging", "empty": ""})
	require.NoError(t, pusher.Push(context.Background(), newTestRegistry(t)))

	assert.Equal(t, http.MethodPut, method)
	assert.Equal(t, "/metrics/job/genstudio-poller/environment/staging", path)
}

func TestNewPusherFromConfig(t *testing.T) {
	log := zap.NewNop()

	assert.Nil(t, NewPusher(config.Config{}, log))
	assert.Nil(t, NewPusher(config.Config{MetricsPush: config.MetricsPushConfig{Exporter: ExporterRemoteWrite}}, log))
	assert.Nil(t, NewPusher(config.Config{MetricsPush: config.MetricsPushConfig{Exporter: "statsd", Endpoint: "x"}}, log))

	pusher := NewPusher(config.Config{MetricsPush: config.MetricsPushConfig{
		Exporter: ExporterRemoteWrite,
		Endpoint: "https://prom.example.com/api/v1/write",
		Interval: time.Minute,
	}}, log)
	assert.IsType(t, &RemoteWritePusher{}, pusher)

	pusher = NewPusher(config.Config{AppName: "genstudio", MetricsPush: config.MetricsPushConfig{
		Exporter: ExporterPushgateway,
		Endpoint: "http://pushgateway:9091",
	}}, log)
	assert.IsType(t, &PushgatewayPusher{}, pusher)
}

func TestUpdateActiveJobs(t *testing.T) {
	db := dbtest.Open(t)
	now := time.Now().UTC()
	for i, status := range []string{"pending", "processing", "processing", "completed"} {
		require.NoError(t, db.Exec(
			`INSERT INTO generation_jobs (id, user_id, kind, model_key, provider, provider_model, credits_cost, status, created_at, updated_at)
			 VALUES (?, 1, 'image', 'flux-2-pro', 'kie', 'flux', 12, ?, ?, ?)`,
			i+1, status, now, now,
		).Error)
	}

	gauge, err := NewActiveJobsGauge(prometheus.NewRegistry())
	require.NoError(t, err)
	require.NoError(t, UpdateActiveJobs(context.Background(), gauge, db))

	assert.Equal(t, float64(1), testutil.ToFloat64(gauge.WithLabelValues("pending")))
	assert.Equal(t, float64(2), testutil.ToFloat64(gauge.WithLabelValues("processing")))
}

func TestNewActiveJobsGaugeReusesRegistered(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewActiveJobsGauge(reg)
	require.NoError(t, err)
	second, err := NewActiveJobsGauge(reg)
	require.NoError(t, err)
	assert.Same(t, first, second)
}
