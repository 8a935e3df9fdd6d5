package httpclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	providerdomain "github.com/smallbiznis/genstudio/internal/provider/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(url string) *Client {
	return New(Config{
		Provider:       "kie",
		BaseURL:        url,
		Timeout:        200 * time.Millisecond,
		MaxRetries:     2,
		RetryBaseDelay: time.Millisecond,
		Header:         http.Header{"Authorization": []string{"Bearer secret"}},
	})
}

func TestDoRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	var out struct {
		OK bool `json:"ok"`
	}
	_, err := newTestClient(srv.URL).DoJSON(context.Background(), Request{Method: http.MethodPost, Path: "/x", Body: map[string]string{"a": "b"}}, &out)
	require.NoError(t, err)
	assert.True(t, out.OK)
	assert.Equal(t, int32(3), calls.Load())
}

func TestDoGivesUpAfterThreeAttempts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Do(context.Background(), Request{Path: "/x"})
	require.Error(t, err)
	assert.True(t, providerdomain.IsRetryable(err))
	assert.Equal(t, int32(3), calls.Load())
}

func TestDoDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"msg":"bad prompt"}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Do(context.Background(), Request{Path: "/x"})
	require.Error(t, err)
	assert.False(t, providerdomain.IsRetryable(err))
	assert.Contains(t, err.Error(), "bad prompt")
	assert.Equal(t, int32(1), calls.Load())
}

func TestDoRetriesTimeouts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			select {
			case <-r.Context().Done():
			case <-time.After(time.Second):
			}
			return
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Do(context.Background(), Request{Path: "/slow"})
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestDoJSONRejectsMalformedBody(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`<html>oops</html>`))
	}))
	defer srv.Close()

	var out map[string]any
	_, err := newTestClient(srv.URL).DoJSON(context.Background(), Request{Path: "/x"}, &out)
	require.Error(t, err)
	assert.False(t, providerdomain.IsRetryable(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestLinearBackOff(t *testing.T) {
	b := &linearBackOff{base: 600 * time.Millisecond}
	assert.Equal(t, 600*time.Millisecond, b.NextBackOff())
	assert.Equal(t, 1200*time.Millisecond, b.NextBackOff())
	b.Reset()
	assert.Equal(t, 600*time.Millisecond, b.NextBackOff())
}

func TestMaxDuration(t *testing.T) {
	assert.Equal(t, 2*time.Minute+16800*time.Millisecond, MaxDuration(Config{
		Timeout:        45 * time.Second,
		MaxRetries:     2,
		RetryBaseDelay: 600 * time.Millisecond,
	}))
	assert.Equal(t, 10*time.Second, MaxDuration(Config{Timeout: 10 * time.Second, MaxRetries: 0}))
	assert.Equal(t, defaultTimeout, MaxDuration(Config{}))
}
