package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	providerdomain "github.com/smallbiznis/genstudio/internal/provider/domain"
	obsmetrics "github.com/smallbiznis/genstudio/internal/observability/metrics"
	obstracing "github.com/smallbiznis/genstudio/internal/observability/tracing"
	"go.uber.org/zap"
)

const (
	defaultTimeout    = 45 * time.Second
	defaultMaxRetries = 2
	defaultRetryDelay = 600 * time.Millisecond
	maxResponseBytes  = 32 << 20
	snippetLength     = 240
)

type Config struct {
	Provider       string
	BaseURL        string
	Timeout        time.Duration
	MaxRetries     int
	RetryBaseDelay time.Duration
	Header         http.Header
	HTTPClient     *http.Client
	Log            *zap.Logger
	Metrics        *obsmetrics.Metrics
}

// Client sends provider requests with a per-attempt timeout and linear retry
// backoff for transport errors, timeouts, 429 and 5xx responses.
type Client struct {
	provider   string
	baseURL    string
	timeout    time.Duration
	maxRetries int
	baseDelay  time.Duration
	header     http.Header
	http       *http.Client
	log        *zap.Logger
	metrics    *obsmetrics.Metrics
}

type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   any
	Header http.Header
}

type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

func New(cfg Config) *Client {
	c := &Client{
		provider:   cfg.Provider,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		timeout:    cfg.Timeout,
		maxRetries: cfg.MaxRetries,
		baseDelay:  cfg.RetryBaseDelay,
		header:     cfg.Header.Clone(),
		http:       cfg.HTTPClient,
		log:        cfg.Log,
		metrics:    cfg.Metrics,
	}
	if c.timeout <= 0 {
		c.timeout = defaultTimeout
	}
	if c.maxRetries < 0 {
		c.maxRetries = defaultMaxRetries
	}
	if c.baseDelay <= 0 {
		c.baseDelay = defaultRetryDelay
	}
	c.http = obstracing.WrapHTTPClient(c.http)
	if c.log == nil {
		c.log = zap.NewNop()
	}
	c.log = c.log.Named("provider.http").With(zap.String("provider", c.provider))
	return c
}

// MaxDuration is the longest Do can take with cfg: every attempt running to
// its timeout plus the linear waits between them.
func MaxDuration(cfg Config) time.Duration {
	c := New(Config{Timeout: cfg.Timeout, MaxRetries: cfg.MaxRetries, RetryBaseDelay: cfg.RetryBaseDelay})
	attempts := time.Duration(c.maxRetries + 1)
	waits := c.baseDelay * time.Duration(c.maxRetries*(c.maxRetries+1)/2)
	return attempts*c.timeout + waits
}

// Do sends req and returns the first 2xx response. Failures are *DispatchError.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	var payload []byte
	if req.Body != nil {
		encoded, err := json.Marshal(req.Body)
		if err != nil {
			return nil, providerdomain.Permanent(c.provider, 0, "encode_request", err.Error())
		}
		payload = encoded
	}

	attempt := 0
	operation := func() (*Response, error) {
		attempt++
		resp, err := c.send(ctx, req, payload)
		if err == nil {
			return resp, nil
		}
		if !providerdomain.IsRetryable(err) {
			return nil, backoff.Permanent(err)
		}
		if attempt <= c.maxRetries {
			c.log.Warn("provider request failed, retrying",
				zap.String("path", req.Path),
				zap.Int("attempt", attempt),
				zap.Int("max_retries", c.maxRetries),
				zap.Error(err),
			)
		}
		return nil, err
	}

	resp, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(&linearBackOff{base: c.baseDelay}),
		backoff.WithMaxTries(uint(c.maxRetries+1)),
	)
	if err != nil {
		var de *providerdomain.DispatchError
		if !errors.As(err, &de) {
			return nil, providerdomain.Retryable(c.provider, 0, err)
		}
		return nil, err
	}
	return resp, nil
}

// DoJSON sends req and decodes the response body into out.
func (c *Client) DoJSON(ctx context.Context, req Request, out any) (*Response, error) {
	resp, err := c.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	if out == nil {
		return resp, nil
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return resp, providerdomain.Permanent(c.provider, resp.StatusCode, "invalid_json",
			fmt.Sprintf("invalid JSON response: %s", Snippet(resp.Body)))
	}
	return resp, nil
}

func (c *Client) send(ctx context.Context, req Request, payload []byte) (*Response, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	target := c.baseURL + req.Path
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	httpReq, err := http.NewRequestWithContext(attemptCtx, method, target, body)
	if err != nil {
		return nil, providerdomain.Permanent(c.provider, 0, "build_request", err.Error())
	}
	for key, values := range c.header {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}
	for key, values := range req.Header {
		httpReq.Header.Del(key)
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}
	if payload != nil && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	started := time.Now()
	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		c.metrics.RecordProviderRequest(ctx, c.provider, 0)
		return nil, providerdomain.Retryable(c.provider, 0, err)
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	c.metrics.RecordProviderRequest(ctx, c.provider, httpResp.StatusCode)
	if err != nil {
		return nil, providerdomain.Retryable(c.provider, httpResp.StatusCode, err)
	}

	c.log.Debug("provider response",
		zap.String("method", method),
		zap.String("path", req.Path),
		zap.Int("status", httpResp.StatusCode),
		zap.Duration("duration", time.Since(started)),
	)

	status := httpResp.StatusCode
	switch {
	case status == http.StatusTooManyRequests || status >= 500:
		return nil, &providerdomain.DispatchError{
			Provider:   c.provider,
			StatusCode: status,
			Code:       strconv.Itoa(status),
			Message:    fmt.Sprintf("HTTP %d for %s: %s", status, req.Path, Snippet(data)),
			Retryable:  true,
		}
	case status >= 400:
		return nil, providerdomain.Permanent(c.provider, status, strconv.Itoa(status),
			fmt.Sprintf("HTTP %d for %s: %s", status, req.Path, Snippet(data)))
	}

	return &Response{
		StatusCode: status,
		Header:     httpResp.Header,
		Body:       data,
	}, nil
}

// Snippet trims a response body for error messages.
func Snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > snippetLength {
		return s[:snippetLength]
	}
	return s
}

// linearBackOff waits base, 2*base, 3*base, ... between attempts.
type linearBackOff struct {
	base    time.Duration
	attempt int
}

func (b *linearBackOff) NextBackOff() time.Duration {
	b.attempt++
	return b.base * time.Duration(b.attempt)
}

func (b *linearBackOff) Reset() {
	b.attempt = 0
}
