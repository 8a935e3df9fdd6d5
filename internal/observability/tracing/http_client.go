package tracing

import (
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// WrapHTTPClient returns a copy of client whose requests run inside a client
// span and carry the trace headers. Paths and query strings are not recorded
// because provider URLs embed task ids and tokens.
func WrapHTTPClient(client *http.Client) *http.Client {
	if client == nil {
		client = &http.Client{}
	}
	base := client.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	if _, ok := base.(*tracingTransport); ok {
		return client
	}
	wrapped := *client
	wrapped.Transport = &tracingTransport{
		base:   base,
		tracer: otel.Tracer("genstudio/http-client"),
	}
	return &wrapped
}

type tracingTransport struct {
	base   http.RoundTripper
	tracer trace.Tracer
}

func (t *tracingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	method := strings.ToUpper(req.Method)
	ctx, span := t.tracer.Start(req.Context(), "HTTP "+method+" "+req.URL.Host, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	req = req.Clone(ctx)
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	start := time.Now()
	resp, err := t.base.RoundTrip(req)
	attrs := []attribute.KeyValue{
		attribute.String("http.method", method),
		attribute.String("http.host", req.URL.Host),
		attribute.Int64("http.client_duration_ms", time.Since(start).Milliseconds()),
	}
	if err != nil {
		span.SetAttributes(SafeAttributes(attrs...)...)
		span.RecordError(SafeError(err))
		span.SetStatus(codes.Error, "transport error")
		return nil, err
	}

	attrs = append(attrs, attribute.Int("http.status_code", resp.StatusCode))
	span.SetAttributes(SafeAttributes(attrs...)...)
	if resp.StatusCode >= http.StatusInternalServerError {
		span.SetStatus(codes.Error, "upstream error")
	}
	return resp, nil
}
