// Package correlation carries the id that ties a request or poll cycle to the
// logs, spans and notifications it produces.
package correlation

import (
	"context"
	"strings"

	"github.com/oklog/ulid/v2"
)

type correlationKey struct{}

// ExtractCorrelationID returns the id on ctx, or "" when none was set.
func ExtractCorrelationID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if val, ok := ctx.Value(correlationKey{}).(string); ok {
		return val
	}
	return ""
}

// ContextWithCorrelationID stores id on ctx. Blank ids leave ctx unchanged.
func ContextWithCorrelationID(ctx context.Context, id string) context.Context {
	id = strings.TrimSpace(id)
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, correlationKey{}, id)
}

// EnsureCorrelationID keeps an existing id or mints a ULID.
func EnsureCorrelationID(ctx context.Context) (context.Context, string) {
	cid := ExtractCorrelationID(ctx)
	if cid == "" {
		cid = ulid.Make().String()
	}
	return ContextWithCorrelationID(ctx, cid), cid
}
