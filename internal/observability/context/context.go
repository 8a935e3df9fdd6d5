package context

import (
	"context"
	"strings"
)

type ctxKey string

const (
	requestIDKey ctxKey = "obs.request_id"
	userIDKey    ctxKey = "obs.user_id"
	actorTypeKey ctxKey = "obs.actor_type"
	actorIDKey   ctxKey = "obs.actor_id"
)

const (
	ActorTypeUser     = "user"
	ActorTypeSystem   = "system"
	ActorTypeProvider = "provider"
)

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, strings.TrimSpace(requestID))
}

func RequestIDFromContext(ctx context.Context) string {
	return stringValue(ctx, requestIDKey)
}

func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, strings.TrimSpace(userID))
}

func UserIDFromContext(ctx context.Context) string {
	return stringValue(ctx, userIDKey)
}

// WithActor records who triggered the current operation.
func WithActor(ctx context.Context, actorType, actorID string) context.Context {
	ctx = context.WithValue(ctx, actorTypeKey, strings.TrimSpace(actorType))
	return context.WithValue(ctx, actorIDKey, strings.TrimSpace(actorID))
}

func ActorFromContext(ctx context.Context) (string, string) {
	return stringValue(ctx, actorTypeKey), stringValue(ctx, actorIDKey)
}

func stringValue(ctx context.Context, key ctxKey) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(key).(string)
	return value
}
