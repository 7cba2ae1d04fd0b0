package audit

import (
	"context"
	"errors"
	"sort"
	"strings"

	"go.uber.org/zap"

	"cityinfo.org/internal/auth"
	"cityinfo.org/internal/obs"
)

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

// WithRequestID attaches the request identifier to the context for audit logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

func requestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// LogEvent writes an audit entry enriched with the request id and the caller's
// user id and tenant, when the context carries them.
func LogEvent(ctx context.Context, event string, fields map[string]any) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}
	entry := []zap.Field{
		zap.String("type", "audit"),
		zap.String("event", event),
	}
	if rid := requestIDFromContext(ctx); rid != "" {
		entry = append(entry, zap.String("request_id", rid))
	}
	if ctx != nil {
		claims := auth.ClaimsFromContext(ctx)
		if userID, ok := claims.UserID(); ok {
			entry = append(entry, zap.Int("user_id", userID))
		}
		if tenant := claims.Tenant(); tenant != "" {
			entry = append(entry, zap.String("tenant", tenant))
		}
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	extra := make([]zap.Field, 0, len(keys))
	for _, k := range keys {
		extra = append(extra, zap.Any(k, fields[k]))
	}
	entry = append(entry, zap.Namespace("fields"))
	entry = append(entry, extra...)

	obs.Logger().Info("audit", entry...)
	return nil
}
