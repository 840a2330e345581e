package auth

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sqlchat/sqlchat/internal/observability"
)

type contextKey string

const identityKey contextKey = "auth_identity"

const (
	reasonMissing = "missing"
	reasonInvalid = "invalid"
)

func WithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(identityKey).(Identity)
	return identity, ok
}

// Middleware guards the /v1/session routes. Role checks happen per route;
// this only establishes who is calling.
func Middleware(logger *slog.Logger, validator APIKeyValidator) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			apiKey := extractAPIKey(r)
			if apiKey == "" {
				reject(ctx, w, logger, r, reasonMissing)
				return
			}
			identity, ok := validator.Validate(ctx, apiKey)
			if !ok {
				reject(ctx, w, logger, r, reasonInvalid)
				return
			}

			logger.DebugContext(ctx, "session request authenticated",
				slog.String("subject", identity.Subject),
				slog.Any("roles", identity.Roles),
				slog.String("route", r.Method+" "+r.URL.Path),
			)
			next.ServeHTTP(w, r.WithContext(WithIdentity(ctx, identity)))
		})
	}
}

func extractAPIKey(r *http.Request) string {
	if key := strings.TrimSpace(r.Header.Get("X-API-Key")); key != "" {
		return key
	}
	scheme, token, ok := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func reject(ctx context.Context, w http.ResponseWriter, logger *slog.Logger, r *http.Request, reason string) {
	observability.ObserveAuthFailure(reason)
	logger.WarnContext(ctx, "session request rejected",
		slog.String("reason", reason),
		slog.String("trace_id", observability.TraceIDFromContext(ctx)),
		slog.String("route", r.Method+" "+r.URL.Path),
	)

	code, message := "API_KEY_REQUIRED", "an API key is required for session routes"
	if reason == reasonInvalid {
		code, message = "API_KEY_INVALID", "the API key is not recognised"
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="sqlchat"`)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error_code": code,
		"message":    message,
		"retryable":  false,
		"trace_id":   observability.TraceIDFromContext(ctx),
	})
}
