package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sqlchat/sqlchat/internal/config"
	"github.com/sqlchat/sqlchat/internal/database"
	"github.com/sqlchat/sqlchat/internal/export"
	"github.com/sqlchat/sqlchat/internal/memory"
	"github.com/sqlchat/sqlchat/internal/observability"
	"github.com/sqlchat/sqlchat/internal/schema"
	"github.com/sqlchat/sqlchat/internal/session"
)

type ReadinessCheck func(ctx context.Context) error

// ChatService is the single chat session behind the UI.
type ChatService interface {
	Connect(ctx context.Context, params database.Params) (session.Status, error)
	Disconnect() error
	Status() session.Status
	Schema() (schema.Description, error)
	History() []memory.Message
	Queries() []session.QueryLogEntry
	Ask(ctx context.Context, question string) (session.Reply, error)
	TurnResult(turn int) (string, session.QueryLogEntry, error)
}

type ResultExporter interface {
	Export(ctx context.Context, req export.Request) (export.Receipt, error)
}

type Dependencies struct {
	Logger            *slog.Logger
	Readiness         ReadinessCheck
	AuthMiddleware    func(http.Handler) http.Handler
	DependencyTimeout time.Duration
	Chat              ChatService
	Exporter          ResultExporter
	UI                http.Handler
}

func NewHandler(cfg config.Config, deps Dependencies) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "service": cfg.Service.Name})
	})

	mux.HandleFunc("GET /v1/ready", func(w http.ResponseWriter, r *http.Request) {
		if deps.Readiness == nil {
			writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
			return
		}
		timeout := deps.DependencyTimeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		if err := deps.Readiness(ctx); err != nil {
			writeError(r.Context(), w, http.StatusServiceUnavailable, "NOT_READY", err.Error(), true, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
	})

	mux.Handle("GET /v1/metrics", promhttp.Handler())

	routes := map[string]http.HandlerFunc{
		"GET /v1/session": func(w http.ResponseWriter, r *http.Request) {
			handleStatus(cfg, deps, w, r)
		},
		"POST /v1/session/connect": func(w http.ResponseWriter, r *http.Request) {
			handleConnect(deps, w, r)
		},
		"DELETE /v1/session": func(w http.ResponseWriter, r *http.Request) {
			handleDisconnect(deps, w, r)
		},
		"GET /v1/session/schema": func(w http.ResponseWriter, r *http.Request) {
			handleSchema(deps, w, r)
		},
		"GET /v1/session/history": func(w http.ResponseWriter, r *http.Request) {
			handleHistory(deps, w, r)
		},
		"GET /v1/session/queries": func(w http.ResponseWriter, r *http.Request) {
			handleQueries(deps, w, r)
		},
		"POST /v1/session/ask": func(w http.ResponseWriter, r *http.Request) {
			handleAsk(deps, w, r)
		},
		"POST /v1/session/turns/{turn}/export": func(w http.ResponseWriter, r *http.Request) {
			handleExport(deps, w, r)
		},
	}

	protected := http.NewServeMux()
	for pattern, handler := range routes {
		protected.HandleFunc(pattern, handler)
	}

	var protectedHandler http.Handler = protected
	if cfg.Auth.Required {
		if deps.AuthMiddleware == nil {
			if deps.Logger != nil {
				deps.Logger.Error("auth required but auth middleware missing")
			}
			protectedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeError(r.Context(), w, http.StatusInternalServerError, "AUTH_MIDDLEWARE_MISSING", "auth middleware is required by configuration", false, nil)
			})
		} else {
			protectedHandler = deps.AuthMiddleware(protectedHandler)
		}
	}
	for pattern := range routes {
		mux.Handle(pattern, protectedHandler)
	}
	if deps.UI != nil {
		mux.Handle("GET /{path...}", deps.UI)
	}

	middlewares := []func(http.Handler) http.Handler{
		observability.TraceMiddleware,
		observability.MetricsMiddleware,
	}
	if deps.Logger != nil {
		middlewares = append(middlewares, observability.LoggingMiddleware(deps.Logger))
	}
	return chain(mux, middlewares...)
}

// CheckLLMConfig fails when the selected provider is missing a setting it
// needs to serve requests.
func CheckLLMConfig(cfg config.Config) ReadinessCheck {
	return func(_ context.Context) error {
		switch strings.ToLower(cfg.LLM.Provider) {
		case "openai":
			if cfg.LLM.APIKey == "" {
				return errors.New("llm api key is not configured")
			}
		case "ollama":
			if cfg.LLM.OllamaHost == "" {
				return errors.New("ollama host is not configured")
			}
		default:
			return errors.New("llm provider is not configured")
		}
		if cfg.LLM.Model == "" {
			return errors.New("llm model is not configured")
		}
		return nil
	}
}

func CheckObjectStoreConfig(cfg config.Config) ReadinessCheck {
	return func(_ context.Context) error {
		if !cfg.Export.Enabled {
			return nil
		}
		if cfg.Export.Endpoint == "" {
			return errors.New("export endpoint is not configured")
		}
		if cfg.Export.Bucket == "" {
			return errors.New("export bucket is not configured")
		}
		return nil
	}
}

func CombineReadinessChecks(checks ...ReadinessCheck) ReadinessCheck {
	filtered := make([]ReadinessCheck, 0, len(checks))
	for _, check := range checks {
		if check != nil {
			filtered = append(filtered, check)
		}
	}
	return func(ctx context.Context) error {
		for _, check := range filtered {
			if err := check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

func chain(base http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	wrapped := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		wrapped = middlewares[i](wrapped)
	}
	return wrapped
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, code, message string, retryable bool, extra map[string]any) {
	writeJSON(w, status, map[string]any{
		"error_code": code,
		"message":    message,
		"retryable":  retryable,
		"context":    extra,
		"trace_id":   observability.TraceIDFromContext(ctx),
	})
}
