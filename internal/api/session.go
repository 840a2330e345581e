package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/sqlchat/sqlchat/internal/auth"
	"github.com/sqlchat/sqlchat/internal/config"
	"github.com/sqlchat/sqlchat/internal/database"
	"github.com/sqlchat/sqlchat/internal/session"
)

type connectionDefaults struct {
	Driver   string `json:"driver"`
	Host     string `json:"host"`
	Port     string `json:"port"`
	User     string `json:"user"`
	Database string `json:"database"`
}

type statusResponse struct {
	session.Status
	Defaults      connectionDefaults `json:"defaults"`
	ExportEnabled bool               `json:"export_enabled"`
}

type askRequest struct {
	Question string `json:"question"`
}

func handleStatus(cfg config.Config, deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !chatConfigured(deps, w, r) || !authorize(w, r, auth.RoleChatUser) {
		return
	}
	// The password is never pre-filled.
	writeJSON(w, http.StatusOK, statusResponse{
		Status: deps.Chat.Status(),
		Defaults: connectionDefaults{
			Driver:   cfg.Database.Driver,
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Database: cfg.Database.Database,
		},
		ExportEnabled: deps.Exporter != nil,
	})
}

func handleConnect(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !chatConfigured(deps, w, r) || !authorize(w, r, auth.RoleChatUser) {
		return
	}

	var params database.Params
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&params); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid connect request body", false, map[string]any{"details": err.Error()})
		return
	}

	status, err := deps.Chat.Connect(r.Context(), params)
	if err != nil {
		writeTurnError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func handleDisconnect(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !chatConfigured(deps, w, r) || !authorize(w, r, auth.RoleChatUser) {
		return
	}
	if err := deps.Chat.Disconnect(); err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "DISCONNECT_FAILED", "failed to close the database connection", false, map[string]any{"details": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, deps.Chat.Status())
}

func handleSchema(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !chatConfigured(deps, w, r) || !authorize(w, r, auth.RoleChatUser) {
		return
	}
	desc, err := deps.Chat.Schema()
	if err != nil {
		writeTurnError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"dialect": desc.Dialect,
		"tables":  desc.Tables,
		"text":    desc.Text(),
	})
}

func handleHistory(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !chatConfigured(deps, w, r) || !authorize(w, r, auth.RoleChatUser) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": deps.Chat.History()})
}

func handleQueries(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !chatConfigured(deps, w, r) || !authorize(w, r, auth.RoleChatUser) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"queries": deps.Chat.Queries()})
}

func handleAsk(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !chatConfigured(deps, w, r) || !authorize(w, r, auth.RoleChatUser) {
		return
	}

	var req askRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid ask request body", false, map[string]any{"details": err.Error()})
		return
	}

	reply, err := deps.Chat.Ask(r.Context(), req.Question)
	if err != nil {
		writeTurnError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

// writeTurnError maps session failures onto the error envelope. Driver and
// model errors are passed through as the message.
func writeTurnError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, session.ErrEmptyQuestion) {
		writeError(r.Context(), w, http.StatusBadRequest, "QUESTION_REQUIRED", err.Error(), false, nil)
		return
	}
	if errors.Is(err, session.ErrNotConnected) {
		writeError(r.Context(), w, http.StatusConflict, "NOT_CONNECTED", "connect to a database first", false, nil)
		return
	}

	var turnErr *session.TurnError
	if !errors.As(err, &turnErr) {
		writeError(r.Context(), w, http.StatusInternalServerError, "INTERNAL", err.Error(), false, nil)
		return
	}
	extra := map[string]any{"stage": turnErr.Stage}
	switch turnErr.Kind {
	case session.KindConnection:
		writeError(r.Context(), w, http.StatusBadGateway, "CONNECTION_FAILED", turnErr.Err.Error(), true, extra)
	case session.KindGeneration:
		writeError(r.Context(), w, http.StatusBadGateway, "GENERATION_FAILED", turnErr.Err.Error(), true, extra)
	case session.KindExecution:
		writeError(r.Context(), w, http.StatusUnprocessableEntity, "EXECUTION_FAILED", turnErr.Err.Error(), false, extra)
	default:
		writeError(r.Context(), w, http.StatusInternalServerError, "INTERNAL", turnErr.Err.Error(), false, extra)
	}
}

func chatConfigured(deps Dependencies, w http.ResponseWriter, r *http.Request) bool {
	if deps.Chat == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "CHAT_NOT_CONFIGURED", "chat session is not configured", false, nil)
		return false
	}
	return true
}

func authorize(w http.ResponseWriter, r *http.Request, role string) bool {
	if err := requireRole(r, role); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return false
	}
	return true
}

func requireRole(r *http.Request, role string) error {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		return nil
	}
	if identity.HasRole(role) {
		return nil
	}
	return fmt.Errorf("missing required role %q", role)
}
