package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/sqlchat/sqlchat/internal/auth"
	"github.com/sqlchat/sqlchat/internal/export"
	"github.com/sqlchat/sqlchat/internal/session"
)

func handleExport(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Exporter == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "EXPORT_NOT_CONFIGURED", "result export is not enabled", false, nil)
		return
	}
	if !chatConfigured(deps, w, r) || !authorize(w, r, auth.RoleExporter) {
		return
	}

	turn, err := strconv.Atoi(r.PathValue("turn"))
	if err != nil || turn < 1 {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_TURN", "turn must be a positive integer", false, map[string]any{"turn": r.PathValue("turn")})
		return
	}

	sessionID, entry, err := deps.Chat.TurnResult(turn)
	switch {
	case errors.Is(err, session.ErrNotConnected):
		writeError(r.Context(), w, http.StatusConflict, "NOT_CONNECTED", "connect to a database first", false, nil)
		return
	case errors.Is(err, session.ErrTurnNotFound):
		writeError(r.Context(), w, http.StatusNotFound, "TURN_NOT_FOUND", err.Error(), false, map[string]any{"turn": turn})
		return
	case errors.Is(err, session.ErrNoResult):
		writeError(r.Context(), w, http.StatusConflict, "NO_RESULT", err.Error(), false, map[string]any{"turn": turn})
		return
	case err != nil:
		writeError(r.Context(), w, http.StatusInternalServerError, "INTERNAL", err.Error(), false, nil)
		return
	}

	sql := entry.ValidatedSQL
	if sql == "" {
		sql = entry.GeneratedSQL
	}
	receipt, err := deps.Exporter.Export(r.Context(), export.Request{
		SessionID: sessionID,
		Turn:      turn,
		Question:  entry.Question,
		SQL:       sql,
		Result:    *entry.Result,
	})
	if errors.Is(err, export.ErrEmptyResult) {
		writeError(r.Context(), w, http.StatusUnprocessableEntity, "EMPTY_RESULT", "turn result has no rows to export", false, map[string]any{"turn": turn})
		return
	}
	if err != nil {
		if deps.Logger != nil {
			deps.Logger.Warn("result export failed", slog.String("session_id", sessionID), slog.Int("turn", turn), slog.Any("error", err))
		}
		writeError(r.Context(), w, http.StatusBadGateway, "EXPORT_FAILED", "failed to write export", true, map[string]any{"details": err.Error()})
		return
	}

	status := http.StatusCreated
	if receipt.Existing {
		status = http.StatusOK
	}
	writeJSON(w, status, receipt)
}
