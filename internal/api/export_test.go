package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sqlchat/sqlchat/internal/auth"
	"github.com/sqlchat/sqlchat/internal/export"
	"github.com/sqlchat/sqlchat/internal/query"
	"github.com/sqlchat/sqlchat/internal/session"
)

type fakeExporter struct {
	requests []export.Request
	existing bool
	err      error
}

func (f *fakeExporter) Export(_ context.Context, req export.Request) (export.Receipt, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return export.Receipt{}, f.err
	}
	return export.Receipt{
		Key:      "sessions/s-1/turn-00001.parquet",
		Location: "s3://exports/sessions/s-1/turn-00001.parquet",
		Rows:     int64(len(req.Result.Rows)),
		Existing: f.existing,
	}, nil
}

func exportableChat() *fakeChat {
	return &fakeChat{
		sessionID: "s-1",
		queries: []session.QueryLogEntry{
			{
				Turn:         1,
				Question:     "List students",
				GeneratedSQL: "SELECT name FROM students;",
				ValidatedSQL: "SELECT name FROM students",
				Result:       &query.Result{Columns: []string{"name"}, Rows: [][]any{{"Ada"}, {"Linus"}}},
			},
			{Turn: 2, Question: "Broken", GeneratedSQL: "SELEC 1"},
		},
	}
}

func TestExportWritesTurnResult(t *testing.T) {
	exporter := &fakeExporter{}
	h := NewHandler(loadConfig(t, map[string]string{}), Dependencies{Chat: exportableChat(), Exporter: exporter})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/session/turns/1/export", nil))

	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
	}
	if len(exporter.requests) != 1 {
		t.Fatalf("requests = %d", len(exporter.requests))
	}
	req := exporter.requests[0]
	if req.SessionID != "s-1" || req.Turn != 1 || req.SQL != "SELECT name FROM students" {
		t.Fatalf("request = %+v", req)
	}
	if len(req.Result.Rows) != 2 {
		t.Fatalf("rows = %d", len(req.Result.Rows))
	}
	if decodeBody(t, rr)["location"] != "s3://exports/sessions/s-1/turn-00001.parquet" {
		t.Fatal("expected location in receipt")
	}
}

func TestExportExistingObjectReturns200(t *testing.T) {
	h := NewHandler(loadConfig(t, map[string]string{}), Dependencies{Chat: exportableChat(), Exporter: &fakeExporter{existing: true}})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/session/turns/1/export", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestExportErrors(t *testing.T) {
	tests := []struct {
		name     string
		turn     string
		chat     *fakeChat
		exporter *fakeExporter
		status   int
		code     string
	}{
		{name: "bad turn", turn: "abc", chat: exportableChat(), exporter: &fakeExporter{}, status: http.StatusBadRequest, code: "INVALID_TURN"},
		{name: "zero turn", turn: "0", chat: exportableChat(), exporter: &fakeExporter{}, status: http.StatusBadRequest, code: "INVALID_TURN"},
		{name: "missing turn", turn: "9", chat: exportableChat(), exporter: &fakeExporter{}, status: http.StatusNotFound, code: "TURN_NOT_FOUND"},
		{name: "no result", turn: "2", chat: &fakeChat{turnErr: session.ErrNoResult}, exporter: &fakeExporter{}, status: http.StatusConflict, code: "NO_RESULT"},
		{name: "not connected", turn: "1", chat: &fakeChat{turnErr: session.ErrNotConnected}, exporter: &fakeExporter{}, status: http.StatusConflict, code: "NOT_CONNECTED"},
		{name: "empty result", turn: "1", chat: exportableChat(), exporter: &fakeExporter{err: export.ErrEmptyResult}, status: http.StatusUnprocessableEntity, code: "EMPTY_RESULT"},
		{name: "store failure", turn: "1", chat: exportableChat(), exporter: &fakeExporter{err: errors.New("bucket unreachable")}, status: http.StatusBadGateway, code: "EXPORT_FAILED"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler(loadConfig(t, map[string]string{}), Dependencies{Chat: tt.chat, Exporter: tt.exporter})
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/session/turns/"+tt.turn+"/export", nil))

			if rr.Code != tt.status {
				t.Fatalf("status = %d, want %d", rr.Code, tt.status)
			}
			if code := decodeBody(t, rr)["error_code"]; code != tt.code {
				t.Fatalf("error_code = %v, want %s", code, tt.code)
			}
		})
	}
}

func TestExportDisabledReturns501(t *testing.T) {
	h := NewHandler(loadConfig(t, map[string]string{}), Dependencies{Chat: exportableChat()})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/session/turns/1/export", nil))
	if rr.Code != http.StatusNotImplemented {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestExportRequiresExporterRole(t *testing.T) {
	cfg := loadConfig(t, map[string]string{"SQLCHAT_AUTH_REQUIRED": "true"})
	validator, err := auth.NewStaticAPIKeyValidator("k1:alice:chat_user,k2:bob:exporter")
	if err != nil {
		t.Fatalf("validator setup failed: %v", err)
	}
	h := NewHandler(cfg, Dependencies{
		AuthMiddleware: auth.Middleware(nil, validator),
		Chat:           exportableChat(),
		Exporter:       &fakeExporter{},
	})

	for key, want := range map[string]int{"k1": http.StatusForbidden, "k2": http.StatusCreated} {
		req := httptest.NewRequest(http.MethodPost, "/v1/session/turns/1/export", nil)
		req.Header.Set("X-API-Key", key)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if rr.Code != want {
			t.Fatalf("key %s status = %d, want %d", key, rr.Code, want)
		}
	}
}
