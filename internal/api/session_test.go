package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sqlchat/sqlchat/internal/database"
	"github.com/sqlchat/sqlchat/internal/memory"
	"github.com/sqlchat/sqlchat/internal/query"
	"github.com/sqlchat/sqlchat/internal/schema"
	"github.com/sqlchat/sqlchat/internal/session"
)

type fakeChat struct {
	status      session.Status
	connectErr  error
	connected   database.Params
	desc        schema.Description
	history     []memory.Message
	queries     []session.QueryLogEntry
	reply       session.Reply
	askErr      error
	asked       string
	sessionID   string
	turnErr     error
	disconnects int
}

func (f *fakeChat) Connect(_ context.Context, params database.Params) (session.Status, error) {
	f.connected = params
	if f.connectErr != nil {
		return session.Status{}, f.connectErr
	}
	f.status = session.Status{Connected: true, SessionID: "s-1", Driver: string(params.Driver)}
	return f.status, nil
}

func (f *fakeChat) Disconnect() error {
	f.disconnects++
	f.status = session.Status{}
	return nil
}

func (f *fakeChat) Status() session.Status { return f.status }

func (f *fakeChat) Schema() (schema.Description, error) {
	if !f.status.Connected {
		return schema.Description{}, session.ErrNotConnected
	}
	return f.desc, nil
}

func (f *fakeChat) History() []memory.Message { return f.history }

func (f *fakeChat) Queries() []session.QueryLogEntry { return f.queries }

func (f *fakeChat) Ask(_ context.Context, question string) (session.Reply, error) {
	f.asked = question
	if f.askErr != nil {
		return session.Reply{}, f.askErr
	}
	return f.reply, nil
}

func (f *fakeChat) TurnResult(turn int) (string, session.QueryLogEntry, error) {
	if f.turnErr != nil {
		return "", session.QueryLogEntry{}, f.turnErr
	}
	if turn < 1 || turn > len(f.queries) {
		return "", session.QueryLogEntry{}, fmt.Errorf("%w: %d", session.ErrTurnNotFound, turn)
	}
	return f.sessionID, f.queries[turn-1], nil
}

func TestStatusIncludesConnectionDefaults(t *testing.T) {
	cfg := loadConfig(t, map[string]string{})
	h := NewHandler(cfg, Dependencies{Chat: &fakeChat{}})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/session", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["connected"] != false {
		t.Fatalf("connected = %v", body["connected"])
	}
	defaults, ok := body["defaults"].(map[string]any)
	if !ok {
		t.Fatalf("defaults missing: %v", body)
	}
	if defaults["host"] != "localhost" || defaults["port"] != "3306" || defaults["user"] != "root" || defaults["driver"] != "mysql" {
		t.Fatalf("defaults = %v", defaults)
	}
	if _, ok := defaults["password"]; ok {
		t.Fatal("password must not be part of the defaults")
	}
	if body["export_enabled"] != false {
		t.Fatalf("export_enabled = %v", body["export_enabled"])
	}
}

func TestConnectPassesParams(t *testing.T) {
	chat := &fakeChat{}
	h := NewHandler(loadConfig(t, map[string]string{}), Dependencies{Chat: chat})

	body := `{"driver":"postgres","host":"db","port":"5432","user":"analyst","password":"pw","database":"uni"}`
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/session/connect", strings.NewReader(body)))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
	}
	if chat.connected.Driver != database.DriverPostgres || chat.connected.Password != "pw" || chat.connected.Database != "uni" {
		t.Fatalf("connected = %+v", chat.connected)
	}
	if decodeBody(t, rr)["session_id"] != "s-1" {
		t.Fatal("expected session id in response")
	}
}

func TestConnectFailureIsConnectionError(t *testing.T) {
	chat := &fakeChat{connectErr: &session.TurnError{
		Kind:  session.KindConnection,
		Stage: "connect",
		Err:   errors.New("dial tcp 127.0.0.1:3306: connect: connection refused"),
	}}
	h := NewHandler(loadConfig(t, map[string]string{}), Dependencies{Chat: chat})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/session/connect", strings.NewReader(`{"host":"localhost"}`)))

	if rr.Code != http.StatusBadGateway {
		t.Fatalf("status = %d", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["error_code"] != "CONNECTION_FAILED" {
		t.Fatalf("error_code = %v", body["error_code"])
	}
	if body["message"] != "dial tcp 127.0.0.1:3306: connect: connection refused" {
		t.Fatalf("message = %v", body["message"])
	}
}

func TestConnectRejectsInvalidJSON(t *testing.T) {
	h := NewHandler(loadConfig(t, map[string]string{}), Dependencies{Chat: &fakeChat{}})

	for _, body := range []string{`{`, `{"hostname":"db"}`} {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/session/connect", strings.NewReader(body)))
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("body %q status = %d", body, rr.Code)
		}
	}
}

func TestAskReturnsReply(t *testing.T) {
	chat := &fakeChat{reply: session.Reply{
		Turn:     1,
		Question: "How many students?",
		SQL:      "SELECT COUNT(*) FROM students",
		Answer:   "There are 42 students.",
		Result:   query.Result{Columns: []string{"COUNT(*)"}, Rows: [][]any{{int64(42)}}},
	}}
	h := NewHandler(loadConfig(t, map[string]string{}), Dependencies{Chat: chat})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/session/ask", strings.NewReader(`{"question":"How many students?"}`)))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
	}
	if chat.asked != "How many students?" {
		t.Fatalf("asked = %q", chat.asked)
	}
	body := decodeBody(t, rr)
	if body["answer"] != "There are 42 students." || body["sql"] != "SELECT COUNT(*) FROM students" {
		t.Fatalf("body = %v", body)
	}
}

func TestAskErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{
			name:   "empty question",
			err:    session.ErrEmptyQuestion,
			status: http.StatusBadRequest,
			code:   "QUESTION_REQUIRED",
		},
		{
			name:   "not connected",
			err:    &session.TurnError{Kind: session.KindConnection, Stage: "ask", Err: session.ErrNotConnected},
			status: http.StatusConflict,
			code:   "NOT_CONNECTED",
		},
		{
			name:   "generation",
			err:    &session.TurnError{Kind: session.KindGeneration, Stage: "generate_sql", Err: errors.New("model unavailable")},
			status: http.StatusBadGateway,
			code:   "GENERATION_FAILED",
		},
		{
			name:   "execution",
			err:    &session.TurnError{Kind: session.KindExecution, Stage: "execute", Err: errors.New("Error 1064 (42000): You have an error in your SQL syntax")},
			status: http.StatusUnprocessableEntity,
			code:   "EXECUTION_FAILED",
		},
		{
			name:   "unexpected",
			err:    errors.New("boom"),
			status: http.StatusInternalServerError,
			code:   "INTERNAL",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler(loadConfig(t, map[string]string{}), Dependencies{Chat: &fakeChat{askErr: tt.err}})
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/session/ask", strings.NewReader(`{"question":"q"}`)))

			if rr.Code != tt.status {
				t.Fatalf("status = %d, want %d", rr.Code, tt.status)
			}
			if code := decodeBody(t, rr)["error_code"]; code != tt.code {
				t.Fatalf("error_code = %v, want %s", code, tt.code)
			}
		})
	}
}

func TestExecutionErrorCarriesDriverMessage(t *testing.T) {
	driverErr := errors.New("Error 1146 (42S02): Table 'uni.studnets' doesn't exist")
	chat := &fakeChat{askErr: &session.TurnError{Kind: session.KindExecution, Stage: "execute", Err: driverErr}}
	h := NewHandler(loadConfig(t, map[string]string{}), Dependencies{Chat: chat})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/session/ask", strings.NewReader(`{"question":"q"}`)))

	body := decodeBody(t, rr)
	if body["message"] != driverErr.Error() {
		t.Fatalf("message = %v", body["message"])
	}
	extra, _ := body["context"].(map[string]any)
	if extra["stage"] != "execute" {
		t.Fatalf("context = %v", body["context"])
	}
}

func TestSchemaRequiresConnection(t *testing.T) {
	chat := &fakeChat{}
	h := NewHandler(loadConfig(t, map[string]string{}), Dependencies{Chat: chat})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/session/schema", nil))
	if rr.Code != http.StatusConflict {
		t.Fatalf("status = %d", rr.Code)
	}

	chat.status = session.Status{Connected: true}
	chat.desc = schema.Description{
		Dialect: "MySQL",
		Tables: []schema.Table{{
			Name:    "students",
			Columns: []schema.Column{{Name: "id", Type: "int", PrimaryKey: true}},
		}},
	}
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/session/schema", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	text, _ := decodeBody(t, rr)["text"].(string)
	if !strings.Contains(text, "CREATE TABLE students") {
		t.Fatalf("text = %q", text)
	}
}

func TestHistoryAndQueries(t *testing.T) {
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	chat := &fakeChat{
		history: []memory.Message{
			{Speaker: memory.Human, Content: "How many students?", At: at},
			{Speaker: memory.Assistant, Content: "42", At: at},
		},
		queries: []session.QueryLogEntry{{Turn: 1, Question: "How many students?", GeneratedSQL: "SELECT 42"}},
	}
	h := NewHandler(loadConfig(t, map[string]string{}), Dependencies{Chat: chat})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/session/history", nil))
	messages, _ := decodeBody(t, rr)["messages"].([]any)
	if len(messages) != 2 {
		t.Fatalf("messages = %v", messages)
	}
	first, _ := messages[0].(map[string]any)
	if first["speaker"] != "human" {
		t.Fatalf("first message = %v", first)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/session/queries", nil))
	queries, _ := decodeBody(t, rr)["queries"].([]any)
	if len(queries) != 1 {
		t.Fatalf("queries = %v", queries)
	}
	entry, _ := queries[0].(map[string]any)
	if entry["generated_sql"] != "SELECT 42" {
		t.Fatalf("entry = %v", entry)
	}
}

func TestDisconnect(t *testing.T) {
	chat := &fakeChat{status: session.Status{Connected: true}}
	h := NewHandler(loadConfig(t, map[string]string{}), Dependencies{Chat: chat})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/v1/session", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if chat.disconnects != 1 {
		t.Fatalf("disconnects = %d", chat.disconnects)
	}
	if decodeBody(t, rr)["connected"] != false {
		t.Fatal("expected disconnected status")
	}
}
