package session

import (
	"time"

	"github.com/sqlchat/sqlchat/internal/database"
	"github.com/sqlchat/sqlchat/internal/memory"
	"github.com/sqlchat/sqlchat/internal/query"
	"github.com/sqlchat/sqlchat/internal/schema"
)

// Session is the state bound to one open connection. It is dropped as a
// whole on disconnect or reconnect.
type Session struct {
	ID          string
	Conn        *database.Connection
	Schema      schema.Description
	SchemaText  string
	History     memory.History
	Queries     []QueryLogEntry
	ConnectedAt time.Time
}

// QueryLogEntry is the debug record of one turn.
type QueryLogEntry struct {
	Turn         int           `json:"turn"`
	Timestamp    time.Time     `json:"timestamp"`
	Question     string        `json:"question"`
	GeneratedSQL string        `json:"generated_sql,omitempty"`
	ValidatedSQL string        `json:"validated_sql,omitempty"`
	Result       *query.Result `json:"result,omitempty"`
	ResultText   string        `json:"result_text,omitempty"`
	Answer       string        `json:"answer,omitempty"`
	ErrorKind    Kind          `json:"error_kind,omitempty"`
	Error        string        `json:"error,omitempty"`
	DurationMs   int64         `json:"duration_ms"`
}

type Status struct {
	Connected   bool       `json:"connected"`
	SessionID   string     `json:"session_id,omitempty"`
	Driver      string     `json:"driver,omitempty"`
	Dialect     string     `json:"dialect,omitempty"`
	Target      string     `json:"target,omitempty"`
	Tables      []string   `json:"tables,omitempty"`
	Turns       int        `json:"turns"`
	ConnectedAt *time.Time `json:"connected_at,omitempty"`
}

// Reply is the outcome of one successful turn.
type Reply struct {
	Turn         int          `json:"turn"`
	Question     string       `json:"question"`
	GeneratedSQL string       `json:"generated_sql"`
	SQL          string       `json:"sql"`
	Answer       string       `json:"answer"`
	Result       query.Result `json:"result"`
	DurationMs   int64        `json:"duration_ms"`
}

func (s *Session) status() Status {
	connectedAt := s.ConnectedAt
	return Status{
		Connected:   true,
		SessionID:   s.ID,
		Driver:      string(s.Conn.Params.Driver),
		Dialect:     s.Conn.Dialect.Name,
		Target:      s.Conn.Params.Redacted(),
		Tables:      s.Schema.TableNames(),
		Turns:       s.History.Turns(),
		ConnectedAt: &connectedAt,
	}
}
