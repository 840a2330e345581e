package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sqlchat/sqlchat/internal/answer"
	"github.com/sqlchat/sqlchat/internal/database"
	"github.com/sqlchat/sqlchat/internal/memory"
	"github.com/sqlchat/sqlchat/internal/nl2sql"
	"github.com/sqlchat/sqlchat/internal/observability"
	"github.com/sqlchat/sqlchat/internal/query"
	"github.com/sqlchat/sqlchat/internal/schema"
)

type Config struct {
	HistoryWindow    int
	SchemaSampleRows int
	OpenOptions      database.OpenOptions
	Executor         query.Executor
}

type Dependencies struct {
	Opener     database.Opener
	Translator nl2sql.Translator
	// Validator is optional; nil skips the validation pass.
	Validator nl2sql.Validator
	Responder answer.Responder
	Logger    *slog.Logger
	Now       func() time.Time
}

// Manager owns the single chat session. Every operation holds mu, so
// concurrent requests run one after another.
type Manager struct {
	mu      sync.Mutex
	cfg     Config
	deps    Dependencies
	current *Session
}

func NewManager(cfg Config, deps Dependencies) (*Manager, error) {
	if deps.Translator == nil {
		return nil, fmt.Errorf("translator is required")
	}
	if deps.Responder == nil {
		return nil, fmt.Errorf("responder is required")
	}
	if deps.Opener == nil {
		deps.Opener = database.Open
	}
	if deps.Logger == nil {
		deps.Logger = observability.NopLogger()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Manager{cfg: cfg, deps: deps}, nil
}

// Connect opens a connection and introspects its schema. The previous
// session, if any, is closed and its history discarded only once the new
// connection is ready.
func (m *Manager) Connect(ctx context.Context, params database.Params) (Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	conn, err := m.deps.Opener(ctx, params, m.cfg.OpenOptions)
	if err != nil {
		observability.ObserveConnect(driverLabel(params.Driver), err)
		m.deps.Logger.Warn("database connect failed", slog.String("driver", string(params.Driver)), slog.Any("error", err))
		return Status{}, &TurnError{Kind: KindConnection, Stage: "connect", Err: err}
	}

	desc, err := schema.Inspect(ctx, conn, schema.Options{SampleRows: m.cfg.SchemaSampleRows})
	if err != nil {
		_ = conn.Close()
		observability.ObserveConnect(string(conn.Params.Driver), err)
		m.deps.Logger.Warn("schema introspection failed", slog.String("target", conn.Params.Redacted()), slog.Any("error", err))
		return Status{}, &TurnError{Kind: KindConnection, Stage: "introspect", Err: err}
	}
	observability.ObserveConnect(string(conn.Params.Driver), nil)

	m.closeCurrent()
	m.current = &Session{
		ID:          uuid.NewString(),
		Conn:        conn,
		Schema:      desc,
		SchemaText:  desc.Text(),
		ConnectedAt: m.deps.Now().UTC(),
	}
	m.deps.Logger.Info("database connected",
		slog.String("session_id", m.current.ID),
		slog.String("target", conn.Params.Redacted()),
		slog.Int("tables", len(desc.Tables)),
	)
	return m.current.status(), nil
}

func (m *Manager) Disconnect() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closeCurrent()
}

func (m *Manager) closeCurrent() error {
	if m.current == nil {
		return nil
	}
	sessionID := m.current.ID
	err := m.current.Conn.Close()
	m.current = nil
	observability.ObserveDisconnect()
	m.deps.Logger.Info("session closed", slog.String("session_id", sessionID))
	if err != nil {
		return fmt.Errorf("close connection: %w", err)
	}
	return nil
}

func (m *Manager) Close() error {
	return m.Disconnect()
}

func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return Status{}
	}
	return m.current.status()
}

func (m *Manager) Schema() (schema.Description, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return schema.Description{}, ErrNotConnected
	}
	return m.current.Schema, nil
}

func (m *Manager) History() []memory.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return []memory.Message{}
	}
	return m.current.History.Messages()
}

func (m *Manager) Queries() []QueryLogEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return []QueryLogEntry{}
	}
	out := make([]QueryLogEntry, len(m.current.Queries))
	copy(out, m.current.Queries)
	return out
}

// TurnResult returns the query log entry of a turn that produced rows.
func (m *Manager) TurnResult(turn int) (string, QueryLogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return "", QueryLogEntry{}, ErrNotConnected
	}
	if turn < 1 || turn > len(m.current.Queries) {
		return "", QueryLogEntry{}, fmt.Errorf("%w: %d", ErrTurnNotFound, turn)
	}
	entry := m.current.Queries[turn-1]
	if entry.Result == nil {
		return "", QueryLogEntry{}, fmt.Errorf("%w: %d", ErrNoResult, turn)
	}
	return m.current.ID, entry, nil
}

// Ask runs one turn: generate SQL, optionally validate it, execute it and
// phrase the answer. History grows only when every stage succeeds.
func (m *Manager) Ask(ctx context.Context, question string) (Reply, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	question = strings.TrimSpace(question)
	if question == "" {
		return Reply{}, ErrEmptyQuestion
	}
	if m.current == nil {
		observability.ObserveTurn(string(KindConnection))
		return Reply{}, &TurnError{Kind: KindConnection, Stage: "ask", Err: ErrNotConnected}
	}

	current := m.current
	start := m.deps.Now()
	entry := QueryLogEntry{
		Turn:      len(current.Queries) + 1,
		Timestamp: start.UTC(),
		Question:  question,
	}
	logger := m.deps.Logger.With(slog.String("session_id", current.ID), slog.Int("turn", entry.Turn))

	reply, err := m.runTurn(ctx, current, question, &entry)
	entry.DurationMs = m.deps.Now().Sub(start).Milliseconds()
	if err != nil {
		var turnErr *TurnError
		if errors.As(err, &turnErr) {
			entry.ErrorKind = turnErr.Kind
			entry.Error = turnErr.Err.Error()
		}
		current.Queries = append(current.Queries, entry)
		observability.ObserveTurn(string(entry.ErrorKind))
		logger.Warn("turn failed", slog.String("kind", string(entry.ErrorKind)), slog.Any("error", err))
		return Reply{}, err
	}

	current.History.AppendTurn(question, reply.Answer, entry.Timestamp)
	current.Queries = append(current.Queries, entry)
	observability.ObserveTurn("")
	logger.Info("turn completed", slog.Int("rows", len(reply.Result.Rows)), slog.Int64("duration_ms", entry.DurationMs))

	reply.Turn = entry.Turn
	reply.DurationMs = entry.DurationMs
	return reply, nil
}

func (m *Manager) runTurn(ctx context.Context, current *Session, question string, entry *QueryLogEntry) (Reply, error) {
	history := memory.Render(current.History.Window(m.cfg.HistoryWindow))
	dialect := current.Conn.Dialect.Name

	llmStart := time.Now()
	generated, err := m.deps.Translator.Translate(ctx, nl2sql.Request{
		Dialect:  dialect,
		Schema:   current.SchemaText,
		History:  history,
		Question: question,
	})
	observability.ObserveLLMCall("generate_sql", time.Since(llmStart), err)
	if err != nil {
		return Reply{}, &TurnError{Kind: KindGeneration, Stage: "generate_sql", Err: err}
	}
	entry.GeneratedSQL = generated.SQL

	sqlText := generated.SQL
	if m.deps.Validator != nil {
		llmStart = time.Now()
		validated, err := m.deps.Validator.Validate(ctx, nl2sql.ValidationRequest{
			Dialect: dialect,
			Schema:  current.SchemaText,
			SQL:     generated.SQL,
		})
		observability.ObserveLLMCall("validate_sql", time.Since(llmStart), err)
		if err != nil {
			m.deps.Logger.Warn("sql validation skipped", slog.String("session_id", current.ID), slog.Any("error", err))
		}
		if strings.TrimSpace(validated) != "" {
			sqlText = validated
		}
	}
	entry.ValidatedSQL = sqlText

	result, err := m.cfg.Executor.Execute(ctx, current.Conn, sqlText)
	observability.ObserveQuery(result.Duration, len(result.Rows), err)
	if err != nil {
		return Reply{}, &TurnError{Kind: KindExecution, Stage: "execute", Err: err}
	}
	entry.Result = &result
	entry.ResultText = result.Text()

	llmStart = time.Now()
	text, err := m.deps.Responder.Answer(ctx, answer.Request{
		Dialect:  dialect,
		Schema:   current.SchemaText,
		History:  history,
		Question: question,
		SQL:      sqlText,
		Results:  entry.ResultText,
	})
	observability.ObserveLLMCall("answer", time.Since(llmStart), err)
	if err != nil {
		return Reply{}, &TurnError{Kind: KindGeneration, Stage: "answer", Err: err}
	}
	entry.Answer = text

	return Reply{
		Question:     question,
		GeneratedSQL: generated.SQL,
		SQL:          sqlText,
		Answer:       text,
		Result:       result,
	}, nil
}

func driverLabel(driver database.Driver) string {
	parsed, err := database.ParseDriver(string(driver))
	if err != nil {
		return "unknown"
	}
	return string(parsed)
}
