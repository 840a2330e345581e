package query

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sqlchat/sqlchat/internal/database"
)

const DefaultRowLimit = 200

// ErrNotAllowed is returned when the read-only guard rejects a statement.
var ErrNotAllowed = errors.New("statement not allowed")

type Result struct {
	Columns   []string      `json:"columns"`
	Rows      [][]any       `json:"rows"`
	Truncated bool          `json:"truncated"`
	Duration  time.Duration `json:"-"`
}

type Executor struct {
	ReadOnly bool
	RowLimit int
	Timeout  time.Duration
}

func (e Executor) Execute(ctx context.Context, conn *database.Connection, sqlText string) (Result, error) {
	if conn == nil || conn.DB == nil {
		return Result{}, fmt.Errorf("connection is required")
	}
	sqlText = stripTrailingSemicolons(sqlText)
	if sqlText == "" {
		return Result{}, fmt.Errorf("sql is required")
	}
	if e.ReadOnly {
		if err := checkReadOnly(sqlText, conn.Dialect); err != nil {
			return Result{}, err
		}
	}
	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	start := time.Now()
	var (
		rows *sql.Rows
		err  error
	)
	if e.ReadOnly && conn.Dialect.ReadOnlyTx {
		tx, txErr := conn.DB.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
		if txErr != nil {
			return Result{}, fmt.Errorf("begin read-only transaction: %w", txErr)
		}
		defer func() { _ = tx.Rollback() }()
		rows, err = tx.QueryContext(ctx, sqlText)
	} else {
		rows, err = conn.DB.QueryContext(ctx, sqlText)
	}
	if err != nil {
		return Result{}, err
	}
	defer func() { _ = rows.Close() }()

	result, err := collect(rows, e.rowLimit())
	if err != nil {
		return Result{}, err
	}
	result.Duration = time.Since(start)
	return result, nil
}

func (e Executor) rowLimit() int {
	if e.RowLimit > 0 {
		return e.RowLimit
	}
	return DefaultRowLimit
}

func collect(rows *sql.Rows, limit int) (Result, error) {
	columns, err := rows.Columns()
	if err != nil {
		return Result{}, fmt.Errorf("query columns: %w", err)
	}

	result := Result{Columns: columns, Rows: make([][]any, 0)}
	for rows.Next() {
		if len(result.Rows) == limit {
			result.Truncated = true
			break
		}
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return Result{}, fmt.Errorf("scan row: %w", err)
		}
		result.Rows = append(result.Rows, normalizeValues(values))
	}
	if err := rows.Err(); err != nil {
		return Result{}, err
	}
	return result, nil
}

func normalizeValues(values []any) []any {
	normalized := make([]any, len(values))
	for i, value := range values {
		normalized[i] = database.NormalizeValue(value)
	}
	return normalized
}

// Text renders the result as the tab separated table the answer prompt expects.
func (r Result) Text() string {
	if len(r.Rows) == 0 {
		return "(no rows)"
	}
	var b strings.Builder
	b.WriteString(strings.Join(r.Columns, "\t"))
	for _, row := range r.Rows {
		b.WriteString("\n")
		for i, value := range row {
			if i > 0 {
				b.WriteString("\t")
			}
			b.WriteString(database.FormatValue(value))
		}
	}
	if r.Truncated {
		fmt.Fprintf(&b, "\n(truncated after %d rows)", len(r.Rows))
	}
	return b.String()
}

func stripTrailingSemicolons(sqlText string) string {
	trimmed := strings.TrimSpace(sqlText)
	for strings.HasSuffix(trimmed, ";") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	return trimmed
}
