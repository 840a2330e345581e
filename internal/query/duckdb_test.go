package query

import (
	"context"
	"errors"
	"testing"

	"github.com/sqlchat/sqlchat/internal/database"
)

func openDuckDB(t *testing.T) *database.Connection {
	t.Helper()
	ctx := context.Background()
	conn, err := database.Open(ctx, database.Params{Driver: database.DriverDuckDB}, database.OpenOptions{})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = conn.DB.Close() })
	if _, err := conn.DB.ExecContext(ctx, `
		CREATE TABLE students (id INTEGER PRIMARY KEY, name VARCHAR);
		INSERT INTO students VALUES (1, 'Ada'), (2, 'Grace'), (3, 'Linus');
	`); err != nil {
		t.Fatalf("seed error = %v", err)
	}
	return conn
}

func countStudents(t *testing.T, conn *database.Connection) int {
	t.Helper()
	var count int
	if err := conn.DB.QueryRowContext(context.Background(), "SELECT count(*) FROM students").Scan(&count); err != nil {
		t.Fatalf("count error = %v", err)
	}
	return count
}

func TestExecuteDuckDBGuardKeepsDataIntact(t *testing.T) {
	conn := openDuckDB(t)
	executor := Executor{ReadOnly: true}
	statements := []string{
		`SELECT 'a\'; DELETE FROM students WHERE id = 1; SELECT '1'`,
		"EXPLAIN ANALYZE DELETE FROM students WHERE id = 2",
		"SELECT $$x'$$; DELETE FROM students; SELECT '1'",
		"WITH gone AS (DELETE FROM students RETURNING *) SELECT * FROM gone",
	}
	for _, sqlText := range statements {
		if _, err := executor.Execute(context.Background(), conn, sqlText); !errors.Is(err, ErrNotAllowed) {
			t.Fatalf("Execute(%q) error = %v, want ErrNotAllowed", sqlText, err)
		}
	}
	if got := countStudents(t, conn); got != 3 {
		t.Fatalf("students = %d after rejected statements, want 3", got)
	}

	result, err := executor.Execute(context.Background(), conn, `SELECT name FROM students WHERE name <> 'C:\' ORDER BY id`)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(result.Rows) != 3 || result.Rows[0][0] != "Ada" {
		t.Fatalf("rows = %#v", result.Rows)
	}
}
