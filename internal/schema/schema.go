package schema

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/sqlchat/sqlchat/internal/database"
)

const DefaultSampleRows = 3

// Each statement returns table_name, column_name, data_type, is_nullable and
// column_key ('PRI' for primary key columns) for the connected schema.
var columnQueries = map[database.Driver]string{
	database.DriverMySQL: `SELECT TABLE_NAME, COLUMN_NAME, COLUMN_TYPE, IS_NULLABLE, COLUMN_KEY
FROM information_schema.COLUMNS
WHERE TABLE_SCHEMA = DATABASE()
ORDER BY TABLE_NAME, ORDINAL_POSITION`,
	database.DriverPostgres: `SELECT c.table_name, c.column_name, c.data_type, c.is_nullable,
	CASE WHEN EXISTS (
		SELECT 1
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kc
			ON tc.constraint_name = kc.constraint_name AND tc.table_schema = kc.table_schema
		WHERE tc.constraint_type = 'PRIMARY KEY'
			AND kc.table_schema = c.table_schema
			AND kc.table_name = c.table_name
			AND kc.column_name = c.column_name
	) THEN 'PRI' ELSE '' END AS column_key
FROM information_schema.columns c
WHERE c.table_schema = current_schema()
ORDER BY c.table_name, c.ordinal_position`,
	database.DriverDuckDB: `SELECT table_name, column_name, data_type, is_nullable, '' AS column_key
FROM information_schema.columns
WHERE table_schema = current_schema()
ORDER BY table_name, ordinal_position`,
}

type Options struct {
	// SampleRows is the number of rows shown per table; 0 disables sampling.
	SampleRows int
}

type Column struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	Nullable   bool   `json:"nullable"`
	PrimaryKey bool   `json:"primary_key"`
}

type Table struct {
	Name          string     `json:"name"`
	Columns       []Column   `json:"columns"`
	SampleColumns []string   `json:"sample_columns,omitempty"`
	SampleRows    [][]string `json:"sample_rows,omitempty"`
}

// Description is the schema context handed to the language model.
type Description struct {
	Dialect string  `json:"dialect"`
	Tables  []Table `json:"tables"`
}

func Inspect(ctx context.Context, conn *database.Connection, opts Options) (Description, error) {
	if conn == nil || conn.DB == nil {
		return Description{}, fmt.Errorf("inspect schema: connection is required")
	}
	query, ok := columnQueries[conn.Dialect.Driver]
	if !ok {
		return Description{}, fmt.Errorf("inspect schema: unsupported driver %q", conn.Dialect.Driver)
	}
	if opts.SampleRows < 0 {
		opts.SampleRows = 0
	}

	tables, err := loadColumns(ctx, conn.DB, query)
	if err != nil {
		return Description{}, fmt.Errorf("inspect schema: %w", err)
	}
	if opts.SampleRows > 0 {
		for i := range tables {
			columns, rows, err := sampleRows(ctx, conn, tables[i].Name, opts.SampleRows)
			if err != nil {
				continue
			}
			tables[i].SampleColumns = columns
			tables[i].SampleRows = rows
		}
	}
	return Description{Dialect: conn.Dialect.Name, Tables: tables}, nil
}

func loadColumns(ctx context.Context, db *sql.DB, query string) ([]Table, error) {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tables := make([]Table, 0)
	index := make(map[string]int)
	for rows.Next() {
		var (
			tableName  string
			columnName string
			dataType   sql.NullString
			nullable   sql.NullString
			columnKey  sql.NullString
		)
		if err := rows.Scan(&tableName, &columnName, &dataType, &nullable, &columnKey); err != nil {
			return nil, err
		}
		pos, ok := index[tableName]
		if !ok {
			pos = len(tables)
			index[tableName] = pos
			tables = append(tables, Table{Name: tableName})
		}
		tables[pos].Columns = append(tables[pos].Columns, Column{
			Name:       columnName,
			Type:       dataType.String,
			Nullable:   !strings.EqualFold(nullable.String, "NO"),
			PrimaryKey: strings.EqualFold(columnKey.String, "PRI"),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return tables, nil
}

func sampleRows(ctx context.Context, conn *database.Connection, table string, limit int) ([]string, [][]string, error) {
	query := fmt.Sprintf("SELECT * FROM %s LIMIT %d", conn.Dialect.QuoteIdent(table), limit)
	rows, err := conn.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, err
	}
	out := make([][]string, 0, limit)
	for rows.Next() {
		values := make([]any, len(columns))
		targets := make([]any, len(columns))
		for i := range values {
			targets[i] = &values[i]
		}
		if err := rows.Scan(targets...); err != nil {
			return nil, nil, err
		}
		rendered := make([]string, len(values))
		for i, value := range values {
			rendered[i] = database.FormatValue(value)
		}
		out = append(out, rendered)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	return columns, out, nil
}

func (d Description) TableNames() []string {
	names := make([]string, 0, len(d.Tables))
	for _, table := range d.Tables {
		names = append(names, table.Name)
	}
	return names
}

// Text renders one CREATE TABLE block per table followed by its sample rows.
func (d Description) Text() string {
	if len(d.Tables) == 0 {
		return "(no tables)"
	}
	var b strings.Builder
	for i, table := range d.Tables {
		if i > 0 {
			b.WriteString("\n\n")
		}
		writeTable(&b, table)
	}
	return b.String()
}

func writeTable(b *strings.Builder, table Table) {
	fmt.Fprintf(b, "CREATE TABLE %s (\n", table.Name)
	primary := make([]string, 0, 1)
	for i, column := range table.Columns {
		b.WriteString("\t")
		b.WriteString(column.Name)
		if column.Type != "" {
			b.WriteString(" ")
			b.WriteString(column.Type)
		}
		if !column.Nullable {
			b.WriteString(" NOT NULL")
		}
		if column.PrimaryKey {
			primary = append(primary, column.Name)
		}
		if i < len(table.Columns)-1 || len(primary) > 0 {
			b.WriteString(",")
		}
		b.WriteString("\n")
	}
	if len(primary) > 0 {
		fmt.Fprintf(b, "\tPRIMARY KEY (%s)\n", strings.Join(primary, ", "))
	}
	b.WriteString(")")

	if len(table.SampleColumns) == 0 {
		return
	}
	fmt.Fprintf(b, "\n\n/*\n%d rows from %s table:\n", len(table.SampleRows), table.Name)
	b.WriteString(strings.Join(table.SampleColumns, "\t"))
	b.WriteString("\n")
	for _, row := range table.SampleRows {
		b.WriteString(strings.Join(row, "\t"))
		b.WriteString("\n")
	}
	b.WriteString("*/")
}
