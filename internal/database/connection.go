package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/marcboeker/go-duckdb/v2"
)

type OpenOptions struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	PingTimeout     time.Duration
}

// Connection is the one live handle a chat session owns.
type Connection struct {
	DB      *sql.DB
	Params  Params
	Dialect Dialect
}

// Opener matches Open so callers can substitute a mocked connection.
type Opener func(ctx context.Context, params Params, opts OpenOptions) (*Connection, error)

func Open(ctx context.Context, params Params, opts OpenOptions) (*Connection, error) {
	params, err := params.Normalize()
	if err != nil {
		return nil, err
	}
	dialect, err := DialectFor(params.Driver)
	if err != nil {
		return nil, err
	}
	dsn, err := params.DSN(opts.PingTimeout)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(dialect.sqlDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s connection: %w", dialect.Name, err)
	}
	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		db.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	pingTimeout := opts.PingTimeout
	if pingTimeout <= 0 {
		pingTimeout = 5 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", params.Redacted(), err)
	}

	return &Connection{DB: db, Params: params, Dialect: dialect}, nil
}

// Wrap adopts an already open handle, e.g. one created by sqlmock.
func Wrap(db *sql.DB, params Params) (*Connection, error) {
	if db == nil {
		return nil, fmt.Errorf("db handle is required")
	}
	params, err := params.Normalize()
	if err != nil {
		return nil, err
	}
	dialect, err := DialectFor(params.Driver)
	if err != nil {
		return nil, err
	}
	return &Connection{DB: db, Params: params, Dialect: dialect}, nil
}

func (c *Connection) Close() error {
	if c == nil || c.DB == nil {
		return nil
	}
	return c.DB.Close()
}
