package adapter

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // sqlite driver
)

func init() {
	Register("sqlite", func() Adapter { return NewSQLiteAdapter() })
}

// SQLiteAdapter implements Adapter for SQLite files. This is the default
// datastore for single-host deployments.
type SQLiteAdapter struct {
	db *sql.DB
}

// NewSQLiteAdapter creates a new SQLite adapter instance.
func NewSQLiteAdapter() *SQLiteAdapter {
	return &SQLiteAdapter{}
}

// Connect opens the SQLite database. Use ":memory:" as the path for an
// in-memory database.
func (a *SQLiteAdapter) Connect(ctx context.Context, cfg Config) error {
	path := cfg.Path
	if path == "" {
		path = ":memory:"
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("failed to open sqlite database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	a.db = db
	return nil
}

// Close closes the connection.
func (a *SQLiteAdapter) Close() error {
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}

// Query executes a statement that returns rows.
func (a *SQLiteAdapter) Query(ctx context.Context, sqlStr string) (*Rows, error) {
	if a.db == nil {
		return nil, fmt.Errorf("database connection not established")
	}
	//nolint:rowserrcheck // rows.Err() is checked by the caller after iteration
	rows, err := a.db.QueryContext(ctx, sqlStr)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	return &Rows{Rows: rows}, nil
}

// QueryRow executes a statement expected to return a single row.
func (a *SQLiteAdapter) QueryRow(ctx context.Context, sqlStr string) *sql.Row {
	return a.db.QueryRowContext(ctx, sqlStr)
}

// Exec executes a statement that returns no rows.
func (a *SQLiteAdapter) Exec(ctx context.Context, sqlStr string) error {
	if a.db == nil {
		return fmt.Errorf("database connection not established")
	}
	if _, err := a.db.ExecContext(ctx, sqlStr); err != nil {
		return fmt.Errorf("failed to execute SQL: %w", err)
	}
	return nil
}

// Ensure SQLiteAdapter implements Adapter interface
var _ Adapter = (*SQLiteAdapter)(nil)
