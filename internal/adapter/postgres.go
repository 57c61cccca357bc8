package adapter

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx database/sql driver
)

func init() {
	Register("postgres", func() Adapter { return NewPostgresAdapter() })
}

// PostgresAdapter implements Adapter for PostgreSQL via pgx.
type PostgresAdapter struct {
	db *sql.DB
}

// NewPostgresAdapter creates a new Postgres adapter instance.
func NewPostgresAdapter() *PostgresAdapter {
	return &PostgresAdapter{}
}

// postgresDSN builds the keyword/value connection string for pgx.
func postgresDSN(cfg Config) string {
	port := cfg.Port
	if port == 0 {
		port = 5432
	}
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=prefer",
		cfg.Host, port, cfg.Username, cfg.Password, cfg.Database)
	if cfg.Schema != "" {
		dsn += " search_path=" + cfg.Schema
	}
	return dsn
}

// Connect establishes a connection to PostgreSQL.
func (a *PostgresAdapter) Connect(ctx context.Context, cfg Config) error {
	db, err := sql.Open("pgx", postgresDSN(cfg))
	if err != nil {
		return fmt.Errorf("failed to open postgres connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping postgres: %w", err)
	}

	a.db = db
	return nil
}

// Close closes the connection.
func (a *PostgresAdapter) Close() error {
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}

// Query executes a statement that returns rows.
func (a *PostgresAdapter) Query(ctx context.Context, sqlStr string) (*Rows, error) {
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
func (a *PostgresAdapter) QueryRow(ctx context.Context, sqlStr string) *sql.Row {
	return a.db.QueryRowContext(ctx, sqlStr)
}

// Exec executes a statement that returns no rows.
func (a *PostgresAdapter) Exec(ctx context.Context, sqlStr string) error {
	if a.db == nil {
		return fmt.Errorf("database connection not established")
	}
	if _, err := a.db.ExecContext(ctx, sqlStr); err != nil {
		return fmt.Errorf("failed to execute SQL: %w", err)
	}
	return nil
}

// Ensure PostgresAdapter implements Adapter interface
var _ Adapter = (*PostgresAdapter)(nil)
