package adapter

import (
	"context"
	"database/sql"
	"fmt"
)

// FromDB wraps an already-open *sql.DB as an Adapter. Used by tests and by
// callers that manage the connection themselves.
func FromDB(db *sql.DB) Adapter {
	return &dbAdapter{db: db}
}

type dbAdapter struct {
	db *sql.DB
}

func (a *dbAdapter) Connect(context.Context, Config) error {
	return fmt.Errorf("adapter wraps an existing connection")
}

func (a *dbAdapter) Close() error {
	return a.db.Close()
}

func (a *dbAdapter) Query(ctx context.Context, sqlStr string) (*Rows, error) {
	//nolint:rowserrcheck // rows.Err() is checked by the caller after iteration
	rows, err := a.db.QueryContext(ctx, sqlStr)
	if err != nil {
		return nil, err
	}
	return &Rows{Rows: rows}, nil
}

func (a *dbAdapter) QueryRow(ctx context.Context, sqlStr string) *sql.Row {
	return a.db.QueryRowContext(ctx, sqlStr)
}

func (a *dbAdapter) Exec(ctx context.Context, sqlStr string) error {
	_, err := a.db.ExecContext(ctx, sqlStr)
	return err
}
