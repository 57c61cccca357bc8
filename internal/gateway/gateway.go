// Package gateway executes compiled or user-supplied SQL against the
// datastore and materializes results as rowsets.
//
// User-supplied SQL is restricted to SELECT statements. The gateway imposes
// no timeout of its own: arbitrary SQL can be arbitrarily expensive, so
// bounding wait time is the caller's job via the context.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/rosterlabs/rosterwatch/internal/adapter"
	"github.com/rosterlabs/rosterwatch/internal/rowset"
)

var (
	// ErrDisallowedStatement is returned for user-supplied SQL that is not
	// a SELECT.
	ErrDisallowedStatement = errors.New("only SELECT statements are allowed")

	// ErrExecution wraps datastore-reported failures.
	ErrExecution = errors.New("query execution failed")
)

// Gateway runs SQL through a datastore adapter.
type Gateway struct {
	db     adapter.Adapter
	logger *slog.Logger
}

// New returns a gateway over the given adapter.
func New(db adapter.Adapter, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Gateway{db: db, logger: logger}
}

// Execute runs a compiled data query and returns its rows.
func (g *Gateway) Execute(ctx context.Context, sqlStr string) ([]*rowset.Row, error) {
	g.logger.Debug("executing query", "sql", sqlStr)

	rows, err := g.db.Query(ctx, sqlStr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExecution, err)
	}
	defer func() { _ = rows.Close() }()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExecution, err)
	}

	var out []*rowset.Row
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrExecution, err)
		}

		row := rowset.NewRow()
		for i, col := range cols {
			val := values[i]
			// Drivers commonly hand text back as []byte.
			if b, ok := val.([]byte); ok {
				val = string(b)
			}
			row.Set(col, val)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExecution, err)
	}

	return out, nil
}

// ExecuteSelect runs user-supplied SQL after the SELECT-only check.
func (g *Gateway) ExecuteSelect(ctx context.Context, sqlStr string) ([]*rowset.Row, error) {
	if err := EnsureSelect(sqlStr); err != nil {
		return nil, err
	}
	return g.Execute(ctx, sqlStr)
}

// Count runs a compiled count query and returns the single integer result.
func (g *Gateway) Count(ctx context.Context, sqlStr string) (int, error) {
	g.logger.Debug("executing count", "sql", sqlStr)

	var n int
	if err := g.db.QueryRow(ctx, sqlStr).Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrExecution, err)
	}
	return n, nil
}

// EnsureSelect rejects statements that do not begin with SELECT, ignoring
// leading whitespace and case.
func EnsureSelect(sqlStr string) error {
	trimmed := strings.TrimSpace(sqlStr)
	if len(trimmed) < len("SELECT") || !strings.EqualFold(trimmed[:len("SELECT")], "SELECT") {
		return ErrDisallowedStatement
	}
	return nil
}
