package state

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rosterlabs/rosterwatch/internal/query"
)

// SaveQuery upserts a query definition by its unique name. Exactly one of
// spec and customSQL must be set.
func (s *SQLiteStore) SaveQuery(name string, spec *query.Spec, customSQL string) (*SavedQuery, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}
	if name == "" {
		return nil, fmt.Errorf("%w: query name is required", ErrPersistence)
	}
	if (spec == nil) == (customSQL == "") {
		return nil, fmt.Errorf("%w: exactly one of spec and custom SQL must be set", ErrPersistence)
	}

	var specJSON sql.NullString
	if spec != nil {
		data, err := json.Marshal(spec)
		if err != nil {
			return nil, fmt.Errorf("%w: marshal spec: %v", ErrPersistence, err)
		}
		specJSON = sql.NullString{String: string(data), Valid: true}
	}
	var custom sql.NullString
	if customSQL != "" {
		custom = sql.NullString{String: customSQL, Valid: true}
	}

	ts := now()
	s.logger.Debug("saving query", "name", name)

	// Upsert by name, preserving the existing id and created_at.
	var id string
	err := s.db.QueryRow(`SELECT id FROM saved_queries WHERE name = ?`, name).Scan(&id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		id = generateID()
		_, err = s.db.Exec(
			`INSERT INTO saved_queries (id, name, spec_json, custom_sql, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			id, name, specJSON, custom, ts, ts,
		)
		if err != nil {
			return nil, fmt.Errorf("%w: insert query: %v", ErrPersistence, err)
		}
	case err != nil:
		return nil, fmt.Errorf("%w: lookup query: %v", ErrPersistence, err)
	default:
		_, err = s.db.Exec(
			`UPDATE saved_queries SET spec_json = ?, custom_sql = ?, updated_at = ? WHERE id = ?`,
			specJSON, custom, ts, id,
		)
		if err != nil {
			return nil, fmt.Errorf("%w: update query: %v", ErrPersistence, err)
		}
	}

	return s.GetQuery(id)
}

// GetQuery retrieves a saved query by id.
func (s *SQLiteStore) GetQuery(id string) (*SavedQuery, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	q := &SavedQuery{}
	var specJSON, custom sql.NullString
	err := s.db.QueryRow(
		`SELECT id, name, spec_json, custom_sql, created_at, updated_at
		 FROM saved_queries WHERE id = ?`, id,
	).Scan(&q.ID, &q.Name, &specJSON, &custom, &q.CreatedAt, &q.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: query %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get query: %v", ErrPersistence, err)
	}

	if specJSON.Valid {
		var spec query.Spec
		if err := json.Unmarshal([]byte(specJSON.String), &spec); err != nil {
			return nil, fmt.Errorf("%w: decode spec for %s: %v", ErrPersistence, id, err)
		}
		q.Spec = &spec
	}
	if custom.Valid {
		q.CustomSQL = custom.String
	}
	return q, nil
}

// DeleteQuery removes a saved query and, through foreign keys, its
// snapshots, change records, and monitoring state.
func (s *SQLiteStore) DeleteQuery(id string) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	res, err := s.db.Exec(`DELETE FROM saved_queries WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("%w: delete query: %v", ErrPersistence, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: delete query: %v", ErrPersistence, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: query %s", ErrNotFound, id)
	}
	return nil
}

// ListQueries returns all saved queries with their monitoring flag.
func (s *SQLiteStore) ListQueries() ([]QuerySummary, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	rows, err := s.db.Query(
		`SELECT q.id, q.name, COALESCE(m.enabled, 1)
		 FROM saved_queries q
		 LEFT JOIN monitoring_state m ON m.query_id = q.id
		 ORDER BY q.name`,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: list queries: %v", ErrPersistence, err)
	}
	defer func() { _ = rows.Close() }()

	var out []QuerySummary
	for rows.Next() {
		var qs QuerySummary
		var enabled int
		if err := rows.Scan(&qs.ID, &qs.Name, &enabled); err != nil {
			return nil, fmt.Errorf("%w: scan query: %v", ErrPersistence, err)
		}
		qs.Monitored = enabled != 0
		out = append(out, qs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list queries: %v", ErrPersistence, err)
	}
	return out, nil
}
