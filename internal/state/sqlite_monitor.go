package state

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// MonitoredQueries returns every saved query eligible for a monitoring run:
// those explicitly enabled plus those with no monitoring row yet, which
// default to enabled.
func (s *SQLiteStore) MonitoredQueries() ([]*SavedQuery, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	rows, err := s.db.Query(
		`SELECT q.id FROM saved_queries q
		 LEFT JOIN monitoring_state m ON m.query_id = q.id
		 WHERE m.query_id IS NULL OR m.enabled = 1
		 ORDER BY q.name`,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: monitored queries: %v", ErrPersistence, err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("%w: scan monitored query: %v", ErrPersistence, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: monitored queries: %v", ErrPersistence, err)
	}

	out := make([]*SavedQuery, 0, len(ids))
	for _, id := range ids {
		q, err := s.GetQuery(id)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, nil
}

// MonitoringStateFor returns the monitoring row for a query, materializing
// the default-enabled row lazily if none exists yet.
func (s *SQLiteStore) MonitoringStateFor(queryID string) (*MonitoringState, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	st, err := s.readMonitoringState(queryID)
	if err == nil {
		return st, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: monitoring state: %v", ErrPersistence, err)
	}

	// Verify the query exists before materializing state for it.
	if _, err := s.GetQuery(queryID); err != nil {
		return nil, err
	}
	_, err = s.db.Exec(
		`INSERT INTO monitoring_state (query_id, enabled, email_notifications, status)
		 VALUES (?, 1, 1, ?)`,
		queryID, string(StatusIdle),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: init monitoring state: %v", ErrPersistence, err)
	}
	return s.MonitoringStateFor(queryID)
}

func (s *SQLiteStore) readMonitoringState(queryID string) (*MonitoringState, error) {
	st := &MonitoringState{}
	var enabled, email int
	var status string
	var lastRun, nextRun sql.NullTime
	err := s.db.QueryRow(
		`SELECT query_id, enabled, email_notifications, status, last_run, next_run
		 FROM monitoring_state WHERE query_id = ?`, queryID,
	).Scan(&st.QueryID, &enabled, &email, &status, &lastRun, &nextRun)
	if err != nil {
		return nil, err
	}
	st.Enabled = enabled != 0
	st.EmailNotifications = email != 0
	st.Status = RunStatus(status)
	if lastRun.Valid {
		t := lastRun.Time
		st.LastRun = &t
	}
	if nextRun.Valid {
		t := nextRun.Time
		st.NextRun = &t
	}
	return st, nil
}

// SetMonitoringEnabled toggles monitoring for a query.
func (s *SQLiteStore) SetMonitoringEnabled(queryID string, enabled bool) error {
	return s.updateMonitoringFlag(queryID, "enabled", enabled)
}

// SetEmailNotifications toggles email notifications for a query.
func (s *SQLiteStore) SetEmailNotifications(queryID string, enabled bool) error {
	return s.updateMonitoringFlag(queryID, "email_notifications", enabled)
}

func (s *SQLiteStore) updateMonitoringFlag(queryID, column string, value bool) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}
	// Materialize the row first so toggles work before the first run.
	if _, err := s.MonitoringStateFor(queryID); err != nil {
		return err
	}
	// column is one of two fixed names, never user input.
	_, err := s.db.Exec(
		fmt.Sprintf(`UPDATE monitoring_state SET %s = ? WHERE query_id = ?`, column),
		boolToInt(value), queryID,
	)
	if err != nil {
		return fmt.Errorf("%w: update monitoring %s: %v", ErrPersistence, column, err)
	}
	return nil
}

// SetMonitoringStatus moves a query's run state machine.
func (s *SQLiteStore) SetMonitoringStatus(queryID string, status RunStatus) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}
	if _, err := s.MonitoringStateFor(queryID); err != nil {
		return err
	}
	_, err := s.db.Exec(
		`UPDATE monitoring_state SET status = ? WHERE query_id = ?`,
		string(status), queryID,
	)
	if err != nil {
		return fmt.Errorf("%w: update monitoring status: %v", ErrPersistence, err)
	}
	return nil
}

// CompleteMonitoringRun records the outcome of a run attempt. The schedule
// advances whether the run completed or failed, so one broken query cannot
// stall monitoring.
func (s *SQLiteStore) CompleteMonitoringRun(queryID string, status RunStatus, lastRun, nextRun time.Time) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}
	if _, err := s.MonitoringStateFor(queryID); err != nil {
		return err
	}
	_, err := s.db.Exec(
		`UPDATE monitoring_state SET status = ?, last_run = ?, next_run = ? WHERE query_id = ?`,
		string(status), lastRun, nextRun, queryID,
	)
	if err != nil {
		return fmt.Errorf("%w: complete monitoring run: %v", ErrPersistence, err)
	}
	return nil
}

// ListMonitoringStates returns monitoring rows for all saved queries,
// materializing defaults for queries never run.
func (s *SQLiteStore) ListMonitoringStates() ([]*MonitoringState, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	queries, err := s.ListQueries()
	if err != nil {
		return nil, err
	}
	out := make([]*MonitoringState, 0, len(queries))
	for _, q := range queries {
		st, err := s.MonitoringStateFor(q.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}
