package state

import (
	"database/sql"
	"fmt"
)

// CreateChangeRecord persists a change record. The id and detection time are
// assigned here; the caller fills everything else.
func (s *SQLiteStore) CreateChangeRecord(rec *ChangeRecord) (*ChangeRecord, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	out := *rec
	out.ID = generateID()
	out.DetectedAt = now()

	var prev sql.NullString
	if out.PreviousSnapshotID != "" {
		prev = sql.NullString{String: out.PreviousSnapshotID, Valid: true}
	}
	var summary sql.NullString
	if len(out.Summary) > 0 {
		summary = sql.NullString{String: string(out.Summary), Valid: true}
	}

	_, err := s.db.Exec(
		`INSERT INTO change_records
		 (id, query_id, previous_snapshot_id, current_snapshot_id, detected_at,
		  new_count, modified_count, deleted_count, summary, notification_sent)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		out.ID, out.QueryID, prev, out.CurrentSnapshotID, out.DetectedAt,
		out.NewCount, out.ModifiedCount, out.DeletedCount, summary, boolToInt(out.NotificationSent),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: insert change record: %v", ErrPersistence, err)
	}
	return &out, nil
}

// MarkNotificationSent flags a change record as dispatched.
func (s *SQLiteStore) MarkNotificationSent(id string) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	res, err := s.db.Exec(
		`UPDATE change_records SET notification_sent = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("%w: mark notification sent: %v", ErrPersistence, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: mark notification sent: %v", ErrPersistence, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: change record %s", ErrNotFound, id)
	}
	return nil
}

// ChangeRecords returns the most recent change records for a query, newest
// first. limit <= 0 means no limit.
func (s *SQLiteStore) ChangeRecords(queryID string, limit int) ([]*ChangeRecord, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	q := `SELECT id, query_id, previous_snapshot_id, current_snapshot_id, detected_at,
	             new_count, modified_count, deleted_count, summary, notification_sent
	      FROM change_records WHERE query_id = ? ORDER BY detected_at DESC`
	args := []any{queryID}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: list change records: %v", ErrPersistence, err)
	}
	defer func() { _ = rows.Close() }()

	var out []*ChangeRecord
	for rows.Next() {
		rec := &ChangeRecord{}
		var prev, summary sql.NullString
		var sent int
		if err := rows.Scan(&rec.ID, &rec.QueryID, &prev, &rec.CurrentSnapshotID,
			&rec.DetectedAt, &rec.NewCount, &rec.ModifiedCount, &rec.DeletedCount,
			&summary, &sent); err != nil {
			return nil, fmt.Errorf("%w: scan change record: %v", ErrPersistence, err)
		}
		rec.PreviousSnapshotID = prev.String
		if summary.Valid {
			rec.Summary = []byte(summary.String)
		}
		rec.NotificationSent = sent != 0
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list change records: %v", ErrPersistence, err)
	}
	return out, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
