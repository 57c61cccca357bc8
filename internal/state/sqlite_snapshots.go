package state

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/rosterlabs/rosterwatch/internal/rowset"
)

// CreateSnapshot persists the complete serialized result set for a query
// along with its content hash. Snapshots are immutable once written.
func (s *SQLiteStore) CreateSnapshot(queryID string, rows []*rowset.Row) (*Snapshot, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	data, err := rowset.Marshal(rows)
	if err != nil {
		return nil, fmt.Errorf("%w: serialize rows: %v", ErrPersistence, err)
	}
	hash, err := rowset.Hash(rows)
	if err != nil {
		return nil, fmt.Errorf("%w: hash rows: %v", ErrPersistence, err)
	}

	snap := &Snapshot{
		ID:          generateID(),
		QueryID:     queryID,
		TakenAt:     now(),
		ContentHash: hash,
		RowCount:    len(rows),
		Rows:        rows,
	}

	s.logger.Debug("creating snapshot",
		"query_id", queryID, "rows", snap.RowCount, "hash", hash)

	_, err = s.db.Exec(
		`INSERT INTO snapshots (id, query_id, taken_at, content_hash, row_count, data)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		snap.ID, snap.QueryID, snap.TakenAt, snap.ContentHash, snap.RowCount, string(data),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: insert snapshot: %v", ErrPersistence, err)
	}
	return snap, nil
}

// GetSnapshot retrieves a snapshot by id, including its row data.
func (s *SQLiteStore) GetSnapshot(id string) (*Snapshot, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	snap := &Snapshot{}
	var data string
	err := s.db.QueryRow(
		`SELECT id, query_id, taken_at, content_hash, row_count, data
		 FROM snapshots WHERE id = ?`, id,
	).Scan(&snap.ID, &snap.QueryID, &snap.TakenAt, &snap.ContentHash, &snap.RowCount, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: snapshot %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get snapshot: %v", ErrPersistence, err)
	}

	snap.Rows, err = rowset.Unmarshal([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("%w: decode snapshot %s: %v", ErrPersistence, id, err)
	}
	return snap, nil
}

// LatestSnapshotBefore returns the most recent snapshot for a query,
// excluding the given id (the snapshot just created). Returns nil with no
// error when no prior snapshot exists.
func (s *SQLiteStore) LatestSnapshotBefore(queryID, excludingID string) (*Snapshot, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	var id string
	err := s.db.QueryRow(
		`SELECT id FROM snapshots
		 WHERE query_id = ? AND id != ?
		 ORDER BY taken_at DESC LIMIT 1`,
		queryID, excludingID,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: latest snapshot: %v", ErrPersistence, err)
	}
	return s.GetSnapshot(id)
}

// PruneSnapshots deletes all but the most recent keep snapshots for a query.
// Keeps the database size manageable across long monitoring histories.
func (s *SQLiteStore) PruneSnapshots(queryID string, keep int) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}
	if keep < 1 {
		keep = 1
	}

	_, err := s.db.Exec(
		`DELETE FROM snapshots
		 WHERE query_id = ? AND id NOT IN (
			SELECT id FROM snapshots
			WHERE query_id = ?
			ORDER BY taken_at DESC
			LIMIT ?
		 )`,
		queryID, queryID, keep,
	)
	if err != nil {
		return fmt.Errorf("%w: prune snapshots: %v", ErrPersistence, err)
	}
	return nil
}
