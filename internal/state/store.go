// Package state persists saved queries, result snapshots, change records,
// and monitoring state in SQLite.
package state

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/rosterlabs/rosterwatch/internal/query"
	"github.com/rosterlabs/rosterwatch/internal/rowset"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrPersistence wraps datastore failures at the store boundary.
	ErrPersistence = errors.New("persistence failure")
)

// SavedQuery is a named query definition: either a structured spec or a raw
// SQL string, never both.
type SavedQuery struct {
	ID        string
	Name      string
	Spec      *query.Spec
	CustomSQL string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// QuerySummary is the listing form of a saved query.
type QuerySummary struct {
	ID        string
	Name      string
	Monitored bool
}

// Snapshot is one immutable point-in-time capture of a query's full result
// set.
type Snapshot struct {
	ID          string
	QueryID     string
	TakenAt     time.Time
	ContentHash string
	RowCount    int
	Rows        []*rowset.Row
}

// ChangeRecord summarizes one diff between consecutive snapshots. The first
// snapshot for a query produces a baseline record with zero counts and no
// previous snapshot.
type ChangeRecord struct {
	ID                 string
	QueryID            string
	PreviousSnapshotID string // empty for the baseline record
	CurrentSnapshotID  string
	DetectedAt         time.Time
	NewCount           int
	ModifiedCount      int
	DeletedCount       int
	Summary            json.RawMessage
	NotificationSent   bool
}

// RunStatus is the monitoring state machine for one query.
type RunStatus string

const (
	StatusIdle      RunStatus = "idle"
	StatusRunning   RunStatus = "running"
	StatusCompleted RunStatus = "completed"
	StatusFailed    RunStatus = "failed"
)

// MonitoringState is the per-query monitoring row, created lazily on first
// run or toggle. A query with no row yet is treated as enabled.
type MonitoringState struct {
	QueryID            string
	Enabled            bool
	EmailNotifications bool
	Status             RunStatus
	LastRun            *time.Time
	NextRun            *time.Time
}

// Store is the persistence surface consumed by the CLI and the monitor.
type Store interface {
	// Saved queries.
	SaveQuery(name string, spec *query.Spec, customSQL string) (*SavedQuery, error)
	GetQuery(id string) (*SavedQuery, error)
	DeleteQuery(id string) error
	ListQueries() ([]QuerySummary, error)

	// Snapshots.
	CreateSnapshot(queryID string, rows []*rowset.Row) (*Snapshot, error)
	GetSnapshot(id string) (*Snapshot, error)
	LatestSnapshotBefore(queryID, excludingID string) (*Snapshot, error)
	PruneSnapshots(queryID string, keep int) error

	// Change records.
	CreateChangeRecord(rec *ChangeRecord) (*ChangeRecord, error)
	MarkNotificationSent(id string) error
	ChangeRecords(queryID string, limit int) ([]*ChangeRecord, error)

	// Monitoring state.
	MonitoredQueries() ([]*SavedQuery, error)
	MonitoringStateFor(queryID string) (*MonitoringState, error)
	SetMonitoringEnabled(queryID string, enabled bool) error
	SetEmailNotifications(queryID string, enabled bool) error
	SetMonitoringStatus(queryID string, status RunStatus) error
	CompleteMonitoringRun(queryID string, status RunStatus, lastRun, nextRun time.Time) error
	ListMonitoringStates() ([]*MonitoringState, error)

	Close() error
}
