// Package monitor drives the periodic snapshot-diff-notify pipeline over
// every monitored saved query.
//
// A tick processes queries sequentially, one at a time: only one query's
// full unpaginated result set is in memory at once, at the cost of total
// tick latency. The tick interval is expected to be generous (weekly in the
// reference deployment), so a long tick is acceptable.
package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rosterlabs/rosterwatch/internal/diff"
	"github.com/rosterlabs/rosterwatch/internal/gateway"
	"github.com/rosterlabs/rosterwatch/internal/notify"
	"github.com/rosterlabs/rosterwatch/internal/query"
	"github.com/rosterlabs/rosterwatch/internal/rowset"
	"github.com/rosterlabs/rosterwatch/internal/state"
)

// ErrOverlappingRun is returned when a run is requested for a query whose
// previous run is still in flight.
var ErrOverlappingRun = errors.New("query run already in progress")

// Executor runs SQL and returns rows. *gateway.Gateway satisfies it.
type Executor interface {
	Execute(ctx context.Context, sql string) ([]*rowset.Row, error)
	ExecuteSelect(ctx context.Context, sql string) ([]*rowset.Row, error)
}

var _ Executor = (*gateway.Gateway)(nil)

// Config holds scheduler dependencies and tuning.
type Config struct {
	Store      state.Store
	Gateway    Executor
	Compiler   *query.Compiler
	Dispatcher *notify.Dispatcher

	// Recipients receive change reports for every monitored query.
	Recipients []notify.Recipient

	// Interval is the spacing between scheduled runs; next_run is advanced
	// by this much after every attempt, successful or not.
	Interval time.Duration

	// KeepSnapshots bounds per-query snapshot history. Zero keeps 10.
	KeepSnapshots int

	Logger *slog.Logger
}

// Scheduler runs the monitoring pipeline.
type Scheduler struct {
	store         state.Store
	gw            Executor
	compiler      *query.Compiler
	dispatcher    *notify.Dispatcher
	recipients    []notify.Recipient
	interval      time.Duration
	keepSnapshots int
	logger        *slog.Logger

	// Overlapping runs of the same query would race on "latest snapshot"
	// ordering, so each query holds an in-process advisory lock while it
	// runs. An overlapping trigger is skipped, not queued.
	mu      sync.Mutex
	running map[string]bool

	nowFn func() time.Time
}

// New creates a scheduler.
func New(cfg Config) *Scheduler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = 7 * 24 * time.Hour
	}
	keep := cfg.KeepSnapshots
	if keep <= 0 {
		keep = 10
	}
	return &Scheduler{
		store:         cfg.Store,
		gw:            cfg.Gateway,
		compiler:      cfg.Compiler,
		dispatcher:    cfg.Dispatcher,
		recipients:    cfg.Recipients,
		interval:      interval,
		keepSnapshots: keep,
		logger:        logger,
		running:       make(map[string]bool),
		nowFn:         func() time.Time { return time.Now().UTC() },
	}
}

// TickSummary reports the outcome of one tick.
type TickSummary struct {
	Ran     int
	Failed  int
	Skipped int
}

// Tick runs the pipeline for every monitored query. Failures are isolated
// per query: one broken query is logged and the tick moves on. The returned
// error covers only the inability to list monitored queries.
func (s *Scheduler) Tick(ctx context.Context) (TickSummary, error) {
	var sum TickSummary

	queries, err := s.store.MonitoredQueries()
	if err != nil {
		return sum, fmt.Errorf("failed to list monitored queries: %w", err)
	}

	s.logger.Info("monitoring tick started", "queries", len(queries))

	for _, q := range queries {
		if _, err := s.runOne(ctx, q); err != nil {
			if errors.Is(err, ErrOverlappingRun) {
				s.logger.Warn("skipping overlapping run", "query", q.Name)
				sum.Skipped++
				continue
			}
			s.logger.Error("monitoring run failed", "query", q.Name, "error", err)
			sum.Failed++
			continue
		}
		sum.Ran++
	}

	s.logger.Info("monitoring tick finished",
		"ran", sum.Ran, "failed", sum.Failed, "skipped", sum.Skipped)
	return sum, nil
}

// RunQuery triggers the pipeline for a single query immediately. The manual
// trigger and the scheduled tick share the same per-query pipeline.
func (s *Scheduler) RunQuery(ctx context.Context, queryID string) (*state.ChangeRecord, error) {
	q, err := s.store.GetQuery(queryID)
	if err != nil {
		return nil, err
	}
	return s.runOne(ctx, q)
}

// runOne executes the full pipeline for one query: execute, snapshot, diff,
// persist, notify. The monitoring schedule advances whether the run
// completed or failed.
func (s *Scheduler) runOne(ctx context.Context, q *state.SavedQuery) (rec *state.ChangeRecord, err error) {
	if !s.acquire(q.ID) {
		return nil, fmt.Errorf("%w: %s", ErrOverlappingRun, q.Name)
	}
	defer s.release(q.ID)

	st, err := s.store.MonitoringStateFor(q.ID)
	if err != nil {
		return nil, err
	}

	started := s.nowFn()
	if err := s.store.SetMonitoringStatus(q.ID, state.StatusRunning); err != nil {
		return nil, err
	}
	defer func() {
		status := state.StatusCompleted
		if err != nil {
			status = state.StatusFailed
		}
		next := s.nowFn().Add(s.interval)
		if cerr := s.store.CompleteMonitoringRun(q.ID, status, started, next); cerr != nil {
			s.logger.Error("failed to advance schedule", "query", q.Name, "error", cerr)
		}
	}()

	s.logger.Debug("running monitored query", "query", q.Name)

	rows, err := s.executeFull(ctx, q)
	if err != nil {
		return nil, err
	}

	// Snapshot before diffing: the previous-snapshot lookup excludes the
	// one just written.
	snap, err := s.store.CreateSnapshot(q.ID, rows)
	if err != nil {
		return nil, err
	}
	prev, err := s.store.LatestSnapshotBefore(q.ID, snap.ID)
	if err != nil {
		return nil, err
	}

	var cs *diff.ChangeSet
	if prev == nil {
		cs = diff.Baseline(rows)
	} else {
		cs = diff.Compute(prev.Rows, rows)
	}

	summary, err := json.Marshal(cs)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize change summary: %w", err)
	}

	record := &state.ChangeRecord{
		QueryID:           q.ID,
		CurrentSnapshotID: snap.ID,
		NewCount:          len(cs.New),
		ModifiedCount:     len(cs.Modified),
		DeletedCount:      len(cs.Deleted),
		Summary:           summary,
	}
	if prev != nil {
		record.PreviousSnapshotID = prev.ID
	}
	rec, err = s.store.CreateChangeRecord(record)
	if err != nil {
		return nil, err
	}

	s.logger.Info("monitoring run completed",
		"query", q.Name,
		"rows", len(rows),
		"new", record.NewCount,
		"modified", record.ModifiedCount,
		"deleted", record.DeletedCount)

	if cs.TotalChanges() > 0 && st.EmailNotifications && s.dispatcher != nil && len(s.recipients) > 0 {
		// Dispatch failures never fail the run; sent is marked because the
		// dispatch phase ran, not because every recipient succeeded.
		if _, nerr := s.dispatcher.Notify(ctx, q.Name, s.recipients, cs); nerr != nil {
			s.logger.Error("notification dispatch failed", "query", q.Name, "error", nerr)
		} else if merr := s.store.MarkNotificationSent(rec.ID); merr != nil {
			s.logger.Error("failed to mark notification sent", "query", q.Name, "error", merr)
		} else {
			rec.NotificationSent = true
		}
	}

	if perr := s.store.PruneSnapshots(q.ID, s.keepSnapshots); perr != nil {
		s.logger.Warn("snapshot prune failed", "query", q.Name, "error", perr)
	}

	return rec, nil
}

// executeFull runs the query without any limit or pagination so the
// snapshot covers the complete result set.
func (s *Scheduler) executeFull(ctx context.Context, q *state.SavedQuery) ([]*rowset.Row, error) {
	if q.CustomSQL != "" {
		return s.gw.ExecuteSelect(ctx, query.StripTrailingLimit(q.CustomSQL))
	}
	if q.Spec == nil {
		return nil, fmt.Errorf("saved query %s has neither spec nor SQL", q.Name)
	}
	sqlStr, err := s.compiler.CompileData(q.Spec.Unpaginated(), nil)
	if err != nil {
		return nil, err
	}
	return s.gw.Execute(ctx, sqlStr)
}

func (s *Scheduler) acquire(queryID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running[queryID] {
		return false
	}
	s.running[queryID] = true
	return true
}

func (s *Scheduler) release(queryID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.running, queryID)
}
