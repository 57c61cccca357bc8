package monitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rosterlabs/rosterwatch/internal/notify"
	"github.com/rosterlabs/rosterwatch/internal/notify/email"
	"github.com/rosterlabs/rosterwatch/internal/rowset"
	"github.com/rosterlabs/rosterwatch/internal/state"
	"github.com/rosterlabs/rosterwatch/internal/testutil"
)

// stubExecutor returns canned rows per SQL statement and records what ran.
type stubExecutor struct {
	results  map[string][]*rowset.Row
	errs     map[string]error
	executed []string
}

func newStubExecutor() *stubExecutor {
	return &stubExecutor{
		results: make(map[string][]*rowset.Row),
		errs:    make(map[string]error),
	}
}

func (e *stubExecutor) Execute(_ context.Context, sql string) ([]*rowset.Row, error) {
	e.executed = append(e.executed, sql)
	if err := e.errs[sql]; err != nil {
		return nil, err
	}
	return e.results[sql], nil
}

func (e *stubExecutor) ExecuteSelect(ctx context.Context, sql string) ([]*rowset.Row, error) {
	return e.Execute(ctx, sql)
}

// stubSender records dispatched messages.
type stubSender struct {
	sent []email.Message
	err  error
}

func (s *stubSender) Send(_ context.Context, msg email.Message) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, msg)
	return nil
}

func newTestStore(t *testing.T) *state.SQLiteStore {
	t.Helper()
	store := state.NewSQLiteStore(testutil.NewTestLogger(t))
	require.NoError(t, store.Open(":memory:"))
	require.NoError(t, store.Migrate())
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func staffRows(names ...string) []*rowset.Row {
	out := make([]*rowset.Row, 0, len(names))
	for _, name := range names {
		r := rowset.NewRow()
		r.Set("staff_full_name", name)
		r.Set("staff_title", "Head Coach")
		out = append(out, r)
	}
	return out
}

type fixture struct {
	store  *state.SQLiteStore
	exec   *stubExecutor
	sender *stubSender
	sched  *Scheduler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		store:  newTestStore(t),
		exec:   newStubExecutor(),
		sender: &stubSender{},
	}
	logger := testutil.NewTestLogger(t)
	f.sched = New(Config{
		Store:      f.store,
		Gateway:    f.exec,
		Dispatcher: notify.NewDispatcher(f.sender, "rosterwatch@example.com", logger),
		Recipients: []notify.Recipient{{Address: "updates@example.com"}},
		Interval:   time.Hour,
		Logger:     logger,
	})
	return f
}

func (f *fixture) saveSQL(t *testing.T, name, sql string, rows []*rowset.Row) *state.SavedQuery {
	t.Helper()
	q, err := f.store.SaveQuery(name, nil, sql)
	require.NoError(t, err)
	f.exec.results[sql] = rows
	return q
}

func TestRunQueryBaseline(t *testing.T) {
	f := newFixture(t)
	q := f.saveSQL(t, "coaches", "SELECT * FROM staff", staffRows("Jon Scheyer", "Jai Lucas"))

	rec, err := f.sched.RunQuery(context.Background(), q.ID)
	require.NoError(t, err)

	// First observation: snapshot taken, nothing reported as changed.
	assert.Empty(t, rec.PreviousSnapshotID)
	assert.Zero(t, rec.NewCount)
	assert.Zero(t, rec.ModifiedCount)
	assert.Zero(t, rec.DeletedCount)
	assert.False(t, rec.NotificationSent)
	assert.Empty(t, f.sender.sent)

	snap, err := f.store.GetSnapshot(rec.CurrentSnapshotID)
	require.NoError(t, err)
	assert.Equal(t, 2, snap.RowCount)

	st, err := f.store.MonitoringStateFor(q.ID)
	require.NoError(t, err)
	assert.Equal(t, state.StatusCompleted, st.Status)
	require.NotNil(t, st.LastRun)
	require.NotNil(t, st.NextRun)
	assert.True(t, st.NextRun.After(*st.LastRun))
}

func TestRunQueryDetectsChangesAndNotifies(t *testing.T) {
	f := newFixture(t)
	q := f.saveSQL(t, "coaches", "SELECT * FROM staff", staffRows("Jon Scheyer"))

	_, err := f.sched.RunQuery(context.Background(), q.ID)
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	f.exec.results["SELECT * FROM staff"] = staffRows("Jon Scheyer", "Jai Lucas")

	rec, err := f.sched.RunQuery(context.Background(), q.ID)
	require.NoError(t, err)

	assert.Equal(t, 1, rec.NewCount)
	assert.Zero(t, rec.ModifiedCount)
	assert.Zero(t, rec.DeletedCount)
	assert.NotEmpty(t, rec.PreviousSnapshotID)
	assert.True(t, rec.NotificationSent)

	require.Len(t, f.sender.sent, 1)
	msg := f.sender.sent[0]
	assert.Equal(t, "updates@example.com", msg.To)
	assert.Contains(t, msg.Subject, "coaches")
	assert.Contains(t, msg.HTMLBody, "Jai Lucas")

	// The stored record is marked as well.
	records, err := f.store.ChangeRecords(q.ID, 1)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.True(t, records[0].NotificationSent)
}

func TestRunQueryNoChangesNoNotification(t *testing.T) {
	f := newFixture(t)
	q := f.saveSQL(t, "coaches", "SELECT * FROM staff", staffRows("Jon Scheyer"))

	_, err := f.sched.RunQuery(context.Background(), q.ID)
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)

	rec, err := f.sched.RunQuery(context.Background(), q.ID)
	require.NoError(t, err)

	assert.Zero(t, rec.NewCount+rec.ModifiedCount+rec.DeletedCount)
	assert.False(t, rec.NotificationSent)
	assert.Empty(t, f.sender.sent)
}

func TestRunQueryRespectsEmailToggle(t *testing.T) {
	f := newFixture(t)
	q := f.saveSQL(t, "coaches", "SELECT * FROM staff", staffRows("Jon Scheyer"))
	require.NoError(t, f.store.SetEmailNotifications(q.ID, false))

	_, err := f.sched.RunQuery(context.Background(), q.ID)
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)

	f.exec.results["SELECT * FROM staff"] = staffRows("Jon Scheyer", "Jai Lucas")
	rec, err := f.sched.RunQuery(context.Background(), q.ID)
	require.NoError(t, err)

	assert.Equal(t, 1, rec.NewCount)
	assert.False(t, rec.NotificationSent)
	assert.Empty(t, f.sender.sent)
}

func TestRunQueryDispatchFailureDoesNotFailRun(t *testing.T) {
	f := newFixture(t)
	f.sender.err = errors.New("smtp down")
	q := f.saveSQL(t, "coaches", "SELECT * FROM staff", staffRows("Jon Scheyer"))

	_, err := f.sched.RunQuery(context.Background(), q.ID)
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)

	f.exec.results["SELECT * FROM staff"] = staffRows("Jon Scheyer", "Jai Lucas")
	rec, err := f.sched.RunQuery(context.Background(), q.ID)
	require.NoError(t, err)

	assert.Equal(t, 1, rec.NewCount)

	// Dispatch ran, so the record is marked sent even though every
	// individual delivery failed.
	assert.True(t, rec.NotificationSent)

	records, err := f.store.ChangeRecords(q.ID, 1)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.True(t, records[0].NotificationSent)
}

func TestRunQueryStripsTrailingLimit(t *testing.T) {
	f := newFixture(t)
	q, err := f.store.SaveQuery("coaches", nil, "SELECT * FROM staff LIMIT 25")
	require.NoError(t, err)
	f.exec.results["SELECT * FROM staff"] = staffRows("Jon Scheyer")

	rec, err := f.sched.RunQuery(context.Background(), q.ID)
	require.NoError(t, err)

	require.Len(t, f.exec.executed, 1)
	assert.Equal(t, "SELECT * FROM staff", f.exec.executed[0])

	snap, err := f.store.GetSnapshot(rec.CurrentSnapshotID)
	require.NoError(t, err)
	assert.Equal(t, 1, snap.RowCount)
}

func TestRunQueryFailureAdvancesSchedule(t *testing.T) {
	f := newFixture(t)
	q := f.saveSQL(t, "coaches", "SELECT * FROM staff", nil)
	f.exec.errs["SELECT * FROM staff"] = errors.New("no such table: staff")

	_, err := f.sched.RunQuery(context.Background(), q.ID)
	require.Error(t, err)

	st, err := f.store.MonitoringStateFor(q.ID)
	require.NoError(t, err)
	assert.Equal(t, state.StatusFailed, st.Status)
	require.NotNil(t, st.LastRun)
	require.NotNil(t, st.NextRun)

	// No snapshot or change record was written for the failed attempt.
	records, err := f.store.ChangeRecords(q.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestTickIsolatesFailures(t *testing.T) {
	f := newFixture(t)
	f.saveSQL(t, "a-broken", "SELECT * FROM nope", nil)
	f.exec.errs["SELECT * FROM nope"] = errors.New("no such table: nope")
	good := f.saveSQL(t, "b-coaches", "SELECT * FROM staff", staffRows("Jon Scheyer"))

	sum, err := f.sched.Tick(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, sum.Ran)
	assert.Equal(t, 1, sum.Failed)
	assert.Zero(t, sum.Skipped)

	// The healthy query's pipeline ran to completion.
	records, err := f.store.ChangeRecords(good.ID, 0)
	require.NoError(t, err)
	assert.Len(t, records, 1)

	st, err := f.store.MonitoringStateFor(good.ID)
	require.NoError(t, err)
	assert.Equal(t, state.StatusCompleted, st.Status)
}

func TestTickSkipsDisabledQueries(t *testing.T) {
	f := newFixture(t)
	off := f.saveSQL(t, "a-off", "SELECT * FROM schools", staffRows("x"))
	f.saveSQL(t, "b-on", "SELECT * FROM staff", staffRows("Jon Scheyer"))
	require.NoError(t, f.store.SetMonitoringEnabled(off.ID, false))

	sum, err := f.sched.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Ran)

	records, err := f.store.ChangeRecords(off.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestOverlappingRunSkipped(t *testing.T) {
	f := newFixture(t)
	q := f.saveSQL(t, "coaches", "SELECT * FROM staff", staffRows("Jon Scheyer"))

	// Simulate an in-flight run holding the advisory lock.
	require.True(t, f.sched.acquire(q.ID))

	_, err := f.sched.RunQuery(context.Background(), q.ID)
	require.ErrorIs(t, err, ErrOverlappingRun)

	sum, err := f.sched.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Skipped)
	assert.Zero(t, sum.Ran)

	f.sched.release(q.ID)

	_, err = f.sched.RunQuery(context.Background(), q.ID)
	require.NoError(t, err)
}

func TestRunQueryPrunesSnapshots(t *testing.T) {
	f := newFixture(t)
	logger := testutil.NewTestLogger(t)
	f.sched = New(Config{
		Store:         f.store,
		Gateway:       f.exec,
		Interval:      time.Hour,
		KeepSnapshots: 2,
		Logger:        logger,
	})
	q := f.saveSQL(t, "coaches", "SELECT * FROM staff", staffRows("Jon Scheyer"))

	var snapIDs []string
	for i := 0; i < 4; i++ {
		rec, err := f.sched.RunQuery(context.Background(), q.ID)
		require.NoError(t, err)
		snapIDs = append(snapIDs, rec.CurrentSnapshotID)
		time.Sleep(5 * time.Millisecond)
	}

	for _, id := range snapIDs[:2] {
		_, err := f.store.GetSnapshot(id)
		require.ErrorIs(t, err, state.ErrNotFound)
	}
	for _, id := range snapIDs[2:] {
		_, err := f.store.GetSnapshot(id)
		require.NoError(t, err)
	}
}

func TestRunQueryMissingQuery(t *testing.T) {
	f := newFixture(t)

	_, err := f.sched.RunQuery(context.Background(), "missing")
	require.ErrorIs(t, err, state.ErrNotFound)
}

func TestRunQueryWithoutDispatcher(t *testing.T) {
	f := newFixture(t)
	f.sched = New(Config{
		Store:    f.store,
		Gateway:  f.exec,
		Interval: time.Hour,
		Logger:   testutil.NewTestLogger(t),
	})
	q := f.saveSQL(t, "coaches", "SELECT * FROM staff", staffRows("Jon Scheyer"))

	_, err := f.sched.RunQuery(context.Background(), q.ID)
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)

	// Changes are still detected and recorded without a mail path.
	f.exec.results["SELECT * FROM staff"] = staffRows("Jon Scheyer", "Jai Lucas")
	rec, err := f.sched.RunQuery(context.Background(), q.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, rec.NewCount)
	assert.False(t, rec.NotificationSent)
}
