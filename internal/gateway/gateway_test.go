package gateway

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rosterlabs/rosterwatch/internal/adapter"
	"github.com/rosterlabs/rosterwatch/internal/testutil"
)

func newTestGateway(t *testing.T) (*Gateway, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return New(adapter.FromDB(db), testutil.NewTestLogger(t)), mock
}

func TestExecuteMaterializesRows(t *testing.T) {
	gw, mock := newTestGateway(t)

	mock.ExpectQuery("SELECT .* FROM staff").WillReturnRows(
		sqlmock.NewRows([]string{"staff_full_name", "staff_title"}).
			AddRow("Jon Scheyer", "Head Coach").
			AddRow([]byte("Chris Carrawell"), nil),
	)

	rows, err := gw.Execute(context.Background(), "SELECT full_name, title FROM staff")
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, []string{"staff_full_name", "staff_title"}, rows[0].Columns())

	// []byte values come back as strings.
	v, ok := rows[1].Get("staff_full_name")
	require.True(t, ok)
	assert.Equal(t, "Chris Carrawell", v)

	v, ok = rows[1].Get("staff_title")
	require.True(t, ok)
	assert.Nil(t, v)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExecuteEmptyResult(t *testing.T) {
	gw, mock := newTestGateway(t)

	mock.ExpectQuery("SELECT").WillReturnRows(sqlmock.NewRows([]string{"staff_full_name"}))

	rows, err := gw.Execute(context.Background(), "SELECT full_name FROM staff")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestExecuteWrapsDriverErrors(t *testing.T) {
	gw, mock := newTestGateway(t)

	mock.ExpectQuery("SELECT").WillReturnError(errors.New("no such table: staff"))

	_, err := gw.Execute(context.Background(), "SELECT full_name FROM staff")
	require.ErrorIs(t, err, ErrExecution)
	assert.Contains(t, err.Error(), "no such table")
}

func TestExecuteSelectRejectsNonSelect(t *testing.T) {
	gw, _ := newTestGateway(t)

	for _, stmt := range []string{
		"DELETE FROM staff",
		"UPDATE staff SET title = 'x'",
		"DROP TABLE schools",
		"INSERT INTO staff VALUES (1)",
		"",
		"  ",
	} {
		_, err := gw.ExecuteSelect(context.Background(), stmt)
		require.ErrorIs(t, err, ErrDisallowedStatement, stmt)
	}
}

func TestExecuteSelectAllowsSelect(t *testing.T) {
	gw, mock := newTestGateway(t)

	mock.ExpectQuery("(?i)select").WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(1))

	// Leading whitespace and lowercase are fine.
	_, err := gw.ExecuteSelect(context.Background(), "  select 1")
	require.NoError(t, err)
}

func TestCount(t *testing.T) {
	gw, mock := newTestGateway(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM schools`).
		WillReturnRows(sqlmock.NewRows([]string{"COUNT(*)"}).AddRow(37))

	n, err := gw.Count(context.Background(), "SELECT COUNT(*) FROM schools")
	require.NoError(t, err)
	assert.Equal(t, 37, n)
}

func TestCountError(t *testing.T) {
	gw, mock := newTestGateway(t)

	mock.ExpectQuery("SELECT").WillReturnError(errors.New("connection reset"))

	_, err := gw.Count(context.Background(), "SELECT COUNT(*) FROM schools")
	require.ErrorIs(t, err, ErrExecution)
}

func TestEnsureSelect(t *testing.T) {
	assert.NoError(t, EnsureSelect("SELECT 1"))
	assert.NoError(t, EnsureSelect("\n\tselect 1"))
	assert.ErrorIs(t, EnsureSelect("WITH x AS (SELECT 1) SELECT * FROM x"), ErrDisallowedStatement)
	assert.ErrorIs(t, EnsureSelect("PRAGMA table_info(staff)"), ErrDisallowedStatement)
}
