package diff

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rosterlabs/rosterwatch/internal/rowset"
)

func staffRow(t *testing.T, name, title, updated string) *rowset.Row {
	t.Helper()
	r := rowset.NewRow()
	r.Set("staff_full_name", name)
	r.Set("staff_title", title)
	r.Set("staff_date_updated", updated)
	return r
}

func TestBaseline(t *testing.T) {
	current := []*rowset.Row{
		staffRow(t, "Jon Scheyer", "Head Coach", "2026-01-01"),
		staffRow(t, "Chris Carrawell", "Associate Head Coach", "2026-01-01"),
	}

	cs := Baseline(current)

	assert.Zero(t, cs.TotalChanges())
	assert.Empty(t, cs.New)
	assert.Empty(t, cs.Modified)
	assert.Empty(t, cs.Deleted)
	assert.Equal(t, 0, cs.PreviousTotal)
	assert.Equal(t, 2, cs.CurrentTotal)
}

func TestComputeIdenticalSets(t *testing.T) {
	prev := []*rowset.Row{staffRow(t, "Jon Scheyer", "Head Coach", "2026-01-01")}
	curr := []*rowset.Row{staffRow(t, "Jon Scheyer", "Head Coach", "2026-01-01")}

	cs := Compute(prev, curr)

	assert.Zero(t, cs.TotalChanges())
	assert.Equal(t, 1, cs.PreviousTotal)
	assert.Equal(t, 1, cs.CurrentTotal)
}

func TestComputeNewAndDeleted(t *testing.T) {
	prev := []*rowset.Row{
		staffRow(t, "Jon Scheyer", "Head Coach", "2026-01-01"),
		staffRow(t, "Mike Krzyzewski", "Head Coach", "2021-01-01"),
	}
	curr := []*rowset.Row{
		staffRow(t, "Jon Scheyer", "Head Coach", "2026-01-01"),
		staffRow(t, "Jai Lucas", "Assistant Coach", "2026-01-01"),
	}

	cs := Compute(prev, curr)

	require.Len(t, cs.New, 1)
	v, _ := cs.New[0].Get("staff_full_name")
	assert.Equal(t, "Jai Lucas", v)

	require.Len(t, cs.Deleted, 1)
	v, _ = cs.Deleted[0].Get("staff_full_name")
	assert.Equal(t, "Mike Krzyzewski", v)

	assert.Empty(t, cs.Modified)
	assert.Equal(t, 2, cs.TotalChanges())
}

func TestComputeTimestampOnlyChangeIsModification(t *testing.T) {
	prev := []*rowset.Row{staffRow(t, "Jon Scheyer", "Head Coach", "2026-01-01")}
	curr := []*rowset.Row{staffRow(t, "Jon Scheyer", "Head Coach", "2026-02-15")}

	cs := Compute(prev, curr)

	// A drifting date_updated must not look like a delete plus an insert.
	assert.Empty(t, cs.New)
	assert.Empty(t, cs.Deleted)
	require.Len(t, cs.Modified, 1)

	diffs := cs.Modified[0].Diffs
	require.Len(t, diffs, 1)
	assert.Equal(t, "staff_date_updated", diffs[0].Field)
	assert.Equal(t, "2026-01-01", diffs[0].Previous)
	assert.Equal(t, "2026-02-15", diffs[0].Current)
}

func TestComputeIdentityFieldChangeIsNewPlusDeleted(t *testing.T) {
	prev := []*rowset.Row{staffRow(t, "Jon Scheyer", "Head Coach", "2026-01-01")}
	curr := []*rowset.Row{staffRow(t, "Jon Scheyer", "Associate Head Coach", "2026-01-01")}

	// Title is part of the identity; changing it breaks the match.
	cs := Compute(prev, curr)

	assert.Len(t, cs.New, 1)
	assert.Len(t, cs.Deleted, 1)
	assert.Empty(t, cs.Modified)
}

func TestComputeFieldDiffsCoverUnion(t *testing.T) {
	prev := rowset.NewRow()
	prev.Set("staff_full_name", "Jon Scheyer")
	prev.Set("staff_phone", "919-555-0100")
	prev.Set("staff_date_updated", "2026-01-01")

	curr := rowset.NewRow()
	curr.Set("staff_full_name", "Jon Scheyer")
	curr.Set("staff_twitter", "@jonscheyer")
	curr.Set("staff_date_updated", "2026-01-01")

	cs := Compute([]*rowset.Row{prev}, []*rowset.Row{curr})

	// Both rows hash to different identities (phone vs twitter are identity
	// fields), so this ends up as new plus deleted rather than modified.
	assert.Len(t, cs.New, 1)
	assert.Len(t, cs.Deleted, 1)
}

func TestFieldDiffsReportMissingColumns(t *testing.T) {
	prev := rowset.NewRow()
	prev.Set("staff_full_name", "Jon Scheyer")
	prev.Set("staff_phone", "919-555-0100")

	curr := rowset.NewRow()
	curr.Set("staff_full_name", "Jon Scheyer")
	curr.Set("staff_twitter", "@jonscheyer")

	diffs := fieldDiffs(prev, curr)
	require.Len(t, diffs, 2)

	assert.Equal(t, "staff_twitter", diffs[0].Field)
	assert.Nil(t, diffs[0].Previous)
	assert.Equal(t, "@jonscheyer", diffs[0].Current)

	assert.Equal(t, "staff_phone", diffs[1].Field)
	assert.Equal(t, "919-555-0100", diffs[1].Previous)
	assert.Nil(t, diffs[1].Current)
}

func TestTimestampLike(t *testing.T) {
	assert.True(t, timestampLike("staff_date_updated"))
	assert.True(t, timestampLike("DATE_CREATED"))
	assert.True(t, timestampLike("last_modified"))
	assert.True(t, timestampLike("event_timestamp"))
	assert.False(t, timestampLike("staff_full_name"))
	assert.False(t, timestampLike("staff_title"))
}

func TestComputeHandlesNumericRoundTrip(t *testing.T) {
	// Rows loaded back from a stored snapshot carry json.Number values while
	// fresh rows carry native ints; the identity must line up regardless.
	fresh := rowset.NewRow()
	fresh.Set("staff_id", int64(42))
	fresh.Set("staff_full_name", "Jon Scheyer")

	data, err := rowset.Marshal([]*rowset.Row{fresh})
	require.NoError(t, err)
	stored, err := rowset.Unmarshal(data)
	require.NoError(t, err)

	cs := Compute(stored, []*rowset.Row{fresh})
	assert.Zero(t, cs.TotalChanges())
}

func TestComputeEmptySides(t *testing.T) {
	row := staffRow(t, "Jon Scheyer", "Head Coach", "2026-01-01")

	cs := Compute(nil, []*rowset.Row{row})
	assert.Len(t, cs.New, 1)
	assert.Empty(t, cs.Deleted)

	cs = Compute([]*rowset.Row{row}, nil)
	assert.Len(t, cs.Deleted, 1)
	assert.Empty(t, cs.New)
	assert.Equal(t, 0, cs.CurrentTotal)
}
