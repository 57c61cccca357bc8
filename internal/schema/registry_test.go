package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsDuplicateTableKeys(t *testing.T) {
	_, err := New([]Table{
		{Key: "schools", Name: "schools", PrimaryKey: "id"},
		{Key: "schools", Name: "schools_2", PrimaryKey: "id"},
	}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate table key")
}

func TestNewRejectsDanglingRelations(t *testing.T) {
	_, err := New([]Table{
		{Key: "schools", Name: "schools", PrimaryKey: "id"},
	}, []Relation{
		{Left: "schools", Right: "staff", Link: "school_staff"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown table")
}

func TestResolve(t *testing.T) {
	reg := Default()

	col, err := reg.Resolve("schools", "school_name")
	require.NoError(t, err)
	assert.Equal(t, "schools.school_name", col.Qualified)
	assert.Equal(t, "schools_school_name", col.Alias)
	assert.Equal(t, TypeText, col.Type)

	_, err = reg.Resolve("schools", "mascot")
	require.ErrorIs(t, err, ErrUnknownField)

	_, err = reg.Resolve("teams", "name")
	require.ErrorIs(t, err, ErrUnknownField)
}

func TestResolveColumnOverride(t *testing.T) {
	reg, err := New([]Table{
		{Key: "s", Name: "schools_tbl", PrimaryKey: "id", Fields: []Field{
			{Key: "name", Column: "school_name", Type: TypeText},
		}},
	}, nil)
	require.NoError(t, err)

	col, err := reg.Resolve("s", "name")
	require.NoError(t, err)
	assert.Equal(t, "schools_tbl.school_name", col.Qualified)
	assert.Equal(t, "s_name", col.Alias)
}

func TestRelationBetweenNormalizes(t *testing.T) {
	reg := Default()

	rel, ok := reg.RelationBetween("schools", "staff")
	require.True(t, ok)
	assert.Equal(t, "schools", rel.Left)
	assert.Equal(t, "school_id", rel.LeftKey)
	assert.Equal(t, "staff_id", rel.RightKey)

	// Reversed lookup swaps the keys along with the sides.
	rel, ok = reg.RelationBetween("staff", "schools")
	require.True(t, ok)
	assert.Equal(t, "staff", rel.Left)
	assert.Equal(t, "staff_id", rel.LeftKey)
	assert.Equal(t, "school_id", rel.RightKey)

	_, ok = reg.RelationBetween("schools", "school_staff")
	assert.False(t, ok)
}

func TestRelationWithLink(t *testing.T) {
	reg := Default()

	rel, ok := reg.RelationWithLink("school_staff", "staff")
	require.True(t, ok)
	assert.Equal(t, "staff", rel.Left)
	assert.Equal(t, "staff_id", rel.LeftKey)

	_, ok = reg.RelationWithLink("schools", "staff")
	assert.False(t, ok)
}

func TestIsLinkTable(t *testing.T) {
	reg := Default()

	assert.True(t, reg.IsLinkTable("school_staff"))
	assert.False(t, reg.IsLinkTable("schools"))
}

func TestDefaultRegistry(t *testing.T) {
	reg := Default()

	assert.Equal(t, []string{"schools", "staff", "school_staff"}, reg.Tables())

	tbl, ok := reg.Table("staff")
	require.True(t, ok)
	assert.Equal(t, "id", tbl.PrimaryKey)
	assert.NotEmpty(t, tbl.Fields)
}
