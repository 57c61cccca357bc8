// Package diff classifies the rows of two snapshots as new, modified, or
// deleted.
//
// Matching uses an identity key derived from every field except
// timestamp-like ones, so a drifting date_updated alone never turns one
// logical record into a delete plus an insert. The modification check still
// covers all fields, so a timestamp-only change is reported as modified with
// the timestamp as the sole diff entry.
package diff

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/rosterlabs/rosterwatch/internal/rowset"
)

// timestampMarkers flag field names excluded from the identity key.
var timestampMarkers = []string{"date", "created", "updated", "modified", "timestamp"}

// FieldDiff is one changed field on a modified row.
type FieldDiff struct {
	Field    string `json:"field"`
	Previous any    `json:"previous"`
	Current  any    `json:"current"`
}

// ModifiedRow pairs the current and previous versions of a matched row with
// its field-level differences.
type ModifiedRow struct {
	Current  *rowset.Row `json:"current"`
	Previous *rowset.Row `json:"previous"`
	Diffs    []FieldDiff `json:"diffs"`
}

// ChangeSet is the result of comparing two result sets.
type ChangeSet struct {
	New      []*rowset.Row `json:"new"`
	Modified []ModifiedRow `json:"modified"`
	Deleted  []*rowset.Row `json:"deleted"`

	PreviousTotal int `json:"previous_total"`
	CurrentTotal  int `json:"current_total"`
}

// TotalChanges is the sum of new, modified, and deleted rows.
func (c *ChangeSet) TotalChanges() int {
	return len(c.New) + len(c.Modified) + len(c.Deleted)
}

// Baseline returns the change set for a first observation: no previous set
// exists, so nothing is reported as changed regardless of current contents.
func Baseline(current []*rowset.Row) *ChangeSet {
	return &ChangeSet{CurrentTotal: len(current)}
}

// Compute diffs current against previous.
func Compute(previous, current []*rowset.Row) *ChangeSet {
	cs := &ChangeSet{
		PreviousTotal: len(previous),
		CurrentTotal:  len(current),
	}

	prevByKey := make(map[string]*rowset.Row, len(previous))
	for _, row := range previous {
		prevByKey[identityKey(row)] = row
	}
	currKeys := make(map[string]bool, len(current))

	for _, row := range current {
		key := identityKey(row)
		currKeys[key] = true

		prev, ok := prevByKey[key]
		if !ok {
			cs.New = append(cs.New, row)
			continue
		}
		if !sameSerialization(prev, row) {
			cs.Modified = append(cs.Modified, ModifiedRow{
				Current:  row,
				Previous: prev,
				Diffs:    fieldDiffs(prev, row),
			})
		}
	}

	for _, row := range previous {
		if !currKeys[identityKey(row)] {
			cs.Deleted = append(cs.Deleted, row)
		}
	}

	return cs
}

// identityKey hashes all non-timestamp field values in the row's stable
// field order.
func identityKey(row *rowset.Row) string {
	h := sha256.New()
	for _, col := range row.Columns() {
		if timestampLike(col) {
			continue
		}
		v, _ := row.Get(col)
		h.Write([]byte(col))
		h.Write([]byte{'='})
		h.Write([]byte(rowset.Encoded(v)))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// timestampLike reports whether a field name carries a date/creation/update
// marker.
func timestampLike(name string) bool {
	lower := strings.ToLower(name)
	for _, marker := range timestampMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// sameSerialization compares the full serialized forms, timestamps included.
func sameSerialization(a, b *rowset.Row) bool {
	aj, errA := a.MarshalJSON()
	bj, errB := b.MarshalJSON()
	if errA != nil || errB != nil {
		return false
	}
	return string(aj) == string(bj)
}

// fieldDiffs reports every key in the union of both rows whose value
// differs. A key missing from the previous row counts as differing.
func fieldDiffs(prev, curr *rowset.Row) []FieldDiff {
	var diffs []FieldDiff
	seen := make(map[string]bool)

	for _, col := range curr.Columns() {
		seen[col] = true
		cv, _ := curr.Get(col)
		pv, ok := prev.Get(col)
		if !ok || rowset.Encoded(pv) != rowset.Encoded(cv) {
			diffs = append(diffs, FieldDiff{Field: col, Previous: pv, Current: cv})
		}
	}
	for _, col := range prev.Columns() {
		if seen[col] {
			continue
		}
		pv, _ := prev.Get(col)
		diffs = append(diffs, FieldDiff{Field: col, Previous: pv, Current: nil})
	}
	return diffs
}
