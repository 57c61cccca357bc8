// Package query turns user-authored query specs into executable SQL.
//
// A Spec is the structured form produced by the query builder: a field
// selection, condition groups, and options. Compilation resolves every field
// reference against the schema registry, infers the join graph, and emits
// either a data query or a count query with identical FROM/JOIN/WHERE.
package query

import (
	"fmt"
	"strings"
)

// BoolOp joins conditions or condition groups.
type BoolOp string

const (
	And BoolOp = "AND"
	Or  BoolOp = "OR"
)

// JoinType selects the join flavor for inferred joins.
type JoinType string

const (
	LeftJoin  JoinType = "LEFT JOIN"
	InnerJoin JoinType = "INNER JOIN"
)

// Condition is a single predicate within a group. Field and Operator are
// the loosely-typed strings the form submits; a condition missing either is
// skipped during compilation. Relation links this condition to the next one
// in the same group and is ignored on the group's last condition.
type Condition struct {
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Value    string `json:"value"`
	Value2   string `json:"value2,omitempty"`
	Relation BoolOp `json:"relation,omitempty"`
}

// Group is an ordered sequence of conditions wrapped in parentheses as one
// WHERE unit.
type Group struct {
	Conditions []Condition `json:"conditions"`
}

// Page requests offset pagination for a data query.
type Page struct {
	Number int
	Size   int
}

// Spec is a structured query definition.
type Spec struct {
	// Fields lists output fields as "table.field" references, in order.
	Fields []string `json:"fields"`

	// Groups holds the condition groups ANDed/ORed per GroupOperators.
	Groups []Group `json:"conditions,omitempty"`

	// GroupOperators joins each group at index > 0 to the accumulated WHERE
	// clause. A missing entry defaults to OR. Group 0 has no entry.
	GroupOperators map[int]BoolOp `json:"group_operators,omitempty"`

	// JoinType is applied to every inferred join. Defaults to LEFT JOIN.
	JoinType JoinType `json:"join_type,omitempty"`

	// OrderBy is an optional "table.field" reference.
	OrderBy  string `json:"order_by,omitempty"`
	OrderDir string `json:"order_dir,omitempty"`

	// Limit caps non-paginated data queries when > 0.
	Limit int `json:"limit,omitempty"`
}

// Unpaginated returns a copy of the spec with its row cap removed. Monitoring
// snapshots must always cover the complete result set.
func (s Spec) Unpaginated() Spec {
	out := s
	out.Limit = 0
	return out
}

// splitRef splits a "table.field" reference.
func splitRef(ref string) (table, field string, err error) {
	i := strings.Index(ref, ".")
	if i <= 0 || i == len(ref)-1 {
		return "", "", fmt.Errorf("%w: malformed reference %q", ErrUnknownField, ref)
	}
	return ref[:i], ref[i+1:], nil
}
