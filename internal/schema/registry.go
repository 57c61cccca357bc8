// Package schema describes the tables and fields the query builder may
// reference, plus the relation graph used for join inference.
//
// A Registry is immutable after construction: it is built once at startup
// and handed to the compiler by reference.
package schema

import (
	"errors"
	"fmt"
)

// ErrUnknownField is returned when a table/field pair does not resolve.
var ErrUnknownField = errors.New("unknown field")

// FieldType describes how a field's values should be treated.
type FieldType string

const (
	TypeText   FieldType = "text"
	TypeNumber FieldType = "number"
	TypeDate   FieldType = "date"
	TypeURL    FieldType = "url"
	TypeEmail  FieldType = "email"
)

// Field is a single column within a table.
type Field struct {
	// Key is the field key used in FieldRefs (e.g. "city").
	Key string
	// Column is the physical column name. Usually equal to Key.
	Column string
	// Type is the value type of the field.
	Type FieldType
}

// Table is a queryable table.
type Table struct {
	// Key is the table key used in FieldRefs (e.g. "schools").
	Key string
	// Name is the physical table name.
	Name string
	// PrimaryKey is the physical primary key column.
	PrimaryKey string
	// Fields lists the table's fields in declaration order.
	Fields []Field
}

// Relation describes a many-to-many pair mediated by a link table.
type Relation struct {
	// Left and Right are the table keys on each side of the relation.
	Left  string
	Right string
	// Link is the table key of the mediating link table.
	Link string
	// LeftKey and RightKey are the link table's foreign key columns
	// pointing at Left's and Right's primary keys respectively.
	LeftKey  string
	RightKey string
}

// Column is the result of resolving a FieldRef.
type Column struct {
	// Qualified is the fully qualified column name ("table.column").
	Qualified string
	// Alias is the output column name ("table_field").
	Alias string
	// Type is the field's value type.
	Type FieldType
}

// Registry holds the static table/field/relation description.
type Registry struct {
	tables    []Table
	byKey     map[string]int
	relations []Relation
}

// New builds a Registry from the given tables and relations. Table order is
// preserved; it has no semantic weight but keeps listings stable.
func New(tables []Table, relations []Relation) (*Registry, error) {
	r := &Registry{
		tables:    tables,
		byKey:     make(map[string]int, len(tables)),
		relations: relations,
	}
	for i, t := range tables {
		if _, dup := r.byKey[t.Key]; dup {
			return nil, fmt.Errorf("duplicate table key %q", t.Key)
		}
		r.byKey[t.Key] = i
	}
	for _, rel := range relations {
		for _, key := range []string{rel.Left, rel.Right, rel.Link} {
			if _, ok := r.byKey[key]; !ok {
				return nil, fmt.Errorf("relation references unknown table %q", key)
			}
		}
	}
	return r, nil
}

// Tables returns the table keys in declaration order.
func (r *Registry) Tables() []string {
	keys := make([]string, len(r.tables))
	for i, t := range r.tables {
		keys[i] = t.Key
	}
	return keys
}

// Table returns the table for a key.
func (r *Registry) Table(key string) (Table, bool) {
	i, ok := r.byKey[key]
	if !ok {
		return Table{}, false
	}
	return r.tables[i], true
}

// Resolve maps a table/field pair to its qualified column. Fails with
// ErrUnknownField if either part is not registered.
func (r *Registry) Resolve(tableKey, fieldKey string) (Column, error) {
	i, ok := r.byKey[tableKey]
	if !ok {
		return Column{}, fmt.Errorf("%w: %s.%s", ErrUnknownField, tableKey, fieldKey)
	}
	t := r.tables[i]
	for _, f := range t.Fields {
		if f.Key == fieldKey {
			col := f.Column
			if col == "" {
				col = f.Key
			}
			return Column{
				Qualified: t.Name + "." + col,
				Alias:     t.Key + "_" + f.Key,
				Type:      f.Type,
			}, nil
		}
	}
	return Column{}, fmt.Errorf("%w: %s.%s", ErrUnknownField, tableKey, fieldKey)
}

// RelationBetween returns the relation linking two table keys, in either
// order. The returned relation is normalized so that Left == a.
func (r *Registry) RelationBetween(a, b string) (Relation, bool) {
	for _, rel := range r.relations {
		if rel.Left == a && rel.Right == b {
			return rel, true
		}
		if rel.Left == b && rel.Right == a {
			return Relation{
				Left:     a,
				Right:    b,
				Link:     rel.Link,
				LeftKey:  rel.RightKey,
				RightKey: rel.LeftKey,
			}, true
		}
	}
	return Relation{}, false
}

// RelationWithLink returns the relation whose link table is link and which
// has side as one of its endpoints, normalized so that Left == side.
func (r *Registry) RelationWithLink(link, side string) (Relation, bool) {
	for _, rel := range r.relations {
		if rel.Link != link {
			continue
		}
		if rel.Left == side {
			return rel, true
		}
		if rel.Right == side {
			return Relation{
				Left:     side,
				Right:    rel.Left,
				Link:     rel.Link,
				LeftKey:  rel.RightKey,
				RightKey: rel.LeftKey,
			}, true
		}
	}
	return Relation{}, false
}

// IsLinkTable reports whether key is the link table of any relation.
func (r *Registry) IsLinkTable(key string) bool {
	for _, rel := range r.relations {
		if rel.Link == key {
			return true
		}
	}
	return false
}
