// Package rowset holds the row representation shared by the execution
// gateway, snapshot store, and change detector.
//
// A Row is an ordered mapping of output column name to scalar value. Order
// matters: snapshots are diffed by hashing serialized rows, so the JSON form
// must be deterministic for the same logical row.
package rowset

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Row is one result row with stable column order.
type Row struct {
	columns []string
	values  map[string]any
}

// NewRow returns an empty row that will keep columns in insertion order.
func NewRow() *Row {
	return &Row{values: make(map[string]any)}
}

// Set stores a value, appending the column on first sight.
func (r *Row) Set(column string, value any) {
	if _, ok := r.values[column]; !ok {
		r.columns = append(r.columns, column)
	}
	r.values[column] = value
}

// Get returns the value for a column and whether it is present.
func (r *Row) Get(column string) (any, bool) {
	v, ok := r.values[column]
	return v, ok
}

// Columns returns the column names in order. The returned slice is shared;
// callers must not mutate it.
func (r *Row) Columns() []string {
	return r.columns
}

// Len returns the number of columns.
func (r *Row) Len() int {
	return len(r.columns)
}

// MarshalJSON encodes the row as a JSON object in column order.
func (r *Row) MarshalJSON() ([]byte, error) {
	var b bytes.Buffer
	b.WriteByte('{')
	for i, col := range r.columns {
		if i > 0 {
			b.WriteByte(',')
		}
		key, err := json.Marshal(col)
		if err != nil {
			return nil, err
		}
		b.Write(key)
		b.WriteByte(':')
		val, err := json.Marshal(r.values[col])
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", col, err)
		}
		b.Write(val)
	}
	b.WriteByte('}')
	return b.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object preserving key order. Numbers decode
// as json.Number so round-tripped rows hash identically.
func (r *Row) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("row: expected object, got %v", tok)
	}

	r.columns = nil
	r.values = make(map[string]any)
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key := keyTok.(string)
		var val any
		if err := dec.Decode(&val); err != nil {
			return fmt.Errorf("row: column %s: %w", key, err)
		}
		r.Set(key, val)
	}
	_, err = dec.Token() // closing brace
	return err
}

// Encoded returns the canonical encoding of a single value, used for
// value comparisons across serialization round trips (int64(5) and
// json.Number("5") encode identically).
func Encoded(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

// Marshal serializes a row slice as a JSON array.
func Marshal(rows []*Row) ([]byte, error) {
	return json.Marshal(rows)
}

// Unmarshal decodes a JSON array of rows.
func Unmarshal(data []byte) ([]*Row, error) {
	var rows []*Row
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// Hash returns the hex sha256 digest of the serialized row set.
func Hash(rows []*Row) (string, error) {
	data, err := Marshal(rows)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
