package table

import (
	"fmt"
	"strconv"
	"strings"
)

// Record is one loosely typed row keyed by lower-cased column name.
// Numeric fields are stored in their canonical decimal form once normalized.
type Record map[string]string

// Get returns the trimmed value for col, or "" when absent.
func (r Record) Get(col string) string {
	return strings.TrimSpace(r[col])
}

// Float parses col as a number; missing or unparsable values yield 0.
func (r Record) Float(col string) float64 {
	v, ok := ParseNumber(r[col])
	if !ok {
		return 0
	}
	return v
}

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Table is an ordered batch of records for a single dataset kind.
type Table struct {
	Kind    Kind     `json:"kind"`
	Columns []string `json:"columns"`
	Rows    []Record `json:"rows"`
}

// New returns an empty table for kind with the given columns.
func New(kind Kind, columns ...string) *Table {
	return &Table{Kind: kind, Columns: append([]string(nil), columns...)}
}

// Len returns the number of rows; a nil table has none.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Empty reports whether the table is nil or has no rows.
func (t *Table) Empty() bool { return t.Len() == 0 }

// HasColumn reports whether col is part of the table schema.
func (t *Table) HasColumn(col string) bool {
	if t == nil {
		return false
	}
	for _, c := range t.Columns {
		if c == col {
			return true
		}
	}
	return false
}

// Require returns a MalformedInputError naming the first missing column.
func (t *Table) Require(cols ...string) error {
	for _, c := range cols {
		if !t.HasColumn(c) {
			src := ""
			if t != nil {
				src = string(t.Kind)
			}
			return malformed(src, fmt.Sprintf("missing required column %q", c), nil)
		}
	}
	return nil
}

// AddColumn appends col to the schema if it is not already present.
func (t *Table) AddColumn(col string) {
	if !t.HasColumn(col) {
		t.Columns = append(t.Columns, col)
	}
}

// Append adds a row, growing the schema with any unseen columns.
func (t *Table) Append(r Record) {
	for k := range r {
		if !t.HasColumn(k) {
			t.Columns = append(t.Columns, k)
		}
	}
	t.Rows = append(t.Rows, r)
}

// Clone deep-copies the table so callers can mutate the result freely.
func (t *Table) Clone() *Table {
	if t == nil {
		return nil
	}
	out := &Table{Kind: t.Kind, Columns: append([]string(nil), t.Columns...)}
	out.Rows = make([]Record, len(t.Rows))
	for i, r := range t.Rows {
		out.Rows[i] = r.Clone()
	}
	return out
}

// FormatNumber renders a float in the canonical form stored in records.
func FormatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
