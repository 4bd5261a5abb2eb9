// Package normalize canonicalizes raw administrative extracts: column names,
// free-text state and district names, and count columns.
package normalize

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/KaramelBytes/satark-cli/internal/table"
)

// Normalizer applies the reference corrections to tables. It is safe for
// concurrent use because the reference is read-only.
type Normalizer struct {
	ref *Reference
}

// New returns a Normalizer over ref; a nil ref selects the built-in tables.
func New(ref *Reference) *Normalizer {
	if ref == nil {
		ref = DefaultReference()
	}
	return &Normalizer{ref: ref}
}

// Reference exposes the tables the normalizer was built with.
func (n *Normalizer) Reference() *Reference { return n.ref }

// Table returns a normalized copy of t. The input is never modified and
// normalizing an already normalized table yields an equal table.
func (n *Normalizer) Table(t *table.Table) *table.Table {
	if t == nil {
		return nil
	}
	out := &table.Table{Kind: t.Kind}
	rename := make(map[string]string, len(t.Columns))
	for _, c := range t.Columns {
		nc := ColumnName(c)
		rename[c] = nc
		out.AddColumn(nc)
	}
	numeric := t.Kind.NumericColumns()

	out.Rows = make([]table.Record, 0, len(t.Rows))
	for _, raw := range t.Rows {
		row := make(table.Record, len(raw))
		for _, c := range t.Columns {
			v, ok := raw[c]
			if !ok {
				continue
			}
			row[rename[c]] = v
		}
		// Keys outside the declared schema still carry data.
		for k, v := range raw {
			if _, known := rename[k]; known {
				continue
			}
			nk := ColumnName(k)
			out.AddColumn(nk)
			row[nk] = v
		}

		if out.HasColumn(table.ColDistrict) {
			if !ValidDistrict(row[table.ColDistrict]) {
				continue
			}
			d := n.District(row[table.ColDistrict])
			if !ValidDistrict(d) {
				continue
			}
			row[table.ColDistrict] = d
		}
		if out.HasColumn(table.ColState) {
			row[table.ColState] = n.State(row[table.ColState])
		}
		for _, c := range numeric {
			if !out.HasColumn(c) {
				continue
			}
			v, _ := table.ParseNumber(row[c])
			row[c] = table.FormatNumber(v)
		}
		out.Rows = append(out.Rows, row)
	}
	return out
}

// State canonicalizes a state name.
func (n *Normalizer) State(s string) string {
	s = TitleCase(CollapseSpace(s))
	if v, ok := n.ref.States[s]; ok {
		return v
	}
	return s
}

// District canonicalizes a district name, dropping any "(...)" or "*..."
// annotation before the alias lookup.
func (n *Normalizer) District(s string) string {
	s = TitleCase(CollapseSpace(s))
	if i := strings.IndexByte(s, '('); i >= 0 {
		s = s[:i]
	}
	if i := strings.IndexByte(s, '*'); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimSpace(s)
	if v, ok := n.ref.Districts[s]; ok {
		return v
	}
	return s
}

// ColumnName lower-cases and trims a header.
func ColumnName(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ValidDistrict rejects missing, purely numeric and single-character names,
// which upstream feeds use as placeholders.
func ValidDistrict(s string) bool {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) < 2 {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

// CollapseSpace trims s and folds every whitespace run into one space.
func CollapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// TitleCase upper-cases the first cased letter after any uncased character
// and lower-cases the rest, so "y.s.r." becomes "Y.S.R." and "24 parganas"
// becomes "24 Parganas".
func TitleCase(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	prevCased := false
	for _, r := range s {
		cased := unicode.IsUpper(r) || unicode.IsLower(r) || unicode.IsTitle(r)
		switch {
		case cased && prevCased:
			b.WriteRune(unicode.ToLower(r))
		case cased:
			b.WriteRune(unicode.ToTitle(r))
		default:
			b.WriteRune(r)
		}
		prevCased = cased
	}
	return b.String()
}
