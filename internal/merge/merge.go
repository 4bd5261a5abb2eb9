// Package merge folds newly uploaded batches into the persistent master
// table of each dataset kind.
package merge

import (
	"fmt"
	"strings"

	"github.com/KaramelBytes/satark-cli/internal/normalize"
	"github.com/KaramelBytes/satark-cli/internal/table"
)

// Policy selects how same-keyed rows are resolved.
type Policy string

const (
	// ReplaceBatch drops every master row whose key appears in the incoming
	// batch and appends the whole batch. Rows inside one batch never
	// collapse, so a first upload with several rows per district keeps them all.
	ReplaceBatch Policy = "replace-batch"
	// KeepLastRow keeps only the last occurrence of each key across the
	// concatenated master and batch.
	KeepLastRow Policy = "keep-last-row"
)

// ParsePolicy validates a policy name from configuration.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case "", ReplaceBatch:
		return ReplaceBatch, nil
	case KeepLastRow:
		return KeepLastRow, nil
	}
	return "", fmt.Errorf("invalid merge policy: %s (use %s|%s)", s, ReplaceBatch, KeepLastRow)
}

// Options controls deduplication.
type Options struct {
	// Keys are the candidate key columns. Columns absent from the combined
	// schema are skipped, so "date" only participates when some batch has it.
	Keys   []string
	Policy Policy
}

// DefaultOptions keys on state, district, pincode and date.
func DefaultOptions() Options {
	return Options{
		Keys:   []string{table.ColState, table.ColDistrict, table.ColPincode, table.ColDate},
		Policy: ReplaceBatch,
	}
}

// Stats summarizes one merge.
type Stats struct {
	Kind     table.Kind `json:"kind"`
	Incoming int        `json:"incoming_rows"`
	Accepted int        `json:"accepted_rows"`
	Replaced int        `json:"replaced_rows"`
	Total    int        `json:"total_rows"`
}

// Merger normalizes batches and folds them into masters.
type Merger struct {
	norm *normalize.Normalizer
	opt  Options
}

// New returns a Merger. Zero-valued options fall back to DefaultOptions.
func New(norm *normalize.Normalizer, opt Options) *Merger {
	def := DefaultOptions()
	if len(opt.Keys) == 0 {
		opt.Keys = def.Keys
	}
	if opt.Policy == "" {
		opt.Policy = def.Policy
	}
	if norm == nil {
		norm = normalize.New(nil)
	}
	return &Merger{norm: norm, opt: opt}
}

// Merge returns the new master for incoming's kind. Neither argument is
// modified. master may be nil or empty.
func (m *Merger) Merge(master, incoming *table.Table) (*table.Table, Stats, error) {
	if incoming == nil {
		return nil, Stats{}, fmt.Errorf("merge: incoming batch is nil")
	}
	if !incoming.Kind.Valid() {
		return nil, Stats{}, fmt.Errorf("merge: unknown dataset kind %q", incoming.Kind)
	}
	if master != nil && master.Kind != "" && master.Kind != incoming.Kind {
		return nil, Stats{}, fmt.Errorf("merge: cannot merge %s batch into %s master", incoming.Kind, master.Kind)
	}
	st := Stats{Kind: incoming.Kind, Incoming: incoming.Len()}
	batch := m.norm.Table(incoming)
	if !incoming.Empty() {
		if err := batch.Require(table.ColState, table.ColDistrict, incoming.Kind.CountColumn()); err != nil {
			return nil, Stats{}, err
		}
	}
	st.Accepted = batch.Len()

	if master.Empty() {
		if master != nil {
			for _, c := range master.Columns {
				batch.AddColumn(c)
			}
		}
		st.Total = batch.Len()
		return batch, st, nil
	}

	out := &table.Table{Kind: incoming.Kind, Columns: append([]string(nil), master.Columns...)}
	for _, c := range batch.Columns {
		out.AddColumn(c)
	}
	keys := m.keyColumns(out)

	switch m.opt.Policy {
	case KeepLastRow:
		combined := make([]table.Record, 0, master.Len()+batch.Len())
		combined = append(combined, master.Rows...)
		combined = append(combined, batch.Rows...)
		last := make(map[string]int, len(combined))
		for i, r := range combined {
			last[rowKey(r, keys)] = i
		}
		out.Rows = make([]table.Record, 0, len(last))
		for i, r := range combined {
			if last[rowKey(r, keys)] != i {
				if i < master.Len() {
					st.Replaced++
				}
				continue
			}
			out.Rows = append(out.Rows, r.Clone())
		}
	default:
		seen := make(map[string]struct{}, batch.Len())
		for _, r := range batch.Rows {
			seen[rowKey(r, keys)] = struct{}{}
		}
		out.Rows = make([]table.Record, 0, master.Len()+batch.Len())
		for _, r := range master.Rows {
			if _, dup := seen[rowKey(r, keys)]; dup {
				st.Replaced++
				continue
			}
			out.Rows = append(out.Rows, r.Clone())
		}
		out.Rows = append(out.Rows, batch.Rows...)
	}
	st.Total = out.Len()
	return out, st, nil
}

func (m *Merger) keyColumns(t *table.Table) []string {
	var cols []string
	for _, k := range m.opt.Keys {
		if t.HasColumn(k) {
			cols = append(cols, k)
		}
	}
	return cols
}

func rowKey(r table.Record, cols []string) string {
	parts := make([]string, len(cols))
	for i, c := range cols {
		parts[i] = r.Get(c)
	}
	return strings.Join(parts, "\x1f")
}
