package pipeline

import (
	"sort"

	"github.com/KaramelBytes/satark-cli/internal/table"
)

// DistrictKey identifies one district.
type DistrictKey struct {
	State    string `json:"state"`
	District string `json:"district"`
}

func (k DistrictKey) less(o DistrictKey) bool {
	if k.State != o.State {
		return k.State < o.State
	}
	return k.District < o.District
}

// Total is the summed count for one district.
type Total struct {
	Key DistrictKey
	Sum float64
}

// Aggregate sums column per (state, district). The result holds one entry per
// key, ordered by state then district. An empty table aggregates to nothing;
// a non-empty table without the grouping or count columns is malformed.
func Aggregate(t *table.Table, column string) ([]Total, error) {
	if t.Empty() {
		return nil, nil
	}
	if err := t.Require(table.ColState, table.ColDistrict, column); err != nil {
		return nil, err
	}
	sums := make(map[DistrictKey]float64)
	for _, r := range t.Rows {
		k := DistrictKey{State: r.Get(table.ColState), District: r.Get(table.ColDistrict)}
		sums[k] += r.Float(column)
	}
	out := make([]Total, 0, len(sums))
	for k, v := range sums {
		out = append(out, Total{Key: k, Sum: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key.less(out[j].Key) })
	return out, nil
}
