package table

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"
)

// ReadJSON decodes either a bare array of objects or an API envelope with a
// "records" array.
func ReadJSON(r io.Reader, name string, kind Kind) (*Table, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, malformed(name, "read json", err)
	}
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return New(kind), nil
	}
	var recs []map[string]any
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if b[0] == '[' {
		if err := dec.Decode(&recs); err != nil {
			return nil, malformed(name, "decode json array", err)
		}
	} else {
		var env struct {
			Records []map[string]any `json:"records"`
		}
		if err := dec.Decode(&env); err != nil {
			return nil, malformed(name, "decode json object", err)
		}
		recs = env.Records
	}
	return FromMaps(kind, recs), nil
}

// FromMaps converts decoded JSON objects into a table. Scalars are rendered
// as strings; nested values are kept as compact JSON.
func FromMaps(kind Kind, recs []map[string]any) *Table {
	t := New(kind)
	for _, m := range recs {
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		row := make(Record, len(m))
		for _, k := range keys {
			t.AddColumn(k)
			row[k] = scalarString(m[k])
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

func scalarString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	case float64:
		return FormatNumber(x)
	case bool:
		if x {
			return "true"
		}
		return "false"
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	}
}
