package table

import (
	"math"
	"strconv"
	"strings"
)

// ParseNumber parses counts as they arrive from spreadsheets and the open
// data API: surrounding whitespace, thousands separators (including Indian
// lakh grouping such as 1,00,000), European decimal commas and scientific
// notation are accepted. Empty, null-like and non-finite values report false.
func ParseNumber(s string) (float64, bool) {
	raw := strings.TrimSpace(strings.ReplaceAll(s, "\u00A0", " "))
	if raw == "" {
		return 0, false
	}
	switch strings.ToLower(raw) {
	case "nan", "null", "none", "na", "n/a", "-":
		return 0, false
	}
	raw = strings.ReplaceAll(raw, " ", "")

	cpos := strings.LastIndex(raw, ",")
	dpos := strings.LastIndex(raw, ".")
	dec, thou := byte('.'), byte(',')
	switch {
	case cpos >= 0 && dpos >= 0:
		if cpos > dpos {
			dec, thou = ',', '.'
		}
	case cpos >= 0:
		// A single comma followed by exactly three digits is grouping, not
		// a decimal mark; several commas are always grouping.
		if strings.Count(raw, ",") == 1 && len(raw)-cpos-1 != 3 {
			dec, thou = ',', '.'
		}
	}
	raw = strings.ReplaceAll(raw, string(thou), "")
	if dec != '.' {
		raw = strings.ReplaceAll(raw, string(dec), ".")
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
