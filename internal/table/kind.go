package table

import (
	"fmt"
	"strings"
)

// Kind identifies which administrative extract a table holds.
type Kind string

const (
	Enrolment   Kind = "enrolment"
	Biometric   Kind = "biometric"
	Demographic Kind = "demographic"
)

// Kinds lists every dataset kind in pipeline order.
var Kinds = []Kind{Enrolment, Biometric, Demographic}

// Common geographic columns shared by all kinds.
const (
	ColState    = "state"
	ColDistrict = "district"
	ColPincode  = "pincode"
	ColDate     = "date"
)

// CountColumn returns the canonical count column consumed by the aggregator.
func (k Kind) CountColumn() string {
	switch k {
	case Enrolment:
		return "age_5_17"
	case Biometric:
		return "bio_age_5_17"
	case Demographic:
		return "demo_age_5_17"
	}
	return ""
}

// NumericColumns returns every count column known for the kind. Only
// CountColumn feeds the metrics; the rest are coerced so persisted masters
// stay consistent.
func (k Kind) NumericColumns() []string {
	switch k {
	case Enrolment:
		return []string{"age_0_5", "age_5_17", "age_18_greater"}
	case Biometric:
		return []string{"bio_age_5_17", "bio_age_17_"}
	case Demographic:
		return []string{"demo_age_5_17", "demo_age_17_"}
	}
	return nil
}

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	return k.CountColumn() != ""
}

func (k Kind) String() string { return string(k) }

// ParseKind accepts the canonical names plus a few short aliases.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "enrolment", "enrollment", "enrol", "enroll":
		return Enrolment, nil
	case "biometric", "bio":
		return Biometric, nil
	case "demographic", "demo":
		return Demographic, nil
	}
	return "", fmt.Errorf("unknown dataset kind: %q (use enrolment|biometric|demographic)", s)
}
