package pipeline

import (
	"fmt"
	"math"
)

// Status is the severity tier of a district.
type Status string

const (
	StatusCritical Status = "CRITICAL"
	StatusModerate Status = "MODERATE"
	StatusSafe     Status = "SAFE"
)

// Gap thresholds are strict: exactly 50 is MODERATE, exactly 20 is SAFE.
const (
	CriticalGap = 50.0
	ModerateGap = 20.0

	// DemoVarianceLimit is the |demo - actual| difference that earns a note.
	DemoVarianceLimit = 1000.0
	// FraudEfficiency is the actual/expected ratio above which updates are
	// suspicious.
	FraudEfficiency = 1.2
)

const (
	reasonCritical  = "High Deficit Alert: Over 50% gap indicates immediate intervention needed. Possible migration hub or lack of centers."
	reasonModerate  = "Warning: Gap is widening. Schedule camps to prevent backlog accumulation."
	reasonSafe      = "Normal operations. Updates usage consistent with enrolment."
	reasonSafeOdd   = "Unusual Pattern Detected: Metric outlier despite safe status."
	reasonAnomaly   = " [AI Anomaly]: Statistical outlier detected relative to state patterns."
	reasonDemoFmt   = " High variance seen in demographic data (%d difference)."
	reasonFraudRisk = " [FRAUD ALERT]: Updates exceed 120% of estimated population. Possible ghost enrolments."
)

// StatusFor maps a gap percentage to its tier.
func StatusFor(gap float64) Status {
	switch {
	case gap > CriticalGap:
		return StatusCritical
	case gap > ModerateGap:
		return StatusModerate
	}
	return StatusSafe
}

// Classify returns the tier and the explanation shown to operators.
func Classify(m Metric) (Status, string) {
	status := StatusFor(m.Gap)
	var reason string
	switch status {
	case StatusCritical:
		reason = reasonCritical
	case StatusModerate:
		reason = reasonModerate
	default:
		reason = reasonSafe
	}

	if m.IsAnomaly {
		if status == StatusSafe {
			reason = reasonSafeOdd
		} else {
			reason += reasonAnomaly
		}
	}
	if m.Demo > 0 && math.Abs(m.Demo-m.Actual) > DemoVarianceLimit {
		reason += fmt.Sprintf(reasonDemoFmt, int64(m.Demo-m.Actual))
	}
	if m.Efficiency > FraudEfficiency {
		reason += reasonFraudRisk
	}
	return status, reason
}
