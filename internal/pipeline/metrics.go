package pipeline

import (
	"math"
	"sort"
)

// Metric is the derived, per-district view fed to detection and
// classification.
type Metric struct {
	DistrictKey
	Expected     float64 `json:"expected_updates"`
	Actual       float64 `json:"actual_updates"`
	Demo         float64 `json:"demo_updates"`
	Pending      float64 `json:"pending_updates"`
	Gap          float64 `json:"gap_percentage"`
	Efficiency   float64 `json:"efficiency_index"`
	AnomalyScore float64 `json:"anomaly_score"`
	IsAnomaly    bool    `json:"is_anomaly"`
}

// ComputeMetrics joins the aggregates and derives pending, gap and
// efficiency. Enrolment and biometric are outer-joined with absent sides
// counted as zero; demographic is left-joined onto that set, so districts
// seen only in demographic data are dropped.
func ComputeMetrics(enrolment, biometric, demographic []Total) []Metric {
	byKey := make(map[DistrictKey]*Metric)
	get := func(k DistrictKey) *Metric {
		m, ok := byKey[k]
		if !ok {
			m = &Metric{DistrictKey: k}
			byKey[k] = m
		}
		return m
	}
	for _, t := range enrolment {
		get(t.Key).Expected += t.Sum
	}
	for _, t := range biometric {
		get(t.Key).Actual += t.Sum
	}
	for _, t := range demographic {
		if m, ok := byKey[t.Key]; ok {
			m.Demo += t.Sum
		}
	}

	out := make([]Metric, 0, len(byKey))
	for _, m := range byKey {
		derive(m)
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DistrictKey.less(out[j].DistrictKey) })
	return out
}

func derive(m *Metric) {
	diff := m.Expected - m.Actual
	m.Pending = math.Max(diff, 0)
	m.Gap = clamp(ratio(diff, m.Expected)*100, 0, 100)
	m.Efficiency = ratio(m.Actual, m.Expected)
}

// ratio divides, mapping 0/0 and infinities to 0.
func ratio(num, den float64) float64 {
	r := num / den
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return 0
	}
	return r
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}
