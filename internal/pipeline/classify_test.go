package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusForIsStrict(t *testing.T) {
	cases := map[float64]Status{
		100:   StatusCritical,
		50.01: StatusCritical,
		50:    StatusModerate,
		20.5:  StatusModerate,
		20:    StatusSafe,
		0:     StatusSafe,
	}
	for gap, want := range cases {
		if got := StatusFor(gap); got != want {
			t.Fatalf("StatusFor(%v) = %s, want %s", gap, got, want)
		}
	}
}

func TestClassifyAnomalyOnSafeReplacesReason(t *testing.T) {
	_, reason := Classify(Metric{Gap: 5, IsAnomaly: true})
	assert.Equal(t, reasonSafeOdd, reason)
}

func TestClassifyAnomalyOnCriticalAppends(t *testing.T) {
	status, reason := Classify(Metric{Gap: 75, IsAnomaly: true})
	assert.Equal(t, StatusCritical, status)
	assert.Equal(t, reasonCritical+reasonAnomaly, reason)
}

func TestClassifyDemoVarianceCitesSignedDifference(t *testing.T) {
	_, reason := Classify(Metric{Gap: 30, Actual: 3000, Demo: 1500})
	assert.Equal(t, reasonModerate+" High variance seen in demographic data (-1500 difference).", reason)

	_, reason = Classify(Metric{Gap: 30, Actual: 3000, Demo: 3900})
	assert.Equal(t, reasonModerate, reason)
}

func TestClassifyFraudRiskNeedsStrictExcess(t *testing.T) {
	_, reason := Classify(Metric{Efficiency: 1.2})
	assert.NotContains(t, reason, "FRAUD")
	_, reason = Classify(Metric{Efficiency: 1.21})
	assert.Contains(t, reason, "FRAUD")
}

func TestMetricsRatios(t *testing.T) {
	ms := ComputeMetrics(
		[]Total{{Key: DistrictKey{"A", "X"}, Sum: 0}},
		[]Total{{Key: DistrictKey{"A", "X"}, Sum: 0}},
		nil)
	assert.Equal(t, 0.0, ms[0].Gap)
	assert.Equal(t, 0.0, ms[0].Efficiency)
}

func TestLocatorKnownAndJitter(t *testing.T) {
	l := NewLocator(nil)
	p, known := l.Locate("Kolkata")
	assert.True(t, known)
	assert.InDelta(t, 22.5726, p.Lat, 1e-9)

	p, known = l.Locate("Atlantis")
	assert.False(t, known)
	assert.InDelta(t, 24.0437, p.Lat, 1e-9)
	assert.InDelta(t, 83.1129, p.Lng, 1e-9)
	assert.Equal(t, p, Jitter("Atlantis"))
}

func TestJitterStaysNearCentre(t *testing.T) {
	for _, name := range []string{"Zz", "Qwerty", "Nowhere Special", "Ab"} {
		p := Jitter(name)
		assert.GreaterOrEqual(t, p.Lat, baseLat-5)
		assert.Less(t, p.Lat, baseLat+5)
		assert.GreaterOrEqual(t, p.Lng, baseLng-5)
		assert.Less(t, p.Lng, baseLng+5)
	}
}
