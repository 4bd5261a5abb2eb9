package pipeline

import (
	"encoding/json"
	"errors"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/satark-cli/internal/anomaly"
	"github.com/KaramelBytes/satark-cli/internal/table"
)

type row struct {
	state, district string
	count           float64
}

func build(kind table.Kind, rows ...row) *table.Table {
	col := kind.CountColumn()
	t := table.New(kind, "state", "district", col)
	for _, r := range rows {
		t.Append(table.Record{"state": r.state, "district": r.district, col: strconv.FormatFloat(r.count, 'f', -1, 64)})
	}
	return t
}

func byDistrict(t *testing.T, res *Result) map[string]DistrictReport {
	t.Helper()
	out := make(map[string]DistrictReport, len(res.Districts))
	for _, d := range res.Districts {
		out[d.District] = d
	}
	return out
}

func TestProcessStatusThresholds(t *testing.T) {
	res, err := New(nil, nil, nil).Process(Input{
		Enrolment: build(table.Enrolment,
			row{"Goa", "North Goa", 1000},
			row{"Goa", "South Goa", 2000},
			row{"Kerala", "Idukki", 1500}),
		Biometric: build(table.Biometric,
			row{"Goa", "North Goa", 200},
			row{"Goa", "South Goa", 1800},
			row{"Kerala", "Idukki", 1500}),
	})
	require.NoError(t, err)
	d := byDistrict(t, res)

	assert.Equal(t, 80.0, d["North Goa"].Gap)
	assert.Equal(t, StatusCritical, d["North Goa"].Status)
	assert.EqualValues(t, 800, d["North Goa"].Pending)

	assert.Equal(t, 10.0, d["South Goa"].Gap)
	assert.Equal(t, StatusSafe, d["South Goa"].Status)

	assert.Equal(t, 0.0, d["Idukki"].Gap)
	assert.Equal(t, StatusSafe, d["Idukki"].Status)
	assert.Equal(t, 1.0, d["Idukki"].Efficiency)
}

func TestProcessSummaryCounts(t *testing.T) {
	res, err := New(nil, nil, nil).Process(Input{
		Enrolment: build(table.Enrolment,
			row{"Goa", "North Goa", 1000},
			row{"Goa", "South Goa", 1000},
			row{"Kerala", "Idukki", 1000},
			row{"Kerala", "Wayanad", 1000}),
		Biometric: build(table.Biometric,
			row{"Goa", "North Goa", 200},
			row{"Goa", "South Goa", 900},
			row{"Kerala", "Idukki", 1000},
			row{"Kerala", "Wayanad", 20}),
	})
	require.NoError(t, err)
	assert.Equal(t, 4, res.Summary.Processed)
	assert.Equal(t, 2, res.Summary.CriticalCount)
	assert.EqualValues(t, 800+100+0+980, res.Summary.TotalPending)

	gaps := []float64{}
	for _, d := range res.Districts {
		gaps = append(gaps, d.Gap)
	}
	assert.Equal(t, []float64{80, 10, 0, 98}, gaps)
}

func TestProcessFiltersNumericDistricts(t *testing.T) {
	res, err := New(nil, nil, nil).Process(Input{
		Enrolment: build(table.Enrolment, row{"Goa", "100000", 10}, row{"Goa", "North Goa", 10}),
		Biometric: build(table.Biometric, row{"Goa", "100000", 10}, row{"Goa", "North Goa", 5}),
	})
	require.NoError(t, err)
	require.Len(t, res.Districts, 1)
	assert.Equal(t, "North Goa", res.Districts[0].District)
}

func TestProcessConvergesSpellings(t *testing.T) {
	res, err := New(nil, nil, nil).Process(Input{
		Enrolment: build(table.Enrolment,
			row{"west bengal", "maldah", 100},
			row{"WEST BENGAL", "Malda", 200},
			row{"  West   Bengal ", "MALDA (Old)", 300}),
		Biometric: build(table.Biometric, row{"Westbengal", "Malda", 300}),
	})
	require.NoError(t, err)
	require.Len(t, res.Districts, 1)
	d := res.Districts[0]
	assert.Equal(t, "West Bengal", d.State)
	assert.Equal(t, "Malda", d.District)
	assert.EqualValues(t, 600, d.Expected)
	assert.Equal(t, 50.0, d.Gap)
	assert.Equal(t, StatusModerate, d.Status)
	assert.InDelta(t, 25.0445, d.Lat, 1e-9)
}

func TestProcessBoundsWithZeroExpected(t *testing.T) {
	res, err := New(nil, nil, nil).Process(Input{
		Enrolment: build(table.Enrolment, row{"Goa", "North Goa", 100}),
		Biometric: build(table.Biometric, row{"Goa", "North Goa", 150}, row{"Goa", "South Goa", 50}),
	})
	require.NoError(t, err)
	d := byDistrict(t, res)

	south := d["South Goa"]
	assert.EqualValues(t, 0, south.Expected)
	assert.EqualValues(t, 0, south.Pending)
	assert.Equal(t, 0.0, south.Gap)
	assert.Equal(t, 0.0, south.Efficiency)

	north := d["North Goa"]
	assert.EqualValues(t, 0, north.Pending)
	assert.Equal(t, 0.0, north.Gap)
	assert.Equal(t, 1.5, north.Efficiency)
	assert.Contains(t, north.Reasoning, "[FRAUD ALERT]")

	for _, r := range res.Districts {
		assert.GreaterOrEqual(t, r.Gap, 0.0)
		assert.LessOrEqual(t, r.Gap, 100.0)
		assert.GreaterOrEqual(t, r.Pending, int64(0))
	}
}

func TestProcessDemographicJoin(t *testing.T) {
	res, err := New(nil, nil, nil).Process(Input{
		Enrolment:   build(table.Enrolment, row{"Goa", "North Goa", 1000}, row{"Goa", "South Goa", 1000}),
		Biometric:   build(table.Biometric, row{"Goa", "North Goa", 200}, row{"Goa", "South Goa", 1000}),
		Demographic: build(table.Demographic, row{"Goa", "North Goa", 5000}, row{"Kerala", "Idukki", 10}),
	})
	require.NoError(t, err)
	require.Len(t, res.Districts, 2, "demographic-only districts are not reported")
	d := byDistrict(t, res)
	assert.Equal(t, 5000.0, d["North Goa"].Metric.Demo)
	assert.Contains(t, d["North Goa"].Reasoning, "High variance seen in demographic data (4800 difference).")
	assert.Equal(t, 0.0, d["South Goa"].Metric.Demo)
}

func TestProcessWithoutDemographic(t *testing.T) {
	res, err := New(nil, nil, nil).Process(Input{
		Enrolment: build(table.Enrolment, row{"Goa", "North Goa", 10}, row{"Goa", "South Goa", 10}),
		Biometric: build(table.Biometric, row{"Goa", "North Goa", 5}),
	})
	require.NoError(t, err)
	for _, d := range res.Districts {
		assert.Zero(t, d.Metric.Demo)
		assert.NotContains(t, d.Reasoning, "demographic")
	}
}

func TestProcessSingleDistrictSkipsDetection(t *testing.T) {
	res, err := New(nil, nil, nil).Process(Input{
		Enrolment: build(table.Enrolment, row{"Goa", "North Goa", 1000}),
		Biometric: build(table.Biometric, row{"Goa", "North Goa", 100}),
	})
	require.NoError(t, err)
	require.Len(t, res.Districts, 1)
	assert.False(t, res.Districts[0].IsAnomaly)
	assert.Equal(t, anomaly.ModeSkipped, res.Detection.Mode)
	assert.Nil(t, res.Model)
}

func TestProcessTrainsThenReusesModel(t *testing.T) {
	in := Input{
		Enrolment: build(table.Enrolment,
			row{"Goa", "North Goa", 1000}, row{"Goa", "South Goa", 1000}, row{"Kerala", "Idukki", 1000}),
		Biometric: build(table.Biometric,
			row{"Goa", "North Goa", 900}, row{"Goa", "South Goa", 950}, row{"Kerala", "Idukki", 10}),
	}
	p := New(nil, nil, nil)
	first, err := p.Process(in)
	require.NoError(t, err)
	assert.Equal(t, anomaly.ModeTrained, first.Detection.Mode)
	require.NotNil(t, first.Model)

	in.Model = first.Model
	second, err := p.Process(in)
	require.NoError(t, err)
	assert.Equal(t, anomaly.ModeScored, second.Detection.Mode)
	assert.Same(t, first.Model, second.Model)
	assert.NotEqual(t, first.RunID, second.RunID)
}

func TestProcessRejectsMissingCountColumn(t *testing.T) {
	bad := table.New(table.Enrolment, "state", "district")
	bad.Append(table.Record{"state": "Goa", "district": "North Goa"})
	_, err := New(nil, nil, nil).Process(Input{Enrolment: bad})
	require.Error(t, err)

	var perr *Error
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, StageAggregate, perr.Stage)
	assert.NotEmpty(t, perr.RunID)
	var mal *table.MalformedInputError
	assert.True(t, errors.As(err, &mal))
}

func TestProcessRejectsSwappedSlots(t *testing.T) {
	_, err := New(nil, nil, nil).Process(Input{
		Enrolment: build(table.Biometric, row{"Goa", "North Goa", 1}),
	})
	var perr *Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, StageValidate, perr.Stage)
}

func TestProcessEmptyInputs(t *testing.T) {
	res, err := New(nil, nil, nil).Process(Input{})
	require.NoError(t, err)
	assert.Zero(t, res.Summary.Processed)
	assert.Empty(t, res.Districts)
}

func TestProcessDoesNotMutateInputs(t *testing.T) {
	enr := build(table.Enrolment, row{"goa", "north goa", 10}, row{"goa", "south goa", 20})
	before := enr.Clone()
	_, err := New(nil, nil, nil).Process(Input{Enrolment: enr})
	require.NoError(t, err)
	assert.Equal(t, before, enr)
}

func TestResultJSONOmitsModel(t *testing.T) {
	res, err := New(nil, nil, nil).Process(Input{
		Enrolment: build(table.Enrolment, row{"Goa", "North Goa", 10}, row{"Goa", "South Goa", 10}),
		Biometric: build(table.Biometric, row{"Goa", "North Goa", 5}),
	})
	require.NoError(t, err)
	raw, err := json.Marshal(res)
	require.NoError(t, err)

	var generic map[string]any
	require.NoError(t, json.Unmarshal(raw, &generic))
	assert.NotContains(t, generic, "model")
	assert.Contains(t, generic, "summary")
	districts := generic["districts"].([]any)
	first := districts[0].(map[string]any)
	for _, k := range []string{"state", "district", "lat", "lng", "expected_updates", "actual_updates",
		"pending_updates", "gap_percentage", "efficiency_index", "status", "is_anomaly", "ai_reasoning"} {
		assert.Contains(t, first, k)
	}
}
