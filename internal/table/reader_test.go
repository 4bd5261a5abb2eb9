package table

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestReadCSVPadsShortRowsAndSkipsBlankLines(t *testing.T) {
	in := "State, District ,age_5_17\nWest Bengal,Kolkata,100\n\nOdisha,Khordha\n"
	tbl, err := ReadCSV(strings.NewReader(in), "enrol.csv", Enrolment, ReadOptions{})
	require.NoError(t, err)

	assert.Equal(t, []string{"State", "District", "age_5_17"}, tbl.Columns)
	require.Len(t, tbl.Rows, 2)
	assert.Equal(t, "Kolkata", tbl.Rows[0]["District"])
	assert.Equal(t, "", tbl.Rows[1]["age_5_17"])
	assert.Equal(t, Enrolment, tbl.Kind)
}

func TestReadCSVSniffsSemicolon(t *testing.T) {
	in := "state;district;bio_age_5_17\nGoa;North Goa;12\n"
	tbl, err := ReadCSV(strings.NewReader(in), "bio.csv", Biometric, ReadOptions{})
	require.NoError(t, err)
	require.Len(t, tbl.Rows, 1)
	assert.Equal(t, "12", tbl.Rows[0]["bio_age_5_17"])
}

func TestReadCSVEmptyPayload(t *testing.T) {
	tbl, err := ReadCSV(strings.NewReader(""), "empty.csv", Demographic, ReadOptions{})
	require.NoError(t, err)
	assert.True(t, tbl.Empty())
}

func TestReadJSONEnvelope(t *testing.T) {
	in := `{"records":[{"state":"Goa","district":"North Goa","age_5_17":12,"pincode":"403001"},{"state":"Goa","district":"South Goa","age_5_17":"7"}]}`
	tbl, err := ReadJSON(strings.NewReader(in), "api.json", Enrolment)
	require.NoError(t, err)
	require.Len(t, tbl.Rows, 2)
	assert.Equal(t, "12", tbl.Rows[0]["age_5_17"])
	assert.Equal(t, "7", tbl.Rows[1]["age_5_17"])
	assert.True(t, tbl.HasColumn("pincode"))
}

func TestReadJSONRejectsGarbage(t *testing.T) {
	_, err := ReadJSON(strings.NewReader("{not json"), "api.json", Enrolment)
	var mErr *MalformedInputError
	require.ErrorAs(t, err, &mErr)
	assert.Contains(t, mErr.Error(), "api.json")
}

func TestReadFileXLSX(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "demo.xlsx")
	f := excelize.NewFile()
	cells := map[string]any{
		"A1": "State", "B1": "District", "C1": "demo_age_5_17",
		"A2": "Kerala", "B2": "Ernakulam", "C2": 1500,
		"A3": "Kerala", "B3": "Idukki", "C3": 300,
	}
	for cell, v := range cells {
		require.NoError(t, f.SetCellValue("Sheet1", cell, v))
	}
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	tbl, err := ReadFile(path, Demographic, ReadOptions{})
	require.NoError(t, err)
	require.Len(t, tbl.Rows, 2)
	assert.Equal(t, "Ernakulam", tbl.Rows[0]["District"])
	assert.Equal(t, "1500", tbl.Rows[0]["demo_age_5_17"])
}

func TestReadFileTSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bio.tsv")
	require.NoError(t, os.WriteFile(path, []byte("state\tdistrict\tbio_age_5_17\nGoa\tNorth Goa\t3\n"), 0o644))
	tbl, err := ReadFile(path, Biometric, ReadOptions{})
	require.NoError(t, err)
	require.Len(t, tbl.Rows, 1)
	assert.Equal(t, "North Goa", tbl.Rows[0]["district"])
}

func TestParseNumber(t *testing.T) {
	cases := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"100", 100, true},
		{" 1,000 ", 1000, true},
		{"1,00,000", 100000, true},
		{"1.234,5", 1234.5, true},
		{"2,5", 2.5, true},
		{"1e3", 1000, true},
		{"", 0, false},
		{"NaN", 0, false},
		{"abc", 0, false},
		{"Inf", 0, false},
	}
	for _, c := range cases {
		got, ok := ParseNumber(c.in)
		assert.Equal(t, c.ok, ok, c.in)
		assert.InDelta(t, c.want, got, 1e-9, c.in)
	}
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("Enrollment")
	require.NoError(t, err)
	assert.Equal(t, Enrolment, k)
	assert.Equal(t, "bio_age_5_17", Biometric.CountColumn())
	_, err = ParseKind("census")
	assert.Error(t, err)
}
