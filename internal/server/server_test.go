package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/satark-cli/internal/store"
	"github.com/KaramelBytes/satark-cli/internal/table"
)

const enrolCSV = "State,District,Pincode,age_5_17\nGoa,North Goa,403001,1000\nGoa,South Goa,403601,2000\nKerala,Idukki,685501,1500\n"
const bioCSV = "state,district,pincode,bio_age_5_17\ngoa,north goa,403001,200\nGOA,SOUTH GOA,403601,1800\nKerala,Idukki,685501,1500\n"

type fakeFetcher struct {
	batches map[table.Kind]*table.Table
	err     error
}

func (f *fakeFetcher) FetchAll(_ context.Context, kinds []table.Kind) (map[table.Kind]*table.Table, error) {
	out := make(map[table.Kind]*table.Table)
	for _, k := range kinds {
		if t, ok := f.batches[k]; ok {
			out[k] = t
		}
	}
	return out, f.err
}

func newTestServer(t *testing.T, fetcher Fetcher) *httptest.Server {
	t.Helper()
	b, err := store.NewFileBackend(t.TempDir())
	require.NoError(t, err)
	st, err := store.Open(context.Background(), b, nil, nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	srv := httptest.NewServer(New(Config{}, st, fetcher, nil).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func multipartBody(t *testing.T, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for field, content := range files {
		fw, err := mw.CreateFormFile(field, field+".csv")
		require.NoError(t, err)
		_, err = io.WriteString(fw, content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func decode(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, nil)
	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", decode(t, resp)["status"])
}

func TestInitialDataWithoutMasters(t *testing.T) {
	srv := newTestServer(t, nil)
	resp, err := http.Get(srv.URL + "/initial-data")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, decode(t, resp)["error"], "No data available")
}

func TestUploadThenInitialData(t *testing.T) {
	srv := newTestServer(t, nil)
	body, ctype := multipartBody(t, map[string]string{"enrolment_file": enrolCSV, "biometric_file": bioCSV})
	resp, err := http.Post(srv.URL+"/upload", ctype, body)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	out := decode(t, resp)
	summary := out["summary"].(map[string]any)
	assert.EqualValues(t, 3, summary["processed_districts"])
	assert.EqualValues(t, 1, summary["critical_districts_count"])
	assert.EqualValues(t, 1000, summary["total_pending_updates"])
	info := out["dataset_info"].(map[string]any)
	assert.Equal(t, "live_update", info["source"])
	assert.EqualValues(t, 3, info["enrolment_records"])
	assert.NotContains(t, out, "model")

	resp, err = http.Get(srv.URL + "/initial-data")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	out = decode(t, resp)
	assert.Equal(t, "persistent_store", out["dataset_info"].(map[string]any)["source"])
	assert.Len(t, out["districts"], 3)
}

func TestUploadWithoutFiles(t *testing.T) {
	srv := newTestServer(t, nil)
	body, ctype := multipartBody(t, map[string]string{"enrolment_file": ""})
	resp, err := http.Post(srv.URL+"/upload", ctype, body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, decode(t, resp)["message"], "No valid files")
}

func TestUploadMalformedFile(t *testing.T) {
	srv := newTestServer(t, nil)
	body, ctype := multipartBody(t, map[string]string{
		"enrolment_file": enrolCSV,
		"biometric_file": "state,district\nGoa,North Goa\n",
	})
	resp, err := http.Post(srv.URL+"/upload", ctype, body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, decode(t, resp)["detail"], "bio_age_5_17")

	resp, err = http.Get(srv.URL + "/initial-data")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "malformed upload must not change masters")
	resp.Body.Close()
}

func TestSyncOfficial(t *testing.T) {
	enr := table.New(table.Enrolment, "state", "district", "age_5_17")
	enr.Append(table.Record{"state": "Goa", "district": "North Goa", "age_5_17": "10"})
	bio := table.New(table.Biometric, "state", "district", "bio_age_5_17")
	bio.Append(table.Record{"state": "Goa", "district": "North Goa", "bio_age_5_17": "4"})

	srv := newTestServer(t, &fakeFetcher{batches: map[table.Kind]*table.Table{
		table.Enrolment: enr, table.Biometric: bio,
	}})
	resp, err := http.Post(srv.URL+"/sync-official", "application/json", nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	out := decode(t, resp)
	assert.Equal(t, "success", out["status"])
	assert.EqualValues(t, 1, out["enrolment_size"])
	assert.EqualValues(t, 1, out["biometric_size"])
}

func TestSyncOfficialFailure(t *testing.T) {
	srv := newTestServer(t, &fakeFetcher{err: errors.New("portal down")})
	resp, err := http.Post(srv.URL+"/sync-official", "application/json", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Contains(t, decode(t, resp)["detail"], "portal down")
}

func TestSyncOfficialUnconfigured(t *testing.T) {
	srv := newTestServer(t, nil)
	resp, err := http.Post(srv.URL+"/sync-official", "application/json", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	resp.Body.Close()
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(t, nil)
	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/upload", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, nil)
	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(b), "satark_pipeline_processed_districts")
}
