package datagov

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/satark-cli/internal/table"
)

func testClient(url string, opt Options) *Client {
	opt.APIKey = "test-key"
	opt.BaseURL = url
	opt.RequestsPerSecond = -1
	opt.RetryBaseDelay = time.Millisecond
	opt.RetryMaxDelay = 5 * time.Millisecond
	return NewClient(opt)
}

// pagedServer serves total records for any resource, honouring limit/offset.
func pagedServer(t *testing.T, total int, hits *int32) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		assert.Equal(t, "test-key", r.URL.Query().Get("api-key"))
		assert.Equal(t, "json", r.URL.Query().Get("format"))
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		var recs []map[string]any
		for i := offset; i < total && i < offset+limit; i++ {
			recs = append(recs, map[string]any{
				"state": "Goa", "district": fmt.Sprintf("District %d", i), "age_5_17": i,
			})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"total": total, "count": len(recs), "records": recs})
	}))
}

func TestFetchPaginatesUntilShortPage(t *testing.T) {
	var hits int32
	srv := pagedServer(t, 12, &hits)
	defer srv.Close()

	c := testClient(srv.URL, Options{PageSize: 5})
	tbl, err := c.Fetch(context.Background(), table.Enrolment)
	require.NoError(t, err)
	assert.Equal(t, 12, tbl.Len())
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
	assert.Equal(t, table.Enrolment, tbl.Kind)
	assert.Equal(t, "11", tbl.Rows[11]["age_5_17"])
}

func TestFetchStopsAtRecordCap(t *testing.T) {
	var hits int32
	srv := pagedServer(t, 100, &hits)
	defer srv.Close()

	c := testClient(srv.URL, Options{PageSize: 5, MaxRecords: 12})
	tbl, err := c.Fetch(context.Background(), table.Biometric)
	require.NoError(t, err)
	assert.Equal(t, 12, tbl.Len())
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
}

func TestFetchUsesResourcePath(t *testing.T) {
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		_, _ = w.Write([]byte(`{"records":[]}`))
	}))
	defer srv.Close()

	c := testClient(srv.URL, Options{Resources: map[table.Kind]string{table.Demographic: "custom-id"}})
	tbl, err := c.Fetch(context.Background(), table.Demographic)
	require.NoError(t, err)
	assert.Equal(t, "/custom-id", path)
	assert.Zero(t, tbl.Len())
}

func TestFetchPageRetriesServerErrors(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"records":[{"state":"Goa","district":"North Goa"}]}`))
	}))
	defer srv.Close()

	c := testClient(srv.URL, Options{})
	page, err := c.FetchPage(context.Background(), "r", 0, 10)
	require.NoError(t, err)
	assert.Len(t, page.Records, 1)
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
}

func TestFetchPageDoesNotRetryAuthErrors(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"message":"invalid api key"}`))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL, Options{}).FetchPage(context.Background(), "r", 0, 10)
	var auth *AuthError
	require.ErrorAs(t, err, &auth)
	assert.Equal(t, "invalid api key", auth.Message)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestFetchPageSurfacesRateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL, Options{RetryMaxAttempts: 2}).FetchPage(context.Background(), "r", 0, 10)
	var rl *RateLimitError
	assert.ErrorAs(t, err, &rl)
}

func TestFetchReturnsPartialRecords(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("offset") != "0" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"records":[{"district":"A1"},{"district":"B1"}]}`))
	}))
	defer srv.Close()

	tbl, err := testClient(srv.URL, Options{PageSize: 2}).Fetch(context.Background(), table.Enrolment)
	var partial *PartialFetchError
	require.ErrorAs(t, err, &partial)
	assert.Equal(t, 2, partial.Fetched)
	require.NotNil(t, tbl)
	assert.Equal(t, 2, tbl.Len())
	var bad *BadRequestError
	assert.ErrorAs(t, err, &bad)
}

func TestFetchRequiresAPIKey(t *testing.T) {
	c := NewClient(Options{})
	_, err := c.Fetch(context.Background(), table.Enrolment)
	assert.Error(t, err)
}

func TestParseRetryAfterSeconds(t *testing.T) {
	s, err := parseRetryAfterSeconds("7")
	require.NoError(t, err)
	assert.Equal(t, 7, s)
	_, err = parseRetryAfterSeconds("soon")
	assert.Error(t, err)
}

func TestFetchAllSkipsFailedKinds(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/bio" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"records":[{"state":"Goa","district":"North Goa","age_5_17":"3"}]}`))
	}))
	defer srv.Close()

	c := testClient(srv.URL, Options{Resources: map[table.Kind]string{table.Enrolment: "enr", table.Biometric: "bio"}})
	got, err := c.FetchAll(context.Background(), []table.Kind{table.Enrolment, table.Biometric})
	require.Error(t, err)
	var auth *AuthError
	assert.ErrorAs(t, err, &auth)
	assert.Contains(t, got, table.Enrolment)
	assert.NotContains(t, got, table.Biometric)
}
