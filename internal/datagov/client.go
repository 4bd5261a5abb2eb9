// Package datagov pulls official extracts from the open government data
// portal's resource API.
package datagov

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/KaramelBytes/satark-cli/internal/table"
)

// DefaultBaseURL is the resource API root.
const DefaultBaseURL = "https://api.data.gov.in/resource/"

// DefaultResources maps each dataset kind to its published resource id.
var DefaultResources = map[table.Kind]string{
	table.Enrolment:   "ecd49b12-3084-4521-8f7e-ca8bf72069ba",
	table.Biometric:   "65454dab-1517-40a3-ac1d-47d4dfe6891c",
	table.Demographic: "19eac040-0b94-49fa-b239-4f2fd8677d53",
}

// Options configures a Client. Zero values take the defaults noted.
type Options struct {
	APIKey  string
	BaseURL string // DefaultBaseURL
	// PageSize is the per-request limit (500).
	PageSize int
	// MaxRecords caps records fetched per resource (2000).
	MaxRecords int
	Resources  map[table.Kind]string

	HTTPTimeout      time.Duration // 10s
	RetryMaxAttempts int           // 3
	RetryBaseDelay   time.Duration // 500ms
	RetryMaxDelay    time.Duration // 4s
	// RequestsPerSecond paces requests; zero means 2/s, negative disables pacing.
	RequestsPerSecond float64

	Logger *slog.Logger
}

// Client fetches paginated records.
type Client struct {
	httpClient       *http.Client
	apiKey           string
	baseURL          string
	pageSize         int
	maxRecords       int
	resources        map[table.Kind]string
	retryMaxAttempts int
	retryBaseDelay   time.Duration
	retryMaxDelay    time.Duration
	limiter          *rate.Limiter
	logger           *slog.Logger
}

// NewClient applies defaults to opt.
func NewClient(opt Options) *Client {
	if opt.BaseURL == "" {
		opt.BaseURL = DefaultBaseURL
	}
	if !strings.HasSuffix(opt.BaseURL, "/") {
		opt.BaseURL += "/"
	}
	if opt.PageSize <= 0 {
		opt.PageSize = 500
	}
	if opt.MaxRecords <= 0 {
		opt.MaxRecords = 2000
	}
	if opt.HTTPTimeout <= 0 {
		opt.HTTPTimeout = 10 * time.Second
	}
	if opt.RetryMaxAttempts <= 0 {
		opt.RetryMaxAttempts = 3
	}
	if opt.RetryBaseDelay <= 0 {
		opt.RetryBaseDelay = 500 * time.Millisecond
	}
	if opt.RetryMaxDelay <= 0 {
		opt.RetryMaxDelay = 4 * time.Second
	}
	resources := make(map[table.Kind]string, len(DefaultResources))
	for k, v := range DefaultResources {
		resources[k] = v
	}
	for k, v := range opt.Resources {
		if v != "" {
			resources[k] = v
		}
	}
	limit := rate.Limit(2)
	switch {
	case opt.RequestsPerSecond > 0:
		limit = rate.Limit(opt.RequestsPerSecond)
	case opt.RequestsPerSecond < 0:
		limit = rate.Inf
	}
	if opt.Logger == nil {
		opt.Logger = slog.New(slog.DiscardHandler)
	}
	return &Client{
		httpClient:       &http.Client{Timeout: opt.HTTPTimeout},
		apiKey:           opt.APIKey,
		baseURL:          opt.BaseURL,
		pageSize:         opt.PageSize,
		maxRecords:       opt.MaxRecords,
		resources:        resources,
		retryMaxAttempts: opt.RetryMaxAttempts,
		retryBaseDelay:   opt.RetryBaseDelay,
		retryMaxDelay:    opt.RetryMaxDelay,
		limiter:          rate.NewLimiter(limit, 1),
		logger:           opt.Logger,
	}
}

// Page is one decoded API response.
type Page struct {
	Total   int              `json:"total"`
	Count   int              `json:"count"`
	Records []map[string]any `json:"records"`
}

// Resource returns the resource id configured for kind.
func (c *Client) Resource(kind table.Kind) (string, bool) {
	id, ok := c.resources[kind]
	return id, ok && id != ""
}

// Fetch pages through kind's resource until a short page, an empty page or
// the record cap. When a page fails after some records arrived, the partial
// table is returned together with a *PartialFetchError.
func (c *Client) Fetch(ctx context.Context, kind table.Kind) (*table.Table, error) {
	if c.apiKey == "" {
		return nil, errors.New("DATA_GOV_API_KEY is missing")
	}
	id, ok := c.Resource(kind)
	if !ok {
		return nil, fmt.Errorf("no resource configured for %s", kind)
	}
	log := c.logger.With("kind", kind, "resource", id)
	var records []map[string]any
	for offset := 0; len(records) < c.maxRecords; offset += c.pageSize {
		page, err := c.FetchPage(ctx, id, offset, c.pageSize)
		if err != nil {
			if len(records) == 0 {
				return nil, err
			}
			log.Warn("pagination stopped early", "offset", offset, "fetched", len(records), "error", err)
			return table.FromMaps(kind, records), &PartialFetchError{Resource: id, Fetched: len(records), Err: err}
		}
		if len(page.Records) == 0 {
			break
		}
		records = append(records, page.Records...)
		log.Debug("fetched page", "offset", offset, "records", len(page.Records), "total", len(records))
		if len(page.Records) < c.pageSize {
			break
		}
	}
	if len(records) > c.maxRecords {
		records = records[:c.maxRecords]
	}
	log.Info("resource fetched", "records", len(records))
	return table.FromMaps(kind, records), nil
}

// FetchPage requests one page, retrying transient failures with exponential
// backoff and honouring Retry-After.
func (c *Client) FetchPage(ctx context.Context, resourceID string, offset, limit int) (*Page, error) {
	q := url.Values{}
	q.Set("api-key", c.apiKey)
	q.Set("format", "json")
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))
	endpoint := c.baseURL + url.PathEscape(resourceID) + "?" + q.Encode()

	backoff := c.retryBaseDelay
	var lastErr error
	for attempt := 1; attempt <= c.retryMaxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		page, wait, err := c.do(ctx, endpoint, resourceID)
		if err == nil {
			return page, nil
		}
		lastErr = err
		if wait < 0 || attempt == c.retryMaxAttempts {
			break
		}
		if wait == 0 {
			wait = withJitter(backoff)
			if wait > c.retryMaxDelay {
				wait = c.retryMaxDelay
			}
			backoff *= 2
		}
		c.logger.Debug("retrying page", "resource", resourceID, "offset", offset, "attempt", attempt, "wait", wait, "error", err)
		if err := sleep(ctx, wait); err != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

// do performs one request. wait < 0 marks the error permanent; wait > 0 is a
// server-requested delay; zero means retry with backoff.
func (c *Client) do(ctx context.Context, endpoint, resourceID string) (*Page, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, -1, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isRetryableNetErr(err) {
			return nil, 0, fmt.Errorf("http request: %w", err)
		}
		return nil, -1, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		apiErr := &APIError{StatusCode: resp.StatusCode, Resource: resourceID, Message: errorMessage(body)}
		classified := classifyAPIError(apiErr, resp)
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			var rl *RateLimitError
			if errors.As(classified, &rl) && rl.RetryAfter > 0 {
				return nil, rl.RetryAfter, classified
			}
			return nil, 0, classified
		}
		return nil, -1, classified
	}

	var page Page
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(&page); err != nil {
		return nil, -1, fmt.Errorf("decode response: %w", err)
	}
	return &page, 0, nil
}

func errorMessage(body []byte) string {
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return strings.TrimSpace(string(body))
	}
	for _, k := range []string{"message", "error", "status"} {
		if s, ok := raw[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func classifyAPIError(apiErr *APIError, resp *http.Response) error {
	sc := apiErr.StatusCode
	switch {
	case sc == http.StatusUnauthorized || sc == http.StatusForbidden:
		return &AuthError{APIError: apiErr}
	case sc == http.StatusTooManyRequests:
		var ra time.Duration
		if v := resp.Header.Get("Retry-After"); v != "" {
			if secs, err := parseRetryAfterSeconds(v); err == nil && secs > 0 {
				ra = time.Duration(secs) * time.Second
			}
		}
		return &RateLimitError{APIError: apiErr, RetryAfter: ra}
	case sc >= 500 && sc <= 599:
		return &ServerError{APIError: apiErr}
	case sc >= 400:
		return &BadRequestError{APIError: apiErr}
	}
	return apiErr
}

func isRetryableNetErr(err error) bool {
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return true
	}
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}

// parseRetryAfterSeconds accepts delta-seconds or an HTTP date.
func parseRetryAfterSeconds(v string) (int, error) {
	if s, err := strconv.Atoi(v); err == nil {
		return s, nil
	}
	if t, err := http.ParseTime(v); err == nil {
		d := time.Until(t)
		if d < 0 {
			d = 0
		}
		return int(d.Seconds()), nil
	}
	return 0, fmt.Errorf("invalid Retry-After: %q", v)
}

// withJitter returns d with +/- 20% jitter applied.
func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 500 * time.Millisecond
	}
	f := 0.8 + rand.Float64()*0.4
	out := time.Duration(float64(d) * f)
	if out <= 0 {
		return d
	}
	return out
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// FetchAll fetches each kind in order. Kinds that fail outright are skipped;
// partial fetches are kept. The returned error joins every failure.
func (c *Client) FetchAll(ctx context.Context, kinds []table.Kind) (map[table.Kind]*table.Table, error) {
	out := make(map[table.Kind]*table.Table, len(kinds))
	var errs []error
	for _, k := range kinds {
		t, err := c.Fetch(ctx, k)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", k, err))
			if ctx.Err() != nil {
				break
			}
		}
		if t != nil && t.Len() > 0 {
			out[k] = t
		}
	}
	return out, errors.Join(errs...)
}
