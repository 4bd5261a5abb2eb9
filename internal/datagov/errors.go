package datagov

import (
	"fmt"
	"time"
)

// APIError is a non-2xx response from the open-data API.
type APIError struct {
	StatusCode int
	Message    string
	Resource   string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api error: status=%d resource=%s message=%s", e.StatusCode, e.Resource, e.Message)
	}
	return fmt.Sprintf("api error: status=%d resource=%s", e.StatusCode, e.Resource)
}

// AuthError indicates a missing or rejected API key (401/403).
type AuthError struct{ *APIError }

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed: %s", e.APIError.Error())
}

// RateLimitError indicates 429 responses and may include a Retry-After.
type RateLimitError struct {
	*APIError
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited: wait about %ds before retrying: %s", int(e.RetryAfter.Seconds()), e.APIError.Error())
	}
	return fmt.Sprintf("rate limited: %s", e.APIError.Error())
}

// BadRequestError indicates a rejected query (4xx other than auth and 429).
type BadRequestError struct{ *APIError }

func (e *BadRequestError) Error() string { return fmt.Sprintf("bad request: %s", e.APIError.Error()) }

// ServerError indicates 5xx errors from the portal.
type ServerError struct{ *APIError }

func (e *ServerError) Error() string { return fmt.Sprintf("portal error: %s", e.APIError.Error()) }

// PartialFetchError reports a resource whose pagination stopped early.
// The records fetched before the failure are still returned to the caller.
type PartialFetchError struct {
	Resource string
	Fetched  int
	Err      error
}

func (e *PartialFetchError) Error() string {
	return fmt.Sprintf("resource %s stopped after %d records: %v", e.Resource, e.Fetched, e.Err)
}

func (e *PartialFetchError) Unwrap() error { return e.Err }
