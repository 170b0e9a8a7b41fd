package resilience

import (
	"context"
	stderrors "errors"
	"io"
	"math"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/ZanzyTHEbar/jira-dev-ranking/internal/errors"
)

// RetryConfig holds configuration for retry behavior
type RetryConfig struct {
	MaxAttempts     int              `json:"max_attempts"`
	InitialDelay    time.Duration    `json:"initial_delay"`
	MaxDelay        time.Duration    `json:"max_delay"`
	BackoffFactor   float64          `json:"backoff_factor"`
	JitterEnabled   bool             `json:"jitter_enabled"`
	RetryableErrors func(error) bool `json:"-"` // nil means errors.IsRetryableError
}

// DefaultRetryConfig is three attempts with doubling delays from 100ms
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:     3,
		InitialDelay:    100 * time.Millisecond,
		MaxDelay:        30 * time.Second,
		BackoffFactor:   2.0,
		JitterEnabled:   true,
		RetryableErrors: errors.IsRetryableError,
	}
}

// ExternalAPIRetryConfig is tuned for paged third-party APIs that rate limit aggressively.
func ExternalAPIRetryConfig() RetryConfig {
	config := DefaultRetryConfig()
	config.MaxAttempts = 4
	config.InitialDelay = 300 * time.Millisecond
	config.MaxDelay = 10 * time.Second
	return config
}

func (c RetryConfig) normalized() RetryConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 1
	}
	if c.BackoffFactor < 1 {
		c.BackoffFactor = 1
	}
	if c.RetryableErrors == nil {
		c.RetryableErrors = errors.IsRetryableError
	}
	return c
}

// RetryableFunc represents a function that can be retried
type RetryableFunc func() error

// RetryWithConfig calls fn until it succeeds, returns a non-retryable error,
// or runs out of attempts. The last error is returned.
func RetryWithConfig(ctx context.Context, config RetryConfig, fn RetryableFunc) error {
	config = config.normalized()

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn()
		if err == nil {
			return nil
		}
		if attempt+1 >= config.MaxAttempts || !config.RetryableErrors(err) {
			return err
		}

		if err := sleep(ctx, calculateDelay(config, attempt)); err != nil {
			return err
		}
	}
}

// RetryableHTTPFunc represents an HTTP function that can be retried
type RetryableHTTPFunc func() (*http.Response, error)

// RetryHTTP retries transport errors and 408/429/5xx responses. Other
// statuses are returned as they are. When attempts run out on a retryable
// status, the last response is returned together with an *HTTPError.
func RetryHTTP(ctx context.Context, config RetryConfig, fn RetryableHTTPFunc) (*http.Response, error) {
	config = config.normalized()

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		resp, err := fn()
		last := attempt+1 >= config.MaxAttempts

		switch {
		case err != nil:
			if last || !config.RetryableErrors(err) {
				return nil, err
			}
		case !isRetryableHTTPStatus(resp.StatusCode):
			return resp, nil
		case last:
			return resp, NewHTTPError(resp.StatusCode, resp.Status)
		}

		delay := calculateDelay(config, attempt)
		if resp != nil {
			if wait, ok := retryAfter(resp); ok {
				delay = min(wait, config.MaxDelay)
			}
			drainAndClose(resp)
		}

		if err := sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
}

// calculateDelay is InitialDelay * BackoffFactor^attempt, capped at MaxDelay,
// plus up to 10% jitter
func calculateDelay(config RetryConfig, attempt int) time.Duration {
	delay := time.Duration(float64(config.InitialDelay) * math.Pow(config.BackoffFactor, float64(attempt)))
	if delay > config.MaxDelay {
		delay = config.MaxDelay
	}

	if config.JitterEnabled && delay >= 10 {
		delay += time.Duration(rand.Int63n(int64(delay / 10)))
	}
	return delay
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// retryAfter reads a Retry-After header expressed in seconds.
func retryAfter(resp *http.Response) (time.Duration, bool) {
	secs, err := strconv.Atoi(resp.Header.Get("Retry-After"))
	if err != nil || secs < 0 {
		return 0, false
	}
	return time.Duration(secs) * time.Second, true
}

// drainAndClose releases a response that is about to be replaced by a retry
func drainAndClose(resp *http.Response) {
	if resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}

func isRetryableHTTPStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusRequestTimeout, http.StatusTooManyRequests,
		http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// HTTPError is a response status that exhausted its retries
type HTTPError struct {
	StatusCode int
	Status     string
}

// NewHTTPError creates a new HTTP error
func NewHTTPError(statusCode int, status string) *HTTPError {
	return &HTTPError{StatusCode: statusCode, Status: status}
}

func (e *HTTPError) Error() string {
	if e.Status != "" {
		return "http status " + e.Status
	}
	return "http status " + strconv.Itoa(e.StatusCode)
}

// IsHTTPStatus reports whether err is an HTTPError with the given status code.
func IsHTTPStatus(err error, code int) bool {
	var httpErr *HTTPError
	return stderrors.As(err, &httpErr) && httpErr.StatusCode == code
}
