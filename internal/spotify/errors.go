package spotify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	spotifyapi "github.com/zmb3/spotify/v2"
)

var (
	// ErrDeviceUnavailable reports that the player has no active device.
	ErrDeviceUnavailable = errors.New("no active playback device")
	// ErrUnauthorized reports that the remote rejected the access token.
	ErrUnauthorized = errors.New("access token rejected")
)

const defaultRetryAfter = time.Second

// TransientError wraps a recoverable network failure.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("transient network error: %v", e.Err)
	}
	return fmt.Sprintf("%s: transient network error: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// RateLimitError reports an HTTP 429 response.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

// IsRetryable reports whether err is worth retrying after a delay.
func IsRetryable(err error) bool {
	var te *TransientError
	var rl *RateLimitError
	return errors.As(err, &te) || errors.As(err, &rl)
}

// RetryAfter returns the server supplied delay for rate limit errors and zero
// for everything else.
func RetryAfter(err error) time.Duration {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return rl.RetryAfter
	}
	return 0
}

// parseRetryAfter accepts both delay-seconds and HTTP-date forms.
func parseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return defaultRetryAfter
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return defaultRetryAfter
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
		return 0
	}
	return defaultRetryAfter
}

// classify maps failures from the API client into the package taxonomy.
func classify(ctx context.Context, op string, err error) error {
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s: %w", op, ctxErr)
	}

	var rl *RateLimitError
	if errors.As(err, &rl) {
		return rl
	}
	var te *TransientError
	if errors.As(err, &te) {
		return &TransientError{Op: op, Err: te.Err}
	}
	if errors.Is(err, ErrUnauthorized) {
		return fmt.Errorf("%s: %w", op, ErrUnauthorized)
	}

	var apiErr spotifyapi.Error
	if errors.As(err, &apiErr) {
		return classifyStatus(op, apiErr.Status, apiErr.Message, err)
	}

	// Errors from the token source arrive inside *url.Error. Only treat
	// them as network failures when the cause really is one.
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if isNetworkFailure(urlErr.Err) {
			return &TransientError{Op: op, Err: urlErr.Err}
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	if isNetworkFailure(err) {
		return &TransientError{Op: op, Err: err}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func classifyStatus(op string, status int, message string, err error) error {
	switch {
	case status == http.StatusUnauthorized:
		return fmt.Errorf("%s: %w", op, ErrUnauthorized)
	case status == http.StatusNotFound && strings.Contains(strings.ToLower(message), "device"):
		return fmt.Errorf("%s: %w", op, ErrDeviceUnavailable)
	case status == http.StatusTooManyRequests:
		return &RateLimitError{RetryAfter: defaultRetryAfter}
	case status >= 500:
		return &TransientError{Op: op, Err: err}
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

func isNetworkFailure(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
