/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package retry runs calls against rate-limited APIs with exponential backoff.
package retry

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/chainguard-dev/clog"
)

// Config configures backoff between attempts.
type Config struct {
	// MaxRetries is the number of retries after the first attempt. 0 disables retries.
	MaxRetries int
	// BaseBackoff is the wait before the first retry; it doubles per attempt.
	BaseBackoff time.Duration
	// MaxBackoff caps the doubled wait.
	MaxBackoff time.Duration
	// MaxJitter bounds the random delay added to each wait.
	MaxJitter time.Duration
}

// Validate checks that no field is negative.
func (c Config) Validate() error {
	switch {
	case c.MaxRetries < 0:
		return errors.New("max retries cannot be negative")
	case c.BaseBackoff < 0:
		return errors.New("base backoff cannot be negative")
	case c.MaxBackoff < 0:
		return errors.New("max backoff cannot be negative")
	case c.MaxJitter < 0:
		return errors.New("max jitter cannot be negative")
	}
	return nil
}

// DefaultConfig suits quota-based rate limits, which take a while to recover.
func DefaultConfig() Config {
	return Config{
		MaxRetries:  4,
		BaseBackoff: time.Second,
		MaxBackoff:  30 * time.Second,
		MaxJitter:   500 * time.Millisecond,
	}
}

// Do calls fn until it succeeds, returns an error isRetryable rejects, the
// retries are exhausted, or ctx is done.
func Do[T any](ctx context.Context, cfg Config, operation string, isRetryable func(error) bool, fn func() (T, error)) (T, error) {
	var (
		result T
		err    error
	)
	for attempt := 0; ; attempt++ {
		result, err = fn()
		if err == nil {
			return result, nil
		}
		if !isRetryable(err) {
			return result, err
		}
		if attempt >= cfg.MaxRetries {
			return result, fmt.Errorf("%s failed after %d retries: %w", operation, cfg.MaxRetries, err)
		}

		wait := backoff(cfg, attempt)
		clog.FromContext(ctx).With("operation", operation).
			With("attempt", attempt+1).
			With("backoff", wait).
			With("error", err.Error()).
			Warn("Retryable error, backing off")

		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case <-time.After(wait):
		}
	}
}

func backoff(cfg Config, attempt int) time.Duration {
	wait := min(cfg.BaseBackoff<<attempt, cfg.MaxBackoff)
	if cfg.MaxJitter > 0 {
		if n, err := rand.Int(rand.Reader, big.NewInt(int64(cfg.MaxJitter))); err == nil {
			wait += time.Duration(n.Int64())
		}
	}
	return wait
}

// StatusError reports a non-success HTTP response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// RetryableStatus reports whether an HTTP status code is worth retrying.
func RetryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout, 529:
		return true
	}
	return false
}

// IsRetryableStatusError is an isRetryable func for errors wrapping a StatusError.
func IsRetryableStatusError(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && RetryableStatus(se.StatusCode)
}
