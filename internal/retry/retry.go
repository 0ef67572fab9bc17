// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package retry provides a bounded exponential-backoff retry loop for
// network calls. Callers wrap retryable failures in Transient; anything
// else aborts the loop immediately.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"strconv"
	"time"
)

// Transient marks an error as retryable. RetryAfter, when non-zero, is a
// server-supplied hint (typically from a Retry-After header) that takes
// precedence over the computed backoff for the next attempt.
type Transient struct {
	Err        error
	RetryAfter time.Duration
}

func (e *Transient) Error() string { return e.Err.Error() }

func (e *Transient) Unwrap() error { return e.Err }

// Config bounds the retry loop.
type Config struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultConfig returns the retry bounds used when none are configured.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 4,
		BaseDelay:   1 * time.Second,
		MaxDelay:    30 * time.Second,
	}
}

// Do runs fn up to cfg.MaxAttempts times, sleeping between attempts with
// exponential backoff and ±20% jitter. Only errors wrapped in Transient are
// retried; other errors are returned as-is. When the attempt budget is
// exhausted the last error is returned, wrapped with the operation name.
func Do(ctx context.Context, cfg Config, op string, fn func(context.Context) error) error {
	if cfg.MaxAttempts <= 0 {
		cfg = DefaultConfig()
	}

	var lastErr error
	delay := cfg.BaseDelay

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}

		var tr *Transient
		if !errors.As(err, &tr) {
			return err
		}
		lastErr = err

		if attempt == cfg.MaxAttempts {
			break
		}

		sleep := delay + jitter(delay)
		if tr.RetryAfter > 0 {
			sleep = tr.RetryAfter
		}
		if sleep > cfg.MaxDelay {
			sleep = cfg.MaxDelay
		}

		slog.Warn("transient failure, backing off",
			"op", op,
			"attempt", attempt,
			"delay", sleep,
			"error", err,
		)

		select {
		case <-time.After(sleep):
		case <-ctx.Done():
			return ctx.Err()
		}

		delay *= 2
	}

	return fmt.Errorf("%s: %d attempts exhausted: %w", op, cfg.MaxAttempts, lastErr)
}

// jitter returns a random duration in [-0.2d, +0.2d].
func jitter(d time.Duration) time.Duration {
	return time.Duration((rand.Float64() - 0.5) * 0.4 * float64(d))
}

// ParseRetryAfter interprets a Retry-After header value, either a delay in
// seconds or an HTTP date. Returns zero for anything unparsable.
func ParseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}
