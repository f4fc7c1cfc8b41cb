// Copyright 2025 Insights Agent Project
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

// Package resilience provides exponential backoff retry for calls to
// upstream services. Only errors classified as transient are retried;
// validation and decoding failures fail fast.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/your-org/insights-agent/internal/llm"
)

const (
	// DefaultMaxAttempts is the total number of invocations allowed
	DefaultMaxAttempts = 3
	// DefaultBaseDelay is the delay before the first retry
	DefaultBaseDelay = 1 * time.Second
	// DefaultMaxDelay caps the backoff delay
	DefaultMaxDelay = 30 * time.Second
	// DefaultMultiplier doubles the delay per retry
	DefaultMultiplier = 2.0
)

// BackoffConfig holds configuration for exponential backoff retry logic
type BackoffConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
	RetryOnFunc func(error) bool
}

// DefaultBackoffConfig returns the default retry configuration: three
// attempts total, base delay 1s, doubling per retry.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
		MaxDelay:    DefaultMaxDelay,
		Multiplier:  DefaultMultiplier,
		RetryOnFunc: IsTransient,
	}
}

// IsTransient reports whether an error is a transient upstream failure
// worth retrying. Context cancellation and schema/decoding errors are
// never transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return llm.IsRetryable(err)
}

// RetryFunc is a function that can be retried with exponential backoff
type RetryFunc func(ctx context.Context) error

// WithRetry executes fn with exponential backoff. fn is invoked at most
// MaxAttempts times; each failed attempt is logged; after exhaustion the
// last error is returned wrapped, reachable via errors.Is/As.
func WithRetry(ctx context.Context, logger *zap.Logger, config BackoffConfig, fn RetryFunc) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = DefaultMaxAttempts
	}
	if config.RetryOnFunc == nil {
		config.RetryOnFunc = IsTransient
	}

	var lastErr error

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			if attempt > 1 {
				logger.Info("Operation succeeded after retry",
					zap.Int("attempt", attempt),
					zap.Int("max_attempts", config.MaxAttempts))
			}
			return nil
		}

		lastErr = err
		logger.Warn("Attempt failed",
			zap.Error(err),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", config.MaxAttempts))

		if !config.RetryOnFunc(err) {
			logger.Debug("Error is not transient, stopping attempts", zap.Error(err))
			return err
		}

		if attempt == config.MaxAttempts {
			break
		}

		delay := time.Duration(float64(config.BaseDelay) * math.Pow(config.Multiplier, float64(attempt-1)))
		if config.MaxDelay > 0 && delay > config.MaxDelay {
			delay = config.MaxDelay
		}

		// A rate-limited upstream may tell us exactly how long to wait
		var retryErr *llm.RetryableError
		if errors.As(err, &retryErr) && retryErr.RetryAfter > 0 {
			delay = retryErr.RetryAfter
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	logger.Error("All retry attempts exhausted",
		zap.Error(lastErr),
		zap.Int("max_attempts", config.MaxAttempts))

	return fmt.Errorf("operation failed after %d attempts: %w", config.MaxAttempts, lastErr)
}

// Retry is a convenience wrapper using the default configuration
func Retry(ctx context.Context, logger *zap.Logger, fn RetryFunc) error {
	return WithRetry(ctx, logger, DefaultBackoffConfig(), fn)
}

// RetryWithAttempts overrides only the attempt count
func RetryWithAttempts(ctx context.Context, logger *zap.Logger, maxAttempts int, fn RetryFunc) error {
	config := DefaultBackoffConfig()
	config.MaxAttempts = maxAttempts
	return WithRetry(ctx, logger, config, fn)
}
