package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"relator-ai/internal/domain"
)

// Backoff selects the inter-attempt delay curve.
type Backoff string

const (
	BackoffLinear      Backoff = "linear"
	BackoffExponential Backoff = "exponential"
)

// Defaults for retryable-failure classification.
var (
	DefaultRetryableStatusCodes = []int{429, 500, 502, 503, 529}
	DefaultRetryableErrors      = []string{"timeout", "rate limit", "overloaded"}
)

// RetryPolicy configures ExecuteWithRetry. Constructed per call and discarded.
type RetryPolicy struct {
	// MaxAttempts is the total attempt count, including the first (>= 1).
	MaxAttempts int
	// InitialDelay seeds the backoff curve.
	InitialDelay time.Duration
	// Backoff selects linear or exponential growth.
	Backoff Backoff
	// Multiplier is the exponential growth factor (ignored for linear).
	Multiplier float64
	// RetryableStatusCodes overrides the default status allow-list when non-nil.
	RetryableStatusCodes []int
	// RetryableErrors overrides the default message substrings when non-nil.
	// Matching is case-insensitive.
	RetryableErrors []string
	// RetryAnyError treats every error as retryable (storage operations).
	RetryAnyError bool
	// OnRetry is invoked with (attempt, err, delay) before each retry sleep.
	OnRetry func(attempt int, err error, delay time.Duration)
	// Timeout bounds each individual attempt; a timeout is terminal.
	Timeout time.Duration
}

// LLMRetryPolicy is the default policy for provider calls.
func LLMRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  3,
		InitialDelay: 5 * time.Second,
		Backoff:      BackoffExponential,
		Multiplier:   2,
	}
}

// StorageRetryPolicy is the default policy for local-storage operations.
// Any error is retryable: local stores fail transiently (locked db file,
// slow fsync), never with a meaningful status code.
func StorageRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:   3,
		InitialDelay:  time.Second,
		Backoff:       BackoffExponential,
		Multiplier:    2,
		RetryAnyError: true,
	}
}

// statusCoder is implemented by provider errors that carry an HTTP status.
type statusCoder interface {
	HTTPStatus() int
}

// ExecuteWithRetry runs op under the given policy.
//
// Cancellation short-circuits before the first attempt and during the
// inter-attempt delay. A per-attempt timeout is terminal: the sequence
// stops without further retries. Non-retryable errors propagate unchanged
// after a single attempt; exhausting the attempt budget yields an error
// wrapping domain.ErrRetriesExhausted with the attempt count.
func ExecuteWithRetry[T any](ctx context.Context, policy RetryPolicy, op func(context.Context) (T, error)) (T, error) {
	var zero T

	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	if policy.Multiplier <= 0 {
		policy.Multiplier = 2
	}

	if ctx.Err() != nil {
		return zero, domain.NewDomainError("retry", domain.ErrCancelled, "cancelled before first attempt")
	}

	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		result, err, timedOut := runAttempt(ctx, policy.Timeout, op)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return zero, domain.NewDomainError("retry", domain.ErrCancelled, err.Error())
		}
		if timedOut {
			return zero, domain.NewDomainError("retry", domain.ErrAttemptTimeout,
				fmt.Sprintf("attempt %d exceeded %s", attempt, policy.Timeout))
		}
		if !policy.isRetryable(err) {
			return zero, err
		}
		if attempt == policy.MaxAttempts {
			break
		}

		delay := policy.delay(attempt)
		if policy.OnRetry != nil {
			policy.OnRetry(attempt, err, delay)
		}

		select {
		case <-ctx.Done():
			return zero, domain.NewDomainError("retry", domain.ErrCancelled, "cancelled during backoff delay")
		case <-time.After(delay):
		}
	}

	return zero, fmt.Errorf("%w: %d attempts failed: %w", domain.ErrRetriesExhausted, policy.MaxAttempts, lastErr)
}

// runAttempt races op against the per-attempt timeout. The third return
// reports whether the attempt timed out (as opposed to failing or being
// cancelled from above).
func runAttempt[T any](ctx context.Context, timeout time.Duration, op func(context.Context) (T, error)) (T, error, bool) {
	var zero T

	if timeout <= 0 {
		v, err := op(ctx)
		return v, err, false
	}

	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type attemptResult struct {
		v   T
		err error
	}
	done := make(chan attemptResult, 1)
	go func() {
		v, err := op(attemptCtx)
		done <- attemptResult{v, err}
	}()

	select {
	case r := <-done:
		if r.err != nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return zero, r.err, true
		}
		return r.v, r.err, false
	case <-attemptCtx.Done():
		if ctx.Err() != nil {
			return zero, ctx.Err(), false
		}
		return zero, context.DeadlineExceeded, true
	}
}

// delay computes the backoff before the attempt following attempt (1-based).
func (p RetryPolicy) delay(attempt int) time.Duration {
	switch p.Backoff {
	case BackoffLinear:
		return time.Duration(attempt) * p.InitialDelay
	default:
		return time.Duration(float64(p.InitialDelay) * math.Pow(p.Multiplier, float64(attempt-1)))
	}
}

// isRetryable classifies an attempt failure. An error is retryable when the
// policy retries everything, when it carries an allow-listed HTTP status,
// when its message contains the literal numeral of an allow-listed status
// (e.g. "HTTP 429"), or when it contains an allow-listed substring.
// Matching is case-insensitive.
func (p RetryPolicy) isRetryable(err error) bool {
	if p.RetryAnyError {
		return true
	}

	codes := p.RetryableStatusCodes
	if codes == nil {
		codes = DefaultRetryableStatusCodes
	}
	substrings := p.RetryableErrors
	if substrings == nil {
		substrings = DefaultRetryableErrors
	}

	var sc statusCoder
	if errors.As(err, &sc) {
		status := sc.HTTPStatus()
		for _, code := range codes {
			if status == code {
				return true
			}
		}
	}

	msg := strings.ToLower(err.Error())
	for _, code := range codes {
		if strings.Contains(msg, strconv.Itoa(code)) {
			return true
		}
	}
	for _, s := range substrings {
		if strings.Contains(msg, strings.ToLower(s)) {
			return true
		}
	}
	return false
}
