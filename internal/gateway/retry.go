package gateway

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/user/taskpilot/internal/types"
)

// RetryPolicy retries failed reasoning-service calls with exponential
// backoff. Attempts are 1-indexed.
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
}

// DefaultRetryPolicy makes 3 attempts, waiting 1s then 2s, never more than 30s.
func DefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:  3,
		InitialDelay: time.Second,
		Multiplier:   2.0,
		MaxDelay:     30 * time.Second,
	}
}

// Error text the provider SDKs produce for conditions that clear up on
// their own, and for requests that will fail the same way every time.
// Transient markers are checked first.
var (
	transientMarkers = []string{
		"connection refused",
		"connection reset",
		"timeout",
		"temporary failure",
		"rate limit",
		"429",
		"overloaded",
		"502 bad gateway",
		"503 service unavailable",
	}
	permanentMarkers = []string{
		"invalid",
		"unauthorized",
		"forbidden",
		"401",
		"403",
		"404 not found",
		"400 bad request",
	}
)

// ShouldRetry reports whether attempt may be followed by another one.
func (p *RetryPolicy) ShouldRetry(err error, attempt int) bool {
	return attempt < p.MaxAttempts && Retryable(err)
}

// Retryable classifies err. Cancellation and the validation and
// configuration error types are permanent. Otherwise the message decides,
// and unknown failures are retried.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var ve *types.ValidationError
	var ce *types.ConfigurationError
	if errors.As(err, &ve) || errors.As(err, &ce) {
		return false
	}

	msg := strings.ToLower(err.Error())
	if containsAny(msg, transientMarkers) {
		return true
	}
	return !containsAny(msg, permanentMarkers)
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

// NextDelay is InitialDelay * Multiplier^(attempt-1), capped at MaxDelay.
func (p *RetryPolicy) NextDelay(attempt int) time.Duration {
	delay := float64(p.InitialDelay) * math.Pow(p.Multiplier, float64(attempt-1))
	if delay > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(delay)
}

// Do calls fn until it succeeds, fails permanently, or MaxAttempts is
// reached, and returns the last error. A done ctx ends the wait between
// attempts.
func (p *RetryPolicy) Do(ctx context.Context, fn func() error) error {
	for attempt := 1; ; attempt++ {
		err := fn()
		if err == nil || !p.ShouldRetry(err, attempt) {
			return err
		}

		timer := time.NewTimer(p.NextDelay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
}
