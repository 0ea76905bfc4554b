package pipeline

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/tphakala/mediaguard/internal/conf"
	"github.com/tphakala/mediaguard/internal/errors"
)

// ShouldRetry is the retry policy as a pure function of the error category
// and the retry count so far. Validation and integrity failures are never
// retried; dependency failures are handled by the step that saw them
// (component-absent for detectors, bounded retry for extraction); transient
// I/O, database and timeout failures retry up to the bound.
func ShouldRetry(category errors.ErrorCategory, retryCount, maxRetries int) bool {
	if retryCount >= maxRetries {
		return false
	}
	switch category {
	case errors.CategoryTransientIO, errors.CategoryDatabase, errors.CategoryTimeout, errors.CategoryDependency:
		return true
	default:
		return false
	}
}

// BackoffDelay computes the exponential backoff delay before retry attempt
// attemptNum (1-based), with jitter, capped at the configured maximum.
func BackoffDelay(cfg *conf.PipelineSettings, attemptNum int) time.Duration {
	backoff := float64(cfg.InitialDelay) * math.Pow(cfg.Multiplier, float64(attemptNum-1))

	// +/-10% jitter
	jitterFactor := 0.9 + 0.2*rand.Float64()
	backoff *= jitterFactor

	if backoff > float64(cfg.MaxDelay) {
		backoff = float64(cfg.MaxDelay)
	}
	return time.Duration(backoff)
}
