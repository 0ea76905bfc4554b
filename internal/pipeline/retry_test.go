package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/tphakala/mediaguard/internal/conf"
	"github.com/tphakala/mediaguard/internal/errors"
)

func TestShouldRetry(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		category   errors.ErrorCategory
		retryCount int
		want       bool
	}{
		{"transient io retries", errors.CategoryTransientIO, 0, true},
		{"database retries", errors.CategoryDatabase, 1, true},
		{"timeout retries", errors.CategoryTimeout, 2, true},
		{"dependency retries", errors.CategoryDependency, 0, true},
		{"validation never retries", errors.CategoryValidation, 0, false},
		{"integrity never retries", errors.CategoryIntegrity, 0, false},
		{"generic never retries", errors.CategoryGeneric, 0, false},
		{"bound exhausted", errors.CategoryTransientIO, 3, false},
		{"bound exceeded", errors.CategoryTransientIO, 7, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ShouldRetry(tt.category, tt.retryCount, 3))
		})
	}
}

func TestBackoffDelayGrowsAndCaps(t *testing.T) {
	t.Parallel()

	cfg := &conf.PipelineSettings{
		InitialDelay: 2 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}

	// With +/-10% jitter, attempt 1 lands in [1.8s, 2.2s].
	d1 := BackoffDelay(cfg, 1)
	assert.GreaterOrEqual(t, d1, 1800*time.Millisecond)
	assert.LessOrEqual(t, d1, 2200*time.Millisecond)

	d2 := BackoffDelay(cfg, 2)
	assert.GreaterOrEqual(t, d2, 3600*time.Millisecond)
	assert.LessOrEqual(t, d2, 4400*time.Millisecond)

	// Attempt 10 would be far past the cap.
	d10 := BackoffDelay(cfg, 10)
	assert.LessOrEqual(t, d10, cfg.MaxDelay)
}
