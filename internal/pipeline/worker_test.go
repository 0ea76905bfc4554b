package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tphakala/mediaguard/internal/datastore"
	"github.com/tphakala/mediaguard/internal/detection"
	"github.com/tphakala/mediaguard/internal/fingerprint"
)

func TestPoolProcessesQueuedJobs(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := newFakeStore()
	extractor := &fakeExtractor{extraction: detection.Extraction{
		Kind:  fingerprint.KindStill,
		Value: fullWidthValue(t),
	}}

	p := newTestPipeline(store, extractor, nil, testPipelineSettings())

	const jobCount = 5
	ids := make([]string, 0, jobCount)
	for i := 0; i < jobCount; i++ {
		id, err := p.SubmitJob("owner-1", writeUpload(t, "image bytes"), fingerprint.MediaImage, SubmitOptions{})
		require.NoError(t, err)
		ids = append(ids, id)
	}

	pool := NewPool(p, store, 2, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- pool.Run(ctx) }()

	// Wait for all jobs to reach a terminal state, then stop the pool.
	require.Eventually(t, func() bool {
		for _, id := range ids {
			job, err := store.GetJob(id)
			if err != nil || job.Status != datastore.JobCompleted {
				return false
			}
		}
		return true
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	stats := pool.Stats()
	assert.Equal(t, int64(jobCount), stats.Claimed)
	assert.Equal(t, int64(jobCount), stats.Completed)
	assert.Zero(t, stats.Failed)
}

func TestPoolStopsOnContextCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := newFakeStore()
	p := newTestPipeline(store, &fakeExtractor{}, nil, testPipelineSettings())
	pool := NewPool(p, store, 1, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- pool.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("pool did not stop after context cancellation")
	}
}

func TestNewPoolDefaults(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	p := newTestPipeline(store, &fakeExtractor{}, nil, testPipelineSettings())

	pool := NewPool(p, store, 0, 0)
	assert.Equal(t, 1, pool.workers)
	assert.Equal(t, time.Second, pool.interval)
}
