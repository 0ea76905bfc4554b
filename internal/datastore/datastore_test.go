package datastore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/mediaguard/internal/conf"
	"github.com/tphakala/mediaguard/internal/errors"
	"github.com/tphakala/mediaguard/internal/fingerprint"
)

// createDatabase initializes a temporary SQLite database for testing.
func createDatabase(t *testing.T) Interface {
	t.Helper()

	settings := &conf.Settings{}
	settings.Output.SQLite.Enabled = true
	settings.Output.SQLite.Path = t.TempDir() + "/test.db"

	store, err := New(settings)
	require.NoError(t, err)
	require.NoError(t, store.Open(), "Failed to open database")

	t.Cleanup(func() {
		assert.NoError(t, store.Close(), "Failed to close datastore")
	})

	return store
}

func queuedJob(id string) *AnalysisJob {
	return &AnalysisJob{
		ID:        id,
		OwnerID:   "owner-1",
		Status:    JobQueued,
		MediaKind: "image",
		MediaPath: "/tmp/upload-" + id,
	}
}

func storedValue(t *testing.T, prefix ...byte) string {
	t.Helper()
	b := make([]byte, fingerprint.ByteWidth)
	copy(b, prefix)
	v, err := fingerprint.NewValue(b)
	require.NoError(t, err)
	return v.Hex()
}

func TestCreateAndGetJob(t *testing.T) {
	store := createDatabase(t)

	require.NoError(t, store.CreateJob(queuedJob("job-1")))

	job, err := store.GetJob("job-1")
	require.NoError(t, err)
	assert.Equal(t, JobQueued, job.Status)
	assert.Equal(t, "owner-1", job.OwnerID)
	assert.Zero(t, job.Progress)
}

func TestGetMissingJobIsDatabaseError(t *testing.T) {
	store := createDatabase(t)

	_, err := store.GetJob("no-such-job")
	require.Error(t, err)
	assert.Equal(t, errors.CategoryDatabase, errors.Category(err))
}

func TestClaimJobIsExclusive(t *testing.T) {
	store := createDatabase(t)
	require.NoError(t, store.CreateJob(queuedJob("job-1")))

	claimed, err := store.ClaimJob("job-1")
	require.NoError(t, err)
	assert.True(t, claimed)

	// A second claim must lose.
	claimed, err = store.ClaimJob("job-1")
	require.NoError(t, err)
	assert.False(t, claimed)

	job, err := store.GetJob("job-1")
	require.NoError(t, err)
	assert.Equal(t, JobProcessing, job.Status)
	assert.Equal(t, StepValidating, job.CurrentStep)
}

func TestClaimNextJobOrdersByAge(t *testing.T) {
	store := createDatabase(t)

	older := queuedJob("job-old")
	older.CreatedAt = time.Now().Add(-time.Hour)
	require.NoError(t, store.CreateJob(older))
	require.NoError(t, store.CreateJob(queuedJob("job-new")))

	job, err := store.ClaimNextJob()
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, "job-old", job.ID)

	job, err = store.ClaimNextJob()
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, "job-new", job.ID)

	// Queue drained.
	job, err = store.ClaimNextJob()
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestSaveJobProgressAndRetry(t *testing.T) {
	store := createDatabase(t)
	require.NoError(t, store.CreateJob(queuedJob("job-1")))

	require.NoError(t, store.SaveJobProgress("job-1", StepDetecting, 50))
	now := time.Now()
	require.NoError(t, store.SaveJobRetry("job-1", 2, now))

	job, err := store.GetJob("job-1")
	require.NoError(t, err)
	assert.Equal(t, StepDetecting, job.CurrentStep)
	assert.Equal(t, 50, job.Progress)
	assert.Equal(t, 2, job.RetryCount)
	require.NotNil(t, job.LastRetryAt)
}

func TestCompleteJobPersistsEverything(t *testing.T) {
	store := createDatabase(t)

	// An existing corpus entry the new fingerprint matched.
	existing := &Fingerprint{
		Value:  storedValue(t, 0xff),
		Kind:   string(fingerprint.KindStill),
		Status: FingerprintActive,
	}
	ds := store.(*SQLiteStore)
	require.NoError(t, ds.DB.Create(existing).Error)

	job := queuedJob("job-1")
	require.NoError(t, store.CreateJob(job))
	claimed, err := store.ClaimJob("job-1")
	require.NoError(t, err)
	require.True(t, claimed)

	job.Status = JobProcessing
	job.MatchCount = 1
	job.HighestSimilarity = 0.96
	fp := &Fingerprint{
		Value:  storedValue(t),
		Kind:   string(fingerprint.KindStill),
		Status: FingerprintActive,
	}
	matches := []HashMatch{{
		FingerprintID: existing.ID,
		Distance:      8,
		Similarity:    0.96,
		MatchType:     string(fingerprint.MatchHigh),
	}}

	require.NoError(t, store.CompleteJob(job, fp, matches))

	final, err := store.GetJob("job-1")
	require.NoError(t, err)
	assert.Equal(t, JobCompleted, final.Status)
	assert.Equal(t, StepComplete, final.CurrentStep)
	assert.Equal(t, 100, final.Progress)
	require.NotNil(t, final.FingerprintID)
	require.NotNil(t, final.CompletedAt)

	saved, err := store.MatchesForJob("job-1")
	require.NoError(t, err)
	require.Len(t, saved, 1)
	assert.Equal(t, existing.ID, saved[0].FingerprintID)

	// The matched side's counter was bumped in the same transaction.
	matched, err := store.GetFingerprint(existing.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, matched.MatchCount)

	// The new fingerprint is active and matchable.
	corpus, err := store.ActiveFingerprints(string(fingerprint.KindStill))
	require.NoError(t, err)
	assert.Len(t, corpus, 2)
}

func TestFailJobRecordsError(t *testing.T) {
	store := createDatabase(t)
	require.NoError(t, store.CreateJob(queuedJob("job-1")))

	require.NoError(t, store.FailJob("job-1", "extractor unavailable"))

	job, err := store.GetJob("job-1")
	require.NoError(t, err)
	assert.Equal(t, JobFailed, job.Status)
	assert.Equal(t, "extractor unavailable", job.ErrorMessage)
	assert.NotNil(t, job.CompletedAt)
}

func TestCancelJobStates(t *testing.T) {
	store := createDatabase(t)

	// Queued jobs cancel.
	require.NoError(t, store.CreateJob(queuedJob("job-queued")))
	cancelled, err := store.CancelJob("job-queued")
	require.NoError(t, err)
	assert.True(t, cancelled)

	// Validating jobs cancel.
	require.NoError(t, store.CreateJob(queuedJob("job-validating")))
	claimed, err := store.ClaimJob("job-validating")
	require.NoError(t, err)
	require.True(t, claimed)
	cancelled, err = store.CancelJob("job-validating")
	require.NoError(t, err)
	assert.True(t, cancelled)

	// Once fingerprinting has started, cancellation is refused.
	require.NoError(t, store.CreateJob(queuedJob("job-busy")))
	claimed, err = store.ClaimJob("job-busy")
	require.NoError(t, err)
	require.True(t, claimed)
	require.NoError(t, store.SaveJobProgress("job-busy", StepFingerprinting, 20))
	cancelled, err = store.CancelJob("job-busy")
	require.NoError(t, err)
	assert.False(t, cancelled)

	// A cancelled job cannot be claimed afterwards.
	claimed, err = store.ClaimJob("job-queued")
	require.NoError(t, err)
	assert.False(t, claimed)
}

func TestActiveFingerprintsFiltersKindAndStatus(t *testing.T) {
	store := createDatabase(t)
	ds := store.(*SQLiteStore)

	rows := []Fingerprint{
		{Value: storedValue(t, 0x01), Kind: string(fingerprint.KindStill), Status: FingerprintActive},
		{Value: storedValue(t, 0x02), Kind: string(fingerprint.KindStill), Status: FingerprintRemoved},
		{Value: storedValue(t, 0x03), Kind: string(fingerprint.KindStill), Status: FingerprintDisputed},
		{Sequence: storedValue(t, 0x04), Kind: string(fingerprint.KindTemporal), Status: FingerprintActive},
	}
	for i := range rows {
		require.NoError(t, ds.DB.Create(&rows[i]).Error)
	}

	still, err := store.ActiveFingerprints(string(fingerprint.KindStill))
	require.NoError(t, err)
	require.Len(t, still, 1)
	assert.Equal(t, storedValue(t, 0x01), still[0].Value)

	temporal, err := store.ActiveFingerprints(string(fingerprint.KindTemporal))
	require.NoError(t, err)
	assert.Len(t, temporal, 1)
}

func TestUpdateFingerprintStatus(t *testing.T) {
	store := createDatabase(t)
	ds := store.(*SQLiteStore)

	fp := Fingerprint{Value: storedValue(t), Kind: string(fingerprint.KindStill), Status: FingerprintActive}
	require.NoError(t, ds.DB.Create(&fp).Error)

	// Removal bumps the removal counter.
	require.NoError(t, store.UpdateFingerprintStatus(fp.ID, FingerprintRemoved))
	got, err := store.GetFingerprint(fp.ID)
	require.NoError(t, err)
	assert.Equal(t, FingerprintRemoved, got.Status)
	assert.Equal(t, 1, got.RemovalCount)

	// Reinstatement does not touch the counter.
	require.NoError(t, store.UpdateFingerprintStatus(fp.ID, FingerprintActive))
	got, err = store.GetFingerprint(fp.ID)
	require.NoError(t, err)
	assert.Equal(t, FingerprintActive, got.Status)
	assert.Equal(t, 1, got.RemovalCount)

	// Removed fingerprints leave the matchable corpus.
	require.NoError(t, store.UpdateFingerprintStatus(fp.ID, FingerprintRemoved))
	corpus, err := store.ActiveFingerprints(string(fingerprint.KindStill))
	require.NoError(t, err)
	assert.Empty(t, corpus)
}

func TestIncrementCounters(t *testing.T) {
	store := createDatabase(t)
	ds := store.(*SQLiteStore)

	fp := Fingerprint{Value: storedValue(t), Kind: string(fingerprint.KindStill), Status: FingerprintActive}
	require.NoError(t, ds.DB.Create(&fp).Error)

	require.NoError(t, store.IncrementMatchCount(fp.ID))
	require.NoError(t, store.IncrementMatchCount(fp.ID))
	require.NoError(t, store.IncrementReportCount(fp.ID))

	got, err := store.GetFingerprint(fp.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.MatchCount)
	assert.Equal(t, 1, got.ReportCount)
}

func TestSequenceRoundTrip(t *testing.T) {
	t.Parallel()

	b := make([]byte, fingerprint.ByteWidth)
	b[0] = 0x01
	v1, err := fingerprint.NewValue(b)
	require.NoError(t, err)
	b[0] = 0x02
	v2, err := fingerprint.NewValue(b)
	require.NoError(t, err)

	fp := Fingerprint{Sequence: EncodeSequence(fingerprint.Sequence{v1, v2})}
	seq, err := fp.SequenceBits()
	require.NoError(t, err)
	require.Len(t, seq, 2)
	assert.Equal(t, v1, seq[0])
	assert.Equal(t, v2, seq[1])
}

func TestNewRequiresAnOutput(t *testing.T) {
	t.Parallel()

	_, err := New(&conf.Settings{})
	require.Error(t, err)
	assert.Equal(t, errors.CategoryConfiguration, errors.Category(err))
}
