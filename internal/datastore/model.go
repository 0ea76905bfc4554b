// model.go defines the persisted entities: fingerprints, analysis jobs and
// hash matches.
package datastore

import (
	"strings"
	"time"

	"github.com/tphakala/mediaguard/internal/fingerprint"
)

// Fingerprint statuses. Only active fingerprints are eligible for matching.
const (
	FingerprintActive   = "active"
	FingerprintRemoved  = "removed"
	FingerprintDisputed = "disputed"
)

// Job statuses.
const (
	JobQueued     = "queued"
	JobProcessing = "processing"
	JobCompleted  = "completed"
	JobFailed     = "failed"
	JobCancelled  = "cancelled"
)

// Job steps, strictly ordered. A job never regresses to an earlier step.
const (
	StepValidating     = "validating"
	StepFingerprinting = "fingerprinting"
	StepDetecting      = "detecting"
	StepMatching       = "matching"
	StepSaving         = "saving"
	StepComplete       = "complete"
)

// Fingerprint is one stored perceptual fingerprint. The value is immutable
// once stored; only the status and the counters below ever change, and the
// counters are mutated solely through single-row atomic updates.
type Fingerprint struct {
	ID        uint   `gorm:"primaryKey"`
	Value     string `gorm:"type:varchar(64);index:idx_fingerprints_value"`
	Sequence  string `gorm:"type:text"` // newline-joined segment values for temporal fingerprints
	Kind      string `gorm:"type:varchar(16);index:idx_fingerprints_kind_status"`
	MediaKind string `gorm:"type:varchar(16)"`
	Status    string `gorm:"type:varchar(16);index:idx_fingerprints_kind_status"`

	MatchCount   int
	ReportCount  int
	RemovalCount int

	ContainsSensitive bool
	Consent           bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ValueBits decodes the stored hex value. Empty for temporal fingerprints.
func (f *Fingerprint) ValueBits() (fingerprint.Value, error) {
	return fingerprint.ParseHex(f.Value)
}

// SequenceBits decodes the stored segment sequence.
func (f *Fingerprint) SequenceBits() (fingerprint.Sequence, error) {
	parts := strings.Split(f.Sequence, "\n")
	seq := make(fingerprint.Sequence, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			continue
		}
		v, err := fingerprint.ParseHex(p)
		if err != nil {
			return nil, err
		}
		seq = append(seq, v)
	}
	return seq, nil
}

// EncodeSequence encodes a segment sequence for storage.
func EncodeSequence(seq fingerprint.Sequence) string {
	parts := make([]string, len(seq))
	for i, v := range seq {
		parts[i] = v.Hex()
	}
	return strings.Join(parts, "\n")
}

// AnalysisJob is one unit of asynchronous analysis work. Result fields are
// write-once, populated as each step completes; a job is terminal once
// completed or failed.
type AnalysisJob struct {
	ID      string `gorm:"type:varchar(36);primaryKey"`
	OwnerID string `gorm:"type:varchar(36);index:idx_jobs_owner"`

	Status      string `gorm:"type:varchar(16);index:idx_jobs_status_created"`
	CurrentStep string `gorm:"type:varchar(16)"`
	Progress    int

	RetryCount  int
	LastRetryAt *time.Time

	MediaKind string `gorm:"type:varchar(16)"`
	MediaPath string // temporary upload artifact, deleted on completion or failure

	// Submission metadata, copied onto the fingerprint row at creation.
	ContainsSensitive bool
	Consent           bool

	// Results, populated as steps complete.
	FingerprintID     *uint
	FingerprintValue  string `gorm:"type:varchar(64)"`
	FingerprintKind   string `gorm:"type:varchar(16)"`
	ComponentResults  string `gorm:"type:text"` // JSON-encoded per-component verdicts
	MatchCount        int
	HighestSimilarity float64
	ErrorMessage      string `gorm:"type:text"`

	CreatedAt   time.Time `gorm:"index:idx_jobs_status_created"`
	UpdatedAt   time.Time
	CompletedAt *time.Time
}

// HashMatch records one (new fingerprint, existing fingerprint) pair whose
// distance was at or below the matching ceiling. Immutable once written; one
// row per qualifying pair per job run, with no cross-job deduplication.
type HashMatch struct {
	ID            uint   `gorm:"primaryKey"`
	JobID         string `gorm:"type:varchar(36);index:idx_hash_matches_job"`
	FingerprintID uint   `gorm:"index:idx_hash_matches_fingerprint"` // the matched, existing side
	Distance      int
	Similarity    float64
	MatchType     string `gorm:"type:varchar(8)"`
	CreatedAt     time.Time
}
