// interfaces.go defines the storage interface consumed by the matcher and
// the analysis pipeline. All mutating operations are single-row atomic or
// run inside one transaction; workers are independent processes and must not
// rely on application-level locks.
package datastore

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/tphakala/mediaguard/internal/conf"
	"github.com/tphakala/mediaguard/internal/errors"
)

// Interface abstracts the underlying database implementation.
type Interface interface {
	Open() error
	Close() error

	// Job operations.
	CreateJob(job *AnalysisJob) error
	GetJob(id string) (AnalysisJob, error)
	// ClaimJob atomically transitions a job from queued to processing.
	// Returns false when the job was already claimed, cancelled or missing.
	ClaimJob(id string) (bool, error)
	// ClaimNextJob claims the oldest queued job, or nil when none is queued.
	ClaimNextJob() (*AnalysisJob, error)
	SaveJobProgress(id, step string, progress int) error
	SaveJobRetry(id string, retryCount int, lastRetryAt time.Time) error
	// CompleteJob persists the new fingerprint, its hash matches, the
	// matched-side counter increments and the job's terminal state as one
	// transaction. fp may be nil when the job produced no storable
	// fingerprint value.
	CompleteJob(job *AnalysisJob, fp *Fingerprint, matches []HashMatch) error
	FailJob(id, errorMessage string) error
	// CancelJob marks a job cancelled while it is queued or validating.
	// Returns false once fingerprinting has started.
	CancelJob(id string) (bool, error)

	// Fingerprint operations.
	ActiveFingerprints(kind string) ([]Fingerprint, error)
	GetFingerprint(id uint) (Fingerprint, error)
	UpdateFingerprintStatus(id uint, status string) error
	IncrementMatchCount(id uint) error
	IncrementReportCount(id uint) error

	// Matches for one job, for status reporting.
	MatchesForJob(jobID string) ([]HashMatch, error)
}

// DataStore implements Interface using a GORM database.
type DataStore struct {
	DB *gorm.DB
}

// New creates a store instance based on the configured output.
func New(settings *conf.Settings) (Interface, error) {
	switch {
	case settings.Output.SQLite.Enabled:
		return &SQLiteStore{Settings: settings}, nil
	case settings.Output.MySQL.Enabled:
		return &MySQLStore{Settings: settings}, nil
	default:
		return nil, errors.Newf("no datastore output enabled").
			Component("datastore").
			Category(errors.CategoryConfiguration).
			Build()
	}
}

// CreateJob inserts a new job row with status queued.
func (ds *DataStore) CreateJob(job *AnalysisJob) error {
	if job.Status == "" {
		job.Status = JobQueued
	}
	if err := ds.DB.Create(job).Error; err != nil {
		return databaseError(err, "create job", job.ID)
	}
	return nil
}

// GetJob fetches one job by ID.
func (ds *DataStore) GetJob(id string) (AnalysisJob, error) {
	var job AnalysisJob
	if err := ds.DB.First(&job, "id = ?", id).Error; err != nil {
		return AnalysisJob{}, databaseError(err, "get job", id)
	}
	return job, nil
}

// ClaimJob performs the atomic queued→processing compare-and-swap. The
// single UPDATE guarantees no two workers ever hold the same job.
func (ds *DataStore) ClaimJob(id string) (bool, error) {
	result := ds.DB.Model(&AnalysisJob{}).
		Where("id = ? AND status = ?", id, JobQueued).
		Updates(map[string]any{
			"status":       JobProcessing,
			"current_step": StepValidating,
		})
	if result.Error != nil {
		return false, databaseError(result.Error, "claim job", id)
	}
	return result.RowsAffected > 0, nil
}

// ClaimNextJob selects the oldest queued job and claims it. The select and
// the claim are separate statements; losing the race to another worker just
// moves on to the next candidate.
func (ds *DataStore) ClaimNextJob() (*AnalysisJob, error) {
	for {
		var job AnalysisJob
		err := ds.DB.Where("status = ?", JobQueued).
			Order("created_at ASC").
			First(&job).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, nil
			}
			return nil, databaseError(err, "select queued job", "")
		}

		claimed, err := ds.ClaimJob(job.ID)
		if err != nil {
			return nil, err
		}
		if !claimed {
			continue // another worker won the claim, try the next one
		}

		job.Status = JobProcessing
		job.CurrentStep = StepValidating
		return &job, nil
	}
}

// SaveJobProgress persists the current step and progress so a crashed worker
// leaves an inspectable partial state. Progress is monotonic within a job.
func (ds *DataStore) SaveJobProgress(id, step string, progress int) error {
	err := ds.DB.Model(&AnalysisJob{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"current_step": step,
			"progress":     progress,
		}).Error
	if err != nil {
		return databaseError(err, "save job progress", id)
	}
	return nil
}

// SaveJobRetry persists retry bookkeeping for the job.
func (ds *DataStore) SaveJobRetry(id string, retryCount int, lastRetryAt time.Time) error {
	err := ds.DB.Model(&AnalysisJob{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"retry_count":   retryCount,
			"last_retry_at": lastRetryAt,
		}).Error
	if err != nil {
		return databaseError(err, "save job retry", id)
	}
	return nil
}

// CompleteJob persists the saving step as one unit: the new fingerprint row,
// its hash matches, the matched fingerprints' counter increments and the
// job's terminal state. A partial write must not leave a fingerprint without
// its matches, so everything runs in a single transaction.
func (ds *DataStore) CompleteJob(job *AnalysisJob, fp *Fingerprint, matches []HashMatch) error {
	err := ds.DB.Transaction(func(tx *gorm.DB) error {
		if fp != nil {
			if err := tx.Create(fp).Error; err != nil {
				return fmt.Errorf("saving fingerprint: %w", err)
			}
			job.FingerprintID = &fp.ID
		}

		for i := range matches {
			matches[i].JobID = job.ID
			if err := tx.Create(&matches[i]).Error; err != nil {
				return fmt.Errorf("saving hash match: %w", err)
			}
			err := tx.Model(&Fingerprint{}).
				Where("id = ?", matches[i].FingerprintID).
				UpdateColumn("match_count", gorm.Expr("match_count + 1")).Error
			if err != nil {
				return fmt.Errorf("incrementing match count: %w", err)
			}
		}

		now := time.Now()
		job.Status = JobCompleted
		job.CurrentStep = StepComplete
		job.Progress = 100
		job.CompletedAt = &now
		if err := tx.Save(job).Error; err != nil {
			return fmt.Errorf("saving job: %w", err)
		}
		return nil
	})
	if err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryIntegrity).
			JobContext(job.ID, StepSaving).
			Build()
	}
	return nil
}

// FailJob marks a job failed with the error retained for operator inspection.
func (ds *DataStore) FailJob(id, errorMessage string) error {
	now := time.Now()
	err := ds.DB.Model(&AnalysisJob{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":        JobFailed,
			"error_message": errorMessage,
			"completed_at":  now,
		}).Error
	if err != nil {
		return databaseError(err, "fail job", id)
	}
	return nil
}

// CancelJob cancels a job while it is queued or still validating. Once
// fingerprinting has started, cancellation is not honored; the job runs to
// completion or fails naturally.
func (ds *DataStore) CancelJob(id string) (bool, error) {
	result := ds.DB.Model(&AnalysisJob{}).
		Where("id = ? AND (status = ? OR (status = ? AND current_step = ?))",
			id, JobQueued, JobProcessing, StepValidating).
		Update("status", JobCancelled)
	if result.Error != nil {
		return false, databaseError(result.Error, "cancel job", id)
	}
	return result.RowsAffected > 0, nil
}

// ActiveFingerprints returns all active fingerprints of the given kind for
// the matcher's corpus scan.
func (ds *DataStore) ActiveFingerprints(kind string) ([]Fingerprint, error) {
	var fps []Fingerprint
	err := ds.DB.Where("kind = ? AND status = ?", kind, FingerprintActive).
		Find(&fps).Error
	if err != nil {
		return nil, databaseError(err, "active fingerprints", kind)
	}
	return fps, nil
}

// GetFingerprint fetches one fingerprint by ID.
func (ds *DataStore) GetFingerprint(id uint) (Fingerprint, error) {
	var fp Fingerprint
	if err := ds.DB.First(&fp, id).Error; err != nil {
		return Fingerprint{}, databaseError(err, "get fingerprint", fmt.Sprint(id))
	}
	return fp, nil
}

// UpdateFingerprintStatus transitions a fingerprint's matching eligibility.
// Removal bumps the removal counter in the same statement.
func (ds *DataStore) UpdateFingerprintStatus(id uint, status string) error {
	updates := map[string]any{"status": status}
	if status == FingerprintRemoved {
		updates["removal_count"] = gorm.Expr("removal_count + 1")
	}
	err := ds.DB.Model(&Fingerprint{}).
		Where("id = ?", id).
		Updates(updates).Error
	if err != nil {
		return databaseError(err, "update fingerprint status", fmt.Sprint(id))
	}
	return nil
}

// IncrementMatchCount performs a per-row atomic increment so concurrent jobs
// matching the same fingerprint serialize at the database.
func (ds *DataStore) IncrementMatchCount(id uint) error {
	err := ds.DB.Model(&Fingerprint{}).
		Where("id = ?", id).
		UpdateColumn("match_count", gorm.Expr("match_count + 1")).Error
	if err != nil {
		return databaseError(err, "increment match count", fmt.Sprint(id))
	}
	return nil
}

// IncrementReportCount performs a per-row atomic increment of report_count.
func (ds *DataStore) IncrementReportCount(id uint) error {
	err := ds.DB.Model(&Fingerprint{}).
		Where("id = ?", id).
		UpdateColumn("report_count", gorm.Expr("report_count + 1")).Error
	if err != nil {
		return databaseError(err, "increment report count", fmt.Sprint(id))
	}
	return nil
}

// MatchesForJob returns the hash matches recorded for one job run.
func (ds *DataStore) MatchesForJob(jobID string) ([]HashMatch, error) {
	var matches []HashMatch
	err := ds.DB.Where("job_id = ?", jobID).
		Order("distance ASC").
		Find(&matches).Error
	if err != nil {
		return nil, databaseError(err, "matches for job", jobID)
	}
	return matches, nil
}

func databaseError(err error, operation, subject string) error {
	eb := errors.New(err).
		Component("datastore").
		Category(errors.CategoryDatabase).
		Context("operation", operation)
	if subject != "" {
		eb = eb.Context("subject", subject)
	}
	return eb.Build()
}
