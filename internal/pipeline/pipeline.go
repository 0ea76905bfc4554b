// Package pipeline drives one uploaded media item through the analysis
// state machine: validate, fingerprint, detect, match, save. Steps are
// strictly ordered with no back-transitions; progress is persisted after
// each step so a crashed worker leaves an inspectable partial state. A
// partially processed job is never auto-resumed; policy outside this core
// retries it from the top.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/tphakala/mediaguard/internal/conf"
	"github.com/tphakala/mediaguard/internal/datastore"
	"github.com/tphakala/mediaguard/internal/detection"
	"github.com/tphakala/mediaguard/internal/errors"
	"github.com/tphakala/mediaguard/internal/fingerprint"
	"github.com/tphakala/mediaguard/internal/fusion"
	"github.com/tphakala/mediaguard/internal/logging"
	"github.com/tphakala/mediaguard/internal/matcher"
	"github.com/tphakala/mediaguard/internal/observability"
	"github.com/tphakala/mediaguard/internal/policy"
)

const serviceName = "pipeline"

var logger *slog.Logger

func init() {
	logger = logging.ForService(serviceName)
	if logger == nil {
		logger = slog.Default().With("service", serviceName)
	}
}

// Progress milestones persisted as each step begins. The saving step's
// transaction moves progress to 100.
const (
	ProgressValidating     = 5
	ProgressFingerprinting = 20
	ProgressDetecting      = 50
	ProgressMatching       = 75
	ProgressSaving         = 90
)

// errJobCancelled aborts processing without marking the job failed.
var errJobCancelled = errors.NewStd("job cancelled")

// Pipeline executes analysis jobs against injected collaborators. All
// external handles are passed in at construction time; there is no ambient
// global state.
type Pipeline struct {
	store     datastore.Interface
	extractor detection.Extractor
	detectors []detection.Detector
	matcher   *matcher.Matcher
	fusioner  *fusion.Engine
	policier  *policy.Engine
	cfg       *conf.PipelineSettings
	metrics   *observability.Metrics
}

// New wires a pipeline from its collaborators.
func New(store datastore.Interface, extractor detection.Extractor, detectors []detection.Detector,
	m *matcher.Matcher, fusioner *fusion.Engine, policier *policy.Engine,
	cfg *conf.PipelineSettings, metrics *observability.Metrics) *Pipeline {
	return &Pipeline{
		store:     store,
		extractor: extractor,
		detectors: detectors,
		matcher:   m,
		fusioner:  fusioner,
		policier:  policier,
		cfg:       cfg,
		metrics:   metrics,
	}
}

// SubmitOptions carries submission metadata copied onto the fingerprint row.
type SubmitOptions struct {
	ContainsSensitive bool
	Consent           bool
}

// SubmitJob creates a queued job for an uploaded media file and returns its ID.
func (p *Pipeline) SubmitJob(ownerID, mediaPath string, kind fingerprint.MediaKind, opts SubmitOptions) (string, error) {
	job := &datastore.AnalysisJob{
		ID:                uuid.NewString(),
		OwnerID:           ownerID,
		Status:            datastore.JobQueued,
		MediaKind:         string(kind),
		MediaPath:         mediaPath,
		ContainsSensitive: opts.ContainsSensitive,
		Consent:           opts.Consent,
	}
	if err := p.store.CreateJob(job); err != nil {
		return "", err
	}
	logger.Info("job submitted", "job_id", job.ID, "owner_id", ownerID, "media_kind", kind)
	return job.ID, nil
}

// GetJobStatus returns the job row, including progress and results. A caller
// polling status sees monotonic progress and a terminal status with either
// full results or a recorded error.
func (p *Pipeline) GetJobStatus(id string) (datastore.AnalysisJob, error) {
	return p.store.GetJob(id)
}

// CancelJob cancels a job while still queued or validating.
func (p *Pipeline) CancelJob(id string) (bool, error) {
	return p.store.CancelJob(id)
}

// Assess fuses component results and decides the automated action. Exposed
// for callers that re-assess stored results with fresh history or policy
// context.
func (p *Pipeline) Assess(results detection.ResultSet, history *fusion.History, pctx policy.Context) (fusion.Breakdown, policy.Decision) {
	breakdown := p.fusioner.Fuse(results, history)
	decision := p.policier.Decide(breakdown, pctx)
	if p.metrics != nil {
		p.metrics.FinalScore.Observe(breakdown.FinalScore)
		p.metrics.DecisionsTotal.WithLabelValues(string(decision.Action)).Inc()
	}
	return breakdown, decision
}

// jobState carries in-memory state across the steps of one run.
type jobState struct {
	job        *datastore.AnalysisJob
	media      []byte
	extraction detection.Extraction
	results    detection.ResultSet
	matches    []matcher.Match
}

// Process runs an already-claimed job through all steps. The temporary
// upload artifact is deleted whether the job succeeds or fails.
func (p *Pipeline) Process(ctx context.Context, job *datastore.AnalysisJob) error {
	defer func() {
		if job.MediaPath != "" {
			if err := os.Remove(job.MediaPath); err != nil && !os.IsNotExist(err) {
				logger.Warn("failed to remove upload artifact",
					"job_id", job.ID, "path", job.MediaPath, "error", err)
			}
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, p.cfg.JobTimeout)
	defer cancel()

	st := &jobState{job: job, results: detection.ResultSet{}}
	err := p.runSteps(ctx, st)
	switch {
	case err == nil:
		if p.metrics != nil {
			p.metrics.JobsProcessed.WithLabelValues(datastore.JobCompleted).Inc()
			p.metrics.MatchesFound.Observe(float64(len(st.matches)))
		}
		logger.Info("job completed",
			"job_id", job.ID,
			"matches", len(st.matches),
			"highest_similarity", job.HighestSimilarity)
		return nil
	case errors.Is(err, errJobCancelled):
		logger.Info("job cancelled during validation", "job_id", job.ID)
		return nil
	default:
		p.failJob(job, err)
		return err
	}
}

func (p *Pipeline) runSteps(ctx context.Context, st *jobState) error {
	steps := []struct {
		name     string
		progress int
		run      func(context.Context, *jobState) error
	}{
		{datastore.StepValidating, ProgressValidating, p.runValidating},
		{datastore.StepFingerprinting, ProgressFingerprinting, p.runFingerprinting},
		{datastore.StepDetecting, ProgressDetecting, p.runDetecting},
		{datastore.StepMatching, ProgressMatching, p.runMatching},
		{datastore.StepSaving, ProgressSaving, p.runSaving},
	}

	for _, step := range steps {
		if err := p.store.SaveJobProgress(st.job.ID, step.name, step.progress); err != nil {
			return err
		}
		st.job.CurrentStep = step.name
		st.job.Progress = step.progress

		start := time.Now()
		err := p.withRetry(ctx, st.job, step.name, func(ctx context.Context) error {
			return step.run(ctx, st)
		})
		if p.metrics != nil {
			p.metrics.StepDuration.WithLabelValues(step.name).Observe(time.Since(start).Seconds())
		}
		if err != nil {
			return err
		}

		// Cancellation is honored only until fingerprinting starts.
		if step.name == datastore.StepValidating {
			current, err := p.store.GetJob(st.job.ID)
			if err == nil && current.Status == datastore.JobCancelled {
				return errJobCancelled
			}
		}
	}
	return nil
}

// withRetry runs one step, retrying per the pure retry policy. The retry
// count is persisted on the job and shared across steps, so the bound
// applies to the job as a whole.
func (p *Pipeline) withRetry(ctx context.Context, job *datastore.AnalysisJob, step string, fn func(context.Context) error) error {
	for {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return errors.New(fmt.Errorf("job exceeded wall-clock ceiling: %w", ctx.Err())).
				Component(serviceName).
				Category(errors.CategoryTimeout).
				JobContext(job.ID, step).
				Build()
		}

		category := errors.Category(err)
		if !ShouldRetry(category, job.RetryCount, p.cfg.MaxRetries) {
			return err
		}

		job.RetryCount++
		now := time.Now()
		job.LastRetryAt = &now
		if saveErr := p.store.SaveJobRetry(job.ID, job.RetryCount, now); saveErr != nil {
			logger.Warn("failed to persist retry state", "job_id", job.ID, "error", saveErr)
		}
		if p.metrics != nil {
			p.metrics.JobRetries.Inc()
		}

		delay := BackoffDelay(p.cfg, job.RetryCount)
		logger.Warn("step failed, retrying",
			"job_id", job.ID,
			"step", step,
			"attempt", job.RetryCount,
			"max_retries", p.cfg.MaxRetries,
			"delay", delay,
			"error", err)

		select {
		case <-ctx.Done():
			return errors.New(fmt.Errorf("job exceeded wall-clock ceiling: %w", ctx.Err())).
				Component(serviceName).
				Category(errors.CategoryTimeout).
				JobContext(job.ID, step).
				Build()
		case <-time.After(delay):
		}
	}
}

// runValidating rejects unsupported media kinds and oversized uploads.
// Validation failures are fatal with no retry.
func (p *Pipeline) runValidating(ctx context.Context, st *jobState) error {
	job := st.job
	if !slices.Contains(p.cfg.AllowedMediaKinds, job.MediaKind) {
		return errors.Newf("unsupported media kind %q", job.MediaKind).
			Component(serviceName).
			Category(errors.CategoryValidation).
			JobContext(job.ID, datastore.StepValidating).
			Build()
	}

	info, err := os.Stat(job.MediaPath)
	if err != nil {
		return errors.New(fmt.Errorf("upload artifact missing: %w", err)).
			Component(serviceName).
			Category(errors.CategoryValidation).
			JobContext(job.ID, datastore.StepValidating).
			Build()
	}
	if info.Size() == 0 || info.Size() > p.cfg.MaxUploadBytes {
		return errors.Newf("upload size %d outside allowed range (max %d)", info.Size(), p.cfg.MaxUploadBytes).
			Component(serviceName).
			Category(errors.CategoryValidation).
			JobContext(job.ID, datastore.StepValidating).
			Build()
	}
	return nil
}

// runFingerprinting reads the upload and calls the external extractor.
// Extraction failure is retried up to the bound, then fatal: nothing
// downstream is meaningful without a fingerprint.
func (p *Pipeline) runFingerprinting(ctx context.Context, st *jobState) error {
	job := st.job
	if st.media == nil {
		media, err := os.ReadFile(job.MediaPath)
		if err != nil {
			return errors.New(err).
				Component(serviceName).
				Category(errors.CategoryTransientIO).
				JobContext(job.ID, datastore.StepFingerprinting).
				Build()
		}
		st.media = media
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.ExtractTimeout)
	defer cancel()

	extraction, err := p.extractor.Extract(ctx, st.media, fingerprint.MediaKind(job.MediaKind))
	if err != nil {
		if errors.Category(err) == errors.CategoryGeneric {
			err = errors.New(err).
				Component(serviceName).
				Category(errors.CategoryDependency).
				JobContext(job.ID, datastore.StepFingerprinting).
				Build()
		}
		return err
	}

	switch extraction.Kind {
	case fingerprint.KindStill:
		if !extraction.Value.Valid() {
			return errors.Newf("%w: extractor returned %d bits", fingerprint.ErrMalformed, len(extraction.Value)*8).
				Component(serviceName).
				Category(errors.CategoryValidation).
				JobContext(job.ID, datastore.StepFingerprinting).
				Build()
		}
		job.FingerprintValue = extraction.Value.Hex()
	case fingerprint.KindTemporal:
		if !extraction.Sequence.Valid() {
			return errors.Newf("%w: extractor returned malformed sequence", fingerprint.ErrMalformed).
				Component(serviceName).
				Category(errors.CategoryValidation).
				JobContext(job.ID, datastore.StepFingerprinting).
				Build()
		}
	default:
		return errors.Newf("extractor returned unknown fingerprint kind %q", extraction.Kind).
			Component(serviceName).
			Category(errors.CategoryDependency).
			JobContext(job.ID, datastore.StepFingerprinting).
			Build()
	}

	st.extraction = extraction
	job.FingerprintKind = string(extraction.Kind)
	return nil
}

// runDetecting calls every applicable detector. A detector failure or
// timeout downgrades that component to absent; it never fails the job.
func (p *Pipeline) runDetecting(ctx context.Context, st *jobState) error {
	job := st.job
	kind := fingerprint.MediaKind(job.MediaKind)

	for _, det := range p.detectors {
		if !det.Supports(kind) {
			continue
		}

		detectCtx, cancel := context.WithTimeout(ctx, p.cfg.DetectTimeout)
		verdict, err := det.Detect(detectCtx, st.media, kind)
		cancel()

		if err != nil {
			logger.Warn("detector unavailable, recording component absent",
				"job_id", job.ID,
				"component", det.Component(),
				"error", err)
			st.results[det.Component()] = detection.Absent(err.Error())
			continue
		}
		st.results[det.Component()] = detection.Present(verdict.Score, verdict.Confidence)
	}

	encoded, err := json.Marshal(st.results)
	if err != nil {
		return errors.New(err).
			Component(serviceName).
			Category(errors.CategoryPipeline).
			JobContext(job.ID, datastore.StepDetecting).
			Build()
	}
	job.ComponentResults = string(encoded)
	return nil
}

// runMatching scans the active corpus for near-duplicates of the new
// fingerprint.
func (p *Pipeline) runMatching(ctx context.Context, st *jobState) error {
	job := st.job

	var matches []matcher.Match
	var err error
	switch st.extraction.Kind {
	case fingerprint.KindTemporal:
		matches, err = p.matcher.FindSequenceMatches(ctx, st.extraction.Sequence, fingerprint.KindTemporal)
	default:
		matches, err = p.matcher.FindMatches(ctx, st.extraction.Value, fingerprint.KindStill)
	}
	if err != nil {
		return err
	}

	st.matches = matches
	job.MatchCount = len(matches)
	job.HighestSimilarity = matcher.HighestSimilarity(matches)
	return nil
}

// runSaving persists the new fingerprint, its hash matches and the job's
// terminal state as one unit. A failure here is an integrity error: the
// analysis work is otherwise lost, so it surfaces loudly.
func (p *Pipeline) runSaving(ctx context.Context, st *jobState) error {
	job := st.job

	fp := &datastore.Fingerprint{
		Kind:              string(st.extraction.Kind),
		MediaKind:         job.MediaKind,
		Status:            datastore.FingerprintActive,
		ContainsSensitive: job.ContainsSensitive,
		Consent:           job.Consent,
	}
	switch st.extraction.Kind {
	case fingerprint.KindTemporal:
		fp.Sequence = datastore.EncodeSequence(st.extraction.Sequence)
	default:
		fp.Value = st.extraction.Value.Hex()
	}

	return p.store.CompleteJob(job, fp, matcher.ToHashMatches(job.ID, st.matches))
}

func (p *Pipeline) failJob(job *datastore.AnalysisJob, cause error) {
	if err := p.store.FailJob(job.ID, cause.Error()); err != nil {
		logger.Error("failed to record job failure",
			"job_id", job.ID, "cause", cause, "error", err)
	}
	if p.metrics != nil {
		p.metrics.JobsProcessed.WithLabelValues(datastore.JobFailed).Inc()
	}
	logger.Error("job failed",
		"job_id", job.ID,
		"step", job.CurrentStep,
		"category", errors.Category(cause),
		"error", cause)
}
