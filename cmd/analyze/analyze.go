// Package analyze runs one media file through the full pipeline and prints
// the assessment.
package analyze

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/tphakala/mediaguard/internal/conf"
	"github.com/tphakala/mediaguard/internal/datastore"
	"github.com/tphakala/mediaguard/internal/detection"
	"github.com/tphakala/mediaguard/internal/fingerprint"
	"github.com/tphakala/mediaguard/internal/fusion"
	"github.com/tphakala/mediaguard/internal/pipeline"
	"github.com/tphakala/mediaguard/internal/policy"
	"github.com/tphakala/mediaguard/internal/runtime"
)

// report is the printed output of a one-shot analysis.
type report struct {
	Job      datastore.AnalysisJob `json:"job"`
	Matches  []datastore.HashMatch `json:"matches,omitempty"`
	Fusion   fusion.Breakdown      `json:"fusion"`
	Decision policy.Decision       `json:"decision"`
}

// Command creates the analyze command.
func Command(settings *conf.Settings) *cobra.Command {
	var (
		ownerID           string
		mediaKind         string
		containsSensitive bool
		consent           bool
		incidentCount     int
		cleanSessions     int
		trustedCaller     bool
		knownBadActor     bool
		impossibleTravel  bool
	)

	cmd := &cobra.Command{
		Use:   "analyze [media file]",
		Short: "Analyze a single media file and print the risk assessment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			history := &fusion.History{
				IncidentCount: incidentCount,
				CleanSessions: cleanSessions,
			}
			pctx := policy.Context{
				TrustedCaller:    trustedCaller,
				KnownBadActor:    knownBadActor,
				ImpossibleTravel: impossibleTravel,
			}
			opts := pipeline.SubmitOptions{
				ContainsSensitive: containsSensitive,
				Consent:           consent,
			}
			return runAnalysis(settings, args[0], ownerID,
				fingerprint.MediaKind(mediaKind), opts, history, pctx)
		},
	}

	cmd.Flags().StringVar(&ownerID, "owner", "cli", "Owner identifier recorded on the job")
	cmd.Flags().StringVar(&mediaKind, "kind", "image", "Media kind: image or video")
	cmd.Flags().BoolVar(&containsSensitive, "sensitive", false, "Mark the media as containing sensitive content")
	cmd.Flags().BoolVar(&consent, "consent", false, "Record uploader consent on the stored fingerprint")
	cmd.Flags().IntVar(&incidentCount, "incidents", 0, "Caller incident count for the history factor")
	cmd.Flags().IntVar(&cleanSessions, "clean-sessions", 0, "Caller clean session count for the history factor")
	cmd.Flags().BoolVar(&trustedCaller, "trusted-caller", false, "Apply the trusted caller downgrade")
	cmd.Flags().BoolVar(&knownBadActor, "known-bad-actor", false, "Apply the known bad actor escalation")
	cmd.Flags().BoolVar(&impossibleTravel, "impossible-travel", false, "Force escalation for a geographic anomaly")

	return cmd
}

func runAnalysis(settings *conf.Settings, mediaFile, ownerID string,
	kind fingerprint.MediaKind, opts pipeline.SubmitOptions,
	history *fusion.History, pctx policy.Context) error {

	engine, err := runtime.Build(settings)
	if err != nil {
		return fmt.Errorf("wiring engine: %w", err)
	}
	defer func() { _ = engine.Close() }()

	// The pipeline deletes its upload artifact after processing, so the
	// caller's file is staged into a scratch copy first.
	staged, err := stageUpload(mediaFile)
	if err != nil {
		return err
	}

	jobID, err := engine.Pipeline.SubmitJob(ownerID, staged, kind, opts)
	if err != nil {
		return fmt.Errorf("submitting job: %w", err)
	}

	claimed, err := engine.Store.ClaimJob(jobID)
	if err != nil {
		return fmt.Errorf("claiming job: %w", err)
	}
	if !claimed {
		return fmt.Errorf("job %s could not be claimed", jobID)
	}

	job, err := engine.Store.GetJob(jobID)
	if err != nil {
		return fmt.Errorf("loading job: %w", err)
	}
	if err := engine.Pipeline.Process(context.Background(), &job); err != nil {
		return fmt.Errorf("analysis failed: %w", err)
	}

	final, err := engine.Store.GetJob(jobID)
	if err != nil {
		return fmt.Errorf("loading job result: %w", err)
	}
	matches, err := engine.Store.MatchesForJob(jobID)
	if err != nil {
		return fmt.Errorf("loading matches: %w", err)
	}

	results := detection.ResultSet{}
	if final.ComponentResults != "" {
		if err := json.Unmarshal([]byte(final.ComponentResults), &results); err != nil {
			return fmt.Errorf("decoding component results: %w", err)
		}
	}
	breakdown, decision := engine.Pipeline.Assess(results, history, pctx)

	out, err := json.MarshalIndent(report{
		Job:      final,
		Matches:  matches,
		Fusion:   breakdown,
		Decision: decision,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	fmt.Println(string(out))
	return nil
}

// stageUpload copies the media file into a scratch location owned by the
// pipeline.
func stageUpload(mediaFile string) (string, error) {
	src, err := os.Open(mediaFile)
	if err != nil {
		return "", fmt.Errorf("opening media file: %w", err)
	}
	defer func() { _ = src.Close() }()

	dst, err := os.CreateTemp("", "mediaguard-upload-*"+filepath.Ext(mediaFile))
	if err != nil {
		return "", fmt.Errorf("creating upload copy: %w", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		_ = os.Remove(dst.Name())
		return "", fmt.Errorf("staging upload: %w", err)
	}
	if err := dst.Close(); err != nil {
		_ = os.Remove(dst.Name())
		return "", fmt.Errorf("staging upload: %w", err)
	}
	return dst.Name(), nil
}
