// Package fingerprints administers stored fingerprints: status transitions
// and abuse reports.
package fingerprints

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/tphakala/mediaguard/internal/conf"
	"github.com/tphakala/mediaguard/internal/datastore"
)

// Command creates the fingerprints command group.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fingerprints",
		Short: "Administer stored fingerprints",
	}

	cmd.AddCommand(
		showCommand(settings),
		setStatusCommand(settings),
		reportCommand(settings),
	)

	return cmd
}

func showCommand(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "show [id]",
		Short: "Print one stored fingerprint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(settings, func(store datastore.Interface) error {
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				fp, err := store.GetFingerprint(id)
				if err != nil {
					return err
				}
				out, err := json.MarshalIndent(fp, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(out))
				return nil
			})
		},
	}
}

func setStatusCommand(settings *conf.Settings) *cobra.Command {
	statuses := []string{
		datastore.FingerprintActive,
		datastore.FingerprintRemoved,
		datastore.FingerprintDisputed,
	}

	return &cobra.Command{
		Use:   "set-status [id] [status]",
		Short: "Transition a fingerprint's matching eligibility",
		Long: "Only active fingerprints participate in matching. Removing a fingerprint " +
			"takes it out of the corpus and bumps its removal counter; disputed " +
			"fingerprints are likewise excluded until resolved.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(settings, func(store datastore.Interface) error {
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				status := args[1]
				if !slices.Contains(statuses, status) {
					return fmt.Errorf("unknown status %q, want one of %v", status, statuses)
				}
				if err := store.UpdateFingerprintStatus(id, status); err != nil {
					return err
				}
				fmt.Printf("fingerprint %d is now %s\n", id, status)
				return nil
			})
		},
	}
}

func reportCommand(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "report [id]",
		Short: "Record an abuse report against a fingerprint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(settings, func(store datastore.Interface) error {
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				if err := store.IncrementReportCount(id); err != nil {
					return err
				}
				fp, err := store.GetFingerprint(id)
				if err != nil {
					return err
				}
				fmt.Printf("fingerprint %d has %d reports\n", id, fp.ReportCount)
				return nil
			})
		},
	}
}

// withStore opens the configured datastore for the duration of one command.
func withStore(settings *conf.Settings, fn func(datastore.Interface) error) error {
	store, err := datastore.New(settings)
	if err != nil {
		return err
	}
	if err := store.Open(); err != nil {
		return err
	}
	defer func() { _ = store.Close() }()
	return fn(store)
}

func parseID(s string) (uint, error) {
	id, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid fingerprint id %q: %w", s, err)
	}
	return uint(id), nil
}
