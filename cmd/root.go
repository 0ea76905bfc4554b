// Package cmd assembles the command line interface.
package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tphakala/mediaguard/cmd/analyze"
	"github.com/tphakala/mediaguard/cmd/fingerprints"
	"github.com/tphakala/mediaguard/cmd/showconfig"
	"github.com/tphakala/mediaguard/cmd/worker"
	"github.com/tphakala/mediaguard/internal/conf"
)

// RootCommand creates and returns the root command.
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "mediaguard",
		Short: "Media fingerprint matching and risk-fusion engine",
	}

	setupFlags(rootCmd, settings)

	rootCmd.AddCommand(
		worker.Command(settings),
		analyze.Command(settings),
		fingerprints.Command(settings),
		showconfig.Command(settings),
	)

	return rootCmd
}

// setupFlags defines flags global to the command line interface.
func setupFlags(rootCmd *cobra.Command, settings *conf.Settings) {
	rootCmd.PersistentFlags().BoolVarP(&settings.Main.Debug, "debug", "d",
		viper.GetBool("main.debug"), "Enable debug output")
}
