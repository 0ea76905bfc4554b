// Package showconfig prints the effective configuration.
package showconfig

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tphakala/mediaguard/internal/conf"
)

// Command creates the showconfig command.
func Command(settings *conf.Settings) *cobra.Command {
	var outputPath string

	cmd := &cobra.Command{
		Use:   "showconfig",
		Short: "Print the effective configuration as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			if outputPath != "" {
				if err := conf.SaveSettings(settings, outputPath); err != nil {
					return err
				}
				fmt.Printf("configuration written to %s\n", outputPath)
				return nil
			}

			data, err := yaml.Marshal(settings)
			if err != nil {
				return fmt.Errorf("error marshaling settings: %w", err)
			}
			fmt.Print(string(data))
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Write the configuration to a file instead of stdout")

	return cmd
}
