package cli

import (
	"github.com/jate-dev/jate/config"
	"github.com/spf13/cobra"
)

func newConfigCmd(env envFunc) *cobra.Command {
	var format string
	var check bool
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the resolved build configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _ := env()
			if check {
				if err := cfg.Validate(); err != nil {
					return err
				}
			}
			return config.Encode(cmd.OutOrStdout(), cfg, format)
		},
	}
	cmd.Flags().StringVar(&format, "format", config.FormatJSON, "output format: json, yaml or toml")
	cmd.Flags().BoolVar(&check, "check", false, "validate the configuration before printing it")
	return cmd
}
