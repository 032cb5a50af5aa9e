// Package cli implements the jate command line.
package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/jate-dev/jate/config"
	"github.com/jate-dev/jate/kit/colorlog"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const envLogLevel = "JATE_LOG_LEVEL"

// envFunc exposes the configuration and logger resolved by the root
// command's pre-run hook.
type envFunc func() (*config.Config, *slog.Logger)

type globalFlags struct {
	root     string
	mode     string
	logLevel string
}

// NewRootCmd builds the command tree. Output is written to out, logs to
// logOut.
func NewRootCmd(out, logOut io.Writer) *cobra.Command {
	var flags globalFlags
	var log *slog.Logger
	var cfg *config.Config

	rootCmd := &cobra.Command{
		Use:   "jate",
		Short: "Build tool for the Just Another Text Editor web app",
		Long:  "jate bundles the JATE progressive web app: entry scripts, styles, the service worker and the web app manifest.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// a missing .env is fine
			_ = godotenv.Load(filepath.Join(flags.root, ".env"))

			levelName := flags.logLevel
			if !cmd.Flags().Changed("log-level") {
				if v := os.Getenv(envLogLevel); v != "" {
					levelName = v
				}
			}
			level, err := colorlog.ParseLevel(levelName)
			if err != nil {
				return err
			}
			log = colorlog.New("jate", colorlog.Options{Output: logOut, Level: level})

			if flags.root != "" {
				cfg = config.ForRoot(flags.root)
			} else {
				cfg = config.Get()
			}
			if flags.mode != "" {
				m, err := config.ParseMode(flags.mode)
				if err != nil {
					return err
				}
				cfg = cfg.WithMode(m)
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.SetOut(out)
	rootCmd.SetErr(logOut)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.root, "root", "", "project root (default: current directory)")
	pf.StringVar(&flags.mode, "mode", "", "build mode: development or production (default: development)")
	pf.StringVar(&flags.logLevel, "log-level", "info", "log level: debug, info, warn or error (env "+envLogLevel+")")

	env := func() (*config.Config, *slog.Logger) { return cfg, log }
	rootCmd.AddCommand(
		newBuildCmd(env),
		newWatchCmd(env),
		newServeCmd(env),
		newConfigCmd(env),
	)
	return rootCmd
}

// Execute runs the command line against the process arguments.
func Execute() error {
	if err := NewRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return err
	}
	return nil
}
