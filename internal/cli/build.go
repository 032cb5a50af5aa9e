package cli

import (
	"fmt"
	"os"
	"os/signal"

	"github.com/jate-dev/jate/internal/devserver"
	"github.com/jate-dev/jate/internal/pipeline"
	"github.com/spf13/cobra"
)

func newBuildCmd(env envFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "build",
		Short: "Build the app into the output directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log := env()
			b, err := pipeline.New(cfg, log)
			if err != nil {
				return err
			}
			defer b.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			res, err := b.Build(ctx)
			if err != nil {
				return err
			}
			for _, a := range res.Assets {
				fmt.Fprintln(cmd.OutOrStdout(), a)
			}
			return nil
		},
	}
}

func newWatchCmd(env envFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Build, then rebuild whenever a source file changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log := env()
			b, err := pipeline.New(cfg, log)
			if err != nil {
				return err
			}
			defer b.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return devserver.Run(ctx, devserver.Options{Builder: b, Log: log})
		},
	}
}

func newServeCmd(env envFunc) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Watch and serve the output directory with live reload",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log := env()
			b, err := pipeline.New(cfg, log)
			if err != nil {
				return err
			}
			defer b.Close()

			return devserver.Serve(cmd.Context(), devserver.ServeOptions{
				Options: devserver.Options{Builder: b, Log: log},
				Addr:    addr,
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", devserver.DefaultAddr, "address to listen on")
	return cmd
}
