package main

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	flags := &globalFlags{}
	ctx := newCommandContext(flags)

	rootCmd := &cobra.Command{
		Use:   "rawconv",
		Short: "Convert camera raw and raster images",
		Long: `rawconv converts camera raw and raster images into JPEG, PNG, WebP, AVIF and TIFF.

Each source is decoded once; every requested format is encoded from that decode.
Settings come from --config (TOML or YAML), then RAWCONV_* environment variables
(a .env file in the working directory is read first), then flags.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if flags.stats && ctx.metrics != nil {
				fmt.Fprintln(cmd.OutOrStdout(), renderStepStats(ctx.metrics.Registry(), shouldColorize(cmd.OutOrStdout())))
			}
			ctx.close()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flags.config, "config", "c", "", "Configuration file path (.toml, .yaml)")
	pf.StringVar(&flags.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	pf.StringVar(&flags.logFormat, "log-format", "", "Log format: text or json")
	pf.StringVar(&flags.backend, "backend", "", "Codec backend: go or vips")
	pf.BoolVar(&flags.stats, "stats", false, "Print per-step timings after the command")

	rootCmd.AddCommand(newConvertCommand(ctx))
	rootCmd.AddCommand(newBatchCommand(ctx))
	rootCmd.AddCommand(newOptimizeCommand(ctx))
	rootCmd.AddCommand(newThumbnailCommand(ctx))
	rootCmd.AddCommand(newFormatsCommand(ctx))

	return rootCmd
}
