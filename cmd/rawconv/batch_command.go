package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	rawconverter "github.com/Skryldev/raw-converter"
	"github.com/Skryldev/raw-converter/batch"
	"github.com/Skryldev/raw-converter/core"
)

func newBatchCommand(ctx *commandContext) *cobra.Command {
	var (
		format      string
		outDir      string
		concurrency int
		timeout     time.Duration
		req         requestFlags
	)

	cmd := &cobra.Command{
		Use:   "batch <files...>",
		Short: "Convert many images into one format",
		Long: `Batch converts every file into --format with a bounded worker pool. A file
that fails is reported and never stops the others. The output directory is
locked for the duration of the run.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			conv, err := ctx.ensureConverter()
			if err != nil {
				return err
			}
			if format == "" {
				format = ctx.cfg.DefaultFormat
			}
			fmts, err := parseFormats([]string{format})
			if err != nil {
				return err
			}

			inputs := make([]core.Source, len(args))
			for i, a := range args {
				inputs[i] = rawconverter.FromFile(a)
			}
			job := batch.Job{
				Inputs:         inputs,
				OutputLocation: outDir,
				Options:        req.build(cmd, fmts[0]),
				Concurrency:    concurrency,
				ItemTimeout:    timeout,
			}

			errOut := cmd.ErrOrStderr()
			showProgress := shouldColorize(errOut)
			res, err := conv.Batch(cmd.Context(), job, batch.WithProgress(func(done, total int) {
				if showProgress {
					fmt.Fprintf(errOut, "\r%d/%d", done, total)
					if done == total {
						fmt.Fprintln(errOut)
					}
				}
			}))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fancy := shouldColorize(out)
			if len(res.Successful) > 0 {
				rows := make([][]string, 0, len(res.Successful))
				for _, s := range res.Successful {
					rows = append(rows, []string{
						s.Input,
						s.Output,
						s.Result.OutputDimensions.String(),
						formatBytes(s.Result.CompressedByteSize),
						s.Result.RatioString(),
						formatDuration(s.Result.ProcessingTime),
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"Input", "Output", "Size", "Bytes", "Ratio", "Time"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight},
					fancy,
				))
			}
			if len(res.Failed) > 0 {
				rows := make([][]string, 0, len(res.Failed))
				for _, f := range res.Failed {
					rows = append(rows, []string{f.Input, f.Err.Error()})
				}
				fmt.Fprintln(out, renderTable([]string{"Failed", "Error"}, rows, nil, fancy))
			}

			sum := res.Summary
			fmt.Fprintf(out, "%d/%d converted, %d failed in %s (%s per file, %s of processing)\n",
				sum.Processed, sum.Total, sum.Errors,
				formatDuration(res.WallTime), formatDuration(sum.AveragePerFile), formatDuration(sum.TotalProcessingTime))
			fmt.Fprintf(out, "%s -> %s, average ratio %.2f\n",
				formatBytes(sum.TotalOriginalBytes), formatBytes(sum.TotalCompressedBytes), sum.AverageCompressionRatio)
			if sum.Errors > 0 {
				return fmt.Errorf("%d of %d inputs failed", sum.Errors, sum.Total)
			}
			return nil
		},
	}

	fs := cmd.Flags()
	fs.StringVarP(&format, "format", "f", "", "Output format (default from config)")
	fs.StringVarP(&outDir, "out", "o", "converted", "Output directory")
	fs.IntVarP(&concurrency, "concurrency", "j", 0, "Files converted at once (default from config)")
	fs.DurationVar(&timeout, "timeout", 0, "Per-file timeout, e.g. 30s (default from config)")
	req.register(cmd)
	return cmd
}
