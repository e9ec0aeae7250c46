package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	rawconverter "github.com/Skryldev/raw-converter"
	"github.com/Skryldev/raw-converter/core"
	"github.com/Skryldev/raw-converter/optimizer"
)

func newOptimizeCommand(ctx *commandContext) *cobra.Command {
	var usage string

	cmd := &cobra.Command{
		Use:   "optimize <file>",
		Short: "Recommend conversion settings for a usage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			conv, err := ctx.ensureConverter()
			if err != nil {
				return err
			}
			u, err := optimizer.ParseUsage(usage)
			if err != nil {
				return err
			}
			rec, err := conv.Optimize(cmd.Context(), rawconverter.FromFile(args[0]), u)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: %s (%.1f MP) for %s\n", args[0], rec.Category, rec.Megapixels, rec.Usage)
			fmt.Fprintln(out, renderTable(
				[]string{"Setting", "Value"},
				requestRows(rec.Request),
				nil,
				shouldColorize(out),
			))
			for _, why := range rec.Reasoning {
				fmt.Fprintf(out, "  - %s\n", why)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&usage, "usage", "u", "web", "Intended usage: web, print or archive")
	return cmd
}

func requestRows(req core.ConversionRequest) [][]string {
	rows := [][]string{{"format", string(req.Format)}}
	if req.Quality != nil {
		rows = append(rows, []string{"quality", strconv.Itoa(*req.Quality)})
	}
	if req.Progressive != nil {
		rows = append(rows, []string{"progressive", strconv.FormatBool(*req.Progressive)})
	}
	if req.ChromaSubsampling != nil {
		rows = append(rows, []string{"chroma", string(*req.ChromaSubsampling)})
	}
	if req.Width != nil {
		rows = append(rows, []string{"width", strconv.Itoa(*req.Width)})
	}
	if req.Height != nil {
		rows = append(rows, []string{"height", strconv.Itoa(*req.Height)})
	}
	return rows
}
