package main

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Skryldev/raw-converter/core"
)

func newFormatsCommand(ctx *commandContext) *cobra.Command {
	var cameras bool

	cmd := &cobra.Command{
		Use:   "formats",
		Short: "List output formats, their options and supported cameras",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			conv, err := ctx.ensureConverter()
			if err != nil {
				return err
			}
			available := conv.Formats()

			out := cmd.OutOrStdout()
			rows := make([][]string, 0, len(core.OutputFormats()))
			for _, f := range core.OutputFormats() {
				caps, _ := core.FormatCapabilities(f)
				opts := make([]string, len(caps.Options))
				for i, o := range caps.Options {
					opts[i] = string(o)
				}
				effort := "-"
				if caps.MaxEffort > 0 {
					effort = "0-" + strconv.Itoa(caps.MaxEffort)
				}
				rows = append(rows, []string{
					string(f),
					caps.Extension,
					caps.MIMEType,
					strings.Join(opts, ", "),
					effort,
					yesNo(caps.Lossy),
					yesNo(slices.Contains(available, f)),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Format", "Ext", "MIME", "Options", "Effort", "Lossy", "Available"},
				rows,
				nil,
				shouldColorize(out),
			))
			fmt.Fprintf(out, "source extensions: %s\n", strings.Join(core.SourceExtensions(), " "))
			fmt.Fprintf(out, "%d cameras known\n", core.CameraCount())
			if cameras {
				for _, c := range core.SupportedCameras() {
					fmt.Fprintf(out, "  %s\n", c)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&cameras, "cameras", false, "List every known camera")
	return cmd
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
