package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	rawconverter "github.com/Skryldev/raw-converter"
	"github.com/Skryldev/raw-converter/adapters/storage"
	"github.com/Skryldev/raw-converter/core"
)

func newThumbnailCommand(ctx *commandContext) *cobra.Command {
	var outDir string

	cmd := &cobra.Command{
		Use:   "thumbnail <file>",
		Short: "Extract the embedded preview without decoding the image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			conv, err := ctx.ensureConverter()
			if err != nil {
				return err
			}
			res, err := conv.Thumbnail(cmd.Context(), rawconverter.FromFile(args[0]))
			if err != nil {
				return err
			}

			dest := ""
			if outDir != "" {
				sink, err := storage.NewLocal(outDir, os.FileMode(ctx.cfg.Local.Permissions))
				if err != nil {
					return err
				}
				base := strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
				key := core.StorageKey{Path: base + ".thumb." + core.Extension(res.Format)}
				if err := sink.Put(cmd.Context(), key, bytes.NewReader(res.Output), nil); err != nil {
					return err
				}
				dest = sink.Path(key)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: %s preview %s, %s\n", args[0], res.Format, res.OutputDimensions, formatBytes(res.CompressedByteSize))
			if dest != "" {
				fmt.Fprintf(out, "written to %s\n", dest)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&outDir, "out", "o", "", "Directory to write the preview to")
	return cmd
}
