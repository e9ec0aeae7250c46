package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	rawconverter "github.com/Skryldev/raw-converter"
	"github.com/Skryldev/raw-converter/adapters/storage"
	"github.com/Skryldev/raw-converter/core"
)

func newConvertCommand(ctx *commandContext) *cobra.Command {
	var (
		formats    []string
		outDir     string
		req        requestFlags
		halfSize   bool
		brightness float64
		bps        int
		autoRotate bool
	)

	cmd := &cobra.Command{
		Use:   "convert <file>",
		Short: "Convert one image into one or more formats",
		Long: `Convert decodes the source once and encodes every --format from that decode
concurrently. Outputs are written to --out as <name>.<ext>; without --out
only the result table is printed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			conv, err := ctx.ensureConverter()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("format") {
				formats = []string{ctx.cfg.DefaultFormat}
			}
			fmts, err := parseFormats(formats)
			if err != nil {
				return err
			}
			reqs := make([]core.ConversionRequest, len(fmts))
			for i, f := range fmts {
				reqs[i] = req.build(cmd, f)
			}

			s, err := conv.Open(cmd.Context(), rawconverter.FromFile(args[0]))
			if err != nil {
				return err
			}
			defer s.Close()

			fs := cmd.Flags()
			if fs.Changed("half-size") || fs.Changed("brightness") || fs.Changed("bps") || fs.Changed("auto-rotate") {
				if err := s.SetDecodeParams(core.DecodeParams{
					HalfSize:   halfSize,
					Brightness: brightness,
					OutputBPS:  bps,
					AutoRotate: autoRotate,
				}); err != nil {
					return err
				}
			}

			results, err := s.ConvertAll(cmd.Context(), reqs)
			if err != nil {
				return err
			}

			var sink *storage.Local
			if outDir != "" {
				sink, err = storage.NewLocal(outDir, os.FileMode(ctx.cfg.Local.Permissions))
				if err != nil {
					return err
				}
			}
			base := strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
			rows := make([][]string, 0, len(results))
			failed := 0
			for _, r := range results {
				if !r.Success {
					failed++
					rows = append(rows, []string{string(r.Format), "", "", "", "", "", r.Err.Error()})
					continue
				}
				dest := ""
				if sink != nil {
					key := core.StorageKey{Path: base + "." + core.Extension(r.Format)}
					if err := sink.Put(cmd.Context(), key, bytes.NewReader(r.Output), nil); err != nil {
						failed++
						rows = append(rows, []string{string(r.Format), "", "", "", "", "", err.Error()})
						continue
					}
					dest = sink.Path(key)
				}
				rows = append(rows, []string{
					string(r.Format),
					r.OutputDimensions.String(),
					formatBytes(r.CompressedByteSize),
					r.RatioString(),
					formatDuration(r.ProcessingTime),
					strconv.FormatBool(r.FromCache),
					dest,
				})
			}

			out := cmd.OutOrStdout()
			meta, _ := s.Metadata()
			fmt.Fprintf(out, "%s  %s  %s  %s\n", args[0], meta.Dimensions(), formatBytes(meta.SizeBytes), strings.TrimSpace(meta.Make+" "+meta.Model))
			fmt.Fprintln(out, renderTable(
				[]string{"Format", "Size", "Bytes", "Ratio", "Time", "Cached", "Output"},
				rows,
				[]columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignRight, alignLeft, alignLeft},
				shouldColorize(out),
			))
			if failed > 0 {
				return fmt.Errorf("%d of %d conversions failed", failed, len(results))
			}
			return nil
		},
	}

	fs := cmd.Flags()
	fs.StringSliceVarP(&formats, "format", "f", nil, "Output format, repeatable (jpeg, png, webp, avif, tiff)")
	fs.StringVarP(&outDir, "out", "o", "", "Directory to write outputs to")
	fs.BoolVar(&halfSize, "half-size", false, "Decode at half resolution")
	fs.Float64Var(&brightness, "brightness", 0, "Brightness multiplier applied while decoding")
	fs.IntVar(&bps, "bps", 0, "Decode bits per sample: 8 or 16")
	fs.BoolVar(&autoRotate, "auto-rotate", false, "Apply the EXIF orientation while decoding")
	req.register(cmd)
	return cmd
}
