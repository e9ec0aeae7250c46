package main

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/Skryldev/raw-converter/core"
	"github.com/Skryldev/raw-converter/internal/testsupport"
)

func writePNG(t *testing.T, dir, name string, w, h int) string {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x * 4), G: uint8(y * 4), B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write %s: %v", p, err)
	}
	return p
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("RAWCONV_CONFIG", "")
	t.Setenv("RAWCONV_BACKEND", "go")
	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append(args, "--log-level", "error"))
	err := root.Execute()
	return out.String(), err
}

func TestParseFormats(t *testing.T) {
	tests := []struct {
		name    string
		in      []string
		want    []core.Format
		wantErr bool
	}{
		{"single", []string{"jpeg"}, []core.Format{core.FormatJPEG}, false},
		{"aliases dedupe", []string{"jpg", "JPEG", "png"}, []core.Format{core.FormatJPEG, core.FormatPNG}, false},
		{"unknown", []string{"gif"}, nil, true},
		{"empty", nil, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseFormats(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("[%d] = %s, want %s", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestRequestFlagsDropUnsupportedOptions(t *testing.T) {
	cmd := &cobra.Command{Use: "test"}
	var f requestFlags
	f.register(cmd)
	if err := cmd.ParseFlags([]string{"-q", "70", "--effort", "4", "--chroma", "4:2:0", "--width", "800"}); err != nil {
		t.Fatalf("ParseFlags: %v", err)
	}

	jpeg := f.build(cmd, core.FormatJPEG)
	if jpeg.Quality == nil || *jpeg.Quality != 70 {
		t.Errorf("jpeg quality = %v, want 70", jpeg.Quality)
	}
	if jpeg.Effort != nil {
		t.Error("jpeg must not carry effort")
	}
	if jpeg.ChromaSubsampling == nil || *jpeg.ChromaSubsampling != core.Chroma420 {
		t.Errorf("jpeg chroma = %v", jpeg.ChromaSubsampling)
	}
	if jpeg.Width == nil || *jpeg.Width != 800 || jpeg.Height != nil {
		t.Errorf("jpeg dims = %v x %v", jpeg.Width, jpeg.Height)
	}

	pngReq := f.build(cmd, core.FormatPNG)
	if pngReq.Quality != nil || pngReq.Effort != nil || pngReq.ChromaSubsampling != nil {
		t.Errorf("png carries lossy options: %+v", pngReq)
	}
	if err := core.ValidateRequest(pngReq); err != nil {
		t.Errorf("png request invalid: %v", err)
	}

	webp := f.build(cmd, core.FormatWebP)
	if webp.Effort == nil || *webp.Effort != 4 {
		t.Errorf("webp effort = %v, want 4", webp.Effort)
	}
}

func TestFormatsCommand(t *testing.T) {
	out, err := execute(t, "formats")
	if err != nil {
		t.Fatalf("formats: %v", err)
	}
	for _, want := range []string{"jpeg", "image/webp", "cameras known"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestConvertCommandWritesOutputs(t *testing.T) {
	dir := t.TempDir()
	src := writePNG(t, dir, "frame.png", 60, 40)
	outDir := filepath.Join(dir, "out")

	out, err := execute(t, "convert", src, "-f", "jpeg", "-f", "png", "--width", "30", "-o", outDir)
	if err != nil {
		t.Fatalf("convert: %v\n%s", err, out)
	}
	if !strings.Contains(out, "30x20") {
		t.Errorf("output missing resized dimensions:\n%s", out)
	}
	for _, name := range []string{"frame.jpg", "frame.png"} {
		if _, err := os.Stat(filepath.Join(outDir, name)); err != nil {
			t.Errorf("%s not written: %v", name, err)
		}
	}
}

func TestConvertCommandReportsUnavailableFormat(t *testing.T) {
	dir := t.TempDir()
	src := writePNG(t, dir, "frame.png", 20, 20)

	out, err := execute(t, "convert", src, "-f", "jpeg", "-f", "avif")
	if err == nil {
		t.Fatal("expected an error when a format has no encoder")
	}
	if !strings.Contains(out, "jpeg") {
		t.Errorf("successful conversion missing from table:\n%s", out)
	}
}

func TestBatchCommand(t *testing.T) {
	dir := t.TempDir()
	a := writePNG(t, dir, "a.png", 40, 20)
	b := writePNG(t, dir, "b.png", 40, 20)
	missing := filepath.Join(dir, "missing.png")
	outDir := filepath.Join(dir, "converted")

	out, err := execute(t, "batch", a, b, missing, "-f", "jpeg", "-o", outDir, "-j", "2")
	if err == nil {
		t.Fatal("expected an error for the missing input")
	}
	if !strings.Contains(out, "2/3 converted, 1 failed") {
		t.Errorf("summary line missing:\n%s", out)
	}
	for _, name := range []string{"a.jpg", "b.jpg"} {
		if _, err := os.Stat(filepath.Join(outDir, name)); err != nil {
			t.Errorf("%s not written: %v", name, err)
		}
	}
}

func TestOptimizeCommand(t *testing.T) {
	dir := t.TempDir()
	src := writePNG(t, dir, "shot.png", 64, 48)

	out, err := execute(t, "optimize", src, "--usage", "web")
	if err != nil {
		t.Fatalf("optimize: %v\n%s", err, out)
	}
	if !strings.Contains(out, "format") {
		t.Errorf("recommendation table missing:\n%s", out)
	}

	if _, err := execute(t, "optimize", src, "--usage", "billboard"); err == nil {
		t.Error("unknown usage should fail")
	}
}

func TestThumbnailCommand(t *testing.T) {
	dir := t.TempDir()
	preview, err := testsupport.JPEGWithEXIF(image.NewNRGBA(image.Rect(0, 0, 12, 8)), testsupport.EXIF{})
	if err != nil {
		t.Fatal(err)
	}
	raw, err := testsupport.JPEGWithEXIF(image.NewNRGBA(image.Rect(0, 0, 48, 32)), testsupport.EXIF{Thumbnail: preview})
	if err != nil {
		t.Fatal(err)
	}
	src := filepath.Join(dir, "dsc.jpg")
	if err := os.WriteFile(src, raw, 0o644); err != nil {
		t.Fatal(err)
	}
	outDir := filepath.Join(dir, "thumbs")

	out, err := execute(t, "thumbnail", src, "-o", outDir)
	if err != nil {
		t.Fatalf("thumbnail: %v\n%s", err, out)
	}
	if !strings.Contains(out, "12x8") {
		t.Errorf("output missing preview dimensions:\n%s", out)
	}
	got, err := os.ReadFile(filepath.Join(outDir, "dsc.thumb.jpg"))
	if err != nil {
		t.Fatalf("preview not written: %v", err)
	}
	if !bytes.Equal(got, preview) {
		t.Error("written preview differs from the embedded one")
	}

	if _, err := execute(t, "thumbnail", writePNG(t, dir, "plain.png", 8, 8)); err == nil {
		t.Error("a source without a preview should fail")
	}
}
