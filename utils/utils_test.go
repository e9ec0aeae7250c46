package utils_test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/Skryldev/raw-converter/core"
	"github.com/Skryldev/raw-converter/utils"
)

func TestDetectFormat(t *testing.T) {
	cr2 := append([]byte("II*\x00\x10\x00\x00\x00CR\x02\x00"), make([]byte, 8)...)
	cr3 := append([]byte("\x00\x00\x00\x18ftypcrx "), make([]byte, 8)...)
	tests := []struct {
		name string
		data []byte
		want core.Format
	}{
		{"jpeg", []byte{0xFF, 0xD8, 0xFF, 0xE0, 0, 0}, core.FormatJPEG},
		{"png", []byte{0x89, 'P', 'N', 'G', '\r', '\n'}, core.FormatPNG},
		{"webp", []byte("RIFF\x00\x00\x00\x00WEBPVP8 "), core.FormatWebP},
		{"tiff le", []byte("II*\x00\x08\x00\x00\x00\x00\x00"), core.FormatTIFF},
		{"tiff be", []byte("MM\x00*\x00\x00\x00\x08\x00\x00"), core.FormatTIFF},
		{"cr2", cr2, core.FormatRAW},
		{"cr3", cr3, core.FormatRAW},
		{"raf", []byte("FUJIFILMCCD-RAW 0201"), core.FormatRAW},
		{"orf", []byte("IIRO\x08\x00\x00\x00"), core.FormatRAW},
		{"rw2", []byte("IIU\x00\x08\x00\x00\x00"), core.FormatRAW},
		{"short", []byte{0xFF}, core.FormatUnknown},
		{"text", []byte("hello world, not an image"), core.FormatUnknown},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := utils.DetectFormat(tc.data); got != tc.want {
				t.Errorf("DetectFormat = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestResolveSourceFormat(t *testing.T) {
	tiff := []byte("II*\x00\x08\x00\x00\x00\x00\x00")
	if got := utils.ResolveSourceFormat(tiff, "", "NEF"); got != core.FormatRAW {
		t.Errorf("tiff container named .NEF = %s, want raw", got)
	}
	if got := utils.ResolveSourceFormat(tiff, "", "tif"); got != core.FormatTIFF {
		t.Errorf("tiff named .tif = %s, want tiff", got)
	}
	if got := utils.ResolveSourceFormat([]byte("garbage bytes!"), "", "x3f"); got != core.FormatRAW {
		t.Errorf("unknown signature with raw extension = %s, want raw", got)
	}
	if got := utils.ResolveSourceFormat(tiff, "image/png", "tif"); got != core.FormatPNG {
		t.Errorf("content type hint ignored: %s", got)
	}
}

func TestReadAllLimit(t *testing.T) {
	data := bytes.Repeat([]byte{1}, 100)

	got, err := utils.ReadAll(context.Background(), bytes.NewReader(data), 100, 16)
	if err != nil {
		t.Fatalf("exact limit: %v", err)
	}
	if len(got) != 100 {
		t.Errorf("read %d bytes, want 100", len(got))
	}

	_, err = utils.ReadAll(context.Background(), bytes.NewReader(data), 50, 16)
	if !errors.Is(err, utils.ErrTooLarge) {
		t.Errorf("expected ErrTooLarge, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := utils.ReadAll(ctx, bytes.NewReader(data), 0, 16); err == nil {
		t.Error("expected cancellation error")
	}
}
