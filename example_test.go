package rawconverter_test

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"

	rawconverter "github.com/Skryldev/raw-converter"
	"github.com/Skryldev/raw-converter/batch"
	"github.com/Skryldev/raw-converter/core"
	"github.com/Skryldev/raw-converter/hooks"
	"github.com/Skryldev/raw-converter/optimizer"
)

func ExampleConverter_ConvertFormats() {
	conv, err := rawconverter.New(rawconverter.DefaultConfig())
	if err != nil {
		log.Fatal(err)
	}
	conv.SetLogger(hooks.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stderr, nil))))

	results, err := conv.ConvertFormats(context.Background(), rawconverter.FromFile("portrait.png"), []core.ConversionRequest{
		{Format: rawconverter.JPEG, Quality: core.Int(85), Width: core.Int(1920)},
		{Format: rawconverter.PNG, CompressionLevel: core.Int(9)},
	})
	if err != nil {
		log.Fatal(err)
	}
	for _, r := range results {
		if !r.Success {
			fmt.Printf("%s: %v\n", r.Format, r.Err)
			continue
		}
		fmt.Printf("%s %s %d bytes ratio %s\n", r.Format, r.OutputDimensions, r.CompressedByteSize, r.RatioString())
	}
}

func ExampleConverter_Open() {
	conv, err := rawconverter.New(rawconverter.DefaultConfig())
	if err != nil {
		log.Fatal(err)
	}
	ctx := context.Background()

	s, err := conv.Open(ctx, rawconverter.FromFile("landscape.jpg"))
	if err != nil {
		log.Fatal(err)
	}
	defer s.Close()

	rec, err := s.Recommend(optimizer.UsageWeb)
	if err != nil {
		log.Fatal(err)
	}
	for _, why := range rec.Reasoning {
		fmt.Println(why)
	}
	// The first conversion decodes; the second reuses the decode.
	for _, q := range []int{90, 70} {
		req := rec.Request
		req.Quality = core.Int(q)
		res, err := s.Convert(ctx, req)
		if err != nil {
			log.Fatal(err)
		}
		fmt.Printf("q%d from_cache=%t %.1fms\n", q, res.FromCache, res.ProcessingTimeMs())
	}
}

func ExampleConverter_Batch() {
	conv, err := rawconverter.New(rawconverter.DefaultConfig())
	if err != nil {
		log.Fatal(err)
	}
	res, err := conv.Batch(context.Background(), batch.Job{
		Inputs:         []core.Source{rawconverter.FromFile("a.png"), rawconverter.FromFile("b.png")},
		OutputLocation: "exports",
		Options:        core.ConversionRequest{Format: rawconverter.JPEG, Quality: core.Int(80)},
		Concurrency:    2,
	}, batch.WithProgress(func(done, total int) { fmt.Printf("%d/%d\n", done, total) }))
	if err != nil {
		log.Fatal(err)
	}
	for _, f := range res.Failed {
		fmt.Printf("failed %s: %v\n", f.Input, f.Err)
	}
	fmt.Printf("%d processed, average ratio %.2f\n", res.Summary.Processed, res.Summary.AverageCompressionRatio)
}
