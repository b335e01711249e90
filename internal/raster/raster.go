// Package raster turns a rendered invoice subtree into a bitmap.
package raster

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/png"

	"github.com/PuerkitoBio/goquery"
)

var ErrEmptyCapture = errors.New("rasterizer produced no output")

// Bitmap is a PNG-encoded capture with its pixel dimensions.
type Bitmap struct {
	PNG    []byte
	Width  int
	Height int
}

type Options struct {
	// Scale is the device pixel ratio of the capture.
	Scale float64
	// AllowCrossOrigin lets images from other origins render.
	AllowCrossOrigin bool
	// Quiet suppresses the rasterizer's own diagnostics.
	Quiet bool
	// ViewportWidth is the CSS pixel width the subtree is laid out in.
	ViewportWidth int64
}

func DefaultOptions() Options {
	return Options{
		Scale:            2,
		AllowCrossOrigin: true,
		Quiet:            true,
		ViewportWidth:    1200,
	}
}

type Rasterizer interface {
	Capture(ctx context.Context, root *goquery.Selection, opts Options) (*Bitmap, error)
}

// Decode checks that data is a non-empty PNG and reads its dimensions.
func Decode(data []byte) (*Bitmap, error) {
	if len(data) == 0 {
		return nil, ErrEmptyCapture
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode capture: %w", err)
	}
	if format != "png" {
		return nil, fmt.Errorf("unexpected capture format %q", format)
	}
	if cfg.Width < 1 || cfg.Height < 1 {
		return nil, fmt.Errorf("invalid capture dimensions: %dx%d", cfg.Width, cfg.Height)
	}
	return &Bitmap{PNG: data, Width: cfg.Width, Height: cfg.Height}, nil
}
