package compressor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lucasb-eyer/go-colorful"

	"gifshrink/internal/palette"
	"gifshrink/internal/resample"
)

// Error kinds. Every error returned by Compress wraps exactly one of them.
var (
	// ErrDecode reports a missing, unreadable or undecodable input.
	ErrDecode = errors.New("decode error")
	// ErrTransform reports invalid parameters or degenerate frame geometry.
	ErrTransform = errors.New("transform error")
	// ErrEncode reports an empty frame list or an unwritable destination.
	ErrEncode = errors.New("encode error")
)

// Params defines parameters for compressing one animation.
type Params struct {
	ResizeFactor float64 `json:"resize_factor"`
	MaxColors    int     `json:"max_colors"`
	Quality      int     `json:"quality"`
	Filter       string  `json:"filter,omitempty"`
	Engine       string  `json:"engine,omitempty"`
	Dither       bool    `json:"dither,omitempty"`
	Background   string  `json:"background,omitempty"`

	// Progress, when set, is called after every frame and once before
	// encoding. It must not block for long.
	Progress ProgressFunc `json:"-"`
}

// DefaultParams returns the parameters used when the caller sets nothing.
func DefaultParams() Params {
	return Params{
		ResizeFactor: 0.8,
		MaxColors:    128,
		Quality:      85,
		Filter:       "lanczos",
		Engine:       resample.EngineImaging,
		Background:   "#ffffff",
	}
}

// Validate checks the parameters without touching any file.
func (p Params) Validate() error {
	if !(p.ResizeFactor > 0 && p.ResizeFactor <= 1) {
		return fmt.Errorf("%w: resize factor must be in (0, 1], got %g", ErrTransform, p.ResizeFactor)
	}
	if p.MaxColors < 1 || p.MaxColors > palette.MaxColors {
		return fmt.Errorf("%w: max colors must be in [1, %d], got %d", ErrTransform, palette.MaxColors, p.MaxColors)
	}
	if p.Quality < 1 || p.Quality > 100 {
		return fmt.Errorf("%w: quality must be in [1, 100], got %d", ErrTransform, p.Quality)
	}
	if _, err := resample.New(p.Engine, p.Filter); err != nil {
		return fmt.Errorf("%w: %w", ErrTransform, err)
	}
	if _, err := parseBackground(p.Background); err != nil {
		return fmt.Errorf("%w: %w", ErrTransform, err)
	}
	return nil
}

// Stage tells a ProgressFunc what the compressor is doing.
type Stage string

const (
	StageFrame  Stage = "frame"
	StageEncode Stage = "encode"
)

// Progress is reported while a compression runs.
type Progress struct {
	InputPath string `json:"input_path"`
	Stage     Stage  `json:"stage"`
	Frame     int    `json:"frame"`
	Processed int    `json:"processed"`
	Total     int    `json:"total"`
}

// ProgressFunc receives progress updates.
type ProgressFunc func(Progress)

// Result describes the result of compressing a single file.
type Result struct {
	InputPath    string    `json:"input_path"`
	OutputPath   string    `json:"output_path"`
	OriginalSize int64     `json:"original_size"`
	OutputSize   int64     `json:"output_size"`
	Reduction    float64   `json:"reduction"`
	Frames       int       `json:"frames"`
	Width        int       `json:"width"`
	Height       int       `json:"height"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
}

// PercentageSaved returns the reduction as a percentage.
func (r *Result) PercentageSaved() float64 {
	return r.Reduction * 100
}

// Reduction returns (original - output) / original. It is negative when the
// output grew and 0 when original is not positive.
func Reduction(original, output int64) float64 {
	if original <= 0 {
		return 0
	}
	return float64(original-output) / float64(original)
}

// Compressor defines the interface for animation compression.
type Compressor interface {
	// Compress reads inputPath, writes the compressed animation to outputPath
	// and reports the size change.
	Compress(ctx context.Context, inputPath, outputPath string, params Params) (*Result, error)
}

func parseBackground(s string) (colorful.Color, error) {
	if s == "" {
		return colorful.Color{R: 1, G: 1, B: 1}, nil
	}
	c, err := colorful.Hex(s)
	if err != nil {
		return colorful.Color{}, fmt.Errorf("invalid background color %q: %w", s, err)
	}
	return c, nil
}
