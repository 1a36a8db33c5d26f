package compressor

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"os"
	"time"

	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus"

	"gifshrink/internal/anim"
	"gifshrink/internal/logger"
	"gifshrink/internal/palette"
	"gifshrink/internal/resample"
)

// DefaultCompressor is the default implementation of the Compressor interface.
// It keeps no per-run state and is safe for concurrent use.
type DefaultCompressor struct {
	logger *logrus.Logger
}

// NewDefaultCompressor creates a new DefaultCompressor instance.
func NewDefaultCompressor(log *logrus.Logger) *DefaultCompressor {
	if log == nil {
		log = logger.Discard()
	}
	return &DefaultCompressor{logger: log}
}

// Compress decodes inputPath, resizes and re-quantizes every frame in order
// and writes a looping, optimized GIF to outputPath.
func (c *DefaultCompressor) Compress(ctx context.Context, inputPath, outputPath string, params Params) (*Result, error) {
	start := time.Now()
	log := logger.WithFileOperation(c.logger, inputPath, "compress")

	if err := params.Validate(); err != nil {
		return nil, err
	}
	rs, err := resample.New(params.Engine, params.Filter)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransform, err)
	}
	bg, err := parseBackground(params.Background)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransform, err)
	}
	background := color.NRGBA{A: 255}
	background.R, background.G, background.B = bg.Clamped().RGB255()

	a, err := anim.Decode(inputPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrDecode, inputPath, err)
	}
	log.WithFields(logrus.Fields{
		"frames": a.Len(),
		"width":  a.Width,
		"height": a.Height,
		"size":   a.Size,
	}).Debug("Decoded input")

	total := a.Len()
	frames := make([]anim.OutputFrame, 0, total)
	it := a.Frames()
	for it.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		fr := it.Frame()

		out, err := transformFrame(fr, rs, background, params)
		if err != nil {
			return nil, err
		}

		delay, ok := fr.Delay()
		if !ok {
			delay = anim.DefaultDelay
		}
		frames = append(frames, anim.OutputFrame{Image: out, Delay: delay})

		report(params.Progress, Progress{
			InputPath: inputPath,
			Stage:     StageFrame,
			Frame:     fr.Index,
			Processed: len(frames),
			Total:     total,
		})
	}

	if len(frames) == 0 {
		return nil, fmt.Errorf("%w: %s: %w", ErrEncode, inputPath, anim.ErrNoFrames)
	}

	report(params.Progress, Progress{
		InputPath: inputPath,
		Stage:     StageEncode,
		Processed: len(frames),
		Total:     total,
	})

	opts := anim.EncodeOptions{
		LoopCount: 0,
		Optimize:  true,
		Quality:   params.Quality,
	}
	if err := anim.WriteFile(outputPath, frames, opts); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrEncode, outputPath, err)
	}

	info, err := os.Stat(outputPath)
	if err != nil {
		return nil, fmt.Errorf("%w: stat output: %w", ErrEncode, err)
	}

	b := frames[0].Image.Bounds()
	res := &Result{
		InputPath:    inputPath,
		OutputPath:   outputPath,
		OriginalSize: a.Size,
		OutputSize:   info.Size(),
		Reduction:    Reduction(a.Size, info.Size()),
		Frames:       len(frames),
		Width:        b.Dx(),
		Height:       b.Dy(),
		StartedAt:    start,
		FinishedAt:   time.Now(),
	}

	logger.WithCompression(c.logger, inputPath, outputPath, res.Frames, res.PercentageSaved()).WithFields(logrus.Fields{
		"original_size": res.OriginalSize,
		"output_size":   res.OutputSize,
		"elapsed":       res.FinishedAt.Sub(start).String(),
	}).Info("Compressed animation")

	return res, nil
}

// transformFrame flattens, resizes and re-quantizes one frame. Resampling
// always works on full-color pixels.
func transformFrame(fr anim.Frame, rs resample.Resampler, background color.NRGBA, params Params) (*image.Paletted, error) {
	full := flatten(fr.Image, background)

	b := full.Bounds()
	w, h := resample.TargetSize(b.Dx(), b.Dy(), params.ResizeFactor)
	if w < 1 || h < 1 {
		return nil, fmt.Errorf("%w: frame %d: %dx%d scaled by %g gives %dx%d",
			ErrTransform, fr.Index, b.Dx(), b.Dy(), params.ResizeFactor, w, h)
	}

	resized := rs.Resize(full, w, h)
	return palette.Quantize(resized, params.MaxColors, params.Dither), nil
}

// flatten composites img over an opaque background.
func flatten(img *image.NRGBA, background color.NRGBA) *image.NRGBA {
	b := img.Bounds()
	canvas := imaging.New(b.Dx(), b.Dy(), background)
	return imaging.Overlay(canvas, img, image.Pt(0, 0), 1.0)
}

func report(fn ProgressFunc, p Progress) {
	if fn != nil {
		fn(p)
	}
}
