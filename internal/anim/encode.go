package anim

import (
	"bufio"
	"errors"
	"fmt"
	"image"
	"image/gif"
	"io"
	"os"
	"path/filepath"
)

// ErrNoFrames is returned when asked to encode an empty frame list.
var ErrNoFrames = errors.New("no frames to encode")

// OutputFrame is a transformed frame ready for encoding.
type OutputFrame struct {
	Image *image.Paletted
	Delay int
}

// EncodeOptions control GIF assembly.
type EncodeOptions struct {
	// LoopCount follows image/gif: 0 loops forever.
	LoopCount int
	// Optimize crops frames to changed regions, marks unchanged pixels
	// transparent and drops unused palette entries.
	Optimize bool
	// Quality in 1..100 sets how far a pixel may drift from the already
	// displayed one and still count as unchanged. 100 means exact.
	Quality int
}

// Assemble builds the GIF container for frames. The first frame defines the
// logical screen.
func Assemble(frames []OutputFrame, opts EncodeOptions) (*gif.GIF, error) {
	if len(frames) == 0 {
		return nil, ErrNoFrames
	}

	screen := frames[0].Image.Bounds()
	for i, f := range frames {
		if f.Image == nil {
			return nil, fmt.Errorf("frame %d: nil image", i)
		}
		if f.Image.Bounds() != screen {
			return nil, fmt.Errorf("frame %d: bounds %v differ from %v", i, f.Image.Bounds(), screen)
		}
	}

	images := make([]*image.Paletted, len(frames))
	if opts.Optimize {
		images = optimizeFrames(frames, opts.Quality)
	} else {
		for i, f := range frames {
			images[i] = f.Image
		}
	}

	g := &gif.GIF{
		Image:     images,
		Delay:     make([]int, len(frames)),
		Disposal:  make([]byte, len(frames)),
		LoopCount: opts.LoopCount,
		Config: image.Config{
			Width:  screen.Max.X,
			Height: screen.Max.Y,
		},
	}
	for i, f := range frames {
		g.Delay[i] = f.Delay
		g.Disposal[i] = gif.DisposalNone
	}
	return g, nil
}

// Encode assembles frames and writes the GIF to w.
func Encode(w io.Writer, frames []OutputFrame, opts EncodeOptions) error {
	g, err := Assemble(frames, opts)
	if err != nil {
		return err
	}
	return gif.EncodeAll(w, g)
}

// WriteFile encodes frames to path. The data is written to a temporary file
// next to path and renamed over it only after a complete encode, so a failed
// run never leaves a truncated output behind.
func WriteFile(path string, frames []OutputFrame, opts EncodeOptions) (err error) {
	if len(frames) == 0 {
		return ErrNoFrames
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	closed := false
	defer func() {
		if !closed {
			_ = tmp.Close()
		}
		if err != nil {
			_ = os.Remove(tmpPath)
		}
	}()

	w := bufio.NewWriter(tmp)
	if err = Encode(w, frames, opts); err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	if err = w.Flush(); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("sync: %w", err)
	}
	closed = true
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close: %w", err)
	}
	if err = os.Chmod(tmpPath, 0644); err != nil {
		return fmt.Errorf("chmod: %w", err)
	}
	if err = os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}
