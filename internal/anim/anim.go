// Package anim decodes animated images into composited full-color frames and
// encodes paletted frames back into an optimized GIF container.
package anim

import (
	"image"
	"image/gif"
)

// DefaultDelay is the frame delay, in hundredths of a second, applied when the
// source does not carry one.
const DefaultDelay = 100

// Format identifies the container an Animation was decoded from.
type Format string

const (
	FormatGIF   Format = "gif"
	FormatStill Format = "still"
)

// Animation is a decoded source image. It is never mutated after Decode.
type Animation struct {
	Path      string
	Format    Format
	Width     int
	Height    int
	LoopCount int
	Size      int64

	gif   *gif.GIF
	still image.Image
}

// Len returns the number of frames.
func (a *Animation) Len() int {
	if a.gif != nil {
		return len(a.gif.Image)
	}
	if a.still != nil {
		return 1
	}
	return 0
}

// Delays returns the raw per-frame delays as stored in the source. Missing
// delays are reported as 0.
func (a *Animation) Delays() []int {
	delays := make([]int, a.Len())
	if a.gif != nil {
		for i := range delays {
			delays[i], _ = LookupDelay(a.gif.Delay, i)
		}
	}
	return delays
}

// PaletteSizes returns the palette length of every source frame. Still images
// are full color and report 0.
func (a *Animation) PaletteSizes() []int {
	sizes := make([]int, a.Len())
	if a.gif != nil {
		for i, m := range a.gif.Image {
			sizes[i] = len(m.Palette)
		}
	}
	return sizes
}

// Frame is one composited full-color frame of an Animation.
type Frame struct {
	Index int
	Image *image.NRGBA

	delay    int
	hasDelay bool
}

// Delay reports the frame's display duration in hundredths of a second and
// whether the source specified one.
func (f Frame) Delay() (int, bool) {
	return f.delay, f.hasDelay
}

// LookupDelay returns delays[i] when it is present and positive.
func LookupDelay(delays []int, i int) (int, bool) {
	if i < 0 || i >= len(delays) {
		return 0, false
	}
	// image/gif reports a frame without a graphic control extension as delay
	// 0, the same as an explicit 0, so both fall back to the default.
	if delays[i] <= 0 {
		return 0, false
	}
	return delays[i], true
}
