package anim

import (
	"image"
	"image/draw"
	"image/gif"

	"github.com/disintegration/imaging"
)

// FrameIterator yields the frames of an Animation in order. GIF frames are
// composited onto the logical screen so every Frame is full size, with the
// previous frame's disposal method applied first. It is single pass.
type FrameIterator struct {
	anim  *Animation
	index int
	cur   Frame

	canvas       *image.NRGBA
	saved        *image.NRGBA
	prevBounds   image.Rectangle
	prevDisposal byte
}

// Frames returns a new iterator positioned before the first frame.
func (a *Animation) Frames() *FrameIterator {
	return &FrameIterator{anim: a}
}

// Next advances to the next frame and reports whether there is one.
func (it *FrameIterator) Next() bool {
	a := it.anim
	if it.index >= a.Len() {
		return false
	}
	i := it.index
	it.index++

	if a.gif == nil {
		it.cur = Frame{Index: i, Image: imaging.Clone(a.still)}
		return true
	}

	if it.canvas == nil {
		it.canvas = image.NewNRGBA(image.Rect(0, 0, a.Width, a.Height))
	} else {
		it.dispose()
	}

	src := a.gif.Image[i]
	disposal := disposalAt(a.gif.Disposal, i)
	if disposal == gif.DisposalPrevious {
		it.saved = imaging.Clone(it.canvas)
	} else {
		it.saved = nil
	}

	draw.Draw(it.canvas, src.Bounds(), src, src.Bounds().Min, draw.Over)
	it.prevBounds = src.Bounds()
	it.prevDisposal = disposal

	delay, ok := LookupDelay(a.gif.Delay, i)
	it.cur = Frame{
		Index:    i,
		Image:    imaging.Clone(it.canvas),
		delay:    delay,
		hasDelay: ok,
	}
	return true
}

// Frame returns the frame produced by the last successful call to Next.
func (it *FrameIterator) Frame() Frame {
	return it.cur
}

func (it *FrameIterator) dispose() {
	switch it.prevDisposal {
	case gif.DisposalBackground:
		draw.Draw(it.canvas, it.prevBounds, image.Transparent, image.Point{}, draw.Src)
	case gif.DisposalPrevious:
		if it.saved != nil {
			draw.Draw(it.canvas, it.canvas.Bounds(), it.saved, image.Point{}, draw.Src)
		}
	}
}

func disposalAt(disposal []byte, i int) byte {
	if i < len(disposal) {
		return disposal[i]
	}
	return gif.DisposalNone
}
