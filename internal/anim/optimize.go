package anim

import (
	"image"
	"image/color"
)

// maxDrift is the per-channel tolerance used at quality 1.
const maxDrift = 32

// driftTolerance converts a quality hint into a squared RGB distance under
// which two pixels are treated as equal.
func driftTolerance(quality int) int {
	if quality >= 100 || quality <= 0 {
		return 0
	}
	d := (100 - quality) * maxDrift / 100
	return 3 * d * d
}

func optimizeFrames(frames []OutputFrame, quality int) []*image.Paletted {
	tol := driftTolerance(quality)
	first := frames[0].Image
	canvas := image.NewNRGBA(first.Bounds())

	out := make([]*image.Paletted, len(frames))
	out[0] = trimPalette(first)
	paintCanvas(canvas, first, first.Bounds())

	for i := 1; i < len(frames); i++ {
		out[i] = diffFrame(canvas, frames[i].Image, tol)
	}
	return out
}

// diffFrame returns the part of frame that differs from canvas and updates
// canvas to what a viewer sees after the returned frame is drawn.
func diffFrame(canvas *image.NRGBA, frame *image.Paletted, tol int) *image.Paletted {
	pal := nrgbaPalette(frame.Palette)
	b := frame.Bounds()

	minX, minY, maxX, maxY := b.Max.X, b.Max.Y, b.Min.X-1, b.Min.Y-1
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := pal[frame.ColorIndexAt(x, y)]
			if near(canvas.NRGBAAt(x, y), c, tol) {
				continue
			}
			minX = min(minX, x)
			minY = min(minY, y)
			maxX = max(maxX, x)
			maxY = max(maxY, y)
		}
	}

	rect := image.Rect(b.Min.X, b.Min.Y, b.Min.X+1, b.Min.Y+1)
	if maxX >= minX {
		rect = image.Rect(minX, minY, maxX+1, maxY+1)
	}

	transparent := -1
	outPal := make(color.Palette, len(frame.Palette), len(frame.Palette)+1)
	copy(outPal, frame.Palette)
	if len(outPal) < 256 {
		transparent = len(outPal)
		outPal = append(outPal, color.RGBA{})
	}

	sub := image.NewPaletted(rect, outPal)
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			idx := frame.ColorIndexAt(x, y)
			c := pal[idx]
			if transparent >= 0 && near(canvas.NRGBAAt(x, y), c, tol) {
				sub.SetColorIndex(x, y, uint8(transparent))
				continue
			}
			sub.SetColorIndex(x, y, idx)
			canvas.SetNRGBA(x, y, c)
		}
	}
	return trimPalette(sub)
}

// trimPalette drops palette entries no pixel refers to.
func trimPalette(p *image.Paletted) *image.Paletted {
	var used [256]bool
	count := 0
	for _, idx := range p.Pix {
		if !used[idx] {
			used[idx] = true
			count++
		}
	}
	if count == len(p.Palette) {
		return p
	}

	var remap [256]uint8
	pal := make(color.Palette, 0, count)
	for i, c := range p.Palette {
		if used[i] {
			remap[i] = uint8(len(pal))
			pal = append(pal, c)
		}
	}

	out := image.NewPaletted(p.Rect, pal)
	for i, idx := range p.Pix {
		out.Pix[i] = remap[idx]
	}
	return out
}

func paintCanvas(canvas *image.NRGBA, frame *image.Paletted, r image.Rectangle) {
	pal := nrgbaPalette(frame.Palette)
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			canvas.SetNRGBA(x, y, pal[frame.ColorIndexAt(x, y)])
		}
	}
}

func nrgbaPalette(p color.Palette) []color.NRGBA {
	out := make([]color.NRGBA, len(p))
	for i, c := range p {
		out[i] = color.NRGBAModel.Convert(c).(color.NRGBA)
	}
	return out
}

func near(a, b color.NRGBA, tol int) bool {
	if a.A != b.A {
		return false
	}
	dr := int(a.R) - int(b.R)
	dg := int(a.G) - int(b.G)
	db := int(a.B) - int(b.B)
	return dr*dr+dg*dg+db*db <= tol
}
