// Package animtest builds synthetic GIF fixtures for tests.
package animtest

import (
	"image"
	"image/color"
	"image/color/palette"
	"image/draw"
	"image/gif"
	"os"
	"path/filepath"
	"testing"
)

// Gradient returns a full-color frame whose colors shift with seed.
func Gradient(width, height, seed int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetNRGBA(x, y, color.NRGBA{
				R: uint8((x*255/max(width-1, 1) + seed*40) % 256),
				G: uint8((y*255/max(height-1, 1) + seed*25) % 256),
				B: uint8((x + y + seed*60) % 256),
				A: 255,
			})
		}
	}
	return img
}

// Paletted converts img to a frame using the 216-color web-safe palette.
func Paletted(img image.Image) *image.Paletted {
	b := img.Bounds()
	p := image.NewPaletted(b, palette.WebSafe)
	draw.Draw(p, b, img, b.Min, draw.Src)
	return p
}

// Solid returns a paletted frame filled with c.
func Solid(width, height int, c color.Color) *image.Paletted {
	p := image.NewPaletted(image.Rect(0, 0, width, height), color.Palette{c})
	return p
}

// GIF builds a looping animation of gradient frames with the given delays.
func GIF(width, height int, delays []int) *gif.GIF {
	g := &gif.GIF{LoopCount: 0}
	for i, d := range delays {
		g.Image = append(g.Image, Paletted(Gradient(width, height, i)))
		g.Delay = append(g.Delay, d)
	}
	return g
}

// WriteGIF encodes g to path and fails the test on error.
func WriteGIF(t testing.TB, path string, g *gif.GIF) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()
	if err := gif.EncodeAll(f, g); err != nil {
		t.Fatalf("encode %s: %v", path, err)
	}
}

// ReadGIF decodes the GIF at path and fails the test on error.
func ReadGIF(t testing.TB, path string) *gif.GIF {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	g, err := gif.DecodeAll(f)
	if err != nil {
		t.Fatalf("decode %s: %v", path, err)
	}
	return g
}

// Composite renders every frame of g onto the logical screen, honouring
// disposal, and returns what a viewer would see after each frame.
func Composite(g *gif.GIF) []*image.NRGBA {
	screen := image.Rect(0, 0, g.Config.Width, g.Config.Height)
	if screen.Empty() && len(g.Image) > 0 {
		// Not decoded yet; the encoder takes the first frame's bounds.
		screen = image.Rect(0, 0, g.Image[0].Bounds().Max.X, g.Image[0].Bounds().Max.Y)
	}
	canvas := image.NewNRGBA(screen)
	out := make([]*image.NRGBA, 0, len(g.Image))

	var saved *image.NRGBA
	for i, m := range g.Image {
		disposal := byte(gif.DisposalNone)
		if i < len(g.Disposal) {
			disposal = g.Disposal[i]
		}
		if disposal == gif.DisposalPrevious {
			saved = clone(canvas)
		}
		draw.Draw(canvas, m.Bounds(), m, m.Bounds().Min, draw.Over)
		out = append(out, clone(canvas))

		switch disposal {
		case gif.DisposalBackground:
			draw.Draw(canvas, m.Bounds(), image.Transparent, image.Point{}, draw.Src)
		case gif.DisposalPrevious:
			canvas = saved
		}
	}
	return out
}

// UsedColors counts the distinct opaque colors referenced by the pixels of p.
// Decoded palettes are padded to a power of two, so the palette length alone
// overstates it.
func UsedColors(p *image.Paletted) int {
	seen := make(map[color.RGBA]struct{})
	b := p.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.RGBAModel.Convert(p.Palette[p.ColorIndexAt(x, y)]).(color.RGBA)
			if c.A == 0 {
				continue
			}
			seen[c] = struct{}{}
		}
	}
	return len(seen)
}

func clone(src *image.NRGBA) *image.NRGBA {
	dst := image.NewNRGBA(src.Bounds())
	copy(dst.Pix, src.Pix)
	return dst
}
