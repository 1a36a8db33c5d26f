// Package palette reduces full-color frames to small adaptive palettes.
package palette

import (
	"image"
	"image/color"
	"image/draw"
	"sort"

	"github.com/lucasb-eyer/go-colorful"
)

// MaxColors is the largest palette a GIF frame can carry.
const MaxColors = 256

// Quantize builds an adaptive palette of at most maxColors entries for img and
// maps img onto it.
func Quantize(img image.Image, maxColors int, dither bool) *image.Paletted {
	pal := MedianCut{MaxColors: maxColors}.Quantize(make(color.Palette, 0, maxColors), img)
	return Remap(img, pal, dither)
}

// Remap converts img to a paletted image using pal. Without dithering each
// pixel takes the palette entry nearest to it in CIE L*a*b*.
func Remap(img image.Image, pal color.Palette, dither bool) *image.Paletted {
	b := img.Bounds()
	dst := image.NewPaletted(b, pal)
	if dither {
		draw.FloydSteinberg.Draw(dst, b, img, b.Min)
		return dst
	}

	m := newLabMatcher(pal)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			dst.SetColorIndex(x, y, m.index(c))
		}
	}
	return dst
}

type labColor struct {
	l, a, b float64
}

// labMatcher finds the perceptually closest palette entry, memoizing results
// per source color.
type labMatcher struct {
	entries []labColor
	exact   map[uint32]uint8
	cache   map[uint32]uint8
}

func newLabMatcher(pal color.Palette) *labMatcher {
	m := &labMatcher{
		entries: make([]labColor, len(pal)),
		exact:   make(map[uint32]uint8, len(pal)),
		cache:   make(map[uint32]uint8),
	}
	for i, c := range pal {
		n := color.NRGBAModel.Convert(c).(color.NRGBA)
		m.entries[i] = toLab(n)
		key := rgbKey(n)
		if _, ok := m.exact[key]; !ok {
			m.exact[key] = uint8(i)
		}
	}
	return m
}

func (m *labMatcher) index(c color.NRGBA) uint8 {
	key := rgbKey(c)
	if i, ok := m.exact[key]; ok {
		return i
	}
	if i, ok := m.cache[key]; ok {
		return i
	}

	target := toLab(c)
	best, bestDist := 0, -1.0
	for i, e := range m.entries {
		dl, da, db := target.l-e.l, target.a-e.a, target.b-e.b
		d := dl*dl + da*da + db*db
		if bestDist < 0 || d < bestDist {
			best, bestDist = i, d
		}
	}
	m.cache[key] = uint8(best)
	return uint8(best)
}

func toLab(c color.NRGBA) labColor {
	cc := colorful.Color{R: float64(c.R) / 255, G: float64(c.G) / 255, B: float64(c.B) / 255}
	l, a, b := cc.Lab()
	return labColor{l, a, b}
}

func rgbKey(c color.NRGBA) uint32 {
	return uint32(c.R)<<16 | uint32(c.G)<<8 | uint32(c.B)
}

// Histogram counts the distinct opaque colors of img.
func Histogram(img image.Image) map[uint32]uint32 {
	hist := make(map[uint32]uint32)
	if n, ok := img.(*image.NRGBA); ok {
		b := n.Bounds()
		for y := b.Min.Y; y < b.Max.Y; y++ {
			row := n.Pix[n.PixOffset(b.Min.X, y):n.PixOffset(b.Max.X, y)]
			for i := 0; i < len(row); i += 4 {
				hist[uint32(row[i])<<16|uint32(row[i+1])<<8|uint32(row[i+2])]++
			}
		}
		return hist
	}

	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			hist[rgbKey(color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA))]++
		}
	}
	return hist
}

// sortedKeys returns the histogram keys in ascending order so palette
// construction does not depend on map iteration order.
func sortedKeys(hist map[uint32]uint32) []uint32 {
	keys := make([]uint32, 0, len(hist))
	for k := range hist {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
