package palette

import (
	"image"
	"image/color"
	"image/draw"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gifshrink/internal/anim/animtest"
)

func TestMedianCut_RespectsLimit(t *testing.T) {
	img := animtest.Gradient(64, 64, 0)
	require.Greater(t, len(Histogram(img)), 256)

	for _, limit := range []int{1, 2, 16, 32, 128, 256} {
		pal := MedianCut{MaxColors: limit}.Quantize(nil, img)
		assert.LessOrEqual(t, len(pal), limit, "limit %d", limit)
		assert.NotEmpty(t, pal)
	}
}

func TestMedianCut_ReducedPaletteIsOpaque(t *testing.T) {
	img := animtest.Gradient(64, 64, 5)
	pal := MedianCut{MaxColors: 16}.Quantize(nil, img)
	require.NotEmpty(t, pal)
	require.LessOrEqual(t, len(pal), 16)
	for i, c := range pal {
		_, _, _, a := c.RGBA()
		assert.Equal(t, uint32(0xffff), a, "entry %d", i)
	}
}

func TestMedianCut_SpareCapacity(t *testing.T) {
	img := animtest.Gradient(32, 32, 1)
	pal := MedianCut{MaxColors: 64}.Quantize(make(color.Palette, 0, 8), img)
	assert.Len(t, pal, 8)
}

func TestMedianCut_ExactColorsWhenFew(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 4, 1))
	img.SetNRGBA(0, 0, color.NRGBA{R: 255, A: 255})
	img.SetNRGBA(1, 0, color.NRGBA{R: 255, A: 255})
	img.SetNRGBA(2, 0, color.NRGBA{G: 255, A: 255})
	img.SetNRGBA(3, 0, color.NRGBA{B: 255, A: 255})

	pal := MedianCut{MaxColors: 8}.Quantize(nil, img)
	require.Len(t, pal, 3)
	// Most frequent color first.
	assert.Equal(t, color.RGBA{R: 255, A: 255}, pal[0])
	assert.Contains(t, pal, color.Color(color.RGBA{G: 255, A: 255}))
	assert.Contains(t, pal, color.Color(color.RGBA{B: 255, A: 255}))
}

func TestMedianCut_Deterministic(t *testing.T) {
	img := animtest.Gradient(48, 48, 4)
	a := MedianCut{MaxColors: 20}.Quantize(nil, img)
	b := MedianCut{MaxColors: 20}.Quantize(nil, img)
	assert.Equal(t, a, b)
}

func TestQuantize_LosslessWhenPaletteFits(t *testing.T) {
	src := animtest.Paletted(animtest.Gradient(20, 20, 2))
	full := image.NewNRGBA(src.Bounds())
	for y := 0; y < 20; y++ {
		for x := 0; x < 20; x++ {
			full.Set(x, y, src.At(x, y))
		}
	}

	out := Quantize(full, 256, false)
	for y := 0; y < 20; y++ {
		for x := 0; x < 20; x++ {
			want := color.NRGBAModel.Convert(full.At(x, y))
			got := color.NRGBAModel.Convert(out.At(x, y))
			require.Equal(t, want, got, "pixel %d,%d", x, y)
		}
	}
}

func TestQuantize_Limits(t *testing.T) {
	img := animtest.Gradient(50, 50, 3)
	for _, dither := range []bool{false, true} {
		out := Quantize(img, 32, dither)
		assert.Equal(t, img.Bounds(), out.Bounds())
		assert.LessOrEqual(t, len(out.Palette), 32)
		assert.LessOrEqual(t, animtest.UsedColors(out), 32)
	}
}

func TestRemap_NearestPerceptual(t *testing.T) {
	pal := color.Palette{
		color.RGBA{A: 255},
		color.RGBA{R: 255, G: 255, B: 255, A: 255},
		color.RGBA{R: 200, A: 255},
	}
	img := image.NewNRGBA(image.Rect(0, 0, 3, 1))
	img.SetNRGBA(0, 0, color.NRGBA{R: 10, G: 10, B: 10, A: 255})
	img.SetNRGBA(1, 0, color.NRGBA{R: 240, G: 240, B: 250, A: 255})
	img.SetNRGBA(2, 0, color.NRGBA{R: 220, G: 20, B: 10, A: 255})

	out := Remap(img, pal, false)
	assert.Equal(t, []uint8{0, 1, 2}, out.Pix)
}

func TestHistogram(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	for y := 0; y < 2; y++ {
		for x := 0; x < 2; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: 1, G: 2, B: 3, A: 255})
		}
	}
	img.SetNRGBA(1, 1, color.NRGBA{R: 9, A: 255})

	hist := Histogram(img)
	assert.Equal(t, map[uint32]uint32{0x010203: 3, 0x090000: 1}, hist)

	// The generic path agrees with the NRGBA fast path.
	rgba := image.NewRGBA(img.Bounds())
	draw.Draw(rgba, rgba.Bounds(), img, image.Point{}, draw.Src)
	assert.Equal(t, hist, Histogram(rgba))
}
