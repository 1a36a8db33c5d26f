package compressor

import (
	"context"
	"image"
	"image/color"
	"image/gif"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gifshrink/internal/anim/animtest"
)

func newTestCompressor() *DefaultCompressor {
	return NewDefaultCompressor(nil)
}

func params(ratio float64, maxColors int) Params {
	p := DefaultParams()
	p.ResizeFactor = ratio
	p.MaxColors = maxColors
	return p
}

func TestCompress_EndToEnd(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.gif")
	out := filepath.Join(dir, "out.gif")
	animtest.WriteGIF(t, in, animtest.GIF(100, 100, []int{100, 150, 100}))

	var progress []Progress
	p := params(0.5, 32)
	p.Progress = func(pr Progress) { progress = append(progress, pr) }

	res, err := newTestCompressor().Compress(context.Background(), in, out, p)
	require.NoError(t, err)

	g := animtest.ReadGIF(t, out)
	require.Len(t, g.Image, 3)
	assert.Equal(t, []int{100, 150, 100}, g.Delay)
	assert.Equal(t, 0, g.LoopCount)
	assert.Equal(t, 50, g.Config.Width)
	assert.Equal(t, 50, g.Config.Height)

	for i, m := range g.Image {
		assert.LessOrEqual(t, animtest.UsedColors(m), 32, "frame %d", i)
		assert.True(t, m.Bounds().In(image.Rect(0, 0, 50, 50)), "frame %d bounds %v", i, m.Bounds())
	}
	for i, c := range animtest.Composite(g) {
		assert.Equal(t, image.Rect(0, 0, 50, 50), c.Bounds(), "composite %d", i)
	}

	inInfo, err := os.Stat(in)
	require.NoError(t, err)
	outInfo, err := os.Stat(out)
	require.NoError(t, err)

	assert.Equal(t, in, res.InputPath)
	assert.Equal(t, out, res.OutputPath)
	assert.Equal(t, inInfo.Size(), res.OriginalSize)
	assert.Equal(t, outInfo.Size(), res.OutputSize)
	assert.Equal(t, Reduction(inInfo.Size(), outInfo.Size()), res.Reduction)
	assert.Equal(t, 3, res.Frames)
	assert.Equal(t, 50, res.Width)
	assert.Equal(t, 50, res.Height)
	assert.False(t, res.FinishedAt.Before(res.StartedAt))

	require.Len(t, progress, 4)
	for i := 0; i < 3; i++ {
		assert.Equal(t, StageFrame, progress[i].Stage)
		assert.Equal(t, i, progress[i].Frame)
		assert.Equal(t, i+1, progress[i].Processed)
		assert.Equal(t, 3, progress[i].Total)
	}
	assert.Equal(t, StageEncode, progress[3].Stage)
}

func TestCompress_FullSizeKeepsDimensions(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.gif")
	out := filepath.Join(dir, "out.gif")
	src := animtest.GIF(37, 21, []int{5, 6})
	animtest.WriteGIF(t, in, src)

	p := params(1.0, 256)
	p.Quality = 100
	_, err := newTestCompressor().Compress(context.Background(), in, out, p)
	require.NoError(t, err)

	g := animtest.ReadGIF(t, out)
	assert.Equal(t, 37, g.Config.Width)
	assert.Equal(t, 21, g.Config.Height)

	want := animtest.Composite(animtest.ReadGIF(t, in))
	got := animtest.Composite(g)
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].Bounds(), got[i].Bounds())
		assert.Equal(t, want[i].Pix, got[i].Pix, "frame %d", i)
	}
}

func TestCompress_ResizeRounding(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.gif")
	out := filepath.Join(dir, "out.gif")
	animtest.WriteGIF(t, in, animtest.GIF(33, 17, []int{10, 10}))

	_, err := newTestCompressor().Compress(context.Background(), in, out, params(0.5, 16))
	require.NoError(t, err)

	g := animtest.ReadGIF(t, out)
	assert.Equal(t, 17, g.Config.Width)
	assert.Equal(t, 9, g.Config.Height)
	for i, m := range g.Image {
		assert.LessOrEqual(t, animtest.UsedColors(m), 16, "frame %d", i)
	}
}

func TestCompress_DefaultDelay(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.gif")
	out := filepath.Join(dir, "out.gif")
	animtest.WriteGIF(t, in, animtest.GIF(20, 20, []int{0, 40, 0}))

	_, err := newTestCompressor().Compress(context.Background(), in, out, params(0.5, 64))
	require.NoError(t, err)

	g := animtest.ReadGIF(t, out)
	assert.Equal(t, []int{100, 40, 100}, g.Delay)
}

func TestCompress_StillImage(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.png")
	out := filepath.Join(dir, "out.gif")

	img := animtest.Gradient(40, 20, 0)
	img.SetNRGBA(0, 0, color.NRGBA{})
	f, err := os.Create(in)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())

	res, err := newTestCompressor().Compress(context.Background(), in, out, params(0.5, 8))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Frames)

	g := animtest.ReadGIF(t, out)
	require.Len(t, g.Image, 1)
	assert.Equal(t, []int{100}, g.Delay)
	assert.Equal(t, image.Rect(0, 0, 20, 10), g.Image[0].Bounds())
}

func TestCompress_MissingInput(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out.gif")

	_, err := newTestCompressor().Compress(context.Background(), filepath.Join(dir, "nope.gif"), out, DefaultParams())
	assert.ErrorIs(t, err, ErrDecode)
	assert.NoFileExists(t, out)
}

func TestCompress_UndecodableInput(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.gif")
	out := filepath.Join(dir, "out.gif")
	require.NoError(t, os.WriteFile(in, []byte("GIF89a but not really"), 0644))

	_, err := newTestCompressor().Compress(context.Background(), in, out, DefaultParams())
	assert.ErrorIs(t, err, ErrDecode)
	assert.NoFileExists(t, out)
}

func TestCompress_InvalidParams(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.gif")
	out := filepath.Join(dir, "out.gif")
	animtest.WriteGIF(t, in, animtest.GIF(10, 10, []int{10}))

	tests := []struct {
		name   string
		mutate func(*Params)
	}{
		{"zero colors", func(p *Params) { p.MaxColors = 0 }},
		{"too many colors", func(p *Params) { p.MaxColors = 257 }},
		{"zero ratio", func(p *Params) { p.ResizeFactor = 0 }},
		{"negative ratio", func(p *Params) { p.ResizeFactor = -0.5 }},
		{"ratio above one", func(p *Params) { p.ResizeFactor = 1.5 }},
		{"zero quality", func(p *Params) { p.Quality = 0 }},
		{"quality above 100", func(p *Params) { p.Quality = 101 }},
		{"unknown filter", func(p *Params) { p.Filter = "sinc" }},
		{"unknown engine", func(p *Params) { p.Engine = "magick" }},
		{"bad background", func(p *Params) { p.Background = "white" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultParams()
			tt.mutate(&p)

			_, err := newTestCompressor().Compress(context.Background(), in, out, p)
			assert.ErrorIs(t, err, ErrTransform)
			assert.NoFileExists(t, out)
		})
	}

	// Parameters are rejected before the input is even looked at.
	p := DefaultParams()
	p.MaxColors = 0
	_, err := newTestCompressor().Compress(context.Background(), filepath.Join(dir, "missing.gif"), out, p)
	assert.ErrorIs(t, err, ErrTransform)
}

func TestCompress_DegenerateGeometry(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.gif")
	out := filepath.Join(dir, "out.gif")
	animtest.WriteGIF(t, in, animtest.GIF(3, 3, []int{10, 10}))

	_, err := newTestCompressor().Compress(context.Background(), in, out, params(0.1, 16))
	assert.ErrorIs(t, err, ErrTransform)
	assert.NoFileExists(t, out)
}

func TestCompress_UnwritableOutput(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.gif")
	out := filepath.Join(dir, "no-such-dir", "out.gif")
	animtest.WriteGIF(t, in, animtest.GIF(10, 10, []int{10}))

	_, err := newTestCompressor().Compress(context.Background(), in, out, DefaultParams())
	assert.ErrorIs(t, err, ErrEncode)
	assert.NoFileExists(t, out)
}

func TestCompress_Cancelled(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.gif")
	out := filepath.Join(dir, "out.gif")
	animtest.WriteGIF(t, in, animtest.GIF(10, 10, []int{10, 10}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestCompressor().Compress(ctx, in, out, DefaultParams())
	assert.ErrorIs(t, err, context.Canceled)
	assert.NoFileExists(t, out)
}

func TestCompress_InputUnchanged(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.gif")
	out := filepath.Join(dir, "out.gif")
	animtest.WriteGIF(t, in, animtest.GIF(30, 30, []int{10, 20}))

	before, err := os.ReadFile(in)
	require.NoError(t, err)

	_, err = newTestCompressor().Compress(context.Background(), in, out, DefaultParams())
	require.NoError(t, err)

	after, err := os.ReadFile(in)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestReduction(t *testing.T) {
	tests := []struct {
		original, output int64
		want             float64
	}{
		{1000, 250, 0.75},
		{1000, 1000, 0},
		{1000, 1500, -0.5},
		{3, 1, 2.0 / 3.0},
		{0, 10, 0},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Reduction(tt.original, tt.output), "%d -> %d", tt.original, tt.output)
	}

	r := &Result{Reduction: 0.25}
	assert.Equal(t, 25.0, r.PercentageSaved())
}

func TestDefaultParams(t *testing.T) {
	p := DefaultParams()
	assert.Equal(t, 0.8, p.ResizeFactor)
	assert.Equal(t, 128, p.MaxColors)
	assert.Equal(t, 85, p.Quality)
	assert.NoError(t, p.Validate())
}

func TestCompress_TinyInput(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.gif")
	out := filepath.Join(dir, "out.gif")
	g := &gif.GIF{
		Image: []*image.Paletted{animtest.Solid(8, 8, color.Black)},
		Delay: []int{10},
	}
	animtest.WriteGIF(t, in, g)

	p := params(1.0, 256)
	res, err := newTestCompressor().Compress(context.Background(), in, out, p)
	require.NoError(t, err)
	assert.Equal(t, Reduction(res.OriginalSize, res.OutputSize), res.Reduction)
	if res.OutputSize > res.OriginalSize {
		assert.Negative(t, res.Reduction)
	}
}
