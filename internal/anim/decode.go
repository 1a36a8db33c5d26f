package anim

import (
	"bufio"
	"bytes"
	"fmt"
	"image"
	"image/gif"
	"os"

	"github.com/disintegration/imaging"
)

var (
	gif87Magic = []byte("GIF87a")
	gif89Magic = []byte("GIF89a")
)

// Decode reads the image at path. GIF files keep all of their frames; any
// other format imaging can read becomes a single-frame animation without
// delay metadata.
func Decode(path string) (*Animation, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}

	r := bufio.NewReader(f)
	magic, _ := r.Peek(len(gif89Magic))

	if bytes.Equal(magic, gif87Magic) || bytes.Equal(magic, gif89Magic) {
		g, err := gif.DecodeAll(r)
		if err != nil {
			return nil, fmt.Errorf("decode gif: %w", err)
		}
		if len(g.Image) == 0 {
			return nil, fmt.Errorf("decode gif: no frames")
		}
		width, height := screenSize(g)
		return &Animation{
			Path:      path,
			Format:    FormatGIF,
			Width:     width,
			Height:    height,
			LoopCount: g.LoopCount,
			Size:      info.Size(),
			gif:       g,
		}, nil
	}

	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	b := img.Bounds()
	if b.Empty() {
		return nil, fmt.Errorf("decode image: empty bounds")
	}
	return &Animation{
		Path:      path,
		Format:    FormatStill,
		Width:     b.Dx(),
		Height:    b.Dy(),
		LoopCount: -1,
		Size:      info.Size(),
		still:     img,
	}, nil
}

// screenSize returns the logical screen size, falling back to the union of
// frame bounds when the header leaves it empty.
func screenSize(g *gif.GIF) (int, int) {
	if g.Config.Width > 0 && g.Config.Height > 0 {
		return g.Config.Width, g.Config.Height
	}
	var r image.Rectangle
	for _, m := range g.Image {
		r = r.Union(m.Bounds())
	}
	return r.Max.X, r.Max.Y
}
