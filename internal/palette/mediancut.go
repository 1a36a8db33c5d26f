package palette

import (
	"image"
	"image/color"
	"sort"

	"github.com/soniakeys/quant/median"
)

// MedianCut is an adaptive draw.Quantizer. Images that already fit the limit
// keep their exact colors, most frequent first; larger ones are reduced with
// median cut.
type MedianCut struct {
	MaxColors int
}

// Quantize appends at most MaxColors colors to p, further limited by the
// spare capacity of p when it has any.
func (q MedianCut) Quantize(p color.Palette, m image.Image) color.Palette {
	limit := q.MaxColors
	if limit <= 0 || limit > MaxColors {
		limit = MaxColors
	}
	if spare := cap(p) - len(p); spare > 0 && spare < limit {
		limit = spare
	}

	hist := Histogram(m)
	if len(hist) <= limit {
		keys := sortedKeys(hist)
		sort.SliceStable(keys, func(i, j int) bool { return hist[keys[i]] > hist[keys[j]] })
		for _, k := range keys {
			p = append(p, color.RGBA{R: uint8(k >> 16), G: uint8(k >> 8), B: uint8(k), A: 255})
		}
		return p
	}

	reduced := median.Quantizer(limit).Quantize(nil, m)
	if len(reduced) > limit {
		reduced = reduced[:limit]
	}
	for _, c := range reduced {
		r, g, b, _ := c.RGBA()
		p = append(p, color.RGBA{R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(b >> 8), A: 255})
	}
	return p
}
