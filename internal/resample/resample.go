// Package resample resizes full-color frames with a named filter.
package resample

import (
	"fmt"
	"image"
	"math"
	"sort"

	"github.com/disintegration/imaging"
	"github.com/nfnt/resize"
)

const (
	EngineImaging = "imaging"
	EngineNfnt    = "nfnt"
)

// Resampler resizes an image to exact dimensions.
type Resampler interface {
	Resize(img image.Image, width, height int) *image.NRGBA
}

var imagingFilters = map[string]imaging.ResampleFilter{
	"lanczos":    imaging.Lanczos,
	"catmullrom": imaging.CatmullRom,
	"mitchell":   imaging.MitchellNetravali,
	"linear":     imaging.Linear,
	"box":        imaging.Box,
	"nearest":    imaging.NearestNeighbor,
}

var nfntFilters = map[string]resize.InterpolationFunction{
	"lanczos":    resize.Lanczos3,
	"catmullrom": resize.Bicubic,
	"mitchell":   resize.MitchellNetravali,
	"linear":     resize.Bilinear,
	"box":        resize.Bilinear,
	"nearest":    resize.NearestNeighbor,
}

// New returns the resampler for engine and filter. Empty names select the
// imaging engine and the Lanczos filter.
func New(engine, filter string) (Resampler, error) {
	if filter == "" {
		filter = "lanczos"
	}
	switch engine {
	case "", EngineImaging:
		f, ok := imagingFilters[filter]
		if !ok {
			return nil, fmt.Errorf("unknown resample filter %q (valid: %v)", filter, Filters())
		}
		return imagingResampler{filter: f}, nil
	case EngineNfnt:
		f, ok := nfntFilters[filter]
		if !ok {
			return nil, fmt.Errorf("unknown resample filter %q (valid: %v)", filter, Filters())
		}
		return nfntResampler{interp: f}, nil
	default:
		return nil, fmt.Errorf("unknown resample engine %q (valid: %s, %s)", engine, EngineImaging, EngineNfnt)
	}
}

// Filters lists the accepted filter names.
func Filters() []string {
	names := make([]string, 0, len(imagingFilters))
	for name := range imagingFilters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TargetSize scales width and height by ratio, rounding to the nearest pixel.
func TargetSize(width, height int, ratio float64) (int, int) {
	w := int(math.Round(float64(width) * ratio))
	h := int(math.Round(float64(height) * ratio))
	return w, h
}

type imagingResampler struct {
	filter imaging.ResampleFilter
}

func (r imagingResampler) Resize(img image.Image, width, height int) *image.NRGBA {
	return imaging.Resize(img, width, height, r.filter)
}

type nfntResampler struct {
	interp resize.InterpolationFunction
}

func (r nfntResampler) Resize(img image.Image, width, height int) *image.NRGBA {
	return imaging.Clone(resize.Resize(uint(width), uint(height), img, r.interp))
}
