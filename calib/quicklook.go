package calib

import (
	"image"
	"image/color"
	"image/png"
	"io"
	"math"

	"golang.org/x/image/draw"

	"github.com/oir-lab/goisr/img"
	"github.com/oir-lab/goisr/stats"
)

// Quicklook renders plane as an 8-bit PNG no wider than maxDim on either
// axis, stretched between the 1st and 99th percentile so hot pixels do not
// crush the display.  It is a preview, not a data product.
func Quicklook(w io.Writer, plane *img.Image, maxDim int) error {
	lo, hi := stretchLimits(plane)
	span := hi - lo
	if span <= 0 || math.IsNaN(span) {
		span = 1
	}

	src := image.NewGray(image.Rect(0, 0, plane.Rect.Dx(), plane.Rect.Dy()))
	for y := 0; y < plane.Rect.Dy(); y++ {
		for x := 0; x < plane.Rect.Dx(); x++ {
			v := plane.At(plane.Rect.Min.X+x, plane.Rect.Min.Y+y)
			if math.IsNaN(v) {
				v = lo
			}
			g := (v - lo) / span * 255
			if g < 0 {
				g = 0
			}
			if g > 255 {
				g = 255
			}
			src.SetGray(x, y, color.Gray{Y: uint8(g)})
		}
	}

	dst := src
	if src.Rect.Dx() > maxDim || src.Rect.Dy() > maxDim {
		scale := float64(maxDim) / float64(src.Rect.Dx())
		if sy := float64(maxDim) / float64(src.Rect.Dy()); sy < scale {
			scale = sy
		}
		dw := int(float64(src.Rect.Dx()) * scale)
		dh := int(float64(src.Rect.Dy()) * scale)
		if dw < 1 {
			dw = 1
		}
		if dh < 1 {
			dh = 1
		}
		dst = image.NewGray(image.Rect(0, 0, dw, dh))
		draw.ApproxBiLinear.Scale(dst, dst.Rect, src, src.Rect, draw.Src, nil)
	}
	return png.Encode(w, dst)
}

// stretchLimits returns the 1st and 99th percentile pixel values.
func stretchLimits(plane *img.Image) (lo, hi float64) {
	data := plane.Float64s(nil)
	finite := data[:0]
	for _, v := range data {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			finite = append(finite, v)
		}
	}
	if len(finite) == 0 {
		return 0, 1
	}
	lo = stats.Percentile(finite, 1)
	hi = stats.Percentile(finite, 99)
	return lo, hi
}
