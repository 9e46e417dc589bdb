/*Package interp fills masked pixel regions using a Gaussian-PSF-weighted
average of the surrounding unmasked pixels.

The smoothing width is given as a PSF FWHM in pixels.  Each target pixel is
estimated from the pixels inside a window of ±2σ that are neither part of the
region being filled nor carry any of the excluded mask bits.  When any pixel
of a region has no usable neighbors the whole region falls back to a
caller-supplied statistic instead of being left undefined.
*/
package interp

import (
	"image"
	"math"

	"github.com/oir-lab/goisr/detect"
	"github.com/oir-lab/goisr/img"
)

// SigmaToFWHM converts a Gaussian sigma to full width at half maximum.
var SigmaToFWHM = 2 * math.Sqrt(2*math.Log(2))

// Result reports what OverFootprints did.
type Result struct {
	// Filled is the total number of pixels written.
	Filled int
	// FellBack is the number of regions filled with the fallback value.
	FellBack int
}

// OverFootprints replaces the pixels of every footprint with PSF-weighted
// estimates.  Pixels carrying excludeBits in the mask do not contribute to
// the estimates, and neither do pixels belonging to the footprint being
// filled.  fallback is used for any region that cannot be estimated.
func OverFootprints(p *img.Image, m *img.Mask, fps []detect.Footprint, fwhm float64, excludeBits uint16, fallback float64) Result {
	sigma := fwhm / SigmaToFWHM
	if sigma <= 0 {
		sigma = 1
	}
	radius := int(math.Ceil(2 * sigma))
	if radius < 1 {
		radius = 1
	}
	inv2s2 := 1 / (2 * sigma * sigma)

	var res Result
	for _, fp := range fps {
		inRegion := regionSet(fp)
		type fill struct {
			x, y int
			v    float64
		}
		fills := make([]fill, 0, fp.PixelCount())
		converged := true

		for _, s := range fp.Spans {
			for x := s.X0; x < s.X1; x++ {
				sum, wsum := 0.0, 0.0
				for dy := -radius; dy <= radius; dy++ {
					for dx := -radius; dx <= radius; dx++ {
						nx, ny := x+dx, s.Y+dy
						pt := image.Point{X: nx, Y: ny}
						if !pt.In(p.Rect) {
							continue
						}
						if inRegion(nx, ny) {
							continue
						}
						if m.At(nx, ny)&excludeBits != 0 {
							continue
						}
						w := math.Exp(-float64(dx*dx+dy*dy) * inv2s2)
						sum += w * p.At(nx, ny)
						wsum += w
					}
				}
				if wsum <= 0 {
					converged = false
				} else {
					fills = append(fills, fill{x: x, y: s.Y, v: sum / wsum})
				}
			}
		}

		if !converged {
			// region-level fallback: every pixel gets the fallback statistic
			for _, s := range fp.Spans {
				for x := s.X0; x < s.X1; x++ {
					p.Set(x, s.Y, fallback)
					res.Filled++
				}
			}
			res.FellBack++
			continue
		}
		for _, f := range fills {
			p.Set(f.x, f.y, f.v)
			res.Filled++
		}
	}
	return res
}

// regionSet returns a membership test for the footprint's pixels.
func regionSet(fp detect.Footprint) func(x, y int) bool {
	set := make(map[[2]int]struct{}, fp.PixelCount())
	for _, s := range fp.Spans {
		for x := s.X0; x < s.X1; x++ {
			set[[2]int{x, s.Y}] = struct{}{}
		}
	}
	return func(x, y int) bool {
		_, ok := set[[2]int{x, y}]
		return ok
	}
}
