/*Package img provides the in-memory data model for detector exposures.

An Exposure owns three planes of identical dimensions: an image plane of
float64 pixel values, a mask plane of named bitfields, and a variance plane.
Planes are strided row-major buffers addressed in detector coordinates with
stdlib image.Rectangle bounds, so a sub-plane is a view sharing the parent's
storage, the same way image.Gray.SubImage works.
*/
package img

import (
	"errors"
	"fmt"
	"image"
	"math"
)

// ErrGeometry is returned when two planes or regions that must have identical
// dimensions do not.
var ErrGeometry = errors.New("geometry mismatch")

// Image is a single-channel float64 raster.  Rect anchors the buffer in
// detector coordinates; Pix[0] corresponds to Rect.Min.
type Image struct {
	Pix    []float64
	Stride int
	Rect   image.Rectangle
}

// New allocates a zero-filled Image covering r.
func New(r image.Rectangle) *Image {
	return &Image{
		Pix:    make([]float64, r.Dx()*r.Dy()),
		Stride: r.Dx(),
		Rect:   r,
	}
}

// NewFilled allocates an Image covering r with every pixel set to v.
func NewFilled(r image.Rectangle, v float64) *Image {
	p := New(r)
	for i := range p.Pix {
		p.Pix[i] = v
	}
	return p
}

// PixOffset returns the index into Pix for the pixel at (x, y) in detector
// coordinates.
func (p *Image) PixOffset(x, y int) int {
	return (y-p.Rect.Min.Y)*p.Stride + (x - p.Rect.Min.X)
}

// At returns the pixel value at (x, y).
func (p *Image) At(x, y int) float64 {
	return p.Pix[p.PixOffset(x, y)]
}

// Set assigns the pixel value at (x, y).
func (p *Image) Set(x, y int, v float64) {
	p.Pix[p.PixOffset(x, y)] = v
}

// SubImage returns a view of the pixels inside r sharing storage with p.
func (p *Image) SubImage(r image.Rectangle) *Image {
	r = r.Intersect(p.Rect)
	if r.Empty() {
		return &Image{}
	}
	i := p.PixOffset(r.Min.X, r.Min.Y)
	return &Image{
		Pix:    p.Pix[i:],
		Stride: p.Stride,
		Rect:   r,
	}
}

// Clone returns a compact deep copy of p.
func (p *Image) Clone() *Image {
	out := New(p.Rect)
	for y := p.Rect.Min.Y; y < p.Rect.Max.Y; y++ {
		src := p.PixOffset(p.Rect.Min.X, y)
		dst := out.PixOffset(p.Rect.Min.X, y)
		copy(out.Pix[dst:dst+p.Rect.Dx()], p.Pix[src:src+p.Rect.Dx()])
	}
	return out
}

// Float64s appends every pixel of p to buf in row-major order and returns the
// extended slice.  It exists so statistics can be computed over views without
// callers knowing about strides.
func (p *Image) Float64s(buf []float64) []float64 {
	for y := p.Rect.Min.Y; y < p.Rect.Max.Y; y++ {
		i := p.PixOffset(p.Rect.Min.X, y)
		buf = append(buf, p.Pix[i:i+p.Rect.Dx()]...)
	}
	return buf
}

// each applies f to every pixel in place.
func (p *Image) each(f func(float64) float64) {
	for y := p.Rect.Min.Y; y < p.Rect.Max.Y; y++ {
		i := p.PixOffset(p.Rect.Min.X, y)
		row := p.Pix[i : i+p.Rect.Dx()]
		for j := range row {
			row[j] = f(row[j])
		}
	}
}

// AddScalar adds v to every pixel.
func (p *Image) AddScalar(v float64) {
	p.each(func(x float64) float64 { return x + v })
}

// Scale multiplies every pixel by k.
func (p *Image) Scale(k float64) {
	p.each(func(x float64) float64 { return x * k })
}

// Fill sets every pixel to v.
func (p *Image) Fill(v float64) {
	p.each(func(float64) float64 { return v })
}

// sameDims reports whether two images cover rectangles of equal size.
func sameDims(a, b *Image) bool {
	return a.Rect.Dx() == b.Rect.Dx() && a.Rect.Dy() == b.Rect.Dy()
}

// binary walks a and o in lockstep, storing f(a, o) into a.  The images need
// not share bounds, only dimensions.
func (p *Image) binary(o *Image, f func(a, b float64) float64) error {
	if !sameDims(p, o) {
		return fmt.Errorf("%w: %v vs %v", ErrGeometry, p.Rect, o.Rect)
	}
	w := p.Rect.Dx()
	for dy := 0; dy < p.Rect.Dy(); dy++ {
		i := p.PixOffset(p.Rect.Min.X, p.Rect.Min.Y+dy)
		j := o.PixOffset(o.Rect.Min.X, o.Rect.Min.Y+dy)
		pr := p.Pix[i : i+w]
		or := o.Pix[j : j+w]
		for k := range pr {
			pr[k] = f(pr[k], or[k])
		}
	}
	return nil
}

// Sub subtracts o from p pixel-for-pixel.
func (p *Image) Sub(o *Image) error {
	return p.binary(o, func(a, b float64) float64 { return a - b })
}

// SubScaled subtracts k*o from p pixel-for-pixel.
func (p *Image) SubScaled(k float64, o *Image) error {
	return p.binary(o, func(a, b float64) float64 { return a - k*b })
}

// DivNormalized divides p by o/norm pixel-for-pixel, i.e. multiplies by
// norm/o.  Zero pixels in o yield NaN, which the caller is expected to mask.
func (p *Image) DivNormalized(o *Image, norm float64) error {
	return p.binary(o, func(a, b float64) float64 { return a * norm / b })
}

// DivNormalizedSq divides p by (o/norm)² pixel-for-pixel.  Used for variance
// planes alongside DivNormalized on the image plane.
func (p *Image) DivNormalizedSq(o *Image, norm float64) error {
	return p.binary(o, func(a, b float64) float64 {
		r := norm / b
		return a * r * r
	})
}

// CopyFrom copies o's pixels into p.  Dimensions must match; bounds need not.
func (p *Image) CopyFrom(o *Image) error {
	return p.binary(o, func(_, b float64) float64 { return b })
}

// CountNonFinite returns the number of NaN or Inf pixels.
func (p *Image) CountNonFinite() int {
	n := 0
	for y := p.Rect.Min.Y; y < p.Rect.Max.Y; y++ {
		i := p.PixOffset(p.Rect.Min.X, y)
		for _, v := range p.Pix[i : i+p.Rect.Dx()] {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				n++
			}
		}
	}
	return n
}
