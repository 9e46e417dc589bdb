package img

import (
	"errors"
	"fmt"
	"image"
)

// Well-known mask plane names.  Downstream consumers rely on these exact
// strings.
const (
	PlaneBad    = "BAD"
	PlaneSat    = "SAT"
	PlaneInterp = "INTRP"
	PlaneCR     = "CR"
)

// ErrPlanesExhausted is returned when a 17th mask plane is requested.
var ErrPlanesExhausted = errors.New("mask plane dictionary full")

// Mask is a per-pixel bitfield raster with a name→bit dictionary.  Sub-masks
// share both pixel storage and the dictionary with their parent.
type Mask struct {
	Pix    []uint16
	Stride int
	Rect   image.Rectangle

	planes map[string]uint
}

// NewMask allocates a zeroed Mask covering r with the well-known planes
// BAD, SAT and INTRP pre-registered.
func NewMask(r image.Rectangle) *Mask {
	m := &Mask{
		Pix:    make([]uint16, r.Dx()*r.Dy()),
		Stride: r.Dx(),
		Rect:   r,
		planes: make(map[string]uint),
	}
	for _, name := range []string{PlaneBad, PlaneSat, PlaneInterp} {
		m.AddPlane(name)
	}
	return m
}

// AddPlane registers name in the plane dictionary if absent and returns its
// bit mask.
func (m *Mask) AddPlane(name string) (uint16, error) {
	if bit, ok := m.planes[name]; ok {
		return 1 << bit, nil
	}
	bit := uint(len(m.planes))
	if bit >= 16 {
		return 0, fmt.Errorf("%w: cannot add %q", ErrPlanesExhausted, name)
	}
	m.planes[name] = bit
	return 1 << bit, nil
}

// PlaneBitMask returns the bit mask for a registered plane name.
func (m *Mask) PlaneBitMask(name string) (uint16, error) {
	bit, ok := m.planes[name]
	if !ok {
		return 0, fmt.Errorf("unknown mask plane %q", name)
	}
	return 1 << bit, nil
}

// PlaneNames returns the registered plane names.
func (m *Mask) PlaneNames() []string {
	names := make([]string, 0, len(m.planes))
	for k := range m.planes {
		names = append(names, k)
	}
	return names
}

// PixOffset returns the index into Pix for the pixel at (x, y).
func (m *Mask) PixOffset(x, y int) int {
	return (y-m.Rect.Min.Y)*m.Stride + (x - m.Rect.Min.X)
}

// At returns the bitfield at (x, y).
func (m *Mask) At(x, y int) uint16 {
	return m.Pix[m.PixOffset(x, y)]
}

// Or sets bits at (x, y).
func (m *Mask) Or(x, y int, bits uint16) {
	m.Pix[m.PixOffset(x, y)] |= bits
}

// OrRect sets bits on every pixel inside r (clipped to the mask bounds).
func (m *Mask) OrRect(r image.Rectangle, bits uint16) {
	r = r.Intersect(m.Rect)
	for y := r.Min.Y; y < r.Max.Y; y++ {
		i := m.PixOffset(r.Min.X, y)
		row := m.Pix[i : i+r.Dx()]
		for j := range row {
			row[j] |= bits
		}
	}
}

// SubMask returns a view of the pixels inside r sharing storage and the plane
// dictionary with m.
func (m *Mask) SubMask(r image.Rectangle) *Mask {
	r = r.Intersect(m.Rect)
	if r.Empty() {
		return &Mask{planes: m.planes}
	}
	i := m.PixOffset(r.Min.X, r.Min.Y)
	return &Mask{
		Pix:    m.Pix[i:],
		Stride: m.Stride,
		Rect:   r,
		planes: m.planes,
	}
}

// Clone returns a compact deep copy of m.  The plane dictionary is shared.
func (m *Mask) Clone() *Mask {
	out := &Mask{
		Pix:    make([]uint16, m.Rect.Dx()*m.Rect.Dy()),
		Stride: m.Rect.Dx(),
		Rect:   m.Rect,
		planes: m.planes,
	}
	for y := m.Rect.Min.Y; y < m.Rect.Max.Y; y++ {
		src := m.PixOffset(m.Rect.Min.X, y)
		dst := out.PixOffset(m.Rect.Min.X, y)
		copy(out.Pix[dst:dst+m.Rect.Dx()], m.Pix[src:src+m.Rect.Dx()])
	}
	return out
}

// CountBits returns the number of pixels with any of bits set.
func (m *Mask) CountBits(bits uint16) int {
	n := 0
	for y := m.Rect.Min.Y; y < m.Rect.Max.Y; y++ {
		i := m.PixOffset(m.Rect.Min.X, y)
		for _, v := range m.Pix[i : i+m.Rect.Dx()] {
			if v&bits != 0 {
				n++
			}
		}
	}
	return n
}
