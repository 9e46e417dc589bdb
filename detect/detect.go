/*Package detect finds connected above-threshold regions ("footprints") in an
image plane and stamps them into mask planes.

Footprints are stored as row runs, which keeps detection a single pass over
the pixels and makes mask stamping and growing cheap.  Connectivity is
4-neighbor: two runs touch when they share a column on adjacent rows.
*/
package detect

import (
	"image"

	"github.com/oir-lab/goisr/img"
)

// Span is a horizontal run of pixels on row Y covering columns [X0, X1).
type Span struct {
	Y, X0, X1 int
}

// Footprint is a connected region described by its row runs and their
// bounding box.
type Footprint struct {
	Bounds image.Rectangle
	Spans  []Span
}

// PixelCount returns the number of pixels inside the footprint.
func (f Footprint) PixelCount() int {
	n := 0
	for _, s := range f.Spans {
		n += s.X1 - s.X0
	}
	return n
}

// PeakValue returns the maximum pixel value inside the footprint.
func (f Footprint) PeakValue(p *img.Image) float64 {
	peak := 0.0
	first := true
	for _, s := range f.Spans {
		for x := s.X0; x < s.X1; x++ {
			v := p.At(x, s.Y)
			if first || v > peak {
				peak = v
				first = false
			}
		}
	}
	return peak
}

// GrowBBox returns a footprint covering f's bounding box inflated by n pixels
// on every side, clipped to clip.  This is the cheap grow: it fills the whole
// inflated box rather than dilating the exact shape.
func (f Footprint) GrowBBox(n int, clip image.Rectangle) Footprint {
	b := f.Bounds.Inset(-n).Intersect(clip)
	out := Footprint{Bounds: b}
	for y := b.Min.Y; y < b.Max.Y; y++ {
		out.Spans = append(out.Spans, Span{Y: y, X0: b.Min.X, X1: b.Max.X})
	}
	return out
}

// Grow returns f dilated by n pixels in the Chebyshev metric, clipped to
// clip.  This is the exact morphological grow; prefer GrowBBox when the
// precision is not needed.
func (f Footprint) Grow(n int, clip image.Rectangle) Footprint {
	if n <= 0 {
		return f
	}
	b := f.Bounds.Inset(-n).Intersect(clip)
	if b.Empty() {
		return Footprint{}
	}
	w, h := b.Dx(), b.Dy()
	grid := make([]bool, w*h)
	for _, s := range f.Spans {
		for dy := -n; dy <= n; dy++ {
			y := s.Y + dy
			if y < b.Min.Y || y >= b.Max.Y {
				continue
			}
			x0, x1 := s.X0-n, s.X1+n
			if x0 < b.Min.X {
				x0 = b.Min.X
			}
			if x1 > b.Max.X {
				x1 = b.Max.X
			}
			row := (y - b.Min.Y) * w
			for x := x0; x < x1; x++ {
				grid[row+x-b.Min.X] = true
			}
		}
	}
	return footprintFromGrid(grid, b)
}

func footprintFromGrid(grid []bool, b image.Rectangle) Footprint {
	w := b.Dx()
	out := Footprint{}
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := (y - b.Min.Y) * w
		x := b.Min.X
		for x < b.Max.X {
			if !grid[row+x-b.Min.X] {
				x++
				continue
			}
			x0 := x
			for x < b.Max.X && grid[row+x-b.Min.X] {
				x++
			}
			s := Span{Y: y, X0: x0, X1: x}
			out.Spans = append(out.Spans, s)
			out.Bounds = out.Bounds.Union(image.Rect(s.X0, s.Y, s.X1, s.Y+1))
		}
	}
	return out
}

// FindAbove returns the footprints of all contiguous regions whose pixel
// value strictly exceeds threshold.
func FindAbove(p *img.Image, threshold float64) []Footprint {
	return find(p, func(v float64) bool { return v > threshold })
}

// FindAtOrAbove is FindAbove with an inclusive threshold.
func FindAtOrAbove(p *img.Image, threshold float64) []Footprint {
	return find(p, func(v float64) bool { return v >= threshold })
}

type run struct {
	span   Span
	parent int
}

func find(p *img.Image, hit func(float64) bool) []Footprint {
	var runs []run
	// previous row's run indices, ordered by X0
	var prev, cur []int

	for y := p.Rect.Min.Y; y < p.Rect.Max.Y; y++ {
		cur = cur[:0]
		x := p.Rect.Min.X
		for x < p.Rect.Max.X {
			if !hit(p.At(x, y)) {
				x++
				continue
			}
			x0 := x
			for x < p.Rect.Max.X && hit(p.At(x, y)) {
				x++
			}
			idx := len(runs)
			runs = append(runs, run{span: Span{Y: y, X0: x0, X1: x}, parent: idx})
			cur = append(cur, idx)
			// merge with overlapping runs on the previous row
			for _, pi := range prev {
				ps := runs[pi].span
				if ps.X0 < x && x0 < ps.X1 {
					union(runs, pi, idx)
				}
			}
		}
		prev = append(prev[:0], cur...)
	}

	groups := make(map[int]*Footprint)
	order := []int{}
	for i := range runs {
		root := findRoot(runs, i)
		fp, ok := groups[root]
		if !ok {
			fp = &Footprint{}
			groups[root] = fp
			order = append(order, root)
		}
		s := runs[i].span
		fp.Spans = append(fp.Spans, s)
		fp.Bounds = fp.Bounds.Union(image.Rect(s.X0, s.Y, s.X1, s.Y+1))
	}
	out := make([]Footprint, 0, len(order))
	for _, root := range order {
		out = append(out, *groups[root])
	}
	return out
}

func findRoot(runs []run, i int) int {
	for runs[i].parent != i {
		runs[i].parent = runs[runs[i].parent].parent
		i = runs[i].parent
	}
	return i
}

func union(runs []run, a, b int) {
	ra, rb := findRoot(runs, a), findRoot(runs, b)
	if ra != rb {
		runs[rb].parent = ra
	}
}

// SetMask ORs bits into m for every pixel of every footprint.
func SetMask(m *img.Mask, fps []Footprint, bits uint16) {
	for _, fp := range fps {
		for _, s := range fp.Spans {
			for x := s.X0; x < s.X1; x++ {
				if (image.Point{X: x, Y: s.Y}).In(m.Rect) {
					m.Or(x, s.Y, bits)
				}
			}
		}
	}
}

// FromRect returns a footprint covering r.
func FromRect(r image.Rectangle) Footprint {
	fp := Footprint{Bounds: r}
	for y := r.Min.Y; y < r.Max.Y; y++ {
		fp.Spans = append(fp.Spans, Span{Y: y, X0: r.Min.X, X1: r.Max.X})
	}
	return fp
}
