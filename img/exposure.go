package img

import (
	"fmt"
	"image"
	"time"
)

// Exposure owns the three planes of one detector readout plus its metadata
// and geometry.  The planes always have identical dimensions; stages mutate
// the exposure in place, except trim/assembly which produces a new one.
type Exposure struct {
	Image    *Image
	Mask     *Mask
	Variance *Image
	Meta     Metadata
	Detector *Detector
}

// NewExposure allocates an exposure with zeroed planes covering r.
func NewExposure(r image.Rectangle, det *Detector) *Exposure {
	return &Exposure{
		Image:    New(r),
		Mask:     NewMask(r),
		Variance: New(r),
		Meta:     make(Metadata),
		Detector: det,
	}
}

// Bounds returns the exposure's pixel bounds.
func (e *Exposure) Bounds() image.Rectangle {
	return e.Image.Rect
}

// CheckPlanes verifies the image/mask/variance dimension invariant.
func (e *Exposure) CheckPlanes() error {
	ir, mr, vr := e.Image.Rect, e.Mask.Rect, e.Variance.Rect
	if ir != mr || ir != vr {
		return fmt.Errorf("%w: image %v mask %v variance %v", ErrGeometry, ir, mr, vr)
	}
	return nil
}

// Applied reports whether a stage provenance marker is present.
func (e *Exposure) Applied(key string) bool {
	return e.Meta.Applied(key)
}

// MarkApplied stamps a stage provenance marker.  Existing markers keep their
// original timestamp.
func (e *Exposure) MarkApplied(key, summary string) {
	e.Meta.MarkApplied(key, summary, time.Now())
}

// ClearApplied removes a stage provenance marker.
func (e *Exposure) ClearApplied(key string) {
	e.Meta.ClearApplied(key)
}
