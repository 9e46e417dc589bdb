/*Package calib loads and holds the calibration products the correction
pipeline consumes: master bias/dark/flat/fringe frames (FITS), defect lists
and crosstalk coefficient matrices (YAML).

A Frame is read-only once loaded.  Concurrent pipeline instances may share a
Frame; anything that needs a scaled version must derive a value from it, never
scale its pixels in place.
*/
package calib

import (
	"fmt"

	"github.com/oir-lab/goisr/img"
)

// Kind labels what a calibration frame is.
type Kind string

// Calibration product kinds.
const (
	KindBias   Kind = "bias"
	KindDark   Kind = "dark"
	KindFlat   Kind = "flat"
	KindFringe Kind = "fringe"
	KindIllum  Kind = "illum"
)

// Frame is a previously produced calibration image with its metadata.  The
// scale reference a stage needs (exposure time for darks, mean counts for
// flats) lives in Meta.
type Frame struct {
	Kind  Kind
	Image *img.Image
	Meta  img.Metadata
}

// ExpTime returns the frame's recorded exposure time.
func (f *Frame) ExpTime() (float64, bool) {
	return f.Meta.GetFloat(img.KeyExpTime)
}

// MeanCounts returns the frame's recorded normalization constant.
func (f *Frame) MeanCounts() (float64, bool) {
	return f.Meta.GetFloat(img.KeyMeanCnts)
}

// Filename returns the frame's recorded source filename, or a placeholder
// for frames built in memory.
func (f *Frame) Filename() string {
	if fn := f.Meta.GetString(img.KeyFilename); fn != "" {
		return fn
	}
	return fmt.Sprintf("<in-memory %s>", f.Kind)
}
