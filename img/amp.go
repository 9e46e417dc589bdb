package img

import (
	"fmt"
	"image"
	"math"
)

// Amp is the immutable geometry descriptor for one readout channel of a
// detector.  RawBounds locates the amplifier's full section (data plus
// overscan) in the raw frame; DataBounds the illuminated pixels within it;
// DetBounds where the trimmed data lands in assembled detector coordinates.
// SerialOverscan and ParallelOverscan are in raw-frame coordinates;
// ParallelOverscan may be empty.
type Amp struct {
	Name string

	RawBounds        image.Rectangle
	DataBounds       image.Rectangle
	DetBounds        image.Rectangle
	SerialOverscan   image.Rectangle
	ParallelOverscan image.Rectangle

	Gain       float64
	ReadNoise  float64
	Saturation float64
}

// GainValid reports whether the amplifier's gain is finite and positive.
func (a Amp) GainValid() bool {
	return !math.IsNaN(a.Gain) && !math.IsInf(a.Gain, 0) && a.Gain > 0
}

// Validate checks that the declared regions are mutually consistent.
func (a Amp) Validate() error {
	if !a.DataBounds.In(a.RawBounds) {
		return fmt.Errorf("%w: amp %s data section %v outside raw section %v",
			ErrGeometry, a.Name, a.DataBounds, a.RawBounds)
	}
	if a.DataBounds.Dx() != a.DetBounds.Dx() || a.DataBounds.Dy() != a.DetBounds.Dy() {
		return fmt.Errorf("%w: amp %s data section %v does not match detector section %v",
			ErrGeometry, a.Name, a.DataBounds, a.DetBounds)
	}
	if !a.SerialOverscan.Empty() && !a.SerialOverscan.In(a.RawBounds) {
		return fmt.Errorf("%w: amp %s serial overscan %v outside raw section %v",
			ErrGeometry, a.Name, a.SerialOverscan, a.RawBounds)
	}
	return nil
}

// Detector describes a sensor as an ordered list of amplifiers plus its
// assembled (trimmed) bounds.
type Detector struct {
	Name string
	Amps []Amp
}

// Bounds returns the union of the amplifiers' detector sections.
func (d *Detector) Bounds() image.Rectangle {
	var r image.Rectangle
	for _, a := range d.Amps {
		r = r.Union(a.DetBounds)
	}
	return r
}

// RawBounds returns the union of the amplifiers' raw sections.
func (d *Detector) RawBounds() image.Rectangle {
	var r image.Rectangle
	for _, a := range d.Amps {
		r = r.Union(a.RawBounds)
	}
	return r
}

// Amp returns the amplifier with the given name.
func (d *Detector) Amp(name string) (Amp, bool) {
	for _, a := range d.Amps {
		if a.Name == name {
			return a, true
		}
	}
	return Amp{}, false
}

// Validate checks every amplifier.
func (d *Detector) Validate() error {
	for _, a := range d.Amps {
		if err := a.Validate(); err != nil {
			return err
		}
	}
	return nil
}
