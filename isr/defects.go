package isr

import (
	"fmt"
	"image"
	"log"

	"github.com/oir-lab/goisr/detect"
	"github.com/oir-lab/goisr/img"
	"github.com/oir-lab/goisr/interp"
	"github.com/oir-lab/goisr/stats"
)

// InterpConfig configures masked-pixel interpolation shared by the defect,
// saturation, and cosmic-ray stages.
type InterpConfig struct {
	Enabled bool `yaml:"enabled"`
	// PSFFWHM is the smoothing width in pixels.
	PSFFWHM float64 `yaml:"psfFwhm"`
}

// Validate rejects unusable widths.
func (c InterpConfig) Validate() error {
	if c.Enabled && c.PSFFWHM <= 0 {
		return fmt.Errorf("%w: interpolation PSF FWHM %f", ErrInvalidConfig, c.PSFFWHM)
	}
	return nil
}

// MaskDefects ORs the BAD bit into every pixel of every defect box and, when
// interpolation is enabled, fills those pixels and marks them INTRP.
func MaskDefects(e *img.Exposure, defects []image.Rectangle, cfg InterpConfig, lg *log.Logger) error {
	if e.Applied(StageDefects) {
		logf(lg, "defect masking already applied, skipping")
		return nil
	}
	bad, err := e.Mask.PlaneBitMask(img.PlaneBad)
	if err != nil {
		return err
	}

	fps := make([]detect.Footprint, 0, len(defects))
	for _, d := range defects {
		boxed := d.Intersect(e.Bounds())
		if boxed.Empty() {
			continue
		}
		e.Mask.OrRect(boxed, bad)
		fps = append(fps, detect.FromRect(boxed))
	}

	if cfg.Enabled && len(fps) > 0 {
		if err := interpolateMasked(e, fps, cfg, 0, lg); err != nil {
			return err
		}
	}

	e.MarkApplied(StageDefects, fmt.Sprintf("%d defect regions masked", len(fps)))
	return nil
}

// interpolateMasked fills the footprints' pixels and stamps INTRP.  Pixels
// flagged BAD or SAT, or carrying any of the caller's extra bits, do not
// contribute to the estimates; regions with no usable neighbors fall back
// to the clipped mean of the image.
func interpolateMasked(e *img.Exposure, fps []detect.Footprint, cfg InterpConfig, exclude uint16, lg *log.Logger) error {
	bad, err := e.Mask.PlaneBitMask(img.PlaneBad)
	if err != nil {
		return err
	}
	sat, err := e.Mask.PlaneBitMask(img.PlaneSat)
	if err != nil {
		return err
	}
	intrp, err := e.Mask.PlaneBitMask(img.PlaneInterp)
	if err != nil {
		return err
	}

	fallback := stats.ClippedMean(e.Image.Float64s(nil), 3, 3)
	res := interp.OverFootprints(e.Image, e.Mask, fps, cfg.PSFFWHM, bad|sat|exclude, fallback)
	detect.SetMask(e.Mask, fps, intrp)
	if res.FellBack > 0 {
		logf(lg, "%d regions fell back to clipped mean %.2f", res.FellBack, fallback)
	}
	return nil
}
