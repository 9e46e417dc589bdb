package isr

import (
	"fmt"
	"log"

	"github.com/oir-lab/goisr/img"
)

// FinalizeVariance audits the exposure after the correction sequence: plane
// dimensions must agree, the unit tag must be present and consistent with
// the gain state, and the quality counters are written.  It stamps the
// variance provenance key.
func FinalizeVariance(e *img.Exposure, lg *log.Logger) error {
	if e.Applied(StageVariance) {
		logf(lg, "variance already finalized, skipping")
		return nil
	}
	if err := e.CheckPlanes(); err != nil {
		return err
	}

	units := e.Meta.GetString(img.KeyUnits)
	switch units {
	case img.UnitADU, img.UnitElectron:
	default:
		return fmt.Errorf("%w: unit tag %q", ErrInvalidConfig, units)
	}

	if n := e.Variance.CountNonFinite(); n > 0 {
		logf(lg, "warning: %d non-finite variance pixels", n)
	}

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
	e.Meta.SetInt(KeyNumBad, e.Mask.CountBits(bad))
	e.Meta.SetInt(KeyNumSat, e.Mask.CountBits(sat))
	e.Meta.SetInt(KeyNumInterp, e.Mask.CountBits(intrp))

	e.MarkApplied(StageVariance, fmt.Sprintf("variance finalized, units %s", units))
	return nil
}
