package isr

import (
	"fmt"
	"log"
	"math"

	"github.com/oir-lab/goisr/img"
)

// NormalizeGain divides each amplifier's image by its gain and its variance
// by gain squared, in the same pass, converting the exposure from raw counts
// to electrons.  The UNITS metadata tag is the guard: an exposure already
// tagged electron is skipped, so the conversion happens at most once.  An
// amplifier with a non-finite or non-positive gain is masked fully BAD and
// zeroed rather than spreading NaNs.
func NormalizeGain(e *img.Exposure, lg *log.Logger) error {
	if e.Meta.GetString(img.KeyUnits) == img.UnitElectron {
		logf(lg, "gain already applied, skipping")
		return nil
	}
	if e.Detector == nil {
		return fmt.Errorf("%w: exposure has no detector geometry", ErrInvalidConfig)
	}

	for _, amp := range e.Detector.Amps {
		gain := ampGain(e.Meta, amp)
		if !finitePositive(gain) {
			logf(lg, "amp %s has unusable gain %f, masking bad", amp.Name, gain)
			if err := maskAmpBad(e, amp); err != nil {
				return err
			}
			continue
		}
		e.Image.SubImage(amp.DetBounds).Scale(1 / gain)
		e.Variance.SubImage(amp.DetBounds).Scale(1 / (gain * gain))
	}
	e.Meta.SetString(img.KeyUnits, img.UnitElectron)
	return nil
}

// ampGain resolves an amplifier's gain: the exposure's own recorded
// per-amplifier key wins over the geometry descriptor.
func ampGain(meta img.Metadata, amp img.Amp) float64 {
	if g, ok := meta.GetFloat(img.AmpKey(img.KeyGain, amp.Name)); ok {
		return g
	}
	return amp.Gain
}

func finitePositive(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v > 0
}

// maskAmpBad marks every pixel of the amplifier BAD and zeroes its image and
// variance sections.
func maskAmpBad(e *img.Exposure, amp img.Amp) error {
	bad, err := e.Mask.PlaneBitMask(img.PlaneBad)
	if err != nil {
		return err
	}
	e.Mask.OrRect(amp.DetBounds, bad)
	e.Image.SubImage(amp.DetBounds).Fill(0)
	e.Variance.SubImage(amp.DetBounds).Fill(0)
	return nil
}
