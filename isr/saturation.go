package isr

import (
	"fmt"
	"log"

	"github.com/oir-lab/goisr/detect"
	"github.com/oir-lab/goisr/img"
)

// SaturationConfig configures saturation detection.
type SaturationConfig struct {
	// DefaultLevel is used when neither the exposure metadata nor the
	// amplifier descriptor carries a saturation level.
	DefaultLevel float64 `yaml:"defaultLevel"`
	// GrowPixels inflates each saturated region before masking.
	GrowPixels int `yaml:"growPixels"`
	// ExactGrow selects the exact morphological grow over the cheap
	// bounding-box grow.
	ExactGrow bool `yaml:"exactGrow"`
}

// Validate rejects unusable defaults.
func (c SaturationConfig) Validate() error {
	if c.DefaultLevel <= 0 {
		return fmt.Errorf("%w: saturation default level %f", ErrInvalidConfig, c.DefaultLevel)
	}
	if c.GrowPixels < 0 {
		return fmt.Errorf("%w: saturation grow %d", ErrInvalidConfig, c.GrowPixels)
	}
	return nil
}

// saturationLevel resolves the threshold for one amplifier: the exposure's
// per-amplifier key, then the descriptor, then the policy default with a
// logged warning.  Levels are quoted in raw counts; once the exposure is
// tagged electron the threshold is converted by the same gain the pixels
// were divided by.
func saturationLevel(e *img.Exposure, amp img.Amp, cfg SaturationConfig, lg *log.Logger) float64 {
	level := cfg.DefaultLevel
	if v, ok := e.Meta.GetFloat(img.AmpKey(img.KeySaturate, amp.Name)); ok && v > 0 {
		level = v
	} else if finitePositive(amp.Saturation) {
		level = amp.Saturation
	} else {
		logf(lg, "warning: amp %s has no saturation level, using default %.0f", amp.Name, cfg.DefaultLevel)
	}
	if e.Meta.GetString(img.KeyUnits) == img.UnitElectron {
		if g := ampGain(e.Meta, amp); finitePositive(g) {
			level /= g
		}
	}
	return level
}

// MaskSaturation finds contiguous regions at or above each amplifier's
// saturation threshold, grows them, ORs the SAT bit in, and optionally
// interpolates over them (stamping INTRP).
func MaskSaturation(e *img.Exposure, cfg SaturationConfig, icfg InterpConfig, lg *log.Logger) error {
	if e.Applied(StageSaturation) {
		logf(lg, "saturation masking already applied, skipping")
		return nil
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if e.Detector == nil {
		return fmt.Errorf("%w: exposure has no detector geometry", ErrInvalidConfig)
	}
	sat, err := e.Mask.PlaneBitMask(img.PlaneSat)
	if err != nil {
		return err
	}

	var all []detect.Footprint
	for _, amp := range e.Detector.Amps {
		level := saturationLevel(e, amp, cfg, lg)
		fps := detect.FindAtOrAbove(e.Image.SubImage(amp.DetBounds), level)
		for _, fp := range fps {
			if cfg.GrowPixels > 0 {
				if cfg.ExactGrow {
					fp = fp.Grow(cfg.GrowPixels, e.Bounds())
				} else {
					fp = fp.GrowBBox(cfg.GrowPixels, e.Bounds())
				}
			}
			all = append(all, fp)
		}
	}
	detect.SetMask(e.Mask, all, sat)

	if icfg.Enabled && len(all) > 0 {
		if err := interpolateMasked(e, all, icfg, 0, lg); err != nil {
			return err
		}
	}

	e.MarkApplied(StageSaturation, fmt.Sprintf("%d saturated regions masked", len(all)))
	return nil
}
