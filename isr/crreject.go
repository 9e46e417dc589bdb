package isr

import (
	"fmt"
	"log"

	"github.com/oir-lab/goisr/detect"
	"github.com/oir-lab/goisr/img"
	"github.com/oir-lab/goisr/stats"
)

// CosmicRayConfig configures cosmic-ray rejection.  A candidate is a small
// contiguous region far above the clipped background; real sources are
// rejected by the pixel-count cut, since a star's footprint at the same
// threshold is much larger than a ray track.
type CosmicRayConfig struct {
	// NSigma is the detection threshold above the clipped background.
	NSigma float64 `yaml:"nsigma"`
	// MaxPixels is the largest footprint still treated as a ray.
	MaxPixels int `yaml:"maxPixels"`
}

// Validate rejects unusable thresholds.
func (c CosmicRayConfig) Validate() error {
	if c.NSigma <= 0 {
		return fmt.Errorf("%w: cosmic-ray threshold %f sigma", ErrInvalidConfig, c.NSigma)
	}
	if c.MaxPixels <= 0 {
		return fmt.Errorf("%w: cosmic-ray max footprint %d pixels", ErrInvalidConfig, c.MaxPixels)
	}
	return nil
}

// RejectCosmicRays masks small above-threshold footprints with the CR plane
// bit and, when interpolation is enabled, fills them and stamps INTRP.
func RejectCosmicRays(e *img.Exposure, cfg CosmicRayConfig, icfg InterpConfig, lg *log.Logger) error {
	if e.Applied(StageCosmicRays) {
		logf(lg, "cosmic-ray rejection already applied, skipping")
		return nil
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	cr, err := e.Mask.AddPlane(img.PlaneCR)
	if err != nil {
		return err
	}

	mean, sd := stats.ClippedMeanStdDev(e.Image.Float64s(nil), 3, 3)
	threshold := mean + cfg.NSigma*sd

	var rays []detect.Footprint
	for _, fp := range detect.FindAbove(e.Image, threshold) {
		if fp.PixelCount() <= cfg.MaxPixels {
			rays = append(rays, fp)
		}
	}
	detect.SetMask(e.Mask, rays, cr)

	// a not-yet-filled neighboring ray must not leak into another ray's
	// estimate, so the CR bit joins the exclusions
	if icfg.Enabled && len(rays) > 0 {
		if err := interpolateMasked(e, rays, icfg, cr, lg); err != nil {
			return err
		}
	}

	e.MarkApplied(StageCosmicRays, fmt.Sprintf("%d cosmic rays rejected above %.1f", len(rays), threshold))
	return nil
}
