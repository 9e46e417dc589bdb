package isr

import (
	"fmt"
	"log"

	"github.com/oir-lab/goisr/img"
	"github.com/oir-lab/goisr/stats"
)

// FitType selects the overscan offset model.
type FitType string

// Overscan fit types.  FitPoly is declared for configuration compatibility
// but not implemented.
const (
	FitMean   FitType = "MEAN"
	FitMedian FitType = "MEDIAN"
	FitPoly   FitType = "POLY"
)

// OverscanConfig configures the overscan stage.
type OverscanConfig struct {
	// Fit is the offset model applied per amplifier.
	Fit FitType `yaml:"fit"`
}

// Validate rejects unknown fit types.  FitPoly passes validation and fails
// at execution, so a config carrying it is diagnosed where it bites.
func (c OverscanConfig) Validate() error {
	switch c.Fit {
	case FitMean, FitMedian, FitPoly:
		return nil
	default:
		return fmt.Errorf("%w: overscan fit type %q", ErrInvalidConfig, c.Fit)
	}
}

// CorrectOverscan estimates the electronic offset of each amplifier from its
// overscan section and subtracts it from the amplifier's full raw section.
// Amplifiers are independent; no model is shared between them.  The
// per-amplifier overscan section key is removed from the metadata.  On
// failure the exposure is left unstamped so the stage can be retried.
func CorrectOverscan(e *img.Exposure, cfg OverscanConfig, lg *log.Logger) error {
	if e.Applied(StageOverscan) {
		logf(lg, "overscan already applied, skipping")
		return nil
	}
	switch cfg.Fit {
	case FitMean, FitMedian:
	case FitPoly:
		return fmt.Errorf("%w: overscan fit type POLY", ErrNotImplemented)
	default:
		return fmt.Errorf("%w: overscan fit type %q", ErrInvalidConfig, cfg.Fit)
	}
	if e.Detector == nil {
		return fmt.Errorf("%w: exposure has no detector geometry", ErrInvalidConfig)
	}

	for _, amp := range e.Detector.Amps {
		if amp.SerialOverscan.Empty() && amp.ParallelOverscan.Empty() {
			return fmt.Errorf("%w: amp %s has no overscan section", ErrGeometryMismatch, amp.Name)
		}
		var data []float64
		if !amp.SerialOverscan.Empty() {
			data = e.Image.SubImage(amp.SerialOverscan).Float64s(data)
		}
		if !amp.ParallelOverscan.Empty() {
			data = e.Image.SubImage(amp.ParallelOverscan).Float64s(data)
		}

		var offset float64
		switch cfg.Fit {
		case FitMean:
			offset = stats.Mean(data)
		case FitMedian:
			offset = stats.Median(data)
		}

		// the offset comes off the whole amp section, not just the strip
		e.Image.SubImage(amp.RawBounds).AddScalar(-offset)
		e.Meta.SetFloat(img.AmpKey("OSCNLVL", amp.Name), offset)
		e.Meta.Remove(img.AmpKey(KeyBiasSec, amp.Name))
	}

	e.MarkApplied(StageOverscan, fmt.Sprintf("overscan corrected, fit %s, %d amps", cfg.Fit, len(e.Detector.Amps)))
	return nil
}

// logf writes through lg, or the default logger when lg is nil.
func logf(lg *log.Logger, format string, args ...interface{}) {
	if lg == nil {
		log.Printf(format, args...)
		return
	}
	lg.Printf(format, args...)
}
