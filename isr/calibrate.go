package isr

import (
	"fmt"
	"log"
	"math"

	"github.com/oir-lab/goisr/calib"
	"github.com/oir-lab/goisr/img"
	"github.com/oir-lab/goisr/stats"
)

// FlatPolicy selects how the flat normalization scalar is computed.
type FlatPolicy string

// Flat scaling policies.
const (
	FlatMean   FlatPolicy = "MEAN"
	FlatMedian FlatPolicy = "MEDIAN"
	FlatUser   FlatPolicy = "USER"
)

// FlatConfig configures flat-field division.
type FlatConfig struct {
	Policy FlatPolicy `yaml:"policy"`
	// UserValue is the normalization used under the USER policy.
	UserValue float64 `yaml:"userValue"`
}

// Validate rejects unknown policies and unusable user values.
func (c FlatConfig) Validate() error {
	switch c.Policy {
	case FlatMean, FlatMedian:
		return nil
	case FlatUser:
		if math.IsNaN(c.UserValue) || math.IsInf(c.UserValue, 0) || c.UserValue == 0 {
			return fmt.Errorf("%w: flat user normalization %f", ErrNonFinite, c.UserValue)
		}
		return nil
	default:
		return fmt.Errorf("%w: flat scaling policy %q", ErrInvalidConfig, c.Policy)
	}
}

// checkFrame verifies the calibration frame covers the exposure's geometry.
func checkFrame(e *img.Exposure, f *calib.Frame) error {
	if f == nil || f.Image == nil {
		return fmt.Errorf("%w: nil calibration frame", ErrInvalidConfig)
	}
	if f.Image.Rect.Dx() != e.Image.Rect.Dx() || f.Image.Rect.Dy() != e.Image.Rect.Dy() {
		return fmt.Errorf("%w: %s frame %v vs exposure %v",
			ErrGeometryMismatch, f.Kind, f.Image.Rect, e.Image.Rect)
	}
	return nil
}

// SubtractBias subtracts the bias frame pixel-for-pixel.  No scaling, no
// variance change.
func SubtractBias(e *img.Exposure, bias *calib.Frame, lg *log.Logger) error {
	if e.Applied(StageBias) {
		logf(lg, "bias already applied, skipping")
		return nil
	}
	if err := checkFrame(e, bias); err != nil {
		return err
	}
	if err := e.Image.Sub(bias.Image); err != nil {
		return err
	}
	e.MarkApplied(StageBias, fmt.Sprintf("bias subtracted, frame %s", bias.Filename()))
	return nil
}

// SubtractDark subtracts the dark frame scaled by the ratio of the two
// recorded exposure times.  Both frames must carry the exposure-time key.
// The subtraction is additive; variance is unchanged.
func SubtractDark(e *img.Exposure, dark *calib.Frame, lg *log.Logger) error {
	if e.Applied(StageDark) {
		logf(lg, "dark already applied, skipping")
		return nil
	}
	if err := checkFrame(e, dark); err != nil {
		return err
	}
	expTime, ok := e.Meta.GetFloat(img.KeyExpTime)
	if !ok {
		return fmt.Errorf("%w: exposure has no %s", ErrMissingKey, img.KeyExpTime)
	}
	darkTime, ok := dark.ExpTime()
	if !ok {
		return fmt.Errorf("%w: dark frame has no %s", ErrMissingKey, img.KeyExpTime)
	}
	if darkTime <= 0 || math.IsNaN(darkTime) || math.IsInf(darkTime, 0) {
		return fmt.Errorf("%w: dark exposure time %f", ErrNonFinite, darkTime)
	}
	scale := expTime / darkTime
	if err := e.Image.SubScaled(scale, dark.Image); err != nil {
		return err
	}
	e.MarkApplied(StageDark, fmt.Sprintf("dark subtracted, scale %.4f, frame %s", scale, dark.Filename()))
	return nil
}

// flatNorm computes the flat normalization scalar for the configured policy.
func flatNorm(flat *calib.Frame, cfg FlatConfig) (float64, error) {
	switch cfg.Policy {
	case FlatMean:
		return stats.Mean(flat.Image.Float64s(nil)), nil
	case FlatMedian:
		return stats.Median(flat.Image.Float64s(nil)), nil
	case FlatUser:
		return cfg.UserValue, nil
	default:
		return 0, fmt.Errorf("%w: flat scaling policy %q", ErrInvalidConfig, cfg.Policy)
	}
}

// DivideFlat divides the image by flat/norm and the variance by (flat/norm)²
// in the same pass.
func DivideFlat(e *img.Exposure, flat *calib.Frame, cfg FlatConfig, lg *log.Logger) error {
	if e.Applied(StageFlat) {
		logf(lg, "flat already applied, skipping")
		return nil
	}
	if err := checkFrame(e, flat); err != nil {
		return err
	}
	norm, err := flatNorm(flat, cfg)
	if err != nil {
		return err
	}
	if math.IsNaN(norm) || math.IsInf(norm, 0) || norm == 0 {
		return fmt.Errorf("%w: flat normalization %f", ErrNonFinite, norm)
	}
	if err := e.Image.DivNormalized(flat.Image, norm); err != nil {
		return err
	}
	if err := e.Variance.DivNormalizedSq(flat.Image, norm); err != nil {
		return err
	}
	e.MarkApplied(StageFlat, fmt.Sprintf("flat divided, policy %s, norm %.4f, frame %s",
		cfg.Policy, norm, flat.Filename()))
	return nil
}

// DivideIllum divides the image by the illumination correction frame scaled
// to unit mean, the same arithmetic as a flat with a MEAN policy but stamped
// under its own provenance key.
func DivideIllum(e *img.Exposure, illum *calib.Frame, lg *log.Logger) error {
	if e.Applied(StageIllum) {
		logf(lg, "illumination correction already applied, skipping")
		return nil
	}
	if err := checkFrame(e, illum); err != nil {
		return err
	}
	norm := stats.Mean(illum.Image.Float64s(nil))
	if math.IsNaN(norm) || math.IsInf(norm, 0) || norm == 0 {
		return fmt.Errorf("%w: illumination normalization %f", ErrNonFinite, norm)
	}
	if err := e.Image.DivNormalized(illum.Image, norm); err != nil {
		return err
	}
	if err := e.Variance.DivNormalizedSq(illum.Image, norm); err != nil {
		return err
	}
	e.MarkApplied(StageIllum, fmt.Sprintf("illumination corrected, frame %s", illum.Filename()))
	return nil
}

// CorrectFringe is declared for completeness; no fringe model is defined.
func CorrectFringe(e *img.Exposure, fringe *calib.Frame, lg *log.Logger) error {
	if e.Applied(StageFringe) {
		logf(lg, "fringe already applied, skipping")
		return nil
	}
	return fmt.Errorf("%w: fringe correction", ErrNotImplemented)
}
