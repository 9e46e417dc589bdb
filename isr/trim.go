package isr

import (
	"fmt"
	"log"

	"github.com/oir-lab/goisr/img"
)

// TrimAndAssemble crops each amplifier to its data section and mosaics the
// sections into a new exposure in detector coordinates.  The raw exposure is
// left untouched; callers discard it.  Variance is seeded per amplifier as
// image/gain + (readnoise/gain)², the shot plus read-noise model in raw
// counts.  Overscan section references do not survive into the trimmed
// metadata.
func TrimAndAssemble(e *img.Exposure, lg *log.Logger) (*img.Exposure, error) {
	if e.Applied(StageTrim) {
		logf(lg, "trim already applied, skipping")
		return e, nil
	}
	det := e.Detector
	if det == nil {
		return nil, fmt.Errorf("%w: exposure has no detector geometry", ErrInvalidConfig)
	}

	out := img.NewExposure(det.Bounds(), det)
	for _, amp := range det.Amps {
		if amp.DataBounds.Dx() != amp.DetBounds.Dx() || amp.DataBounds.Dy() != amp.DetBounds.Dy() {
			return nil, fmt.Errorf("%w: amp %s data section %v vs detector section %v",
				ErrGeometryMismatch, amp.Name, amp.DataBounds, amp.DetBounds)
		}
		src := e.Image.SubImage(amp.DataBounds)
		if src.Rect.Dx() != amp.DataBounds.Dx() || src.Rect.Dy() != amp.DataBounds.Dy() {
			return nil, fmt.Errorf("%w: amp %s data section %v exceeds raw frame %v",
				ErrGeometryMismatch, amp.Name, amp.DataBounds, e.Image.Rect)
		}
		dst := out.Image.SubImage(amp.DetBounds)
		if err := dst.CopyFrom(src); err != nil {
			return nil, fmt.Errorf("assembling amp %s: %w", amp.Name, err)
		}

		// carry over any pre-trim mask bits
		srcMask := e.Mask.SubMask(amp.DataBounds)
		dstMask := out.Mask.SubMask(amp.DetBounds)
		for dy := 0; dy < amp.DataBounds.Dy(); dy++ {
			for dx := 0; dx < amp.DataBounds.Dx(); dx++ {
				bits := srcMask.At(amp.DataBounds.Min.X+dx, amp.DataBounds.Min.Y+dy)
				if bits != 0 {
					dstMask.Or(amp.DetBounds.Min.X+dx, amp.DetBounds.Min.Y+dy, bits)
				}
			}
		}

		seedVariance(out, amp)
	}

	for k, v := range e.Meta {
		out.Meta[k] = v
	}
	for _, amp := range det.Amps {
		out.Meta.Remove(img.AmpKey(KeyBiasSec, amp.Name))
	}
	if !out.Meta.Has(img.KeyUnits) {
		out.Meta.SetString(img.KeyUnits, img.UnitADU)
	}

	out.MarkApplied(StageTrim, fmt.Sprintf("trimmed and assembled %d amps into %v", len(det.Amps), det.Bounds()))
	return out, nil
}

// seedVariance fills the amplifier's variance section from the shot-noise
// model.  An amplifier with an unusable gain seeds to zero; the gain stage
// masks it bad.
func seedVariance(e *img.Exposure, amp img.Amp) {
	gain := ampGain(e.Meta, amp)
	if !finitePositive(gain) {
		return
	}
	rn := amp.ReadNoise
	floor := (rn / gain) * (rn / gain)

	im := e.Image.SubImage(amp.DetBounds)
	va := e.Variance.SubImage(amp.DetBounds)
	for y := amp.DetBounds.Min.Y; y < amp.DetBounds.Max.Y; y++ {
		for x := amp.DetBounds.Min.X; x < amp.DetBounds.Max.X; x++ {
			v := im.At(x, y)
			if v < 0 {
				v = 0
			}
			va.Set(x, y, v/gain+floor)
		}
	}
}
