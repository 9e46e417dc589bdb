package isr

import (
	"fmt"
	"log"

	"github.com/oir-lab/goisr/calib"
	"github.com/oir-lab/goisr/img"
)

// CorrectCrosstalk subtracts the leakage from every other amplifier out of
// each amplifier, using coeffs[source][target].  Source signal is read from a
// snapshot taken before any amplifier is modified, so the result does not
// depend on amplifier order.  Amplifiers with unusable gains are masked fully
// BAD, zeroed, and take no part in the correction as source or target.
func CorrectCrosstalk(e *img.Exposure, m *calib.CrosstalkMatrix, lg *log.Logger) error {
	if e.Applied(StageCrosstalk) {
		logf(lg, "crosstalk already applied, skipping")
		return nil
	}
	if e.Detector == nil {
		return fmt.Errorf("%w: exposure has no detector geometry", ErrInvalidConfig)
	}
	if err := m.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	index := make(map[string]int, len(m.Amps))
	for i, name := range m.Amps {
		index[name] = i
	}

	amps := e.Detector.Amps
	usable := make([]bool, len(amps))
	snapshot := make([]*img.Image, len(amps))
	for i, amp := range amps {
		if _, ok := index[amp.Name]; !ok {
			return fmt.Errorf("%w: amp %s absent from crosstalk matrix", ErrMissingKey, amp.Name)
		}
		if !finitePositive(ampGain(e.Meta, amp)) {
			logf(lg, "amp %s has unusable gain, excluded from crosstalk", amp.Name)
			if err := maskAmpBad(e, amp); err != nil {
				return err
			}
			continue
		}
		usable[i] = true
		snapshot[i] = e.Image.SubImage(amp.DetBounds).Clone()
	}

	for ti, target := range amps {
		if !usable[ti] {
			continue
		}
		dst := e.Image.SubImage(target.DetBounds)
		for si, source := range amps {
			if si == ti || !usable[si] {
				continue
			}
			c := m.Coeffs[index[source.Name]][index[target.Name]]
			if c == 0 {
				continue
			}
			if err := dst.SubScaled(c, snapshot[si]); err != nil {
				return fmt.Errorf("crosstalk %s -> %s: %w", source.Name, target.Name, err)
			}
		}
	}

	e.MarkApplied(StageCrosstalk, fmt.Sprintf("crosstalk corrected, %d amps", len(amps)))
	return nil
}
