/*Package isr implements the instrument signature removal pipeline: the
ordered per-amplifier and per-detector corrections that turn a raw
multi-amplifier readout into a linear, uniformly calibrated exposure with
mask and variance planes.

Stages are plain functions over an img.Exposure so they can be exercised one
at a time; Pipeline runs the full ordered sequence with a configuration
validated once up front.  Every stage checks a provenance marker in the
exposure metadata before running and stamps it on success, so re-running a
stage is a logged no-op.  There is no rollback: a failed stage leaves the
exposure in its last-good partial state for diagnosis.
*/
package isr

import (
	"fmt"
	"image"
	"log"

	"github.com/oir-lab/goisr/calib"
	"github.com/oir-lab/goisr/img"
)

// Config is the single validated configuration for a pipeline instance.
// Every stage default is enumerated here rather than inline at call sites.
type Config struct {
	Overscan       OverscanConfig       `yaml:"overscan"`
	Flat           FlatConfig           `yaml:"flat"`
	Saturation     SaturationConfig     `yaml:"saturation"`
	Interp         InterpConfig         `yaml:"interp"`
	Linearity      LinearityConfig      `yaml:"linearity"`
	CosmicRay      CosmicRayConfig      `yaml:"cosmicRay"`
	BrighterFatter BrighterFatterConfig `yaml:"brighterFatter"`

	// DoCosmicRays and DoBrighterFatter gate the optional stages.
	DoCosmicRays     bool `yaml:"doCosmicRays"`
	DoBrighterFatter bool `yaml:"doBrighterFatter"`

	// Verbose enables the skip and fallback log lines.
	Verbose bool `yaml:"verbose"`
}

// DefaultConfig returns a working configuration for a typical detector.
func DefaultConfig() Config {
	return Config{
		Overscan:       OverscanConfig{Fit: FitMedian},
		Flat:           FlatConfig{Policy: FlatMean},
		Saturation:     SaturationConfig{DefaultLevel: 65535, GrowPixels: 1},
		Interp:         InterpConfig{Enabled: true, PSFFWHM: 2},
		CosmicRay:      CosmicRayConfig{NSigma: 6, MaxPixels: 12},
		BrighterFatter: BrighterFatterConfig{MaxIter: 10, Threshold: 1e-3},
	}
}

// Validate checks every enumerated selector and numeric bound once, so a bad
// configuration is rejected before any exposure is touched.
func (c Config) Validate() error {
	if err := c.Overscan.Validate(); err != nil {
		return err
	}
	if err := c.Flat.Validate(); err != nil {
		return err
	}
	if err := c.Saturation.Validate(); err != nil {
		return err
	}
	if err := c.Interp.Validate(); err != nil {
		return err
	}
	if c.DoCosmicRays {
		if err := c.CosmicRay.Validate(); err != nil {
			return err
		}
	}
	if c.DoBrighterFatter {
		if err := c.BrighterFatter.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Inputs are the calibration products for one pipeline run.  All are loaded
// before the pipeline starts and held read-only; frames may be shared by
// concurrent pipeline instances.  Nil members disable the matching stage.
type Inputs struct {
	Bias      *calib.Frame
	Dark      *calib.Frame
	Flat      *calib.Frame
	Illum     *calib.Frame
	Fringe    *calib.Frame
	Defects   []image.Rectangle
	Crosstalk *calib.CrosstalkMatrix
	Linearity *LookupTable
	BFKernel  *img.Image
}

// Pipeline runs the correction sequence.  It is stateless between exposures;
// all per-exposure state lives on the exposure itself, so one Pipeline may
// serve many goroutines as long as each owns its exposure.
type Pipeline struct {
	cfg Config
	log *log.Logger
}

// New validates cfg and builds a pipeline.  A nil logger means the default.
func New(cfg Config, lg *log.Logger) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Pipeline{cfg: cfg, log: lg}, nil
}

// Config returns the validated configuration.
func (p *Pipeline) Config() Config { return p.cfg }

// quiet returns the logger for skip-level messages, nil-signalled off.
func (p *Pipeline) quiet() *log.Logger {
	if p.cfg.Verbose {
		return p.log
	}
	return log.New(discard{}, "", 0)
}

type discard struct{}

func (discard) Write(b []byte) (int, error) { return len(b), nil }

// Run executes the ordered stage sequence on a raw exposure and returns the
// trimmed, corrected exposure.  The raw input is consumed; on error the
// returned exposure (which may still be the raw one) holds the last-good
// partial state.
func (p *Pipeline) Run(raw *img.Exposure, in Inputs) (*img.Exposure, error) {
	lg, quiet := p.log, p.quiet()

	if err := CorrectOverscan(raw, p.cfg.Overscan, quiet); err != nil {
		return raw, fmt.Errorf("overscan: %w", err)
	}
	e, err := TrimAndAssemble(raw, quiet)
	if err != nil {
		return raw, fmt.Errorf("trim: %w", err)
	}

	if in.Crosstalk != nil {
		if err := CorrectCrosstalk(e, in.Crosstalk, quiet); err != nil {
			return e, fmt.Errorf("crosstalk: %w", err)
		}
	}
	if err := NormalizeGain(e, quiet); err != nil {
		return e, fmt.Errorf("gain: %w", err)
	}

	if in.Bias != nil {
		if err := SubtractBias(e, in.Bias, quiet); err != nil {
			return e, fmt.Errorf("bias: %w", err)
		}
	} else {
		logf(quiet, "no bias frame, stage skipped")
	}
	if in.Dark != nil {
		if err := SubtractDark(e, in.Dark, quiet); err != nil {
			return e, fmt.Errorf("dark: %w", err)
		}
	} else {
		logf(quiet, "no dark frame, stage skipped")
	}
	if in.Linearity != nil {
		if err := Linearize(e, in.Linearity, p.cfg.Linearity, quiet); err != nil {
			return e, fmt.Errorf("linearity: %w", err)
		}
	}
	if in.Flat != nil {
		if err := DivideFlat(e, in.Flat, p.cfg.Flat, quiet); err != nil {
			return e, fmt.Errorf("flat: %w", err)
		}
	} else {
		logf(quiet, "no flat frame, stage skipped")
	}
	if in.Illum != nil {
		if err := DivideIllum(e, in.Illum, quiet); err != nil {
			return e, fmt.Errorf("illumination: %w", err)
		}
	}
	if in.Fringe != nil {
		if err := CorrectFringe(e, in.Fringe, quiet); err != nil {
			return e, fmt.Errorf("fringe: %w", err)
		}
	}

	if err := MaskDefects(e, in.Defects, p.cfg.Interp, quiet); err != nil {
		return e, fmt.Errorf("defects: %w", err)
	}
	if err := MaskSaturation(e, p.cfg.Saturation, p.cfg.Interp, quiet); err != nil {
		return e, fmt.Errorf("saturation: %w", err)
	}
	if p.cfg.DoCosmicRays {
		if err := RejectCosmicRays(e, p.cfg.CosmicRay, p.cfg.Interp, quiet); err != nil {
			return e, fmt.Errorf("cosmic rays: %w", err)
		}
	}
	if p.cfg.DoBrighterFatter {
		if in.BFKernel == nil {
			return e, fmt.Errorf("%w: brighter-fatter enabled without a kernel", ErrInvalidConfig)
		}
		if err := ApplyBrighterFatter(e, in.BFKernel, p.cfg.BrighterFatter, quiet); err != nil {
			return e, fmt.Errorf("brighter-fatter: %w", err)
		}
	}

	if err := FinalizeVariance(e, lg); err != nil {
		return e, fmt.Errorf("variance: %w", err)
	}
	return e, nil
}
