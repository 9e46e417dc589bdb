package isr

import (
	"fmt"
	"log"
	"math"

	"github.com/oir-lab/goisr/img"
)

// BrighterFatterConfig configures the brighter-fatter application.  The
// kernel itself is a calibration input; only its application lives here.
type BrighterFatterConfig struct {
	// MaxIter bounds the fixed-point iteration count.
	MaxIter int `yaml:"maxIter"`
	// Threshold is the largest per-pixel change still counted as converged.
	Threshold float64 `yaml:"threshold"`
}

// Validate rejects unusable iteration bounds.
func (c BrighterFatterConfig) Validate() error {
	if c.MaxIter <= 0 {
		return fmt.Errorf("%w: brighter-fatter max iterations %d", ErrInvalidConfig, c.MaxIter)
	}
	if c.Threshold <= 0 {
		return fmt.Errorf("%w: brighter-fatter threshold %f", ErrInvalidConfig, c.Threshold)
	}
	return nil
}

// ApplyBrighterFatter removes the charge redistribution described by kernel
// via the fixed-point iteration corrected = measured - kernel*corrected,
// stopping when the largest per-pixel change drops below the threshold or
// the iteration bound is hit.  The kernel must have odd dimensions so it has
// a center pixel.
func ApplyBrighterFatter(e *img.Exposure, kernel *img.Image, cfg BrighterFatterConfig, lg *log.Logger) error {
	if e.Applied(StageBrighterFatter) {
		logf(lg, "brighter-fatter already applied, skipping")
		return nil
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if kernel == nil || kernel.Rect.Dx()%2 == 0 || kernel.Rect.Dy()%2 == 0 {
		return fmt.Errorf("%w: brighter-fatter kernel must have odd dimensions", ErrInvalidConfig)
	}
	for _, v := range kernel.Pix {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: brighter-fatter kernel value", ErrNonFinite)
		}
	}

	measured := e.Image.Clone()
	current := e.Image
	next := img.New(current.Rect)
	iters := 0
	for ; iters < cfg.MaxIter; iters++ {
		convolve(next, current, kernel)
		delta := 0.0
		for i := range next.Pix {
			v := measured.Pix[i] - next.Pix[i]
			if d := math.Abs(v - current.Pix[i]); d > delta {
				delta = d
			}
			next.Pix[i] = v
		}
		current.Pix, next.Pix = next.Pix, current.Pix
		if delta < cfg.Threshold {
			iters++
			break
		}
	}

	e.MarkApplied(StageBrighterFatter, fmt.Sprintf("brighter-fatter applied, %d iterations", iters))
	return nil
}

// convolve writes src⊛kernel into dst.  Pixels whose kernel window falls off
// the edge use only the in-bounds portion.
func convolve(dst, src, kernel *img.Image) {
	kcx := kernel.Rect.Min.X + kernel.Rect.Dx()/2
	kcy := kernel.Rect.Min.Y + kernel.Rect.Dy()/2

	for y := src.Rect.Min.Y; y < src.Rect.Max.Y; y++ {
		for x := src.Rect.Min.X; x < src.Rect.Max.X; x++ {
			sum := 0.0
			for ky := kernel.Rect.Min.Y; ky < kernel.Rect.Max.Y; ky++ {
				sy := y + ky - kcy
				if sy < src.Rect.Min.Y || sy >= src.Rect.Max.Y {
					continue
				}
				for kx := kernel.Rect.Min.X; kx < kernel.Rect.Max.X; kx++ {
					sx := x + kx - kcx
					if sx < src.Rect.Min.X || sx >= src.Rect.Max.X {
						continue
					}
					sum += kernel.At(kx, ky) * src.At(sx, sy)
				}
			}
			dst.Set(x, y, sum)
		}
	}
}
