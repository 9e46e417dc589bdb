/*Package mock builds synthetic detectors, raw exposures, and calibration
products with known signatures, for tests and demo runs.  Generation is
deterministic for a given seed.
*/
package mock

import (
	"image"
	"math"
	"math/rand"

	"github.com/oir-lab/goisr/calib"
	"github.com/oir-lab/goisr/img"
)

// Config describes the synthetic camera and sky.
type Config struct {
	// NAmps amplifiers sit side by side, each with a data section of
	// AmpNX x AmpNY pixels followed by an OverscanW-wide serial overscan.
	NAmps     int
	AmpNX     int
	AmpNY     int
	OverscanW int

	Gain       float64 // e-/ADU equivalent stored on the amp descriptors
	ReadNoise  float64
	Saturation float64

	BiasLevel float64 // electronic offset present in data and overscan
	SkyLevel  float64 // flat sky background in the data sections
	Gradient  float64 // per-column sky slope across the detector
	DarkRate  float64 // counts per second
	ExpTime   float64

	Seed int64
}

// DefaultConfig returns a small two-amplifier camera.
func DefaultConfig() Config {
	return Config{
		NAmps:      2,
		AmpNX:      32,
		AmpNY:      24,
		OverscanW:  6,
		Gain:       1.5,
		ReadNoise:  4,
		Saturation: 60000,
		BiasLevel:  1000,
		SkyLevel:   200,
		Gradient:   0.5,
		DarkRate:   0.2,
		ExpTime:    30,
		Seed:       1,
	}
}

// Detector builds the amplifier geometry for cfg.  Amplifier i's raw section
// spans its data pixels plus the serial overscan to their right; trimmed
// sections tile the detector left to right.
func Detector(cfg Config) *img.Detector {
	det := &img.Detector{Name: "MOCK"}
	rawW := cfg.AmpNX + cfg.OverscanW
	for i := 0; i < cfg.NAmps; i++ {
		x0 := i * rawW
		det.Amps = append(det.Amps, img.Amp{
			Name:           ampName(i),
			RawBounds:      image.Rect(x0, 0, x0+rawW, cfg.AmpNY),
			DataBounds:     image.Rect(x0, 0, x0+cfg.AmpNX, cfg.AmpNY),
			DetBounds:      image.Rect(i*cfg.AmpNX, 0, (i+1)*cfg.AmpNX, cfg.AmpNY),
			SerialOverscan: image.Rect(x0+cfg.AmpNX, 0, x0+rawW, cfg.AmpNY),
			Gain:           cfg.Gain,
			ReadNoise:      cfg.ReadNoise,
			Saturation:     cfg.Saturation,
		})
	}
	return det
}

func ampName(i int) string {
	return string(rune('A'+i%26)) + "0"
}

// RawExposure builds an untrimmed exposure: bias plus read noise everywhere,
// sky with a column gradient and dark current in the data sections.
func RawExposure(cfg Config) *img.Exposure {
	det := Detector(cfg)
	e := img.NewExposure(det.RawBounds(), det)
	e.Meta.SetFloat(img.KeyExpTime, cfg.ExpTime)

	rng := rand.New(rand.NewSource(cfg.Seed))
	for _, amp := range det.Amps {
		for y := amp.RawBounds.Min.Y; y < amp.RawBounds.Max.Y; y++ {
			for x := amp.RawBounds.Min.X; x < amp.RawBounds.Max.X; x++ {
				v := cfg.BiasLevel + rng.NormFloat64()*cfg.ReadNoise
				if (image.Point{X: x, Y: y}).In(amp.DataBounds) {
					v += cfg.SkyLevel + cfg.Gradient*float64(x-amp.DataBounds.Min.X)
					v += cfg.DarkRate * cfg.ExpTime
				}
				e.Image.Set(x, y, v)
			}
		}
	}
	return e
}

// AddStar stamps a Gaussian source of the given peak and FWHM onto the image
// plane, in the plane's own coordinates.
func AddStar(p *img.Image, cx, cy int, peak, fwhm float64) {
	sigma := fwhm / (2 * math.Sqrt(2*math.Log(2)))
	r := int(math.Ceil(3 * sigma))
	for dy := -r; dy <= r; dy++ {
		for dx := -r; dx <= r; dx++ {
			x, y := cx+dx, cy+dy
			if !(image.Point{X: x, Y: y}).In(p.Rect) {
				continue
			}
			v := peak * math.Exp(-float64(dx*dx+dy*dy)/(2*sigma*sigma))
			p.Set(x, y, p.At(x, y)+v)
		}
	}
}

// InjectCrosstalk adds coeffs[source][target]*source into each target
// amplifier of a raw exposure, the leakage the correction stage removes.
func InjectCrosstalk(e *img.Exposure, m *calib.CrosstalkMatrix) error {
	if err := m.Validate(); err != nil {
		return err
	}
	index := make(map[string]int, len(m.Amps))
	for i, name := range m.Amps {
		index[name] = i
	}
	amps := e.Detector.Amps
	snapshot := make([]*img.Image, len(amps))
	for i, amp := range amps {
		snapshot[i] = e.Image.SubImage(amp.DataBounds).Clone()
	}
	for ti, target := range amps {
		dst := e.Image.SubImage(target.DataBounds)
		for si, source := range amps {
			if si == ti {
				continue
			}
			c := m.Coeffs[index[source.Name]][index[target.Name]]
			if c == 0 {
				continue
			}
			if err := dst.SubScaled(-c, snapshot[si]); err != nil {
				return err
			}
		}
	}
	return nil
}

// Crosstalk returns a matrix with a uniform off-diagonal coefficient.
func Crosstalk(cfg Config, coeff float64) *calib.CrosstalkMatrix {
	m := &calib.CrosstalkMatrix{}
	for i := 0; i < cfg.NAmps; i++ {
		m.Amps = append(m.Amps, ampName(i))
	}
	m.Coeffs = make([][]float64, cfg.NAmps)
	for i := range m.Coeffs {
		m.Coeffs[i] = make([]float64, cfg.NAmps)
		for j := range m.Coeffs[i] {
			if i != j {
				m.Coeffs[i][j] = coeff
			}
		}
	}
	return m
}

// trimmedFrame builds a constant calibration frame on the trimmed geometry.
func trimmedFrame(cfg Config, kind calib.Kind, value float64) *calib.Frame {
	det := Detector(cfg)
	return &calib.Frame{
		Kind:  kind,
		Image: img.NewFilled(det.Bounds(), value),
		Meta:  make(img.Metadata),
	}
}

// BiasFrame returns a constant master bias residual on trimmed geometry.
func BiasFrame(cfg Config, level float64) *calib.Frame {
	return trimmedFrame(cfg, calib.KindBias, level)
}

// DarkFrame returns a constant-rate master dark recorded at expTime seconds.
func DarkFrame(cfg Config, expTime float64) *calib.Frame {
	f := trimmedFrame(cfg, calib.KindDark, cfg.DarkRate*expTime)
	f.Meta.SetFloat(img.KeyExpTime, expTime)
	return f
}

// FlatFrame returns a master flat with a gentle center-to-edge response
// falloff around 1.0.
func FlatFrame(cfg Config, falloff float64) *calib.Frame {
	det := Detector(cfg)
	b := det.Bounds()
	f := &calib.Frame{Kind: calib.KindFlat, Image: img.New(b), Meta: make(img.Metadata)}
	cx := float64(b.Min.X+b.Max.X) / 2
	cy := float64(b.Min.Y+b.Max.Y) / 2
	rmax := math.Hypot(float64(b.Dx())/2, float64(b.Dy())/2)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r := math.Hypot(float64(x)-cx, float64(y)-cy) / rmax
			f.Image.Set(x, y, 1-falloff*r*r)
		}
	}
	return f
}
