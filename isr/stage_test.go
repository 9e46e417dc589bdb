package isr_test

import (
	"errors"
	"image"
	"log"
	"math"
	"testing"

	"github.com/oir-lab/goisr/calib"
	"github.com/oir-lab/goisr/img"
	"github.com/oir-lab/goisr/isr"
)

var quiet = log.New(discard{}, "", 0)

type discard struct{}

func (discard) Write(b []byte) (int, error) { return len(b), nil }

// rawDet is a single-amplifier camera: 8x4 data pixels with a 4-wide serial
// overscan to their right.
func rawDet() *img.Detector {
	return &img.Detector{
		Name: "TEST",
		Amps: []img.Amp{{
			Name:           "A0",
			RawBounds:      image.Rect(0, 0, 12, 4),
			DataBounds:     image.Rect(0, 0, 8, 4),
			DetBounds:      image.Rect(0, 0, 8, 4),
			SerialOverscan: image.Rect(8, 0, 12, 4),
			Gain:           2,
			ReadNoise:      4,
			Saturation:     1000,
		}},
	}
}

// trimmedExposure builds a post-trim exposure with a constant image value.
func trimmedExposure(val float64) *img.Exposure {
	det := rawDet()
	e := img.NewExposure(det.Bounds(), det)
	e.Image.Fill(val)
	e.Meta.SetString(img.KeyUnits, img.UnitADU)
	e.MarkApplied(isr.StageTrim, "test fixture")
	return e
}

func constFrame(kind calib.Kind, r image.Rectangle, val float64) *calib.Frame {
	return &calib.Frame{Kind: kind, Image: img.NewFilled(r, val), Meta: make(img.Metadata)}
}

func TestOverscanSubtractsOffset(t *testing.T) {
	det := rawDet()
	e := img.NewExposure(det.RawBounds(), det)
	e.Image.SubImage(det.Amps[0].DataBounds).Fill(150)
	e.Image.SubImage(det.Amps[0].SerialOverscan).Fill(50)
	e.Meta.SetString(img.AmpKey(isr.KeyBiasSec, "A0"), "[9:12,1:4]")

	if err := isr.CorrectOverscan(e, isr.OverscanConfig{Fit: isr.FitMedian}, quiet); err != nil {
		t.Fatal(err)
	}
	if got := e.Image.At(0, 0); got != 100 {
		t.Errorf("data pixel: expected 100 got %f", got)
	}
	if got := e.Image.At(9, 0); got != 0 {
		t.Errorf("overscan pixel: expected 0 got %f", got)
	}
	if lvl, ok := e.Meta.GetFloat(img.AmpKey("OSCNLVL", "A0")); !ok || lvl != 50 {
		t.Errorf("recorded level: %v %v", lvl, ok)
	}
	if e.Meta.Has(img.AmpKey(isr.KeyBiasSec, "A0")) {
		t.Error("overscan section key survived")
	}
	if !e.Applied(isr.StageOverscan) {
		t.Error("stage not stamped")
	}
}

func TestOverscanBogusFitLeavesMetadataUnmarked(t *testing.T) {
	det := rawDet()
	e := img.NewExposure(det.RawBounds(), det)
	err := isr.CorrectOverscan(e, isr.OverscanConfig{Fit: "BOGUS"}, quiet)
	if !errors.Is(err, isr.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig got %v", err)
	}
	if e.Applied(isr.StageOverscan) {
		t.Error("failed stage stamped provenance")
	}
}

func TestOverscanPolyNotImplemented(t *testing.T) {
	det := rawDet()
	e := img.NewExposure(det.RawBounds(), det)
	err := isr.CorrectOverscan(e, isr.OverscanConfig{Fit: isr.FitPoly}, quiet)
	if !errors.Is(err, isr.ErrNotImplemented) {
		t.Fatalf("expected ErrNotImplemented got %v", err)
	}
}

func TestTrimAssemblesAndSeedsVariance(t *testing.T) {
	det := rawDet()
	e := img.NewExposure(det.RawBounds(), det)
	e.Image.SubImage(det.Amps[0].DataBounds).Fill(100)
	e.Meta.SetFloat(img.KeyExpTime, 30)
	e.Meta.SetString(img.AmpKey(isr.KeyBiasSec, "A0"), "[9:12,1:4]")

	out, err := isr.TrimAndAssemble(e, quiet)
	if err != nil {
		t.Fatal(err)
	}
	if out.Bounds() != image.Rect(0, 0, 8, 4) {
		t.Fatalf("wrong trimmed bounds %v", out.Bounds())
	}
	if got := out.Image.At(3, 2); got != 100 {
		t.Errorf("expected 100 got %f", got)
	}
	// image/gain + (readnoise/gain)^2 = 100/2 + 4 = 54
	if got := out.Variance.At(3, 2); got != 54 {
		t.Errorf("expected seeded variance 54 got %f", got)
	}
	if et, ok := out.Meta.GetFloat(img.KeyExpTime); !ok || et != 30 {
		t.Error("exposure time did not survive trim")
	}
	if out.Meta.Has(img.AmpKey(isr.KeyBiasSec, "A0")) {
		t.Error("overscan section key survived trim")
	}
	if !out.Applied(isr.StageTrim) {
		t.Error("stage not stamped")
	}
	// re-trimming the trimmed exposure is a no-op returning the same object
	again, err := isr.TrimAndAssemble(out, quiet)
	if err != nil || again != out {
		t.Errorf("second trim: %v %p vs %p", err, again, out)
	}
}

func TestTrimGeometryMismatch(t *testing.T) {
	det := rawDet()
	det.Amps[0].DetBounds = image.Rect(0, 0, 7, 4)
	e := img.NewExposure(det.RawBounds(), det)
	_, err := isr.TrimAndAssemble(e, quiet)
	if !errors.Is(err, isr.ErrGeometryMismatch) {
		t.Fatalf("expected ErrGeometryMismatch got %v", err)
	}
}

func TestBiasExactAndIdempotent(t *testing.T) {
	e := trimmedExposure(100)
	bias := constFrame(calib.KindBias, e.Bounds(), 3)

	if err := isr.SubtractBias(e, bias, quiet); err != nil {
		t.Fatal(err)
	}
	if got := e.Image.At(1, 1); got != 97 {
		t.Errorf("expected 97 got %f", got)
	}
	marker := e.Meta.GetString(isr.StageBias)

	if err := isr.SubtractBias(e, bias, quiet); err != nil {
		t.Fatal(err)
	}
	if got := e.Image.At(1, 1); got != 97 {
		t.Errorf("second call changed image: %f", got)
	}
	if e.Meta.GetString(isr.StageBias) != marker {
		t.Error("second call rewrote the provenance marker")
	}
}

func TestDarkScalesByExposureTimeRatio(t *testing.T) {
	e := trimmedExposure(100)
	e.Meta.SetFloat(img.KeyExpTime, 10)
	dark := constFrame(calib.KindDark, e.Bounds(), 1.5) // rate d per recorded time
	dark.Meta.SetFloat(img.KeyExpTime, 5)

	if err := isr.SubtractDark(e, dark, quiet); err != nil {
		t.Fatal(err)
	}
	// scale = 10/5 = 2, so the image drops by 2*1.5
	if got := e.Image.At(0, 0); got != 97 {
		t.Errorf("expected 97 got %f", got)
	}
}

func TestDarkMissingExpTime(t *testing.T) {
	e := trimmedExposure(100)
	dark := constFrame(calib.KindDark, e.Bounds(), 1)
	dark.Meta.SetFloat(img.KeyExpTime, 5)
	if err := isr.SubtractDark(e, dark, quiet); !errors.Is(err, isr.ErrMissingKey) {
		t.Fatalf("expected ErrMissingKey got %v", err)
	}
	e.Meta.SetFloat(img.KeyExpTime, 10)
	dark.Meta.Remove(img.KeyExpTime)
	if err := isr.SubtractDark(e, dark, quiet); !errors.Is(err, isr.ErrMissingKey) {
		t.Fatalf("expected ErrMissingKey got %v", err)
	}
}

func TestFlatMeanPolicy(t *testing.T) {
	e := trimmedExposure(100)
	flat := &calib.Frame{Kind: calib.KindFlat, Image: img.New(e.Bounds()), Meta: make(img.Metadata)}
	for i := range flat.Image.Pix {
		flat.Image.Pix[i] = 1 + float64(i%2) // alternating 1 and 2, mean 1.5
	}
	before := e.Image.Clone()

	if err := isr.DivideFlat(e, flat, isr.FlatConfig{Policy: isr.FlatMean}, quiet); err != nil {
		t.Fatal(err)
	}
	for i := range e.Image.Pix {
		want := before.Pix[i] * 1.5 / flat.Image.Pix[i]
		if math.Abs(e.Image.Pix[i]-want) > 1e-9 {
			t.Fatalf("pixel %d: expected %f got %f", i, want, e.Image.Pix[i])
		}
	}
}

func TestFlatBogusPolicy(t *testing.T) {
	e := trimmedExposure(100)
	flat := constFrame(calib.KindFlat, e.Bounds(), 1)
	err := isr.DivideFlat(e, flat, isr.FlatConfig{Policy: "BOGUS"}, quiet)
	if !errors.Is(err, isr.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig got %v", err)
	}
	if e.Applied(isr.StageFlat) {
		t.Error("failed stage stamped provenance")
	}
}

func TestFlatScalesVariance(t *testing.T) {
	e := trimmedExposure(100)
	e.Variance.Fill(9)
	flat := constFrame(calib.KindFlat, e.Bounds(), 2)
	if err := isr.DivideFlat(e, flat, isr.FlatConfig{Policy: isr.FlatUser, UserValue: 4}, quiet); err != nil {
		t.Fatal(err)
	}
	// flat/norm = 0.5, image x2, variance x4
	if got := e.Image.At(0, 0); got != 200 {
		t.Errorf("expected 200 got %f", got)
	}
	if got := e.Variance.At(0, 0); got != 36 {
		t.Errorf("expected variance 36 got %f", got)
	}
}

func TestGainDividesImageAndVarianceTogether(t *testing.T) {
	e := trimmedExposure(100)
	e.Variance.Fill(54)

	if err := isr.NormalizeGain(e, quiet); err != nil {
		t.Fatal(err)
	}
	if got := e.Image.At(0, 0); got != 50 {
		t.Errorf("expected image 50 got %f", got)
	}
	if got := e.Variance.At(0, 0); got != 13.5 {
		t.Errorf("expected variance 13.5 got %f", got)
	}
	if e.Meta.GetString(img.KeyUnits) != img.UnitElectron {
		t.Error("unit tag not flipped")
	}
	// already in electrons: a second call must not divide again
	if err := isr.NormalizeGain(e, quiet); err != nil {
		t.Fatal(err)
	}
	if got := e.Image.At(0, 0); got != 50 {
		t.Errorf("second call changed image: %f", got)
	}
}

func TestNaNGainMasksAmpBad(t *testing.T) {
	e := trimmedExposure(100)
	e.Detector.Amps[0].Gain = math.NaN()

	if err := isr.NormalizeGain(e, quiet); err != nil {
		t.Fatal(err)
	}
	bad, _ := e.Mask.PlaneBitMask(img.PlaneBad)
	if n := e.Mask.CountBits(bad); n != 32 {
		t.Errorf("expected whole amp (32 px) bad, got %d", n)
	}
	if got := e.Image.At(0, 0); got != 0 {
		t.Errorf("bad amp not zeroed: %f", got)
	}
	if e.Image.CountNonFinite() != 0 {
		t.Error("NaNs leaked into the image plane")
	}
}

func TestCrosstalkUsesSnapshot(t *testing.T) {
	det := &img.Detector{Name: "TEST2", Amps: []img.Amp{
		{Name: "A0", RawBounds: image.Rect(0, 0, 4, 4), DataBounds: image.Rect(0, 0, 4, 4),
			DetBounds: image.Rect(0, 0, 4, 4), Gain: 1, ReadNoise: 1, Saturation: 1000},
		{Name: "B0", RawBounds: image.Rect(4, 0, 8, 4), DataBounds: image.Rect(4, 0, 8, 4),
			DetBounds: image.Rect(4, 0, 8, 4), Gain: 1, ReadNoise: 1, Saturation: 1000},
	}}
	e := img.NewExposure(det.Bounds(), det)
	e.Image.SubImage(det.Amps[0].DetBounds).Fill(1000)
	e.Image.SubImage(det.Amps[1].DetBounds).Fill(100)

	m := &calib.CrosstalkMatrix{
		Amps:   []string{"A0", "B0"},
		Coeffs: [][]float64{{0, 0.01}, {0.02, 0}},
	}
	if err := isr.CorrectCrosstalk(e, m, quiet); err != nil {
		t.Fatal(err)
	}
	// B loses 0.01*1000; A loses 0.02*100 computed from B's pre-correction
	// snapshot, not from the already corrected 90
	if got := e.Image.At(4, 0); got != 90 {
		t.Errorf("target B: expected 90 got %f", got)
	}
	if got := e.Image.At(0, 0); got != 998 {
		t.Errorf("target A: expected 998 got %f", got)
	}
}

func TestCrosstalkExcludesNaNGainAmp(t *testing.T) {
	det := &img.Detector{Name: "TEST2", Amps: []img.Amp{
		{Name: "A0", RawBounds: image.Rect(0, 0, 4, 4), DataBounds: image.Rect(0, 0, 4, 4),
			DetBounds: image.Rect(0, 0, 4, 4), Gain: 1, ReadNoise: 1, Saturation: 1000},
		{Name: "B0", RawBounds: image.Rect(4, 0, 8, 4), DataBounds: image.Rect(4, 0, 8, 4),
			DetBounds: image.Rect(4, 0, 8, 4), Gain: math.NaN(), ReadNoise: 1, Saturation: 1000},
	}}
	e := img.NewExposure(det.Bounds(), det)
	e.Image.SubImage(det.Amps[0].DetBounds).Fill(1000)
	e.Image.SubImage(det.Amps[1].DetBounds).Fill(math.NaN())

	m := &calib.CrosstalkMatrix{
		Amps:   []string{"A0", "B0"},
		Coeffs: [][]float64{{0, 0.01}, {0.02, 0}},
	}
	if err := isr.CorrectCrosstalk(e, m, quiet); err != nil {
		t.Fatal(err)
	}
	if got := e.Image.At(0, 0); got != 1000 {
		t.Errorf("bad amp leaked into neighbor: %f", got)
	}
	bad, _ := e.Mask.PlaneBitMask(img.PlaneBad)
	if n := e.Mask.SubMask(det.Amps[1].DetBounds).CountBits(bad); n != 16 {
		t.Errorf("expected bad amp fully masked, got %d", n)
	}
	if e.Image.CountNonFinite() != 0 {
		t.Error("NaNs survived")
	}
}

func TestLookupTableConstruction(t *testing.T) {
	if _, err := isr.NewLookupTable(isr.TableReplace, 3, []float64{1, 2}); !errors.Is(err, isr.ErrInvalidConfig) {
		t.Errorf("length mismatch: expected ErrInvalidConfig got %v", err)
	}
	if _, err := isr.NewLookupTable(isr.TableReplace, 2, []float64{1, math.Inf(1)}); !errors.Is(err, isr.ErrNonFinite) {
		t.Errorf("non-finite value: expected ErrNonFinite got %v", err)
	}
	if _, err := isr.NewLookupTable("BOGUS", 1, []float64{1}); !errors.Is(err, isr.ErrInvalidConfig) {
		t.Errorf("bad mode: expected ErrInvalidConfig got %v", err)
	}
}

func TestLinearizeReplace(t *testing.T) {
	values := make([]float64, 256)
	for i := range values {
		values[i] = float64(i) * 2
	}
	table, err := isr.NewLookupTable(isr.TableReplace, 256, values)
	if err != nil {
		t.Fatal(err)
	}
	e := trimmedExposure(100)
	if err := isr.Linearize(e, table, isr.LinearityConfig{}, quiet); err != nil {
		t.Fatal(err)
	}
	if got := e.Image.At(0, 0); got != 200 {
		t.Errorf("expected 200 got %f", got)
	}
}

func TestLinearizeMultiplicativeScalesVariance(t *testing.T) {
	values := make([]float64, 256)
	for i := range values {
		values[i] = 1.5
	}
	table, err := isr.NewLookupTable(isr.TableMultiplicative, 256, values)
	if err != nil {
		t.Fatal(err)
	}
	e := trimmedExposure(100)
	e.Variance.Fill(4)
	if err := isr.Linearize(e, table, isr.LinearityConfig{}, quiet); err != nil {
		t.Fatal(err)
	}
	if got := e.Image.At(0, 0); got != 150 {
		t.Errorf("expected 150 got %f", got)
	}
	if got := e.Variance.At(0, 0); got != 9 {
		t.Errorf("expected variance 9 got %f", got)
	}
}

func TestMaskDefectsAndInterpolate(t *testing.T) {
	e := trimmedExposure(100)
	box := image.Rect(2, 1, 4, 3)
	cfg := isr.InterpConfig{Enabled: true, PSFFWHM: 2}
	if err := isr.MaskDefects(e, []image.Rectangle{box}, cfg, quiet); err != nil {
		t.Fatal(err)
	}
	bad, _ := e.Mask.PlaneBitMask(img.PlaneBad)
	intrp, _ := e.Mask.PlaneBitMask(img.PlaneInterp)
	if e.Mask.At(2, 1)&bad == 0 || e.Mask.At(3, 2)&bad == 0 {
		t.Error("defect pixels not flagged BAD")
	}
	if e.Mask.At(2, 1)&intrp == 0 {
		t.Error("interpolated pixels not flagged INTRP")
	}
	if got := e.Image.At(2, 1); math.Abs(got-100) > 1e-9 {
		t.Errorf("interpolated value: expected 100 got %f", got)
	}
}

func TestSaturationGrowFlagAndInterp(t *testing.T) {
	e := trimmedExposure(100)
	// 2x2 block above the amp's declared level of 1000
	for y := 1; y < 3; y++ {
		for x := 3; x < 5; x++ {
			e.Image.Set(x, y, 5000)
		}
	}
	cfg := isr.SaturationConfig{DefaultLevel: 60000, GrowPixels: 1}
	icfg := isr.InterpConfig{Enabled: true, PSFFWHM: 2}
	if err := isr.MaskSaturation(e, cfg, icfg, quiet); err != nil {
		t.Fatal(err)
	}
	sat, _ := e.Mask.PlaneBitMask(img.PlaneSat)
	grown := image.Rect(2, 0, 6, 4) // bbox grown by 1, clipped to the frame
	for y := grown.Min.Y; y < grown.Max.Y; y++ {
		for x := grown.Min.X; x < grown.Max.X; x++ {
			if e.Mask.At(x, y)&sat == 0 {
				t.Fatalf("pixel (%d,%d) in grown box not flagged SAT", x, y)
			}
		}
	}
	// surrounding signal is flat, so filled values sit at the clipped mean
	for y := grown.Min.Y; y < grown.Max.Y; y++ {
		for x := grown.Min.X; x < grown.Max.X; x++ {
			if got := e.Image.At(x, y); math.Abs(got-100) > 1 {
				t.Fatalf("pixel (%d,%d): expected ~100 got %f", x, y, got)
			}
		}
	}
}

func TestSaturationLevelFollowsGainUnits(t *testing.T) {
	e := trimmedExposure(100)
	if err := isr.NormalizeGain(e, quiet); err != nil {
		t.Fatal(err)
	}
	// the amp saturates at 1000 raw counts; with gain 2 that is 500 electrons
	e.Image.Set(4, 2, 600)
	cfg := isr.SaturationConfig{DefaultLevel: 60000}
	if err := isr.MaskSaturation(e, cfg, isr.InterpConfig{}, quiet); err != nil {
		t.Fatal(err)
	}
	sat, _ := e.Mask.PlaneBitMask(img.PlaneSat)
	if e.Mask.At(4, 2)&sat == 0 {
		t.Error("saturated pixel missed after gain normalization")
	}
	if e.Mask.At(0, 0)&sat != 0 {
		t.Error("unsaturated pixel flagged")
	}
}

func TestSaturationDefaultLevelWarning(t *testing.T) {
	e := trimmedExposure(100)
	e.Detector.Amps[0].Saturation = 0
	e.Image.Set(4, 2, 2000)
	cfg := isr.SaturationConfig{DefaultLevel: 1500, GrowPixels: 0}
	if err := isr.MaskSaturation(e, cfg, isr.InterpConfig{}, quiet); err != nil {
		t.Fatal(err)
	}
	sat, _ := e.Mask.PlaneBitMask(img.PlaneSat)
	if e.Mask.At(4, 2)&sat == 0 {
		t.Error("pixel above default level not flagged")
	}
}

func TestRejectCosmicRaysSparesLargeFootprints(t *testing.T) {
	det := rawDet()
	det.Amps[0].RawBounds = image.Rect(0, 0, 36, 32)
	det.Amps[0].DataBounds = image.Rect(0, 0, 32, 32)
	det.Amps[0].DetBounds = image.Rect(0, 0, 32, 32)
	det.Amps[0].SerialOverscan = image.Rect(32, 0, 36, 32)
	e := img.NewExposure(det.Bounds(), det)
	e.Image.Fill(100)
	e.Meta.SetString(img.KeyUnits, img.UnitADU)
	e.MarkApplied(isr.StageTrim, "test fixture")

	e.Image.Set(2, 2, 10000) // ray: single pixel
	for y := 8; y < 13; y++ { // star: 5x5 block, 25 px > MaxPixels
		for x := 8; x < 13; x++ {
			e.Image.Set(x, y, 10000)
		}
	}

	cfg := isr.CosmicRayConfig{NSigma: 6, MaxPixels: 12}
	if err := isr.RejectCosmicRays(e, cfg, isr.InterpConfig{Enabled: true, PSFFWHM: 2}, quiet); err != nil {
		t.Fatal(err)
	}
	cr, err := e.Mask.PlaneBitMask(img.PlaneCR)
	if err != nil {
		t.Fatal(err)
	}
	if e.Mask.At(2, 2)&cr == 0 {
		t.Error("ray pixel not flagged CR")
	}
	if got := e.Image.At(2, 2); math.Abs(got-100) > 5 {
		t.Errorf("ray not interpolated: %f", got)
	}
	if e.Mask.At(10, 10)&cr != 0 {
		t.Error("large footprint wrongly treated as a ray")
	}
	if got := e.Image.At(10, 10); got != 10000 {
		t.Errorf("star pixel modified: %f", got)
	}
}

func TestCosmicRayFillIgnoresNeighborRay(t *testing.T) {
	det := rawDet()
	det.Amps[0].RawBounds = image.Rect(0, 0, 36, 32)
	det.Amps[0].DataBounds = image.Rect(0, 0, 32, 32)
	det.Amps[0].DetBounds = image.Rect(0, 0, 32, 32)
	det.Amps[0].SerialOverscan = image.Rect(32, 0, 36, 32)
	e := img.NewExposure(det.Bounds(), det)
	e.Image.Fill(100)
	e.Meta.SetString(img.KeyUnits, img.UnitADU)
	e.MarkApplied(isr.StageTrim, "test fixture")

	// two rays one pixel apart: each fill must come from the background,
	// not from the other not-yet-filled ray
	e.Image.Set(10, 10, 10000)
	e.Image.Set(12, 10, 10000)

	cfg := isr.CosmicRayConfig{NSigma: 6, MaxPixels: 12}
	if err := isr.RejectCosmicRays(e, cfg, isr.InterpConfig{Enabled: true, PSFFWHM: 2}, quiet); err != nil {
		t.Fatal(err)
	}
	for _, x := range []int{10, 12} {
		if got := e.Image.At(x, 10); math.Abs(got-100) > 1 {
			t.Errorf("pixel (%d,10): expected ~100 got %f", x, got)
		}
	}
}

func TestBrighterFatterConverges(t *testing.T) {
	e := trimmedExposure(110)
	// kernel leaking 10% of the central pixel back: fixed point at M/1.1
	kernel := img.New(image.Rect(0, 0, 3, 3))
	kernel.Set(1, 1, 0.1)
	cfg := isr.BrighterFatterConfig{MaxIter: 50, Threshold: 1e-9}
	if err := isr.ApplyBrighterFatter(e, kernel, cfg, quiet); err != nil {
		t.Fatal(err)
	}
	if got := e.Image.At(4, 2); math.Abs(got-100) > 1e-6 {
		t.Errorf("expected 100 got %f", got)
	}
	if !e.Applied(isr.StageBrighterFatter) {
		t.Error("stage not stamped")
	}
}

func TestBrighterFatterRejectsEvenKernel(t *testing.T) {
	e := trimmedExposure(100)
	kernel := img.New(image.Rect(0, 0, 2, 3))
	cfg := isr.BrighterFatterConfig{MaxIter: 10, Threshold: 1e-3}
	if err := isr.ApplyBrighterFatter(e, kernel, cfg, quiet); !errors.Is(err, isr.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig got %v", err)
	}
}

func TestFringeNotImplemented(t *testing.T) {
	e := trimmedExposure(100)
	fringe := constFrame(calib.KindFringe, e.Bounds(), 1)
	if err := isr.CorrectFringe(e, fringe, quiet); !errors.Is(err, isr.ErrNotImplemented) {
		t.Fatalf("expected ErrNotImplemented got %v", err)
	}
}

func TestFinalizeVarianceAuditsUnits(t *testing.T) {
	e := trimmedExposure(100)
	e.Meta.Remove(img.KeyUnits)
	if err := isr.FinalizeVariance(e, quiet); !errors.Is(err, isr.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig got %v", err)
	}
	e.Meta.SetString(img.KeyUnits, img.UnitElectron)
	if err := isr.FinalizeVariance(e, quiet); err != nil {
		t.Fatal(err)
	}
	if _, ok := e.Meta.GetInt(isr.KeyNumBad); !ok {
		t.Error("quality counters not written")
	}
}

func TestCalibrationGeometryMismatch(t *testing.T) {
	e := trimmedExposure(100)
	bias := constFrame(calib.KindBias, image.Rect(0, 0, 5, 5), 1)
	if err := isr.SubtractBias(e, bias, quiet); !errors.Is(err, isr.ErrGeometryMismatch) {
		t.Fatalf("expected ErrGeometryMismatch got %v", err)
	}
}
