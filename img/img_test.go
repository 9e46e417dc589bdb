package img_test

import (
	"errors"
	"image"
	"testing"

	"github.com/oir-lab/goisr/img"
)

func TestSubImageSharesStorage(t *testing.T) {
	p := img.New(image.Rect(0, 0, 10, 10))
	sub := p.SubImage(image.Rect(2, 2, 5, 5))
	sub.Set(3, 3, 42)
	if p.At(3, 3) != 42 {
		t.Error("write through sub-image did not reach parent")
	}
	if sub.Rect != image.Rect(2, 2, 5, 5) {
		t.Errorf("wrong sub bounds %v", sub.Rect)
	}
}

func TestCloneIsDeep(t *testing.T) {
	p := img.NewFilled(image.Rect(0, 0, 4, 4), 7)
	c := p.Clone()
	c.Set(1, 1, 99)
	if p.At(1, 1) != 7 {
		t.Error("clone shares storage with original")
	}
}

func TestBinaryOpsMatchByDimensionNotBounds(t *testing.T) {
	a := img.NewFilled(image.Rect(0, 0, 4, 4), 10)
	b := img.NewFilled(image.Rect(100, 100, 104, 104), 3)
	if err := a.Sub(b); err != nil {
		t.Fatal(err)
	}
	if a.At(0, 0) != 7 {
		t.Errorf("expected 7 got %f", a.At(0, 0))
	}
}

func TestBinaryOpsRejectDimensionMismatch(t *testing.T) {
	a := img.New(image.Rect(0, 0, 4, 4))
	b := img.New(image.Rect(0, 0, 5, 4))
	err := a.Sub(b)
	if !errors.Is(err, img.ErrGeometry) {
		t.Errorf("expected ErrGeometry got %v", err)
	}
}

func TestDivNormalized(t *testing.T) {
	a := img.NewFilled(image.Rect(0, 0, 2, 2), 8)
	flat := img.NewFilled(image.Rect(0, 0, 2, 2), 2)
	if err := a.DivNormalized(flat, 4); err != nil {
		t.Fatal(err)
	}
	// 8 / (2/4) = 16
	if a.At(0, 0) != 16 {
		t.Errorf("expected 16 got %f", a.At(0, 0))
	}
}

func TestDivNormalizedSq(t *testing.T) {
	v := img.NewFilled(image.Rect(0, 0, 2, 2), 9)
	flat := img.NewFilled(image.Rect(0, 0, 2, 2), 3)
	if err := v.DivNormalizedSq(flat, 1); err != nil {
		t.Fatal(err)
	}
	if v.At(0, 0) != 1 {
		t.Errorf("expected 1 got %f", v.At(0, 0))
	}
}

func TestMaskPlanes(t *testing.T) {
	m := img.NewMask(image.Rect(0, 0, 4, 4))
	bad, err := m.PlaneBitMask(img.PlaneBad)
	if err != nil {
		t.Fatal(err)
	}
	sat, _ := m.PlaneBitMask(img.PlaneSat)
	if bad == sat {
		t.Error("distinct planes share a bit")
	}
	cr, err := m.AddPlane(img.PlaneCR)
	if err != nil {
		t.Fatal(err)
	}
	again, _ := m.AddPlane(img.PlaneCR)
	if cr != again {
		t.Error("re-adding a plane changed its bit")
	}
	if _, err := m.PlaneBitMask("NOPE"); err == nil {
		t.Error("expected error for unknown plane")
	}
}

func TestSubMaskSharesPlaneDict(t *testing.T) {
	m := img.NewMask(image.Rect(0, 0, 8, 8))
	sub := m.SubMask(image.Rect(2, 2, 6, 6))
	bit, err := sub.PlaneBitMask(img.PlaneSat)
	if err != nil {
		t.Fatal(err)
	}
	sub.Or(3, 3, bit)
	if m.At(3, 3)&bit == 0 {
		t.Error("write through sub-mask did not reach parent")
	}
}

func TestMetadataTypedAccess(t *testing.T) {
	md := make(img.Metadata)
	md.SetFloat(img.KeyGain, 1.5)
	g, ok := md.GetFloat(img.KeyGain)
	if !ok || g != 1.5 {
		t.Errorf("gain round trip failed: %v %v", g, ok)
	}
	if _, ok := md.GetFloat("MISSING"); ok {
		t.Error("expected miss for absent key")
	}
}

func TestProvenanceMarkerKeepsFirstTimestamp(t *testing.T) {
	e := img.NewExposure(image.Rect(0, 0, 2, 2), nil)
	e.MarkApplied("ISR_TEST", "first")
	v1 := e.Meta.GetString("ISR_TEST")
	e.MarkApplied("ISR_TEST", "second")
	v2 := e.Meta.GetString("ISR_TEST")
	if v1 != v2 {
		t.Errorf("marker rewritten: %q then %q", v1, v2)
	}
	e.ClearApplied("ISR_TEST")
	if e.Applied("ISR_TEST") {
		t.Error("marker not cleared")
	}
}

func TestCheckPlanes(t *testing.T) {
	e := img.NewExposure(image.Rect(0, 0, 4, 4), nil)
	if err := e.CheckPlanes(); err != nil {
		t.Fatal(err)
	}
	e.Variance = img.New(image.Rect(0, 0, 3, 4))
	if err := e.CheckPlanes(); !errors.Is(err, img.ErrGeometry) {
		t.Errorf("expected ErrGeometry got %v", err)
	}
}
