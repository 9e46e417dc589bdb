package rec_test

import (
	"bytes"
	"image"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/oir-lab/goisr/img"
	"github.com/oir-lab/goisr/rec"
)

func TestSaveExposureWritesDatedSequence(t *testing.T) {
	root := t.TempDir()
	r := &rec.Recorder{Root: root, Prefix: "isr_"}

	e := img.NewExposure(image.Rect(0, 0, 4, 4), nil)
	e.Image.Fill(1)

	p1, err := r.SaveExposure(e)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(p1, "isr_000000.fits") {
		t.Errorf("unexpected path %s", p1)
	}
	r.Incr()
	p2, err := r.SaveExposure(e)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(p2, "isr_000001.fits") {
		t.Errorf("counter did not advance: %s", p2)
	}
	if filepath.Dir(p1) == root {
		t.Error("frames not written into a dated subfolder")
	}
	if _, err := os.Stat(p2); err != nil {
		t.Fatal(err)
	}
}

func TestWriteStoresEncodedBytes(t *testing.T) {
	root := t.TempDir()
	r := &rec.Recorder{Root: root, Prefix: "raw_"}
	payload := []byte("SIMPLE  =                    T")

	n, err := r.Write(payload)
	if err != nil {
		t.Fatal(err)
	}
	if n != len(payload) {
		t.Errorf("short write: %d of %d", n, len(payload))
	}
	matches, err := filepath.Glob(filepath.Join(root, "*", "raw_000000.fits"))
	if err != nil || len(matches) != 1 {
		t.Fatalf("expected one recorded file, got %v (%v)", matches, err)
	}
	got, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("stored bytes differ: %q", got)
	}
}

func TestIncrScansExistingFiles(t *testing.T) {
	root := t.TempDir()
	r := &rec.Recorder{Root: root, Prefix: "seq_"}
	e := img.NewExposure(image.Rect(0, 0, 2, 2), nil)
	if _, err := r.SaveExposure(e); err != nil {
		t.Fatal(err)
	}

	fresh := &rec.Recorder{Root: root, Prefix: "seq_"}
	fresh.Incr()
	p, err := fresh.SaveExposure(e)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(p, "seq_000001.fits") {
		t.Errorf("fresh recorder did not resume the sequence: %s", p)
	}
}
