package calib

import (
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/astrogo/fitsio"

	"github.com/oir-lab/goisr/img"
)

// ReadFrame reads the primary HDU of a FITS stream into a Frame of the given
// kind.  Header cards are carried over into the frame's metadata as strings.
func ReadFrame(r io.ReadSeeker, kind Kind) (*Frame, error) {
	f, err := fitsio.Open(r)
	if err != nil {
		return nil, fmt.Errorf("opening FITS stream: %w", err)
	}
	defer f.Close()

	hdu := f.HDU(0)
	im, ok := hdu.(fitsio.Image)
	if !ok {
		return nil, fmt.Errorf("primary HDU of %s frame is not an image", kind)
	}
	hdr := im.Header()
	axes := hdr.Axes()
	if len(axes) < 2 || axes[0] == 0 || axes[1] == 0 {
		return nil, fmt.Errorf("%s frame is not 2-dimensional: axes %v", kind, axes)
	}
	w, h := axes[0], axes[1]

	pix, err := readPixels(im, hdr.Bitpix(), w*h)
	if err != nil {
		return nil, fmt.Errorf("reading %s pixels: %w", kind, err)
	}

	plane := &img.Image{Pix: pix, Stride: w, Rect: image.Rect(0, 0, w, h)}
	meta := make(img.Metadata)
	for _, key := range hdr.Keys() {
		card := hdr.Get(key)
		if card == nil {
			continue
		}
		meta.SetString(key, fmt.Sprint(card.Value))
	}
	return &Frame{Kind: kind, Image: plane, Meta: meta}, nil
}

// LoadFrame reads a calibration frame from a FITS file on disk.
func LoadFrame(path string, kind Kind) (*Frame, error) {
	fid, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fid.Close()
	frame, err := ReadFrame(fid, kind)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	frame.Meta.SetString(img.KeyFilename, filepath.Base(path))
	return frame, nil
}

// readPixels converts the primary data array to float64.  The destination
// slices are sized up front; fitsio fills a caller-provided buffer and needs
// it to already hold the full pixel count.
func readPixels(im fitsio.Image, bitpix, n int) ([]float64, error) {
	out := make([]float64, n)
	switch bitpix {
	case 8:
		raw := make([]int8, n)
		if err := im.Read(&raw); err != nil {
			return nil, err
		}
		for i, v := range raw {
			out[i] = float64(v)
		}
	case 16:
		raw := make([]int16, n)
		if err := im.Read(&raw); err != nil {
			return nil, err
		}
		for i, v := range raw {
			out[i] = float64(v)
		}
	case 32:
		raw := make([]int32, n)
		if err := im.Read(&raw); err != nil {
			return nil, err
		}
		for i, v := range raw {
			out[i] = float64(v)
		}
	case -32:
		raw := make([]float32, n)
		if err := im.Read(&raw); err != nil {
			return nil, err
		}
		for i, v := range raw {
			out[i] = float64(v)
		}
	case -64:
		if err := im.Read(&out); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported BITPIX %d", bitpix)
	}
	return out, nil
}

// WriteImage streams plane and metadata to w as a 64-bit float FITS file.
func WriteImage(w io.Writer, plane *img.Image, meta img.Metadata) error {
	fits, err := fitsio.Create(w)
	if err != nil {
		return err
	}
	defer fits.Close()

	dims := []int{plane.Rect.Dx(), plane.Rect.Dy()}
	im := fitsio.NewImage(-64, dims)
	defer im.Close()

	// keys longer than 8 characters (stage markers, per-amp keys) come out
	// as ESO HIERARCH cards and read back under the same name
	cards := make([]fitsio.Card, 0, len(meta))
	for k, v := range meta {
		cards = append(cards, fitsio.Card{Name: k, Value: cardValue(v)})
	}
	if err := im.Header().Append(cards...); err != nil {
		return err
	}

	buf := plane.Float64s(make([]float64, 0, dims[0]*dims[1]))
	if err := im.Write(&buf); err != nil {
		return err
	}
	return fits.Write(im)
}

// cardValue converts a metadata string back to the narrowest FITS value type.
func cardValue(s string) interface{} {
	if i, err := strconv.Atoi(s); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}
