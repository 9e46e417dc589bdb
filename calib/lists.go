package calib

import (
	"fmt"
	"image"
	"os"

	"gopkg.in/yaml.v2"
)

// defectEntry is the YAML shape of one defect region.
type defectEntry struct {
	X0 int `yaml:"x0"`
	Y0 int `yaml:"y0"`
	X1 int `yaml:"x1"`
	Y1 int `yaml:"y1"`
}

type defectFile struct {
	Defects []defectEntry `yaml:"defects"`
}

// LoadDefects reads a YAML defect list into bounding boxes.  Boxes are
// half-open, detector coordinates.
func LoadDefects(path string) ([]image.Rectangle, error) {
	fid, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fid.Close()

	var df defectFile
	if err := yaml.NewDecoder(fid).Decode(&df); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	out := make([]image.Rectangle, 0, len(df.Defects))
	for i, d := range df.Defects {
		r := image.Rect(d.X0, d.Y0, d.X1, d.Y1)
		if r.Empty() {
			return nil, fmt.Errorf("%s: defect %d is empty: %+v", path, i, d)
		}
		out = append(out, r)
	}
	return out, nil
}

// CrosstalkMatrix carries the amplifier ordering and the coefficient matrix
// coeffs[source][target].
type CrosstalkMatrix struct {
	Amps   []string    `yaml:"amps"`
	Coeffs [][]float64 `yaml:"coeffs"`
}

// LoadCrosstalk reads a YAML crosstalk coefficient file and validates that
// the matrix is square and matches the amplifier list.
func LoadCrosstalk(path string) (*CrosstalkMatrix, error) {
	fid, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fid.Close()

	var m CrosstalkMatrix
	if err := yaml.NewDecoder(fid).Decode(&m); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &m, nil
}

// Validate checks matrix shape against the amplifier list.
func (m *CrosstalkMatrix) Validate() error {
	n := len(m.Amps)
	if len(m.Coeffs) != n {
		return fmt.Errorf("crosstalk matrix has %d rows for %d amps", len(m.Coeffs), n)
	}
	for i, row := range m.Coeffs {
		if len(row) != n {
			return fmt.Errorf("crosstalk matrix row %d has %d entries for %d amps", i, len(row), n)
		}
	}
	return nil
}
