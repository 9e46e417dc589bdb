package isr

import (
	"fmt"
	"math"
)

// TableMode selects how a lookup table is applied to a pixel.
type TableMode string

// Lookup table application modes.
const (
	TableReplace        TableMode = "REPLACE"
	TableMultiplicative TableMode = "MULT"
)

// LookupTable maps a pixel value, by index, to either a replacement value or
// a multiplicative correction factor.  Immutable once constructed.
type LookupTable struct {
	mode   TableMode
	values []float64
}

// NewLookupTable validates and builds a table.  length is the declared table
// length and must equal len(values); every value must be finite.
func NewLookupTable(mode TableMode, length int, values []float64) (*LookupTable, error) {
	switch mode {
	case TableReplace, TableMultiplicative:
	default:
		return nil, fmt.Errorf("%w: lookup table mode %q", ErrInvalidConfig, mode)
	}
	if length != len(values) {
		return nil, fmt.Errorf("%w: table declares length %d but carries %d values",
			ErrInvalidConfig, length, len(values))
	}
	if length == 0 {
		return nil, fmt.Errorf("%w: empty lookup table", ErrInvalidConfig)
	}
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: table value %d is %f", ErrNonFinite, i, v)
		}
	}
	vals := make([]float64, len(values))
	copy(vals, values)
	return &LookupTable{mode: mode, values: vals}, nil
}

// Mode returns the application mode.
func (t *LookupTable) Mode() TableMode { return t.mode }

// Len returns the table length.
func (t *LookupTable) Len() int { return len(t.values) }

// index maps a pixel value to a clamped table index by rounding.
func (t *LookupTable) index(v float64) int {
	if math.IsNaN(v) {
		return 0
	}
	i := int(math.Round(v))
	if i < 0 {
		return 0
	}
	if i >= len(t.values) {
		return len(t.values) - 1
	}
	return i
}

// Apply returns the corrected pixel value for v, with indexGain scaling the
// lookup index.  In Replace mode the table entry is the new value and the
// multiplicative factor comes back as NaN; in Multiplicative mode the entry
// is the factor and the new value is v*factor.
func (t *LookupTable) Apply(v, indexGain float64) (out, factor float64) {
	entry := t.values[t.index(v*indexGain)]
	switch t.mode {
	case TableReplace:
		return entry, math.NaN()
	default:
		return v * entry, entry
	}
}
