package isr

import "errors"

// Error taxonomy for the correction stages.  Stages wrap these with context
// via fmt.Errorf("...: %w", ...) so callers classify with errors.Is.
var (
	// ErrInvalidConfig marks an unknown or unsupported enumerated mode
	// (overscan fit type, flat scaling policy, table mode) or a unit tag
	// that disagrees with the operations applied.  Fatal.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrGeometryMismatch marks declared region dimensions that disagree
	// with the amplifier or detector geometry.  Fatal.
	ErrGeometryMismatch = errors.New("geometry mismatch")

	// ErrMissingKey marks an absent required scale-reference metadata key on
	// a calibration product or exposure.
	ErrMissingKey = errors.New("missing metadata key")

	// ErrNonFinite marks a NaN or infinite exposure-wide parameter.
	// Per-amplifier non-finite gains are not errors; the amplifier is
	// masked bad instead.
	ErrNonFinite = errors.New("non-finite parameter")

	// ErrNotImplemented marks a declared but unimplemented correction mode.
	ErrNotImplemented = errors.New("not implemented")
)
