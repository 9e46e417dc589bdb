package img

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Common metadata keys.
const (
	KeyExpTime  = "EXPTIME"
	KeyGain     = "GAIN"
	KeySaturate = "SATURATE"
	KeyUnits    = "UNITS"
	KeyMeanCnts = "MEANCNTS"
	KeyFilename = "FILENAME"
)

// Pixel unit tags stored under KeyUnits.
const (
	UnitADU      = "adu"
	UnitElectron = "electron"
)

// Metadata is a string-keyed key/value store used both for physical
// parameters (gain, exposure time) and for pipeline provenance markers.
// Values are stored as strings with typed accessors, FITS-header style.
type Metadata map[string]string

// Has reports whether key is present.
func (md Metadata) Has(key string) bool {
	_, ok := md[key]
	return ok
}

// GetString returns the raw value for key, or "" when absent.
func (md Metadata) GetString(key string) string {
	return md[key]
}

// SetString stores value under key.
func (md Metadata) SetString(key, value string) {
	md[key] = value
}

// GetFloat parses the value for key as a float64.
func (md Metadata) GetFloat(key string) (float64, bool) {
	v, ok := md[key]
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// SetFloat stores a float64 under key.
func (md Metadata) SetFloat(key string, v float64) {
	md[key] = strconv.FormatFloat(v, 'g', -1, 64)
}

// GetInt parses the value for key as an int.
func (md Metadata) GetInt(key string) (int, bool) {
	v, ok := md[key]
	if !ok {
		return 0, false
	}
	i, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, false
	}
	return i, true
}

// SetInt stores an int under key.
func (md Metadata) SetInt(key string, v int) {
	md[key] = strconv.Itoa(v)
}

// Remove deletes key.
func (md Metadata) Remove(key string) {
	delete(md, key)
}

// Clone returns a copy of md.
func (md Metadata) Clone() Metadata {
	out := make(Metadata, len(md))
	for k, v := range md {
		out[k] = v
	}
	return out
}

// AmpKey builds a per-amplifier metadata key, e.g. AmpKey("SATURATE", "C00")
// yields "SATURATE_C00".
func AmpKey(key, ampName string) string {
	return fmt.Sprintf("%s_%s", key, ampName)
}

// provenance markers are stored as "<summary>; <timestamp>" so a human can
// read the trail straight out of a header dump.

// Applied reports whether a provenance marker exists under key.
func (md Metadata) Applied(key string) bool {
	return md.Has(key)
}

// MarkApplied records a provenance marker under key.  An existing marker is
// left untouched so the original timestamp survives repeat calls.
func (md Metadata) MarkApplied(key, summary string, at time.Time) {
	if md.Has(key) {
		return
	}
	md[key] = fmt.Sprintf("%s; %s", summary, at.Format(time.RFC1123))
}

// ClearApplied removes a provenance marker.
func (md Metadata) ClearApplied(key string) {
	delete(md, key)
}
