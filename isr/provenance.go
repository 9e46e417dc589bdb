package isr

// Stage provenance keys.  Each correction stage checks its key in the
// exposure metadata before running and stamps it on success, so any stage
// executes at most once per exposure.  The stored value reads
// "<summary>; <RFC1123 timestamp>".
const (
	StageOverscan       = "ISR_OSCAN"
	StageTrim           = "ISR_TRIM"
	StageCrosstalk      = "ISR_XTALK"
	StageBias           = "ISR_BIAS"
	StageDark           = "ISR_DARK"
	StageLinearity      = "ISR_LIN"
	StageFlat           = "ISR_DFLAT"
	StageIllum          = "ISR_ILLUM"
	StageDefects        = "ISR_BADP"
	StageSaturation     = "ISR_SAT"
	StageCosmicRays     = "ISR_CRREJ"
	StageBrighterFatter = "ISR_BF"
	StageFringe         = "ISR_FRING"
	StageVariance       = "ISR_VAR"
)

// Quality counters written by the variance finalizer.  These are plain
// metadata entries, not provenance markers, and are recomputed freely.
const (
	KeyNumBad    = "ISR_NBAD"
	KeyNumSat    = "ISR_NSAT"
	KeyNumInterp = "ISR_NINT"
)

// KeyBiasSec is the per-amplifier overscan section reference removed by the
// overscan and trim stages once it no longer applies.
const KeyBiasSec = "BIASSEC"
