package session

import (
	"strconv"
	"time"

	"justintune/utils"
)

// Config holds the knobs driving identification gating and
// score-following prediction. Zero values are never used directly;
// build one with DefaultConfig or ConfigFromEnv.
type Config struct {
	// NgramSize is the n-gram length used by the fingerprint index.
	NgramSize int
	// NoteThreshold is the minimum number of buffered notes before an
	// identification attempt fires.
	NoteThreshold int
	// ConfidenceThreshold is the minimum confidence (0-100) a top
	// match needs to be accepted.
	ConfidenceThreshold float64
	// IdentifyInterval is the minimum wait between identification attempts.
	IdentifyInterval time.Duration
	// BufferCapacity bounds the performed-note buffer; oldest notes
	// are dropped past it.
	BufferCapacity int
	// TopK is how many ranked candidates an identification returns.
	TopK int
	// LookaheadSeconds is the prediction horizon for tuning updates.
	LookaheadSeconds float64
	// DefaultTempoBPM drives the prediction time grid.
	DefaultTempoBPM float64
	// GracePeriod is how long a disconnected session stays adoptable.
	GracePeriod time.Duration
}

func DefaultConfig() Config {
	return Config{
		NgramSize:           4,
		NoteThreshold:       30,
		ConfidenceThreshold: 30.0,
		IdentifyInterval:    10 * time.Second,
		BufferCapacity:      500,
		TopK:                3,
		LookaheadSeconds:    2.0,
		DefaultTempoBPM:     120,
		GracePeriod:         5 * time.Second,
	}
}

// ConfigFromEnv overlays environment variables on the defaults.
// Malformed values fall back silently; the defaults are always sane.
func ConfigFromEnv() Config {
	cfg := DefaultConfig()
	cfg.NgramSize = envInt("NGRAM_SIZE", cfg.NgramSize)
	cfg.NoteThreshold = envInt("IDENTIFY_NOTE_THRESHOLD", cfg.NoteThreshold)
	cfg.ConfidenceThreshold = envFloat("CONFIDENCE_THRESHOLD", cfg.ConfidenceThreshold)
	cfg.BufferCapacity = envInt("BUFFER_CAPACITY", cfg.BufferCapacity)
	cfg.LookaheadSeconds = envFloat("LOOKAHEAD_SECONDS", cfg.LookaheadSeconds)
	cfg.DefaultTempoBPM = envFloat("DEFAULT_TEMPO_BPM", cfg.DefaultTempoBPM)

	if sec := envInt("IDENTIFY_INTERVAL_SEC", int(cfg.IdentifyInterval/time.Second)); sec > 0 {
		cfg.IdentifyInterval = time.Duration(sec) * time.Second
	}
	if sec := envInt("SESSION_GRACE_SEC", int(cfg.GracePeriod/time.Second)); sec >= 0 {
		cfg.GracePeriod = time.Duration(sec) * time.Second
	}
	return cfg
}

func envInt(key string, fallback int) int {
	v, err := strconv.Atoi(utils.GetEnv(key, ""))
	if err != nil {
		return fallback
	}
	return v
}

func envFloat(key string, fallback float64) float64 {
	v, err := strconv.ParseFloat(utils.GetEnv(key, ""), 64)
	if err != nil {
		return fallback
	}
	return v
}
