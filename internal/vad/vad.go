// Package vad classifies single frames as speech or silence by energy.
//
// Classification is stateless: every temporal decision (wake guard, silence
// timeout, minimum length) belongs to the segmenter.
package vad

import "github.com/MrWong99/voxgate/pkg/audio"

// Defaults for [Config].
const (
	DefaultRMSThreshold       = 300.0
	DefaultFallbackVoiceBytes = 30
)

// Config holds the detector thresholds.
type Config struct {
	// RMSThreshold is the root-mean-square level, in 16-bit sample units, at or
	// above which a decoded frame counts as speech.
	RMSThreshold float64

	// FallbackVoiceBytes is used when no PCM is available: a compressed
	// payload strictly larger than this is treated as speech.
	FallbackVoiceBytes int
}

// Decision is the per-frame classification.
type Decision struct {
	Speech bool

	// Energy is the RMS of the decoded frame, or 0 in fallback mode.
	Energy float64

	// Fallback is true when the decision was made from payload size.
	Fallback bool
}

// Detector applies a Config. The zero value is not usable; use New.
type Detector struct {
	cfg Config
}

// New returns a Detector, substituting defaults for non-positive fields.
func New(cfg Config) *Detector {
	if cfg.RMSThreshold <= 0 {
		cfg.RMSThreshold = DefaultRMSThreshold
	}
	if cfg.FallbackVoiceBytes <= 0 {
		cfg.FallbackVoiceBytes = DefaultFallbackVoiceBytes
	}
	return &Detector{cfg: cfg}
}

// Config returns the effective thresholds.
func (d *Detector) Config() Config { return d.cfg }

// Classify decides speech or silence for one frame. pcm is the decoded block,
// or nil if decoding failed or no decoder is available, in which case the
// coarse size heuristic on payloadSize is used.
func (d *Detector) Classify(payloadSize int, pcm []byte) Decision {
	if len(pcm) < 2 {
		return Decision{
			Speech:   payloadSize > d.cfg.FallbackVoiceBytes,
			Fallback: true,
		}
	}
	e := audio.RMS(pcm)
	return Decision{Speech: e >= d.cfg.RMSThreshold, Energy: e}
}
