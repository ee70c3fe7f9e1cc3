// Package audio holds the device audio primitives: compressed frames, the PCM
// helpers used by voice detection, and the bridge that packages decoded PCM
// into a self-describing WAV container for transcription.
package audio

import (
	"errors"
	"time"
)

// ErrNoDecodableFrames is returned by [Bridge.Assemble] when none of the
// frames of an utterance carried decoded PCM.
var ErrNoDecodableFrames = errors.New("audio: no decodable frames")

// Frame is a single compressed audio packet received from a device.
// Frames are strictly ordered by arrival and never reordered.
type Frame struct {
	// Payload is the compressed (Opus) packet exactly as received.
	Payload []byte

	// PCM is the decoded little-endian int16 block for this frame, produced
	// once by the session decoder at ingestion. Nil when decoding failed or
	// the session runs without a decoder.
	PCM []byte

	// ReceivedAt is the arrival time at the gateway.
	ReceivedAt time.Time
}

// Decoder turns one compressed frame into a fixed-size PCM block.
// Implementations keep codec state across calls and are used by exactly one
// session goroutine.
type Decoder interface {
	Decode(payload []byte) ([]byte, error)
}
