// Package tts defines the Provider interface for speech synthesis.
//
// Providers return raw PCM so that the gateway can convert and encode the
// reply in whatever format the device negotiated. Implementations must be
// safe for concurrent use.
package tts

import (
	"context"

	"github.com/MrWong99/voxgate/pkg/audio"
)

// Request is one synthesis call.
type Request struct {
	Text string

	// Voice is a provider-specific voice identifier; empty selects the
	// provider default.
	Voice string
}

// Speech is synthesized audio as little-endian 16-bit PCM.
type Speech struct {
	PCM    []byte
	Format audio.Format
}

// Provider is the abstraction over any TTS backend.
type Provider interface {
	Synthesize(ctx context.Context, req Request) (*Speech, error)
}
