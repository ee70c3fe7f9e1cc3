// Package stt defines the Provider interface for speech-to-text backends.
//
// A provider receives one complete utterance packaged as a self-describing
// WAV container and returns the recognised text. Utterance segmentation
// happens upstream in the gateway, so providers are plain request/response
// adapters with no streaming state.
//
// Implementations must be safe for concurrent use.
package stt

import "context"

// Request is a single transcription call.
type Request struct {
	// WAV is a complete RIFF/WAV file (mono, 16-bit PCM).
	WAV []byte

	// Language is an optional BCP-47 or ISO-639-1 hint (e.g., "en", "ja").
	// An empty string lets the provider auto-detect.
	Language string

	// Prompt is optional vocabulary or style context for the recogniser.
	Prompt string
}

// Provider is the abstraction over any STT backend.
type Provider interface {
	// Transcribe returns the recognised text of req. An utterance with no
	// recognisable speech yields an empty string and a nil error.
	Transcribe(ctx context.Context, req Request) (string, error)
}
