package vad_test

import (
	"testing"

	"github.com/MrWong99/voxgate/internal/vad"
	"github.com/MrWong99/voxgate/pkg/audio"
)

func constant(sample int16, n int) []byte {
	s := make([]int16, n)
	for i := range s {
		if i%2 == 0 {
			s[i] = sample
		} else {
			s[i] = -sample
		}
	}
	return audio.Int16sToBytes(s)
}

func TestClassify(t *testing.T) {
	t.Parallel()
	d := vad.New(vad.Config{RMSThreshold: 250, FallbackVoiceBytes: 30})

	tests := []struct {
		name         string
		payload      int
		pcm          []byte
		wantSpeech   bool
		wantFallback bool
	}{
		{"loud pcm", 80, constant(1000, 960), true, false},
		{"at threshold", 80, constant(250, 960), true, false},
		{"quiet pcm", 80, constant(50, 960), false, false},
		{"quiet pcm large payload", 400, constant(10, 960), false, false},
		{"fallback large", 31, nil, true, true},
		{"fallback boundary", 30, nil, false, true},
		{"fallback single byte pcm", 100, []byte{1}, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := d.Classify(tt.payload, tt.pcm)
			if got.Speech != tt.wantSpeech {
				t.Errorf("Speech = %v, want %v (energy %.1f)", got.Speech, tt.wantSpeech, got.Energy)
			}
			if got.Fallback != tt.wantFallback {
				t.Errorf("Fallback = %v, want %v", got.Fallback, tt.wantFallback)
			}
		})
	}
}

func TestNew_Defaults(t *testing.T) {
	cfg := vad.New(vad.Config{}).Config()
	if cfg.RMSThreshold != vad.DefaultRMSThreshold || cfg.FallbackVoiceBytes != vad.DefaultFallbackVoiceBytes {
		t.Errorf("defaults = %+v", cfg)
	}
}
