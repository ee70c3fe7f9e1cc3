package openai_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MrWong99/voxgate/pkg/provider/tts"
	"github.com/MrWong99/voxgate/pkg/provider/tts/openai"
)

func TestNew_Validation(t *testing.T) {
	if _, err := openai.New("", ""); err == nil {
		t.Error("expected error for empty apiKey")
	}
	if _, err := openai.New("sk-test", "", openai.WithSpeed(9)); err == nil {
		t.Error("expected error for speed out of range")
	}
}

func TestSynthesize(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/audio/speech") {
			http.NotFound(w, r)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write(make([]byte, 4801)) // odd length is trimmed
	}))
	defer srv.Close()

	p, err := openai.New("sk-test", "", openai.WithBaseURL(srv.URL), openai.WithVoice("nova"), openai.WithMaxRetries(0))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	sp, err := p.Synthesize(context.Background(), tts.Request{Text: "Timer set."})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if len(sp.PCM) != 4800 {
		t.Errorf("pcm bytes = %d, want 4800", len(sp.PCM))
	}
	if sp.Format.SampleRate != 24000 || sp.Format.Channels != 1 {
		t.Errorf("format = %v", sp.Format)
	}
	want := map[string]string{
		"input":           "Timer set.",
		"model":           openai.DefaultModel,
		"voice":           "nova",
		"response_format": "pcm",
	}
	for k, v := range want {
		if body[k] != v {
			t.Errorf("request %s = %v, want %q", k, body[k], v)
		}
	}
}

func TestSynthesize_RequestVoiceOverrides(t *testing.T) {
	var voice any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		voice = body["voice"]
		_, _ = w.Write([]byte{0, 0})
	}))
	defer srv.Close()

	p, _ := openai.New("sk-test", "tts-1", openai.WithBaseURL(srv.URL), openai.WithMaxRetries(0))
	if _, err := p.Synthesize(context.Background(), tts.Request{Text: "hi", Voice: "echo"}); err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if voice != "echo" {
		t.Errorf("voice = %v, want echo", voice)
	}
}
