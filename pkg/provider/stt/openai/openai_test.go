package openai_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MrWong99/voxgate/pkg/audio"
	"github.com/MrWong99/voxgate/pkg/provider/stt"
	"github.com/MrWong99/voxgate/pkg/provider/stt/openai"
)

func TestNew_MissingAPIKey(t *testing.T) {
	if _, err := openai.New("", "whisper-1"); err == nil {
		t.Fatal("expected error for empty apiKey")
	}
}

func TestTranscribe(t *testing.T) {
	var (
		gotModel, gotLang, gotFile string
		gotAuth                    string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/audio/transcriptions") {
			http.NotFound(w, r)
			return
		}
		gotAuth = r.Header.Get("Authorization")
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		gotModel = r.FormValue("model")
		gotLang = r.FormValue("language")
		if _, hdr, err := r.FormFile("file"); err == nil {
			gotFile = hdr.Filename
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"text": " こんにちは "})
	}))
	defer srv.Close()

	p, err := openai.New("sk-test", "", openai.WithBaseURL(srv.URL), openai.WithLanguage("ja"), openai.WithMaxRetries(0))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	wav := audio.EncodeWAV(make([]byte, 640), audio.Format{SampleRate: 16000, Channels: 1})
	text, err := p.Transcribe(context.Background(), stt.Request{WAV: wav})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "こんにちは" {
		t.Errorf("text = %q", text)
	}
	if gotModel != openai.DefaultModel {
		t.Errorf("model = %q, want %q", gotModel, openai.DefaultModel)
	}
	if gotLang != "ja" {
		t.Errorf("language = %q, want ja", gotLang)
	}
	if gotFile != "audio.wav" {
		t.Errorf("filename = %q, want audio.wav", gotFile)
	}
	if gotAuth != "Bearer sk-test" {
		t.Errorf("Authorization = %q", gotAuth)
	}
}

func TestTranscribe_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	p, _ := openai.New("sk-bad", "whisper-1", openai.WithBaseURL(srv.URL), openai.WithMaxRetries(0))
	if _, err := p.Transcribe(context.Background(), stt.Request{WAV: []byte("RIFF")}); err == nil {
		t.Fatal("expected error")
	}
}
