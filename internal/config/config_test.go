package config_test

import (
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/voxgate/internal/config"
	"github.com/MrWong99/voxgate/pkg/provider/llm"
	llmmock "github.com/MrWong99/voxgate/pkg/provider/llm/mock"
	"github.com/MrWong99/voxgate/pkg/provider/stt"
	sttmock "github.com/MrWong99/voxgate/pkg/provider/stt/mock"
	"github.com/MrWong99/voxgate/pkg/provider/tts"
	ttsmock "github.com/MrWong99/voxgate/pkg/provider/tts/mock"
)

// ── helpers ──────────────────────────────────────────────────────────────────

const sampleYAML = `
server:
  listen_addr: ":9000"
  log_level: debug
  ws_path: /ws/
audio:
  sample_rate: 24000
  frame_duration_ms: 20
gate:
  drop_max_bytes: 10
  keepalive_interval: 2s
vad:
  rms_threshold: 450
segmenter:
  silence_threshold: 1s
  wake_guard: 200ms
  min_frames: 8
guard:
  cooldown: 1500ms
stats:
  log_every_frames: 25
providers:
  stt:
    name: whisper
    base_url: http://localhost:8081
    options:
      language: de
  stt_fallback:
    - name: openai
      api_key: sk-test
  llm:
    name: openai
    api_key: sk-test
    model: gpt-4o-mini
  tts:
    name: openai
    api_key: sk-test
dialogue:
  system_prompt: You are a kitchen timer.
  voice: alloy
journal:
  postgres_dsn: postgres://localhost/voxgate
`

const minimalYAML = `
providers:
  stt:
    name: whisper
`

// ── YAML loading ──────────────────────────────────────────────────────────────

func TestLoadFromReader_Valid(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(sampleYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.ListenAddr != ":9000" {
		t.Errorf("server.listen_addr: got %q, want %q", cfg.Server.ListenAddr, ":9000")
	}
	if cfg.Server.LogLevel != config.LogDebug {
		t.Errorf("server.log_level: got %q, want %q", cfg.Server.LogLevel, config.LogDebug)
	}
	if cfg.Audio.SampleRate != 24000 || cfg.Audio.FrameDuration() != 20*time.Millisecond {
		t.Errorf("audio: got %+v", cfg.Audio)
	}
	if cfg.Gate.KeepaliveInterval != 2*time.Second {
		t.Errorf("gate.keepalive_interval: got %s, want 2s", cfg.Gate.KeepaliveInterval)
	}
	if cfg.Segmenter.SilenceThreshold != time.Second || cfg.Segmenter.WakeGuard != 200*time.Millisecond {
		t.Errorf("segmenter: got %+v", cfg.Segmenter)
	}
	if cfg.Guard.Cooldown != 1500*time.Millisecond {
		t.Errorf("guard.cooldown: got %s, want 1.5s", cfg.Guard.Cooldown)
	}
	if len(cfg.Providers.STTFallback) != 1 || cfg.Providers.STTFallback[0].Name != "openai" {
		t.Errorf("providers.stt_fallback: got %+v", cfg.Providers.STTFallback)
	}
	if got := cfg.Providers.STT.Option("language"); got != "de" {
		t.Errorf("providers.stt.options.language: got %q, want de", got)
	}
	if cfg.Journal.PostgresDSN == "" {
		t.Error("journal.postgres_dsn is empty")
	}
}

func TestLoadFromReader_Defaults(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(minimalYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.ListenAddr != config.DefaultListenAddr {
		t.Errorf("listen_addr: got %q", cfg.Server.ListenAddr)
	}
	if cfg.Server.WSPath != config.DefaultWSPath {
		t.Errorf("ws_path: got %q", cfg.Server.WSPath)
	}
	if cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("log_level: got %q", cfg.Server.LogLevel)
	}
	if cfg.Audio.SampleRate != 16000 || cfg.Audio.Channels != 1 || cfg.Audio.FrameDurationMs != 60 {
		t.Errorf("audio: got %+v", cfg.Audio)
	}
	if cfg.Gate.DropMaxBytes != 12 || cfg.Gate.KeepaliveMaxBytes != 1 || cfg.Gate.KeepaliveInterval != time.Second {
		t.Errorf("gate: got %+v", cfg.Gate)
	}
	if cfg.Segmenter.SilenceThreshold != 800*time.Millisecond ||
		cfg.Segmenter.WakeGuard != 300*time.Millisecond ||
		cfg.Segmenter.MinFrames != 5 ||
		cfg.Segmenter.BufferDepth != 100 {
		t.Errorf("segmenter: got %+v", cfg.Segmenter)
	}
	if cfg.Dialogue.HistorySize != 10 {
		t.Errorf("dialogue.history_size: got %d, want 10", cfg.Dialogue.HistorySize)
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	t.Parallel()
	yaml := minimalYAML + `
segmenter:
  silence_treshold: 1s
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for unknown field, got nil")
	}
	if !strings.Contains(err.Error(), "silence_treshold") {
		t.Errorf("error should mention the field, got: %v", err)
	}
}

func TestLoadFromReader_EmptyRequiresSTT(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader(""))
	if err == nil {
		t.Fatal("expected error for empty config, got nil")
	}
	if !strings.Contains(err.Error(), "providers.stt.name") {
		t.Errorf("error should mention providers.stt.name, got: %v", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()
	_, err := config.Load("/nonexistent/voxgate.yaml")
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// ── Validation ────────────────────────────────────────────────────────────────

func TestValidate_Errors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"log level", "server:\n  log_level: verbose\n", "log_level"},
		{"ws path", "server:\n  ws_path: ws\n", "ws_path"},
		{"tls incomplete", "server:\n  tls:\n    cert_file: a.pem\n", "server.tls"},
		{"sample rate", "audio:\n  sample_rate: 44100\n", "audio.sample_rate"},
		{"channels", "audio:\n  channels: 6\n", "audio.channels"},
		{"frame duration", "audio:\n  frame_duration_ms: 30\n", "audio.frame_duration_ms"},
		{"keepalive above drop", "gate:\n  drop_max_bytes: 2\n  keepalive_max_bytes: 3\n", "keepalive_max_bytes"},
		{"rms threshold", "vad:\n  rms_threshold: 40000\n", "vad.rms_threshold"},
		{"negative silence", "segmenter:\n  silence_threshold: -1s\n", "silence_threshold"},
		{"min frames above depth", "segmenter:\n  min_frames: 20\n  buffer_depth: 10\n", "min_frames"},
		{"negative cooldown", "guard:\n  cooldown: -5ms\n", "guard.cooldown"},
		{"fallback unnamed", "providers:\n  stt_fallback:\n    - api_key: x\n", "stt_fallback[0].name"},
		{"llm without tts", "providers:\n  llm:\n    name: openai\n", "configured together"},
		{"history size", "dialogue:\n  history_size: -1\n", "history_size"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			yaml := tc.yaml
			if !strings.Contains(yaml, "providers:") {
				yaml += minimalYAML
			} else {
				yaml = strings.Replace(yaml, "providers:\n", "providers:\n  stt:\n    name: whisper\n", 1)
			}
			_, err := config.LoadFromReader(strings.NewReader(yaml))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error should mention %q, got: %v", tc.want, err)
			}
		})
	}
}

func TestValidate_JoinsAllErrors(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  log_level: loud
audio:
  channels: 3
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	for _, want := range []string{"log_level", "audio.channels", "providers.stt.name"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error should mention %q, got: %v", want, err)
		}
	}
}

// ── Runtime mapping ──────────────────────────────────────────────────────────

func TestConfig_Gateway(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(sampleYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	gw := cfg.Gateway()
	p := gw.Pipeline

	if p.Format.SampleRate != 24000 || p.Format.Channels != 1 {
		t.Errorf("format: got %+v", p.Format)
	}
	if p.FrameDuration != 20*time.Millisecond {
		t.Errorf("frame duration: got %s", p.FrameDuration)
	}
	if p.Gate.DropMaxBytes != 10 || p.Gate.KeepaliveInterval != 2*time.Second {
		t.Errorf("gate: got %+v", p.Gate)
	}
	if p.VAD.RMSThreshold != 450 {
		t.Errorf("vad threshold: got %v", p.VAD.RMSThreshold)
	}
	if p.Segmenter.MinFrames != 8 {
		t.Errorf("min frames: got %d", p.Segmenter.MinFrames)
	}
	if p.Cooldown != 1500*time.Millisecond {
		t.Errorf("cooldown: got %s", p.Cooldown)
	}
	if p.LogEveryFrames != 25 {
		t.Errorf("log every: got %d", p.LogEveryFrames)
	}
	if p.Language != "de" {
		t.Errorf("language: got %q", p.Language)
	}
	if gw.Dialogue.Voice != "alloy" || gw.Dialogue.Format != p.Format || gw.Dialogue.FrameDuration != p.FrameDuration {
		t.Errorf("dialogue: got %+v", gw.Dialogue)
	}
}

func TestLogLevel_Slog(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   config.LogLevel
		want slog.Level
	}{
		{config.LogDebug, slog.LevelDebug},
		{config.LogInfo, slog.LevelInfo},
		{config.LogWarn, slog.LevelWarn},
		{config.LogError, slog.LevelError},
		{"", slog.LevelInfo},
	}
	for _, tc := range tests {
		if got := tc.in.Slog(); got != tc.want {
			t.Errorf("%q.Slog() = %v, want %v", tc.in, got, tc.want)
		}
	}
}

// ── Registry ─────────────────────────────────────────────────────────────────

func TestRegistry_NotRegistered(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()

	if _, err := reg.CreateSTT(config.ProviderEntry{Name: "nope"}); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("stt: got %v, want ErrProviderNotRegistered", err)
	}
	if _, err := reg.CreateLLM(config.ProviderEntry{Name: "nope"}); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("llm: got %v, want ErrProviderNotRegistered", err)
	}
	if _, err := reg.CreateTTS(config.ProviderEntry{Name: "nope"}); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("tts: got %v, want ErrProviderNotRegistered", err)
	}
}

func TestRegistry_Create(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()

	var gotEntry config.ProviderEntry
	reg.RegisterSTT("fake", func(e config.ProviderEntry) (stt.Provider, error) {
		gotEntry = e
		return &sttmock.Provider{}, nil
	})
	reg.RegisterLLM("fake", func(config.ProviderEntry) (llm.Provider, error) { return &llmmock.Provider{}, nil })
	reg.RegisterTTS("fake", func(config.ProviderEntry) (tts.Provider, error) { return &ttsmock.Provider{}, nil })

	entry := config.ProviderEntry{Name: "fake", Model: "m1", Options: map[string]any{"language": "en"}}
	p, err := reg.CreateSTT(entry)
	if err != nil || p == nil {
		t.Fatalf("CreateSTT: %v, %v", p, err)
	}
	if gotEntry.Model != "m1" || gotEntry.Option("language") != "en" {
		t.Errorf("factory got entry %+v", gotEntry)
	}
	if _, err := reg.CreateLLM(entry); err != nil {
		t.Errorf("CreateLLM: %v", err)
	}
	if _, err := reg.CreateTTS(entry); err != nil {
		t.Errorf("CreateTTS: %v", err)
	}
}

func TestRegistry_FactoryError(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	boom := errors.New("boom")
	reg.RegisterSTT("bad", func(config.ProviderEntry) (stt.Provider, error) { return nil, boom })

	if _, err := reg.CreateSTT(config.ProviderEntry{Name: "bad"}); !errors.Is(err, boom) {
		t.Errorf("got %v, want boom", err)
	}
}

func TestProviderEntry_Option(t *testing.T) {
	t.Parallel()
	e := config.ProviderEntry{Options: map[string]any{"language": "fr", "beam": 5}}
	if got := e.Option("language"); got != "fr" {
		t.Errorf("language: got %q", got)
	}
	if got := e.Option("beam"); got != "" {
		t.Errorf("non-string option: got %q, want empty", got)
	}
	if got := (config.ProviderEntry{}).Option("language"); got != "" {
		t.Errorf("nil options: got %q", got)
	}
}
