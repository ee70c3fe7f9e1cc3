package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"stt": {"whisper", "openai"},
	"llm": {"openai"},
	"tts": {"openai"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied.
// It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and validates
// the result. Unknown keys are rejected. An empty document yields the
// defaults, which fail validation because no STT provider is set.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.WSPath != "" && !strings.HasPrefix(cfg.Server.WSPath, "/") {
		errs = append(errs, fmt.Errorf("server.ws_path %q must start with /", cfg.Server.WSPath))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Audio
	switch cfg.Audio.SampleRate {
	case 8000, 12000, 16000, 24000, 48000:
	default:
		errs = append(errs, fmt.Errorf("audio.sample_rate %d is not an opus rate; valid values: 8000, 12000, 16000, 24000, 48000", cfg.Audio.SampleRate))
	}
	if cfg.Audio.Channels != 1 && cfg.Audio.Channels != 2 {
		errs = append(errs, fmt.Errorf("audio.channels %d is invalid; valid values: 1, 2", cfg.Audio.Channels))
	}
	switch cfg.Audio.FrameDurationMs {
	case 10, 20, 40, 60:
	default:
		errs = append(errs, fmt.Errorf("audio.frame_duration_ms %d is invalid; valid values: 10, 20, 40, 60", cfg.Audio.FrameDurationMs))
	}
	if cfg.Audio.ContainerSampleRate < 0 {
		errs = append(errs, fmt.Errorf("audio.container_sample_rate %d must not be negative", cfg.Audio.ContainerSampleRate))
	}

	// Gate
	if cfg.Gate.DropMaxBytes < 0 || cfg.Gate.KeepaliveMaxBytes < 0 {
		errs = append(errs, errors.New("gate thresholds must not be negative"))
	}
	if cfg.Gate.KeepaliveMaxBytes > cfg.Gate.DropMaxBytes {
		errs = append(errs, fmt.Errorf("gate.keepalive_max_bytes %d exceeds gate.drop_max_bytes %d", cfg.Gate.KeepaliveMaxBytes, cfg.Gate.DropMaxBytes))
	}
	if cfg.Gate.KeepaliveInterval < 0 {
		errs = append(errs, fmt.Errorf("gate.keepalive_interval %s must not be negative", cfg.Gate.KeepaliveInterval))
	}

	// VAD
	if cfg.VAD.RMSThreshold < 0 || cfg.VAD.RMSThreshold > 32768 {
		errs = append(errs, fmt.Errorf("vad.rms_threshold %.1f is out of range [0, 32768]", cfg.VAD.RMSThreshold))
	}
	if cfg.VAD.FallbackVoiceBytes < 0 {
		errs = append(errs, fmt.Errorf("vad.fallback_voice_bytes %d must not be negative", cfg.VAD.FallbackVoiceBytes))
	}

	// Segmenter
	s := cfg.Segmenter
	if s.SilenceThreshold < 0 {
		errs = append(errs, fmt.Errorf("segmenter.silence_threshold %s must not be negative", s.SilenceThreshold))
	}
	if s.WakeGuard < 0 {
		errs = append(errs, fmt.Errorf("segmenter.wake_guard %s must not be negative", s.WakeGuard))
	}
	if s.WakeGuard > s.SilenceThreshold {
		slog.Warn("segmenter.wake_guard exceeds silence_threshold; utterances close after the wake guard",
			"wake_guard", s.WakeGuard,
			"silence_threshold", s.SilenceThreshold,
		)
	}
	if s.MinFrames < 0 {
		errs = append(errs, fmt.Errorf("segmenter.min_frames %d must not be negative", s.MinFrames))
	}
	if s.BufferDepth < 0 {
		errs = append(errs, fmt.Errorf("segmenter.buffer_depth %d must not be negative", s.BufferDepth))
	} else if s.MinFrames > s.BufferDepth {
		errs = append(errs, fmt.Errorf("segmenter.min_frames %d exceeds segmenter.buffer_depth %d", s.MinFrames, s.BufferDepth))
	}
	if s.TickInterval < 0 {
		errs = append(errs, fmt.Errorf("segmenter.tick_interval %s must not be negative", s.TickInterval))
	}

	// Guard
	if cfg.Guard.Cooldown < 0 {
		errs = append(errs, fmt.Errorf("guard.cooldown %s must not be negative", cfg.Guard.Cooldown))
	}

	// Stats
	if cfg.Stats.LogEveryFrames < 0 || cfg.Stats.ListenLogEveryFrames < 0 {
		errs = append(errs, errors.New("stats intervals must not be negative"))
	}

	// Providers
	if cfg.Providers.STT.Name == "" {
		errs = append(errs, errors.New("providers.stt.name is required"))
	}
	validateProviderName("stt", cfg.Providers.STT.Name)
	for i, fb := range cfg.Providers.STTFallback {
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("providers.stt_fallback[%d].name is required", i))
			continue
		}
		validateProviderName("stt", fb.Name)
	}
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)

	// LLM ↔ TTS cross-validation
	hasLLM, hasTTS := cfg.Providers.LLM.Name != "", cfg.Providers.TTS.Name != ""
	if hasLLM != hasTTS {
		errs = append(errs, errors.New("providers.llm and providers.tts must be configured together"))
	}
	if !hasLLM && !hasTTS {
		slog.Warn("no LLM or TTS provider configured; transcripts will be logged but not answered")
	}

	// Dialogue
	if cfg.Dialogue.HistorySize < 0 {
		errs = append(errs, fmt.Errorf("dialogue.history_size %d must not be negative", cfg.Dialogue.HistorySize))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name; may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
