// Package config provides the configuration schema, loader, hot-reload watcher
// and provider registry for the voxgate server.
package config

import (
	"log/slog"
	"time"

	"github.com/MrWong99/voxgate/internal/dialogue"
	"github.com/MrWong99/voxgate/internal/gate"
	"github.com/MrWong99/voxgate/internal/gateway"
	"github.com/MrWong99/voxgate/internal/pipeline"
	"github.com/MrWong99/voxgate/internal/segment"
	"github.com/MrWong99/voxgate/internal/vad"
	"github.com/MrWong99/voxgate/pkg/audio"
)

// LogLevel controls log verbosity for the voxgate server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Slog maps l to a [slog.Level]. Unknown and empty levels map to Info.
func (l LogLevel) Slog() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Config is the root configuration structure for voxgate.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Audio     AudioConfig     `yaml:"audio"`
	Gate      GateConfig      `yaml:"gate"`
	VAD       VADConfig       `yaml:"vad"`
	Segmenter SegmenterConfig `yaml:"segmenter"`
	Guard     GuardConfig     `yaml:"guard"`
	Stats     StatsConfig     `yaml:"stats"`
	Providers ProvidersConfig `yaml:"providers"`
	Dialogue  DialogueConfig  `yaml:"dialogue"`
	Journal   JournalConfig   `yaml:"journal"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8000").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// WSPath is the HTTP path of the device WebSocket endpoint.
	WSPath string `yaml:"ws_path"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds paths to the TLS certificate and private key files.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// AudioConfig describes the device audio format.
type AudioConfig struct {
	SampleRate      int `yaml:"sample_rate"`
	Channels        int `yaml:"channels"`
	FrameDurationMs int `yaml:"frame_duration_ms"`

	// ContainerSampleRate is the rate of the WAV handed to transcription.
	ContainerSampleRate int `yaml:"container_sample_rate"`
}

// FrameDuration returns FrameDurationMs as a [time.Duration].
func (a AudioConfig) FrameDuration() time.Duration {
	return time.Duration(a.FrameDurationMs) * time.Millisecond
}

// GateConfig holds the packet size thresholds.
type GateConfig struct {
	DropMaxBytes      int           `yaml:"drop_max_bytes"`
	KeepaliveMaxBytes int           `yaml:"keepalive_max_bytes"`
	KeepaliveInterval time.Duration `yaml:"keepalive_interval"`
}

// VADConfig holds the voice detector thresholds.
type VADConfig struct {
	RMSThreshold       float64 `yaml:"rms_threshold"`
	FallbackVoiceBytes int     `yaml:"fallback_voice_bytes"`
}

// SegmenterConfig holds utterance boundary timing.
type SegmenterConfig struct {
	SilenceThreshold time.Duration `yaml:"silence_threshold"`
	WakeGuard        time.Duration `yaml:"wake_guard"`
	MinFrames        int           `yaml:"min_frames"`
	BufferDepth      int           `yaml:"buffer_depth"`
	TickInterval     time.Duration `yaml:"tick_interval"`
}

// GuardConfig holds the echo guard settings.
type GuardConfig struct {
	// Cooldown is how long inbound audio is dropped after playback ends.
	Cooldown time.Duration `yaml:"cooldown"`
}

// StatsConfig controls how often connection counters are logged.
type StatsConfig struct {
	LogEveryFrames       int `yaml:"log_every_frames"`
	ListenLogEveryFrames int `yaml:"listen_log_every_frames"`
}

// ProvidersConfig selects the backend for each external service.
type ProvidersConfig struct {
	STT ProviderEntry `yaml:"stt"`

	// STTFallback lists transcribers tried in order when STT fails.
	STTFallback []ProviderEntry `yaml:"stt_fallback"`

	LLM ProviderEntry `yaml:"llm"`
	TTS ProviderEntry `yaml:"tts"`
}

// ProviderEntry is the common configuration shape for a provider.
type ProviderEntry struct {
	// Name is the registered provider name (e.g., "openai", "whisper").
	Name string `yaml:"name"`

	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`

	// Options holds provider-specific settings such as "language".
	Options map[string]any `yaml:"options"`
}

// Option returns the string option stored under key. It returns "" if the
// key is absent or not a string.
func (e ProviderEntry) Option(key string) string {
	s, _ := e.Options[key].(string)
	return s
}

// DialogueConfig configures reply generation.
type DialogueConfig struct {
	SystemPrompt string `yaml:"system_prompt"`
	HistorySize  int    `yaml:"history_size"`
	Voice        string `yaml:"voice"`
}

// JournalConfig configures the dialogue journal.
type JournalConfig struct {
	// PostgresDSN enables the journal when non-empty.
	PostgresDSN string `yaml:"postgres_dsn"`
}

// ── Defaults ─────────────────────────────────────────────────────────────────

// Defaults applied by [ApplyDefaults].
const (
	DefaultListenAddr = ":8000"
	DefaultWSPath     = "/xiaozhi/v1/"
)

// ApplyDefaults fills every zero field of cfg with its default value.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Server.WSPath == "" {
		cfg.Server.WSPath = DefaultWSPath
	}

	def := pipeline.DefaultConfig()
	a := &cfg.Audio
	if a.SampleRate == 0 {
		a.SampleRate = def.Format.SampleRate
	}
	if a.Channels == 0 {
		a.Channels = def.Format.Channels
	}
	if a.FrameDurationMs == 0 {
		a.FrameDurationMs = int(def.FrameDuration / time.Millisecond)
	}
	if a.ContainerSampleRate == 0 {
		a.ContainerSampleRate = def.ContainerRate
	}

	g := &cfg.Gate
	if g.DropMaxBytes == 0 {
		g.DropMaxBytes = def.Gate.DropMaxBytes
	}
	if g.KeepaliveMaxBytes == 0 {
		g.KeepaliveMaxBytes = def.Gate.KeepaliveMaxBytes
	}
	if g.KeepaliveInterval == 0 {
		g.KeepaliveInterval = def.Gate.KeepaliveInterval
	}

	if cfg.VAD.RMSThreshold == 0 {
		cfg.VAD.RMSThreshold = vad.DefaultRMSThreshold
	}
	if cfg.VAD.FallbackVoiceBytes == 0 {
		cfg.VAD.FallbackVoiceBytes = vad.DefaultFallbackVoiceBytes
	}

	s := &cfg.Segmenter
	if s.SilenceThreshold == 0 {
		s.SilenceThreshold = segment.DefaultSilenceThreshold
	}
	if s.WakeGuard == 0 {
		s.WakeGuard = segment.DefaultWakeGuard
	}
	if s.MinFrames == 0 {
		s.MinFrames = segment.DefaultMinFrames
	}
	if s.BufferDepth == 0 {
		s.BufferDepth = segment.DefaultBufferDepth
	}
	if s.TickInterval == 0 {
		s.TickInterval = pipeline.DefaultTickInterval
	}

	if cfg.Guard.Cooldown == 0 {
		cfg.Guard.Cooldown = def.Cooldown
	}
	if cfg.Stats.LogEveryFrames == 0 {
		cfg.Stats.LogEveryFrames = pipeline.DefaultLogEveryFrames
	}
	if cfg.Stats.ListenLogEveryFrames == 0 {
		cfg.Stats.ListenLogEveryFrames = pipeline.DefaultListenLogEveryFrames
	}
	if cfg.Dialogue.HistorySize == 0 {
		cfg.Dialogue.HistorySize = dialogue.DefaultHistorySize
	}
}

// ── Runtime mapping ──────────────────────────────────────────────────────────

// Pipeline converts the audio sections into a per-connection pipeline
// configuration.
func (c *Config) Pipeline() pipeline.Config {
	return pipeline.Config{
		Format:        audio.Format{SampleRate: c.Audio.SampleRate, Channels: c.Audio.Channels},
		FrameDuration: c.Audio.FrameDuration(),
		ContainerRate: c.Audio.ContainerSampleRate,
		Gate: gate.Config{
			DropMaxBytes:      c.Gate.DropMaxBytes,
			KeepaliveMaxBytes: c.Gate.KeepaliveMaxBytes,
			KeepaliveInterval: c.Gate.KeepaliveInterval,
		},
		VAD: vad.Config{
			RMSThreshold:       c.VAD.RMSThreshold,
			FallbackVoiceBytes: c.VAD.FallbackVoiceBytes,
		},
		Segmenter: segment.Config{
			SilenceThreshold: c.Segmenter.SilenceThreshold,
			WakeGuard:        c.Segmenter.WakeGuard,
			MinFrames:        c.Segmenter.MinFrames,
			BufferDepth:      c.Segmenter.BufferDepth,
		},
		Cooldown:             c.Guard.Cooldown,
		TickInterval:         c.Segmenter.TickInterval,
		LogEveryFrames:       c.Stats.LogEveryFrames,
		ListenLogEveryFrames: c.Stats.ListenLogEveryFrames,
		Language:             c.Providers.STT.Option("language"),
		Prompt:               c.Providers.STT.Option("prompt"),
	}
}

// Gateway converts cfg into the configuration applied to new connections.
func (c *Config) Gateway() gateway.Config {
	p := c.Pipeline()
	return gateway.Config{
		Pipeline: p,
		Dialogue: dialogue.Config{
			SystemPrompt:  c.Dialogue.SystemPrompt,
			HistorySize:   c.Dialogue.HistorySize,
			Voice:         c.Dialogue.Voice,
			Format:        p.Format,
			FrameDuration: p.FrameDuration,
		},
	}
}
