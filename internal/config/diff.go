package config

import (
	"reflect"
	"slices"
)

// ConfigDiff describes what changed between two configs.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// AudioChanged is true if any section that shapes new connections
	// changed: audio, gate, vad, segmenter, guard or stats.
	AudioChanged bool

	// DialogueChanged is true if the dialogue section changed.
	DialogueChanged bool

	// RestartRequired lists changed sections that only take effect after a
	// restart, such as "server.listen_addr" or "providers".
	RestartRequired []string
}

// HotReloadable reports whether d contains changes that can be applied
// without a restart.
func (d ConfigDiff) HotReloadable() bool {
	return d.LogLevelChanged || d.AudioChanged || d.DialogueChanged
}

// Diff compares old and new configs and returns what changed.
// Connection settings apply to connections opened after the reload; open
// connections keep the snapshot they started with.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	// Log level
	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	d.AudioChanged = old.Audio != new.Audio ||
		old.Gate != new.Gate ||
		old.VAD != new.VAD ||
		old.Segmenter != new.Segmenter ||
		old.Guard != new.Guard ||
		old.Stats != new.Stats
	d.DialogueChanged = old.Dialogue != new.Dialogue

	if old.Server.ListenAddr != new.Server.ListenAddr {
		d.RestartRequired = append(d.RestartRequired, "server.listen_addr")
	}
	if old.Server.WSPath != new.Server.WSPath {
		d.RestartRequired = append(d.RestartRequired, "server.ws_path")
	}
	if !reflect.DeepEqual(old.Server.TLS, new.Server.TLS) {
		d.RestartRequired = append(d.RestartRequired, "server.tls")
	}
	if !providersEqual(old.Providers, new.Providers) {
		d.RestartRequired = append(d.RestartRequired, "providers")
	}
	if old.Journal != new.Journal {
		d.RestartRequired = append(d.RestartRequired, "journal")
	}

	return d
}

func providersEqual(a, b ProvidersConfig) bool {
	return reflect.DeepEqual(a.STT, b.STT) &&
		reflect.DeepEqual(a.LLM, b.LLM) &&
		reflect.DeepEqual(a.TTS, b.TTS) &&
		slices.EqualFunc(a.STTFallback, b.STTFallback, func(x, y ProviderEntry) bool {
			return reflect.DeepEqual(x, y)
		})
}
