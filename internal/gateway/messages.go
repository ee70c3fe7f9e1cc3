package gateway

import "github.com/MrWong99/voxgate/pkg/audio"

// Handshake headers sent by devices.
const (
	HeaderDeviceID        = "Device-Id"
	HeaderClientID        = "Client-Id"
	HeaderProtocolVersion = "Protocol-Version"
)

// Control message types.
const (
	TypeHello  = "hello"
	TypeListen = "listen"
	TypeAbort  = "abort"
	TypeText   = "text"
)

// Listen states.
const (
	ListenStart  = "start"
	ListenStop   = "stop"
	ListenDetect = "detect"
)

// AudioParams describes a device audio stream.
type AudioParams struct {
	Format        string `json:"format"`
	SampleRate    int    `json:"sample_rate"`
	Channels      int    `json:"channels"`
	FrameDuration int    `json:"frame_duration"`
}

func (p AudioParams) audioFormat() audio.Format {
	return audio.Format{SampleRate: p.SampleRate, Channels: p.Channels}
}

// control is any JSON text message from a device. Only the fields relevant
// to Type are set.
type control struct {
	Type        string         `json:"type"`
	State       string         `json:"state,omitempty"`
	Mode        string         `json:"mode,omitempty"`
	Text        string         `json:"text,omitempty"`
	Data        string         `json:"data,omitempty"`
	Reason      string         `json:"reason,omitempty"`
	AudioParams *AudioParams   `json:"audio_params,omitempty"`
	Features    map[string]any `json:"features,omitempty"`
}

// Welcome is the reply to a device hello.
type Welcome struct {
	Type        string      `json:"type"`
	Transport   string      `json:"transport"`
	SessionID   string      `json:"session_id"`
	AudioParams AudioParams `json:"audio_params"`
}
