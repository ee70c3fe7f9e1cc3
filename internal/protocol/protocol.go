// Package protocol implements the binary audio framing negotiated through the
// Protocol-Version handshake header.
//
//	v1: raw payload
//	v2: version u16 | type u16 | reserved u16 | timestamp u32 | size u32 | payload
//	v3: type u8 | reserved u8 | size u16 | payload
//
// All integers are big-endian. The size field bounds the payload; trailing
// bytes beyond it are ignored.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Version is a binary framing revision.
type Version int

// Supported versions.
const (
	V1 Version = 1
	V2 Version = 2
	V3 Version = 3
)

// Header sizes in bytes.
const (
	HeaderSizeV2 = 14
	HeaderSizeV3 = 4
)

// TypeAudio is the message type written on outbound audio frames.
const TypeAudio = 1

// ErrMalformed reports a frame too short for its header or declaring more
// payload than it carries.
var ErrMalformed = errors.New("protocol: malformed frame")

// ParseVersion parses the Protocol-Version header value. An empty value
// selects V1.
func ParseVersion(s string) (Version, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return V1, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("protocol: parse version %q: %w", s, err)
	}
	v := Version(n)
	if v < V1 || v > V3 {
		return 0, fmt.Errorf("protocol: unsupported version %d", n)
	}
	return v, nil
}

// Header is the decoded framing header. Fields absent from a version are
// zero.
type Header struct {
	Type      uint16
	Timestamp uint32
	Size      int
}

// Unwrap strips the framing header from msg and returns the payload, which
// aliases msg.
func (v Version) Unwrap(msg []byte) (Header, []byte, error) {
	switch v {
	case V2:
		if len(msg) < HeaderSizeV2 {
			return Header{}, nil, fmt.Errorf("%w: v2 needs %d header bytes, got %d", ErrMalformed, HeaderSizeV2, len(msg))
		}
		h := Header{
			Type:      binary.BigEndian.Uint16(msg[2:4]),
			Timestamp: binary.BigEndian.Uint32(msg[6:10]),
			Size:      int(binary.BigEndian.Uint32(msg[10:14])),
		}
		body, err := clip(msg[HeaderSizeV2:], h.Size)
		return h, body, err
	case V3:
		if len(msg) < HeaderSizeV3 {
			return Header{}, nil, fmt.Errorf("%w: v3 needs %d header bytes, got %d", ErrMalformed, HeaderSizeV3, len(msg))
		}
		h := Header{
			Type: uint16(msg[0]),
			Size: int(binary.BigEndian.Uint16(msg[2:4])),
		}
		body, err := clip(msg[HeaderSizeV3:], h.Size)
		return h, body, err
	default:
		return Header{Size: len(msg)}, msg, nil
	}
}

func clip(body []byte, size int) ([]byte, error) {
	if size > len(body) {
		return nil, fmt.Errorf("%w: header declares %d bytes, frame carries %d", ErrMalformed, size, len(body))
	}
	return body[:size], nil
}

// Wrap prepends the framing header for an outbound audio payload.
func (v Version) Wrap(payload []byte) ([]byte, error) {
	switch v {
	case V2:
		if uint64(len(payload)) > math.MaxUint32 {
			return nil, fmt.Errorf("protocol: v2 payload too large: %d bytes", len(payload))
		}
		out := make([]byte, HeaderSizeV2+len(payload))
		binary.BigEndian.PutUint16(out[0:2], uint16(V2))
		binary.BigEndian.PutUint16(out[2:4], TypeAudio)
		binary.BigEndian.PutUint32(out[10:14], uint32(len(payload)))
		copy(out[HeaderSizeV2:], payload)
		return out, nil
	case V3:
		if len(payload) > math.MaxUint16 {
			return nil, fmt.Errorf("protocol: v3 payload too large: %d bytes", len(payload))
		}
		out := make([]byte, HeaderSizeV3+len(payload))
		out[0] = TypeAudio
		binary.BigEndian.PutUint16(out[2:4], uint16(len(payload)))
		copy(out[HeaderSizeV3:], payload)
		return out, nil
	default:
		return payload, nil
	}
}
