package protocol_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/MrWong99/voxgate/internal/protocol"
)

func TestParseVersion(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in      string
		want    protocol.Version
		wantErr bool
	}{
		{"", protocol.V1, false},
		{"1", protocol.V1, false},
		{" 2 ", protocol.V2, false},
		{"3", protocol.V3, false},
		{"4", 0, true},
		{"0", 0, true},
		{"two", 0, true},
	}
	for _, tt := range tests {
		got, err := protocol.ParseVersion(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseVersion(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseVersion(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestWrapUnwrap(t *testing.T) {
	t.Parallel()
	payload := bytes.Repeat([]byte{0xab}, 40)
	for _, v := range []protocol.Version{protocol.V1, protocol.V2, protocol.V3} {
		msg, err := v.Wrap(payload)
		if err != nil {
			t.Fatalf("v%d Wrap: %v", v, err)
		}
		h, got, err := v.Unwrap(msg)
		if err != nil {
			t.Fatalf("v%d Unwrap: %v", v, err)
		}
		if !bytes.Equal(got, payload) {
			t.Errorf("v%d payload mismatch", v)
		}
		if h.Size != len(payload) {
			t.Errorf("v%d header size = %d, want %d", v, h.Size, len(payload))
		}
	}
}

func TestUnwrap_HeaderLayout(t *testing.T) {
	t.Parallel()
	v2 := []byte{
		0, 2, // version
		0, 1, // type
		0, 0, // reserved
		0, 0, 0x01, 0x00, // timestamp 256
		0, 0, 0, 3, // size
		7, 8, 9, 10, // payload plus one trailing byte
	}
	h, p, err := protocol.V2.Unwrap(v2)
	if err != nil {
		t.Fatalf("Unwrap: %v", err)
	}
	if h.Type != 1 || h.Timestamp != 256 || h.Size != 3 {
		t.Errorf("header = %+v", h)
	}
	if !bytes.Equal(p, []byte{7, 8, 9}) {
		t.Errorf("payload = %v", p)
	}
}

func TestUnwrap_V3HeaderLayout(t *testing.T) {
	t.Parallel()
	v3 := []byte{
		1,       // type
		0,       // reserved
		0, 2,    // size
		5, 6, 7, // payload plus one trailing byte
	}
	h, p, err := protocol.V3.Unwrap(v3)
	if err != nil {
		t.Fatalf("Unwrap: %v", err)
	}
	if h.Type != 1 || h.Size != 2 {
		t.Errorf("header = %+v", h)
	}
	if !bytes.Equal(p, []byte{5, 6}) {
		t.Errorf("payload = %v", p)
	}
}

func TestUnwrap_Malformed(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		v    protocol.Version
		msg  []byte
	}{
		{"v2 short header", protocol.V2, make([]byte, 13)},
		{"v3 short header", protocol.V3, []byte{1, 0, 0}},
		{"v3 oversize", protocol.V3, []byte{1, 0, 0, 10, 1, 2}},
		{"v2 oversize", protocol.V2, append(make([]byte, 13), 9)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, _, err := tt.v.Unwrap(tt.msg); !errors.Is(err, protocol.ErrMalformed) {
				t.Fatalf("err = %v, want ErrMalformed", err)
			}
		})
	}
}

func TestWrap_V3TooLarge(t *testing.T) {
	t.Parallel()
	if _, err := protocol.V3.Wrap(make([]byte, 70000)); err == nil {
		t.Fatal("expected error for payload exceeding u16 size field")
	}
}
