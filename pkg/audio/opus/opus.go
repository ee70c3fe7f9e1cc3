// Package opus adapts the gopus codec to the device stream format. A Decoder
// is created per session so inter-frame codec state carries over between
// consecutive packets.
package opus

import (
	"errors"
	"fmt"
	"time"

	"layeh.com/gopus"

	"github.com/MrWong99/voxgate/pkg/audio"
)

var _ audio.Decoder = (*Decoder)(nil)

// Decoder wraps a gopus decoder and always yields blocks of BlockSize bytes.
type Decoder struct {
	dec       *gopus.Decoder
	format    audio.Format
	frameSize int // samples per channel per frame
}

// NewDecoder creates a decoder for the given device format. frameDuration is
// the expected duration of one packet and fixes the decoded block size.
func NewDecoder(f audio.Format, frameDuration time.Duration) (*Decoder, error) {
	frameSize, err := samplesPerFrame(f, frameDuration)
	if err != nil {
		return nil, err
	}
	dec, err := gopus.NewDecoder(f.SampleRate, f.Channels)
	if err != nil {
		return nil, fmt.Errorf("opus: create decoder: %w", err)
	}
	return &Decoder{dec: dec, format: f, frameSize: frameSize}, nil
}

// BlockSize is the number of PCM bytes produced per decoded frame.
func (d *Decoder) BlockSize() int {
	return d.frameSize * d.format.Channels * 2
}

// Decode decodes one Opus packet into little-endian int16 PCM. Output shorter
// than a block is padded with silence and longer output is truncated.
func (d *Decoder) Decode(payload []byte) ([]byte, error) {
	pcm, err := d.dec.Decode(payload, d.frameSize, false)
	if err != nil {
		return nil, fmt.Errorf("opus: decode %d bytes: %w", len(payload), err)
	}
	return audio.FitBlock(audio.Int16sToBytes(pcm), d.BlockSize()), nil
}

// Encoder wraps a gopus encoder. The gateway uses it to frame synthesized
// replies for the device and tests use it to produce realistic packets.
type Encoder struct {
	enc       *gopus.Encoder
	format    audio.Format
	frameSize int
}

// NewEncoder creates an encoder for the given format and frame duration.
func NewEncoder(f audio.Format, frameDuration time.Duration) (*Encoder, error) {
	frameSize, err := samplesPerFrame(f, frameDuration)
	if err != nil {
		return nil, err
	}
	enc, err := gopus.NewEncoder(f.SampleRate, f.Channels, gopus.Voip)
	if err != nil {
		return nil, fmt.Errorf("opus: create encoder: %w", err)
	}
	return &Encoder{enc: enc, format: f, frameSize: frameSize}, nil
}

// BlockSize is the number of PCM bytes consumed per encoded frame.
func (e *Encoder) BlockSize() int {
	return e.frameSize * e.format.Channels * 2
}

// Encode encodes exactly one block of little-endian int16 PCM. A short block
// is padded with silence.
func (e *Encoder) Encode(pcm []byte) ([]byte, error) {
	block := audio.FitBlock(pcm, e.BlockSize())
	pkt, err := e.enc.Encode(audio.BytesToInt16s(block), e.frameSize, len(block))
	if err != nil {
		return nil, fmt.Errorf("opus: encode: %w", err)
	}
	return pkt, nil
}

// EncodeAll splits pcm into consecutive blocks and encodes each one.
func (e *Encoder) EncodeAll(pcm []byte) ([][]byte, error) {
	size := e.BlockSize()
	var pkts [][]byte
	for off := 0; off < len(pcm); off += size {
		end := min(off+size, len(pcm))
		pkt, err := e.Encode(pcm[off:end])
		if err != nil {
			return pkts, err
		}
		pkts = append(pkts, pkt)
	}
	return pkts, nil
}

// Opus only accepts 2.5, 5, 10, 20, 40 and 60 ms frames.
var validDurations = map[time.Duration]bool{
	2500 * time.Microsecond: true,
	5 * time.Millisecond:    true,
	10 * time.Millisecond:   true,
	20 * time.Millisecond:   true,
	40 * time.Millisecond:   true,
	60 * time.Millisecond:   true,
}

func samplesPerFrame(f audio.Format, d time.Duration) (int, error) {
	if f.SampleRate <= 0 || f.Channels < 1 || f.Channels > 2 {
		return 0, fmt.Errorf("opus: unsupported format %s", f)
	}
	if !validDurations[d] {
		return 0, errors.New("opus: frame duration must be one of 2.5, 5, 10, 20, 40 or 60 ms")
	}
	return int(int64(f.SampleRate) * int64(d) / int64(time.Second)), nil
}
