package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	bitsPerSample = 16
	wavHeaderSize = 44
)

var errMalformedWAV = errors.New("audio: malformed wav container")

// EncodeWAV wraps raw 16-bit signed little-endian PCM in a canonical RIFF/WAV
// container. The result is self-describing and can be uploaded to a
// transcription service as-is.
func EncodeWAV(pcm []byte, f Format) []byte {
	byteRate := f.SampleRate * f.Channels * bitsPerSample / 8
	blockAlign := f.Channels * bitsPerSample / 8
	dataSize := len(pcm)

	buf := make([]byte, wavHeaderSize+dataSize)

	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize)) // file size − 8
	copy(buf[8:12], "WAVE")

	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16) // sub-chunk size (PCM)
	binary.LittleEndian.PutUint16(buf[20:22], 1)  // audio format: PCM
	binary.LittleEndian.PutUint16(buf[22:24], uint16(f.Channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(f.SampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], bitsPerSample)

	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	copy(buf[44:], pcm)

	return buf
}

// ReadWAV parses a PCM WAV container and returns its format and sample data.
// Chunks other than "fmt " and "data" are skipped. Only 16-bit integer PCM is
// accepted.
func ReadWAV(data []byte) (Format, []byte, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return Format{}, nil, errMalformedWAV
	}

	var (
		f       Format
		haveFmt bool
	)
	off := 12
	for off+8 <= len(data) {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		body := off + 8
		if size < 0 || body+size > len(data) {
			return Format{}, nil, fmt.Errorf("%w: chunk %q overruns buffer", errMalformedWAV, id)
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return Format{}, nil, fmt.Errorf("%w: short fmt chunk", errMalformedWAV)
			}
			if tag := binary.LittleEndian.Uint16(data[body:]); tag != 1 {
				return Format{}, nil, fmt.Errorf("audio: unsupported wav format tag %d", tag)
			}
			if bps := binary.LittleEndian.Uint16(data[body+14:]); bps != bitsPerSample {
				return Format{}, nil, fmt.Errorf("audio: unsupported bits per sample %d", bps)
			}
			f.Channels = int(binary.LittleEndian.Uint16(data[body+2:]))
			f.SampleRate = int(binary.LittleEndian.Uint32(data[body+4:]))
			haveFmt = true
		case "data":
			if !haveFmt {
				return Format{}, nil, fmt.Errorf("%w: data before fmt", errMalformedWAV)
			}
			return f, data[body : body+size], nil
		}

		off = body + size + size%2
	}
	return Format{}, nil, fmt.Errorf("%w: no data chunk", errMalformedWAV)
}
