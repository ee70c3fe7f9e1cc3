package audio

import (
	"encoding/binary"
	"math"
)

// RMS returns the root-mean-square energy of little-endian int16 PCM. The
// result is in raw sample units (0 to 32767). Empty input yields 0.
func RMS(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := range n {
		v := float64(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
		sum += v * v
	}
	return math.Sqrt(sum / float64(n))
}

// FitBlock pads pcm with silence or truncates it so that it is exactly size
// bytes long. A block already of the right size is returned unchanged.
func FitBlock(pcm []byte, size int) []byte {
	if len(pcm) == size {
		return pcm
	}
	if len(pcm) > size {
		return pcm[:size]
	}
	out := make([]byte, size)
	copy(out, pcm)
	return out
}

// Int16sToBytes converts int16 PCM samples to little-endian bytes.
func Int16sToBytes(pcm []int16) []byte {
	b := make([]byte, len(pcm)*2)
	for i, s := range pcm {
		b[i*2] = byte(s)
		b[i*2+1] = byte(s >> 8)
	}
	return b
}

// BytesToInt16s converts little-endian bytes to int16 PCM samples. A trailing
// odd byte is ignored.
func BytesToInt16s(b []byte) []int16 {
	pcm := make([]int16, len(b)/2)
	for i := range pcm {
		pcm[i] = int16(b[i*2]) | int16(b[i*2+1])<<8
	}
	return pcm
}
