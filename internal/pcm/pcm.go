// Package pcm reads raw 16-bit audio the way the transcription boundary
// expects it: skip a fixed 44-byte header, then consume little-endian
// int16 samples normalised to [-1, 1). It is deliberately not a WAV
// parser. It does not validate the header, sample rate, channel count or
// bit depth, and it will silently produce garbage or an empty sequence
// when the input does not match the assumed canonical layout.
package pcm

import (
	"encoding/binary"
	"os"
)

// HeaderSize is the fixed number of bytes skipped before sample data.
// It matches a canonical minimal WAV header with no extra chunks.
const HeaderSize = 44

// ReadFile loads a fixed-header PCM file and returns its normalised
// samples. Inputs shorter than the header yield no samples rather than
// an error; only open and read failures are reported.
func ReadFile(path string) ([]float32, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Decode(data), nil
}

// Decode skips the fixed header and converts the remaining bytes.
func Decode(data []byte) []float32 {
	if len(data) <= HeaderSize {
		return nil
	}
	return Float32FromPCM16(data[HeaderSize:])
}

// Float32FromPCM16 converts raw little-endian int16 samples without any
// header skip. A trailing odd byte is ignored.
func Float32FromPCM16(data []byte) []float32 {
	n := len(data) / 2
	if n == 0 {
		return nil
	}
	samples := make([]float32, n)
	for i := 0; i < n; i++ {
		u := binary.LittleEndian.Uint16(data[2*i:])
		samples[i] = float32(int16(u)) / 32768.0
	}
	return samples
}
