package oto

import (
	"encoding/binary"
	"math"
)

// Interleave writes frames frames of the planar channels into dst as
// interleaved float32 little-endian samples and returns the number of bytes
// written. dst must hold at least frames*len(channels)*4 bytes.
func Interleave(dst []byte, channels [][]float32, frames int) int {
	i := 0
	for f := 0; f < frames; f++ {
		for _, c := range channels {
			binary.LittleEndian.PutUint32(dst[i:], math.Float32bits(c[f]))
			i += bytesPerSample
		}
	}
	return i
}
