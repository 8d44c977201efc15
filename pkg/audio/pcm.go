// Package audio provides PCM helpers, the playback/persistence sinks, and
// WAV container writing for the BCH audio stream.
package audio

import (
	"encoding/binary"
	"math"
)

// BytesToPCM decodes device-native little-endian signed 16-bit samples.
// A trailing odd byte cannot form a sample and is discarded.
func BytesToPCM(data []byte) []int16 {
	n := len(data) / 2
	pcm := make([]int16, n)
	for i := 0; i < n; i++ {
		pcm[i] = int16(binary.LittleEndian.Uint16(data[2*i:]))
	}
	return pcm
}

// PCMToBytes encodes samples back to little-endian bytes.
func PCMToBytes(pcm []int16) []byte {
	data := make([]byte, len(pcm)*2)
	for i, s := range pcm {
		binary.LittleEndian.PutUint16(data[2*i:], uint16(s))
	}
	return data
}

// Silence returns a zero-valued frame of n samples.
func Silence(n int) []int16 {
	return make([]int16, n)
}

// RMS computes the root mean square level of a frame. Useful for level
// reporting and diagnostics.
func RMS(pcm []int16) float64 {
	if len(pcm) == 0 {
		return 0
	}
	var sum float64
	for _, s := range pcm {
		f := float64(s)
		sum += f * f
	}
	return math.Sqrt(sum / float64(len(pcm)))
}
