package audio

import (
	"encoding/binary"
	"math"
)

// Canonical PCM format shared by every decoder and encoder.
const (
	SampleRate = 44100
	Channels   = 2
)

// Chunk is a block of canonical PCM: two equally long channels of signed
// 16-bit samples at SampleRate.
type Chunk struct {
	Left  []int16
	Right []int16
}

// Frames returns the number of stereo frames in c.
func (c Chunk) Frames() int {
	return len(c.Left)
}

// Quantity lets a RateLimiter pace chunks in frames.
func (c Chunk) Quantity() int {
	return c.Frames()
}

// Interleaved returns the samples as L, R, L, R, ...
func (c Chunk) Interleaved() []int16 {
	out := make([]int16, 2*len(c.Left))
	for i := range c.Left {
		out[2*i] = c.Left[i]
		out[2*i+1] = c.Right[i]
	}
	return out
}

// SamplesToBytes converts int16 samples to little-endian bytes.
func SamplesToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

// toInt16 converts a float sample in [-1, 1] to int16, clamping overshoot.
func toInt16(x float64) int16 {
	v := math.Round(x * 32768)
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}
