// Package audio provides PCM16 format conversion for the voice relay.
// All functions operate on 16-bit little-endian signed PCM, the only
// format spoken by both the client protocol and the upstream providers.
package audio

import (
	"errors"
	"math"
)

// Sentinel errors for the audio package.
var (
	// ErrInvalidFormat indicates a buffer that is not well-formed PCM16
	// (odd byte length).
	ErrInvalidFormat = errors.New("audio: buffer length is not a multiple of 2")

	// ErrEmptyBuffer indicates a zero-length buffer.
	ErrEmptyBuffer = errors.New("audio: empty buffer")

	// ErrInvalidRate indicates a non-positive sample rate.
	ErrInvalidRate = errors.New("audio: sample rate must be positive")

	// ErrInvalidChannels indicates an unsupported channel count.
	ErrInvalidChannels = errors.New("audio: channel count must be 1 or 2")
)

// Resample converts a PCM16 buffer to mono at targetRate using linear
// interpolation. Stereo input is downmixed before rate conversion.
//
// When sourceRate == targetRate and the input is already mono, the input
// slice is returned as-is (no copy).
func Resample(buf []byte, sourceRate, targetRate, channels int) ([]byte, error) {
	if len(buf) == 0 {
		return nil, ErrEmptyBuffer
	}
	if len(buf)%2 != 0 {
		return nil, ErrInvalidFormat
	}
	if sourceRate <= 0 || targetRate <= 0 {
		return nil, ErrInvalidRate
	}
	if channels != 1 && channels != 2 {
		return nil, ErrInvalidChannels
	}

	// Fast path: nothing to do.
	if sourceRate == targetRate && channels == 1 {
		return buf, nil
	}

	samples := BytesToSamples(buf)

	if channels == 2 {
		samples = StereoToMono(samples)
	}

	if sourceRate != targetRate {
		samples = resample(samples, sourceRate, targetRate)
	}

	return SamplesToBytes(samples), nil
}

// resample converts mono samples from one rate to another using linear
// interpolation. Suitable for speech audio; a polyphase filter would be
// needed for higher fidelity.
func resample(samples []int16, fromRate, toRate int) []int16 {
	if fromRate == toRate || len(samples) == 0 {
		return samples
	}

	ratio := float64(toRate) / float64(fromRate)
	newLen := int(math.Round(float64(len(samples)) * ratio))
	if newLen == 0 {
		return []int16{}
	}

	result := make([]int16, newLen)

	for i := 0; i < newLen; i++ {
		srcPos := float64(i) / ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		if srcIdx >= len(samples)-1 {
			// Clamp to the last input sample; no extrapolation.
			result[i] = samples[len(samples)-1]
		} else {
			s1 := float64(samples[srcIdx])
			s2 := float64(samples[srcIdx+1])
			result[i] = int16(s1 + frac*(s2-s1))
		}
	}

	return result
}

// StereoToMono averages interleaved stereo samples to mono, rounding half
// away from zero so quiet signals don't drift toward a DC bias. A trailing
// unpaired sample is discarded.
func StereoToMono(samples []int16) []int16 {
	mono := make([]int16, len(samples)/2)
	for i := range mono {
		sum := int32(samples[i*2]) + int32(samples[i*2+1])
		if sum >= 0 {
			mono[i] = int16((sum + 1) / 2)
		} else {
			mono[i] = int16((sum - 1) / 2)
		}
	}
	return mono
}

// BytesToSamples converts raw PCM16 little-endian bytes to int16 samples.
func BytesToSamples(data []byte) []int16 {
	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(data[i*2]) | int16(data[i*2+1])<<8
	}
	return samples
}

// SamplesToBytes converts int16 samples to raw PCM16 little-endian bytes.
func SamplesToBytes(samples []int16) []byte {
	data := make([]byte, len(samples)*2)
	for i, s := range samples {
		data[i*2] = byte(s)
		data[i*2+1] = byte(s >> 8)
	}
	return data
}
