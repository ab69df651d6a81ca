package audio

import "time"

// DefaultSampleRate is assumed when a frame carries no declared rate and
// no timing information is available. 48kHz is the most common browser
// capture rate.
const DefaultSampleRate = 48000

// commonRates are the capture rates we snap estimates to.
var commonRates = []int{8000, 16000, 22050, 44100, 48000}

// EstimateRate guesses the sample rate of a mono PCM16 stream from the
// number of samples observed over an elapsed wall-clock duration, snapped
// to the nearest common capture rate. With no usable timing it returns
// DefaultSampleRate.
func EstimateRate(sampleCount int, elapsed time.Duration) int {
	if sampleCount <= 0 || elapsed <= 0 {
		return DefaultSampleRate
	}

	raw := float64(sampleCount) / elapsed.Seconds()

	best := commonRates[0]
	bestDiff := raw - float64(best)
	if bestDiff < 0 {
		bestDiff = -bestDiff
	}
	for _, rate := range commonRates[1:] {
		diff := raw - float64(rate)
		if diff < 0 {
			diff = -diff
		}
		if diff < bestDiff {
			best = rate
			bestDiff = diff
		}
	}
	return best
}
