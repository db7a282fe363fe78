package dsp

import "math"

const (
	vadEnergyThreshold = 0.0025
	// chunks of trailing non-speech still tagged as speech, so short pauses
	// inside an utterance do not flap the decision
	vadHangoverChunks = 4
)

// VAD is a simple energy-threshold voice activity detector with hangover.
// It only tags chunks; nothing downstream drops audio based on the tag, so
// the observation path stays lossless.
type VAD struct {
	hangover int
}

// NewVAD returns a detector with no active hangover.
func NewVAD() *VAD {
	return &VAD{}
}

// IsSpeech reports whether the chunk contains voice activity.
func (v *VAD) IsSpeech(samples []float32) bool {
	if len(samples) == 0 {
		return v.consumeHangover()
	}

	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	energy := math.Sqrt(sum / float64(len(samples)))

	if energy >= vadEnergyThreshold {
		v.hangover = vadHangoverChunks
		return true
	}
	return v.consumeHangover()
}

func (v *VAD) consumeHangover() bool {
	if v.hangover > 0 {
		v.hangover--
		return true
	}
	return false
}
