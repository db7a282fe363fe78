package dsp

import (
	"errors"
	"fmt"
)

// ErrLengthMismatch reports mic and speaker chunks of unequal length. This is
// a programmer invariant violation: the processor pairs chunks before calling
// the canceller, so equal lengths are guaranteed in correct operation.
var ErrLengthMismatch = errors.New("dsp: mic and speaker chunk lengths differ")

const (
	aecTaps    = 256
	aecStepMu  = 0.5
	aecEpsilon = 1e-6
)

// AEC removes speaker-originated signal leaking into the microphone capture,
// given time-aligned equal-length chunks of both. It runs a normalized LMS
// adaptive filter whose taps persist across chunks, so one instance serves
// one (mic, speaker) stream pair for the lifetime of a session.
type AEC struct {
	taps    []float64
	history []float64
}

// NewAEC returns an echo canceller with zeroed filter state.
func NewAEC() *AEC {
	return &AEC{
		taps:    make([]float64, aecTaps),
		history: make([]float64, aecTaps),
	}
}

// ProcessStreaming cancels speaker echo out of mic and returns the cleaned
// mic samples. Inputs are not modified. The caller's policy on error is to
// fall back to the unprocessed mic signal rather than drop audio.
func (a *AEC) ProcessStreaming(mic, speaker []float32) ([]float32, error) {
	if len(mic) != len(speaker) {
		return nil, fmt.Errorf("%w: mic=%d speaker=%d", ErrLengthMismatch, len(mic), len(speaker))
	}

	out := make([]float32, len(mic))
	for n := range mic {
		// shift the reference history and push the newest speaker sample
		copy(a.history[1:], a.history[:aecTaps-1])
		a.history[0] = float64(speaker[n])

		var estimate, energy float64
		for k, h := range a.history {
			estimate += a.taps[k] * h
			energy += h * h
		}

		err := float64(mic[n]) - estimate
		out[n] = float32(err)

		step := aecStepMu * err / (energy + aecEpsilon)
		for k, h := range a.history {
			a.taps[k] += step * h
		}
	}
	return out, nil
}

// Reset clears the adaptive filter state, used when the mic device changes
// mid-session and the learned echo path no longer applies.
func (a *AEC) Reset() {
	for i := range a.taps {
		a.taps[i] = 0
		a.history[i] = 0
	}
}
