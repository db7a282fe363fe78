package dsp

import "math"

const (
	agcTargetRMS = 0.08
	agcAttack    = 0.2
	agcMinGain   = 0.2
	agcMaxGain   = 12.0
	// below this the chunk is treated as silence and the gain is left alone,
	// otherwise the normalizer would amplify noise floors between utterances
	agcSilenceRMS = 1e-4
)

// AGC is an adaptive gain normalizer. It tracks a running correction toward a
// target RMS and applies it in place. Each source needs its own instance
// because the gain history is per-stream state.
type AGC struct {
	gain float64
}

// NewAGC returns a gain normalizer with unity initial gain.
func NewAGC() *AGC {
	return &AGC{gain: 1.0}
}

// Process applies the current gain to samples in place and adapts the gain
// toward the target RMS. It never fails; output is clamped to [-1, 1].
func (a *AGC) Process(samples []float32) {
	if len(samples) == 0 {
		return
	}

	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	rms := math.Sqrt(sum / float64(len(samples)))

	if rms > agcSilenceRMS {
		desired := agcTargetRMS / rms
		if desired < agcMinGain {
			desired = agcMinGain
		}
		if desired > agcMaxGain {
			desired = agcMaxGain
		}
		a.gain += agcAttack * (desired - a.gain)
	}

	for i, s := range samples {
		v := float64(s) * a.gain
		if v > 1 {
			v = 1
		}
		if v < -1 {
			v = -1
		}
		samples[i] = float32(v)
	}
}

// Gain exposes the current correction factor, used by telemetry.
func (a *AGC) Gain() float64 {
	return a.gain
}
