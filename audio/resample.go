package audio

import "github.com/murmur-app/murmur/model"

// Resampler converts a stream of samples at a device's native rate to the
// fixed pipeline rate by linear interpolation. It keeps a fractional read
// cursor across calls so chunk boundaries introduce no discontinuity, and it
// tolerates the native rate changing between calls (device switched
// mid-stream) with at most a brief interpolation glitch.
type Resampler struct {
	// pos is the fractional cursor past the last consumed input sample,
	// advanced by nativeRate/targetRate per emitted sample.
	pos    float64
	last   float32
	primed bool
}

// NewResampler returns a resampler targeting model.SampleRate.
func NewResampler() *Resampler {
	return &Resampler{}
}

// Process consumes input samples captured at nativeRate and returns the
// corresponding samples at the pipeline rate. Every input sample is
// consumed; cursor state carries over so concatenated calls behave like one
// continuous stream.
func (r *Resampler) Process(input []float32, nativeRate int) []float32 {
	if len(input) == 0 || nativeRate <= 0 {
		return nil
	}

	step := float64(nativeRate) / float64(model.SampleRate)
	out := make([]float32, 0, int(float64(len(input))/step)+2)

	idx := 0
	if !r.primed {
		r.last = input[0]
		idx = 1
		r.primed = true
	}
	for {
		// pull new source frames until the cursor is inside [0, 1)
		for r.pos >= 1.0 {
			if idx >= len(input) {
				return out
			}
			r.last = input[idx]
			idx++
			r.pos -= 1.0
		}
		if idx >= len(input) {
			// nothing to interpolate toward yet; resume on the next call
			return out
		}
		frac := float32(r.pos)
		out = append(out, r.last*(1-frac)+input[idx]*frac)
		r.pos += step
	}
}
