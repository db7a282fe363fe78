package processor

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/murmur-app/murmur/dsp"
	"github.com/murmur-app/murmur/model"
	"github.com/murmur-app/murmur/queue"
)

// queueDepth bounds each source's jitter queue. Mic and speaker callbacks
// are not perfectly synchronized; up to this many chunks are held waiting
// for a partner before the oldest is dropped.
const queueDepth = 10

// amplitudeInterval throttles telemetry emission.
const amplitudeInterval = 100 * time.Millisecond

// Pair is one processed (mic, speaker) chunk pair bound for the bridge. The
// channels stay separate so the backend can attribute words to their source.
type Pair struct {
	Mic     model.AudioChunk
	Speaker model.AudioChunk
}

// EchoCanceller is what the processor needs from an AEC implementation.
type EchoCanceller interface {
	ProcessStreaming(mic, speaker []float32) ([]float32, error)
}

// AmplitudeFunc receives throttled peak telemetry for the most recent pair.
type AmplitudeFunc func(mic, speaker float32)

// Config wires a Processor's collaborators.
type Config struct {
	// Recording enables the mixed-audio output.
	Recording bool
	// AEC defaults to a fresh dsp.NewAEC when nil.
	AEC EchoCanceller
	// OnAmplitude, if set, receives throttled telemetry. Best-effort:
	// emissions are dropped, never queued.
	OnAmplitude AmplitudeFunc
}

// Processor pairs mic and speaker chunks in strict arrival order, applies
// AGC to each and AEC across them, and fans the result out to the recorder
// and the bridge. Chunks are processed only in pairs — never alone.
type Processor struct {
	mu     sync.Mutex
	micQ   *queue.Bounded[model.AudioChunk]
	spkQ   *queue.Bounded[model.AudioChunk]
	micAGC *dsp.AGC
	spkAGC *dsp.AGC
	aec    EchoCanceller

	paused   bool
	micMuted bool
	spkMuted bool

	recording bool
	mixed     chan model.AudioChunk
	pairs     chan Pair

	onAmplitude AmplitudeFunc
	lastAmp     time.Time

	log *logrus.Entry
}

// New creates a processor. The returned channels (Mixed, Pairs) deliver the
// fanout; both use drop-on-full sends so a slow consumer can never block the
// capture path.
func New(cfg Config) *Processor {
	aec := cfg.AEC
	if aec == nil {
		aec = dsp.NewAEC()
	}
	return &Processor{
		micQ:        queue.NewBounded[model.AudioChunk](queueDepth),
		spkQ:        queue.NewBounded[model.AudioChunk](queueDepth),
		micAGC:      dsp.NewAGC(),
		spkAGC:      dsp.NewAGC(),
		aec:         aec,
		recording:   cfg.Recording,
		mixed:       make(chan model.AudioChunk, 64),
		pairs:       make(chan Pair, 64),
		onAmplitude: cfg.OnAmplitude,
		log:         logrus.WithField("component", "processor"),
	}
}

// Mixed delivers clamp(mic+speaker) chunks for the recorder. Only produced
// when recording is enabled.
func (p *Processor) Mixed() <-chan model.AudioChunk {
	return p.mixed
}

// Pairs delivers processed (mic, speaker) pairs for the bridge.
func (p *Processor) Pairs() <-chan Pair {
	return p.pairs
}

// PushMic feeds one mic chunk. Called from the mic source's capture thread.
func (p *Processor) PushMic(chunk model.AudioChunk) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.micMuted {
		zero(chunk)
	}
	if p.micQ.Push(chunk) {
		p.log.Debug("mic queue full, dropped oldest chunk")
	}
	p.pairLocked()
}

// PushSpeaker feeds one speaker chunk. Called from the speaker source's
// capture thread.
func (p *Processor) PushSpeaker(chunk model.AudioChunk) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.spkMuted {
		zero(chunk)
	}
	if p.spkQ.Push(chunk) {
		p.log.Debug("speaker queue full, dropped oldest chunk")
	}
	p.pairLocked()
}

// Pause suspends pairing without tearing anything down. Pushed chunks keep
// queueing (and aging out) so devices stay warm for a fast resume.
func (p *Processor) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused = true
}

// Resume re-enables pairing and immediately drains whatever queued up.
func (p *Processor) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused = false
	p.pairLocked()
}

// SetMicMuted zeroes subsequent mic chunks instead of dropping them, which
// keeps the pairing cadence intact.
func (p *Processor) SetMicMuted(muted bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.micMuted = muted
}

// SetSpeakerMuted zeroes subsequent speaker chunks.
func (p *Processor) SetSpeakerMuted(muted bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.spkMuted = muted
}

// ResetEcho clears the canceller's learned echo path, used after a mic
// device swap invalidates it.
func (p *Processor) ResetEcho() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if r, ok := p.aec.(interface{ Reset() }); ok {
		r.Reset()
	}
}

// pairLocked pops one chunk from each queue while both are non-empty and
// processes the pair. Callers hold p.mu.
func (p *Processor) pairLocked() {
	if p.paused {
		return
	}
	for !p.micQ.IsEmpty() && !p.spkQ.IsEmpty() {
		mic, _ := p.micQ.Pop()
		spk, _ := p.spkQ.Pop()
		p.processPair(mic, spk)
	}
}

func (p *Processor) processPair(mic, spk model.AudioChunk) {
	p.micAGC.Process(mic)
	p.spkAGC.Process(spk)

	micOut, err := p.aec.ProcessStreaming(mic, spk)
	if err != nil {
		// echo leakage beats silence: keep the unprocessed mic signal
		p.log.WithError(err).Error("echo cancellation failed, falling back to raw mic")
		micOut = mic
	}

	if p.recording {
		select {
		case p.mixed <- mixChunks(micOut, spk):
		default:
			p.log.Warn("recorder queue full, dropped mixed chunk")
		}
	}

	select {
	case p.pairs <- Pair{Mic: micOut, Speaker: spk}:
	default:
		p.log.Warn("bridge queue full, dropped chunk pair")
	}

	if p.onAmplitude != nil {
		now := time.Now()
		if now.Sub(p.lastAmp) >= amplitudeInterval {
			p.lastAmp = now
			p.onAmplitude(model.AudioChunk(micOut).Peak(), spk.Peak())
		}
	}
}

// mixChunks sums the two channels elementwise, clamped to [-1, 1].
func mixChunks(mic, spk model.AudioChunk) model.AudioChunk {
	n := len(mic)
	if len(spk) > n {
		n = len(spk)
	}
	out := make(model.AudioChunk, n)
	for i := range out {
		var v float32
		if i < len(mic) {
			v += mic[i]
		}
		if i < len(spk) {
			v += spk[i]
		}
		if v > 1 {
			v = 1
		}
		if v < -1 {
			v = -1
		}
		out[i] = v
	}
	return out
}

func zero(chunk model.AudioChunk) {
	for i := range chunk {
		chunk[i] = 0
	}
}
