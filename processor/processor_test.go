package processor

import (
	"errors"
	"math"
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"github.com/murmur-app/murmur/dsp"
	"github.com/murmur-app/murmur/model"
)

func toneChunk(amp float64) model.AudioChunk {
	out := make(model.AudioChunk, model.ChunkSamples)
	for i := range out {
		out[i] = float32(amp * math.Sin(2*math.Pi*440*float64(i)/float64(model.SampleRate)))
	}
	return out
}

func drainPairs(p *Processor) []Pair {
	var out []Pair
	for {
		select {
		case pair := <-p.Pairs():
			out = append(out, pair)
		default:
			return out
		}
	}
}

func TestPairingBackpressure(t *testing.T) {
	p := New(Config{})

	// 15 mic chunks with no speaker partner: queue must cap at 10
	for i := 0; i < 15; i++ {
		p.PushMic(toneChunk(0.1))
	}
	if got := p.micQ.Len(); got != queueDepth {
		t.Fatalf("mic queue length = %d, want %d", got, queueDepth)
	}

	// 3 speaker chunks allow exactly 3 pairings
	for i := 0; i < 3; i++ {
		p.PushSpeaker(toneChunk(0.1))
	}
	if got := len(drainPairs(p)); got != 3 {
		t.Fatalf("paired outputs = %d, want 3", got)
	}
	if got := p.micQ.Len(); got != queueDepth-3 {
		t.Fatalf("mic queue length after pairing = %d, want %d", got, queueDepth-3)
	}
}

func TestChunksNeverProcessedAlone(t *testing.T) {
	p := New(Config{})
	for i := 0; i < 5; i++ {
		p.PushMic(toneChunk(0.1))
	}
	if got := len(drainPairs(p)); got != 0 {
		t.Fatalf("got %d pairs without any speaker chunk", got)
	}
}

type failingAEC struct{ calls int }

func (f *failingAEC) ProcessStreaming(mic, speaker []float32) ([]float32, error) {
	f.calls++
	return nil, errors.New("stub failure")
}

func TestAECFallbackKeepsAGCMic(t *testing.T) {
	hook := logtest.NewGlobal()
	defer hook.Reset()

	aec := &failingAEC{}
	p := New(Config{AEC: aec})

	input := toneChunk(0.05)
	// the processor's mic AGC sees exactly this chunk first; replicate it
	want := input.Clone()
	dsp.NewAGC().Process(want)

	p.PushMic(input)
	p.PushSpeaker(toneChunk(0.2))

	pairs := drainPairs(p)
	if len(pairs) != 1 {
		t.Fatalf("got %d pairs, want 1", len(pairs))
	}
	if aec.calls != 1 {
		t.Fatalf("AEC called %d times, want 1", aec.calls)
	}
	for i := range want {
		if pairs[0].Mic[i] != want[i] {
			t.Fatalf("sample %d: fallback mic %f != AGC-only mic %f", i, pairs[0].Mic[i], want[i])
		}
	}

	var errorLogs int
	for _, entry := range hook.AllEntries() {
		if entry.Level == logrus.ErrorLevel {
			errorLogs++
		}
	}
	if errorLogs != 1 {
		t.Fatalf("error logged %d times, want exactly 1 per failing pair", errorLogs)
	}
}

func TestMixedOutputClamped(t *testing.T) {
	p := New(Config{Recording: true})
	mic := make(model.AudioChunk, model.ChunkSamples)
	spk := make(model.AudioChunk, model.ChunkSamples)
	for i := range mic {
		mic[i] = 0.9
		spk[i] = 0.9
	}
	p.PushMic(mic)
	p.PushSpeaker(spk)

	select {
	case mixed := <-p.Mixed():
		for i, s := range mixed {
			if s > 1 || s < -1 {
				t.Fatalf("mixed sample %d = %f out of [-1, 1]", i, s)
			}
		}
	default:
		t.Fatal("no mixed chunk emitted with recording enabled")
	}
}

func TestNoMixedOutputWhenNotRecording(t *testing.T) {
	p := New(Config{})
	p.PushMic(toneChunk(0.1))
	p.PushSpeaker(toneChunk(0.1))
	select {
	case <-p.Mixed():
		t.Fatal("mixed chunk emitted with recording disabled")
	default:
	}
}

func TestMuteZeroesChannel(t *testing.T) {
	p := New(Config{})
	p.SetMicMuted(true)
	p.PushMic(toneChunk(0.5))
	p.PushSpeaker(toneChunk(0.0))

	pairs := drainPairs(p)
	if len(pairs) != 1 {
		t.Fatalf("got %d pairs, want 1", len(pairs))
	}
	for i, s := range pairs[0].Mic {
		if s != 0 {
			t.Fatalf("muted mic sample %d = %f, want 0", i, s)
		}
	}
}

func TestPauseDefersPairing(t *testing.T) {
	p := New(Config{})
	p.Pause()
	p.PushMic(toneChunk(0.1))
	p.PushSpeaker(toneChunk(0.1))
	if got := len(drainPairs(p)); got != 0 {
		t.Fatalf("got %d pairs while paused, want 0", got)
	}
	p.Resume()
	if got := len(drainPairs(p)); got != 1 {
		t.Fatalf("got %d pairs after resume, want 1", got)
	}
}
