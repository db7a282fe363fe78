package recorder

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-audio/wav"

	"github.com/murmur-app/murmur/model"
)

// decodeFloatSamples walks the RIFF chunks by hand and reassembles the data
// chunk's float32 samples, independent of any decoder the writer uses.
func decodeFloatSamples(t *testing.T, path string) []float32 {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read container: %v", err)
	}
	if len(b) < 12 || string(b[0:4]) != "RIFF" || string(b[8:12]) != "WAVE" {
		t.Fatalf("not a RIFF/WAVE file: %q", path)
	}
	off := 12
	for off+8 <= len(b) {
		id := string(b[off : off+4])
		size := int(binary.LittleEndian.Uint32(b[off+4 : off+8]))
		if id == "data" {
			payload := b[off+8 : off+8+size]
			samples := make([]float32, len(payload)/4)
			for i := range samples {
				samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(payload[i*4:]))
			}
			return samples
		}
		off += 8 + size + size%2
	}
	t.Fatalf("no data chunk in %q", path)
	return nil
}

func TestWriteAndFinalize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.wav")

	w, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	chunk := make(model.AudioChunk, model.SampleRate) // one second
	for i := range chunk {
		chunk[i] = 0.25
	}
	if err := w.Write(chunk); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if w.Duration() != time.Second {
		t.Fatalf("Duration() = %v, want 1s", w.Duration())
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer f.Close()
	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		t.Fatal("finalized container is not a valid WAV file")
	}
	if dec.SampleRate != model.SampleRate {
		t.Fatalf("sample rate = %d, want %d", dec.SampleRate, model.SampleRate)
	}
	if dec.NumChans != 1 {
		t.Fatalf("channels = %d, want 1", dec.NumChans)
	}
	if dec.BitDepth != 32 {
		t.Fatalf("bit depth = %d, want 32", dec.BitDepth)
	}
}

func TestAppendPreservesExistingSamples(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.wav")
	first := model.AudioChunk{0.1, 0.2, -0.3, 0.4}
	second := model.AudioChunk{0.5, -0.6}

	w, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := w.Write(first); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// re-opening the same container must fold the existing samples in
	// unchanged before new ones are appended
	w, err = Open(path)
	if err != nil {
		t.Fatalf("re-Open: %v", err)
	}
	if err := w.Write(second); err != nil {
		t.Fatalf("Write after append: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close after append: %v", err)
	}

	got := decodeFloatSamples(t, path)
	want := append(append([]float32{}, first...), second...)
	if len(got) != len(want) {
		t.Fatalf("decoded %d samples, want %d", len(got), len(want))
	}
	for i := range want {
		// float32 frames are stored bit-for-bit; equality is exact
		if got[i] != want[i] {
			t.Fatalf("sample %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestOpenRejectsMismatchedContainer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "other.wav")

	// write a 16-bit 44.1 kHz file; append must refuse it
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	enc := wav.NewEncoder(f, 44100, 16, 1, 1)
	if err := enc.WriteFrame(int16(100)); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("encoder close: %v", err)
	}
	f.Close()

	if _, err := Open(path); err == nil {
		t.Fatal("Open accepted a container with mismatched parameters")
	}
}
