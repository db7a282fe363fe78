package recorder

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"github.com/go-audio/wav"
	"github.com/sirupsen/logrus"

	"github.com/murmur-app/murmur/model"
)

// ieeeFloat is the WAV audio format tag for 32-bit float PCM.
const ieeeFloat = 3

// Writer persists processed audio to a WAV container: mono, 32-bit float,
// fixed pipeline rate. Writes are append-only; Close fixes up the container
// header, so a file cut short by abnormal termination is a best-effort
// playable prefix, not guaranteed valid. One writer goroutine per session.
type Writer struct {
	f       *os.File
	enc     *wav.Encoder
	path    string
	samples uint64
	log     *logrus.Entry
}

// Open creates a new container at path, or appends to an existing one with
// matching parameters by folding its samples into a fresh container.
func Open(path string) (*Writer, error) {
	var existing []float32
	if info, err := os.Stat(path); err == nil && info.Size() > 0 {
		existing, err = readExisting(path)
		if err != nil {
			return nil, err
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create container: %w", err)
	}
	w := &Writer{
		f:    f,
		enc:  wav.NewEncoder(f, model.SampleRate, 32, 1, ieeeFloat),
		path: path,
		log:  logrus.WithFields(logrus.Fields{"component": "recorder", "path": path}),
	}
	if len(existing) > 0 {
		if err := w.Write(existing); err != nil {
			f.Close()
			return nil, fmt.Errorf("replay existing samples: %w", err)
		}
	}
	w.log.Info("container opened")
	return w, nil
}

func readExisting(path string) ([]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open existing container: %w", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("existing file %q is not a valid container", path)
	}
	if dec.SampleRate != model.SampleRate || dec.NumChans != 1 ||
		dec.BitDepth != 32 || dec.WavAudioFormat != ieeeFloat {
		return nil, fmt.Errorf("existing container %q has mismatched parameters (rate=%d chans=%d depth=%d format=%d)",
			path, dec.SampleRate, dec.NumChans, dec.BitDepth, dec.WavAudioFormat)
	}

	// the decoder's buffer helpers assume integer PCM; IEEE-float data has
	// to be read from the data chunk and reassembled bit-for-bit
	if err := dec.FwdToPCM(); err != nil {
		return nil, fmt.Errorf("locate data chunk: %w", err)
	}
	raw := make([]byte, dec.PCMLen())
	if _, err := io.ReadFull(dec.PCMChunk, raw); err != nil {
		return nil, fmt.Errorf("read data chunk: %w", err)
	}
	samples := make([]float32, len(raw)/4)
	for i := range samples {
		samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return samples, nil
}

// Write appends one chunk of samples.
func (w *Writer) Write(samples model.AudioChunk) error {
	for _, s := range samples {
		if err := w.enc.WriteFrame(s); err != nil {
			return fmt.Errorf("write frame: %w", err)
		}
	}
	w.samples += uint64(len(samples))
	return nil
}

// Duration reports the audio length written so far.
func (w *Writer) Duration() time.Duration {
	return time.Duration(w.samples) * time.Second / model.SampleRate
}

// Close finalizes the container header and releases the file.
func (w *Writer) Close() error {
	encErr := w.enc.Close()
	fileErr := w.f.Close()
	if encErr != nil {
		return fmt.Errorf("finalize container: %w", encErr)
	}
	if fileErr != nil {
		return fmt.Errorf("close container file: %w", fileErr)
	}
	w.log.WithField("duration", w.Duration().String()).Info("container finalized")
	return nil
}
