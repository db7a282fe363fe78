package audio

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/gordonklaus/portaudio"
	"github.com/sirupsen/logrus"
)

// SourceKind distinguishes the two capture roles of a session.
type SourceKind int

const (
	SourceMic SourceKind = iota
	SourceSpeaker
)

func (k SourceKind) String() string {
	if k == SourceSpeaker {
		return "speaker"
	}
	return "mic"
}

// SourceConfig selects what a Source captures.
type SourceConfig struct {
	Kind SourceKind
	// Device is the platform device name; empty means the current default,
	// resolved at open time.
	Device string
	// Loopback marks speaker-capture sources that need a silent keepalive
	// output stream for their lifetime.
	Loopback bool
}

// Source captures one hardware endpoint on a dedicated OS thread, resamples
// it to the pipeline rate and delivers fixed-size tagged chunks. A Source is
// not restartable: after Stop or a capture failure a new one must be opened.
type Source struct {
	cfg       SourceConfig
	stream    *portaudio.Stream
	keepalive *keepalive
	resampler *Resampler
	chunker   *Chunker
	rate      int

	chunks   chan TaggedChunk
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
	log      *logrus.Entry
}

// OpenSource opens the selected device for capture. It returns
// ErrDeviceUnavailable (wrapped) when the device cannot be resolved or the
// stream cannot be opened. The capture loop only starts with Run.
func OpenSource(cfg SourceConfig) (*Source, error) {
	info, err := findInputDevice(cfg.Device)
	if err != nil {
		return nil, err
	}

	var ka *keepalive
	if cfg.Loopback {
		ka, err = startKeepalive(DefaultDevice)
		if err != nil {
			// keepalive is platform insurance, not a hard requirement
			logrus.WithField("component", "source").WithError(err).
				Warn("loopback keepalive unavailable, capturing without it")
			ka = nil
		}
	}

	rate := int(info.DefaultSampleRate)
	params := portaudio.HighLatencyParameters(info, nil)
	params.Input.Channels = 1
	params.SampleRate = float64(rate)
	params.FramesPerBuffer = 512

	buf := make([]float32, 512)
	stream, err := portaudio.OpenStream(params, &buf)
	if err != nil {
		if ka != nil {
			ka.Close()
		}
		return nil, fmt.Errorf("%w: open %q: %v", ErrDeviceUnavailable, info.Name, err)
	}

	s := &Source{
		cfg:       cfg,
		stream:    stream,
		keepalive: ka,
		resampler: NewResampler(),
		chunker:   NewChunker(),
		rate:      rate,
		chunks:    make(chan TaggedChunk, 32),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
		log: logrus.WithFields(logrus.Fields{
			"component": "source",
			"kind":      cfg.Kind.String(),
			"device":    info.Name,
		}),
	}
	s.captureLoop(buf)
	return s, nil
}

// Chunks delivers resampled fixed-size chunks. The channel is closed when
// the capture loop exits, whether by Stop or by device failure — the owner
// treats an unexpected close as a child death.
func (s *Source) Chunks() <-chan TaggedChunk {
	return s.chunks
}

// captureLoop starts the dedicated capture thread. Platform audio reads are
// not safe to interleave with the async scheduler, so the loop pins its OS
// thread.
func (s *Source) captureLoop(buf []float32) {
	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		defer close(s.done)
		defer close(s.chunks)

		if err := s.stream.Start(); err != nil {
			s.log.WithError(err).Error("start capture stream")
			return
		}
		s.log.WithField("native_rate", s.rate).Info("capture started")

		for {
			select {
			case <-s.stop:
				s.flush()
				return
			default:
			}

			if err := s.stream.Read(); err != nil {
				if err == portaudio.InputOverflowed {
					s.log.Debug("input overflowed, continuing")
					continue
				}
				s.log.WithError(err).Error("capture read failed")
				s.flush()
				return
			}

			resampled := s.resampler.Process(buf, s.rate)
			for _, chunk := range s.chunker.Push(resampled) {
				select {
				case s.chunks <- chunk:
				case <-s.stop:
					s.flush()
					return
				}
			}
		}
	}()
}

func (s *Source) flush() {
	if chunk, ok := s.chunker.Flush(); ok {
		select {
		case s.chunks <- chunk:
		default:
		}
	}
}

// Stop ends capture and releases the device and any keepalive stream. It is
// idempotent and safe to call from any goroutine.
func (s *Source) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
		s.stream.Stop()
		<-s.done
		s.stream.Close()
		if s.keepalive != nil {
			s.keepalive.Close()
		}
		s.log.Info("capture stopped")
	})
}
