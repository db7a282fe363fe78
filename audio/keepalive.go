package audio

import (
	"fmt"

	"github.com/gordonklaus/portaudio"
	"github.com/sirupsen/logrus"
)

// playStream is the slice of portaudio.Stream the keepalive drives.
type playStream interface {
	Write() error
	Stop() error
	Close() error
}

// keepalive is a silent output stream held open for the lifetime of a
// loopback source. Some platforms tear down the loopback audio graph when
// nothing is playing; writing zeros keeps it alive.
type keepalive struct {
	stream playStream
	buf    []float32
	stop   chan struct{}
	done   chan struct{}
}

func startKeepalive(selector string) (*keepalive, error) {
	info, err := findOutputDevice(selector)
	if err != nil {
		return nil, err
	}

	params := portaudio.HighLatencyParameters(nil, info)
	params.Output.Channels = 1
	params.FramesPerBuffer = 1024

	buf := make([]float32, 1024)
	stream, err := portaudio.OpenStream(params, &buf)
	if err != nil {
		return nil, fmt.Errorf("open keepalive stream on %q: %w", info.Name, err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("start keepalive stream: %w", err)
	}

	k := &keepalive{
		stream: stream,
		buf:    buf,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go k.run()
	return k, nil
}

func (k *keepalive) run() {
	defer close(k.done)
	for {
		select {
		case <-k.stop:
			return
		default:
		}
		// buf stays zeroed; Write blocks for one buffer of playback time
		if err := k.stream.Write(); err != nil {
			logrus.WithField("component", "keepalive").WithError(err).Debug("silent write failed")
			return
		}
	}
}

// Close stops playback, waits for the run goroutine to leave the stream,
// and only then releases it. Closing underneath a blocked Write would hand
// PortAudio a freed stream.
func (k *keepalive) Close() {
	close(k.stop)
	k.stream.Stop()
	<-k.done
	k.stream.Close()
}
