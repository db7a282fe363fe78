package audio

import (
	"errors"
	"sync"
	"testing"
)

// fakePlayStream blocks in Write until stopped, like a real output stream
// waiting out a buffer of playback time, and records whether Close arrived
// while a Write was still in flight.
type fakePlayStream struct {
	mu                sync.Mutex
	inWrite           bool
	closedDuringWrite bool
	closed            bool
	stopOnce          sync.Once
	stopped           chan struct{}
}

func newFakePlayStream() *fakePlayStream {
	return &fakePlayStream{stopped: make(chan struct{})}
}

func (f *fakePlayStream) Write() error {
	f.mu.Lock()
	f.inWrite = true
	f.mu.Unlock()

	<-f.stopped

	f.mu.Lock()
	f.inWrite = false
	f.mu.Unlock()
	return errors.New("output underflowed")
}

func (f *fakePlayStream) Stop() error {
	f.stopOnce.Do(func() { close(f.stopped) })
	return nil
}

func (f *fakePlayStream) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	if f.inWrite {
		f.closedDuringWrite = true
	}
	return nil
}

func TestKeepaliveCloseWaitsForWriter(t *testing.T) {
	fake := newFakePlayStream()
	k := &keepalive{
		stream: fake,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go k.run()

	k.Close()

	fake.mu.Lock()
	defer fake.mu.Unlock()
	if !fake.closed {
		t.Fatal("stream never closed")
	}
	if fake.closedDuringWrite {
		t.Fatal("stream closed while a write was still in flight")
	}
}
