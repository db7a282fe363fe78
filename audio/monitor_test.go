package audio

import (
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
)

// fakeDefaults is a swappable device-name source standing in for the host
// API's cached table.
type fakeDefaults struct {
	mu    sync.Mutex
	in    string
	out   string
	ok    bool
	polls int
}

func (f *fakeDefaults) lookup() (string, string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls++
	return f.in, f.out, f.ok
}

func (f *fakeDefaults) set(t *testing.T, in, out string) {
	t.Helper()
	// wait until the monitor has its pre-change snapshot, so the change is
	// guaranteed to be observed as a change
	deadline := time.Now().Add(2 * time.Second)
	for {
		f.mu.Lock()
		seen := f.polls
		f.mu.Unlock()
		if seen > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("monitor never polled")
		}
		time.Sleep(time.Millisecond)
	}
	f.mu.Lock()
	f.in, f.out = in, out
	f.mu.Unlock()
}

func collectEvent(t *testing.T, events <-chan DeviceEvent) DeviceEvent {
	t.Helper()
	select {
	case ev, ok := <-events:
		if !ok {
			t.Fatal("events channel closed early")
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no device event observed")
	}
	return DeviceEvent{}
}

func TestMonitorEmitsOnDefaultChange(t *testing.T) {
	fake := &fakeDefaults{in: "Built-in Mic", out: "Built-in Speakers", ok: true}
	m := spawnMonitor(fake.lookup, time.Millisecond)
	defer m.Stop()

	fake.set(t, "USB Mic", "Built-in Speakers")
	ev := collectEvent(t, m.Events())
	if ev.Kind != DefaultInputChanged || ev.Device != "USB Mic" {
		t.Fatalf("event = %+v, want DefaultInputChanged for USB Mic", ev)
	}

	fake.set(t, "USB Mic", "AirPods Pro")
	ev = collectEvent(t, m.Events())
	if ev.Kind != DefaultOutputChanged || ev.Device != "AirPods Pro" {
		t.Fatalf("event = %+v, want DefaultOutputChanged for AirPods Pro", ev)
	}
	if !ev.Headphone {
		t.Fatal("AirPods Pro not recognized as headphone output")
	}
}

func TestMonitorStopClosesEvents(t *testing.T) {
	fake := &fakeDefaults{in: "a", out: "b", ok: true}
	m := spawnMonitor(fake.lookup, time.Millisecond)

	m.Stop()
	m.Stop() // idempotent

	if _, ok := <-m.Events(); ok {
		t.Fatal("events channel still open after Stop")
	}
}

func TestMonitorDisabledWhenLookupFails(t *testing.T) {
	hook := logtest.NewGlobal()
	defer hook.Reset()

	m := spawnMonitor(func() (string, string, bool) { return "", "", false }, time.Millisecond)
	defer m.Stop()

	select {
	case ev := <-m.Events():
		t.Fatalf("unexpected event %+v from disabled monitor", ev)
	case <-time.After(20 * time.Millisecond):
	}

	var warned bool
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel {
			warned = true
		}
	}
	if !warned {
		t.Fatal("disabled monitor did not surface a warning")
	}
}
