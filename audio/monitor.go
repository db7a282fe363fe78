package audio

import (
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"
	"github.com/sirupsen/logrus"
)

// DeviceEventKind identifies which OS default endpoint changed.
type DeviceEventKind int

const (
	DefaultInputChanged DeviceEventKind = iota
	DefaultOutputChanged
)

// DeviceEvent reports an OS default-device change. Headphone is a heuristic
// on the new output's name, used to decide whether echo cancellation is
// still needed.
type DeviceEvent struct {
	Kind      DeviceEventKind
	Device    string
	Headphone bool
}

const monitorInterval = time.Second

// Monitor watches the OS default input and output devices from a dedicated
// thread and forwards change events. If the initial device query fails,
// monitoring is disabled rather than failing the session.
//
// Detection is best-effort: PortAudio caches its device table when it is
// initialized, so a default change only becomes visible if the host API
// refreshes that table while streams are running. On hosts that never do,
// the monitor stays silent and sessions keep the device they opened with.
type Monitor struct {
	events   chan DeviceEvent
	lookup   func() (in, out string, ok bool)
	interval time.Duration
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
	log      *logrus.Entry
}

// SpawnMonitor starts watching for default-device changes. The returned
// monitor must be stopped to release its thread.
func SpawnMonitor() *Monitor {
	return spawnMonitor(defaultNames, monitorInterval)
}

func spawnMonitor(lookup func() (in, out string, ok bool), interval time.Duration) *Monitor {
	m := &Monitor{
		events:   make(chan DeviceEvent, 8),
		lookup:   lookup,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
		log:      logrus.WithField("component", "monitor"),
	}
	go m.watch()
	return m
}

// Events delivers device-change notifications. Closed when the monitor stops.
func (m *Monitor) Events() <-chan DeviceEvent {
	return m.events
}

func (m *Monitor) watch() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(m.done)
	defer close(m.events)

	lastIn, lastOut, ok := m.lookup()
	if !ok {
		// degraded observability only; the data path keeps running
		m.log.Warn("default device query failed, monitoring disabled")
		<-m.stop
		return
	}
	m.log.Warn("default-device change detection is best-effort: the host API caches its device table at startup")

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			in, out, ok := m.lookup()
			if !ok {
				continue
			}
			if in != lastIn {
				lastIn = in
				m.emit(DeviceEvent{Kind: DefaultInputChanged, Device: in})
			}
			if out != lastOut {
				lastOut = out
				m.emit(DeviceEvent{
					Kind:      DefaultOutputChanged,
					Device:    out,
					Headphone: looksLikeHeadphone(out),
				})
			}
		}
	}
}

func (m *Monitor) emit(ev DeviceEvent) {
	select {
	case m.events <- ev:
	default:
		m.log.WithField("device", ev.Device).Debug("event dropped, sink full")
	}
}

func defaultNames() (in, out string, ok bool) {
	inDev, errIn := portaudio.DefaultInputDevice()
	outDev, errOut := portaudio.DefaultOutputDevice()
	if errIn != nil || errOut != nil {
		return "", "", false
	}
	return inDev.Name, outDev.Name, true
}

func looksLikeHeadphone(name string) bool {
	lower := strings.ToLower(name)
	for _, marker := range []string{"headphone", "headset", "airpods", "earbuds", "buds"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// Stop signals the watcher thread to exit and waits for it. Idempotent.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() {
		close(m.stop)
		<-m.done
	})
}
