package session

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/murmur-app/murmur/audio"
	"github.com/murmur-app/murmur/model"
	"github.com/murmur-app/murmur/processor"
	"github.com/murmur-app/murmur/recorder"
	"github.com/murmur-app/murmur/stt"
	"github.com/murmur-app/murmur/transcript"
)

const (
	defaultRedemptionMS    = 400
	onboardingRedemptionMS = 64
	// a partial lingering this long without a final forces a backend flush
	partialGracePeriod = 10 * time.Second
	watchdogInterval   = 2 * time.Second
)

// liveRuntime composes the whole per-session pipeline: two capture sources
// feeding the processor, whose fanout goes to the recorder and the bridge,
// whose responses feed the transcript manager and the store.
type liveRuntime struct {
	cfg    Config
	params model.SessionParams
	ctx    context.Context
	emit   func(Notice)

	proc    *processor.Processor
	bridge  *stt.Client
	manager *transcript.Manager
	monitor *audio.Monitor
	rec     *recorder.Writer

	mu     sync.Mutex
	micSrc *audio.Source
	spkSrc *audio.Source
	record *model.SessionRecord

	wg        sync.WaitGroup
	closing   atomic.Bool
	doneOnce  sync.Once
	done      chan struct{}
	closeOnce sync.Once

	// unix-nano stamps driving the lingering-partial watchdog
	lastPartial atomic.Int64
	lastFinal   atomic.Int64

	log *logrus.Entry
}

// NewRuntime returns the production RuntimeFactory for a controller config.
// Acquisition is all-or-nothing: any failure releases what was already
// opened and reports the error, leaving nothing half-started.
func NewRuntime(cfg Config) RuntimeFactory {
	return func(ctx context.Context, params model.SessionParams, emit func(Notice)) (Runtime, error) {
		r := &liveRuntime{
			cfg:    cfg,
			params: params,
			ctx:    ctx,
			emit:   emit,
			done:   make(chan struct{}),
			log:    logrus.WithFields(logrus.Fields{"component": "runtime", "session": params.ID}),
		}
		if err := r.acquire(); err != nil {
			r.Close()
			return nil, err
		}
		return r, nil
	}
}

func (r *liveRuntime) acquire() error {
	now := time.Now()
	if err := r.loadRecord(now); err != nil {
		return err
	}

	micSrc, err := audio.OpenSource(audio.SourceConfig{Kind: audio.SourceMic, Device: r.params.MicDevice})
	if err != nil {
		return fmt.Errorf("open mic: %w", err)
	}
	r.micSrc = micSrc

	spkSrc, err := audio.OpenSource(audio.SourceConfig{
		Kind:     audio.SourceSpeaker,
		Device:   r.params.SpeakerDevice,
		Loopback: true,
	})
	if err != nil {
		return fmt.Errorf("open speaker loopback: %w", err)
	}
	r.spkSrc = spkSrc

	if r.params.RecordEnabled {
		rec, err := recorder.Open(filepath.Join(r.cfg.RecordDir, r.params.ID+".wav"))
		if err != nil {
			return fmt.Errorf("open recorder: %w", err)
		}
		r.rec = rec
	}

	r.proc = processor.New(processor.Config{
		Recording: r.rec != nil,
		OnAmplitude: func(mic, speaker float32) {
			r.emit(Notice{Kind: NoticeAmplitude, SessionID: r.params.ID, Mic: mic, Speaker: speaker})
		},
	})

	redemption := r.cfg.RedemptionMS
	if redemption <= 0 {
		redemption = defaultRedemptionMS
	}
	if r.params.Onboarding {
		redemption = r.cfg.OnboardingRedemptionMS
		if redemption <= 0 {
			redemption = onboardingRedemptionMS
		}
	}
	bridge, err := stt.Dial(r.ctx, r.cfg.Connection, stt.Options{
		Languages:    r.params.Languages,
		Channels:     2,
		RedemptionMS: redemption,
	})
	if err != nil {
		return fmt.Errorf("connect bridge: %w", err)
	}
	r.bridge = bridge
	r.manager = transcript.NewManager()
	r.monitor = audio.SpawnMonitor()

	r.startSourcePump(micSrc, true)
	r.startSourcePump(spkSrc, false)
	r.startPumps()
	return nil
}

func (r *liveRuntime) loadRecord(now time.Time) error {
	existing, ok, err := r.cfg.Store.GetSession(context.Background(), r.params.ID)
	if err != nil {
		return fmt.Errorf("load session record: %w", err)
	}
	if ok {
		existing.EndedAt = nil
		r.record = existing
	} else {
		r.record = &model.SessionRecord{ID: r.params.ID, StartedAt: now}
	}
	if err := r.cfg.Store.UpsertSession(context.Background(), r.record); err != nil {
		return fmt.Errorf("record session start: %w", err)
	}
	return nil
}

// startSourcePump pushes one source's chunks into the processor. The pump
// ends when the source's channel closes; if that happens while the source
// is still the current one and the session is not closing, it is a child
// death and the supervisor gets told.
func (r *liveRuntime) startSourcePump(src *audio.Source, isMic bool) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for chunk := range src.Chunks() {
			if isMic {
				r.proc.PushMic(chunk.Samples)
			} else {
				r.proc.PushSpeaker(chunk.Samples)
			}
		}
		if isMic {
			r.mu.Lock()
			current := r.micSrc == src
			r.mu.Unlock()
			if !current {
				// swapped out; its replacement has its own pump
				return
			}
			r.childExit("mic source")
		} else {
			r.childExit("speaker source")
		}
	}()
}

func (r *liveRuntime) startPumps() {
	// processed pairs to the bridge
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for {
			select {
			case <-r.ctx.Done():
				return
			case pair := <-r.proc.Pairs():
				r.bridge.SendAudio(pair.Mic, pair.Speaker)
			}
		}
	}()

	// mixed audio to the recorder
	if r.rec != nil {
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			for {
				select {
				case <-r.ctx.Done():
					return
				case chunk := <-r.proc.Mixed():
					if err := r.rec.Write(chunk); err != nil {
						r.log.WithError(err).Error("recorder write failed")
						r.childExit("recorder")
						return
					}
				}
			}
		}()
	}

	// backend responses to the transcript manager and the store
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for resp := range r.bridge.Responses() {
			r.handleResponse(&resp)
		}
		r.childExit("bridge")
	}()

	// device-change notifications
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for ev := range r.monitor.Events() {
			r.handleDeviceEvent(ev)
		}
	}()

	// lingering-partial watchdog
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(watchdogInterval)
		defer ticker.Stop()
		for {
			select {
			case <-r.ctx.Done():
				return
			case <-ticker.C:
				partial := r.lastPartial.Load()
				if partial > r.lastFinal.Load() && time.Since(time.Unix(0, partial)) > partialGracePeriod {
					r.log.Info("partial lingering past grace period, forcing finalize")
					r.bridge.Finalize()
					r.lastPartial.Store(time.Now().UnixNano())
				}
			}
		}
	}()
}

func (r *liveRuntime) handleResponse(resp *stt.StreamResponse) {
	diff := r.manager.Update(resp)

	if resp.IsFinal {
		r.lastFinal.Store(time.Now().UnixNano())
	} else if len(diff.PartialWords) > 0 {
		r.lastPartial.Store(time.Now().UnixNano())
	}

	if len(diff.FinalWords) > 0 {
		r.mu.Lock()
		r.record.Words = append(r.record.Words, diff.FinalWords...)
		rec := r.record
		r.mu.Unlock()
		if err := r.cfg.Store.UpsertSession(context.Background(), rec); err != nil {
			// persistence trouble degrades durability, not the live path
			r.log.WithError(err).Error("append final words failed")
		}
	}

	if len(diff.FinalWords) > 0 || len(diff.PartialWords) > 0 {
		d := diff
		r.emit(Notice{Kind: NoticeTranscript, SessionID: r.params.ID, Diff: &d})
	}
}

func (r *liveRuntime) handleDeviceEvent(ev audio.DeviceEvent) {
	switch ev.Kind {
	case audio.DefaultInputChanged:
		r.emit(Notice{Kind: NoticeDevice, SessionID: r.params.ID, Device: ev.Device})
		if r.params.MicDevice == audio.DefaultDevice {
			// follow the OS default: reopen the mic against the new device
			if err := r.SwapMic(audio.DefaultDevice); err != nil {
				r.log.WithError(err).Error("mic re-open after default change failed")
				r.childExit("mic source")
			}
		}
	case audio.DefaultOutputChanged:
		r.log.WithFields(logrus.Fields{"device": ev.Device, "headphone": ev.Headphone}).
			Info("default output changed")
		r.emit(Notice{Kind: NoticeDevice, SessionID: r.params.ID, Device: ev.Device})
	}
}

func (r *liveRuntime) Pause() {
	r.proc.Pause()
}

func (r *liveRuntime) Resume() {
	r.proc.Resume()
}

func (r *liveRuntime) SetMicMuted(muted bool) {
	r.proc.SetMicMuted(muted)
}

func (r *liveRuntime) SetSpeakerMuted(muted bool) {
	r.proc.SetSpeakerMuted(muted)
}

// SwapMic tears down and re-acquires only the mic-dependent resources. The
// old source keeps running until the new one is open, so a failed swap
// leaves the session usable.
func (r *liveRuntime) SwapMic(device string) error {
	newSrc, err := audio.OpenSource(audio.SourceConfig{Kind: audio.SourceMic, Device: device})
	if err != nil {
		return fmt.Errorf("open replacement mic: %w", err)
	}

	r.mu.Lock()
	old := r.micSrc
	r.micSrc = newSrc
	r.mu.Unlock()

	r.startSourcePump(newSrc, true)
	if old != nil {
		old.Stop()
	}
	// the learned echo path belonged to the old device
	r.proc.ResetEcho()
	r.log.WithField("device", device).Info("mic swapped")
	return nil
}

// Done closes when any child resource terminates unexpectedly.
func (r *liveRuntime) Done() <-chan struct{} {
	return r.done
}

func (r *liveRuntime) childExit(name string) {
	if r.closing.Load() || r.ctx.Err() != nil {
		return
	}
	r.log.WithField("child", name).Warn("session child terminated unexpectedly")
	r.doneOnce.Do(func() { close(r.done) })
}

// Close tears the whole runtime down: sources stop (and de-register their
// OS callbacks) before anything backing them is released, the bridge and
// monitor join, pumps drain, the container is finalized and the session end
// timestamp is recorded. Idempotent.
func (r *liveRuntime) Close() {
	r.closeOnce.Do(func() {
		r.closing.Store(true)

		r.mu.Lock()
		micSrc, spkSrc := r.micSrc, r.spkSrc
		r.mu.Unlock()
		if micSrc != nil {
			micSrc.Stop()
		}
		if spkSrc != nil {
			spkSrc.Stop()
		}
		if r.bridge != nil {
			r.bridge.Close()
		}
		if r.monitor != nil {
			r.monitor.Stop()
		}
		r.wg.Wait()

		if r.rec != nil {
			if err := r.rec.Close(); err != nil {
				r.log.WithError(err).Error("finalize audio container failed")
			}
		}
		if r.record != nil {
			now := time.Now()
			r.mu.Lock()
			r.record.EndedAt = &now
			rec := r.record
			r.mu.Unlock()
			if err := r.cfg.Store.UpsertSession(context.Background(), rec); err != nil {
				r.log.WithError(err).Error("record session end failed")
			}
		}
		r.log.Info("session runtime closed")
	})
}
