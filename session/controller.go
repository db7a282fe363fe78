package session

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/murmur-app/murmur/model"
	"github.com/murmur-app/murmur/store"
)

// Runtime is the set of live resources backing an active session: sources,
// processor, recorder, bridge and transcript manager. The controller owns
// exactly zero or one.
type Runtime interface {
	Pause()
	Resume()
	SetMicMuted(bool)
	SetSpeakerMuted(bool)
	// SwapMic re-acquires only the mic-dependent resources.
	SwapMic(device string) error
	// Done closes when any child resource terminates unexpectedly. The
	// controller treats that as equivalent to Stop, never a silent hang.
	Done() <-chan struct{}
	// Close tears everything down. Idempotent.
	Close()
}

// RuntimeFactory acquires all resources for a session. The default is
// NewRuntime; tests substitute fakes.
type RuntimeFactory func(ctx context.Context, params model.SessionParams, emit func(Notice)) (Runtime, error)

// Config wires a Controller.
type Config struct {
	Connection model.Connection
	// RedemptionMS is the backend's forced-finalization silence window;
	// OnboardingRedemptionMS replaces it for guided first-run sessions.
	RedemptionMS           int
	OnboardingRedemptionMS int
	RecordDir              string
	Store                  store.Store
	Factory                RuntimeFactory
	// Notifier delivers best-effort desktop notifications; failures are
	// the callee's problem, never the controller's.
	Notifier func(title, body string)
}

// Controller is the per-process session state machine driver. Exactly one
// session is active at a time; commands arrive through Dispatch and are
// serialized onto a single goroutine that also supervises the runtime.
type Controller struct {
	cfg Config

	cmds    chan Command
	notices chan Notice

	mu            sync.RWMutex
	state         model.SessionState
	params        model.SessionParams
	runtime       Runtime
	cancelRuntime context.CancelFunc

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
	log      *logrus.Entry
}

// NewController creates a controller in the Inactive state and starts its
// command loop.
func NewController(cfg Config) *Controller {
	if cfg.Factory == nil {
		cfg.Factory = NewRuntime(cfg)
	}
	c := &Controller{
		cfg:     cfg,
		cmds:    make(chan Command, 16),
		notices: make(chan Notice, 64),
		state:   model.StateInactive,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
		log:     logrus.WithField("component", "session"),
	}
	go c.loop()
	return c
}

// Dispatch queues a command for the state machine. Commands are applied in
// order on the controller goroutine.
func (c *Controller) Dispatch(cmd Command) {
	select {
	case c.cmds <- cmd:
	case <-c.stop:
	}
}

// Notices delivers observer events. Single consumer; main fans out.
func (c *Controller) Notices() <-chan Notice {
	return c.notices
}

// State returns the current state and active session id.
func (c *Controller) State() (model.SessionState, string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state, c.params.ID
}

// Close stops the active session, if any, and ends the command loop.
func (c *Controller) Close() {
	c.stopOnce.Do(func() {
		close(c.stop)
		<-c.done
	})
}

func (c *Controller) loop() {
	defer close(c.done)
	for {
		var runtimeDone <-chan struct{}
		if c.runtime != nil {
			runtimeDone = c.runtime.Done()
		}

		select {
		case <-c.stop:
			if c.runtime != nil {
				c.apply(Stop{})
			}
			return

		case <-runtimeDone:
			// a child died while running; supervision maps that to Stop
			c.log.Warn("session resource terminated unexpectedly, stopping session")
			c.emit(Notice{Kind: NoticeError, SessionID: c.params.ID, Error: "session resource terminated unexpectedly"})
			c.apply(Stop{})

		case cmd := <-c.cmds:
			c.apply(cmd)
		}
	}
}

// apply runs the pure transition and executes its effects in order. Any
// effect failure reverts the session to Inactive and reports the error — a
// failed Start never leaves the machine wedged in a half-started state.
func (c *Controller) apply(cmd Command) {
	c.mu.RLock()
	state, activeID := c.state, c.params.ID
	c.mu.RUnlock()

	next, effects := transition(state, activeID, cmd)

	changed := next != state
	for _, fx := range effects {
		if fx == fxAcquire {
			// a restart under the same state still announces itself
			changed = true
		}
		if err := c.execute(fx, cmd); err != nil {
			c.log.WithError(err).Error("session effect failed")
			c.emit(Notice{Kind: NoticeError, SessionID: c.params.ID, Error: err.Error()})
			c.teardown()
			next = model.StateInactive
			changed = true
			break
		}
	}

	if changed {
		c.setState(next)
	}
}

func (c *Controller) execute(fx effect, cmd Command) error {
	switch fx {
	case fxAcquire:
		start := cmd.(Start)
		ctx, cancel := context.WithCancel(context.Background())
		rt, err := c.cfg.Factory(ctx, start.Params, c.emit)
		if err != nil {
			cancel()
			return err
		}
		c.mu.Lock()
		c.params = start.Params
		c.runtime = rt
		c.cancelRuntime = cancel
		c.mu.Unlock()
		c.notify("Recording started", start.Params.ID)
		return nil

	case fxTeardown:
		c.teardown()
		return nil

	case fxPause:
		c.runtime.Pause()
		return nil

	case fxResume:
		c.runtime.Resume()
		return nil

	case fxMicMute:
		c.runtime.SetMicMuted(cmd.(MicMuted).Muted)
		return nil

	case fxSpeakerMute:
		c.runtime.SetSpeakerMuted(cmd.(SpeakerMuted).Muted)
		return nil

	case fxMicSwap:
		return c.runtime.SwapMic(cmd.(MicChange).Device)
	}
	return nil
}

func (c *Controller) teardown() {
	c.mu.Lock()
	rt := c.runtime
	cancel := c.cancelRuntime
	id := c.params.ID
	c.runtime = nil
	c.cancelRuntime = nil
	c.params = model.SessionParams{}
	c.mu.Unlock()

	if rt == nil {
		return
	}
	if cancel != nil {
		cancel()
	}
	rt.Close()
	c.notify("Recording stopped", id)
}

func (c *Controller) setState(next model.SessionState) {
	c.mu.Lock()
	c.state = next
	id := c.params.ID
	c.mu.Unlock()
	c.log.WithFields(logrus.Fields{"state": next.String(), "session": id}).Info("session state changed")
	c.emit(Notice{Kind: NoticeState, SessionID: id, State: next.String()})
}

// emit publishes a notice without ever blocking the control path.
func (c *Controller) emit(n Notice) {
	select {
	case c.notices <- n:
	default:
		c.log.WithField("kind", n.Kind).Debug("notice dropped, observer too slow")
	}
}

func (c *Controller) notify(title, body string) {
	if c.cfg.Notifier != nil {
		c.cfg.Notifier(title, body)
	}
}
