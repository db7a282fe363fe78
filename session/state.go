package session

import "github.com/murmur-app/murmur/model"

// Command is a control event dispatched to the session state machine.
type Command interface{ isCommand() }

// Start begins a session, implicitly stopping a running one with a
// different id. Starting the already-active session id is a no-op.
type Start struct {
	Params model.SessionParams
}

// Stop tears the active session down.
type Stop struct{}

// Pause suspends transcription and recording consumption without releasing
// devices, for a fast resume.
type Pause struct{}

// Resume continues a paused session.
type Resume struct{}

// MicMuted toggles mic muting.
type MicMuted struct{ Muted bool }

// SpeakerMuted toggles speaker muting.
type SpeakerMuted struct{ Muted bool }

// MicChange switches the capture microphone, re-acquiring only the
// mic-dependent resources when a session is active.
type MicChange struct{ Device string }

func (Start) isCommand()        {}
func (Stop) isCommand()         {}
func (Pause) isCommand()        {}
func (Resume) isCommand()       {}
func (MicMuted) isCommand()     {}
func (SpeakerMuted) isCommand() {}
func (MicChange) isCommand()    {}

// effect is a side effect the transition driver must execute. Transition
// logic stays pure so it can be unit-tested without any I/O.
type effect int

const (
	fxAcquire effect = iota
	fxTeardown
	fxPause
	fxResume
	fxMicMute
	fxSpeakerMute
	fxMicSwap
)

// transition computes the next state and the ordered side effects for a
// command. activeID is the running session's id, empty when inactive.
func transition(state model.SessionState, activeID string, cmd Command) (model.SessionState, []effect) {
	switch c := cmd.(type) {
	case Start:
		if state == model.StateInactive {
			return model.StateRunningActive, []effect{fxAcquire}
		}
		if c.Params.ID == activeID {
			// idempotent: the session is already running
			return state, nil
		}
		// no two concurrent sessions: implicit stop, then start
		return model.StateRunningActive, []effect{fxTeardown, fxAcquire}

	case Stop:
		if state == model.StateInactive {
			return state, nil
		}
		return model.StateInactive, []effect{fxTeardown}

	case Pause:
		if state != model.StateRunningActive {
			return state, nil
		}
		return model.StateRunningPaused, []effect{fxPause}

	case Resume:
		if state != model.StateRunningPaused {
			return state, nil
		}
		return model.StateRunningActive, []effect{fxResume}

	case MicMuted:
		if state == model.StateInactive {
			return state, nil
		}
		return state, []effect{fxMicMute}

	case SpeakerMuted:
		if state == model.StateInactive {
			return state, nil
		}
		return state, []effect{fxSpeakerMute}

	case MicChange:
		if state == model.StateInactive {
			// nothing to re-acquire; the new device takes effect on Start
			return state, nil
		}
		return state, []effect{fxMicSwap}
	}
	return state, nil
}
