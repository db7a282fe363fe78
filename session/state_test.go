package session

import (
	"testing"

	"github.com/murmur-app/murmur/model"
)

func params(id string) model.SessionParams {
	return model.SessionParams{ID: id, Languages: []string{"en"}}
}

func TestTransitionStart(t *testing.T) {
	next, effects := transition(model.StateInactive, "", Start{Params: params("a")})
	if next != model.StateRunningActive {
		t.Fatalf("next = %v, want RunningActive", next)
	}
	if len(effects) != 1 || effects[0] != fxAcquire {
		t.Fatalf("effects = %v, want [fxAcquire]", effects)
	}
}

func TestTransitionStartSameIDIsNoop(t *testing.T) {
	for _, state := range []model.SessionState{model.StateRunningActive, model.StateRunningPaused} {
		next, effects := transition(state, "a", Start{Params: params("a")})
		if next != state {
			t.Errorf("state %v: next = %v, want unchanged", state, next)
		}
		if len(effects) != 0 {
			t.Errorf("state %v: effects = %v, want none", state, effects)
		}
	}
}

func TestTransitionStartDifferentIDRestarts(t *testing.T) {
	next, effects := transition(model.StateRunningActive, "a", Start{Params: params("b")})
	if next != model.StateRunningActive {
		t.Fatalf("next = %v, want RunningActive", next)
	}
	want := []effect{fxTeardown, fxAcquire}
	if len(effects) != len(want) {
		t.Fatalf("effects = %v, want %v", effects, want)
	}
	for i := range want {
		if effects[i] != want[i] {
			t.Fatalf("effects = %v, want %v", effects, want)
		}
	}
}

func TestTransitionStopWhenInactiveIsNoop(t *testing.T) {
	next, effects := transition(model.StateInactive, "", Stop{})
	if next != model.StateInactive || len(effects) != 0 {
		t.Fatalf("got %v %v, want Inactive with no effects", next, effects)
	}
}

func TestTransitionPauseResume(t *testing.T) {
	next, effects := transition(model.StateRunningActive, "a", Pause{})
	if next != model.StateRunningPaused || len(effects) != 1 || effects[0] != fxPause {
		t.Fatalf("pause: got %v %v", next, effects)
	}

	// pausing an already-paused session changes nothing
	next, effects = transition(model.StateRunningPaused, "a", Pause{})
	if next != model.StateRunningPaused || len(effects) != 0 {
		t.Fatalf("double pause: got %v %v", next, effects)
	}

	next, effects = transition(model.StateRunningPaused, "a", Resume{})
	if next != model.StateRunningActive || len(effects) != 1 || effects[0] != fxResume {
		t.Fatalf("resume: got %v %v", next, effects)
	}

	next, effects = transition(model.StateRunningActive, "a", Resume{})
	if next != model.StateRunningActive || len(effects) != 0 {
		t.Fatalf("resume while active: got %v %v", next, effects)
	}
}

func TestTransitionStopFromPaused(t *testing.T) {
	next, effects := transition(model.StateRunningPaused, "a", Stop{})
	if next != model.StateInactive || len(effects) != 1 || effects[0] != fxTeardown {
		t.Fatalf("got %v %v, want Inactive [fxTeardown]", next, effects)
	}
}

func TestTransitionMutesIgnoredWhenInactive(t *testing.T) {
	for _, cmd := range []Command{MicMuted{Muted: true}, SpeakerMuted{Muted: true}, MicChange{Device: "usb"}} {
		next, effects := transition(model.StateInactive, "", cmd)
		if next != model.StateInactive || len(effects) != 0 {
			t.Errorf("%T: got %v %v, want Inactive with no effects", cmd, next, effects)
		}
	}
}

func TestTransitionMicSwapWhileRunning(t *testing.T) {
	for _, state := range []model.SessionState{model.StateRunningActive, model.StateRunningPaused} {
		next, effects := transition(state, "a", MicChange{Device: "usb"})
		if next != state || len(effects) != 1 || effects[0] != fxMicSwap {
			t.Errorf("state %v: got %v %v", state, next, effects)
		}
	}
}
