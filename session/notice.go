package session

import "github.com/murmur-app/murmur/model"

// Notice kinds published to observers.
const (
	NoticeState      = "state"
	NoticeTranscript = "transcript"
	NoticeAmplitude  = "amplitude"
	NoticeDevice     = "device"
	NoticeError      = "error"
)

// Notice is one observer-facing event: a state change, a transcript diff,
// throttled amplitude telemetry, a device change or an error. Delivery is
// best-effort; slow observers lose notices rather than blocking the core.
type Notice struct {
	Kind      string      `json:"kind"`
	SessionID string      `json:"session_id,omitempty"`
	State     string      `json:"state,omitempty"`
	Diff      *model.Diff `json:"diff,omitempty"`
	Mic       float32     `json:"mic,omitempty"`
	Speaker   float32     `json:"speaker,omitempty"`
	Device    string      `json:"device,omitempty"`
	Error     string      `json:"error,omitempty"`
}
