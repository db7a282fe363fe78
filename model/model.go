package model

import "time"

// SampleRate is the fixed pipeline sample rate. Every source is resampled to
// this rate before it enters the processor, the recorder or the bridge.
const SampleRate = 16000

// ChunkSamples is the number of samples per AudioChunk (64 ms at 16 kHz).
const ChunkSamples = 1024

// AudioChunk is one bounded time slice of mono float32 samples at SampleRate.
// Ownership transfers at each pipeline stage; stages that fan the same data
// out to multiple consumers must Clone first.
type AudioChunk []float32

// Clone returns an independent copy of the chunk.
func (c AudioChunk) Clone() AudioChunk {
	out := make(AudioChunk, len(c))
	copy(out, c)
	return out
}

// Peak returns the largest absolute sample value in the chunk.
func (c AudioChunk) Peak() float32 {
	var peak float32
	for _, s := range c {
		if s < 0 {
			s = -s
		}
		if s > peak {
			peak = s
		}
	}
	return peak
}

// Word is the transcript atom produced by the transcription backend.
// Start and End are milliseconds from session start; zero means the backend
// did not report timing. Speaker is a channel index (0 = mic, 1 = speaker);
// a negative value means unattributed and is normalized away by the
// transcript manager.
type Word struct {
	Text       string  `json:"text"`
	Start      uint64  `json:"start_ms"`
	End        uint64  `json:"end_ms"`
	Confidence float64 `json:"confidence"`
	Speaker    int     `json:"speaker"`
}

// Diff is the incremental output of one transcript manager update. Final
// words are stable and append-only; partial words are the full current
// partial view across all channels, sorted by start time.
type Diff struct {
	PartialWords []Word `json:"partial_words"`
	FinalWords   []Word `json:"final_words"`
}

// SessionState models the recording session lifecycle.
type SessionState int

const (
	StateInactive SessionState = iota
	StateRunningActive
	StateRunningPaused
)

func (s SessionState) String() string {
	switch s {
	case StateInactive:
		return "inactive"
	case StateRunningActive:
		return "running_active"
	case StateRunningPaused:
		return "running_paused"
	default:
		return "unknown"
	}
}

// SessionParams describes what a session should capture and where to send it.
type SessionParams struct {
	ID            string   `json:"id"`
	MicDevice     string   `json:"mic_device"`
	SpeakerDevice string   `json:"speaker_device"`
	Languages     []string `json:"languages"`
	RecordEnabled bool     `json:"record_enabled"`
	Onboarding    bool     `json:"onboarding"`
}

// SessionRecord is the persisted form of a session. Words is append-only
// from the core's perspective: finals are only ever appended, never edited.
type SessionRecord struct {
	ID        string     `json:"id"`
	Title     string     `json:"title,omitempty"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	Words     []Word     `json:"words"`
}

// Connection describes how to reach the transcription backend. Resolved from
// configuration; not owned by the core.
type Connection struct {
	BaseURL string
	APIKey  string
	Model   string
}
