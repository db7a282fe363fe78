package stt

// StreamResponse is one transcript event from the backend. Responses with
// type "Results" carry words; anything else (metadata, utterance markers) is
// consumed by the client without being yielded.
type StreamResponse struct {
	Type         string  `json:"type"`
	Start        float64 `json:"start"`
	Duration     float64 `json:"duration"`
	IsFinal      bool    `json:"is_final"`
	SpeechFinal  bool    `json:"speech_final"`
	ChannelIndex []int   `json:"channel_index"`
	Channel      Channel `json:"channel"`
}

// Channel carries the per-channel transcription alternatives.
type Channel struct {
	Alternatives []Alternative `json:"alternatives"`
}

// Alternative is one hypothesis for a stretch of audio.
type Alternative struct {
	Transcript string     `json:"transcript"`
	Words      []WireWord `json:"words"`
	Confidence float64    `json:"confidence"`
	Languages  []string   `json:"languages,omitempty"`
}

// WireWord is the backend's word representation. Start and End are seconds
// from stream start; Speaker is absent when the backend could not attribute
// the word.
type WireWord struct {
	Word           string  `json:"word"`
	Start          float64 `json:"start"`
	End            float64 `json:"end"`
	Confidence     float64 `json:"confidence"`
	Speaker        *int    `json:"speaker,omitempty"`
	PunctuatedWord string  `json:"punctuated_word,omitempty"`
	Language       string  `json:"language,omitempty"`
}

// controlMessage is the only client→server text frame: a finalize command
// forcing the backend to flush a pending partial.
type controlMessage struct {
	Type string `json:"type"`
}

const controlFinalize = "Finalize"
