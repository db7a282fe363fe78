package audio

import (
	"github.com/murmur-app/murmur/dsp"
	"github.com/murmur-app/murmur/model"
)

// TaggedChunk is a fixed-size audio chunk annotated with a voice-activity
// decision. The tag is observational only; no samples are ever discarded on
// its account.
type TaggedChunk struct {
	Samples model.AudioChunk
	Speech  bool
}

// Chunker assembles an arbitrary sample stream into fixed-size chunks at the
// pipeline rate and tags each with the VAD decision. The concatenation of
// everything it emits (plus Flush) equals its input exactly.
type Chunker struct {
	vad     *dsp.VAD
	pending []float32
	size    int
}

// NewChunker returns a chunker emitting model.ChunkSamples-sized chunks.
func NewChunker() *Chunker {
	return &Chunker{
		vad:  dsp.NewVAD(),
		size: model.ChunkSamples,
	}
}

// Push appends samples and returns every complete chunk now available.
func (c *Chunker) Push(samples []float32) []TaggedChunk {
	if len(samples) == 0 {
		return nil
	}
	c.pending = append(c.pending, samples...)

	var out []TaggedChunk
	for len(c.pending) >= c.size {
		chunk := make(model.AudioChunk, c.size)
		copy(chunk, c.pending[:c.size])
		c.pending = c.pending[:copy(c.pending, c.pending[c.size:])]
		out = append(out, TaggedChunk{Samples: chunk, Speech: c.vad.IsSpeech(chunk)})
	}
	return out
}

// Flush emits whatever remains as a final short chunk, used at source stop
// so no trailing audio is lost.
func (c *Chunker) Flush() (TaggedChunk, bool) {
	if len(c.pending) == 0 {
		return TaggedChunk{}, false
	}
	chunk := make(model.AudioChunk, len(c.pending))
	copy(chunk, c.pending)
	c.pending = c.pending[:0]
	return TaggedChunk{Samples: chunk, Speech: c.vad.IsSpeech(chunk)}, true
}
