package transcript

import (
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/murmur-app/murmur/model"
	"github.com/murmur-app/murmur/stt"
)

// partialConfidenceThreshold gates partial merges; lower-confidence partials
// are treated as keep-alives carrying no new information.
const partialConfidenceThreshold = 0.6

// Manager reconciles the raw stream of partial and final word events per
// audio channel into a stable, monotonically growing transcript. Final words
// are never reordered or retracted; partials are pruned as finals supersede
// them. One Manager lives per session.
type Manager struct {
	partials      map[int][]model.Word
	lastFinalEnds map[int]uint64
	log           *logrus.Entry
}

// NewManager returns an empty manager.
func NewManager() *Manager {
	return &Manager{
		partials:      make(map[int][]model.Word),
		lastFinalEnds: make(map[int]uint64),
		log:           logrus.WithField("component", "transcript"),
	}
}

// Update folds one backend response into the transcript state and returns
// the resulting diff. FinalWords carries newly finalized words (stable,
// append-only); PartialWords is the full current partial view across all
// channels sorted by start time.
func (m *Manager) Update(resp *stt.StreamResponse) model.Diff {
	channel := 0
	if len(resp.ChannelIndex) > 0 {
		channel = resp.ChannelIndex[0]
	}

	if len(resp.Channel.Alternatives) == 0 {
		return model.Diff{PartialWords: m.partialView()}
	}
	alt := resp.Channel.Alternatives[0]
	words := normalize(wireWords(alt.Words), channel)

	if resp.IsFinal {
		return m.applyFinal(channel, words)
	}
	return m.applyPartial(channel, words, alt.Confidence)
}

func (m *Manager) applyFinal(channel int, words []model.Word) model.Diff {
	if len(words) > 0 {
		end := words[len(words)-1].End
		if end > m.lastFinalEnds[channel] {
			m.lastFinalEnds[channel] = end
		}
	}

	// stale partials superseded by this final are discarded; only words
	// ending after the last finalized word survive
	kept := m.partials[channel][:0]
	for _, w := range m.partials[channel] {
		if w.End > m.lastFinalEnds[channel] {
			kept = append(kept, w)
		}
	}
	if len(kept) == 0 {
		delete(m.partials, channel)
	} else {
		m.partials[channel] = kept
	}

	return model.Diff{
		PartialWords: m.partialView(),
		FinalWords:   words,
	}
}

func (m *Manager) applyPartial(channel int, words []model.Word, confidence float64) model.Diff {
	if confidence <= partialConfidenceThreshold || len(words) == 0 {
		// keep-alive: no mutation, the view is returned unchanged
		return model.Diff{PartialWords: m.partialView()}
	}

	// keep previously buffered words that end at or before the new batch's
	// start so already-announced leading words are not re-announced, then
	// take the whole new batch
	batchStart := words[0].Start
	merged := make([]model.Word, 0, len(m.partials[channel])+len(words))
	for _, w := range m.partials[channel] {
		if w.End <= batchStart {
			merged = append(merged, w)
		}
	}
	merged = append(merged, words...)
	m.partials[channel] = merged

	return model.Diff{PartialWords: m.partialView()}
}

// partialView flattens every channel's partial buffer sorted by start time
// ascending, stable for equal starts.
func (m *Manager) partialView() []model.Word {
	channels := make([]int, 0, len(m.partials))
	for c := range m.partials {
		channels = append(channels, c)
	}
	sort.Ints(channels)

	var view []model.Word
	for _, c := range channels {
		view = append(view, m.partials[c]...)
	}
	sort.SliceStable(view, func(i, j int) bool {
		return view[i].Start < view[j].Start
	})
	return view
}

func wireWords(words []stt.WireWord) []model.Word {
	out := make([]model.Word, 0, len(words))
	for _, w := range words {
		text := w.PunctuatedWord
		if text == "" {
			text = w.Word
		}
		speaker := -1
		if w.Speaker != nil {
			speaker = *w.Speaker
		}
		out = append(out, model.Word{
			Text:       text,
			Start:      uint64(w.Start * 1000),
			End:        uint64(w.End * 1000),
			Confidence: w.Confidence,
			Speaker:    speaker,
		})
	}
	return out
}

// normalize trims whitespace, drops empty words, assigns the channel index
// to words without a speaker, and splices contraction suffixes: a word
// beginning with an apostrophe is a tokenizer artifact and belongs to the
// word before it.
func normalize(words []model.Word, channel int) []model.Word {
	out := make([]model.Word, 0, len(words))
	for _, w := range words {
		w.Text = strings.TrimSpace(w.Text)
		if w.Text == "" {
			continue
		}
		if w.Speaker < 0 {
			w.Speaker = channel
		}
		if strings.HasPrefix(w.Text, "'") && len(out) > 0 {
			prev := &out[len(out)-1]
			prev.Text += w.Text
			if w.End > prev.End {
				prev.End = w.End
			}
			continue
		}
		out = append(out, w)
	}
	return out
}
