// Package transcript post-processes decoder output before it reaches note
// generation. Its single stage today is vocabulary correction: proper nouns
// and project jargon from a user-supplied dictionary are recovered when the
// decoder mishears them.
package transcript

import (
	"strings"

	"github.com/hwidmann/memovox/internal/transcript/phonetic"
	"github.com/hwidmann/memovox/pkg/provider/stt"
)

// Correction records a single substitution applied to the transcript.
type Correction struct {
	// Original is the text span as produced by the decoder.
	Original string

	// Corrected is the vocabulary term that replaced it.
	Corrected string

	// Confidence is the similarity score behind the substitution, in
	// (0.0, 1.0].
	Confidence float64
}

// Corrector repairs misrecognized vocabulary terms in transcript text. It is
// read-only after construction and safe for concurrent use.
type Corrector struct {
	matcher    *phonetic.Matcher
	vocabulary []string
	maxWindow  int
}

// NewCorrector builds a Corrector over the given vocabulary. An empty
// vocabulary yields a Corrector that passes text through unchanged.
func NewCorrector(vocabulary []string, opts ...phonetic.Option) *Corrector {
	maxWindow := 1
	for _, term := range vocabulary {
		if n := len(strings.Fields(term)); n > maxWindow {
			maxWindow = n
		}
	}
	return &Corrector{
		matcher:    phonetic.New(opts...),
		vocabulary: vocabulary,
		maxWindow:  maxWindow,
	}
}

// Apply corrects a single piece of text and returns the corrected text with
// the list of substitutions made.
//
// The text is tokenised on whitespace and scanned left to right. At each
// position windows from the longest vocabulary term length down to one token
// are tried, so multi-word terms win over partial single-word matches.
func (c *Corrector) Apply(text string) (string, []Correction) {
	if len(c.vocabulary) == 0 {
		return text, nil
	}
	tokens := strings.Fields(text)
	if len(tokens) == 0 {
		return text, nil
	}

	var out []string
	var corrections []Correction

	i := 0
	for i < len(tokens) {
		maxN := min(c.maxWindow, len(tokens)-i)

		matched := false
		for n := maxN; n >= 1; n-- {
			window := strings.Join(tokens[i:i+n], " ")
			term, conf, ok := c.matcher.Match(window, c.vocabulary)
			if !ok {
				continue
			}
			out = append(out, strings.Fields(term)...)
			corrections = append(corrections, Correction{
				Original:   window,
				Corrected:  term,
				Confidence: conf,
			})
			i += n
			matched = true
			break
		}
		if !matched {
			out = append(out, tokens[i])
			i++
		}
	}
	return strings.Join(out, " "), corrections
}

// CorrectChunks applies vocabulary correction to every chunk and returns the
// corrected chunks alongside all substitutions in chunk order. The input
// slice is not modified.
func (c *Corrector) CorrectChunks(chunks []stt.Chunk) ([]stt.Chunk, []Correction) {
	if len(c.vocabulary) == 0 {
		return chunks, nil
	}
	out := make([]stt.Chunk, len(chunks))
	var all []Correction
	for i, ch := range chunks {
		text, corrections := c.Apply(ch.Text)
		ch.Text = text
		out[i] = ch
		all = append(all, corrections...)
	}
	return out, all
}
