// Package streaming implements the LocalAgreement-N stabilization engine:
// a bounded sliding audio window, a word-timestamp hypothesis buffer, three
// interchangeable re-transcription strategies, and the per-session state
// machine that drives them.
package streaming

import "strings"

// TimestampedWord is a single recognized word with absolute timing relative
// to session start. Equality for LocalAgreement comparisons is case-folded
// on Text only; Start/End/Confidence never participate.
type TimestampedWord struct {
	Text       string
	Start      float64
	End        float64
	Confidence float64
}

// Shift returns a copy of w with Start/End moved by offsetSeconds. Used when
// a buffer offset changes and timestamps must stay absolute.
func (w TimestampedWord) Shift(offsetSeconds float64) TimestampedWord {
	return TimestampedWord{
		Text:       w.Text,
		Start:      w.Start + offsetSeconds,
		End:        w.End + offsetSeconds,
		Confidence: w.Confidence,
	}
}

func (w TimestampedWord) normalizedText() string {
	return strings.ToLower(strings.TrimSpace(w.Text))
}

// sameText reports case-insensitive text equality between two words, the
// only comparison LocalAgreement uses.
func sameText(a, b TimestampedWord) bool {
	return a.normalizedText() == b.normalizedText()
}

// joinWords joins word text with single spaces, as the original buffers do.
func joinWords(words []TimestampedWord) string {
	if len(words) == 0 {
		return ""
	}
	parts := make([]string, len(words))
	for i, w := range words {
		parts[i] = w.Text
	}
	return strings.Join(parts, " ")
}
