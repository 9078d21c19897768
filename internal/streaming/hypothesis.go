package streaming

import "strings"

// HypothesisBuffer implements LocalAgreement-N over successive full-window
// transcription hypotheses. A word is confirmed only once it appears at the
// same position across agreementN consecutive hypotheses; confirmation
// timestamps are taken from the oldest hypothesis in the agreeing set (the
// most conservative interval), never averaged.
type HypothesisBuffer struct {
	agreementN        int
	maxConfirmedWords int

	confirmed         []TimestampedWord
	confirmedInBuffer []TimestampedWord
	previousHypotheses [][]TimestampedWord
	currentHypothesis []TimestampedWord

	dedupTolerance float64

	// flushed is set once Flush has pushed currentHypothesis into the ring,
	// so a repeated Flush without a new Insert confirms nothing.
	flushed bool
}

// NewHypothesisBuffer creates a buffer requiring agreementN consecutive
// agreeing hypotheses to confirm a word, retaining at most maxConfirmedWords
// of confirmed history.
func NewHypothesisBuffer(agreementN, maxConfirmedWords int, dedupTolerance float64) *HypothesisBuffer {
	return &HypothesisBuffer{
		agreementN:        agreementN,
		maxConfirmedWords: maxConfirmedWords,
		dedupTolerance:    dedupTolerance,
	}
}

// Insert shifts words to absolute time by offsetSeconds, drops leading
// overlap with confirmedInBuffer, and stores the result as the current
// hypothesis.
func (h *HypothesisBuffer) Insert(words []TimestampedWord, offsetSeconds float64) {
	shifted := make([]TimestampedWord, len(words))
	for i, w := range words {
		shifted[i] = w.Shift(offsetSeconds)
	}
	h.currentHypothesis = h.dedupeOverlap(shifted)
	h.flushed = false
}

// dedupeOverlap drops words that overlap confirmedInBuffer's tail. A word
// starting at or after the last confirmed word's end (minus a tolerance
// window) is always kept; a word only partially overlapping is kept only if
// its text is not among the last 5 confirmed words (novelty check).
func (h *HypothesisBuffer) dedupeOverlap(words []TimestampedWord) []TimestampedWord {
	if len(h.confirmedInBuffer) == 0 || len(words) == 0 {
		return words
	}
	lastConfirmedEnd := h.confirmedInBuffer[len(h.confirmedInBuffer)-1].End

	recent := make(map[string]struct{})
	start := len(h.confirmedInBuffer) - 5
	if start < 0 {
		start = 0
	}
	for _, w := range h.confirmedInBuffer[start:] {
		recent[w.normalizedText()] = struct{}{}
	}

	result := make([]TimestampedWord, 0, len(words))
	for _, w := range words {
		if w.Start >= lastConfirmedEnd-h.dedupTolerance {
			result = append(result, w)
			continue
		}
		if w.End > lastConfirmedEnd {
			if _, seen := recent[w.normalizedText()]; !seen {
				result = append(result, w)
			}
		}
	}
	return result
}

// Flush applies LocalAgreement to the current hypothesis against the
// recent hypothesis ring and returns any newly confirmed words. A Flush with
// no Insert since the previous Flush returns nil.
func (h *HypothesisBuffer) Flush() []TimestampedWord {
	if len(h.currentHypothesis) == 0 || h.flushed {
		return nil
	}

	h.previousHypotheses = append(h.previousHypotheses, h.currentHypothesis)
	h.flushed = true
	if len(h.previousHypotheses) > h.agreementN {
		h.previousHypotheses = h.previousHypotheses[len(h.previousHypotheses)-h.agreementN:]
	}
	if len(h.previousHypotheses) < h.agreementN {
		return nil
	}

	newlyConfirmed := h.localAgreement()
	if len(newlyConfirmed) == 0 {
		return nil
	}

	h.confirmed = append(h.confirmed, newlyConfirmed...)
	h.confirmedInBuffer = append(h.confirmedInBuffer, newlyConfirmed...)

	if len(h.confirmed) > h.maxConfirmedWords {
		h.confirmed = h.confirmed[len(h.confirmed)-h.maxConfirmedWords:]
	}

	return newlyConfirmed
}

// localAgreement scans left to right across the last agreementN hypotheses,
// confirming words while all of them agree at that position (case-folded
// text), and stops at the first disagreement.
func (h *HypothesisBuffer) localAgreement() []TimestampedWord {
	hypotheses := h.previousHypotheses
	minLen := len(hypotheses[0])
	for _, hyp := range hypotheses[1:] {
		if len(hyp) < minLen {
			minLen = len(hyp)
		}
	}
	if minLen == 0 {
		return nil
	}

	agreedCount := 0
	for i := 0; i < minLen; i++ {
		reference := hypotheses[0][i]
		allAgree := true
		for _, hyp := range hypotheses[1:] {
			if !sameText(hyp[i], reference) {
				allAgree = false
				break
			}
		}
		if !allAgree {
			break
		}
		agreedCount++
	}
	if agreedCount == 0 {
		return nil
	}

	newlyConfirmed := append([]TimestampedWord(nil), hypotheses[0][:agreedCount]...)

	for i, hyp := range h.previousHypotheses {
		h.previousHypotheses[i] = hyp[agreedCount:]
	}

	return newlyConfirmed
}

// ForceConfirmAll moves whatever remains of the current hypothesis into
// confirmed/confirmedInBuffer without requiring agreement, then clears the
// current hypothesis. Only the finalize path calls this; plain operation
// never force-confirms.
//
// A flush earlier in the same cycle may already have confirmed a prefix of
// currentHypothesis (flush never trims currentHypothesis itself, since it
// remains the source for get_tentative_text until the next insert). The
// same overlap check insert() uses against confirmedInBuffer is applied
// here so that prefix isn't force-confirmed a second time.
func (h *HypothesisBuffer) ForceConfirmAll() {
	remaining := h.dedupeOverlap(h.currentHypothesis)
	h.currentHypothesis = nil
	if len(remaining) == 0 {
		return
	}
	h.confirmed = append(h.confirmed, remaining...)
	h.confirmedInBuffer = append(h.confirmedInBuffer, remaining...)
	if len(h.confirmed) > h.maxConfirmedWords {
		h.confirmed = h.confirmed[len(h.confirmed)-h.maxConfirmedWords:]
	}
}

// TrimToTime drops words from confirmedInBuffer whose End precedes
// absoluteTime, keeping it in sync with a trimmed AudioBuffer.
func (h *HypothesisBuffer) TrimToTime(absoluteTime float64) {
	kept := h.confirmedInBuffer[:0:0]
	for _, w := range h.confirmedInBuffer {
		if w.End >= absoluteTime {
			kept = append(kept, w)
		}
	}
	h.confirmedInBuffer = kept
}

// GetConfirmedText joins all confirmed words with single spaces.
func (h *HypothesisBuffer) GetConfirmedText() string {
	return joinWords(h.confirmed)
}

// GetTentativeText joins the current (unconfirmed) hypothesis with single spaces.
func (h *HypothesisBuffer) GetTentativeText() string {
	return joinWords(h.currentHypothesis)
}

// GetPromptSuffix returns the tail of confirmedInBuffer's text, bounded to
// maxChars and cut cleanly at a word boundary, for transcriber continuity.
func (h *HypothesisBuffer) GetPromptSuffix(maxChars int) string {
	if len(h.confirmedInBuffer) == 0 {
		return ""
	}
	text := joinWords(h.confirmedInBuffer)
	if len(text) <= maxChars {
		return text
	}
	truncated := text[len(text)-maxChars:]
	if idx := strings.Index(truncated, " "); idx > 0 {
		truncated = truncated[idx+1:]
	}
	return truncated
}

// Clear resets all hypothesis state.
func (h *HypothesisBuffer) Clear() {
	h.confirmed = nil
	h.confirmedInBuffer = nil
	h.previousHypotheses = nil
	h.currentHypothesis = nil
}

// ConfirmedWordCount is the number of confirmed words.
func (h *HypothesisBuffer) ConfirmedWordCount() int { return len(h.confirmed) }

// TentativeWordCount is the number of words in the current hypothesis.
func (h *HypothesisBuffer) TentativeWordCount() int { return len(h.currentHypothesis) }
