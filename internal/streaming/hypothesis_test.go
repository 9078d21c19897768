package streaming

import "testing"

func words(spec ...any) []TimestampedWord {
	out := make([]TimestampedWord, 0, len(spec)/3)
	for i := 0; i < len(spec); i += 3 {
		out = append(out, TimestampedWord{
			Text:  spec[i].(string),
			Start: spec[i+1].(float64),
			End:   spec[i+2].(float64),
		})
	}
	return out
}

// TestLocalAgreementPrefixMonotonicity is seed scenario 1: inserting the
// same hypothesis three times, flushing between each, with agreement_n=2.
func TestLocalAgreementPrefixMonotonicity(t *testing.T) {
	h := NewHypothesisBuffer(2, 500, 0.1)
	hyp := words("hello", 0.0, 0.3, "world", 0.3, 0.7)

	h.Insert(hyp, 0)
	if got := h.Flush(); len(got) != 0 {
		t.Fatalf("first flush: expected empty, got %v", got)
	}

	h.Insert(hyp, 0)
	confirmed := h.Flush()
	if len(confirmed) != 2 {
		t.Fatalf("second flush: expected 2 confirmed words, got %d", len(confirmed))
	}
	if h.GetConfirmedText() != "hello world" {
		t.Fatalf("expected 'hello world', got %q", h.GetConfirmedText())
	}

	h.Insert(hyp, 0)
	if got := h.Flush(); len(got) != 0 {
		t.Fatalf("third flush: expected empty (nothing new), got %v", got)
	}
	if h.GetConfirmedText() != "hello world" {
		t.Fatalf("expected stable 'hello world', got %q", h.GetConfirmedText())
	}
}

// TestLocalAgreementDisagreementBlocksPromotion is seed scenario 2.
func TestLocalAgreementDisagreementBlocksPromotion(t *testing.T) {
	h := NewHypothesisBuffer(2, 500, 0.1)

	h.Insert(words("one", 0.0, 0.2, "two", 0.2, 0.4), 0)
	h.Flush()

	h.Insert(words("one", 0.0, 0.2, "three", 0.2, 0.4), 0)
	h.Flush()

	if got := h.GetConfirmedText(); got != "one" {
		t.Fatalf("expected confirmed text 'one', got %q", got)
	}
}

func TestHypothesisFlushIdempotentWithoutInsert(t *testing.T) {
	h := NewHypothesisBuffer(2, 500, 0.1)
	h.Insert(words("a", 0.0, 0.1, "b", 0.1, 0.2), 0)
	h.Insert(words("a", 0.0, 0.1, "b", 0.1, 0.2), 0)
	h.Flush()

	if got := h.Flush(); len(got) != 0 {
		t.Fatalf("second flush with no intervening insert should be empty, got %v", got)
	}
}

func TestHypothesisDedupOverlapTolerance(t *testing.T) {
	h := NewHypothesisBuffer(2, 500, 0.1)
	h.Insert(words("one", 0.0, 0.2, "two", 0.2, 0.4), 0)
	h.Flush()
	h.Insert(words("one", 0.0, 0.2, "two", 0.2, 0.4), 0)
	h.Flush() // confirmed_in_buffer now ends at 0.4

	// "two" again starts 0.15s before the confirmed end (beyond the 0.1s
	// tolerance) and repeats a recent confirmed word, so it is dropped as a
	// dup; "three" starting after confirmed end should survive.
	h.Insert(words("two", 0.25, 0.45, "three", 0.45, 0.6), 0)
	if got := h.GetTentativeText(); got != "three" {
		t.Fatalf("expected only 'three' to survive dedup, got %q", got)
	}
}

func TestHypothesisForceConfirmAll(t *testing.T) {
	h := NewHypothesisBuffer(2, 500, 0.1)
	h.Insert(words("pending", 0.0, 0.3), 0)
	// Only one hypothesis so far — not enough for agreement.
	h.Flush()
	if h.ConfirmedWordCount() != 0 {
		t.Fatalf("expected nothing confirmed before force-confirm, got %d", h.ConfirmedWordCount())
	}

	h.ForceConfirmAll()
	if got := h.GetConfirmedText(); got != "pending" {
		t.Fatalf("expected force-confirmed text 'pending', got %q", got)
	}
	if h.TentativeWordCount() != 0 {
		t.Fatalf("expected current hypothesis cleared, got %d words", h.TentativeWordCount())
	}
}

func TestHypothesisTrimToTime(t *testing.T) {
	h := NewHypothesisBuffer(2, 500, 0.1)
	hyp := words("a", 0.0, 0.3, "b", 0.3, 0.6)
	h.Insert(hyp, 0)
	h.Flush()
	h.Insert(hyp, 0)
	h.Flush()

	h.TrimToTime(0.4)
	for _, w := range h.confirmedInBuffer {
		if w.End < 0.4 {
			t.Fatalf("word %q with end %f should have been trimmed", w.Text, w.End)
		}
	}
}

func TestGetPromptSuffixTruncatesAtWordBoundary(t *testing.T) {
	h := NewHypothesisBuffer(2, 500, 0.1)
	hyp := words("alpha", 0.0, 1.0, "bravo", 1.0, 2.0, "charlie", 2.0, 3.0, "delta", 3.0, 4.0)
	h.Insert(hyp, 0)
	h.Flush()
	h.Insert(hyp, 0)
	h.Flush()

	suffix := h.GetPromptSuffix(10)
	if len(suffix) > 10 {
		t.Fatalf("expected suffix within 10 chars, got %q (%d)", suffix, len(suffix))
	}
	if len(suffix) > 0 && suffix[0] == ' ' {
		t.Fatalf("expected suffix not to start with a partial-word space, got %q", suffix)
	}
}
