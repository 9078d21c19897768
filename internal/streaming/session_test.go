package streaming

import (
	"context"
	"fmt"
	"testing"

	"github.com/hubenschmidt/asr-llm-tts-poc/gateway/internal/capability"
)

// wordStepTranscriber is seed scenario 4's mock transcriber: given a buffer
// of length n*0.5s, it returns word "w_k" for each k in [1..n] with
// intervals [k*0.5-0.5, k*0.5].
type wordStepTranscriber struct {
	sampleRate int
}

func (t *wordStepTranscriber) Transcribe(_ context.Context, wavBytes []byte, _ string) (capability.TranscribeResult, error) {
	// WAV header is 44 bytes; remaining bytes are 16-bit PCM samples.
	n := (len(wavBytes) - 44) / 2 / (t.sampleRate / 2) // number of 0.5s steps
	if n <= 0 {
		n = 1
	}
	words := make([]capability.Word, n)
	for k := 1; k <= n; k++ {
		words[k-1] = capability.Word{
			Text:  fmt.Sprintf("w_%d", k),
			Start: float64(k)*0.5 - 0.5,
			End:   float64(k) * 0.5,
		}
	}
	return capability.TranscribeResult{Words: words}, nil
}

func (t *wordStepTranscriber) SupportsWordTimestamps() bool { return true }
func (t *wordStepTranscriber) RequiresExclusiveAccess() bool { return false }

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.TranscribeIntervalSamples = int(0.5 * float64(cfg.SampleRate))
	cfg.MaxBufferSeconds = 30
	// Keep the sliding window from trimming mid-test: this test's mock
	// transcriber labels words by their position in the current window, so
	// a mid-test trim would shift word identity in a way a real
	// transcriber's re-recognition of trailing audio would not.
	cfg.TrimBackoffSeconds = 100
	return cfg
}

// TestEndToEndLocalAgreement is seed scenario 4.
func TestEndToEndLocalAgreement(t *testing.T) {
	cfg := testConfig()
	transcriber := &wordStepTranscriber{sampleRate: cfg.SampleRate}
	strategy := NewLocalAgreementStrategy(transcriber, cfg)
	session := NewSession("sess-1", strategy, cfg)

	chunk := make([]float32, cfg.SampleRate/2) // 0.5s
	var last Result
	for i := 0; i < 6; i++ {
		r, err := session.ProcessChunk(context.Background(), chunk)
		if err != nil {
			t.Fatalf("chunk %d: %v", i, err)
		}
		last = r
	}

	if last.ConfirmedText != "w_1 w_2 w_3 w_4 w_5" {
		t.Fatalf("after chunk 6: expected 'w_1 w_2 w_3 w_4 w_5', got %q", last.ConfirmedText)
	}
	if !containsWord(last.TentativeText, "w_5") || !containsWord(last.TentativeText, "w_6") {
		t.Fatalf("expected tentative to contain w_5 and w_6, got %q", last.TentativeText)
	}

	final, err := session.Finalize(context.Background())
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if final.ConfirmedText != "w_1 w_2 w_3 w_4 w_5 w_6" {
		t.Fatalf("expected all 6 words confirmed, got %q", final.ConfirmedText)
	}
	if !final.IsFinal {
		t.Fatalf("expected IsFinal true")
	}
}

func containsWord(text, word string) bool {
	for _, w := range splitWhitespace(text) {
		if w == word {
			return true
		}
	}
	return false
}

func TestSessionAbortIsIdempotent(t *testing.T) {
	cfg := testConfig()
	strategy := NewLocalAgreementStrategy(&wordStepTranscriber{sampleRate: cfg.SampleRate}, cfg)
	session := NewSession("sess-2", strategy, cfg)

	session.Abort()
	session.Abort()
	session.Abort()

	if session.State() != StateError {
		t.Fatalf("expected Error state after abort, got %s", session.State())
	}
}

func TestSessionFinalizeTwiceFails(t *testing.T) {
	cfg := testConfig()
	strategy := NewLocalAgreementStrategy(&wordStepTranscriber{sampleRate: cfg.SampleRate}, cfg)
	session := NewSession("sess-3", strategy, cfg)

	if _, err := session.Finalize(context.Background()); err != nil {
		t.Fatalf("first finalize: %v", err)
	}
	if _, err := session.Finalize(context.Background()); err == nil {
		t.Fatalf("expected second finalize to fail")
	}
}

// TestZeroChunkSessionFinalize covers the boundary: a session receiving no
// chunks, then finalized, returns empty confirmed text and is_final true.
func TestZeroChunkSessionFinalize(t *testing.T) {
	cfg := testConfig()
	strategy := NewLocalAgreementStrategy(&wordStepTranscriber{sampleRate: cfg.SampleRate}, cfg)
	session := NewSession("sess-4", strategy, cfg)

	result, err := session.Finalize(context.Background())
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if result.ConfirmedText != "" {
		t.Fatalf("expected empty confirmed text, got %q", result.ConfirmedText)
	}
	if !result.IsFinal {
		t.Fatalf("expected IsFinal true")
	}
}
