package streaming

import (
	"context"
	"errors"
	"testing"

	"github.com/hubenschmidt/asr-llm-tts-poc/gateway/internal/capability"
)

// fixedTextTranscriber always returns the same text and has no word timestamps.
type fixedTextTranscriber struct {
	text string
	err  error
}

func (t *fixedTextTranscriber) Transcribe(_ context.Context, _ []byte, _ string) (capability.TranscribeResult, error) {
	if t.err != nil {
		return capability.TranscribeResult{}, t.err
	}
	return capability.TranscribeResult{Text: t.text}, nil
}
func (t *fixedTextTranscriber) SupportsWordTimestamps() bool  { return false }
func (t *fixedTextTranscriber) RequiresExclusiveAccess() bool { return false }

func TestChunkedStrategyReplacesTextEachPass(t *testing.T) {
	cfg := testConfig()
	transcriber := &fixedTextTranscriber{text: "hello world"}
	s := NewChunkedStrategy(transcriber, cfg)

	chunk := make([]float32, cfg.SampleRate/2)
	result, err := s.ProcessAudio(context.Background(), chunk)
	if err != nil {
		t.Fatalf("ProcessAudio: %v", err)
	}
	if result.ConfirmedText != "hello world" {
		t.Fatalf("expected 'hello world', got %q", result.ConfirmedText)
	}
	if result.TentativeText != "" {
		t.Fatalf("chunked strategy should never produce tentative text, got %q", result.TentativeText)
	}
}

func TestChunkedStrategySwallowsTranscribeError(t *testing.T) {
	cfg := testConfig()
	transcriber := &fixedTextTranscriber{err: errors.New("backend unavailable")}
	s := NewChunkedStrategy(transcriber, cfg)

	chunk := make([]float32, cfg.SampleRate/2)
	result, err := s.ProcessAudio(context.Background(), chunk)
	if err != nil {
		t.Fatalf("expected transcribe errors to be swallowed, got %v", err)
	}
	if result.ConfirmedText != "" {
		t.Fatalf("expected no confirmed text on failure, got %q", result.ConfirmedText)
	}
}

func TestChunkedStrategyFinalizeMarksIsFinal(t *testing.T) {
	cfg := testConfig()
	transcriber := &fixedTextTranscriber{text: "done"}
	s := NewChunkedStrategy(transcriber, cfg)
	s.ProcessAudio(context.Background(), make([]float32, cfg.SampleRate/2))

	result, err := s.Finalize(context.Background())
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if !result.IsFinal {
		t.Fatalf("expected IsFinal true")
	}
	if result.ConfirmedText != "done" {
		t.Fatalf("expected 'done', got %q", result.ConfirmedText)
	}
}

// fakeNativeSession is a minimal NativeSession used to exercise NativeStrategy.
type fakeNativeSession struct {
	feedCalls int
	closed    bool
	draft     string
}

func (s *fakeNativeSession) Feed(_ context.Context, _ []float32) (string, string, error) {
	s.feedCalls++
	s.draft = "partial"
	return "", s.draft, nil
}

func (s *fakeNativeSession) Close(_ context.Context) error {
	s.closed = true
	return nil
}

type fakeNativeTranscriber struct {
	session *fakeNativeSession
	opened  int
}

func (t *fakeNativeTranscriber) Transcribe(_ context.Context, _ []byte, _ string) (capability.TranscribeResult, error) {
	return capability.TranscribeResult{}, nil
}
func (t *fakeNativeTranscriber) SupportsWordTimestamps() bool  { return true }
func (t *fakeNativeTranscriber) RequiresExclusiveAccess() bool { return false }
func (t *fakeNativeTranscriber) OpenNativeSession(_ context.Context) (capability.NativeSession, error) {
	t.opened++
	return t.session, nil
}

func TestNativeStrategyOpensSessionOnFirstChunk(t *testing.T) {
	cfg := testConfig()
	session := &fakeNativeSession{}
	transcriber := &fakeNativeTranscriber{session: session}
	s := NewNativeStrategy(transcriber, cfg)

	s.ProcessAudio(context.Background(), make([]float32, 100))
	s.ProcessAudio(context.Background(), make([]float32, 100))

	if transcriber.opened != 1 {
		t.Fatalf("expected native session opened exactly once, got %d", transcriber.opened)
	}
	if session.feedCalls != 2 {
		t.Fatalf("expected 2 feed calls, got %d", session.feedCalls)
	}
}

func TestNativeStrategyFinalizePromotesDraft(t *testing.T) {
	cfg := testConfig()
	session := &fakeNativeSession{}
	transcriber := &fakeNativeTranscriber{session: session}
	s := NewNativeStrategy(transcriber, cfg)

	s.ProcessAudio(context.Background(), make([]float32, 100))
	result, err := s.Finalize(context.Background())
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if !session.closed {
		t.Fatalf("expected native session closed on finalize")
	}
	if result.ConfirmedText != "partial" {
		t.Fatalf("expected draft promoted to confirmed, got %q", result.ConfirmedText)
	}
	if !result.IsFinal {
		t.Fatalf("expected IsFinal true")
	}
}

func TestSelectStrategyPrefersNative(t *testing.T) {
	cfg := testConfig()
	transcriber := &fakeNativeTranscriber{session: &fakeNativeSession{}}
	s := SelectStrategy(transcriber, cfg)
	if strategyName(s) != "native" {
		t.Fatalf("expected native strategy selected, got %s", strategyName(s))
	}
}

func TestSelectStrategyPicksLocalAgreementForWordTimestamps(t *testing.T) {
	cfg := testConfig()
	transcriber := &wordStepTranscriber{sampleRate: cfg.SampleRate}
	s := SelectStrategy(transcriber, cfg)
	if strategyName(s) != "local_agreement" {
		t.Fatalf("expected local_agreement strategy, got %s", strategyName(s))
	}
}

func TestSelectStrategyFallsBackToChunked(t *testing.T) {
	cfg := testConfig()
	transcriber := &fixedTextTranscriber{text: "x"}
	s := SelectStrategy(transcriber, cfg)
	if strategyName(s) != "chunked" {
		t.Fatalf("expected chunked strategy, got %s", strategyName(s))
	}
}
