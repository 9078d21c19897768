package streaming

import (
	"context"

	"github.com/hubenschmidt/asr-llm-tts-poc/gateway/internal/capability"
)

// Strategy is the common contract implemented by LocalAgreement, Chunked,
// and Native. A StreamingSession owns exactly one Strategy instance, chosen
// once at session start and never swapped mid-session.
type Strategy interface {
	ProcessAudio(ctx context.Context, chunk []float32) (Result, error)
	Finalize(ctx context.Context) (Result, error)
	Cleanup() error
}

// SelectStrategy implements the selection rule: native streaming support
// wins if advertised; otherwise word-timestamp support selects
// LocalAgreement; otherwise Chunked is the fallback.
func SelectStrategy(transcriber capability.Transcriber, cfg Config) Strategy {
	if native, ok := transcriber.(capability.NativeTranscriber); ok {
		return NewNativeStrategy(native, cfg)
	}
	if transcriber.SupportsWordTimestamps() {
		return NewLocalAgreementStrategy(transcriber, cfg)
	}
	return NewChunkedStrategy(transcriber, cfg)
}

// StrategyName reports the selection outcome for the wire protocol's
// stream_started.strategy field, without re-running the type switch.
func StrategyName(s Strategy) string {
	return strategyName(s)
}

// strategyName reports the selection outcome for the wire protocol's
// stream_started.strategy field, without re-running the type switch.
func strategyName(s Strategy) string {
	switch s.(type) {
	case *NativeStrategy:
		return "native"
	case *LocalAgreementStrategy:
		return "local_agreement"
	case *ChunkedStrategy:
		return "chunked"
	default:
		return "unknown"
	}
}
