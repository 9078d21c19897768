package streaming

import (
	"context"
	"fmt"

	"github.com/hubenschmidt/asr-llm-tts-poc/gateway/internal/capability"
)

// NativeStrategy wraps a transcriber that itself accepts audio
// incrementally through a scoped streaming context, bypassing
// LocalAgreement entirely. The context is opened on first audio and
// released on every exit path (finalize, cleanup/abort).
type NativeStrategy struct {
	transcriber capability.NativeTranscriber

	session capability.NativeSession

	confirmedText string
	tentativeText string
}

// NewNativeStrategy builds a strategy around a native-streaming transcriber.
// cfg is accepted for interface symmetry with the other strategies; Native
// has no cadence or buffer to tune.
func NewNativeStrategy(transcriber capability.NativeTranscriber, _ Config) *NativeStrategy {
	return &NativeStrategy{transcriber: transcriber}
}

// ProcessAudio opens the native session on first call, then feeds chunk and
// maps the returned finalized/draft split onto confirmed/tentative text.
func (s *NativeStrategy) ProcessAudio(ctx context.Context, chunk []float32) (Result, error) {
	if s.session == nil {
		sess, err := s.transcriber.OpenNativeSession(ctx)
		if err != nil {
			return Result{}, fmt.Errorf("open native session: %w", err)
		}
		s.session = sess
	}

	finalized, draft, err := s.session.Feed(ctx, chunk)
	if err != nil {
		return Result{ConfirmedText: s.confirmedText, TentativeText: s.tentativeText}, nil
	}
	s.confirmedText = finalized
	s.tentativeText = draft

	return Result{
		ConfirmedText: s.confirmedText,
		TentativeText: s.tentativeText,
	}, nil
}

// Finalize releases the native context and promotes any remaining draft
// text to confirmed.
func (s *NativeStrategy) Finalize(ctx context.Context) (Result, error) {
	if s.session != nil {
		if err := s.session.Close(ctx); err != nil {
			return Result{}, fmt.Errorf("close native session: %w", err)
		}
		s.session = nil
	}

	if s.tentativeText != "" {
		if s.confirmedText != "" {
			s.confirmedText += " " + s.tentativeText
		} else {
			s.confirmedText = s.tentativeText
		}
		s.tentativeText = ""
	}

	return Result{
		ConfirmedText: s.confirmedText,
		TentativeText: "",
		IsFinal:       true,
	}, nil
}

// Cleanup releases the native context on abort and returns any close error;
// the context is dropped either way.
func (s *NativeStrategy) Cleanup() error {
	if s.session == nil {
		return nil
	}
	err := s.session.Close(context.Background())
	s.session = nil
	return err
}
