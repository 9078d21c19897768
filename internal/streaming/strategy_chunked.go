package streaming

import (
	"context"
	"log/slog"

	"github.com/hubenschmidt/asr-llm-tts-poc/gateway/internal/capability"
)

// ChunkedStrategy is the fallback for transcribers without word timestamps.
// It shares LocalAgreement's cadence-driven loop, but replaces the
// confirmed text with whatever the transcriber returned on each pass; there
// is no stability algorithm and tentative_text is always empty.
type ChunkedStrategy struct {
	transcriber capability.Transcriber
	cfg         Config

	buffer *AudioBuffer

	lastTranscribeSamples int
	confirmedText         string
}

// NewChunkedStrategy builds a strategy around transcriber using cfg's
// cadence and window parameters.
func NewChunkedStrategy(transcriber capability.Transcriber, cfg Config) *ChunkedStrategy {
	return &ChunkedStrategy{
		transcriber: transcriber,
		cfg:         cfg,
		buffer:      NewAudioBuffer(cfg.MaxBufferSeconds, cfg.SampleRate),
	}
}

// ProcessAudio appends chunk and, once cadence is reached, re-transcribes
// the full window and replaces confirmedText with the result verbatim.
func (s *ChunkedStrategy) ProcessAudio(ctx context.Context, chunk []float32) (Result, error) {
	s.buffer.Append(chunk)

	samplesSinceTranscribe := s.buffer.SamplesInBuffer() + (s.buffer.OffsetSamples() - s.lastTranscribeSamples)
	if samplesSinceTranscribe < s.cfg.TranscribeIntervalSamples {
		return s.currentResult(), nil
	}
	s.lastTranscribeSamples = s.buffer.OffsetSamples() + s.buffer.SamplesInBuffer()

	wavBytes := s.buffer.ToWAVBytes()
	res, err := s.transcriber.Transcribe(ctx, wavBytes, "")
	if err != nil {
		slog.Warn("chunked transcription failed, continuing with existing text", "error", err)
		return s.currentResult(), nil
	}

	s.confirmedText = res.Text
	return s.currentResult(), nil
}

func (s *ChunkedStrategy) currentResult() Result {
	return Result{
		ConfirmedText: s.confirmedText,
		TentativeText: "",
	}
}

// Finalize runs one last transcription over any remaining audio.
func (s *ChunkedStrategy) Finalize(ctx context.Context) (Result, error) {
	if s.buffer.SamplesInBuffer() > 0 {
		wavBytes := s.buffer.ToWAVBytes()
		res, err := s.transcriber.Transcribe(ctx, wavBytes, "")
		if err != nil {
			slog.Warn("chunked final transcription failed", "error", err)
		} else {
			s.confirmedText = res.Text
		}
	}
	return Result{
		ConfirmedText: s.confirmedText,
		TentativeText: "",
		IsFinal:       true,
	}, nil
}

// Cleanup resets the audio buffer.
func (s *ChunkedStrategy) Cleanup() error {
	s.buffer.Reset()
	return nil
}
