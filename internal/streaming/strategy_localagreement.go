package streaming

import (
	"context"
	"log/slog"

	"github.com/hubenschmidt/asr-llm-tts-poc/gateway/internal/capability"
)

// LocalAgreementStrategy accumulates audio in a sliding window, periodically
// batch-transcribes it, extracts word timestamps (synthesizing uniform ones
// if the backend doesn't provide them), and applies LocalAgreement-N to
// produce a stable confirmed prefix plus a tentative suffix.
type LocalAgreementStrategy struct {
	transcriber capability.Transcriber
	cfg         Config

	buffer     *AudioBuffer
	hypothesis *HypothesisBuffer

	lastTranscribeSamples int
}

// NewLocalAgreementStrategy builds a strategy around transcriber using cfg's
// cadence, window, and agreement parameters.
func NewLocalAgreementStrategy(transcriber capability.Transcriber, cfg Config) *LocalAgreementStrategy {
	return &LocalAgreementStrategy{
		transcriber: transcriber,
		cfg:         cfg,
		buffer:      NewAudioBuffer(cfg.MaxBufferSeconds, cfg.SampleRate),
		hypothesis:  NewHypothesisBuffer(cfg.LocalAgreementN, cfg.MaxConfirmedWords, cfg.DedupToleranceSeconds),
	}
}

func (s *LocalAgreementStrategy) snapshotResult() Result {
	return Result{
		ConfirmedText:      s.hypothesis.GetConfirmedText(),
		TentativeText:      s.hypothesis.GetTentativeText(),
		ConfirmedWordCount: s.hypothesis.ConfirmedWordCount(),
		TentativeWordCount: s.hypothesis.TentativeWordCount(),
	}
}

// ProcessAudio appends chunk to the buffer and, once the cadence interval
// has elapsed, re-transcribes the whole window and runs LocalAgreement.
// Transcriber errors are logged and swallowed: the iteration yields no new
// words and the session continues unchanged (see error handling policy).
func (s *LocalAgreementStrategy) ProcessAudio(ctx context.Context, chunk []float32) (Result, error) {
	s.buffer.Append(chunk)

	samplesSinceTranscribe := s.buffer.SamplesInBuffer() + (s.buffer.OffsetSamples() - s.lastTranscribeSamples)
	if samplesSinceTranscribe < s.cfg.TranscribeIntervalSamples {
		return s.snapshotResult(), nil
	}

	s.lastTranscribeSamples = s.buffer.OffsetSamples() + s.buffer.SamplesInBuffer()

	prompt := s.hypothesis.GetPromptSuffix(s.cfg.PromptSuffixChars)
	wavBytes := s.buffer.ToWAVBytes()

	res, err := s.transcriber.Transcribe(ctx, wavBytes, prompt)
	if err != nil {
		slog.Warn("transcription failed, continuing with existing text", "error", err)
		return s.snapshotResult(), nil
	}

	words := s.extractWords(res)
	if len(words) > 0 {
		s.hypothesis.Insert(words, s.buffer.OffsetSeconds())
		newlyConfirmed := s.hypothesis.Flush()
		if len(newlyConfirmed) > 0 {
			s.maybeTrimBuffer(newlyConfirmed[len(newlyConfirmed)-1].End)
		}
	}

	return s.snapshotResult(), nil
}

// extractWords uses the transcriber's word timestamps when present,
// otherwise synthesizes uniform intervals across whitespace-split tokens
// with confidence 0.8, estimating duration from the current buffer (falling
// back to 0.3s/word if the buffer is empty).
func (s *LocalAgreementStrategy) extractWords(res capability.TranscribeResult) []TimestampedWord {
	if len(res.Words) > 0 {
		out := make([]TimestampedWord, 0, len(res.Words))
		for _, w := range res.Words {
			if w.Text == "" {
				continue
			}
			out = append(out, TimestampedWord{Text: w.Text, Start: w.Start, End: w.End, Confidence: w.Confidence})
		}
		return out
	}

	tokens := splitWhitespace(res.Text)
	if len(tokens) == 0 {
		return nil
	}

	duration := s.buffer.DurationSeconds()
	if duration <= 0 {
		duration = float64(len(tokens)) * 0.3
	}
	wordDuration := duration / float64(len(tokens))

	out := make([]TimestampedWord, len(tokens))
	for i, tok := range tokens {
		out[i] = TimestampedWord{
			Text:       tok,
			Start:      float64(i) * wordDuration,
			End:        float64(i+1) * wordDuration,
			Confidence: 0.8,
		}
	}
	return out
}

// maybeTrimBuffer trims the audio and hypothesis buffers to confirmedEndTime
// minus the configured back-off, skipping redundant no-op trims.
func (s *LocalAgreementStrategy) maybeTrimBuffer(confirmedEndTime float64) {
	trimTo := confirmedEndTime - s.cfg.TrimBackoffSeconds
	if trimTo < 0 {
		trimTo = 0
	}
	if trimTo <= s.buffer.OffsetSeconds() {
		return
	}
	s.buffer.TrimToTime(trimTo)
	s.hypothesis.TrimToTime(trimTo)
}

// Finalize transcribes whatever remains, flushes once more, then
// force-confirms the rest of the current hypothesis verbatim.
func (s *LocalAgreementStrategy) Finalize(ctx context.Context) (Result, error) {
	if s.buffer.SamplesInBuffer() > 0 {
		prompt := s.hypothesis.GetPromptSuffix(s.cfg.PromptSuffixChars)
		wavBytes := s.buffer.ToWAVBytes()

		res, err := s.transcriber.Transcribe(ctx, wavBytes, prompt)
		if err != nil {
			slog.Warn("final transcription failed", "error", err)
		} else {
			words := s.extractWords(res)
			if len(words) > 0 {
				s.hypothesis.Insert(words, s.buffer.OffsetSeconds())
				s.hypothesis.Flush()
			}
		}
	}

	s.hypothesis.ForceConfirmAll()

	return Result{
		ConfirmedText:      s.hypothesis.GetConfirmedText(),
		TentativeText:      "",
		IsFinal:            true,
		ConfirmedWordCount: s.hypothesis.ConfirmedWordCount(),
		TentativeWordCount: 0,
	}, nil
}

// Cleanup resets both buffers so the strategy can be discarded safely.
func (s *LocalAgreementStrategy) Cleanup() error {
	s.buffer.Reset()
	s.hypothesis.Clear()
	return nil
}

func splitWhitespace(s string) []string {
	var out []string
	start := -1
	for i, r := range s {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
			if start >= 0 {
				out = append(out, s[start:i])
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		out = append(out, s[start:])
	}
	return out
}
