package streaming

import "time"

// Config holds the tunables for a streaming session. Two fields
// (DedupToleranceSeconds, TrimBackoffSeconds) were empirically chosen
// constants in the reference implementation; they are exposed here as
// configuration with the same defaults rather than hard-coded, per the
// open questions this engine is built against.
type Config struct {
	SampleRate int // Hz, always 16000 after normalization

	// MaxBufferSeconds bounds the AudioBuffer sliding window.
	MaxBufferSeconds float64

	// TranscribeIntervalSamples is the minimum number of new samples
	// between successive transcriber invocations (the cadence).
	TranscribeIntervalSamples int

	// PromptSuffixChars bounds the continuity prompt handed to the transcriber.
	PromptSuffixChars int

	// LocalAgreementN is the number of consecutive hypotheses that must
	// agree before a word is confirmed.
	LocalAgreementN int

	// MaxConfirmedWords bounds the HypothesisBuffer's confirmed history.
	MaxConfirmedWords int

	// DedupToleranceSeconds is the overlap tolerance used when deduping a
	// freshly inserted hypothesis against confirmed_in_buffer.
	DedupToleranceSeconds float64

	// TrimBackoffSeconds is subtracted from a newly-confirmed word's end
	// time before trimming the buffer, to avoid cutting mid-utterance.
	TrimBackoffSeconds float64

	// SessionTimeout is the max idle gap between chunks before the session
	// errors out.
	SessionTimeout time.Duration
}

// DefaultConfig returns the conventional defaults named throughout the spec:
// 30s window, 0.5s cadence, 200-char prompt suffix, agreement_n=2, 500-word
// confirmed cap, 100ms dedup tolerance, 1s trim back-off.
func DefaultConfig() Config {
	const sampleRate = 16000
	return Config{
		SampleRate:                sampleRate,
		MaxBufferSeconds:          30.0,
		TranscribeIntervalSamples: int(0.5 * float64(sampleRate)),
		PromptSuffixChars:         200,
		LocalAgreementN:           2,
		MaxConfirmedWords:         500,
		DedupToleranceSeconds:     0.1,
		TrimBackoffSeconds:        1.0,
		SessionTimeout:            30 * time.Second,
	}
}
