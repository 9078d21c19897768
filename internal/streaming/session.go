package streaming

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Session orchestrates one streaming transcription session: receives audio
// chunks, delegates to its Strategy, tracks metrics, and enforces the idle
// timeout. Each session exclusively owns its strategy (and, transitively,
// that strategy's buffers) — there are no shared mutable references across
// sessions.
type Session struct {
	id       string
	strategy Strategy
	cfg      Config

	mu           sync.Mutex
	state        State
	startTime    time.Time
	lastActivity time.Time
	metrics      Metrics
}

// NewSession creates a session in the Idle state, bound to strategy.
func NewSession(id string, strategy Strategy, cfg Config) *Session {
	return &Session{
		id:       id,
		strategy: strategy,
		cfg:      cfg,
		state:    StateIdle,
		metrics:  Metrics{SessionID: id, State: StateIdle},
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsActive reports whether the session is currently Active.
func (s *Session) IsActive() bool { return s.State() == StateActive }

// Metrics returns a snapshot of the session's metrics.
func (s *Session) Metrics() Metrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metrics
}

func (s *Session) setState(st State) {
	s.state = st
	s.metrics.State = st
}

// Start transitions Idle -> Active. Returns ErrAlreadyStarted outside Idle.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startLocked()
}

func (s *Session) startLocked() error {
	if s.state != StateIdle {
		return fmt.Errorf("%w: %s", ErrAlreadyStarted, s.id)
	}
	s.setState(StateActive)
	now := time.Now()
	s.startTime = now
	s.lastActivity = now
	s.metrics.SessionStartUnix = float64(now.Unix())
	slog.Info("streaming session started", "session_id", s.id)
	return nil
}

// ProcessChunk is the single entry point for feeding audio into the
// session. Exactly one call is in flight at a time per session (the caller,
// typically the server's per-connection handler, is expected to serialize
// calls — this method additionally holds its own lock so misuse cannot
// corrupt state). Auto-starts the session on first chunk.
func (s *Session) ProcessChunk(ctx context.Context, chunk []float32) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateIdle {
		if err := s.startLocked(); err != nil {
			return Result{}, err
		}
	} else if s.state != StateActive {
		return Result{}, fmt.Errorf("%w: session=%s state=%s", ErrNotActive, s.id, s.state)
	}

	now := time.Now()
	if !s.lastActivity.IsZero() {
		idle := now.Sub(s.lastActivity)
		if idle > s.cfg.SessionTimeout {
			s.setState(StateError)
			return Result{}, fmt.Errorf("%w: session=%s after %s", ErrSessionTimeout, s.id, s.cfg.SessionTimeout)
		}
	}
	s.lastActivity = now

	s.metrics.ChunksReceived++
	chunkDuration := float64(len(chunk)) / float64(s.cfg.SampleRate)
	s.metrics.TotalAudioSeconds += chunkDuration

	start := time.Now()
	result, err := s.strategy.ProcessAudio(ctx, chunk)
	if err != nil {
		slog.Error("strategy error", "session_id", s.id, "error", err)
		return Result{}, &ProcessingError{SessionID: s.id, Err: err}
	}

	result.ProcessingTimeMs = float64(time.Since(start).Milliseconds())
	result.AudioDurationSeconds = s.metrics.TotalAudioSeconds

	s.metrics.LastActivityUnix = float64(now.Unix())
	s.metrics.ConfirmedWords = result.ConfirmedWordCount
	s.metrics.BufferAudioSeconds = chunkDuration
	s.metrics.TranscriptionsRun++

	return result, nil
}

// Finalize flushes any remaining hypothesis and transitions to Completed.
// Returns ErrAlreadyFinalized if the session already completed; never
// re-invokes the transcriber after that point.
func (s *Session) Finalize(ctx context.Context) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateCompleted {
		return Result{}, fmt.Errorf("%w: %s", ErrAlreadyFinalized, s.id)
	}

	s.setState(StateFinalizing)
	slog.Info("finalizing streaming session", "session_id", s.id)

	result, err := s.strategy.Finalize(ctx)
	if err != nil {
		s.setState(StateError)
		slog.Error("finalize failed", "session_id", s.id, "error", err)
		return Result{}, &ProcessingError{SessionID: s.id, Err: err}
	}

	result.IsFinal = true
	result.AudioDurationSeconds = s.metrics.TotalAudioSeconds
	s.setState(StateCompleted)

	slog.Info("streaming session finalized",
		"session_id", s.id,
		"confirmed_words", result.ConfirmedWordCount,
		"audio_seconds", s.metrics.TotalAudioSeconds)

	return result, nil
}

// Abort transitions the session to Error and releases strategy resources.
// Idempotent: calling it on an already-terminal session is a no-op.
// Cleanup failures are logged but never propagated.
func (s *Session) Abort() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateCompleted || s.state == StateError {
		return
	}

	slog.Warn("aborting streaming session", "session_id", s.id)
	s.setState(StateError)

	if err := s.strategy.Cleanup(); err != nil {
		slog.Warn("cleanup error during abort", "session_id", s.id, "error", err)
	}
}

// CheckTimeout reports whether the session has been idle longer than its
// configured session timeout.
func (s *Session) CheckTimeout() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastActivity.IsZero() {
		return false
	}
	return time.Since(s.lastActivity) > s.cfg.SessionTimeout
}
