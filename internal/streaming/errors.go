package streaming

import "errors"

// Error taxonomy for the streaming session engine. These wrap the session
// boundary described in the wire protocol's error-code table; everything
// below the session boundary (decoder, transcriber) is recovered locally
// and never reaches these.
var (
	// ErrAlreadyStarted is returned by Session.Start when called outside Idle.
	ErrAlreadyStarted = errors.New("streaming: session already started")

	// ErrNotActive is returned by ProcessChunk when the session is neither
	// Idle (auto-start) nor Active.
	ErrNotActive = errors.New("streaming: session not active")

	// ErrAlreadyFinalized is returned by Finalize once a session has reached Completed.
	ErrAlreadyFinalized = errors.New("streaming: session already finalized")

	// ErrSessionTimeout is returned by ProcessChunk when the idle gap exceeds
	// the configured session timeout. The session transitions to Error.
	ErrSessionTimeout = errors.New("streaming: session timed out")
)

// ProcessingError wraps a strategy failure surfaced from ProcessChunk or
// Finalize. The session always transitions to Error when this is returned
// from Finalize; ProcessChunk-level transcriber failures are recovered
// inside the strategy and never produce a ProcessingError (see §7).
type ProcessingError struct {
	SessionID string
	Err       error
}

func (e *ProcessingError) Error() string {
	return "streaming: processing failed for session " + e.SessionID + ": " + e.Err.Error()
}

func (e *ProcessingError) Unwrap() error { return e.Err }
