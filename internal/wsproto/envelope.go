// Package wsproto implements the streaming gateway's WebSocket wire
// protocol: one JSON/binary connection per client, multiple concurrent
// sessions multiplexed over it by session_id.
package wsproto

import (
	"github.com/tidwall/gjson"
)

const serviceName = "ears"

// Envelope is every server-to-client message. Result carries task-specific
// fields as a raw map so partial_result/stream_started/welcome etc. can each
// populate only the fields they need without a union type.
type Envelope struct {
	RequestID string         `json:"request_id,omitempty"`
	Service   string         `json:"service"`
	Task      string         `json:"task"`
	Result    map[string]any `json:"result,omitempty"`
	Error     *ErrorPayload  `json:"error,omitempty"`
}

// ErrorPayload is the error envelope's payload, per the wire protocol's
// error-code table.
type ErrorPayload struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
}

func newResult(requestID, task string, result map[string]any) Envelope {
	return Envelope{RequestID: requestID, Service: serviceName, Task: task, Result: result}
}

func newError(requestID, task, code, message string, retryable bool) Envelope {
	return Envelope{
		RequestID: requestID,
		Service:   serviceName,
		Task:      task,
		Error:     &ErrorPayload{Code: code, Message: message, Retryable: retryable},
	}
}

// Error codes, per the wire protocol's error taxonomy.
const (
	ErrCodeUnauthorized      = "unauthorized"
	ErrCodeNotReady          = "not_ready"
	ErrCodeRateLimited       = "rate_limited"
	ErrCodeInternal          = "internal_error"
	ErrCodeTimeout           = "timeout"
	ErrCodeUnknownSession    = "unknown_session"
	ErrCodeInvalidSampleRate = "invalid_sample_rate"
)

// clientMessage types, dispatched by their "type" field.
type pingMessage struct {
	Type string `json:"type"`
}

type authMessage struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

type startStreamMessage struct {
	Type       string `json:"type"`
	SessionID  string `json:"session_id,omitempty"`
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
	Binary     bool   `json:"binary,omitempty"`
	Token      string `json:"token,omitempty"`

	// ReferenceTranscript, when set, opts the session into WER evaluation:
	// stream_transcription_complete reports word_error_rate against it.
	// Intended for QA/regression runs against known audio, not production use.
	ReferenceTranscript string `json:"reference_transcript,omitempty"`
}

type audioChunkMessage struct {
	Type         string `json:"type"`
	SessionID    string `json:"session_id"`
	AudioData    string `json:"audio_data"` // base64 Opus
	AckRequested bool   `json:"ack_requested,omitempty"`
}

type pcmChunkMessage struct {
	Type       string `json:"type"`
	SessionID  string `json:"session_id"`
	AudioData  string `json:"audio_data"` // base64 int16 PCM
	SampleRate int    `json:"sample_rate,omitempty"`
	Channels   int    `json:"channels,omitempty"`
}

type endStreamMessage struct {
	Type           string `json:"type"`
	SessionID      string `json:"session_id"`
	ExpectedChunks int    `json:"expected_chunks,omitempty"`
}

// messageType probes a raw JSON frame's "type" field without a full
// unmarshal, so the dispatcher can pick the right concrete struct.
func messageType(raw []byte) string {
	return gjson.GetBytes(raw, "type").String()
}
