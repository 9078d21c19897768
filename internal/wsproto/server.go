package wsproto

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/google/uuid"

	"github.com/hubenschmidt/asr-llm-tts-poc/gateway/internal/audio"
	"github.com/hubenschmidt/asr-llm-tts-poc/gateway/internal/capability"
	"github.com/hubenschmidt/asr-llm-tts-poc/gateway/internal/denoise"
	"github.com/hubenschmidt/asr-llm-tts-poc/gateway/internal/metrics"
	"github.com/hubenschmidt/asr-llm-tts-poc/gateway/internal/pipeline"
	"github.com/hubenschmidt/asr-llm-tts-poc/gateway/internal/streaming"
)

// Conn is the transport the Server writes to. Keeping the dispatch logic
// behind this interface (rather than a *websocket.Conn directly) lets it be
// unit-tested with a fake connection. Implementations must be safe to call
// from the Server's single per-client goroutine only — no internal locking
// is required here since Server never calls Conn concurrently for one client.
type Conn interface {
	SendEnvelope(Envelope) error
	SendBinary([]byte) error
}

// ServerConfig holds the shared, process-wide dependencies every client
// connection's dispatcher is built from.
type ServerConfig struct {
	NewTranscriber func() capability.Transcriber // fresh instance (or shared) per session
	StreamingCfg   streaming.Config
	AuthToken      string // empty disables auth
	RateLimit      int
	RateWindow     time.Duration
	GPUSemaphore   *semaphore.Weighted // nil if no backend requires exclusive access

	// DebugAudio, when true, attaches per-chunk RMS/peak stats to
	// partial_result envelopes. Intended for local diagnosis of audio level
	// problems, not production use.
	DebugAudio bool

	// Denoise, when true, runs every session's decoded 16kHz samples through
	// an RNNoise denoiser before they reach the streaming strategy.
	Denoise bool
}

// DefaultServerConfig returns the conventional rate-limit defaults from the
// wire protocol (10 requests / 60s).
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		StreamingCfg: streaming.DefaultConfig(),
		RateLimit:    10,
		RateWindow:   60 * time.Second,
	}
}

// clientSession is one client connection's session-table entry: the
// streaming Session itself plus the decoder state that owns its Opus
// decoder instance (Opus decoders carry cross-frame state and cannot be
// shared between sessions).
type clientSession struct {
	session     *streaming.Session
	opusDecoder *audio.OpusDecoder
	denoiser    *denoise.Denoiser // nil unless ServerConfig.Denoise is set
	sampleRate  int
	channels    int
	binary      bool // true if this session expects binary audio frames

	// referenceTranscript, if non-empty, opts this session into WER
	// reporting at end_stream (see startStreamMessage.ReferenceTranscript).
	referenceTranscript string
}

// Server dispatches one client connection's messages. One Server instance
// is created per WebSocket connection; it owns every streaming.Session that
// connection opened and aborts them all on disconnect.
type Server struct {
	cfg      ServerConfig
	conn     Conn
	limiter  *slidingWindowLimiter
	clientID string

	mu           sync.Mutex
	authed       bool
	sessions     map[string]*clientSession
	endingIDs    map[string]bool // sessions mid end_stream, late chunks dropped
	binarySessID string          // the one session bound to unframed binary audio, if any
}

// NewServer creates a dispatcher for one client connection.
func NewServer(cfg ServerConfig, conn Conn) *Server {
	return &Server{
		cfg:       cfg,
		conn:      conn,
		limiter:   newSlidingWindowLimiter(cfg.RateLimit, cfg.RateWindow),
		clientID:  uuid.NewString(),
		authed:    cfg.AuthToken == "",
		sessions:  make(map[string]*clientSession),
		endingIDs: make(map[string]bool),
	}
}

// Welcome sends the initial welcome envelope. Callers invoke this once,
// immediately after the connection is accepted.
func (s *Server) Welcome() {
	_ = s.conn.SendEnvelope(newResult("", "welcome", map[string]any{
		"client_id":    s.clientID,
		"server_ready": true,
	}))
}

// HandleText dispatches one inbound JSON text frame.
func (s *Server) HandleText(ctx context.Context, raw []byte) {
	switch messageType(raw) {
	case "ping":
		_ = s.conn.SendEnvelope(newResult("", "pong", nil))
	case "auth":
		s.handleAuth(raw)
	case "start_stream":
		s.handleStartStream(ctx, raw)
	case "audio_chunk":
		s.handleAudioChunk(ctx, raw)
	case "pcm_chunk":
		s.handlePCMChunk(ctx, raw)
	case "end_stream":
		s.handleEndStream(ctx, raw)
	default:
		s.sendError("", "error", ErrCodeInternal, "unrecognized message type", false)
	}
}

// HandleBinary dispatches a raw binary audio frame, valid only for the one
// session (if any) opened with start_stream.binary=true.
func (s *Server) HandleBinary(ctx context.Context, data []byte) {
	s.mu.Lock()
	sessID := s.binarySessID
	s.mu.Unlock()

	if sessID == "" {
		s.sendError("", "error", ErrCodeUnknownSession, "no binary-mode session open", false)
		return
	}
	s.feedAudio(ctx, sessID, data, true)
}

// Close aborts every session this client owns. Called once, on disconnect.
func (s *Server) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, cs := range s.sessions {
		cs.session.Abort()
		if cs.denoiser != nil {
			cs.denoiser.Close()
		}
		slog.Info("client disconnected, aborted session", "session_id", id, "client_id", s.clientID)
	}
	s.sessions = make(map[string]*clientSession)
}

func (s *Server) handleAuth(raw []byte) {
	var msg authMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		s.sendError("", "auth_error", ErrCodeInternal, "malformed auth message", false)
		return
	}
	if s.cfg.AuthToken != "" && msg.Token != s.cfg.AuthToken {
		s.sendError("", "error", ErrCodeUnauthorized, "invalid token", false)
		return
	}
	s.mu.Lock()
	s.authed = true
	s.mu.Unlock()
	_ = s.conn.SendEnvelope(newResult("", "auth_success", map[string]any{"client_id": s.clientID}))
}

// requireAuth checks auth only. Audio chunks within an established stream
// are never counted against the per-minute budget (the rate limit exists
// to bound session/transcription churn, not steady-state streaming), so
// handleAudioChunk/handlePCMChunk gate on this instead of
// requireAuthAndRate.
func (s *Server) requireAuth(task string) bool {
	s.mu.Lock()
	authed := s.authed
	s.mu.Unlock()

	if !authed {
		s.sendError("", task, ErrCodeUnauthorized, "not authenticated", false)
		return false
	}
	return true
}

// requireAuthAndRate checks auth and, for requests that count toward the
// rate limit (anything that creates a session or triggers transcription),
// the sliding-window limiter.
func (s *Server) requireAuthAndRate(task string) bool {
	if !s.requireAuth(task) {
		return false
	}
	if !s.limiter.Allow(time.Now()) {
		metrics.Errors.WithLabelValues(task, "rate_limited").Inc()
		s.sendError("", task, ErrCodeRateLimited, "too many requests", true)
		return false
	}
	return true
}

func (s *Server) handleStartStream(ctx context.Context, raw []byte) {
	if !s.requireAuthAndRate("start_stream") {
		return
	}

	var msg startStreamMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		s.sendError("", "error", ErrCodeInternal, "malformed start_stream message", false)
		return
	}

	if msg.SampleRate != 8000 && msg.SampleRate != 16000 {
		s.sendError("", "error", ErrCodeInvalidSampleRate, fmt.Sprintf("unsupported sample rate %d", msg.SampleRate), false)
		return
	}
	channels := msg.Channels
	if channels <= 0 {
		channels = 1
	}

	sessionID := msg.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	transcriber := s.cfg.NewTranscriber()
	if s.cfg.GPUSemaphore != nil {
		transcriber = wrapExclusive(transcriber, s.cfg.GPUSemaphore)
	}
	strategy := streaming.SelectStrategy(transcriber, s.cfg.StreamingCfg)
	sess := streaming.NewSession(sessionID, strategy, s.cfg.StreamingCfg)

	// Both audio_chunk (base64-framed) and raw binary frames carry Opus;
	// only pcm_chunk bypasses this decoder. Every session gets one since
	// either path may be used.
	opusDec, err := audio.NewOpusDecoder(msg.SampleRate, channels, 20, s.cfg.StreamingCfg.SampleRate)
	if err != nil {
		s.sendError("", "error", ErrCodeInternal, "failed to initialize decoder", false)
		return
	}

	var den *denoise.Denoiser
	if s.cfg.Denoise {
		den = denoise.New()
	}

	cs := &clientSession{
		session:             sess,
		opusDecoder:         opusDec,
		denoiser:            den,
		sampleRate:          msg.SampleRate,
		channels:            channels,
		binary:              msg.Binary,
		referenceTranscript: msg.ReferenceTranscript,
	}

	s.mu.Lock()
	s.sessions[sessionID] = cs
	if msg.Binary {
		s.binarySessID = sessionID
	}
	s.mu.Unlock()

	metrics.SessionsActive.Inc()

	_ = s.conn.SendEnvelope(newResult("", "stream_started", map[string]any{
		"session_id":        sessionID,
		"streaming_enabled": true,
		"backend":           "default",
		"strategy":          streaming.StrategyName(strategy),
	}))
}

func (s *Server) lookupSession(sessionID string) (*clientSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.endingIDs[sessionID] {
		return nil, false
	}
	cs, ok := s.sessions[sessionID]
	return cs, ok
}

// isEnding reports whether sessionID is mid end_stream.
func (s *Server) isEnding(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endingIDs[sessionID]
}

func (s *Server) handleAudioChunk(ctx context.Context, raw []byte) {
	if !s.requireAuth("audio_chunk") {
		return
	}
	var msg audioChunkMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		s.sendError("", "error", ErrCodeInternal, "malformed audio_chunk message", false)
		return
	}
	data, err := base64.StdEncoding.DecodeString(msg.AudioData)
	if err != nil {
		s.sendError(msg.SessionID, "error", ErrCodeInternal, "invalid base64 audio_data", false)
		return
	}
	s.feedAudio(ctx, msg.SessionID, data, false)
}

func (s *Server) handlePCMChunk(ctx context.Context, raw []byte) {
	if !s.requireAuth("pcm_chunk") {
		return
	}
	var msg pcmChunkMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		s.sendError("", "error", ErrCodeInternal, "malformed pcm_chunk message", false)
		return
	}
	data, err := base64.StdEncoding.DecodeString(msg.AudioData)
	if err != nil {
		s.sendError(msg.SessionID, "error", ErrCodeInternal, "invalid base64 audio_data", false)
		return
	}

	cs, ok := s.lookupSession(msg.SessionID)
	if !ok {
		if s.isEnding(msg.SessionID) {
			return // late chunk for a session mid end_stream: dropped silently
		}
		s.sendError(msg.SessionID, "error", ErrCodeUnknownSession, "unknown session", false)
		return
	}
	sampleRate := msg.SampleRate
	if sampleRate == 0 {
		sampleRate = cs.sampleRate
	}
	channels := msg.Channels
	if channels == 0 {
		channels = cs.channels
	}

	dec := audio.NewPCMDecoder(s.cfg.StreamingCfg.SampleRate)
	samples, err := dec.Decode(data, sampleRate, channels)
	if err != nil {
		s.sendError(msg.SessionID, "error", ErrCodeInternal, "decode failed", false)
		return
	}
	s.processSamples(ctx, msg.SessionID, cs, samples)
}

// feedAudio decodes an Opus chunk (base64-framed or raw binary, both land
// here) using the session's own stateful OpusDecoder and hands the result
// off for processing.
func (s *Server) feedAudio(ctx context.Context, sessionID string, data []byte, fromBinaryFrame bool) {
	cs, ok := s.lookupSession(sessionID)
	if !ok {
		if s.isEnding(sessionID) {
			return // late chunk for a session mid end_stream: dropped silently
		}
		s.sendError(sessionID, "error", ErrCodeUnknownSession, "unknown session", false)
		return
	}
	if fromBinaryFrame != cs.binary {
		s.sendError(sessionID, "error", ErrCodeInternal, "frame type does not match session mode", false)
		return
	}

	samples, err := cs.opusDecoder.Decode(data, cs.sampleRate, cs.channels)
	if err != nil {
		metrics.Errors.WithLabelValues("decode", "opus").Inc()
		s.sendError(sessionID, "error", ErrCodeInternal, "decode failed", false)
		return
	}
	s.processSamples(ctx, sessionID, cs, samples)
}

func (s *Server) processSamples(ctx context.Context, sessionID string, cs *clientSession, samples []float32) {
	metrics.AudioChunks.Inc()

	if cs.denoiser != nil {
		samples = cs.denoiser.Denoise(samples)
	}

	result, err := cs.session.ProcessChunk(ctx, samples)
	if err != nil {
		metrics.Errors.WithLabelValues("process_chunk", "strategy").Inc()
		s.sendError(sessionID, "error", ErrCodeInternal, err.Error(), true)
		return
	}

	resultFields := map[string]any{
		"session_id":     sessionID,
		"confirmed_text": result.ConfirmedText,
		"tentative_text": result.TentativeText,
		"is_final":       false,
	}
	if s.cfg.DebugAudio {
		rms, peak := audioLevels(samples)
		resultFields["debug"] = map[string]float64{"rms": rms, "peak": peak}
	}

	_ = s.conn.SendEnvelope(newResult(sessionID, "partial_result", resultFields))
}

// audioLevels computes RMS and peak absolute amplitude of a chunk, for the
// optional DebugAudio diagnostic fields.
func audioLevels(samples []float32) (rms, peak float64) {
	if len(samples) == 0 {
		return 0, 0
	}
	var sumSquares float64
	for _, s := range samples {
		v := float64(s)
		sumSquares += v * v
		if abs := math.Abs(v); abs > peak {
			peak = abs
		}
	}
	rms = math.Sqrt(sumSquares / float64(len(samples)))
	return rms, peak
}

func (s *Server) handleEndStream(ctx context.Context, raw []byte) {
	if !s.requireAuthAndRate("end_stream") {
		return
	}

	var msg endStreamMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		s.sendError("", "error", ErrCodeInternal, "malformed end_stream message", false)
		return
	}

	s.mu.Lock()
	cs, ok := s.sessions[msg.SessionID]
	if ok {
		s.endingIDs[msg.SessionID] = true
	}
	s.mu.Unlock()

	if !ok {
		s.sendError(msg.SessionID, "error", ErrCodeUnknownSession, "unknown session", false)
		return
	}

	result, err := cs.session.Finalize(ctx)

	s.mu.Lock()
	delete(s.sessions, msg.SessionID)
	delete(s.endingIDs, msg.SessionID)
	if s.binarySessID == msg.SessionID {
		s.binarySessID = ""
	}
	s.mu.Unlock()

	if cs.denoiser != nil {
		cs.denoiser.Close()
	}

	metrics.SessionsActive.Dec()

	if err != nil {
		metrics.SessionsTotal.WithLabelValues("error").Inc()
		s.sendError(msg.SessionID, "error", ErrCodeInternal, err.Error(), false)
		return
	}
	metrics.SessionsTotal.WithLabelValues("completed").Inc()
	metrics.ConfirmedWords.Add(float64(result.ConfirmedWordCount))

	if msg.ExpectedChunks > 0 {
		if received := cs.session.Metrics().ChunksReceived; received != msg.ExpectedChunks {
			slog.Warn("end_stream chunk count mismatch",
				"session_id", msg.SessionID, "expected_chunks", msg.ExpectedChunks, "received_chunks", received)
		}
	}

	resultFields := map[string]any{
		"session_id":     msg.SessionID,
		"confirmed_text": result.ConfirmedText,
		"tentative_text": "",
		"is_final":       true,
		"audio_duration": result.AudioDurationSeconds,
	}
	if cs.referenceTranscript != "" {
		wer := pipeline.ComputeWER(cs.referenceTranscript, result.ConfirmedText)
		metrics.WEREstimate.Observe(wer)
		resultFields["word_error_rate"] = wer
	}

	_ = s.conn.SendEnvelope(newResult(msg.SessionID, "stream_transcription_complete", resultFields))
}

func (s *Server) sendError(sessionID, task, code, message string, retryable bool) {
	if sessionID != "" {
		_ = s.conn.SendEnvelope(newError(sessionID, task, code, message, retryable))
		return
	}
	_ = s.conn.SendEnvelope(newError("", task, code, message, retryable))
}
