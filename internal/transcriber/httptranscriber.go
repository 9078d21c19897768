// Package transcriber provides capability.Transcriber implementations that
// call out to an external ASR server over HTTP.
package transcriber

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/hubenschmidt/asr-llm-tts-poc/gateway/internal/capability"
	"github.com/hubenschmidt/asr-llm-tts-poc/gateway/internal/metrics"
	"github.com/hubenschmidt/asr-llm-tts-poc/gateway/internal/pipeline"
)

// HTTPTranscriber sends WAV audio to a whisper.cpp-compatible `/inference`
// endpoint and returns the transcript, with optional word-level timestamps
// when the server was built with word-timestamp support.
type HTTPTranscriber struct {
	url             string
	client          *http.Client
	wordTimestamps  bool
	exclusiveAccess bool
}

// NewHTTPTranscriber creates a client pointing at a whisper.cpp server URL.
// wordTimestamps should reflect whether that server was started with
// word-level timestamp output enabled (whisper.cpp's `--ov-word-thold` /
// verbose_json support); exclusiveAccess should be true when the backend
// runs on a single shared GPU/device and calls must be serialized.
func NewHTTPTranscriber(url string, poolSize int, wordTimestamps, exclusiveAccess bool) *HTTPTranscriber {
	return &HTTPTranscriber{
		url:             url,
		client:          pipeline.NewPooledHTTPClient(poolSize, 30*time.Second),
		wordTimestamps:  wordTimestamps,
		exclusiveAccess: exclusiveAccess,
	}
}

func (c *HTTPTranscriber) SupportsWordTimestamps() bool  { return c.wordTimestamps }
func (c *HTTPTranscriber) RequiresExclusiveAccess() bool { return c.exclusiveAccess }

// Transcribe posts wavBytes (and, if non-empty, prompt as the continuity
// prompt field) to the ASR server and returns its transcript, requesting
// verbose_json output with per-word timestamps when the backend supports it.
func (c *HTTPTranscriber) Transcribe(ctx context.Context, wavBytes []byte, prompt string) (capability.TranscribeResult, error) {
	start := time.Now()

	body, contentType, err := c.buildMultipartRequest(wavBytes, prompt)
	if err != nil {
		return capability.TranscribeResult{}, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.url+"/inference", body)
	if err != nil {
		return capability.TranscribeResult{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.client.Do(req)
	if err != nil {
		metrics.Errors.WithLabelValues("transcribe", "http").Inc()
		return capability.TranscribeResult{}, fmt.Errorf("transcribe request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		metrics.Errors.WithLabelValues("transcribe", "status").Inc()
		return capability.TranscribeResult{}, fmt.Errorf("transcribe status %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed whisperResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return capability.TranscribeResult{}, fmt.Errorf("decode transcribe response: %w", err)
	}

	metrics.StageDuration.WithLabelValues("transcribe").Observe(time.Since(start).Seconds())

	result := capability.TranscribeResult{Text: parsed.Text}
	if len(parsed.Segments) > 0 {
		for _, seg := range parsed.Segments {
			for _, w := range seg.Words {
				if w.Word == "" {
					continue
				}
				result.Words = append(result.Words, capability.Word{
					Text:       w.Word,
					Start:      w.Start,
					End:        w.End,
					Confidence: w.Probability,
				})
			}
		}
	}

	return result, nil
}

func (c *HTTPTranscriber) buildMultipartRequest(wavBytes []byte, prompt string) (*bytes.Buffer, string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", "audio.wav")
	if err != nil {
		return nil, "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(wavBytes); err != nil {
		return nil, "", fmt.Errorf("write wav data: %w", err)
	}

	if c.wordTimestamps {
		if err := writer.WriteField("response_format", "verbose_json"); err != nil {
			return nil, "", fmt.Errorf("write response_format field: %w", err)
		}
	}
	if prompt != "" {
		if err := writer.WriteField("prompt", prompt); err != nil {
			return nil, "", fmt.Errorf("write prompt field: %w", err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("close writer: %w", err)
	}

	return &body, writer.FormDataContentType(), nil
}

type whisperResponse struct {
	Text     string           `json:"text"`
	Segments []whisperSegment `json:"segments"`
}

type whisperSegment struct {
	Words []whisperWord `json:"words"`
}

type whisperWord struct {
	Word        string  `json:"word"`
	Start       float64 `json:"start"`
	End         float64 `json:"end"`
	Probability float64 `json:"probability"`
}
