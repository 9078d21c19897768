package transcriber

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPTranscriberParsesPlainText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"text": "hello world"})
	}))
	defer srv.Close()

	c := NewHTTPTranscriber(srv.URL, 1, false, false)
	result, err := c.Transcribe(context.Background(), []byte("fake-wav"), "")
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if result.Text != "hello world" {
		t.Fatalf("expected 'hello world', got %q", result.Text)
	}
	if len(result.Words) != 0 {
		t.Fatalf("expected no words when word timestamps disabled, got %v", result.Words)
	}
}

func TestHTTPTranscriberParsesWordTimestamps(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(10 << 20); err != nil {
			t.Errorf("parse multipart form: %v", err)
		}
		if got := r.FormValue("response_format"); got != "verbose_json" {
			t.Errorf("expected response_format=verbose_json, got %q", got)
		}
		resp := whisperResponse{
			Text: "hi there",
			Segments: []whisperSegment{
				{Words: []whisperWord{
					{Word: "hi", Start: 0, End: 0.3, Probability: 0.9},
					{Word: "there", Start: 0.3, End: 0.8, Probability: 0.95},
				}},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := NewHTTPTranscriber(srv.URL, 1, true, false)
	result, err := c.Transcribe(context.Background(), []byte("fake-wav"), "continuity prompt")
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if len(result.Words) != 2 {
		t.Fatalf("expected 2 words, got %d", len(result.Words))
	}
	if result.Words[0].Text != "hi" || result.Words[1].Text != "there" {
		t.Fatalf("unexpected word text: %+v", result.Words)
	}
}

func TestHTTPTranscriberReturnsErrorOnNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("backend crashed"))
	}))
	defer srv.Close()

	c := NewHTTPTranscriber(srv.URL, 1, false, false)
	_, err := c.Transcribe(context.Background(), []byte("fake-wav"), "")
	if err == nil {
		t.Fatalf("expected error on non-200 response")
	}
}

func TestHTTPTranscriberCapabilityFlags(t *testing.T) {
	c := NewHTTPTranscriber("http://example.invalid", 1, true, true)
	if !c.SupportsWordTimestamps() {
		t.Fatalf("expected SupportsWordTimestamps true")
	}
	if !c.RequiresExclusiveAccess() {
		t.Fatalf("expected RequiresExclusiveAccess true")
	}
}
