package wsproto

import (
	"context"
	"errors"

	"golang.org/x/sync/semaphore"

	"github.com/hubenschmidt/asr-llm-tts-poc/gateway/internal/capability"
)

// errNotNative is returned by exclusiveNativeTranscriber.OpenNativeSession if
// the wrapped transcriber turns out not to implement NativeTranscriber;
// wrapExclusive only builds that wrapper around a NativeTranscriber, so in
// practice it never fires.
var errNotNative = errors.New("wsproto: wrapped transcriber is not a NativeTranscriber")

// exclusiveTranscriber wraps a capability.Transcriber whose
// RequiresExclusiveAccess reports true, serializing all Transcribe calls
// process-wide through a weight-1 semaphore. A single shared GPU/device
// backend cannot service two concurrent Transcribe calls correctly; every
// session's strategy holds the same wrapped instance rather than its own.
type exclusiveTranscriber struct {
	capability.Transcriber
	sem *semaphore.Weighted
}

// wrapExclusive returns t unchanged if it does not require exclusive
// access; otherwise it returns a serializing wrapper sharing sem across
// every call site that was given the same sem.
func wrapExclusive(t capability.Transcriber, sem *semaphore.Weighted) capability.Transcriber {
	if !t.RequiresExclusiveAccess() {
		return t
	}
	ex := &exclusiveTranscriber{Transcriber: t, sem: sem}
	if _, ok := t.(capability.NativeTranscriber); ok {
		return &exclusiveNativeTranscriber{ex}
	}
	return ex
}

// exclusiveNativeTranscriber is the serializing wrapper for a
// NativeTranscriber, so the wrapper offers OpenNativeSession (and is picked
// as Native by SelectStrategy) only when the wrapped backend does.
type exclusiveNativeTranscriber struct {
	*exclusiveTranscriber
}

func (e *exclusiveTranscriber) Transcribe(ctx context.Context, wavBytes []byte, prompt string) (capability.TranscribeResult, error) {
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return capability.TranscribeResult{}, err
	}
	defer e.sem.Release(1)
	return e.Transcriber.Transcribe(ctx, wavBytes, prompt)
}

// OpenNativeSession serializes session open the same way, if the wrapped
// transcriber is a NativeTranscriber. The returned session's Feed/Close
// calls are not themselves serialized — the backend's own native streaming
// context handles concurrency from that point on.
func (e *exclusiveNativeTranscriber) OpenNativeSession(ctx context.Context) (capability.NativeSession, error) {
	native, ok := e.Transcriber.(capability.NativeTranscriber)
	if !ok {
		return nil, errNotNative
	}
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer e.sem.Release(1)
	return native.OpenNativeSession(ctx)
}
