package wsproto

import (
	"container/list"
	"sync"
	"time"
)

// slidingWindowLimiter enforces a cap on requests within a trailing window,
// per the wire protocol's rate-limiting rule: a request is any top-level
// message that triggers transcription or session creation (start_stream,
// end_stream), never an audio_chunk/pcm_chunk within an already-open stream.
// A plain token bucket (golang.org/x/time/rate) would let a client save up
// idle capacity and then burst past the window boundary; a sliding window
// over actual timestamps does not.
type slidingWindowLimiter struct {
	limit  int
	window time.Duration

	mu    sync.Mutex
	times *list.List // front = oldest
}

func newSlidingWindowLimiter(limit int, window time.Duration) *slidingWindowLimiter {
	return &slidingWindowLimiter{limit: limit, window: window, times: list.New()}
}

// Allow reports whether a new request at time now is permitted, recording it
// if so.
func (l *slidingWindowLimiter) Allow(now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := now.Add(-l.window)
	for l.times.Len() > 0 {
		front := l.times.Front()
		if front.Value.(time.Time).After(cutoff) {
			break
		}
		l.times.Remove(front)
	}

	if l.times.Len() >= l.limit {
		return false
	}
	l.times.PushBack(now)
	return true
}
