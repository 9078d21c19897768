package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "streaming_sessions_active",
		Help: "Currently active streaming sessions",
	})

	SessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streaming_sessions_total",
		Help: "Total streaming sessions by terminal outcome",
	}, []string{"outcome"}) // completed, error

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "streaming_stage_duration_seconds",
		Help:    "Per-stage latency",
		Buckets: []float64{0.05, 0.1, 0.2, 0.3, 0.5, 0.8, 1.0, 2.0, 5.0},
	}, []string{"stage"})

	TranscribeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "streaming_transcribe_duration_seconds",
		Help:    "Transcription call latency by strategy",
		Buckets: []float64{0.05, 0.1, 0.2, 0.3, 0.5, 0.8, 1.0, 2.0, 5.0},
	}, []string{"strategy"})

	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streaming_errors_total",
		Help: "Error counts by stage",
	}, []string{"stage", "error_type"})

	AudioChunks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "streaming_audio_chunks_total",
		Help: "Total audio chunks received",
	})

	SpeechSegments = promauto.NewCounter(prometheus.CounterOpts{
		Name: "streaming_vad_speech_segments_total",
		Help: "Speech segments detected by VAD",
	})

	RateLimitRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "streaming_rate_limit_rejections_total",
		Help: "Requests rejected by the per-client sliding-window rate limiter",
	})

	ConfirmedWords = promauto.NewCounter(prometheus.CounterOpts{
		Name: "streaming_confirmed_words_total",
		Help: "Total words confirmed across all sessions",
	})

	WEREstimate = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "streaming_wer_estimate",
		Help:    "Word error rate against a reference transcript, for sessions that supplied one",
		Buckets: []float64{0, 0.05, 0.1, 0.2, 0.3, 0.5, 0.75, 1.0},
	})
)
