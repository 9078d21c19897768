package capability

// Vad is an optional gate returning a speech probability per chunk.
// audio.VAD implements it; the streaming engine and the wsproto server do
// not call it, so ingestion is never gated on a Vad verdict.
type Vad interface {
	// SpeechProbability returns the estimated probability, in [0,1], that
	// samples contains speech.
	SpeechProbability(samples []float32) float64
}
