package capability

// Decoder normalizes inbound audio to mono 16kHz float32 in [-1, 1].
// Implementations cover Opus, raw PCM16, and G.711 mu-law/A-law, plus
// linear resampling from 8kHz.
type Decoder interface {
	// Decode converts raw chunk bytes at sourceSampleRate/channels into
	// normalized mono 16kHz float32 samples.
	Decode(chunk []byte, sourceSampleRate, channels int) ([]float32, error)
}
