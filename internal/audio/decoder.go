package audio

import (
	"fmt"

	"layeh.com/gopus"
)

// downmix averages interleaved multi-channel samples down to mono, clipping
// the result to [-1, 1]. With channels <= 1 it returns samples unchanged.
func downmix(samples []float32, channels int) []float32 {
	if channels <= 1 {
		return samples
	}
	n := len(samples) / channels
	out := make([]float32, n)
	for i := range n {
		var sum float32
		for c := range channels {
			sum += samples[i*channels+c]
		}
		v := sum / float32(channels)
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		out[i] = v
	}
	return out
}

// PCMDecoder implements capability.Decoder for raw little-endian int16 PCM
// chunks (the wire protocol's pcm_chunk message).
type PCMDecoder struct {
	TargetSampleRate int
}

// NewPCMDecoder creates a PCMDecoder that resamples to targetSampleRate.
func NewPCMDecoder(targetSampleRate int) *PCMDecoder {
	return &PCMDecoder{TargetSampleRate: targetSampleRate}
}

func (d *PCMDecoder) Decode(chunk []byte, sourceSampleRate, channels int) ([]float32, error) {
	samples, _, err := Decode(chunk, CodecPCM, sourceSampleRate)
	if err != nil {
		return nil, err
	}
	samples = downmix(samples, channels)
	return Resample(samples, sourceSampleRate, d.TargetSampleRate), nil
}

// G711Decoder implements capability.Decoder for G.711 mu-law/A-law chunks.
// G.711 is always 8kHz mono, so channels/sourceSampleRate are accepted only
// for interface compatibility and otherwise ignored.
type G711Decoder struct {
	Codec            Codec
	TargetSampleRate int
}

// NewG711Decoder creates a G711Decoder for the given G.711 variant.
func NewG711Decoder(codec Codec, targetSampleRate int) *G711Decoder {
	return &G711Decoder{Codec: codec, TargetSampleRate: targetSampleRate}
}

func (d *G711Decoder) Decode(chunk []byte, _, _ int) ([]float32, error) {
	samples, sampleRate, err := Decode(chunk, d.Codec, 0)
	if err != nil {
		return nil, err
	}
	return Resample(samples, sampleRate, d.TargetSampleRate), nil
}

// OpusDecoder implements capability.Decoder for Opus-encoded chunks (the
// wire protocol's audio_chunk message and binary audio frames). A decoder
// instance is stateful per libopus's internal history, so each streaming
// session must own its own OpusDecoder rather than sharing one.
type OpusDecoder struct {
	dec              *gopus.Decoder
	frameSize        int
	targetSampleRate int
	channels         int
}

// NewOpusDecoder creates an Opus decoder for the given source sample rate
// and channel count, resampling its output to targetSampleRate mono.
// frameSizeMs is the expected Opus frame duration (20ms is standard).
func NewOpusDecoder(sourceSampleRate, channels, frameSizeMs, targetSampleRate int) (*OpusDecoder, error) {
	dec, err := gopus.NewDecoder(sourceSampleRate, channels)
	if err != nil {
		return nil, fmt.Errorf("create opus decoder: %w", err)
	}
	return &OpusDecoder{
		dec:              dec,
		frameSize:        sourceSampleRate * frameSizeMs / 1000,
		targetSampleRate: targetSampleRate,
		channels:         channels,
	}, nil
}

func (d *OpusDecoder) Decode(chunk []byte, sourceSampleRate, channels int) ([]float32, error) {
	pcm, err := d.dec.Decode(chunk, d.frameSize, false)
	if err != nil {
		return nil, fmt.Errorf("opus decode: %w", err)
	}
	samples := make([]float32, len(pcm))
	for i, s := range pcm {
		samples[i] = float32(s) / 32768
	}
	samples = downmix(samples, d.channels)
	return Resample(samples, sourceSampleRate, d.targetSampleRate), nil
}
