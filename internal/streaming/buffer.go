package streaming

import (
	"bytes"
	"encoding/binary"
	"math"
)

// AudioBuffer is a sliding-window, chunk-based mono float32 audio buffer.
// Append is O(1) amortized: chunks are stored by reference and only
// concatenated lazily in GetAudio, whose result is memoized until the next
// mutation. Trimming drops whole oldest chunks and then partially slices
// the new oldest chunk, never moving absolute time backward.
type AudioBuffer struct {
	sampleRate int
	maxSamples int

	chunks         [][]float32
	samplesInBuf   int
	offsetSamples  int // samples trimmed from the start; never decreases
	totalSamples   int // total samples ever appended

	cached []float32 // memoized concatenation, nil when invalidated
}

// NewAudioBuffer creates a buffer holding at most maxSeconds of audio at
// sampleRate.
func NewAudioBuffer(maxSeconds float64, sampleRate int) *AudioBuffer {
	return &AudioBuffer{
		sampleRate: sampleRate,
		maxSamples: int(maxSeconds * float64(sampleRate)),
	}
}

// OffsetSeconds is the absolute time at the start of the buffer.
func (b *AudioBuffer) OffsetSeconds() float64 {
	return float64(b.offsetSamples) / float64(b.sampleRate)
}

// DurationSeconds is the current buffer length.
func (b *AudioBuffer) DurationSeconds() float64 {
	return float64(b.samplesInBuf) / float64(b.sampleRate)
}

// TotalDurationSeconds is the total audio duration ever appended, including trimmed.
func (b *AudioBuffer) TotalDurationSeconds() float64 {
	return float64(b.totalSamples) / float64(b.sampleRate)
}

// SamplesInBuffer is the number of samples currently held.
func (b *AudioBuffer) SamplesInBuffer() int { return b.samplesInBuf }

// OffsetSamples is the cumulative count of samples trimmed from the start.
func (b *AudioBuffer) OffsetSamples() int { return b.offsetSamples }

// Append pushes chunk onto the buffer and trims any overflow. Returns the
// number of samples trimmed (0 if none). A single chunk larger than
// maxSamples is accepted and trimmed to its tail, never rejected.
func (b *AudioBuffer) Append(chunk []float32) int {
	if len(chunk) == 0 {
		return 0
	}
	b.chunks = append(b.chunks, chunk)
	b.samplesInBuf += len(chunk)
	b.totalSamples += len(chunk)
	b.cached = nil

	return b.trimToMax()
}

func (b *AudioBuffer) trimToMax() int {
	if b.samplesInBuf <= b.maxSamples {
		return 0
	}
	trimmed := 0
	for b.samplesInBuf > b.maxSamples && len(b.chunks) > 0 {
		oldest := b.chunks[0]
		toRemove := b.samplesInBuf - b.maxSamples
		if len(oldest) <= toRemove {
			b.chunks = b.chunks[1:]
			b.samplesInBuf -= len(oldest)
			b.offsetSamples += len(oldest)
			trimmed += len(oldest)
			continue
		}
		keep := len(oldest) - toRemove
		b.chunks[0] = oldest[len(oldest)-keep:]
		b.samplesInBuf -= toRemove
		b.offsetSamples += toRemove
		trimmed += toRemove
		break
	}
	if trimmed > 0 {
		b.cached = nil
	}
	return trimmed
}

// GetAudio returns a copy of the current window and its starting absolute
// time. The concatenation is memoized until the next mutation.
func (b *AudioBuffer) GetAudio() ([]float32, float64) {
	if b.cached == nil {
		b.cached = b.concatenate()
	}
	out := make([]float32, len(b.cached))
	copy(out, b.cached)
	return out, b.OffsetSeconds()
}

func (b *AudioBuffer) concatenate() []float32 {
	if len(b.chunks) == 0 {
		return []float32{}
	}
	if len(b.chunks) == 1 {
		out := make([]float32, len(b.chunks[0]))
		copy(out, b.chunks[0])
		return out
	}
	out := make([]float32, 0, b.samplesInBuf)
	for _, c := range b.chunks {
		out = append(out, c...)
	}
	return out
}

// TrimToSeconds reduces the buffer to at most keepSeconds of tail. Returns
// the number of samples trimmed.
func (b *AudioBuffer) TrimToSeconds(keepSeconds float64) int {
	keepSamples := int(keepSeconds * float64(b.sampleRate))
	if b.samplesInBuf <= keepSamples {
		return 0
	}
	return b.trimExactly(b.samplesInBuf - keepSamples)
}

// TrimToTime trims such that no sample timestamped strictly before
// absoluteTime remains, but never empties the buffer to less than 1 second
// (safety floor for word-boundary overlap).
func (b *AudioBuffer) TrimToTime(absoluteTime float64) int {
	bufferStart := b.OffsetSeconds()
	if absoluteTime <= bufferStart {
		return 0
	}
	relative := absoluteTime - bufferStart
	trimSamples := int(relative * float64(b.sampleRate))
	if trimSamples <= 0 {
		return 0
	}
	if trimSamples > b.samplesInBuf-b.sampleRate {
		trimSamples = b.samplesInBuf - b.sampleRate // keep 1s minimum
	}
	if trimSamples <= 0 {
		return 0
	}
	return b.trimExactly(trimSamples)
}

func (b *AudioBuffer) trimExactly(target int) int {
	trimmed := 0
	for trimmed < target && len(b.chunks) > 0 {
		oldest := b.chunks[0]
		remaining := target - trimmed
		if len(oldest) <= remaining {
			b.chunks = b.chunks[1:]
			b.samplesInBuf -= len(oldest)
			b.offsetSamples += len(oldest)
			trimmed += len(oldest)
			continue
		}
		b.chunks[0] = oldest[remaining:]
		b.samplesInBuf -= remaining
		b.offsetSamples += remaining
		trimmed += remaining
		break
	}
	if trimmed > 0 {
		b.cached = nil
	}
	return trimmed
}

// Clear drops all samples but preserves offset continuity, so absolute
// timestamps of later words remain meaningful.
func (b *AudioBuffer) Clear() {
	b.offsetSamples += b.samplesInBuf
	b.chunks = nil
	b.samplesInBuf = 0
	b.cached = nil
}

// Reset fully clears the buffer including offset and total-sample tracking.
func (b *AudioBuffer) Reset() {
	b.chunks = nil
	b.samplesInBuf = 0
	b.offsetSamples = 0
	b.totalSamples = 0
	b.cached = nil
}

// ToWAVBytes renders the current window as 16-bit little-endian mono PCM
// WAV bytes, for transcribers that take file-like input.
func (b *AudioBuffer) ToWAVBytes() []byte {
	samples, _ := b.GetAudio()

	pcm := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := int16(math.Max(-1, math.Min(1, float64(s))) * math.MaxInt16)
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(v))
	}

	var buf bytes.Buffer
	dataSize := uint32(len(pcm))
	sampleRate := uint32(b.sampleRate)
	blockAlign := uint16(2)
	byteRate := sampleRate * uint32(blockAlign)

	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+dataSize))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // mono
	binary.Write(&buf, binary.LittleEndian, sampleRate)
	binary.Write(&buf, binary.LittleEndian, byteRate)
	binary.Write(&buf, binary.LittleEndian, blockAlign)
	binary.Write(&buf, binary.LittleEndian, uint16(16)) // bits per sample

	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, dataSize)
	buf.Write(pcm)

	return buf.Bytes()
}
