package streaming

import "testing"

func TestAudioBufferAppendWithinLimit(t *testing.T) {
	buf := NewAudioBuffer(2.0, 16000)
	chunk := make([]float32, 16000)
	trimmed := buf.Append(chunk)

	if trimmed != 0 {
		t.Fatalf("expected no trim, got %d", trimmed)
	}
	if buf.SamplesInBuffer() != 16000 {
		t.Fatalf("expected 16000 samples, got %d", buf.SamplesInBuffer())
	}
	if buf.OffsetSeconds() != 0 {
		t.Fatalf("expected offset 0, got %f", buf.OffsetSeconds())
	}
}

func TestAudioBufferResetThenAppendRoundTrip(t *testing.T) {
	buf := NewAudioBuffer(5.0, 16000)
	buf.Append(make([]float32, 8000))
	buf.Reset()

	x := []float32{0.1, 0.2, 0.3}
	buf.Append(x)

	samples, offset := buf.GetAudio()
	if offset != 0 {
		t.Fatalf("expected offset 0 after reset, got %f", offset)
	}
	if len(samples) != len(x) {
		t.Fatalf("expected %d samples, got %d", len(x), len(samples))
	}
	for i := range x {
		if samples[i] != x[i] {
			t.Fatalf("sample %d mismatch: got %f want %f", i, samples[i], x[i])
		}
	}
}

// TestAudioBufferExactlyMaxSamples covers the boundary behavior: appending a
// chunk of exactly max_samples to an empty buffer leaves offset==0 and
// samples_in_buffer==max_samples.
func TestAudioBufferExactlyMaxSamples(t *testing.T) {
	buf := NewAudioBuffer(1.0, 16000)
	chunk := make([]float32, 16000)
	buf.Append(chunk)

	if buf.OffsetSamples() != 0 {
		t.Fatalf("expected offset 0, got %d", buf.OffsetSamples())
	}
	if buf.SamplesInBuffer() != 16000 {
		t.Fatalf("expected 16000 samples in buffer, got %d", buf.SamplesInBuffer())
	}
}

// TestAudioBufferOversizedChunk covers: a chunk strictly larger than
// max_samples leaves only its last max_samples samples and sets
// offset == chunk_size - max_samples.
func TestAudioBufferOversizedChunk(t *testing.T) {
	buf := NewAudioBuffer(1.0, 16000) // max_samples = 16000
	chunk := make([]float32, 20000)
	for i := range chunk {
		chunk[i] = float32(i)
	}

	buf.Append(chunk)

	if buf.SamplesInBuffer() != 16000 {
		t.Fatalf("expected 16000 samples, got %d", buf.SamplesInBuffer())
	}
	if buf.OffsetSamples() != 4000 {
		t.Fatalf("expected offset 4000, got %d", buf.OffsetSamples())
	}
	samples, _ := buf.GetAudio()
	if samples[0] != chunk[4000] {
		t.Fatalf("expected tail retained, got first sample %f want %f", samples[0], chunk[4000])
	}
}

// TestAudioBufferSlidingWindowTrimsOldest is seed scenario 3: AudioBuffer
// with max_seconds=2, sample_rate=16000; append three 1s chunks A,B,C;
// get_audio() must return exactly B++C with offset_seconds==1.0.
func TestAudioBufferSlidingWindowTrimsOldest(t *testing.T) {
	buf := NewAudioBuffer(2.0, 16000)

	a := constFloat32Slice(16000, 1.0)
	b := constFloat32Slice(16000, 2.0)
	c := constFloat32Slice(16000, 3.0)

	buf.Append(a)
	buf.Append(b)
	buf.Append(c)

	samples, offset := buf.GetAudio()
	if offset != 1.0 {
		t.Fatalf("expected offset 1.0s, got %f", offset)
	}
	if len(samples) != 32000 {
		t.Fatalf("expected 32000 samples, got %d", len(samples))
	}
	if samples[0] != 2.0 || samples[len(samples)-1] != 3.0 {
		t.Fatalf("expected B++C content, got first=%f last=%f", samples[0], samples[len(samples)-1])
	}
}

func TestAudioBufferTrimToTimeKeepsOneSecondFloor(t *testing.T) {
	buf := NewAudioBuffer(10.0, 16000)
	buf.Append(make([]float32, 3*16000)) // 3s buffered

	// Requesting a trim past the end should leave at least 1s of tail.
	buf.TrimToTime(100.0)

	if buf.SamplesInBuffer() < 16000 {
		t.Fatalf("expected at least 1s retained, got %d samples", buf.SamplesInBuffer())
	}
}

func TestAudioBufferTrimToTimeNoopBeforeOffset(t *testing.T) {
	buf := NewAudioBuffer(10.0, 16000)
	buf.Append(make([]float32, 16000))
	buf.TrimToTime(0.0) // offset is already 0

	if buf.SamplesInBuffer() != 16000 {
		t.Fatalf("expected no-op trim, got %d samples", buf.SamplesInBuffer())
	}
}

func TestAudioBufferClearPreservesOffset(t *testing.T) {
	buf := NewAudioBuffer(10.0, 16000)
	buf.Append(make([]float32, 16000))
	buf.Clear()

	if buf.OffsetSeconds() != 1.0 {
		t.Fatalf("expected offset preserved at 1.0s, got %f", buf.OffsetSeconds())
	}
	if buf.SamplesInBuffer() != 0 {
		t.Fatalf("expected 0 samples after clear, got %d", buf.SamplesInBuffer())
	}
}

func constFloat32Slice(n int, v float32) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = v
	}
	return out
}
