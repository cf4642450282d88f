package audio

import "time"

// Chunk represents a single unit of audio flowing through the recognition
// pipeline, from ingest through gating and feature extraction to speaker
// matching. One ingest message produces exactly one Chunk.
type Chunk struct {
	// PCM audio data, little-endian signed 16-bit samples, mono.
	Data []byte

	// SampleRate in Hz (16000 for the recognition pipeline).
	SampleRate int

	// Received marks when this chunk arrived at the ingest boundary.
	Received time.Time
}

// Samples returns the number of complete int16 samples in the chunk.
// A trailing odd byte is not counted.
func (c Chunk) Samples() int {
	return len(c.Data) / 2
}

// Duration returns the play time of the chunk at its sample rate, or zero
// when the sample rate is unset.
func (c Chunk) Duration() time.Duration {
	if c.SampleRate <= 0 {
		return 0
	}
	return time.Duration(c.Samples()) * time.Second / time.Duration(c.SampleRate)
}
