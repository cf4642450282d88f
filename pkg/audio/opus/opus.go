// Package opus decodes Opus-framed ingest audio into the little-endian
// int16 PCM the recognition pipeline consumes.
//
// Embedded devices on constrained links may negotiate the "opus" codec at
// connect time instead of sending raw PCM. Each ingest stream owns one
// Decoder because Opus decoders carry state across consecutive frames.
package opus

import (
	"fmt"

	"layeh.com/gopus"
)

// Ingest streams use 16 kHz mono Opus at up to 60 ms frame size.
const (
	sampleRate = 16000
	channels   = 1
	// maxFrameSize is the largest number of samples per channel a single
	// Opus packet may decode to (60 ms at 16 kHz).
	maxFrameSize = sampleRate * 60 / 1000 // 960
)

// Decoder wraps a gopus Opus decoder for a single ingest stream.
// Not safe for concurrent use; confine to the stream's reader goroutine.
type Decoder struct {
	dec *gopus.Decoder
}

// NewDecoder creates an Opus decoder configured for ingest audio.
func NewDecoder() (*Decoder, error) {
	dec, err := gopus.NewDecoder(sampleRate, channels)
	if err != nil {
		return nil, fmt.Errorf("opus: create decoder: %w", err)
	}
	return &Decoder{dec: dec}, nil
}

// Decode decodes one Opus packet into mono PCM int16 samples and returns the
// result as a byte slice (little-endian int16 pairs).
func (d *Decoder) Decode(packet []byte) ([]byte, error) {
	pcm, err := d.dec.Decode(packet, maxFrameSize, false)
	if err != nil {
		return nil, fmt.Errorf("opus: decode packet: %w", err)
	}
	return int16sToBytes(pcm), nil
}

// SampleRate returns the PCM sample rate this decoder emits.
func (d *Decoder) SampleRate() int { return sampleRate }

// int16sToBytes converts a slice of int16 PCM samples to little-endian bytes.
func int16sToBytes(pcm []int16) []byte {
	b := make([]byte, len(pcm)*2)
	for i, s := range pcm {
		b[i*2] = byte(s)
		b[i*2+1] = byte(s >> 8)
	}
	return b
}
