// Package energy implements a vad.Engine backed by a root-mean-square
// energy gate.
//
// The classifier labels a sub-frame as speech when its RMS energy (in 16-bit
// PCM units) exceeds a configurable threshold. It is deliberately simple:
// on the embedded hardware this service targets, an energy gate in front of
// feature extraction removes the bulk of silent chunks at near-zero cost,
// and misclassified noise is still filtered downstream by the acceptance
// threshold on embedding similarity.
package energy

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/MrWong99/voxprint/pkg/provider/vad"
)

// defaultThreshold is the RMS level below which audio is considered
// non-speech. The maximum possible value for 16-bit audio is 32767; 300
// corresponds to near-silence.
const defaultThreshold = 300.0

// Compile-time assertion that Engine satisfies vad.Engine.
var _ vad.Engine = (*Engine)(nil)

// Engine creates energy-gate classifier sessions. The zero value is ready
// to use.
type Engine struct{}

// New returns an energy-gate Engine.
func New() *Engine {
	return &Engine{}
}

// NewSession implements [vad.Engine]. The session applies cfg.EnergyThreshold
// (or the package default when unset) to each sub-frame.
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("energy: sample rate must be positive, got %d", cfg.SampleRate)
	}
	if cfg.FrameSizeMs <= 0 {
		return nil, fmt.Errorf("energy: frame size must be positive, got %dms", cfg.FrameSizeMs)
	}
	threshold := cfg.EnergyThreshold
	if threshold <= 0 {
		threshold = defaultThreshold
	}
	return &session{
		frameBytes: cfg.FrameBytes(),
		threshold:  threshold,
	}, nil
}

// session is a live energy-gate classifier for one stream.
type session struct {
	frameBytes int
	threshold  float64

	mu     sync.Mutex
	closed bool
}

var _ vad.SessionHandle = (*session)(nil)

// errClosed is returned by Classify after Close.
var errClosed = errors.New("energy: session is closed")

// Classify implements [vad.SessionHandle]. A sub-frame is speech when its
// RMS energy exceeds the session threshold.
func (s *session) Classify(frame []byte) (bool, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return false, errClosed
	}
	if len(frame) != s.frameBytes {
		return false, fmt.Errorf("energy: frame size %d bytes, want %d", len(frame), s.frameBytes)
	}
	return rms16(frame) > s.threshold, nil
}

// Reset implements [vad.SessionHandle]. The energy gate keeps no per-frame
// history, so Reset is a no-op.
func (s *session) Reset() {}

// Close implements [vad.SessionHandle].
func (s *session) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// rms16 computes the RMS energy of little-endian int16 PCM in native 16-bit
// units.
func rms16(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := range n {
		sample := float64(int16(pcm[i*2]) | int16(pcm[i*2+1])<<8)
		sum += sample * sample
	}
	return math.Sqrt(sum / float64(n))
}
