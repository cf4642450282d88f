// Package vad defines the Engine interface for frame-level speech classifiers.
//
// A VAD engine wraps a binary speech/non-speech detector (an energy gate, a
// WebRTC-style classifier, or a small model) and surfaces it as a stateful,
// per-stream session. Each session maintains its own internal state so that
// multiple concurrent audio streams can be classified independently.
//
// Classification is synchronous by design: Classify returns immediately with
// a boolean verdict, making it suitable for the low-latency gate that decides
// whether a chunk is worth the cost of feature extraction and inference.
//
// Implementations must be safe for concurrent use across different sessions.
// A single SessionHandle should not be shared across goroutines unless the
// implementation explicitly documents thread safety for that type.
package vad

// Config holds the parameters for a classifier session.
type Config struct {
	// SampleRate is the audio sample rate in Hz. Must match the rate of the
	// PCM sub-frames passed to Classify. The recognition pipeline uses 16000.
	SampleRate int

	// FrameSizeMs is the duration of each classified sub-frame in
	// milliseconds. Classify returns an error if the supplied frame does not
	// match this size. Typical: 20.
	FrameSizeMs int

	// EnergyThreshold is the RMS level (in 16-bit PCM units, 0–32767) above
	// which energy-based engines classify a sub-frame as speech. Engines that
	// do not use energy ignore it. Typical: 300.
	EnergyThreshold float64
}

// FrameBytes returns the size in bytes of one classified sub-frame:
// SampleRate * FrameSizeMs / 1000 samples at 2 bytes per sample.
func (c Config) FrameBytes() int {
	return c.SampleRate * c.FrameSizeMs / 1000 * 2
}

// SessionHandle represents an active classifier session for a single audio
// stream. It is an interface so that test code can supply mock
// implementations without a live engine. Reset clears accumulated state
// without closing the session.
type SessionHandle interface {
	// Classify labels a single sub-frame as speech (true) or non-speech
	// (false). The frame must be raw little-endian PCM matching the
	// SampleRate and FrameSizeMs configured when the session was created.
	// Returns an error if the frame size is wrong or the engine encounters
	// an internal failure; callers treat per-frame errors as "skip this
	// sub-frame", never as a stream failure.
	//
	// Designed to be called synchronously in the gate loop; must not block.
	Classify(frame []byte) (bool, error)

	// Reset clears all accumulated detection state without closing the
	// session. Use this when the audio stream is interrupted or restarted.
	Reset()

	// Close releases all resources associated with the session. After Close,
	// Classify must return errors. Calling Close more than once is safe and
	// returns nil.
	Close() error
}

// Engine is the factory for classifier sessions. It is the top-level
// interface implemented by each VAD backend.
//
// Implementations must be safe for concurrent use: multiple goroutines may
// call NewSession simultaneously to create independent sessions.
type Engine interface {
	// NewSession creates a new classifier session with the given
	// configuration, immediately ready to accept sub-frames.
	//
	// Returns an error if the configuration is invalid (unsupported sample
	// rate, non-positive frame size) or if the engine cannot allocate
	// resources for the session.
	NewSession(cfg Config) (SessionHandle, error)
}
