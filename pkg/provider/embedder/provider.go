// Package embedder defines the Provider interface for speaker-embedding
// backends.
//
// An embedder maps a cepstral feature matrix (time steps x coefficients,
// as produced by pkg/audio/feature) to a fixed-length dense float32 vector
// that characterizes the speaker's voice. Cosine similarity between two
// such vectors approximates how likely the two utterances came from the
// same person.
//
// Implementations must be safe for concurrent use.
package embedder

import "context"

// Mode reports which kind of backend is serving embeddings.
type Mode int

const (
	// ModeLoaded means a trained model is loaded and producing real
	// speaker embeddings.
	ModeLoaded Mode = iota

	// ModeFallback means no model could be loaded and embeddings are
	// synthesized random vectors. Recognition quality is meaningless in
	// this mode; it exists so the rest of the pipeline stays exercisable
	// without model files.
	ModeFallback
)

// String returns the lowercase mode name for logs and status payloads.
func (m Mode) String() string {
	switch m {
	case ModeLoaded:
		return "loaded"
	case ModeFallback:
		return "fallback"
	default:
		return "unknown"
	}
}

// Provider is the abstraction over any speaker-embedding backend.
//
// All vectors returned by a single Provider instance share the same
// dimensionality (returned by Dim). Callers must not compare vectors from
// different Provider instances unless they have verified both use the same
// model; in particular, vectors produced in ModeFallback carry no speaker
// information at all.
//
// Implementations must be safe for concurrent use.
type Provider interface {
	// Embed runs a forward pass over a feature matrix laid out as
	// features[t][c] (time step t, coefficient c) and returns a vector of
	// length Dim(). The matrix is padded or truncated to InputShape before
	// inference, so callers may pass matrices of any size. Returns an
	// error if the forward pass fails or ctx is cancelled.
	Embed(ctx context.Context, features [][]float32) ([]float32, error)

	// Mode reports whether this provider serves real model output
	// (ModeLoaded) or synthesized vectors (ModeFallback). The value is
	// constant for the lifetime of the Provider instance.
	Mode() Mode

	// InputShape returns the (timeSteps, coefficients) matrix shape
	// expected by the underlying model. Inputs of other shapes are
	// reconciled by Fit before inference.
	InputShape() (timeSteps, coeffs int)

	// Dim returns the fixed length of every embedding vector produced by
	// this provider.
	Dim() int

	// Close releases the underlying model and runtime resources. After
	// Close, Embed returns an error. Close is idempotent.
	Close() error
}
