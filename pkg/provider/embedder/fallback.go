package embedder

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"sync"
)

// Compile-time assertion that Fallback satisfies Provider.
var _ Provider = (*Fallback)(nil)

// Default model geometry for the fallback provider. These match the
// compiled speaker model so that swapping between loaded and fallback
// modes does not change vector or matrix shapes anywhere downstream.
const (
	defaultFallbackDim       = 192
	defaultFallbackTimeSteps = 100
	defaultFallbackCoeffs    = 40
)

// Fallback is the degraded-mode Provider used when no speaker model can
// be loaded. Every Embed call returns a fresh unit-norm random vector,
// so similarity scores against enrolled profiles are noise. The pipeline
// stays fully operational; only recognition quality is lost.
type Fallback struct {
	dim       int
	timeSteps int
	coeffs    int

	mu     sync.Mutex
	rng    *rand.Rand
	closed bool
}

// FallbackOption is a functional option for configuring a Fallback.
type FallbackOption func(*Fallback)

// WithFallbackDim sets the embedding vector length. Defaults to 192.
func WithFallbackDim(dim int) FallbackOption {
	return func(f *Fallback) { f.dim = dim }
}

// WithFallbackInputShape sets the (timeSteps, coeffs) shape reported by
// InputShape. Defaults to 100x40.
func WithFallbackInputShape(timeSteps, coeffs int) FallbackOption {
	return func(f *Fallback) {
		f.timeSteps = timeSteps
		f.coeffs = coeffs
	}
}

// WithFallbackSeed seeds the internal RNG so the vector sequence is
// reproducible. Intended for tests; without it every instance draws from
// an unpredictable stream.
func WithFallbackSeed(seed uint64) FallbackOption {
	return func(f *Fallback) {
		f.rng = rand.New(rand.NewPCG(seed, seed^0xdeadbeef))
	}
}

// NewFallback creates a degraded-mode Provider emitting unit-norm random
// embeddings.
func NewFallback(opts ...FallbackOption) *Fallback {
	f := &Fallback{
		dim:       defaultFallbackDim,
		timeSteps: defaultFallbackTimeSteps,
		coeffs:    defaultFallbackCoeffs,
	}
	for _, o := range opts {
		o(f)
	}
	if f.rng == nil {
		f.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return f
}

// Embed ignores the feature matrix and returns a random vector of length
// Dim() normalized to unit L2 norm.
func (f *Fallback) Embed(ctx context.Context, features [][]float32) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, errors.New("embedder: fallback provider is closed")
	}

	// Sample from standard normal distribution then normalize.
	vec := make([]float32, f.dim)
	var norm float64
	for i := range vec {
		v := float32(f.rng.NormFloat64())
		vec[i] = v
		norm += float64(v) * float64(v)
	}
	norm = math.Sqrt(norm)
	if norm > 0 {
		scale := float32(1.0 / norm)
		for i := range vec {
			vec[i] *= scale
		}
	}
	return vec, nil
}

// Mode reports ModeFallback.
func (f *Fallback) Mode() Mode { return ModeFallback }

// InputShape returns the configured (timeSteps, coeffs) shape.
func (f *Fallback) InputShape() (timeSteps, coeffs int) {
	return f.timeSteps, f.coeffs
}

// Dim returns the embedding vector length.
func (f *Fallback) Dim() int { return f.dim }

// Close marks the provider closed. Idempotent.
func (f *Fallback) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}
