// Package mock provides a test double for the embedder.Provider interface.
//
// Use Provider to return pre-canned embedding vectors without a model
// runtime and to verify which feature matrices were submitted.
//
// Example:
//
//	p := &mock.Provider{
//	    EmbedResults: [][]float32{{1, 0, 0}},
//	    DimValue:     3,
//	}
//	vec, _ := p.Embed(ctx, features)
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/voxprint/pkg/provider/embedder"
)

// EmbedCall records a single invocation of Embed.
type EmbedCall struct {
	// Ctx is the context passed to Embed.
	Ctx context.Context
	// Features is a deep copy of the matrix passed to Embed.
	Features [][]float32
}

// Provider is a mock implementation of embedder.Provider.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// EmbedResults are returned by successive Embed calls in order; once
	// exhausted the last entry repeats. If empty, Embed returns a zero
	// vector of length DimValue.
	EmbedResults [][]float32

	// EmbedErr, if non-nil, is returned as the error from every Embed call.
	EmbedErr error

	// ModeValue is returned by Mode.
	ModeValue embedder.Mode

	// TimeStepsValue and CoeffsValue are returned by InputShape.
	TimeStepsValue int
	CoeffsValue    int

	// DimValue is returned by Dim.
	DimValue int

	// CloseErr, if non-nil, is returned as the error from Close.
	CloseErr error

	// --- Call records ---

	// EmbedCalls records every call to Embed in order.
	EmbedCalls []EmbedCall

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int
}

// Embed records the call and returns the next scripted vector, EmbedErr.
func (p *Provider) Embed(ctx context.Context, features [][]float32) ([]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := make([][]float32, len(features))
	for i, row := range features {
		cp[i] = append([]float32(nil), row...)
	}
	p.EmbedCalls = append(p.EmbedCalls, EmbedCall{Ctx: ctx, Features: cp})
	if p.EmbedErr != nil {
		return nil, p.EmbedErr
	}
	if len(p.EmbedResults) == 0 {
		return make([]float32, p.DimValue), nil
	}
	idx := len(p.EmbedCalls) - 1
	if idx >= len(p.EmbedResults) {
		idx = len(p.EmbedResults) - 1
	}
	return p.EmbedResults[idx], nil
}

// Mode returns ModeValue.
func (p *Provider) Mode() embedder.Mode {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ModeValue
}

// InputShape returns TimeStepsValue, CoeffsValue.
func (p *Provider) InputShape() (timeSteps, coeffs int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.TimeStepsValue, p.CoeffsValue
}

// Dim returns DimValue.
func (p *Provider) Dim() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.DimValue
}

// Close records the call and returns CloseErr.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CloseCallCount++
	return p.CloseErr
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.EmbedCalls = nil
	p.CloseCallCount = 0
}

// Ensure Provider implements embedder.Provider at compile time.
var _ embedder.Provider = (*Provider)(nil)
