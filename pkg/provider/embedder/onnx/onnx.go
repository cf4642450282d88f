// Package onnx implements embedder.Provider backed by ONNX Runtime.
//
// The bindings load the ONNX Runtime shared library (libonnxruntime.so /
// onnxruntime.dll) at process startup rather than linking it, so no CGO
// toolchain is required at build time. The library search path can be
// overridden with WithSharedLibrary; the runtime environment is
// initialized once per process and stays up until exit.
package onnx

import (
	"context"
	"errors"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/MrWong99/voxprint/pkg/provider/embedder"
)

// Compile-time assertion that Provider satisfies embedder.Provider.
var _ embedder.Provider = (*Provider)(nil)

// Defaults matching the compiled speaker model shipped with the project:
// 100 frames of 40 cepstral coefficients in, a 192-dimensional voice
// embedding out.
const (
	defaultTimeSteps  = 100
	defaultCoeffs     = 40
	defaultDim        = 192
	defaultInputName  = "input"
	defaultOutputName = "embedding"
)

var (
	runtimeOnce sync.Once
	runtimeErr  error
)

// initRuntime initializes the process-wide ONNX Runtime environment.
// Only the first caller's library path takes effect.
func initRuntime(libraryPath string) error {
	runtimeOnce.Do(func() {
		if libraryPath != "" {
			ort.SetSharedLibraryPath(libraryPath)
		}
		runtimeErr = ort.InitializeEnvironment()
	})
	return runtimeErr
}

// Provider implements embedder.Provider using an ONNX Runtime inference
// session. The model is loaded once at construction and shared across all
// Embed calls; calls are serialized internally.
type Provider struct {
	timeSteps   int
	coeffs      int
	dim         int
	inputName   string
	outputName  string
	libraryPath string

	mu      sync.Mutex
	session *ort.DynamicAdvancedSession
	closed  bool
}

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithInputShape sets the (timeSteps, coeffs) matrix shape the model
// expects. Defaults to 100x40.
func WithInputShape(timeSteps, coeffs int) Option {
	return func(p *Provider) {
		p.timeSteps = timeSteps
		p.coeffs = coeffs
	}
}

// WithEmbeddingDim sets the output vector length. Defaults to 192.
func WithEmbeddingDim(dim int) Option {
	return func(p *Provider) { p.dim = dim }
}

// WithTensorNames sets the model's input and output tensor names.
// Defaults to "input" and "embedding".
func WithTensorNames(input, output string) Option {
	return func(p *Provider) {
		p.inputName = input
		p.outputName = output
	}
}

// WithSharedLibrary sets the path to the ONNX Runtime shared library.
// The runtime is initialized once per process, so only the path passed
// to the first Provider constructed has any effect.
func WithSharedLibrary(path string) Option {
	return func(p *Provider) { p.libraryPath = path }
}

// New creates a Provider that loads the speaker model from the given
// ONNX file path. The caller must call Close when the provider is no
// longer needed.
func New(modelPath string, opts ...Option) (*Provider, error) {
	if modelPath == "" {
		return nil, errors.New("onnx: modelPath must not be empty")
	}
	p := &Provider{
		timeSteps:  defaultTimeSteps,
		coeffs:     defaultCoeffs,
		dim:        defaultDim,
		inputName:  defaultInputName,
		outputName: defaultOutputName,
	}
	for _, o := range opts {
		o(p)
	}
	if p.timeSteps <= 0 || p.coeffs <= 0 || p.dim <= 0 {
		return nil, fmt.Errorf("onnx: invalid model geometry %dx%d -> %d", p.timeSteps, p.coeffs, p.dim)
	}

	if err := initRuntime(p.libraryPath); err != nil {
		return nil, fmt.Errorf("onnx: initialize runtime: %w", err)
	}
	session, err := ort.NewDynamicAdvancedSession(modelPath,
		[]string{p.inputName}, []string{p.outputName}, nil)
	if err != nil {
		return nil, fmt.Errorf("onnx: load model %q: %w", modelPath, err)
	}
	p.session = session
	return p, nil
}

// Embed fits the feature matrix to the model input shape and runs one
// forward pass. The returned vector has length Dim().
func (p *Provider) Embed(ctx context.Context, features [][]float32) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, errors.New("onnx: provider is closed")
	}

	flat := embedder.Fit(features, p.timeSteps, p.coeffs)
	input, err := ort.NewTensor(ort.NewShape(1, int64(p.timeSteps), int64(p.coeffs)), flat)
	if err != nil {
		return nil, fmt.Errorf("onnx: create input tensor: %w", err)
	}
	defer input.Destroy()

	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(p.dim)))
	if err != nil {
		return nil, fmt.Errorf("onnx: create output tensor: %w", err)
	}
	defer output.Destroy()

	if err := p.session.Run([]ort.Value{input}, []ort.Value{output}); err != nil {
		return nil, fmt.Errorf("onnx: forward pass: %w", err)
	}

	// GetData returns a view into runtime-owned memory; copy before the
	// deferred Destroy frees it.
	vec := make([]float32, p.dim)
	copy(vec, output.GetData())
	return vec, nil
}

// Mode reports ModeLoaded.
func (p *Provider) Mode() embedder.Mode { return embedder.ModeLoaded }

// InputShape returns the (timeSteps, coeffs) shape the model expects.
func (p *Provider) InputShape() (timeSteps, coeffs int) {
	return p.timeSteps, p.coeffs
}

// Dim returns the embedding vector length.
func (p *Provider) Dim() int { return p.dim }

// Close destroys the inference session. Idempotent.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	if p.session != nil {
		if err := p.session.Destroy(); err != nil {
			return fmt.Errorf("onnx: destroy session: %w", err)
		}
	}
	return nil
}
