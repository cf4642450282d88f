// Package feature converts normalized PCM audio into the cepstral feature
// matrices consumed by the speaker embedding model.
//
// The extraction pipeline per frame: Hamming window → FFT → power spectrum →
// triangular mel filterbank → log → DCT-II. Matrices are laid out as
// (time, coefficient) and normalized per coefficient to zero mean and unit
// variance using the matrix's own statistics.
//
// Usage:
//
//	ex, err := feature.New(feature.WithCoefficients(40))
//	m, err := ex.Cepstral(samples)      // (time, 40)
//	d := ex.Delta(m)                    // first-order dynamics
//	c, err := ex.Comprehensive(samples) // (time, 120): [cepstral|Δ|ΔΔ]
package feature

import (
	"errors"
	"fmt"
	"math"
)

const (
	defaultSampleRate  = 16000
	defaultFFTSize     = 512
	defaultHop         = 160
	defaultMelFilters  = 128
	defaultCoefficients = 40
	defaultDeltaWidth  = 9
	defaultPreEmphasis = 0.97
)

// ErrEmptyInput is returned when extraction is attempted on zero samples.
var ErrEmptyInput = errors.New("feature: empty input")

// Extractor computes cepstral feature matrices from normalized audio samples.
// All precomputed state (window, filterbank, DCT basis) is immutable after
// construction, so one Extractor is safe for concurrent use.
type Extractor struct {
	sampleRate  int
	fftSize     int
	hop         int
	numMels     int
	numCoeff    int
	deltaWidth  int
	preEmphasis float64

	window  []float64
	filters [][]float64
	dct     [][]float64
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithSampleRate sets the input sample rate in Hz. Default: 16000.
func WithSampleRate(hz int) Option {
	return func(e *Extractor) { e.sampleRate = hz }
}

// WithFFTSize sets the transform window size in samples. Must be a power of
// two. Default: 512.
func WithFFTSize(n int) Option {
	return func(e *Extractor) { e.fftSize = n }
}

// WithHop sets the hop length between consecutive frames in samples.
// Default: 160 (10 ms at 16 kHz).
func WithHop(n int) Option {
	return func(e *Extractor) { e.hop = n }
}

// WithMelFilters sets the number of triangular mel filters. Default: 128.
func WithMelFilters(n int) Option {
	return func(e *Extractor) { e.numMels = n }
}

// WithCoefficients sets the number of cepstral coefficients per frame.
// Must not exceed the mel filter count. Default: 40.
func WithCoefficients(n int) Option {
	return func(e *Extractor) { e.numCoeff = n }
}

// WithDeltaWidth sets the regression window width for [Extractor.Delta].
// Must be odd and >= 3. Default: 9.
func WithDeltaWidth(n int) Option {
	return func(e *Extractor) { e.deltaWidth = n }
}

// WithPreEmphasis sets the pre-emphasis coefficient applied by
// [Extractor.Comprehensive]. Default: 0.97.
func WithPreEmphasis(c float64) Option {
	return func(e *Extractor) { e.preEmphasis = c }
}

// New creates an Extractor and precomputes its window, mel filterbank and
// DCT basis. Returns an error when the configuration is inconsistent.
func New(opts ...Option) (*Extractor, error) {
	e := &Extractor{
		sampleRate:  defaultSampleRate,
		fftSize:     defaultFFTSize,
		hop:         defaultHop,
		numMels:     defaultMelFilters,
		numCoeff:    defaultCoefficients,
		deltaWidth:  defaultDeltaWidth,
		preEmphasis: defaultPreEmphasis,
	}
	for _, opt := range opts {
		opt(e)
	}

	var errs []error
	if e.sampleRate <= 0 {
		errs = append(errs, fmt.Errorf("feature: sample rate must be positive, got %d", e.sampleRate))
	}
	if !isPowerOfTwo(e.fftSize) {
		errs = append(errs, fmt.Errorf("feature: fft size must be a power of two, got %d", e.fftSize))
	}
	if e.hop <= 0 {
		errs = append(errs, fmt.Errorf("feature: hop must be positive, got %d", e.hop))
	}
	if e.numMels <= 0 {
		errs = append(errs, fmt.Errorf("feature: mel filter count must be positive, got %d", e.numMels))
	}
	if e.numCoeff <= 0 || e.numCoeff > e.numMels {
		errs = append(errs, fmt.Errorf("feature: coefficient count must be in [1, %d], got %d", e.numMels, e.numCoeff))
	}
	if e.deltaWidth < 3 || e.deltaWidth%2 == 0 {
		errs = append(errs, fmt.Errorf("feature: delta width must be odd and >= 3, got %d", e.deltaWidth))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	e.window = hammingWindow(e.fftSize)
	e.filters = melFilterBank(e.numMels, e.fftSize/2+1, e.fftSize, e.sampleRate)
	e.dct = dctMatrix(e.numCoeff, e.numMels)
	return e, nil
}

// Coefficients returns the cepstral coefficient count per frame.
func (e *Extractor) Coefficients() int { return e.numCoeff }

// Cepstral converts normalized samples (range [-1, 1]) into a
// (time, coefficient) matrix of per-coefficient z-scored cepstral values.
// Input shorter than the transform window is right-padded with zeros to
// exactly one window, so short chunks still yield one frame. Empty input
// returns [ErrEmptyInput].
func (e *Extractor) Cepstral(samples []float32) ([][]float32, error) {
	if len(samples) == 0 {
		return nil, ErrEmptyInput
	}

	work := make([]float64, max(len(samples), e.fftSize))
	for i, s := range samples {
		work[i] = float64(s)
	}

	numFrames := 1 + (len(work)-e.fftSize)/e.hop
	out := make([][]float32, numFrames)
	frame := make([]float64, e.fftSize)
	logMel := make([]float64, e.numMels)

	for t := range numFrames {
		start := t * e.hop
		for i := range frame {
			frame[i] = work[start+i] * e.window[i]
		}

		power := powerSpectrum(frame)

		for m, filter := range e.filters {
			var energy float64
			for k, w := range filter {
				if w != 0 {
					energy += w * power[k]
				}
			}
			if energy < logFloor {
				energy = logFloor
			}
			logMel[m] = math.Log(energy)
		}

		row := make([]float32, e.numCoeff)
		for k, basis := range e.dct {
			var c float64
			for j, b := range basis {
				c += b * logMel[j]
			}
			row[k] = float32(c)
		}
		out[t] = row
	}

	normalize(out)
	return out, nil
}

// Delta computes the first-order time derivative of a feature matrix using
// a linear regression window along the time axis. Applying it twice yields
// the second-order (delta-delta) dynamics. An empty matrix yields an empty
// result; a matrix with fewer rows than the regression window yields an
// all-zero matrix of matching shape rather than failing.
func (e *Extractor) Delta(m [][]float32) [][]float32 {
	rows := len(m)
	if rows == 0 {
		return [][]float32{}
	}
	cols := len(m[0])

	out := make([][]float32, rows)
	for t := range out {
		out[t] = make([]float32, cols)
	}
	if rows < e.deltaWidth {
		return out
	}

	n := e.deltaWidth / 2
	var denom float32
	for i := 1; i <= n; i++ {
		denom += float32(2 * i * i)
	}

	clamp := func(t int) int {
		if t < 0 {
			return 0
		}
		if t >= rows {
			return rows - 1
		}
		return t
	}

	for t := range rows {
		for c := range cols {
			var num float32
			for i := 1; i <= n; i++ {
				num += float32(i) * (m[clamp(t+i)][c] - m[clamp(t-i)][c])
			}
			out[t][c] = num / denom
		}
	}
	return out
}

// Comprehensive runs the composite extraction path: pre-emphasis, peak
// amplitude normalization, cepstral transform, then concatenation of the
// cepstral matrix with its first- and second-order derivatives along the
// coefficient axis. The result has 3x [Extractor.Coefficients] columns.
func (e *Extractor) Comprehensive(samples []float32) ([][]float32, error) {
	if len(samples) == 0 {
		return nil, ErrEmptyInput
	}

	processed := make([]float32, len(samples))
	processed[0] = samples[0]
	for i := 1; i < len(samples); i++ {
		processed[i] = samples[i] - float32(e.preEmphasis)*samples[i-1]
	}

	var peak float32
	for _, s := range processed {
		if a := abs32(s); a > peak {
			peak = a
		}
	}
	if peak > 0 {
		for i := range processed {
			processed[i] /= peak
		}
	}

	cep, err := e.Cepstral(processed)
	if err != nil {
		return nil, err
	}
	delta := e.Delta(cep)
	delta2 := e.Delta(delta)

	out := make([][]float32, len(cep))
	for t := range cep {
		row := make([]float32, 0, 3*e.numCoeff)
		row = append(row, cep[t]...)
		row = append(row, delta[t]...)
		row = append(row, delta2[t]...)
		out[t] = row
	}
	return out, nil
}

// normalize z-scores each column across the time axis in place. A zero
// standard deviation substitutes 1.0 so constant coefficients map to zero
// instead of dividing by zero.
func normalize(m [][]float32) {
	rows := len(m)
	if rows == 0 {
		return
	}
	cols := len(m[0])

	for c := range cols {
		var sum float64
		for t := range rows {
			sum += float64(m[t][c])
		}
		mean := sum / float64(rows)

		var sqSum float64
		for t := range rows {
			d := float64(m[t][c]) - mean
			sqSum += d * d
		}
		std := math.Sqrt(sqSum / float64(rows))
		if std == 0 {
			std = 1.0
		}

		for t := range rows {
			m[t][c] = float32((float64(m[t][c]) - mean) / std)
		}
	}
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
