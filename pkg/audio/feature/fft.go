package feature

import "math"

// fft computes an in-place radix-2 Cooley-Tukey FFT over the real/imag
// slices. len(real) must equal len(imag) and be a power of two; callers
// validate this once at extractor construction.
func fft(real, imag []float64) {
	n := len(real)
	if n <= 1 {
		return
	}

	// Bit-reversal permutation.
	for i, j := 1, 0; i < n; i++ {
		bit := n >> 1
		for ; j&bit != 0; bit >>= 1 {
			j ^= bit
		}
		j ^= bit
		if i < j {
			real[i], real[j] = real[j], real[i]
			imag[i], imag[j] = imag[j], imag[i]
		}
	}

	// Butterfly stages.
	for length := 2; length <= n; length <<= 1 {
		angle := -2 * math.Pi / float64(length)
		wR := math.Cos(angle)
		wI := math.Sin(angle)
		for start := 0; start < n; start += length {
			curR, curI := 1.0, 0.0
			half := length / 2
			for k := range half {
				evenR := real[start+k]
				evenI := imag[start+k]
				oddR := real[start+k+half]*curR - imag[start+k+half]*curI
				oddI := real[start+k+half]*curI + imag[start+k+half]*curR

				real[start+k] = evenR + oddR
				imag[start+k] = evenI + oddI
				real[start+k+half] = evenR - oddR
				imag[start+k+half] = evenI - oddI

				curR, curI = curR*wR-curI*wI, curR*wI+curI*wR
			}
		}
	}
}

// powerSpectrum runs the FFT over one windowed frame and returns the power
// (squared magnitude) of the first n/2+1 bins, the non-redundant half of
// a real-input transform.
func powerSpectrum(frame []float64) []float64 {
	n := len(frame)
	real := make([]float64, n)
	imag := make([]float64, n)
	copy(real, frame)

	fft(real, imag)

	power := make([]float64, n/2+1)
	for i := range power {
		power[i] = real[i]*real[i] + imag[i]*imag[i]
	}
	return power
}

// isPowerOfTwo reports whether n is a positive power of two.
func isPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}
