package feature

import "math"

// logFloor keeps log() away from zero-power bins.
const logFloor = 1e-10

// hammingWindow returns an n-point Hamming window.
func hammingWindow(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 0.54 - 0.46*math.Cos(2*math.Pi*float64(i)/float64(n-1))
	}
	return w
}

// hzToMel converts a frequency in Hz to the mel scale.
func hzToMel(hz float64) float64 {
	return 2595 * math.Log10(1+hz/700)
}

// melToHz converts a mel-scale value back to Hz.
func melToHz(mel float64) float64 {
	return 700 * (math.Pow(10, mel/2595) - 1)
}

// melFilterBank builds numMels triangular filters over numBins FFT power
// bins, spanning 0 Hz to sampleRate/2. Each row holds one filter's weights.
// Filters are guaranteed at least one bin wide so no filter is all-zero even
// at coarse FFT resolutions.
func melFilterBank(numMels, numBins, fftSize, sampleRate int) [][]float64 {
	melLow := hzToMel(0)
	melHigh := hzToMel(float64(sampleRate) / 2)

	// numMels+2 equally spaced mel points define the triangle edges.
	points := make([]float64, numMels+2)
	for i := range points {
		points[i] = melLow + (melHigh-melLow)*float64(i)/float64(numMels+1)
	}

	// Convert mel points to FFT bin indices.
	bins := make([]int, len(points))
	for i, mel := range points {
		hz := melToHz(mel)
		bins[i] = int(math.Floor((float64(fftSize) + 1) * hz / float64(sampleRate)))
		if bins[i] > numBins-1 {
			bins[i] = numBins - 1
		}
	}

	filters := make([][]float64, numMels)
	for m := range numMels {
		filters[m] = make([]float64, numBins)
		left, center, right := bins[m], bins[m+1], bins[m+2]

		// Degenerate triangles collapse at coarse resolutions; widen to
		// at least one bin.
		if center == left {
			center = left + 1
		}
		if right <= center {
			right = center + 1
		}
		if right > numBins-1 {
			right = numBins - 1
		}

		for k := left; k < center && k < numBins; k++ {
			filters[m][k] = float64(k-left) / float64(center-left)
		}
		for k := center; k <= right && k < numBins; k++ {
			if right == center {
				filters[m][k] = 1
				continue
			}
			filters[m][k] = float64(right-k) / float64(right-center)
		}
	}
	return filters
}

// dctMatrix returns the numCoeff x numMels orthonormal DCT-II basis used to
// turn log-mel energies into cepstral coefficients.
func dctMatrix(numCoeff, numMels int) [][]float64 {
	m := make([][]float64, numCoeff)
	scale := math.Sqrt(2 / float64(numMels))
	for k := range numCoeff {
		m[k] = make([]float64, numMels)
		for j := range numMels {
			m[k][j] = scale * math.Cos(math.Pi*float64(k)*(float64(j)+0.5)/float64(numMels))
		}
		if k == 0 {
			for j := range numMels {
				m[k][j] /= math.Sqrt2
			}
		}
	}
	return m
}
