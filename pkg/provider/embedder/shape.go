package embedder

// Fit reconciles an arbitrary feature matrix with a model's fixed input
// shape and returns it flattened in row-major order, ready for tensor
// construction. The result always has length timeSteps*coeffs.
//
// Rows beyond timeSteps are dropped; missing rows are left as zeros.
// Within each row, coefficients beyond coeffs are dropped and missing
// coefficients are left as zeros. The input matrix is not modified.
func Fit(features [][]float32, timeSteps, coeffs int) []float32 {
	if timeSteps <= 0 || coeffs <= 0 {
		return nil
	}
	flat := make([]float32, timeSteps*coeffs)
	rows := len(features)
	if rows > timeSteps {
		rows = timeSteps
	}
	for t := 0; t < rows; t++ {
		row := features[t]
		n := len(row)
		if n > coeffs {
			n = coeffs
		}
		copy(flat[t*coeffs:t*coeffs+n], row[:n])
	}
	return flat
}
