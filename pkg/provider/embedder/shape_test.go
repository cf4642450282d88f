package embedder_test

import (
	"testing"

	"github.com/MrWong99/voxprint/pkg/provider/embedder"
)

// matrix builds a rows x cols feature matrix with cell value r*100+c+1 so
// every position is distinguishable after flattening.
func matrix(rows, cols int) [][]float32 {
	m := make([][]float32, rows)
	for r := range m {
		m[r] = make([]float32, cols)
		for c := range m[r] {
			m[r][c] = float32(r*100 + c + 1)
		}
	}
	return m
}

func TestFit(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		features  [][]float32
		timeSteps int
		coeffs    int
	}{
		{"exact shape", matrix(4, 3), 4, 3},
		{"pad rows", matrix(2, 3), 4, 3},
		{"truncate rows", matrix(6, 3), 4, 3},
		{"pad cols", matrix(4, 2), 4, 3},
		{"truncate cols", matrix(4, 5), 4, 3},
		{"pad both", matrix(2, 2), 4, 3},
		{"truncate both", matrix(6, 5), 4, 3},
		{"pad rows truncate cols", matrix(2, 5), 4, 3},
		{"truncate rows pad cols", matrix(6, 2), 4, 3},
		{"empty matrix", nil, 4, 3},
		{"single cell", matrix(1, 1), 4, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			flat := embedder.Fit(tt.features, tt.timeSteps, tt.coeffs)
			if got, want := len(flat), tt.timeSteps*tt.coeffs; got != want {
				t.Fatalf("len(Fit(...)) = %d, want %d", got, want)
			}
			for r := 0; r < tt.timeSteps; r++ {
				for c := 0; c < tt.coeffs; c++ {
					var want float32
					if r < len(tt.features) && c < len(tt.features[r]) {
						want = tt.features[r][c]
					}
					if got := flat[r*tt.coeffs+c]; got != want {
						t.Errorf("flat[%d][%d] = %v, want %v", r, c, got, want)
					}
				}
			}
		})
	}
}

func TestFit_RaggedRows(t *testing.T) {
	t.Parallel()

	features := [][]float32{
		{1, 2, 3, 4},
		{5},
		nil,
		{6, 7},
	}
	flat := embedder.Fit(features, 4, 3)
	want := []float32{
		1, 2, 3,
		5, 0, 0,
		0, 0, 0,
		6, 7, 0,
	}
	if len(flat) != len(want) {
		t.Fatalf("len(Fit(...)) = %d, want %d", len(flat), len(want))
	}
	for i := range want {
		if flat[i] != want[i] {
			t.Errorf("flat[%d] = %v, want %v", i, flat[i], want[i])
		}
	}
}

func TestFit_InvalidShape(t *testing.T) {
	t.Parallel()

	if got := embedder.Fit(matrix(2, 2), 0, 3); got != nil {
		t.Errorf("Fit with zero timeSteps = %v, want nil", got)
	}
	if got := embedder.Fit(matrix(2, 2), 3, -1); got != nil {
		t.Errorf("Fit with negative coeffs = %v, want nil", got)
	}
}

func TestFit_DoesNotModifyInput(t *testing.T) {
	t.Parallel()

	features := matrix(3, 4)
	embedder.Fit(features, 2, 2)
	for r := range features {
		for c := range features[r] {
			if want := float32(r*100 + c + 1); features[r][c] != want {
				t.Fatalf("input[%d][%d] mutated to %v, want %v", r, c, features[r][c], want)
			}
		}
	}
}
