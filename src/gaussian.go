package flow

import (
	"fmt"
	"math"
)

var log2Pi = math.Log(2 * math.Pi)

// GaussianLogProb returns log N(x; mean, diag(variance)) for every point.
// Dimensions are independent; mean and variance must match the point width.
func GaussianLogProb(points [][]float64, mean, variance []float64) ([]float64, error) {
	x, err := fromRows(points)
	if err != nil {
		return nil, err
	}
	if len(mean) != x.cols() || len(variance) != x.cols() {
		return nil, fmt.Errorf("%w: points have %d dims, mean %d, variance %d", ErrDimensionMismatch, x.cols(), len(mean), len(variance))
	}
	for j, v := range variance {
		if v <= 0 {
			return nil, errorf("variance[%d] must be > 0, got %g", j, v)
		}
	}
	return gaussianLogProb(x, mean, variance), nil
}

// StandardNormalLogProb returns log N(x; 0, I) for every point.
func StandardNormalLogProb(points [][]float64) ([]float64, error) {
	x, err := fromRows(points)
	if err != nil {
		return nil, err
	}
	return standardNormalLogProb(x), nil
}

func gaussianLogProb(x *tensor, mean, variance []float64) []float64 {
	rows, cols := x.rows(), x.cols()
	out := make([]float64, rows)
	for i := 0; i < rows; i++ {
		s := 0.0
		for j := 0; j < cols; j++ {
			d := x.data[i*cols+j] - mean[j]
			s += math.Log(variance[j]) + log2Pi + d*d/variance[j]
		}
		out[i] = -0.5 * s
	}
	return out
}

func standardNormalLogProb(x *tensor) []float64 {
	rows, cols := x.rows(), x.cols()
	out := make([]float64, rows)
	for i := 0; i < rows; i++ {
		s := 0.0
		for j := 0; j < cols; j++ {
			v := x.data[i*cols+j]
			s += log2Pi + v*v
		}
		out[i] = -0.5 * s
	}
	return out
}
