package flow

import (
	"fmt"
	"math/rand"
)

// Permutation reorders point coordinates. It has no parameters and a
// log-determinant of zero. Fixed after construction.
type Permutation struct {
	perm []int
	inv  []int
}

// NewPermutation validates perm as a bijection on {0..len(perm)-1} and
// precomputes its inverse.
func NewPermutation(perm []int) (*Permutation, error) {
	inv := make([]int, len(perm))
	seen := make([]bool, len(perm))
	for i, p := range perm {
		if p < 0 || p >= len(perm) || seen[p] {
			return nil, errorf("permutation %v is not a bijection on [0, %d)", perm, len(perm))
		}
		seen[p] = true
		inv[p] = i
	}
	return &Permutation{perm: append([]int(nil), perm...), inv: inv}, nil
}

// RandomPermutation draws a uniform permutation of d coordinates from rng.
func RandomPermutation(d int, rng *rand.Rand) *Permutation {
	p, _ := NewPermutation(rng.Perm(d))
	return p
}

// Indices returns a copy of the forward ordering.
func (p *Permutation) Indices() []int { return append([]int(nil), p.perm...) }

// InverseIndices returns a copy of the inverse ordering.
func (p *Permutation) InverseIndices() []int { return append([]int(nil), p.inv...) }

// forward builds out[:, j] = x[:, perm[j]].
func (p *Permutation) forward(x *tensor) (*tensor, error) {
	if x.cols() != len(p.perm) {
		return nil, fmt.Errorf("%w: permutation of %d coordinates got width %d", ErrDimensionMismatch, len(p.perm), x.cols())
	}
	return gatherCols(x, p.perm), nil
}

func (p *Permutation) inverse(y *tensor) (*tensor, error) {
	if y.cols() != len(p.inv) {
		return nil, fmt.Errorf("%w: permutation of %d coordinates got width %d", ErrDimensionMismatch, len(p.inv), y.cols())
	}
	return gatherCols(y, p.inv), nil
}

// backwardInverse maps dL/dx of inverse back to dL/dy.
func (p *Permutation) backwardInverse(gradX *tensor) *tensor {
	return scatterCols(gradX, p.inv, len(p.inv))
}

// Forward reorders each point by the permutation.
func (p *Permutation) Forward(points [][]float64) ([][]float64, error) {
	x, err := fromRows(points)
	if err != nil {
		return nil, err
	}
	y, err := p.forward(x)
	if err != nil {
		return nil, err
	}
	return y.toRows(), nil
}

// Inverse restores the original coordinate order.
func (p *Permutation) Inverse(points [][]float64) ([][]float64, error) {
	y, err := fromRows(points)
	if err != nil {
		return nil, err
	}
	x, err := p.inverse(y)
	if err != nil {
		return nil, err
	}
	return x.toRows(), nil
}
