package flow

import (
	"fmt"
	"math/rand"
)

// errorf creates a formatted error
func errorf(format string, args ...interface{}) error {
	return fmt.Errorf("flow: "+format, args...)
}

// standardNormal draws an [n, dim] batch from N(0, I).
func standardNormal(n, dim int, rng *rand.Rand) *tensor {
	t := newTensor(n, dim)
	t.fillRandNorm(0, 1, rng)
	return t
}

// StandardNormalSample draws n points from N(0, I) in dim dimensions.
func StandardNormalSample(n, dim int, rng *rand.Rand) [][]float64 {
	if n <= 0 {
		return nil
	}
	return standardNormal(n, dim, rng).toRows()
}
