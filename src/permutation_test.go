package flow

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPermutationInverseIndices(t *testing.T) {
	for _, d := range []int{1, 2, 5, 16} {
		p := RandomPermutation(d, rand.New(rand.NewSource(int64(d))))
		perm, inv := p.Indices(), p.InverseIndices()
		for i := 0; i < d; i++ {
			assert.Equal(t, i, perm[inv[i]])
			assert.Equal(t, i, inv[perm[i]])
		}
	}
}

func TestPermutationRoundTripIsExact(t *testing.T) {
	p, err := NewPermutation([]int{2, 0, 3, 1})
	require.NoError(t, err)

	x := [][]float64{{1, 2, 3, 4}, {-0.1, 0.2, -0.3, 0.4}}
	y, err := p.Forward(x)
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{3, 1, 4, 2}, {-0.3, -0.1, 0.4, 0.2}}, y)

	back, err := p.Inverse(y)
	require.NoError(t, err)
	assert.Equal(t, x, back)
}

func TestNewPermutationRejectsNonBijection(t *testing.T) {
	cases := map[string][]int{
		"duplicate":    {0, 0},
		"out of range": {0, 2},
		"negative":     {-1, 0},
	}
	for name, perm := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewPermutation(perm)
			require.Error(t, err)
		})
	}
}

func TestPermutationRejectsWrongWidth(t *testing.T) {
	p, err := NewPermutation([]int{1, 0})
	require.NoError(t, err)
	_, err = p.Forward([][]float64{{1, 2, 3}})
	require.ErrorIs(t, err, ErrDimensionMismatch)
}
