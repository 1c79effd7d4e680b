package flow

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func smallFlowConfig() NormFlowConfig {
	return NormFlowConfig{
		LatentDim:     2,
		NumLayers:     4,
		HiddenUnits:   6,
		HiddenLayers:  2,
		NegativeSlope: 0.01,
	}
}

func randomPoints(n, dim int, scale float64, rng *rand.Rand) [][]float64 {
	pts := make([][]float64, n)
	for i := range pts {
		pts[i] = make([]float64, dim)
		for j := range pts[i] {
			pts[i][j] = rng.NormFloat64() * scale
		}
	}
	return pts
}

func TestAffineCouplingRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		dim  int
	}{
		{"2d", 2},
		{"4d", 4},
		{"6d", 6},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rng := rand.New(rand.NewSource(1))
			cfg := smallFlowConfig()
			cfg.LatentDim = tc.dim
			a, err := NewAffineCoupling(cfg, rng)
			require.NoError(t, err)

			z := randomPoints(32, tc.dim, 2, rng)
			y, err := a.Forward(z)
			require.NoError(t, err)
			back, err := a.Inverse(y)
			require.NoError(t, err)

			if diff := cmp.Diff(z, back, cmpopts.EquateApprox(0, 1e-9)); diff != "" {
				t.Errorf("inverse(forward(z)) mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestAffineCouplingLeftHalfUnchanged(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	a, err := NewAffineCoupling(smallFlowConfig(), rng)
	require.NoError(t, err)

	z := randomPoints(8, 2, 1, rng)
	y, err := a.Forward(z)
	require.NoError(t, err)
	for i := range z {
		assert.Equal(t, z[i][0], y[i][0])
	}

	left, right := a.Split()
	assert.Equal(t, 1, left)
	assert.Equal(t, 1, right)
}

func TestAffineCouplingLogDetMatchesInverse(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	a, err := NewAffineCoupling(smallFlowConfig(), rng)
	require.NoError(t, err)

	y, err := fromRows(randomPoints(16, 2, 1, rng))
	require.NoError(t, err)

	_, fromInverse, err := a.inverse(y, false)
	require.NoError(t, err)
	direct, err := a.logInverseJacobianDet(y)
	require.NoError(t, err)

	if diff := cmp.Diff(direct, fromInverse, cmpopts.EquateApprox(0, 1e-12)); diff != "" {
		t.Errorf("log-det mismatch (-direct +inverse):\n%s", diff)
	}
}

func TestAffineCouplingRejectsOddDimension(t *testing.T) {
	cfg := smallFlowConfig()
	cfg.LatentDim = 3
	_, err := NewAffineCoupling(cfg, rand.New(rand.NewSource(0)))
	require.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestAffineCouplingRejectsWrongWidth(t *testing.T) {
	a, err := NewAffineCoupling(smallFlowConfig(), rand.New(rand.NewSource(0)))
	require.NoError(t, err)

	_, err = a.Forward([][]float64{{1, 2, 3}})
	require.ErrorIs(t, err, ErrDimensionMismatch)

	var fe *FlowError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "AffineCoupling", fe.Component)

	_, err = a.Forward([][]float64{{1, 2}, {3}})
	require.ErrorIs(t, err, ErrDimensionMismatch)

	_, err = a.Forward(nil)
	require.ErrorIs(t, err, ErrEmptyBatch)
}

func TestAffineCouplingClampBoundsLogScale(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	cfg := smallFlowConfig()
	cfg.LogScaleClamp = 0.5
	a, err := NewAffineCoupling(cfg, rng)
	require.NoError(t, err)

	// push the raw log-scale far out of range
	out := a.logScale.layers[len(a.logScale.layers)-1].(*DenseLayer)
	out.bias.fill(50)

	ld, err := a.LogInverseJacobianDet(randomPoints(10, 2, 3, rng))
	require.NoError(t, err)
	for _, v := range ld {
		assert.LessOrEqual(t, v, 0.0)
		assert.GreaterOrEqual(t, v, -0.5)
	}
}

func TestAffineCouplingSurfacesOverflow(t *testing.T) {
	a, err := NewAffineCoupling(smallFlowConfig(), rand.New(rand.NewSource(5)))
	require.NoError(t, err)

	out := a.logScale.layers[len(a.logScale.layers)-1].(*DenseLayer)
	out.bias.fill(1000)

	_, err = a.Forward([][]float64{{0.3, 1.5}})
	require.ErrorIs(t, err, ErrNumericInstability)

	var fe *FlowError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "forward", fe.Phase)
	require.NotNil(t, fe.OutputInfo)
	assert.Positive(t, fe.OutputInfo.InfCount+fe.OutputInfo.NaNCount)
}
