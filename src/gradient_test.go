package flow

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// checkGradients compares analytic gradients against central differences of
// loss for a spread of parameter entries.
func checkGradients(t *testing.T, params, grads []*tensor, loss func() float64, backprop func()) {
	t.Helper()
	for _, g := range grads {
		g.zero()
	}
	backprop()

	const eps = 1e-6
	checked := 0
	for pi, p := range params {
		stride := max(1, len(p.data)/3)
		for j := 0; j < len(p.data); j += stride {
			orig := p.data[j]
			p.data[j] = orig + eps
			up := loss()
			p.data[j] = orig - eps
			down := loss()
			p.data[j] = orig

			numeric := (up - down) / (2 * eps)
			analytic := grads[pi].data[j]
			tol := 1e-5 + 1e-3*math.Abs(numeric)
			if math.Abs(numeric-analytic) > tol {
				t.Errorf("param %d[%d]: analytic %.8g, numeric %.8g", pi, j, analytic, numeric)
			}
			checked++
		}
	}
	require.Positive(t, checked)
}

func TestNormalizingFlowGradients(t *testing.T) {
	for _, clamp := range []float64{0, 1.5} {
		rng := rand.New(rand.NewSource(21))
		cfg := smallFlowConfig()
		cfg.NumLayers = 3
		cfg.LogScaleClamp = clamp
		nf, err := NewNormalizingFlow(cfg, rng)
		require.NoError(t, err)

		batch := Batch{Points: randomPoints(6, 2, 1, rng)}
		loss := func() float64 {
			lp, ld, err := nllStep(nf, batch, false)
			require.NoError(t, err)
			return lp + ld
		}
		backprop := func() {
			_, _, err := nllStep(nf, batch, true)
			require.NoError(t, err)
		}
		checkGradients(t, nf.parameters(), nf.gradients(), loss, backprop)
	}
}

func TestVelocityFieldGradients(t *testing.T) {
	for _, conditional := range []bool{false, true} {
		rng := rand.New(rand.NewSource(22))
		cfg := VelocityFieldConfig{
			LatentDim:     2,
			HiddenUnits:   5,
			HiddenLayers:  2,
			NegativeSlope: 0.01,
			Conditional:   conditional,
		}
		if conditional {
			cfg.NumClasses = 3
			cfg.EmbeddingDim = 4
		}
		vf, err := NewVelocityField(cfg, rng)
		require.NoError(t, err)

		y, err := fromRows(randomPoints(5, 2, 1, rng))
		require.NoError(t, err)
		target, err := fromRows(randomPoints(5, 2, 1, rng))
		require.NoError(t, err)
		ts := []float64{0.1, 0.3, 0.5, 0.7, 0.9}
		var classes []int
		if conditional {
			classes = []int{0, 2, 1, 2, 0}
		}
		mse := MSE(MSEConfig{Reduction: "batch"})

		loss := func() float64 {
			pred, err := vf.forward(y, classes, ts, false)
			require.NoError(t, err)
			return mse.compute(pred, target)
		}
		backprop := func() {
			pred, err := vf.forward(y, classes, ts, true)
			require.NoError(t, err)
			g := newTensor(pred.shape...)
			mse.gradient(pred, target, g)
			require.NoError(t, vf.backward(g))
		}
		checkGradients(t, vf.parameters(), vf.gradients(), loss, backprop)
	}
}

func paramSize(params []*tensor) int {
	n := 0
	for _, p := range params {
		n += p.size()
	}
	return n
}

func requireZeroGrads(t *testing.T, grads []*tensor) {
	t.Helper()
	for i, g := range grads {
		for j, v := range g.data {
			require.Zero(t, v, "grad %d[%d]", i, j)
		}
	}
}

func TestNormalizingFlowZeroGradAndParamCount(t *testing.T) {
	rng := rand.New(rand.NewSource(23))
	cfg := smallFlowConfig()
	cfg.NumLayers = 3
	nf, err := NewNormalizingFlow(cfg, rng)
	require.NoError(t, err)
	assert.Equal(t, paramSize(nf.parameters()), nf.ParamCount())

	affine := 0
	for _, l := range nf.Layers() {
		if l.Kind == KindAffine {
			affine += l.Affine.ParamCount()
		}
	}
	assert.Equal(t, nf.ParamCount(), affine)

	batch := Batch{Points: randomPoints(6, 2, 1, rng)}
	_, _, err = nllStep(nf, batch, true)
	require.NoError(t, err)
	assert.Positive(t, gradNorm(nf.gradients()))

	nf.zeroGrad()
	requireZeroGrads(t, nf.gradients())
}

func TestVelocityFieldZeroGradAndParamCount(t *testing.T) {
	rng := rand.New(rand.NewSource(24))
	cfg := VelocityFieldConfig{
		LatentDim:     2,
		HiddenUnits:   5,
		HiddenLayers:  2,
		NegativeSlope: 0.01,
		Conditional:   true,
		NumClasses:    3,
		EmbeddingDim:  4,
	}
	vf, err := NewVelocityField(cfg, rng)
	require.NoError(t, err)
	assert.Equal(t, paramSize(vf.parameters()), vf.ParamCount())
	assert.Equal(t, vf.net.ParamCount()+3*4, vf.ParamCount())

	y, err := fromRows(randomPoints(4, 2, 1, rng))
	require.NoError(t, err)
	pred, err := vf.forward(y, []int{0, 1, 2, 1}, []float64{0.2, 0.4, 0.6, 0.8}, true)
	require.NoError(t, err)
	g := newTensor(pred.shape...)
	for i := range g.data {
		g.data[i] = 1
	}
	require.NoError(t, vf.backward(g))
	assert.Positive(t, gradNorm(vf.gradients()))

	vf.zeroGrad()
	requireZeroGrads(t, vf.gradients())
}

func gradNorm(grads []*tensor) float64 {
	s := 0.0
	for _, g := range grads {
		for _, v := range g.data {
			s += v * v
		}
	}
	return s
}
