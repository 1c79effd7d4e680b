package flow

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVelocityFieldShapes(t *testing.T) {
	rng := rand.New(rand.NewSource(30))
	for _, conditional := range []bool{false, true} {
		vf, err := NewVelocityField(DefaultVelocityFieldConfig(conditional), rng)
		require.NoError(t, err)
		assert.Equal(t, conditional, vf.Conditional())

		var classes []int
		if conditional {
			classes = []int{0, 4, 2}
		}
		v, err := vf.Velocity([][]float64{{0, 0}, {1, 1}, {-1, 2}}, classes, 0.5)
		require.NoError(t, err)
		require.Len(t, v, 3)
		for _, row := range v {
			assert.Len(t, row, 2)
		}
	}
}

func TestEmbeddingIsStableAndRejectsOutOfRange(t *testing.T) {
	vf, err := NewVelocityField(DefaultVelocityFieldConfig(true), rand.New(rand.NewSource(31)))
	require.NoError(t, err)

	first, err := vf.Embed(3)
	require.NoError(t, err)
	require.Len(t, first, 10)
	again, err := vf.Embed(3)
	require.NoError(t, err)
	assert.Equal(t, first, again)

	other, err := vf.Embed(1)
	require.NoError(t, err)
	assert.NotEqual(t, first, other)

	for _, k := range []int{-1, 5, 100} {
		_, err := vf.Embed(k)
		require.ErrorIs(t, err, ErrClassOutOfRange, "class %d", k)
	}

	_, err = vf.Velocity([][]float64{{0, 0}}, []int{5}, 0)
	require.ErrorIs(t, err, ErrClassOutOfRange)
	var fe *FlowError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "Embedding", fe.Component)

	_, err = vf.Velocity([][]float64{{0, 0}, {1, 1}}, []int{1}, 0)
	require.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestUnconditionalFieldHasNoEmbedding(t *testing.T) {
	vf, err := NewVelocityField(DefaultVelocityFieldConfig(false), rand.New(rand.NewSource(32)))
	require.NoError(t, err)
	_, err = vf.Embed(0)
	require.Error(t, err)
}

func TestInterpolationTarget(t *testing.T) {
	for _, ts := range []float64{0, 0.5, 0.9} {
		y, target, err := InterpolationTarget([][]float64{{0, 0}}, [][]float64{{2, 2}}, []float64{ts})
		require.NoError(t, err)
		assert.Equal(t, [][]float64{{2, 2}}, target)
		assert.Equal(t, [][]float64{{2 * ts, 2 * ts}}, y)
	}

	y, _, err := InterpolationTarget([][]float64{{0, 0}}, [][]float64{{2, 2}}, []float64{0.5})
	require.NoError(t, err)
	if diff := cmp.Diff([][]float64{{1, 1}}, y); diff != "" {
		t.Errorf("interpolated point mismatch (-want +got):\n%s", diff)
	}

	_, _, err = InterpolationTarget([][]float64{{0, 0}}, [][]float64{{2, 2}, {1, 1}}, []float64{0.5})
	require.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestTrainVelocityField(t *testing.T) {
	cases := []struct {
		name        string
		conditional bool
	}{
		{"unconditional", false},
		{"conditional", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rng := rand.New(rand.NewSource(33))
			cfg := DefaultVelocityFieldConfig(tc.conditional)
			cfg.HiddenUnits = 16
			vf, err := NewVelocityField(cfg, rng)
			require.NoError(t, err)

			batches := gaussianBatches(90, 32, []float64{2, 2}, 0.1, rng)
			for i := range batches {
				if tc.conditional {
					batches[i].Classes = make([]int, batches[i].Len())
					for j := range batches[i].Classes {
						batches[i].Classes[j] = j % cfg.NumClasses
					}
				}
			}
			before := vf.ParamCount()

			train := DefaultTrainConfig()
			train.Epochs = 2
			history, err := TrainVelocityField(context.Background(), vf, batches, train, rng, nil)
			require.NoError(t, err)
			require.Len(t, history.Loss, 2)
			require.Len(t, history.LR, 2)
			assert.Equal(t, 1e-3, history.LR[0])
			for _, l := range history.Loss {
				assert.False(t, math.IsNaN(l))
				assert.Positive(t, l)
			}
			assert.Equal(t, before, vf.ParamCount())
		})
	}
}

func TestTrainConditionalFieldNeedsClasses(t *testing.T) {
	rng := rand.New(rand.NewSource(34))
	vf, err := NewVelocityField(DefaultVelocityFieldConfig(true), rng)
	require.NoError(t, err)

	batches := gaussianBatches(10, 10, []float64{0, 0}, 1, rng)
	_, err = TrainVelocityField(context.Background(), vf, batches, DefaultTrainConfig(), rng, nil)
	require.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestTrainVelocityFieldUpdatesEmbedding(t *testing.T) {
	rng := rand.New(rand.NewSource(35))
	vf, err := NewVelocityField(DefaultVelocityFieldConfig(true), rng)
	require.NoError(t, err)

	before, err := vf.Embed(1)
	require.NoError(t, err)
	untouched, err := vf.Embed(4)
	require.NoError(t, err)

	batch := Batch{Points: [][]float64{{1, 1}, {2, 2}}, Classes: []int{1, 1}}
	train := DefaultTrainConfig()
	train.Epochs = 1
	_, err = TrainVelocityField(context.Background(), vf, SliceIterator{batch}, train, rng, nil)
	require.NoError(t, err)

	after, err := vf.Embed(1)
	require.NoError(t, err)
	assert.NotEqual(t, before, after)

	still, err := vf.Embed(4)
	require.NoError(t, err)
	assert.Equal(t, untouched, still)
}

func TestVelocityFieldSummary(t *testing.T) {
	rng := rand.New(rand.NewSource(12))
	plain, err := NewVelocityField(DefaultVelocityFieldConfig(false), rng)
	require.NoError(t, err)
	assert.NotContains(t, plain.Summary(), "Embedding")
	assert.Contains(t, plain.Summary(), "Total parameters: ")

	cond, err := NewVelocityField(DefaultVelocityFieldConfig(true), rng)
	require.NoError(t, err)
	assert.Contains(t, cond.Summary(), "Embedding: 5 classes x 10 dims")
}
