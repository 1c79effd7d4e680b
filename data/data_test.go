package data

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	flow "ringflow/src"
)

func TestSampleRingsStaysInBands(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	points, colors, err := SampleRings(1000, DefaultThickness, rng)
	require.NoError(t, err)
	require.Len(t, points, 1000)
	require.Len(t, colors, 1000)

	centers := map[string][2]float64{}
	for _, r := range OlympicRings {
		centers[r.Color] = [2]float64{r.CenterX, r.CenterY}
	}
	for i, p := range points {
		c := centers[colors[i]]
		d := math.Hypot(p[0]-c[0], p[1]-c[1])
		assert.GreaterOrEqual(t, d, Radius-DefaultThickness/2-1e-12)
		assert.LessOrEqual(t, d, Radius+DefaultThickness/2+1e-12)
	}
	assert.Equal(t, "blue", colors[0])
	assert.Equal(t, "green", colors[999])

	_, _, err = SampleRings(4, DefaultThickness, rng)
	require.ErrorIs(t, err, ErrNoPoints)
}

func TestSampleUnconditionalRings(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	points, err := SampleUnconditionalRings(500, DefaultThickness, rng)
	require.NoError(t, err)
	require.Len(t, points, 500)
	for _, p := range points {
		assert.True(t, InAnyRing(p[0], p[1], DefaultThickness))
	}
	assert.False(t, InAnyRing(0, 0, DefaultThickness))
	assert.True(t, InAnyRing(1, 0, DefaultThickness))
}

func TestLabelTableSortedOrder(t *testing.T) {
	table := NewLabelTable([]string{"blue", "black", "red", "yellow", "green", "blue"})
	assert.Equal(t, []string{"black", "blue", "green", "red", "yellow"}, table.Names())
	assert.Equal(t, 5, table.Len())

	i, err := table.Index("green")
	require.NoError(t, err)
	assert.Equal(t, 2, i)

	name, err := table.Name(4)
	require.NoError(t, err)
	assert.Equal(t, "yellow", name)

	_, err = table.Index("purple")
	require.Error(t, err)
	_, err = table.Name(5)
	require.Error(t, err)
}

func TestNormalize(t *testing.T) {
	points := [][]float64{{1, 10}, {3, 10.5}, {5, 11}, {7, 12.5}}
	mean, std, err := Normalize(points)
	require.NoError(t, err)
	assert.InDelta(t, 4, mean[0], 1e-12)
	assert.InDelta(t, math.Sqrt(5), std[0], 1e-12)

	m, s := ColumnStats(points)
	for j := range m {
		assert.InDelta(t, 0, m[j], 1e-12)
		assert.InDelta(t, 1, s[j], 1e-12)
	}

	_, _, err = Normalize([][]float64{{1, 2}, {1, 3}})
	require.Error(t, err)
}

func TestConditionalRings(t *testing.T) {
	ds, table, err := ConditionalRings(250, DefaultThickness, rand.New(rand.NewSource(3)))
	require.NoError(t, err)
	assert.Equal(t, 250, ds.Len())
	assert.True(t, ds.Labeled())
	assert.Equal(t, 5, table.Len())

	// first ring is blue, which sorts to index 1
	assert.Equal(t, 1, ds.Labels[0])
}

func TestNewLabeledDatasetLengthMismatch(t *testing.T) {
	_, err := NewLabeledDataset([][]float64{{0, 0}, {1, 1}}, []int{0})
	require.ErrorIs(t, err, ErrLengthMismatch)
}

func TestSplit(t *testing.T) {
	points := make([][]float64, 10)
	labels := make([]int, 10)
	for i := range points {
		points[i] = []float64{float64(i), float64(-i)}
		labels[i] = i
	}
	ds, err := NewLabeledDataset(points, labels)
	require.NoError(t, err)

	train, val, err := ds.Split(0.75, rand.New(rand.NewSource(4)))
	require.NoError(t, err)
	assert.Equal(t, 7, train.Len())
	assert.Equal(t, 3, val.Len())

	seen := map[int]bool{}
	for _, part := range []*Dataset{train, val} {
		for i, p := range part.Points {
			assert.Equal(t, float64(part.Labels[i]), p[0], "pairing must survive the split")
			seen[part.Labels[i]] = true
		}
	}
	assert.Len(t, seen, 10)

	again, _, err := ds.Split(0.75, rand.New(rand.NewSource(4)))
	require.NoError(t, err)
	assert.Equal(t, train.Labels, again.Labels)

	_, _, err = ds.Split(1.5, rand.New(rand.NewSource(4)))
	require.Error(t, err)
}

func collect(t *testing.T, l *Loader) []flow.Batch {
	t.Helper()
	var out []flow.Batch
	require.NoError(t, l.Each(context.Background(), func(b flow.Batch) error {
		out = append(out, b)
		return nil
	}))
	return out
}

func TestLoaderBatches(t *testing.T) {
	points := make([][]float64, 10)
	labels := make([]int, 10)
	for i := range points {
		points[i] = []float64{float64(i), 0}
		labels[i] = i
	}
	ds, err := NewLabeledDataset(points, labels)
	require.NoError(t, err)

	for _, prefetch := range []int{0, 1, 3} {
		l, err := NewLoader(ds, LoaderConfig{BatchSize: 4, Shuffle: true, Prefetch: prefetch}, rand.New(rand.NewSource(5)))
		require.NoError(t, err)
		assert.Equal(t, 3, l.Len())

		batches := collect(t, l)
		require.Len(t, batches, 3)
		assert.Equal(t, []int{4, 4, 2}, []int{batches[0].Len(), batches[1].Len(), batches[2].Len()})

		seen := map[int]bool{}
		for _, b := range batches {
			for i, p := range b.Points {
				assert.Equal(t, float64(b.Classes[i]), p[0])
				seen[b.Classes[i]] = true
			}
		}
		assert.Len(t, seen, 10)
	}
}

func TestLoaderWithoutShuffleKeepsOrder(t *testing.T) {
	ds := NewDataset([][]float64{{0, 0}, {1, 1}, {2, 2}})
	l, err := NewLoader(ds, LoaderConfig{BatchSize: 2}, nil)
	require.NoError(t, err)

	batches := collect(t, l)
	require.Len(t, batches, 2)
	assert.Equal(t, [][]float64{{0, 0}, {1, 1}}, batches[0].Points)
	assert.Nil(t, batches[0].Classes)
	assert.Equal(t, [][]float64{{2, 2}}, batches[1].Points)
}

func TestLoaderStopsOnError(t *testing.T) {
	ds := NewDataset(make([][]float64, 100))
	boom := errors.New("boom")
	for _, prefetch := range []int{0, 2} {
		l, err := NewLoader(ds, LoaderConfig{BatchSize: 10, Prefetch: prefetch}, nil)
		require.NoError(t, err)

		calls := 0
		err = l.Each(context.Background(), func(flow.Batch) error {
			calls++
			if calls == 3 {
				return boom
			}
			return nil
		})
		require.ErrorIs(t, err, boom)
		assert.Equal(t, 3, calls)
	}
}

func TestLoaderHonoursCancellation(t *testing.T) {
	ds := NewDataset(make([][]float64, 100))
	l, err := NewLoader(ds, LoaderConfig{BatchSize: 10, Prefetch: 2}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = l.Each(ctx, func(flow.Batch) error { return nil })
	require.ErrorIs(t, err, context.Canceled)
}

func TestNewLoaderValidates(t *testing.T) {
	ds := NewDataset([][]float64{{0, 0}})
	_, err := NewLoader(ds, LoaderConfig{BatchSize: 0}, nil)
	require.Error(t, err)
	_, err = NewLoader(ds, LoaderConfig{BatchSize: 1, Shuffle: true}, nil)
	require.Error(t, err)
	_, err = NewLoader(NewDataset(nil), LoaderConfig{BatchSize: 1}, nil)
	require.ErrorIs(t, err, ErrNoPoints)
}
