package flow

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStreamingMean(t *testing.T) {
	cases := []struct {
		name  string
		sizes []int
		means []float64
		want  float64
	}{
		{"ragged final batch", []int{3, 3, 2}, []float64{1, 2, 4}, 2.125},
		{"single batch", []int{5}, []float64{-1.5}, -1.5},
		{"equal batches", []int{4, 4}, []float64{0, 1}, 0.5},
		{"empty batch ignored", []int{2, 0, 2}, []float64{1, 100, 3}, 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var s StreamingMean
			total := 0
			for i := range tc.sizes {
				s.Update(tc.means[i], tc.sizes[i])
				total += tc.sizes[i]
			}
			assert.InDelta(t, tc.want, s.Mean(), 1e-12)
			assert.Equal(t, total, s.Count())
		})
	}
}

func TestStreamingMeanZeroValue(t *testing.T) {
	var s StreamingMean
	assert.Zero(t, s.Mean())
	assert.Zero(t, s.Count())
}
