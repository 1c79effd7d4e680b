package data

import (
	"errors"
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/stat"
)

// ErrLengthMismatch is returned when points and labels differ in count.
var ErrLengthMismatch = errors.New("data: points and labels have different lengths")

// Dataset is an ordered collection of points with optional labels.
type Dataset struct {
	Points [][]float64
	Labels []int // nil for unlabeled data
}

// NewDataset wraps unlabeled points.
func NewDataset(points [][]float64) *Dataset {
	return &Dataset{Points: points}
}

// NewLabeledDataset pairs points with labels one to one.
func NewLabeledDataset(points [][]float64, labels []int) (*Dataset, error) {
	if len(points) != len(labels) {
		return nil, fmt.Errorf("%w: %d points, %d labels", ErrLengthMismatch, len(points), len(labels))
	}
	return &Dataset{Points: points, Labels: labels}, nil
}

// Len returns the number of samples.
func (d *Dataset) Len() int { return len(d.Points) }

// Labeled reports whether the dataset carries labels.
func (d *Dataset) Labeled() bool { return d.Labels != nil }

// Subset returns the samples at idx, in that order.
func (d *Dataset) Subset(idx []int) *Dataset {
	out := &Dataset{Points: make([][]float64, len(idx))}
	if d.Labeled() {
		out.Labels = make([]int, len(idx))
	}
	for i, k := range idx {
		out.Points[i] = d.Points[k]
		if d.Labeled() {
			out.Labels[i] = d.Labels[k]
		}
	}
	return out
}

// Split shuffles the sample indices with rng and cuts them at
// int(fraction*n): the first part is train, the rest validation.
func (d *Dataset) Split(fraction float64, rng *rand.Rand) (train, val *Dataset, err error) {
	if fraction < 0 || fraction > 1 {
		return nil, nil, fmt.Errorf("data: split fraction must be in [0, 1], got %g", fraction)
	}
	idx := rng.Perm(d.Len())
	cut := int(fraction * float64(len(idx)))
	return d.Subset(idx[:cut]), d.Subset(idx[cut:]), nil
}

// ColumnStats returns the per-column mean and population standard deviation.
func ColumnStats(points [][]float64) (mean, std []float64) {
	if len(points) == 0 {
		return nil, nil
	}
	cols := len(points[0])
	mean = make([]float64, cols)
	std = make([]float64, cols)
	col := make([]float64, len(points))
	for j := 0; j < cols; j++ {
		for i, p := range points {
			col[i] = p[j]
		}
		mean[j], std[j] = stat.PopMeanStdDev(col, nil)
	}
	return mean, std
}

// Normalize z-scores every column in place using population statistics and
// returns the statistics used.
func Normalize(points [][]float64) (mean, std []float64, err error) {
	mean, std = ColumnStats(points)
	for j, s := range std {
		if s == 0 {
			return nil, nil, fmt.Errorf("data: column %d has zero variance", j)
		}
	}
	for _, p := range points {
		if len(p) != len(mean) {
			return nil, nil, fmt.Errorf("data: ragged point of width %d, expected %d", len(p), len(mean))
		}
		for j := range p {
			p[j] = (p[j] - mean[j]) / std[j]
		}
	}
	return mean, std, nil
}

// ConditionalRings samples the labeled ring dataset, normalized, with its
// label table.
func ConditionalRings(n int, thickness float64, rng *rand.Rand) (*Dataset, *LabelTable, error) {
	points, colors, err := SampleRings(n, thickness, rng)
	if err != nil {
		return nil, nil, err
	}
	table := NewLabelTable(colors)
	labels, err := table.Encode(colors)
	if err != nil {
		return nil, nil, err
	}
	if _, _, err := Normalize(points); err != nil {
		return nil, nil, err
	}
	ds, err := NewLabeledDataset(points, labels)
	if err != nil {
		return nil, nil, err
	}
	return ds, table, nil
}

// UnconditionalRings samples the unlabeled ring dataset, normalized.
func UnconditionalRings(n int, thickness float64, rng *rand.Rand) (*Dataset, error) {
	points, err := SampleUnconditionalRings(n, thickness, rng)
	if err != nil {
		return nil, err
	}
	if _, _, err := Normalize(points); err != nil {
		return nil, err
	}
	return NewDataset(points), nil
}
