package flow

import "math"

// Metric computes evaluation metrics over paired point batches
type Metric interface {
	reset()
	update(pred, target *tensor)
	result() float64
	name() string
}

// SquaredDistanceMetric - mean over points of the squared Euclidean distance
type SquaredDistanceMetric struct {
	sum   float64
	count int
}

func SquaredDistance() Metric {
	return &SquaredDistanceMetric{}
}

func (m *SquaredDistanceMetric) reset() {
	m.sum = 0
	m.count = 0
}

func (m *SquaredDistanceMetric) update(pred, target *tensor) {
	for i := range pred.data {
		diff := pred.data[i] - target.data[i]
		m.sum += diff * diff
	}
	m.count += pred.rows()
}

func (m *SquaredDistanceMetric) result() float64 {
	if m.count == 0 {
		return 0
	}
	return m.sum / float64(m.count)
}

func (m *SquaredDistanceMetric) name() string { return "squared_distance" }

// DisplacementMetric - mean over points of the Euclidean distance
type DisplacementMetric struct {
	sum   float64
	count int
}

func Displacement() Metric {
	return &DisplacementMetric{}
}

func (m *DisplacementMetric) reset() {
	m.sum = 0
	m.count = 0
}

func (m *DisplacementMetric) update(pred, target *tensor) {
	cols := pred.cols()
	for r := 0; r < pred.rows(); r++ {
		s := 0.0
		for j := 0; j < cols; j++ {
			d := pred.data[r*cols+j] - target.data[r*cols+j]
			s += d * d
		}
		m.sum += math.Sqrt(s)
	}
	m.count += pred.rows()
}

func (m *DisplacementMetric) result() float64 {
	if m.count == 0 {
		return 0
	}
	return m.sum / float64(m.count)
}

func (m *DisplacementMetric) name() string { return "displacement" }

// SweepDeviation scores every sweep result against the one with the
// smallest step size, returning name -> one value per result.
func SweepDeviation(results []SweepResult) (map[string][]float64, error) {
	if len(results) == 0 {
		return nil, ErrEmptyBatch
	}
	ref := 0
	for i, r := range results {
		if r.StepSize < results[ref].StepSize {
			ref = i
		}
	}
	target, err := fromRows(results[ref].Points)
	if err != nil {
		return nil, err
	}

	metrics := []Metric{Displacement(), SquaredDistance()}
	out := make(map[string][]float64, len(metrics))
	for _, r := range results {
		pred, err := fromRows(r.Points)
		if err != nil {
			return nil, err
		}
		if pred.rows() != target.rows() || pred.cols() != target.cols() {
			return nil, ErrDimensionMismatch
		}
		for _, m := range metrics {
			m.reset()
			m.update(pred, target)
			out[m.name()] = append(out[m.name()], m.result())
		}
	}
	return out, nil
}
