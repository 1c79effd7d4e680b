package flow

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// tensor is the engine's row-major buffer - internal only, not exposed to users.
// Batches are always [rows, cols].
type tensor struct {
	data  []float64
	shape []int
}

func newTensor(shape ...int) *tensor {
	size := 1
	for _, s := range shape {
		size *= s
	}
	return &tensor{
		data:  make([]float64, size),
		shape: shape,
	}
}

// fromRows copies a batch of equal-width rows into a tensor.
func fromRows(rows [][]float64) (*tensor, error) {
	if len(rows) == 0 {
		return nil, ErrEmptyBatch
	}
	cols := len(rows[0])
	t := newTensor(len(rows), cols)
	for i, r := range rows {
		if len(r) != cols {
			return nil, fmt.Errorf("%w: row %d has %d values, expected %d", ErrDimensionMismatch, i, len(r), cols)
		}
		copy(t.data[i*cols:], r)
	}
	return t, nil
}

// toRows copies the tensor out as [][]float64.
func (t *tensor) toRows() [][]float64 {
	rows, cols := t.shape[0], t.shape[1]
	out := make([][]float64, rows)
	for i := range out {
		out[i] = make([]float64, cols)
		copy(out[i], t.data[i*cols:(i+1)*cols])
	}
	return out
}

func (t *tensor) size() int {
	return len(t.data)
}

func (t *tensor) rows() int { return t.shape[0] }
func (t *tensor) cols() int { return t.shape[1] }

func (t *tensor) fill(value float64) {
	for i := range t.data {
		t.data[i] = value
	}
}

func (t *tensor) fillRandNorm(mean, std float64, rng *rand.Rand) {
	for i := range t.data {
		t.data[i] = rng.NormFloat64()*std + mean
	}
}

func (t *tensor) fillRandUniform(low, high float64, rng *rand.Rand) {
	for i := range t.data {
		t.data[i] = rng.Float64()*(high-low) + low
	}
}

func (t *tensor) zero() {
	clear(t.data)
}

func (t *tensor) clone() *tensor {
	nt := newTensor(t.shape...)
	copy(nt.data, t.data)
	return nt
}

// dense views the tensor as a gonum matrix sharing the same backing slice.
func (t *tensor) dense() *mat.Dense {
	return mat.NewDense(t.shape[0], t.shape[1], t.data)
}

// out = a @ b
func matmul(a, b, out *tensor) {
	out.dense().Mul(a.dense(), b.dense())
}

// out = a^T @ b
func matmulTransA(a, b, out *tensor) {
	out.dense().Mul(a.dense().T(), b.dense())
}

// out = a @ b^T
func matmulTransB(a, b, out *tensor) {
	out.dense().Mul(a.dense(), b.dense().T())
}

// addRowVec adds the vector b to every row of a.
func addRowVec(a *tensor, b *tensor) {
	cols := a.cols()
	for i := range a.data {
		a.data[i] += b.data[i%cols]
	}
}

// accumulate adds src into dst element-wise.
func accumulate(dst, src *tensor) {
	for i := range dst.data {
		dst.data[i] += src.data[i]
	}
}

// sumAxis0 accumulates column sums of a into out.
func sumAxis0(a *tensor, out *tensor) {
	rows := a.shape[0]
	cols := a.shape[1]
	for j := 0; j < cols; j++ {
		sum := 0.0
		for i := 0; i < rows; i++ {
			sum += a.data[i*cols+j]
		}
		out.data[j] += sum
	}
}

// sliceCols returns columns [from, to) of a as a new tensor.
func sliceCols(a *tensor, from, to int) *tensor {
	rows, cols := a.rows(), a.cols()
	out := newTensor(rows, to-from)
	for i := 0; i < rows; i++ {
		copy(out.data[i*(to-from):(i+1)*(to-from)], a.data[i*cols+from:i*cols+to])
	}
	return out
}

// concatCols joins tensors with equal row counts side by side.
func concatCols(parts ...*tensor) *tensor {
	rows := parts[0].rows()
	width := 0
	for _, p := range parts {
		width += p.cols()
	}
	out := newTensor(rows, width)
	for i := 0; i < rows; i++ {
		off := i * width
		for _, p := range parts {
			c := p.cols()
			copy(out.data[off:off+c], p.data[i*c:(i+1)*c])
			off += c
		}
	}
	return out
}

// gatherCols builds out[:, j] = a[:, idx[j]].
func gatherCols(a *tensor, idx []int) *tensor {
	rows, cols := a.rows(), a.cols()
	out := newTensor(rows, len(idx))
	for i := 0; i < rows; i++ {
		for j, k := range idx {
			out.data[i*len(idx)+j] = a.data[i*cols+k]
		}
	}
	return out
}

// scatterCols is the adjoint of gatherCols: out[:, idx[j]] += a[:, j].
func scatterCols(a *tensor, idx []int, width int) *tensor {
	rows := a.rows()
	out := newTensor(rows, width)
	for i := 0; i < rows; i++ {
		for j, k := range idx {
			out.data[i*width+k] += a.data[i*len(idx)+j]
		}
	}
	return out
}

func mulScalar(a *tensor, s float64) {
	for i := range a.data {
		a.data[i] *= s
	}
}

func l2Norm(a *tensor) float64 {
	sum := 0.0
	for _, v := range a.data {
		sum += v * v
	}
	return math.Sqrt(sum)
}
