package flow

import (
	"errors"
	"fmt"
	"math/rand"
)

// =============================================================================
// EMBEDDING LAYER
// Maps class indices to dense vectors (lookup table)
// =============================================================================

type EmbeddingLayer struct {
	numClasses  int
	embedDim    int
	initializer Initializer

	weights  *tensor // [numClasses, embedDim]
	gradW    *tensor
	inputIdx []int // Cached input indices for backward
	built    bool
}

type EmbeddingBuilder struct {
	layer *EmbeddingLayer
}

// Embedding creates an embedding layer
// Input: class indices [batch, 1] (stored as float64)
// Output: dense vectors [batch, embedDim]
func Embedding(numClasses, embedDim int) *EmbeddingBuilder {
	return &EmbeddingBuilder{
		layer: &EmbeddingLayer{
			numClasses: numClasses,
			embedDim:   embedDim,
		},
	}
}

func (b *EmbeddingBuilder) WithInitializer(init Initializer) *EmbeddingBuilder {
	b.layer.initializer = init
	return b
}

func (b *EmbeddingBuilder) Build() Layer {
	return b.layer
}

func (e *EmbeddingLayer) build(inputShape []int, rng *rand.Rand) error {
	if e.numClasses <= 0 || e.embedDim <= 0 {
		return errorf("Embedding needs positive class count and width, got %d and %d", e.numClasses, e.embedDim)
	}
	if e.initializer == nil {
		e.initializer = RandomNormal(0, 1)
	}

	e.weights = newTensor(e.numClasses, e.embedDim)
	e.initializer.initialize(e.weights, e.numClasses, e.embedDim, rng)
	e.gradW = newTensor(e.numClasses, e.embedDim)
	e.built = true
	return nil
}

// classTensor packs class indices as a [batch, 1] input for the layer.
func classTensor(classes []int) *tensor {
	t := newTensor(len(classes), 1)
	for i, c := range classes {
		t.data[i] = float64(c)
	}
	return t
}

func (e *EmbeddingLayer) indices(input *tensor) ([]int, error) {
	idx := make([]int, input.rows())
	for i := range idx {
		v := input.data[i*input.cols()]
		k := int(v)
		if float64(k) != v || k < 0 || k >= e.numClasses {
			return nil, &FlowError{
				Component:    "Embedding",
				ErrorType:    "index out of range",
				LayerIndex:   -1,
				Phase:        "forward",
				ExpectedInfo: fmt.Sprintf("integer class in [0, %d)", e.numClasses),
				Cause:        fmt.Sprintf("row %d has class %v", i, v),
				Err:          ErrClassOutOfRange,
			}
		}
		idx[i] = k
	}
	return idx, nil
}

func (e *EmbeddingLayer) forward(input *tensor, training bool) (*tensor, error) {
	if !e.built {
		return nil, errors.New("flow: Embedding layer not built")
	}

	idx, err := e.indices(input)
	if err != nil {
		return nil, err
	}

	output := newTensor(len(idx), e.embedDim)
	for b, k := range idx {
		copy(output.data[b*e.embedDim:(b+1)*e.embedDim], e.weights.data[k*e.embedDim:(k+1)*e.embedDim])
	}

	if training {
		e.inputIdx = idx
	}
	return output, nil
}

func (e *EmbeddingLayer) backward(gradOutput *tensor) (*tensor, error) {
	if e.inputIdx == nil {
		return nil, errors.New("flow: backward called before forward")
	}

	// Sparse update: only rows that were looked up receive gradient
	for b, k := range e.inputIdx {
		for d := 0; d < e.embedDim; d++ {
			e.gradW.data[k*e.embedDim+d] += gradOutput.data[b*e.embedDim+d]
		}
	}
	e.inputIdx = nil

	// Indices are not differentiable
	return nil, nil
}

// row returns a copy of the embedding vector for class k.
func (e *EmbeddingLayer) row(k int) ([]float64, error) {
	if k < 0 || k >= e.numClasses {
		return nil, fmt.Errorf("%w: class %d not in [0, %d)", ErrClassOutOfRange, k, e.numClasses)
	}
	out := make([]float64, e.embedDim)
	copy(out, e.weights.data[k*e.embedDim:(k+1)*e.embedDim])
	return out, nil
}

func (e *EmbeddingLayer) parameters() []*tensor {
	return []*tensor{e.weights}
}

func (e *EmbeddingLayer) gradients() []*tensor {
	return []*tensor{e.gradW}
}

func (e *EmbeddingLayer) outputShape() []int {
	return []int{e.embedDim}
}

func (e *EmbeddingLayer) name() string { return "embedding" }
