package flow

import (
	"errors"
	"fmt"
	"math/rand"
)

// Layer is the base interface for all layers
type Layer interface {
	forward(input *tensor, training bool) (*tensor, error)
	backward(gradOutput *tensor) (*tensor, error)
	parameters() []*tensor
	gradients() []*tensor
	build(inputShape []int, rng *rand.Rand) error
	outputShape() []int
	name() string
}

// DenseLayer - fully connected layer
//
// Gradients accumulate across backward calls and are only cleared by
// zeroGrad. Any batch averaging belongs to the loss gradient.
type DenseLayer struct {
	units       int
	activation  Activation
	initializer Initializer
	biasInit    Initializer
	useBias     bool
	weights     *tensor
	bias        *tensor
	input       *tensor
	preAct      *tensor
	gradW       *tensor
	gradB       *tensor
	inputShape  []int
	built       bool
}

// DenseBuilder for fluent API
type DenseBuilder struct {
	layer *DenseLayer
}

func Dense(units int) *DenseBuilder {
	return &DenseBuilder{
		layer: &DenseLayer{
			units: units,
		},
	}
}

func (b *DenseBuilder) WithActivation(act Activation) *DenseBuilder {
	b.layer.activation = act
	return b
}

func (b *DenseBuilder) WithInitializer(init Initializer) *DenseBuilder {
	b.layer.initializer = init
	return b
}

func (b *DenseBuilder) WithBiasInitializer(init Initializer) *DenseBuilder {
	b.layer.biasInit = init
	return b
}

func (b *DenseBuilder) WithBias(useBias bool) *DenseBuilder {
	b.layer.useBias = useBias
	return b
}

func (b *DenseBuilder) Build() Layer {
	return b.layer
}

func (d *DenseLayer) build(inputShape []int, rng *rand.Rand) error {
	if len(inputShape) == 0 {
		return errors.New("flow: DenseLayer requires non-empty input shape")
	}
	if d.initializer == nil {
		return errors.New("flow: DenseLayer requires initializer - use WithInitializer()")
	}
	if d.activation == nil {
		return errors.New("flow: DenseLayer requires activation - use WithActivation()")
	}
	if d.useBias && d.biasInit == nil {
		return errors.New("flow: DenseLayer with bias requires bias initializer - use WithBiasInitializer()")
	}

	fanIn := inputShape[len(inputShape)-1]
	d.inputShape = inputShape

	d.weights = newTensor(fanIn, d.units)
	d.initializer.initialize(d.weights, fanIn, d.units, rng)
	d.gradW = newTensor(fanIn, d.units)

	if d.useBias {
		d.bias = newTensor(1, d.units)
		d.biasInit.initialize(d.bias, fanIn, d.units, rng)
		d.gradB = newTensor(1, d.units)
	}

	d.built = true
	return nil
}

func (d *DenseLayer) forward(input *tensor, training bool) (*tensor, error) {
	if !d.built {
		return nil, errors.New("flow: layer not built - call build() first")
	}
	if input.cols() != d.weights.rows() {
		return nil, fmt.Errorf("%w: dense layer expects %d inputs, got %d", ErrDimensionMismatch, d.weights.rows(), input.cols())
	}

	preAct := newTensor(input.rows(), d.units)
	out := newTensor(input.rows(), d.units)

	// Y = X @ W + b
	matmul(input, d.weights, preAct)
	if d.useBias {
		addRowVec(preAct, d.bias)
	}
	d.activation.forward(preAct, out)

	if training {
		d.input = input
		d.preAct = preAct
	}
	return out, nil
}

func (d *DenseLayer) backward(gradOutput *tensor) (*tensor, error) {
	if d.input == nil {
		return nil, errors.New("flow: backward called before forward")
	}

	gradPreAct := newTensor(gradOutput.shape...)
	d.activation.backward(d.preAct, gradOutput, gradPreAct)

	// dL/dW += X^T @ dL/dY
	gw := newTensor(d.gradW.shape...)
	matmulTransA(d.input, gradPreAct, gw)
	accumulate(d.gradW, gw)

	if d.useBias {
		sumAxis0(gradPreAct, d.gradB)
	}

	// dL/dX = dL/dY @ W^T
	gradInput := newTensor(d.input.shape...)
	matmulTransB(gradPreAct, d.weights, gradInput)

	d.input = nil
	d.preAct = nil
	return gradInput, nil
}

func (d *DenseLayer) parameters() []*tensor {
	if d.useBias {
		return []*tensor{d.weights, d.bias}
	}
	return []*tensor{d.weights}
}

func (d *DenseLayer) gradients() []*tensor {
	if d.useBias {
		return []*tensor{d.gradW, d.gradB}
	}
	return []*tensor{d.gradW}
}

func (d *DenseLayer) outputShape() []int {
	return []int{d.units}
}

func (d *DenseLayer) name() string { return "dense" }
