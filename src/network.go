package flow

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"
)

// Network is a sequential stack of layers. Coupling conditioners and the
// velocity field are both Networks.
type Network struct {
	layers     []Layer
	built      bool
	inputShape []int
}

// NetworkBuilder for fluent API
type NetworkBuilder struct {
	network *Network
	err     error
}

// NewNetwork creates a new network builder
func NewNetwork() *NetworkBuilder {
	return &NetworkBuilder{
		network: &Network{
			layers: make([]Layer, 0),
		},
	}
}

// AddLayer adds a layer to the network
func (n *NetworkBuilder) AddLayer(layer Layer) *NetworkBuilder {
	if n.err != nil {
		return n
	}
	n.network.layers = append(n.network.layers, layer)
	return n
}

// Build finalizes the network structure, initializing weights from rng.
func (n *NetworkBuilder) Build(inputShape []int, rng *rand.Rand) (*Network, error) {
	if n.err != nil {
		return nil, n.err
	}
	if len(n.network.layers) == 0 {
		return nil, errors.New("flow: network must have at least one layer")
	}
	if len(inputShape) == 0 {
		return nil, errors.New("flow: inputShape must be specified")
	}

	n.network.inputShape = inputShape

	currentShape := inputShape
	for i, layer := range n.network.layers {
		if err := layer.build(currentShape, rng); err != nil {
			return nil, errorf("layer %d (%s): %v", i, layer.name(), err)
		}
		if outShape := layer.outputShape(); outShape != nil {
			currentShape = outShape
		}
	}

	n.network.built = true
	return n.network, nil
}

// mlpConfig describes a plain fully connected network.
type mlpConfig struct {
	In, Hidden, Depth, Out int
	NegativeSlope          float64
	ZeroInitOutput         bool
}

// newMLP builds In -> Hidden (x Depth, LeakyReLU) -> Out (linear).
func newMLP(cfg mlpConfig, rng *rand.Rand) (*Network, error) {
	b := NewNetwork()
	for i := 0; i < cfg.Depth; i++ {
		b.AddLayer(Dense(cfg.Hidden).
			WithActivation(LeakyReLU(cfg.NegativeSlope)).
			WithInitializer(FanInUniform()).
			WithBiasInitializer(FanInUniform()).
			WithBias(true).
			Build())
	}

	out := Dense(cfg.Out).WithActivation(Linear()).WithBias(true)
	if cfg.ZeroInitOutput {
		out.WithInitializer(Zeros()).WithBiasInitializer(Zeros())
	} else {
		out.WithInitializer(FanInUniform()).WithBiasInitializer(FanInUniform())
	}
	b.AddLayer(out.Build())

	return b.Build([]int{cfg.In}, rng)
}

// forward runs every layer in order. With training=false nothing is cached.
func (n *Network) forward(x *tensor, training bool) (*tensor, error) {
	if !n.built {
		return nil, errors.New("flow: network must be built before use")
	}
	out := x
	var err error
	for _, layer := range n.layers {
		out, err = layer.forward(out, training)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// backward propagates grad through the cached forward pass and returns the
// gradient with respect to the network input.
func (n *Network) backward(grad *tensor) (*tensor, error) {
	var err error
	for i := len(n.layers) - 1; i >= 0; i-- {
		grad, err = n.layers[i].backward(grad)
		if err != nil {
			return nil, err
		}
	}
	return grad, nil
}

func (n *Network) parameters() []*tensor {
	var params []*tensor
	for _, layer := range n.layers {
		params = append(params, layer.parameters()...)
	}
	return params
}

func (n *Network) gradients() []*tensor {
	var grads []*tensor
	for _, layer := range n.layers {
		grads = append(grads, layer.gradients()...)
	}
	return grads
}

func (n *Network) zeroGrad() {
	for _, g := range n.gradients() {
		g.zero()
	}
}

// ParamCount returns the number of trainable scalars.
func (n *Network) ParamCount() int {
	total := 0
	for _, p := range n.parameters() {
		total += p.size()
	}
	return total
}

// Summary prints network architecture
func (n *Network) Summary() string {
	var b strings.Builder
	b.WriteString("Network Summary\n")
	b.WriteString("====================\n")

	totalParams := 0
	for i, layer := range n.layers {
		layerParams := 0
		for _, p := range layer.parameters() {
			layerParams += p.size()
		}
		totalParams += layerParams
		fmt.Fprintf(&b, "Layer %d: %s %v - %d params\n", i+1, layer.name(), layer.outputShape(), layerParams)
	}
	b.WriteString("====================\n")
	fmt.Fprintf(&b, "Total parameters: %d\n", totalParams)

	return b.String()
}
