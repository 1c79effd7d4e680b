package flow

import (
	"fmt"
	"math/rand"
)

// Field is a time-dependent velocity field over points. classes is nil for
// unconditional fields.
type Field interface {
	Velocity(points [][]float64, classes []int, t float64) ([][]float64, error)
}

// VelocityField predicts the flow-matching velocity at (point, time), and in
// the conditional variant also from a learned class embedding. The network
// input is [point, embedding, t].
type VelocityField struct {
	cfg       VelocityFieldConfig
	net       *Network
	embedding *EmbeddingLayer
}

// NewVelocityField builds the regressor (and embedding table when
// cfg.Conditional) with weights drawn from rng.
func NewVelocityField(cfg VelocityFieldConfig, rng *rand.Rand) (*VelocityField, error) {
	if err := ValidateVelocityFieldConfig(cfg); err != nil {
		return nil, err
	}

	vf := &VelocityField{cfg: cfg}
	in := cfg.LatentDim + 1
	if cfg.Conditional {
		emb, ok := Embedding(cfg.NumClasses, cfg.EmbeddingDim).
			WithInitializer(RandomNormal(0, 1)).
			Build().(*EmbeddingLayer)
		if !ok {
			return nil, errorf("unexpected embedding layer type")
		}
		if err := emb.build([]int{1}, rng); err != nil {
			return nil, err
		}
		vf.embedding = emb
		in += cfg.EmbeddingDim
	}

	net, err := newMLP(mlpConfig{
		In:            in,
		Hidden:        cfg.HiddenUnits,
		Depth:         cfg.HiddenLayers,
		Out:           cfg.LatentDim,
		NegativeSlope: cfg.NegativeSlope,
	}, rng)
	if err != nil {
		return nil, errorf("velocity net: %v", err)
	}
	vf.net = net
	return vf, nil
}

// Config returns the configuration the field was built with.
func (vf *VelocityField) Config() VelocityFieldConfig { return vf.cfg }

// Conditional reports whether the field takes class labels.
func (vf *VelocityField) Conditional() bool { return vf.cfg.Conditional }

// inputs assembles [y, emb(c), t] for a batch.
func (vf *VelocityField) inputs(y *tensor, classes []int, t []float64, training bool) (*tensor, error) {
	if err := checkWidth(y, vf.cfg.LatentDim, "VelocityField", -1); err != nil {
		return nil, err
	}
	if len(t) != y.rows() {
		return nil, fmt.Errorf("%w: %d times for %d points", ErrDimensionMismatch, len(t), y.rows())
	}
	tt := newTensor(y.rows(), 1)
	copy(tt.data, t)

	if !vf.cfg.Conditional {
		return concatCols(y, tt), nil
	}
	if len(classes) != y.rows() {
		return nil, fmt.Errorf("%w: conditional field got %d classes for %d points", ErrDimensionMismatch, len(classes), y.rows())
	}
	emb, err := vf.embedding.forward(classTensor(classes), training)
	if err != nil {
		return nil, err
	}
	return concatCols(y, emb, tt), nil
}

func (vf *VelocityField) forward(y *tensor, classes []int, t []float64, training bool) (*tensor, error) {
	in, err := vf.inputs(y, classes, t, training)
	if err != nil {
		return nil, err
	}
	return vf.net.forward(in, training)
}

// backward accumulates parameter gradients for the last training forward.
func (vf *VelocityField) backward(gradV *tensor) error {
	gradIn, err := vf.net.backward(gradV)
	if err != nil {
		return err
	}
	if vf.cfg.Conditional {
		d := vf.cfg.LatentDim
		if _, err := vf.embedding.backward(sliceCols(gradIn, d, d+vf.cfg.EmbeddingDim)); err != nil {
			return err
		}
	}
	return nil
}

func (vf *VelocityField) parameters() []*tensor {
	params := vf.net.parameters()
	if vf.embedding != nil {
		params = append(params, vf.embedding.parameters()...)
	}
	return params
}

func (vf *VelocityField) gradients() []*tensor {
	grads := vf.net.gradients()
	if vf.embedding != nil {
		grads = append(grads, vf.embedding.gradients()...)
	}
	return grads
}

func (vf *VelocityField) zeroGrad() {
	vf.net.zeroGrad()
	if vf.embedding != nil {
		vf.embedding.gradW.zero()
	}
}

// ParamCount returns the number of trainable scalars.
func (vf *VelocityField) ParamCount() int {
	total := vf.net.ParamCount()
	if vf.embedding != nil {
		total += vf.embedding.weights.size()
	}
	return total
}

// Velocity evaluates the field for every point at a shared time t.
func (vf *VelocityField) Velocity(points [][]float64, classes []int, t float64) ([][]float64, error) {
	y, err := fromRows(points)
	if err != nil {
		return nil, err
	}
	ts := make([]float64, y.rows())
	for i := range ts {
		ts[i] = t
	}
	v, err := vf.forward(y, classes, ts, false)
	if err != nil {
		return nil, err
	}
	return v.toRows(), nil
}

// Embed returns the embedding vector of class k.
func (vf *VelocityField) Embed(k int) ([]float64, error) {
	if !vf.cfg.Conditional {
		return nil, errorf("unconditional field has no class embedding")
	}
	return vf.embedding.row(k)
}

// Summary describes the regressor layers.
func (vf *VelocityField) Summary() string {
	s := vf.net.Summary()
	if vf.embedding != nil {
		s = fmt.Sprintf("Embedding: %d classes x %d dims\n", vf.cfg.NumClasses, vf.cfg.EmbeddingDim) + s
	}
	return s
}
