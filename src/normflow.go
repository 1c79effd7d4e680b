package flow

import (
	"fmt"
	"math/rand"
	"strings"
)

// LayerKind tags the variants of a flow stack layer.
type LayerKind int

const (
	KindAffine LayerKind = iota
	KindPermutation
)

func (k LayerKind) String() string {
	switch k {
	case KindAffine:
		return "affine"
	case KindPermutation:
		return "permutation"
	default:
		return fmt.Sprintf("LayerKind(%d)", int(k))
	}
}

// FlowLayer is one entry of a NormalizingFlow. Exactly one of Affine and
// Permutation is set, matching Kind.
type FlowLayer struct {
	Kind        LayerKind
	Affine      *AffineCoupling
	Permutation *Permutation
}

// NormalizingFlow is an ordered stack of affine couplings with a fixed
// random permutation between each consecutive pair.
type NormalizingFlow struct {
	cfg    NormFlowConfig
	layers []FlowLayer
}

// NewNormalizingFlow builds cfg.NumLayers couplings and cfg.NumLayers-1
// permutations, all drawn from rng.
func NewNormalizingFlow(cfg NormFlowConfig, rng *rand.Rand) (*NormalizingFlow, error) {
	if cfg.LatentDim%2 != 0 {
		return nil, fmt.Errorf("%w: coupling split needs an even latent dimension, got %d", ErrDimensionMismatch, cfg.LatentDim)
	}
	if err := ValidateNormFlowConfig(cfg); err != nil {
		return nil, err
	}

	nf := &NormalizingFlow{cfg: cfg}
	for i := 0; i < cfg.NumLayers; i++ {
		a, err := NewAffineCoupling(cfg, rng)
		if err != nil {
			return nil, err
		}
		a.index = len(nf.layers)
		nf.layers = append(nf.layers, FlowLayer{Kind: KindAffine, Affine: a})
		if i < cfg.NumLayers-1 {
			nf.layers = append(nf.layers, FlowLayer{Kind: KindPermutation, Permutation: RandomPermutation(cfg.LatentDim, rng)})
		}
	}
	return nf, nil
}

// Config returns the configuration the flow was built with.
func (nf *NormalizingFlow) Config() NormFlowConfig { return nf.cfg }

// Layers exposes the stack in forward order.
func (nf *NormalizingFlow) Layers() []FlowLayer { return nf.layers }

func (nf *NormalizingFlow) forward(z *tensor, visit func(i int, x *tensor)) (*tensor, error) {
	if err := checkWidth(z, nf.cfg.LatentDim, "NormalizingFlow", -1); err != nil {
		return nil, err
	}
	var err error
	for i, l := range nf.layers {
		switch l.Kind {
		case KindAffine:
			z, err = l.Affine.forward(z)
		case KindPermutation:
			z, err = l.Permutation.forward(z)
		}
		if err != nil {
			return nil, err
		}
		if visit != nil {
			visit(i, z)
		}
	}
	return z, nil
}

// inverseWithLogDet walks the stack in reverse. Each affine layer's log-det
// is taken on its input-side value, i.e. before that layer is inverted.
func (nf *NormalizingFlow) inverseWithLogDet(y *tensor, training bool, visit func(i int, x *tensor)) (*tensor, []float64, error) {
	if err := checkWidth(y, nf.cfg.LatentDim, "NormalizingFlow", -1); err != nil {
		return nil, nil, err
	}
	total := make([]float64, y.rows())
	for i := len(nf.layers) - 1; i >= 0; i-- {
		l := nf.layers[i]
		switch l.Kind {
		case KindAffine:
			x, ld, err := l.Affine.inverse(y, training)
			if err != nil {
				return nil, nil, err
			}
			for r, v := range ld {
				total[r] += v
			}
			y = x
		case KindPermutation:
			x, err := l.Permutation.inverse(y)
			if err != nil {
				return nil, nil, err
			}
			y = x
		}
		if visit != nil {
			visit(i, y)
		}
	}
	return y, total, nil
}

// backwardInverse propagates dL/dx and dL/dlogDet through the last
// training-mode inverse pass, accumulating parameter gradients.
func (nf *NormalizingFlow) backwardInverse(gradX *tensor, gradLogDet []float64) error {
	g := gradX
	var err error
	for _, l := range nf.layers {
		switch l.Kind {
		case KindAffine:
			g, err = l.Affine.backwardInverse(g, gradLogDet)
			if err != nil {
				return err
			}
		case KindPermutation:
			g = l.Permutation.backwardInverse(g)
		}
	}
	return nil
}

func (nf *NormalizingFlow) parameters() []*tensor {
	var params []*tensor
	for _, l := range nf.layers {
		if l.Kind == KindAffine {
			params = append(params, l.Affine.parameters()...)
		}
	}
	return params
}

func (nf *NormalizingFlow) gradients() []*tensor {
	var grads []*tensor
	for _, l := range nf.layers {
		if l.Kind == KindAffine {
			grads = append(grads, l.Affine.gradients()...)
		}
	}
	return grads
}

func (nf *NormalizingFlow) zeroGrad() {
	for _, l := range nf.layers {
		if l.Kind == KindAffine {
			l.Affine.zeroGrad()
		}
	}
}

// ParamCount returns the number of trainable scalars.
func (nf *NormalizingFlow) ParamCount() int {
	total := 0
	for _, l := range nf.layers {
		if l.Kind == KindAffine {
			total += l.Affine.ParamCount()
		}
	}
	return total
}

// Forward maps base-distribution points to data space.
func (nf *NormalizingFlow) Forward(z [][]float64) ([][]float64, error) {
	x, err := fromRows(z)
	if err != nil {
		return nil, err
	}
	y, err := nf.forward(x, nil)
	if err != nil {
		return nil, err
	}
	return y.toRows(), nil
}

// InverseWithLogDet maps data points back to the base distribution and
// returns log|det d(f^-1)/dy| per point.
func (nf *NormalizingFlow) InverseWithLogDet(y [][]float64) ([][]float64, []float64, error) {
	t, err := fromRows(y)
	if err != nil {
		return nil, nil, err
	}
	x, ld, err := nf.inverseWithLogDet(t, false, nil)
	if err != nil {
		return nil, nil, err
	}
	return x.toRows(), ld, nil
}

// LogProb returns log p(x) = log N(f^-1(x); 0, I) + log|det| per point.
func (nf *NormalizingFlow) LogProb(points [][]float64) ([]float64, error) {
	t, err := fromRows(points)
	if err != nil {
		return nil, err
	}
	x, ld, err := nf.inverseWithLogDet(t, false, nil)
	if err != nil {
		return nil, err
	}
	lp := standardNormalLogProb(x)
	for i := range lp {
		lp[i] += ld[i]
	}
	return lp, nil
}

// Sample draws n base points from rng and pushes them through the flow.
func (nf *NormalizingFlow) Sample(n int, rng *rand.Rand) ([][]float64, error) {
	if n <= 0 {
		return nil, ErrEmptyBatch
	}
	y, err := nf.forward(standardNormal(n, nf.cfg.LatentDim, rng), nil)
	if err != nil {
		return nil, err
	}
	return y.toRows(), nil
}

// ForwardTrajectory records z before the first layer and after every
// affine layer of the forward pass.
func (nf *NormalizingFlow) ForwardTrajectory(z [][]float64) (Trajectory, error) {
	x, err := fromRows(z)
	if err != nil {
		return nil, err
	}
	traj := Trajectory{x.toRows()}
	_, err = nf.forward(x, func(i int, t *tensor) {
		if nf.layers[i].Kind == KindAffine {
			traj = append(traj, t.toRows())
		}
	})
	if err != nil {
		return nil, err
	}
	return traj, nil
}

// InverseTrajectory records y before inversion and after every affine
// layer's inverse.
func (nf *NormalizingFlow) InverseTrajectory(y [][]float64) (Trajectory, error) {
	t, err := fromRows(y)
	if err != nil {
		return nil, err
	}
	traj := Trajectory{t.toRows()}
	_, _, err = nf.inverseWithLogDet(t, false, func(i int, x *tensor) {
		if nf.layers[i].Kind == KindAffine {
			traj = append(traj, x.toRows())
		}
	})
	if err != nil {
		return nil, err
	}
	return traj, nil
}

// Summary lists the stack in forward order.
func (nf *NormalizingFlow) Summary() string {
	var b strings.Builder
	b.WriteString("Flow Summary\n")
	b.WriteString("====================\n")
	for i, l := range nf.layers {
		switch l.Kind {
		case KindAffine:
			fmt.Fprintf(&b, "Layer %d: affine - %d params\n", i+1, l.Affine.ParamCount())
		case KindPermutation:
			fmt.Fprintf(&b, "Layer %d: permutation %v\n", i+1, l.Permutation.perm)
		}
	}
	b.WriteString("====================\n")
	fmt.Fprintf(&b, "Total parameters: %d\n", nf.ParamCount())
	return b.String()
}
