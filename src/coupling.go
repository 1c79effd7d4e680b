package flow

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
)

// =============================================================================
// AFFINE COUPLING
// y = [x_l, exp(s(x_l)) * x_r + b(x_l)]
// =============================================================================

// AffineCoupling splits a point into left and right halves and scales and
// shifts the right half by functions of the left half. Inverse and Jacobian
// are closed form because the left half passes through unchanged.
type AffineCoupling struct {
	dim   int
	left  int
	clamp float64
	index int // position in the owning stack, -1 if standalone

	logScale *Network
	shift    *Network

	// inverse-pass cache for backwardInverse
	rawS   *tensor
	expNeg *tensor
	outR   *tensor
}

// NewAffineCoupling builds one coupling layer from the conditioner settings
// in cfg. Only even LatentDim is accepted.
func NewAffineCoupling(cfg NormFlowConfig, rng *rand.Rand) (*AffineCoupling, error) {
	if cfg.LatentDim < 2 || cfg.LatentDim%2 != 0 {
		return nil, fmt.Errorf("%w: coupling split needs an even latent dimension, got %d", ErrDimensionMismatch, cfg.LatentDim)
	}
	if err := ValidateNormFlowConfig(cfg); err != nil {
		return nil, err
	}

	left := cfg.LatentDim / 2
	right := cfg.LatentDim - left
	net := mlpConfig{
		In:             left,
		Hidden:         cfg.HiddenUnits,
		Depth:          cfg.HiddenLayers,
		Out:            right,
		NegativeSlope:  cfg.NegativeSlope,
		ZeroInitOutput: cfg.ZeroInitOutput,
	}

	logScale, err := newMLP(net, rng)
	if err != nil {
		return nil, errorf("coupling log-scale net: %v", err)
	}
	shift, err := newMLP(net, rng)
	if err != nil {
		return nil, errorf("coupling shift net: %v", err)
	}

	return &AffineCoupling{
		dim:      cfg.LatentDim,
		left:     left,
		clamp:    cfg.LogScaleClamp,
		index:    -1,
		logScale: logScale,
		shift:    shift,
	}, nil
}

// conditioners evaluates log s and b on the left half. raw is the
// unclamped log-scale output.
func (a *AffineCoupling) conditioners(xl *tensor, training bool) (s, raw, b *tensor, err error) {
	raw, err = a.logScale.forward(xl, training)
	if err != nil {
		return nil, nil, nil, err
	}
	b, err = a.shift.forward(xl, training)
	if err != nil {
		return nil, nil, nil, err
	}
	s = raw
	if a.clamp > 0 {
		s = newTensor(raw.shape...)
		for i, v := range raw.data {
			s.data[i] = a.clamp * math.Tanh(v/a.clamp)
		}
	}
	return s, raw, b, nil
}

func (a *AffineCoupling) forward(x *tensor) (*tensor, error) {
	if err := checkWidth(x, a.dim, "AffineCoupling", a.index); err != nil {
		return nil, err
	}
	xl := sliceCols(x, 0, a.left)
	xr := sliceCols(x, a.left, a.dim)

	s, _, b, err := a.conditioners(xl, false)
	if err != nil {
		return nil, err
	}
	for i := range xr.data {
		xr.data[i] = math.Exp(s.data[i])*xr.data[i] + b.data[i]
	}

	y := concatCols(xl, xr)
	if err := checkFinite(y, "AffineCoupling", "forward", a.index); err != nil {
		return nil, err
	}
	return y, nil
}

// inverse undoes forward on y and returns -sum(log s) per row, both from a
// single evaluation of the conditioners on y's left half.
func (a *AffineCoupling) inverse(y *tensor, training bool) (*tensor, []float64, error) {
	if err := checkWidth(y, a.dim, "AffineCoupling", a.index); err != nil {
		return nil, nil, err
	}
	yl := sliceCols(y, 0, a.left)
	yr := sliceCols(y, a.left, a.dim)

	s, raw, b, err := a.conditioners(yl, training)
	if err != nil {
		return nil, nil, err
	}

	right := a.dim - a.left
	logDet := make([]float64, y.rows())
	expNeg := newTensor(s.shape...)
	for i := range yr.data {
		expNeg.data[i] = math.Exp(-s.data[i])
		yr.data[i] = (yr.data[i] - b.data[i]) * expNeg.data[i]
		logDet[i/right] -= s.data[i]
	}

	x := concatCols(yl, yr)
	if err := checkFinite(x, "AffineCoupling", "inverse", a.index); err != nil {
		return nil, nil, err
	}

	if training {
		a.rawS = raw
		a.expNeg = expNeg
		a.outR = yr
	}
	return x, logDet, nil
}

// logInverseJacobianDet returns -sum(log s(y_l)) per row.
func (a *AffineCoupling) logInverseJacobianDet(y *tensor) ([]float64, error) {
	if err := checkWidth(y, a.dim, "AffineCoupling", a.index); err != nil {
		return nil, err
	}
	s, _, _, err := a.conditioners(sliceCols(y, 0, a.left), false)
	if err != nil {
		return nil, err
	}
	right := a.dim - a.left
	logDet := make([]float64, y.rows())
	for i, v := range s.data {
		logDet[i/right] -= v
	}
	return logDet, nil
}

// backwardInverse takes dL/dx for the output of the last training-mode
// inverse and dL/dlogDet per row, accumulates conditioner gradients and
// returns dL/dy.
func (a *AffineCoupling) backwardInverse(gradX *tensor, gradLogDet []float64) (*tensor, error) {
	if a.rawS == nil {
		return nil, errors.New("flow: AffineCoupling backward called before inverse")
	}
	right := a.dim - a.left
	gl := sliceCols(gradX, 0, a.left)
	gr := sliceCols(gradX, a.left, a.dim)

	gradYR := newTensor(gr.shape...)
	gradB := newTensor(gr.shape...)
	gradS := newTensor(gr.shape...)
	for i, g := range gr.data {
		e := a.expNeg.data[i]
		gradYR.data[i] = g * e
		gradB.data[i] = -g * e
		ds := -g*a.outR.data[i] - gradLogDet[i/right]
		if a.clamp > 0 {
			th := math.Tanh(a.rawS.data[i] / a.clamp)
			ds *= 1 - th*th
		}
		gradS.data[i] = ds
	}

	fromS, err := a.logScale.backward(gradS)
	if err != nil {
		return nil, err
	}
	fromB, err := a.shift.backward(gradB)
	if err != nil {
		return nil, err
	}
	accumulate(gl, fromS)
	accumulate(gl, fromB)

	a.rawS, a.expNeg, a.outR = nil, nil, nil
	return concatCols(gl, gradYR), nil
}

func (a *AffineCoupling) parameters() []*tensor {
	return append(a.logScale.parameters(), a.shift.parameters()...)
}

func (a *AffineCoupling) gradients() []*tensor {
	return append(a.logScale.gradients(), a.shift.gradients()...)
}

func (a *AffineCoupling) zeroGrad() {
	a.logScale.zeroGrad()
	a.shift.zeroGrad()
}

// ParamCount returns the number of trainable scalars in both networks.
func (a *AffineCoupling) ParamCount() int {
	return a.logScale.ParamCount() + a.shift.ParamCount()
}

// Forward applies the coupling to a batch of points.
func (a *AffineCoupling) Forward(points [][]float64) ([][]float64, error) {
	x, err := fromRows(points)
	if err != nil {
		return nil, err
	}
	y, err := a.forward(x)
	if err != nil {
		return nil, err
	}
	return y.toRows(), nil
}

// Inverse undoes Forward on a batch of points.
func (a *AffineCoupling) Inverse(points [][]float64) ([][]float64, error) {
	y, err := fromRows(points)
	if err != nil {
		return nil, err
	}
	x, _, err := a.inverse(y, false)
	if err != nil {
		return nil, err
	}
	return x.toRows(), nil
}

// LogInverseJacobianDet returns log|det d(inverse)/dy| for every point.
func (a *AffineCoupling) LogInverseJacobianDet(points [][]float64) ([]float64, error) {
	y, err := fromRows(points)
	if err != nil {
		return nil, err
	}
	return a.logInverseJacobianDet(y)
}

// Split reports the left and right widths.
func (a *AffineCoupling) Split() (left, right int) {
	return a.left, a.dim - a.left
}
