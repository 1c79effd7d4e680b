package flow

import "math"

// Optimizer updates network parameters
type Optimizer interface {
	init(params []*tensor)
	step(params []*tensor, grads []*tensor)
	setLR(lr float64)
	learningRate() float64
	name() string
}

// AdamOptimizer - Adaptive Moment Estimation
type AdamOptimizer struct {
	LR          float64
	Beta1       float64
	Beta2       float64
	Epsilon     float64
	WeightDecay float64
	AMSGrad     bool
	m           []*tensor
	v           []*tensor
	vMax        []*tensor
	t           int
	initialized bool
}

// AdamConfig - ALL fields required
type AdamConfig struct {
	LR          float64
	Beta1       float64
	Beta2       float64
	Epsilon     float64
	WeightDecay float64
	AMSGrad     bool
}

// DefaultAdamConfig returns the usual Adam constants with the given learning rate.
func DefaultAdamConfig(lr float64) AdamConfig {
	return AdamConfig{LR: lr, Beta1: 0.9, Beta2: 0.999, Epsilon: 1e-8}
}

// ValidateAdamConfig checks all required fields are set
func ValidateAdamConfig(cfg AdamConfig) error {
	if cfg.LR <= 0 {
		return errorf("Adam LR must be > 0, got %g", cfg.LR)
	}
	if cfg.Beta1 < 0 || cfg.Beta1 >= 1 {
		return errorf("Adam Beta1 must be in [0, 1), got %g", cfg.Beta1)
	}
	if cfg.Beta2 < 0 || cfg.Beta2 >= 1 {
		return errorf("Adam Beta2 must be in [0, 1), got %g", cfg.Beta2)
	}
	if cfg.Epsilon <= 0 {
		return errorf("Adam Epsilon must be > 0, got %g", cfg.Epsilon)
	}
	if cfg.WeightDecay < 0 {
		return errorf("Adam WeightDecay must be >= 0, got %g", cfg.WeightDecay)
	}
	return nil
}

func Adam(config AdamConfig) Optimizer {
	return &AdamOptimizer{
		LR:          config.LR,
		Beta1:       config.Beta1,
		Beta2:       config.Beta2,
		Epsilon:     config.Epsilon,
		WeightDecay: config.WeightDecay,
		AMSGrad:     config.AMSGrad,
	}
}

func (a *AdamOptimizer) init(params []*tensor) {
	a.m = make([]*tensor, len(params))
	a.v = make([]*tensor, len(params))
	if a.AMSGrad {
		a.vMax = make([]*tensor, len(params))
	}
	for i, p := range params {
		a.m[i] = newTensor(p.shape...)
		a.v[i] = newTensor(p.shape...)
		if a.AMSGrad {
			a.vMax[i] = newTensor(p.shape...)
		}
	}
	a.t = 0
	a.initialized = true
}

func (a *AdamOptimizer) step(params []*tensor, grads []*tensor) {
	if !a.initialized {
		a.init(params)
	}
	a.t++
	bc1 := 1 - math.Pow(a.Beta1, float64(a.t))
	bc2 := 1 - math.Pow(a.Beta2, float64(a.t))

	for i, p := range params {
		g := grads[i]
		m := a.m[i]
		v := a.v[i]

		for j := range p.data {
			grad := g.data[j]
			if a.WeightDecay != 0 {
				grad += a.WeightDecay * p.data[j]
			}
			m.data[j] = a.Beta1*m.data[j] + (1-a.Beta1)*grad
			v.data[j] = a.Beta2*v.data[j] + (1-a.Beta2)*grad*grad

			mHat := m.data[j] / bc1
			vHat := v.data[j] / bc2

			if a.AMSGrad {
				if vHat > a.vMax[i].data[j] {
					a.vMax[i].data[j] = vHat
				}
				vHat = a.vMax[i].data[j]
			}

			p.data[j] -= a.LR * mHat / (math.Sqrt(vHat) + a.Epsilon)
		}
	}
}

func (a *AdamOptimizer) setLR(lr float64)      { a.LR = lr }
func (a *AdamOptimizer) learningRate() float64 { return a.LR }
func (a *AdamOptimizer) name() string          { return "adam" }

// GradientClipConfig for gradient clipping
type GradientClipConfig struct {
	Mode     string // "norm", "value", or "none"
	MaxNorm  float64
	MaxValue float64
}

// ValidateGradientClipConfig checks the clip mode and its bound.
func ValidateGradientClipConfig(cfg GradientClipConfig) error {
	switch cfg.Mode {
	case "none":
	case "norm":
		if cfg.MaxNorm <= 0 {
			return errorf("GradientClip.MaxNorm must be > 0, got %g", cfg.MaxNorm)
		}
	case "value":
		if cfg.MaxValue <= 0 {
			return errorf("GradientClip.MaxValue must be > 0, got %g", cfg.MaxValue)
		}
	default:
		return errorf("GradientClip.Mode is required - use 'none' if not needed, got %q", cfg.Mode)
	}
	return nil
}

// clipGradients rescales or truncates grads in place and returns the
// global L2 norm measured before clipping.
func clipGradients(grads []*tensor, cfg GradientClipConfig) float64 {
	totalNorm := 0.0
	for _, g := range grads {
		norm := l2Norm(g)
		totalNorm += norm * norm
	}
	totalNorm = math.Sqrt(totalNorm)

	switch cfg.Mode {
	case "norm":
		if totalNorm > cfg.MaxNorm {
			scale := cfg.MaxNorm / totalNorm
			for _, g := range grads {
				mulScalar(g, scale)
			}
		}
	case "value":
		for _, g := range grads {
			for i, v := range g.data {
				g.data[i] = max(-cfg.MaxValue, min(cfg.MaxValue, v))
			}
		}
	}
	return totalNorm
}
