package flow

import (
	"math"
	"math/rand"
)

// Initializer sets up initial weights for layers
type Initializer interface {
	initialize(t *tensor, fanIn, fanOut int, rng *rand.Rand)
	name() string
}

// FanInUniformInit draws from U(-1/sqrt(fanIn), 1/sqrt(fanIn)), the usual
// default for linear layers and their biases.
type FanInUniformInit struct{}

func FanInUniform() Initializer { return &FanInUniformInit{} }

func (f *FanInUniformInit) initialize(t *tensor, fanIn, fanOut int, rng *rand.Rand) {
	limit := 1.0 / math.Sqrt(float64(fanIn))
	t.fillRandUniform(-limit, limit, rng)
}

func (f *FanInUniformInit) name() string { return "fan_in_uniform" }

// ZerosInit - initialize with zeros
type ZerosInit struct{}

func Zeros() Initializer { return &ZerosInit{} }

func (z *ZerosInit) initialize(t *tensor, fanIn, fanOut int, rng *rand.Rand) {
	t.fill(0)
}

func (z *ZerosInit) name() string { return "zeros" }

// RandomNormalInit - simple random normal
type RandomNormalInit struct {
	Mean   float64
	StdDev float64
}

func RandomNormal(mean, stddev float64) Initializer {
	return &RandomNormalInit{Mean: mean, StdDev: stddev}
}

func (r *RandomNormalInit) initialize(t *tensor, fanIn, fanOut int, rng *rand.Rand) {
	t.fillRandNorm(r.Mean, r.StdDev, rng)
}

func (r *RandomNormalInit) name() string { return "random_normal" }
