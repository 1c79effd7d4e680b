package flow

import "math"

// Scheduler adjusts learning rate during training
type Scheduler interface {
	step(epoch int, currentLR float64) float64
	name() string
}

// CosineAnnealingScheduler - cosine annealing from EtaMax to EtaMin over TMax epochs
type CosineAnnealingScheduler struct {
	TMax   int
	EtaMin float64
	EtaMax float64
}

// CosineAnnealingConfig - ALL fields required
type CosineAnnealingConfig struct {
	TMax   int
	EtaMin float64
	EtaMax float64
}

// ValidateCosineAnnealingConfig checks all required fields are set
func ValidateCosineAnnealingConfig(cfg CosineAnnealingConfig) error {
	if cfg.TMax <= 0 {
		return errorf("CosineAnnealing TMax must be > 0, got %d", cfg.TMax)
	}
	if cfg.EtaMin < 0 || cfg.EtaMin > cfg.EtaMax {
		return errorf("CosineAnnealing needs 0 <= EtaMin <= EtaMax, got %g and %g", cfg.EtaMin, cfg.EtaMax)
	}
	return nil
}

func CosineAnnealing(config CosineAnnealingConfig) Scheduler {
	return &CosineAnnealingScheduler{
		TMax:   config.TMax,
		EtaMin: config.EtaMin,
		EtaMax: config.EtaMax,
	}
}

// step returns the rate after `epoch` completed epochs.
func (c *CosineAnnealingScheduler) step(epoch int, currentLR float64) float64 {
	return c.EtaMin + 0.5*(c.EtaMax-c.EtaMin)*(1+math.Cos(math.Pi*float64(epoch)/float64(c.TMax)))
}

func (c *CosineAnnealingScheduler) name() string { return "cosine_annealing" }

// ConstantScheduler - no change
type ConstantScheduler struct{}

func ConstantLR() Scheduler { return &ConstantScheduler{} }

func (c *ConstantScheduler) step(epoch int, currentLR float64) float64 {
	return currentLR
}

func (c *ConstantScheduler) name() string { return "constant" }
