package flow

// NormFlowConfig describes a normalizing flow stack - ALL fields required
type NormFlowConfig struct {
	LatentDim      int     // point width, must be even
	NumLayers      int     // affine coupling layers; NumLayers-1 permutations sit between them
	HiddenUnits    int     // width of each conditioner network
	HiddenLayers   int     // hidden layers per conditioner network
	NegativeSlope  float64 // LeakyReLU slope in the conditioners
	LogScaleClamp  float64 // soft bound on |log s|, 0 disables
	ZeroInitOutput bool    // start every coupling as the identity
}

// VelocityFieldConfig describes a flow-matching velocity network - ALL fields required
type VelocityFieldConfig struct {
	LatentDim     int
	HiddenUnits   int
	HiddenLayers  int
	NegativeSlope float64
	Conditional   bool
	NumClasses    int // used when Conditional
	EmbeddingDim  int // used when Conditional
}

// TrainConfig holds all training configuration - ALL fields required
type TrainConfig struct {
	Epochs       int
	Adam         AdamConfig
	Schedule     string  // "cosine" or "constant"
	EtaMin       float64 // cosine floor
	GradientClip GradientClipConfig
}

// DefaultNormFlowConfig mirrors the reference ring experiment.
func DefaultNormFlowConfig() NormFlowConfig {
	return NormFlowConfig{
		LatentDim:     2,
		NumLayers:     15,
		HiddenUnits:   8,
		HiddenLayers:  4,
		NegativeSlope: 0.01,
	}
}

// DefaultVelocityFieldConfig mirrors the reference ring experiment.
func DefaultVelocityFieldConfig(conditional bool) VelocityFieldConfig {
	cfg := VelocityFieldConfig{
		LatentDim:     2,
		HiddenUnits:   64,
		HiddenLayers:  4,
		NegativeSlope: 0.01,
		Conditional:   conditional,
	}
	if conditional {
		cfg.NumClasses = 5
		cfg.EmbeddingDim = 10
	}
	return cfg
}

// DefaultTrainConfig is 20 epochs of Adam at 1e-3, cosine-annealed to 0.
func DefaultTrainConfig() TrainConfig {
	return TrainConfig{
		Epochs:       20,
		Adam:         DefaultAdamConfig(1e-3),
		Schedule:     "cosine",
		GradientClip: GradientClipConfig{Mode: "none"},
	}
}

// ValidateNormFlowConfig checks all required fields are set
func ValidateNormFlowConfig(cfg NormFlowConfig) error {
	if cfg.LatentDim < 2 || cfg.LatentDim%2 != 0 {
		return errorf("LatentDim must be even and >= 2, got %d", cfg.LatentDim)
	}
	if cfg.NumLayers <= 0 {
		return errorf("NumLayers must be > 0, got %d", cfg.NumLayers)
	}
	if cfg.HiddenUnits <= 0 {
		return errorf("HiddenUnits must be > 0, got %d", cfg.HiddenUnits)
	}
	if cfg.HiddenLayers < 0 {
		return errorf("HiddenLayers must be >= 0, got %d", cfg.HiddenLayers)
	}
	if cfg.NegativeSlope < 0 {
		return errorf("NegativeSlope must be >= 0, got %g", cfg.NegativeSlope)
	}
	if cfg.LogScaleClamp < 0 {
		return errorf("LogScaleClamp must be >= 0, got %g", cfg.LogScaleClamp)
	}
	return nil
}

// ValidateVelocityFieldConfig checks all required fields are set
func ValidateVelocityFieldConfig(cfg VelocityFieldConfig) error {
	if cfg.LatentDim <= 0 {
		return errorf("LatentDim must be > 0, got %d", cfg.LatentDim)
	}
	if cfg.HiddenUnits <= 0 {
		return errorf("HiddenUnits must be > 0, got %d", cfg.HiddenUnits)
	}
	if cfg.HiddenLayers < 0 {
		return errorf("HiddenLayers must be >= 0, got %d", cfg.HiddenLayers)
	}
	if cfg.NegativeSlope < 0 {
		return errorf("NegativeSlope must be >= 0, got %g", cfg.NegativeSlope)
	}
	if cfg.Conditional {
		if cfg.NumClasses <= 0 {
			return errorf("NumClasses must be > 0 for a conditional field, got %d", cfg.NumClasses)
		}
		if cfg.EmbeddingDim <= 0 {
			return errorf("EmbeddingDim must be > 0 for a conditional field, got %d", cfg.EmbeddingDim)
		}
	}
	return nil
}

// ValidateTrainConfig checks all required fields are set
func ValidateTrainConfig(cfg TrainConfig) error {
	if cfg.Epochs <= 0 {
		return errorf("Epochs must be > 0, got %d", cfg.Epochs)
	}
	if err := ValidateAdamConfig(cfg.Adam); err != nil {
		return err
	}
	switch cfg.Schedule {
	case "cosine":
		if err := ValidateCosineAnnealingConfig(CosineAnnealingConfig{TMax: cfg.Epochs, EtaMin: cfg.EtaMin, EtaMax: cfg.Adam.LR}); err != nil {
			return err
		}
	case "constant":
	default:
		return errorf("Schedule must be 'cosine' or 'constant', got %q", cfg.Schedule)
	}
	return ValidateGradientClipConfig(cfg.GradientClip)
}

// scheduler builds the per-epoch learning-rate schedule for cfg.
func (cfg TrainConfig) scheduler() Scheduler {
	if cfg.Schedule == "constant" {
		return ConstantLR()
	}
	return CosineAnnealing(CosineAnnealingConfig{TMax: cfg.Epochs, EtaMin: cfg.EtaMin, EtaMax: cfg.Adam.LR})
}
