package flow

// Loss computes loss and gradients
type Loss interface {
	compute(pred, target *tensor) float64
	gradient(pred, target *tensor, gradOut *tensor)
	name() string
}

// MSELoss - Mean Squared Error
type MSELoss struct {
	// "mean" averages over every element, "sum" adds them all, "batch" sums
	// each row over its features and averages over rows.
	Reduction string
}

type MSEConfig struct {
	Reduction string
}

func MSE(config MSEConfig) Loss {
	return &MSELoss{Reduction: config.Reduction}
}

func (m *MSELoss) scale(pred *tensor) float64 {
	switch m.Reduction {
	case "mean":
		return 1.0 / float64(len(pred.data))
	case "batch":
		return 1.0 / float64(pred.rows())
	default:
		return 1.0
	}
}

func (m *MSELoss) compute(pred, target *tensor) float64 {
	sum := 0.0
	for i := range pred.data {
		diff := pred.data[i] - target.data[i]
		sum += diff * diff
	}
	return sum * m.scale(pred)
}

func (m *MSELoss) gradient(pred, target *tensor, gradOut *tensor) {
	scale := 2.0 * m.scale(pred)
	for i := range pred.data {
		gradOut.data[i] = scale * (pred.data[i] - target.data[i])
	}
}

func (m *MSELoss) name() string { return "mse" }
