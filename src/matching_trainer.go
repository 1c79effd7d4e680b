package flow

import (
	"context"
	"fmt"
	"math/rand"
)

// MatchHistory holds one entry per completed epoch.
type MatchHistory struct {
	Loss []float64 // streaming mean of the per-sample squared error
	LR   []float64 // learning rate used during the epoch
}

// InterpolationTarget builds the linear probability path point
// y = (1-t)*noise + t*data and its velocity target data - noise.
func InterpolationTarget(noise, data [][]float64, t []float64) (y, target [][]float64, err error) {
	n, err := fromRows(noise)
	if err != nil {
		return nil, nil, err
	}
	d, err := fromRows(data)
	if err != nil {
		return nil, nil, err
	}
	if n.rows() != d.rows() || n.cols() != d.cols() || len(t) != d.rows() {
		return nil, nil, fmt.Errorf("%w: noise %v, data %v, %d times", ErrDimensionMismatch, n.shape, d.shape, len(t))
	}
	yt, tt := interpolate(n, d, t)
	return yt.toRows(), tt.toRows(), nil
}

func interpolate(noise, data *tensor, t []float64) (y, target *tensor) {
	cols := data.cols()
	y = newTensor(data.shape...)
	target = newTensor(data.shape...)
	for i := range data.data {
		ti := t[i/cols]
		y.data[i] = (1-ti)*noise.data[i] + ti*data.data[i]
		target.data[i] = data.data[i] - noise.data[i]
	}
	return y, target
}

// TrainVelocityField regresses vf onto straight-line flow-matching targets.
// Noise and times are drawn from rng. For a conditional field every batch
// must carry classes; the embedding trains with the same optimizer.
func TrainVelocityField(ctx context.Context, vf *VelocityField, train BatchIterator, cfg TrainConfig, rng *rand.Rand, callbacks []Callback) (*MatchHistory, error) {
	if err := ValidateTrainConfig(cfg); err != nil {
		return nil, err
	}

	opt := Adam(cfg.Adam)
	sched := cfg.scheduler()
	loss := MSE(MSEConfig{Reduction: "batch"})
	params := vf.parameters()
	grads := vf.gradients()

	history := &MatchHistory{}
	logs := make(map[string]float64)

	for _, cb := range callbacks {
		cb.onTrainBegin(logs)
	}

	for epoch := 0; epoch < cfg.Epochs; epoch++ {
		for _, cb := range callbacks {
			cb.onEpochBegin(epoch, logs)
		}

		var epochLoss StreamingMean
		batch := 0
		err := train.Each(ctx, func(b Batch) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			data, err := fromRows(b.Points)
			if err != nil {
				return err
			}
			if err := checkWidth(data, vf.cfg.LatentDim, "VelocityField", -1); err != nil {
				return err
			}

			noise := standardNormal(data.rows(), data.cols(), rng)
			t := make([]float64, data.rows())
			for i := range t {
				t[i] = rng.Float64()
			}
			y, target := interpolate(noise, data, t)

			vf.zeroGrad()
			pred, err := vf.forward(y, b.Classes, t, true)
			if err != nil {
				return err
			}
			batchLoss := loss.compute(pred, target)
			gradPred := newTensor(pred.shape...)
			loss.gradient(pred, target, gradPred)
			if err := vf.backward(gradPred); err != nil {
				return err
			}
			clipGradients(grads, cfg.GradientClip)
			opt.step(params, grads)

			epochLoss.Update(batchLoss, b.Len())
			logs["batch_loss"] = batchLoss
			for _, cb := range callbacks {
				cb.onBatchEnd(batch, logs)
			}
			batch++
			return nil
		})
		if err != nil {
			return history, fmt.Errorf("epoch %d: %w", epoch+1, err)
		}
		if epochLoss.Count() == 0 {
			return history, fmt.Errorf("epoch %d: %w", epoch+1, ErrEmptyBatch)
		}
		delete(logs, "batch_loss")

		logs["loss"] = epochLoss.Mean()
		logs["lr"] = opt.learningRate()
		history.Loss = append(history.Loss, epochLoss.Mean())
		history.LR = append(history.LR, opt.learningRate())

		opt.setLR(sched.step(epoch+1, opt.learningRate()))

		stop := false
		for _, cb := range callbacks {
			if cb.onEpochEnd(epoch, logs) {
				stop = true
			}
		}
		if stop {
			break
		}
	}

	for _, cb := range callbacks {
		cb.onTrainEnd(logs)
	}
	return history, nil
}
