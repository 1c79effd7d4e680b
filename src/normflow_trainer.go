package flow

import (
	"context"
	"fmt"
)

// FlowHistory holds one entry per completed epoch.
type FlowHistory struct {
	TrainLoss  []float64 // streaming mean of the training NLL
	ValLogProb []float64 // streaming mean of -mean(log N(f^-1(x)))
	ValLogDet  []float64 // streaming mean of -mean(log|det|)
	LR         []float64 // learning rate used during the epoch
}

// nllStep computes the batch negative log-likelihood. With training set it
// also backpropagates through the flow.
func nllStep(nf *NormalizingFlow, b Batch, training bool) (logProbTerm, logDetTerm float64, err error) {
	y, err := fromRows(b.Points)
	if err != nil {
		return 0, 0, err
	}
	if err := checkWidth(y, nf.cfg.LatentDim, "NormalizingFlow", -1); err != nil {
		return 0, 0, err
	}

	base, logDet, err := nf.inverseWithLogDet(y, training, nil)
	if err != nil {
		return 0, 0, err
	}
	logProb := standardNormalLogProb(base)

	n := float64(y.rows())
	for i := range logProb {
		logProbTerm -= logProb[i] / n
		logDetTerm -= logDet[i] / n
	}

	if training {
		// L = -(1/B) sum(log N(x) + logDet); dL/dx = x/B, dL/dlogDet = -1/B
		gradX := base.clone()
		mulScalar(gradX, 1/n)
		gradLogDet := make([]float64, y.rows())
		for i := range gradLogDet {
			gradLogDet[i] = -1 / n
		}
		if err := nf.backwardInverse(gradX, gradLogDet); err != nil {
			return 0, 0, err
		}
	}
	return logProbTerm, logDetTerm, nil
}

// EvaluateNormalizingFlow returns the batch-size-weighted means of the two
// NLL terms over val: -log N(f^-1(x)) and -log|det|.
func EvaluateNormalizingFlow(ctx context.Context, nf *NormalizingFlow, val BatchIterator) (logProbTerm, logDetTerm float64, err error) {
	var lp, ld StreamingMean
	err = val.Each(ctx, func(b Batch) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		p, d, err := nllStep(nf, b, false)
		if err != nil {
			return err
		}
		lp.Update(p, b.Len())
		ld.Update(d, b.Len())
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return lp.Mean(), ld.Mean(), nil
}

// TrainNormalizingFlow fits nf by maximum likelihood. val may be nil to skip
// validation. The learning rate follows cfg.Schedule once per epoch, after
// validation.
func TrainNormalizingFlow(ctx context.Context, nf *NormalizingFlow, train, val BatchIterator, cfg TrainConfig, callbacks []Callback) (*FlowHistory, error) {
	if err := ValidateTrainConfig(cfg); err != nil {
		return nil, err
	}

	opt := Adam(cfg.Adam)
	sched := cfg.scheduler()
	params := nf.parameters()
	grads := nf.gradients()

	history := &FlowHistory{}
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
			nf.zeroGrad()
			lp, ld, err := nllStep(nf, b, true)
			if err != nil {
				return err
			}
			clipGradients(grads, cfg.GradientClip)
			opt.step(params, grads)

			epochLoss.Update(lp+ld, b.Len())
			logs["batch_loss"] = lp + ld
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
		history.TrainLoss = append(history.TrainLoss, epochLoss.Mean())
		history.LR = append(history.LR, opt.learningRate())

		if val != nil {
			lp, ld, err := EvaluateNormalizingFlow(ctx, nf, val)
			if err != nil {
				return history, fmt.Errorf("epoch %d validation: %w", epoch+1, err)
			}
			logs["val_log_prob"] = lp
			logs["val_log_det"] = ld
			history.ValLogProb = append(history.ValLogProb, lp)
			history.ValLogDet = append(history.ValLogDet, ld)
		}

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
