package cmd

import (
	"fmt"
	"log/slog"
	"math/rand"

	"github.com/spf13/cobra"

	"ringflow/data"
	flow "ringflow/src"
	"ringflow/viz"
)

var sampleSeeds = []int64{38, 56, 67}

func normflowHandler(cmd *cobra.Command, _ []string) error {
	opts, err := readOptions(cmd)
	if err != nil {
		return err
	}
	rng := rand.New(rand.NewSource(opts.Seed))

	ds, err := data.UnconditionalRings(opts.Points, data.DefaultThickness, rng)
	if err != nil {
		return err
	}
	trainSet, valSet, err := ds.Split(0.96, rng)
	if err != nil {
		return err
	}
	train, err := opts.loader(trainSet, true, rng)
	if err != nil {
		return err
	}
	val, err := opts.loader(valSet, false, nil)
	if err != nil {
		return fmt.Errorf("validation split: %w", err)
	}

	nf, err := flow.NewNormalizingFlow(flow.DefaultNormFlowConfig(), rng)
	if err != nil {
		return err
	}
	slog.Info("normalizing flow", "layers", len(nf.Layers()), "params", nf.ParamCount(), "train", trainSet.Len(), "val", valSet.Len())
	slog.Debug(nf.Summary())

	history, err := flow.TrainNormalizingFlow(cmd.Context(), nf, train, val, opts.trainConfig(), opts.callbacks("loss"))
	if err != nil {
		return err
	}

	r, err := newRun("normflow", opts)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	epochTable(out, []string{"TRAIN NLL", "VAL -LOG PROB", "VAL -LOG DET", "LR"},
		history.TrainLoss, history.ValLogProb, history.ValLogDet, history.LR)

	if err := viz.Curves(r.path("loss.png"), "Validation loss", "loss", map[string][]float64{
		"-log prob": history.ValLogProb,
		"-log det":  history.ValLogDet,
		"total":     sum(history.ValLogProb, history.ValLogDet),
	}); err != nil {
		return err
	}

	for _, seed := range sampleSeeds {
		samples, err := nf.Sample(opts.Samples, rand.New(rand.NewSource(seed)))
		if err != nil {
			return err
		}
		if err := viz.Scatter(r.path(fmt.Sprintf("samples-seed%d.png", seed)), fmt.Sprintf("Samples, seed %d", seed), samples); err != nil {
			return err
		}
	}

	// layer by layer progression of one sample batch
	z := flow.StandardNormalSample(opts.Samples, nf.Config().LatentDim, rng)
	progression, err := nf.ForwardTrajectory(z)
	if err != nil {
		return err
	}
	snapshots := flow.Trajectory{}
	captions := []string{}
	for _, i := range progressionSteps(progression.Steps()) {
		snapshots = append(snapshots, progression[i])
		captions = append(captions, layerCaption(i))
	}
	if err := viz.Snapshots(r.path("layers.png"), "Forward pass by affine layer", snapshots, captions); err != nil {
		return err
	}

	paths, err := nf.ForwardTrajectory(flow.StandardNormalSample(10, nf.Config().LatentDim, rng))
	if err != nil {
		return err
	}
	if err := viz.Paths(r.path("trajectories.png"), "Sample trajectories", paths); err != nil {
		return err
	}

	inverse, err := nf.InverseTrajectory(probePoints)
	if err != nil {
		return err
	}
	if err := viz.Paths(r.path("inverse-trajectories.png"), "Inverse trajectories", inverse); err != nil {
		return err
	}

	logProb, err := nf.LogProb(probePoints)
	if err != nil {
		return err
	}
	table := newTable(out, []string{"POINT", "X", "Y", "LOG PROB"})
	for i, p := range probePoints {
		table.Append([]string{probeNames[i], ff(p[0]), ff(p[1]), ff(logProb[i])})
	}
	table.Render()

	return r.saveCheckpoint("normflow", nf)
}

// progressionSteps picks the base batch and every third affine layer, always
// including the last.
func progressionSteps(n int) []int {
	var out []int
	for i := 0; i < n; i += 3 {
		out = append(out, i)
	}
	if out[len(out)-1] != n-1 {
		out = append(out, n-1)
	}
	return out
}

func layerCaption(i int) string {
	if i == 0 {
		return "base"
	}
	return fmt.Sprintf("affine %d", i)
}

func sum(a, b []float64) []float64 {
	out := make([]float64, min(len(a), len(b)))
	for i := range out {
		out[i] = a[i] + b[i]
	}
	return out
}
