package cmd

import (
	"fmt"
	"log/slog"
	"math/rand"
	"strconv"

	"github.com/spf13/cobra"

	"ringflow/data"
	flow "ringflow/src"
	"ringflow/viz"
)

var (
	snapshotTimes = []float64{0, 0.2, 0.4, 0.6, 0.8, 1}
	sweepSteps    = []float64{0.002, 0.02, 0.05, 0.1, 0.2}
)

func matchHandler(cmd *cobra.Command, conditional bool) error {
	opts, err := readOptions(cmd)
	if err != nil {
		return err
	}
	if err := flow.ValidateIntegratorConfig(flow.IntegratorConfig{StepSize: opts.DT}); err != nil {
		return err
	}
	rng := rand.New(rand.NewSource(opts.Seed))

	var ds *data.Dataset
	var labels *data.LabelTable
	if conditional {
		ds, labels, err = data.ConditionalRings(opts.Points, data.DefaultThickness, rng)
	} else {
		ds, err = data.UnconditionalRings(opts.Points, data.DefaultThickness, rng)
	}
	if err != nil {
		return err
	}
	train, err := opts.loader(ds, true, rng)
	if err != nil {
		return err
	}

	cfg := flow.DefaultVelocityFieldConfig(conditional)
	if conditional {
		cfg.NumClasses = labels.Len()
	}
	vf, err := flow.NewVelocityField(cfg, rng)
	if err != nil {
		return err
	}
	slog.Info("velocity field", "conditional", conditional, "params", vf.ParamCount(), "train", ds.Len())
	slog.Debug(vf.Summary())

	history, err := flow.TrainVelocityField(cmd.Context(), vf, train, opts.trainConfig(), rng, opts.callbacks("loss"))
	if err != nil {
		return err
	}

	name := "match"
	if conditional {
		name = "cmatch"
	}
	r, err := newRun(name, opts)
	if err != nil {
		return err
	}

	epochTable(cmd.OutOrStdout(), []string{"LOSS", "LR"}, history.Loss, history.LR)
	if err := viz.Curves(r.path("loss.png"), "Flow matching loss", "mse", map[string][]float64{"train": history.Loss}); err != nil {
		return err
	}

	if conditional {
		err = conditionalReport(r, vf, labels, opts, rng)
	} else {
		err = unconditionalReport(cmd, r, vf, opts, rng)
	}
	if err != nil {
		return err
	}
	return r.saveCheckpoint(name, vf)
}

func unconditionalReport(cmd *cobra.Command, r *run, vf *flow.VelocityField, opts *options, rng *rand.Rand) error {
	dim := vf.Config().LatentDim

	start := flow.StandardNormalSample(opts.Samples, dim, rng)
	snaps, err := flow.SampleAtTimes(vf, start, nil, opts.DT, snapshotTimes)
	if err != nil {
		return err
	}
	snapped, err := flow.SnapTimes(opts.DT, snapshotTimes)
	if err != nil {
		return err
	}
	captions := make([]string, len(snapped))
	for i, t := range snapped {
		captions[i] = fmt.Sprintf("t=%.2g", t)
	}
	if err := viz.Snapshots(r.path("times.png"), "Samples over time", snaps, captions); err != nil {
		return err
	}

	paths, err := flow.Integrate(vf, flow.StandardNormalSample(10, dim, rng), nil,
		flow.IntegratorConfig{StepSize: opts.DT, Direction: flow.Forward, Record: true})
	if err != nil {
		return err
	}
	if err := viz.Paths(r.path("trajectories.png"), "Sample trajectories", paths.Trajectory); err != nil {
		return err
	}

	sweep, err := flow.StepSizeSweep(vf, start, nil, sweepSteps, flow.Forward)
	if err != nil {
		return err
	}
	finals := make(flow.Trajectory, len(sweep))
	sweepCaptions := make([]string, len(sweep))
	for i, res := range sweep {
		finals[i] = res.Points
		sweepCaptions[i] = fmt.Sprintf("dt=%g", res.StepSize)
	}
	if err := viz.Snapshots(r.path("step-sizes.png"), "Samples by step size", finals, sweepCaptions); err != nil {
		return err
	}
	dev, err := flow.SweepDeviation(sweep)
	if err != nil {
		return err
	}
	table := newTable(cmd.OutOrStdout(), []string{"DT", "STEPS", "SQUARED DISTANCE", "DISPLACEMENT"})
	for i, res := range sweep {
		table.Append([]string{strconv.FormatFloat(res.StepSize, 'g', -1, 64), strconv.Itoa(res.Steps),
			ff(dev["squared_distance"][i]), ff(dev["displacement"][i])})
	}
	table.Render()

	inverse, err := flow.Integrate(vf, probePoints, nil,
		flow.IntegratorConfig{StepSize: opts.DT, Direction: flow.Backward, Record: true})
	if err != nil {
		return err
	}
	return viz.Paths(r.path("inverse-trajectories.png"), "Inverse trajectories", inverse.Trajectory)
}

func conditionalReport(r *run, vf *flow.VelocityField, labels *data.LabelTable, opts *options, rng *rand.Rand) error {
	dim := vf.Config().LatentDim
	names := labels.Names()

	for k, n := range names {
		classes := make([]int, 10)
		for i := range classes {
			classes[i] = k
		}
		res, err := flow.Integrate(vf, flow.StandardNormalSample(len(classes), dim, rng), classes,
			flow.IntegratorConfig{StepSize: opts.DT, Direction: flow.Forward, Record: true})
		if err != nil {
			return err
		}
		if err := viz.Paths(r.path("trajectories-"+n+".png"), "Trajectories, "+n, res.Trajectory); err != nil {
			return err
		}
	}

	classes := randomClasses(opts.Samples, len(names), rng)
	samples, err := vf.Sample(len(classes), classes, opts.DT, rng)
	if err != nil {
		return err
	}
	return viz.LabeledScatter(r.path("samples.png"), "Conditional samples", samples, classes, names)
}

// randomClasses draws n class indices uniformly from [0, k).
func randomClasses(n, k int, rng *rand.Rand) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = rng.Intn(k)
	}
	return out
}
