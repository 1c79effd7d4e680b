// Package cmd implements the ringflow command line.
package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/google/uuid"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"ringflow/data"
	"ringflow/envconfig"
	"ringflow/logutil"
	flow "ringflow/src"
)

// options collects the flags shared by the training commands.
type options struct {
	Epochs    int
	BatchSize int
	LR        float64
	Points    int
	Samples   int
	Seed      int64
	Output    string
	Workers   int
	Format    flow.Format
	DT        float64
	Patience  int
}

func readOptions(cmd *cobra.Command) (*options, error) {
	var opts options
	var err error
	flags := cmd.Flags()
	if opts.Epochs, err = flags.GetInt("epochs"); err != nil {
		return nil, err
	}
	if opts.BatchSize, err = flags.GetInt("batch-size"); err != nil {
		return nil, err
	}
	if opts.LR, err = flags.GetFloat64("lr"); err != nil {
		return nil, err
	}
	if opts.Points, err = flags.GetInt("points"); err != nil {
		return nil, err
	}
	if opts.Samples, err = flags.GetInt("samples"); err != nil {
		return nil, err
	}
	if opts.Patience, err = flags.GetInt("patience"); err != nil {
		return nil, err
	}
	if opts.Seed, err = flags.GetInt64("seed"); err != nil {
		return nil, err
	}
	if opts.Output, err = flags.GetString("output"); err != nil {
		return nil, err
	}
	if opts.Workers, err = flags.GetInt("workers"); err != nil {
		return nil, err
	}
	format, err := flags.GetString("format")
	if err != nil {
		return nil, err
	}
	if opts.Format, err = flow.ParseFormat(format); err != nil {
		return nil, err
	}
	if flags.Lookup("dt") != nil {
		if opts.DT, err = flags.GetFloat64("dt"); err != nil {
			return nil, err
		}
	}
	if opts.Samples <= 0 {
		return nil, fmt.Errorf("--samples must be positive, got %d", opts.Samples)
	}
	return &opts, nil
}

func (o *options) trainConfig() flow.TrainConfig {
	cfg := flow.DefaultTrainConfig()
	cfg.Epochs = o.Epochs
	cfg.Adam = flow.DefaultAdamConfig(o.LR)
	return cfg
}

func (o *options) callbacks(monitor string) []flow.Callback {
	cbs := []flow.Callback{flow.LogProgress(flow.LogProgressConfig{Logger: slog.Default(), Every: 1})}
	if o.Patience > 0 {
		cbs = append(cbs, flow.EarlyStopping(flow.EarlyStoppingConfig{Monitor: monitor, Patience: o.Patience}))
	}
	return cbs
}

func (o *options) loader(ds *data.Dataset, shuffle bool, rng *rand.Rand) (*data.Loader, error) {
	return data.NewLoader(ds, data.LoaderConfig{BatchSize: o.BatchSize, Shuffle: shuffle, Prefetch: o.Workers}, rng)
}

// run is one command invocation's output directory.
type run struct {
	ID   uuid.UUID
	Dir  string
	opts *options
}

func newRun(name string, opts *options) (*run, error) {
	id := uuid.New()
	dir := filepath.Join(opts.Output, fmt.Sprintf("%s-%s", name, id.String()[:8]))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	slog.Info("run started", "id", id, "dir", dir, "seed", opts.Seed)
	return &run{ID: id, Dir: dir, opts: opts}, nil
}

func (r *run) path(name string) string {
	return filepath.Join(r.Dir, name)
}

func (r *run) saveCheckpoint(name string, model flow.Model) error {
	path := r.path(name + "." + string(r.opts.Format))
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	meta := map[string]string{
		"run_id": r.ID.String(),
		"seed":   strconv.FormatInt(r.opts.Seed, 10),
		"epochs": strconv.Itoa(r.opts.Epochs),
	}
	if err := flow.SaveCheckpoint(f, model, r.opts.Format, meta); err != nil {
		return err
	}
	slog.Info("checkpoint saved", "path", path)
	return f.Close()
}

func newTable(w io.Writer, header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	return table
}

func ff(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}

func epochTable(w io.Writer, header []string, columns ...[]float64) {
	table := newTable(w, append([]string{"EPOCH"}, header...))
	n := 0
	for _, c := range columns {
		n = max(n, len(c))
	}
	for e := 0; e < n; e++ {
		row := []string{strconv.Itoa(e + 1)}
		for _, c := range columns {
			if e < len(c) {
				row = append(row, ff(c[e]))
			} else {
				row = append(row, "")
			}
		}
		table.Append(row)
	}
	table.Render()
}

// probePoints are the reference queries in normalized data space: the
// first three lie on the rings, the last two between them.
var probePoints = [][]float64{{-0.75, 0}, {0.75, 0}, {0, -1}, {-0.5, 2}, {0.5, 2}}

var probeNames = []string{"inside 1", "inside 2", "inside 3", "outside 1", "outside 2"}

func envHandler(cmd *cobra.Command, _ []string) error {
	vals := envconfig.Values()
	keys := make([]string, 0, len(vals))
	for k := range vals {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	table := newTable(cmd.OutOrStdout(), []string{"NAME", "VALUE", "DESCRIPTION"})
	vars := envconfig.AsMap()
	for _, k := range keys {
		table.Append([]string{k, vals[k], vars[k].Description})
	}
	table.Render()
	return nil
}

func addTrainFlags(cmd *cobra.Command, batchSize, samples int, withDT bool) {
	cmd.Flags().Int("epochs", 20, "Number of training epochs")
	cmd.Flags().Int("batch-size", batchSize, "Training batch size")
	cmd.Flags().Float64("lr", 1e-3, "Initial Adam learning rate")
	cmd.Flags().Int("points", 250000, "Number of synthetic data points")
	cmd.Flags().Int("samples", samples, "Number of points drawn for sample plots")
	cmd.Flags().Int("patience", 0, "Stop after this many epochs without improvement (0 disables)")
	if withDT {
		cmd.Flags().Float64("dt", 1e-3, "Euler integration step size")
	}
}

func NewCLI() *cobra.Command {
	envconfig.LoadConfig()

	rootCmd := &cobra.Command{
		Use:   "ringflow",
		Short: "Normalizing flows and flow matching on the Olympic rings",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Disable usage printing on errors
			cmd.SilenceUsage = true
			slog.SetDefault(logutil.NewLogger(cmd.ErrOrStderr(), logutil.Level(envconfig.Debug, envconfig.Trace)))
		},
	}

	rootCmd.PersistentFlags().Int64("seed", envconfig.Seed, "Random seed")
	rootCmd.PersistentFlags().StringP("output", "o", envconfig.OutputDir, "Directory for plots and checkpoints")
	rootCmd.PersistentFlags().Int("workers", envconfig.Workers, "Batches prepared ahead of training (0 loads inline)")
	rootCmd.PersistentFlags().String("format", string(flow.FormatJSON), "Checkpoint format (json or cbor)")

	cobra.EnableCommandSorting = false

	normflowCmd := &cobra.Command{
		Use:   "normflow",
		Short: "Train the affine coupling normalizing flow",
		Args:  cobra.NoArgs,
		RunE:  normflowHandler,
	}
	addTrainFlags(normflowCmd, 256, 1000, false)

	matchCmd := &cobra.Command{
		Use:   "match",
		Short: "Train the unconditional flow matching velocity field",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return matchHandler(cmd, false)
		},
	}
	addTrainFlags(matchCmd, 128, 1000, true)

	cmatchCmd := &cobra.Command{
		Use:   "cmatch",
		Short: "Train the class conditional flow matching velocity field",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return matchHandler(cmd, true)
		},
	}
	addTrainFlags(cmatchCmd, 128, 3000, true)

	envCmd := &cobra.Command{
		Use:   "env",
		Short: "Show RINGFLOW_* settings",
		Args:  cobra.NoArgs,
		RunE:  envHandler,
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "ringflow version %s\n", flow.Version)
		},
	}

	rootCmd.AddCommand(
		normflowCmd,
		matchCmd,
		cmatchCmd,
		envCmd,
		versionCmd,
	)

	return rootCmd
}
