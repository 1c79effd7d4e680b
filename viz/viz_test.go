package viz

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	flow "ringflow/src"
)

func circle(n int, r float64) [][]float64 {
	out := make([][]float64, n)
	for i := range out {
		theta := 2 * math.Pi * float64(i) / float64(n)
		out[i] = []float64{r * math.Cos(theta), r * math.Sin(theta)}
	}
	return out
}

func requireFile(t *testing.T, path string) {
	t.Helper()
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}

func TestScatter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scatter.png")
	require.NoError(t, Scatter(path, "points", circle(50, 1)))
	requireFile(t, path)

	require.ErrorIs(t, Scatter(path, "empty", nil), ErrNoData)
	require.Error(t, Scatter(path, "bad", [][]float64{{1}}))
}

func TestLabeledScatter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "classes.png")
	points := circle(10, 1)
	labels := []int{0, 1, 2, 3, 4, 0, 1, 2, 3, 4}
	names := []string{"black", "blue", "green", "red", "yellow"}
	require.NoError(t, LabeledScatter(path, "classes", points, labels, names))
	requireFile(t, path)

	require.Error(t, LabeledScatter(path, "short", points, labels[:3], names))
	require.Error(t, LabeledScatter(path, "range", points[:1], []int{7}, names))
}

func TestSnapshotsAndPaths(t *testing.T) {
	dir := t.TempDir()
	traj := flow.Trajectory{circle(8, 1), circle(8, 2), circle(8, 3)}

	snap := filepath.Join(dir, "snapshots.png")
	require.NoError(t, Snapshots(snap, "snapshots", traj, []string{"t=0", "t=0.5", "t=1"}))
	requireFile(t, snap)
	require.Error(t, Snapshots(snap, "captions", traj, []string{"only one"}))

	paths := filepath.Join(dir, "paths.svg")
	require.NoError(t, Paths(paths, "paths", traj))
	requireFile(t, paths)

	require.ErrorIs(t, Paths(paths, "empty", nil), ErrNoData)
}

func TestCurves(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loss.png")
	require.NoError(t, Curves(path, "loss", "nll", map[string][]float64{
		"train": {3, 2, 1.5},
		"val":   {3.1, 2.2, 1.7},
	}))
	requireFile(t, path)

	require.ErrorIs(t, Curves(path, "empty", "nll", map[string][]float64{"train": nil}), ErrNoData)
}

func TestPalette(t *testing.T) {
	p := Palette([]string{"blue", "mauve"})
	require.Len(t, p, 2)
	assert.Equal(t, "#0081c8", p[0].Hex())
	assert.True(t, p[1].IsValid())
}

func TestTimeColor(t *testing.T) {
	assert.Equal(t, TimeColor(0).Hex(), TimeColor(-1).Hex())
	assert.Equal(t, TimeColor(1).Hex(), TimeColor(2).Hex())
	assert.NotEqual(t, TimeColor(0).Hex(), TimeColor(1).Hex())
}
