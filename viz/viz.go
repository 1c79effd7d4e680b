// Package viz renders point clouds, trajectories and training curves to
// image files. The output format follows the file extension (png, svg, pdf).
package viz

import (
	"errors"
	"fmt"
	"image/color"
	"sort"

	"github.com/lucasb-eyer/go-colorful"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	flow "ringflow/src"
)

// Size is the edge length of every rendered figure.
var Size = 6 * vg.Inch

// ErrNoData is returned when there is nothing to draw.
var ErrNoData = errors.New("viz: nothing to plot")

var ringHex = map[string]string{
	"black":  "#000000",
	"blue":   "#0081C8",
	"green":  "#00A651",
	"red":    "#EE334E",
	"yellow": "#FCB131",
}

var (
	earlyColor = colorful.Color{R: 0.19, G: 0.21, B: 0.58}
	lateColor  = colorful.Color{R: 0.84, G: 0.19, B: 0.15}
)

// Palette returns one colour per class name. Ring colours keep their logo
// colour, other names get evenly spaced hues.
func Palette(names []string) []colorful.Color {
	out := make([]colorful.Color, len(names))
	for i, n := range names {
		if hex, ok := ringHex[n]; ok {
			if c, err := colorful.Hex(hex); err == nil {
				out[i] = c
				continue
			}
		}
		out[i] = colorful.Hcl(360*float64(i)/float64(len(names)), 0.6, 0.6).Clamped()
	}
	return out
}

// TimeColor maps frac in [0, 1] onto the blue to red time gradient.
func TimeColor(frac float64) colorful.Color {
	frac = max(0, min(1, frac))
	return earlyColor.BlendHcl(lateColor, frac).Clamped()
}

func xys(points [][]float64) (plotter.XYs, error) {
	out := make(plotter.XYs, len(points))
	for i, p := range points {
		if len(p) < 2 {
			return nil, fmt.Errorf("viz: point %d has %d coordinates, need 2", i, len(p))
		}
		out[i] = plotter.XY{X: p[0], Y: p[1]}
	}
	return out, nil
}

func newPlot(title, x, y string) *plot.Plot {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = x
	p.Y.Label.Text = y
	p.Add(plotter.NewGrid())
	return p
}

func scatter(points [][]float64, c color.Color, radius vg.Length) (*plotter.Scatter, error) {
	data, err := xys(points)
	if err != nil {
		return nil, err
	}
	s, err := plotter.NewScatter(data)
	if err != nil {
		return nil, err
	}
	s.GlyphStyle.Color = c
	s.GlyphStyle.Radius = radius
	s.GlyphStyle.Shape = draw.CircleGlyph{}
	return s, nil
}

func save(p *plot.Plot, path string) error {
	if err := p.Save(Size, Size, path); err != nil {
		return fmt.Errorf("viz: save %s: %w", path, err)
	}
	return nil
}

// Scatter draws an unlabeled point cloud.
func Scatter(path, title string, points [][]float64) error {
	if len(points) == 0 {
		return ErrNoData
	}
	p := newPlot(title, "x", "y")
	s, err := scatter(points, color.Black, vg.Length(1))
	if err != nil {
		return err
	}
	p.Add(s)
	return save(p, path)
}

// LabeledScatter draws one colour per class. labels index into names.
func LabeledScatter(path, title string, points [][]float64, labels []int, names []string) error {
	if len(points) == 0 {
		return ErrNoData
	}
	if len(labels) != len(points) {
		return fmt.Errorf("viz: %d points, %d labels", len(points), len(labels))
	}
	groups := make([][][]float64, len(names))
	for i, k := range labels {
		if k < 0 || k >= len(names) {
			return fmt.Errorf("viz: label %d not in [0, %d)", k, len(names))
		}
		groups[k] = append(groups[k], points[i])
	}

	p := newPlot(title, "x", "y")
	palette := Palette(names)
	for k, g := range groups {
		if len(g) == 0 {
			continue
		}
		s, err := scatter(g, palette[k], vg.Length(1.5))
		if err != nil {
			return err
		}
		p.Add(s)
		p.Legend.Add(names[k], s)
	}
	return save(p, path)
}

// Snapshots overlays every snapshot of traj, coloured from early to late.
// captions label the snapshots in the legend and may be nil.
func Snapshots(path, title string, traj flow.Trajectory, captions []string) error {
	if traj.Steps() == 0 {
		return ErrNoData
	}
	if captions != nil && len(captions) != traj.Steps() {
		return fmt.Errorf("viz: %d captions for %d snapshots", len(captions), traj.Steps())
	}
	p := newPlot(title, "x", "y")
	for s, snap := range traj {
		sc, err := scatter(snap, TimeColor(frac(s, traj.Steps())), vg.Length(1))
		if err != nil {
			return err
		}
		p.Add(sc)
		if captions != nil {
			p.Legend.Add(captions[s], sc)
		}
	}
	return save(p, path)
}

// Paths draws each point's path through traj as a grey polyline with
// its positions coloured by step.
func Paths(path, title string, traj flow.Trajectory) error {
	if traj.Steps() == 0 {
		return ErrNoData
	}
	p := newPlot(title, "x", "y")
	steps := traj.Steps()
	for _, pts := range traj.PerPoint() {
		data, err := xys(pts)
		if err != nil {
			return err
		}
		line, err := plotter.NewLine(data)
		if err != nil {
			return err
		}
		line.LineStyle.Color = color.Gray{Y: 160}
		line.LineStyle.Width = vg.Points(0.5)

		marks, err := plotter.NewScatter(data)
		if err != nil {
			return err
		}
		marks.GlyphStyleFunc = func(i int) draw.GlyphStyle {
			return draw.GlyphStyle{Color: TimeColor(frac(i, steps)), Radius: vg.Length(2), Shape: draw.CircleGlyph{}}
		}
		p.Add(line, marks)
	}
	return save(p, path)
}

// Curves draws one line per named series against the epoch number.
func Curves(path, title, ylabel string, series map[string][]float64) error {
	names := make([]string, 0, len(series))
	for n, v := range series {
		if len(v) > 0 {
			names = append(names, n)
		}
	}
	if len(names) == 0 {
		return ErrNoData
	}
	sort.Strings(names)

	p := newPlot(title, "epoch", ylabel)
	palette := Palette(names)
	for i, n := range names {
		data := make(plotter.XYs, len(series[n]))
		for e, v := range series[n] {
			data[e] = plotter.XY{X: float64(e + 1), Y: v}
		}
		line, err := plotter.NewLine(data)
		if err != nil {
			return err
		}
		line.LineStyle.Color = palette[i]
		line.LineStyle.Width = vg.Points(1.5)
		p.Add(line)
		p.Legend.Add(n, line)
	}
	return save(p, path)
}

func frac(i, n int) float64 {
	if n <= 1 {
		return 0
	}
	return float64(i) / float64(n-1)
}
