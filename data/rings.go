// Package data synthesizes the Olympic-rings point cloud and feeds it to
// the trainers in batches.
package data

import (
	"errors"
	"math"
	"math/rand"
)

// Ring is one circle of the Olympic logo.
type Ring struct {
	CenterX, CenterY float64
	Color            string
}

// OlympicRings are the five rings in logo order.
var OlympicRings = []Ring{
	{0, 0, "blue"},
	{2, 0, "black"},
	{4, 0, "red"},
	{1, -1, "yellow"},
	{3, -1, "green"},
}

const (
	// Radius of every ring.
	Radius = 1.0
	// DefaultThickness is the radial width of each ring band.
	DefaultThickness = 0.25
)

// bounding box for rejection sampling
const (
	boxMinX, boxMaxX = -1.0, 5.0
	boxMinY, boxMaxY = -2.0, 1.0
)

// ErrNoPoints is returned when a sampler is asked for zero points.
var ErrNoPoints = errors.New("data: number of points must be positive")

// SampleRings draws n/5 points on each ring, with radius uniform in the band
// and angle uniform on [0, 2π). colors[i] names the ring of points[i].
func SampleRings(n int, thickness float64, rng *rand.Rand) (points [][]float64, colors []string, err error) {
	perRing := n / len(OlympicRings)
	if perRing <= 0 {
		return nil, nil, ErrNoPoints
	}
	points = make([][]float64, 0, perRing*len(OlympicRings))
	colors = make([]string, 0, perRing*len(OlympicRings))
	for _, ring := range OlympicRings {
		for i := 0; i < perRing; i++ {
			r := Radius - thickness/2 + rng.Float64()*thickness
			theta := rng.Float64() * 2 * math.Pi
			points = append(points, []float64{ring.CenterX + r*math.Cos(theta), ring.CenterY + r*math.Sin(theta)})
			colors = append(colors, ring.Color)
		}
	}
	return points, colors, nil
}

// InAnyRing reports whether (x, y) lies inside at least one ring band.
func InAnyRing(x, y, thickness float64) bool {
	for _, ring := range OlympicRings {
		d := math.Hypot(x-ring.CenterX, y-ring.CenterY)
		if d >= Radius-thickness/2 && d <= Radius+thickness/2 {
			return true
		}
	}
	return false
}

// SampleUnconditionalRings rejection-samples n points uniformly over the
// union of the ring bands.
func SampleUnconditionalRings(n int, thickness float64, rng *rand.Rand) ([][]float64, error) {
	if n <= 0 {
		return nil, ErrNoPoints
	}
	if thickness <= 0 {
		return nil, errors.New("data: ring thickness must be positive")
	}
	points := make([][]float64, 0, n)
	for len(points) < n {
		x := boxMinX + rng.Float64()*(boxMaxX-boxMinX)
		y := boxMinY + rng.Float64()*(boxMaxY-boxMinY)
		if InAnyRing(x, y, thickness) {
			points = append(points, []float64{x, y})
		}
	}
	return points, nil
}
