package flow

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
)

// Direction selects which way the integrator moves through time.
type Direction int

const (
	// Forward integrates t from 0 to 1 (noise to data).
	Forward Direction = iota
	// Backward integrates t from 1 to 0 (data to noise).
	Backward
)

func (d Direction) String() string {
	if d == Backward {
		return "backward"
	}
	return "forward"
}

// IntegratorConfig - fixed-step explicit Euler settings
type IntegratorConfig struct {
	StepSize  float64
	Steps     int // 0 means StepsFor(StepSize)
	Direction Direction
	Record    bool // keep every intermediate batch
}

// ValidateIntegratorConfig checks all required fields are set. StepSize
// must lie in (0, 1] so that at least one step is taken.
func ValidateIntegratorConfig(cfg IntegratorConfig) error {
	if cfg.StepSize <= 0 || math.IsInf(cfg.StepSize, 0) || math.IsNaN(cfg.StepSize) {
		return errorf("StepSize must be a positive finite number, got %g", cfg.StepSize)
	}
	if cfg.StepSize > 1 {
		return errorf("StepSize must be at most 1, got %g", cfg.StepSize)
	}
	if cfg.Steps < 0 {
		return errorf("Steps must be >= 0, got %d", cfg.Steps)
	}
	if cfg.Direction != Forward && cfg.Direction != Backward {
		return errorf("unknown direction %d", cfg.Direction)
	}
	return nil
}

// StepsFor returns round(1/dt), the step count covering [0, 1].
func StepsFor(dt float64) int {
	return int(math.Round(1 / dt))
}

// Integration is the result of one Euler run.
type Integration struct {
	Points     [][]float64
	Trajectory Trajectory // start plus one snapshot per step, when recorded
	Times      []float64  // time of each snapshot, when recorded
}

// Integrate advances start through field with explicit Euler steps:
// x <- x + v(x, t)*dt, t <- t + dt going forward, and the mirror image
// going backward from t = 1.
func Integrate(field Field, start [][]float64, classes []int, cfg IntegratorConfig) (*Integration, error) {
	if err := ValidateIntegratorConfig(cfg); err != nil {
		return nil, err
	}
	x, err := fromRows(start)
	if err != nil {
		return nil, err
	}

	steps := cfg.Steps
	if steps == 0 {
		steps = StepsFor(cfg.StepSize)
	}
	if steps < 1 {
		return nil, errorf("step size %g gives no steps", cfg.StepSize)
	}
	dt := cfg.StepSize
	t := 0.0
	sign := 1.0
	if cfg.Direction == Backward {
		t = 1.0
		sign = -1.0
	}

	points := x.toRows()
	res := &Integration{}
	if cfg.Record {
		res.Trajectory = append(res.Trajectory, points)
		res.Times = append(res.Times, t)
	}

	for k := 0; k < steps; k++ {
		v, err := field.Velocity(points, classes, t)
		if err != nil {
			return nil, fmt.Errorf("euler step %d at t=%g: %w", k, t, err)
		}
		if len(v) != len(points) {
			return nil, fmt.Errorf("%w: field returned %d velocities for %d points", ErrDimensionMismatch, len(v), len(points))
		}
		next := make([][]float64, len(points))
		for i, p := range points {
			if len(v[i]) != len(p) {
				return nil, fmt.Errorf("%w: velocity %d has %d dims, point has %d", ErrDimensionMismatch, i, len(v[i]), len(p))
			}
			next[i] = make([]float64, len(p))
			for j := range p {
				next[i][j] = p[j] + sign*v[i][j]*dt
			}
		}
		points = next
		t += sign * dt
		if cfg.Record {
			res.Trajectory = append(res.Trajectory, points)
			res.Times = append(res.Times, t)
		}
	}

	res.Points = points
	return res, nil
}

// Sample draws n standard-normal points and integrates them forward to
// t = 1 with step size dt. classes must hold n labels for a conditional
// field and be nil otherwise.
func (vf *VelocityField) Sample(n int, classes []int, dt float64, rng *rand.Rand) ([][]float64, error) {
	if n <= 0 {
		return nil, ErrEmptyBatch
	}
	res, err := Integrate(vf, StandardNormalSample(n, vf.cfg.LatentDim, rng), classes, IntegratorConfig{StepSize: dt, Direction: Forward})
	if err != nil {
		return nil, err
	}
	return res.Points, nil
}

// SnapTimes maps each requested time in [0, 1] to the grid time
// k*dt that SampleAtTimes reports for it. A time farther than dt/2 from
// every reachable step is an error.
func SnapTimes(dt float64, times []float64) ([]float64, error) {
	if err := ValidateIntegratorConfig(IntegratorConfig{StepSize: dt}); err != nil {
		return nil, err
	}
	steps := StepsFor(dt)
	out := make([]float64, len(times))
	for i, tm := range times {
		k, err := snapIndex(dt, steps, tm)
		if err != nil {
			return nil, err
		}
		out[i] = float64(k) * dt
	}
	return out, nil
}

func snapIndex(dt float64, steps int, tm float64) (int, error) {
	if tm < 0 || tm > 1 {
		return 0, errorf("snapshot time %g outside [0, 1]", tm)
	}
	k := int(math.Round(tm / dt))
	if k > steps || math.Abs(float64(k)*dt-tm) > dt/2+1e-12 {
		return 0, errorf("snapshot time %g not within %g of any step of size %g", tm, dt/2, dt)
	}
	return k, nil
}

// SampleAtTimes integrates start forward and returns the batch at each of
// the requested times, snapped to the nearest step. SnapTimes gives the
// grid times actually used.
func SampleAtTimes(field Field, start [][]float64, classes []int, dt float64, times []float64) (Trajectory, error) {
	if len(times) == 0 {
		return nil, errors.New("flow: no snapshot times requested")
	}
	if err := ValidateIntegratorConfig(IntegratorConfig{StepSize: dt}); err != nil {
		return nil, err
	}
	steps := StepsFor(dt)
	idx := make([]int, len(times))
	for i, tm := range times {
		k, err := snapIndex(dt, steps, tm)
		if err != nil {
			return nil, err
		}
		idx[i] = k
	}
	res, err := Integrate(field, start, classes, IntegratorConfig{StepSize: dt, Steps: steps, Direction: Forward, Record: true})
	if err != nil {
		return nil, err
	}
	out := make(Trajectory, len(times))
	for i, k := range idx {
		out[i] = res.Trajectory[k]
	}
	return out, nil
}

// SweepResult is the outcome of integrating with one step size.
type SweepResult struct {
	StepSize float64
	Steps    int
	Points   [][]float64
}

// StepSizeSweep integrates the same start batch once per step size, each
// with round(1/dt) steps, to expose time-discretization error.
func StepSizeSweep(field Field, start [][]float64, classes []int, stepSizes []float64, dir Direction) ([]SweepResult, error) {
	out := make([]SweepResult, 0, len(stepSizes))
	for _, dt := range stepSizes {
		cfg := IntegratorConfig{StepSize: dt, Direction: dir}
		res, err := Integrate(field, start, classes, cfg)
		if err != nil {
			return nil, fmt.Errorf("step size %g: %w", dt, err)
		}
		out = append(out, SweepResult{StepSize: dt, Steps: StepsFor(dt), Points: res.Points})
	}
	return out, nil
}
