package flow

// Trajectory is a sequence of batch snapshots indexed by step: a layer
// index for flows, an integration step for velocity fields.
// Shape is [steps][points][dims].
type Trajectory [][][]float64

// Steps returns the number of snapshots.
func (t Trajectory) Steps() int { return len(t) }

// Final returns the last snapshot, or nil for an empty trajectory.
func (t Trajectory) Final() [][]float64 {
	if len(t) == 0 {
		return nil
	}
	return t[len(t)-1]
}

// PerPoint transposes the trajectory to [points][steps][dims] so each
// point's path can be drawn as one polyline.
func (t Trajectory) PerPoint() [][][]float64 {
	if len(t) == 0 {
		return nil
	}
	out := make([][][]float64, len(t[0]))
	for p := range out {
		out[p] = make([][]float64, len(t))
		for s := range t {
			out[p][s] = t[s][p]
		}
	}
	return out
}
