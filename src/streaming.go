package flow

// StreamingMean is a batch-size-weighted running average.
// The zero value is ready to use.
type StreamingMean struct {
	mean float64
	n    int
}

// Update folds in a batch whose own mean is batchMean.
func (s *StreamingMean) Update(batchMean float64, batchSize int) {
	if batchSize <= 0 {
		return
	}
	s.mean = (s.mean*float64(s.n) + batchMean*float64(batchSize)) / float64(s.n+batchSize)
	s.n += batchSize
}

// Mean returns the current average, 0 before any update.
func (s *StreamingMean) Mean() float64 { return s.mean }

// Count returns the number of samples seen.
func (s *StreamingMean) Count() int { return s.n }
