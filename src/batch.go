package flow

import "context"

// Batch is one slice of training data. Classes is nil for unlabeled data,
// otherwise Classes[i] is the class of Points[i].
type Batch struct {
	Points  [][]float64
	Classes []int
}

// Len returns the number of points in the batch.
func (b Batch) Len() int { return len(b.Points) }

// BatchIterator yields one pass over a dataset. fn is always called from a
// single goroutine; a non-nil error from fn stops the pass and is returned.
type BatchIterator interface {
	Each(ctx context.Context, fn func(Batch) error) error
}

// SliceIterator is a BatchIterator over pre-built batches.
type SliceIterator []Batch

func (s SliceIterator) Each(ctx context.Context, fn func(Batch) error) error {
	for _, b := range s {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(b); err != nil {
			return err
		}
	}
	return nil
}
