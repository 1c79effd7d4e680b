package data

import (
	"context"
	"errors"
	"math/rand"
	"sync"

	"golang.org/x/sync/errgroup"

	flow "ringflow/src"
)

// LoaderConfig - ALL fields required
type LoaderConfig struct {
	BatchSize int
	Shuffle   bool // reshuffle at the start of every pass
	Prefetch  int  // batches assembled ahead of the consumer, 0 disables
}

// Loader yields a Dataset in batches. The last batch of a pass may be
// short. It implements flow.BatchIterator.
type Loader struct {
	ds      *Dataset
	cfg     LoaderConfig
	rng     *rand.Rand
	indices []int
	mu      sync.Mutex
}

// NewLoader creates a loader over ds. rng drives shuffling and may be nil
// when cfg.Shuffle is false.
func NewLoader(ds *Dataset, cfg LoaderConfig, rng *rand.Rand) (*Loader, error) {
	if cfg.BatchSize <= 0 {
		return nil, errors.New("data: BatchSize must be > 0")
	}
	if cfg.Prefetch < 0 {
		return nil, errors.New("data: Prefetch must be >= 0")
	}
	if cfg.Shuffle && rng == nil {
		return nil, errors.New("data: shuffling loader needs a random source")
	}
	if ds.Len() == 0 {
		return nil, ErrNoPoints
	}
	indices := make([]int, ds.Len())
	for i := range indices {
		indices[i] = i
	}
	return &Loader{ds: ds, cfg: cfg, rng: rng, indices: indices}, nil
}

// Len returns the number of batches in a pass.
func (l *Loader) Len() int {
	return (l.ds.Len() + l.cfg.BatchSize - 1) / l.cfg.BatchSize
}

// order returns this pass's sample order.
func (l *Loader) order() []int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cfg.Shuffle {
		l.rng.Shuffle(len(l.indices), func(i, j int) {
			l.indices[i], l.indices[j] = l.indices[j], l.indices[i]
		})
	}
	return append([]int(nil), l.indices...)
}

func (l *Loader) batch(idx []int) flow.Batch {
	sub := l.ds.Subset(idx)
	return flow.Batch{Points: sub.Points, Classes: sub.Labels}
}

// Each calls fn once per batch, in order, from a single goroutine.
func (l *Loader) Each(ctx context.Context, fn func(flow.Batch) error) error {
	order := l.order()
	bs := l.cfg.BatchSize

	if l.cfg.Prefetch == 0 {
		for start := 0; start < len(order); start += bs {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := fn(l.batch(order[start:min(start+bs, len(order))])); err != nil {
				return err
			}
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	ch := make(chan flow.Batch, l.cfg.Prefetch)

	g.Go(func() error {
		defer close(ch)
		for start := 0; start < len(order); start += bs {
			select {
			case ch <- l.batch(order[start:min(start+bs, len(order))]):
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	g.Go(func() error {
		for b := range ch {
			if err := fn(b); err != nil {
				return err
			}
		}
		return ctx.Err()
	})

	return g.Wait()
}
