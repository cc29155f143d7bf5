package preprocess

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// Pool runs tasks with bounded concurrency.
type Pool interface {
	Go(task func())
	Wait()
}

// PoolFactory creates a pool of the given size.
type PoolFactory func(size int) (Pool, error)

// Result is the outcome of the work item at Index.
type Result[T any] struct {
	Index int
	Value T
	Err   error
}

// NewPool returns an errgroup-backed pool running at most size tasks at once.
func NewPool(size int) (Pool, error) {
	if size < 1 {
		return nil, fmt.Errorf("invalid pool size %d", size)
	}
	g := &errgroup.Group{}
	g.SetLimit(size)
	return &groupPool{g: g}, nil
}

type groupPool struct {
	g *errgroup.Group
}

func (p *groupPool) Go(task func()) {
	p.g.Go(func() error {
		task()
		return nil
	})
}

func (p *groupPool) Wait() {
	_ = p.g.Wait()
}

// sequentialPool runs each task inline on the caller's goroutine.
type sequentialPool struct{}

func (sequentialPool) Go(task func()) { task() }
func (sequentialPool) Wait()          {}

// Scheduler fans work items out over a pool and reports results by index.
// When the pool cannot be created it falls back to running every item
// sequentially, with the same per-item isolation.
type Scheduler struct {
	Name    string
	Size    int
	Factory PoolFactory
	Logger  *slog.Logger
}

func (s Scheduler) pool() Pool {
	factory := s.Factory
	if factory == nil {
		factory = NewPool
	}
	p, err := factory(s.Size)
	if err != nil || p == nil {
		logger := s.Logger
		if logger == nil {
			logger = slog.Default()
		}
		logger.Warn("worker pool setup failed, falling back to sequential", "pool", s.Name, "size", s.Size, "error", err)
		return sequentialPool{}
	}
	return p
}

// RunIndexed runs work for indexes 0..n-1 and returns one Result per index,
// in index order. Each worker writes only its own slot; a panic in one item
// becomes that item's error.
func RunIndexed[T any](ctx context.Context, s Scheduler, n int, work func(ctx context.Context, i int) (T, error)) []Result[T] {
	results := make([]Result[T], n)
	if n == 0 {
		return results
	}

	p := s.pool()
	for i := 0; i < n; i++ {
		p.Go(func() {
			results[i] = runItem(ctx, i, work)
		})
	}
	p.Wait()
	return results
}

func runItem[T any](ctx context.Context, i int, work func(ctx context.Context, i int) (T, error)) (res Result[T]) {
	res.Index = i
	defer func() {
		if r := recover(); r != nil {
			res.Err = fmt.Errorf("panic: %v", r)
		}
	}()
	res.Value, res.Err = work(ctx, i)
	return res
}
