// Package reactive implements a small pull-based dependency graph.
//
// A Signal holds an input value. A Computed derives a value from signals and
// other computed nodes and memoizes it until one of its sources changes.
// Changing a source marks every downstream node dirty, bumps its generation
// and cancels any computation still running for an older generation, whose
// result is then discarded. The next Get recomputes against the newest inputs.
package reactive

import (
	"context"
	"errors"
	"reflect"
	"strconv"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/dalfonso89/currency-trends-dashboard/internal/apperrors"
)

type dependent interface {
	invalidate()
}

// Source is anything a Computed can depend on.
type Source interface {
	subscribe(d dependent)
}

// Signal is an input cell.
type Signal[T any] struct {
	mu         sync.Mutex
	value      T
	equal      func(a, b T) bool
	version    uint64
	dependents []dependent
}

// NewSignal creates a signal. A nil equal falls back to reflect.DeepEqual.
func NewSignal[T any](initial T, equal func(a, b T) bool) *Signal[T] {
	if equal == nil {
		equal = func(a, b T) bool { return reflect.DeepEqual(a, b) }
	}
	return &Signal[T]{value: initial, equal: equal}
}

// Get returns the current value.
func (s *Signal[T]) Get() T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value
}

// Version counts accepted changes.
func (s *Signal[T]) Version() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// Set stores value and invalidates dependents. Setting an equal value is a no-op.
func (s *Signal[T]) Set(value T) bool {
	s.mu.Lock()
	if s.equal(s.value, value) {
		s.mu.Unlock()
		return false
	}
	s.value = value
	s.version++
	dependents := append([]dependent(nil), s.dependents...)
	s.mu.Unlock()

	for _, d := range dependents {
		d.invalidate()
	}
	return true
}

func (s *Signal[T]) subscribe(d dependent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dependents = append(s.dependents, d)
}

// Computed is a memoized derived node.
type Computed[T any] struct {
	name    string
	compute func(ctx context.Context) (T, error)

	mu         sync.Mutex
	dirty      bool
	generation uint64
	value      T
	cancel     context.CancelFunc
	dependents []dependent

	group        singleflight.Group
	computations atomic.Uint64
	discarded    atomic.Uint64
}

// NewComputed creates a node over sources. It starts dirty and computes on
// first Get. The ctx handed to compute is cancelled when the node is invalidated.
func NewComputed[T any](name string, compute func(ctx context.Context) (T, error), sources ...Source) *Computed[T] {
	c := &Computed[T]{name: name, compute: compute, dirty: true}
	for _, source := range sources {
		source.subscribe(c)
	}
	return c
}

// Name returns the node name.
func (c *Computed[T]) Name() string {
	return c.name
}

// Generation is bumped on every invalidation.
func (c *Computed[T]) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

// Computations counts committed computations.
func (c *Computed[T]) Computations() uint64 {
	return c.computations.Load()
}

// Discarded counts computations thrown away because their inputs changed.
func (c *Computed[T]) Discarded() uint64 {
	return c.discarded.Load()
}

// Get returns the memoized value, computing it if dirty. Concurrent callers of
// the same generation share one computation. Errors are returned but not
// memoized, so the next Get tries again.
func (c *Computed[T]) Get(ctx context.Context) (T, error) {
	var zero T
	for {
		c.mu.Lock()
		if !c.dirty {
			value := c.value
			c.mu.Unlock()
			return value, nil
		}
		generation := c.generation
		c.mu.Unlock()

		resultChannel := c.group.DoChan(strconv.FormatUint(generation, 10), func() (interface{}, error) {
			return c.run(generation)
		})

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case result := <-resultChannel:
			if errors.Is(result.Err, apperrors.ErrStale) {
				continue
			}
			value, _ := result.Val.(T)
			return value, result.Err
		}
	}
}

func (c *Computed[T]) run(generation uint64) (interface{}, error) {
	computeContext, cancel := context.WithCancel(context.Background())
	defer cancel()

	c.mu.Lock()
	if c.generation != generation {
		c.mu.Unlock()
		return nil, apperrors.ErrStale
	}
	c.cancel = cancel
	c.mu.Unlock()

	value, err := c.compute(computeContext)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation != generation {
		c.discarded.Add(1)
		return nil, apperrors.ErrStale
	}
	c.cancel = nil
	if err != nil {
		return value, err
	}
	c.value = value
	c.dirty = false
	c.computations.Add(1)
	return value, nil
}

// Invalidate marks the node and its dependents dirty.
func (c *Computed[T]) Invalidate() {
	c.invalidate()
}

func (c *Computed[T]) invalidate() {
	c.mu.Lock()
	c.generation++
	c.dirty = true
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	dependents := append([]dependent(nil), c.dependents...)
	c.mu.Unlock()

	for _, d := range dependents {
		d.invalidate()
	}
}

func (c *Computed[T]) subscribe(d dependent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dependents = append(c.dependents, d)
}
