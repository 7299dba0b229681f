// Package worker provides a bounded, replenishing worker pool. The review
// queue uses it to cap how many CLI subprocesses run at once while keeping
// every slot busy until the prompts run out.
package worker

import (
	"context"
	"runtime"
)

// Result pairs a processed value with its original index to preserve ordering.
type Result[T any] struct {
	Index int
	Value T
	// Admitted is false for items never started because the context was
	// cancelled first.
	Admitted bool
}

// UpdateKind distinguishes admission from completion notifications.
type UpdateKind int

const (
	// Started is reported right before an item's function is launched.
	Started UpdateKind = iota
	// Finished is reported once an item's function has returned.
	Finished
)

// Update is delivered to the observer for every state change of an item.
type Update[T any] struct {
	Kind  UpdateKind
	Index int
	// Value is only set for Finished updates.
	Value T
}

// Pool runs work items under a fixed concurrency ceiling.
type Pool[T any] struct {
	limit int
}

// NewPool creates a worker pool with the given concurrency limit.
// If limit <= 0, defaults to runtime.NumCPU().
func NewPool[T any](limit int) *Pool[T] {
	if limit <= 0 {
		limit = runtime.NumCPU()
	}
	return &Pool[T]{limit: limit}
}

// Limit returns the concurrency ceiling.
func (p *Pool[T]) Limit() int { return p.limit }

// MaxConcurrent returns how many of n items can run at once under limit.
func MaxConcurrent(n, limit int) int {
	if n <= 0 || limit <= 0 {
		return 0
	}
	return min(n, limit)
}

// Run executes fn for indexes 0..n-1. It starts MaxConcurrent(n, limit)
// items immediately and admits the next un-started item each time one
// finishes, as long as ctx is not cancelled. Items already running are left
// to observe ctx themselves.
//
// observe is invoked only from the calling goroutine, in admission and
// completion order, so it may mutate caller state without locking. For any
// index, Started always precedes Finished.
func (p *Pool[T]) Run(ctx context.Context, n int, fn func(ctx context.Context, index int) T, observe func(Update[T])) []Result[T] {
	if n <= 0 {
		return nil
	}
	if observe == nil {
		observe = func(Update[T]) {}
	}

	results := make([]Result[T], n)
	for i := range results {
		results[i].Index = i
	}

	type done struct {
		index int
		value T
	}
	// Buffered to n so finished workers never block on a slow observer.
	completions := make(chan done, n)

	next, running := 0, 0
	admit := func() {
		i := next
		next++
		running++
		results[i].Admitted = true
		observe(Update[T]{Kind: Started, Index: i})
		go func() {
			completions <- done{index: i, value: fn(ctx, i)}
		}()
	}

	for running < MaxConcurrent(n, p.limit) && ctx.Err() == nil {
		admit()
	}
	for running > 0 {
		d := <-completions
		running--
		results[d.index].Value = d.value
		observe(Update[T]{Kind: Finished, Index: d.index, Value: d.value})
		if next < n && ctx.Err() == nil {
			admit()
		}
	}
	return results
}
