// Package dispatch connects finalized utterances to the shared batch
// decoder: the [Gate] serializes access to the one decoder instance per
// process, and the [Dispatcher] turns decoded spans into transcript events.
package dispatch

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Gate is the single-flight guard around one shared batch decoder instance.
// A loaded whisper.cpp context cannot run two inferences concurrently, so
// every decode in the process, across all calls, passes through the same
// Gate. Callers arriving while a decode is in flight block until it
// completes; nothing is dropped or retried.
//
// Create exactly one Gate per decoder backend instance. There is normally
// one backend per process, hence one Gate.
type Gate struct {
	sem *semaphore.Weighted
}

// NewGate creates a Gate admitting one decode at a time.
func NewGate() *Gate {
	return &Gate{sem: semaphore.NewWeighted(1)}
}

// Run invokes fn while holding exclusive access to the decoder. It blocks
// until the gate is acquired or ctx is cancelled. The gate is released when
// fn returns, on success and failure alike; fn's error propagates to the
// caller unchanged.
//
// The gate is held for the full duration of fn and never across any other
// suspension point.
func (g *Gate) Run(ctx context.Context, fn func(context.Context) (string, error)) (string, error) {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer g.sem.Release(1)
	return fn(ctx)
}

// TryRun is like Run but fails fast instead of waiting: it reports false
// without invoking fn when a decode is already in flight. Used by health
// checks that must not queue behind real work.
func (g *Gate) TryRun(fn func() error) (bool, error) {
	if !g.sem.TryAcquire(1) {
		return false, nil
	}
	defer g.sem.Release(1)
	return true, fn()
}
