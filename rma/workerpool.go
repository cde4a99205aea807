// Copyright 2026 The RMA Authors. SPDX-License-Identifier: Apache-2.0

package rma

import (
	"runtime"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// workerPool is a persistent worker pool reused across every rebalance a
// running Engine performs, adapted from a persistent-worker-pool
// package: spawning and tearing down goroutines per rebalance would add
// scheduling latency right on the path writers are blocked on, so workers
// are spawned once at construction and parked on a channel between
// rebalances instead.
//
// Unlike a general-purpose pool, this one only exposes the contiguous-range
// partitioning parallelFor needs: a rebalance window is always partitioned
// into exactly this shape of subtask, so fancier work-stealing variants
// have nothing here to serve and are not carried over.
type workerPool struct {
	numWorkers int
	workC      chan workItem
	closeOnce  sync.Once
	closed     atomic.Bool
}

type workItem struct {
	fn      func() error
	barrier *sync.WaitGroup
	err     *error
	errOnce *sync.Once
}

func newWorkerPool(numWorkers int) *workerPool {
	if numWorkers <= 0 {
		numWorkers = runtime.GOMAXPROCS(0)
	}
	p := &workerPool{
		numWorkers: numWorkers,
		workC:      make(chan workItem, numWorkers*2),
	}
	for range numWorkers {
		go p.worker()
	}
	return p
}

func (p *workerPool) worker() {
	for item := range p.workC {
		if err := runSubtask(item.fn); err != nil {
			item.errOnce.Do(func() { *item.err = err })
		}
		item.barrier.Done()
	}
}

// runSubtask recovers an invariant-violation panic inside a subtask and
// turns it into an error, so one failing subtask cannot take down sibling
// subtasks before they too get a chance to finish.
func runSubtask(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if iv, ok := r.(*InvariantViolation); ok {
				err = iv
				return
			}
			panic(r)
		}
	}()
	return fn()
}

func (p *workerPool) NumWorkers() int { return p.numWorkers }

func (p *workerPool) Close() {
	p.closeOnce.Do(func() {
		p.closed.Store(true)
		close(p.workC)
	})
}

// parallelFor runs fn(start, end) for each of at most min(numWorkers, n) contiguous
// chunks covering [0, n), blocking until all chunks complete, and returns
// the first error any chunk produced (via golang.org/x/sync/errgroup's
// first-error convention, layered over the pool's persistent workers
// rather than errgroup's own goroutine spawning).
func (p *workerPool) parallelFor(n int, fn func(start, end int) error) error {
	if n <= 0 {
		return nil
	}
	if p.closed.Load() {
		return fn(0, n)
	}

	workers := min(p.numWorkers, n)
	if workers == 1 {
		return fn(0, n)
	}

	chunkSize := (n + workers - 1) / workers

	var wg sync.WaitGroup
	var firstErr error
	var errOnce sync.Once
	wg.Add(workers)

	for i := range workers {
		start := i * chunkSize
		end := min(start+chunkSize, n)
		if start >= n {
			wg.Done()
			continue
		}
		p.workC <- workItem{
			fn:      func() error { return fn(start, end) },
			barrier: &wg,
			err:     &firstErr,
			errOnce: &errOnce,
		}
	}
	wg.Wait()
	return firstErr
}

// submit enqueues fn on the persistent pool and blocks until it runs,
// returning its error (or the recovered invariant-violation panic).
func (p *workerPool) submit(fn func() error) error {
	var wg sync.WaitGroup
	var err error
	var once sync.Once
	wg.Add(1)
	p.workC <- workItem{fn: fn, barrier: &wg, err: &err, errOnce: &once}
	wg.Wait()
	return err
}

// parallelForGroup is the errgroup-fronted entry point rebalance.go uses:
// unlike parallelFor, which submits every chunk directly from the calling
// goroutine and blocks on one shared WaitGroup, this spawns one errgroup
// goroutine per chunk (errgroup.Group.Go), each of which submits its
// chunk to the persistent pool and waits for it. Each chunk's actual work
// still runs on the bounded pool above rather than on an unbounded
// goroutine of its own; errgroup only supplies the first-error
// aggregation across the per-chunk dispatchers.
func (p *workerPool) parallelForGroup(n int, fn func(start, end int) error) error {
	if n <= 0 {
		return nil
	}
	if p.closed.Load() {
		return fn(0, n)
	}

	workers := min(p.numWorkers, n)
	if workers <= 1 {
		return fn(0, n)
	}

	chunkSize := (n + workers - 1) / workers

	var g errgroup.Group
	for i := range workers {
		start := i * chunkSize
		end := min(start+chunkSize, n)
		if start >= n {
			break
		}
		g.Go(func() error {
			return p.submit(func() error { return fn(start, end) })
		})
	}
	return g.Wait()
}
