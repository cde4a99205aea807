// Copyright 2026 The RMA Authors. SPDX-License-Identifier: Apache-2.0

package rma

import (
	"log/slog"
	"sync"
)

// gateMode names what a gate holder is doing. Readers share a gate;
// writers and rebalance tasks each hold it exclusively.
type gateMode int

const (
	modeRead gateMode = iota
	modeWrite
	modeRebalance
)

type gateState int

const (
	gateFree gateState = iota
	gateHeldRead
	gateHeldWrite
	gateHeldRebalance
)

// waiter is one blocked acquire call; ready is closed once granted.
type waiter struct {
	mode  gateMode
	ready chan struct{}
}

// Gate is the per-lock-granularity mutual exclusion primitive: a strict
// FIFO queue of waiters, batched reader grants, and exactly one writer or
// rebalance task in at a time. Because nothing can jump the queue, a
// rebalance task that is already queued behind readers is served no
// later than any writer that queues after it: FIFO ordering alone gives
// rebalance tasks priority over the writers trailing them, without any
// separate priority field.
type Gate struct {
	mu      sync.Mutex
	state   gateState
	readers int
	queue   []*waiter

	id     int
	logger *slog.Logger
}

func newGate(id int, logger *slog.Logger) *Gate {
	return &Gate{id: id, logger: logger}
}

// acquire blocks until the gate is granted in the given mode.
func (g *Gate) acquire(mode gateMode) {
	g.mu.Lock()
	if len(g.queue) == 0 && g.canGrantLocked(mode) {
		g.grantLocked(mode)
		g.mu.Unlock()
		return
	}
	w := &waiter{mode: mode, ready: make(chan struct{})}
	g.queue = append(g.queue, w)
	contended := g.state != gateFree
	g.mu.Unlock()

	if contended && g.logger != nil {
		g.logger.Debug("gate contended", "gate", g.id, "mode", mode)
	}
	<-w.ready
}

func (g *Gate) canGrantLocked(mode gateMode) bool {
	switch mode {
	case modeRead:
		return g.state == gateFree || g.state == gateHeldRead
	default:
		return g.state == gateFree
	}
}

func (g *Gate) grantLocked(mode gateMode) {
	switch mode {
	case modeRead:
		g.state = gateHeldRead
		g.readers++
	case modeWrite:
		g.state = gateHeldWrite
	case modeRebalance:
		g.state = gateHeldRebalance
	}
}

// release gives up one hold of the gate and admits the next eligible
// waiter(s) from the head of the queue.
func (g *Gate) release(mode gateMode) {
	g.mu.Lock()
	switch mode {
	case modeRead:
		g.readers--
		if g.readers == 0 {
			g.state = gateFree
		}
	case modeWrite, modeRebalance:
		g.state = gateFree
	}
	g.pumpLocked()
	g.mu.Unlock()
}

// pumpLocked admits waiters from the head of the queue for as long as the
// current state allows: a run of consecutive Read waiters is granted
// together, otherwise exactly one Write or Rebalance waiter is granted
// and the pump stops.
func (g *Gate) pumpLocked() {
	for len(g.queue) > 0 {
		head := g.queue[0]
		if !g.canGrantLocked(head.mode) {
			return
		}
		g.grantLocked(head.mode)
		close(head.ready)
		g.queue = g.queue[1:]
		if head.mode != modeRead {
			return
		}
	}
}

// cancel removes w from the queue if it has not yet been granted. It is a
// no-op if w was already granted: cancellation only applies to waiters
// that have not yet entered.
func (g *Gate) cancel(w *waiter) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i, q := range g.queue {
		if q == w {
			g.queue = append(g.queue[:i], g.queue[i+1:]...)
			return
		}
	}
}

// GateTable is the array of Gates covering the storage's segments, one
// gate per SegmentsPerLock contiguous segments.
type GateTable struct {
	segmentsPerLock int
	gates           []*Gate
	logger          *slog.Logger
}

func newGateTable(numSegments, segmentsPerLock int, logger *slog.Logger) *GateTable {
	n := numSegments / segmentsPerLock
	if n < 1 {
		n = 1
	}
	t := &GateTable{segmentsPerLock: segmentsPerLock, logger: logger}
	t.gates = make([]*Gate, n)
	for i := range t.gates {
		t.gates[i] = newGate(i, logger)
	}
	return t
}

func (t *GateTable) gateFor(segmentID int) *Gate {
	return t.gates[segmentID/t.segmentsPerLock]
}

func (t *GateTable) lockRange(segLo, segHi int) (gateLo, gateHi int) {
	return segLo / t.segmentsPerLock, (segHi - 1) / t.segmentsPerLock
}

// extend grows the table to cover a new, larger segment count (doubled,
// per the resize rebalance). New gates start Free; nothing can reference
// them until the resize that created them publishes the new layout.
func (t *GateTable) extend(numSegments int) {
	n := numSegments / t.segmentsPerLock
	for len(t.gates) < n {
		t.gates = append(t.gates, newGate(len(t.gates), t.logger))
	}
}

func (t *GateTable) len() int { return len(t.gates) }
