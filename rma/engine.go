// Copyright 2026 The RMA Authors. SPDX-License-Identifier: Apache-2.0

package rma

import (
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
)

// Engine is the top-level, concurrency-safe ordered index. A single
// Engine owns one Storage, one GateTable, and one sparseIndex; all
// public methods are safe to call concurrently from any number of
// goroutines.
type Engine struct {
	cfg        Config
	storage    *Storage
	gates      *GateTable
	idx        *sparseIndex
	calibrator *Calibrator
	pool       *workerPool
	pivots     []int64

	rebalanceGroup mergeGroup
	logger         *slog.Logger
	closed         atomic.Bool
	size           atomic.Int64
}

// New constructs an Engine from cfg. cfg is validated and normalized (see
// Config.Validate) before any allocation happens.
func New(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	storage, err := newStorage(cfg)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:        cfg,
		storage:    storage,
		gates:      newGateTable(int(cfg.InitialSegments), int(cfg.SegmentsPerLock), cfg.Logger),
		idx:        newSparseIndex(),
		calibrator: newCalibrator(cfg.Thresholds),
		pool:       newWorkerPool(cfg.RebalanceWorkers),
		pivots:     make([]int64, storage.NumSegments()),
		logger:     cfg.Logger,
	}
	return e, nil
}

// segmentFor resolves the segment that currently should hold key, per the
// sparse index. An unpublished/empty index (nothing inserted yet, or key
// smaller than every live pivot) resolves to segment 0, the array's
// permanent leftmost segment.
func (e *Engine) segmentFor(key int64) int {
	if id, ok := e.idx.floorSegment(key); ok {
		return id
	}
	return 0
}

// Insert adds (key, value). Duplicate keys are accepted; a duplicate is
// inserted at the first position >= the existing occurrences.
func (e *Engine) Insert(key, val int64) error {
	if e.closed.Load() {
		return ErrClosed
	}
	for {
		segID := e.segmentFor(key)
		gate := e.gates.gateFor(segID)
		gate.acquire(modeWrite)

		if e.segmentFor(key) != segID {
			gate.release(modeWrite)
			continue
		}

		if int(e.storage.sizes[segID]) >= e.storage.SegmentCapacity() {
			gate.release(modeWrite)
			e.triggerRebalance(segID, true)
			continue
		}

		minChanged := e.storage.insertSegment(segID, key, val)
		e.size.Add(1)
		if minChanged {
			e.republishPivot(segID)
		}
		gate.release(modeWrite)
		return nil
	}
}

// Remove deletes one occurrence of key (the first one found) and returns
// its associated value, or (0, false) if key is absent.
func (e *Engine) Remove(key int64) (int64, bool, error) {
	if e.closed.Load() {
		return 0, false, ErrClosed
	}
	for {
		segID := e.segmentFor(key)
		gate := e.gates.gateFor(segID)
		gate.acquire(modeWrite)

		if e.segmentFor(key) != segID {
			gate.release(modeWrite)
			continue
		}

		pos, found := e.storage.segmentSearch(segID, key)
		if !found {
			gate.release(modeWrite)
			return 0, false, nil
		}

		val := e.storage.values[pos]
		minChanged := e.storage.removeSegment(segID, pos)
		e.size.Add(-1)
		if minChanged {
			e.republishPivot(segID)
		}

		underflow := e.segmentUnderflowed(segID)
		gate.release(modeWrite)
		if underflow {
			e.triggerRebalance(segID, false)
		}
		return val, true, nil
	}
}

// segmentUnderflowed reports whether removing from segID has pushed some
// window above the leaf below its density floor. The leaf level's own
// bound (ThresholdSchedule.LoSegment) is 0 by default, so a single
// segment is never "too empty" by itself; underflow has to be judged at
// the next level up, the pair of segments segID's parent window covers,
// the same window an underflow rebalance starts from.
func (e *Engine) segmentUnderflowed(segID int) bool {
	numSegments := e.storage.NumSegments()
	if numSegments <= 1 {
		return false
	}
	segLo, segHi := parentWindow(segID, segID+1, numSegments)
	level := log2Ceil(segHi - segLo)
	lo, _ := e.cfg.Thresholds.bounds(level)
	card := e.cardinalityOf(segLo, segHi)
	density := float64(card) / float64((segHi-segLo)*e.storage.SegmentCapacity())
	return density < lo
}

// Find returns the value associated with key, if present.
func (e *Engine) Find(key int64) (int64, bool, error) {
	if e.closed.Load() {
		return 0, false, ErrClosed
	}
	for {
		segID := e.segmentFor(key)
		gate := e.gates.gateFor(segID)
		gate.acquire(modeRead)

		if e.segmentFor(key) != segID {
			gate.release(modeRead)
			continue
		}

		pos, found := e.storage.segmentSearch(segID, key)
		if !found {
			gate.release(modeRead)
			return 0, false, nil
		}
		val := e.storage.values[pos]
		gate.release(modeRead)
		return val, true, nil
	}
}

// RangeScan visits every (key, value) pair with lo <= key <= hi in
// ascending key order, stopping early if visit returns false. The scan
// re-resolves its cursor segment through the sparse index after every
// segment, so it remains correct across a concurrent resize or rebalance
// instead of assuming segment ids stay adjacent.
func (e *Engine) RangeScan(lo, hi int64, visit func(key, val int64) bool) error {
	if e.closed.Load() {
		return ErrClosed
	}
	segID := e.segmentFor(lo)
	for segID >= 0 && segID < e.storage.NumSegments() {
		gate := e.gates.gateFor(segID)
		gate.acquire(modeRead)

		size := int(e.storage.sizes[segID])
		segLo, segHi := e.storage.SegmentRange(segID, size)
		stop := false
		lastKey := lo - 1
		for i := segLo; i < segHi; i++ {
			k := e.storage.keys[i]
			if k < lo {
				continue
			}
			if k > hi {
				stop = true
				break
			}
			if !visit(k, e.storage.values[i]) {
				stop = true
				break
			}
			lastKey = k
		}
		gate.release(modeRead)
		if stop {
			return nil
		}

		nextID, ok := e.idx.ceilingSegment(lastKey + 1)
		if !ok {
			return nil
		}
		if nextID <= segID {
			segID++
		} else {
			segID = nextID
		}
	}
	return nil
}

func (e *Engine) republishPivot(segID int) {
	remove := map[int]bool{segID: true}
	var install []pivotEntry
	size := int(e.storage.sizes[segID])
	if size > 0 {
		min := e.storage.SegmentMin(segID)
		e.pivots[segID] = min
		install = append(install, pivotEntry{pivot: min, segID: segID})
	} else {
		e.pivots[segID] = 0
	}
	e.idx.republish(remove, install)
}

// Size returns the number of live key/value pairs.
func (e *Engine) Size() int64 {
	return e.size.Load()
}

// MemoryFootprint returns the engine's allocated (not merely logical)
// byte footprint across its storage backings.
func (e *Engine) MemoryFootprint() int {
	return e.storage.MemoryFootprint()
}

// Stats is a read-only introspection snapshot.
type Stats struct {
	Segments    int
	Cardinality int64
	Height      int
	Footprint   int
	Rewired     bool
}

func (e *Engine) Stats() Stats {
	return Stats{
		Segments:    e.storage.NumSegments(),
		Cardinality: e.size.Load(),
		Height:      e.storage.Height(),
		Footprint:   e.storage.MemoryFootprint(),
		Rewired:     e.storage.keysBacking.Rewired(),
	}
}

// Dump writes a human-readable snapshot of every segment's occupied key
// range to sink, useful for interactive debugging or a CLI dump command.
func (e *Engine) Dump(sink io.Writer) error {
	if e.closed.Load() {
		return ErrClosed
	}
	for i := 0; i < e.storage.NumSegments(); i++ {
		size := int(e.storage.sizes[i])
		if size == 0 {
			if _, err := fmt.Fprintf(sink, "segment %d: empty\n", i); err != nil {
				return err
			}
			continue
		}
		lo, hi := e.storage.SegmentRange(i, size)
		if _, err := fmt.Fprintf(sink, "segment %d: [%d..%d] keys=%v\n",
			i, e.storage.keys[lo], e.storage.keys[hi-1], e.storage.keys[lo:hi]); err != nil {
			return err
		}
	}
	return nil
}

// Close drains the rebalance worker pool and releases the storage
// backings. Subsequent operations return ErrClosed.
func (e *Engine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	e.pool.Close()
	return e.storage.Close()
}
