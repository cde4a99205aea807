// Copyright 2026 The RMA Authors. SPDX-License-Identifier: Apache-2.0

package rma

// rebalance executes the full rebalancing task for a trigger at leaf
// segment leaf: propose a window via the calibrator, acquire its gates in
// ascending order (re-proposing a larger window if the authoritative
// cardinality read after acquisition no longer fits), redistribute the
// window's elements evenly (or resize the whole array in place if even
// the root window is out of bounds), republish the window to the sparse
// index, then release the gates in descending order.
//
// Acquisition always proceeds strictly ascending and, on a failed
// re-check, releases everything already held and restarts from scratch at
// the next level rather than trying to extend a held range upward: that
// would require taking a lower-indexed gate after a higher-indexed one is
// already held, which risks deadlock against a concurrent task doing the
// same ascending acquisition. Level strictly increases each retry and is
// bounded by the tree height, so this always terminates. A window that
// already spans the whole array is never retried: it is resized (overflow)
// or redistributed in place. An underflow trigger starts at the leaf's
// parent window, the level at which segmentUnderflowed detects it.
func (e *Engine) rebalance(leaf int, overflow bool) {
	minLevel := 0
	if !overflow {
		minLevel = 1
	}
	for {
		plan := e.calibrator.propose(leaf, e.storage.NumSegments(), e.storage.SegmentCapacity(), overflow, e.cardinalityOf)
		for plan.Level < minLevel && plan.SegHi-plan.SegLo < e.storage.NumSegments() {
			plan.SegLo, plan.SegHi = parentWindow(plan.SegLo, plan.SegHi, e.storage.NumSegments())
			plan.Level++
		}

		gateLo, gateHi := e.gates.lockRange(plan.SegLo, plan.SegHi)
		held := e.acquireAscending(gateLo, gateHi)

		segLo, segHi := e.gateSegmentRange(gateLo, gateHi)
		card := e.cardinalityOf(segLo, segHi)
		windowLen := segHi - segLo
		density := float64(card) / float64(windowLen*e.storage.SegmentCapacity())
		// The gate-aligned window may be wider than the calibrator's
		// proposed window when segments_per_lock > 1 (lock granularity
		// rounds a small proposal up to a whole number of gates); the
		// authoritative bounds check always uses the actual window's own
		// level, not the proposal's, so the two stay consistent.
		actualLevel := log2Ceil(windowLen)
		lo, up := e.cfg.Thresholds.bounds(actualLevel)

		stillFits := density >= lo && density <= up
		atRoot := windowLen >= e.storage.NumSegments()
		rootExceeded := plan.NeedsResize && atRoot

		if !stillFits && !atRoot {
			e.releaseDescending(held)
			minLevel = actualLevel + 1 // retry with the same trigger, one level higher
			continue
		}

		if e.logger != nil {
			e.logger.Debug("rebalance window finalized",
				"segLo", segLo, "segHi", segHi, "level", actualLevel, "resize", rootExceeded)
		}

		if rootExceeded {
			e.resizeAndRedistribute(segLo, segHi)
		} else {
			e.redistribute(segLo, segHi)
		}

		e.releaseDescending(held)
		return
	}
}

// acquireAscending acquires gates [gateLo, gateHi] in strictly ascending
// index order, each in Rebalance mode.
func (e *Engine) acquireAscending(gateLo, gateHi int) []int {
	held := make([]int, 0, gateHi-gateLo+1)
	for g := gateLo; g <= gateHi; g++ {
		e.gates.gates[g].acquire(modeRebalance)
		held = append(held, g)
	}
	return held
}

func (e *Engine) releaseDescending(held []int) {
	for i := len(held) - 1; i >= 0; i-- {
		e.gates.gates[held[i]].release(modeRebalance)
	}
}

func (e *Engine) gateSegmentRange(gateLo, gateHi int) (segLo, segHi int) {
	perLock := e.gates.segmentsPerLock
	return gateLo * perLock, (gateHi + 1) * perLock
}

// cardinalityOf sums sizes[lo:hi). Callers must hold the relevant gates
// (or, for a lock-free approximate read during propose before gates are
// held, tolerate a possibly-stale answer that rebalance's authoritative
// re-check after acquireAscending will catch).
func (e *Engine) cardinalityOf(lo, hi int) int {
	total := 0
	for i := lo; i < hi; i++ {
		total += int(e.storage.sizes[i])
	}
	return total
}

// redistribute flattens the live elements of [segLo, segHi) into one
// sorted buffer and repacks them evenly across the same segment range,
// publishing the window's new pivots.
func (e *Engine) redistribute(segLo, segHi int) {
	keys, vals := e.collectWindow(segLo, segHi)
	e.scatterWindow(segLo, segHi, keys, vals)
	e.publishWindow(segLo, segHi)
}

// resizeAndRedistribute doubles the storage and gate table, then
// redistributes across the full new range: this is the path taken when
// even the root window cannot absorb the triggering insert.
func (e *Engine) resizeAndRedistribute(segLo, segHi int) {
	oldN := e.storage.NumSegments()
	keys, vals := e.collectWindow(segLo, segHi)

	if err := e.storage.extend(oldN); err != nil {
		violate("resize_failed", err.Error())
	}
	e.gates.extend(e.storage.NumSegments())
	for len(e.pivots) < e.storage.NumSegments() {
		e.pivots = append(e.pivots, 0)
	}

	if e.logger != nil {
		e.logger.Info("storage resized", "old_segments", oldN, "new_segments", e.storage.NumSegments())
	}

	e.scatterWindow(0, e.storage.NumSegments(), keys, vals)
	e.publishWindow(0, e.storage.NumSegments())
}

func (e *Engine) collectWindow(segLo, segHi int) (keys, vals []int64) {
	total := e.cardinalityOf(segLo, segHi)
	keys = make([]int64, 0, total)
	vals = make([]int64, 0, total)
	for i := segLo; i < segHi; i++ {
		size := int(e.storage.sizes[i])
		if size == 0 {
			continue
		}
		lo, hi := e.storage.SegmentRange(i, size)
		keys = append(keys, e.storage.keys[lo:hi]...)
		vals = append(vals, e.storage.values[lo:hi]...)
	}
	return keys, vals
}

// scatterWindow writes keys/vals back evenly across [segLo, segHi),
// executed in parallel subtasks over the output segment range via the
// persistent worker pool.
func (e *Engine) scatterWindow(segLo, segHi int, keys, vals []int64) {
	windowLen := segHi - segLo
	total := len(keys)
	base := total / windowLen
	rem := total % windowLen

	offsets := make([]int, windowLen+1)
	for j := 0; j < windowLen; j++ {
		size := base
		if j < rem {
			size++
		}
		offsets[j+1] = offsets[j] + size
	}

	err := e.pool.parallelForGroup(windowLen, func(start, end int) error {
		for j := start; j < end; j++ {
			segID := segLo + j
			size := offsets[j+1] - offsets[j]
			lo, hi := e.storage.SegmentRange(segID, size)
			copy(e.storage.keys[lo:hi], keys[offsets[j]:offsets[j+1]])
			copy(e.storage.values[lo:hi], vals[offsets[j]:offsets[j+1]])
			e.storage.sizes[segID] = uint16(size)
		}
		return nil
	})
	if err != nil {
		violate("rebalance_subtask_failed", err.Error())
	}
}

// publishWindow republishes every non-empty segment's pivot in
// [segLo, segHi) to the sparse index, removing whatever pivots those
// segment ids previously held.
func (e *Engine) publishWindow(segLo, segHi int) {
	remove := make(map[int]bool, segHi-segLo)
	install := make([]pivotEntry, 0, segHi-segLo)
	for i := segLo; i < segHi; i++ {
		remove[i] = true
		size := int(e.storage.sizes[i])
		if size == 0 {
			e.pivots[i] = 0
			continue
		}
		min := e.storage.SegmentMin(i)
		e.pivots[i] = min
		install = append(install, pivotEntry{pivot: min, segID: i})
	}
	e.idx.republish(remove, install)
}
