// Copyright 2026 The RMA Authors. SPDX-License-Identifier: Apache-2.0

package rma

import (
	"sort"
	"sync"
)

// sparseIndex maps a segment's minimum key to its segment id, giving
// O(log S) lookup of "which segment could contain key k" across S live
// pivots, and backs RangeScan's cursor re-resolution after each segment.
// No third-party ordered-map/B-tree dependency turned up anywhere worth
// grounding this on (see DESIGN.md), so this one component is
// intentionally plain standard library: a sorted slice of pivots behind
// a RWMutex, searched with sort.Search.
//
// Entries are kept with a stable pivot->segment association; rebalance
// publication (rebalance.go) removes stale pivots and installs new ones
// for the window it touched in one critical section.
type sparseIndex struct {
	mu     sync.RWMutex
	pivots []int64 // sorted ascending
	segIDs []int   // pivots[i] is the minimum key of segment segIDs[i]
}

func newSparseIndex() *sparseIndex {
	return &sparseIndex{}
}

// floorSegment returns the id of the segment whose pivot is the greatest
// pivot <= key, or (-1, false) if key is smaller than every pivot.
func (x *sparseIndex) floorSegment(key int64) (int, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.floorSegmentLocked(key)
}

func (x *sparseIndex) floorSegmentLocked(key int64) (int, bool) {
	i := sort.Search(len(x.pivots), func(i int) bool { return x.pivots[i] > key })
	if i == 0 {
		return -1, false
	}
	return x.segIDs[i-1], true
}

// ceilingSegment returns the id of the segment whose pivot is the
// smallest pivot >= key, used by RangeScan to re-resolve its cursor after
// releasing a gate.
func (x *sparseIndex) ceilingSegment(key int64) (int, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	i := sort.Search(len(x.pivots), func(i int) bool { return x.pivots[i] >= key })
	if i == len(x.pivots) {
		return -1, false
	}
	return x.segIDs[i], true
}

// republish atomically removes every pivot in removeSegIDs and installs
// the (pivot, segID) pairs in install, used by a completed rebalance task
// to publish its new window layout.
func (x *sparseIndex) republish(removeSegIDs map[int]bool, install []pivotEntry) {
	x.mu.Lock()
	defer x.mu.Unlock()

	kept := x.pivots[:0:0]
	keptIDs := x.segIDs[:0:0]
	for i, id := range x.segIDs {
		if removeSegIDs[id] {
			continue
		}
		kept = append(kept, x.pivots[i])
		keptIDs = append(keptIDs, id)
	}
	for _, e := range install {
		kept = append(kept, e.pivot)
		keptIDs = append(keptIDs, e.segID)
	}

	order := make([]int, len(kept))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool { return kept[order[a]] < kept[order[b]] })

	sortedPivots := make([]int64, len(kept))
	sortedIDs := make([]int, len(kept))
	for i, idx := range order {
		sortedPivots[i] = kept[idx]
		sortedIDs[i] = keptIDs[idx]
	}
	x.pivots = sortedPivots
	x.segIDs = sortedIDs
}

type pivotEntry struct {
	pivot int64
	segID int
}

func (x *sparseIndex) len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.pivots)
}
