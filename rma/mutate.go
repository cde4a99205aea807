// Copyright 2026 The RMA Authors. SPDX-License-Identifier: Apache-2.0

package rma

import "sort"

// segmentSearch returns the index within segment i's occupied range of
// the first key >= target, and whether keys[pos] == target exactly.
// Duplicate keys are accepted; a duplicate inserts at this first >=
// position.
func (s *Storage) segmentSearch(i int, target int64) (pos int, found bool) {
	size := int(s.sizes[i])
	lo, hi := s.SegmentRange(i, size)
	pos = lo + sort.Search(size, func(k int) bool { return s.keys[lo+k] >= target })
	found = pos < hi && s.keys[pos] == target
	return pos, found
}

// insertSegment inserts (key, val) into segment i, which must have
// sizes[i] < capacity. It preserves the packing invariant: even segments
// stay packed against their own right end (grow left), odd segments stay
// packed against their own left end (grow right). Returns whether the
// segment's minimum key changed (the pivot republish trigger for the
// caller).
func (s *Storage) insertSegment(i int, key, val int64) (minChanged bool) {
	size := int(s.sizes[i])
	lo, hi := s.SegmentRange(i, size)
	pos := lo + sort.Search(size, func(k int) bool { return s.keys[lo+k] >= key })

	if i%2 == 0 {
		// right-packed: grows left
		copy(s.keys[lo-1:pos-1], s.keys[lo:pos])
		copy(s.values[lo-1:pos-1], s.values[lo:pos])
		s.keys[pos-1] = key
		s.values[pos-1] = val
		minChanged = pos == lo
	} else {
		// left-packed: grows right
		copy(s.keys[pos+1:hi+1], s.keys[pos:hi])
		copy(s.values[pos+1:hi+1], s.values[pos:hi])
		s.keys[pos] = key
		s.values[pos] = val
		minChanged = pos == lo
	}
	s.sizes[i] = uint16(size + 1)
	return minChanged
}

// removeSegment removes the element at absolute index pos from segment i,
// which must currently hold it, preserving the same packing invariant as
// insertSegment. Returns whether the segment's minimum key changed.
func (s *Storage) removeSegment(i, pos int) (minChanged bool) {
	size := int(s.sizes[i])
	lo, hi := s.SegmentRange(i, size)
	minChanged = pos == lo

	if i%2 == 0 {
		copy(s.keys[lo+1:pos+1], s.keys[lo:pos])
		copy(s.values[lo+1:pos+1], s.values[lo:pos])
	} else {
		copy(s.keys[pos:hi-1], s.keys[pos+1:hi])
		copy(s.values[pos:hi-1], s.values[pos+1:hi])
	}
	s.sizes[i] = uint16(size - 1)
	return minChanged
}
