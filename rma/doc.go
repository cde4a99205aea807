// Copyright 2026 The RMA Authors. SPDX-License-Identifier: Apache-2.0

// Package rma implements a concurrent, self-balancing ordered index over
// 64-bit integer keys built around a Rewired Packed Memory Array (PMA).
//
// A packed memory array keeps a dense, sorted-with-gaps sequence of
// key/value pairs inside a fixed number of fixed-capacity segments. Writers
// insert and remove locally within a segment; when a segment overflows or
// underflows, an adaptive rebalancing engine locates the smallest enclosing
// window of segments whose density would fall back in bounds, redistributes
// the window's elements evenly (growing the whole array in place when even
// the root window cannot absorb an insert), and republishes the window's new
// partitioning to a sparse index used to locate segments by key.
//
// Basic usage:
//
//	eng, err := rma.New(rma.DefaultConfig())
//	if err != nil {
//		// configuration error
//	}
//	defer eng.Close()
//
//	eng.Insert(42, 420)
//	v, ok, err := eng.Find(42)
//
//	eng.RangeScan(0, 100, func(k, v int64) bool {
//		// visit (k, v) in ascending key order; return false to stop early
//		return true
//	})
package rma
