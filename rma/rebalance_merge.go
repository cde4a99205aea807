// Copyright 2026 The RMA Authors. SPDX-License-Identifier: Apache-2.0

package rma

import (
	"strconv"

	"golang.org/x/sync/singleflight"
)

// triggerRebalance is the single entry point writers call once their
// local mutation has pushed a segment out of [0, capacity] (overflow) or
// below its underflow floor (overflow == false). golang.org/x/sync/singleflight
// collapses the common case of two writers tripping the same segment's
// trigger at once onto a single rebalance execution; distinct, merely
// overlapping windows are still reconciled by acquireAscending's strict
// gate ordering, which serializes them instead of running both
// concurrently.
//
// A segment cannot be simultaneously over and under its bounds, so two
// callers racing to trigger the same leaf always agree on overflow; the
// flag carried by whichever call wins the singleflight race is the one
// that runs.
func (e *Engine) triggerRebalance(leaf int, overflow bool) {
	key := strconv.Itoa(leaf)
	_, _, shared := e.rebalanceGroup.Do(key, func() (any, error) {
		e.rebalance(leaf, overflow)
		return nil, nil
	})
	if shared && e.logger != nil {
		e.logger.Debug("rebalance merged", "leaf", leaf)
	}
}

// mergeGroup is declared here, alongside the entry point that uses it,
// rather than in engine.go, so the merge policy and its backing primitive
// stay next to each other.
type mergeGroup = singleflight.Group
