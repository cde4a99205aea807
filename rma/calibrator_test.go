// Copyright 2026 The RMA Authors. SPDX-License-Identifier: Apache-2.0

package rma

import "testing"

func TestThresholdBoundsInterpolation(t *testing.T) {
	sched := DefaultThresholds()
	lo0, up0 := sched.bounds(0)
	if up0 != sched.UpSegment || lo0 != sched.LoSegment {
		t.Errorf("bounds(0) = (%v, %v), want (%v, %v)", lo0, up0, sched.LoSegment, sched.UpSegment)
	}

	cutoff := sched.cutoffLevel()
	loC, upC := sched.bounds(cutoff)
	if upC != sched.UpRoot || loC != sched.LoRoot {
		t.Errorf("bounds(cutoff) = (%v, %v), want (%v, %v)", loC, upC, sched.LoRoot, sched.UpRoot)
	}

	// Beyond the cutoff the bounds must not continue drifting.
	loBeyond, upBeyond := sched.bounds(cutoff + 4)
	if loBeyond != loC || upBeyond != upC {
		t.Errorf("bounds(cutoff+4) = (%v, %v), want clamped to (%v, %v)", loBeyond, upBeyond, loC, upC)
	}
}

func TestCalibratorProposeWithinBounds(t *testing.T) {
	c := newCalibrator(DefaultThresholds())
	// A single, half-full segment is within [0, 0.92] at level 0.
	plan := c.propose(0, 4, 64, true, func(lo, hi int) int {
		if lo == 0 && hi == 1 {
			return 32
		}
		return 0
	})
	if plan.SegLo != 0 || plan.SegHi != 1 || plan.Level != 0 {
		t.Errorf("propose = %+v, want a level-0 single-segment window", plan)
	}
}

func TestCalibratorProposeGrowsWindow(t *testing.T) {
	c := newCalibrator(DefaultThresholds())
	// Leaf segment reports full; calibrator must widen the window.
	calls := 0
	plan := c.propose(0, 8, 64, true, func(lo, hi int) int {
		calls++
		windowLen := hi - lo
		// Report every window as completely full, above the upper bound
		// at every level, so the walk must keep widening up to the root.
		return windowLen * 64
	})
	if plan.SegHi-plan.SegLo <= 1 {
		t.Errorf("propose did not grow past a single segment: %+v", plan)
	}
	if calls == 0 {
		t.Error("cardinalityOf was never called")
	}
}

func TestCalibratorProposeNeedsResize(t *testing.T) {
	c := newCalibrator(DefaultThresholds())
	plan := c.propose(0, 2, 64, true, func(lo, hi int) int {
		return (hi - lo) * 64 // always fully packed, never within bounds
	})
	if !plan.NeedsResize {
		t.Errorf("propose = %+v, want NeedsResize", plan)
	}
	if plan.SegLo != 0 || plan.SegHi != 2 {
		t.Errorf("propose window = [%d, %d), want the full [0, 2)", plan.SegLo, plan.SegHi)
	}
}
