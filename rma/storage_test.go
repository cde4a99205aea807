// Copyright 2026 The RMA Authors. SPDX-License-Identifier: Apache-2.0

package rma

import "testing"

func TestNewStorageDefaults(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	s, err := newStorage(cfg)
	if err != nil {
		t.Fatalf("newStorage: %v", err)
	}
	defer s.Close()

	if s.SegmentCapacity() != 64 {
		t.Errorf("SegmentCapacity = %d, want 64", s.SegmentCapacity())
	}
	if s.NumSegments() != 1 {
		t.Errorf("NumSegments = %d, want 1", s.NumSegments())
	}
	if s.Capacity() != 64 {
		t.Errorf("Capacity = %d, want 64", s.Capacity())
	}
	if got := s.SegmentsPerExtent(); got <= 0 {
		t.Errorf("SegmentsPerExtent = %d, want > 0", got)
	}
}

func TestStorageHeightHyperHeight(t *testing.T) {
	cases := []struct {
		n              int
		height, hyperH int
	}{
		{1, 1, 1},
		{2, 2, 2},
		{4, 3, 3},
		{8, 4, 4},
	}
	for _, c := range cases {
		cfg := DefaultConfig()
		cfg.InitialSegments = uint32(c.n)
		if err := cfg.Validate(); err != nil {
			t.Fatalf("Validate(n=%d): %v", c.n, err)
		}
		s, err := newStorage(cfg)
		if err != nil {
			t.Fatalf("newStorage(n=%d): %v", c.n, err)
		}
		if got := s.Height(); got != c.height {
			t.Errorf("n=%d Height() = %d, want %d", c.n, got, c.height)
		}
		if got := s.HyperHeight(); got != c.hyperH {
			t.Errorf("n=%d HyperHeight() = %d, want %d", c.n, got, c.hyperH)
		}
		s.Close()
	}
}

func TestStorageExtendDoubles(t *testing.T) {
	cfg := DefaultConfig()
	cfg.InitialSegments = 2
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	s, err := newStorage(cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if err := s.extend(s.NumSegments()); err != nil {
		t.Fatalf("extend: %v", err)
	}
	if s.NumSegments() != 4 {
		t.Errorf("NumSegments after extend = %d, want 4", s.NumSegments())
	}
	if s.Capacity() != 4*64 {
		t.Errorf("Capacity after extend = %d, want %d", s.Capacity(), 4*64)
	}
}

func TestSegmentRangeParity(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	s, err := newStorage(cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	// Even segment 0 packs right.
	lo, hi := s.SegmentRange(0, 10)
	if hi != 64 || lo != 54 {
		t.Errorf("even SegmentRange(0, 10) = [%d, %d), want [54, 64)", lo, hi)
	}
}

func TestMemoryFootprintGrowsMonotonically(t *testing.T) {
	cfg := DefaultConfig()
	cfg.InitialSegments = 1
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	s, err := newStorage(cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	before := s.MemoryFootprint()
	for i := 0; i < 4; i++ {
		if err := s.extend(s.NumSegments()); err != nil {
			t.Fatalf("extend: %v", err)
		}
		after := s.MemoryFootprint()
		if after < before {
			t.Fatalf("footprint shrank: %d -> %d", before, after)
		}
		before = after
	}
}
