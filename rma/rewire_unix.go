// Copyright 2026 The RMA Authors. SPDX-License-Identifier: Apache-2.0

//go:build unix

package rma

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

func osPageSize() int {
	return os.Getpagesize()
}

// rewiredBacking reserves a large anonymous, inaccessible virtual address
// range up front (PROT_NONE) and commits prefixes of it on demand by
// mprotecting them readable/writable. Because the whole range is reserved
// at construction time, growing the committed prefix never requires
// moving bytes already committed: this approximates in-place array
// growth ("rewiring") using the OS primitives this platform actually
// exposes (mmap/mprotect) rather than a true page-remapping syscall,
// which no mainstream OS provides as such.
type rewiredBacking struct {
	region    []byte // PROT_NONE reservation, len == reserved
	committed int     // bytes currently PROT_READ|PROT_WRITE, from offset 0
}

func newRewiredBacking(reserveBytes int64) (*rewiredBacking, error) {
	region, err := unix.Mmap(-1, 0, int(reserveBytes), unix.PROT_NONE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("%w: reserve %d bytes: %v", ErrOutOfMemory, reserveBytes, err)
	}
	return &rewiredBacking{region: region}, nil
}

func (b *rewiredBacking) Commit(n int) error {
	if n <= b.committed {
		return nil
	}
	if n > len(b.region) {
		return fmt.Errorf("%w: requested %d bytes exceeds the %d byte reservation", ErrOutOfMemory, n, len(b.region))
	}
	if err := unix.Mprotect(b.region[:n], unix.PROT_READ|unix.PROT_WRITE); err != nil {
		return fmt.Errorf("%w: commit %d bytes: %v", ErrOutOfMemory, n, err)
	}
	b.committed = n
	return nil
}

func (b *rewiredBacking) Bytes(n int) []byte {
	return b.region[:n:n]
}

func (b *rewiredBacking) Rewired() bool { return true }

func (b *rewiredBacking) Footprint() int { return b.committed }

func (b *rewiredBacking) Close() error {
	if b.region == nil {
		return nil
	}
	err := unix.Munmap(b.region)
	b.region = nil
	return err
}
