// Copyright 2026 The A1 Kernel Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package vmregion reserves non-overlapping ranges of privileged virtual
// address space and tracks them in a registry ordered by base address.
package vmregion

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/google/btree"

	"github.com/Rasfunk/lenovo-a1-07-kernel/pkg/memarch"
	"github.com/Rasfunk/lenovo-a1-07-kernel/pkg/sync"
)

// ErrNoSpace is returned when the window cannot fit a reservation.
var ErrNoSpace = errors.New("no virtual space available")

// Flags describe a region.
type Flags uint32

// Region flags.
const (
	// FlagRemap marks regions reserved for I/O remapping.
	FlagRemap Flags = 1 << iota

	// FlagSectionMapped marks remap regions carrying section-level
	// descriptors. Set once by the dispatcher after it picks the
	// mapping strategy; teardown consults it to choose the right path.
	FlagSectionMapped
)

// Region is one reserved range.
type Region struct {
	// Base is the first byte of the range.
	Base memarch.VirtAddr

	// Size is the reserved size. It includes the trailing guard page,
	// so it overshoots the mapped extent by one page.
	Size uint32

	flags  Flags
	caller string
}

// Flags returns the region's flags.
func (r *Region) Flags() Flags {
	return r.flags
}

// MarkSectionMapped tags the region as carrying section-level descriptors.
func (r *Region) MarkSectionMapped() {
	r.flags |= FlagSectionMapped
}

// SectionMapped returns whether the region carries section-level
// descriptors.
func (r *Region) SectionMapped() bool {
	return r.flags&FlagSectionMapped != 0
}

// Caller identifies the call site the region was reserved for.
func (r *Region) Caller() string {
	return r.caller
}

// String implements fmt.Stringer.
func (r *Region) String() string {
	return fmt.Sprintf("[%#x, %#x) flags=%#x caller=%s", r.Base, uint64(r.Base)+uint64(r.Size), r.flags, r.caller)
}

// Allocator hands out regions from a fixed window by first fit. A guard
// page separates consecutive regions so that runs off a mapped range fault
// instead of landing in a neighbor.
type Allocator struct {
	start, end memarch.VirtAddr

	// mu is the registry traversal lock. It orders registry scans
	// against reserve and release; it does not order page table
	// mutation, which relies on the single-mapper discipline.
	mu      sync.RWMutex
	regions *btree.BTreeG[*Region]
}

// NewAllocator returns an allocator for the window [start, end). Both
// bounds must be page-aligned.
func NewAllocator(start, end memarch.VirtAddr) *Allocator {
	if !start.PageAligned() || !end.PageAligned() || start >= end {
		panic(fmt.Sprintf("vmregion: bad window [%#x, %#x)", start, end))
	}
	return &Allocator{
		start: start,
		end:   end,
		regions: btree.NewG(16, func(a, b *Region) bool {
			return a.Base < b.Base
		}),
	}
}

// Reserve returns a new region of at least size bytes plus the guard page,
// or ErrNoSpace. caller attributes the reservation; if empty, the calling
// function is recorded.
func (a *Allocator) Reserve(size uint32, flags Flags, caller string) (*Region, error) {
	aligned, ok := memarch.PageAlignUp(size)
	if !ok || aligned == 0 {
		return nil, ErrNoSpace
	}
	footprint := uint64(aligned) + memarch.PageSize
	if caller == "" {
		caller = "unknown"
		if pc, _, _, ok := runtime.Caller(1); ok {
			if fn := runtime.FuncForPC(pc); fn != nil {
				caller = fn.Name()
			}
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	cursor := uint64(a.start)
	placed := false
	a.regions.Ascend(func(r *Region) bool {
		if cursor+footprint <= uint64(r.Base) {
			placed = true
			return false
		}
		cursor = uint64(r.Base) + uint64(r.Size)
		return true
	})
	if !placed && cursor+footprint > uint64(a.end) {
		return nil, ErrNoSpace
	}

	r := &Region{
		Base:   memarch.VirtAddr(cursor),
		Size:   aligned + memarch.PageSize,
		flags:  flags,
		caller: caller,
	}
	a.regions.ReplaceOrInsert(r)
	return r, nil
}

// Release removes the region from the registry. Releasing a region the
// registry does not hold is a caller error and is ignored.
func (a *Allocator) Release(r *Region) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.regions.Delete(r)
}

// Find returns the region containing addr, masked to a page boundary, or
// nil.
func (a *Allocator) Find(addr memarch.VirtAddr) *Region {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.findLocked(addr)
}

// WithTraversalLock runs fn with the registry write-locked. fn may call
// FindLocked and mutate region tags but must not reserve or release.
func (a *Allocator) WithTraversalLock(fn func()) {
	a.mu.Lock()
	defer a.mu.Unlock()
	fn()
}

// FindLocked is Find for callers inside WithTraversalLock.
func (a *Allocator) FindLocked(addr memarch.VirtAddr) *Region {
	return a.findLocked(addr)
}

func (a *Allocator) findLocked(addr memarch.VirtAddr) *Region {
	addr = addr.PageDown()
	var found *Region
	a.regions.DescendLessOrEqual(&Region{Base: addr}, func(r *Region) bool {
		if uint64(addr) < uint64(r.Base)+uint64(r.Size) {
			found = r
		}
		return false
	})
	return found
}

// ForEach visits every region in base order under the traversal lock.
func (a *Allocator) ForEach(fn func(*Region) bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	a.regions.Ascend(fn)
}
