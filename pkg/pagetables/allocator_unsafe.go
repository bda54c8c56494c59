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

//go:build linux

package pagetables

import (
	"fmt"
	"unsafe"

	"github.com/Rasfunk/lenovo-a1-07-kernel/pkg/memarch"
	"github.com/Rasfunk/lenovo-a1-07-kernel/pkg/memutil"
)

// tableBytes is the in-memory size of one second-level table.
const tableBytes = ptesPerTable * 4

// MmapAllocator is an arena of second-level tables carved out of one
// anonymous host mapping, so tables are contiguous and table addresses are
// stable offsets rather than heap pointers.
type MmapAllocator struct {
	backing []byte

	// base is the fake physical address of arena offset 0.
	base memarch.PhysAddr

	tables []*PTEs
	index  map[*PTEs]int
	used   []bool
	free   []int
}

// NewMmapAllocator returns an MmapAllocator with capacity for the given
// number of tables.
func NewMmapAllocator(capacity int) (*MmapAllocator, error) {
	if capacity <= 0 {
		capacity = runtimeAllocatorTables
	}
	size, ok := memarch.PageAlignUp(uint32(capacity * tableBytes))
	if !ok {
		return nil, fmt.Errorf("arena capacity %d overflows", capacity)
	}
	backing, err := memutil.MapAnonymous(int(size))
	if err != nil {
		return nil, fmt.Errorf("mapping arena backing: %w", err)
	}
	return &MmapAllocator{
		backing: backing,
		base:    memarch.PhysAddr(1) << (memarch.DirectShift - 1),
		tables:  make([]*PTEs, 0, capacity),
		index:   make(map[*PTEs]int),
		used:    make([]bool, 0, capacity),
	}, nil
}

// Close releases the arena backing. No table may be used afterwards.
func (a *MmapAllocator) Close() error {
	return memutil.UnmapSlice(a.backing)
}

// NewPTEs implements Allocator.NewPTEs.
func (a *MmapAllocator) NewPTEs() *PTEs {
	if n := len(a.free); n > 0 {
		i := a.free[n-1]
		a.free = a.free[:n-1]
		a.used[i] = true
		*a.tables[i] = PTEs{}
		return a.tables[i]
	}
	if len(a.tables) == cap(a.tables) {
		return nil
	}
	t := (*PTEs)(unsafe.Pointer(&a.backing[len(a.tables)*tableBytes]))
	a.index[t] = len(a.tables)
	a.tables = append(a.tables, t)
	a.used = append(a.used, true)
	return t
}

// PhysicalFor implements Allocator.PhysicalFor.
func (a *MmapAllocator) PhysicalFor(ptes *PTEs) memarch.PhysAddr {
	i, ok := a.index[ptes]
	if !ok {
		panic("pagetables: PhysicalFor of table not in arena")
	}
	return a.base + memarch.PhysAddr(i)*tableBytes
}

// LookupPTEs implements Allocator.LookupPTEs.
func (a *MmapAllocator) LookupPTEs(physical memarch.PhysAddr) *PTEs {
	if physical < a.base || (physical-a.base)%tableBytes != 0 {
		return nil
	}
	i := int((physical - a.base) / tableBytes)
	if i >= len(a.tables) || !a.used[i] {
		return nil
	}
	return a.tables[i]
}

// FreePTEs implements Allocator.FreePTEs.
func (a *MmapAllocator) FreePTEs(ptes *PTEs) {
	i, ok := a.index[ptes]
	if !ok {
		panic("pagetables: FreePTEs of table not in arena")
	}
	if !a.used[i] {
		panic("pagetables: double free of second-level table")
	}
	a.used[i] = false
	a.free = append(a.free, i)
}
