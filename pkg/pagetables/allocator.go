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

package pagetables

import (
	"github.com/Rasfunk/lenovo-a1-07-kernel/pkg/memarch"
)

// Allocator provides second-level tables.
//
// Tables are owned exclusively by the first-level slot pointing at them;
// freeing a table is an explicit arena deallocation.
type Allocator interface {
	// NewPTEs returns a new zeroed table, or nil if the arena is
	// exhausted.
	NewPTEs() *PTEs

	// PhysicalFor gives the physical address for a table.
	PhysicalFor(ptes *PTEs) memarch.PhysAddr

	// LookupPTEs looks up a table by physical address. It returns nil
	// for addresses that do not name a live table.
	LookupPTEs(physical memarch.PhysAddr) *PTEs

	// FreePTEs returns a table to the arena.
	FreePTEs(ptes *PTEs)
}

// runtimeAllocatorTables is the default arena capacity.
const runtimeAllocatorTables = 1024

// RuntimeAllocator is an arena of second-level tables backed by the Go
// heap. Table "physical" addresses are arena indexes offset into a range
// that no mapping operation hands out.
type RuntimeAllocator struct {
	// base is the fake physical address of arena slot 0.
	base memarch.PhysAddr

	// tables is the arena; entries stay allocated once created and are
	// recycled through free.
	tables []*PTEs

	// index maps a table back to its arena slot.
	index map[*PTEs]int

	// used marks live slots.
	used []bool

	// free is the recycle list, holding indexes of freed slots.
	free []int
}

// NewRuntimeAllocator returns a RuntimeAllocator with capacity for the
// given number of tables. A non-positive capacity selects the default.
func NewRuntimeAllocator(capacity int) *RuntimeAllocator {
	if capacity <= 0 {
		capacity = runtimeAllocatorTables
	}
	return &RuntimeAllocator{
		// Arena addresses must fit the 32-bit table base field of a
		// first-level descriptor. They start at 2 GiB, clear of the
		// low extents callers remap and of the high range (>= 4 GiB)
		// that only section mappings can reach.
		base:   memarch.PhysAddr(1) << (memarch.DirectShift - 1),
		tables: make([]*PTEs, 0, capacity),
		index:  make(map[*PTEs]int),
		used:   make([]bool, 0, capacity),
	}
}

// NewPTEs implements Allocator.NewPTEs.
func (a *RuntimeAllocator) NewPTEs() *PTEs {
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
	t := new(PTEs)
	a.index[t] = len(a.tables)
	a.tables = append(a.tables, t)
	a.used = append(a.used, true)
	return t
}

// PhysicalFor implements Allocator.PhysicalFor.
func (a *RuntimeAllocator) PhysicalFor(ptes *PTEs) memarch.PhysAddr {
	i, ok := a.index[ptes]
	if !ok {
		panic("pagetables: PhysicalFor of table not in arena")
	}
	return a.base + memarch.PhysAddr(i)*memarch.PageSize
}

// LookupPTEs implements Allocator.LookupPTEs.
func (a *RuntimeAllocator) LookupPTEs(physical memarch.PhysAddr) *PTEs {
	if physical < a.base || (physical-a.base)%memarch.PageSize != 0 {
		return nil
	}
	i := int((physical - a.base) / memarch.PageSize)
	if i >= len(a.tables) || !a.used[i] {
		return nil
	}
	return a.tables[i]
}

// FreePTEs implements Allocator.FreePTEs.
func (a *RuntimeAllocator) FreePTEs(ptes *PTEs) {
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

// Live returns the number of tables currently allocated.
func (a *RuntimeAllocator) Live() int {
	n := 0
	for _, u := range a.used {
		if u {
			n++
		}
	}
	return n
}
