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

// Package pagetables implements the privileged short-descriptor
// translation hierarchy: a fixed first-level table whose slots are either
// empty, second-level table pointers, or section/supersection mappings,
// plus arena-allocated second-level tables of page entries.
//
// Mapping operations take no lock. Callers mapping disjoint virtual ranges
// are safe by disjointness; section unmapping is additionally safe only
// under a single-mapper-at-a-time discipline (see UnmapSections).
package pagetables

import (
	"errors"
	"fmt"

	"github.com/Rasfunk/lenovo-a1-07-kernel/pkg/atomicbitops"
	"github.com/Rasfunk/lenovo-a1-07-kernel/pkg/cachemaint"
	"github.com/Rasfunk/lenovo-a1-07-kernel/pkg/log"
	"github.com/Rasfunk/lenovo-a1-07-kernel/pkg/memarch"
	"github.com/Rasfunk/lenovo-a1-07-kernel/pkg/sync"
)

// ErrNoMemory is returned when a second-level table cannot be allocated.
var ErrNoMemory = errors.New("out of page table memory")

// PageTables is the canonical translation hierarchy.
type PageTables struct {
	// Allocator provides second-level tables.
	Allocator Allocator

	// ops performs cache and translation cache maintenance.
	ops cachemaint.Ops

	// root is the first-level table, owned directly by this structure.
	root [fldsPerTable]FLD

	// generation counts first-level clears. Shadow holders compare it
	// against their cached stamp to detect staleness.
	generation atomicbitops.Uint32

	// sharedLo and sharedHi bound the first-level slots that shadows
	// replicate.
	sharedLo, sharedHi int

	// shadowsMu protects shadows.
	shadowsMu sync.Mutex
	shadows   []*Shadow
}

// New returns an empty hierarchy. sharedStart and sharedEnd bound the
// virtual window whose first-level slots shadow holders replicate; both
// must be section-aligned and sharedEnd may be zero for the top of the
// address space.
func New(a Allocator, ops cachemaint.Ops, sharedStart, sharedEnd memarch.VirtAddr) *PageTables {
	if sharedStart&(memarch.SectionSize-1) != 0 || sharedEnd&(memarch.SectionSize-1) != 0 {
		panic("pagetables: shared window not section-aligned")
	}
	hi := fldsPerTable
	if sharedEnd != 0 {
		hi = fldSlot(sharedEnd)
	}
	return &PageTables{
		Allocator: a,
		ops:       ops,
		sharedLo:  fldSlot(sharedStart),
		sharedHi:  hi,
	}
}

// MapPages installs one page entry per page of [va, va+size), walking and
// extending the hierarchy as needed.
//
// Every leaf slot written must currently be empty; a live entry means a
// double map or corrupted tables, and there is no way to continue safely
// past either, so it panics. Failure to allocate an intermediate table
// returns ErrNoMemory; entries installed before the failure remain for the
// caller to tear down with the enclosing region.
//
// No cache maintenance is performed here. The dispatcher does one pass
// over the whole region once all entries are in place.
func (p *PageTables) MapPages(va memarch.VirtAddr, pfn memarch.PFN, size uint32, prot uint32) error {
	if !va.PageAligned() || size == 0 || size&memarch.PageMask != 0 {
		panic(fmt.Sprintf("pagetables: bad page mapping va=%#x size=%#x", va, size))
	}
	for n := memarch.NumPages(size); n > 0; n-- {
		fld := &p.root[fldSlot(va)]
		var ptes *PTEs
		switch {
		case fld.IsFault():
			if ptes = p.Allocator.NewPTEs(); ptes == nil {
				return ErrNoMemory
			}
			fld.setTable(p.Allocator.PhysicalFor(ptes))
		case fld.IsTable():
			ptes = p.Allocator.LookupPTEs(fld.Table())
		default:
			log.Warningf("pagetables: section descriptor under page mapping at %#x", va)
			panic("pagetables: page mapping over a section")
		}
		pte := &ptes[pteIndex(va)]
		if !pte.IsFault() {
			log.Warningf("pagetables: page already exists at %#x", va)
			panic("pagetables: mapping over a live entry")
		}
		pte.set(pfn, prot)
		va += memarch.PageSize
		pfn++
	}
	return nil
}

// Lookup translates a virtual address through whatever granularity is
// installed.
func (p *PageTables) Lookup(va memarch.VirtAddr) (memarch.PhysAddr, bool) {
	fld := p.root[fldSlot(va)]
	switch {
	case fld.IsSupersection():
		return fld.SectionAddress() + memarch.PhysAddr(uint32(va)&(memarch.SupersectionSize-1)), true
	case fld.IsSection():
		return fld.SectionAddress() + memarch.PhysAddr(uint32(va)&(memarch.SectionSize-1)), true
	case fld.IsTable():
		ptes := p.Allocator.LookupPTEs(fld.Table())
		if ptes == nil {
			return 0, false
		}
		pte := ptes[pteIndex(va)]
		if pte.IsFault() {
			return 0, false
		}
		return pte.Address() + memarch.PhysAddr(va.PageOffset()), true
	}
	return 0, false
}

// FLDFor returns the first-level descriptor covering va.
func (p *PageTables) FLDFor(va memarch.VirtAddr) FLD {
	return p.root[fldSlot(va)]
}

// Generation returns the canonical generation stamp.
func (p *PageTables) Generation() uint32 {
	return p.generation.Load()
}
