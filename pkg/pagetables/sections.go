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
	"fmt"

	"github.com/Rasfunk/lenovo-a1-07-kernel/pkg/memarch"
)

// sectionPages is the number of pages per section.
const sectionPages = memarch.SectionSize / memarch.PageSize

// MapSections installs section descriptors over [va, va+size), two
// consecutive slots per step. Each pair is committed before the next is
// written.
//
// The target range is first cleared through UnmapSections: section
// descriptors replace whatever occupied those slots, and overwriting a
// table pointer in place would leak its second-level table.
//
// Preconditions: va and size are aligned to the section pair width, and
// the physical base is section-aligned and directly addressable.
//
// This path allocates nothing and cannot fail.
func (p *PageTables) MapSections(va memarch.VirtAddr, pfn memarch.PFN, size uint32, prot uint32) {
	checkSectionRange(va, size, memarch.SectionPairSize)
	p.UnmapSections(va, size)
	for remaining := size; remaining > 0; remaining -= memarch.SectionPairSize {
		slot := fldSlot(va)
		p.root[slot].setSection(pfn.Address(), prot)
		pfn += sectionPages
		p.root[slot+1].setSection(pfn.Address(), prot)
		pfn += sectionPages
		p.ops.CommitEntry(slot)
		va += memarch.SectionPairSize
	}
}

// MapSupersections installs supersection descriptors over [va, va+size).
// One descriptor value, carrying the physical bits beyond the directly
// addressable range, is replicated into eight consecutive slot pairs per
// supersection.
//
// Preconditions: as MapSections, with supersection alignment throughout.
func (p *PageTables) MapSupersections(va memarch.VirtAddr, pfn memarch.PFN, size uint32, prot uint32) {
	checkSectionRange(va, size, memarch.SupersectionSize)
	p.UnmapSections(va, size)
	for remaining := size; remaining > 0; remaining -= memarch.SupersectionSize {
		base := pfn.Address()
		for i := 0; i < supersectionSlots/sectionPairSlots; i++ {
			slot := fldSlot(va)
			p.root[slot].setSupersection(base, prot)
			p.root[slot+1].setSupersection(base, prot)
			p.ops.CommitEntry(slot)
			va += memarch.SectionPairSize
		}
		pfn += memarch.SupersectionSize / memarch.PageSize
	}
}

// UnmapSections clears section-level state over [va, va+size), with size
// rounded down to a whole number of sections (regions carry a trailing
// guard page, so the reserved size overshoots the mapped sections).
//
// For each non-empty slot in range: any second-level table it pointed at
// is freed, the slot is cleared, and the generation is bumped so shadow
// holders notice. Cached data for the range is flushed before the first
// clear and translations are invalidated after the last one.
//
// Shadow reconciliation here is best effort, not a lock: a holder running
// concurrently can still observe the window mid-clear. The configuration
// enables this path with a single logical execution unit, where the
// sequence is sound.
func (p *PageTables) UnmapSections(va memarch.VirtAddr, size uint32) {
	size &^= memarch.SectionSize - 1
	if size == 0 {
		return
	}
	p.ops.FlushBeforeUnmap(va, size)
	cleared := false
	addr := va
	for remaining := size; remaining > 0; {
		slot := fldSlot(addr)
		for s := slot; s < slot+sectionPairSlots; s++ {
			fld := p.root[s]
			if fld.IsFault() {
				continue
			}
			p.root[s].Clear()
			p.generation.Add(1)
			cleared = true
			if fld.IsTable() {
				// Free the second-level table, if there was
				// one.
				if ptes := p.Allocator.LookupPTEs(fld.Table()); ptes != nil {
					p.Allocator.FreePTEs(ptes)
				}
			}
		}
		addr += memarch.SectionPairSize
		if remaining < memarch.SectionPairSize {
			remaining = 0
		} else {
			remaining -= memarch.SectionPairSize
		}
	}
	if cleared {
		p.resyncStaleShadows()
	}
	p.ops.InvalidateTranslations(va, size)
}

// UnmapPages clears page entries over [va, va+size). Slots without a
// second-level table are skipped. Tables are not freed here: the slot
// keeps its table pointer for reuse, and UnmapSections reclaims the table
// if a section mapping later replaces it.
//
// Ordering matches UnmapSections: flush before the clears, translation
// invalidate after.
func (p *PageTables) UnmapPages(va memarch.VirtAddr, size uint32) {
	size &^= memarch.PageMask
	if size == 0 {
		return
	}
	p.ops.FlushBeforeUnmap(va, size)
	addr := va
	for n := memarch.NumPages(size); n > 0; n-- {
		fld := p.root[fldSlot(addr)]
		if fld.IsTable() {
			if ptes := p.Allocator.LookupPTEs(fld.Table()); ptes != nil {
				ptes[pteIndex(addr)].Clear()
			}
		}
		addr += memarch.PageSize
	}
	p.ops.InvalidateTranslations(va, size)
}

func checkSectionRange(va memarch.VirtAddr, size, align uint32) {
	if uint32(va)&(align-1) != 0 || size == 0 || size&(align-1) != 0 {
		panic(fmt.Sprintf("pagetables: bad section range va=%#x size=%#x align=%#x", va, size, align))
	}
}
