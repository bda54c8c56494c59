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

// Table dimensions.
const (
	// fldsPerTable is the number of first-level descriptors; each spans
	// one section of virtual space.
	fldsPerTable = 1 << (32 - memarch.SectionShift)

	// ptesPerTable is the number of second-level descriptors per table;
	// each spans one page, a table spans one section.
	ptesPerTable = memarch.SectionSize / memarch.PageSize

	// sectionPairSlots is the number of first-level slots written per
	// walker step.
	sectionPairSlots = memarch.SectionPairSize / memarch.SectionSize

	// supersectionSlots is the number of first-level slots one
	// supersection descriptor is replicated into.
	supersectionSlots = memarch.SupersectionSize / memarch.SectionSize
)

// Descriptor type bits, common to both levels. The low two bits of a
// descriptor give its kind; the kinds are mutually exclusive.
const (
	descTypeMask  = 0x3
	descTypeFault = 0x0

	fldTypeTable   = 0x1
	fldTypeSection = 0x2

	pteTypeSmall = 0x2
)

// First-level descriptor field positions.
const (
	// fldTableBase masks the second-level table base address.
	fldTableBase = 0xfffffc00

	// fldSectionBase masks the section physical base.
	fldSectionBase = 0xfff00000

	// fldSupersectionBase masks the supersection physical base. The
	// freed-up low base bits hold the extended physical address.
	fldSupersectionBase = 0xff000000

	// fldSuper marks a section descriptor as a supersection.
	fldSuper = 1 << 18

	// fldExtPhysShift positions the physical address bits beyond the
	// directly addressable range within a supersection descriptor.
	fldExtPhysShift = 20

	// fldExtPhysMask masks those bits after shifting.
	fldExtPhysMask = 0xf
)

// pteBase masks the page frame base in a second-level descriptor.
const pteBase = 0xfffff000

// FLD is a first-level descriptor: fault, a pointer to a second-level
// table, or a section/supersection mapping.
type FLD uint32

// IsFault returns whether the slot maps nothing.
func (f FLD) IsFault() bool {
	return f&descTypeMask == descTypeFault
}

// IsTable returns whether the slot points to a second-level table.
func (f FLD) IsTable() bool {
	return f&descTypeMask == fldTypeTable
}

// IsSection returns whether the slot is a section or supersection mapping.
func (f FLD) IsSection() bool {
	return f&descTypeMask == fldTypeSection
}

// IsSupersection returns whether the slot is a supersection mapping.
func (f FLD) IsSupersection() bool {
	return f.IsSection() && f&fldSuper != 0
}

// Table returns the second-level table address of a table descriptor.
func (f FLD) Table() memarch.PhysAddr {
	return memarch.PhysAddr(f & fldTableBase)
}

// SectionAddress returns the physical base mapped by a section or
// supersection descriptor, including any extended bits.
func (f FLD) SectionAddress() memarch.PhysAddr {
	if f.IsSupersection() {
		ext := memarch.PhysAddr(f>>fldExtPhysShift) & fldExtPhysMask
		return ext<<memarch.DirectShift | memarch.PhysAddr(f&fldSupersectionBase)
	}
	return memarch.PhysAddr(f & fldSectionBase)
}

// Opts returns the attribute bits of a section descriptor. For a
// supersection this includes the extended physical bits, which share the
// word with the attributes.
func (f FLD) Opts() uint32 {
	if f.IsSupersection() {
		return uint32(f) &^ uint32(fldSupersectionBase)
	}
	return uint32(f) &^ uint32(fldSectionBase)
}

// Clear makes the slot a fault entry.
func (f *FLD) Clear() {
	*f = 0
}

// setTable points the slot at a second-level table.
func (f *FLD) setTable(table memarch.PhysAddr) {
	*f = FLD(uint32(table)&fldTableBase | fldTypeTable)
}

// setSection installs a section mapping. base must be section-aligned and
// directly addressable.
func (f *FLD) setSection(base memarch.PhysAddr, prot uint32) {
	*f = FLD(uint32(base)&fldSectionBase | prot)
}

// setSupersection installs a supersection mapping, folding the physical
// bits beyond the directly addressable range into the descriptor.
func (f *FLD) setSupersection(base memarch.PhysAddr, prot uint32) {
	ext := uint32(base>>memarch.DirectShift) & fldExtPhysMask
	*f = FLD(uint32(base)&fldSupersectionBase | ext<<fldExtPhysShift | prot | fldSuper)
}

// PTE is a second-level descriptor mapping a single page.
type PTE uint32

// PTEs is a second-level table, covering one section of virtual space.
type PTEs [ptesPerTable]PTE

// IsFault returns whether the entry maps nothing.
func (p PTE) IsFault() bool {
	return p&descTypeMask == descTypeFault
}

// Address returns the physical page base mapped by the entry.
func (p PTE) Address() memarch.PhysAddr {
	return memarch.PhysAddr(p & pteBase)
}

// Opts returns the attribute bits of the entry.
func (p PTE) Opts() uint32 {
	return uint32(p) &^ uint32(pteBase)
}

// Clear makes the entry a fault entry.
func (p *PTE) Clear() {
	*p = 0
}

// set installs a small page mapping.
func (p *PTE) set(pfn memarch.PFN, prot uint32) {
	*p = PTE(uint32(pfn.Address())&pteBase | prot)
}

// fldSlot returns the first-level slot covering va.
func fldSlot(va memarch.VirtAddr) int {
	return int(va >> memarch.SectionShift)
}

// pteIndex returns the second-level index covering va.
func pteIndex(va memarch.VirtAddr) int {
	return int(va>>memarch.PageShift) & (ptesPerTable - 1)
}
