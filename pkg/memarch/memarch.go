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

// Package memarch describes the short-descriptor translation geometry: a
// 32-bit virtual address space mapped through a two-level hierarchy, with
// physical addresses up to 36 bits wide.
package memarch

// Translation geometry.
const (
	// PageShift is the base-2 log of PageSize.
	PageShift = 12

	// PageSize is the size of a hardware page.
	PageSize = 1 << PageShift

	// PageMask masks the offset within a page.
	PageMask = PageSize - 1

	// SectionShift is the base-2 log of SectionSize.
	SectionShift = 20

	// SectionSize is the span of one first-level slot.
	SectionSize = 1 << SectionShift

	// SectionPairShift is the base-2 log of SectionPairSize.
	SectionPairShift = SectionShift + 1

	// SectionPairSize is the span of one walker step over the first
	// level. Section descriptors are always written two slots at a time,
	// so this is the alignment the section path requires.
	SectionPairSize = 1 << SectionPairShift

	// SupersectionShift is the base-2 log of SupersectionSize.
	SupersectionShift = 24

	// SupersectionSize is the span of a supersection: eight consecutive
	// pair steps sharing one descriptor value.
	SupersectionSize = 1 << SupersectionShift

	// DirectShift is the width of the directly addressable physical
	// range. A physical address at or above 1<<DirectShift does not fit
	// the descriptor's native base field and needs the supersection
	// extended bits.
	DirectShift = 32

	// PhysAddrBits is the total implemented physical address width.
	PhysAddrBits = 36
)

// HighPFN is the first page frame number past the directly addressable
// range.
const HighPFN PFN = 1 << (DirectShift - PageShift)

// VirtAddr is a virtual address.
type VirtAddr uint32

// PhysAddr is a physical address. Only the low PhysAddrBits are meaningful.
type PhysAddr uint64

// PFN is a physical page frame number.
type PFN uint32

// Address returns the physical address of the frame's first byte.
func (p PFN) Address() PhysAddr {
	return PhysAddr(p) << PageShift
}

// High returns whether the frame lies beyond the directly addressable
// range.
func (p PFN) High() bool {
	return p >= HighPFN
}

// PFNFromAddr returns the frame containing the given physical address.
func PFNFromAddr(addr PhysAddr) PFN {
	return PFN(addr >> PageShift)
}

// PageDown rounds the address down to a page boundary.
func (v VirtAddr) PageDown() VirtAddr {
	return v &^ PageMask
}

// PageOffset returns the offset of the address within its page.
func (v VirtAddr) PageOffset() uint32 {
	return uint32(v) & PageMask
}

// PageAligned returns whether the address is page-aligned.
func (v VirtAddr) PageAligned() bool {
	return v&PageMask == 0
}

// PageAlignUp rounds size up to a whole number of pages. ok is false if the
// rounding overflows.
func PageAlignUp(size uint32) (_ uint32, ok bool) {
	if size > ^uint32(0)-PageMask {
		return 0, false
	}
	return (size + PageMask) &^ uint32(PageMask), true
}

// NumPages returns the number of whole pages in size. size must be
// page-aligned.
func NumPages(size uint32) uint32 {
	return size >> PageShift
}

// Wraps returns whether the physical extent [base, base+size) wraps the
// physical address space. Zero-size extents wrap by definition.
func Wraps(base PhysAddr, size uint64) bool {
	if size == 0 {
		return true
	}
	last := uint64(base) + size - 1
	return last < uint64(base)
}
