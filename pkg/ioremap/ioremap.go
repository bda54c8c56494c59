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

// Package ioremap maps device and bus memory into the privileged address
// space.
//
// A mapping request names a physical extent and a mapping class. The
// dispatcher reserves a virtual region, picks the coarsest granularity the
// alignment and the processor's capabilities allow (supersection, then
// section, then individual pages) and installs descriptors accordingly.
// Unmap reverses whichever strategy was picked and returns the region.
package ioremap

import (
	"errors"
	"runtime"

	"github.com/Rasfunk/lenovo-a1-07-kernel/pkg/cachemaint"
	"github.com/Rasfunk/lenovo-a1-07-kernel/pkg/cpufeature"
	"github.com/Rasfunk/lenovo-a1-07-kernel/pkg/log"
	"github.com/Rasfunk/lenovo-a1-07-kernel/pkg/memarch"
	"github.com/Rasfunk/lenovo-a1-07-kernel/pkg/memtype"
	"github.com/Rasfunk/lenovo-a1-07-kernel/pkg/pagetables"
	"github.com/Rasfunk/lenovo-a1-07-kernel/pkg/vmregion"
)

// Default bounds of the remap window.
const (
	DefaultWindowStart memarch.VirtAddr = 0xc800_0000
	DefaultWindowEnd   memarch.VirtAddr = 0xf800_0000
)

// Mapping failures. Every failure leaves no mapping behind.
var (
	// ErrZeroSize rejects empty extents.
	ErrZeroSize = errors.New("zero size")

	// ErrWraparound rejects extents whose end wraps the address space.
	ErrWraparound = errors.New("extent wraps the address space")

	// ErrMisaligned rejects extents that miss a hard alignment
	// requirement, such as a high physical base off a supersection
	// boundary.
	ErrMisaligned = errors.New("misaligned extent")

	// ErrUnknownType rejects unresolvable mapping classes.
	ErrUnknownType = errors.New("unknown mapping class")

	// ErrTooManyExtents rejects strided requests over the extent limit.
	ErrTooManyExtents = errors.New("too many extents")

	// ErrStrideMismatch rejects a physical stride without a virtual
	// stride or vice versa.
	ErrStrideMismatch = errors.New("physical and virtual strides must be given together")

	// ErrBadStride rejects stride combinations the layout cannot
	// express.
	ErrBadStride = errors.New("bad stride")
)

// Mapper is the remap dispatcher.
type Mapper struct {
	tables  *pagetables.PageTables
	regions *vmregion.Allocator
	cpu     *cpufeature.CPU
	ops     cachemaint.Ops
}

// New returns a Mapper over the given hierarchy and region window.
func New(tables *pagetables.PageTables, regions *vmregion.Allocator, cpu *cpufeature.CPU, ops cachemaint.Ops) *Mapper {
	return &Mapper{
		tables:  tables,
		regions: regions,
		cpu:     cpu,
		ops:     ops,
	}
}

// Map maps the physical extent [phys, phys+size) and returns the virtual
// address of its first byte. phys need not be page-aligned; the offset
// within the page carries over to the returned address.
func (m *Mapper) Map(phys memarch.PhysAddr, size uint32, t memtype.Type) (memarch.VirtAddr, error) {
	if size == 0 {
		return 0, ErrZeroSize
	}
	if memarch.Wraps(phys, uint64(size)) {
		return 0, ErrWraparound
	}
	return m.mapPFN(memarch.PFNFromAddr(phys), uint32(phys)&memarch.PageMask, size, t, callerName(1))
}

// MapPFN is Map with the extent given as a page frame number plus a byte
// offset within that frame.
func (m *Mapper) MapPFN(pfn memarch.PFN, offset, size uint32, t memtype.Type) (memarch.VirtAddr, error) {
	return m.mapPFN(pfn, offset, size, t, callerName(1))
}

func (m *Mapper) mapPFN(pfn memarch.PFN, offset, size uint32, t memtype.Type, caller string) (memarch.VirtAddr, error) {
	// High extents can only be reached through supersection descriptors,
	// which demand supersection alignment.
	if pfn.High() && uint32(pfn.Address())&(memarch.SupersectionSize-1) != 0 {
		return 0, ErrMisaligned
	}
	mt, ok := memtype.Lookup(t)
	if !ok {
		return 0, ErrUnknownType
	}
	if size == 0 {
		return 0, ErrZeroSize
	}

	// Page align the mapping size, taking account of the offset.
	aligned, ok := memarch.PageAlignUp(offset + size)
	if !ok || offset+size < size {
		return 0, ErrWraparound
	}

	r, err := m.regions.Reserve(aligned, vmregion.FlagRemap, caller)
	if err != nil {
		return 0, err
	}
	va := r.Base

	phys := pfn.Address()
	switch {
	case m.cpu.SupportsSupersections() && pfn.High() &&
		allAligned(phys, aligned, va, memarch.SupersectionSize):
		r.MarkSectionMapped()
		m.tables.MapSupersections(va, pfn, aligned, mt.SectProt)
	case pfn.High():
		// Only a supersection descriptor can carry the extended
		// physical bits; without one this extent cannot be expressed.
		m.regions.Release(r)
		return 0, ErrMisaligned
	case allAligned(phys, aligned, va, memarch.SectionPairSize):
		r.MarkSectionMapped()
		m.tables.MapSections(va, pfn, aligned, mt.SectProt)
	default:
		if err := m.tables.MapPages(va, pfn, aligned, mt.PTEProt); err != nil {
			m.release(r)
			return 0, err
		}
	}

	m.ops.SyncAfterMap(va, aligned)
	return va + memarch.VirtAddr(offset), nil
}

// MapPage installs a single page mapping at a caller-chosen virtual
// address, outside any region bookkeeping. Early platform bring-up uses it
// for fixed mappings.
func (m *Mapper) MapPage(va memarch.VirtAddr, phys memarch.PhysAddr, t memtype.Type) error {
	mt, ok := memtype.Lookup(t)
	if !ok {
		return ErrUnknownType
	}
	return m.tables.MapPages(va, memarch.PFNFromAddr(phys), memarch.PageSize, mt.PTEProt)
}

// Unmap tears down the mapping containing va and releases its region. Any
// address inside the mapped range is accepted; it is masked to a page
// boundary first. Addresses this subsystem never mapped are a caller
// error and are ignored.
func (m *Mapper) Unmap(va memarch.VirtAddr) {
	addr := va.PageDown()

	// Section mappings need the registry lock while the record is
	// consulted and its descriptors cleared, so the record cannot be
	// reclaimed mid-teardown.
	var r *vmregion.Region
	m.regions.WithTraversalLock(func() {
		r = m.regions.FindLocked(addr)
		if r == nil || r.Flags()&vmregion.FlagRemap == 0 {
			r = nil
			return
		}
		if r.SectionMapped() {
			m.tables.UnmapSections(r.Base, r.Size)
		}
	})
	if r == nil {
		log.Warningf("ioremap: unmap of unmapped address %#x", va)
		return
	}
	// Strided regions can mix granularities, so page entries are swept
	// even when the region is tagged section-mapped.
	m.tables.UnmapPages(r.Base, r.Size)
	m.regions.Release(r)
}

// release tears down whatever a failed mapping attempt installed and
// returns the region. No partial mapping survives a failure.
func (m *Mapper) release(r *vmregion.Region) {
	if r.SectionMapped() {
		m.tables.UnmapSections(r.Base, r.Size)
	}
	m.tables.UnmapPages(r.Base, r.Size)
	m.regions.Release(r)
}

// allAligned returns whether base, size and va are all aligned to unit.
func allAligned(base memarch.PhysAddr, size uint32, va memarch.VirtAddr, unit uint32) bool {
	return (uint64(base)|uint64(size)|uint64(va))&uint64(unit-1) == 0
}

// callerName names the caller skip+1 frames up, for region attribution.
func callerName(skip int) string {
	if pc, _, _, ok := runtime.Caller(skip + 1); ok {
		if fn := runtime.FuncForPC(pc); fn != nil {
			return fn.Name()
		}
	}
	return "unknown"
}
