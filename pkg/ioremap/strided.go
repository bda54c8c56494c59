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

package ioremap

import (
	"github.com/Rasfunk/lenovo-a1-07-kernel/pkg/log"
	"github.com/Rasfunk/lenovo-a1-07-kernel/pkg/memarch"
	"github.com/Rasfunk/lenovo-a1-07-kernel/pkg/memtype"
	"github.com/Rasfunk/lenovo-a1-07-kernel/pkg/vmregion"
)

// MaxExtents bounds the extent count of one strided request.
const MaxExtents = 4

// Extent is one physical extent of a strided request.
type Extent struct {
	// Phys is the extent's physical base.
	Phys memarch.PhysAddr

	// Size is the extent's byte size.
	Size uint32

	// PhysStride partitions the extent into blocks: each stride step
	// advances the physical cursor by this much. Zero means the whole
	// extent is one block. PhysStride and VirtStride must be given
	// together.
	PhysStride uint32

	// VirtStride is how far the virtual cursor advances per stride
	// step. The first VirtStride bytes of each physical block appear in
	// the mapping; the rest is skipped. Zero defaults as PhysStride.
	VirtStride uint32
}

// strides resolves the extent's stride pair.
func (e *Extent) strides() (pstride, vstride uint32) {
	pstride, vstride = e.PhysStride, e.VirtStride
	if pstride == 0 {
		pstride = e.Size
	}
	if vstride == 0 {
		vstride = e.Size
	}
	return pstride, vstride
}

// MapMultiStrided maps up to MaxExtents physical extents into one
// contiguous virtual region and returns the region's base.
//
// Each stride step maps the first VirtStride bytes of one
// PhysStride-sized physical block, so every Nth physical block appears at
// every Mth virtual offset. The granularity of each step is chosen by the
// alignment of the virtual stride, not of the whole extent.
func (m *Mapper) MapMultiStrided(extents []Extent, t memtype.Type) (memarch.VirtAddr, error) {
	if len(extents) > MaxExtents {
		return 0, ErrTooManyExtents
	}
	if len(extents) == 0 {
		return 0, ErrZeroSize
	}

	var total uint64
	for i := range extents {
		e := &extents[i]
		if (e.PhysStride == 0) != (e.VirtStride == 0) {
			return 0, ErrStrideMismatch
		}
		pstride, vstride := e.strides()
		if e.Size == 0 {
			return 0, ErrZeroSize
		}
		if (uint64(e.Phys)|uint64(e.Size)|uint64(pstride)|uint64(vstride))&memarch.PageMask != 0 {
			return 0, ErrMisaligned
		}
		if vstride > pstride || e.Size%pstride != 0 {
			return 0, ErrBadStride
		}
		if memarch.Wraps(e.Phys, uint64(e.Size)) {
			return 0, ErrWraparound
		}
		// High extents must be supersection aligned.
		if memarch.PFNFromAddr(e.Phys).High() && uint32(e.Phys)&(memarch.SupersectionSize-1) != 0 {
			return 0, ErrMisaligned
		}
		total += uint64(e.Size) / uint64(pstride) * uint64(vstride)
	}
	if total > uint64(^uint32(0)) {
		return 0, ErrWraparound
	}

	mt, ok := memtype.Lookup(t)
	if !ok {
		return 0, ErrUnknownType
	}

	r, err := m.regions.Reserve(uint32(total), vmregion.FlagRemap, callerName(1))
	if err != nil {
		return 0, err
	}

	addr := r.Base
	for i := range extents {
		e := &extents[i]
		pstride, vstride := e.strides()
		pfn := memarch.PFNFromAddr(e.Phys)
		log.Debugf("ioremap: mapping %#x to %#x (%#x)", e.Phys, addr, e.Size)
		for off := uint32(0); off < e.Size; off += pstride {
			phys := pfn.Address()
			switch {
			case m.cpu.SupportsSupersections() && pfn.High() &&
				allAligned(phys, vstride, addr, memarch.SupersectionSize):
				r.MarkSectionMapped()
				m.tables.MapSupersections(addr, pfn, vstride, mt.SectProt)
			case pfn.High():
				m.release(r)
				return 0, ErrMisaligned
			case allAligned(phys, vstride, addr, memarch.SectionPairSize):
				r.MarkSectionMapped()
				m.tables.MapSections(addr, pfn, vstride, mt.SectProt)
			default:
				if err := m.tables.MapPages(addr, pfn, vstride, mt.PTEProt); err != nil {
					m.release(r)
					return 0, err
				}
			}
			pfn += memarch.PFN(pstride >> memarch.PageShift)
			addr += memarch.VirtAddr(vstride)
		}
	}

	m.ops.SyncAfterMap(r.Base, uint32(total))
	return r.Base, nil
}
