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
	"testing"

	"github.com/Rasfunk/lenovo-a1-07-kernel/pkg/memarch"
	"github.com/Rasfunk/lenovo-a1-07-kernel/pkg/memtype"
)

func TestMultiStridedInterleave(t *testing.T) {
	h := newHarness(nil, 0)

	// Two banks. Each contributes the first 16 KiB of every 32 KiB
	// physical block, packed back to back virtually.
	extents := []Extent{
		{Phys: 0x4000_0000, Size: 0x1_0000, PhysStride: 0x8000, VirtStride: 0x4000},
		{Phys: 0x5000_0000, Size: 0x1_0000, PhysStride: 0x8000, VirtStride: 0x4000},
	}
	va, err := h.mapper.MapMultiStrided(extents, memtype.Device)
	if err != nil {
		t.Fatalf("MapMultiStrided: %v", err)
	}

	// Total is sum of size/pstride*vstride: 2 * 2 * 0x4000.
	r := h.regions.Find(va)
	if r == nil {
		t.Fatalf("no region at %#x", va)
	}
	if want := uint32(0x1_0000) + memarch.PageSize; r.Size != want {
		t.Errorf("region size = %#x, want %#x", r.Size, want)
	}

	want := []struct {
		off  memarch.VirtAddr
		phys memarch.PhysAddr
	}{
		{0x0000, 0x4000_0000},
		{0x4000, 0x4000_8000},
		{0x8000, 0x5000_0000},
		{0xc000, 0x5000_8000},
	}
	for _, w := range want {
		h.checkTranslation(t, va+w.off, w.phys, 0x4000)
	}
	// The skipped halves of each block do not appear anywhere; the
	// virtual range is exactly the total.
	if _, ok := h.tables.Lookup(va + 0x1_0000); ok {
		t.Errorf("translation past the strided total")
	}

	h.mapper.Unmap(va)
	if _, ok := h.tables.Lookup(va); ok {
		t.Errorf("translation survived unmap")
	}
	if h.regions.Find(va) != nil {
		t.Errorf("region survived unmap")
	}
}

func TestMultiStridedDefaultStrides(t *testing.T) {
	h := newHarness(nil, 0)

	// Absent strides degenerate to one contiguous block per extent.
	va, err := h.mapper.MapMultiStrided([]Extent{
		{Phys: 0x2000, Size: 0x2000},
		{Phys: 0x9000, Size: 0x1000},
	}, memtype.Uncached)
	if err != nil {
		t.Fatalf("MapMultiStrided: %v", err)
	}
	h.checkTranslation(t, va, 0x2000, 0x2000)
	h.checkTranslation(t, va+0x2000, 0x9000, 0x1000)
}

func TestMultiStridedSectionSteps(t *testing.T) {
	h := newHarness(nil, 0)

	// Stride steps are granularity-selected on the virtual stride: a
	// pair-aligned stride takes the section path even though a second,
	// page-sized extent shares the region.
	extents := []Extent{
		{Phys: 0x4000_0000, Size: 2 * memarch.SectionPairSize, PhysStride: memarch.SectionPairSize, VirtStride: memarch.SectionPairSize},
		{Phys: 0x5000_0000, Size: memarch.PageSize},
	}
	va, err := h.mapper.MapMultiStrided(extents, memtype.Device)
	if err != nil {
		t.Fatalf("MapMultiStrided: %v", err)
	}
	if !h.tables.FLDFor(va).IsSection() {
		t.Errorf("pair-aligned stride did not take the section path")
	}
	tail := va + 2*memarch.SectionPairSize
	if !h.tables.FLDFor(tail).IsTable() {
		t.Errorf("page-sized extent did not take the fine-grained path")
	}
	r := h.regions.Find(va)
	if r == nil || !r.SectionMapped() {
		t.Errorf("mixed region not tagged section mapped")
	}
	h.checkTranslation(t, va, 0x4000_0000, 2*memarch.SectionPairSize)
	h.checkTranslation(t, tail, 0x5000_0000, memarch.PageSize)

	// Teardown covers both granularities.
	h.mapper.Unmap(va)
	if !h.tables.FLDFor(va).IsFault() {
		t.Errorf("section descriptors survived unmap")
	}
	if _, ok := h.tables.Lookup(tail); ok {
		t.Errorf("page entries survived unmap")
	}
	if h.regions.Find(va) != nil {
		t.Errorf("region survived unmap")
	}
}

func TestMultiStridedValidation(t *testing.T) {
	h := newHarness(nil, 0)

	for _, tc := range []struct {
		name    string
		extents []Extent
		want    error
	}{
		{"no extents", nil, ErrZeroSize},
		{"too many", make([]Extent, MaxExtents+1), ErrTooManyExtents},
		{"zero size", []Extent{{Phys: 0x1000}}, ErrZeroSize},
		{"lone phys stride", []Extent{{Phys: 0x1000, Size: 0x2000, PhysStride: 0x1000}}, ErrStrideMismatch},
		{"lone virt stride", []Extent{{Phys: 0x1000, Size: 0x2000, VirtStride: 0x1000}}, ErrStrideMismatch},
		{"unaligned phys", []Extent{{Phys: 0x1234, Size: 0x1000}}, ErrMisaligned},
		{"unaligned size", []Extent{{Phys: 0x1000, Size: 0x1234}}, ErrMisaligned},
		{"virt stride over phys", []Extent{{Phys: 0x1000, Size: 0x4000, PhysStride: 0x1000, VirtStride: 0x2000}}, ErrBadStride},
		{"ragged stride", []Extent{{Phys: 0x1000, Size: 0x3000, PhysStride: 0x2000, VirtStride: 0x2000}}, ErrBadStride},
		{"high misaligned", []Extent{{Phys: 0x1_0010_0000, Size: 0x1000}}, ErrMisaligned},
		{"bad class", []Extent{{Phys: 0x1000, Size: 0x1000}}, ErrUnknownType},
	} {
		t.Run(tc.name, func(t *testing.T) {
			class := memtype.Device
			if tc.want == ErrUnknownType {
				class = memtype.Type(99)
			}
			if _, err := h.mapper.MapMultiStrided(tc.extents, class); err != tc.want {
				t.Errorf("MapMultiStrided = %v, want %v", err, tc.want)
			}
		})
	}
	if got := h.regionCount(); got != 0 {
		t.Errorf("%d regions leaked by rejected requests", got)
	}
}

func TestMultiStridedTotalIsExact(t *testing.T) {
	h := newHarness(nil, 0)

	// 3 blocks of 0x3000, 0x1000 visible each.
	va, err := h.mapper.MapMultiStrided([]Extent{
		{Phys: 0x10_0000, Size: 0x9000, PhysStride: 0x3000, VirtStride: 0x1000},
	}, memtype.Device)
	if err != nil {
		t.Fatalf("MapMultiStrided: %v", err)
	}
	for i := memarch.VirtAddr(0); i < 3; i++ {
		want := memarch.PhysAddr(0x10_0000 + i*0x3000)
		if got, ok := h.tables.Lookup(va + i*memarch.PageSize); !ok || got != want {
			t.Errorf("block %d = %#x, %v; want %#x", i, got, ok, want)
		}
	}
	if _, ok := h.tables.Lookup(va + 3*memarch.PageSize); ok {
		t.Errorf("translation past the exact total")
	}
	if r := h.regions.Find(va); r == nil || r.Size != 0x3000+memarch.PageSize {
		t.Errorf("region = %v, want total 0x3000 plus guard", r)
	}
}
