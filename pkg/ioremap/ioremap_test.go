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
	"strings"
	"testing"

	"github.com/Rasfunk/lenovo-a1-07-kernel/pkg/cachemaint"
	"github.com/Rasfunk/lenovo-a1-07-kernel/pkg/cpufeature"
	"github.com/Rasfunk/lenovo-a1-07-kernel/pkg/memarch"
	"github.com/Rasfunk/lenovo-a1-07-kernel/pkg/memtype"
	"github.com/Rasfunk/lenovo-a1-07-kernel/pkg/pagetables"
	"github.com/Rasfunk/lenovo-a1-07-kernel/pkg/vmregion"
)

type harness struct {
	mapper  *Mapper
	tables  *pagetables.PageTables
	alloc   *pagetables.RuntimeAllocator
	regions *vmregion.Allocator
	rec     *cachemaint.Recorder
}

func newHarness(cpu *cpufeature.CPU, tableCapacity int) *harness {
	if cpu == nil {
		cpu = &cpufeature.CPU{Arch: cpufeature.ARMv7, HasXP: true}
	}
	alloc := pagetables.NewRuntimeAllocator(tableCapacity)
	rec := &cachemaint.Recorder{}
	pt := pagetables.New(alloc, rec, DefaultWindowStart, DefaultWindowEnd)
	regions := vmregion.NewAllocator(DefaultWindowStart, DefaultWindowEnd)
	return &harness{
		mapper:  New(pt, regions, cpu, rec),
		tables:  pt,
		alloc:   alloc,
		regions: regions,
		rec:     rec,
	}
}

func (h *harness) regionCount() int {
	n := 0
	h.regions.ForEach(func(*vmregion.Region) bool {
		n++
		return true
	})
	return n
}

// checkTranslation walks the mapped range page by page and compares each
// translation against the physical extent.
func (h *harness) checkTranslation(t *testing.T, va memarch.VirtAddr, phys memarch.PhysAddr, size uint32) {
	t.Helper()
	for off := uint32(0); off < size; off += memarch.PageSize {
		got, ok := h.tables.Lookup(va + memarch.VirtAddr(off))
		if !ok || got != phys+memarch.PhysAddr(off) {
			t.Fatalf("translation at +%#x = %#x, %v; want %#x", off, got, ok, phys+memarch.PhysAddr(off))
		}
	}
}

func TestMapDevicePage(t *testing.T) {
	h := newHarness(nil, 0)

	va, err := h.mapper.Map(0x1000, 4096, memtype.Device)
	if err != nil {
		t.Fatalf("Map: %v", err)
	}
	if !va.PageAligned() {
		t.Errorf("returned address %#x not page aligned", va)
	}
	if !h.tables.FLDFor(va).IsTable() {
		t.Errorf("single page did not take the fine-grained path")
	}
	h.checkTranslation(t, va, 0x1000, 4096)

	h.mapper.Unmap(va)
	if _, ok := h.tables.Lookup(va); ok {
		t.Errorf("translation survived unmap")
	}
	if h.regions.Find(va) != nil {
		t.Errorf("region survived unmap")
	}
}

func TestMapCarriesPageOffset(t *testing.T) {
	h := newHarness(nil, 0)

	va, err := h.mapper.Map(0x12345, 0x100, memtype.Uncached)
	if err != nil {
		t.Fatalf("Map: %v", err)
	}
	if va&memarch.PageMask != 0x345 {
		t.Errorf("returned address %#x lost the page offset", va)
	}
	if got, ok := h.tables.Lookup(va); !ok || got != 0x12345 {
		t.Errorf("Lookup = %#x, %v; want 0x12345", got, ok)
	}
	// Unmap accepts the offset address back.
	h.mapper.Unmap(va)
	if h.regions.Find(va) != nil {
		t.Errorf("region survived unmap")
	}
}

func TestSectionGranularity(t *testing.T) {
	h := newHarness(nil, 0)

	phys := memarch.PhysAddr(0x4000_0000)
	va, err := h.mapper.Map(phys, memarch.SectionPairSize, memtype.Device)
	if err != nil {
		t.Fatalf("Map: %v", err)
	}
	fld := h.tables.FLDFor(va)
	if !fld.IsSection() || fld.IsSupersection() {
		t.Fatalf("aligned pair did not take the section path: %#x", uint32(fld))
	}
	if got := h.alloc.Live(); got != 0 {
		t.Errorf("section path allocated %d tables", got)
	}
	r := h.regions.Find(va)
	if r == nil || !r.SectionMapped() {
		t.Fatalf("region not tagged section mapped: %v", r)
	}
	h.checkTranslation(t, va, phys, memarch.SectionPairSize)

	h.mapper.Unmap(va)
	if !h.tables.FLDFor(va).IsFault() {
		t.Errorf("section descriptor survived unmap")
	}
	if h.regions.Find(va) != nil {
		t.Errorf("region survived unmap")
	}
}

func TestSectionNeedsPairAlignment(t *testing.T) {
	h := newHarness(nil, 0)

	// A single section's worth is not pair-aligned and falls back to
	// pages.
	va, err := h.mapper.Map(0x4000_0000, memarch.SectionSize, memtype.Device)
	if err != nil {
		t.Fatalf("Map: %v", err)
	}
	if !h.tables.FLDFor(va).IsTable() {
		t.Errorf("unpaired section size did not take the fine-grained path")
	}
	if r := h.regions.Find(va); r == nil || r.SectionMapped() {
		t.Errorf("page-mapped region tagged section mapped")
	}
}

func TestSupersectionGranularity(t *testing.T) {
	h := newHarness(nil, 0)

	phys := memarch.PhysAddr(0x1_0000_0000)
	va, err := h.mapper.Map(phys, memarch.SupersectionSize, memtype.Device)
	if err != nil {
		t.Fatalf("Map: %v", err)
	}
	if !h.tables.FLDFor(va).IsSupersection() {
		t.Fatalf("high aligned extent did not take the supersection path")
	}
	h.checkTranslation(t, va, phys, memarch.SupersectionSize)

	h.mapper.Unmap(va)
	if !h.tables.FLDFor(va).IsFault() {
		t.Errorf("supersection descriptor survived unmap")
	}
}

func TestHighBaseMisaligned(t *testing.T) {
	h := newHarness(nil, 0)

	// A base past the 32-bit range that is off a supersection boundary
	// is rejected for any size.
	for _, size := range []uint32{0x1000, memarch.SectionSize, memarch.SupersectionSize} {
		if _, err := h.mapper.Map(0x1_0010_0000, size, memtype.Device); err != ErrMisaligned {
			t.Errorf("Map(high misaligned, %#x) = %v, want ErrMisaligned", size, err)
		}
	}
	if got := h.regionCount(); got != 0 {
		t.Errorf("%d regions leaked by rejected maps", got)
	}
}

func TestHighBaseNeedsSupersectionExtent(t *testing.T) {
	h := newHarness(nil, 0)

	// Aligned high base, but a size no supersection can cover.
	if _, err := h.mapper.Map(0x1_0000_0000, memarch.SectionSize, memtype.Device); err != ErrMisaligned {
		t.Errorf("Map = %v, want ErrMisaligned", err)
	}
	if got := h.regionCount(); got != 0 {
		t.Errorf("%d regions leaked", got)
	}
}

func TestSupersectionCapabilityGate(t *testing.T) {
	for _, tc := range []struct {
		name string
		cpu  cpufeature.CPU
		want bool
	}{
		{"v5", cpufeature.CPU{Arch: cpufeature.ARMv5}, false},
		{"v6-no-xp", cpufeature.CPU{Arch: cpufeature.ARMv6}, false},
		{"v6-xp", cpufeature.CPU{Arch: cpufeature.ARMv6, HasXP: true}, true},
		{"xscale3", cpufeature.CPU{Arch: cpufeature.ARMv5, XScale3: true}, true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(&tc.cpu, 0)
			_, err := h.mapper.Map(0x1_0000_0000, memarch.SupersectionSize, memtype.Device)
			if tc.want && err != nil {
				t.Fatalf("Map: %v", err)
			}
			if !tc.want && err != ErrMisaligned {
				t.Fatalf("Map = %v, want ErrMisaligned", err)
			}
		})
	}
}

func TestRejectsZeroAndWraparound(t *testing.T) {
	h := newHarness(nil, 0)

	if _, err := h.mapper.Map(0x1000, 0, memtype.Device); err != ErrZeroSize {
		t.Errorf("Map(size 0) = %v, want ErrZeroSize", err)
	}
	// The page offset pushes the aligned size past the address space.
	if _, err := h.mapper.MapPFN(1, 0xfff, ^uint32(0)-0xffe, memtype.Device); err != ErrWraparound {
		t.Errorf("Map(wrapping) = %v, want ErrWraparound", err)
	}
	if got := h.regionCount(); got != 0 {
		t.Errorf("%d regions leaked", got)
	}
}

func TestRejectsUnknownClass(t *testing.T) {
	h := newHarness(nil, 0)
	if _, err := h.mapper.Map(0x1000, 0x1000, memtype.Type(99)); err != ErrUnknownType {
		t.Errorf("Map = %v, want ErrUnknownType", err)
	}
}

func TestUnmapUnknownAddressIsNoop(t *testing.T) {
	h := newHarness(nil, 0)

	va, err := h.mapper.Map(0x1000, 0x1000, memtype.Device)
	if err != nil {
		t.Fatalf("Map: %v", err)
	}
	h.mapper.Unmap(va + 0x100_0000)
	// The live mapping is untouched.
	if _, ok := h.tables.Lookup(va); !ok {
		t.Errorf("unrelated unmap tore down a live mapping")
	}
	if got := h.regionCount(); got != 1 {
		t.Errorf("region count = %d, want 1", got)
	}
}

func TestUnmapThenRemapReusesSpace(t *testing.T) {
	h := newHarness(nil, 0)

	va1, err := h.mapper.Map(0x1000, 0x3000, memtype.Device)
	if err != nil {
		t.Fatalf("Map: %v", err)
	}
	h.mapper.Unmap(va1)

	va2, err := h.mapper.Map(0x8000, 0x3000, memtype.Device)
	if err != nil {
		t.Fatalf("remap: %v", err)
	}
	// First fit hands the freed window straight back.
	if va2 != va1 {
		t.Errorf("remap landed at %#x, want reuse of %#x", va2, va1)
	}
	h.checkTranslation(t, va2, 0x8000, 0x3000)
}

func TestGranularityDeterministic(t *testing.T) {
	h := newHarness(nil, 0)

	classify := func(fld pagetables.FLD) string {
		switch {
		case fld.IsSupersection():
			return "supersection"
		case fld.IsSection():
			return "section"
		case fld.IsTable():
			return "pages"
		}
		return "fault"
	}

	var first string
	for i := 0; i < 3; i++ {
		va, err := h.mapper.Map(0x4000_0000, memarch.SectionPairSize, memtype.Device)
		if err != nil {
			t.Fatalf("Map: %v", err)
		}
		got := classify(h.tables.FLDFor(va))
		if i == 0 {
			first = got
		} else if got != first {
			t.Fatalf("iteration %d chose %s, first chose %s", i, got, first)
		}
		h.mapper.Unmap(va)
	}
}

func TestPageMapFailureReleasesRegion(t *testing.T) {
	h := newHarness(nil, 1)

	// Crossing a section boundary needs a second table the arena cannot
	// supply.
	_, err := h.mapper.Map(0x100_0000, memarch.SectionSize+memarch.PageSize, memtype.Device)
	if err != pagetables.ErrNoMemory {
		t.Fatalf("Map = %v, want ErrNoMemory", err)
	}
	if got := h.regionCount(); got != 0 {
		t.Errorf("%d regions leaked by the failed map", got)
	}
	// Nothing of the partial mapping resolves.
	if _, ok := h.tables.Lookup(DefaultWindowStart); ok {
		t.Errorf("partial mapping survived the failure")
	}
	// The window is still usable at a smaller size.
	if _, err := h.mapper.Map(0x100_0000, memarch.PageSize, memtype.Device); err != nil {
		t.Errorf("Map after failure: %v", err)
	}
}

func TestMapSyncsWholeRange(t *testing.T) {
	h := newHarness(nil, 0)

	va, err := h.mapper.Map(0x1000, 0x3000, memtype.Device)
	if err != nil {
		t.Fatalf("Map: %v", err)
	}
	calls := h.rec.Calls()
	if len(calls) == 0 {
		t.Fatalf("no maintenance recorded")
	}
	last := calls[len(calls)-1]
	if last.Kind != cachemaint.KindSyncAfterMap || last.VA != va.PageDown() || last.Size != 0x3000 {
		t.Errorf("final maintenance = %+v, want sync over the mapped range", last)
	}
}

func TestRegionCallerAttribution(t *testing.T) {
	h := newHarness(nil, 0)
	va, err := h.mapper.Map(0x1000, 0x1000, memtype.Device)
	if err != nil {
		t.Fatalf("Map: %v", err)
	}
	r := h.regions.Find(va)
	if r == nil || !strings.Contains(r.Caller(), "TestRegionCallerAttribution") {
		t.Errorf("region caller = %v, want this test", r)
	}
}

func TestMapPageFixed(t *testing.T) {
	h := newHarness(nil, 0)

	if err := h.mapper.MapPage(0xf000_0000, 0x9000, memtype.DeviceCached); err != nil {
		t.Fatalf("MapPage: %v", err)
	}
	if got, ok := h.tables.Lookup(0xf000_0000); !ok || got != 0x9000 {
		t.Errorf("Lookup = %#x, %v; want 0x9000", got, ok)
	}
	if err := h.mapper.MapPage(0xf000_1000, 0xa000, memtype.Type(99)); err != ErrUnknownType {
		t.Errorf("MapPage = %v, want ErrUnknownType", err)
	}
}
