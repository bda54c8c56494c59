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

package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/google/subcommands"

	"github.com/Rasfunk/lenovo-a1-07-kernel/pkg/cachemaint"
	"github.com/Rasfunk/lenovo-a1-07-kernel/pkg/cpufeature"
	"github.com/Rasfunk/lenovo-a1-07-kernel/pkg/ioremap"
	"github.com/Rasfunk/lenovo-a1-07-kernel/pkg/memarch"
	"github.com/Rasfunk/lenovo-a1-07-kernel/pkg/memtype"
	"github.com/Rasfunk/lenovo-a1-07-kernel/pkg/pagetables"
	"github.com/Rasfunk/lenovo-a1-07-kernel/pkg/vmregion"
)

// scenario is the TOML layout of a run file.
type scenario struct {
	Window  windowSpec    `toml:"window"`
	Mapping []mappingSpec `toml:"mapping"`
}

type windowSpec struct {
	Start int64 `toml:"start"`
	End   int64 `toml:"end"`
}

type mappingSpec struct {
	Name  string `toml:"name"`
	Phys  int64  `toml:"phys"`
	Size  int64  `toml:"size"`
	Class string `toml:"class"`

	// Extent switches the mapping to the strided entry point.
	Extent []extentSpec `toml:"extent"`
}

type extentSpec struct {
	Phys       int64 `toml:"phys"`
	Size       int64 `toml:"size"`
	PhysStride int64 `toml:"phys_stride"`
	VirtStride int64 `toml:"virt_stride"`
}

// runCmd implements subcommands.Command for the "run" command.
type runCmd struct {
	unmap  bool
	tables int
}

// Name implements subcommands.Command.
func (*runCmd) Name() string {
	return "run"
}

// Synopsis implements subcommands.Command.
func (*runCmd) Synopsis() string {
	return "applies a mapping scenario and prints the resulting layout"
}

// Usage implements subcommands.Command.
func (*runCmd) Usage() string {
	return `run [flags] <scenario.toml>
`
}

// SetFlags implements subcommands.Command.
func (c *runCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.unmap, "unmap", false, "unmap every mapping again after printing the layout.")
	f.IntVar(&c.tables, "tables", 0, "second-level table arena capacity (0 for the default).")
}

// Execute implements subcommands.Command.
func (c *runCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	if f.NArg() != 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}

	var s scenario
	if _, err := toml.DecodeFile(f.Arg(0), &s); err != nil {
		fmt.Printf("reading scenario: %v\n", err)
		return subcommands.ExitFailure
	}
	start, end := ioremap.DefaultWindowStart, ioremap.DefaultWindowEnd
	if s.Window.Start != 0 || s.Window.End != 0 {
		start = memarch.VirtAddr(s.Window.Start)
		end = memarch.VirtAddr(s.Window.End)
	}

	alloc := pagetables.NewRuntimeAllocator(c.tables)
	tables := pagetables.New(alloc, cachemaint.Noop{}, start, end)
	regions := vmregion.NewAllocator(start, end)
	m := ioremap.New(tables, regions, &cpufeature.HostCPU, cachemaint.Noop{})

	var mapped []memarch.VirtAddr
	for i, spec := range s.Mapping {
		name := spec.Name
		if name == "" {
			name = fmt.Sprintf("mapping[%d]", i)
		}
		class, ok := memtype.Parse(spec.Class)
		if !ok {
			fmt.Printf("%s: unknown mapping class %q\n", name, spec.Class)
			return subcommands.ExitFailure
		}
		va, err := applyMapping(m, spec, class)
		if err != nil {
			fmt.Printf("%s: %v\n", name, err)
			return subcommands.ExitFailure
		}
		mapped = append(mapped, va)
		fmt.Printf("%-16s %s -> %#x\n", name, granularity(tables, va), va)
	}

	fmt.Printf("\nregions:\n")
	regions.ForEach(func(r *vmregion.Region) bool {
		fmt.Printf("  %s\n", r)
		return true
	})
	fmt.Printf("second-level tables live: %d, generation: %d\n", alloc.Live(), tables.Generation())

	if c.unmap {
		for _, va := range mapped {
			m.Unmap(va)
		}
		fmt.Printf("after unmap: tables live: %d, generation: %d\n", alloc.Live(), tables.Generation())
	}
	return subcommands.ExitSuccess
}

func applyMapping(m *ioremap.Mapper, spec mappingSpec, class memtype.Type) (memarch.VirtAddr, error) {
	if len(spec.Extent) == 0 {
		return m.Map(memarch.PhysAddr(spec.Phys), uint32(spec.Size), class)
	}
	extents := make([]ioremap.Extent, len(spec.Extent))
	for i, e := range spec.Extent {
		extents[i] = ioremap.Extent{
			Phys:       memarch.PhysAddr(e.Phys),
			Size:       uint32(e.Size),
			PhysStride: uint32(e.PhysStride),
			VirtStride: uint32(e.VirtStride),
		}
	}
	return m.MapMultiStrided(extents, class)
}

func granularity(tables *pagetables.PageTables, va memarch.VirtAddr) string {
	fld := tables.FLDFor(va)
	switch {
	case fld.IsSupersection():
		return "supersection"
	case fld.IsSection():
		return "section"
	case fld.IsTable():
		return "pages"
	default:
		return "unmapped"
	}
}
