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

// Package cpufeature describes the running processor's translation
// capabilities.
package cpufeature

// Arch is the processor architecture revision.
type Arch uint8

// Known architecture revisions.
const (
	ARMv5 Arch = iota
	ARMv5T
	ARMv5TE
	ARMv6
	ARMv7
)

// CPU describes one processor's capabilities.
type CPU struct {
	// Arch is the architecture revision.
	Arch Arch

	// HasXP is whether the extended page table format is enabled
	// (control register XP bit).
	HasXP bool

	// XScale3 is whether this is an XScale3 core, which supports
	// supersections regardless of revision.
	XScale3 bool
}

// SupportsSupersections returns whether supersection descriptors may be
// used. They are required for physical addresses beyond the 32-bit native
// descriptor field.
func (c *CPU) SupportsSupersections() bool {
	return (c.Arch >= ARMv6 && c.HasXP) || c.XScale3
}

// HostCPU is the capability set detected at startup. The simulated harness
// defaults to a fully featured ARMv7 part; a platform probe may overwrite
// this before any mappings are established.
var HostCPU = CPU{
	Arch:  ARMv7,
	HasXP: true,
}
