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

// Shadow is a secondary address space's copy of the first-level slots
// covering the shared window. Other address spaces keep such copies so the
// privileged window resolves identically everywhere; a shadow whose stamp
// differs from the canonical generation has not observed some clear and
// must not be trusted until resynced.
type Shadow struct {
	tables *PageTables

	// slots mirrors root[sharedLo:sharedHi].
	slots []FLD

	// generation is the stamp the slots were last copied under.
	generation uint32
}

// NewShadow returns a registered, freshly synced shadow of the shared
// window. Registered shadows are resynced by UnmapSections when stale.
func (p *PageTables) NewShadow() *Shadow {
	s := &Shadow{
		tables: p,
		slots:  make([]FLD, p.sharedHi-p.sharedLo),
	}
	s.Resync()
	p.shadowsMu.Lock()
	p.shadows = append(p.shadows, s)
	p.shadowsMu.Unlock()
	return s
}

// Close unregisters the shadow.
func (s *Shadow) Close() {
	p := s.tables
	p.shadowsMu.Lock()
	defer p.shadowsMu.Unlock()
	for i, other := range p.shadows {
		if other == s {
			p.shadows = append(p.shadows[:i], p.shadows[i+1:]...)
			return
		}
	}
}

// Resync copies the shared window from the canonical table and returns the
// new stamp. If the canonical generation moves during the copy, the copy
// restarts; the loop ends only on a stable stamp. This detects clears that
// race with the copy, but it is not a lock: holders tolerate brief
// staleness under the single-mapper discipline.
func (s *Shadow) Resync() uint32 {
	p := s.tables
	for {
		gen := p.generation.Load()
		copy(s.slots, p.root[p.sharedLo:p.sharedHi])
		s.generation = gen
		if p.generation.Load() == gen {
			return gen
		}
	}
}

// Generation returns the shadow's cached stamp.
func (s *Shadow) Generation() uint32 {
	return s.generation
}

// Stale returns whether the canonical tables moved past this shadow.
func (s *Shadow) Stale() bool {
	return s.generation != s.tables.generation.Load()
}

// FLDFor returns the shadow's descriptor covering va, which must lie in
// the shared window.
func (s *Shadow) FLDFor(va memarch.VirtAddr) FLD {
	slot := fldSlot(va)
	if slot < s.tables.sharedLo || slot >= s.tables.sharedHi {
		panic("pagetables: shadow lookup outside shared window")
	}
	return s.slots[slot-s.tables.sharedLo]
}

// resyncStaleShadows brings every registered stale shadow up to date.
func (p *PageTables) resyncStaleShadows() {
	gen := p.generation.Load()
	p.shadowsMu.Lock()
	defer p.shadowsMu.Unlock()
	for _, s := range p.shadows {
		if s.generation != gen {
			s.Resync()
		}
	}
}
