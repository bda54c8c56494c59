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

// Package cachemaint abstracts cache and translation cache maintenance.
//
// The mapping engine treats these as opaque synchronous barriers: a flush
// issued before a descriptor clear completes before the clear is visible,
// and a translation invalidate issued after a clear completes before the
// caller may assume no stale translation remains.
package cachemaint

import (
	"github.com/Rasfunk/lenovo-a1-07-kernel/pkg/memarch"
)

// Ops is the set of maintenance operations the mapping engine requires.
type Ops interface {
	// FlushBeforeUnmap writes back and invalidates cached data for the
	// virtual range about to be unmapped.
	FlushBeforeUnmap(va memarch.VirtAddr, size uint32)

	// InvalidateTranslations removes cached translations for the given
	// virtual range.
	InvalidateTranslations(va memarch.VirtAddr, size uint32)

	// SyncAfterMap makes a freshly mapped virtual range coherent.
	SyncAfterMap(va memarch.VirtAddr, size uint32)

	// CommitEntry commits a single first-level descriptor pair, given by
	// slot index, to memory.
	CommitEntry(slot int)
}

// Noop performs no maintenance. It is the correct implementation for the
// simulated hierarchy, where descriptors live in ordinary memory.
type Noop struct{}

// FlushBeforeUnmap implements Ops.FlushBeforeUnmap.
func (Noop) FlushBeforeUnmap(memarch.VirtAddr, uint32) {}

// InvalidateTranslations implements Ops.InvalidateTranslations.
func (Noop) InvalidateTranslations(memarch.VirtAddr, uint32) {}

// SyncAfterMap implements Ops.SyncAfterMap.
func (Noop) SyncAfterMap(memarch.VirtAddr, uint32) {}

// CommitEntry implements Ops.CommitEntry.
func (Noop) CommitEntry(int) {}
