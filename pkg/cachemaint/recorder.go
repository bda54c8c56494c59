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

package cachemaint

import (
	"github.com/Rasfunk/lenovo-a1-07-kernel/pkg/memarch"
	"github.com/Rasfunk/lenovo-a1-07-kernel/pkg/sync"
)

// Kind identifies a recorded maintenance operation.
type Kind int

// Recorded operation kinds.
const (
	KindFlushBeforeUnmap Kind = iota
	KindInvalidateTranslations
	KindSyncAfterMap
	KindCommitEntry
)

// Call is one recorded maintenance operation.
type Call struct {
	Kind Kind
	VA   memarch.VirtAddr
	Size uint32
	Slot int
}

// Recorder captures maintenance operations in issue order. Tests use it to
// assert ordering against descriptor mutations.
type Recorder struct {
	mu    sync.Mutex
	calls []Call
}

// Calls returns the operations recorded so far.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// Reset discards recorded operations.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
}

func (r *Recorder) record(c Call) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, c)
}

// FlushBeforeUnmap implements Ops.FlushBeforeUnmap.
func (r *Recorder) FlushBeforeUnmap(va memarch.VirtAddr, size uint32) {
	r.record(Call{Kind: KindFlushBeforeUnmap, VA: va, Size: size})
}

// InvalidateTranslations implements Ops.InvalidateTranslations.
func (r *Recorder) InvalidateTranslations(va memarch.VirtAddr, size uint32) {
	r.record(Call{Kind: KindInvalidateTranslations, VA: va, Size: size})
}

// SyncAfterMap implements Ops.SyncAfterMap.
func (r *Recorder) SyncAfterMap(va memarch.VirtAddr, size uint32) {
	r.record(Call{Kind: KindSyncAfterMap, VA: va, Size: size})
}

// CommitEntry implements Ops.CommitEntry.
func (r *Recorder) CommitEntry(slot int) {
	r.record(Call{Kind: KindCommitEntry, Slot: slot})
}
