/*
 * Copyright 2025 CloudWeGo Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package ktask

import (
	"sync"

	"github.com/cloudwego/kernex/pkg/bugcheck"
	"github.com/cloudwego/kernex/pkg/kerrors"
	"github.com/cloudwego/kernex/pkg/utils"
)

// DefaultMaxThreads is the thread arena capacity when none is configured.
const DefaultMaxThreads = 1024

// DefaultMaxProcesses is the process arena capacity when none is configured.
const DefaultMaxProcesses = 64

// Arena stores the control blocks of one kernel instance. Slots live at
// stable addresses for the life of the arena; handles stay valid until the
// slot is freed and detect reuse afterward. The allocation lock covers only
// alloc and free, never the control blocks themselves.
type Arena struct {
	mu sync.Mutex

	threads    []TCB
	threadGens []uint16
	threadFree []int
	liveT      *utils.MaxCounter

	procs    []Process
	procGens []uint16
	procFree []int
	liveP    *utils.MaxCounter
}

// NewArena creates an arena with the given capacities.
func NewArena(maxThreads, maxProcesses int) *Arena {
	if maxThreads <= 0 {
		maxThreads = DefaultMaxThreads
	}
	if maxThreads > MaxArenaSlots {
		maxThreads = MaxArenaSlots
	}
	if maxProcesses <= 0 {
		maxProcesses = DefaultMaxProcesses
	}
	if maxProcesses > MaxArenaSlots {
		maxProcesses = MaxArenaSlots
	}
	a := &Arena{
		threads:    make([]TCB, maxThreads),
		threadGens: make([]uint16, maxThreads),
		threadFree: make([]int, 0, maxThreads),
		liveT:      utils.NewMaxCounter(maxThreads),
		procs:      make([]Process, maxProcesses),
		procGens:   make([]uint16, maxProcesses),
		procFree:   make([]int, 0, maxProcesses),
		liveP:      utils.NewMaxCounter(maxProcesses),
	}
	for i := maxThreads - 1; i >= 0; i-- {
		a.threadFree = append(a.threadFree, i)
	}
	for i := maxProcesses - 1; i >= 0; i-- {
		a.procFree = append(a.procFree, i)
	}
	return a
}

// Capacity returns the thread arena capacity.
func (a *Arena) Capacity() int {
	return len(a.threads)
}

// LiveThreads returns the number of allocated thread slots.
func (a *Arena) LiveThreads() int {
	return int(a.liveT.Now())
}

// AllocThread allocates a thread slot and returns its handle and block.
func (a *Arena) AllocThread() (Handle, *TCB, error) {
	if !a.liveT.Inc() {
		return Nil, nil, kerrors.ErrArenaExhausted.WithCauseAndExtraMsg(nil, "threads")
	}
	a.mu.Lock()
	n := len(a.threadFree)
	idx := a.threadFree[n-1]
	a.threadFree = a.threadFree[:n-1]
	gen := a.threadGens[idx]
	a.mu.Unlock()

	h := makeHandle(kindThread, idx, gen)
	t := &a.threads[idx]
	t.init(h)
	return h, t, nil
}

// FreeThread releases a thread slot. The handle becomes stale immediately.
func (a *Arena) FreeThread(h Handle) {
	idx := a.checkThread(h)
	a.threads[idx].zero()
	a.mu.Lock()
	a.threadGens[idx] = (a.threadGens[idx] + 1) & genMask
	a.threadFree = append(a.threadFree, idx)
	a.mu.Unlock()
	a.liveT.Dec()
}

// Thread resolves a thread handle. A stale, null or cross-kind handle is a
// fatal inconsistency.
func (a *Arena) Thread(h Handle) *TCB {
	return &a.threads[a.checkThread(h)]
}

// ThreadOK resolves a thread handle without halting on failure. Dumps and
// best-effort scans use it.
func (a *Arena) ThreadOK(h Handle) (*TCB, bool) {
	if h == Nil || h.kind() != kindThread {
		return nil, false
	}
	idx := h.index()
	if idx < 0 || idx >= len(a.threads) || a.threadGens[idx] != h.generation() {
		return nil, false
	}
	t := &a.threads[idx]
	if t.self == Nil {
		return nil, false
	}
	return t, true
}

func (a *Arena) checkThread(h Handle) int {
	if h == Nil || h.kind() != kindThread {
		bugcheck.Halt(bugcheck.CodeHandleInvalid, "not a thread handle: %s", h)
	}
	idx := h.index()
	if idx < 0 || idx >= len(a.threads) {
		bugcheck.Halt(bugcheck.CodeHandleInvalid, "thread handle out of range: %s", h)
	}
	if a.threadGens[idx] != h.generation() {
		bugcheck.Halt(bugcheck.CodeHandleInvalid, "stale thread handle: %s", h)
	}
	return idx
}

// ForEachThread visits every live thread slot until fn returns false.
// Callers provide whatever serialization the visited fields need.
func (a *Arena) ForEachThread(fn func(*TCB) bool) {
	for i := range a.threads {
		t := &a.threads[i]
		if t.self == Nil {
			continue
		}
		if !fn(t) {
			return
		}
	}
}

// AllocProcess allocates a process slot.
func (a *Arena) AllocProcess() (Handle, *Process, error) {
	if !a.liveP.Inc() {
		return Nil, nil, kerrors.ErrArenaExhausted.WithCauseAndExtraMsg(nil, "processes")
	}
	a.mu.Lock()
	n := len(a.procFree)
	idx := a.procFree[n-1]
	a.procFree = a.procFree[:n-1]
	gen := a.procGens[idx]
	a.mu.Unlock()

	h := makeHandle(kindProcess, idx, gen)
	p := &a.procs[idx]
	p.init(h)
	return h, p, nil
}

// FreeProcess releases a process slot.
func (a *Arena) FreeProcess(h Handle) {
	idx := a.checkProcess(h)
	a.procs[idx].zero()
	a.mu.Lock()
	a.procGens[idx] = (a.procGens[idx] + 1) & genMask
	a.procFree = append(a.procFree, idx)
	a.mu.Unlock()
	a.liveP.Dec()
}

// Process resolves a process handle, halting on stale or cross-kind use.
func (a *Arena) Process(h Handle) *Process {
	return &a.procs[a.checkProcess(h)]
}

// ProcessOK resolves a process handle without halting on failure.
func (a *Arena) ProcessOK(h Handle) (*Process, bool) {
	if h == Nil || h.kind() != kindProcess {
		return nil, false
	}
	idx := h.index()
	if idx < 0 || idx >= len(a.procs) || a.procGens[idx] != h.generation() {
		return nil, false
	}
	p := &a.procs[idx]
	if p.self == Nil {
		return nil, false
	}
	return p, true
}

func (a *Arena) checkProcess(h Handle) int {
	if h == Nil || h.kind() != kindProcess {
		bugcheck.Halt(bugcheck.CodeHandleInvalid, "not a process handle: %s", h)
	}
	idx := h.index()
	if idx < 0 || idx >= len(a.procs) {
		bugcheck.Halt(bugcheck.CodeHandleInvalid, "process handle out of range: %s", h)
	}
	if a.procGens[idx] != h.generation() {
		bugcheck.Halt(bugcheck.CodeHandleInvalid, "stale process handle: %s", h)
	}
	return idx
}

// ForEachProcess visits every live process slot until fn returns false.
func (a *Arena) ForEachProcess(fn func(*Process) bool) {
	for i := range a.procs {
		p := &a.procs[i]
		if p.self == Nil {
			continue
		}
		if !fn(p) {
			return
		}
	}
}
