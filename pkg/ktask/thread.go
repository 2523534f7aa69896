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
	"os"
	"sync/atomic"

	goid "github.com/choleraehyq/pid"

	"github.com/cloudwego/kernex/pkg/bugcheck"
	"github.com/cloudwego/kernex/pkg/ktime"
)

var forceCheck = true

func init() {
	if os.Getenv("KERNEX_THREAD_DISABLE_CHECK") != "" {
		forceCheck = false
	}
}

// MaxWaitObjects is the most dispatcher objects a single wait may name. The
// wait blocks are embedded in the control block, so the bound is fixed.
const MaxWaitObjects = 8

// APC is a procedure queued to a thread and run on that thread's goroutine
// at its next kernel entry or context switch.
type APC func()

// TCB is a thread control block. Scheduling fields are guarded by the lock
// of the processor the thread is assigned to; wait fields by the dispatcher
// lock. The embedded Header is signaled at termination, which makes the
// thread joinable like any other dispatcher object.
type TCB struct {
	self Handle
	gid  int64

	Header DispatcherHeader

	Name    string
	Process Handle

	State        State
	BasePriority Priority
	Priority     Priority
	Quantum      int32
	Affinity     CPUSet
	LastCPU      int32
	NextCPU      int32

	Link ListEntry

	WaitBlocks [MaxWaitObjects]WaitBlock
	WaitCount  int
	WaitStatus Status
	WaitSeq    uint64
	Alertable  bool

	ReadySince    ktime.Tick
	WaitSince     ktime.Tick
	SwitchedIn    int64
	SuspendCount  int32
	Doomed        bool
	StackResident bool
	Idle          bool

	preemptDepth int32

	apcs []APC

	gate chan struct{}
}

func (t *TCB) init(self Handle) {
	t.self = self
	t.State = StateInitialized
	t.Header.Type = ObjectThread
	t.LastCPU = -1
	t.NextCPU = -1
	t.StackResident = true
	t.gate = make(chan struct{}, 1)
	for i := range t.WaitBlocks {
		t.WaitBlocks[i].Thread = self
		t.WaitBlocks[i].Key = uint8(i)
	}
}

// Self returns the thread's handle.
func (t *TCB) Self() Handle {
	return t.self
}

// BindGoroutine records the calling goroutine as the thread's execution
// context. Kernel entries verify the binding.
func (t *TCB) BindGoroutine() {
	t.gid = goid.Get()
}

// UnbindGoroutine clears the binding when the goroutine detaches.
func (t *TCB) UnbindGoroutine() {
	t.gid = 0
}

// CheckGoroutine verifies the caller runs on the thread's bound goroutine.
// Touching a thread's execution state from a foreign goroutine corrupts the
// processor it runs on, so the violation is fatal.
func (t *TCB) CheckGoroutine() {
	if forceCheck && t.gid != 0 && goid.Get() != t.gid {
		bugcheck.Halt(bugcheck.CodeThreadContext,
			"thread %s entered from foreign goroutine, bound gid=%d", t.self, t.gid)
	}
}

// Bound reports whether a goroutine is attached to the thread.
func (t *TCB) Bound() bool {
	return t.gid != 0
}

// Grant hands the processor to the thread's goroutine. Granting a thread
// that already holds an unconsumed grant is a fatal inconsistency.
func (t *TCB) Grant() {
	select {
	case t.gate <- struct{}{}:
	default:
		bugcheck.Halt(bugcheck.CodeStateInvalid, "double grant to thread %s", t.self)
	}
}

// AwaitGrant parks the goroutine until a processor grants it execution.
func (t *TCB) AwaitGrant() {
	<-t.gate
}

// DisablePreemption raises the thread's non-preemptible depth. While the
// depth is nonzero, checkpoints do not switch and the clock does not charge
// quantum. Rendezvous spins such as a TLB shootdown run under it.
func (t *TCB) DisablePreemption() {
	atomic.AddInt32(&t.preemptDepth, 1)
}

// EnablePreemption undoes one DisablePreemption.
func (t *TCB) EnablePreemption() {
	if atomic.AddInt32(&t.preemptDepth, -1) < 0 {
		bugcheck.Halt(bugcheck.CodeStateInvalid,
			"preemption enabled below zero on thread %s", t.self)
	}
}

// Preemptible reports whether the thread may be switched out at a
// checkpoint.
func (t *TCB) Preemptible() bool {
	return atomic.LoadInt32(&t.preemptDepth) == 0
}

// QueueAPC appends a procedure to the thread's APC queue. Callers hold the
// dispatcher lock.
func (t *TCB) QueueAPC(fn APC) {
	t.apcs = append(t.apcs, fn)
}

// TakeAPCs removes and returns the queued procedures. Callers hold the
// dispatcher lock; the procedures run without it.
func (t *TCB) TakeAPCs() []APC {
	apcs := t.apcs
	t.apcs = nil
	return apcs
}

// HasAPCs reports whether procedures are queued.
func (t *TCB) HasAPCs() bool {
	return len(t.apcs) > 0
}

func (t *TCB) zero() {
	*t = TCB{}
}
