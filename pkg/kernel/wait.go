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

package kernel

import (
	"github.com/cloudwego/kernex/pkg/bugcheck"
	"github.com/cloudwego/kernex/pkg/dispatch"
	"github.com/cloudwego/kernex/pkg/hal"
	"github.com/cloudwego/kernex/pkg/kerrors"
	"github.com/cloudwego/kernex/pkg/ktask"
	"github.com/cloudwego/kernex/pkg/ktime"
)

// waitOn enrolls the calling thread and switches it out until the wait
// completes, then passes the safe point.
func (k *Kernel) waitOn(t *ktask.TCB, objs []dispatch.Object, disp ktask.Disposition, timeout ktime.Tick, alertable bool) (ktask.Status, error) {
	st, done, err := k.disp.BeginWait(t, objs, disp, timeout, alertable)
	if err != nil {
		return 0, err
	}
	if !done {
		k.sched.Block(t)
		st = t.WaitStatus
	}
	k.safePoint(t)
	return st, nil
}

// Wait blocks the calling thread until obj is signaled or the timeout runs
// out. dispatch.Poll probes without blocking; dispatch.Infinite never times
// out.
func (k *Kernel) Wait(obj dispatch.Object, timeout ktime.Tick) ktask.Status {
	t := k.mustCurrent("wait")
	st, _ := k.waitOn(t, []dispatch.Object{obj}, ktask.WaitAny, timeout, false)
	return st
}

// WaitMulti blocks the calling thread on up to MaxWaitObjects objects, with
// wait-any or wait-all disposition. An alertable wait is interruptible by
// queued procedures, completing with StatusUserAPC.
func (k *Kernel) WaitMulti(objs []dispatch.Object, disp ktask.Disposition, timeout ktime.Tick, alertable bool) (ktask.Status, error) {
	t := k.currentOK()
	if t == nil {
		return 0, kerrors.ErrNotAttached
	}
	t.CheckGoroutine()
	return k.waitOn(t, objs, disp, timeout, alertable)
}

// Delay parks the calling thread for d ticks. A non-positive delay yields
// the processor instead of blocking.
func (k *Kernel) Delay(d ktime.Tick) ktask.Status {
	t := k.mustCurrent("delay")
	if d <= 0 {
		k.sched.Yield(t)
		k.safePoint(t)
		return ktask.StatusSuccess
	}
	st, _ := k.waitOn(t, nil, ktask.WaitAny, d, false)
	return st
}

// Yield gives up the processor to a thread of equal or higher priority, if
// one is ready.
func (k *Kernel) Yield() {
	t := k.mustCurrent("yield")
	k.sched.Yield(t)
	k.safePoint(t)
}

// Checkpoint is the cooperative preemption point for compute loops between
// kernel entries. Returns true if the thread was switched out and back.
func (k *Kernel) Checkpoint() bool {
	t := k.mustCurrent("checkpoint")
	switched := k.sched.Checkpoint(t)
	k.safePoint(t)
	return switched
}

// preemptPoint follows every signal-side operation: when the caller is a
// thread and its signal staged a higher-priority thread on this processor,
// the switch happens here instead of at the next clock tick.
func (k *Kernel) preemptPoint() {
	if t := k.currentOK(); t != nil {
		k.sched.Checkpoint(t)
		k.safePoint(t)
	}
}

// SetEvent signals ev, waking waiters with the event priority boost.
// Returns the previous signaled state.
func (k *Kernel) SetEvent(ev *dispatch.Event) bool {
	was := k.disp.SetEvent(ev, dispatch.EventIncrement)
	k.preemptPoint()
	return was
}

// ResetEvent clears ev and returns the previous signaled state.
func (k *Kernel) ResetEvent(ev *dispatch.Event) bool {
	return k.disp.ResetEvent(ev)
}

// PulseEvent releases current waiters of ev and leaves it unsignaled.
func (k *Kernel) PulseEvent(ev *dispatch.Event) bool {
	was := k.disp.PulseEvent(ev, dispatch.EventIncrement)
	k.preemptPoint()
	return was
}

// ReleaseSemaphore adds n to the semaphore count, waking up to n waiters.
// The count is returned as it was before the release; exceeding the limit
// leaves the semaphore untouched and reports ErrSemaphoreLimit.
func (k *Kernel) ReleaseSemaphore(s *dispatch.Semaphore, n int64) (int64, error) {
	prev, err := k.disp.ReleaseSemaphore(s, n, dispatch.SemaphoreIncrement)
	if err != nil {
		return prev, err
	}
	k.preemptPoint()
	return prev, nil
}

// ReleaseMutex releases one recursion level of m held by the calling
// thread. Releasing a mutex the caller does not own reports
// ErrMutexNotOwner. Acquisition is a Wait on the mutex.
func (k *Kernel) ReleaseMutex(m *dispatch.Mutex) error {
	t := k.currentOK()
	if t == nil {
		return kerrors.ErrNotAttached
	}
	t.CheckGoroutine()
	if err := k.disp.ReleaseMutex(m, t, dispatch.MutexIncrement); err != nil {
		return err
	}
	k.preemptPoint()
	return nil
}

// SetTimer arms tm to fire dueIn ticks from now, rearming every period
// ticks when period is positive. Returns whether the timer was already
// armed.
func (k *Kernel) SetTimer(tm *dispatch.Timer, dueIn, period ktime.Tick) bool {
	return k.disp.SetTimer(tm, dueIn, period)
}

// CancelTimer disarms tm and returns whether it was armed.
func (k *Kernel) CancelTimer(tm *dispatch.Timer) bool {
	return k.disp.CancelTimer(tm)
}

// ReadState reports the signal state of any dispatcher object.
func (k *Kernel) ReadState(o dispatch.Object) int64 {
	return k.disp.ReadState(o)
}

// SetPriority sets the base and current priority of thread h.
func (k *Kernel) SetPriority(h ktask.Handle, pri ktask.Priority) error {
	if !pri.Valid() {
		bugcheck.Halt(bugcheck.CodeStateInvalid, "set priority %d out of range", pri)
	}
	var err error
	k.disp.Locked(func() {
		t, ok := k.arena.ThreadOK(h)
		if !ok || t.State == ktask.StateTerminated {
			err = kerrors.ErrInvalidHandle
			return
		}
		k.sched.SetPriority(t, pri)
	})
	if err != nil {
		return err
	}
	k.preemptPoint()
	return nil
}

// BoostPriority raises the current priority of thread h to at least the
// given level without touching its base. Dynamic threads only; the boost
// decays through normal quantum aging.
func (k *Kernel) BoostPriority(h ktask.Handle, to ktask.Priority) error {
	if !to.Valid() {
		bugcheck.Halt(bugcheck.CodeStateInvalid, "boost priority %d out of range", to)
	}
	var err error
	k.disp.Locked(func() {
		t, ok := k.arena.ThreadOK(h)
		if !ok || t.State == ktask.StateTerminated {
			err = kerrors.ErrInvalidHandle
			return
		}
		k.sched.BoostPriority(t, to)
	})
	if err != nil {
		return err
	}
	k.preemptPoint()
	return nil
}

// FlushTLB runs the shootdown protocol for inv against the target
// processors. An empty target set means every processor. The call returns
// once every target acknowledged, or ErrShootdownTimeout after the
// configured deadline.
func (k *Kernel) FlushTLB(inv hal.Invalidation, targets ktask.CPUSet) error {
	t := k.currentOK()
	var initiator int32
	if t != nil && t.LastCPU >= 0 {
		initiator = t.LastCPU
	}
	if targets.Empty() {
		targets = ktask.AllCPUs(k.sched.CPUCount())
	}
	err := k.tlb.Flush(t, initiator, inv, targets)
	if t != nil {
		k.safePoint(t)
	}
	return err
}

// NotifyMemoryPressure flags memory pressure. The balance set manager
// reacts on the next clock tick: working sets are trimmed and idle stacks
// become swap candidates without waiting for the period boundary.
func (k *Kernel) NotifyMemoryPressure() {
	k.set.NotifyPressure()
	k.pushEvent("memory_pressure", "")
}

// ReadyThreadsOlderThan lists threads that have been sitting in ready
// queues for at least age ticks without running.
func (k *Kernel) ReadyThreadsOlderThan(age ktime.Tick) []ktask.Handle {
	return k.set.ReadyThreadsOlderThan(age)
}
