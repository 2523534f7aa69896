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

package dispatch

import (
	"github.com/cloudwego/kernex/pkg/kerrors"
	"github.com/cloudwego/kernex/pkg/ktask"
	"github.com/cloudwego/kernex/pkg/ktime"
)

// BeginWait attempts the wait or enrolls t as a waiter. When the returned
// bool is true the wait completed without blocking and the status is final.
// Otherwise t is Waiting, its wait blocks are linked, and the caller must
// switch the thread out; the completing side fills t.WaitStatus before
// waking it.
//
// An empty object list with a positive timeout is a pure delay. A zero
// timeout polls instead of blocking.
func (d *Dispatcher) BeginWait(t *ktask.TCB, objs []Object, disp ktask.Disposition,
	timeout ktime.Tick, alertable bool) (ktask.Status, bool, error) {
	if len(objs) > ktask.MaxWaitObjects {
		return 0, true, kerrors.ErrTooManyWaitObjects
	}
	if disp == ktask.WaitAll {
		for i := 0; i < len(objs); i++ {
			for j := i + 1; j < len(objs); j++ {
				if objs[i].Header() == objs[j].Header() {
					return 0, true, kerrors.ErrDuplicateWaitObject
				}
			}
		}
	}

	d.mu.Acquire()
	defer d.mu.Release()

	if len(objs) > 0 {
		if st, ok := d.trySatisfy(t, objs, disp); ok {
			return st, true, nil
		}
	}
	if alertable && t.HasAPCs() {
		return ktask.StatusUserAPC, true, nil
	}
	if timeout == Poll {
		return ktask.StatusTimeout, true, nil
	}

	t.WaitSeq++
	t.WaitCount = len(objs)
	t.Alertable = alertable
	for i, o := range objs {
		wb := &t.WaitBlocks[i]
		wb.Disposition = disp
		o.Header().PushWait(wb)
	}
	if timeout > 0 {
		d.timers.Push(&timerEntry{thread: t.Self(), wseq: t.WaitSeq}, int(d.now+timeout))
	}
	t.State = ktask.StateWaiting
	t.WaitSince = d.now
	return 0, false, nil
}

// Alert knocks a thread out of an alertable wait so its queued APCs can run.
// Returns whether the wait was interrupted.
func (d *Dispatcher) Alert(t *ktask.TCB) bool {
	d.mu.Acquire()
	defer d.mu.Release()
	if t.State != ktask.StateWaiting || !t.Alertable {
		return false
	}
	d.completeWait(t, ktask.StatusUserAPC, 0)
	return true
}

// InterruptWait forces a waiting thread out of its wait with the given
// status, whatever it waits on. Returns whether the thread was waiting.
func (d *Dispatcher) InterruptWait(t *ktask.TCB, st ktask.Status) bool {
	d.mu.Acquire()
	defer d.mu.Release()
	if t.State != ktask.StateWaiting {
		return false
	}
	d.completeWait(t, st, 0)
	return true
}

// Doom marks the thread for termination. A waiting thread is knocked out of
// its wait with StatusTerminated and a suspended one is readied, so either
// way the thread reaches a checkpoint and unwinds. Resolution and marking
// happen in one locked section; a handle that goes stale concurrently is
// reported, never acted on.
func (d *Dispatcher) Doom(h ktask.Handle) error {
	d.mu.Acquire()
	defer d.mu.Release()
	t, ok := d.arena.ThreadOK(h)
	if !ok || t.State == ktask.StateTerminated {
		return kerrors.ErrInvalidHandle
	}
	if t.Doomed {
		return kerrors.ErrThreadTerminated
	}
	t.Doomed = true
	switch t.State {
	case ktask.StateWaiting:
		d.completeWait(t, ktask.StatusTerminated, 0)
	case ktask.StateSuspended:
		t.SuspendCount = 0
		d.ready(t, ktask.StatusTerminated, 0)
	}
	return nil
}

// QueueAPC queues fn to the thread and, when the thread sits in an alertable
// wait, completes the wait with StatusUserAPC so delivery is prompt.
func (d *Dispatcher) QueueAPC(h ktask.Handle, fn ktask.APC) error {
	d.mu.Acquire()
	defer d.mu.Release()
	t, ok := d.arena.ThreadOK(h)
	if !ok || t.State == ktask.StateTerminated {
		return kerrors.ErrInvalidHandle
	}
	t.QueueAPC(fn)
	if t.State == ktask.StateWaiting && t.Alertable {
		d.completeWait(t, ktask.StatusUserAPC, 0)
	}
	return nil
}

// NotifyExit runs the dispatcher side of thread termination: every mutex
// still owned is abandoned to its next waiter, and the thread object itself
// becomes signaled so joiners wake.
func (d *Dispatcher) NotifyExit(t *ktask.TCB) {
	d.mu.Acquire()
	defer d.mu.Release()
	for _, m := range d.owned[t.Self()] {
		m.owner = ktask.Nil
		m.recursion = 0
		m.abandoned = true
		m.hdr.Signal = 1
		d.satisfyWaiters(&m.hdr, MutexIncrement)
	}
	delete(d.owned, t.Self())
	t.Header.Signal = 1
	d.satisfyWaiters(&t.Header, 0)
}

// trySatisfy consumes the objects if the wait can complete right now.
func (d *Dispatcher) trySatisfy(t *ktask.TCB, objs []Object, disp ktask.Disposition) (ktask.Status, bool) {
	if disp == ktask.WaitAll {
		for _, o := range objs {
			if !d.signaledFor(o.Header(), t) {
				return 0, false
			}
		}
		st := ktask.StatusSuccess
		for i, o := range objs {
			if d.consume(o.Header(), t) && st == ktask.StatusSuccess {
				st = ktask.AbandonedStatus(i)
			}
		}
		return st, true
	}
	for i, o := range objs {
		h := o.Header()
		if d.signaledFor(h, t) {
			if d.consume(h, t) {
				return ktask.AbandonedStatus(i), true
			}
			return ktask.WaitStatus(i), true
		}
	}
	return 0, false
}

// satisfyWaiters releases waiters of a signaled object until the signal is
// consumed or nobody left can take it.
func (d *Dispatcher) satisfyWaiters(h *ktask.DispatcherHeader, boost ktask.Priority) {
	for h.Signal != 0 {
		satisfied := false
		for wb := h.FrontWait(); wb != nil; wb = wb.NextWait() {
			t := d.arena.Thread(wb.Thread)
			if wb.Disposition == ktask.WaitAll && !d.allSignaledFor(t) {
				continue
			}
			var st ktask.Status
			if wb.Disposition == ktask.WaitAll {
				st = d.consumeAll(t)
			} else {
				st = ktask.WaitStatus(int(wb.Key))
				if d.consume(h, t) {
					st = ktask.AbandonedStatus(int(wb.Key))
				}
			}
			d.completeWait(t, st, boost)
			satisfied = true
			break
		}
		if !satisfied {
			return
		}
	}
}

// signaledFor tells whether h would satisfy a wait by t right now. Only the
// mutex answer depends on the asking thread.
func (d *Dispatcher) signaledFor(h *ktask.DispatcherHeader, t *ktask.TCB) bool {
	if h.Type == ktask.ObjectMutex && h.Container.(*Mutex).owner == t.Self() {
		return true
	}
	return h.Signal != 0
}

// consume takes the signal for t and reports whether an abandoned mutex was
// inherited.
func (d *Dispatcher) consume(h *ktask.DispatcherHeader, t *ktask.TCB) bool {
	switch h.Type {
	case ktask.ObjectSynchronizationEvent, ktask.ObjectSynchronizationTimer:
		h.Signal = 0
	case ktask.ObjectSemaphore:
		h.Signal--
	case ktask.ObjectMutex:
		m := h.Container.(*Mutex)
		if m.owner == t.Self() {
			m.recursion++
			return false
		}
		h.Signal = 0
		m.owner = t.Self()
		m.recursion = 1
		d.owned[t.Self()] = append(d.owned[t.Self()], m)
		if m.abandoned {
			m.abandoned = false
			return true
		}
	}
	return false
}

func (d *Dispatcher) consumeAll(t *ktask.TCB) ktask.Status {
	st := ktask.StatusSuccess
	for i := 0; i < t.WaitCount; i++ {
		if d.consume(t.WaitBlocks[i].Object, t) && st == ktask.StatusSuccess {
			st = ktask.AbandonedStatus(i)
		}
	}
	return st
}

func (d *Dispatcher) allSignaledFor(t *ktask.TCB) bool {
	for i := 0; i < t.WaitCount; i++ {
		if !d.signaledFor(t.WaitBlocks[i].Object, t) {
			return false
		}
	}
	return true
}

// completeWait finishes t's wait with st and hands it to the scheduler.
func (d *Dispatcher) completeWait(t *ktask.TCB, st ktask.Status, boost ktask.Priority) {
	for i := 0; i < t.WaitCount; i++ {
		wb := &t.WaitBlocks[i]
		if wb.Linked() {
			wb.Object.UnlinkWait(wb)
		}
		wb.Object = nil
	}
	t.WaitCount = 0
	t.Alertable = false
	t.WaitStatus = st
	d.ready(t, st, boost)
}
