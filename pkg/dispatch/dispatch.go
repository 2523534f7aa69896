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

// Package dispatch implements the dispatcher objects and the wait engine
// over them: events, semaphores, mutexes, timers and thread termination.
// One push lock serializes every object and every thread's wait state; the
// scheduler is reached only through the ready callback, never the other way
// around.
package dispatch

import (
	"github.com/oleiade/lane"

	"github.com/cloudwego/kernex/pkg/bugcheck"
	"github.com/cloudwego/kernex/pkg/kerrors"
	"github.com/cloudwego/kernex/pkg/ktask"
	"github.com/cloudwego/kernex/pkg/ktime"
	"github.com/cloudwego/kernex/pkg/pushlock"
)

// Default priority increments handed to woken waiters.
const (
	EventIncrement     ktask.Priority = 1
	SemaphoreIncrement ktask.Priority = 1
	MutexIncrement     ktask.Priority = 1
)

// Timeout values with special meaning to BeginWait.
const (
	// Poll completes immediately instead of blocking.
	Poll ktime.Tick = 0
	// Infinite disables the timeout.
	Infinite ktime.Tick = -1
)

// ReadyFunc reinserts a thread whose wait completed into scheduling. It is
// called with the dispatcher lock held and must not wait or re-enter the
// dispatcher.
type ReadyFunc func(t *ktask.TCB, status ktask.Status, boost ktask.Priority)

// timerEntry is one element of the deadline queue. Entries with a timer
// expire that timer; the rest time out a thread's wait. Entries are never
// removed early: the sequence numbers let stale ones fall through on pop.
type timerEntry struct {
	timer *Timer
	tseq  uint64

	thread ktask.Handle
	wseq   uint64
}

// Dispatcher owns the dispatcher lock and everything it guards.
type Dispatcher struct {
	mu    pushlock.PushLock
	arena *ktask.Arena
	ready ReadyFunc

	now    ktime.Tick
	timers *lane.PQueue
	owned  map[ktask.Handle][]*Mutex
}

// NewDispatcher builds a dispatcher over the given arena. Completed waits
// are handed to ready.
func NewDispatcher(arena *ktask.Arena, ready ReadyFunc) *Dispatcher {
	return &Dispatcher{
		arena:  arena,
		ready:  ready,
		timers: lane.NewPQueue(lane.MINPQ),
		owned:  make(map[ktask.Handle][]*Mutex),
	}
}

// Locked runs fn under the dispatcher lock. Kernel paths use it to keep
// multi-step state changes atomic with respect to signals and timeouts.
func (d *Dispatcher) Locked(fn func()) {
	d.mu.Acquire()
	defer d.mu.Release()
	fn()
}

// Now returns the dispatcher clock.
func (d *Dispatcher) Now() ktime.Tick {
	d.mu.AcquireShared()
	defer d.mu.ReleaseShared()
	return d.now
}

// SetEvent signals the event and returns its previous state. A notification
// event releases every waiter; a synchronization event releases at most one
// and resets.
func (d *Dispatcher) SetEvent(ev *Event, boost ktask.Priority) bool {
	d.mu.Acquire()
	defer d.mu.Release()
	was := ev.hdr.Signal != 0
	ev.hdr.Signal = 1
	d.satisfyWaiters(&ev.hdr, boost)
	return was
}

// ResetEvent clears the event and returns its previous state.
func (d *Dispatcher) ResetEvent(ev *Event) bool {
	d.mu.Acquire()
	defer d.mu.Release()
	was := ev.hdr.Signal != 0
	ev.hdr.Signal = 0
	return was
}

// PulseEvent signals the event just long enough to release current waiters,
// then clears it again.
func (d *Dispatcher) PulseEvent(ev *Event, boost ktask.Priority) bool {
	d.mu.Acquire()
	defer d.mu.Release()
	was := ev.hdr.Signal != 0
	ev.hdr.Signal = 1
	d.satisfyWaiters(&ev.hdr, boost)
	ev.hdr.Signal = 0
	return was
}

// ReleaseSemaphore raises the count by n and returns the count before the
// release. Raising past the limit fails without changing anything.
func (d *Dispatcher) ReleaseSemaphore(s *Semaphore, n int64, boost ktask.Priority) (int64, error) {
	if n < 1 {
		bugcheck.Halt(bugcheck.CodeStateInvalid, "semaphore release count %d", n)
	}
	d.mu.Acquire()
	defer d.mu.Release()
	prev := s.hdr.Signal
	if prev+n > s.limit {
		return prev, kerrors.ErrSemaphoreLimit
	}
	s.hdr.Signal += n
	d.satisfyWaiters(&s.hdr, boost)
	return prev, nil
}

// ReleaseMutex drops one recursion level held by t. The final release frees
// the mutex and wakes the next waiter.
func (d *Dispatcher) ReleaseMutex(m *Mutex, t *ktask.TCB, boost ktask.Priority) error {
	d.mu.Acquire()
	defer d.mu.Release()
	if m.owner != t.Self() {
		return kerrors.ErrMutexNotOwner
	}
	m.recursion--
	if m.recursion > 0 {
		return nil
	}
	d.dropOwned(t.Self(), m)
	m.owner = ktask.Nil
	m.hdr.Signal = 1
	d.satisfyWaiters(&m.hdr, boost)
	return nil
}

// SetTimer arms the timer to expire dueIn ticks from now, superseding any
// earlier arm. A positive period re-arms it on every expiry. Returns whether
// the timer was armed before the call.
func (d *Dispatcher) SetTimer(tm *Timer, dueIn, period ktime.Tick) bool {
	if dueIn < 0 {
		dueIn = 0
	}
	if period < 0 {
		period = 0
	}
	d.mu.Acquire()
	defer d.mu.Release()
	was := tm.queued
	tm.seq++
	tm.hdr.Signal = 0
	tm.due = d.now + dueIn
	tm.period = period
	tm.queued = true
	d.timers.Push(&timerEntry{timer: tm, tseq: tm.seq}, int(tm.due))
	return was
}

// CancelTimer disarms the timer without touching its signal state. Returns
// whether it was armed.
func (d *Dispatcher) CancelTimer(tm *Timer) bool {
	d.mu.Acquire()
	defer d.mu.Release()
	was := tm.queued
	tm.seq++
	tm.queued = false
	return was
}

// ReadState returns the object's signal state without consuming it.
func (d *Dispatcher) ReadState(o Object) int64 {
	d.mu.AcquireShared()
	defer d.mu.ReleaseShared()
	return o.Header().Signal
}

// Advance moves the dispatcher clock to now and fires everything that came
// due: armed timers expire and overdue waits time out.
func (d *Dispatcher) Advance(now ktime.Tick) {
	d.mu.Acquire()
	defer d.mu.Release()
	if now <= d.now {
		return
	}
	d.now = now
	for !d.timers.Empty() {
		_, prio := d.timers.Head()
		if ktime.Tick(prio) > now {
			break
		}
		v, _ := d.timers.Pop()
		e := v.(*timerEntry)
		if e.timer != nil {
			d.expireTimer(e)
		} else {
			d.expireWait(e)
		}
	}
}

func (d *Dispatcher) expireTimer(e *timerEntry) {
	tm := e.timer
	if e.tseq != tm.seq {
		// re-armed or canceled after this entry was queued
		return
	}
	tm.hdr.Signal = 1
	d.satisfyWaiters(&tm.hdr, 0)
	if tm.period > 0 {
		tm.due += tm.period
		d.timers.Push(&timerEntry{timer: tm, tseq: tm.seq}, int(tm.due))
	} else {
		tm.queued = false
	}
}

func (d *Dispatcher) expireWait(e *timerEntry) {
	t, ok := d.arena.ThreadOK(e.thread)
	if !ok || t.State != ktask.StateWaiting || t.WaitSeq != e.wseq {
		return
	}
	st := ktask.StatusTimeout
	if t.WaitCount == 0 {
		// a pure delay ran its course
		st = ktask.StatusSuccess
	}
	d.completeWait(t, st, 0)
}

func (d *Dispatcher) dropOwned(h ktask.Handle, m *Mutex) {
	list := d.owned[h]
	for i, o := range list {
		if o == m {
			list[i] = list[len(list)-1]
			list = list[:len(list)-1]
			break
		}
	}
	if len(list) == 0 {
		delete(d.owned, h)
	} else {
		d.owned[h] = list
	}
}

// Dump reports dispatcher state for diagnosis.
func (d *Dispatcher) Dump() interface{} {
	d.mu.AcquireShared()
	defer d.mu.ReleaseShared()
	return struct {
		Now           ktime.Tick  `json:"now"`
		PendingTimers int         `json:"pending_timers"`
		OwningThreads int         `json:"owning_threads"`
		Lock          interface{} `json:"lock"`
	}{
		Now:           d.now,
		PendingTimers: d.timers.Size(),
		OwningThreads: len(d.owned),
		Lock:          d.mu.Dump(),
	}
}
