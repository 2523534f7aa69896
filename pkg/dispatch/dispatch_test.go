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
	"errors"
	"sync"
	"testing"

	"golang.org/x/sync/errgroup"

	"github.com/cloudwego/kernex/internal/test"
	"github.com/cloudwego/kernex/pkg/kerrors"
	"github.com/cloudwego/kernex/pkg/ktask"
)

type wakeRecord struct {
	thread ktask.Handle
	status ktask.Status
	boost  ktask.Priority
}

type testEnv struct {
	arena *ktask.Arena
	d     *Dispatcher
	woken []wakeRecord
}

func newTestEnv() *testEnv {
	env := &testEnv{arena: ktask.NewArena(16, 4)}
	env.d = NewDispatcher(env.arena, func(t *ktask.TCB, st ktask.Status, boost ktask.Priority) {
		t.State = ktask.StateDeferredReady
		env.woken = append(env.woken, wakeRecord{thread: t.Self(), status: st, boost: boost})
	})
	return env
}

func (env *testEnv) thread(t *testing.T) *ktask.TCB {
	t.Helper()
	_, tcb, err := env.arena.AllocThread()
	test.Assert(t, err == nil, err)
	tcb.State = ktask.StateRunning
	return tcb
}

func TestSynchronizationEvent(t *testing.T) {
	env := newTestEnv()
	t1 := env.thread(t)
	ev := NewEvent(SynchronizationEvent, false)

	_, done, err := env.d.BeginWait(t1, []Object{ev}, ktask.WaitAny, Infinite, false)
	test.Assert(t, err == nil, err)
	test.Assert(t, !done)
	test.Assert(t, t1.State == ktask.StateWaiting)

	was := env.d.SetEvent(ev, EventIncrement)
	test.Assert(t, !was)
	test.Assert(t, len(env.woken) == 1)
	test.Assert(t, env.woken[0].thread == t1.Self())
	test.Assert(t, env.woken[0].status == ktask.StatusSuccess)
	test.Assert(t, env.woken[0].boost == EventIncrement)
	// the waiter consumed the signal
	test.Assert(t, env.d.ReadState(ev) == 0)
	test.Assert(t, ev.Header().WaitEmpty())

	// signaled with nobody waiting, then consumed by an immediate wait
	env.d.SetEvent(ev, EventIncrement)
	st, done, err := env.d.BeginWait(t1, []Object{ev}, ktask.WaitAny, Infinite, false)
	test.Assert(t, err == nil, err)
	test.Assert(t, done)
	test.Assert(t, st == ktask.StatusSuccess)
	test.Assert(t, env.d.ReadState(ev) == 0)
}

func TestNotificationEventReleasesAll(t *testing.T) {
	env := newTestEnv()
	t1, t2 := env.thread(t), env.thread(t)
	ev := NewEvent(NotificationEvent, false)

	for _, tt := range []*ktask.TCB{t1, t2} {
		_, done, err := env.d.BeginWait(tt, []Object{ev}, ktask.WaitAny, Infinite, false)
		test.Assert(t, err == nil, err)
		test.Assert(t, !done)
	}
	env.d.SetEvent(ev, EventIncrement)
	test.Assert(t, len(env.woken) == 2)
	test.Assert(t, env.d.ReadState(ev) == 1)

	was := env.d.ResetEvent(ev)
	test.Assert(t, was)
	test.Assert(t, env.d.ReadState(ev) == 0)
}

func TestPulseEvent(t *testing.T) {
	env := newTestEnv()
	t1 := env.thread(t)
	ev := NewEvent(NotificationEvent, false)

	_, done, _ := env.d.BeginWait(t1, []Object{ev}, ktask.WaitAny, Infinite, false)
	test.Assert(t, !done)
	env.d.PulseEvent(ev, EventIncrement)
	test.Assert(t, len(env.woken) == 1)
	// the pulse leaves the event unsignaled
	test.Assert(t, env.d.ReadState(ev) == 0)
}

func TestWaitAnyLowestIndexWins(t *testing.T) {
	env := newTestEnv()
	t1 := env.thread(t)
	evA := NewEvent(NotificationEvent, true)
	evB := NewEvent(NotificationEvent, true)

	st, done, err := env.d.BeginWait(t1, []Object{evA, evB}, ktask.WaitAny, Infinite, false)
	test.Assert(t, err == nil, err)
	test.Assert(t, done)
	i, ok := st.WaitIndex()
	test.Assert(t, ok && i == 0, st)

	env.d.ResetEvent(evA)
	st, done, _ = env.d.BeginWait(t1, []Object{evA, evB}, ktask.WaitAny, Infinite, false)
	test.Assert(t, done)
	i, ok = st.WaitIndex()
	test.Assert(t, ok && i == 1, st)
}

func TestWaitAllConsumesAtomically(t *testing.T) {
	env := newTestEnv()
	t1 := env.thread(t)
	evA := NewEvent(SynchronizationEvent, true)
	evB := NewEvent(SynchronizationEvent, false)

	_, done, err := env.d.BeginWait(t1, []Object{evA, evB}, ktask.WaitAll, Infinite, false)
	test.Assert(t, err == nil, err)
	test.Assert(t, !done)
	// nothing may be consumed while the wait is incomplete
	test.Assert(t, env.d.ReadState(evA) == 1)

	env.d.SetEvent(evB, EventIncrement)
	test.Assert(t, len(env.woken) == 1)
	test.Assert(t, env.woken[0].status == ktask.StatusSuccess)
	test.Assert(t, env.d.ReadState(evA) == 0)
	test.Assert(t, env.d.ReadState(evB) == 0)
}

func TestWaitValidation(t *testing.T) {
	env := newTestEnv()
	t1 := env.thread(t)
	ev := NewEvent(NotificationEvent, false)

	objs := make([]Object, ktask.MaxWaitObjects+1)
	for i := range objs {
		objs[i] = NewEvent(NotificationEvent, false)
	}
	_, _, err := env.d.BeginWait(t1, objs, ktask.WaitAny, Infinite, false)
	test.Assert(t, errors.Is(err, kerrors.ErrTooManyWaitObjects), err)

	_, _, err = env.d.BeginWait(t1, []Object{ev, ev}, ktask.WaitAll, Infinite, false)
	test.Assert(t, errors.Is(err, kerrors.ErrDuplicateWaitObject), err)
}

func TestPollWait(t *testing.T) {
	env := newTestEnv()
	t1 := env.thread(t)
	ev := NewEvent(SynchronizationEvent, false)

	st, done, err := env.d.BeginWait(t1, []Object{ev}, ktask.WaitAny, Poll, false)
	test.Assert(t, err == nil, err)
	test.Assert(t, done)
	test.Assert(t, st == ktask.StatusTimeout)
	test.Assert(t, t1.State == ktask.StateRunning)

	env.d.SetEvent(ev, EventIncrement)
	st, done, _ = env.d.BeginWait(t1, []Object{ev}, ktask.WaitAny, Poll, false)
	test.Assert(t, done)
	test.Assert(t, st == ktask.StatusSuccess)
}

func TestWaitTimeout(t *testing.T) {
	env := newTestEnv()
	t1 := env.thread(t)
	ev := NewEvent(SynchronizationEvent, false)

	_, done, err := env.d.BeginWait(t1, []Object{ev}, ktask.WaitAny, 5, false)
	test.Assert(t, err == nil, err)
	test.Assert(t, !done)

	env.d.Advance(4)
	test.Assert(t, len(env.woken) == 0)
	env.d.Advance(5)
	test.Assert(t, len(env.woken) == 1)
	test.Assert(t, env.woken[0].status == ktask.StatusTimeout)
	test.Assert(t, ev.Header().WaitEmpty())
}

func TestDelay(t *testing.T) {
	env := newTestEnv()
	t1 := env.thread(t)

	_, done, err := env.d.BeginWait(t1, nil, ktask.WaitAny, 3, false)
	test.Assert(t, err == nil, err)
	test.Assert(t, !done)
	test.Assert(t, t1.State == ktask.StateWaiting)

	env.d.Advance(3)
	test.Assert(t, len(env.woken) == 1)
	// a delay that runs its course ends successfully, not with a timeout
	test.Assert(t, env.woken[0].status == ktask.StatusSuccess)
}

func TestStaleTimeoutIgnored(t *testing.T) {
	env := newTestEnv()
	t1 := env.thread(t)
	evA := NewEvent(SynchronizationEvent, false)
	evB := NewEvent(SynchronizationEvent, false)

	_, done, _ := env.d.BeginWait(t1, []Object{evA}, ktask.WaitAny, 10, false)
	test.Assert(t, !done)
	env.d.Advance(2)
	env.d.SetEvent(evA, EventIncrement)
	test.Assert(t, len(env.woken) == 1)

	// a second wait is pending when the first wait's timeout entry fires
	_, done, _ = env.d.BeginWait(t1, []Object{evB}, ktask.WaitAny, Infinite, false)
	test.Assert(t, !done)
	env.d.Advance(12)
	test.Assert(t, len(env.woken) == 1)
	test.Assert(t, t1.State == ktask.StateWaiting)

	env.d.SetEvent(evB, EventIncrement)
	test.Assert(t, len(env.woken) == 2)
}

func TestSemaphore(t *testing.T) {
	env := newTestEnv()
	t1, t2 := env.thread(t), env.thread(t)

	_, err := NewSemaphore(3, 2)
	test.Assert(t, errors.Is(err, kerrors.ErrSemaphoreLimit), err)

	s, err := NewSemaphore(0, 2)
	test.Assert(t, err == nil, err)

	for _, tt := range []*ktask.TCB{t1, t2} {
		_, done, werr := env.d.BeginWait(tt, []Object{s}, ktask.WaitAny, Infinite, false)
		test.Assert(t, werr == nil, werr)
		test.Assert(t, !done)
	}
	prev, err := env.d.ReleaseSemaphore(s, 2, SemaphoreIncrement)
	test.Assert(t, err == nil, err)
	test.Assert(t, prev == 0)
	test.Assert(t, len(env.woken) == 2)
	test.Assert(t, env.d.ReadState(s) == 0)

	prev, err = env.d.ReleaseSemaphore(s, 1, SemaphoreIncrement)
	test.Assert(t, err == nil && prev == 0)

	// raising past the limit must not change the count
	prev, err = env.d.ReleaseSemaphore(s, 2, SemaphoreIncrement)
	test.Assert(t, errors.Is(err, kerrors.ErrSemaphoreLimit), err)
	test.Assert(t, prev == 1)
	test.Assert(t, env.d.ReadState(s) == 1)
}

func TestMutexOwnershipAndRecursion(t *testing.T) {
	env := newTestEnv()
	t1, t2 := env.thread(t), env.thread(t)
	m := NewMutex()

	st, done, err := env.d.BeginWait(t1, []Object{m}, ktask.WaitAny, Infinite, false)
	test.Assert(t, err == nil && done && st == ktask.StatusSuccess)
	test.Assert(t, m.Owner() == t1.Self())

	// the owner recurses without blocking
	st, done, err = env.d.BeginWait(t1, []Object{m}, ktask.WaitAny, Infinite, false)
	test.Assert(t, err == nil && done && st == ktask.StatusSuccess)

	err = env.d.ReleaseMutex(m, t1, MutexIncrement)
	test.Assert(t, err == nil, err)
	test.Assert(t, m.Owner() == t1.Self())

	_, done, err = env.d.BeginWait(t2, []Object{m}, ktask.WaitAny, Infinite, false)
	test.Assert(t, err == nil, err)
	test.Assert(t, !done)

	err = env.d.ReleaseMutex(m, t1, MutexIncrement)
	test.Assert(t, err == nil, err)
	test.Assert(t, len(env.woken) == 1)
	test.Assert(t, env.woken[0].thread == t2.Self())
	test.Assert(t, m.Owner() == t2.Self())

	err = env.d.ReleaseMutex(m, t1, MutexIncrement)
	test.Assert(t, errors.Is(err, kerrors.ErrMutexNotOwner), err)
}

func TestMutexAbandonment(t *testing.T) {
	env := newTestEnv()
	t1, t2 := env.thread(t), env.thread(t)
	m := NewMutex()

	_, done, _ := env.d.BeginWait(t1, []Object{m}, ktask.WaitAny, Infinite, false)
	test.Assert(t, done)

	env.d.NotifyExit(t1)
	st, done, err := env.d.BeginWait(t2, []Object{m}, ktask.WaitAny, Infinite, false)
	test.Assert(t, err == nil, err)
	test.Assert(t, done)
	test.Assert(t, st == ktask.AbandonedStatus(0), st)
	test.Assert(t, st.Satisfied() && st.Abandoned())
	test.Assert(t, m.Owner() == t2.Self())

	// abandonment is reported once
	err = env.d.ReleaseMutex(m, t2, MutexIncrement)
	test.Assert(t, err == nil, err)
	st, done, _ = env.d.BeginWait(t2, []Object{m}, ktask.WaitAny, Infinite, false)
	test.Assert(t, done && st == ktask.StatusSuccess, st)
}

func TestMutexAbandonedToWaiter(t *testing.T) {
	env := newTestEnv()
	t1, t2 := env.thread(t), env.thread(t)
	m := NewMutex()

	_, done, _ := env.d.BeginWait(t1, []Object{m}, ktask.WaitAny, Infinite, false)
	test.Assert(t, done)
	_, done, _ = env.d.BeginWait(t2, []Object{m}, ktask.WaitAny, Infinite, false)
	test.Assert(t, !done)

	env.d.NotifyExit(t1)
	test.Assert(t, len(env.woken) == 1)
	test.Assert(t, env.woken[0].thread == t2.Self())
	test.Assert(t, env.woken[0].status == ktask.AbandonedStatus(0))
	test.Assert(t, m.Owner() == t2.Self())
}

func TestThreadJoin(t *testing.T) {
	env := newTestEnv()
	t1, t2 := env.thread(t), env.thread(t)

	_, done, err := env.d.BeginWait(t2, []Object{ThreadObject(t1)}, ktask.WaitAny, Infinite, false)
	test.Assert(t, err == nil, err)
	test.Assert(t, !done)

	env.d.NotifyExit(t1)
	test.Assert(t, len(env.woken) == 1)
	test.Assert(t, env.woken[0].thread == t2.Self())
	test.Assert(t, env.woken[0].status == ktask.StatusSuccess)

	// the thread object stays signaled for late joiners
	st, done, _ := env.d.BeginWait(t2, []Object{ThreadObject(t1)}, ktask.WaitAny, Infinite, false)
	test.Assert(t, done && st == ktask.StatusSuccess)
}

func TestTimerOneShot(t *testing.T) {
	env := newTestEnv()
	t1 := env.thread(t)
	tm := NewTimer(NotificationTimer)

	was := env.d.SetTimer(tm, 5, 0)
	test.Assert(t, !was)
	_, done, _ := env.d.BeginWait(t1, []Object{tm}, ktask.WaitAny, Infinite, false)
	test.Assert(t, !done)

	env.d.Advance(5)
	test.Assert(t, len(env.woken) == 1)
	test.Assert(t, env.woken[0].status == ktask.StatusSuccess)
	test.Assert(t, env.d.ReadState(tm) == 1)
	test.Assert(t, !env.d.CancelTimer(tm))
}

func TestTimerRearmAndCancel(t *testing.T) {
	env := newTestEnv()
	tm := NewTimer(NotificationTimer)

	env.d.SetTimer(tm, 5, 0)
	// re-arming supersedes the first due time
	was := env.d.SetTimer(tm, 10, 0)
	test.Assert(t, was)
	env.d.Advance(5)
	test.Assert(t, env.d.ReadState(tm) == 0)
	env.d.Advance(10)
	test.Assert(t, env.d.ReadState(tm) == 1)

	env.d.SetTimer(tm, 5, 0)
	test.Assert(t, env.d.ReadState(tm) == 0)
	test.Assert(t, env.d.CancelTimer(tm))
	env.d.Advance(20)
	test.Assert(t, env.d.ReadState(tm) == 0)
}

func TestTimerPeriodic(t *testing.T) {
	env := newTestEnv()
	t1 := env.thread(t)
	tm := NewTimer(SynchronizationTimer)

	env.d.SetTimer(tm, 2, 2)
	_, done, _ := env.d.BeginWait(t1, []Object{tm}, ktask.WaitAny, Infinite, false)
	test.Assert(t, !done)

	env.d.Advance(2)
	test.Assert(t, len(env.woken) == 1)
	// the waiter consumed the expiry; the period re-armed the timer
	test.Assert(t, env.d.ReadState(tm) == 0)

	_, done, _ = env.d.BeginWait(t1, []Object{tm}, ktask.WaitAny, Infinite, false)
	test.Assert(t, !done)
	env.d.Advance(4)
	test.Assert(t, len(env.woken) == 2)

	test.Assert(t, env.d.CancelTimer(tm))
	env.d.Advance(8)
	test.Assert(t, len(env.woken) == 2)
}

func TestAlertableWait(t *testing.T) {
	env := newTestEnv()
	t1 := env.thread(t)
	ev := NewEvent(SynchronizationEvent, false)

	_, done, _ := env.d.BeginWait(t1, []Object{ev}, ktask.WaitAny, Infinite, true)
	test.Assert(t, !done)

	t1.QueueAPC(func() {})
	test.Assert(t, env.d.Alert(t1))
	test.Assert(t, len(env.woken) == 1)
	test.Assert(t, env.woken[0].status == ktask.StatusUserAPC)
	test.Assert(t, ev.Header().WaitEmpty())

	// a pending procedure interrupts an alertable wait before it blocks
	st, done, err := env.d.BeginWait(t1, []Object{ev}, ktask.WaitAny, Infinite, true)
	test.Assert(t, err == nil, err)
	test.Assert(t, done)
	test.Assert(t, st == ktask.StatusUserAPC)
}

func TestAlertIgnoresPlainWait(t *testing.T) {
	env := newTestEnv()
	t1 := env.thread(t)
	ev := NewEvent(SynchronizationEvent, false)

	_, done, _ := env.d.BeginWait(t1, []Object{ev}, ktask.WaitAny, Infinite, false)
	test.Assert(t, !done)
	test.Assert(t, !env.d.Alert(t1))
	test.Assert(t, t1.State == ktask.StateWaiting)
}

func TestInterruptWait(t *testing.T) {
	env := newTestEnv()
	t1 := env.thread(t)
	ev := NewEvent(SynchronizationEvent, false)

	test.Assert(t, !env.d.InterruptWait(t1, ktask.StatusTerminated))

	_, done, _ := env.d.BeginWait(t1, []Object{ev}, ktask.WaitAny, Infinite, false)
	test.Assert(t, !done)
	test.Assert(t, env.d.InterruptWait(t1, ktask.StatusTerminated))
	test.Assert(t, len(env.woken) == 1)
	test.Assert(t, env.woken[0].status == ktask.StatusTerminated)
	test.Assert(t, ev.Header().WaitEmpty())
}

func TestDoomInterruptsWait(t *testing.T) {
	env := newTestEnv()
	t1 := env.thread(t)
	ev := NewEvent(SynchronizationEvent, false)

	_, done, _ := env.d.BeginWait(t1, []Object{ev}, ktask.WaitAny, Infinite, false)
	test.Assert(t, !done)

	test.Assert(t, env.d.Doom(t1.Self()) == nil)
	test.Assert(t, t1.Doomed)
	test.Assert(t, len(env.woken) == 1)
	test.Assert(t, env.woken[0].status == ktask.StatusTerminated)
	test.Assert(t, ev.Header().WaitEmpty())

	// a second doom reports the thread as already terminating
	err := env.d.Doom(t1.Self())
	test.Assert(t, errors.Is(err, kerrors.ErrThreadTerminated))
}

func TestDoomReadiesSuspended(t *testing.T) {
	env := newTestEnv()
	t1 := env.thread(t)
	t1.State = ktask.StateSuspended
	t1.SuspendCount = 2

	test.Assert(t, env.d.Doom(t1.Self()) == nil)
	test.Assert(t, t1.Doomed)
	test.Assert(t, t1.SuspendCount == 0)
	test.Assert(t, len(env.woken) == 1)
}

func TestDoomRunningSetsFlagOnly(t *testing.T) {
	env := newTestEnv()
	t1 := env.thread(t)

	test.Assert(t, env.d.Doom(t1.Self()) == nil)
	test.Assert(t, t1.Doomed)
	test.Assert(t, len(env.woken) == 0)

	test.Assert(t, errors.Is(env.d.Doom(ktask.Handle(0xdead)), kerrors.ErrInvalidHandle))
}

func TestQueueAPCBreaksAlertableWait(t *testing.T) {
	env := newTestEnv()
	t1 := env.thread(t)
	ev := NewEvent(SynchronizationEvent, false)

	_, done, _ := env.d.BeginWait(t1, []Object{ev}, ktask.WaitAny, Infinite, true)
	test.Assert(t, !done)

	ran := false
	test.Assert(t, env.d.QueueAPC(t1.Self(), func() { ran = true }) == nil)
	test.Assert(t, len(env.woken) == 1)
	test.Assert(t, env.woken[0].status == ktask.StatusUserAPC)
	test.Assert(t, !ran)
	for _, fn := range t1.TakeAPCs() {
		fn()
	}
	test.Assert(t, ran)
}

func TestQueueAPCPendsOnPlainWait(t *testing.T) {
	env := newTestEnv()
	t1 := env.thread(t)
	ev := NewEvent(SynchronizationEvent, false)

	_, done, _ := env.d.BeginWait(t1, []Object{ev}, ktask.WaitAny, Infinite, false)
	test.Assert(t, !done)

	test.Assert(t, env.d.QueueAPC(t1.Self(), func() {}) == nil)
	test.Assert(t, t1.State == ktask.StateWaiting)
	test.Assert(t, t1.HasAPCs())

	test.Assert(t, errors.Is(env.d.QueueAPC(ktask.Handle(0xdead), func() {}), kerrors.ErrInvalidHandle))
}

func TestConcurrentWaitSignal(t *testing.T) {
	arena := ktask.NewArena(64, 4)
	var mu sync.Mutex
	woken := 0
	d := NewDispatcher(arena, func(tt *ktask.TCB, st ktask.Status, boost ktask.Priority) {
		tt.State = ktask.StateDeferredReady
		mu.Lock()
		woken++
		mu.Unlock()
	})

	var eg errgroup.Group
	for i := 0; i < 4; i++ {
		eg.Go(func() error {
			_, tt, err := arena.AllocThread()
			if err != nil {
				return err
			}
			ev := NewEvent(SynchronizationEvent, false)
			for j := 0; j < 500; j++ {
				_, done, err := d.BeginWait(tt, []Object{ev}, ktask.WaitAny, Infinite, false)
				if err != nil {
					return err
				}
				if done {
					return errors.New("wait satisfied on an unsignaled event")
				}
				d.SetEvent(ev, EventIncrement)
				if tt.State != ktask.StateDeferredReady {
					return errors.New("waiter not readied by signal")
				}
			}
			return nil
		})
	}
	test.Assert(t, eg.Wait() == nil)
	test.Assert(t, woken == 4*500, woken)
}
