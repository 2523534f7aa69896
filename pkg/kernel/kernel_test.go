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
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cloudwego/kernex/internal/test"
	"github.com/cloudwego/kernex/pkg/diagnosis"
	"github.com/cloudwego/kernex/pkg/dispatch"
	"github.com/cloudwego/kernex/pkg/event"
	"github.com/cloudwego/kernex/pkg/hal"
	"github.com/cloudwego/kernex/pkg/kerrors"
	"github.com/cloudwego/kernex/pkg/ktask"
	"github.com/cloudwego/kernex/pkg/ktime"
	"github.com/cloudwego/kernex/pkg/utils"
)

func newTestKernel(t *testing.T, opts ...Option) (*Kernel, *ktime.ManualTickSource) {
	t.Helper()
	ts := ktime.NewManualTickSource()
	opts = append([]Option{WithCPUs(2), WithTickSource(ts)}, opts...)
	k := New(opts...)
	err := k.Startup()
	test.Assert(t, err == nil, err)
	t.Cleanup(func() { _ = k.Shutdown() })
	return k, ts
}

// ticking advances the manual clock in the background until the returned
// stop func is called, for tests that only care that time passes.
func ticking(ts *ktime.ManualTickSource) (stop func()) {
	ch := make(chan struct{})
	go func() {
		for {
			select {
			case <-ch:
				return
			default:
				ts.Advance(1)
				time.Sleep(time.Millisecond)
			}
		}
	}()
	return func() { close(ch) }
}

func waitCond(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not reached in time")
		}
		time.Sleep(time.Millisecond)
	}
}

func recv(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for thread")
	}
}

func recvStatus(t *testing.T, ch <-chan ktask.Status) ktask.Status {
	t.Helper()
	select {
	case st := <-ch:
		return st
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for status")
		return 0
	}
}

// threadState reads a thread's state under the dispatcher lock.
func threadState(k *Kernel, h ktask.Handle) ktask.State {
	var st ktask.State
	k.disp.Locked(func() {
		if tcb, ok := k.arena.ThreadOK(h); ok {
			st = tcb.State
		}
	})
	return st
}

func TestLifecycle(t *testing.T) {
	ts := ktime.NewManualTickSource()
	k := New(WithCPUs(1), WithTickSource(ts))

	_, err := k.Go(func() {})
	test.Assert(t, errors.Is(err, kerrors.ErrNotRunning), err)

	test.Assert(t, k.Startup() == nil)
	test.Assert(t, k.Startup() == kerrors.ErrAlreadyRunning)
	test.Assert(t, k.CPUCount() == 1)

	test.Assert(t, k.Shutdown() == nil)
	test.Assert(t, k.Shutdown() == kerrors.ErrNotRunning)
	test.Assert(t, k.Startup() == kerrors.ErrKernelShutdown)

	_, err = k.Go(func() {})
	test.Assert(t, errors.Is(err, kerrors.ErrKernelShutdown), err)
}

func TestStartupEventDetail(t *testing.T) {
	k, _ := newTestKernel(t, WithName("boot"))
	events := k.opt.Events.Dump().([]*event.Event)
	var detail string
	for _, e := range events {
		if e.Name == "kernel_startup" {
			detail = e.Detail
		}
	}
	test.Assert(t, detail != "")
	m, err := utils.JSONStr2Map(detail)
	test.Assert(t, err == nil, err)
	test.Assert(t, m["name"] == "boot")
	test.Assert(t, m["cpus"] == "2")
}

func TestGoRunsAndJoins(t *testing.T) {
	k, _ := newTestKernel(t)
	var ran int32
	h, err := k.Go(func() { atomic.StoreInt32(&ran, 1) })
	test.Assert(t, err == nil, err)

	done := make(chan struct{})
	stCh := make(chan ktask.Status, 1)
	_, err = k.Go(func() {
		defer close(done)
		stCh <- k.Join(h, dispatch.Infinite)
	})
	test.Assert(t, err == nil, err)
	recv(t, done)
	test.Assert(t, recvStatus(t, stCh) == ktask.StatusSuccess)
	test.Assert(t, atomic.LoadInt32(&ran) == 1)

	// a handle whose thread is gone joins immediately
	stCh2 := make(chan ktask.Status, 1)
	done2 := make(chan struct{})
	_, err = k.Go(func() {
		defer close(done2)
		stCh2 <- k.Join(h, dispatch.Infinite)
	})
	test.Assert(t, err == nil, err)
	recv(t, done2)
	test.Assert(t, recvStatus(t, stCh2) == ktask.StatusSuccess)
}

func TestEventHandshake(t *testing.T) {
	k, _ := newTestKernel(t)
	ev := dispatch.NewEvent(dispatch.SynchronizationEvent, false)
	ack := dispatch.NewEvent(dispatch.SynchronizationEvent, false)

	const rounds = 50
	var bad int32
	done := make(chan struct{})
	_, err := k.Go(func() {
		defer close(done)
		for i := 0; i < rounds; i++ {
			if k.Wait(ev, dispatch.Infinite) != ktask.StatusSuccess {
				atomic.AddInt32(&bad, 1)
			}
			k.SetEvent(ack)
		}
	})
	test.Assert(t, err == nil, err)
	_, err = k.Go(func() {
		for i := 0; i < rounds; i++ {
			k.SetEvent(ev)
			if k.Wait(ack, dispatch.Infinite) != ktask.StatusSuccess {
				atomic.AddInt32(&bad, 1)
			}
		}
	})
	test.Assert(t, err == nil, err)
	recv(t, done)
	test.Assert(t, atomic.LoadInt32(&bad) == 0, bad)
}

func TestWaitTimeoutAndDelay(t *testing.T) {
	k, ts := newTestKernel(t)
	stop := ticking(ts)
	defer stop()

	ev := dispatch.NewEvent(dispatch.NotificationEvent, false)
	stCh := make(chan ktask.Status, 2)
	_, err := k.Go(func() {
		stCh <- k.Wait(ev, 5)
		stCh <- k.Delay(3)
	})
	test.Assert(t, err == nil, err)
	test.Assert(t, recvStatus(t, stCh) == ktask.StatusTimeout)
	test.Assert(t, recvStatus(t, stCh) == ktask.StatusSuccess)
}

func TestAttachAndWaitMulti(t *testing.T) {
	k, _ := newTestKernel(t)
	e0 := dispatch.NewEvent(dispatch.NotificationEvent, false)
	e1 := dispatch.NewEvent(dispatch.NotificationEvent, true)
	e2 := dispatch.NewEvent(dispatch.NotificationEvent, true)

	h, err := k.CreateThread(ktask.Nil, "attached", DefaultPriority, 0, nil)
	test.Assert(t, err == nil, err)
	err = k.Attach(h, func() {
		// several objects already satisfied: lowest index wins
		st, werr := k.WaitMulti([]dispatch.Object{e0, e1, e2}, ktask.WaitAny, dispatch.Infinite, false)
		test.Assert(t, werr == nil, werr)
		test.Assert(t, st == ktask.WaitStatus(1), st)

		// wait-all over signaled notification events completes at once
		st, werr = k.WaitMulti([]dispatch.Object{e1, e2}, ktask.WaitAll, dispatch.Infinite, false)
		test.Assert(t, werr == nil, werr)
		test.Assert(t, st == ktask.StatusSuccess, st)

		_, werr = k.WaitMulti([]dispatch.Object{e1, e1}, ktask.WaitAll, dispatch.Infinite, false)
		test.Assert(t, errors.Is(werr, kerrors.ErrDuplicateWaitObject), werr)
	})
	test.Assert(t, err == nil, err)

	err = k.Attach(h, func() {})
	test.Assert(t, errors.Is(err, kerrors.ErrInvalidHandle), err)
}

func TestAttachValidation(t *testing.T) {
	k, _ := newTestKernel(t)

	err := k.Attach(ktask.Nil, func() {})
	test.Assert(t, errors.Is(err, kerrors.ErrInvalidHandle), err)

	// a thread carrying a body cannot be adopted
	ev := dispatch.NewEvent(dispatch.NotificationEvent, false)
	h, err := k.CreateThread(ktask.Nil, "busy", DefaultPriority, 0, func() {
		k.Wait(ev, dispatch.Infinite)
	})
	test.Assert(t, err == nil, err)
	err = k.Attach(h, func() {})
	test.Assert(t, errors.Is(err, kerrors.ErrAlreadyAttached), err)

	// nesting Attach inside a thread body is refused
	h2, err := k.CreateThread(ktask.Nil, "outer", DefaultPriority, 0, nil)
	test.Assert(t, err == nil, err)
	err = k.Attach(h2, func() {
		inner, cerr := k.CreateThread(ktask.Nil, "inner", DefaultPriority, 0, nil)
		test.Assert(t, cerr == nil, cerr)
		test.Assert(t, errors.Is(k.Attach(inner, func() {}), kerrors.ErrAlreadyAttached))
		test.Assert(t, k.Terminate(inner) == nil)
	})
	test.Assert(t, err == nil, err)
	k.SetEvent(ev)
}

func TestCreateThreadValidation(t *testing.T) {
	k, _ := newTestKernel(t)

	// affinity admitting no configured processor
	_, err := k.CreateThread(ktask.Nil, "far", DefaultPriority, ktask.OneCPU(7), func() {})
	test.Assert(t, errors.Is(err, kerrors.ErrNoAllowedCPU), err)

	// a thread handle is not a process handle
	ev := dispatch.NewEvent(dispatch.NotificationEvent, false)
	th, err := k.CreateThread(ktask.Nil, "held", DefaultPriority, 0, func() {
		k.Wait(ev, dispatch.Infinite)
	})
	test.Assert(t, err == nil, err)
	_, err = k.CreateThread(th, "orphan", DefaultPriority, 0, func() {})
	test.Assert(t, errors.Is(err, kerrors.ErrInvalidHandle), err)
	k.SetEvent(ev)
}

func TestThreadArenaExhaustion(t *testing.T) {
	// two slots go to the idle loops
	k, _ := newTestKernel(t, WithMaxThreads(3))
	ev := dispatch.NewEvent(dispatch.NotificationEvent, false)
	_, err := k.Go(func() { k.Wait(ev, dispatch.Infinite) })
	test.Assert(t, err == nil, err)
	_, err = k.Go(func() {})
	test.Assert(t, errors.Is(err, kerrors.ErrArenaExhausted), err)
	k.SetEvent(ev)
}

func TestMutexRecursionAndOwnership(t *testing.T) {
	k, _ := newTestKernel(t)
	m := dispatch.NewMutex()

	err := k.ReleaseMutex(m)
	test.Assert(t, errors.Is(err, kerrors.ErrNotAttached), err)

	h, err := k.CreateThread(ktask.Nil, "locker", DefaultPriority, 0, nil)
	test.Assert(t, err == nil, err)
	err = k.Attach(h, func() {
		test.Assert(t, k.Wait(m, dispatch.Infinite) == ktask.StatusSuccess)
		test.Assert(t, k.Wait(m, dispatch.Infinite) == ktask.StatusSuccess)
		test.Assert(t, k.ReleaseMutex(m) == nil)
		test.Assert(t, k.ReleaseMutex(m) == nil)
		test.Assert(t, errors.Is(k.ReleaseMutex(m), kerrors.ErrMutexNotOwner))
	})
	test.Assert(t, err == nil, err)
}

func TestSemaphoreLimit(t *testing.T) {
	k, _ := newTestKernel(t)
	s, err := dispatch.NewSemaphore(0, 1)
	test.Assert(t, err == nil, err)

	prev, err := k.ReleaseSemaphore(s, 2)
	test.Assert(t, errors.Is(err, kerrors.ErrSemaphoreLimit), err)
	test.Assert(t, prev == 0, prev)
	test.Assert(t, k.ReadState(s) == 0)

	prev, err = k.ReleaseSemaphore(s, 1)
	test.Assert(t, err == nil, err)
	test.Assert(t, prev == 0, prev)
	test.Assert(t, k.ReadState(s) == 1)
}

func TestSuspendResume(t *testing.T) {
	k, _ := newTestKernel(t)
	var spins, stop int32
	done := make(chan struct{})
	h, err := k.CreateThread(ktask.Nil, "spinner", DefaultPriority, 0, func() {
		defer close(done)
		for atomic.LoadInt32(&stop) == 0 {
			atomic.AddInt32(&spins, 1)
			k.Checkpoint()
		}
	})
	test.Assert(t, err == nil, err)

	n, err := k.Suspend(h)
	test.Assert(t, err == nil, err)
	test.Assert(t, n == 1, n)
	waitCond(t, func() bool { return threadState(k, h) == ktask.StateSuspended })

	before := atomic.LoadInt32(&spins)
	time.Sleep(10 * time.Millisecond)
	test.Assert(t, atomic.LoadInt32(&spins) == before)

	n, err = k.Resume(h)
	test.Assert(t, err == nil, err)
	test.Assert(t, n == 0, n)
	waitCond(t, func() bool { return atomic.LoadInt32(&spins) > before })

	atomic.StoreInt32(&stop, 1)
	recv(t, done)

	// resuming a thread that is not suspended reports zero
	h2, err := k.Go(func() { k.Delay(0) })
	test.Assert(t, err == nil, err)
	n, _ = k.Resume(h2)
	test.Assert(t, n == 0, n)
}

func TestTerminateWaiter(t *testing.T) {
	k, _ := newTestKernel(t)
	ev := dispatch.NewEvent(dispatch.NotificationEvent, false)
	done := make(chan struct{})
	h, err := k.CreateThread(ktask.Nil, "victim", DefaultPriority, 0, func() {
		defer close(done)
		k.Wait(ev, dispatch.Infinite)
		t.Error("wait returned into a doomed body")
	})
	test.Assert(t, err == nil, err)

	waitCond(t, func() bool { return threadState(k, h) == ktask.StateWaiting })
	test.Assert(t, k.Terminate(h) == nil)
	recv(t, done)
}

func TestQueueAPCBreaksAlertableWait(t *testing.T) {
	k, _ := newTestKernel(t)
	ev := dispatch.NewEvent(dispatch.NotificationEvent, false)
	var ranAPC int32
	stCh := make(chan ktask.Status, 1)
	h, err := k.CreateThread(ktask.Nil, "alertable", DefaultPriority, 0, func() {
		st, werr := k.WaitMulti([]dispatch.Object{ev}, ktask.WaitAny, dispatch.Infinite, true)
		if werr != nil {
			t.Error(werr)
		}
		stCh <- st
	})
	test.Assert(t, err == nil, err)

	waitCond(t, func() bool { return threadState(k, h) == ktask.StateWaiting })
	test.Assert(t, k.QueueAPC(h, func() { atomic.StoreInt32(&ranAPC, 1) }) == nil)
	test.Assert(t, recvStatus(t, stCh) == ktask.StatusUserAPC)
	// the procedure ran at the safe point before the wait returned
	test.Assert(t, atomic.LoadInt32(&ranAPC) == 1)
}

func TestProcessAccounting(t *testing.T) {
	k, _ := newTestKernel(t)
	ph, err := k.CreateProcess("workers")
	test.Assert(t, err == nil, err)

	ev := dispatch.NewEvent(dispatch.NotificationEvent, false)
	var hs []ktask.Handle
	for i := 0; i < 3; i++ {
		h, cerr := k.CreateThread(ph, "w", DefaultPriority, 0, func() {
			k.Wait(ev, dispatch.Infinite)
		})
		test.Assert(t, cerr == nil, cerr)
		hs = append(hs, h)
	}
	var count int32
	k.disp.Locked(func() {
		p, ok := k.arena.ProcessOK(ph)
		test.Assert(t, ok)
		count = p.ThreadCount
	})
	test.Assert(t, count == 3, count)

	k.SetEvent(ev)
	waitCond(t, func() bool {
		var n int32
		k.disp.Locked(func() {
			if p, ok := k.arena.ProcessOK(ph); ok {
				n = p.ThreadCount
			}
		})
		return n == 0
	})
	_ = hs
}

func TestFlushTLBAllProcessors(t *testing.T) {
	mem := hal.NewSimMemory()
	k, _ := newTestKernel(t, WithMemoryManager(mem))

	inv := hal.Invalidation{Kind: hal.InvalidateSinglePage, Start: 0x7000}
	err := k.FlushTLB(inv, 0)
	test.Assert(t, err == nil, err)
	// Flush returns only after every target acknowledged
	test.Assert(t, len(mem.Invalidations(0)) == 1)
	test.Assert(t, len(mem.Invalidations(1)) == 1)
	test.Assert(t, mem.Invalidations(1)[0] == inv)
}

func TestFlushTLBLocalOnly(t *testing.T) {
	mem := hal.NewSimMemory()
	k, _ := newTestKernel(t, WithMemoryManager(mem))

	err := k.FlushTLB(hal.Invalidation{Kind: hal.InvalidateFull}, ktask.OneCPU(0))
	test.Assert(t, err == nil, err)
	test.Assert(t, len(mem.Invalidations(0)) == 1)
	test.Assert(t, len(mem.Invalidations(1)) == 0)
}

func TestMemoryPressureTrims(t *testing.T) {
	mem := hal.NewSimMemory()
	k, _ := newTestKernel(t, WithMemoryManager(mem))

	k.NotifyMemoryPressure()
	k.ClockTick()
	waitCond(t, func() bool { return mem.Trims() == 1 })
}

func TestStackInswapOnWake(t *testing.T) {
	mem := hal.NewSimMemory()
	k, _ := newTestKernel(t, WithMemoryManager(mem))

	ev := dispatch.NewEvent(dispatch.NotificationEvent, false)
	done := make(chan struct{})
	h, err := k.CreateThread(ktask.Nil, "swapped", DefaultPriority, 0, func() {
		defer close(done)
		k.Wait(ev, dispatch.Infinite)
	})
	test.Assert(t, err == nil, err)
	waitCond(t, func() bool { return threadState(k, h) == ktask.StateWaiting })

	// force the stack out, then wake: the thread must come back in first
	k.disp.Locked(func() {
		tcb, ok := k.arena.ThreadOK(h)
		test.Assert(t, ok)
		tcb.StackResident = false
	})
	k.SetEvent(ev)
	recv(t, done)
	test.Assert(t, len(mem.StackIns()) == 1)
	test.Assert(t, mem.StackIns()[0] == h)
}

func TestInswapQueueLinksTransition(t *testing.T) {
	mem := hal.NewSimMemory()
	k, _ := newTestKernel(t, WithMemoryManager(mem))

	release := make(chan func(), 1)
	mem.SetInswapHook(func(_ ktask.Handle, done func()) {
		release <- done
	})

	ev := dispatch.NewEvent(dispatch.NotificationEvent, false)
	done := make(chan struct{})
	h, err := k.CreateThread(ktask.Nil, "swapped", DefaultPriority, 0, func() {
		defer close(done)
		k.Wait(ev, dispatch.Infinite)
	})
	test.Assert(t, err == nil, err)
	waitCond(t, func() bool { return threadState(k, h) == ktask.StateWaiting })

	k.disp.Locked(func() {
		tcb, ok := k.arena.ThreadOK(h)
		test.Assert(t, ok)
		tcb.StackResident = false
	})
	k.SetEvent(ev)

	// with the inswap held open the thread sits linked on the swap queue
	finish := <-release
	var owner ktask.ListOwner
	var pending int
	k.disp.Locked(func() {
		tcb, ok := k.arena.ThreadOK(h)
		test.Assert(t, ok)
		owner = tcb.Link.Owner
		pending = k.swapin.Size()
		test.Assert(t, k.swapin.Front() == h)
	})
	test.Assert(t, owner == ktask.OwnerSwapList)
	test.Assert(t, pending == 1)
	test.Assert(t, threadState(k, h) == ktask.StateTransition)

	finish()
	recv(t, done)
	k.disp.Locked(func() { pending = k.swapin.Size() })
	test.Assert(t, pending == 0)
}

func TestDiagnosisProbes(t *testing.T) {
	svc := diagnosis.NewRegistryService()
	k, _ := newTestKernel(t, WithDiagnosisService(svc), WithName("diag"))
	_, err := k.Go(func() {})
	test.Assert(t, err == nil, err)

	data := svc.Dump()
	for _, key := range []diagnosis.ProbeName{
		diagnosis.OptionsKey, diagnosis.ConfigKey, diagnosis.ReadyQueuesKey,
		diagnosis.ThreadsKey, diagnosis.TimersKey, diagnosis.ShootdownKey,
		diagnosis.BalanceSetKey, diagnosis.SwitchTraceKey,
	} {
		if _, ok := data[key]; !ok {
			t.Errorf("probe %s missing from dump", key)
		}
	}
}

func TestTimerWakesWaiter(t *testing.T) {
	k, ts := newTestKernel(t)
	tm := dispatch.NewTimer(dispatch.NotificationTimer)
	stCh := make(chan ktask.Status, 1)
	_, err := k.Go(func() {
		stCh <- k.Wait(tm, dispatch.Infinite)
	})
	test.Assert(t, err == nil, err)

	test.Assert(t, !k.SetTimer(tm, 3, 0))
	ts.Advance(4)
	test.Assert(t, recvStatus(t, stCh) == ktask.StatusSuccess)
	test.Assert(t, k.ReadState(tm) == 1)
	test.Assert(t, !k.CancelTimer(tm))
}

func TestInstancesAreIndependent(t *testing.T) {
	k1, ts1 := newTestKernel(t)
	k2, _ := newTestKernel(t)

	ev := dispatch.NewEvent(dispatch.NotificationEvent, false)
	stCh := make(chan ktask.Status, 1)
	_, err := k1.Go(func() {
		stCh <- k1.Wait(ev, 5)
	})
	test.Assert(t, err == nil, err)

	// only k1's clock moves; k2 keeps running its own threads meanwhile
	done := make(chan struct{})
	_, err = k2.Go(func() { close(done) })
	test.Assert(t, err == nil, err)
	recv(t, done)
	test.Assert(t, k2.Now() == 0)

	ts1.Advance(6)
	test.Assert(t, recvStatus(t, stCh) == ktask.StatusTimeout)
	test.Assert(t, k1.Now() == 6)
}

func TestNowAdvances(t *testing.T) {
	k, ts := newTestKernel(t)
	test.Assert(t, k.Now() == 0)
	ts.Advance(5)
	test.Assert(t, k.Now() == 5, k.Now())
}
