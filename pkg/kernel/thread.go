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
	"context"
	"fmt"
	"runtime/debug"
	"sync/atomic"

	"github.com/cloudwego/kernex/internal/session"
	"github.com/cloudwego/kernex/pkg/bugcheck"
	"github.com/cloudwego/kernex/pkg/dispatch"
	"github.com/cloudwego/kernex/pkg/kerrors"
	"github.com/cloudwego/kernex/pkg/klog"
	"github.com/cloudwego/kernex/pkg/ktask"
	"github.com/cloudwego/kernex/pkg/ktime"
	"github.com/cloudwego/kernex/pkg/sched"
)

// threadExit unwinds a thread goroutine back to its entry point. Raised only
// at safe points, recovered only by runBody.
type threadExit struct{}

// threadRecord is the kernel-side bookkeeping for one thread. The exit event
// outlives the arena slot, so joiners and composite waits never touch a
// recycled control block.
type threadRecord struct {
	exit *dispatch.Event
}

// binding ties a goroutine to its thread through the session manager.
type binding struct {
	k *Kernel
	h ktask.Handle
}

type bindingKey struct{}

// CreateProcess adds a process. Processes group threads for working set
// accounting; they live as long as the kernel does.
func (k *Kernel) CreateProcess(name string) (ktask.Handle, error) {
	switch atomic.LoadInt32(&k.state) {
	case stateNew:
		return ktask.Nil, kerrors.ErrNotRunning
	case stateStopped:
		return ktask.Nil, kerrors.ErrKernelShutdown
	}
	h, p, err := k.arena.AllocProcess()
	if err != nil {
		return ktask.Nil, err
	}
	k.disp.Locked(func() {
		p.Name = name
	})
	k.pushEvent("process_create", fmt.Sprintf("%s %s", h, name))
	klog.Debugf("KERNEX: process %s (%s) created", h, name)
	return h, nil
}

// CreateThread adds a thread. With a body the kernel spawns a pooled
// goroutine to carry it and readies the thread at once; with a nil body the
// thread stays Initialized until a goroutine adopts it through Attach.
//
// proc may be Nil for a thread outside any process. An empty affinity means
// every processor.
func (k *Kernel) CreateThread(proc ktask.Handle, name string, pri ktask.Priority, affinity ktask.CPUSet, body func()) (ktask.Handle, error) {
	switch atomic.LoadInt32(&k.state) {
	case stateNew:
		return ktask.Nil, kerrors.ErrNotRunning
	case stateStopped:
		return ktask.Nil, kerrors.ErrKernelShutdown
	}
	if !pri.Valid() {
		bugcheck.Halt(bugcheck.CodeStateInvalid, "create thread %q: priority %d out of range", name, pri)
	}
	allowed := ktask.AllCPUs(k.sched.CPUCount())
	if affinity.Empty() {
		affinity = allowed
	} else if (affinity & allowed).Empty() {
		return ktask.Nil, kerrors.ErrNoAllowedCPU
	}
	if proc != ktask.Nil {
		if !proc.IsProcess() {
			return ktask.Nil, kerrors.ErrInvalidHandle
		}
		if _, ok := k.arena.ProcessOK(proc); !ok {
			return ktask.Nil, kerrors.ErrInvalidHandle
		}
	}

	h, t, err := k.arena.AllocThread()
	if err != nil {
		return ktask.Nil, err
	}
	t.Name = name
	t.Process = proc
	t.BasePriority = pri
	t.Priority = pri
	t.Affinity = affinity

	rec := &threadRecord{exit: dispatch.NewEvent(dispatch.NotificationEvent, false)}
	k.mu.Lock()
	k.threads[h] = rec
	k.mu.Unlock()

	if proc != ktask.Nil {
		k.disp.Locked(func() {
			if p, ok := k.arena.ProcessOK(proc); ok {
				p.ThreadCount++
			}
		})
	}
	k.pushEvent("thread_create", fmt.Sprintf("%s %s", h, name))
	klog.Debugf("KERNEX: thread %s (%s) created", h, name)
	if body == nil {
		return h, nil
	}

	k.pool.GoCtx(context.Background(), func() {
		k.runOn(h, t, rec, body)
	})
	k.disp.Locked(func() {
		k.sched.Ready(t, 0)
	})
	return h, nil
}

// Go spawns a kernel thread at the default priority with a generated name.
func (k *Kernel) Go(body func()) (ktask.Handle, error) {
	n := atomic.AddInt64(&k.seq, 1)
	return k.CreateThread(ktask.Nil, fmt.Sprintf("go/%d", n), DefaultPriority, 0, body)
}

// Attach donates the calling goroutine to a thread created with a nil body.
// It blocks until the thread is first scheduled, runs body as the thread,
// and returns after the thread has exited. The goroutine must not already
// carry a thread.
func (k *Kernel) Attach(h ktask.Handle, body func()) error {
	switch atomic.LoadInt32(&k.state) {
	case stateNew:
		return kerrors.ErrNotRunning
	case stateStopped:
		return kerrors.ErrKernelShutdown
	}
	if _, ok := session.Cur(); ok {
		return kerrors.ErrAlreadyAttached
	}
	var t *ktask.TCB
	var err error
	k.disp.Locked(func() {
		tt, ok := k.arena.ThreadOK(h)
		if !ok || tt.State == ktask.StateTerminated {
			err = kerrors.ErrInvalidHandle
			return
		}
		if tt.State != ktask.StateInitialized || tt.Bound() {
			err = kerrors.ErrAlreadyAttached
			return
		}
		// Binding inside the lock claims the thread against a second Attach.
		tt.BindGoroutine()
		t = tt
	})
	if err != nil {
		return err
	}
	k.mu.Lock()
	rec := k.threads[h]
	k.mu.Unlock()
	k.disp.Locked(func() {
		k.sched.Ready(t, 0)
	})
	k.runOn(h, t, rec, body)
	return nil
}

// runOn carries thread t on the calling goroutine until the thread exits.
func (k *Kernel) runOn(h ktask.Handle, t *ktask.TCB, rec *threadRecord, body func()) {
	k.carriers.Inc()
	defer k.carriers.Dec()
	t.BindGoroutine()
	k.bindCurrent(h)
	t.AwaitGrant()
	k.runBody(t, body)
	k.finishThread(h, t, rec)
}

// runBody runs the thread body, absorbing the exit unwind and turning a
// panic in the body into a logged exit.
func (k *Kernel) runBody(t *ktask.TCB, body func()) {
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(threadExit); ok {
				return
			}
			klog.Errorf("KERNEX: thread %s (%s) body panic: %v\n%s", t.Self(), t.Name, r, debug.Stack())
		}
	}()
	k.safePoint(t)
	body()
}

// finishThread runs the exit protocol on the thread's own goroutine: owned
// mutexes are abandoned and joiners woken, the process accounting drops, the
// processor is handed over, and the arena slot is freed.
func (k *Kernel) finishThread(h ktask.Handle, t *ktask.TCB, rec *threadRecord) {
	k.disp.NotifyExit(t)
	k.disp.SetEvent(rec.exit, 0)
	k.mu.Lock()
	delete(k.threads, h)
	k.mu.Unlock()
	if t.Process != ktask.Nil {
		k.disp.Locked(func() {
			if p, ok := k.arena.ProcessOK(t.Process); ok {
				p.ThreadCount--
			}
		})
	}
	name := t.Name
	k.sched.Exit(t)
	switches := t.SwitchedIn
	t.UnbindGoroutine()
	session.Unbind()
	k.disp.Locked(func() {
		k.arena.FreeThread(h)
	})
	k.logExit(h, name, switches)
	k.pushEvent("thread_exit", fmt.Sprintf("%s %s", h, name))
	klog.Debugf("KERNEX: thread %s (%s) exited", h, name)
}

// Exit terminates the calling thread. It does not return.
func (k *Kernel) Exit() {
	k.mustCurrent("exit")
	panic(threadExit{})
}

// Terminate dooms thread h. The flag is honored at the target's next kernel
// entry: a waiting thread is kicked out with StatusTerminated and a
// suspended one is readied so it can unwind. Terminating the calling thread
// exits immediately.
func (k *Kernel) Terminate(h ktask.Handle) error {
	if err := k.disp.Doom(h); err != nil {
		return err
	}
	k.pushEvent("thread_terminate", h.String())
	if t := k.currentOK(); t != nil && t.Self() == h {
		panic(threadExit{})
	}
	return nil
}

// Suspend raises the suspend count of thread h and returns the new count.
// The target parks at its next kernel entry; a thread suspending itself
// parks before returning.
func (k *Kernel) Suspend(h ktask.Handle) (int32, error) {
	var n int32
	var err error
	k.disp.Locked(func() {
		t, ok := k.arena.ThreadOK(h)
		if !ok || t.State == ktask.StateTerminated {
			err = kerrors.ErrInvalidHandle
			return
		}
		if t.Doomed {
			err = kerrors.ErrThreadTerminated
			return
		}
		t.SuspendCount++
		n = t.SuspendCount
	})
	if err != nil {
		return 0, err
	}
	if t := k.currentOK(); t != nil && t.Self() == h {
		k.safePoint(t)
	}
	return n, nil
}

// Resume drops the suspend count of thread h and returns the new count. The
// thread runs again once the count reaches zero. Resuming a thread that is
// not suspended reports zero without an error.
func (k *Kernel) Resume(h ktask.Handle) (int32, error) {
	var n int32
	var err error
	k.disp.Locked(func() {
		t, ok := k.arena.ThreadOK(h)
		if !ok || t.State == ktask.StateTerminated {
			err = kerrors.ErrInvalidHandle
			return
		}
		if t.SuspendCount == 0 {
			return
		}
		t.SuspendCount--
		n = t.SuspendCount
		if n == 0 && t.State == ktask.StateSuspended {
			k.sched.Ready(t, 0)
		}
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// QueueAPC queues fn to run in thread h's context at its next kernel entry.
// A thread sitting in an alertable wait wakes with StatusUserAPC to run it
// promptly.
func (k *Kernel) QueueAPC(h ktask.Handle, fn ktask.APC) error {
	return k.disp.QueueAPC(h, fn)
}

// Join waits until thread h exits, with the usual timeout semantics. A
// handle whose thread is already gone joins immediately with success.
func (k *Kernel) Join(h ktask.Handle, timeout ktime.Tick) ktask.Status {
	t := k.mustCurrent("join")
	if h == t.Self() {
		bugcheck.Halt(bugcheck.CodeStateInvalid, "thread %s joining itself", h)
	}
	k.mu.Lock()
	rec := k.threads[h]
	k.mu.Unlock()
	if rec == nil {
		return ktask.StatusSuccess
	}
	st, _ := k.waitOn(t, []dispatch.Object{rec.exit}, ktask.WaitAny, timeout, false)
	return st
}

// ThreadObject returns a waitable object that signals when thread h exits,
// for composing thread lifetimes into WaitMulti. ok is false when the
// thread is already gone.
func (k *Kernel) ThreadObject(h ktask.Handle) (obj dispatch.Object, ok bool) {
	k.mu.Lock()
	rec := k.threads[h]
	k.mu.Unlock()
	if rec == nil {
		return nil, false
	}
	return rec.exit, true
}

// safePoint runs the deferred work a thread accepts at kernel entries:
// termination unwinds, queued procedures run, suspension parks. It loops
// until nothing applies, since a procedure may suspend the thread and a
// resumed thread may have been doomed meanwhile.
func (k *Kernel) safePoint(t *ktask.TCB) {
	for {
		var doomed, park bool
		var apcs []ktask.APC
		k.disp.Locked(func() {
			switch {
			case t.Doomed:
				doomed = true
			case t.HasAPCs():
				apcs = t.TakeAPCs()
			case t.SuspendCount > 0:
				// Marking Suspended under the dispatcher lock closes the
				// race with Resume: a resume landing before the park is
				// absorbed by the switch path.
				t.State = ktask.StateSuspended
				park = true
			}
		})
		switch {
		case doomed:
			panic(threadExit{})
		case apcs != nil:
			for _, fn := range apcs {
				fn()
			}
		case park:
			k.sched.Park(t, ktask.StateSuspended, sched.ReasonSuspend)
		default:
			return
		}
	}
}

func (k *Kernel) bindCurrent(h ktask.Handle) {
	session.Bind(context.WithValue(context.Background(), bindingKey{}, binding{k: k, h: h}))
}

// currentOK resolves the calling goroutine's thread in this kernel, or nil.
func (k *Kernel) currentOK() *ktask.TCB {
	ctx, ok := session.Cur()
	if !ok {
		return nil
	}
	b, ok := ctx.Value(bindingKey{}).(binding)
	if !ok || b.k != k {
		return nil
	}
	t, ok := k.arena.ThreadOK(b.h)
	if !ok {
		return nil
	}
	return t
}

// mustCurrent resolves the calling thread or halts. Status-returning
// operations have no error channel, and calling them from a plain goroutine
// is a programming error, not a runtime condition.
func (k *Kernel) mustCurrent(op string) *ktask.TCB {
	t := k.currentOK()
	if t == nil {
		bugcheck.Halt(bugcheck.CodeThreadContext, "%s requires an attached thread", op)
	}
	t.CheckGoroutine()
	return t
}
