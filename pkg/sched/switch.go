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

package sched

import (
	"sync/atomic"

	"github.com/cloudwego/kernex/pkg/ktask"
	"github.com/cloudwego/kernex/pkg/ktime"
)

// selectNextLocked picks the thread to run next on c and detaches it from
// the queues. The standby thread wins unless a queued thread now outranks
// it, in which case the standby goes back to the front of its queue. With
// nothing runnable the idle thread is chosen.
func (s *Scheduler) selectNextLocked(c *cpuBlock) *ktask.TCB {
	var cand *ktask.TCB
	if c.next != ktask.Nil {
		cand = s.arena.Thread(c.next)
		c.next = ktask.Nil
		if top := c.topLocked(); top > int(cand.Priority) {
			c.insertLocked(cand, ktime.Tick(atomic.LoadInt64(&s.now)), true)
			cand = nil
		}
	}
	if cand == nil {
		if h := c.popLocked(); h != ktask.Nil {
			cand = s.arena.Thread(h)
		}
	}
	if cand == nil {
		cand = s.arena.Thread(c.idle)
	}
	return cand
}

// promoteLocked makes t the current thread on c.
func (s *Scheduler) promoteLocked(c *cpuBlock, t *ktask.TCB, reason string) {
	from := c.current
	c.current = t.Self()
	t.State = ktask.StateRunning
	t.LastCPU = c.id
	if t.NextCPU == c.id {
		t.NextCPU = -1
	}
	t.SwitchedIn++
	c.switches++
	atomic.StoreInt32(&c.resched, 0)
	if s.trace != nil {
		s.trace(c.id, from, t.Self(), reason)
	}
}

// Block switches t off its processor after the dispatcher has put it in a
// non-running state (waiting, transition, terminated by a remote thread).
// The call returns when t is granted the processor again. Must be called
// from t's own goroutine.
func (s *Scheduler) Block(t *ktask.TCB) {
	t.CheckGoroutine()
	c := &s.cpus[t.LastCPU]
	c.mu.Lock()
	assertCurrent(c, t)
	next := s.selectNextLocked(c)
	if next == t {
		// Readied again before the switch: the wake targeted this
		// processor and nothing else outranks t, so keep running.
		t.State = ktask.StateRunning
		c.mu.Unlock()
		return
	}
	s.promoteLocked(c, next, ReasonBlock)
	c.mu.Unlock()
	next.Grant()
	t.AwaitGrant()
}

// Yield gives up the processor to a thread of equal or higher priority. A
// thread with nothing to yield to keeps running; otherwise it goes to the
// tail of its queue with a fresh quantum.
func (s *Scheduler) Yield(t *ktask.TCB) {
	t.CheckGoroutine()
	c := &s.cpus[t.LastCPU]
	c.mu.Lock()
	assertCurrent(c, t)
	if c.summary == 0 && c.next == ktask.Nil {
		c.mu.Unlock()
		return
	}
	t.Quantum = atomic.LoadInt32(&s.quantum)
	c.insertLocked(t, ktime.Tick(atomic.LoadInt64(&s.now)), false)
	next := s.selectNextLocked(c)
	if next == t {
		t.State = ktask.StateRunning
		c.mu.Unlock()
		return
	}
	s.promoteLocked(c, next, ReasonYield)
	c.mu.Unlock()
	next.Grant()
	t.AwaitGrant()
}

// Checkpoint is the cooperative preemption point. It is cheap when the
// processor has no pending reschedule, and a no-op while the thread is
// non-preemptible. On quantum end the thread decays one priority level
// toward its base and requeues at the tail; on preemption it requeues at
// the front with its quantum intact. Returns true if the thread was
// switched out and back in.
func (s *Scheduler) Checkpoint(t *ktask.TCB) bool {
	c := &s.cpus[t.LastCPU]
	if atomic.LoadInt32(&c.resched) == 0 || !t.Preemptible() {
		return false
	}
	t.CheckGoroutine()
	c.mu.Lock()
	assertCurrent(c, t)
	reason := ReasonPreempt
	front := true
	if t.Quantum <= 0 {
		reason = ReasonQuantum
		front = false
		t.Quantum = atomic.LoadInt32(&s.quantum)
		if !t.Priority.Realtime() && t.Priority > t.BasePriority {
			t.Priority--
		}
	}
	c.insertLocked(t, ktime.Tick(atomic.LoadInt64(&s.now)), front)
	next := s.selectNextLocked(c)
	if next == t {
		t.State = ktask.StateRunning
		atomic.StoreInt32(&c.resched, 0)
		c.mu.Unlock()
		return false
	}
	if reason == ReasonPreempt {
		c.preempts++
	}
	s.promoteLocked(c, next, reason)
	c.mu.Unlock()
	next.Grant()
	t.AwaitGrant()
	return true
}

// Park switches t out in the given state without queueing it anywhere. The
// thread stays off the ready queues until something calls Ready for it.
// Used for suspension, where resume supplies the wake.
func (s *Scheduler) Park(t *ktask.TCB, state ktask.State, reason string) {
	t.CheckGoroutine()
	c := &s.cpus[t.LastCPU]
	c.mu.Lock()
	assertCurrent(c, t)
	t.State = state
	next := s.selectNextLocked(c)
	if next == t {
		t.State = ktask.StateRunning
		c.mu.Unlock()
		return
	}
	s.promoteLocked(c, next, reason)
	c.mu.Unlock()
	next.Grant()
	t.AwaitGrant()
}

// Exit switches the terminated thread off its processor for good. The
// caller's goroutine returns to the pool afterwards; there is no grant to
// wait for.
func (s *Scheduler) Exit(t *ktask.TCB) {
	t.CheckGoroutine()
	c := &s.cpus[t.LastCPU]
	c.mu.Lock()
	assertCurrent(c, t)
	t.State = ktask.StateTerminated
	next := s.selectNextLocked(c)
	s.promoteLocked(c, next, ReasonExit)
	c.mu.Unlock()
	if next != t {
		next.Grant()
	}
}

// RunIdle runs the processor's idle loop until stop is closed. It must be
// called on a dedicated goroutine after SetIdle; the kernel grants the idle
// thread once during bring-up to start the loop.
func (s *Scheduler) RunIdle(t *ktask.TCB, stop <-chan struct{}) {
	t.BindGoroutine()
	defer t.UnbindGoroutine()
	c := &s.cpus[t.LastCPU]
	for {
		t.AwaitGrant()
		for {
			c.mu.Lock()
			next := s.selectNextLocked(c)
			if next != t {
				s.promoteLocked(c, next, ReasonIdle)
				c.mu.Unlock()
				next.Grant()
				break
			}
			// Nothing runnable. The idle thread stays current and sleeps
			// until a wake arrives or the kernel shuts down.
			atomic.StoreInt32(&c.resched, 0)
			c.mu.Unlock()
			select {
			case <-c.idleWake:
			case <-stop:
				return
			}
		}
	}
}
