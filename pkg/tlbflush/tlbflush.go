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

// Package tlbflush coordinates TLB shootdowns: the initiator invalidates
// locally, then rendezvouses with every other targeted processor over an
// interrupt broadcast and an acknowledgment counter. One request exists at a
// time, serialized by a push lock the initiator holds for the whole
// rendezvous; handlers read the request without taking it, ordered by the
// interrupt delivery itself.
package tlbflush

import (
	"sync/atomic"
	"time"

	"github.com/cloudwego/kernex/pkg/bugcheck"
	"github.com/cloudwego/kernex/pkg/hal"
	"github.com/cloudwego/kernex/pkg/ktask"
	"github.com/cloudwego/kernex/pkg/pushlock"
)

// ShootdownVector is the interrupt vector shootdown requests ride on.
const ShootdownVector hal.Vector = 0xe1

// DefaultTimeout bounds the acknowledgment rendezvous.
const DefaultTimeout = 3 * time.Second

// DefaultRangePageLimit is the page count above which a range flush is
// widened to a full flush to bound handler loop length.
const DefaultRangePageLimit = 256

// Coordinator owns the single in-flight shootdown request.
type Coordinator struct {
	mem hal.MemoryManager
	ic  hal.InterruptController

	timeout  time.Duration
	rangeLim uint64

	// Request state. The initiator writes it under mu before broadcasting;
	// handlers read it after delivery, which orders the accesses.
	mu       pushlock.PushLock
	inv      hal.Invalidation
	targets  ktask.CPUSet
	expected int32
	acks     int32
	done     chan struct{}

	active     int32
	broadcasts int64
	singles    int64
	ranges     int64
	fulls      int64
	converted  int64
}

// NewCoordinator wires the coordinator to its collaborators and registers
// the shootdown handler on the interrupt controller.
func NewCoordinator(mem hal.MemoryManager, ic hal.InterruptController, timeout time.Duration, rangePageLimit int) *Coordinator {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if rangePageLimit <= 0 {
		rangePageLimit = DefaultRangePageLimit
	}
	c := &Coordinator{
		mem:      mem,
		ic:       ic,
		timeout:  timeout,
		rangeLim: uint64(rangePageLimit),
	}
	ic.Register(ShootdownVector, c.handle)
	return c
}

// Flush invalidates the translation described by inv on every processor in
// targets. The initiator's processor is invalidated directly; the rest are
// reached by interrupt and awaited. t, when non-nil, is the initiating
// thread and is made non-preemptible for the rendezvous. A missing
// acknowledgment within the timeout is a fatal inconsistency: some
// processor would keep running on stale translations.
func (c *Coordinator) Flush(t *ktask.TCB, initiator int32, inv hal.Invalidation, targets ktask.CPUSet) error {
	if inv.Kind == hal.InvalidateRange {
		if inv.End < inv.Start {
			bugcheck.Halt(bugcheck.CodeStateInvalid,
				"invalidation range end %#x below start %#x", inv.End, inv.Start)
		}
		if inv.Pages() > c.rangeLim {
			inv = hal.Invalidation{Kind: hal.InvalidateFull}
			atomic.AddInt64(&c.converted, 1)
		}
	}
	switch inv.Kind {
	case hal.InvalidateSinglePage:
		atomic.AddInt64(&c.singles, 1)
	case hal.InvalidateRange:
		atomic.AddInt64(&c.ranges, 1)
	default:
		atomic.AddInt64(&c.fulls, 1)
	}

	c.mem.InvalidateLocal(initiator, inv)
	remote := targets.Remove(int(initiator))
	if remote.Empty() {
		return nil
	}

	if t != nil {
		t.DisablePreemption()
		defer t.EnablePreemption()
	}

	c.mu.Acquire()
	c.inv = inv
	c.targets = remote
	c.expected = int32(remote.Count())
	atomic.StoreInt32(&c.acks, 0)
	c.done = make(chan struct{})
	atomic.StoreInt32(&c.active, 1)
	atomic.AddInt64(&c.broadcasts, 1)
	done := c.done

	if err := c.ic.Send(ShootdownVector, remote); err != nil {
		atomic.StoreInt32(&c.active, 0)
		c.mu.Release()
		return err
	}

	timer := time.NewTimer(c.timeout)
	select {
	case <-done:
		timer.Stop()
	case <-timer.C:
		bugcheck.Halt(bugcheck.CodeShootdownTimeout,
			"tlb shootdown expected %d acknowledgments, received %d",
			c.expected, atomic.LoadInt32(&c.acks))
	}

	atomic.StoreInt32(&c.active, 0)
	c.mu.Release()
	return nil
}

// handle runs in interrupt context on each targeted processor. A processor
// whose bit is absent from the target mask saw a stale or superseded
// delivery: it must not invalidate and must not acknowledge, only complete.
func (c *Coordinator) handle(cpu int32) {
	defer c.ic.Complete(cpu, ShootdownVector)
	if !c.targets.Has(int(cpu)) {
		return
	}
	c.mem.InvalidateLocal(cpu, c.inv)
	if atomic.AddInt32(&c.acks, 1) == c.expected {
		close(c.done)
	}
}

// Dump snapshots the coordinator for the diagnosis service. Request detail
// is included only when no shootdown holds the lock.
func (c *Coordinator) Dump() interface{} {
	out := map[string]interface{}{
		"active":          atomic.LoadInt32(&c.active) == 1,
		"broadcasts":      atomic.LoadInt64(&c.broadcasts),
		"single_page":     atomic.LoadInt64(&c.singles),
		"range":           atomic.LoadInt64(&c.ranges),
		"full":            atomic.LoadInt64(&c.fulls),
		"range_converted": atomic.LoadInt64(&c.converted),
	}
	if c.mu.TryAcquireShared() {
		out["last_kind"] = c.inv.Kind.String()
		out["last_targets"] = c.targets.Count()
		c.mu.ReleaseShared()
	}
	return out
}
