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
	"math/bits"
	"sync"

	"golang.org/x/sys/cpu"

	"github.com/cloudwego/kernex/pkg/ktask"
	"github.com/cloudwego/kernex/pkg/ktime"
)

// cpuBlock is the per-processor scheduling state. The mutex guards all of it
// except resched, which remote processors flip atomically. Lock order:
// dispatcher lock before any cpuBlock mutex, never the other way.
type cpuBlock struct {
	id int32

	mu      sync.Mutex
	queues  [ktask.NumPriorities]ktask.List
	summary uint32
	current ktask.Handle
	next    ktask.Handle
	idle    ktask.Handle

	resched  int32
	idleWake chan struct{}

	switches  int64
	preempts  int64
	idleTicks int64

	_ cpu.CacheLinePad
}

func (c *cpuBlock) init(id int32, arena *ktask.Arena) {
	c.id = id
	for i := range c.queues {
		c.queues[i].Init(arena, ktask.OwnerReadyQueue)
	}
	c.current = ktask.Nil
	c.next = ktask.Nil
	c.idle = ktask.Nil
	c.idleWake = make(chan struct{}, 1)
}

// insertLocked queues t at its priority and assigns it to this processor.
func (c *cpuBlock) insertLocked(t *ktask.TCB, now ktime.Tick, front bool) {
	t.State = ktask.StateReady
	t.NextCPU = c.id
	t.ReadySince = now
	pri := t.Priority
	if front {
		c.queues[pri].PushFront(t.Self())
	} else {
		c.queues[pri].PushBack(t.Self())
	}
	c.summary |= 1 << uint(pri)
}

func (c *cpuBlock) removeLocked(t *ktask.TCB) {
	pri := t.Priority
	c.queues[pri].Remove(t.Self())
	if c.queues[pri].Empty() {
		c.summary &^= 1 << uint(pri)
	}
}

// topLocked returns the highest priority with a queued thread, or -1.
func (c *cpuBlock) topLocked() int {
	if c.summary == 0 {
		return -1
	}
	return 31 - bits.LeadingZeros32(c.summary)
}

// popLocked dequeues the highest-priority thread, or Nil.
func (c *cpuBlock) popLocked() ktask.Handle {
	top := c.topLocked()
	if top < 0 {
		return ktask.Nil
	}
	h := c.queues[top].PopFront()
	if c.queues[top].Empty() {
		c.summary &^= 1 << uint(top)
	}
	return h
}

func (c *cpuBlock) readyCountLocked() int {
	n := 0
	for i := range c.queues {
		n += c.queues[i].Size()
	}
	return n
}

// nudgeIdle kicks the idle loop out of its channel wait. Safe to call from
// anywhere; the buffered channel absorbs duplicates.
func (c *cpuBlock) nudgeIdle() {
	select {
	case c.idleWake <- struct{}{}:
	default:
	}
}
