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

// Package sched implements per-processor priority scheduling: 32 ready
// queues per processor with a summary bitmap, standby staging for
// preemption, quantum accounting with priority decay for dynamic threads,
// and an idle loop per processor.
//
// The scheduler never waits. Every entry point either runs to completion
// under a processor lock or, for the switch paths in switch.go, parks the
// calling goroutine on its thread gate after handing the processor to the
// next thread.
package sched

import (
	"strconv"
	"sync/atomic"

	"github.com/cloudwego/kernex/pkg/bugcheck"
	"github.com/cloudwego/kernex/pkg/ktask"
	"github.com/cloudwego/kernex/pkg/ktime"
)

// DefaultQuantum is the number of clock ticks a full quantum grants.
const DefaultQuantum int32 = 6

// Switch reasons reported to the trace hook.
const (
	ReasonBlock   = "block"
	ReasonYield   = "yield"
	ReasonQuantum = "quantum"
	ReasonPreempt = "preempt"
	ReasonExit    = "exit"
	ReasonSuspend = "suspend"
	ReasonIdle    = "idle"
)

// TraceFunc observes context switches. It runs under the processor lock, so
// implementations must return quickly and must not call back into the
// scheduler.
type TraceFunc func(cpuID int32, from, to ktask.Handle, reason string)

// Scheduler multiplexes threads over a fixed set of virtual processors.
// Wake-side entry points (Ready, SetPriority, BoostStarved, Tick) are called
// with the dispatcher lock held, which serializes them against each other;
// the per-processor mutex additionally serializes them against the switch
// paths, which run without the dispatcher lock.
type Scheduler struct {
	arena   *ktask.Arena
	cpus    []cpuBlock
	allowed ktask.CPUSet
	quantum int32
	now     int64
	trace   TraceFunc
}

// NewScheduler builds a scheduler with ncpu processors. Idle threads are
// installed separately through SetIdle.
func NewScheduler(arena *ktask.Arena, ncpu int, quantum int32, trace TraceFunc) *Scheduler {
	if ncpu < 1 {
		ncpu = 1
	}
	if ncpu > ktask.MaxCPUs {
		ncpu = ktask.MaxCPUs
	}
	if quantum <= 0 {
		quantum = DefaultQuantum
	}
	s := &Scheduler{
		arena:   arena,
		cpus:    make([]cpuBlock, ncpu),
		allowed: ktask.AllCPUs(ncpu),
		quantum: quantum,
		trace:   trace,
	}
	for i := range s.cpus {
		s.cpus[i].init(int32(i), arena)
	}
	return s
}

func (s *Scheduler) CPUCount() int { return len(s.cpus) }

func (s *Scheduler) Now() ktime.Tick { return ktime.Tick(atomic.LoadInt64(&s.now)) }

func (s *Scheduler) Quantum() int32 { return atomic.LoadInt32(&s.quantum) }

// SetQuantum adjusts the ticks granted per quantum. Running threads keep
// their remaining quantum; the new value applies from the next refresh.
func (s *Scheduler) SetQuantum(q int32) {
	if q > 0 {
		atomic.StoreInt32(&s.quantum, q)
	}
}

// SetIdle installs t as the processor's idle thread and makes it current.
// Called once per processor during bring-up, before any thread is readied.
func (s *Scheduler) SetIdle(cpuID int, t *ktask.TCB) {
	c := &s.cpus[cpuID]
	c.mu.Lock()
	c.idle = t.Self()
	c.current = t.Self()
	t.Idle = true
	t.State = ktask.StateRunning
	t.LastCPU = c.id
	c.mu.Unlock()
}

// Ready makes t runnable. The caller holds the dispatcher lock. If t beats
// the target processor's current thread it is staged as the standby thread
// and the processor is flagged to reschedule; otherwise it is queued at the
// tail of its priority.
//
// boost raises the current priority of dynamic threads above their base for
// one quantum. Realtime threads and already-higher threads are unaffected.
func (s *Scheduler) Ready(t *ktask.TCB, boost ktask.Priority) {
	applyBoost(t, boost)
	t.Quantum = atomic.LoadInt32(&s.quantum)

	c := &s.cpus[s.target(t)]
	c.mu.Lock()
	now := ktime.Tick(atomic.LoadInt64(&s.now))
	t.State = ktask.StateDeferredReady
	t.NextCPU = c.id

	curPri := int32(-1)
	curIdle := true
	if c.current != ktask.Nil {
		cur := s.arena.Thread(c.current)
		curIdle = cur.Idle
		if !curIdle {
			curPri = int32(cur.Priority)
		}
	}

	if int32(t.Priority) > curPri {
		// Preempt: stage t for the next switch. A lower-priority thread
		// already staged goes back to the front of its queue.
		if c.next != ktask.Nil {
			old := s.arena.Thread(c.next)
			if t.Priority > old.Priority {
				c.insertLocked(old, now, true)
				c.next = t.Self()
				t.State = ktask.StateStandby
			} else {
				c.insertLocked(t, now, false)
			}
		} else {
			c.next = t.Self()
			t.State = ktask.StateStandby
		}
		atomic.StoreInt32(&c.resched, 1)
	} else {
		c.insertLocked(t, now, false)
	}
	c.mu.Unlock()
	if curIdle {
		c.nudgeIdle()
	}
}

// target picks the processor for a readied thread: the one already assigned
// if still allowed, else the last one it ran on, else the lowest allowed.
func (s *Scheduler) target(t *ktask.TCB) int32 {
	mask := t.Affinity & s.allowed
	if mask.Empty() {
		mask = s.allowed
	}
	if t.NextCPU >= 0 && mask.Has(int(t.NextCPU)) {
		return t.NextCPU
	}
	if t.LastCPU >= 0 && mask.Has(int(t.LastCPU)) {
		return t.LastCPU
	}
	return int32(mask.Lowest())
}

// applyBoost raises the current priority of a dynamic thread to base plus
// boost, clamped to the dynamic ceiling. A boost never lowers priority and
// never touches realtime threads.
func applyBoost(t *ktask.TCB, boost ktask.Priority) {
	if boost == 0 || t.Priority.Realtime() {
		return
	}
	p := t.BasePriority + boost
	if p > ktask.MaxDynamic {
		p = ktask.MaxDynamic
	}
	if p > t.Priority {
		t.Priority = p
	}
}

// SetPriority sets the base and current priority of t. The caller holds the
// dispatcher lock, which pins the thread's scheduling state.
func (s *Scheduler) SetPriority(t *ktask.TCB, pri ktask.Priority) {
	switch t.State {
	case ktask.StateReady:
		c := &s.cpus[t.NextCPU]
		c.mu.Lock()
		c.removeLocked(t)
		t.BasePriority = pri
		t.Priority = pri
		c.insertLocked(t, ktime.Tick(atomic.LoadInt64(&s.now)), false)
		s.flagRescheduleLocked(c)
		c.mu.Unlock()
	case ktask.StateRunning:
		c := &s.cpus[t.LastCPU]
		c.mu.Lock()
		t.BasePriority = pri
		t.Priority = pri
		if top := c.topLocked(); int32(top) > int32(pri) {
			atomic.StoreInt32(&c.resched, 1)
		}
		c.mu.Unlock()
	default:
		// Waiting, standby, suspended or newborn threads carry the new
		// priority into their next queue insertion.
		t.BasePriority = pri
		t.Priority = pri
	}
}

// BoostPriority raises the current priority of a dynamic thread without
// touching its base. The boost decays one level per quantum end until the
// base is reached.
func (s *Scheduler) BoostPriority(t *ktask.TCB, to ktask.Priority) {
	if t.Priority.Realtime() || to <= t.Priority {
		return
	}
	if to > ktask.MaxDynamic {
		to = ktask.MaxDynamic
	}
	switch t.State {
	case ktask.StateReady:
		c := &s.cpus[t.NextCPU]
		c.mu.Lock()
		c.removeLocked(t)
		t.Priority = to
		c.insertLocked(t, ktime.Tick(atomic.LoadInt64(&s.now)), false)
		s.flagRescheduleLocked(c)
		c.mu.Unlock()
	case ktask.StateRunning:
		c := &s.cpus[t.LastCPU]
		c.mu.Lock()
		t.Priority = to
		c.mu.Unlock()
	default:
		t.Priority = to
	}
}

// flagRescheduleLocked flags the processor when a queued thread now beats
// the one running on it.
func (s *Scheduler) flagRescheduleLocked(c *cpuBlock) {
	top := c.topLocked()
	if top < 0 {
		return
	}
	curPri := int32(-1)
	curIdle := true
	if c.current != ktask.Nil {
		cur := s.arena.Thread(c.current)
		curIdle = cur.Idle
		if !curIdle {
			curPri = int32(cur.Priority)
		}
	}
	if int32(top) > curPri {
		atomic.StoreInt32(&c.resched, 1)
		if curIdle {
			c.nudgeIdle()
		}
	}
}

// BoostStarved scans the dynamic ready queues of every processor and lifts
// threads that have waited at least age ticks to the dynamic ceiling with a
// doubled quantum. At most limitPerCPU queued threads are examined per
// processor per call. Returns the number of threads boosted.
func (s *Scheduler) BoostStarved(age ktime.Tick, limitPerCPU int) int {
	total := 0
	for i := range s.cpus {
		total += s.BoostStarvedOn(i, age, limitPerCPU)
	}
	return total
}

// BoostStarvedOn is BoostStarved limited to one processor. The balance
// manager rotates through processors with it, one per pass.
func (s *Scheduler) BoostStarvedOn(cpuID int, age ktime.Tick, limit int) int {
	now := s.Now()
	c := &s.cpus[cpuID]
	c.mu.Lock()
	scanned := 0
	var starved []ktask.Handle
	for pri := 0; pri <= int(ktask.MaxDynamic) && scanned < limit; pri++ {
		if c.summary&(1<<uint(pri)) == 0 {
			continue
		}
		c.queues[pri].ForEach(func(h ktask.Handle) bool {
			if scanned >= limit {
				return false
			}
			scanned++
			if now-s.arena.Thread(h).ReadySince >= age {
				starved = append(starved, h)
			}
			return true
		})
	}
	for _, h := range starved {
		t := s.arena.Thread(h)
		c.removeLocked(t)
		t.Priority = ktask.MaxDynamic
		t.Quantum = 2 * atomic.LoadInt32(&s.quantum)
		c.insertLocked(t, now, false)
	}
	if len(starved) > 0 {
		s.flagRescheduleLocked(c)
	}
	c.mu.Unlock()
	return len(starved)
}

// ReadyOlderThan snapshots the threads that have sat on a ready queue at
// least age ticks. Within a processor the order is priority descending,
// then queue position.
func (s *Scheduler) ReadyOlderThan(age ktime.Tick) []ktask.Handle {
	now := s.Now()
	var out []ktask.Handle
	for i := range s.cpus {
		c := &s.cpus[i]
		c.mu.Lock()
		for pri := ktask.NumPriorities - 1; pri >= 0; pri-- {
			if c.summary&(1<<uint(pri)) == 0 {
				continue
			}
			c.queues[pri].ForEach(func(h ktask.Handle) bool {
				if now-s.arena.Thread(h).ReadySince >= age {
					out = append(out, h)
				}
				return true
			})
		}
		c.mu.Unlock()
	}
	return out
}

// Tick advances scheduler time and charges the running thread on every
// processor with one clock tick. A thread whose quantum runs out has its
// processor flagged; the decay and requeue happen at its next checkpoint.
func (s *Scheduler) Tick(now ktime.Tick) {
	atomic.StoreInt64(&s.now, int64(now))
	for i := range s.cpus {
		c := &s.cpus[i]
		c.mu.Lock()
		nudge := false
		if c.current != ktask.Nil {
			t := s.arena.Thread(c.current)
			switch {
			case t.Idle:
				c.idleTicks++
				// Re-nudge a sleeping idle loop if work is visible, in
				// case an earlier nudge raced with its channel wait.
				nudge = c.summary != 0 || c.next != ktask.Nil
			case t.State == ktask.StateRunning:
				// A current thread in any other state is mid-switch;
				// its successor starts with a fresh quantum anyway.
				if !t.Preemptible() {
					break
				}
				if t.Quantum > 0 {
					t.Quantum--
				}
				if t.Quantum <= 0 {
					atomic.StoreInt32(&c.resched, 1)
				}
			}
		}
		c.mu.Unlock()
		if nudge {
			c.nudgeIdle()
		}
	}
}

// CPUDump is a point-in-time snapshot of one processor.
type CPUDump struct {
	ID        int32  `json:"id"`
	Current   string `json:"current"`
	Next      string `json:"next"`
	Summary   string `json:"summary"`
	Ready     int    `json:"ready"`
	Switches  int64  `json:"switches"`
	Preempts  int64  `json:"preempts"`
	IdleTicks int64  `json:"idle_ticks"`
	Resched   bool   `json:"resched"`
}

// Dump snapshots every processor for the diagnosis service.
func (s *Scheduler) Dump() interface{} {
	cpus := make([]CPUDump, len(s.cpus))
	for i := range s.cpus {
		c := &s.cpus[i]
		c.mu.Lock()
		cpus[i] = CPUDump{
			ID:        c.id,
			Current:   s.threadLabel(c.current),
			Next:      s.threadLabel(c.next),
			Summary:   "0x" + strconv.FormatUint(uint64(c.summary), 16),
			Ready:     c.readyCountLocked(),
			Switches:  c.switches,
			Preempts:  c.preempts,
			IdleTicks: c.idleTicks,
			Resched:   atomic.LoadInt32(&c.resched) != 0,
		}
		c.mu.Unlock()
	}
	return map[string]interface{}{
		"now":     atomic.LoadInt64(&s.now),
		"quantum": atomic.LoadInt32(&s.quantum),
		"cpus":    cpus,
	}
}

func (s *Scheduler) threadLabel(h ktask.Handle) string {
	if h == ktask.Nil {
		return ""
	}
	t, ok := s.arena.ThreadOK(h)
	if !ok {
		return h.String()
	}
	if t.Name != "" {
		return t.Name
	}
	return h.String()
}

func assertCurrent(c *cpuBlock, t *ktask.TCB) {
	if c.current != t.Self() {
		bugcheck.Halt(bugcheck.CodeSchedCorrupt,
			"thread %s switching on processor %d but is not current", t.Self(), c.id)
	}
}
