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

// Package balanceset runs the periodic balance passes: starvation relief on
// the ready queues, kernel-stack swap-out for long-waiting threads, and
// whole-process swap when every member thread has gone idle. Passes run off
// the tick path; a pass that is skipped because the previous one is still
// running is not an error.
package balanceset

import (
	"context"
	"sync/atomic"

	"github.com/bytedance/gopkg/lang/fastrand"

	"github.com/cloudwego/kernex/pkg/dispatch"
	"github.com/cloudwego/kernex/pkg/gofunc"
	"github.com/cloudwego/kernex/pkg/hal"
	"github.com/cloudwego/kernex/pkg/ktask"
	"github.com/cloudwego/kernex/pkg/ktime"
	"github.com/cloudwego/kernex/pkg/sched"
	"github.com/cloudwego/kernex/pkg/schedtune"
)

// DefaultClass is the scheduling class the coordinator reads policy for.
const DefaultClass = "*"

// Coordinator owns the balance-pass state for one kernel instance.
type Coordinator struct {
	arena  *ktask.Arena
	disp   *dispatch.Dispatcher
	sched  *sched.Scheduler
	mem    hal.MemoryManager
	tuning *schedtune.Container

	lastPass int64
	running  int32
	pressure int32
	rotation uint32

	passes    int64
	boosts    int64
	stackOuts int64
	procOuts  int64
	trims     int64
}

// NewCoordinator wires a coordinator. The rotation start is randomized so
// multiple instances in one process do not scan in lockstep.
func NewCoordinator(arena *ktask.Arena, disp *dispatch.Dispatcher, s *sched.Scheduler, mem hal.MemoryManager, tuning *schedtune.Container) *Coordinator {
	if tuning == nil {
		tuning = schedtune.NewContainer()
	}
	return &Coordinator{
		arena:    arena,
		disp:     disp,
		sched:    s,
		mem:      mem,
		tuning:   tuning,
		rotation: fastrand.Uint32(),
	}
}

// Tuning returns the policy container, for config sources to update.
func (c *Coordinator) Tuning() *schedtune.Container {
	return c.tuning
}

// NotifyPressure flags memory pressure. The next tick starts a pass that
// trims working sets and sweeps swap candidates without waiting for the
// period boundary.
func (c *Coordinator) NotifyPressure() {
	atomic.StoreInt32(&c.pressure, 1)
}

// OnTick is called from the clock pipeline, outside kernel locks. It
// decides whether a pass is due and spawns it.
func (c *Coordinator) OnTick(now ktime.Tick) {
	tn := c.tuning.Policy(DefaultClass)
	pressured := atomic.LoadInt32(&c.pressure) == 1
	if !pressured && int64(now)-atomic.LoadInt64(&c.lastPass) < tn.BalancePeriodTicks {
		return
	}
	if !atomic.CompareAndSwapInt32(&c.running, 0, 1) {
		return
	}
	atomic.StoreInt64(&c.lastPass, int64(now))
	gofunc.GoFunc(context.Background(), func() {
		defer atomic.StoreInt32(&c.running, 0)
		c.pass(now, tn)
	})
}

func (c *Coordinator) pass(now ktime.Tick, tn *schedtune.Tuning) {
	atomic.AddInt64(&c.passes, 1)
	if atomic.CompareAndSwapInt32(&c.pressure, 1, 0) {
		c.mem.TrimWorkingSets()
		atomic.AddInt64(&c.trims, 1)
	}

	cpu := int(atomic.AddUint32(&c.rotation, 1)-1) % c.sched.CPUCount()
	var boosted int
	c.disp.Locked(func() {
		boosted = c.sched.BoostStarvedOn(cpu, ktime.Tick(tn.StarvationTicks), tn.MaxBoostsPerPass)
	})
	atomic.AddInt64(&c.boosts, int64(boosted))

	c.sweep(now, ktime.Tick(tn.StackIdleTicks))
}

// sweep swaps out the kernel stacks of threads waiting past idleAge and
// hands fully idle processes to the memory manager. Thread wait state and
// process residency are dispatcher-lock-guarded, so the whole sweep runs
// under it; the memory manager must not reenter the kernel from these
// calls.
func (c *Coordinator) sweep(now, idleAge ktime.Tick) {
	c.disp.Locked(func() {
		c.arena.ForEachThread(func(t *ktask.TCB) bool {
			if t.State != ktask.StateWaiting || !t.StackResident {
				return true
			}
			if now-t.WaitSince < idleAge {
				return true
			}
			if c.mem.SwapOutStack(t.Self()) {
				t.StackResident = false
				atomic.AddInt64(&c.stackOuts, 1)
			}
			return true
		})

		members := make(map[ktask.Handle][2]int)
		c.arena.ForEachThread(func(t *ktask.TCB) bool {
			if t.Process == ktask.Nil || t.State == ktask.StateTerminated {
				return true
			}
			m := members[t.Process]
			m[0]++
			if t.State == ktask.StateWaiting && now-t.WaitSince >= idleAge {
				m[1]++
			}
			members[t.Process] = m
			return true
		})
		for ph, m := range members {
			if m[0] == 0 || m[1] != m[0] {
				continue
			}
			p, ok := c.arena.ProcessOK(ph)
			if !ok || !p.Resident {
				continue
			}
			p.Resident = false
			c.mem.SwapOutProcess(ph)
			atomic.AddInt64(&c.procOuts, 1)
		}
	})
}

// ReadyThreadsOlderThan lists threads that have been ready at least age
// ticks without running.
func (c *Coordinator) ReadyThreadsOlderThan(age ktime.Tick) []ktask.Handle {
	return c.sched.ReadyOlderThan(age)
}

// Dump snapshots pass counters for the diagnosis service.
func (c *Coordinator) Dump() interface{} {
	return map[string]interface{}{
		"passes":        atomic.LoadInt64(&c.passes),
		"boosts":        atomic.LoadInt64(&c.boosts),
		"stack_outs":    atomic.LoadInt64(&c.stackOuts),
		"process_outs":  atomic.LoadInt64(&c.procOuts),
		"trims":         atomic.LoadInt64(&c.trims),
		"pressure":      atomic.LoadInt32(&c.pressure) == 1,
		"pass_running":  atomic.LoadInt32(&c.running) == 1,
		"next_cpu_scan": int(atomic.LoadUint32(&c.rotation)) % c.sched.CPUCount(),
	}
}
