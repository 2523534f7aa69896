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

package balanceset

import (
	"testing"
	"time"

	"github.com/cloudwego/kernex/internal/test"
	"github.com/cloudwego/kernex/pkg/dispatch"
	"github.com/cloudwego/kernex/pkg/hal"
	"github.com/cloudwego/kernex/pkg/ktask"
	"github.com/cloudwego/kernex/pkg/sched"
	"github.com/cloudwego/kernex/pkg/schedtune"
)

const testPeriod = 10

func newTestRig(ncpu int) (*Coordinator, *ktask.Arena, *sched.Scheduler, *hal.SimMemory) {
	arena := ktask.NewArena(16, 4)
	s := sched.NewScheduler(arena, ncpu, 3, nil)
	d := dispatch.NewDispatcher(arena, func(*ktask.TCB, ktask.Status, ktask.Priority) {})
	mem := hal.NewSimMemory()
	tuning := schedtune.NewContainer()
	tuning.NotifyPolicyChange(map[string]*schedtune.Tuning{
		"*": {
			QuantumTicks:       3,
			StarvationTicks:    5,
			MaxBoostsPerPass:   4,
			StackIdleTicks:     20,
			BalancePeriodTicks: testPeriod,
		},
	})
	return NewCoordinator(arena, d, s, mem, tuning), arena, s, mem
}

func dump(c *Coordinator) map[string]interface{} {
	return c.Dump().(map[string]interface{})
}

func awaitPasses(t *testing.T, c *Coordinator, n int64) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		d := dump(c)
		if d["passes"].(int64) == n && !d["pass_running"].(bool) {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("pass %d not finished in time: %v", n, d)
		}
		time.Sleep(time.Millisecond)
	}
}

func newThread(t *testing.T, arena *ktask.Arena, name string, pri ktask.Priority) *ktask.TCB {
	t.Helper()
	_, tcb, err := arena.AllocThread()
	test.Assert(t, err == nil, err)
	tcb.Name = name
	tcb.BasePriority = pri
	tcb.Priority = pri
	tcb.Affinity = ktask.AllCPUs(ktask.MaxCPUs)
	return tcb
}

func TestPeriodGating(t *testing.T) {
	c, _, _, _ := newTestRig(1)

	c.OnTick(testPeriod - 1)
	time.Sleep(20 * time.Millisecond)
	test.Assert(t, dump(c)["passes"].(int64) == 0)

	c.OnTick(testPeriod)
	awaitPasses(t, c, 1)

	c.OnTick(testPeriod + 5)
	time.Sleep(20 * time.Millisecond)
	test.Assert(t, dump(c)["passes"].(int64) == 1)

	c.OnTick(2 * testPeriod)
	awaitPasses(t, c, 2)
}

func TestStarvationBoostPass(t *testing.T) {
	c, arena, s, _ := newTestRig(1)

	// A realtime thread takes the standby slot so the others land on the
	// ready queues, where the scan looks.
	top := newThread(t, arena, "top", 20)
	starved := newThread(t, arena, "starved", 2)
	fresh := newThread(t, arena, "fresh", 2)
	s.Ready(top, 0)
	s.Ready(starved, 0)
	s.Tick(27)
	s.Ready(fresh, 0)
	s.Tick(30)

	c.OnTick(30)
	awaitPasses(t, c, 1)

	test.Assert(t, dump(c)["boosts"].(int64) == 1)
	test.Assert(t, starved.Priority == ktask.MaxDynamic, starved.Priority)
	test.Assert(t, starved.Quantum == 6, starved.Quantum)
	test.Assert(t, fresh.Priority == 2, fresh.Priority)
	test.Assert(t, top.Priority == 20, top.Priority)

	// The boost requeued the starved thread, so only the fresh one still
	// carries queue age.
	aged := c.ReadyThreadsOlderThan(3)
	test.Assert(t, len(aged) == 1, aged)
	test.Assert(t, aged[0] == fresh.Self())
}

func TestStackSwapSweep(t *testing.T) {
	c, arena, _, mem := newTestRig(1)

	old := newThread(t, arena, "old", 8)
	old.State = ktask.StateWaiting
	old.WaitSince = 0
	old.StackResident = true

	young := newThread(t, arena, "young", 8)
	young.State = ktask.StateWaiting
	young.WaitSince = 22
	young.StackResident = true

	c.OnTick(25)
	awaitPasses(t, c, 1)

	test.Assert(t, !old.StackResident)
	test.Assert(t, young.StackResident)
	outs := mem.StackOuts()
	test.Assert(t, len(outs) == 1, outs)
	test.Assert(t, outs[0] == old.Self())

	// A denied swap-out leaves the stack resident for a later pass.
	mem.SetDenySwapOut(true)
	young.WaitSince = 0
	c.OnTick(50)
	awaitPasses(t, c, 2)
	test.Assert(t, young.StackResident)
	test.Assert(t, len(mem.StackOuts()) == 1)
}

func TestProcessSwap(t *testing.T) {
	c, arena, _, mem := newTestRig(1)

	ph, proc, err := arena.AllocProcess()
	test.Assert(t, err == nil, err)
	for i := 0; i < 2; i++ {
		tcb := newThread(t, arena, "idleproc", 8)
		tcb.Process = ph
		tcb.State = ktask.StateWaiting
		tcb.WaitSince = 0
		tcb.StackResident = true
	}

	ph2, proc2, err := arena.AllocProcess()
	test.Assert(t, err == nil, err)
	waiting := newThread(t, arena, "half-idle", 8)
	waiting.Process = ph2
	waiting.State = ktask.StateWaiting
	waiting.WaitSince = 0
	busy := newThread(t, arena, "busy", 8)
	busy.Process = ph2
	busy.State = ktask.StateRunning

	c.OnTick(25)
	awaitPasses(t, c, 1)

	test.Assert(t, !proc.Resident)
	test.Assert(t, proc2.Resident)
	outs := mem.ProcessOuts()
	test.Assert(t, len(outs) == 1, outs)
	test.Assert(t, outs[0] == ph)

	// An already swapped process is not handed over again.
	c.OnTick(50)
	awaitPasses(t, c, 2)
	test.Assert(t, len(mem.ProcessOuts()) == 1)
}

func TestPressureTrim(t *testing.T) {
	c, _, _, mem := newTestRig(2)

	c.NotifyPressure()
	c.OnTick(3)
	awaitPasses(t, c, 1)
	test.Assert(t, dump(c)["trims"].(int64) == 1)
	test.Assert(t, mem.Trims() == 1)

	// Pressure cleared; the next tick inside the period does nothing.
	c.OnTick(4)
	time.Sleep(20 * time.Millisecond)
	test.Assert(t, dump(c)["passes"].(int64) == 1)
}
