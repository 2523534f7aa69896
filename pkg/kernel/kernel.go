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

// Package kernel assembles the concurrency substrate into one runnable
// instance: the thread and process arenas, the dispatcher, the multiprocessor
// scheduler, the TLB shootdown coordinator and the balance set manager,
// behind a single operation surface. A Kernel is one simulated machine;
// instances in the same process are independent of each other.
//
// Threads are goroutines the kernel schedules cooperatively. Every kernel
// entry is a safe point: the calling thread may be switched out there, parked
// for suspension, handed its queued procedures, or unwound for termination.
// Between entries a thread runs undisturbed.
package kernel

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cloudwego/kernex/internal/session"
	"github.com/cloudwego/kernex/pkg/balanceset"
	"github.com/cloudwego/kernex/pkg/diagnosis"
	"github.com/cloudwego/kernex/pkg/dispatch"
	"github.com/cloudwego/kernex/pkg/event"
	"github.com/cloudwego/kernex/pkg/gofunc"
	"github.com/cloudwego/kernex/pkg/hal"
	"github.com/cloudwego/kernex/pkg/kerrors"
	"github.com/cloudwego/kernex/pkg/klog"
	"github.com/cloudwego/kernex/pkg/ktask"
	"github.com/cloudwego/kernex/pkg/ktime"
	"github.com/cloudwego/kernex/pkg/sched"
	"github.com/cloudwego/kernex/pkg/tlbflush"
	"github.com/cloudwego/kernex/pkg/utils"
	"github.com/cloudwego/kernex/pkg/wpool"
)

const (
	// DefaultTraceDepth is the size of the context switch trace ring kept
	// for diagnosis dumps.
	DefaultTraceDepth = 256

	// DefaultPriority is the priority of threads spawned with Go.
	DefaultPriority ktask.Priority = 8

	// exitLogSize bounds the recent exit records kept for dumps.
	exitLogSize = 64
)

const (
	stateNew int32 = iota
	stateRunning
	stateStopped
)

// Kernel is one kernel instance. Build it with New, bring it online with
// Startup, tear it down with Shutdown.
type Kernel struct {
	opt   *Options
	arena *ktask.Arena
	disp  *dispatch.Dispatcher
	sched *sched.Scheduler
	tlb   *tlbflush.Coordinator
	set   *balanceset.Coordinator

	mem   hal.MemoryManager
	ic    hal.InterruptController
	simIC *hal.SimInterrupts

	pool *wpool.Pool
	ts   ktime.TickSource

	state   int32
	startMu sync.Mutex
	stop    chan struct{}
	ticks   int64

	mu      sync.Mutex
	threads map[ktask.Handle]*threadRecord
	seq     int64

	// swapin links threads in transition while their stack is brought back
	// in, guarded by the dispatcher lock.
	swapin ktask.List

	// carriers counts the goroutines currently lent to thread bodies.
	carriers utils.AtomicInt
	exited   *utils.Ring

	trace event.Queue
}

// New assembles a kernel from the given options. The result is inert until
// Startup; a kernel without an explicit tick source or interrupt controller
// owns simulated ones.
func New(opts ...Option) *Kernel {
	session.Init()
	o := NewOptions(opts)
	k := &Kernel{
		opt:     o,
		stop:    make(chan struct{}),
		threads: make(map[ktask.Handle]*threadRecord),
		pool:    wpool.New(128, time.Second),
		exited:  utils.NewRing(exitLogSize),
		trace:   event.NewQueue(o.TraceDepth),
	}
	k.mem = o.Memory
	if k.mem == nil {
		k.mem = hal.NewSimMemory()
	}
	k.ic = o.Interrupts
	if k.ic == nil {
		sim := hal.NewSimInterrupts(o.CPUs)
		k.ic = sim
		k.simIC = sim
	}
	k.arena = ktask.NewArena(o.MaxThreads, o.MaxProcesses)
	k.swapin.Init(k.arena, ktask.OwnerSwapList)
	k.disp = dispatch.NewDispatcher(k.arena, k.readyThread)
	k.sched = sched.NewScheduler(k.arena, o.CPUs, o.Quantum, k.switchTrace(o.Trace))
	k.tlb = tlbflush.NewCoordinator(k.mem, k.ic, o.Config.ShootdownTimeout, o.Config.RangePageLimit)
	k.set = balanceset.NewCoordinator(k.arena, k.disp, k.sched, k.mem, o.Tuning)
	k.registerProbes()
	return k
}

// Startup brings the kernel online: the session manager, one idle loop per
// processor, and the clock. Threads can be created once it returns.
func (k *Kernel) Startup() error {
	k.startMu.Lock()
	defer k.startMu.Unlock()
	switch atomic.LoadInt32(&k.state) {
	case stateRunning:
		return kerrors.ErrAlreadyRunning
	case stateStopped:
		return kerrors.ErrKernelShutdown
	}
	ts := k.opt.TickSource
	if ts == nil {
		if k.opt.Config.TickPeriod <= 0 {
			return kerrors.ErrNoTickSource
		}
		ts = ktime.NewTickerSource(k.opt.Config.TickPeriod)
	}
	klog.SetLevel(logLevel(k.opt.Config.LogLevel))

	for i := 0; i < k.sched.CPUCount(); i++ {
		_, t, err := k.arena.AllocThread()
		if err != nil {
			// Spawned idle loops were already granted; closing stop lets
			// them drain out.
			atomic.StoreInt32(&k.state, stateStopped)
			close(k.stop)
			return err
		}
		t.Name = fmt.Sprintf("idle/%d", i)
		t.Affinity = ktask.OneCPU(i)
		k.sched.SetIdle(i, t)
		idle := t
		gofunc.RecoverGoFuncWithInfo(context.Background(), func() {
			k.sched.RunIdle(idle, k.stop)
		}, gofunc.NewBasicInfo(k.opt.Name, idle.Name))
		idle.Grant()
	}

	k.ts = ts
	ts.Start(k.clockTick)
	atomic.StoreInt32(&k.state, stateRunning)
	detail, _ := utils.Map2JSONStr(map[string]string{
		"name":    k.opt.Name,
		"cpus":    strconv.Itoa(k.sched.CPUCount()),
		"quantum": strconv.FormatInt(int64(k.sched.Quantum()), 10),
	})
	k.pushEvent("kernel_startup", detail)
	klog.Infof("KERNEX: kernel %s up, cpus=%d quantum=%d", k.opt.Name, k.sched.CPUCount(), k.sched.Quantum())
	return nil
}

// Shutdown stops the clock, retires the idle loops and closes a
// kernel-owned interrupt controller. Threads still parked in waits are not
// unwound; Shutdown ends the instance, it does not drain it.
func (k *Kernel) Shutdown() error {
	k.startMu.Lock()
	defer k.startMu.Unlock()
	if atomic.LoadInt32(&k.state) != stateRunning {
		return kerrors.ErrNotRunning
	}
	atomic.StoreInt32(&k.state, stateStopped)
	k.ts.Stop()
	close(k.stop)
	if k.simIC != nil {
		k.simIC.Close()
	}
	k.pushEvent("kernel_shutdown", k.opt.Name)
	klog.Infof("KERNEX: kernel %s down", k.opt.Name)
	return nil
}

// ClockTick advances the kernel clock by one tick: timers and timed waits
// fire, running threads are charged quantum, and the balance set manager
// decides whether a pass is due. The configured tick source drives it; tests
// with a manual source may also call it directly.
func (k *Kernel) ClockTick() {
	k.clockTick()
}

func (k *Kernel) clockTick() {
	now := ktime.Tick(atomic.AddInt64(&k.ticks, 1))
	k.disp.Advance(now)
	k.sched.Tick(now)
	k.set.OnTick(now)
}

// Now returns the current kernel time in ticks.
func (k *Kernel) Now() ktime.Tick {
	return ktime.Tick(atomic.LoadInt64(&k.ticks))
}

// CPUCount returns the simulated processor count.
func (k *Kernel) CPUCount() int {
	return k.sched.CPUCount()
}

// readyThread is the dispatcher's wake path; it runs with the dispatcher
// lock held. A thread whose kernel stack was swapped out detours through
// Transition until the inswap completes, and waking any thread of a
// swapped-out process makes the process resident again first.
func (k *Kernel) readyThread(t *ktask.TCB, st ktask.Status, boost ktask.Priority) {
	if p, ok := k.arena.ProcessOK(t.Process); ok && !p.Resident {
		p.Resident = true
	}
	if !t.StackResident {
		t.State = ktask.StateTransition
		h := t.Self()
		k.swapin.PushBack(h)
		k.mem.SwapInStack(h, func() { k.finishInswap(h) })
		return
	}
	k.sched.Ready(t, boost)
}

// finishInswap queues the re-admission of a thread whose stack became
// resident. The memory manager may invoke the completion from inside
// SwapInStack, while the dispatcher lock is still held, so the requeue moves
// to a fresh goroutine.
func (k *Kernel) finishInswap(h ktask.Handle) {
	gofunc.GoFunc(context.Background(), func() {
		k.disp.Locked(func() {
			t, ok := k.arena.ThreadOK(h)
			if !ok {
				return
			}
			if t.Link.Owner == ktask.OwnerSwapList {
				k.swapin.Remove(h)
			}
			if t.State != ktask.StateTransition {
				return
			}
			t.StackResident = true
			k.sched.Ready(t, 0)
		})
	})
}

// switchTrace feeds the trace ring and chains the user trace, under the
// processor lock.
func (k *Kernel) switchTrace(user sched.TraceFunc) sched.TraceFunc {
	return func(cpuID int32, from, to ktask.Handle, reason string) {
		k.trace.Push(&event.Event{
			Name:   reason,
			Time:   time.Now(),
			Detail: fmt.Sprintf("cpu%d %s -> %s", cpuID, from, to),
		})
		if user != nil {
			user(cpuID, from, to, reason)
		}
	}
}

func (k *Kernel) pushEvent(name, detail string) {
	e := &event.Event{Name: name, Time: time.Now(), Detail: detail}
	k.opt.Events.Push(e)
	k.opt.Bus.Dispatch(e)
}

func (k *Kernel) registerProbes() {
	svc := k.opt.DebugService
	diagnosis.RegisterProbeFunc(svc, diagnosis.OptionsKey, diagnosis.WrapAsProbeFunc(k.opt.DebugInfo))
	diagnosis.RegisterProbeFunc(svc, diagnosis.ConfigKey, diagnosis.WrapAsProbeFunc(k.opt.Config))
	diagnosis.RegisterProbeFunc(svc, diagnosis.ChangeEventsKey, k.opt.Events.Dump)
	diagnosis.RegisterProbeFunc(svc, diagnosis.ReadyQueuesKey, k.sched.Dump)
	diagnosis.RegisterProbeFunc(svc, diagnosis.ThreadsKey, k.dumpThreads)
	diagnosis.RegisterProbeFunc(svc, diagnosis.TimersKey, k.disp.Dump)
	diagnosis.RegisterProbeFunc(svc, diagnosis.ShootdownKey, k.tlb.Dump)
	diagnosis.RegisterProbeFunc(svc, diagnosis.BalanceSetKey, k.set.Dump)
	diagnosis.RegisterProbeFunc(svc, diagnosis.SwitchTraceKey, k.trace.Dump)
}

type exitDump struct {
	Handle   string `json:"handle"`
	Name     string `json:"name,omitempty"`
	Switches int64  `json:"switches"`
}

// logExit records a finished thread in the exit ring, displacing the oldest
// entry when full.
func (k *Kernel) logExit(h ktask.Handle, name string, switches int64) {
	rec := exitDump{Handle: h.String(), Name: name, Switches: switches}
	for k.exited.Push(rec) != nil {
		k.exited.Pop()
	}
}

type threadDump struct {
	Handle        string `json:"handle"`
	Name          string `json:"name,omitempty"`
	Process       string `json:"process,omitempty"`
	State         string `json:"state"`
	Priority      int    `json:"priority"`
	Base          int    `json:"base"`
	CPU           int32  `json:"cpu"`
	Switches      int64  `json:"switches"`
	SuspendCount  int32  `json:"suspend_count,omitempty"`
	Doomed        bool   `json:"doomed,omitempty"`
	StackResident bool   `json:"stack_resident"`
}

type processDump struct {
	Handle   string `json:"handle"`
	Name     string `json:"name,omitempty"`
	Threads  int32  `json:"threads"`
	Resident bool   `json:"resident"`
}

// dumpThreads walks the arenas for the diagnosis service. The snapshot is
// point-in-time and unsynchronized, like any crash-time inspection.
func (k *Kernel) dumpThreads() interface{} {
	threads := make([]threadDump, 0, k.arena.LiveThreads())
	k.arena.ForEachThread(func(t *ktask.TCB) bool {
		proc := ""
		if t.Process != ktask.Nil {
			proc = t.Process.String()
		}
		threads = append(threads, threadDump{
			Handle:        t.Self().String(),
			Name:          t.Name,
			Process:       proc,
			State:         t.State.String(),
			Priority:      int(t.Priority),
			Base:          int(t.BasePriority),
			CPU:           t.LastCPU,
			Switches:      t.SwitchedIn,
			SuspendCount:  t.SuspendCount,
			Doomed:        t.Doomed,
			StackResident: t.StackResident,
		})
		return true
	})
	procs := make([]processDump, 0, 4)
	k.arena.ForEachProcess(func(p *ktask.Process) bool {
		procs = append(procs, processDump{
			Handle:   p.Self().String(),
			Name:     p.Name,
			Threads:  p.ThreadCount,
			Resident: p.Resident,
		})
		return true
	})
	return map[string]interface{}{
		"live":           k.arena.LiveThreads(),
		"carriers":       k.carriers.Value(),
		"inswap_pending": k.swapin.Size(),
		"threads":        threads,
		"processes":      procs,
		"recent_exits":   k.exited.Dump(),
	}
}

func logLevel(s string) klog.Level {
	switch s {
	case "trace":
		return klog.LevelTrace
	case "debug":
		return klog.LevelDebug
	case "notice":
		return klog.LevelNotice
	case "warn":
		return klog.LevelWarn
	case "error":
		return klog.LevelError
	case "fatal":
		return klog.LevelFatal
	default:
		return klog.LevelInfo
	}
}
