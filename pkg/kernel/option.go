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
	"fmt"

	"github.com/cloudwego/kernex/internal/configutil"
	"github.com/cloudwego/kernex/pkg/diagnosis"
	"github.com/cloudwego/kernex/pkg/event"
	"github.com/cloudwego/kernex/pkg/hal"
	"github.com/cloudwego/kernex/pkg/kconf"
	"github.com/cloudwego/kernex/pkg/ktask"
	"github.com/cloudwego/kernex/pkg/ktime"
	"github.com/cloudwego/kernex/pkg/sched"
	"github.com/cloudwego/kernex/pkg/schedtune"
	"github.com/cloudwego/kernex/pkg/utils"
)

// Option is the only way to config a kernel instance.
type Option struct {
	F func(o *Options, di *utils.Slice)
}

// Options holds everything a kernel is built from. Prefer the With*
// constructors over touching it directly; every applied option leaves a
// record in DebugInfo for the diagnosis service.
type Options struct {
	Name string

	Config       *kconf.Config
	CPUs         int
	MaxThreads   int
	MaxProcesses int
	Quantum      int32

	TickSource ktime.TickSource
	Interrupts hal.InterruptController
	Memory     hal.MemoryManager
	Tuning     *schedtune.Container
	Trace      sched.TraceFunc
	TraceDepth int

	Bus          event.Bus
	Events       event.Queue
	DebugInfo    utils.Slice
	DebugService diagnosis.Service

	Once *configutil.OptionOnce
}

// NewOptions applies the given options on top of the built-in defaults and
// clamps the result into a usable shape.
func NewOptions(opts []Option) *Options {
	cfg := kconf.Default()
	o := &Options{
		Name:         "kernel",
		Config:       cfg,
		CPUs:         cfg.CPUs,
		MaxThreads:   cfg.MaxThreads,
		MaxProcesses: ktask.DefaultMaxProcesses,
		Quantum:      int32(cfg.QuantumTicks),
		Tuning:       schedtune.NewContainer(),
		TraceDepth:   DefaultTraceDepth,
		Bus:          event.NewEventBus(),
		Events:       event.NewQueue(event.MaxEventNum),
		DebugService: diagnosis.NoopService,
		Once:         configutil.NewOptionOnce(),
	}
	ApplyOptions(opts, o)
	if o.Config == nil {
		o.Config = kconf.Default()
	}
	if o.CPUs < 1 {
		o.CPUs = 1
	}
	if o.CPUs > ktask.MaxCPUs {
		o.CPUs = ktask.MaxCPUs
	}
	if o.MaxThreads <= 0 {
		o.MaxThreads = ktask.DefaultMaxThreads
	}
	if o.MaxProcesses <= 0 {
		o.MaxProcesses = ktask.DefaultMaxProcesses
	}
	if o.TraceDepth <= 0 {
		o.TraceDepth = DefaultTraceDepth
	}
	if o.Tuning == nil {
		o.Tuning = schedtune.NewContainer()
	}
	if o.Bus == nil {
		o.Bus = event.NewEventBus()
	}
	if o.Events == nil {
		o.Events = event.NewQueue(event.MaxEventNum)
	}
	if o.DebugService == nil {
		o.DebugService = diagnosis.NoopService
	}
	return o
}

// ApplyOptions applies the given options.
func ApplyOptions(opts []Option, o *Options) {
	for _, op := range opts {
		op.F(o, &o.DebugInfo)
	}
}

// WithName names the kernel instance in logs and events.
func WithName(name string) Option {
	return Option{F: func(o *Options, di *utils.Slice) {
		di.Push(fmt.Sprintf("WithName(%s)", name))
		o.Name = name
	}}
}

// WithConfig applies a loaded configuration: processor count, arena size,
// quantum and the scheduling policy are all derived from it. Options applied
// after it override individual values.
func WithConfig(cfg *kconf.Config) Option {
	return Option{F: func(o *Options, di *utils.Slice) {
		di.Push(fmt.Sprintf("WithConfig(%+v)", cfg))
		if cfg == nil {
			return
		}
		o.Config = cfg
		o.CPUs = cfg.CPUs
		o.MaxThreads = cfg.MaxThreads
		o.Quantum = int32(cfg.QuantumTicks)
		o.Tuning.NotifyPolicyChange(map[string]*schedtune.Tuning{"*": cfg.Tuning()})
	}}
}

// WithCPUs sets the simulated processor count.
func WithCPUs(n int) Option {
	return Option{F: func(o *Options, di *utils.Slice) {
		di.Push(fmt.Sprintf("WithCPUs(%d)", n))
		o.CPUs = n
	}}
}

// WithMaxThreads sets the thread arena capacity.
func WithMaxThreads(n int) Option {
	return Option{F: func(o *Options, di *utils.Slice) {
		di.Push(fmt.Sprintf("WithMaxThreads(%d)", n))
		o.MaxThreads = n
	}}
}

// WithMaxProcesses sets the process arena capacity.
func WithMaxProcesses(n int) Option {
	return Option{F: func(o *Options, di *utils.Slice) {
		di.Push(fmt.Sprintf("WithMaxProcesses(%d)", n))
		o.MaxProcesses = n
	}}
}

// WithQuantum sets the timeslice, in ticks, granted to a thread on dispatch.
func WithQuantum(q int32) Option {
	return Option{F: func(o *Options, di *utils.Slice) {
		di.Push(fmt.Sprintf("WithQuantum(%d)", q))
		o.Quantum = q
	}}
}

// WithTickSource replaces the wall-clock ticker that drives the kernel
// clock. Tests pass a manual source to make time deterministic.
func WithTickSource(ts ktime.TickSource) Option {
	return Option{F: func(o *Options, di *utils.Slice) {
		o.Once.OnceOrPanic()
		di.Push(fmt.Sprintf("WithTickSource(%T)", ts))
		o.TickSource = ts
	}}
}

// WithInterruptController replaces the simulated interrupt controller.
func WithInterruptController(ic hal.InterruptController) Option {
	return Option{F: func(o *Options, di *utils.Slice) {
		o.Once.OnceOrPanic()
		di.Push(fmt.Sprintf("WithInterruptController(%T)", ic))
		o.Interrupts = ic
	}}
}

// WithMemoryManager replaces the simulated memory manager.
func WithMemoryManager(mm hal.MemoryManager) Option {
	return Option{F: func(o *Options, di *utils.Slice) {
		o.Once.OnceOrPanic()
		di.Push(fmt.Sprintf("WithMemoryManager(%T)", mm))
		o.Memory = mm
	}}
}

// WithTuning supplies the scheduling policy container. Sharing one container
// between kernels lets a remote config source retune them together.
func WithTuning(c *schedtune.Container) Option {
	return Option{F: func(o *Options, di *utils.Slice) {
		di.Push("WithTuning()")
		o.Tuning = c
	}}
}

// WithSwitchTrace observes every context switch. The func runs under the
// processor lock and must not reenter the kernel.
func WithSwitchTrace(fn sched.TraceFunc) Option {
	return Option{F: func(o *Options, di *utils.Slice) {
		di.Push("WithSwitchTrace()")
		o.Trace = fn
	}}
}

// WithTraceDepth sets the size of the switch trace ring kept for dumps.
func WithTraceDepth(n int) Option {
	return Option{F: func(o *Options, di *utils.Slice) {
		di.Push(fmt.Sprintf("WithTraceDepth(%d)", n))
		o.TraceDepth = n
	}}
}

// WithDiagnosisService sets the diagnosis service the kernel registers its
// probes on.
func WithDiagnosisService(svc diagnosis.Service) Option {
	return Option{F: func(o *Options, di *utils.Slice) {
		o.Once.OnceOrPanic()
		di.Push(fmt.Sprintf("WithDiagnosisService(%+v)", svc))
		o.DebugService = svc
	}}
}
