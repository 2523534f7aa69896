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

package hal

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/cloudwego/kernex/pkg/bugcheck"
	"github.com/cloudwego/kernex/pkg/gofunc"
	"github.com/cloudwego/kernex/pkg/kerrors"
	"github.com/cloudwego/kernex/pkg/klog"
	"github.com/cloudwego/kernex/pkg/ktask"
)

// SimMemory is an in-memory MemoryManager. It records what the kernel asked
// for so tests can assert on it. Stack inswaps complete synchronously
// unless an inswap hook is installed.
type SimMemory struct {
	mu        sync.Mutex
	perCPU    map[int32][]Invalidation
	trims     int
	stackOuts []ktask.Handle
	stackIns  []ktask.Handle
	procOuts  []ktask.Handle
	denyOuts  bool
	inswap    func(thread ktask.Handle, done func())
}

func NewSimMemory() *SimMemory {
	return &SimMemory{perCPU: make(map[int32][]Invalidation)}
}

func (m *SimMemory) InvalidateLocal(cpu int32, inv Invalidation) {
	m.mu.Lock()
	m.perCPU[cpu] = append(m.perCPU[cpu], inv)
	m.mu.Unlock()
}

func (m *SimMemory) TrimWorkingSets() {
	m.mu.Lock()
	m.trims++
	m.mu.Unlock()
}

func (m *SimMemory) SwapOutStack(thread ktask.Handle) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.denyOuts {
		return false
	}
	m.stackOuts = append(m.stackOuts, thread)
	return true
}

func (m *SimMemory) SwapInStack(thread ktask.Handle, done func()) {
	m.mu.Lock()
	m.stackIns = append(m.stackIns, thread)
	hook := m.inswap
	m.mu.Unlock()
	if hook != nil {
		hook(thread, done)
		return
	}
	done()
}

func (m *SimMemory) SwapOutProcess(process ktask.Handle) {
	m.mu.Lock()
	m.procOuts = append(m.procOuts, process)
	m.mu.Unlock()
}

// SetInswapHook overrides synchronous inswap completion; the hook decides
// when to call done. Passing nil restores the synchronous default.
func (m *SimMemory) SetInswapHook(hook func(thread ktask.Handle, done func())) {
	m.mu.Lock()
	m.inswap = hook
	m.mu.Unlock()
}

// SetDenySwapOut makes SwapOutStack refuse until reset.
func (m *SimMemory) SetDenySwapOut(deny bool) {
	m.mu.Lock()
	m.denyOuts = deny
	m.mu.Unlock()
}

// Invalidations returns a copy of the invalidations applied on cpu.
func (m *SimMemory) Invalidations(cpu int32) []Invalidation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Invalidation(nil), m.perCPU[cpu]...)
}

func (m *SimMemory) Trims() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.trims
}

func (m *SimMemory) StackOuts() []ktask.Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ktask.Handle(nil), m.stackOuts...)
}

func (m *SimMemory) StackIns() []ktask.Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ktask.Handle(nil), m.stackIns...)
}

func (m *SimMemory) ProcessOuts() []ktask.Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ktask.Handle(nil), m.procOuts...)
}

// SimInterrupts delivers interrupts over per-processor queues with one
// delivery goroutine per processor, so handler execution on a given
// processor is serialized the way interrupt context is.
type SimInterrupts struct {
	mu       sync.RWMutex
	handlers map[Vector]Handler

	queues   []chan Vector
	inflight []int32

	closed    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func NewSimInterrupts(ncpu int) *SimInterrupts {
	if ncpu < 1 {
		ncpu = 1
	}
	s := &SimInterrupts{
		handlers: make(map[Vector]Handler),
		queues:   make([]chan Vector, ncpu),
		inflight: make([]int32, ncpu),
		closed:   make(chan struct{}),
	}
	for i := range s.queues {
		s.queues[i] = make(chan Vector, 64)
		s.wg.Add(1)
		cpu := int32(i)
		gofunc.RecoverGoFuncWithInfo(context.Background(), func() {
			s.deliver(cpu)
		}, gofunc.NewBasicInfo("hal", fmt.Sprintf("interrupts-cpu-%d", cpu)))
	}
	return s
}

func (s *SimInterrupts) Register(vector Vector, h Handler) {
	s.mu.Lock()
	s.handlers[vector] = h
	s.mu.Unlock()
}

func (s *SimInterrupts) Send(vector Vector, targets ktask.CPUSet) error {
	select {
	case <-s.closed:
		return kerrors.ErrKernelShutdown
	default:
	}
	s.mu.RLock()
	_, registered := s.handlers[vector]
	s.mu.RUnlock()
	if !registered {
		klog.Warnf("KERNEX: send on unregistered vector %#x", uint8(vector))
		return kerrors.ErrNotSupported
	}
	for cpu := 0; cpu < len(s.queues); cpu++ {
		if !targets.Has(cpu) {
			continue
		}
		select {
		case s.queues[cpu] <- vector:
		case <-s.closed:
			return kerrors.ErrKernelShutdown
		}
	}
	return nil
}

func (s *SimInterrupts) Complete(cpu int32, vector Vector) {
	if atomic.AddInt32(&s.inflight[cpu], -1) < 0 {
		bugcheck.Halt(bugcheck.CodeStateInvalid,
			"interrupt completion on cpu %d vector %#x without a delivery", cpu, uint8(vector))
	}
}

// InFlight reports deliveries on cpu that have not signaled completion.
func (s *SimInterrupts) InFlight(cpu int32) int32 {
	return atomic.LoadInt32(&s.inflight[cpu])
}

// Close stops delivery after draining interrupts already queued.
func (s *SimInterrupts) Close() {
	s.closeOnce.Do(func() { close(s.closed) })
	s.wg.Wait()
}

func (s *SimInterrupts) deliver(cpu int32) {
	defer s.wg.Done()
	for {
		select {
		case v := <-s.queues[cpu]:
			s.dispatch(cpu, v)
		case <-s.closed:
			for {
				select {
				case v := <-s.queues[cpu]:
					s.dispatch(cpu, v)
				default:
					return
				}
			}
		}
	}
}

func (s *SimInterrupts) dispatch(cpu int32, v Vector) {
	s.mu.RLock()
	h := s.handlers[v]
	s.mu.RUnlock()
	if h == nil {
		klog.Warnf("KERNEX: interrupt vector %#x on cpu %d has no handler", uint8(v), cpu)
		return
	}
	atomic.AddInt32(&s.inflight[cpu], 1)
	h(cpu)
}
