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

// Package hal declares the collaborator interfaces the kernel consumes:
// the interrupt controller that carries cross-processor interrupts and the
// memory manager that owns address translation and swap state. In-memory
// simulations suitable for tests and default bring-up live in this package;
// gomock doubles live in internal/mocks/hal.
package hal

import (
	"github.com/cloudwego/kernex/pkg/ktask"
)

// PageShift is the simulated page size as a shift, 4 KiB pages.
const PageShift = 12

// PageSize is the simulated page size in bytes.
const PageSize = 1 << PageShift

// InvalidationKind selects how much of a processor's TLB to drop.
type InvalidationKind uint8

const (
	InvalidateSinglePage InvalidationKind = iota
	InvalidateRange
	InvalidateFull
)

var invalidationNames = [...]string{
	InvalidateSinglePage: "single",
	InvalidateRange:      "range",
	InvalidateFull:       "full",
}

func (k InvalidationKind) String() string {
	if int(k) < len(invalidationNames) {
		return invalidationNames[k]
	}
	return "unknown"
}

// Invalidation describes one local TLB invalidation. Start and End are
// inclusive page-aligned virtual addresses; Full ignores both.
type Invalidation struct {
	Kind  InvalidationKind
	Start uint64
	End   uint64
}

// Pages returns how many pages the invalidation spans.
func (inv Invalidation) Pages() uint64 {
	switch inv.Kind {
	case InvalidateSinglePage:
		return 1
	case InvalidateRange:
		return ((inv.End - inv.Start) >> PageShift) + 1
	default:
		return 0
	}
}

// Vector identifies an interrupt line.
type Vector uint8

// Handler runs in impersonated interrupt context on the target processor.
// It must signal completion through InterruptController.Complete when done.
type Handler func(cpu int32)

// InterruptController delivers interrupts to processors. Delivery is
// asynchronous; handler execution is serialized per target processor.
type InterruptController interface {
	// Register installs the handler for a vector. Later registrations
	// replace earlier ones. Must be called before Send on that vector.
	Register(vector Vector, h Handler)
	// Send queues the vector's handler on every processor in targets.
	Send(vector Vector, targets ktask.CPUSet) error
	// Complete signals end-of-interrupt for the handler running on cpu.
	Complete(cpu int32, vector Vector)
}

// MemoryManager owns translation and swap state outside the kernel core.
// The kernel calls it for local TLB invalidations, working-set trimming
// under memory pressure, and kernel-stack/process swap traffic decided by
// the balance-set coordinator.
type MemoryManager interface {
	// InvalidateLocal drops translations on one processor.
	InvalidateLocal(cpu int32, inv Invalidation)
	// TrimWorkingSets requests a system-wide working-set trim.
	TrimWorkingSets()
	// SwapOutStack releases the thread's kernel stack. Returns false if the
	// stack cannot be released right now; the caller retries on a later
	// pass.
	SwapOutStack(thread ktask.Handle) bool
	// SwapInStack faults the thread's kernel stack back in and calls done
	// when it is resident. done may run synchronously.
	SwapInStack(thread ktask.Handle, done func())
	// SwapOutProcess releases the residual state of a process whose
	// threads are all in long waits.
	SwapOutProcess(process ktask.Handle)
}
