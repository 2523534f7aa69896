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

package tlbflush

import (
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"golang.org/x/sync/errgroup"

	mockhal "github.com/cloudwego/kernex/internal/mocks/hal"
	"github.com/cloudwego/kernex/internal/test"
	"github.com/cloudwego/kernex/pkg/bugcheck"
	"github.com/cloudwego/kernex/pkg/hal"
	"github.com/cloudwego/kernex/pkg/ktask"
)

func panicHalt(t *testing.T) func() {
	t.Helper()
	bugcheck.SetHalt(func(code bugcheck.Code, msg string) {
		panic(code)
	})
	return func() { bugcheck.SetHalt(nil) }
}

func waitCond(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not reached in time")
		}
		time.Sleep(time.Millisecond)
	}
}

func dump(c *Coordinator) map[string]interface{} {
	return c.Dump().(map[string]interface{})
}

func TestFlushLocalOnly(t *testing.T) {
	mem := hal.NewSimMemory()
	ic := hal.NewSimInterrupts(2)
	defer ic.Close()
	c := NewCoordinator(mem, ic, 0, 0)

	inv := hal.Invalidation{Kind: hal.InvalidateSinglePage, Start: 0x1000, End: 0x1000}
	err := c.Flush(nil, 0, inv, ktask.OneCPU(0))
	test.Assert(t, err == nil, err)

	got := mem.Invalidations(0)
	test.Assert(t, len(got) == 1, got)
	test.DeepEqual(t, got[0], inv)
	test.Assert(t, len(mem.Invalidations(1)) == 0)

	d := dump(c)
	test.Assert(t, d["broadcasts"].(int64) == 0)
	test.Assert(t, d["single_page"].(int64) == 1)
	test.Assert(t, d["active"].(bool) == false)
}

func TestShootdownRendezvous(t *testing.T) {
	const ncpu = 4
	mem := hal.NewSimMemory()
	ic := hal.NewSimInterrupts(ncpu)
	defer ic.Close()
	c := NewCoordinator(mem, ic, 0, 0)

	inv := hal.Invalidation{Kind: hal.InvalidateSinglePage, Start: 0x7000, End: 0x7000}
	err := c.Flush(nil, 1, inv, ktask.AllCPUs(ncpu))
	test.Assert(t, err == nil, err)

	for cpu := int32(0); cpu < ncpu; cpu++ {
		got := mem.Invalidations(cpu)
		test.Assert(t, len(got) == 1, cpu, got)
		test.DeepEqual(t, got[0], inv)
	}
	for cpu := int32(0); cpu < ncpu; cpu++ {
		cpu := cpu
		waitCond(t, func() bool { return ic.InFlight(cpu) == 0 })
	}

	d := dump(c)
	test.Assert(t, d["broadcasts"].(int64) == 1)
	test.Assert(t, d["last_targets"].(int) == ncpu-1)
	test.Assert(t, d["active"].(bool) == false)
}

func TestRangeConversion(t *testing.T) {
	const ncpu = 2
	mem := hal.NewSimMemory()
	ic := hal.NewSimInterrupts(ncpu)
	defer ic.Close()
	c := NewCoordinator(mem, ic, 0, 0)

	// 300 pages, above the default limit, widens to a full flush.
	inv := hal.Invalidation{Kind: hal.InvalidateRange, Start: 0, End: 299 << hal.PageShift}
	err := c.Flush(nil, 0, inv, ktask.AllCPUs(ncpu))
	test.Assert(t, err == nil, err)

	for cpu := int32(0); cpu < ncpu; cpu++ {
		got := mem.Invalidations(cpu)
		test.Assert(t, len(got) == 1, cpu, got)
		test.Assert(t, got[0].Kind == hal.InvalidateFull, got[0])
	}

	d := dump(c)
	test.Assert(t, d["range_converted"].(int64) == 1)
	test.Assert(t, d["full"].(int64) == 1)
	test.Assert(t, d["range"].(int64) == 0)

	// A short range stays a range.
	short := hal.Invalidation{Kind: hal.InvalidateRange, Start: 0x1000, End: 0x3000}
	err = c.Flush(nil, 0, short, ktask.OneCPU(0))
	test.Assert(t, err == nil, err)
	d = dump(c)
	test.Assert(t, d["range"].(int64) == 1)
	test.Assert(t, d["range_converted"].(int64) == 1)
}

func TestBadRangeHalts(t *testing.T) {
	restore := panicHalt(t)
	defer restore()

	mem := hal.NewSimMemory()
	ic := hal.NewSimInterrupts(1)
	defer ic.Close()
	c := NewCoordinator(mem, ic, 0, 0)

	test.PanicAt(t, func() {
		inv := hal.Invalidation{Kind: hal.InvalidateRange, Start: 0x2000, End: 0x1000}
		c.Flush(nil, 0, inv, ktask.OneCPU(0))
	}, func(err interface{}) bool {
		code, ok := err.(bugcheck.Code)
		return ok && code == bugcheck.CodeStateInvalid
	})
}

func TestInitiatorNonPreemptible(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	arena := ktask.NewArena(4, 2)
	_, tcb, err := arena.AllocThread()
	test.Assert(t, err == nil, err)

	ic := hal.NewSimInterrupts(2)
	defer ic.Close()

	var sawDisabled int32
	mem := mockhal.NewMockMemoryManager(ctrl)
	mem.EXPECT().InvalidateLocal(int32(0), gomock.Any()).Times(1)
	mem.EXPECT().InvalidateLocal(int32(1), gomock.Any()).Do(func(cpu int32, inv hal.Invalidation) {
		if !tcb.Preemptible() {
			atomic.StoreInt32(&sawDisabled, 1)
		}
	}).Times(1)

	c := NewCoordinator(mem, ic, 0, 0)
	err = c.Flush(tcb, 0, hal.Invalidation{Kind: hal.InvalidateFull}, ktask.AllCPUs(2))
	test.Assert(t, err == nil, err)
	test.Assert(t, atomic.LoadInt32(&sawDisabled) == 1)
	test.Assert(t, tcb.Preemptible())
}

func TestStaleDeliveryOnlyCompletes(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mem := mockhal.NewMockMemoryManager(ctrl)
	ic := mockhal.NewMockInterruptController(ctrl)
	ic.EXPECT().Register(ShootdownVector, gomock.Any()).Times(1)
	ic.EXPECT().Complete(int32(3), ShootdownVector).Times(1)

	c := NewCoordinator(mem, ic, 0, 0)
	c.targets = ktask.OneCPU(1)
	c.handle(3)
}

func TestAckTimeoutHalts(t *testing.T) {
	var gotMsg string
	bugcheck.SetHalt(func(code bugcheck.Code, msg string) {
		gotMsg = msg
		panic(code)
	})
	defer bugcheck.SetHalt(nil)

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mem := hal.NewSimMemory()
	ic := mockhal.NewMockInterruptController(ctrl)
	ic.EXPECT().Register(ShootdownVector, gomock.Any()).Times(1)
	// The broadcast is accepted but no processor ever acknowledges.
	ic.EXPECT().Send(ShootdownVector, gomock.Any()).Return(nil).Times(1)

	c := NewCoordinator(mem, ic, 50*time.Millisecond, 0)
	test.PanicAt(t, func() {
		c.Flush(nil, 0, hal.Invalidation{Kind: hal.InvalidateFull}, ktask.AllCPUs(4))
	}, func(err interface{}) bool {
		code, ok := err.(bugcheck.Code)
		return ok && code == bugcheck.CodeShootdownTimeout
	})
	test.Assert(t, strings.Contains(gotMsg, "expected 3 acknowledgments, received 0"), gotMsg)
}

func TestSendErrorReleasesLock(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	sendErr := errors.New("controller wedged")
	mem := hal.NewSimMemory()
	ic := mockhal.NewMockInterruptController(ctrl)
	ic.EXPECT().Register(ShootdownVector, gomock.Any()).Times(1)
	ic.EXPECT().Send(ShootdownVector, gomock.Any()).Return(sendErr).Times(1)

	c := NewCoordinator(mem, ic, 0, 0)
	err := c.Flush(nil, 0, hal.Invalidation{Kind: hal.InvalidateFull}, ktask.AllCPUs(2))
	test.Assert(t, errors.Is(err, sendErr), err)

	test.Assert(t, c.mu.TryAcquire())
	c.mu.Release()
	test.Assert(t, dump(c)["active"].(bool) == false)
}

func TestConcurrentFlushes(t *testing.T) {
	const (
		ncpu    = 4
		flushes = 8
	)
	mem := hal.NewSimMemory()
	ic := hal.NewSimInterrupts(ncpu)
	defer ic.Close()
	c := NewCoordinator(mem, ic, 0, 0)

	var eg errgroup.Group
	for i := 0; i < flushes; i++ {
		i := i
		eg.Go(func() error {
			inv := hal.Invalidation{
				Kind:  hal.InvalidateSinglePage,
				Start: uint64(i) << hal.PageShift,
				End:   uint64(i) << hal.PageShift,
			}
			return c.Flush(nil, int32(i%ncpu), inv, ktask.AllCPUs(ncpu))
		})
	}
	test.Assert(t, eg.Wait() == nil)

	for cpu := int32(0); cpu < ncpu; cpu++ {
		got := mem.Invalidations(cpu)
		test.Assert(t, len(got) == flushes, cpu, len(got))
	}
	for cpu := int32(0); cpu < ncpu; cpu++ {
		cpu := cpu
		waitCond(t, func() bool { return ic.InFlight(cpu) == 0 })
	}
	test.Assert(t, dump(c)["broadcasts"].(int64) == flushes)
}
