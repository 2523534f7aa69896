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

// Package pushlock implements a reader/writer lock whose whole uncontended
// state lives in a single word: one CAS acquires or releases it. Contended
// callers spin briefly, then park on a FIFO wait queue; a releaser hands the
// lock directly to the next waiter (one writer, or the whole leading run of
// readers), so a woken waiter already owns the lock. New readers queue
// behind a waiting writer.
package pushlock

import (
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/bytedance/gopkg/lang/fastrand"

	"github.com/cloudwego/kernex/pkg/bugcheck"
	"github.com/cloudwego/kernex/pkg/utils"
)

// Bit assignment of the lock word.
const (
	bitExclusive uint32 = 1 << 0 // held exclusive
	bitWaiting   uint32 = 1 << 1 // wait queue is non-empty
	bitWaking    uint32 = 1 << 2 // a releaser is processing the wait queue
	bitMultiple  uint32 = 1 << 3 // more than one shared holder

	shareShift = 4
	shareOne   uint32 = 1 << shareShift
)

const (
	spinBase   = 32
	spinJitter = 32
)

func shareCount(w uint32) uint32 {
	return w >> shareShift
}

type waiter struct {
	exclusive bool
	ch        chan struct{}
	next      *waiter
}

var waiterPool = sync.Pool{
	New: func() interface{} {
		return &waiter{ch: make(chan struct{}, 1)}
	},
}

// PushLock is ready to use at its zero value.
type PushLock struct {
	word uint32

	mu   sync.Mutex
	head *waiter
	tail *waiter

	owner int64
}

// Acquire takes the lock exclusive.
func (l *PushLock) Acquire() {
	if !atomic.CompareAndSwapUint32(&l.word, 0, bitExclusive) {
		l.acquireSlow(true)
	}
	atomic.StoreInt64(&l.owner, int64(utils.GoroutineID()))
}

// TryAcquire takes the lock exclusive if that needs no waiting.
func (l *PushLock) TryAcquire() bool {
	if atomic.CompareAndSwapUint32(&l.word, 0, bitExclusive) {
		atomic.StoreInt64(&l.owner, int64(utils.GoroutineID()))
		return true
	}
	return false
}

// Release drops an exclusive hold. Releasing a lock that is not held
// exclusive is a fatal inconsistency.
func (l *PushLock) Release() {
	atomic.StoreInt64(&l.owner, 0)
	for {
		w := atomic.LoadUint32(&l.word)
		if w&bitExclusive == 0 {
			bugcheck.Halt(bugcheck.CodeLockNotOwned, "exclusive release of unheld push lock, word=%#x", w)
		}
		if shareCount(w) != 0 {
			bugcheck.Halt(bugcheck.CodeLockCorrupt, "exclusive and shared held together, word=%#x", w)
		}
		nw := w &^ bitExclusive
		if atomic.CompareAndSwapUint32(&l.word, w, nw) {
			l.maybeWake(nw)
			return
		}
	}
}

// AcquireShared takes the lock shared.
func (l *PushLock) AcquireShared() {
	if !l.tryShared() {
		l.acquireSlow(false)
	}
}

// TryAcquireShared takes the lock shared if that needs no waiting.
func (l *PushLock) TryAcquireShared() bool {
	return l.tryShared()
}

// ReleaseShared drops a shared hold. Releasing more often than acquired is a
// fatal inconsistency.
func (l *PushLock) ReleaseShared() {
	for {
		w := atomic.LoadUint32(&l.word)
		if shareCount(w) == 0 {
			bugcheck.Halt(bugcheck.CodeLockNotOwned, "shared release of unheld push lock, word=%#x", w)
		}
		if w&bitExclusive != 0 {
			bugcheck.Halt(bugcheck.CodeLockCorrupt, "exclusive and shared held together, word=%#x", w)
		}
		nw := w - shareOne
		if shareCount(nw) <= 1 {
			nw &^= bitMultiple
		}
		if atomic.CompareAndSwapUint32(&l.word, w, nw) {
			if shareCount(nw) == 0 {
				l.maybeWake(nw)
			}
			return
		}
	}
}

func (l *PushLock) tryShared() bool {
	for {
		w := atomic.LoadUint32(&l.word)
		if w&(bitExclusive|bitWaiting|bitWaking) != 0 {
			return false
		}
		nw := w + shareOne
		if shareCount(w) >= 1 {
			nw |= bitMultiple
		}
		if atomic.CompareAndSwapUint32(&l.word, w, nw) {
			return true
		}
	}
}

func (l *PushLock) acquireSlow(exclusive bool) {
	spins := spinBase + int(fastrand.Uint32n(spinJitter))
	for i := 0; i < spins; i++ {
		if exclusive {
			if atomic.CompareAndSwapUint32(&l.word, 0, bitExclusive) {
				return
			}
		} else if l.tryShared() {
			return
		}
		if i&7 == 7 {
			runtime.Gosched()
		}
	}

	wk := waiterPool.Get().(*waiter)
	wk.exclusive = exclusive

	l.mu.Lock()
	// publish the waiting bit before re-checking availability: a release
	// whose CAS lands after the publish carries the bit into maybeWake, one
	// that landed before is observed by tryGrantLocked
	l.setBits(bitWaiting)
	if l.tryGrantLocked(exclusive) {
		if l.head == nil {
			l.clearBits(bitWaiting)
		}
		l.mu.Unlock()
		waiterPool.Put(wk)
		return
	}
	l.enqueueLocked(wk)
	l.mu.Unlock()

	// the waking releaser hands the lock over before signaling, so waking
	// up means owning it
	<-wk.ch
	waiterPool.Put(wk)
}

// tryGrantLocked closes the race between the last release and our enqueue.
// It must not overtake already queued waiters.
func (l *PushLock) tryGrantLocked(exclusive bool) bool {
	if l.head != nil {
		return false
	}
	for {
		w := atomic.LoadUint32(&l.word)
		if exclusive {
			if w&bitExclusive != 0 || shareCount(w) != 0 {
				return false
			}
			if atomic.CompareAndSwapUint32(&l.word, w, w|bitExclusive) {
				return true
			}
		} else {
			if w&bitExclusive != 0 {
				return false
			}
			nw := w + shareOne
			if shareCount(w) >= 1 {
				nw |= bitMultiple
			}
			if atomic.CompareAndSwapUint32(&l.word, w, nw) {
				return true
			}
		}
	}
}

func (l *PushLock) maybeWake(w uint32) {
	for {
		if w&bitWaiting == 0 || w&bitWaking != 0 {
			return
		}
		if atomic.CompareAndSwapUint32(&l.word, w, w|bitWaking) {
			l.wake()
			return
		}
		w = atomic.LoadUint32(&l.word)
	}
}

// wake runs with the waking bit claimed. It grants the lock to the next
// waiter (or run of shared waiters) and signals them, or backs off when the
// lock was re-taken, leaving the next release to wake.
func (l *PushLock) wake() {
	l.mu.Lock()
	for {
		if l.head == nil {
			l.clearBits(bitWaiting | bitWaking)
			break
		}
		if l.head.exclusive {
			if !l.grantExclusiveLocked() {
				if !l.rearmLocked() {
					break
				}
				continue
			}
			wk := l.dequeueLocked()
			if l.head == nil {
				l.clearBits(bitWaiting)
			}
			l.clearBits(bitWaking)
			wk.ch <- struct{}{}
			break
		}
		run := l.leadingSharedLocked()
		if !l.grantSharedLocked(uint32(len(run))) {
			if !l.rearmLocked() {
				break
			}
			continue
		}
		for range run {
			l.dequeueLocked()
		}
		if l.head == nil {
			l.clearBits(bitWaiting)
		}
		l.clearBits(bitWaking)
		for _, wk := range run {
			wk.ch <- struct{}{}
		}
		break
	}
	l.mu.Unlock()
}

func (l *PushLock) grantExclusiveLocked() bool {
	for {
		w := atomic.LoadUint32(&l.word)
		if w&bitExclusive != 0 || shareCount(w) != 0 {
			return false
		}
		if atomic.CompareAndSwapUint32(&l.word, w, w|bitExclusive) {
			return true
		}
	}
}

func (l *PushLock) grantSharedLocked(k uint32) bool {
	for {
		w := atomic.LoadUint32(&l.word)
		if w&bitExclusive != 0 {
			return false
		}
		nw := w + k*shareOne
		if shareCount(nw) > 1 {
			nw |= bitMultiple
		}
		if atomic.CompareAndSwapUint32(&l.word, w, nw) {
			return true
		}
	}
}

// rearmLocked drops the waking claim because the lock was busy, then
// re-claims it if the holder slipped out in between. Returning false leaves
// the wakeup to that holder's release.
func (l *PushLock) rearmLocked() bool {
	l.clearBits(bitWaking)
	for {
		w := atomic.LoadUint32(&l.word)
		busy := w&bitExclusive != 0
		if l.head.exclusive && shareCount(w) != 0 {
			busy = true
		}
		if busy {
			return false
		}
		if atomic.CompareAndSwapUint32(&l.word, w, w|bitWaking) {
			return true
		}
	}
}

func (l *PushLock) enqueueLocked(wk *waiter) {
	wk.next = nil
	if l.tail != nil {
		l.tail.next = wk
	} else {
		l.head = wk
	}
	l.tail = wk
}

func (l *PushLock) dequeueLocked() *waiter {
	wk := l.head
	l.head = wk.next
	if l.head == nil {
		l.tail = nil
	}
	wk.next = nil
	return wk
}

func (l *PushLock) leadingSharedLocked() []*waiter {
	var run []*waiter
	for wk := l.head; wk != nil && !wk.exclusive; wk = wk.next {
		run = append(run, wk)
	}
	return run
}

func (l *PushLock) setBits(b uint32) {
	for {
		w := atomic.LoadUint32(&l.word)
		if atomic.CompareAndSwapUint32(&l.word, w, w|b) {
			return
		}
	}
}

func (l *PushLock) clearBits(b uint32) {
	for {
		w := atomic.LoadUint32(&l.word)
		if atomic.CompareAndSwapUint32(&l.word, w, w&^b) {
			return
		}
	}
}

// Dump reports the lock state for diagnosis.
func (l *PushLock) Dump() interface{} {
	w := atomic.LoadUint32(&l.word)
	l.mu.Lock()
	waiters := 0
	for wk := l.head; wk != nil; wk = wk.next {
		waiters++
	}
	l.mu.Unlock()
	return struct {
		Exclusive bool   `json:"exclusive"`
		Shared    uint32 `json:"shared"`
		Waiting   bool   `json:"waiting"`
		Waking    bool   `json:"waking"`
		Multiple  bool   `json:"multiple"`
		Waiters   int    `json:"waiters"`
		OwnerGID  int64  `json:"owner_gid"`
	}{
		Exclusive: w&bitExclusive != 0,
		Shared:    shareCount(w),
		Waiting:   w&bitWaiting != 0,
		Waking:    w&bitWaking != 0,
		Multiple:  w&bitMultiple != 0,
		Waiters:   waiters,
		OwnerGID:  atomic.LoadInt64(&l.owner),
	}
}
