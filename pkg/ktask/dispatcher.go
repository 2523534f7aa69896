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

package ktask

import "github.com/cloudwego/kernex/pkg/bugcheck"

// ObjectType tags the dispatcher object a header is embedded in.
type ObjectType uint8

const (
	ObjectNotificationEvent ObjectType = iota
	ObjectSynchronizationEvent
	ObjectSemaphore
	ObjectMutex
	ObjectNotificationTimer
	ObjectSynchronizationTimer
	ObjectThread
)

var objectNames = [...]string{
	ObjectNotificationEvent:    "NotificationEvent",
	ObjectSynchronizationEvent: "SynchronizationEvent",
	ObjectSemaphore:            "Semaphore",
	ObjectMutex:                "Mutex",
	ObjectNotificationTimer:    "NotificationTimer",
	ObjectSynchronizationTimer: "SynchronizationTimer",
	ObjectThread:               "Thread",
}

func (ot ObjectType) String() string {
	if int(ot) < len(objectNames) {
		return objectNames[ot]
	}
	return "Unknown"
}

// Disposition selects how a multi-object wait completes.
type Disposition uint8

const (
	// WaitAny completes the wait when any one object is available.
	WaitAny Disposition = iota
	// WaitAll completes the wait only when every object is available at once.
	WaitAll
)

// DispatcherHeader is embedded in every waitable object. Signal is the
// object's signal state; its meaning depends on the object type. The header
// also anchors the list of wait blocks of threads blocked on the object.
// All header access is serialized by the kernel's dispatcher lock.
type DispatcherHeader struct {
	Type   ObjectType
	Signal int64

	// Container points back at the object the header is embedded in, for
	// object kinds whose state extends past the header.
	Container interface{}

	waitHead *WaitBlock
	waitTail *WaitBlock
}

// WaitBlock links one waiting thread onto one object's wait list. A thread
// waiting on several objects uses one block per object, all drawn from the
// fixed array embedded in its control block.
type WaitBlock struct {
	Thread      Handle
	Object      *DispatcherHeader
	Key         uint8
	Disposition Disposition

	next, prev *WaitBlock
	linked     bool
}

// Linked reports whether the block sits on its object's wait list.
func (b *WaitBlock) Linked() bool {
	return b.linked
}

// NextWait returns the following block on the same wait list.
func (b *WaitBlock) NextWait() *WaitBlock {
	return b.next
}

// PushWait appends a block to the header's wait list.
func (h *DispatcherHeader) PushWait(b *WaitBlock) {
	if b.linked {
		bugcheck.Halt(bugcheck.CodeWaitCorrupt, "wait block of thread %s already linked", b.Thread)
	}
	b.Object = h
	b.linked = true
	b.prev = h.waitTail
	b.next = nil
	if h.waitTail != nil {
		h.waitTail.next = b
	} else {
		h.waitHead = b
	}
	h.waitTail = b
}

// UnlinkWait removes a block from the header's wait list. Unlinking a block
// that is not on the list is a fatal inconsistency.
func (h *DispatcherHeader) UnlinkWait(b *WaitBlock) {
	if !b.linked || b.Object != h {
		bugcheck.Halt(bugcheck.CodeWaitCorrupt, "wait block of thread %s not linked to this object", b.Thread)
	}
	if b.prev != nil {
		b.prev.next = b.next
	} else {
		h.waitHead = b.next
	}
	if b.next != nil {
		b.next.prev = b.prev
	} else {
		h.waitTail = b.prev
	}
	b.next, b.prev = nil, nil
	b.linked = false
}

// FrontWait returns the oldest wait block, or nil when no thread waits.
func (h *DispatcherHeader) FrontWait() *WaitBlock {
	return h.waitHead
}

// WaitEmpty reports whether any thread waits on the object.
func (h *DispatcherHeader) WaitEmpty() bool {
	return h.waitHead == nil
}

// Waiters counts the blocks on the wait list.
func (h *DispatcherHeader) Waiters() int {
	n := 0
	for b := h.waitHead; b != nil; b = b.next {
		n++
	}
	return n
}
