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

// ListOwner tags what kind of queue currently links a thread. A thread sits
// on at most one queue at a time; the tag turns a double-link into a fatal
// inconsistency instead of silent corruption.
type ListOwner uint8

const (
	OwnerNone ListOwner = iota
	OwnerReadyQueue
	OwnerWaitList
	OwnerSwapList
)

var ownerNames = [...]string{
	OwnerNone:       "none",
	OwnerReadyQueue: "ready",
	OwnerWaitList:   "wait",
	OwnerSwapList:   "swap",
}

func (o ListOwner) String() string {
	if int(o) < len(ownerNames) {
		return ownerNames[o]
	}
	return "unknown"
}

// ListEntry is the intrusive linkage of a control block, threaded by handle
// rather than pointer so dumps and checks can name the neighbors.
type ListEntry struct {
	Next  Handle
	Prev  Handle
	Owner ListOwner
}

// ClaimLink stamps the thread as linked by a queue of the given kind.
func (t *TCB) ClaimLink(owner ListOwner) {
	if t.Link.Owner != OwnerNone {
		bugcheck.Halt(bugcheck.CodeLinkConflict,
			"thread %s already linked by %s queue, cannot link by %s", t.self, t.Link.Owner, owner)
	}
	t.Link.Owner = owner
}

// ReleaseLink clears the linkage stamp of a queue of the given kind.
func (t *TCB) ReleaseLink(owner ListOwner) {
	if t.Link.Owner != owner {
		bugcheck.Halt(bugcheck.CodeLinkConflict,
			"thread %s linked by %s queue, cannot unlink as %s", t.self, t.Link.Owner, owner)
	}
	t.Link.Owner = OwnerNone
	t.Link.Next, t.Link.Prev = Nil, Nil
}

// List is a doubly-linked queue of threads threaded through their link
// entries. The caller provides mutual exclusion.
type List struct {
	arena *Arena
	owner ListOwner
	head  Handle
	tail  Handle
	size  int
}

// Init prepares the list to link threads of the given arena.
func (l *List) Init(arena *Arena, owner ListOwner) {
	l.arena = arena
	l.owner = owner
	l.head, l.tail = Nil, Nil
	l.size = 0
}

// Size returns the number of linked threads.
func (l *List) Size() int {
	return l.size
}

// Empty reports whether the list has no threads.
func (l *List) Empty() bool {
	return l.size == 0
}

// Front returns the first thread, or Nil.
func (l *List) Front() Handle {
	return l.head
}

// PushBack appends the thread to the list.
func (l *List) PushBack(h Handle) {
	t := l.arena.Thread(h)
	t.ClaimLink(l.owner)
	t.Link.Prev = l.tail
	t.Link.Next = Nil
	if l.tail != Nil {
		l.arena.Thread(l.tail).Link.Next = h
	} else {
		l.head = h
	}
	l.tail = h
	l.size++
}

// PushFront prepends the thread to the list.
func (l *List) PushFront(h Handle) {
	t := l.arena.Thread(h)
	t.ClaimLink(l.owner)
	t.Link.Next = l.head
	t.Link.Prev = Nil
	if l.head != Nil {
		l.arena.Thread(l.head).Link.Prev = h
	} else {
		l.tail = h
	}
	l.head = h
	l.size++
}

// Remove unlinks the thread from the list. Removing a thread the list does
// not own is a fatal inconsistency.
func (l *List) Remove(h Handle) {
	t := l.arena.Thread(h)
	if t.Link.Owner != l.owner {
		bugcheck.Halt(bugcheck.CodeLinkConflict,
			"thread %s not linked by %s queue", h, l.owner)
	}
	if l.size == 0 {
		bugcheck.Halt(bugcheck.CodeSchedCorrupt, "remove from empty queue, thread %s", h)
	}
	if t.Link.Prev != Nil {
		l.arena.Thread(t.Link.Prev).Link.Next = t.Link.Next
	} else {
		if l.head != h {
			bugcheck.Halt(bugcheck.CodeSchedCorrupt, "thread %s is not the head it claims to be", h)
		}
		l.head = t.Link.Next
	}
	if t.Link.Next != Nil {
		l.arena.Thread(t.Link.Next).Link.Prev = t.Link.Prev
	} else {
		l.tail = t.Link.Prev
	}
	t.ReleaseLink(l.owner)
	l.size--
}

// PopFront unlinks and returns the first thread, or Nil when empty.
func (l *List) PopFront() Handle {
	h := l.head
	if h == Nil {
		return Nil
	}
	l.Remove(h)
	return h
}

// ForEach visits the linked threads in order until fn returns false.
func (l *List) ForEach(fn func(Handle) bool) {
	for h := l.head; h != Nil; {
		next := l.arena.Thread(h).Link.Next
		if !fn(h) {
			return
		}
		h = next
	}
}
