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

package dispatch

import (
	"github.com/cloudwego/kernex/pkg/kerrors"
	"github.com/cloudwego/kernex/pkg/ktask"
	"github.com/cloudwego/kernex/pkg/ktime"
)

// Object is any waitable dispatcher object.
type Object interface {
	Header() *ktask.DispatcherHeader
}

// EventKind selects how an event resets.
type EventKind uint8

const (
	// NotificationEvent stays signaled until reset and releases every waiter.
	NotificationEvent EventKind = iota
	// SynchronizationEvent resets on consumption and releases one waiter.
	SynchronizationEvent
)

// Event is a manually signaled dispatcher object.
type Event struct {
	hdr ktask.DispatcherHeader
}

// NewEvent builds an event of the given kind and initial signal state.
func NewEvent(kind EventKind, signaled bool) *Event {
	ev := &Event{}
	ev.hdr.Type = ktask.ObjectNotificationEvent
	if kind == SynchronizationEvent {
		ev.hdr.Type = ktask.ObjectSynchronizationEvent
	}
	if signaled {
		ev.hdr.Signal = 1
	}
	ev.hdr.Container = ev
	return ev
}

// Header implements Object.
func (e *Event) Header() *ktask.DispatcherHeader {
	return &e.hdr
}

// Semaphore is a counted dispatcher object with a fixed upper limit.
type Semaphore struct {
	hdr   ktask.DispatcherHeader
	limit int64
}

// NewSemaphore builds a semaphore with the given initial count and limit.
func NewSemaphore(count, limit int64) (*Semaphore, error) {
	if limit < 1 || count < 0 || count > limit {
		return nil, kerrors.ErrSemaphoreLimit.WithCauseAndExtraMsg(nil,
			"invalid initial state")
	}
	s := &Semaphore{limit: limit}
	s.hdr.Type = ktask.ObjectSemaphore
	s.hdr.Signal = count
	s.hdr.Container = s
	return s, nil
}

// Header implements Object.
func (s *Semaphore) Header() *ktask.DispatcherHeader {
	return &s.hdr
}

// Limit returns the semaphore's maximum count.
func (s *Semaphore) Limit() int64 {
	return s.limit
}

// Mutex is an ownable dispatcher object. Acquisition happens by waiting on
// it; the owning thread may wait again recursively. A mutex still owned when
// its owner terminates is abandoned to the next waiter.
type Mutex struct {
	hdr       ktask.DispatcherHeader
	owner     ktask.Handle
	recursion int32
	abandoned bool
}

// NewMutex builds a free mutex.
func NewMutex() *Mutex {
	m := &Mutex{}
	m.hdr.Type = ktask.ObjectMutex
	m.hdr.Signal = 1
	m.hdr.Container = m
	return m
}

// Header implements Object.
func (m *Mutex) Header() *ktask.DispatcherHeader {
	return &m.hdr
}

// Owner returns the handle of the owning thread, or Nil when free.
func (m *Mutex) Owner() ktask.Handle {
	return m.owner
}

// TimerKind selects how a timer resets, mirroring the event kinds.
type TimerKind uint8

const (
	NotificationTimer TimerKind = iota
	SynchronizationTimer
)

// Timer is a dispatcher object that signals when the kernel clock reaches
// its due tick. A periodic timer re-arms itself on every expiry.
type Timer struct {
	hdr    ktask.DispatcherHeader
	due    ktime.Tick
	period ktime.Tick
	seq    uint64
	queued bool
}

// NewTimer builds an unarmed timer.
func NewTimer(kind TimerKind) *Timer {
	tm := &Timer{}
	tm.hdr.Type = ktask.ObjectNotificationTimer
	if kind == SynchronizationTimer {
		tm.hdr.Type = ktask.ObjectSynchronizationTimer
	}
	tm.hdr.Container = tm
	return tm
}

// Header implements Object.
func (tm *Timer) Header() *ktask.DispatcherHeader {
	return &tm.hdr
}

// Due returns the tick the timer expires at. Meaningful while armed.
func (tm *Timer) Due() ktime.Tick {
	return tm.due
}

type threadObject struct {
	hdr *ktask.DispatcherHeader
}

func (to threadObject) Header() *ktask.DispatcherHeader {
	return to.hdr
}

// ThreadObject adapts a thread control block into a waitable object. The
// kernel signals it when the thread terminates, so waiting on it joins the
// thread.
func ThreadObject(t *ktask.TCB) Object {
	return threadObject{hdr: &t.Header}
}
