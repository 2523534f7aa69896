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

package utils

import "sync"

// ring implements one fixed size shard of a Ring.
type ring struct {
	l    sync.Mutex
	arr  []interface{}
	size int
	tail int
	head int
}

// newRing creates a ringbuffer with fixed size.
func newRing(size int) *ring {
	if size <= 0 {
		// When size is an invalid number, we still return an instance
		// with zero-size to reduce error checks of the callers.
		size = 0
	}
	return &ring{
		arr:  make([]interface{}, size+1),
		size: size,
	}
}

// Push appends item to the ring.
func (r *ring) Push(i interface{}) error {
	r.l.Lock()
	defer r.l.Unlock()
	if r.isFull() {
		return ErrRingFull
	}
	r.arr[r.head] = i
	r.head = r.inc()
	return nil
}

// Pop returns the last item and removes it from the ring.
func (r *ring) Pop() interface{} {
	r.l.Lock()
	defer r.l.Unlock()
	if r.isEmpty() {
		return nil
	}
	c := r.arr[r.tail]
	r.arr[r.tail] = nil
	r.tail = r.dec()
	return c
}

type ringDump struct {
	Array []interface{} `json:"array"`
	Len   int           `json:"len"`
	Cap   int           `json:"cap"`
}

// Dump dumps the data in the ring.
func (r *ring) Dump(m *ringDump) {
	r.l.Lock()
	defer r.l.Unlock()
	m.Cap = r.size + 1
	m.Len = (r.head - r.tail + r.size + 1) % (r.size + 1)
	m.Array = make([]interface{}, 0, m.Len)
	for i := 0; i < m.Len; i++ {
		m.Array = append(m.Array, r.arr[(r.tail+i)%(r.size+1)])
	}
}

func (r *ring) inc() int {
	return (r.head + 1) % (r.size + 1)
}

func (r *ring) dec() int {
	return (r.tail + 1) % (r.size + 1)
}

func (r *ring) isEmpty() bool {
	return r.tail == r.head
}

func (r *ring) isFull() bool {
	return r.inc() == r.tail
}
