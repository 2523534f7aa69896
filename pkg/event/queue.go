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

package event

import (
	"sync"
)

const (
	// MaxEventNum is the default size of an event queue.
	MaxEventNum = 200
)

// Queue is a ring to collect events. Old entries are overwritten once the
// ring wraps; Dump returns the survivors newest first.
type Queue interface {
	Push(e *Event)
	Dump() interface{}
}

// queue implements a fixed size Queue.
type queue struct {
	mu   sync.RWMutex
	ring []*Event
	tail uint32
}

// NewQueue creates a queue with the given capacity.
func NewQueue(cap int) Queue {
	return &queue{ring: make([]*Event, cap)}
}

// Push pushes an event to the queue.
func (q *queue) Push(e *Event) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ring[q.tail] = e
	q.tail = (q.tail + 1) % uint32(len(q.ring))
}

// Dump dumps the previously pushed events out in a reversed order.
func (q *queue) Dump() interface{} {
	q.mu.RLock()
	defer q.mu.RUnlock()
	results := make([]*Event, 0, len(q.ring))
	pos := int32(q.tail)
	for i := 0; i < len(q.ring); i++ {
		pos--
		if pos < 0 {
			pos = int32(len(q.ring) - 1)
		}

		e := q.ring[pos]
		if e == nil {
			return results
		}

		results = append(results, e)
	}

	return results
}
