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

import (
	"errors"
	"runtime"
)

// ErrRingFull means the ring is full.
var ErrRingFull = errors.New("ring is full")

// Ring implements a fixed size ring buffer to manage data. The buffer is
// split into shards, each guarded by its own lock, to reduce contention.
type Ring struct {
	length int
	rings  []*ring
}

// NewRing creates a ringbuffer with fixed size.
func NewRing(size int) *Ring {
	if size <= 0 {
		panic("new ring with size <= 0")
	}
	r := &Ring{length: size}
	numShards := runtime.GOMAXPROCS(0)
	perShard := size / numShards
	if perShard == 0 {
		numShards, perShard = 1, size
	}
	for i := 0; i < numShards-1; i++ {
		r.rings = append(r.rings, newRing(perShard))
		size -= perShard
	}
	r.rings = append(r.rings, newRing(size))
	return r
}

// Push appends item to the ring. Shards are tried in order, so a ring filled
// by one goroutine dumps in insertion order.
func (r *Ring) Push(i interface{}) error {
	for _, shard := range r.rings {
		if err := shard.Push(i); err == nil {
			return nil
		}
	}
	return ErrRingFull
}

// Pop returns the oldest item of the first non-empty shard and removes it
// from the ring.
func (r *Ring) Pop() interface{} {
	for _, shard := range r.rings {
		if obj := shard.Pop(); obj != nil {
			return obj
		}
	}
	return nil
}

// Dump dumps the data in the ring.
func (r *Ring) Dump() interface{} {
	m := &ringDump{Array: make([]interface{}, 0, r.length)}
	for _, shard := range r.rings {
		d := &ringDump{}
		shard.Dump(d)
		m.Len += d.Len
		m.Cap += d.Cap
		m.Array = append(m.Array, d.Array...)
	}
	return m
}
