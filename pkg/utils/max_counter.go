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

import "sync/atomic"

// MaxCounter is an integer counter with upper limit.
type MaxCounter struct {
	now int64
	max int
}

// NewMaxCounter returns a new MaxCounter.
func NewMaxCounter(max int) *MaxCounter {
	return &MaxCounter{
		max: max,
	}
}

// Inc increases the counter by one and returns if the operation succeeds.
func (cl *MaxCounter) Inc() bool {
	if atomic.AddInt64(&cl.now, 1) > int64(cl.max) {
		atomic.AddInt64(&cl.now, -1)
		return false
	}
	return true
}

// Dec decreases the counter by one.
func (cl *MaxCounter) Dec() {
	atomic.AddInt64(&cl.now, -1)
}

// DecN decreases the counter by n.
func (cl *MaxCounter) DecN(n int64) {
	atomic.AddInt64(&cl.now, -n)
}

func (cl *MaxCounter) Now() int64 {
	return atomic.LoadInt64(&cl.now)
}
