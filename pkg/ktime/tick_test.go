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

package ktime

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/cloudwego/kernex/internal/test"
)

func TestTicksRounding(t *testing.T) {
	test.Assert(t, Ticks(0, 10*time.Millisecond) == 0)
	test.Assert(t, Ticks(-time.Second, 10*time.Millisecond) == 0)
	test.Assert(t, Ticks(time.Millisecond, 10*time.Millisecond) == 1)
	test.Assert(t, Ticks(10*time.Millisecond, 10*time.Millisecond) == 1)
	test.Assert(t, Ticks(11*time.Millisecond, 10*time.Millisecond) == 2)
	test.Assert(t, Ticks(time.Second, 10*time.Millisecond) == 100)
}

func TestDuration(t *testing.T) {
	test.Assert(t, Duration(100, 10*time.Millisecond) == time.Second)
	test.Assert(t, Duration(0, 10*time.Millisecond) == 0)
}

func TestManualTickSource(t *testing.T) {
	var n int32
	s := NewManualTickSource()

	// ticks before Start are dropped
	s.Advance(3)
	test.Assert(t, atomic.LoadInt32(&n) == 0)

	s.Start(func() { atomic.AddInt32(&n, 1) })
	s.Advance(5)
	test.Assert(t, atomic.LoadInt32(&n) == 5)

	s.Stop()
	s.Advance(2)
	test.Assert(t, atomic.LoadInt32(&n) == 5)
}

func TestTickerSource(t *testing.T) {
	var n int32
	s := NewTickerSource(10 * time.Millisecond)
	s.Start(func() { atomic.AddInt32(&n, 1) })
	defer s.Stop()

	deadline := time.Now().Add(time.Second)
	for atomic.LoadInt32(&n) < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	test.Assert(t, atomic.LoadInt32(&n) >= 2)
}
