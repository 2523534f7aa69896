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

// Package ktime provides the tick timebase of the kernel. All scheduling
// deadlines are denominated in ticks so that tests can drive the clock by
// hand and stay deterministic.
package ktime

import "time"

// Tick is a point on the kernel timebase. The zero Tick is the instant the
// kernel was started.
type Tick int64

// DefaultTickPeriod is the wall-clock length of one tick when a real tick
// source is used.
const DefaultTickPeriod = 10 * time.Millisecond

// Ticks converts a duration to a tick count with the given period, rounding
// up so that a positive duration never becomes zero ticks.
func Ticks(d, period time.Duration) Tick {
	if d <= 0 {
		return 0
	}
	if period <= 0 {
		period = DefaultTickPeriod
	}
	n := (d + period - 1) / period
	return Tick(n)
}

// Duration converts a tick count back to a wall-clock duration.
func Duration(n Tick, period time.Duration) time.Duration {
	if period <= 0 {
		period = DefaultTickPeriod
	}
	return time.Duration(n) * period
}
