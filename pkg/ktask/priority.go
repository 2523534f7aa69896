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

// Priority is a scheduling level. Higher levels preempt lower ones.
type Priority uint8

const (
	// NumPriorities is the number of scheduling levels.
	NumPriorities = 32

	// LowRealtime is the first realtime level. Threads at or above it never
	// decay and never receive boosts.
	LowRealtime Priority = 16

	// MaxDynamic is the ceiling for boosted dynamic threads.
	MaxDynamic Priority = 15

	// MaxPriority is the highest level.
	MaxPriority Priority = NumPriorities - 1
)

// Realtime reports whether the level is in the realtime range.
func (p Priority) Realtime() bool {
	return p >= LowRealtime
}

// Valid reports whether the level exists.
func (p Priority) Valid() bool {
	return p < NumPriorities
}
