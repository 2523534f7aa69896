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

import "math/bits"

// MaxCPUs is the widest processor set a kernel instance supports.
const MaxCPUs = 64

// CPUSet is a bitmask of processor indices.
type CPUSet uint64

// AllCPUs returns the set of the first n processors.
func AllCPUs(n int) CPUSet {
	if n <= 0 {
		return 0
	}
	if n >= MaxCPUs {
		return ^CPUSet(0)
	}
	return CPUSet(1)<<uint(n) - 1
}

// OneCPU returns the set containing only processor i.
func OneCPU(i int) CPUSet {
	return CPUSet(1) << uint(i)
}

// Has reports whether processor i is in the set.
func (s CPUSet) Has(i int) bool {
	return s&(CPUSet(1)<<uint(i)) != 0
}

// Add returns the set with processor i included.
func (s CPUSet) Add(i int) CPUSet {
	return s | CPUSet(1)<<uint(i)
}

// Remove returns the set without processor i.
func (s CPUSet) Remove(i int) CPUSet {
	return s &^ (CPUSet(1) << uint(i))
}

// Count returns the number of processors in the set.
func (s CPUSet) Count() int {
	return bits.OnesCount64(uint64(s))
}

// Lowest returns the lowest processor index in the set, or -1 when empty.
func (s CPUSet) Lowest() int {
	if s == 0 {
		return -1
	}
	return bits.TrailingZeros64(uint64(s))
}

// Empty reports whether the set has no processors.
func (s CPUSet) Empty() bool {
	return s == 0
}
