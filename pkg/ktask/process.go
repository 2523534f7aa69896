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

// Process groups threads for accounting and swap policy. Fields are guarded
// by the dispatcher lock.
type Process struct {
	self Handle

	Name        string
	ThreadCount int32

	// Resident is cleared when the balance manager hands the whole process
	// to the memory manager; waking any member thread makes it resident
	// again before the thread runs.
	Resident bool
}

func (p *Process) init(self Handle) {
	p.self = self
	p.Resident = true
}

// Self returns the process handle.
func (p *Process) Self() Handle {
	return p.self
}

func (p *Process) zero() {
	*p = Process{}
}
