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

// Package ktask defines the control blocks of the kernel: thread and process
// records held in fixed arenas, the dispatcher header embedded in every
// waitable object, and the handles that refer to them. Arena slots are
// reused, so every handle carries a generation that detects stale use.
package ktask

import "fmt"

// Handle refers to an arena slot. The zero Handle is Nil and never refers to
// a live object. A handle packs the slot index, a reuse generation and the
// arena kind; a stale or cross-kind handle is detected on every lookup.
type Handle uint32

// Nil is the null handle.
const Nil Handle = 0

const (
	indexBits = 16
	indexMask = 1<<indexBits - 1
	genBits   = 15
	genMask   = 1<<genBits - 1
	kindShift = indexBits + genBits

	// MaxArenaSlots bounds the capacity of one arena.
	MaxArenaSlots = indexMask - 1
)

const (
	kindThread  = 0
	kindProcess = 1
)

func makeHandle(kind, idx int, gen uint16) Handle {
	return Handle(uint32(idx+1) | uint32(gen&genMask)<<indexBits | uint32(kind)<<kindShift)
}

func (h Handle) index() int {
	return int(uint32(h)&indexMask) - 1
}

func (h Handle) generation() uint16 {
	return uint16(uint32(h) >> indexBits & genMask)
}

func (h Handle) kind() int {
	return int(uint32(h) >> kindShift)
}

// IsProcess reports whether the handle refers to a process.
func (h Handle) IsProcess() bool {
	return h != Nil && h.kind() == kindProcess
}

// String formats the handle for logs and dumps.
func (h Handle) String() string {
	if h == Nil {
		return "nil"
	}
	k := "t"
	if h.kind() == kindProcess {
		k = "p"
	}
	return fmt.Sprintf("%s%d.%d", k, h.index(), h.generation())
}
