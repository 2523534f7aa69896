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

// AtomicInt is a shortcut for atomic.int32.
type AtomicInt int32

// Inc adds 1 to the int.
func (i *AtomicInt) Inc() {
	atomic.AddInt32((*int32)(i), 1)
}

// Dec subs 1 to the int.
func (i *AtomicInt) Dec() {
	atomic.AddInt32((*int32)(i), -1)
}

// Value returns the int.
func (i *AtomicInt) Value() int {
	return int(atomic.LoadInt32((*int32)(i)))
}
