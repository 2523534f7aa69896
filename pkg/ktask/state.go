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

// State is the scheduling state of a thread.
type State uint8

const (
	// StateInitialized means the thread exists but has never been readied.
	StateInitialized State = iota
	// StateReady means the thread sits on a ready queue.
	StateReady
	// StateRunning means the thread holds a processor.
	StateRunning
	// StateStandby means the thread was selected to run next on a processor
	// but has not taken it yet.
	StateStandby
	// StateTerminated means the thread has exited.
	StateTerminated
	// StateWaiting means the thread blocks on dispatcher objects.
	StateWaiting
	// StateTransition means the thread was woken but its kernel stack is not
	// resident; it becomes ready once the stack is swapped back in.
	StateTransition
	// StateDeferredReady means the thread was claimed by a wake but not yet
	// queued on its target processor.
	StateDeferredReady
	// StateSuspended means the thread is held at a safe point until resumed.
	StateSuspended
)

var stateNames = [...]string{
	StateInitialized:   "Initialized",
	StateReady:         "Ready",
	StateRunning:       "Running",
	StateStandby:       "Standby",
	StateTerminated:    "Terminated",
	StateWaiting:       "Waiting",
	StateTransition:    "Transition",
	StateDeferredReady: "DeferredReady",
	StateSuspended:     "Suspended",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "Unknown"
}
