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

import "fmt"

// Status is the completion value of a wait. Timeouts and abandonment are
// statuses, not errors; only contract violations fail harder.
type Status int32

const (
	// StatusSuccess reports a satisfied wait or delay.
	StatusSuccess Status = 0
	// StatusWait0 is the base of the satisfied-index range: StatusWait0+i
	// means object i satisfied the wait.
	StatusWait0 Status = 0
	// StatusAbandoned0 is the base of the abandoned-mutex range:
	// StatusAbandoned0+i means object i was a mutex freed by the exit of its
	// owner rather than a release.
	StatusAbandoned0 Status = 128
	// StatusUserAPC reports a wait cut short to deliver queued procedures.
	StatusUserAPC Status = 192
	// StatusTimeout reports an expired wait, including zero-timeout polls of
	// unsignaled objects.
	StatusTimeout Status = 258
	// StatusTerminated reports a wait torn down because the thread is exiting.
	StatusTerminated Status = 259
)

// WaitStatus returns the status reporting that object index satisfied a wait.
func WaitStatus(index int) Status {
	return StatusWait0 + Status(index)
}

// AbandonedStatus returns the status reporting that object index was an
// abandoned mutex.
func AbandonedStatus(index int) Status {
	return StatusAbandoned0 + Status(index)
}

// Satisfied reports whether the wait completed by signal, including
// abandonment.
func (s Status) Satisfied() bool {
	return s >= StatusWait0 && s < StatusUserAPC
}

// Abandoned reports whether the wait completed on an abandoned mutex.
func (s Status) Abandoned() bool {
	return s >= StatusAbandoned0 && s < StatusUserAPC
}

// WaitIndex returns which object of the wait completed it, and false when
// the status does not carry an index.
func (s Status) WaitIndex() (int, bool) {
	switch {
	case s >= StatusWait0 && s < StatusAbandoned0:
		return int(s - StatusWait0), true
	case s.Abandoned():
		return int(s - StatusAbandoned0), true
	}
	return 0, false
}

func (s Status) String() string {
	switch {
	case s == StatusSuccess:
		return "Success"
	case s == StatusTimeout:
		return "Timeout"
	case s == StatusUserAPC:
		return "UserAPC"
	case s == StatusTerminated:
		return "Terminated"
	case s.Abandoned():
		return fmt.Sprintf("Abandoned+%d", int(s-StatusAbandoned0))
	case s > StatusWait0 && s < StatusAbandoned0:
		return fmt.Sprintf("Wait+%d", int(s-StatusWait0))
	}
	return fmt.Sprintf("Status(%d)", int32(s))
}
