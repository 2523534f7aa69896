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

// Package bugcheck handles unrecoverable kernel inconsistencies. A bugcheck is
// a programming-contract violation, not a runtime condition: continuing after
// one would run on corrupt scheduler or lock state, so the default handler
// logs the code and terminates the process.
package bugcheck

import (
	"fmt"

	"github.com/cloudwego/kernex/pkg/klog"
)

// Code identifies the class of inconsistency that triggered the halt.
type Code uint32

const (
	CodeHandleInvalid    Code = 0x01 // stale or out-of-range object handle
	CodeLinkConflict     Code = 0x02 // thread linked on two queues at once
	CodeLockCorrupt      Code = 0x03 // push lock word in an impossible state
	CodeLockNotOwned     Code = 0x04 // release without a matching acquire
	CodeSchedCorrupt     Code = 0x05 // ready summary disagrees with the queues
	CodeStateInvalid     Code = 0x06 // illegal thread state transition
	CodeThreadContext    Code = 0x07 // thread used from a foreign goroutine
	CodeShootdownTimeout Code = 0x08 // shootdown acknowledgments incomplete
	CodeProcessorRange   Code = 0x09 // processor index out of range
	CodeWaitCorrupt      Code = 0x0a // wait block inconsistent with its object
)

var codeNames = map[Code]string{
	CodeHandleInvalid:    "HANDLE_INVALID",
	CodeLinkConflict:     "LINK_CONFLICT",
	CodeLockCorrupt:      "LOCK_CORRUPT",
	CodeLockNotOwned:     "LOCK_NOT_OWNED",
	CodeSchedCorrupt:     "SCHED_CORRUPT",
	CodeStateInvalid:     "STATE_INVALID",
	CodeThreadContext:    "THREAD_CONTEXT",
	CodeShootdownTimeout: "SHOOTDOWN_TIMEOUT",
	CodeProcessorRange:   "PROCESSOR_RANGE",
	CodeWaitCorrupt:      "WAIT_CORRUPT",
}

func (c Code) String() string {
	if s, ok := codeNames[c]; ok {
		return s
	}
	return fmt.Sprintf("UNKNOWN_0x%02x", uint32(c))
}

// HaltFunc handles a bugcheck. Implementations must not return; if one does,
// Halt panics to keep the contract.
type HaltFunc func(code Code, msg string)

var haltFn HaltFunc = defaultHalt

// SetHalt replaces the halt handler. Tests install a handler that panics so
// the failure can be recovered and examined.
// Note that this method is not concurrent-safe.
func SetHalt(fn HaltFunc) {
	if fn == nil {
		fn = defaultHalt
	}
	haltFn = fn
}

// Halt reports an unrecoverable inconsistency and never returns.
func Halt(code Code, format string, v ...interface{}) {
	msg := fmt.Sprintf(format, v...)
	haltFn(code, msg)
	panic(fmt.Sprintf("bugcheck %s: %s", code, msg))
}

func defaultHalt(code Code, msg string) {
	klog.Fatalf("KERNEX: bugcheck %s: %s", code, msg)
}
