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

package kerrors

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// Basic error types
var (
	ErrInternalException   = &basicError{"internal exception"}
	ErrInvalidHandle       = &basicError{"invalid handle"}
	ErrArenaExhausted      = &basicError{"object arena exhausted"}
	ErrTooManyWaitObjects  = &basicError{"too many wait objects"}
	ErrDuplicateWaitObject = &basicError{"duplicate object in wait-all"}
	ErrSemaphoreLimit      = &basicError{"semaphore limit exceeded"}
	ErrMutexNotOwner       = &basicError{"mutex not owned by caller"}
	ErrShootdownTimeout    = &basicError{"shootdown acknowledgment timeout"}
	ErrKernelShutdown      = &basicError{"kernel shut down"}
	ErrNotRunning          = &basicError{"kernel not running"}
	ErrAlreadyRunning      = &basicError{"kernel already running"}
	ErrThreadTerminated    = &basicError{"thread terminated"}
	ErrNotAttached         = &basicError{"goroutine not attached to a thread"}
	ErrPanic               = &basicError{"panic"}
	ErrConfig              = &basicError{"configuration error"}
)

// More detailed error types
var (
	ErrNotSupported     = ErrInternalException.WithCause(errors.New("operation not supported"))
	ErrNoAllowedCPU     = ErrInternalException.WithCause(errors.New("affinity admits no processor"))
	ErrNoTickSource     = ErrInternalException.WithCause(errors.New("no tick source configured"))
	ErrThreadNotWaiting = ErrInternalException.WithCause(errors.New("thread is not waiting"))
	ErrAlreadyAttached  = ErrInternalException.WithCause(errors.New("goroutine already attached"))
)

type basicError struct {
	message string
}

// Error implements the error interface.
func (be *basicError) Error() string {
	return be.message
}

// WithCause creates a detailed error which attach the given cause to current error.
func (be *basicError) WithCause(cause error) error {
	return &DetailedError{basic: be, cause: cause}
}

// WithCauseAndStack creates a detailed error which attach the given cause to current error and wrap stack.
func (be *basicError) WithCauseAndStack(cause error, stack string) error {
	return &DetailedError{basic: be, cause: cause, stack: stack}
}

// WithCauseAndExtraMsg creates a detailed error which attach the given cause to current error and wrap extra msg to supply error msg.
func (be *basicError) WithCauseAndExtraMsg(cause error, extraMsg string) error {
	return &DetailedError{basic: be, cause: cause, extraMsg: extraMsg}
}

// Timeout supports the os.IsTimeout checking.
func (be *basicError) Timeout() bool {
	return be == ErrShootdownTimeout
}

// DetailedError contains more information.
type DetailedError struct {
	basic    *basicError
	cause    error
	stack    string
	extraMsg string
}

// Error implements the error interface.
func (de *DetailedError) Error() string {
	msg := appendErrMsg(de.basic.Error(), de.extraMsg)
	if de.cause != nil {
		return msg + ": " + de.cause.Error()
	}
	return msg
}

// Format the error.
func (de *DetailedError) Format(s fmt.State, verb rune) {
	switch verb {
	case 'v':
		if s.Flag('+') {
			msg := appendErrMsg(de.basic.Error(), de.extraMsg)
			_, _ = io.WriteString(s, msg)
			if de.cause != nil {
				_, _ = fmt.Fprintf(s, ": %+v", de.cause)
			}
			return
		}
		fallthrough
	case 's', 'q':
		_, _ = io.WriteString(s, de.Error())
	}
}

// ErrorType returns the basic error type.
func (de *DetailedError) ErrorType() error {
	return de.basic
}

// Unwrap returns the cause of detailed error.
func (de *DetailedError) Unwrap() error {
	return de.cause
}

// Is returns if the given error matches the current error.
func (de *DetailedError) Is(target error) bool {
	return de == target || de.basic == target || errors.Is(de.cause, target)
}

// As returns if the given target matches the current error, if so sets
// target to the error value and returns true
func (de *DetailedError) As(target interface{}) bool {
	if errors.As(de.basic, target) {
		return true
	}
	return errors.As(de.cause, target)
}

// Timeout supports the os.IsTimeout checking.
func (de *DetailedError) Timeout() bool {
	return de.basic == ErrShootdownTimeout || os.IsTimeout(de.cause)
}

// Stack record stack info
func (de *DetailedError) Stack() string {
	return de.stack
}

// WithExtraMsg to add extra msg to supply error msg
func (de *DetailedError) WithExtraMsg(extraMsg string) {
	de.extraMsg = extraMsg
}

func appendErrMsg(errMsg, extra string) string {
	if extra == "" {
		return errMsg
	}
	var strBuilder strings.Builder
	strBuilder.Grow(len(errMsg) + len(extra) + 2)
	strBuilder.WriteString(errMsg)
	strBuilder.WriteByte('[')
	strBuilder.WriteString(extra)
	strBuilder.WriteByte(']')
	return strBuilder.String()
}

// IsKernexError reports whether the given err is an error generated by kernex.
func IsKernexError(err error) bool {
	if _, ok := err.(*basicError); ok {
		return true
	}

	if _, ok := err.(*DetailedError); ok {
		return true
	}
	return false
}

// TimeoutCheckFunc is used to check whether the given err is a timeout error.
var TimeoutCheckFunc func(err error) bool

// IsTimeoutError check if the error is timeout
func IsTimeoutError(err error) bool {
	if TimeoutCheckFunc != nil {
		return TimeoutCheckFunc(err)
	}
	return errors.Is(err, ErrShootdownTimeout)
}
