/**
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

// Package session binds kernel threads to their carrier goroutines through
// localsession, so kernel entries can resolve the calling thread without an
// explicit argument.
package session

import (
	"context"
	"sync"
	"time"

	gs "github.com/cloudwego/localsession"
)

var initOnce sync.Once

// NewManagerOptions returns the manager configuration the kernel runs with.
// Implicit transmit stays off: a goroutine spawned from a thread body is not
// itself a thread and must not inherit the binding.
func NewManagerOptions() gs.ManagerOptions {
	return gs.ManagerOptions{
		EnableImplicitlyTransmitAsync: false,
		ShardNumber:                   100,
		GCInterval:                    time.Hour,
	}
}

// Init enables the process-wide session manager. Every kernel instance calls
// it at startup; the first call wins, so late instances never wipe the
// bindings of threads already running.
func Init() {
	initOnce.Do(func() {
		opts := NewManagerOptions()
		gs.InitDefaultManager(opts)
	})
}

// Bind attaches ctx to the calling goroutine until Unbind.
func Bind(ctx context.Context) {
	gs.BindSession(gs.NewSessionCtx(ctx))
}

// Cur returns the context bound to the calling goroutine, if any.
func Cur() (context.Context, bool) {
	s, ok := gs.CurSession()
	if !ok {
		return nil, false
	}
	c, ok := s.(gs.SessionCtx)
	if !ok {
		return nil, false
	}
	return c.Export(), true
}

// Unbind detaches the calling goroutine.
func Unbind() {
	gs.UnbindSession()
}
