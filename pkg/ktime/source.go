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

package ktime

import (
	"sync"
	"time"

	"github.com/cloudwego/kernex/pkg/utils"
)

// TickSource drives the kernel clock. Start delivers ticks to the given
// func until Stop; deliver runs outside any kernel lock.
type TickSource interface {
	Start(deliver func())
	Stop()
}

// NewTickerSource returns a TickSource that delivers one tick per period of
// wall-clock time.
func NewTickerSource(period time.Duration) TickSource {
	if period <= 0 {
		period = DefaultTickPeriod
	}
	return &tickerSource{st: utils.NewSharedTicker(period)}
}

type tickerSource struct {
	st   *utils.SharedTicker
	task *tickTask
}

type tickTask struct {
	deliver func()
}

func (t *tickTask) Refresh() {
	t.deliver()
}

func (s *tickerSource) Start(deliver func()) {
	s.task = &tickTask{deliver: deliver}
	s.st.Add(s.task)
}

func (s *tickerSource) Stop() {
	if s.task != nil {
		s.st.Delete(s.task)
		s.task = nil
	}
}

// ManualTickSource delivers ticks only when Advance is called, which makes
// clock-driven behavior fully deterministic under test.
type ManualTickSource struct {
	mu      sync.Mutex
	deliver func()
}

// NewManualTickSource creates a stopped manual source.
func NewManualTickSource() *ManualTickSource {
	return &ManualTickSource{}
}

// Start implements the TickSource interface.
func (s *ManualTickSource) Start(deliver func()) {
	s.mu.Lock()
	s.deliver = deliver
	s.mu.Unlock()
}

// Stop implements the TickSource interface.
func (s *ManualTickSource) Stop() {
	s.mu.Lock()
	s.deliver = nil
	s.mu.Unlock()
}

// Advance delivers n ticks synchronously. It returns after every handler
// invocation has completed.
func (s *ManualTickSource) Advance(n int) {
	s.mu.Lock()
	deliver := s.deliver
	s.mu.Unlock()
	if deliver == nil {
		return
	}
	for i := 0; i < n; i++ {
		deliver()
	}
}
