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

// Package event provides the kernel's lifecycle event plumbing: a bus for
// subscribers and a fixed-size ring that keeps the recent history for
// diagnosis dumps.
package event

import "time"

// Event is the element to be dispatched or queued.
type Event struct {
	Name   string
	Time   time.Time
	Detail string
	Extra  interface{}
}
