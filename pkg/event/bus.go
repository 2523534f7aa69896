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

package event

import (
	"context"
	"reflect"
	"sync"

	"github.com/cloudwego/kernex/pkg/gofunc"
)

// Callback is called when the subscribed event happens.
type Callback func(*Event)

// Bus implements the observer pattern to allow event dispatching and watching.
type Bus interface {
	Watch(event string, callback Callback)
	Unwatch(event string, callback Callback)
	Dispatch(event *Event)
	DispatchAndWait(event *Event)
}

// NewEventBus creates a Bus.
func NewEventBus() Bus {
	return &bus{}
}

type bus struct {
	callbacks sync.Map
}

// Watch subscribes to a certain event with a callback.
func (b *bus) Watch(event string, callback Callback) {
	var callbacks []Callback
	if actual, ok := b.callbacks.Load(event); ok {
		callbacks = append(callbacks, actual.([]Callback)...)
	}
	callbacks = append(callbacks, callback)
	b.callbacks.Store(event, callbacks)
}

// Unwatch removes the given callback from the callback chain of an event.
func (b *bus) Unwatch(event string, callback Callback) {
	var filtered []Callback
	// Functions are not comparable, so compare their addresses instead.
	target := reflect.ValueOf(callback).Pointer()
	if actual, ok := b.callbacks.Load(event); ok {
		for _, h := range actual.([]Callback) {
			if reflect.ValueOf(h).Pointer() != target {
				filtered = append(filtered, h)
			}
		}
		b.callbacks.Store(event, filtered)
	}
}

// Dispatch dispatches an event by invoking each callback asynchronously.
// Kernel entries call it while threads keep running, so callbacks must not
// assume any ordering against the code that raised the event.
func (b *bus) Dispatch(event *Event) {
	if actual, ok := b.callbacks.Load(event.Name); ok {
		for _, h := range actual.([]Callback) {
			f := h
			gofunc.GoFunc(context.Background(), func() {
				f(event)
			})
		}
	}
}

// DispatchAndWait dispatches an event by invoking callbacks concurrently and
// waits for them to finish.
func (b *bus) DispatchAndWait(event *Event) {
	if actual, ok := b.callbacks.Load(event.Name); ok {
		var wg sync.WaitGroup
		for i := range actual.([]Callback) {
			h := (actual.([]Callback))[i]
			wg.Add(1)
			gofunc.GoFunc(context.Background(), func() {
				h(event)
				wg.Done()
			})
		}
		wg.Wait()
	}
}
