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

// Package gofunc provides a way to control the gofunc used by kernex
// internally, which runs background work such as coordinator passes and
// simulated interrupt delivery.
package gofunc

import (
	"context"
	"runtime/debug"
	"sync"

	"github.com/bytedance/gopkg/util/gopool"

	"github.com/cloudwego/kernex/pkg/klog"
)

// GoTask is used to spawn a new task.
type GoTask func(context.Context, func())

// GoFunc is the default func used globally.
var GoFunc GoTask

func init() {
	GoFunc = func(ctx context.Context, f func()) {
		gopool.CtxGo(ctx, f)
	}
}

var panicHandler func(info *Info, panicErr interface{}, panicStack string)

// SetPanicHandler sets a handler invoked when a spawned task panics.
// Note that this method is not concurrent-safe.
func SetPanicHandler(hdlr func(info *Info, panicErr interface{}, panicStack string)) {
	panicHandler = hdlr
}

// RecoverGoFuncWithInfo spawns task and recovers panics, reporting them with
// the attached info.
func RecoverGoFuncWithInfo(ctx context.Context, task func(), info *Info) {
	GoFunc(ctx, func() {
		defer func() {
			if panicErr := recover(); panicErr != nil {
				panicStack := string(debug.Stack())
				if panicHandler != nil {
					panicHandler(info, panicErr, panicStack)
				} else {
					klog.CtxErrorf(ctx, "KERNEX: panic in %s, scope=%s, error=%v\nstack=%s",
						info.Component, info.Scope, panicErr, panicStack)
				}
				info.Recycle()
			}
		}()
		task()
		info.Recycle()
	})
}

var infoPool = sync.Pool{
	New: func() interface{} {
		return new(Info)
	},
}

// Info is the information attached to a spawned task for panic reports.
type Info struct {
	Component string
	Scope     string
}

// NewBasicInfo returns a new Info.
func NewBasicInfo(component, scope string) *Info {
	info := infoPool.Get().(*Info)
	info.Component = component
	info.Scope = scope
	return info
}

// Recycle reuses the Info.
func (i *Info) Recycle() {
	i.Component = ""
	i.Scope = ""
	infoPool.Put(i)
}
