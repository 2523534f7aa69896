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

// Package configutil .
package configutil

import (
	"fmt"
	"runtime"
)

// OptionOnce is used to ensure an option is only set once.
type OptionOnce struct {
	OptMap map[string]struct{}
}

// NewOptionOnce creates a new option once instance.
func NewOptionOnce() *OptionOnce {
	return &OptionOnce{
		OptMap: make(map[string]struct{}),
	}
}

// OnceOrPanic panics if the Option has already been set.
func (o *OptionOnce) OnceOrPanic() {
	if o == nil {
		return
	}
	pc, _, _, _ := runtime.Caller(1)
	name := runtime.FuncForPC(pc).Name()
	if _, ok := o.OptMap[name]; ok {
		panic(fmt.Sprintf("Option %s has already been set", name))
	}
	o.OptMap[name] = struct{}{}
}
