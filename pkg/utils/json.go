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

package utils

import (
	"encoding/json"
	"runtime/debug"

	"github.com/bytedance/sonic"

	"github.com/cloudwego/kernex/pkg/klog"
)

var sonicConfig = sonic.Config{
	EscapeHTML:     true,
	ValidateString: true,
}.Froze()

// JSONMarshal marshals v with sonic, falling back to encoding/json if the
// fast path panics.
func JSONMarshal(v interface{}) (b []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			b, err = json.Marshal(v)
			klog.Warnf("KERNEX: panic when JSONMarshal, msg=%v, stack=%s", r, string(debug.Stack()))
		}
	}()
	return sonicConfig.Marshal(v)
}

// Map2JSONStr transform map[string]string to json str, perf is better than use json lib directly
func Map2JSONStr(mapInfo map[string]string) (str string, err error) {
	defer func() {
		if r := recover(); r != nil {
			var b []byte
			b, err = json.Marshal(mapInfo)
			str = string(b)
			klog.Warnf("KERNEX: panic when Map2JSONStr, msg=%v, stack=%s", r, string(debug.Stack()))
		}
	}()
	if len(mapInfo) == 0 {
		return "{}", nil
	}
	return sonicConfig.MarshalToString(mapInfo)
}

// JSONStr2Map transform json str to map[string]string, perf is better than use json lib directly
func JSONStr2Map(jsonStr string) (mapInfo map[string]string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = json.Unmarshal([]byte(jsonStr), &mapInfo)
			klog.Warnf("KERNEX: panic when JSONStr2Map, msg=%v, stack=%s", r, string(debug.Stack()))
		}
	}()
	err = sonicConfig.UnmarshalFromString(jsonStr, &mapInfo)
	if len(mapInfo) == 0 {
		mapInfo = nil
	}
	return mapInfo, err
}
