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
	"github.com/bytedance/gopkg/lang/fastrand"
	"github.com/cloudwego/runtimex"
)

// GoroutineID return current G's ID, it will fall back to get a random int,
// the caller should make sure it's ok if it cannot get correct goroutine id.
func GoroutineID() int {
	gid, err := runtimex.GID()
	if err == nil {
		return gid
	}
	gid = fastrand.Int()
	if gid < 0 {
		gid = -gid
	}
	return gid
}
