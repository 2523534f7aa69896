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

// Slice is a wrapper of []string.
type Slice []string

// Push pushes str to the end of the slice.
func (sp *Slice) Push(str string) {
	*sp = append(*sp, str)
}

// Pop removes and returns the last item of the slice.
func (sp *Slice) Pop() (str string) {
	end := len(*sp) - 1
	str = (*sp)[end]
	*sp = (*sp)[:end]
	return
}
