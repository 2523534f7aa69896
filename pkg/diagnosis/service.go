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

package diagnosis

import (
	"github.com/bytedance/gopkg/lang/syncx"

	"github.com/cloudwego/kernex/pkg/utils"
)

// NewRegistryService creates a Service that keeps the registered probes and
// can dump all of them at once. Probes are registered at bring-up and read
// whenever a dump is requested, so the registry uses a p-shard rwlock.
func NewRegistryService() *RegistryService {
	return &RegistryService{
		lock:   syncx.NewRWMutex(),
		probes: make(map[ProbeName]ProbeFunc),
	}
}

// RegistryService implements Service with a concurrent probe registry.
type RegistryService struct {
	lock   syncx.RWMutex
	probes map[ProbeName]ProbeFunc
}

// RegisterProbeFunc implements the Service interface.
func (s *RegistryService) RegisterProbeFunc(name ProbeName, pf ProbeFunc) {
	if pf == nil {
		return
	}
	s.lock.Lock()
	s.probes[name] = pf
	s.lock.Unlock()
}

// ProbePairs returns the registered probes.
func (s *RegistryService) ProbePairs() map[ProbeName]ProbeFunc {
	rl := s.lock.RLocker()
	rl.Lock()
	pairs := make(map[ProbeName]ProbeFunc, len(s.probes))
	for name, pf := range s.probes {
		pairs[name] = pf
	}
	rl.Unlock()
	return pairs
}

// Dump collects the data of every registered probe.
func (s *RegistryService) Dump() map[ProbeName]interface{} {
	pairs := s.ProbePairs()
	data := make(map[ProbeName]interface{}, len(pairs))
	for name, pf := range pairs {
		data[name] = pf()
	}
	return data
}

// DumpJSON collects the data of every registered probe and marshals it.
func (s *RegistryService) DumpJSON() ([]byte, error) {
	return utils.JSONMarshal(s.Dump())
}
