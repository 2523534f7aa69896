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

// Package schedtune carries the dynamically adjustable scheduling policy.
// Values are tick-denominated; the balance-set coordinator and the kernel
// read the active policy through a Container, which a config source updates
// by NotifyPolicyChange.
package schedtune

import (
	"sync/atomic"

	"github.com/cloudwego/configmanager/iface"
	"github.com/cloudwego/configmanager/util"
)

var _ iface.ConfigValueItem = (*Tuning)(nil)

// TypeTuning is used as itemKey in ConfigValueImpl
const TypeTuning iface.ItemType = "sched_tuning"

const wildcardClass = "*"

var defaultTuning = &Tuning{
	QuantumTicks:       6,
	StarvationTicks:    400,
	MaxBoostsPerPass:   16,
	StackIdleTicks:     700,
	BalancePeriodTicks: 100,
}

// Tuning is used as itemValue in ConfigValueImpl
type Tuning struct {
	// QuantumTicks is the clock ticks a thread runs before its quantum ends.
	QuantumTicks int32 `json:"quantum_ticks"`
	// StarvationTicks is the ready-queue age at which a thread counts as
	// starved and is boosted.
	StarvationTicks int64 `json:"starvation_ticks"`
	// MaxBoostsPerPass bounds starvation boosts per processor per pass.
	MaxBoostsPerPass int `json:"max_boosts_per_pass"`
	// StackIdleTicks is the wait age past which a thread's kernel stack
	// becomes a swap-out candidate.
	StackIdleTicks int64 `json:"stack_idle_ticks"`
	// BalancePeriodTicks is the interval between balance-set passes.
	BalancePeriodTicks int64 `json:"balance_period_ticks"`
}

// NewTuning is a function decoding json bytes to a Tuning object
var NewTuning = util.JsonInitializer(func() iface.ConfigValueItem {
	return &Tuning{}
})

// CopyDefaultTuning returns a copy of defaultTuning, so callers cannot
// mutate the defaults.
func CopyDefaultTuning() iface.ConfigValueItem {
	return defaultTuning.DeepCopy()
}

// DeepCopy returns a copy of the current Tuning
func (t *Tuning) DeepCopy() iface.ConfigValueItem {
	return &Tuning{
		QuantumTicks:       t.QuantumTicks,
		StarvationTicks:    t.StarvationTicks,
		MaxBoostsPerPass:   t.MaxBoostsPerPass,
		StackIdleTicks:     t.StackIdleTicks,
		BalancePeriodTicks: t.BalancePeriodTicks,
	}
}

// EqualsTo returns true if the current Tuning equals the other Tuning
func (t *Tuning) EqualsTo(other iface.ConfigValueItem) bool {
	o := other.(*Tuning)
	return t.QuantumTicks == o.QuantumTicks &&
		t.StarvationTicks == o.StarvationTicks &&
		t.MaxBoostsPerPass == o.MaxBoostsPerPass &&
		t.StackIdleTicks == o.StackIdleTicks &&
		t.BalancePeriodTicks == o.BalancePeriodTicks
}

type tuningConfig struct {
	configs      map[string]*Tuning
	globalConfig *Tuning
}

// Container resolves the active Tuning on the scheduling-class hierarchy.
// Reads are lock-free; updates replace the whole snapshot.
type Container struct {
	config atomic.Value
}

// NewContainer builds a Container holding the default policy.
func NewContainer() *Container {
	c := &Container{}
	tc := &tuningConfig{
		configs:      map[string]*Tuning{},
		globalConfig: CopyDefaultTuning().(*Tuning),
	}
	c.config.Store(tc)
	return c
}

// NotifyPolicyChange to receive policy when it changes
func (c *Container) NotifyPolicyChange(configs map[string]*Tuning) {
	tc := &tuningConfig{
		configs:      map[string]*Tuning{},
		globalConfig: CopyDefaultTuning().(*Tuning),
	}
	for class, cfg := range configs {
		// The configs may be modified by the container invoker,
		// copy them to avoid data race.
		tn := cfg.DeepCopy().(*Tuning)
		if class == wildcardClass {
			tc.globalConfig = tn
		}
		tc.configs[class] = tn
	}
	c.config.Store(tc)
}

// Policy returns the tuning for a scheduling class, falling back to the
// wildcard policy.
func (c *Container) Policy(class string) *Tuning {
	tc := c.config.Load().(*tuningConfig)
	if config, ok := tc.configs[class]; ok {
		return config
	}
	return tc.globalConfig
}
