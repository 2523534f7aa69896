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

// Package kconf loads the kernel bring-up configuration. Values come from
// three layers: built-in defaults, the yaml config file (KERNEX_CONF_DIR /
// KERNEX_CONF_FILE, conf/kernex.yml by default), and KERNEX_* environment
// variables, each layer overriding the one below.
package kconf

import (
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/kernex/internal/configutil"
	"github.com/cloudwego/kernex/pkg/ktask"
	"github.com/cloudwego/kernex/pkg/ktime"
	"github.com/cloudwego/kernex/pkg/sched"
	"github.com/cloudwego/kernex/pkg/schedtune"
	"github.com/cloudwego/kernex/pkg/tlbflush"
	"github.com/cloudwego/kernex/pkg/utils"
)

// Config is the kernel bring-up configuration.
type Config struct {
	CPUs               int
	MaxThreads         int
	TickPeriod         time.Duration
	QuantumTicks       int
	StarvationTicks    int
	StackIdleTicks     int
	BalancePeriodTicks int
	ShootdownTimeout   time.Duration
	RangePageLimit     int
	LogLevel           string
}

// Default returns the built-in configuration. Scheduling values mirror the
// components' own defaults.
func Default() *Config {
	tn := schedtune.CopyDefaultTuning().(*schedtune.Tuning)
	cpus := runtime.GOMAXPROCS(0)
	if cpus > ktask.MaxCPUs {
		cpus = ktask.MaxCPUs
	}
	return &Config{
		CPUs:               cpus,
		MaxThreads:         ktask.DefaultMaxThreads,
		TickPeriod:         ktime.DefaultTickPeriod,
		QuantumTicks:       int(sched.DefaultQuantum),
		StarvationTicks:    int(tn.StarvationTicks),
		StackIdleTicks:     int(tn.StackIdleTicks),
		BalancePeriodTicks: int(tn.BalancePeriodTicks),
		ShootdownTimeout:   tlbflush.DefaultTimeout,
		RangePageLimit:     tlbflush.DefaultRangePageLimit,
		LogLevel:           "info",
	}
}

// Load builds the configuration from defaults, the config file and the
// environment. A missing config file is not an error; an unreadable or
// malformed one is.
func Load() (*Config, error) {
	cfg := Default()
	file := utils.GetConfFile()
	if yc, err := utils.ReadYamlConfigFile(file); err == nil {
		cfg.apply(configutil.NewRichTypeDefaultConfig(yc))
	} else if !os.IsNotExist(err) {
		return nil, err
	}
	cfg.apply(configutil.NewRichTypeDefaultConfig(envConfig{}))
	cfg.Normalize()
	return cfg, nil
}

func (c *Config) apply(rd configutil.RichTypeDefaultConfig) {
	c.CPUs = rd.GetInt("cpus", c.CPUs)
	c.MaxThreads = rd.GetInt("max_threads", c.MaxThreads)
	c.TickPeriod = rd.GetDuration("tick_period", c.TickPeriod)
	c.QuantumTicks = rd.GetInt("quantum_ticks", c.QuantumTicks)
	c.StarvationTicks = rd.GetInt("starvation_ticks", c.StarvationTicks)
	c.StackIdleTicks = rd.GetInt("stack_idle_ticks", c.StackIdleTicks)
	c.BalancePeriodTicks = rd.GetInt("balance_period_ticks", c.BalancePeriodTicks)
	c.ShootdownTimeout = rd.GetDuration("shootdown_timeout", c.ShootdownTimeout)
	c.RangePageLimit = rd.GetInt("range_page_limit", c.RangePageLimit)
	c.LogLevel = rd.GetString("log_level", c.LogLevel)
}

// Normalize clamps out-of-range values to usable ones.
func (c *Config) Normalize() {
	if c.CPUs < 1 {
		c.CPUs = 1
	}
	if c.CPUs > ktask.MaxCPUs {
		c.CPUs = ktask.MaxCPUs
	}
	if c.MaxThreads <= 0 {
		c.MaxThreads = ktask.DefaultMaxThreads
	}
	if c.TickPeriod <= 0 {
		c.TickPeriod = ktime.DefaultTickPeriod
	}
	if c.QuantumTicks <= 0 {
		c.QuantumTicks = int(sched.DefaultQuantum)
	}
	def := Default()
	if c.StarvationTicks <= 0 {
		c.StarvationTicks = def.StarvationTicks
	}
	if c.StackIdleTicks <= 0 {
		c.StackIdleTicks = def.StackIdleTicks
	}
	if c.BalancePeriodTicks <= 0 {
		c.BalancePeriodTicks = def.BalancePeriodTicks
	}
	if c.ShootdownTimeout <= 0 {
		c.ShootdownTimeout = tlbflush.DefaultTimeout
	}
	if c.RangePageLimit <= 0 {
		c.RangePageLimit = tlbflush.DefaultRangePageLimit
	}
}

// Tuning converts the scheduling slice of the configuration into a
// schedtune item, for seeding the policy container.
func (c *Config) Tuning() *schedtune.Tuning {
	tn := schedtune.CopyDefaultTuning().(*schedtune.Tuning)
	tn.QuantumTicks = int32(c.QuantumTicks)
	tn.StarvationTicks = int64(c.StarvationTicks)
	tn.StackIdleTicks = int64(c.StackIdleTicks)
	tn.BalancePeriodTicks = int64(c.BalancePeriodTicks)
	return tn
}

// envConfig reads KERNEX_<KEY> environment variables, parsing them into the
// requested type.
type envConfig struct{}

var _ configutil.RichTypeConfig = envConfig{}

func (envConfig) lookup(key string) (string, bool) {
	v := os.Getenv("KERNEX_" + strings.ToUpper(key))
	return v, v != ""
}

func (e envConfig) GetBool(key string) (val, ok bool) {
	s, ok := e.lookup(key)
	if !ok {
		return false, false
	}
	b, err := strconv.ParseBool(s)
	return b, err == nil
}

func (e envConfig) GetInt(key string) (int, bool) {
	s, ok := e.lookup(key)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	return n, err == nil
}

func (e envConfig) GetString(key string) (string, bool) {
	return e.lookup(key)
}

func (e envConfig) GetInt64(key string) (int64, bool) {
	s, ok := e.lookup(key)
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(s, 10, 64)
	return n, err == nil
}

func (e envConfig) GetFloat(key string) (float64, bool) {
	s, ok := e.lookup(key)
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	return f, err == nil
}

func (e envConfig) GetDuration(key string) (time.Duration, bool) {
	s, ok := e.lookup(key)
	if !ok {
		return 0, false
	}
	d, err := time.ParseDuration(s)
	return d, err == nil
}
