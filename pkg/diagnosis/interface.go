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

// Package diagnosis provide support to register probe func that can get some infos to do diagnosis.
package diagnosis

// ProbeName is the name of probe.
type ProbeName string

// ProbeFunc is used to get probe data, it is usually a data dump func.
type ProbeFunc func() interface{}

// Service is the interface for debug service.
type Service interface {
	// RegisterProbeFunc is used to register ProbeFunc with probe name
	// ProbeFunc is usually a dump func that to dump info to do problem diagnosis,
	// eg: sched.Dump(), s.RegisterProbeFunc(ReadyQueuesKey, cpu.Dump)
	RegisterProbeFunc(ProbeName, ProbeFunc)
}

// RegisterProbeFunc is a wrap function to execute Service.RegisterProbeFunc.
func RegisterProbeFunc(svc Service, name ProbeName, pf ProbeFunc) {
	if svc != nil {
		svc.RegisterProbeFunc(name, pf)
	}
}

// Keys below are probe info that has been registered by default.
// If you want to register other info, please use RegisterProbeFunc(ProbeName, ProbeFunc) to do that.
const (
	// Common
	ChangeEventsKey ProbeName = "events"
	OptionsKey      ProbeName = "options"
	ConfigKey       ProbeName = "config"

	// Kernel
	ReadyQueuesKey ProbeName = "ready_queues"
	ThreadsKey     ProbeName = "threads"
	TimersKey      ProbeName = "timers"
	ShootdownKey   ProbeName = "shootdown"
	BalanceSetKey  ProbeName = "balance_set"
	SwitchTraceKey ProbeName = "switch_trace"
)

// WrapAsProbeFunc is to wrap probe data as ProbeFunc, the data is some infos that you want to diagnosis, like config info.
func WrapAsProbeFunc(data interface{}) ProbeFunc {
	return func() interface{} {
		return data
	}
}

// NoopService is an empty implementation of Service.
// If you need diagnosis feature, specify Service through the option WithDiagnosisService of the kernel.
var NoopService Service = &noopService{}

type noopService struct{}

func (n noopService) RegisterProbeFunc(name ProbeName, probeFunc ProbeFunc) {
	// RegisterProbeFunc of NoopService do nothing.
}
