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

// Package utils contains utils.
package utils

import (
	"os"
	"path"
)

// Predefined env variables and default configurations.
const (
	EnvConfDir  = "KERNEX_CONF_DIR"
	EnvConfFile = "KERNEX_CONF_FILE"
	EnvLogDir   = "KERNEX_LOG_DIR"

	DefaultConfDir  = "conf"
	DefaultConfFile = "kernex.yml"
	DefaultLogDir   = "log"
)

// GetConfDir gets dir of config file.
func GetConfDir() string {
	if confDir := os.Getenv(EnvConfDir); confDir != "" {
		return confDir
	}
	return DefaultConfDir
}

// GetConfFile gets config file path.
func GetConfFile() string {
	file := DefaultConfFile
	if confFile := os.Getenv(EnvConfFile); confFile != "" {
		file = confFile
	}
	return path.Join(GetConfDir(), file)
}

// GetLogDir is to get log dir from env.
func GetLogDir() string {
	if logDir := os.Getenv(EnvLogDir); logDir != "" {
		return logDir
	}
	return DefaultLogDir
}
