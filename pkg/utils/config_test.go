/*
 * Copyright 2021 CloudWeGo Authors
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
	"os"
	"path"
	"testing"

	"github.com/cloudwego/kernex/internal/test"
)

func TestGetConfDir(t *testing.T) {
	os.Setenv(EnvConfDir, "test_conf")
	confDir := GetConfDir()
	test.Assert(t, confDir == "test_conf")

	os.Setenv(EnvConfDir, "")
	confDir = GetConfDir()
	test.Assert(t, confDir == DefaultConfDir)
}

func TestGetConfFile(t *testing.T) {
	os.Setenv(EnvConfFile, "test.yml")
	confFile := GetConfFile()
	test.Assert(t, confFile == path.Join(GetConfDir(), "test.yml"))

	os.Setenv(EnvConfFile, "")
	confFile = GetConfFile()
	test.Assert(t, confFile == path.Join(GetConfDir(), DefaultConfFile))
}

func TestGetLogDir(t *testing.T) {
	os.Setenv(EnvLogDir, "test_log")
	logDir := GetLogDir()
	test.Assert(t, logDir == "test_log")

	os.Setenv(EnvLogDir, "")
	logDir = GetLogDir()
	test.Assert(t, logDir == DefaultLogDir)
}
