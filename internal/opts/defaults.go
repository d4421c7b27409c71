/*
 * Copyright 2024 CloudWeGo Authors
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

package opts

import (
	"os"
	"strconv"
)

const (
	_DefaultMaxConditionalEliminationIterations = 4
	_DefaultMaxParallelCompilations             = 16
	_DefaultBarrierSet                          = "g1"
	_DefaultArch                                = "amd64"
)

var (
	GenLoopSafepoints                   = parseBoolOrDefault("GOPT_GEN_LOOP_SAFEPOINTS", true)
	VerifyLowering                      = parseBoolOrDefault("GOPT_VERIFY_LOWERING", true)
	MaxConditionalEliminationIterations = parseOrDefault("GOPT_CE_MAX_ITERATIONS", _DefaultMaxConditionalEliminationIterations, 1)
	MaxParallelCompilations             = parseOrDefault("GOPT_MAX_PARALLEL_COMPILATIONS", _DefaultMaxParallelCompilations, 1)
	BarrierSet                          = stringOrDefault("GOPT_BARRIER_SET", _DefaultBarrierSet)
	Arch                                = stringOrDefault("GOPT_ARCH", _DefaultArch)
)

func parseOrDefault(key string, def int, min int) int {
	if env := os.Getenv(key); env == "" {
		return def
	} else if val, err := strconv.ParseUint(env, 0, 64); err != nil {
		panic("gopt: invalid value for " + key)
	} else if ret := int(val); ret < min {
		panic("gopt: value too small for " + key)
	} else {
		return ret
	}
}

func parseBoolOrDefault(key string, def bool) bool {
	if env := os.Getenv(key); env == "" {
		return def
	} else if val, err := strconv.ParseBool(env); err != nil {
		panic("gopt: invalid value for " + key)
	} else {
		return val
	}
}

func stringOrDefault(key string, def string) string {
	if env := os.Getenv(key); env == "" {
		return def
	} else {
		return env
	}
}
