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
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Options is the compile-wide configuration. It is read-only once a
// compilation starts and may be shared between concurrent compilations.
type Options struct {
	GenLoopSafepoints                   bool   `yaml:"gen_loop_safepoints"`
	VerifyLowering                      bool   `yaml:"verify_lowering"`
	MaxConditionalEliminationIterations int    `yaml:"max_conditional_elimination_iterations"`
	MaxParallelCompilations             int    `yaml:"max_parallel_compilations"`
	BarrierSet                          string `yaml:"barrier_set"`
	Arch                                string `yaml:"arch"`
}

func (self *Options) Validate() error {
	if self.MaxConditionalEliminationIterations < 1 {
		return fmt.Errorf("gopt: invalid conditional elimination iteration bound: %d", self.MaxConditionalEliminationIterations)
	}
	if self.MaxParallelCompilations < 1 {
		return fmt.Errorf("gopt: invalid parallel compilation limit: %d", self.MaxParallelCompilations)
	}
	return nil
}

func GetDefaultOptions() Options {
	return Options{
		GenLoopSafepoints:                   GenLoopSafepoints,
		VerifyLowering:                      VerifyLowering,
		MaxConditionalEliminationIterations: MaxConditionalEliminationIterations,
		MaxParallelCompilations:             MaxParallelCompilations,
		BarrierSet:                          BarrierSet,
		Arch:                                Arch,
	}
}

// Overlay decodes a YAML document on top of the options. Keys that are
// absent keep their current value.
func (self *Options) Overlay(doc []byte) error {
	if err := yaml.Unmarshal(doc, self); err != nil {
		return fmt.Errorf("gopt: parse options: %w", err)
	}
	return self.Validate()
}

// Load reads the default options and overlays the YAML file at path.
func Load(path string) (Options, error) {
	ret := GetDefaultOptions()
	buf, err := os.ReadFile(path)
	if err != nil {
		return ret, fmt.Errorf("gopt: read options: %w", err)
	}
	if err = ret.Overlay(buf); err != nil {
		return ret, err
	}
	return ret, nil
}
