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

package gopt

import (
	"fmt"

	"github.com/cloudwego/gopt/internal/opts"
)

// Option is the property setter function for opts.Options.
type Option func(*opts.Options)

// WithLoopSafepoints controls whether safepoint polls are inserted on loop
// back edges.
//
// Disabling this option makes tight loops faster, at the cost of delaying
// every thread waiting for this one to reach a safepoint.
//
// The default value of this option is "true".
func WithLoopSafepoints(v bool) Option {
	return func(o *opts.Options) { o.GenLoopSafepoints = v }
}

// WithLoweringVerification controls whether every lowering round is checked
// for idempotence by lowering the graph a second time.
//
// The default value of this option is "true".
func WithLoweringVerification(v bool) Option {
	return func(o *opts.Options) { o.VerifyLowering = v }
}

// WithMaxConditionalEliminationIterations bounds the number of rounds of the
// iterative conditional elimination.
//
// More rounds find more branches to fold, at the cost of a longer compilation
// time.
//
// The default value of this option is "4".
func WithMaxConditionalEliminationIterations(n int) Option {
	if n < 1 {
		panic(fmt.Sprintf("gopt: invalid conditional elimination iteration bound: %d", n))
	} else {
		return func(o *opts.Options) { o.MaxConditionalEliminationIterations = n }
	}
}

// WithMaxParallelCompilations sets how many graphs OptimizeAll compiles at
// the same time.
//
// The default value of this option is "16".
func WithMaxParallelCompilations(n int) Option {
	if n < 1 {
		panic(fmt.Sprintf("gopt: invalid parallel compilation limit: %d", n))
	} else {
		return func(o *opts.Options) { o.MaxParallelCompilations = n }
	}
}

// WithBarrierSet selects the write barriers of the garbage collector, one of
// "none", "cardtable" or "g1".
//
// The default value of this option is "g1".
func WithBarrierSet(name string) Option {
	return func(o *opts.Options) { o.BarrierSet = name }
}

// WithArch selects the addressing modes of the target, one of "amd64" or
// "generic".
//
// The default value of this option is "amd64".
func WithArch(name string) Option {
	return func(o *opts.Options) { o.Arch = name }
}

// WithConfigFile replaces all the options with the YAML file at path, read on
// top of the defaults.
func WithConfigFile(path string) (Option, error) {
	v, err := opts.Load(path)
	if err != nil {
		return nil, err
	}
	return func(o *opts.Options) { *o = v }, nil
}

// SetMaxConditionalEliminationIterations sets the default iteration bound of
// the conditional elimination for all compilations from now on.
//
// This value can also be configured with the `GOPT_CE_MAX_ITERATIONS`
// environment variable.
//
// Returns the old opts.MaxConditionalEliminationIterations value.
func SetMaxConditionalEliminationIterations(n int) int {
	n, opts.MaxConditionalEliminationIterations = opts.MaxConditionalEliminationIterations, n
	return n
}

// SetBarrierSet sets the default barrier set for all compilations from now on.
//
// This value can also be configured with the `GOPT_BARRIER_SET` environment
// variable.
//
// Returns the old opts.BarrierSet value.
func SetBarrierSet(name string) string {
	name, opts.BarrierSet = opts.BarrierSet, name
	return name
}
