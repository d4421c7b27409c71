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
	"sync"

	"github.com/bytedance/gopkg/util/gopool"
	"github.com/cloudwego/gopt/graph"
	"github.com/cloudwego/gopt/internal/opts"
	"github.com/cloudwego/gopt/internal/phases"
	"github.com/cloudwego/gopt/internal/state"
)

func newContext(options []Option) (*phases.Context, error) {
	o := opts.GetDefaultOptions()
	for _, fn := range options {
		fn(&o)
	}
	if err := o.Validate(); err != nil {
		return nil, err
	}
	return phases.NewContext(o)
}

// Optimize runs g through the high, mid and low tiers. The graph is left
// fully lowered on success. A broken graph invariant aborts the compilation
// with an *InvariantError, leaving g in an unspecified state.
func Optimize(g *graph.Graph, options ...Option) error {
	ctx, err := newContext(options)
	if err != nil {
		return err
	}
	return phases.Optimize(g, state.New(), ctx, phases.DefaultSuites()...)
}

// OptimizeAll compiles independent graphs concurrently, returning the error
// of each compilation at the index of its graph.
func OptimizeAll(gs []*graph.Graph, options ...Option) ([]error, error) {
	ctx, err := newContext(options)
	if err != nil {
		return nil, err
	}

	/* every compilation owns its graph and state, the context is shared */
	wg := sync.WaitGroup{}
	ret := make([]error, len(gs))
	pool := gopool.NewPool("gopt", int32(ctx.Options.MaxParallelCompilations), gopool.NewConfig())

	/* start all the compilations */
	for i, g := range gs {
		if g == nil {
			ret[i] = fmt.Errorf("gopt: nil graph at index %d", i)
			continue
		}

		/* each graph is compiled by its own task */
		i, g := i, g
		wg.Add(1)
		pool.Go(func() {
			defer wg.Done()
			defer func() {
				if v := recover(); v != nil {
					ret[i] = fmt.Errorf("gopt: panic while compiling graph %d: %v", i, v)
				}
			}()
			ret[i] = phases.Optimize(g, state.New(), ctx, phases.DefaultSuites()...)
		})
	}

	/* wait for them to finish */
	wg.Wait()
	return ret, nil
}
