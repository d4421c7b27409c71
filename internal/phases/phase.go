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

package phases

import (
    `fmt`
    `log/slog`

    `github.com/cloudwego/gopt/graph`
    `github.com/cloudwego/gopt/internal/arch/amd64`
    `github.com/cloudwego/gopt/internal/gc`
    `github.com/cloudwego/gopt/internal/loop`
    `github.com/cloudwego/gopt/internal/lowering`
    `github.com/cloudwego/gopt/internal/opts`
    `github.com/cloudwego/gopt/internal/state`
)

// Phase is one unit of the optimization pipeline. Implementations are
// comparable values, two phases are the same when they compare equal.
type Phase interface {
    Name() string
    NotApplicableTo(st *state.GraphState) *NotApplicable
    Run(g *graph.Graph, ctx *Context)
    UpdateGraphState(st *state.GraphState)
}

// Filter lets a phase skip graphs it has nothing to do on.
type Filter interface {
    ShouldApply(g *graph.Graph, ctx *Context) bool
}

// Obligation is implemented by phases that must run when the state says so.
type Obligation interface {
    MustApply(st *state.GraphState) bool
}

// LoopOptimizer is implemented by phases transforming loops. They require
// overflown counted loops to be disabled beforehand.
type LoopOptimizer interface {
    OptimizesLoops() bool
}

// Context holds the collaborators of one compilation.
type Context struct {
    Options   opts.Options
    Lowering  *lowering.Provider
    Barriers  gc.BarrierSet
    Addresses lowering.AddressLowering
    Loops     func(g *graph.Graph) *loop.Data
    Log       *slog.Logger
}

// NewContext builds the default collaborators selected by the options.
func NewContext(o opts.Options) (*Context, error) {
    bs, err := gc.ForName(o.BarrierSet)
    if err != nil {
        return nil, err
    }

    /* target addressing modes */
    var al lowering.AddressLowering
    switch o.Arch {
        case "amd64"   : al = amd64.NewAddressLowering()
        case "generic" : al = lowering.GenericAddressLowering{}
        default        : return nil, fmt.Errorf("gopt: unsupported architecture: %q", o.Arch)
    }

    /* everything else is target independent */
    return &Context {
        Options   : o,
        Lowering  : lowering.DefaultProvider(),
        Barriers  : bs,
        Addresses : al,
        Loops     : loop.Analyze,
        Log       : slog.Default(),
    }, nil
}

func (self *Context) logger() *slog.Logger {
    if self.Log == nil {
        return slog.Default()
    } else {
        return self.Log
    }
}

func (self *Context) loops(g *graph.Graph) *loop.Data {
    if self.Loops == nil {
        return loop.Analyze(g)
    } else {
        return self.Loops(g)
    }
}

// Apply runs p on g and records its effect on st. Applying an ineligible
// phase is a driver bug and aborts the compilation.
func Apply(p Phase, g *graph.Graph, st *state.GraphState, ctx *Context) {
    if r := p.NotApplicableTo(st); r != nil {
        graph.Fail(g, nil, "applying %s while not applicable: %s", p.Name(), r)
    }
    p.Run(g, ctx)
    p.UpdateGraphState(st)
}

func mustApply(p Phase, st *state.GraphState) bool {
    ob, ok := p.(Obligation)
    return ok && ob.MustApply(st)
}

func shouldApply(p Phase, g *graph.Graph, ctx *Context) bool {
    f, ok := p.(Filter)
    return !ok || f.ShouldApply(g, ctx)
}

func optimizesLoops(p Phase) bool {
    lo, ok := p.(LoopOptimizer)
    return ok && lo.OptimizesLoops()
}

type _Then struct {
    p    Phase
    post Phase
}

// Then composes p with a corrective post phase that runs right after it,
// within the same application.
func Then(p Phase, post Phase) Phase {
    return _Then{p: p, post: post}
}

func (self _Then) Name() string {
    return self.p.Name() + "+" + self.post.Name()
}

func (self _Then) NotApplicableTo(st *state.GraphState) *NotApplicable {
    return Any(self.p.NotApplicableTo(st), self.post.NotApplicableTo(st))
}

func (self _Then) ShouldApply(g *graph.Graph, ctx *Context) bool {
    return shouldApply(self.p, g, ctx)
}

func (self _Then) OptimizesLoops() bool {
    return optimizesLoops(self.p)
}

func (self _Then) Run(g *graph.Graph, ctx *Context) {
    self.p.Run(g, ctx)
    self.post.Run(g, ctx)
}

func (self _Then) UpdateGraphState(st *state.GraphState) {
    self.p.UpdateGraphState(st)
    self.post.UpdateGraphState(st)
}
