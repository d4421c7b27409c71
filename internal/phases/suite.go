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
    `reflect`
    `sync/atomic`

    `github.com/cloudwego/gopt/graph`
    `github.com/cloudwego/gopt/internal/gc`
    `github.com/cloudwego/gopt/internal/lowering`
    `github.com/cloudwego/gopt/internal/state`
)

var (
    AppliedCount  uint64
    SkippedCount  uint64
    CompiledCount uint64
    FailedCount   uint64
)

// Suite is an ordered list of distinct phases.
type Suite struct {
    name   string
    phases []Phase
}

// NewSuite creates a suite, dropping phases already present. Phases are
// compared with ==, phases of non-comparable types are never deduplicated.
func NewSuite(name string, phases ...Phase) *Suite {
    ret := &Suite{name: name}
    for _, p := range phases {
        ret.Append(p)
    }
    return ret
}

func (self *Suite) Name() string {
    return self.name
}

// Phases returns the phases in execution order.
func (self *Suite) Phases() []Phase {
    return append([]Phase(nil), self.phases...)
}

// Append adds p at the end of the suite, unless it is already there.
func (self *Suite) Append(p Phase) bool {
    for _, v := range self.phases {
        if samePhase(v, p) {
            return false
        }
    }
    self.phases = append(self.phases, p)
    return true
}

func samePhase(a Phase, b Phase) bool {
    ta := reflect.TypeOf(a)
    return ta == reflect.TypeOf(b) && ta.Comparable() && a == b
}

func (self *Suite) hasLoopOptimizer() bool {
    for _, p := range self.phases {
        if optimizesLoops(p) {
            return true
        }
    }
    return false
}

// Apply runs every eligible phase of the suite on g, in order.
func (self *Suite) Apply(g *graph.Graph, st *state.GraphState, ctx *Context) {
    log := ctx.logger().With("suite", self.name, "graph", g.Name())

    /* loop optimizations need the overflow check first */
    if self.hasLoopOptimizer() {
        st.AddFutureStageRequirement(state.LoopOverflowsChecked)
    }

    /* run the phases */
    for _, p := range self.phases {
        must := mustApply(p, st)
        name := p.Name()

        /* ineligible phases are skipped, unless they are obligatory */
        if r := p.NotApplicableTo(st); r != nil {
            if must {
                graph.Fail(g, nil, "%s is required but not applicable: %s", name, r)
            }
            log.Debug("phase skipped", "phase", name, "reason", r.String())
            atomic.AddUint64(&SkippedCount, 1)
            continue
        }

        /* nothing to do on this graph */
        if !must && !shouldApply(p, g, ctx) {
            log.Debug("phase skipped", "phase", name, "reason", "nothing to do")
            atomic.AddUint64(&SkippedCount, 1)
            continue
        }

        /* loop phases must not see overflown counted loops */
        if optimizesLoops(p) && st.RequiresFutureStage(state.LoopOverflowsChecked) {
            graph.Fail(g, nil, "%s optimizes loops before %s", name, state.LoopOverflowsChecked)
        }

        /* apply the phase */
        m := g.Mark()
        Apply(p, g, st, ctx)
        atomic.AddUint64(&AppliedCount, 1)
        log.Debug("phase applied", "phase", name, "changed", !m.IsCurrent(), "nodes", g.NodeCount())
    }
}

// HighTier is the default high tier.
func HighTier() *Suite {
    return NewSuite("HighTier",
        BoxNodeIdentity{},
        DisableOverflownCountedLoops{},
        IterativeConditionalElimination{FullSchedule: true},
        Lowering{Stage: lowering.StageHigh},
    )
}

// MidTier is the default mid tier.
func MidTier() *Suite {
    return NewSuite("MidTier",
        RemoveValueProxies{},
        LoopSafepointInsertion{},
        Lowering{Stage: lowering.StageMid},
        WriteBarrierAddition{Stage: gc.StageMidTier},
    )
}

// LowTier is the default low tier.
func LowTier() *Suite {
    return NewSuite("LowTier",
        FixReads{},
        WriteBarrierAddition{Stage: gc.StageLowTier},
        Lowering{Stage: lowering.StageLow},
        RemoveRedundantPis{},
        AddressLowering{},
        RemoveOpaqueValues{},
    )
}

// DefaultSuites returns the tiers in pipeline order.
func DefaultSuites() []*Suite {
    return []*Suite {
        HighTier(),
        MidTier(),
        LowTier(),
    }
}

// Optimize runs the suites on g. Invariant violations abort the compilation
// and are returned as *graph.InvariantError.
func Optimize(g *graph.Graph, st *state.GraphState, ctx *Context, suites ...*Suite) (err error) {
    defer func() {
        if v := recover(); v != nil {
            if ie, ok := v.(*graph.InvariantError); ok {
                err = ie
                atomic.AddUint64(&FailedCount, 1)
            } else {
                panic(v)
            }
        }
    }()

    /* run all the tiers */
    for _, s := range suites {
        s.Apply(g, st, ctx)
    }

    /* the compilation succeeded */
    atomic.AddUint64(&CompiledCount, 1)
    return nil
}
