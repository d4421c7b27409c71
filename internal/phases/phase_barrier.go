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
    `github.com/cloudwego/gopt/graph`
    `github.com/cloudwego/gopt/internal/gc`
    `github.com/cloudwego/gopt/internal/state`
)

// WriteBarrierAddition lets the collector's barrier set instrument memory
// accesses at one point of the pipeline.
type WriteBarrierAddition struct {
    Stage gc.Stage
}

func (self WriteBarrierAddition) Name() string {
    return "WriteBarrierAddition(" + self.Stage.String() + ")"
}

func (self WriteBarrierAddition) NotApplicableTo(st *state.GraphState) *NotApplicable {
    switch self.Stage {
        case gc.StageMidTier: {
            return Any(
                IfApplied(self, state.MidTierBarrierAddition, st),
                UnlessRunAfter(self, state.MidTierLowering, st),
            )
        }

        /* low-tier barriers are lowered by the low-tier lowering */
        case gc.StageLowTier: {
            return Any(
                IfApplied(self, state.LowTierBarrierAddition, st),
                UnlessRunAfter(self, state.FixedReads, st),
                UnlessRunBefore(self, state.LowTierLowering, st),
            )
        }

        default: {
            panic("invalid barrier stage: " + self.Stage.String())
        }
    }
}

func (WriteBarrierAddition) ShouldApply(_ *graph.Graph, ctx *Context) bool {
    return ctx.Barriers.HasWriteBarrier()
}

func (self WriteBarrierAddition) Run(g *graph.Graph, ctx *Context) {
    bs := ctx.Barriers
    bc := gc.BarrierContext{Stage: self.Stage}

    /* not this stage */
    if !bs.ShouldAddBarriersInStage(self.Stage) {
        return
    }

    /* every memory access may need a barrier */
    for _, n := range g.Nodes() {
        if k := n.Kind(); !n.IsDeleted() && (k == graph.KindRead || k == graph.KindWrite) {
            bs.AddBarriers(n, bc)
        }
    }
}

func (self WriteBarrierAddition) UpdateGraphState(st *state.GraphState) {
    if self.Stage == gc.StageMidTier {
        st.SetAfterStage(state.MidTierBarrierAddition)
    } else {
        st.SetAfterStage(state.LowTierBarrierAddition)
    }
}

// LoopSafepointInsertion polls for a safepoint on every loop back edge that
// is allowed to.
type LoopSafepointInsertion struct{}

func (LoopSafepointInsertion) Name() string {
    return "LoopSafepointInsertion"
}

func (self LoopSafepointInsertion) NotApplicableTo(st *state.GraphState) *NotApplicable {
    return Any(
        IfApplied(self, state.SafepointsInsertion, st),
        UnlessRunBefore(self, state.MidTierLowering, st),
    )
}

func (LoopSafepointInsertion) ShouldApply(g *graph.Graph, _ *Context) bool {
    return g.HasLoops()
}

func (LoopSafepointInsertion) Run(g *graph.Graph, ctx *Context) {
    if !ctx.Options.GenLoopSafepoints {
        return
    }

    /* one poll right before every back edge */
    for _, lp := range ctx.loops(g).Loops() {
        for _, le := range lp.Ends {
            if le.Flags.Has(graph.FlagCanSafepoint) && le.Pred().Kind() != graph.KindSafepoint {
                sp := g.Add(graph.KindSafepoint)
                sp.Pos = le.Pos
                g.AddBeforeFixed(le, sp)
            }
        }
    }
}

func (LoopSafepointInsertion) UpdateGraphState(st *state.GraphState) {
    st.SetAfterStage(state.SafepointsInsertion)
}
