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
    `github.com/cloudwego/gopt/internal/state`
)

// DisableOverflownCountedLoops stops treating a loop as counted once its
// overflow speculation has failed. Graphs without a speculation log have no
// record of failed speculations and are left alone.
//
// It is never flag-gated and may run any number of times. It must run before
// loop optimizations whenever they are scheduled.
type DisableOverflownCountedLoops struct{}

func (DisableOverflownCountedLoops) Name() string {
    return "DisableOverflownCountedLoops"
}

func (DisableOverflownCountedLoops) NotApplicableTo(*state.GraphState) *NotApplicable {
    return nil
}

func (DisableOverflownCountedLoops) MustApply(st *state.GraphState) bool {
    return st.RequiresFutureStage(state.LoopOverflowsChecked)
}

func (DisableOverflownCountedLoops) ShouldApply(g *graph.Graph, _ *Context) bool {
    return g.HasLoops()
}

func (self DisableOverflownCountedLoops) Run(g *graph.Graph, ctx *Context) {
    sl := g.SpeculationLog()
    log := ctx.logger()

    /* no deoptimization was ever recorded */
    if sl == nil {
        return
    }

    /* check every loop not yet disabled */
    for _, lb := range g.NodesOf(graph.KindLoopBegin) {
        if lb.IsDeleted() || lb.Flags.Has(graph.FlagCountedDisabled) {
            continue
        }

        /* the overflow speculation of this loop is still good */
        sr := graph.SpeculationReason{Group: graph.SpeculateCountedLoopOverflow, Pos: lb.Pos}
        if sl.MaySpeculate(sr) {
            continue
        }

        /* never treat this loop as counted again */
        lb.Flags |= graph.FlagCountedDisabled
        lb.Changed()
        log.Debug("counted loop disabled", "graph", g.Name(), "loop", lb.ID(), "pos", lb.Pos.String())
    }
}

func (DisableOverflownCountedLoops) UpdateGraphState(st *state.GraphState) {
    st.SetAfterStage(state.LoopOverflowsChecked)
    st.RemoveRequirementToStage(state.LoopOverflowsChecked)
}
