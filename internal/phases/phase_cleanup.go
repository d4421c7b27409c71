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

// BoxNodeIdentity marks boxes compared by reference against another box of
// the same value, so that they are never merged or rematerialized.
type BoxNodeIdentity struct{}

func (BoxNodeIdentity) Name() string {
    return "BoxNodeIdentity"
}

func (self BoxNodeIdentity) NotApplicableTo(st *state.GraphState) *NotApplicable {
    return Any(
        IfApplied(self, state.BoxNodeIdentity, st),
        UnlessRunBefore(self, state.FinalPartialEscape, st),
    )
}

func (BoxNodeIdentity) ShouldApply(g *graph.Graph, _ *Context) bool {
    return g.Has(graph.KindBox)
}

func (BoxNodeIdentity) Run(g *graph.Graph, _ *Context) {
    for _, box := range g.NodesOf(graph.KindBox) {
        if box.Flags.Has(graph.FlagIdentitySensitive) || box.Flags.Has(graph.FlagTrusted) {
            continue
        }

        /* look for reference comparisons against a box of the same value */
        for _, eq := range box.UsagesOf(graph.KindObjectEquals) {
            other := eq.Input(0)
            if other == box {
                other = eq.Input(1)
            }
            if other != box && other.Kind() == graph.KindBox && other.Input(0) == box.Input(0) {
                markIdentity(box)
                markIdentity(other)
            }
        }
    }
}

func (BoxNodeIdentity) UpdateGraphState(st *state.GraphState) {
    st.SetAfterStage(state.BoxNodeIdentity)
}

func markIdentity(box *graph.Node) {
    if !box.Flags.Has(graph.FlagIdentitySensitive) {
        box.Flags |= graph.FlagIdentitySensitive
        box.Changed()
    }
}

// RemoveValueProxies drops the value proxies at loop exits, together with
// the frame states of exits on exception paths.
type RemoveValueProxies struct{}

func (RemoveValueProxies) Name() string {
    return "RemoveValueProxies"
}

func (self RemoveValueProxies) NotApplicableTo(st *state.GraphState) *NotApplicable {
    return IfApplied(self, state.ValueProxyRemoval, st)
}

func (RemoveValueProxies) Run(g *graph.Graph, _ *Context) {
    for _, p := range g.NodesOf(graph.KindValueProxy) {
        if p.IsAlive() {
            p.ReplaceAtUsages(p.Input(0))
            g.KillWithUnusedFloatingInputs(p)
        }
    }

    /* exception paths must never be duplicated by loop transformations */
    for _, lx := range g.NodesOf(graph.KindLoopExit) {
        if fs := lx.Input(1); lx.IsAlive() && fs != nil && fs.Kind() == graph.KindFrameState && fs.Value == graph.BCIExceptionHandler {
            lx.SetInput(1, nil)
            g.KillIfUnused(fs)
        }
    }
}

func (RemoveValueProxies) UpdateGraphState(st *state.GraphState) {
    st.SetAfterStage(state.ValueProxyRemoval)
    if st.CanWeakenFrameStateVerification(state.VerifyAllExceptLoopExit) {
        st.WeakenFrameStateVerification(state.VerifyAllExceptLoopExit)
    }
}

// RemoveOpaqueValues replaces the nodes hiding values from constant folding
// with the values themselves.
type RemoveOpaqueValues struct{}

func (RemoveOpaqueValues) Name() string {
    return "RemoveOpaqueValues"
}

func (self RemoveOpaqueValues) NotApplicableTo(st *state.GraphState) *NotApplicable {
    return Any(
        IfApplied(self, state.RemoveOpaqueValues, st),
        UnlessRunAfter(self, state.LowTierLowering, st),
    )
}

func (RemoveOpaqueValues) ShouldApply(g *graph.Graph, _ *Context) bool {
    return g.Has(graph.KindOpaque)
}

func (RemoveOpaqueValues) Run(g *graph.Graph, _ *Context) {
    for _, n := range g.NodesOf(graph.KindOpaque) {
        if n.IsAlive() {
            n.ReplaceAtUsages(n.Input(0))
            g.KillWithUnusedFloatingInputs(n)
        }
    }
}

func (RemoveOpaqueValues) UpdateGraphState(st *state.GraphState) {
    st.SetAfterStage(state.RemoveOpaqueValues)
}

// RemoveRedundantPis drops type refinements that are no longer needed once
// reads are fixed. Pis whose stamp is incompatible with their input are left
// alone, they only show up in unreachable code.
type RemoveRedundantPis struct{}

func (RemoveRedundantPis) Name() string {
    return "RemoveRedundantPis"
}

func (self RemoveRedundantPis) NotApplicableTo(st *state.GraphState) *NotApplicable {
    return UnlessRunAfter(self, state.FixedReads, st)
}

func (RemoveRedundantPis) ShouldApply(g *graph.Graph, _ *Context) bool {
    return !g.IsSubstitution() && g.Has(graph.KindPi)
}

func (RemoveRedundantPis) Run(g *graph.Graph, _ *Context) {
    for _, pi := range g.NodesOf(graph.KindPi) {
        if v := pi.Input(0); pi.IsAlive() && pi.Stamp.IsCompatible(v.Stamp) {
            pi.ReplaceAtUsages(v)
            g.KillWithUnusedFloatingInputs(pi)
        }
    }
}

func (RemoveRedundantPis) UpdateGraphState(*state.GraphState) {}
