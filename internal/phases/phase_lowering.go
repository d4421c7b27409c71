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
    `github.com/cloudwego/gopt/internal/lowering`
    `github.com/cloudwego/gopt/internal/state`
    `github.com/oleiade/lane`
)

// Lowering replaces the nodes handled by the stage's lowering callbacks with
// lower-level nodes, until none is left. Nodes created by a callback are
// lowered within the same run.
type Lowering struct {
    Stage lowering.Stage
}

func (self Lowering) Name() string {
    return self.Stage.String() + "Lowering"
}

func (self Lowering) flag() state.StageFlag {
    switch self.Stage {
        case lowering.StageHigh : return state.HighTierLowering
        case lowering.StageMid  : return state.MidTierLowering
        case lowering.StageLow  : return state.LowTierLowering
        default                 : panic("invalid lowering stage: " + self.Stage.String())
    }
}

func (self Lowering) NotApplicableTo(st *state.GraphState) *NotApplicable {
    switch self.Stage {
        case lowering.StageMid : return Any(IfApplied(self, state.MidTierLowering, st), UnlessRunAfter(self, state.HighTierLowering, st))
        case lowering.StageLow : return Any(IfApplied(self, state.LowTierLowering, st), UnlessRunAfter(self, state.MidTierLowering, st))
        default                : return IfApplied(self, self.flag(), st)
    }
}

func (self Lowering) Run(g *graph.Graph, ctx *Context) {
    lp := ctx.Lowering
    q := lane.NewQueue()
    tool := &lowering.Tool {
        Graph  : g,
        Stage  : self.Stage,
        Layout : lp.Layout,
    }

    /* everything lowerable right now */
    for _, n := range lp.Lowerable(self.Stage, g) {
        q.Enqueue(n)
    }

    /* lower, then lower whatever the callback produced */
    for !q.Empty() {
        n := q.Dequeue().(*graph.Node)
        if !lp.IsLowerable(self.Stage, n) {
            continue
        }
        m := g.Mark()
        lp.Lower(n, tool)
        for _, v := range g.NewNodesSince(m) {
            if lp.IsLowerable(self.Stage, v) {
                q.Enqueue(v)
            }
        }
    }

    /* a second round must not change anything */
    if ctx.Options.VerifyLowering {
        self.verify(g, lp, tool)
    }

    /* nothing may be left behind */
    if rem := lp.Lowerable(self.Stage, g); len(rem) != 0 {
        graph.Fail(g, rem, "%s left %d nodes unlowered", self.Name(), len(rem))
    }
}

func (self Lowering) verify(g *graph.Graph, lp *lowering.Provider, tool *lowering.Tool) {
    m := g.Mark()
    for _, n := range lp.Handled(self.Stage, g) {
        if n.IsAlive() {
            lp.Lower(n, tool)
        }
    }
    if nn := g.NewNodesSince(m); len(nn) != 0 {
        graph.FailMark(g, m, g.Mark(), nn, "%s is not idempotent: %d new nodes after a verification round", self.Name(), len(nn))
    }
}

func (self Lowering) UpdateGraphState(st *state.GraphState) {
    st.SetAfterStage(self.flag())
    if self.Stage == lowering.StageMid {
        st.SetAfterStage(state.GuardLowering)
    }
}

// AddressLowering turns generic addresses into the addressing modes of the
// target.
type AddressLowering struct{}

func (AddressLowering) Name() string {
    return "AddressLowering"
}

func (self AddressLowering) NotApplicableTo(st *state.GraphState) *NotApplicable {
    return Any(
        IfApplied(self, state.AddressLowering, st),
        UnlessRunAfter(self, state.LowTierLowering, st),
    )
}

func (AddressLowering) Run(g *graph.Graph, ctx *Context) {
    al := ctx.Addresses
    al.PreProcess(g)

    /* lower every address, dropping what the new form no longer needs */
    for _, n := range g.NodesOf(graph.KindOffsetAddress) {
        if n.IsDeleted() {
            continue
        }
        ret := al.Lower(n.Input(0), n.Input(1))
        if ret != n {
            n.ReplaceAtUsages(ret)
            g.KillWithUnusedFloatingInputs(n)
        }
        al.PostProcess(ret)
    }
}

func (AddressLowering) UpdateGraphState(st *state.GraphState) {
    st.SetAfterStage(state.AddressLowering)
}

// FixReads pins floating reads into the control flow, right after their
// anchors.
type FixReads struct{}

func (FixReads) Name() string {
    return "FixReads"
}

func (self FixReads) NotApplicableTo(st *state.GraphState) *NotApplicable {
    return Any(
        IfApplied(self, state.FixedReads, st),
        UnlessRunAfter(self, state.MidTierLowering, st),
    )
}

func (FixReads) Run(g *graph.Graph, _ *Context) {
    fx := _ReadFixer {
        g    : g,
        last : make(map[*graph.Node]*graph.Node),
        seen : make(map[*graph.Node]bool),
    }
    for _, fr := range g.NodesOf(graph.KindFloatingRead) {
        fx.fix(fr)
    }
}

type _ReadFixer struct {
    g    *graph.Graph
    last map[*graph.Node]*graph.Node
    seen map[*graph.Node]bool
}

// fix pins fr after every read its address depends on. Reads sharing an
// anchor are pinned in the order they are fixed.
func (self *_ReadFixer) fix(fr *graph.Node) {
    if self.seen[fr] {
        return
    }

    /* the reads feeding the address go first */
    self.seen[fr] = true
    self.visit(fr.Input(0))

    /* reads must be anchored on a fixed node with a single successor */
    at := fr.Input(1)
    if at == nil || !at.Kind().IsFixed() || at.Kind().IsSplit() || at.Kind().IsTerminator() {
        graph.Fail(self.g, []*graph.Node { fr }, "floating read %s has no valid anchor", fr)
    }

    /* after the anchor, or after the last read pinned there */
    pos := self.last[at]
    if pos == nil {
        pos = at
    }

    /* replace with a fixed read */
    rd := self.g.Add(graph.KindRead, fr.Input(0))
    rd.Pos = fr.Pos
    rd.Stamp = fr.Stamp
    self.g.AddAfterFixed(pos, rd)
    self.last[at] = rd
    fr.ReplaceAtUsages(rd)
    self.g.KillWithUnusedFloatingInputs(fr)
}

func (self *_ReadFixer) visit(n *graph.Node) {
    if n == nil || self.seen[n] || n.Kind().IsFixed() {
        return
    }

    /* another read, pin it first */
    if n.Kind() == graph.KindFloatingRead {
        self.fix(n)
        return
    }

    /* floating arithmetic, look through its inputs */
    self.seen[n] = true
    for _, v := range n.Inputs() {
        self.visit(v)
    }
}

func (FixReads) UpdateGraphState(st *state.GraphState) {
    st.SetAfterStage(state.FixedReads)
}
