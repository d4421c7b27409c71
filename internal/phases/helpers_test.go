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
    `io`
    `log/slog`
    `testing`

    `github.com/cloudwego/gopt/graph`
    `github.com/cloudwego/gopt/internal/gc`
    `github.com/cloudwego/gopt/internal/loop`
    `github.com/cloudwego/gopt/internal/lowering`
    `github.com/cloudwego/gopt/internal/opts`
    `github.com/cloudwego/gopt/internal/state`
    `github.com/davecgh/go-spew/spew`
    `github.com/oleiade/lane`
    `github.com/stretchr/testify/require`
)

func testContext() *Context {
    o := opts.GetDefaultOptions()
    o.GenLoopSafepoints = true
    o.VerifyLowering = true
    o.MaxConditionalEliminationIterations = 4
    return &Context {
        Options   : o,
        Lowering  : lowering.DefaultProvider(),
        Barriers  : gc.G1{},
        Addresses : lowering.GenericAddressLowering{},
        Loops     : loop.Analyze,
        Log       : slog.New(slog.NewTextHandler(io.Discard, nil)),
    }
}

func stateAfter(flags ...state.StageFlag) *state.GraphState {
    st := state.New()
    for _, f := range flags {
        st.SetAfterStage(f)
    }
    return st
}

func countOf(g *graph.Graph, kind graph.Kind) int {
    return len(g.NodesOf(kind))
}

func requireInvariantError(t *testing.T, fn func()) *graph.InvariantError {
    var ret *graph.InvariantError
    require.Panics(t, func() {
        defer func() {
            v := recover()
            ret, _ = v.(*graph.InvariantError)
            panic(v)
        }()
        fn()
    })
    require.NotNil(t, ret)
    return ret
}

func dump(g *graph.Graph) string {
    return spew.Sdump(g.String())
}

// requireScheduled checks that every fixed node comes after the fixed nodes
// its values are computed from, in control-flow order from the start.
func requireScheduled(t *testing.T, g *graph.Graph) {
    st := lane.NewStack()
    pos := make(map[*graph.Node]int)

    /* number the reachable fixed nodes */
    st.Push(g.Start())
    for !st.Empty() {
        n := st.Pop().(*graph.Node)
        if _, ok := pos[n]; ok {
            continue
        }
        pos[n] = len(pos)
        succ := n.Successors()
        for i := len(succ) - 1; i >= 0; i-- {
            if succ[i] != nil {
                st.Push(succ[i])
            }
        }
    }

    /* every definition precedes its use */
    for n, at := range pos {
        for _, d := range fixedDefs(n) {
            p, ok := pos[d]
            require.True(t, ok, "%s uses unreachable %s\n%s", n, d, dump(g))
            require.Less(t, p, at, "%s scheduled before its input %s\n%s", n, d, dump(g))
        }
    }
}

/* fixed nodes reachable through the value inputs of n, ignoring control edges and phis */
func fixedDefs(n *graph.Node) []*graph.Node {
    var ret []*graph.Node
    seen := make(map[*graph.Node]bool)

    /* merges take their ends as inputs */
    if n.Kind().IsMerge() {
        return nil
    }

    /* look through floating values */
    var walk func(v *graph.Node)
    walk = func(v *graph.Node) {
        if v == nil || seen[v] || v.Kind().IsAbstractEnd() || v.Kind().IsMerge() || v.Kind() == graph.KindPhi {
            return
        }
        seen[v] = true
        if v.Kind().IsFixed() {
            ret = append(ret, v)
            return
        }
        for _, u := range v.Inputs() {
            walk(u)
        }
    }
    for _, v := range n.Inputs() {
        walk(v)
    }
    return ret
}

type testLoop struct {
    begin *graph.Node
    phi   *graph.Node
    sw    *graph.Node
    body  *graph.Node
    end   *graph.Node
    exit  *graph.Node
}

/*
 * pred -> End -> LoopBegin -> If(phi < n)
 *     true  : Begin -> LoopEnd
 *     false : Begin -> LoopExit
 *
 * with phi = Phi(0, phi + 1). The body and the exit are left open.
 */
func buildLoop(g *graph.Graph, pred *graph.Node, n *graph.Node, pos graph.SourcePosition) testLoop {
    e0, le := g.Add(graph.KindEnd), g.Add(graph.KindLoopEnd)
    lb := g.Add(graph.KindLoopBegin, nil, e0, le)
    phi := g.Add(graph.KindPhi, lb, g.Constant(0), nil)
    phi.SetInput(2, g.Add(graph.KindAdd, phi, g.Constant(1)))
    phi.Stamp = graph.IntStamp(0, 1 << 31)
    sw := g.Add(graph.KindIf, g.Add(graph.KindIntegerLessThan, phi, n))
    bt, bf := g.Add(graph.KindBegin), g.Add(graph.KindBegin)
    lx := g.Add(graph.KindLoopExit, lb, nil)

    /* link everything */
    lb.Pos, le.Pos = pos, pos
    le.Flags |= graph.FlagCanSafepoint
    g.SetNext(pred, e0)
    g.SetNext(lb, sw)
    g.SetSuccessors(sw, bt, bf)
    g.SetNext(bt, le)
    g.SetNext(bf, lx)
    return testLoop { begin: lb, phi: phi, sw: sw, body: bt, end: le, exit: lx }
}
