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

package loop

import (
    `sort`

    `github.com/cloudwego/gopt/graph`
    `github.com/oleiade/lane`
    `gonum.org/v1/gonum/graph/simple`
    `gonum.org/v1/gonum/graph/topo`
)

// Loop is one natural loop of the control-flow graph.
type Loop struct {
    Begin  *graph.Node
    Ends   []*graph.Node
    Exits  []*graph.Node
    Body   []*graph.Node
    Parent *Loop
    Depth  int
}

// Contains reports whether the fixed node n is inside the loop body.
func (self *Loop) Contains(n *graph.Node) bool {
    for _, v := range self.Body {
        if v == n {
            return true
        }
    }
    return false
}

// Data is the loop forest of a graph at the time it was computed. It must be
// recomputed after control-flow mutations.
type Data struct {
    loops []*Loop
    index map[*graph.Node]*Loop
}

// Loops returns every loop, outer loops first.
func (self *Data) Loops() []*Loop {
    return self.loops
}

// LoopOf returns the loop headed by the LoopBegin n.
func (self *Data) LoopOf(n *graph.Node) *Loop {
    return self.index[n]
}

// Innermost returns the innermost loop containing the fixed node n, or nil.
func (self *Data) Innermost(n *graph.Node) *Loop {
    var ret *Loop
    for _, lp := range self.loops {
        if lp.Contains(n) && (ret == nil || lp.Depth > ret.Depth) {
            ret = lp
        }
    }
    return ret
}

// Analyze computes the loop forest of g. Every strongly connected component
// of the control-flow graph must be headed by a LoopBegin, irreducible
// control flow is an invariant violation.
func Analyze(g *graph.Graph) *Data {
    cfg := simple.NewDirectedGraph()
    ids := make(map[int64]*graph.Node)

    /* build the control-flow graph, loop ends flow back into their header */
    for _, n := range g.Nodes() {
        if !n.Kind().IsFixed() {
            continue
        }
        ids[int64(n.ID())] = n
        addNode(cfg, n)
        for _, s := range n.Successors() {
            if s != nil && s != n {
                addNode(cfg, s)
                cfg.SetEdge(cfg.NewEdge(simple.Node(n.ID()), simple.Node(s.ID())))
            }
        }
    }

    /* every non-trivial component must contain a loop header */
    ret := &Data{index: make(map[*graph.Node]*Loop)}
    for _, scc := range topo.TarjanSCC(cfg) {
        if len(scc) < 2 {
            continue
        }
        var hdr []*graph.Node
        for _, v := range scc {
            if n := ids[v.ID()]; n.Kind() == graph.KindLoopBegin {
                hdr = append(hdr, n)
            }
        }
        if len(hdr) == 0 {
            nodes := make([]*graph.Node, 0, len(scc))
            for _, v := range scc {
                nodes = append(nodes, ids[v.ID()])
            }
            graph.Fail(g, nodes, "irreducible control flow with %d nodes", len(scc))
        }
        for _, n := range hdr {
            ret.index[n] = newLoop(n)
        }
    }

    /* nesting: the parent is the smallest other loop containing the header */
    for _, lp := range ret.index {
        for _, p := range ret.index {
            if p != lp && p.Contains(lp.Begin) && (lp.Parent == nil || len(p.Body) < len(lp.Parent.Body)) {
                lp.Parent = p
            }
        }
    }

    /* compute depths, then order outer loops first */
    for _, lp := range ret.index {
        for p := lp.Parent; p != nil; p = p.Parent {
            lp.Depth++
        }
        ret.loops = append(ret.loops, lp)
    }
    sort.Slice(ret.loops, func(i int, j int) bool {
        a, b := ret.loops[i], ret.loops[j]
        return a.Depth < b.Depth || (a.Depth == b.Depth && a.Begin.ID() < b.Begin.ID())
    })
    return ret
}

func addNode(cfg *simple.DirectedGraph, n *graph.Node) {
    if cfg.Node(int64(n.ID())) == nil {
        cfg.AddNode(simple.Node(n.ID()))
    }
}

func newLoop(hdr *graph.Node) *Loop {
    st := lane.NewStack()
    vis := map[*graph.Node]bool { hdr: true }
    ret := &Loop {
        Begin : hdr,
        Ends  : hdr.LoopEnds(),
        Exits : hdr.LoopExits(),
        Body  : []*graph.Node { hdr },
    }

    /* walk backwards from the loop ends up to the header */
    for _, e := range ret.Ends {
        st.Push(e)
    }
    for !st.Empty() {
        n := st.Pop().(*graph.Node)
        if vis[n] {
            continue
        }
        vis[n] = true
        ret.Body = append(ret.Body, n)
        for _, p := range predecessors(n) {
            if !vis[p] {
                st.Push(p)
            }
        }
    }
    return ret
}

func predecessors(n *graph.Node) []*graph.Node {
    switch n.Kind() {
        case graph.KindMerge     : return n.Ends()
        case graph.KindLoopBegin : return append(n.Ends(), n.LoopEnds()...)
        default                  : if p := n.Pred(); p != nil { return []*graph.Node { p } } else { return nil }
    }
}
