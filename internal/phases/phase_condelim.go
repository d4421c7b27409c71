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
    `github.com/oleiade/lane`
    `golang.org/x/exp/maps`
)

type _Facts struct {
    conds  map[*graph.Node]bool
    consts map[*graph.Node]int64
}

func newFacts() *_Facts {
    return &_Facts {
        conds  : make(map[*graph.Node]bool),
        consts : make(map[*graph.Node]int64),
    }
}

func (self *_Facts) clone() *_Facts {
    return &_Facts {
        conds  : maps.Clone(self.conds),
        consts : maps.Clone(self.consts),
    }
}

// assume records that cond evaluates to v from now on.
func (self *_Facts) assume(cond *graph.Node, v bool) {
    self.conds[cond] = v
    if !v || cond.Kind() != graph.KindIntegerEquals {
        return
    }

    /* equality with a constant pins the other side */
    x, y := cond.Input(0), cond.Input(1)
    if c, ok := self.constant(y); ok {
        self.consts[x] = c
    } else if c, ok = self.constant(x); ok {
        self.consts[y] = c
    }
}

func (self *_Facts) constant(v *graph.Node) (int64, bool) {
    if c, ok := self.consts[v]; ok {
        return c, true
    } else if st := v.Stamp; st.Kind == graph.StampInt && !st.Empty && st.Lo == st.Hi {
        return st.Lo, true
    } else {
        return 0, false
    }
}

func (self *_Facts) stamp(v *graph.Node) (graph.Stamp, bool) {
    if c, ok := self.consts[v]; ok {
        return graph.ConstantStamp(c), true
    } else {
        return v.Stamp, v.Stamp.Kind == graph.StampInt && !v.Stamp.Empty
    }
}

// evaluate decides cond under the facts, if possible.
func (self *_Facts) evaluate(cond *graph.Node) (bool, bool) {
    if v, ok := self.conds[cond]; ok {
        return v, true
    }

    /* only binary comparisons can be decided */
    if !cond.Kind().IsLogic() {
        return false, false
    }

    /* comparisons of a value with itself */
    x, y := cond.Input(0), cond.Input(1)
    if x == y {
        switch cond.Kind() {
            case graph.KindIntegerEquals, graph.KindObjectEquals       : return true, true
            case graph.KindIntegerLessThan, graph.KindIntegerBelow     : return false, true
        }
    }

    /* everything else is decided on the value ranges */
    a, ok1 := self.stamp(x)
    b, ok2 := self.stamp(y)
    if !ok1 || !ok2 {
        return false, false
    }

    /* unsigned comparisons of non-negative values are signed ones */
    switch cond.Kind() {
        case graph.KindIntegerEquals   : return compareEquals(a, b)
        case graph.KindIntegerLessThan : return compareLess(a, b)
        case graph.KindIntegerBelow    : if a.Lo >= 0 && b.Lo >= 0 { return compareLess(a, b) }
    }
    return false, false
}

func compareEquals(a graph.Stamp, b graph.Stamp) (bool, bool) {
    switch {
        case a.Lo == a.Hi && b.Lo == b.Hi && a.Lo == b.Lo : return true, true
        case a.Hi < b.Lo || b.Hi < a.Lo                   : return false, true
        default                                           : return false, false
    }
}

func compareLess(a graph.Stamp, b graph.Stamp) (bool, bool) {
    switch {
        case a.Hi < b.Lo  : return true, true
        case a.Lo >= b.Hi : return false, true
        default           : return false, false
    }
}

// intersect keeps the facts known on every path.
func intersect(all []*_Facts) *_Facts {
    ret := all[0].clone()
    for _, f := range all[1:] {
        maps.DeleteFunc(ret.conds, func(k *graph.Node, v bool) bool { w, ok := f.conds[k]; return !ok || w != v })
        maps.DeleteFunc(ret.consts, func(k *graph.Node, v int64) bool { w, ok := f.consts[k]; return !ok || w != v })
    }
    return ret
}

type _Decision struct {
    sw    *graph.Node
    taken bool
}

type _Visit struct {
    n     *graph.Node
    facts *_Facts
}

// ConditionalElimination folds the branches whose condition is decided by
// the dominating branches and guards, or by the value ranges of its inputs.
// With FullSchedule facts also flow through merges, keeping what holds on
// every incoming path.
type ConditionalElimination struct {
    FullSchedule bool
}

func (ConditionalElimination) Name() string {
    return "ConditionalElimination"
}

func (self ConditionalElimination) NotApplicableTo(st *state.GraphState) *NotApplicable {
    return UnlessRunBefore(self, state.LowTierLowering, st)
}

func (self ConditionalElimination) Run(g *graph.Graph, _ *Context) {
    for _, d := range self.decide(g) {
        if d.sw.IsAlive() {
            g.FoldIf(d.sw, d.taken)
        }
    }
}

func (ConditionalElimination) UpdateGraphState(*state.GraphState) {}

func (self ConditionalElimination) decide(g *graph.Graph) []_Decision {
    var ret []_Decision
    st := lane.NewStack()
    done := make(map[*graph.Node]bool)
    ends := make(map[*graph.Node][]*_Facts)

    /* walk the control flow from the start */
    st.Push(_Visit{n: g.Start(), facts: newFacts()})
    for {
        for !st.Empty() {
            v := st.Pop().(_Visit)
            ret = self.walk(v.n, v.facts, st, ends, done, ret)
        }

        /* merges with unreachable ends, processed without any facts */
        m := pendingMerge(ends, done)
        if m == nil {
            break
        }
        done[m] = true
        st.Push(_Visit{n: m, facts: newFacts()})
    }
    return ret
}

func (self ConditionalElimination) walk(n *graph.Node, facts *_Facts, st *lane.Stack, ends map[*graph.Node][]*_Facts, done map[*graph.Node]bool, ret []_Decision) []_Decision {
    for ; n != nil; n = n.Next() {
        switch n.Kind() {
            case graph.KindFixedGuard: {
                facts.assume(n.Input(0), true)
            }

            /* decided branches only keep their live side */
            case graph.KindIf: {
                cond := n.Input(0)
                if v, ok := facts.evaluate(cond); ok {
                    ret = append(ret, _Decision{sw: n, taken: v})
                    if v {
                        st.Push(_Visit{n: n.TrueSuccessor(), facts: facts})
                    } else {
                        st.Push(_Visit{n: n.FalseSuccessor(), facts: facts})
                    }
                    return ret
                }

                /* both sides learn something */
                ff := facts.clone()
                ff.assume(cond, false)
                facts.assume(cond, true)
                st.Push(_Visit{n: n.FalseSuccessor(), facts: ff})
                st.Push(_Visit{n: n.TrueSuccessor(), facts: facts})
                return ret
            }

            /* forward ends join at their merge */
            case graph.KindEnd: {
                m := n.EndMerge()
                if m == nil || done[m] {
                    return ret
                }
                ends[m] = append(ends[m], facts)
                if m.Kind() == graph.KindLoopBegin || len(ends[m]) == len(m.Ends()) {
                    done[m] = true
                    st.Push(_Visit{n: m, facts: self.mergeFacts(ends[m])})
                }
                return ret
            }
        }
    }
    return ret
}

func (self ConditionalElimination) mergeFacts(all []*_Facts) *_Facts {
    if !self.FullSchedule {
        return newFacts()
    } else {
        return intersect(all)
    }
}

func pendingMerge(ends map[*graph.Node][]*_Facts, done map[*graph.Node]bool) *graph.Node {
    var ret *graph.Node
    for m := range ends {
        if !done[m] && (ret == nil || m.ID() < ret.ID()) {
            ret = m
        }
    }
    return ret
}

// IterativeConditionalElimination repeats conditional elimination while it
// keeps changing the graph, up to the configured number of rounds.
type IterativeConditionalElimination struct {
    FullSchedule bool
}

func (IterativeConditionalElimination) Name() string {
    return "IterativeConditionalElimination"
}

func (self IterativeConditionalElimination) NotApplicableTo(st *state.GraphState) *NotApplicable {
    return UnlessRunBefore(self, state.LowTierLowering, st)
}

func (self IterativeConditionalElimination) Run(g *graph.Graph, ctx *Context) {
    n := self.apply(g, ctx)
    ctx.logger().Debug("conditional elimination finished", "graph", g.Name(), "rounds", n)
}

func (self IterativeConditionalElimination) apply(g *graph.Graph, ctx *Context) int {
    i := 0
    ce := ConditionalElimination{FullSchedule: self.FullSchedule}

    /* stop at the fixed point or at the bound */
    for i < ctx.Options.MaxConditionalEliminationIterations {
        i++
        if !self.round(g, ctx, ce) {
            break
        }
    }
    return i
}

func (self IterativeConditionalElimination) round(g *graph.Graph, ctx *Context, ce ConditionalElimination) bool {
    cn := graph.NewChangedNodes()
    sc := g.Listen(cn)
    defer sc.Close()
    ce.Run(g, ctx)
    return cn.Len() != 0
}

func (IterativeConditionalElimination) UpdateGraphState(*state.GraphState) {}
