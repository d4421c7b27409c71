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

package graph

import (
    `github.com/oleiade/lane`
)

// SetNext links b as the control successor of a. A nil b unlinks the
// current successor.
func (self *Graph) SetNext(a *Node, b *Node) {
    if a.kind.IsSplit() || a.kind.IsTerminator() {
        Fail(self, []*Node { a }, "%s cannot have a next node", a.kind)
    }

    /* detach the current successor */
    if a.next != nil {
        a.next.pred = nil
        self.emit(NodeChanged, a.next)
    }

    /* link the new one */
    if a.next = b; b != nil {
        if b.pred != nil {
            Fail(self, []*Node { a, b }, "%s already has a predecessor", b)
        }
        b.pred = a
        self.emit(NodeChanged, b)
    }

    /* notify the predecessor */
    self.emit(NodeChanged, a)
}

// SetSuccessors links both branches of a split node.
func (self *Graph) SetSuccessors(n *Node, t *Node, f *Node) {
    if !n.kind.IsSplit() {
        Fail(self, []*Node { n }, "%s is not a split", n.kind)
    }

    /* link both branches */
    for i, v := range [2]*Node { t, f } {
        if n.succs[i] != nil {
            n.succs[i].pred = nil
        }
        if n.succs[i] = v; v != nil {
            v.pred = n
        }
    }

    /* notify the split */
    self.emit(NodeChanged, n)
}

// Chain links the fixed nodes one after another.
func (self *Graph) Chain(nodes ...*Node) {
    for i := 1; i < len(nodes); i++ {
        self.SetNext(nodes[i - 1], nodes[i])
    }
}

// ReplaceSuccessor makes nv the successor of pred in the slot holding old.
func (self *Graph) ReplaceSuccessor(pred *Node, old *Node, nv *Node) {
    switch {
        case pred.kind.IsSplit() && pred.succs[0] == old: pred.succs[0] = nv
        case pred.kind.IsSplit() && pred.succs[1] == old: pred.succs[1] = nv
        case pred.next == old                           : pred.next = nv
        default                                         : Fail(self, []*Node { pred, old }, "%s is not a successor of %s", old, pred)
    }

    /* update the predecessor links */
    if old != nil {
        old.pred = nil
        self.emit(NodeChanged, old)
    }
    if nv != nil {
        nv.pred = pred
        self.emit(NodeChanged, nv)
    }

    /* notify the predecessor */
    self.emit(NodeChanged, pred)
}

// AddBeforeFixed inserts the unlinked fixed node n right before at.
func (self *Graph) AddBeforeFixed(at *Node, n *Node) {
    if at.pred == nil {
        Fail(self, []*Node { at, n }, "cannot insert before %s without a predecessor", at)
    }
    self.ReplaceSuccessor(at.pred, at, n)
    self.SetNext(n, at)
}

// AddAfterFixed inserts the unlinked fixed node n right after at.
func (self *Graph) AddAfterFixed(at *Node, n *Node) {
    next := at.next
    self.SetNext(at, nil)
    self.SetNext(n, next)
    self.SetNext(at, n)
}

// Unlink removes the fixed node n from the control chain, connecting its
// predecessor to its successor.
func (self *Graph) Unlink(n *Node) {
    pred, next := n.pred, n.next
    if next != nil {
        self.SetNext(n, nil)
    }
    if pred != nil {
        self.ReplaceSuccessor(pred, n, next)
    }
}

// RemoveFixed unlinks and deletes the unused fixed node n.
func (self *Graph) RemoveFixed(n *Node) {
    self.Unlink(n)
    n.SafeDelete()
}

// ReplaceFixedWithFloating replaces the usages of n with v and removes n.
// Nodes anchored at n move up to its predecessor.
func (self *Graph) ReplaceFixedWithFloating(n *Node, v *Node) {
    for _, u := range n.Usages() {
        if (u.kind == KindFloatingRead || u.kind == KindPi) && u.inputs[1] == n {
            u.SetInput(1, n.pred)
        }
    }
    n.ReplaceAtUsages(v)
    self.RemoveFixed(n)
}

// ReplaceFixedWithFixed puts the unlinked fixed node v in place of n.
func (self *Graph) ReplaceFixedWithFixed(n *Node, v *Node) {
    n.ReplaceAtUsages(v)
    self.AddBeforeFixed(n, v)
    self.RemoveFixed(n)
}

// KillWithUnusedFloatingInputs deletes the unused node n, then every floating
// input that became unused because of it.
func (self *Graph) KillWithUnusedFloatingInputs(n *Node) {
    q := lane.NewQueue()
    q.Enqueue(n)

    /* breadth-first over the inputs */
    for !q.Empty() {
        p := q.Dequeue().(*Node)
        ins := append([]*Node(nil), p.inputs...)

        /* already deleted or still in use */
        if p.dead || len(p.usages) != 0 {
            continue
        }

        /* only the root may be fixed, and it must be unlinked */
        if p != n && p.kind.IsFixed() {
            continue
        }

        /* drop the node */
        p.SafeDelete()

        /* check every input that might have become unused */
        for _, v := range ins {
            if v != nil && !v.dead && !v.kind.IsFixed() && v.kind != KindParameter && len(v.usages) == 0 {
                q.Enqueue(v)
            }
        }
    }
}

// KillIfUnused deletes the floating node n if nothing uses it anymore.
func (self *Graph) KillIfUnused(n *Node) {
    if n != nil && !n.dead && !n.kind.IsFixed() && n.kind != KindParameter && len(n.usages) == 0 {
        self.KillWithUnusedFloatingInputs(n)
    }
}

// SimplifyBegin removes a Begin that no longer follows a split.
func (self *Graph) SimplifyBegin(n *Node) {
    if n.dead || n.kind != KindBegin || len(n.usages) != 0 {
        return
    }
    if n.pred != nil && !n.pred.kind.IsSplit() {
        self.RemoveFixed(n)
    }
}

// FoldIf replaces the split n by one of its branches and kills the other.
func (self *Graph) FoldIf(n *Node, taken bool) {
    live, dead := n.succs[0], n.succs[1]
    if !taken {
        live, dead = dead, live
    }

    /* detach both branches and the condition */
    cond := n.inputs[0]
    self.SetSuccessors(n, nil, nil)
    self.ReplaceSuccessor(n.pred, n, live)
    n.SafeDelete()
    self.KillIfUnused(cond)

    /* remove the dead branch, then tidy the surviving one */
    self.KillCFG(dead)
    self.SimplifyBegin(live)
}

// KillCFG deletes the control flow starting at the unlinked node s, together
// with everything only reachable from it. Merges losing ends are reduced.
func (self *Graph) KillCFG(s *Node) {
    q := lane.NewQueue()
    dead := make(map[*Node]struct{})
    lost := make(map[*Node][]*Node)

    /* Phase 1: find the dead fixed nodes */
    for q.Enqueue(s); !q.Empty(); {
        p := q.Dequeue().(*Node)

        /* already visited */
        if _, ok := dead[p]; ok || p.dead {
            continue
        }

        /* mark as dead */
        dead[p] = struct{}{}
        if !p.kind.IsAbstractEnd() {
            for _, v := range p.Successors() {
                q.Enqueue(v)
            }
            continue
        }

        /* a merge dies with all its forward ends, a loop with its entry */
        m := p.EndMerge()
        if m == nil {
            continue
        }

        /* record the lost end */
        lost[m] = append(lost[m], p)
        if p.kind == KindEnd && (m.kind == KindLoopBegin || len(lost[m]) == len(m.Ends())) {
            q.Enqueue(m)
        }
    }

    /* Phase 2: detach the lost ends of the surviving merges */
    for m, ends := range lost {
        if _, ok := dead[m]; !ok {
            for _, e := range ends {
                self.removeEnd(m, e)
            }
        }
    }

    /* Phase 3: floating nodes depending on dead nodes are dead as well */
    for more := true; more; {
        more = false
        for _, v := range self.nodes {
            if v == nil || v.kind.IsFixed() {
                continue
            }
            if _, ok := dead[v]; ok {
                continue
            }
            for _, in := range v.inputs {
                if _, ok := dead[in]; ok && in != nil {
                    dead[v] = struct{}{}
                    more = true
                    break
                }
            }
        }
    }

    /* Phase 4: cut every edge of the dead nodes */
    var ins []*Node
    for v := range dead {
        v.next, v.pred, v.succs = nil, nil, [2]*Node{}
        for _, in := range v.inputs {
            if _, ok := dead[in]; !ok && in != nil {
                ins = append(ins, in)
            }
        }
        v.ClearInputs()
    }

    /* Phase 5: delete them and collect the floating garbage */
    for v := range dead {
        v.usages = v.usages[:0]
        v.SafeDelete()
    }
    for _, v := range ins {
        self.KillIfUnused(v)
    }

    /* Phase 6: reduce the surviving merges */
    for m := range lost {
        if _, ok := dead[m]; !ok && !m.dead {
            self.reduceMerge(m)
        }
    }
}

func (self *Graph) removeEnd(m *Node, e *Node) {
    i := -1
    for j, v := range m.inputs {
        if j > 0 && v == e {
            i = j
            break
        }
    }

    /* loop ends are inputs of their loop begin too */
    if i < 0 {
        return
    }

    /* drop the matching phi values */
    for _, phi := range m.Phis() {
        v := phi.inputs[i]
        phi.RemoveInput(i)
        self.KillIfUnused(v)
    }

    /* drop the end itself */
    m.RemoveInput(i)
}

func (self *Graph) reduceMerge(m *Node) {
    switch m.kind {
        case KindMerge     : if len(m.inputs) == 2 { self.collapseMerge(m) }
        case KindLoopBegin : if len(m.LoopEnds()) == 0 && len(m.inputs) == 2 { self.collapseLoop(m) }
    }
}

func (self *Graph) collapseLoop(m *Node) {
    for _, e := range m.LoopExits() {
        for _, p := range e.UsagesOf(KindValueProxy) {
            p.ReplaceAtUsages(p.inputs[0])
            self.KillWithUnusedFloatingInputs(p)
        }

        /* remove the exit and its state */
        st := e.inputs[1]
        self.Unlink(e)
        e.ReplaceAtUsages(m)
        e.SafeDelete()
        self.KillIfUnused(st)
    }

    /* the loop is now a plain merge with one end */
    self.collapseMerge(m)
}

func (self *Graph) collapseMerge(m *Node) {
    end := m.inputs[1]
    prev := end.pred
    next := m.next

    /* phis take their only value */
    for _, phi := range m.Phis() {
        phi.ReplaceAtUsages(phi.inputs[1])
        self.KillWithUnusedFloatingInputs(phi)
    }

    /* anchored nodes move to the predecessor */
    st := m.inputs[0]
    m.ClearInputs()
    m.ReplaceAtUsages(prev)

    /* splice the end and the merge out of the chain */
    self.SetNext(m, nil)
    self.ReplaceSuccessor(prev, end, next)
    end.SafeDelete()
    m.SafeDelete()
    self.KillIfUnused(st)
}
