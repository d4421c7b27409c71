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
    `fmt`
    `strings`
)

type Flags uint32

const (
    FlagCanSafepoint Flags = 1 << iota
    FlagIdentitySensitive
    FlagTrusted
    FlagCounted
    FlagCountedDisabled
    FlagBarrierAdded
    FlagNoBarrier
    FlagBoundsChecked
    FlagReferentRead
)

func (self Flags) Has(f Flags) bool {
    return self & f == f
}

// BCIExceptionHandler is the bytecode index of frame states on exception
// handler entries.
const BCIExceptionHandler = -4

// SourcePosition is the bytecode position a node originates from.
type SourcePosition struct {
    Method string
    BCI    int
}

func (self SourcePosition) String() string {
    if self.Method == "" {
        return "?"
    } else {
        return fmt.Sprintf("%s@%d", self.Method, self.BCI)
    }
}

// Node is a vertex of the graph. Nodes are owned by exactly one graph and are
// only created through Graph.Add.
type Node struct {
    Value int64
    Scale uint8
    Stamp Stamp
    Flags Flags
    Pos   SourcePosition

    id     int
    kind   Kind
    dead   bool
    graph  *Graph
    inputs []*Node
    usages []*Node
    next   *Node
    pred   *Node
    succs  [2]*Node
}

func (self *Node) ID() int         { return self.id }
func (self *Node) Kind() Kind      { return self.kind }
func (self *Node) Graph() *Graph   { return self.graph }
func (self *Node) IsDeleted() bool { return self.dead }
func (self *Node) IsAlive() bool   { return !self.dead }
func (self *Node) Next() *Node     { return self.next }
func (self *Node) Pred() *Node     { return self.pred }

// Inputs returns the input edges. The slice must not be modified.
func (self *Node) Inputs() []*Node {
    return self.inputs
}

func (self *Node) Input(i int) *Node {
    return self.inputs[i]
}

func (self *Node) InputCount() int {
    return len(self.inputs)
}

// Usages returns a snapshot of the usage edges, one entry per input edge
// pointing at this node.
func (self *Node) Usages() []*Node {
    ret := make([]*Node, len(self.usages))
    copy(ret, self.usages)
    return ret
}

func (self *Node) UsageCount() int {
    return len(self.usages)
}

func (self *Node) HasNoUsages() bool {
    return len(self.usages) == 0
}

// UsagesOf returns the distinct usages of the given kind.
func (self *Node) UsagesOf(kind Kind) []*Node {
    var ret []*Node
    seen := make(map[*Node]struct{}, len(self.usages))

    /* deduplicate usages with multiple edges */
    for _, u := range self.usages {
        if _, ok := seen[u]; !ok && u.kind == kind {
            seen[u] = struct{}{}
            ret = append(ret, u)
        }
    }
    return ret
}

func (self *Node) TrueSuccessor() *Node {
    return self.succs[0]
}

func (self *Node) FalseSuccessor() *Node {
    return self.succs[1]
}

// Successors returns the control-flow successors. Ends flow into their merge.
func (self *Node) Successors() []*Node {
    switch {
        case self.kind.IsSplit()       : return []*Node { self.succs[0], self.succs[1] }
        case self.kind.IsAbstractEnd() : if m := self.EndMerge(); m != nil { return []*Node { m } } else { return nil }
        case self.next != nil          : return []*Node { self.next }
        default                        : return nil
    }
}

// EndMerge returns the merge an End or LoopEnd flows into.
func (self *Node) EndMerge() *Node {
    for _, u := range self.usages {
        if u.kind.IsMerge() {
            return u
        }
    }
    return nil
}

// Ends returns the forward ends of a Merge, or the forward end of a LoopBegin.
func (self *Node) Ends() []*Node {
    var ret []*Node
    for _, v := range self.inputs[1:] {
        if v != nil && v.kind == KindEnd {
            ret = append(ret, v)
        }
    }
    return ret
}

// LoopEnds returns the backward edges of a LoopBegin.
func (self *Node) LoopEnds() []*Node {
    var ret []*Node
    for _, v := range self.inputs[1:] {
        if v != nil && v.kind == KindLoopEnd {
            ret = append(ret, v)
        }
    }
    return ret
}

// LoopExits returns the exits of a LoopBegin.
func (self *Node) LoopExits() []*Node {
    var ret []*Node
    for _, u := range self.UsagesOf(KindLoopExit) {
        if u.inputs[0] == self {
            ret = append(ret, u)
        }
    }
    return ret
}

// Phis returns the phis attached to a Merge or LoopBegin.
func (self *Node) Phis() []*Node {
    var ret []*Node
    for _, u := range self.UsagesOf(KindPhi) {
        if u.inputs[0] == self {
            ret = append(ret, u)
        }
    }
    return ret
}

// PhiPredecessorIndex returns the index of the phi value flowing through end.
func (self *Node) PhiPredecessorIndex(end *Node) int {
    for i, v := range self.inputs[1:] {
        if v == end {
            return i
        }
    }
    return -1
}

func (self *Node) SetInput(i int, v *Node) {
    old := self.inputs[i]
    if old == v {
        return
    }

    /* move the usage edge */
    self.inputs[i] = v
    old.removeUsage(self)
    v.addUsage(self)
    self.graph.emit(InputChanged, self)

    /* notify the old input if it becomes unused */
    if old != nil && len(old.usages) == 0 {
        self.graph.emit(ZeroUsage, old)
    }
}

func (self *Node) AddInput(v *Node) {
    self.inputs = append(self.inputs, v)
    v.addUsage(self)
    self.graph.emit(InputChanged, self)
}

// RemoveInput removes the input slot i, shifting the remaining inputs down.
func (self *Node) RemoveInput(i int) {
    old := self.inputs[i]
    self.inputs = append(self.inputs[:i], self.inputs[i + 1:]...)
    old.removeUsage(self)
    self.graph.emit(InputChanged, self)

    /* notify the old input if it becomes unused */
    if old != nil && len(old.usages) == 0 {
        self.graph.emit(ZeroUsage, old)
    }
}

// ClearInputs drops every input edge.
func (self *Node) ClearInputs() {
    for i := range self.inputs {
        if self.inputs[i] != nil {
            self.SetInput(i, nil)
        }
    }
}

// ReplaceAtUsages redirects every usage of this node to v.
func (self *Node) ReplaceAtUsages(v *Node) {
    if v == self {
        panic("graph: cannot replace a node with itself")
    } else if len(self.usages) == 0 {
        return
    }

    /* rewrite every edge */
    for _, u := range self.Usages() {
        for i, in := range u.inputs {
            if in == self {
                u.inputs[i] = v
                v.addUsage(u)
            }
        }
        self.graph.emit(InputChanged, u)
    }

    /* no usages left */
    self.usages = self.usages[:0]
    self.graph.emit(ZeroUsage, self)
}

// SafeDelete removes an unused, unlinked node from the graph.
func (self *Node) SafeDelete() {
    if self.dead {
        return
    }

    /* deleted nodes must not leave dangling edges */
    if len(self.usages) != 0 {
        Fail(self.graph, []*Node { self }, "deleting node %s with %d usages", self, len(self.usages))
    }

    /* fixed nodes must be unlinked first */
    if self.pred != nil || self.next != nil || self.succs[0] != nil || self.succs[1] != nil {
        Fail(self.graph, []*Node { self }, "deleting linked fixed node %s", self)
    }

    /* drop inputs and remove from the graph */
    self.ClearInputs()
    self.graph.remove(self)
}

// Changed records a property mutation (flags, stamps, payload) on this node.
func (self *Node) Changed() {
    self.graph.emit(NodeChanged, self)
}

func (self *Node) addUsage(u *Node) {
    if self != nil {
        self.usages = append(self.usages, u)
    }
}

func (self *Node) removeUsage(u *Node) {
    if self == nil {
        return
    }
    for i, v := range self.usages {
        if v == u {
            self.usages = append(self.usages[:i], self.usages[i + 1:]...)
            return
        }
    }
}

func (self *Node) String() string {
    var buf []string
    for _, v := range self.inputs {
        if v == nil {
            buf = append(buf, "-")
        } else {
            buf = append(buf, fmt.Sprintf("%%%d", v.id))
        }
    }

    /* constants print their value */
    switch self.kind {
        case KindConstant   : return fmt.Sprintf("%%%d = Constant(%d)", self.id, self.Value)
        case KindParameter  : return fmt.Sprintf("%%%d = Parameter(%d)", self.id, self.Value)
        case KindFrameState : return fmt.Sprintf("%%%d = FrameState@%d(%s)", self.id, self.Value, strings.Join(buf, ", "))
        default             : return fmt.Sprintf("%%%d = %s(%s)", self.id, self.kind, strings.Join(buf, ", "))
    }
}
