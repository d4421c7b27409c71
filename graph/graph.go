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

// Graph is the mutable program representation shared by all phases of one
// compilation. It is not safe for concurrent use.
type Graph struct {
    name  string
    subst bool
    start *Node
    nodes []*Node
    live  int
    mods  uint64
    spec  *SpeculationLog
    lsnr  []NodeEventListener
}

// New creates an empty graph holding only its Start node.
func New(name string) *Graph {
    ret := &Graph{name: name}
    ret.start = ret.Add(KindStart)
    return ret
}

// NewSubstitution creates a graph for a stub or intrinsic.
func NewSubstitution(name string) *Graph {
    ret := New(name)
    ret.subst = true
    return ret
}

func (self *Graph) Name() string                       { return self.name }
func (self *Graph) Start() *Node                       { return self.start }
func (self *Graph) IsSubstitution() bool               { return self.subst }
func (self *Graph) SpeculationLog() *SpeculationLog    { return self.spec }
func (self *Graph) SetSpeculationLog(v *SpeculationLog) { self.spec = v }

// NodeCount returns the number of live nodes.
func (self *Graph) NodeCount() int {
    return self.live
}

// Add creates a new node of the given kind.
func (self *Graph) Add(kind Kind, inputs ...*Node) *Node {
    ret := &Node {
        id     : len(self.nodes),
        kind   : kind,
        graph  : self,
        inputs : make([]*Node, len(inputs)),
    }

    /* wire the input edges */
    for i, v := range inputs {
        if v != nil && v.graph != self {
            panic(fmt.Sprintf("graph: input %s belongs to another graph", v))
        }
        ret.inputs[i] = v
        v.addUsage(ret)
    }

    /* register the node */
    self.live++
    self.nodes = append(self.nodes, ret)
    self.emit(NodeAdded, ret)
    return ret
}

// Unique returns the live floating node of the given kind with exactly these
// inputs and no payload, adding it if there is none.
func (self *Graph) Unique(kind Kind, inputs ...*Node) *Node {
    var cands []*Node
    if len(inputs) != 0 && inputs[0] != nil {
        cands = inputs[0].usages
    } else {
        cands = self.nodes
    }

    /* value numbering by kind and inputs */
    for _, v := range cands {
        if v != nil && !v.dead && v.kind == kind && v.Value == 0 && v.Scale == 0 && sameInputs(v.inputs, inputs) {
            return v
        }
    }
    return self.Add(kind, inputs...)
}

func sameInputs(a []*Node, b []*Node) bool {
    if len(a) != len(b) {
        return false
    }
    for i := range a {
        if a[i] != b[i] {
            return false
        }
    }
    return true
}

// Constant returns a new integer constant.
func (self *Graph) Constant(v int64) *Node {
    ret := self.Add(KindConstant)
    ret.Value = v
    ret.Stamp = ConstantStamp(v)
    return ret
}

// Parameter returns a new parameter with the given index and stamp.
func (self *Graph) Parameter(i int, stamp Stamp) *Node {
    ret := self.Add(KindParameter)
    ret.Value = int64(i)
    ret.Stamp = stamp
    return ret
}

// Nodes returns a snapshot of all the live nodes, in creation order.
func (self *Graph) Nodes() []*Node {
    ret := make([]*Node, 0, self.live)
    for _, v := range self.nodes {
        if v != nil {
            ret = append(ret, v)
        }
    }
    return ret
}

// NodesOf returns a snapshot of the live nodes of the given kind. Callers may
// mutate the graph while iterating, but must skip deleted nodes.
func (self *Graph) NodesOf(kind Kind) []*Node {
    var ret []*Node
    for _, v := range self.nodes {
        if v != nil && v.kind == kind {
            ret = append(ret, v)
        }
    }
    return ret
}

// Has reports whether the graph contains a live node of the given kind.
func (self *Graph) Has(kind Kind) bool {
    for _, v := range self.nodes {
        if v != nil && v.kind == kind {
            return true
        }
    }
    return false
}

// HasLoops reports whether the graph contains any loop.
func (self *Graph) HasLoops() bool {
    return self.Has(KindLoopBegin)
}

// Mark takes a snapshot token of the current mutation state.
func (self *Graph) Mark() Mark {
    return Mark {
        graph : self,
        next  : len(self.nodes),
        mods  : self.mods,
    }
}

// NewNodesSince lists the live nodes created after the mark was taken.
func (self *Graph) NewNodesSince(m Mark) []*Node {
    var ret []*Node
    for _, v := range self.nodes[m.next:] {
        if v != nil {
            ret = append(ret, v)
        }
    }
    return ret
}

func (self *Graph) remove(n *Node) {
    n.dead = true
    self.live--
    self.nodes[n.id] = nil
    self.emit(NodeRemoved, n)
}

func (self *Graph) emit(ev NodeEvent, n *Node) {
    self.mods++
    for _, l := range self.lsnr {
        l.NodeEvent(ev, n)
    }
}

func (self *Graph) String() string {
    buf := make([]string, 0, self.live)
    for _, v := range self.nodes {
        if v != nil {
            buf = append(buf, "    " + v.String())
        }
    }
    return fmt.Sprintf(
        "Graph %s {\n%s\n}",
        self.name,
        strings.Join(buf, "\n"),
    )
}

// Mark is an opaque snapshot of the mutation history of a graph.
type Mark struct {
    graph *Graph
    next  int
    mods  uint64
}

// IsCurrent reports whether no mutation happened since the mark was taken.
func (self Mark) IsCurrent() bool {
    return self.graph != nil && self.graph.mods == self.mods
}

func (self Mark) String() string {
    return fmt.Sprintf("Mark{next: %d, mods: %d}", self.next, self.mods)
}
