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

type NodeEvent uint8

const (
    NodeAdded NodeEvent = iota
    InputChanged
    ZeroUsage
    NodeRemoved
    NodeChanged
)

func (self NodeEvent) String() string {
    switch self {
        case NodeAdded    : return "NodeAdded"
        case InputChanged : return "InputChanged"
        case ZeroUsage    : return "ZeroUsage"
        case NodeRemoved  : return "NodeRemoved"
        case NodeChanged  : return "NodeChanged"
        default           : return "NodeEvent(?)"
    }
}

// NodeEventListener observes graph mutations while it is attached.
type NodeEventListener interface {
    NodeEvent(ev NodeEvent, n *Node)
}

// NodeEventScope is the handle of an attached listener. Close detaches it and
// is safe to call more than once, so it is meant to be deferred.
type NodeEventScope struct {
    g *Graph
    l NodeEventListener
}

// Listen attaches l to the graph until the returned scope is closed.
func (self *Graph) Listen(l NodeEventListener) *NodeEventScope {
    self.lsnr = append(self.lsnr, l)
    return &NodeEventScope{g: self, l: l}
}

func (self *NodeEventScope) Close() {
    if self.g == nil {
        return
    }

    /* detach the most recent registration of this listener */
    for i := len(self.g.lsnr) - 1; i >= 0; i-- {
        if self.g.lsnr[i] == self.l {
            self.g.lsnr = append(self.g.lsnr[:i], self.g.lsnr[i + 1:]...)
            break
        }
    }

    /* mark as closed */
    self.g = nil
}

// ChangedNodes collects the set of nodes affected by mutations.
type ChangedNodes struct {
    set  map[*Node]struct{}
    list []*Node
}

func NewChangedNodes() *ChangedNodes {
    return &ChangedNodes {
        set: make(map[*Node]struct{}),
    }
}

func (self *ChangedNodes) NodeEvent(_ NodeEvent, n *Node) {
    if _, ok := self.set[n]; !ok {
        self.set[n] = struct{}{}
        self.list = append(self.list, n)
    }
}

func (self *ChangedNodes) Len() int {
    return len(self.list)
}

func (self *ChangedNodes) Contains(n *Node) bool {
    _, ok := self.set[n]
    return ok
}

// Nodes returns the affected nodes in the order they were first reported.
func (self *ChangedNodes) Nodes() []*Node {
    ret := make([]*Node, len(self.list))
    copy(ret, self.list)
    return ret
}

func (self *ChangedNodes) Clear() {
    self.list = self.list[:0]
    for k := range self.set {
        delete(self.set, k)
    }
}
