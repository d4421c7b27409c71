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

package lowering

import (
    `fmt`

    `github.com/cloudwego/gopt/graph`
)

// Stage selects which lowering callbacks apply.
type Stage uint8

const (
    StageHigh Stage = iota
    StageMid
    StageLow
    numStages
)

func (self Stage) String() string {
    switch self {
        case StageHigh : return "HighTier"
        case StageMid  : return "MidTier"
        case StageLow  : return "LowTier"
        default        : return fmt.Sprintf("Stage(%d)", self)
    }
}

// Layout describes the object model the callbacks lower against.
type Layout struct {
    ArrayLengthOffset int64
    ArrayBaseOffset   int64
    CardTableBase     int64
    CardTableShift    int64
}

// DefaultLayout is a 64-bit layout with compressed headers and 512-byte cards.
var DefaultLayout = Layout {
    ArrayLengthOffset : 12,
    ArrayBaseOffset   : 16,
    CardTableBase     : 0x7f0000000000,
    CardTableShift    : 9,
}

// Tool is handed to the callbacks of one lowering run.
type Tool struct {
    Graph  *graph.Graph
    Stage  Stage
    Layout Layout
}

// LowerFunc replaces n by lower-level nodes. It must do nothing when n is
// already lowered for the stage, so re-running it is a no-op.
type LowerFunc func(n *graph.Node, tool *Tool)

type _Rule struct {
    lower   LowerFunc
    pending func(n *graph.Node) bool
}

// Provider is the per-stage dispatch table of lowering callbacks, indexed by
// node kind. It is read-only once built and may be shared between
// compilations.
type Provider struct {
    Layout Layout
    rules  [numStages][graph.NumKinds]_Rule
}

// NewProvider creates a provider without any callbacks.
func NewProvider(layout Layout) *Provider {
    return &Provider{Layout: layout}
}

// Register installs fn for every node of the given kind.
func (self *Provider) Register(stage Stage, kind graph.Kind, fn LowerFunc) {
    self.RegisterIf(stage, kind, nil, fn)
}

// RegisterIf installs fn for the nodes of the given kind for which pending
// holds. A nil pending matches every node.
func (self *Provider) RegisterIf(stage Stage, kind graph.Kind, pending func(n *graph.Node) bool, fn LowerFunc) {
    self.rules[stage][kind] = _Rule {
        lower   : fn,
        pending : pending,
    }
}

// Handles reports whether the stage has a callback for the kind.
func (self *Provider) Handles(stage Stage, kind graph.Kind) bool {
    return self.rules[stage][kind].lower != nil
}

// IsLowerable reports whether n still has to be lowered in the stage.
func (self *Provider) IsLowerable(stage Stage, n *graph.Node) bool {
    if n.IsDeleted() {
        return false
    }
    r := self.rules[stage][n.Kind()]
    return r.lower != nil && (r.pending == nil || r.pending(n))
}

// Lower runs the callback registered for n.
func (self *Provider) Lower(n *graph.Node, tool *Tool) {
    if r := self.rules[tool.Stage][n.Kind()]; r.lower == nil {
        panic("lowering: no callback for " + n.Kind().String())
    } else {
        r.lower(n, tool)
    }
}

// Lowerable lists the live nodes of g still to be lowered in the stage.
func (self *Provider) Lowerable(stage Stage, g *graph.Graph) []*graph.Node {
    var ret []*graph.Node
    for _, n := range g.Nodes() {
        if self.IsLowerable(stage, n) {
            ret = append(ret, n)
        }
    }
    return ret
}

// Handled lists the live nodes of g that have a callback in the stage.
func (self *Provider) Handled(stage Stage, g *graph.Graph) []*graph.Node {
    var ret []*graph.Node
    for _, n := range g.Nodes() {
        if self.Handles(stage, n.Kind()) {
            ret = append(ret, n)
        }
    }
    return ret
}
