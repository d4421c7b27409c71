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

    `github.com/davecgh/go-spew/spew`
)

var dumper = spew.ConfigState {
    Indent                  : "    ",
    SortKeys                : true,
    DisablePointerAddresses : true,
    DisableCapacities       : true,
}

// NodeInfo is the diagnostic view of a node, free of graph back-references.
type NodeInfo struct {
    ID     int
    Kind   string
    Inputs []int
    Usages []int
    Value  int64
    Stamp  string
    Flags  Flags
    Pos    string
}

func Describe(n *Node) NodeInfo {
    ret := NodeInfo {
        ID    : n.id,
        Kind  : n.kind.String(),
        Value : n.Value,
        Stamp : n.Stamp.String(),
        Flags : n.Flags,
        Pos   : n.Pos.String(),
    }

    /* inputs and usages by id, -1 for empty slots */
    for _, v := range n.inputs {
        if v == nil {
            ret.Inputs = append(ret.Inputs, -1)
        } else {
            ret.Inputs = append(ret.Inputs, v.id)
        }
    }
    for _, v := range n.usages {
        ret.Usages = append(ret.Usages, v.id)
    }
    return ret
}

// InvariantError is raised (as a panic value) when a phase breaks a graph
// invariant. It is fatal for the compilation.
type InvariantError struct {
    Graph    string
    Reason   string
    Nodes    []NodeInfo
    Expected *Mark
    Actual   *Mark
}

func (self *InvariantError) Error() string {
    var sb strings.Builder
    fmt.Fprintf(&sb, "invariant violated in graph %s: %s", self.Graph, self.Reason)

    /* mark mismatch */
    if self.Expected != nil && self.Actual != nil {
        fmt.Fprintf(&sb, " (expected %s, actual %s)", self.Expected, self.Actual)
    }

    /* offending nodes */
    if len(self.Nodes) != 0 {
        sb.WriteString("\n")
        sb.WriteString(dumper.Sdump(self.Nodes))
    }
    return sb.String()
}

func newInvariantError(g *Graph, nodes []*Node, format string, args ...interface{}) *InvariantError {
    ret := &InvariantError {
        Reason: fmt.Sprintf(format, args...),
    }

    /* graph name */
    if g != nil {
        ret.Graph = g.name
    }

    /* dump every offending node */
    for _, n := range nodes {
        ret.Nodes = append(ret.Nodes, Describe(n))
    }
    return ret
}

// Fail aborts the compilation of g with an invariant violation.
func Fail(g *Graph, nodes []*Node, format string, args ...interface{}) {
    panic(newInvariantError(g, nodes, format, args...))
}

// FailMark aborts the compilation of g, reporting the expected and actual marks.
func FailMark(g *Graph, expected Mark, actual Mark, nodes []*Node, format string, args ...interface{}) {
    err := newInvariantError(g, nodes, format, args...)
    err.Expected = &expected
    err.Actual = &actual
    panic(err)
}
