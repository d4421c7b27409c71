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

package gc

import (
    `fmt`

    `github.com/cloudwego/gopt/graph`
)

// Stage is a pipeline point at which write barriers may be inserted.
type Stage uint8

const (
    StageMidTier Stage = iota
    StageLowTier
)

func (self Stage) String() string {
    switch self {
        case StageMidTier : return "MidTier"
        case StageLowTier : return "LowTier"
        default           : return fmt.Sprintf("Stage(%d)", self)
    }
}

// BarrierContext describes where the barriers are being added.
type BarrierContext struct {
    Stage Stage
}

// BarrierSet is the collector's barrier policy. Implementations are
// immutable and may be shared between concurrent compilations.
type BarrierSet interface {
    Name() string
    HasWriteBarrier() bool
    ShouldAddBarriersInStage(stage Stage) bool
    AddBarriers(n *graph.Node, ctx BarrierContext)
}

// ForName returns the barrier set registered under name.
func ForName(name string) (BarrierSet, error) {
    switch name {
        case "none"      : return NoBarriers{}, nil
        case "cardtable" : return CardTable{}, nil
        case "g1"        : return G1{}, nil
        default          : return nil, fmt.Errorf("gc: unknown barrier set: %q", name)
    }
}

// NoBarriers is the policy of collectors without tracing barriers.
type NoBarriers struct{}

func (NoBarriers) Name() string                                    { return "none" }
func (NoBarriers) HasWriteBarrier() bool                           { return false }
func (NoBarriers) ShouldAddBarriersInStage(Stage) bool             { return false }
func (NoBarriers) AddBarriers(*graph.Node, BarrierContext)         {}

// CardTable adds a card-marking post barrier after object stores, late in
// the pipeline.
type CardTable struct{}

func (CardTable) Name() string {
    return "cardtable"
}

func (CardTable) HasWriteBarrier() bool {
    return true
}

func (CardTable) ShouldAddBarriersInStage(stage Stage) bool {
    return stage == StageLowTier
}

func (CardTable) AddBarriers(n *graph.Node, _ BarrierContext) {
    if needsWriteBarrier(n) {
        g := n.Graph()
        g.AddAfterFixed(n, g.Add(graph.KindPostWriteBarrier, n.Input(0), n.Input(1)))
        markBarrierAdded(n)
    }
}

// G1 adds snapshot-at-the-beginning pre barriers and card-marking post
// barriers around object stores, and keep-alive barriers after referent
// reads, right after mid-tier lowering.
type G1 struct{}

func (G1) Name() string {
    return "g1"
}

func (G1) HasWriteBarrier() bool {
    return true
}

func (G1) ShouldAddBarriersInStage(stage Stage) bool {
    return stage == StageMidTier
}

func (G1) AddBarriers(n *graph.Node, _ BarrierContext) {
    g := n.Graph()
    switch {
        case needsWriteBarrier(n): {
            g.AddBeforeFixed(n, g.Add(graph.KindPreWriteBarrier, n.Input(0), nil))
            g.AddAfterFixed(n, g.Add(graph.KindPostWriteBarrier, n.Input(0), n.Input(1)))
            markBarrierAdded(n)
        }

        /* referent reads must keep the loaded object alive */
        case needsReadBarrier(n): {
            g.AddAfterFixed(n, g.Add(graph.KindPreWriteBarrier, n.Input(0), n))
            markBarrierAdded(n)
        }
    }
}

func needsWriteBarrier(n *graph.Node) bool {
    if n.Kind() != graph.KindWrite || n.Flags.Has(graph.FlagNoBarrier) || n.Flags.Has(graph.FlagBarrierAdded) {
        return false
    }
    v := n.Input(1)
    return v != nil && v.Stamp.Kind == graph.StampObject
}

func needsReadBarrier(n *graph.Node) bool {
    return n.Kind() == graph.KindRead &&
        n.Flags.Has(graph.FlagReferentRead) &&
        !n.Flags.Has(graph.FlagBarrierAdded)
}

func markBarrierAdded(n *graph.Node) {
    n.Flags |= graph.FlagBarrierAdded
    n.Changed()
}
