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
    `math`

    `github.com/cloudwego/gopt/graph`
)

// DefaultProvider returns the provider with the built-in callbacks of every
// stage, lowering against DefaultLayout.
func DefaultProvider() *Provider {
    ret := NewProvider(DefaultLayout)
    ret.RegisterIf(StageHigh, graph.KindLoadIndexed, needsBoundsCheck, lowerBoundsCheck)
    ret.RegisterIf(StageHigh, graph.KindStoreIndexed, needsBoundsCheck, lowerBoundsCheck)
    ret.Register(StageMid, graph.KindLoadField, lowerLoadField)
    ret.Register(StageMid, graph.KindStoreField, lowerStoreField)
    ret.Register(StageMid, graph.KindLoadIndexed, lowerLoadIndexed)
    ret.Register(StageMid, graph.KindStoreIndexed, lowerStoreIndexed)
    ret.Register(StageMid, graph.KindArrayLength, lowerArrayLength)
    ret.Register(StageMid, graph.KindFixedGuard, lowerFixedGuard)
    ret.Register(StageLow, graph.KindPostWriteBarrier, lowerPostWriteBarrier)
    ret.Register(StageLow, graph.KindPreWriteBarrier, lowerPreWriteBarrier)
    return ret
}

func needsBoundsCheck(n *graph.Node) bool {
    return !n.Flags.Has(graph.FlagBoundsChecked)
}

func lowerBoundsCheck(n *graph.Node, tool *Tool) {
    if !needsBoundsCheck(n) {
        return
    }

    /* guard the index against the array length */
    g := tool.Graph
    ln := g.Add(graph.KindArrayLength, n.Input(0))
    ck := g.Add(graph.KindIntegerBelow, n.Input(1), ln)
    gd := g.Add(graph.KindFixedGuard, ck)

    /* both are inserted right before the access */
    ln.Pos, gd.Pos = n.Pos, n.Pos
    ln.Stamp, ck.Stamp = graph.IntStamp(0, math.MaxInt32), graph.IntStamp(0, 1)
    g.AddBeforeFixed(n, ln)
    g.AddBeforeFixed(n, gd)

    /* the access is now known to be in bounds */
    n.Flags |= graph.FlagBoundsChecked
    n.Changed()
}

func fieldAddress(g *graph.Graph, obj *graph.Node, offs int64) *graph.Node {
    return g.Add(graph.KindOffsetAddress, obj, g.Constant(offs))
}

func elementAddress(g *graph.Graph, arr *graph.Node, idx *graph.Node, shift uint8, lay Layout) *graph.Node {
    offs := idx
    if shift != 0 {
        offs = g.Add(graph.KindLeftShift, idx, g.Constant(int64(shift)))
    }
    return g.Add(graph.KindOffsetAddress, arr, g.Add(graph.KindAdd, g.Constant(lay.ArrayBaseOffset), offs))
}

func replaceWithRead(g *graph.Graph, n *graph.Node, adr *graph.Node) {
    rd := g.Add(graph.KindRead, adr)
    rd.Pos = n.Pos
    rd.Stamp = n.Stamp
    rd.Flags = n.Flags & graph.FlagReferentRead
    g.ReplaceFixedWithFixed(n, rd)
}

func replaceWithWrite(g *graph.Graph, n *graph.Node, adr *graph.Node, val *graph.Node) {
    wr := g.Add(graph.KindWrite, adr, val)
    wr.Pos = n.Pos
    wr.Flags = n.Flags & graph.FlagNoBarrier
    g.ReplaceFixedWithFixed(n, wr)
}

func lowerLoadField(n *graph.Node, tool *Tool) {
    g := tool.Graph
    adr := fieldAddress(g, n.Input(0), n.Value)

    /* mutable fields stay in the control flow */
    if !n.Flags.Has(graph.FlagTrusted) {
        replaceWithRead(g, n, adr)
        return
    }

    /* final fields float, anchored at the current position */
    rd := g.Add(graph.KindFloatingRead, adr, n.Pred())
    rd.Pos = n.Pos
    rd.Stamp = n.Stamp
    g.ReplaceFixedWithFloating(n, rd)
}

func lowerStoreField(n *graph.Node, tool *Tool) {
    replaceWithWrite(tool.Graph, n, fieldAddress(tool.Graph, n.Input(0), n.Value), n.Input(1))
}

func lowerLoadIndexed(n *graph.Node, tool *Tool) {
    replaceWithRead(tool.Graph, n, elementAddress(tool.Graph, n.Input(0), n.Input(1), n.Scale, tool.Layout))
}

func lowerStoreIndexed(n *graph.Node, tool *Tool) {
    replaceWithWrite(tool.Graph, n, elementAddress(tool.Graph, n.Input(0), n.Input(1), n.Scale, tool.Layout), n.Input(2))
}

func lowerArrayLength(n *graph.Node, tool *Tool) {
    g := tool.Graph
    lf := g.Add(graph.KindLoadField, n.Input(0))

    /* the length is an immutable field of the array header */
    lf.Pos = n.Pos
    lf.Stamp = n.Stamp
    lf.Value = tool.Layout.ArrayLengthOffset
    lf.Flags |= graph.FlagTrusted
    g.ReplaceFixedWithFixed(n, lf)
}

func lowerFixedGuard(n *graph.Node, tool *Tool) {
    g := tool.Graph
    pred, next := n.Pred(), n.Next()

    /* split on the condition, deoptimizing when it fails */
    sw := g.Add(graph.KindIf, n.Input(0))
    bt, bf := g.Add(graph.KindBegin), g.Add(graph.KindBegin)
    dp := g.Add(graph.KindDeoptimize)
    sw.Pos, dp.Pos = n.Pos, n.Pos

    /* the rest of the code continues on the true branch */
    g.SetNext(n, nil)
    g.SetSuccessors(sw, bt, bf)
    g.SetNext(bt, next)
    g.SetNext(bf, dp)

    /* nodes anchored at the guard move to the true branch */
    n.ReplaceAtUsages(bt)
    g.ReplaceSuccessor(pred, n, sw)
    n.SafeDelete()
}

func lowerPostWriteBarrier(n *graph.Node, tool *Tool) {
    g := tool.Graph
    lay := tool.Layout

    /* card index from the written address */
    adr := g.Add(graph.KindAddressAsInt, n.Input(0))
    idx := g.Add(graph.KindUnsignedRightShift, adr, g.Constant(lay.CardTableShift))
    card := g.Add(graph.KindOffsetAddress, g.Constant(lay.CardTableBase), idx)

    /* dirty the card */
    wr := g.Add(graph.KindWrite, card, g.Constant(0))
    wr.Pos = n.Pos
    wr.Flags |= graph.FlagNoBarrier
    g.ReplaceFixedWithFixed(n, wr)
}

func lowerPreWriteBarrier(n *graph.Node, tool *Tool) {
    g := tool.Graph
    prev := n.Input(1)

    /* load the value about to be overwritten */
    if prev == nil {
        prev = g.Add(graph.KindRead, n.Input(0))
        prev.Pos = n.Pos
        prev.Stamp = graph.ObjectStamp(false)
        prev.Flags |= graph.FlagNoBarrier
        g.AddBeforeFixed(n, prev)
    }

    /* record it in the marking queue */
    enq := g.Add(graph.KindSATBEnqueue, prev)
    enq.Pos = n.Pos
    g.ReplaceFixedWithFixed(n, enq)
}
