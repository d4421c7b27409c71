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
    `testing`

    `github.com/cloudwego/gopt/graph`
    `github.com/cloudwego/gopt/internal/arch/amd64`
    `github.com/cloudwego/gopt/internal/lowering`
    `github.com/cloudwego/gopt/internal/state`
    `github.com/stretchr/testify/require`
)

var highLevelKinds = []graph.Kind {
    graph.KindLoadField,
    graph.KindStoreField,
    graph.KindLoadIndexed,
    graph.KindStoreIndexed,
    graph.KindArrayLength,
    graph.KindFixedGuard,
}

/* Start -> LoadIndexed(arr, i) -> StoreField(obj, ld) -> Return */
func accesses() (*graph.Graph, *graph.Node, *graph.Node) {
    g := graph.New("accesses")
    arr := g.Parameter(0, graph.ObjectStamp(true))
    obj := g.Parameter(1, graph.ObjectStamp(true))
    idx := g.Parameter(2, graph.IntStamp(0, 100))
    ld := g.Add(graph.KindLoadIndexed, arr, idx)
    st := g.Add(graph.KindStoreField, obj, ld)
    ld.Scale, ld.Stamp = 3, graph.ObjectStamp(false)
    st.Value = 24
    g.Chain(g.Start(), ld, st, g.Add(graph.KindReturn, g.Constant(0)))
    return g, ld, st
}

func TestLowering_HighAndMid(t *testing.T) {
    g, ld, _ := accesses()
    st := state.New()
    ctx := testContext()

    /* bounds check */
    Apply(Lowering{Stage: lowering.StageHigh}, g, st, ctx)
    require.True(t, ld.Flags.Has(graph.FlagBoundsChecked))
    require.Equal(t, 1, countOf(g, graph.KindArrayLength))
    require.Equal(t, 1, countOf(g, graph.KindFixedGuard))
    require.True(t, st.IsAfterStage(state.HighTierLowering))

    /* everything becomes memory accesses */
    Apply(Lowering{Stage: lowering.StageMid}, g, st, ctx)
    for _, k := range highLevelKinds {
        require.Equal(t, 0, countOf(g, k), k.String())
    }
    require.Equal(t, 1, countOf(g, graph.KindRead), dump(g))
    require.Equal(t, 1, countOf(g, graph.KindWrite))
    require.Equal(t, 1, countOf(g, graph.KindFloatingRead))
    require.Equal(t, 1, countOf(g, graph.KindDeoptimize))
    require.Equal(t, 1, countOf(g, graph.KindIf))
    require.True(t, st.IsAfterStage(state.MidTierLowering))
    require.True(t, st.IsAfterStage(state.GuardLowering))
}

func TestLowering_NotIdempotent(t *testing.T) {
    g := graph.New("verify")
    g.Chain(g.Start(), g.Add(graph.KindSafepoint), g.Add(graph.KindReturn, g.Constant(0)))
    ctx := testContext()
    ctx.Lowering = lowering.NewProvider(lowering.DefaultLayout)
    ctx.Lowering.RegisterIf(lowering.StageLow, graph.KindSafepoint, func(n *graph.Node) bool {
        return !n.Flags.Has(graph.FlagCanSafepoint)
    }, func(n *graph.Node, tool *lowering.Tool) {
        tool.Graph.Constant(1)
        n.Flags |= graph.FlagCanSafepoint
    })

    /* the verification round produces another constant */
    st := stateAfter(state.HighTierLowering, state.MidTierLowering)
    err := requireInvariantError(t, func() { Apply(Lowering{Stage: lowering.StageLow}, g, st, ctx) })
    require.NotNil(t, err.Expected)
    require.NotNil(t, err.Actual)
    require.Contains(t, err.Error(), "LowTierLowering is not idempotent")
    require.False(t, st.IsAfterStage(state.LowTierLowering))
}

func TestLowering_Incomplete(t *testing.T) {
    g := graph.New("incomplete")
    g.Chain(g.Start(), g.Add(graph.KindSafepoint), g.Add(graph.KindReturn, g.Constant(0)))
    ctx := testContext()
    ctx.Options.VerifyLowering = false
    ctx.Lowering = lowering.NewProvider(lowering.DefaultLayout)
    ctx.Lowering.Register(lowering.StageLow, graph.KindSafepoint, func(*graph.Node, *lowering.Tool) {})

    /* the callback leaves its node in place */
    st := stateAfter(state.HighTierLowering, state.MidTierLowering)
    err := requireInvariantError(t, func() { Apply(Lowering{Stage: lowering.StageLow}, g, st, ctx) })
    require.Nil(t, err.Expected)
    require.Len(t, err.Nodes, 1)
    require.Contains(t, err.Error(), "LowTierLowering left 1 nodes unlowered")
}

func TestLowering_Applicability(t *testing.T) {
    require.Nil(t, Lowering{Stage: lowering.StageHigh}.NotApplicableTo(state.New()))
    require.NotNil(t, Lowering{Stage: lowering.StageMid}.NotApplicableTo(state.New()))
    require.NotNil(t, Lowering{Stage: lowering.StageLow}.NotApplicableTo(stateAfter(state.HighTierLowering)))
    require.Nil(t, Lowering{Stage: lowering.StageLow}.NotApplicableTo(stateAfter(state.HighTierLowering, state.MidTierLowering)))
    require.PanicsWithValue(t, "invalid lowering stage: Stage(7)", func() { Lowering{Stage: 7}.UpdateGraphState(state.New()) })
}

func TestFixReads(t *testing.T) {
    g := graph.New("reads")
    obj := g.Parameter(0, graph.ObjectStamp(true))
    ret := g.Add(graph.KindReturn, nil)
    g.SetNext(g.Start(), ret)

    /* the second read depends on the first one */
    r1 := g.Add(graph.KindFloatingRead, g.Add(graph.KindOffsetAddress, obj, g.Constant(8)), g.Start())
    r2 := g.Add(graph.KindFloatingRead, g.Add(graph.KindOffsetAddress, r1, g.Constant(16)), g.Start())
    r1.Stamp, r2.Stamp = graph.ObjectStamp(true), graph.IntStamp(0, 10)
    ret.SetInput(0, r2)

    /* both end up between the start and the return, in order */
    Apply(FixReads{}, g, stateAfter(state.HighTierLowering, state.MidTierLowering), testContext())
    require.Equal(t, 0, countOf(g, graph.KindFloatingRead))
    f1 := g.Start().Next()
    f2 := f1.Next()
    require.Equal(t, graph.KindRead, f1.Kind())
    require.Equal(t, graph.KindRead, f2.Kind())
    require.Equal(t, ret, f2.Next())
    require.Equal(t, f1, f2.Input(0).Input(0))
    require.Equal(t, f2, ret.Input(0))
    require.Equal(t, graph.IntStamp(0, 10), f2.Stamp)
}

func TestFixReads_DependencyCreatedLater(t *testing.T) {
    g := graph.New("reads")
    obj := g.Parameter(0, graph.ObjectStamp(true))
    ret := g.Add(graph.KindReturn, nil)
    g.SetNext(g.Start(), ret)

    /* the consumer has the lower id */
    adr := g.Add(graph.KindOffsetAddress, nil, g.Constant(16))
    r2 := g.Add(graph.KindFloatingRead, adr, g.Start())
    r1 := g.Add(graph.KindFloatingRead, g.Add(graph.KindOffsetAddress, obj, g.Constant(8)), g.Start())
    adr.SetInput(0, r1)
    r1.Stamp, r2.Stamp = graph.ObjectStamp(true), graph.IntStamp(0, 10)
    ret.SetInput(0, r2)

    /* the producer still comes first */
    Apply(FixReads{}, g, stateAfter(state.HighTierLowering, state.MidTierLowering), testContext())
    require.Equal(t, 0, countOf(g, graph.KindFloatingRead))
    f1 := g.Start().Next()
    f2 := f1.Next()
    require.Equal(t, ret, f2.Next())
    require.Equal(t, f1, f2.Input(0).Input(0))
    require.Equal(t, f2, ret.Input(0))
    requireScheduled(t, g)
}

func TestFixReads_LoweredArrayLength(t *testing.T) {
    g := graph.New("length")
    arr := g.Parameter(0, graph.ObjectStamp(true))
    al := g.Add(graph.KindArrayLength, arr)
    ld := g.Add(graph.KindLoadField, al)
    al.Stamp = graph.ObjectStamp(true)
    ld.Stamp = graph.IntStamp(0, 10)
    ld.Value = 8
    ld.Flags |= graph.FlagTrusted
    ret := g.Add(graph.KindReturn, ld)
    g.Chain(g.Start(), al, ld, ret)

    /* the length load is created after the load using it */
    st := stateAfter(state.HighTierLowering)
    Apply(Lowering{Stage: lowering.StageMid}, g, st, testContext())
    require.Equal(t, 2, countOf(g, graph.KindFloatingRead), dump(g))
    Apply(FixReads{}, g, st, testContext())
    require.Equal(t, 0, countOf(g, graph.KindFloatingRead))
    require.Equal(t, 2, countOf(g, graph.KindRead))
    require.Equal(t, graph.KindRead, ret.Input(0).Kind())
    requireScheduled(t, g)
}

func TestFixReads_InvalidAnchor(t *testing.T) {
    g := graph.New("reads")
    obj := g.Parameter(0, graph.ObjectStamp(true))
    ret := g.Add(graph.KindReturn, nil)
    g.SetNext(g.Start(), ret)
    ret.SetInput(0, g.Add(graph.KindFloatingRead, g.Add(graph.KindOffsetAddress, obj, g.Constant(8)), ret))
    requireInvariantError(t, func() { Apply(FixReads{}, g, stateAfter(state.MidTierLowering), testContext()) })
}

/* Start -> Read([obj + 16 + (i << 3)]) -> Return */
func scaledRead() (*graph.Graph, *graph.Node, *graph.Node) {
    g := graph.New("address")
    obj := g.Parameter(0, graph.ObjectStamp(true))
    idx := g.Parameter(1, graph.IntStamp(0, 100))
    off := g.Add(graph.KindAdd, g.Constant(16), g.Add(graph.KindLeftShift, idx, g.Constant(3)))
    rd := g.Add(graph.KindRead, g.Add(graph.KindOffsetAddress, obj, off))
    g.Chain(g.Start(), rd, g.Add(graph.KindReturn, rd))
    return g, rd, idx
}

func TestAddressLowering_AMD64(t *testing.T) {
    g, rd, idx := scaledRead()
    ctx := testContext()
    ctx.Addresses = &amd64.AddressLowering{}
    st := stateAfter(state.HighTierLowering, state.MidTierLowering, state.LowTierLowering)
    Apply(AddressLowering{}, g, st, ctx)

    /* the whole offset computation is folded into the operand */
    adr := rd.Input(0)
    require.Equal(t, graph.KindAMD64Address, adr.Kind())
    require.Equal(t, int64(16), adr.Value)
    require.Equal(t, uint8(3), adr.Scale)
    require.Equal(t, idx, adr.Input(1))
    require.Equal(t, 0, countOf(g, graph.KindOffsetAddress))
    require.Equal(t, 0, countOf(g, graph.KindAdd))
    require.Equal(t, 0, countOf(g, graph.KindLeftShift))
    require.True(t, st.IsAfterStage(state.AddressLowering))
}

func TestAddressLowering_Generic(t *testing.T) {
    g, rd, _ := scaledRead()
    adr := rd.Input(0)
    m := g.Mark()
    Apply(AddressLowering{}, g, stateAfter(state.MidTierLowering, state.LowTierLowering), testContext())
    require.Equal(t, adr, rd.Input(0))
    require.True(t, m.IsCurrent())
}

func TestAddressLowering_Applicability(t *testing.T) {
    require.NotNil(t, AddressLowering{}.NotApplicableTo(stateAfter(state.MidTierLowering)))
    require.Nil(t, AddressLowering{}.NotApplicableTo(stateAfter(state.LowTierLowering)))
    require.NotNil(t, AddressLowering{}.NotApplicableTo(stateAfter(state.LowTierLowering, state.AddressLowering)))
}
