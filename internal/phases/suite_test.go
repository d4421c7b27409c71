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
    `sync/atomic`
    `testing`

    `github.com/brianvoe/gofakeit/v6`
    `github.com/cloudwego/gopt/graph`
    `github.com/cloudwego/gopt/internal/gc`
    `github.com/cloudwego/gopt/internal/lowering`
    `github.com/cloudwego/gopt/internal/state`
    `github.com/stretchr/testify/require`
)

type fakePhase struct {
    name    string
    runs    *int
    must    bool
    blocked bool
    skip    bool
    loops   bool
}

func (self fakePhase) Name() string                            { return self.name }
func (self fakePhase) MustApply(*state.GraphState) bool        { return self.must }
func (self fakePhase) ShouldApply(*graph.Graph, *Context) bool { return !self.skip }
func (self fakePhase) OptimizesLoops() bool                    { return self.loops }
func (self fakePhase) UpdateGraphState(*state.GraphState)      {}

func (self fakePhase) NotApplicableTo(*state.GraphState) *NotApplicable {
    return When(self.blocked, "%s is blocked", self.name)
}

func (self fakePhase) Run(*graph.Graph, *Context) {
    *self.runs++
}

func emptyGraph() *graph.Graph {
    g := graph.New("empty")
    g.SetNext(g.Start(), g.Add(graph.KindReturn, g.Constant(0)))
    return g
}

func TestSuite_Dedup(t *testing.T) {
    s := NewSuite("test",
        Lowering{Stage: lowering.StageHigh},
        Lowering{Stage: lowering.StageMid},
        Lowering{Stage: lowering.StageHigh},
        BoxNodeIdentity{},
    )
    require.Equal(t, "test", s.Name())
    require.Len(t, s.Phases(), 3)
    require.False(t, s.Append(BoxNodeIdentity{}))
    require.True(t, s.Append(WriteBarrierAddition{Stage: gc.StageLowTier}))
    require.Equal(t, []Phase {
        Lowering{Stage: lowering.StageHigh},
        Lowering{Stage: lowering.StageMid},
        BoxNodeIdentity{},
        WriteBarrierAddition{Stage: gc.StageLowTier},
    }, s.Phases())
}

/* a phase carrying a callback, its dynamic type is not comparable */
type hookPhase struct {
    fakePhase
    hook func()
}

func TestSuite_NonComparablePhase(t *testing.T) {
    runs := 0
    p := hookPhase{fakePhase: fakePhase{name: "hook", runs: &runs}, hook: func() {}}
    s := NewSuite("test", p, BoxNodeIdentity{})
    require.NotPanics(t, func() { s.Append(p) })
    require.Len(t, s.Phases(), 3)
    require.False(t, s.Append(BoxNodeIdentity{}))
    s.Apply(emptyGraph(), state.New(), testContext())
    require.Equal(t, 2, runs)
}

func TestSuite_SkipsIneligible(t *testing.T) {
    n := 0
    skipped := atomic.LoadUint64(&SkippedCount)
    NewSuite("test", fakePhase{name: "a", runs: &n, blocked: true}).Apply(emptyGraph(), state.New(), testContext())
    require.Equal(t, 0, n)
    require.Equal(t, skipped + 1, atomic.LoadUint64(&SkippedCount))
}

func TestSuite_Filter(t *testing.T) {
    n := 0
    NewSuite("test", fakePhase{name: "a", runs: &n, skip: true}).Apply(emptyGraph(), state.New(), testContext())
    require.Equal(t, 0, n)
    NewSuite("test", fakePhase{name: "a", runs: &n}).Apply(emptyGraph(), state.New(), testContext())
    require.Equal(t, 1, n)
}

func TestSuite_ObligationOverridesFilter(t *testing.T) {
    n := 0
    NewSuite("test", fakePhase{name: "a", runs: &n, skip: true, must: true}).Apply(emptyGraph(), state.New(), testContext())
    require.Equal(t, 1, n)
}

func TestSuite_ObligationNotApplicable(t *testing.T) {
    n := 0
    s := NewSuite("test", fakePhase{name: "a", runs: &n, blocked: true, must: true})
    err := requireInvariantError(t, func() { s.Apply(emptyGraph(), state.New(), testContext()) })
    require.Contains(t, err.Error(), "a is required but not applicable: a is blocked")
    require.Equal(t, 0, n)
}

func TestSuite_LoopOptimizerNeedsOverflowCheck(t *testing.T) {
    n := 0
    lp := fakePhase{name: "loops", runs: &n, loops: true}

    /* nothing disables the overflown loops */
    err := requireInvariantError(t, func() { NewSuite("test", lp).Apply(emptyGraph(), state.New(), testContext()) })
    require.Contains(t, err.Error(), "loops optimizes loops before LOOP_OVERFLOWS_CHECKED")
    require.Equal(t, 0, n)

    /* the check is forced even on graphs without loops */
    st := state.New()
    NewSuite("test", DisableOverflownCountedLoops{}, lp).Apply(emptyGraph(), st, testContext())
    require.Equal(t, 1, n)
    require.True(t, st.IsAfterStage(state.LoopOverflowsChecked))
    require.False(t, st.RequiresFutureStage(state.LoopOverflowsChecked))
}

func TestApply_Ineligible(t *testing.T) {
    g := emptyGraph()
    err := requireInvariantError(t, func() { Apply(Lowering{Stage: lowering.StageMid}, g, state.New(), testContext()) })
    require.Contains(t, err.Error(), "applying MidTierLowering while not applicable")
}

func TestThen(t *testing.T) {
    n := 0
    p := Then(fakePhase{name: "a", runs: &n}, BoxNodeIdentity{})
    require.Equal(t, "a+BoxNodeIdentity", p.Name())
    require.True(t, shouldApply(p, emptyGraph(), testContext()))
    require.False(t, optimizesLoops(p))

    /* both halves run and record their effects */
    st := state.New()
    Apply(p, emptyGraph(), st, testContext())
    require.Equal(t, 1, n)
    require.True(t, st.IsAfterStage(state.BoxNodeIdentity))
    require.NotNil(t, p.NotApplicableTo(st))

    /* the first half decides the filter and the loop property */
    q := Then(fakePhase{name: "b", runs: &n, skip: true, loops: true}, DisableOverflownCountedLoops{})
    require.False(t, shouldApply(q, emptyGraph(), testContext()))
    require.True(t, optimizesLoops(q))
}

func TestOptimize_Error(t *testing.T) {
    n := 0
    failed := atomic.LoadUint64(&FailedCount)
    s := NewSuite("test", fakePhase{name: "a", runs: &n, blocked: true, must: true})
    err := Optimize(emptyGraph(), state.New(), testContext(), s)
    require.Error(t, err)
    require.IsType(t, (*graph.InvariantError)(nil), err)
    require.Equal(t, failed + 1, atomic.LoadUint64(&FailedCount))
}

func TestOptimize_Success(t *testing.T) {
    compiled := atomic.LoadUint64(&CompiledCount)
    st := state.New()
    require.NoError(t, Optimize(emptyGraph(), st, testContext(), DefaultSuites()...))
    require.Equal(t, compiled + 1, atomic.LoadUint64(&CompiledCount))
    require.True(t, st.IsAfterStage(state.HighTierLowering))
    require.True(t, st.IsAfterStage(state.MidTierLowering))
    require.True(t, st.IsAfterStage(state.LowTierLowering))
    require.True(t, st.IsAfterStage(state.FixedReads))
    require.True(t, st.IsAfterStage(state.AddressLowering))
    require.True(t, st.RanBefore(state.LowTierBarrierAddition, state.LowTierLowering))
}

type phaseCase struct {
    p    Phase
    once bool
}

func allPhases() []phaseCase {
    return []phaseCase {
        { BoxNodeIdentity{}                                   , true  },
        { RemoveValueProxies{}                                , true  },
        { LoopSafepointInsertion{}                            , true  },
        { Lowering{Stage: lowering.StageHigh}                 , true  },
        { Lowering{Stage: lowering.StageMid}                  , true  },
        { Lowering{Stage: lowering.StageLow}                  , true  },
        { FixReads{}                                          , true  },
        { WriteBarrierAddition{Stage: gc.StageMidTier}        , true  },
        { WriteBarrierAddition{Stage: gc.StageLowTier}        , true  },
        { AddressLowering{}                                   , true  },
        { RemoveOpaqueValues{}                                , true  },
        { DisableOverflownCountedLoops{}                      , false },
        { IterativeConditionalElimination{}                   , false },
        { IterativeConditionalElimination{FullSchedule: true} , false },
        { ConditionalElimination{}                            , false },
        { RemoveRedundantPis{}                                , false },
    }
}

func TestPhases_MonotonicFlags(t *testing.T) {
    list := allPhases()
    fk := gofakeit.New(42)

    /* random walks over the eligible phases */
    for i := 0; i < 32; i++ {
        g := emptyGraph()
        st := state.New()
        for j := 0; j < 64; j++ {
            c := list[fk.Number(0, len(list) - 1)]
            if c.p.NotApplicableTo(st) != nil {
                continue
            }

            /* flags are never cleared */
            prev := st.CompletedStages()
            Apply(c.p, g, st, testContext())
            require.Subset(t, st.CompletedStages(), prev, c.p.Name())
            for k, f := range prev {
                require.Equal(t, k, st.Index(f), c.p.Name())
            }

            /* one-shot phases cannot run again */
            if c.once {
                require.NotNil(t, c.p.NotApplicableTo(st), c.p.Name())
                requireInvariantError(t, func() { Apply(c.p, g, st, testContext()) })
            }
        }
    }
}
