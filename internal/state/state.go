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

package state

import (
    `fmt`
    `strings`
)

// StageFlag marks a pipeline milestone. Phases express their ordering
// constraints by querying which flags are already set.
type StageFlag uint8

const (
    HighTierLowering StageFlag = iota
    PartialEscape
    FinalPartialEscape
    BoxNodeIdentity
    LoopOverflowsChecked
    ValueProxyRemoval
    SafepointsInsertion
    GuardLowering
    MidTierLowering
    MidTierBarrierAddition
    FixedReads
    LowTierLowering
    LowTierBarrierAddition
    AddressLowering
    RemoveOpaqueValues

    numStageFlags
)

var _StageNames = [numStageFlags]string {
    HighTierLowering       : "HIGH_TIER_LOWERING",
    PartialEscape          : "PARTIAL_ESCAPE",
    FinalPartialEscape     : "FINAL_PARTIAL_ESCAPE",
    BoxNodeIdentity        : "BOX_NODE_IDENTITY",
    LoopOverflowsChecked   : "LOOP_OVERFLOWS_CHECKED",
    ValueProxyRemoval      : "VALUE_PROXY_REMOVAL",
    SafepointsInsertion    : "SAFEPOINTS_INSERTION",
    GuardLowering          : "GUARD_LOWERING",
    MidTierLowering        : "MID_TIER_LOWERING",
    MidTierBarrierAddition : "MID_TIER_BARRIER_ADDITION",
    FixedReads             : "FIXED_READS",
    LowTierLowering        : "LOW_TIER_LOWERING",
    LowTierBarrierAddition : "LOW_TIER_BARRIER_ADDITION",
    AddressLowering        : "ADDRESS_LOWERING",
    RemoveOpaqueValues     : "REMOVE_OPAQUE_VALUES",
}

func (self StageFlag) String() string {
    if self < numStageFlags {
        return _StageNames[self]
    } else {
        return fmt.Sprintf("StageFlag(%d)", self)
    }
}

// StageFlags lists every known stage flag in declaration order.
func StageFlags() []StageFlag {
    ret := make([]StageFlag, numStageFlags)
    for i := range ret {
        ret[i] = StageFlag(i)
    }
    return ret
}

// FrameStateVerification is how strictly frame states are verified. The
// level can only be weakened: All -> AllExceptLoopExit -> None.
type FrameStateVerification uint8

const (
    VerifyAll FrameStateVerification = iota
    VerifyAllExceptLoopExit
    VerifyNone
)

func (self FrameStateVerification) String() string {
    switch self {
        case VerifyAll               : return "ALL"
        case VerifyAllExceptLoopExit : return "ALL_EXCEPT_LOOP_EXIT"
        case VerifyNone              : return "NONE"
        default                      : return fmt.Sprintf("FrameStateVerification(%d)", self)
    }
}

// Implies reports whether verifying at this level covers the other level.
func (self FrameStateVerification) Implies(other FrameStateVerification) bool {
    return self <= other
}

// GraphState is the per-compilation record of completed stages. It is passed
// explicitly to every phase and is only written by phases' state updates.
type GraphState struct {
    done  uint64
    need  uint64
    order []StageFlag
    fsv   FrameStateVerification
}

// New returns the state of a freshly built graph.
func New() *GraphState {
    return &GraphState {
        fsv: VerifyAll,
    }
}

// IsAfterStage reports whether the stage already completed.
func (self *GraphState) IsAfterStage(f StageFlag) bool {
    return self.done & bit(f) != 0
}

// IsBeforeStage reports whether the stage has not completed yet.
func (self *GraphState) IsBeforeStage(f StageFlag) bool {
    return !self.IsAfterStage(f)
}

// SetAfterStage records the completion of a stage. Setting an already
// completed stage is a no-op and keeps its original position.
func (self *GraphState) SetAfterStage(f StageFlag) {
    if !self.IsAfterStage(f) {
        self.done |= bit(f)
        self.order = append(self.order, f)
    }
}

// Index returns the position at which the stage completed, or -1.
func (self *GraphState) Index(f StageFlag) int {
    for i, v := range self.order {
        if v == f {
            return i
        }
    }
    return -1
}

// RanBefore reports whether both stages completed and a completed before b.
func (self *GraphState) RanBefore(a StageFlag, b StageFlag) bool {
    i, j := self.Index(a), self.Index(b)
    return i >= 0 && j >= 0 && i < j
}

// CompletedStages returns the completed stages in completion order.
func (self *GraphState) CompletedStages() []StageFlag {
    return append([]StageFlag(nil), self.order...)
}

// AddFutureStageRequirement records an obligation for a stage to (re-)run.
func (self *GraphState) AddFutureStageRequirement(f StageFlag) {
    self.need |= bit(f)
}

// RemoveRequirementToStage discharges a future obligation.
func (self *GraphState) RemoveRequirementToStage(f StageFlag) {
    self.need &^= bit(f)
}

// RequiresFutureStage reports whether a phase is obliged to establish f.
func (self *GraphState) RequiresFutureStage(f StageFlag) bool {
    return self.need & bit(f) != 0
}

// Requirements lists the pending future-stage obligations.
func (self *GraphState) Requirements() []StageFlag {
    var ret []StageFlag
    for _, f := range StageFlags() {
        if self.RequiresFutureStage(f) {
            ret = append(ret, f)
        }
    }
    return ret
}

func (self *GraphState) FrameStateVerification() FrameStateVerification {
    return self.fsv
}

// CanWeakenFrameStateVerification reports whether the level may move to v.
func (self *GraphState) CanWeakenFrameStateVerification(v FrameStateVerification) bool {
    return v <= VerifyNone && self.fsv.Implies(v)
}

// WeakenFrameStateVerification lowers the verification level. Strengthening
// it back is an invariant violation.
func (self *GraphState) WeakenFrameStateVerification(v FrameStateVerification) {
    if !self.CanWeakenFrameStateVerification(v) {
        panic(fmt.Sprintf("state: cannot weaken frame state verification from %s to %s", self.fsv, v))
    }
    self.fsv = v
}

// Copy returns an independent copy of the state.
func (self *GraphState) Copy() *GraphState {
    ret := *self
    ret.order = append([]StageFlag(nil), self.order...)
    return &ret
}

func (self *GraphState) String() string {
    done := make([]string, 0, len(self.order))
    need := make([]string, 0, numStageFlags)

    /* completed stages, in order */
    for _, f := range self.order {
        done = append(done, f.String())
    }

    /* pending requirements */
    for _, f := range self.Requirements() {
        need = append(need, f.String())
    }

    /* dump as string */
    return fmt.Sprintf(
        "GraphState { stages: [%s], requires: [%s], frame states: %s }",
        strings.Join(done, ", "),
        strings.Join(need, ", "),
        self.fsv,
    )
}

func bit(f StageFlag) uint64 {
    if f >= numStageFlags {
        panic("state: invalid stage flag")
    } else {
        return 1 << f
    }
}
