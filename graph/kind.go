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
)

// Kind is the closed node-kind catalog.
type Kind uint8

const (
    /* fixed nodes */
    KindStart Kind = iota
    KindBegin
    KindEnd
    KindMerge
    KindLoopBegin
    KindLoopEnd
    KindLoopExit
    KindIf
    KindReturn
    KindDeoptimize
    KindFixedGuard
    KindSafepoint
    KindInvoke
    KindLoadField
    KindStoreField
    KindLoadIndexed
    KindStoreIndexed
    KindArrayLength
    KindRead
    KindWrite
    KindPreWriteBarrier
    KindPostWriteBarrier
    KindSATBEnqueue

    /* floating nodes */
    KindConstant
    KindParameter
    KindAdd
    KindLeftShift
    KindUnsignedRightShift
    KindAddressAsInt
    KindIntegerEquals
    KindIntegerLessThan
    KindIntegerBelow
    KindObjectEquals
    KindPhi
    KindValueProxy
    KindPi
    KindBox
    KindOpaque
    KindFrameState
    KindFloatingRead
    KindOffsetAddress
    KindAMD64Address
    KindAMD64Shlx

    numKinds
)

// NumKinds is the size of the node-kind catalog, used to size per-kind tables.
const NumKinds = int(numKinds)

type _KindInfo struct {
    name  string
    fixed bool
    split bool
    term  bool
    logic bool
}

var _KindTab = [numKinds]_KindInfo {
    KindStart              : { name: "Start"            , fixed: true },
    KindBegin              : { name: "Begin"            , fixed: true },
    KindEnd                : { name: "End"              , fixed: true, term: true },
    KindMerge              : { name: "Merge"            , fixed: true },
    KindLoopBegin          : { name: "LoopBegin"        , fixed: true },
    KindLoopEnd            : { name: "LoopEnd"          , fixed: true, term: true },
    KindLoopExit           : { name: "LoopExit"         , fixed: true },
    KindIf                 : { name: "If"               , fixed: true, split: true },
    KindReturn             : { name: "Return"           , fixed: true, term: true },
    KindDeoptimize         : { name: "Deoptimize"       , fixed: true, term: true },
    KindFixedGuard         : { name: "FixedGuard"       , fixed: true },
    KindSafepoint          : { name: "Safepoint"        , fixed: true },
    KindInvoke             : { name: "Invoke"           , fixed: true },
    KindLoadField          : { name: "LoadField"        , fixed: true },
    KindStoreField         : { name: "StoreField"       , fixed: true },
    KindLoadIndexed        : { name: "LoadIndexed"      , fixed: true },
    KindStoreIndexed       : { name: "StoreIndexed"     , fixed: true },
    KindArrayLength        : { name: "ArrayLength"      , fixed: true },
    KindRead               : { name: "Read"             , fixed: true },
    KindWrite              : { name: "Write"            , fixed: true },
    KindPreWriteBarrier    : { name: "PreWriteBarrier"  , fixed: true },
    KindPostWriteBarrier   : { name: "PostWriteBarrier" , fixed: true },
    KindSATBEnqueue        : { name: "SATBEnqueue"      , fixed: true },
    KindConstant           : { name: "Constant" },
    KindParameter          : { name: "Parameter" },
    KindAdd                : { name: "Add" },
    KindLeftShift          : { name: "LeftShift" },
    KindUnsignedRightShift : { name: "UnsignedRightShift" },
    KindAddressAsInt       : { name: "AddressAsInt" },
    KindIntegerEquals      : { name: "IntegerEquals"    , logic: true },
    KindIntegerLessThan    : { name: "IntegerLessThan"  , logic: true },
    KindIntegerBelow       : { name: "IntegerBelow"     , logic: true },
    KindObjectEquals       : { name: "ObjectEquals"     , logic: true },
    KindPhi                : { name: "Phi" },
    KindValueProxy         : { name: "ValueProxy" },
    KindPi                 : { name: "Pi" },
    KindBox                : { name: "Box" },
    KindOpaque             : { name: "Opaque" },
    KindFrameState         : { name: "FrameState" },
    KindFloatingRead       : { name: "FloatingRead" },
    KindOffsetAddress      : { name: "OffsetAddress" },
    KindAMD64Address       : { name: "AMD64Address" },
    KindAMD64Shlx          : { name: "AMD64Shlx" },
}

func (self Kind) String() string {
    if self < numKinds {
        return _KindTab[self].name
    } else {
        return fmt.Sprintf("Kind(%d)", self)
    }
}

// IsFixed reports whether nodes of this kind live in the control-flow chain.
func (self Kind) IsFixed() bool {
    return self < numKinds && _KindTab[self].fixed
}

// IsSplit reports whether nodes of this kind have more than one control successor.
func (self Kind) IsSplit() bool {
    return self < numKinds && _KindTab[self].split
}

// IsTerminator reports whether nodes of this kind end a control-flow chain.
func (self Kind) IsTerminator() bool {
    return self < numKinds && _KindTab[self].term
}

// IsLogic reports whether nodes of this kind produce a condition.
func (self Kind) IsLogic() bool {
    return self < numKinds && _KindTab[self].logic
}

// IsMerge reports whether the kind joins several control-flow ends.
func (self Kind) IsMerge() bool {
    return self == KindMerge || self == KindLoopBegin
}

// IsAbstractEnd reports whether the kind ends a chain flowing into a merge.
func (self Kind) IsAbstractEnd() bool {
    return self == KindEnd || self == KindLoopEnd
}
