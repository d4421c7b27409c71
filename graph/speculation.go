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
    `sync`
)

type SpeculationGroup uint8

const (
    SpeculateCountedLoopOverflow SpeculationGroup = iota
    SpeculateGuardMovement
    SpeculateNullCheck
)

func (self SpeculationGroup) String() string {
    switch self {
        case SpeculateCountedLoopOverflow : return "CountedLoopOverflow"
        case SpeculateGuardMovement       : return "GuardMovement"
        case SpeculateNullCheck           : return "NullCheck"
        default                           : return fmt.Sprintf("SpeculationGroup(%d)", self)
    }
}

// SpeculationReason identifies one speculative assumption in the compiled code.
type SpeculationReason struct {
    Group SpeculationGroup
    Pos   SourcePosition
}

// SpeculationLog records the speculations that already failed (deoptimized)
// for the code being compiled. It may be shared by several compilations of
// the same method, so it is safe for concurrent use.
type SpeculationLog struct {
    mu     sync.RWMutex
    failed map[SpeculationReason]struct{}
}

func NewSpeculationLog() *SpeculationLog {
    return &SpeculationLog {
        failed: make(map[SpeculationReason]struct{}),
    }
}

// MaySpeculate reports whether the speculation has not failed before.
func (self *SpeculationLog) MaySpeculate(reason SpeculationReason) bool {
    self.mu.RLock()
    _, ok := self.failed[reason]
    self.mu.RUnlock()
    return !ok
}

// RecordFailure remembers that the speculation deoptimized.
func (self *SpeculationLog) RecordFailure(reason SpeculationReason) {
    self.mu.Lock()
    self.failed[reason] = struct{}{}
    self.mu.Unlock()
}
