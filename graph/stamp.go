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
    `math`
)

type StampKind uint8

const (
    StampVoid StampKind = iota
    StampInt
    StampObject
)

// Stamp describes the set of values a node may produce.
type Stamp struct {
    Kind    StampKind
    Lo      int64
    Hi      int64
    NonNull bool
    Empty   bool
}

func IntStamp(lo int64, hi int64) Stamp {
    return Stamp {
        Kind  : StampInt,
        Lo    : lo,
        Hi    : hi,
        Empty : lo > hi,
    }
}

func UnrestrictedInt() Stamp {
    return IntStamp(math.MinInt64, math.MaxInt64)
}

func ConstantStamp(v int64) Stamp {
    return IntStamp(v, v)
}

func ObjectStamp(nonNull bool) Stamp {
    return Stamp {
        Kind    : StampObject,
        NonNull : nonNull,
    }
}

func (self Stamp) IsEmpty() bool {
    return self.Empty
}

// IsCompatible reports whether both stamps describe the same kind of value.
// Empty stamps are never compatible, they only show up in unreachable code.
func (self Stamp) IsCompatible(other Stamp) bool {
    return self.Kind == other.Kind && !self.Empty && !other.Empty
}

// Join computes the most precise stamp describing values in both stamps.
func (self Stamp) Join(other Stamp) Stamp {
    if self.Kind != other.Kind {
        return Stamp { Kind: self.Kind, Empty: true }
    }

    /* object stamps only track nullness */
    if self.Kind == StampObject {
        return Stamp {
            Kind    : StampObject,
            NonNull : self.NonNull || other.NonNull,
            Empty   : self.Empty || other.Empty,
        }
    }

    /* intersect integer ranges */
    lo, hi := self.Lo, self.Hi
    if other.Lo > lo { lo = other.Lo }
    if other.Hi < hi { hi = other.Hi }

    /* empty if either side is empty or the ranges are disjoint */
    ret := IntStamp(lo, hi)
    ret.Empty = ret.Empty || self.Empty || other.Empty
    return ret
}

func (self Stamp) String() string {
    switch {
        case self.Empty                : return "empty"
        case self.Kind == StampVoid    : return "void"
        case self.Kind == StampObject  : if self.NonNull { return "object!" } else { return "object" }
        case self.Lo == self.Hi        : return fmt.Sprintf("i64 [%d]", self.Lo)
        default                        : return fmt.Sprintf("i64 [%d, %d]", self.Lo, self.Hi)
    }
}
