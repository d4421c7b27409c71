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

package amd64

import (
    `math`

    `github.com/cloudwego/gopt/graph`
    `github.com/klauspost/cpuid/v2`
)

// MaxScale is the largest index shift an AMD64 memory operand can encode.
const MaxScale = 3

// AddressLowering folds displacements and scaled indices into AMD64Address
// nodes, the [base + index * scale + disp] operand of the target.
type AddressLowering struct {
    BMI2 bool
}

// NewAddressLowering probes the host for the features the strategy uses.
func NewAddressLowering() *AddressLowering {
    return &AddressLowering {
        BMI2: cpuid.CPU.Supports(cpuid.BMI2),
    }
}

func (self *AddressLowering) PreProcess(*graph.Graph) {}

// PostProcess drops the index of addresses that only add a displacement.
func (self *AddressLowering) PostProcess(addr *graph.Node) {
    if addr.Kind() == graph.KindAMD64Address && addr.Scale == 0 {
        if idx := addr.Input(1); idx != nil && idx.Kind() == graph.KindConstant && isDisp(addr.Value + idx.Value) {
            addr.Value += idx.Value
            addr.SetInput(1, nil)
            addr.Changed()
            addr.Graph().KillIfUnused(idx)
        }
    }
}

func (self *AddressLowering) Lower(base *graph.Node, offset *graph.Node) *graph.Node {
    g := base.Graph()
    idx, disp := splitDisp(offset)

    /* fold small shifts into the scale, SHLX the others if possible */
    scale := uint8(0)
    if idx != nil && idx.Kind() == graph.KindLeftShift {
        if sh := idx.Input(1); sh.Kind() == graph.KindConstant {
            switch {
                case sh.Value >= 0 && sh.Value <= MaxScale : idx, scale = idx.Input(0), uint8(sh.Value)
                case self.BMI2                             : idx = g.Add(graph.KindAMD64Shlx, idx.Input(0), sh)
            }
        }
    }

    /* build the memory operand */
    ret := g.Add(graph.KindAMD64Address, base, idx)
    ret.Value = disp
    ret.Scale = scale
    return ret
}

func splitDisp(offset *graph.Node) (*graph.Node, int64) {
    switch {
        case offset.Kind() == graph.KindConstant && isDisp(offset.Value) : return nil, offset.Value
        case offset.Kind() != graph.KindAdd                              : return offset, 0
    }

    /* either side of an addition may be the displacement */
    x, y := offset.Input(0), offset.Input(1)
    switch {
        case x.Kind() == graph.KindConstant && isDisp(x.Value) : return y, x.Value
        case y.Kind() == graph.KindConstant && isDisp(y.Value) : return x, y.Value
        default                                                : return offset, 0
    }
}

func isDisp(v int64) bool {
    return v >= math.MinInt32 && v <= math.MaxInt32
}
