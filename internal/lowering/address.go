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
    `github.com/cloudwego/gopt/graph`
)

// AddressLowering turns generic base+offset addresses into the addressing
// modes of the target.
type AddressLowering interface {
    PreProcess(g *graph.Graph)
    Lower(base *graph.Node, offset *graph.Node) *graph.Node
    PostProcess(addr *graph.Node)
}

// GenericAddressLowering keeps the generic base+offset form.
type GenericAddressLowering struct{}

func (GenericAddressLowering) PreProcess(*graph.Graph) {}
func (GenericAddressLowering) PostProcess(*graph.Node) {}

func (GenericAddressLowering) Lower(base *graph.Node, offset *graph.Node) *graph.Node {
    return base.Graph().Unique(graph.KindOffsetAddress, base, offset)
}
