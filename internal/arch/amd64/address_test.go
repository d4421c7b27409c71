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
    `testing`

    `github.com/cloudwego/gopt/graph`
    `github.com/cloudwego/gopt/internal/lowering`
    `github.com/stretchr/testify/require`
)

var _ lowering.AddressLowering = (*AddressLowering)(nil)

func indexed(g *graph.Graph, shift int64) (*graph.Node, *graph.Node, *graph.Node) {
    arr := g.Parameter(0, graph.ObjectStamp(true))
    idx := g.Parameter(1, graph.UnrestrictedInt())
    off := g.Add(graph.KindAdd, g.Constant(16), g.Add(graph.KindLeftShift, idx, g.Constant(shift)))
    return arr, idx, off
}

func TestAddressLowering_Displacement(t *testing.T) {
    g := graph.New("disp")
    obj := g.Parameter(0, graph.ObjectStamp(true))
    adr := (&AddressLowering{}).Lower(obj, g.Constant(24))
    require.Equal(t, graph.KindAMD64Address, adr.Kind())
    require.Equal(t, obj, adr.Input(0))
    require.Nil(t, adr.Input(1))
    require.Equal(t, int64(24), adr.Value)
}

func TestAddressLowering_ScaledIndex(t *testing.T) {
    g := graph.New("scaled")
    arr, idx, off := indexed(g, 3)
    adr := (&AddressLowering{}).Lower(arr, off)
    require.Equal(t, idx, adr.Input(1))
    require.Equal(t, uint8(3), adr.Scale)
    require.Equal(t, int64(16), adr.Value)
}

func TestAddressLowering_LargeShift(t *testing.T) {
    g := graph.New("shlx")
    arr, idx, off := indexed(g, 5)

    /* without BMI2 the shift stays a generic node */
    adr := (&AddressLowering{}).Lower(arr, off)
    require.Equal(t, graph.KindLeftShift, adr.Input(1).Kind())
    require.Equal(t, uint8(0), adr.Scale)

    /* with BMI2 it becomes a SHLX */
    adr = (&AddressLowering{BMI2: true}).Lower(arr, off)
    require.Equal(t, graph.KindAMD64Shlx, adr.Input(1).Kind())
    require.Equal(t, idx, adr.Input(1).Input(0))
    require.Equal(t, int64(16), adr.Value)
}

func TestAddressLowering_HugeDisplacement(t *testing.T) {
    g := graph.New("huge")
    obj := g.Parameter(0, graph.ObjectStamp(true))
    big := g.Constant(1 << 40)
    adr := (&AddressLowering{}).Lower(obj, big)
    require.Equal(t, big, adr.Input(1))
    require.Equal(t, int64(0), adr.Value)
}

func TestAddressLowering_PostProcess(t *testing.T) {
    g := graph.New("post")
    obj := g.Parameter(0, graph.ObjectStamp(true))
    c := g.Constant(8)
    adr := g.Add(graph.KindAMD64Address, obj, c)
    adr.Value = 16
    (&AddressLowering{}).PostProcess(adr)
    require.Nil(t, adr.Input(1))
    require.Equal(t, int64(24), adr.Value)
    require.True(t, c.IsDeleted())
}

func TestNewAddressLowering(t *testing.T) {
    require.NotNil(t, NewAddressLowering())
}
