/*
 *	Copyright 2023 Jan Pfeifer
 *
 *	Licensed under the Apache License, Version 2.0 (the "License");
 *	you may not use this file except in compliance with the License.
 *	You may obtain a copy of the License at
 *
 *	http://www.apache.org/licenses/LICENSE-2.0
 *
 *	Unless required by applicable law or agreed to in writing, software
 *	distributed under the License is distributed on an "AS IS" BASIS,
 *	WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 *	See the License for the specific language governing permissions and
 *	limitations under the License.
 */

// Package graphtest holds test utilities for backend packages: small kernel graphs with
// hand-checked outputs, and a runner that executes them against a backend.
//
// Every backend is expected to pass RunKernelCases exactly (delta 0 for these tiny
// fixtures would be too strict only for backends that reorder float accumulation, hence
// the caller provides the acceptable delta).
package graphtest

import (
	"context"
	"testing"

	"github.com/gomlx/crosscheck/backends"
	"github.com/gomlx/crosscheck/graph"
	"github.com/gomlx/crosscheck/types/tensors"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/stretchr/testify/require"
)

// KernelCase is one fixture: a validated graph and its expected output.
type KernelCase struct {
	Name  string
	Graph *graph.Graph
	Want  *tensors.Tensor
}

// KernelCases builds the known-answer fixtures, one per kernel kind plus a padded
// convolution variant.
func KernelCases(t *testing.T) []KernelCase {
	cases := []KernelCase{
		fullyConnectedCase(t),
		batchedMatMulCase(t),
		conv2DCase(t),
		conv2DPaddedCase(t),
	}
	return cases
}

func fullyConnectedCase(t *testing.T) KernelCase {
	g := graph.New("fixture-fc", backends.KernelFullyConnected, backends.KernelAttrs{}).
		AddInput("input", tensors.FromFlatDataAndDimensions([]float32{1, 2, 3, 4, 5, 6}, 2, 3)).
		AddWeight("weights", tensors.FromFlatDataAndDimensions([]float32{1, 0, 0, 1, 1, 1}, 3, 2)).
		AddWeight("bias", tensors.FromFlatDataAndDimensions([]float32{0.5, -0.5}, 2))
	require.NoError(t, g.Validate())
	want := tensors.FromFlatDataAndDimensions([]float32{4.5, 4.5, 10.5, 10.5}, 2, 2)
	return KernelCase{Name: "FullyConnected", Graph: g, Want: want}
}

func batchedMatMulCase(t *testing.T) KernelCase {
	g := graph.New("fixture-bmm", backends.KernelBatchedMatMul, backends.KernelAttrs{}).
		AddInput("lhs", tensors.FromFlatDataAndDimensions([]float32{
			1, 2, 3, 4, // batch 0
			0.5, 1, -1, 2, // batch 1
		}, 2, 2, 2)).
		AddWeight("rhs", tensors.FromFlatDataAndDimensions([]float32{
			1, 0, 0, 1, // batch 0: identity
			2, 1, 1, 0, // batch 1
		}, 2, 2, 2))
	require.NoError(t, g.Validate())
	want := tensors.FromFlatDataAndDimensions([]float32{
		1, 2, 3, 4,
		2, 0.5, 0, -1,
	}, 2, 2, 2)
	return KernelCase{Name: "BatchedMatMul", Graph: g, Want: want}
}

func conv2DCase(t *testing.T) KernelCase {
	g := graph.New("fixture-conv", backends.KernelConv2D, backends.KernelAttrs{}).
		AddInput("input", tensors.FromFlatDataAndDimensions([]float32{
			1, 2, 3,
			4, 5, 6,
			7, 8, 9,
		}, 1, 3, 3, 1)).
		AddWeight("filter", tensors.FromFlatDataAndDimensions([]float32{1, 0, 0, 1}, 1, 2, 2, 1)).
		AddWeight("bias", tensors.FromFlatDataAndDimensions([]float32{0.5}, 1))
	require.NoError(t, g.Validate())
	// Each output is the main-diagonal sum of its 2x2 window, plus the bias.
	want := tensors.FromFlatDataAndDimensions([]float32{6.5, 8.5, 12.5, 14.5}, 1, 2, 2, 1)
	return KernelCase{Name: "Conv2D", Graph: g, Want: want}
}

func conv2DPaddedCase(t *testing.T) KernelCase {
	g := graph.New("fixture-conv-padded", backends.KernelConv2D, backends.KernelAttrs{Padding: 1}).
		AddInput("input", tensors.FromFlatDataAndDimensions([]float32{
			1, 2, 3,
			4, 5, 6,
			7, 8, 9,
		}, 1, 3, 3, 1)).
		AddWeight("filter", tensors.FromFlatDataAndDimensions([]float32{1, 0, 0, 1}, 1, 2, 2, 1)).
		AddWeight("bias", tensors.FromFlatDataAndDimensions([]float32{0.5}, 1))
	require.NoError(t, g.Validate())
	want := tensors.FromFlatDataAndDimensions([]float32{
		1.5, 2.5, 3.5, 0.5,
		4.5, 6.5, 8.5, 3.5,
		7.5, 12.5, 14.5, 6.5,
		0.5, 7.5, 8.5, 9.5,
	}, 1, 4, 4, 1)
	return KernelCase{Name: "Conv2DPadded", Graph: g, Want: want}
}

// RunKernelCases executes every fixture on the backend and requires each output to
// match within maxDelta per element.
func RunKernelCases(t *testing.T, backend backends.Backend, maxDelta float64) {
	for _, kc := range KernelCases(t) {
		t.Run(kc.Name, func(t *testing.T) {
			got, err := graph.Execute(context.Background(), kc.Graph, backend, graph.ExecOptions{})
			require.NoError(t, err)
			requireSameValues(t, kc.Want, got, maxDelta)
		})
	}
}

// requireSameValues checks shape equality and element-wise closeness.
func requireSameValues(t *testing.T, want, got *tensors.Tensor, maxDelta float64) {
	require.True(t, want.Shape().EqualDimensions(got.Shape()),
		"shapes differ: want %s, got %s", want.Shape(), got.Shape())
	wantValues := want.Float64Values()
	gotValues := got.Float64Values()
	for i := range wantValues {
		require.InDelta(t, wantValues[i], gotValues[i], maxDelta,
			"element #%d: want %g, got %g", i, wantValues[i], gotValues[i])
	}
}

// Float16Graph converts a Full-precision fixture graph to Float16 storage, for backends
// exercising their reduced-precision path directly.
func Float16Graph(t *testing.T, g *graph.Graph) *graph.Graph {
	g16 := graph.New(g.Name()+"-f16", g.Kind(), g.Attrs())
	for _, in := range g.Inputs() {
		g16.AddInput(in.Name, in.Tensor.ConvertTo(dtypes.Float16))
	}
	for _, w := range g.Weights() {
		g16.AddWeight(w.Name, w.Tensor.ConvertTo(dtypes.Float16))
	}
	require.NoError(t, g16.Validate())
	return g16
}
