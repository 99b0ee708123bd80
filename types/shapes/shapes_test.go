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

package shapes

import (
	"testing"

	. "github.com/gomlx/gopjrt/dtypes"
	"github.com/stretchr/testify/require"
)

func TestShape(t *testing.T) {
	require.False(t, Invalid().Ok())

	scalar := Make(Float64)
	require.True(t, scalar.Ok())
	require.True(t, scalar.IsScalar())
	require.Equal(t, 0, scalar.Rank())
	require.Equal(t, 1, scalar.Size())
	require.Equal(t, 8, int(scalar.Memory()))

	image := Make(Float32, 4, 28, 28, 3)
	require.True(t, image.Ok())
	require.False(t, image.IsScalar())
	require.Equal(t, 4, image.Rank())
	require.Equal(t, 4*28*28*3, image.Size())
	require.Equal(t, 4*4*28*28*3, int(image.Memory()))
	require.Equal(t, "(Float32)[4 28 28 3]", image.String())

	require.Equal(t, 4, image.Dim(0))
	require.Equal(t, 3, image.Dim(-1))
	require.Equal(t, 28, image.Dim(-3))

	require.True(t, image.Equal(Make(Float32, 4, 28, 28, 3)))
	require.False(t, image.Equal(Make(Float32, 4, 28, 28)))
	require.False(t, image.Equal(Make(Float16, 4, 28, 28, 3)))
	require.True(t, image.EqualDimensions(Make(Int8, 4, 28, 28, 3)))

	// Float16 occupies two bytes per element.
	require.Equal(t, 2*2*32, int(Make(Float16, 2, 32).Memory()))

	clone := image.Clone()
	clone.Dimensions[1] = 7
	require.Equal(t, 28, image.Dimensions[1])

	// Dimensions must be positive.
	require.Panics(t, func() { Make(Float32, 8, 0) })
	require.Panics(t, func() { Make(Int8, -2) })
}

func TestShapeChecks(t *testing.T) {
	weights := Make(Int8, 32, 8)
	require.NoError(t, weights.CheckDims(32, 8))
	require.NoError(t, weights.CheckDims(-1, 8))
	require.Error(t, weights.CheckDims(8, 32))
	require.Error(t, weights.CheckDims(32))

	require.NoError(t, weights.Check(Int8, 32, 8))
	require.Error(t, weights.Check(Float32, 32, 8))

	require.NoError(t, weights.CheckRank(2))
	require.Error(t, weights.CheckRank(4))
	require.Error(t, weights.CheckScalar())
	require.NoError(t, Make(Float32).CheckScalar())

	require.NotPanics(t, func() { weights.AssertDims(32, -1) })
	require.Panics(t, func() { weights.AssertDims(7, 8) })
	require.Panics(t, func() { weights.Assert(Float16, 32, 8) })
	require.Panics(t, func() { weights.AssertScalar() })
	require.NotPanics(t, func() { AssertRank(weights, 2) })
	require.Panics(t, func() { AssertRank(weights, 3) })
	require.NotPanics(t, func() { weights.AssertRank(2) })
}
