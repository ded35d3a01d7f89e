// Copyright 2021 Matrix Origin
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package vector

import (
	"bytes"
	"testing"

	"github.com/shenh062326/velox/pkg/container/nulls"
	"github.com/shenh062326/velox/pkg/container/types"
	"github.com/stretchr/testify/require"
)

func TestAppendFixed(t *testing.T) {
	vec := NewVec(types.New(types.T_int64))
	AppendFixed[int64](vec, 5, false)
	AppendFixed[int64](vec, 0, true)
	AppendFixed[int64](vec, 7, false)

	require.Equal(t, 3, vec.Length())
	col := MustFixedCol[int64](vec)
	require.Equal(t, []int64{5, 0, 7}, col)
	require.True(t, nulls.Contains(vec.GetNulls(), 1))
	require.False(t, nulls.Contains(vec.GetNulls(), 0))
}

func TestAppendBytes(t *testing.T) {
	vec := NewVec(types.New(types.T_varchar))
	long := bytes.Repeat([]byte("ab"), 40)
	AppendBytes(vec, []byte("hi"), false)
	AppendBytes(vec, long, false)
	AppendBytes(vec, nil, true)

	require.Equal(t, 3, vec.Length())
	require.Equal(t, "hi", vec.GetString(0))
	require.Equal(t, long, vec.GetBytes(1))
	require.True(t, nulls.Contains(vec.GetNulls(), 2))
}

func TestShrink(t *testing.T) {
	vec := NewVec(types.New(types.T_int32))
	for i := int32(0); i < 10; i++ {
		AppendFixed(vec, i, i == 4)
	}
	vec.Shrink([]int64{1, 4, 8})

	require.Equal(t, 3, vec.Length())
	require.Equal(t, []int32{1, 0, 8}, MustFixedCol[int32](vec))
	// null at old row 4 follows to new row 1
	require.True(t, nulls.Contains(vec.GetNulls(), 1))
	require.False(t, nulls.Contains(vec.GetNulls(), 0))
}

func TestShrinkVarlen(t *testing.T) {
	vec := NewVec(types.New(types.T_varchar))
	AppendBytes(vec, []byte("aaa"), false)
	AppendBytes(vec, bytes.Repeat([]byte("b"), 50), false)
	AppendBytes(vec, []byte("ccc"), false)
	vec.Shrink([]int64{1, 2})

	require.Equal(t, 2, vec.Length())
	require.Equal(t, bytes.Repeat([]byte("b"), 50), vec.GetBytes(0))
	require.Equal(t, "ccc", vec.GetString(1))
}

func TestConstVector(t *testing.T) {
	vec := NewConstFixed[int64](types.New(types.T_int64), 42, 100)
	require.True(t, vec.IsConst())
	require.Equal(t, 100, vec.Length())
	require.Equal(t, int64(42), GetFixedAt[int64](vec, 57))

	vec.Shrink([]int64{3, 9})
	require.Equal(t, 2, vec.Length())
	require.Equal(t, int64(42), GetFixedAt[int64](vec, 1))

	nv := NewConstNull(types.New(types.T_varchar), 5)
	require.True(t, nv.IsConstNull())
}

func TestCleanOnlyDataKeepsCapacity(t *testing.T) {
	vec := NewVec(types.New(types.T_int64))
	vec.PreExtend(128)
	capBefore := cap(vec.data)
	for i := int64(0); i < 100; i++ {
		AppendFixed(vec, i, false)
	}
	vec.CleanOnlyData()
	require.Equal(t, 0, vec.Length())
	require.Equal(t, capBefore, cap(vec.data))
}
