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

package types

import (
	"bytes"
	"context"
	"testing"

	"github.com/shenh062326/velox/pkg/common/moerr"
	"github.com/stretchr/testify/require"
)

func TestTypeSizes(t *testing.T) {
	require.Equal(t, 8, New(T_int64).TypeSize())
	require.Equal(t, 1, New(T_bool).TypeSize())
	require.Equal(t, VarlenaSize, New(T_varchar).TypeSize())
	require.True(t, New(T_varchar).IsVarlen())
	require.True(t, NewDecimal(18, 2).IsDecimal())
	require.Equal(t, int32(2), NewDecimal(18, 2).Scale)
}

func TestVarlena(t *testing.T) {
	var area []byte

	small := []byte("short")
	v, area := BuildVarlena(small, area)
	require.True(t, v.IsSmall())
	require.Equal(t, small, v.GetByteSlice(area))
	require.Len(t, area, 0)

	big := bytes.Repeat([]byte("x"), 100)
	v2, area := BuildVarlena(big, area)
	require.False(t, v2.IsSmall())
	require.Equal(t, big, v2.GetByteSlice(area))
	require.Len(t, area, 100)

	// a second big value lands after the first
	v3, area := BuildVarlena(big, area)
	off, l := v3.OffsetLen()
	require.Equal(t, uint32(100), off)
	require.Equal(t, uint32(100), l)
	require.Equal(t, big, v3.GetByteSlice(area))
}

func TestEncodeDecodeSlice(t *testing.T) {
	vals := []int64{1, -2, 3}
	raw := EncodeSlice(vals)
	require.Len(t, raw, 24)
	back := DecodeSlice[int64](raw)
	require.Equal(t, vals, back)
}

func TestCheckCompatibility(t *testing.T) {
	ctx := context.Background()

	req := NewField("c0", New(T_int64))
	st := NewField("c0", New(T_int32))
	require.NoError(t, CheckCompatibility(ctx, req, st))

	// narrowing is rejected
	err := CheckCompatibility(ctx, st, req)
	require.True(t, moerr.IsMoErrCode(err, moerr.ErrSchemaMismatch))

	require.NoError(t, CheckCompatibility(ctx,
		NewField("f", New(T_float64)), NewField("f", New(T_float32))))

	// struct subset by name
	stored := NewRow(
		NewField("a", New(T_int64)),
		NewField("b", New(T_varchar)),
	)
	requested := NewRow(NewField("b", New(T_varchar)))
	require.NoError(t, CheckCompatibility(ctx, requested, stored))

	missing := NewRow(NewField("zz", New(T_varchar)))
	err = CheckCompatibility(ctx, missing, stored)
	require.True(t, moerr.IsMoErrCode(err, moerr.ErrSchemaMismatch))
}
