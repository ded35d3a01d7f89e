// Copyright 2022 Matrix Origin
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

package filter

import (
	"context"
	"math"
	"testing"

	"github.com/shenh062326/velox/pkg/container/types"
	"github.com/stretchr/testify/require"
)

func TestBigintRange(t *testing.T) {
	f := NewBigintRange(10, 20, false)
	require.True(t, f.TestInt64(10))
	require.True(t, f.TestInt64(20))
	require.False(t, f.TestInt64(9))
	require.False(t, f.TestInt64(21))
	require.False(t, f.TestNull())

	require.True(t, f.TestInt64Range(0, 15, false))
	require.True(t, f.TestInt64Range(15, 100, false))
	require.False(t, f.TestInt64Range(21, 100, false))
	require.False(t, f.TestInt64Range(0, 9, true))

	require.True(t, f.AppliesTo(types.T_int32))
	require.False(t, f.AppliesTo(types.T_varchar))
}

func TestBigintValues(t *testing.T) {
	f := NewBigintValues([]int64{-5, 3, 1000000, 42}, true)
	require.True(t, f.TestInt64(-5))
	require.True(t, f.TestInt64(42))
	require.True(t, f.TestInt64(1000000))
	require.False(t, f.TestInt64(0))
	require.True(t, f.TestNull())
	require.Equal(t, []int64{-5, 3, 42, 1000000}, f.Values())

	g := NewBigintValues([]int64{-5, 3, 1000000, 42}, false)
	require.True(t, g.TestInt64Range(40, 50, false))
	require.False(t, g.TestInt64Range(43, 999999, false))
	require.True(t, g.TestInt64Range(-100, -5, false))
	require.False(t, g.TestInt64Range(1000001, math.MaxInt64, false))
}

func TestDoubleRange(t *testing.T) {
	f := NewDoubleRange(1.5, false, true, 9.5, false, false, false)
	require.False(t, f.TestFloat64(1.5))
	require.True(t, f.TestFloat64(1.6))
	require.True(t, f.TestFloat64(9.5))
	require.False(t, f.TestFloat64(9.6))
	require.False(t, f.TestFloat64(math.NaN()))

	open := NewDoubleRange(0, true, false, 3, false, false, false)
	require.True(t, open.TestFloat64(-math.MaxFloat64))
	require.False(t, open.TestFloat64(3.1))
	require.False(t, open.TestFloat64Range(4, 8, false))
	require.True(t, open.TestFloat64Range(2, 8, false))
}

func TestBytesFilters(t *testing.T) {
	rng := NewBytesRange([]byte("bb"), false, false, []byte("dd"), false, true, false)
	require.True(t, rng.TestBytes([]byte("bb")))
	require.True(t, rng.TestBytes([]byte("cc")))
	require.False(t, rng.TestBytes([]byte("dd")))
	require.False(t, rng.TestBytes([]byte("aa")))
	require.False(t, rng.TestBytesRange([]byte("de"), []byte("zz"), false))
	require.True(t, rng.TestBytesRange([]byte("aa"), []byte("bb"), false))

	eq := NewBytesEq([]byte("x"), false)
	require.True(t, eq.IsSingleValue())
	require.True(t, eq.TestBytes([]byte("x")))
	require.False(t, eq.TestBytes([]byte("xx")))

	vals := NewBytesValues([][]byte{[]byte("one"), []byte("three")}, false)
	require.True(t, vals.TestBytes([]byte("one")))
	require.False(t, vals.TestBytes([]byte("two")))
	// length short-circuit
	require.False(t, vals.TestBytes([]byte("o")))
}

func TestNullFilters(t *testing.T) {
	require.True(t, NewIsNull().TestNull())
	require.False(t, NewIsNull().TestInt64(1))
	require.False(t, NewIsNotNull().TestNull())
	require.True(t, NewIsNotNull().TestInt64(1))
	require.True(t, NewIsNull().TestInt64Range(0, 10, true))
	require.False(t, NewIsNull().TestInt64Range(0, 10, false))
}

func TestMergeRanges(t *testing.T) {
	ctx := context.Background()
	m, err := Merge(ctx, NewBigintRange(0, 100, true), NewBigintRange(50, 200, false))
	require.NoError(t, err)
	r := m.(*BigintRange)
	require.Equal(t, int64(50), r.Lower)
	require.Equal(t, int64(100), r.Upper)
	require.False(t, r.TestNull())

	m, err = Merge(ctx, NewBigintRange(0, 10, false), NewBigintRange(20, 30, false))
	require.NoError(t, err)
	require.Equal(t, KindAlwaysFalse, m.Kind())
}

func TestMergeValuesWithRange(t *testing.T) {
	ctx := context.Background()
	m, err := Merge(ctx, NewBigintValues([]int64{1, 5, 9, 13}, false), NewBigintRange(4, 10, false))
	require.NoError(t, err)
	require.Equal(t, []int64{5, 9}, m.(*BigintValues).Values())

	m, err = Merge(ctx, NewBigintValues([]int64{1, 2}, false), NewBigintValues([]int64{2, 3}, false))
	require.NoError(t, err)
	require.Equal(t, []int64{2}, m.(*BigintValues).Values())
}

func TestMergeNotNull(t *testing.T) {
	ctx := context.Background()
	m, err := Merge(ctx, NewIsNotNull(), NewBigintRange(1, 2, true))
	require.NoError(t, err)
	require.False(t, m.TestNull())
	require.True(t, m.TestInt64(1))

	m, err = Merge(ctx, NewIsNull(), NewBigintRange(1, 2, true))
	require.NoError(t, err)
	require.Equal(t, KindIsNull, m.Kind())

	m, err = Merge(ctx, NewIsNull(), NewIsNotNull())
	require.NoError(t, err)
	require.Equal(t, KindAlwaysFalse, m.Kind())
}

func TestMergeAlways(t *testing.T) {
	ctx := context.Background()
	f := NewBigintRange(1, 2, false)
	m, err := Merge(ctx, NewAlwaysTrue(), f)
	require.NoError(t, err)
	require.Equal(t, f, m)

	m, err = Merge(ctx, f, NewAlwaysFalse())
	require.NoError(t, err)
	require.Equal(t, KindAlwaysFalse, m.Kind())
}

func TestMergeBytes(t *testing.T) {
	ctx := context.Background()
	a := NewBytesRange([]byte("b"), false, false, []byte("y"), false, false, false)
	b := NewBytesRange([]byte("d"), false, false, nil, true, false, false)
	m, err := Merge(ctx, a, b)
	require.NoError(t, err)
	r := m.(*BytesRange)
	require.Equal(t, []byte("d"), r.Lower)
	require.Equal(t, []byte("y"), r.Upper)

	vals := NewBytesValues([][]byte{[]byte("a"), []byte("m")}, false)
	m, err = Merge(ctx, a, vals)
	require.NoError(t, err)
	require.True(t, m.TestBytes([]byte("m")))
	require.False(t, m.TestBytes([]byte("a")))
}
