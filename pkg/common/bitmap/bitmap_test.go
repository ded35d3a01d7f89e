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

package bitmap

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAddRemoveContains(t *testing.T) {
	bm := New(200)
	require.True(t, bm.IsEmpty())

	bm.Add(0)
	bm.Add(63)
	bm.Add(64)
	bm.Add(199)
	require.False(t, bm.IsEmpty())
	require.Equal(t, 4, bm.Count())
	require.True(t, bm.Contains(63))
	require.False(t, bm.Contains(62))
	require.False(t, bm.Contains(1000))

	bm.Remove(63)
	require.False(t, bm.Contains(63))
	require.Equal(t, 3, bm.Count())
}

func TestRanges(t *testing.T) {
	bm := New(300)
	bm.AddRange(10, 200)
	require.Equal(t, 190, bm.Count())
	require.True(t, bm.Contains(10))
	require.True(t, bm.Contains(199))
	require.False(t, bm.Contains(200))

	bm.RemoveRange(50, 150)
	require.Equal(t, 90, bm.Count())
	require.False(t, bm.Contains(64))
	require.True(t, bm.Contains(150))
}

func TestAndOrNegate(t *testing.T) {
	a, b := New(128), New(128)
	a.AddRange(0, 64)
	b.AddRange(32, 96)

	c := a.Clone()
	c.And(b)
	require.Equal(t, 32, c.Count())
	require.True(t, c.Contains(32))
	require.False(t, c.Contains(31))

	d := a.Clone()
	d.Or(b)
	require.Equal(t, 96, d.Count())

	d.Negate()
	require.Equal(t, 32, d.Count())
	require.True(t, d.Contains(96))
}

func TestIterator(t *testing.T) {
	bm := New(256)
	rows := []uint64{1, 7, 63, 64, 128, 255}
	bm.AddMany(rows)

	itr := bm.Iterator()
	require.Equal(t, uint64(1), itr.PeekNext())
	var got []uint64
	for itr.HasNext() {
		got = append(got, itr.Next())
	}
	require.Equal(t, rows, got)

	empty := New(77)
	require.False(t, empty.Iterator().HasNext())
}

func TestTryExpand(t *testing.T) {
	bm := New(10)
	bm.Add(3)
	bm.TryExpandWithSize(500)
	require.Equal(t, int64(500), bm.Len())
	require.True(t, bm.Contains(3))
	bm.Add(499)
	require.Equal(t, 2, bm.Count())
}
