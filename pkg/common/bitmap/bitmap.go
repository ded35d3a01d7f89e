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

// Package bitmap provides a fixed-word bitmap used for null sets and
// row selection.  In case len is not a multiple of 64, the code below
// assumes the trailing bits of the last word are zero.
package bitmap

import (
	"fmt"
	"math/bits"
)

type Bitmap struct {
	len  int64
	data []uint64
}

type BitmapIterator struct {
	i       uint64
	bm      *Bitmap
	hasNext bool
}

type Iterator interface {
	HasNext() bool
	PeekNext() uint64
	Next() uint64
}

func New(n int) *Bitmap {
	var bm Bitmap
	bm.InitWithSize(n)
	return &bm
}

func (n *Bitmap) InitWithSize(size int) {
	n.len = int64(size)
	n.data = make([]uint64, (size+63)/64)
}

func (n *Bitmap) InitWith(other *Bitmap) {
	n.len = other.len
	n.data = append([]uint64(nil), other.data...)
}

func (n *Bitmap) Clone() *Bitmap {
	if n == nil {
		return nil
	}
	var ret Bitmap
	ret.InitWith(n)
	return &ret
}

func (n *Bitmap) Reset() {
	n.len = 0
	n.data = nil
}

// Len returns the number of bits in the Bitmap.
func (n *Bitmap) Len() int64 {
	return n.len
}

// Size returns the number of bytes in n.data.
func (n *Bitmap) Size() int {
	return len(n.data) * 8
}

// IsEmpty returns true if no bit in the Bitmap is set.
func (n *Bitmap) IsEmpty() bool {
	for i := 0; i < len(n.data); i++ {
		if n.data[i] != 0 {
			return false
		}
	}
	return true
}

// We always assume that the bitmap has been extended to at least row.
func (n *Bitmap) Add(row uint64) {
	n.data[row>>6] |= 1 << (row & 0x3F)
}

func (n *Bitmap) AddMany(rows []uint64) {
	for _, row := range rows {
		n.data[row>>6] |= 1 << (row & 0x3F)
	}
}

func (n *Bitmap) Remove(row uint64) {
	if row >= uint64(n.len) {
		return
	}
	n.data[row>>6] &^= uint64(1) << (row & 0x3F)
}

// Contains returns true if the row is contained in the Bitmap.
func (n *Bitmap) Contains(row uint64) bool {
	if row >= uint64(n.len) {
		return false
	}
	return (n.data[row>>6] & (1 << (row & 0x3F))) != 0
}

func (n *Bitmap) AddRange(start, end uint64) {
	if start >= end {
		return
	}
	i, j := start>>6, (end-1)>>6
	if i == j {
		n.data[i] |= (^uint64(0) << (start & 0x3F)) & (^uint64(0) >> (uint(-end) & 0x3F))
		return
	}
	n.data[i] |= ^uint64(0) << (start & 0x3F)
	for k := i + 1; k < j; k++ {
		n.data[k] = ^uint64(0)
	}
	n.data[j] |= ^uint64(0) >> (uint(-end) & 0x3F)
}

func (n *Bitmap) RemoveRange(start, end uint64) {
	if end > uint64(n.len) {
		end = uint64(n.len)
	}
	if start >= end {
		return
	}
	i, j := start>>6, (end-1)>>6
	if i == j {
		n.data[i] &^= (^uint64(0) << (start & 0x3F)) & (^uint64(0) >> (uint(-end) & 0x3F))
		return
	}
	n.data[i] &^= ^uint64(0) << (start & 0x3F)
	for k := i + 1; k < j; k++ {
		n.data[k] = 0
	}
	n.data[j] &^= ^uint64(0) >> (uint(-end) & 0x3F)
}

func (n *Bitmap) IsSame(m *Bitmap) bool {
	if len(m.data) != len(n.data) {
		return false
	}
	for i := 0; i < len(n.data); i++ {
		if n.data[i] != m.data[i] {
			return false
		}
	}
	return true
}

func (n *Bitmap) Or(m *Bitmap) {
	n.TryExpand(m)
	size := (int(m.len) + 63) / 64
	for i := 0; i < size; i++ {
		n.data[i] |= m.data[i]
	}
}

func (n *Bitmap) And(m *Bitmap) {
	n.TryExpand(m)
	size := (int(m.len) + 63) / 64
	for i := 0; i < size; i++ {
		n.data[i] &= m.data[i]
	}
	for i := size; i < len(n.data); i++ {
		n.data[i] = 0
	}
}

func (n *Bitmap) Negate() {
	nBlock, nTail := int(n.len)/64, int(n.len)%64
	for i := 0; i < nBlock; i++ {
		n.data[i] = ^n.data[i]
	}
	if nTail > 0 {
		mask := (uint64(1) << nTail) - 1
		n.data[nBlock] ^= mask
	}
}

func (n *Bitmap) TryExpand(m *Bitmap) {
	n.TryExpandWithSize(int(m.len))
}

func (n *Bitmap) TryExpandWithSize(size int) {
	if int(n.len) >= size {
		return
	}
	newCap := (size + 63) / 64
	n.len = int64(size)
	if newCap > cap(n.data) {
		data := make([]uint64, newCap)
		copy(data, n.data)
		n.data = data
		return
	}
	if len(n.data) < newCap {
		n.data = n.data[:newCap]
	}
}

func (n *Bitmap) Count() int {
	var cnt int
	for i := 0; i < len(n.data); i++ {
		cnt += bits.OnesCount64(n.data[i])
	}
	return cnt
}

func (n *Bitmap) ToArray() []uint64 {
	var rows []uint64
	itr := n.Iterator()
	for itr.HasNext() {
		rows = append(rows, itr.Next())
	}
	return rows
}

func (n *Bitmap) ToI64Array() []int64 {
	var rows []int64
	itr := n.Iterator()
	for itr.HasNext() {
		rows = append(rows, int64(itr.Next()))
	}
	return rows
}

func (n *Bitmap) String() string {
	return fmt.Sprintf("%v", n.ToArray())
}

func (n *Bitmap) Iterator() Iterator {
	// On initialization itr.i is moved to the first set bit.
	itr := BitmapIterator{i: 0, bm: n}
	if first, has := itr.seek(0); has {
		itr.i = first
		itr.hasNext = true
		return &itr
	}
	itr.hasNext = false
	return &itr
}

// seek returns the position of the first set bit at or after i,
// looping over words not bits.
func (itr *BitmapIterator) seek(i uint64) (uint64, bool) {
	nwords := uint64((itr.bm.len + 63) / 64)
	word := i >> 6
	mask := ^uint64(0) << (i & 0x3F) // ignore bits before i
	for ; word < nwords; word++ {
		w := itr.bm.data[word] & mask
		if w != 0 {
			return uint64(bits.TrailingZeros64(w)) + word*64, true
		}
		mask = ^uint64(0)
	}
	return 0, false
}

func (itr *BitmapIterator) HasNext() bool {
	return itr.hasNext
}

func (itr *BitmapIterator) PeekNext() uint64 {
	if itr.hasNext {
		return itr.i
	}
	return 0
}

func (itr *BitmapIterator) Next() uint64 {
	pos := itr.i
	if next, has := itr.seek(itr.i + 1); has {
		itr.i = next
		itr.hasNext = true
		return pos
	}
	itr.hasNext = false
	return pos
}
