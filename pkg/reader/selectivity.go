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

package reader

import (
	"github.com/shenh062326/velox/pkg/common/bitmap"
)

// SelectivityVector is the live set of rows still in play within one
// batch.  Decode stages only ever clear rows; a cleared row can never
// be re-set before the next Reset.
type SelectivityVector struct {
	bm   bitmap.Bitmap
	size int

	rowsScratch []int64
}

func NewSelectivityVector(n int) *SelectivityVector {
	sel := &SelectivityVector{}
	sel.Reset(n)
	return sel
}

// Reset marks all of [0, n) selected.
func (sel *SelectivityVector) Reset(n int) {
	sel.bm.InitWithSize(n)
	sel.bm.AddRange(0, uint64(n))
	sel.size = n
}

func (sel *SelectivityVector) Size() int {
	return sel.size
}

func (sel *SelectivityVector) Clear(row uint64) {
	sel.bm.Remove(row)
}

func (sel *SelectivityVector) Contains(row uint64) bool {
	return sel.bm.Contains(row)
}

func (sel *SelectivityVector) Count() int {
	return sel.bm.Count()
}

func (sel *SelectivityVector) IsEmpty() bool {
	return sel.bm.IsEmpty()
}

func (sel *SelectivityVector) IsAllSelected() bool {
	return sel.Count() == sel.size
}

// resetEmpty sizes the vector to n rows with none selected.  Repeated
// readers use it to build child-domain selections from parent spans.
func (sel *SelectivityVector) resetEmpty(n int) {
	sel.bm.InitWithSize(n)
	sel.size = n
}

func (sel *SelectivityVector) addRange(start, end uint64) {
	if start < end {
		sel.bm.AddRange(start, end)
	}
}

// Rows returns the selected rows in ascending order.  The returned
// slice is reused by the next call.
func (sel *SelectivityVector) Rows() []int64 {
	sel.rowsScratch = sel.rowsScratch[:0]
	itr := sel.bm.Iterator()
	for itr.HasNext() {
		sel.rowsScratch = append(sel.rowsScratch, int64(itr.Next()))
	}
	return sel.rowsScratch
}
