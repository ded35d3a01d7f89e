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

// Package nulls wraps bitmap manipulation for the NULL rows of one
// column vector.
package nulls

import (
	"fmt"

	"github.com/shenh062326/velox/pkg/common/bitmap"
)

type Nulls struct {
	Np *bitmap.Bitmap
}

func NewWithSize(size int) *Nulls {
	return &Nulls{Np: bitmap.New(size)}
}

func Build(size int, rows ...uint64) *Nulls {
	nsp := NewWithSize(size)
	Add(nsp, rows...)
	return nsp
}

func (nsp *Nulls) Clone() *Nulls {
	if nsp == nil {
		return nil
	}
	if nsp.Np == nil {
		return &Nulls{Np: nil}
	}
	return &Nulls{Np: nsp.Np.Clone()}
}

func Reset(nsp *Nulls) {
	if nsp.Np != nil {
		nsp.Np.Reset()
	}
	nsp.Np = nil
}

// Any returns true if any bit in the Nulls is set.
func Any(nsp *Nulls) bool {
	if nsp == nil || nsp.Np == nil {
		return false
	}
	return !nsp.Np.IsEmpty()
}

// Length returns the number of set rows contained in the Nulls.
func Length(nsp *Nulls) int {
	if nsp == nil || nsp.Np == nil {
		return 0
	}
	return nsp.Np.Count()
}

func TryExpand(nsp *Nulls, size int) {
	if nsp.Np == nil {
		nsp.Np = bitmap.New(size)
		return
	}
	nsp.Np.TryExpandWithSize(size)
}

// Contains returns true if the row is null.
func Contains(nsp *Nulls, row uint64) bool {
	return nsp != nil && nsp.Np != nil && nsp.Np.Contains(row)
}

func Add(nsp *Nulls, rows ...uint64) {
	if len(rows) == 0 {
		return
	}
	TryExpand(nsp, int(rows[len(rows)-1])+1)
	nsp.Np.AddMany(rows)
}

func AddRange(nsp *Nulls, start, end uint64) {
	TryExpand(nsp, int(end))
	nsp.Np.AddRange(start, end)
}

func Del(nsp *Nulls, rows ...uint64) {
	if nsp.Np == nil {
		return
	}
	for _, row := range rows {
		nsp.Np.Remove(row)
	}
}

// Set unions m into nsp.
func Set(nsp, m *Nulls) {
	if m != nil && m.Np != nil {
		if nsp.Np == nil {
			nsp.Np = bitmap.New(int(m.Np.Len()))
		}
		nsp.Np.Or(m.Np)
	}
}

// Filter keeps only the null bits addressed by sels, renumbered to the
// dense output positions.  Used when a vector is shrunk to a selection.
func Filter(nsp *Nulls, sels []int64) *Nulls {
	if nsp == nil || nsp.Np == nil || len(sels) == 0 {
		return nsp
	}
	np := bitmap.New(len(sels))
	for i, sel := range sels {
		if nsp.Np.Contains(uint64(sel)) {
			np.Add(uint64(i))
		}
	}
	nsp.Np = np
	return nsp
}

func String(nsp *Nulls) string {
	if nsp == nil || nsp.Np == nil {
		return "[]"
	}
	return fmt.Sprintf("%v", nsp.Np.ToArray())
}

func (nsp *Nulls) Set(row uint64) {
	TryExpand(nsp, int(row)+1)
	nsp.Np.Add(row)
}

func (nsp *Nulls) Contains(row uint64) bool {
	return nsp != nil && nsp.Np != nil && nsp.Np.Contains(row)
}

func (nsp *Nulls) Count() int {
	if nsp == nil || nsp.Np == nil {
		return 0
	}
	return nsp.Np.Count()
}

func (nsp *Nulls) Any() bool {
	return Any(nsp)
}

func (nsp *Nulls) IsSame(m *Nulls) bool {
	switch {
	case nsp == nil && m == nil:
		return true
	case nsp.Np == nil && m.Np == nil:
		return true
	case nsp.Np != nil && m.Np != nil:
		return nsp.Np.IsSame(m.Np)
	default:
		return false
	}
}

func (nsp *Nulls) ToArray() []uint64 {
	if nsp == nil || nsp.Np == nil {
		return []uint64{}
	}
	return nsp.Np.ToArray()
}
