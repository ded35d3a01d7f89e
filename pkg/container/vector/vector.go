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
	"fmt"

	"github.com/shenh062326/velox/pkg/container/nulls"
	"github.com/shenh062326/velox/pkg/container/types"
)

const (
	FLAT     = iota // flat vector, one cell per row
	CONSTANT        // const vector, one shared cell
)

// Vector represents a column.  For nested types the row-level layout
// lives here (offsets/lengths for array and map) and the element data
// lives in child vectors.
type Vector struct {
	// vector's class
	class int
	typ   types.Type
	nsp   *nulls.Nulls // nulls list

	// data of fixed length elements, in case of varlen, the Varlena
	data []byte

	// area for holding large strings.
	area []byte

	// array/map layout: child element range per row
	offsets []uint32
	lengths []uint32

	// array element / map key,value / struct fields
	children []*Vector

	capacity int
	length   int
}

func NewVec(typ types.Type) *Vector {
	return &Vector{
		typ:   typ,
		class: FLAT,
		nsp:   &nulls.Nulls{},
	}
}

// NewConstFixed returns a length-n vector holding one shared value.
func NewConstFixed[T types.FixedSizeT](typ types.Type, val T, n int) *Vector {
	vec := &Vector{
		typ:   typ,
		class: CONSTANT,
		nsp:   &nulls.Nulls{},
	}
	vec.data = make([]byte, typ.TypeSize())
	copy(vec.data, types.EncodeFixed(val))
	vec.length = n
	vec.capacity = 1
	return vec
}

func NewConstBytes(typ types.Type, val []byte, n int) *Vector {
	vec := &Vector{
		typ:   typ,
		class: CONSTANT,
		nsp:   &nulls.Nulls{},
	}
	var va types.Varlena
	va, vec.area = types.BuildVarlena(val, vec.area)
	vec.data = make([]byte, types.VarlenaSize)
	copy(vec.data, types.EncodeFixed(va))
	vec.length = n
	vec.capacity = 1
	return vec
}

func NewConstNull(typ types.Type, n int) *Vector {
	vec := &Vector{
		typ:   typ,
		class: CONSTANT,
		nsp:   nulls.Build(1, 0),
	}
	vec.data = make([]byte, typ.TypeSize())
	vec.length = n
	vec.capacity = 1
	return vec
}

func (v *Vector) IsConst() bool {
	return v.class == CONSTANT
}

func (v *Vector) IsConstNull() bool {
	return v.IsConst() && nulls.Contains(v.nsp, 0)
}

func (v *Vector) Length() int {
	return v.length
}

func (v *Vector) Capacity() int {
	return v.capacity
}

func (v *Vector) SetLength(n int) {
	v.length = n
}

func (v *Vector) GetType() *types.Type {
	return &v.typ
}

func (v *Vector) SetType(typ types.Type) {
	v.typ = typ
}

func (v *Vector) GetNulls() *nulls.Nulls {
	return v.nsp
}

func (v *Vector) SetNulls(nsp *nulls.Nulls) {
	v.nsp = nsp
}

// Data returns the raw fixed-size storage.
func (v *Vector) Data() []byte {
	return v.data
}

func (v *Vector) GetArea() []byte {
	return v.area
}

func (v *Vector) Children() []*Vector {
	return v.children
}

func (v *Vector) SetChildren(children ...*Vector) {
	v.children = children
}

func (v *Vector) Offsets() []uint32 {
	return v.offsets
}

func (v *Vector) Lengths() []uint32 {
	return v.lengths
}

// Size approximates the memory held by the vector, used only for the
// bytes-produced counter.
func (v *Vector) Size() int {
	size := v.length*v.typ.TypeSize() + len(v.area)
	for _, c := range v.children {
		size += c.Size()
	}
	return size
}

// MustFixedCol views the vector's data as a typed slice.
func MustFixedCol[T types.FixedSizeT](v *Vector) []T {
	if len(v.data) == 0 {
		return nil
	}
	n := v.length
	if v.IsConst() {
		n = 1
	}
	return types.DecodeSlice[T](v.data)[:n]
}

func (v *Vector) GetBytes(i int) []byte {
	if v.IsConst() {
		i = 0
	}
	col := types.DecodeSlice[types.Varlena](v.data)
	return col[i].GetByteSlice(v.area)
}

func (v *Vector) GetString(i int) string {
	return string(v.GetBytes(i))
}

func GetFixedAt[T types.FixedSizeT](v *Vector, i int) T {
	if v.IsConst() {
		i = 0
	}
	return types.DecodeSlice[T](v.data)[i]
}

// PreExtend grows the backing buffer so rows more rows can be appended
// without reallocation.  The grown cells are not part of the vector
// until appended.
func (v *Vector) PreExtend(rows int) {
	sz := v.typ.TypeSize()
	if sz == 0 {
		return
	}
	need := (v.length + rows) * sz
	if cap(v.data) >= need {
		return
	}
	data := make([]byte, len(v.data), need)
	copy(data, v.data)
	v.data = data
	v.capacity = cap(v.data) / sz
}

// CleanOnlyData resets the vector to zero rows but keeps the buffers
// for reuse across next() calls.
func (v *Vector) CleanOnlyData() {
	v.data = v.data[:0]
	v.area = v.area[:0]
	v.offsets = v.offsets[:0]
	v.lengths = v.lengths[:0]
	v.length = 0
	nulls.Reset(v.nsp)
	for _, c := range v.children {
		c.CleanOnlyData()
	}
}

func AppendFixed[T types.FixedSizeT](v *Vector, val T, isNull bool) {
	if isNull {
		v.nsp.Set(uint64(v.length))
		var zero T
		val = zero
	}
	v.data = append(v.data, types.EncodeFixed(val)...)
	v.length++
}

func AppendFixedList[T types.FixedSizeT](v *Vector, vals []T) {
	v.data = append(v.data, types.EncodeSlice(vals)...)
	v.length += len(vals)
}

func AppendBytes(v *Vector, val []byte, isNull bool) {
	var va types.Varlena
	if !isNull {
		va, v.area = types.BuildVarlena(val, v.area)
	} else {
		v.nsp.Set(uint64(v.length))
	}
	v.data = append(v.data, types.EncodeFixed(va)...)
	v.length++
}

// AppendRange appends one array/map row covering [offset, offset+length)
// of the child vectors.
func (v *Vector) AppendRange(offset, length uint32, isNull bool) {
	if isNull {
		v.nsp.Set(uint64(v.length))
		offset, length = 0, 0
	}
	v.offsets = append(v.offsets, offset)
	v.lengths = append(v.lengths, length)
	v.length++
}

// Shrink keeps only the rows addressed by sels, in sels order.  sels
// must be ascending; decode selection is always ascending so this
// preserves original relative row order.
func (v *Vector) Shrink(sels []int64) {
	if v.IsConst() {
		v.length = len(sels)
		return
	}
	sz := v.typ.TypeSize()
	if sz > 0 && len(v.data) > 0 {
		for i, sel := range sels {
			copy(v.data[i*sz:(i+1)*sz], v.data[int(sel)*sz:(int(sel)+1)*sz])
		}
		v.data = v.data[:len(sels)*sz]
	}
	if len(v.offsets) > 0 {
		for i, sel := range sels {
			v.offsets[i] = v.offsets[sel]
			v.lengths[i] = v.lengths[sel]
		}
		v.offsets = v.offsets[:len(sels)]
		v.lengths = v.lengths[:len(sels)]
	}
	if v.typ.Oid == types.T_row {
		for _, c := range v.children {
			c.Shrink(sels)
		}
	}
	nulls.Filter(v.nsp, sels)
	v.length = len(sels)
}

func (v *Vector) String() string {
	var buf bytes.Buffer
	buf.WriteString(v.typ.String())
	buf.WriteString(fmt.Sprintf("[len=%d", v.length))
	if nulls.Any(v.nsp) {
		buf.WriteString(fmt.Sprintf(" nulls=%s", nulls.String(v.nsp)))
	}
	buf.WriteString("]")
	return buf.String()
}
