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
	"encoding/binary"
)

const (
	VarlenaSize       = 24
	VarlenaInlineSize = 23
	varlenaBigHdr     = 0xFF
)

// Varlena is the fixed-size cell of a variable-length column.  Short
// values are stored inline; longer values live in the vector's shared
// area and the cell stores offset and length.
type Varlena [VarlenaSize]byte

func (v *Varlena) IsSmall() bool {
	return v[0] != varlenaBigHdr
}

func (v *Varlena) SetSmall(data []byte) {
	v[0] = byte(len(data))
	copy(v[1:], data)
}

func (v *Varlena) SetBig(offset, length uint32) {
	v[0] = varlenaBigHdr
	binary.LittleEndian.PutUint32(v[1:5], offset)
	binary.LittleEndian.PutUint32(v[5:9], length)
}

func (v *Varlena) OffsetLen() (uint32, uint32) {
	return binary.LittleEndian.Uint32(v[1:5]), binary.LittleEndian.Uint32(v[5:9])
}

func (v *Varlena) GetByteSlice(area []byte) []byte {
	if v.IsSmall() {
		return v[1 : 1+int(v[0])]
	}
	off, length := v.OffsetLen()
	return area[off : off+length]
}

func (v *Varlena) GetString(area []byte) string {
	return string(v.GetByteSlice(area))
}

func (v *Varlena) Reset() {
	*v = Varlena{}
}

// BuildVarlena stores data inline or appends it to area, returning the
// cell and the possibly grown area.
func BuildVarlena(data []byte, area []byte) (Varlena, []byte) {
	var v Varlena
	if len(data) <= VarlenaInlineSize {
		v.SetSmall(data)
		return v, area
	}
	offset := len(area)
	area = append(area, data...)
	v.SetBig(uint32(offset), uint32(len(data)))
	return v, area
}
