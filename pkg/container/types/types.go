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
	"fmt"
)

type T uint8

const (
	T_any T = iota

	// fixed width numerics
	T_bool
	T_int8
	T_int16
	T_int32
	T_int64
	T_float32
	T_float64

	// decimal stored as a scaled integer
	T_decimal64

	// timestamp stored as unix nanoseconds
	T_timestamp

	// variable length
	T_varchar
	T_varbinary

	// nested
	T_array
	T_map
	T_row
)

// Type describes one column's declared type.  Width and Scale only
// matter for decimals.
type Type struct {
	Oid   T
	Size  int32
	Width int32
	Scale int32
}

// Timestamp is unix nanoseconds.
type Timestamp int64

// Decimal64 is an integer scaled by the column type's Scale.
type Decimal64 int64

type FixedSizeT interface {
	~bool | ~int8 | ~int16 | ~int32 | ~int64 | ~uint8 | ~uint16 |
		~uint32 | ~uint64 | ~float32 | ~float64 | Varlena
}

var typeSizes = map[T]int32{
	T_bool:      1,
	T_int8:      1,
	T_int16:     2,
	T_int32:     4,
	T_int64:     8,
	T_float32:   4,
	T_float64:   8,
	T_decimal64: 8,
	T_timestamp: 8,
	T_varchar:   VarlenaSize,
	T_varbinary: VarlenaSize,
}

func New(oid T) Type {
	return Type{Oid: oid, Size: typeSizes[oid]}
}

func NewDecimal(width, scale int32) Type {
	return Type{Oid: T_decimal64, Size: 8, Width: width, Scale: scale}
}

// TypeSize is the per-row byte size of the vector's fixed part.
func (t Type) TypeSize() int {
	return int(t.Size)
}

func (t Type) IsVarlen() bool {
	return t.Oid == T_varchar || t.Oid == T_varbinary
}

func (t Type) IsDecimal() bool {
	return t.Oid == T_decimal64
}

func (t Type) IsNested() bool {
	switch t.Oid {
	case T_array, T_map, T_row:
		return true
	}
	return false
}

func (t Type) String() string {
	return t.Oid.String()
}

func (t T) String() string {
	switch t {
	case T_any:
		return "ANY"
	case T_bool:
		return "BOOL"
	case T_int8:
		return "TINYINT"
	case T_int16:
		return "SMALLINT"
	case T_int32:
		return "INT"
	case T_int64:
		return "BIGINT"
	case T_float32:
		return "FLOAT"
	case T_float64:
		return "DOUBLE"
	case T_decimal64:
		return "DECIMAL64"
	case T_timestamp:
		return "TIMESTAMP"
	case T_varchar:
		return "VARCHAR"
	case T_varbinary:
		return "VARBINARY"
	case T_array:
		return "ARRAY"
	case T_map:
		return "MAP"
	case T_row:
		return "ROW"
	}
	return fmt.Sprintf("unknown type oid %d", uint8(t))
}

// Field is one node of a schema tree: a column or subfield with its
// declared type and, for nested types, its children.  For T_array the
// single child is the element, for T_map the children are key and
// value, for T_row one child per struct field.
type Field struct {
	Name     string
	Type     Type
	Children []*Field
}

func NewField(name string, typ Type, children ...*Field) *Field {
	return &Field{Name: name, Type: typ, Children: children}
}

func NewRow(fields ...*Field) *Field {
	return &Field{Type: Type{Oid: T_row}, Children: fields}
}

func (f *Field) NumChildren() int {
	return len(f.Children)
}

func (f *Field) ChildByName(name string) *Field {
	for _, c := range f.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func (f *Field) ChildIndex(name string) int {
	for i, c := range f.Children {
		if c.Name == name {
			return i
		}
	}
	return -1
}

func (f *Field) String() string {
	if len(f.Children) == 0 {
		return fmt.Sprintf("%s %s", f.Name, f.Type)
	}
	return fmt.Sprintf("%s %s%v", f.Name, f.Type, f.Children)
}
