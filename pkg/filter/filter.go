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

// Package filter implements pushed-down value predicates.  A filter is
// evaluated against decoded values during the column scan, and against
// stripe statistics to skip whole stripes.
package filter

import (
	"bytes"
	"fmt"

	"github.com/RoaringBitmap/roaring/roaring64"
	"github.com/shenh062326/velox/pkg/container/types"
)

type Kind uint8

const (
	KindAlwaysTrue Kind = iota
	KindAlwaysFalse
	KindIsNull
	KindIsNotNull
	KindBoolValue
	KindBigintRange
	KindBigintValues
	KindDoubleRange
	KindBytesRange
	KindBytesValues
)

// Filter decides which decoded values pass.  The Test methods for value
// families a filter does not understand return false; which families
// apply to a column is checked once at reader construction.
type Filter interface {
	Kind() Kind
	// NullAllowed reports whether a null value passes.
	NullAllowed() bool
	TestNull() bool
	TestInt64(v int64) bool
	TestFloat64(v float64) bool
	TestBytes(v []byte) bool
	TestBool(v bool) bool

	// Range tests decide, from stripe statistics, whether any value in
	// [min, max] could pass.  They must never return false when a
	// passing value exists.
	TestInt64Range(min, max int64, hasNull bool) bool
	TestFloat64Range(min, max float64, hasNull bool) bool
	TestBytesRange(min, max []byte, hasNull bool) bool

	// AppliesTo reports whether the filter can evaluate values of the
	// given column type.
	AppliesTo(t types.T) bool

	String() string
}

type baseFilter struct {
	kind        Kind
	nullAllowed bool
}

func (f *baseFilter) Kind() Kind                          { return f.kind }
func (f *baseFilter) NullAllowed() bool                   { return f.nullAllowed }
func (f *baseFilter) TestNull() bool                      { return f.nullAllowed }
func (f *baseFilter) TestInt64(int64) bool                { return false }
func (f *baseFilter) TestFloat64(float64) bool            { return false }
func (f *baseFilter) TestBytes([]byte) bool               { return false }
func (f *baseFilter) TestBool(bool) bool                  { return false }
func (f *baseFilter) TestInt64Range(_, _ int64, hasNull bool) bool {
	return hasNull && f.nullAllowed
}
func (f *baseFilter) TestFloat64Range(_, _ float64, hasNull bool) bool {
	return hasNull && f.nullAllowed
}
func (f *baseFilter) TestBytesRange(_, _ []byte, hasNull bool) bool {
	return hasNull && f.nullAllowed
}

// AlwaysTrue passes everything.
type AlwaysTrue struct{ baseFilter }

func NewAlwaysTrue() *AlwaysTrue {
	return &AlwaysTrue{baseFilter{kind: KindAlwaysTrue, nullAllowed: true}}
}

func (f *AlwaysTrue) TestInt64(int64) bool     { return true }
func (f *AlwaysTrue) TestFloat64(float64) bool { return true }
func (f *AlwaysTrue) TestBytes([]byte) bool    { return true }
func (f *AlwaysTrue) TestBool(bool) bool       { return true }
func (f *AlwaysTrue) TestInt64Range(_, _ int64, _ bool) bool     { return true }
func (f *AlwaysTrue) TestFloat64Range(_, _ float64, _ bool) bool { return true }
func (f *AlwaysTrue) TestBytesRange(_, _ []byte, _ bool) bool    { return true }
func (f *AlwaysTrue) AppliesTo(types.T) bool   { return true }
func (f *AlwaysTrue) String() string           { return "AlwaysTrue" }

// AlwaysFalse rejects everything.
type AlwaysFalse struct{ baseFilter }

func NewAlwaysFalse() *AlwaysFalse {
	return &AlwaysFalse{baseFilter{kind: KindAlwaysFalse}}
}

func (f *AlwaysFalse) TestInt64Range(_, _ int64, _ bool) bool     { return false }
func (f *AlwaysFalse) TestFloat64Range(_, _ float64, _ bool) bool { return false }
func (f *AlwaysFalse) TestBytesRange(_, _ []byte, _ bool) bool    { return false }
func (f *AlwaysFalse) AppliesTo(types.T) bool { return true }
func (f *AlwaysFalse) String() string         { return "AlwaysFalse" }

// IsNull passes only nulls.
type IsNull struct{ baseFilter }

func NewIsNull() *IsNull {
	return &IsNull{baseFilter{kind: KindIsNull, nullAllowed: true}}
}

func (f *IsNull) TestInt64Range(_, _ int64, hasNull bool) bool     { return hasNull }
func (f *IsNull) TestFloat64Range(_, _ float64, hasNull bool) bool { return hasNull }
func (f *IsNull) TestBytesRange(_, _ []byte, hasNull bool) bool    { return hasNull }
func (f *IsNull) AppliesTo(types.T) bool { return true }
func (f *IsNull) String() string         { return "IsNull" }

// IsNotNull passes every non-null value.
type IsNotNull struct{ baseFilter }

func NewIsNotNull() *IsNotNull {
	return &IsNotNull{baseFilter{kind: KindIsNotNull}}
}

func (f *IsNotNull) TestInt64(int64) bool     { return true }
func (f *IsNotNull) TestFloat64(float64) bool { return true }
func (f *IsNotNull) TestBytes([]byte) bool    { return true }
func (f *IsNotNull) TestBool(bool) bool       { return true }
func (f *IsNotNull) TestInt64Range(_, _ int64, _ bool) bool     { return true }
func (f *IsNotNull) TestFloat64Range(_, _ float64, _ bool) bool { return true }
func (f *IsNotNull) TestBytesRange(_, _ []byte, _ bool) bool    { return true }
func (f *IsNotNull) AppliesTo(types.T) bool { return true }
func (f *IsNotNull) String() string         { return "IsNotNull" }

// BoolValue passes one boolean.
type BoolValue struct {
	baseFilter
	value bool
}

func NewBoolValue(value, nullAllowed bool) *BoolValue {
	return &BoolValue{baseFilter{kind: KindBoolValue, nullAllowed: nullAllowed}, value}
}

func (f *BoolValue) TestBool(v bool) bool { return v == f.value }
func (f *BoolValue) TestInt64Range(min, max int64, hasNull bool) bool {
	if hasNull && f.nullAllowed {
		return true
	}
	want := int64(0)
	if f.value {
		want = 1
	}
	return min <= want && want <= max
}
func (f *BoolValue) AppliesTo(t types.T) bool { return t == types.T_bool }
func (f *BoolValue) String() string           { return fmt.Sprintf("BoolValue(%v)", f.value) }

// BigintRange passes integers in [Lower, Upper].
type BigintRange struct {
	baseFilter
	Lower, Upper int64
}

func NewBigintRange(lower, upper int64, nullAllowed bool) *BigintRange {
	return &BigintRange{baseFilter{kind: KindBigintRange, nullAllowed: nullAllowed}, lower, upper}
}

func (f *BigintRange) TestInt64(v int64) bool { return v >= f.Lower && v <= f.Upper }
func (f *BigintRange) TestInt64Range(min, max int64, hasNull bool) bool {
	if hasNull && f.nullAllowed {
		return true
	}
	return min <= f.Upper && max >= f.Lower
}
func (f *BigintRange) IsSingleValue() bool { return f.Lower == f.Upper }
func (f *BigintRange) AppliesTo(t types.T) bool {
	switch t {
	case types.T_int8, types.T_int16, types.T_int32, types.T_int64,
		types.T_decimal64, types.T_timestamp:
		return true
	}
	return false
}
func (f *BigintRange) String() string {
	return fmt.Sprintf("BigintRange[%d, %d]", f.Lower, f.Upper)
}

// BigintValues passes integers in a set.  Members are held in a roaring
// bitmap of offsets from the smallest member.
type BigintValues struct {
	baseFilter
	min, max int64
	bm       *roaring64.Bitmap
}

func NewBigintValues(values []int64, nullAllowed bool) *BigintValues {
	f := &BigintValues{
		baseFilter: baseFilter{kind: KindBigintValues, nullAllowed: nullAllowed},
		bm:         roaring64.New(),
	}
	for i, v := range values {
		if i == 0 || v < f.min {
			f.min = v
		}
		if i == 0 || v > f.max {
			f.max = v
		}
	}
	for _, v := range values {
		f.bm.Add(uint64(v - f.min))
	}
	return f
}

func (f *BigintValues) TestInt64(v int64) bool {
	if f.bm.IsEmpty() || v < f.min || v > f.max {
		return false
	}
	return f.bm.Contains(uint64(v - f.min))
}

func (f *BigintValues) TestInt64Range(min, max int64, hasNull bool) bool {
	if hasNull && f.nullAllowed {
		return true
	}
	if f.bm.IsEmpty() || max < f.min || min > f.max {
		return false
	}
	if min <= f.min {
		return true
	}
	it := f.bm.Iterator()
	it.AdvanceIfNeeded(uint64(min - f.min))
	return it.HasNext() && it.PeekNext() <= uint64(max-f.min)
}

// Values returns the members in ascending order.
func (f *BigintValues) Values() []int64 {
	out := make([]int64, 0, f.bm.GetCardinality())
	it := f.bm.Iterator()
	for it.HasNext() {
		out = append(out, f.min+int64(it.Next()))
	}
	return out
}

func (f *BigintValues) AppliesTo(t types.T) bool {
	switch t {
	case types.T_int8, types.T_int16, types.T_int32, types.T_int64,
		types.T_decimal64, types.T_timestamp:
		return true
	}
	return false
}

func (f *BigintValues) String() string {
	return fmt.Sprintf("BigintValues(%d values)", f.bm.GetCardinality())
}

// DoubleRange passes floating point values in a possibly open interval.
// NaN never passes.
type DoubleRange struct {
	baseFilter
	Lower          float64
	LowerUnbounded bool
	LowerExclusive bool
	Upper          float64
	UpperUnbounded bool
	UpperExclusive bool
}

func NewDoubleRange(lower float64, lowerUnbounded, lowerExclusive bool,
	upper float64, upperUnbounded, upperExclusive bool, nullAllowed bool) *DoubleRange {
	return &DoubleRange{
		baseFilter:     baseFilter{kind: KindDoubleRange, nullAllowed: nullAllowed},
		Lower:          lower,
		LowerUnbounded: lowerUnbounded,
		LowerExclusive: lowerExclusive,
		Upper:          upper,
		UpperUnbounded: upperUnbounded,
		UpperExclusive: upperExclusive,
	}
}

func (f *DoubleRange) TestFloat64(v float64) bool {
	if v != v {
		return false
	}
	if !f.LowerUnbounded {
		if v < f.Lower || (f.LowerExclusive && v == f.Lower) {
			return false
		}
	}
	if !f.UpperUnbounded {
		if v > f.Upper || (f.UpperExclusive && v == f.Upper) {
			return false
		}
	}
	return true
}

func (f *DoubleRange) TestFloat64Range(min, max float64, hasNull bool) bool {
	if hasNull && f.nullAllowed {
		return true
	}
	if !f.LowerUnbounded && max < f.Lower {
		return false
	}
	if !f.UpperUnbounded && min > f.Upper {
		return false
	}
	return true
}

func (f *DoubleRange) AppliesTo(t types.T) bool {
	return t == types.T_float32 || t == types.T_float64
}

func (f *DoubleRange) String() string {
	return fmt.Sprintf("DoubleRange[%v, %v]", f.Lower, f.Upper)
}

// BytesRange passes byte strings in a possibly open interval.
type BytesRange struct {
	baseFilter
	Lower          []byte
	LowerUnbounded bool
	LowerExclusive bool
	Upper          []byte
	UpperUnbounded bool
	UpperExclusive bool
}

func NewBytesRange(lower []byte, lowerUnbounded, lowerExclusive bool,
	upper []byte, upperUnbounded, upperExclusive bool, nullAllowed bool) *BytesRange {
	return &BytesRange{
		baseFilter:     baseFilter{kind: KindBytesRange, nullAllowed: nullAllowed},
		Lower:          lower,
		LowerUnbounded: lowerUnbounded,
		LowerExclusive: lowerExclusive,
		Upper:          upper,
		UpperUnbounded: upperUnbounded,
		UpperExclusive: upperExclusive,
	}
}

// NewBytesEq passes one byte string.
func NewBytesEq(v []byte, nullAllowed bool) *BytesRange {
	return NewBytesRange(v, false, false, v, false, false, nullAllowed)
}

func (f *BytesRange) TestBytes(v []byte) bool {
	if !f.LowerUnbounded {
		c := bytes.Compare(v, f.Lower)
		if c < 0 || (f.LowerExclusive && c == 0) {
			return false
		}
	}
	if !f.UpperUnbounded {
		c := bytes.Compare(v, f.Upper)
		if c > 0 || (f.UpperExclusive && c == 0) {
			return false
		}
	}
	return true
}

func (f *BytesRange) TestBytesRange(min, max []byte, hasNull bool) bool {
	if hasNull && f.nullAllowed {
		return true
	}
	if !f.LowerUnbounded && bytes.Compare(max, f.Lower) < 0 {
		return false
	}
	if !f.UpperUnbounded && bytes.Compare(min, f.Upper) > 0 {
		return false
	}
	return true
}

func (f *BytesRange) IsSingleValue() bool {
	return !f.LowerUnbounded && !f.UpperUnbounded &&
		!f.LowerExclusive && !f.UpperExclusive &&
		bytes.Equal(f.Lower, f.Upper)
}

func (f *BytesRange) AppliesTo(t types.T) bool {
	return t == types.T_varchar || t == types.T_varbinary
}

func (f *BytesRange) String() string {
	return fmt.Sprintf("BytesRange[%q, %q]", f.Lower, f.Upper)
}

// BytesValues passes byte strings in a set.
type BytesValues struct {
	baseFilter
	values  map[string]struct{}
	lengths map[int]struct{}
}

func NewBytesValues(values [][]byte, nullAllowed bool) *BytesValues {
	f := &BytesValues{
		baseFilter: baseFilter{kind: KindBytesValues, nullAllowed: nullAllowed},
		values:     make(map[string]struct{}, len(values)),
		lengths:    make(map[int]struct{}),
	}
	for _, v := range values {
		f.values[string(v)] = struct{}{}
		f.lengths[len(v)] = struct{}{}
	}
	return f
}

func (f *BytesValues) TestBytes(v []byte) bool {
	if _, ok := f.lengths[len(v)]; !ok {
		return false
	}
	_, ok := f.values[string(v)]
	return ok
}

func (f *BytesValues) TestBytesRange(min, max []byte, hasNull bool) bool {
	if hasNull && f.nullAllowed {
		return true
	}
	for v := range f.values {
		if bytes.Compare([]byte(v), min) >= 0 && bytes.Compare([]byte(v), max) <= 0 {
			return true
		}
	}
	return false
}

// Values returns the members in unspecified order.
func (f *BytesValues) Values() [][]byte {
	out := make([][]byte, 0, len(f.values))
	for v := range f.values {
		out = append(out, []byte(v))
	}
	return out
}

func (f *BytesValues) AppliesTo(t types.T) bool {
	return t == types.T_varchar || t == types.T_varbinary
}

func (f *BytesValues) String() string {
	return fmt.Sprintf("BytesValues(%d values)", len(f.values))
}
