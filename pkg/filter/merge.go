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

	"github.com/shenh062326/velox/pkg/common/moerr"
)

// Merge returns the conjunction of two filters on the same column.  The
// result passes a value only when both inputs do, so merging can only
// narrow.  Combinations with no conjunction representation fail.
func Merge(ctx context.Context, a, b Filter) (Filter, error) {
	if a == nil {
		return b, nil
	}
	if b == nil {
		return a, nil
	}
	if a.Kind() == KindAlwaysFalse || b.Kind() == KindAlwaysFalse {
		return NewAlwaysFalse(), nil
	}
	if a.Kind() == KindAlwaysTrue {
		return b, nil
	}
	if b.Kind() == KindAlwaysTrue {
		return a, nil
	}
	// normalize so the more specific filter is on the left
	if b.Kind() < a.Kind() {
		a, b = b, a
	}
	nulls := a.NullAllowed() && b.NullAllowed()

	switch av := a.(type) {
	case *IsNull:
		if b.TestNull() {
			return NewIsNull(), nil
		}
		return NewAlwaysFalse(), nil
	case *IsNotNull:
		return withoutNulls(ctx, b)
	case *BoolValue:
		if bv, ok := b.(*BoolValue); ok {
			if av.value == bv.value {
				return NewBoolValue(av.value, nulls), nil
			}
			if nulls {
				return NewIsNull(), nil
			}
			return NewAlwaysFalse(), nil
		}
	case *BigintRange:
		switch bv := b.(type) {
		case *BigintRange:
			lo, hi := maxInt64(av.Lower, bv.Lower), minInt64(av.Upper, bv.Upper)
			if lo > hi {
				if nulls {
					return NewIsNull(), nil
				}
				return NewAlwaysFalse(), nil
			}
			return NewBigintRange(lo, hi, nulls), nil
		case *BigintValues:
			return intersectValuesRange(bv, av, nulls), nil
		}
	case *BigintValues:
		if bv, ok := b.(*BigintValues); ok {
			var keep []int64
			for _, v := range av.Values() {
				if bv.TestInt64(v) {
					keep = append(keep, v)
				}
			}
			return valuesOrEmpty(keep, nulls), nil
		}
	case *DoubleRange:
		if bv, ok := b.(*DoubleRange); ok {
			out := &DoubleRange{baseFilter: baseFilter{kind: KindDoubleRange, nullAllowed: nulls}}
			out.Lower, out.LowerUnbounded, out.LowerExclusive =
				av.Lower, av.LowerUnbounded, av.LowerExclusive
			if !bv.LowerUnbounded && (out.LowerUnbounded || bv.Lower > out.Lower ||
				(bv.Lower == out.Lower && bv.LowerExclusive)) {
				out.Lower, out.LowerUnbounded, out.LowerExclusive =
					bv.Lower, false, bv.LowerExclusive
			}
			out.Upper, out.UpperUnbounded, out.UpperExclusive =
				av.Upper, av.UpperUnbounded, av.UpperExclusive
			if !bv.UpperUnbounded && (out.UpperUnbounded || bv.Upper < out.Upper ||
				(bv.Upper == out.Upper && bv.UpperExclusive)) {
				out.Upper, out.UpperUnbounded, out.UpperExclusive =
					bv.Upper, false, bv.UpperExclusive
			}
			if !out.LowerUnbounded && !out.UpperUnbounded {
				if out.Lower > out.Upper ||
					(out.Lower == out.Upper && (out.LowerExclusive || out.UpperExclusive)) {
					if nulls {
						return NewIsNull(), nil
					}
					return NewAlwaysFalse(), nil
				}
			}
			return out, nil
		}
	case *BytesRange:
		switch bv := b.(type) {
		case *BytesRange:
			out := &BytesRange{baseFilter: baseFilter{kind: KindBytesRange, nullAllowed: nulls}}
			out.Lower, out.LowerUnbounded, out.LowerExclusive =
				av.Lower, av.LowerUnbounded, av.LowerExclusive
			if !bv.LowerUnbounded && (out.LowerUnbounded || string(bv.Lower) > string(out.Lower) ||
				(string(bv.Lower) == string(out.Lower) && bv.LowerExclusive)) {
				out.Lower, out.LowerUnbounded, out.LowerExclusive =
					bv.Lower, false, bv.LowerExclusive
			}
			out.Upper, out.UpperUnbounded, out.UpperExclusive =
				av.Upper, av.UpperUnbounded, av.UpperExclusive
			if !bv.UpperUnbounded && (out.UpperUnbounded || string(bv.Upper) < string(out.Upper) ||
				(string(bv.Upper) == string(out.Upper) && bv.UpperExclusive)) {
				out.Upper, out.UpperUnbounded, out.UpperExclusive =
					bv.Upper, false, bv.UpperExclusive
			}
			if !out.LowerUnbounded && !out.UpperUnbounded {
				c := string(out.Lower) > string(out.Upper) ||
					(string(out.Lower) == string(out.Upper) && (out.LowerExclusive || out.UpperExclusive))
				if c {
					if nulls {
						return NewIsNull(), nil
					}
					return NewAlwaysFalse(), nil
				}
			}
			return out, nil
		case *BytesValues:
			var keep [][]byte
			for _, v := range bv.Values() {
				if av.TestBytes(v) {
					keep = append(keep, v)
				}
			}
			if len(keep) == 0 {
				if nulls {
					return NewIsNull(), nil
				}
				return NewAlwaysFalse(), nil
			}
			return NewBytesValues(keep, nulls), nil
		}
	case *BytesValues:
		if bv, ok := b.(*BytesValues); ok {
			var keep [][]byte
			for _, v := range av.Values() {
				if bv.TestBytes(v) {
					keep = append(keep, v)
				}
			}
			if len(keep) == 0 {
				if nulls {
					return NewIsNull(), nil
				}
				return NewAlwaysFalse(), nil
			}
			return NewBytesValues(keep, nulls), nil
		}
	}
	return nil, moerr.NewNYI(ctx, "merge of %s with %s", a, b)
}

func withoutNulls(ctx context.Context, f Filter) (Filter, error) {
	switch v := f.(type) {
	case *IsNotNull:
		return v, nil
	case *IsNull:
		return NewAlwaysFalse(), nil
	case *BoolValue:
		return NewBoolValue(v.value, false), nil
	case *BigintRange:
		return NewBigintRange(v.Lower, v.Upper, false), nil
	case *BigintValues:
		return NewBigintValues(v.Values(), false), nil
	case *DoubleRange:
		return NewDoubleRange(v.Lower, v.LowerUnbounded, v.LowerExclusive,
			v.Upper, v.UpperUnbounded, v.UpperExclusive, false), nil
	case *BytesRange:
		return NewBytesRange(v.Lower, v.LowerUnbounded, v.LowerExclusive,
			v.Upper, v.UpperUnbounded, v.UpperExclusive, false), nil
	case *BytesValues:
		return NewBytesValues(v.Values(), false), nil
	}
	return nil, moerr.NewNYI(ctx, "merge of IsNotNull with %s", f)
}

func intersectValuesRange(vals *BigintValues, rng *BigintRange, nulls bool) Filter {
	var keep []int64
	for _, v := range vals.Values() {
		if rng.TestInt64(v) {
			keep = append(keep, v)
		}
	}
	return valuesOrEmpty(keep, nulls)
}

func valuesOrEmpty(keep []int64, nulls bool) Filter {
	if len(keep) == 0 {
		if nulls {
			return NewIsNull()
		}
		return NewAlwaysFalse()
	}
	return NewBigintValues(keep, nulls)
}

func minInt64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
