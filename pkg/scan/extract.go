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

package scan

import (
	"context"
	"math"
	"strings"

	"github.com/shenh062326/velox/pkg/container/types"
	"github.com/shenh062326/velox/pkg/filter"
)

// Op is the operator of one expression node.
type Op uint8

const (
	OpAnd Op = iota
	OpEq
	OpLt
	OpLe
	OpGt
	OpGe
	OpIn
	OpIsNull
	OpIsNotNull
	// OpCall is an opaque function call the scan cannot reason about;
	// it always lands in the remaining filter.
	OpCall
)

// Expr is a filter expression handed to the scan by the planner.  Only
// the shapes the extractor understands are modeled; everything else is
// an OpCall evaluated by the external evaluator.
type Expr struct {
	Op   Op
	Args []*Expr

	// comparison operands
	Column string
	Int    *int64
	Float  *float64
	Bytes  []byte
	Ints   []int64
	Bytess [][]byte

	// OpCall
	Fn string
}

func (e *Expr) String() string {
	switch e.Op {
	case OpAnd:
		parts := make([]string, 0, len(e.Args))
		for _, a := range e.Args {
			parts = append(parts, a.String())
		}
		return "(" + strings.Join(parts, " and ") + ")"
	case OpCall:
		return e.Fn + "(...)"
	case OpIsNull:
		return e.Column + " is null"
	case OpIsNotNull:
		return e.Column + " is not null"
	default:
		return e.Column + " <cmp>"
	}
}

// conjuncts flattens nested ands into a single conjunct list.
func conjuncts(e *Expr, out []*Expr) []*Expr {
	if e == nil {
		return out
	}
	if e.Op == OpAnd {
		for _, a := range e.Args {
			out = conjuncts(a, out)
		}
		return out
	}
	return append(out, e)
}

func isIntKind(oid types.T) bool {
	switch oid {
	case types.T_int8, types.T_int16, types.T_int32, types.T_int64,
		types.T_decimal64, types.T_timestamp:
		return true
	}
	return false
}

// toFilter converts one conjunct to a column predicate, or returns nil
// when the conjunct is not sargable.
func toFilter(e *Expr, schema *types.Field) (string, filter.Filter) {
	if e.Column == "" {
		return "", nil
	}
	field := schema.ChildByName(strings.Split(e.Column, ".")[0])
	for _, part := range strings.Split(e.Column, ".")[1:] {
		if field == nil {
			return "", nil
		}
		field = field.ChildByName(part)
	}
	if field == nil {
		return "", nil
	}
	oid := field.Type.Oid

	switch e.Op {
	case OpIsNull:
		return e.Column, filter.NewIsNull()
	case OpIsNotNull:
		return e.Column, filter.NewIsNotNull()
	case OpIn:
		if isIntKind(oid) && len(e.Ints) > 0 {
			return e.Column, filter.NewBigintValues(e.Ints, false)
		}
		if (oid == types.T_varchar || oid == types.T_varbinary) && len(e.Bytess) > 0 {
			return e.Column, filter.NewBytesValues(e.Bytess, false)
		}
		return "", nil
	case OpEq, OpLt, OpLe, OpGt, OpGe:
	default:
		return "", nil
	}

	if isIntKind(oid) && e.Int != nil {
		v := *e.Int
		switch e.Op {
		case OpEq:
			return e.Column, filter.NewBigintRange(v, v, false)
		case OpLt:
			if v == math.MinInt64 {
				return e.Column, filter.NewAlwaysFalse()
			}
			return e.Column, filter.NewBigintRange(math.MinInt64, v-1, false)
		case OpLe:
			return e.Column, filter.NewBigintRange(math.MinInt64, v, false)
		case OpGt:
			if v == math.MaxInt64 {
				return e.Column, filter.NewAlwaysFalse()
			}
			return e.Column, filter.NewBigintRange(v+1, math.MaxInt64, false)
		case OpGe:
			return e.Column, filter.NewBigintRange(v, math.MaxInt64, false)
		}
	}
	if (oid == types.T_float32 || oid == types.T_float64) && e.Float != nil {
		v := *e.Float
		switch e.Op {
		case OpEq:
			return e.Column, filter.NewDoubleRange(v, false, false, v, false, false, false)
		case OpLt:
			return e.Column, filter.NewDoubleRange(0, true, false, v, false, true, false)
		case OpLe:
			return e.Column, filter.NewDoubleRange(0, true, false, v, false, false, false)
		case OpGt:
			return e.Column, filter.NewDoubleRange(v, false, true, 0, true, false, false)
		case OpGe:
			return e.Column, filter.NewDoubleRange(v, false, false, 0, true, false, false)
		}
	}
	if (oid == types.T_varchar || oid == types.T_varbinary) && e.Bytes != nil {
		v := e.Bytes
		switch e.Op {
		case OpEq:
			return e.Column, filter.NewBytesEq(v, false)
		case OpLt:
			return e.Column, filter.NewBytesRange(nil, true, false, v, false, true, false)
		case OpLe:
			return e.Column, filter.NewBytesRange(nil, true, false, v, false, false, false)
		case OpGt:
			return e.Column, filter.NewBytesRange(v, false, true, nil, true, false, false)
		case OpGe:
			return e.Column, filter.NewBytesRange(v, false, false, nil, true, false, false)
		}
	}
	return "", nil
}

// ExtractFilters pulls the sargable conjuncts out of expr, merging them
// into per-column predicates keyed by dotted path.  The residue, if
// any, is returned as the remaining filter expression.  This is a
// one-time transform run before scanning starts.
func ExtractFilters(ctx context.Context, expr *Expr, schema *types.Field) (map[string]filter.Filter, *Expr, error) {
	filters := make(map[string]filter.Filter)
	var rest []*Expr
	for _, c := range conjuncts(expr, nil) {
		path, f := toFilter(c, schema)
		if f == nil {
			rest = append(rest, c)
			continue
		}
		merged, err := filter.Merge(ctx, filters[path], f)
		if err != nil {
			return nil, nil, err
		}
		filters[path] = merged
	}
	switch len(rest) {
	case 0:
		return filters, nil, nil
	case 1:
		return filters, rest[0], nil
	default:
		return filters, &Expr{Op: OpAnd, Args: rest}, nil
	}
}
