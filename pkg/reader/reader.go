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

// Package reader implements selective column readers: per-type decoders
// that evaluate pushed-down filters while decoding, so rows that fail a
// predicate are never materialized.  One reader tree is built per split
// and advanced stripe by stripe.
package reader

import (
	"context"

	"github.com/shenh062326/velox/pkg/common/moerr"
	"github.com/shenh062326/velox/pkg/container/types"
	"github.com/shenh062326/velox/pkg/container/vector"
	"github.com/shenh062326/velox/pkg/dwio"
	"github.com/shenh062326/velox/pkg/filter"
	"github.com/shenh062326/velox/pkg/scanspec"
)

// SelectiveColumnReader decodes one column.  Readers for nested types
// own their child readers; no reader is shared between two parents.
type SelectiveColumnReader interface {
	// StartStripe positions the reader at the beginning of a loaded
	// stripe.
	StartStripe(ctx context.Context, stripe *dwio.StripeReader) error

	// Read advances the reader by numRows logical rows, evaluating the
	// column's filter and clearing failing rows from sel.  Values of
	// surviving rows are buffered for GetValues.  An empty sel skips
	// the rows without decoding them.
	Read(ctx context.Context, numRows int, sel *SelectivityVector) error

	// GetValues appends the buffered values of the rows in sel to vec,
	// in ascending row order.  sel must be a subset of the rows that
	// survived this reader's own Read.
	GetValues(ctx context.Context, sel *SelectivityVector, vec *vector.Vector) error

	// Type returns the reader's output type.
	Type() types.Type
}

// baseReader carries the state shared by every concrete reader: column
// identity, presence decoding, the deferred-skip position and the
// per-batch row bookkeeping for GetValues.
type baseReader struct {
	col       uint32
	seq       uint32
	requested types.Type
	stored    types.Type
	spec      *scanspec.Spec
	filt      filter.Filter
	wantVals  bool

	present     *dwio.BoolDecoder
	pendingSkip int

	// rows whose values were buffered this batch, ascending, with the
	// null marker per buffered row
	outputRows []int64
	outNulls   []bool
}

func newBase(requested, stored *types.Field, col uint32, spec *scanspec.Spec) baseReader {
	b := baseReader{
		col:       col,
		requested: requested.Type,
		stored:    stored.Type,
		spec:      spec,
	}
	if spec != nil {
		b.filt = spec.Filter
		b.wantVals = spec.ReadsValues()
	}
	return b
}

func (b *baseReader) Type() types.Type {
	return b.requested
}

func (b *baseReader) startStripe(stripe *dwio.StripeReader) {
	b.present = nil
	b.pendingSkip = 0
	if bits := stripe.Stream(b.col, b.seq, dwio.StreamPresent); bits != nil {
		b.present = dwio.NewBoolDecoder(b.col, bits)
	}
}

// nextPresent consumes one presence bit, true meaning null.
func (b *baseReader) nextPresent(ctx context.Context) (bool, error) {
	if b.present == nil {
		return false, nil
	}
	p, err := b.present.Next(ctx)
	return !p, err
}

// beginBatch also refreshes the filter from the spec, so a dynamic
// filter merged in between batches takes effect on the next Read.
func (b *baseReader) beginBatch() {
	if b.spec != nil {
		b.filt = b.spec.Filter
	}
	b.outputRows = b.outputRows[:0]
	b.outNulls = b.outNulls[:0]
}

func (b *baseReader) addRow(row int, isNull bool) {
	b.outputRows = append(b.outputRows, int64(row))
	b.outNulls = append(b.outNulls, isNull)
}

// testNull decides whether a null row stays selected.
func (b *baseReader) testNull() bool {
	return b.filt == nil || b.filt.TestNull()
}

// forEachEmit walks the rows of sel that were buffered this batch, in
// order, calling fn with the buffer index and null marker of each.
func (b *baseReader) forEachEmit(sel *SelectivityVector, fn func(idx int, isNull bool)) {
	idx := 0
	for _, row := range sel.Rows() {
		for idx < len(b.outputRows) && b.outputRows[idx] < row {
			idx++
		}
		if idx == len(b.outputRows) || b.outputRows[idx] != row {
			continue
		}
		fn(idx, b.outNulls[idx])
		idx++
	}
}

// BuildParams carries the file-level facts the factory dispatches on.
type BuildParams struct {
	// Stripes is the stripe directory from the file footer; every
	// stripe's encoding of every column is validated up front so an
	// unsupported encoding fails at construction, never mid-decode.
	Stripes []dwio.StripeMeta
}

// encodingsOf collects the distinct encodings a column uses across all
// stripes.
func (p *BuildParams) encodingsOf(col uint32) []dwio.EncodingKind {
	var out []dwio.EncodingKind
	seen := make(map[dwio.EncodingKind]bool)
	for i := range p.Stripes {
		for _, cm := range p.Stripes[i].ColumnsOf(col) {
			if cm.Sequence == 0 && !seen[cm.Encoding.Kind] {
				seen[cm.Encoding.Kind] = true
				out = append(out, cm.Encoding.Kind)
			}
		}
	}
	return out
}

// Build resolves encodings and constructs the reader tree for a split.
// requested is the caller's output type, stored the file's schema; the
// two must be compatible (widening and struct-subset reordering are
// allowed).  The root must be a struct.
func Build(ctx context.Context, requested, stored *types.Field, params *BuildParams, spec *scanspec.Spec, isRoot bool) (SelectiveColumnReader, error) {
	if isRoot && stored.Type.Oid != types.T_row {
		return nil, moerr.NewSchemaMismatch(ctx, requested.Type.Oid.String(), stored.Type.Oid.String())
	}
	if err := types.CheckCompatibility(ctx, requested, stored); err != nil {
		return nil, err
	}
	ids := dwio.ColumnIDs(stored)
	// ids are assigned by pre-order walk of the full schema, so the
	// factory must always start from the file root
	return build(ctx, requested, stored, ids, params, spec)
}

func build(ctx context.Context, requested, stored *types.Field, ids map[*types.Field]uint32, params *BuildParams, spec *scanspec.Spec) (SelectiveColumnReader, error) {
	col := ids[stored]
	encodings := params.encodingsOf(col)
	for _, enc := range encodings {
		if err := dwio.CheckEncoding(ctx, enc, stored.Type); err != nil {
			return nil, err
		}
	}
	if spec != nil && spec.Filter != nil && !spec.Filter.AppliesTo(stored.Type.Oid) {
		return nil, moerr.NewSchemaMismatch(ctx, spec.Filter.String(), stored.Type.Oid.String())
	}
	base := newBase(requested, stored, col, spec)

	switch stored.Type.Oid {
	case types.T_bool, types.T_int8:
		return &byteReader{baseReader: base}, nil
	case types.T_int16, types.T_int32, types.T_int64:
		return &intReader{baseReader: base}, nil
	case types.T_decimal64:
		return newDecimalReader(base), nil
	case types.T_timestamp:
		return &timestampReader{baseReader: base}, nil
	case types.T_float32, types.T_float64:
		return &floatReader{baseReader: base}, nil
	case types.T_varchar, types.T_varbinary:
		return &stringReader{baseReader: base}, nil
	case types.T_row:
		return buildStruct(ctx, requested, stored, ids, params, spec, base)
	case types.T_array:
		elem, err := build(ctx, elemField(requested, stored), stored.Children[0], ids, params, childSpec(spec, stored.Children[0].Name))
		if err != nil {
			return nil, err
		}
		return &listReader{baseReader: base, elem: elem}, nil
	case types.T_map:
		flat, mixed := false, false
		for _, enc := range encodings {
			if enc == dwio.EncodingFlatMap {
				flat = true
			} else {
				mixed = true
			}
		}
		if flat && mixed {
			return nil, moerr.NewUnsupportedEncoding(ctx, "mixed flat map and direct", stored.Type.Oid.String())
		}
		if flat {
			return newFlatMapReader(ctx, requested, stored, ids, base)
		}
		keys, err := build(ctx, mapField(requested, stored, 0), stored.Children[0], ids, params, childSpec(spec, stored.Children[0].Name))
		if err != nil {
			return nil, err
		}
		vals, err := build(ctx, mapField(requested, stored, 1), stored.Children[1], ids, params, childSpec(spec, stored.Children[1].Name))
		if err != nil {
			return nil, err
		}
		return &mapReader{baseReader: base, keys: keys, vals: vals}, nil
	}
	return nil, moerr.NewNYI(ctx, "reader for type %s", stored.Type.Oid)
}

func childSpec(spec *scanspec.Spec, name string) *scanspec.Spec {
	if spec == nil {
		return nil
	}
	return spec.ChildByName(name)
}

// elemField picks the requested element field of an array, falling back
// to the stored one when the caller did not constrain it.
func elemField(requested, stored *types.Field) *types.Field {
	if requested.Type.Oid == types.T_array && len(requested.Children) == 1 {
		return requested.Children[0]
	}
	return stored.Children[0]
}

func mapField(requested, stored *types.Field, i int) *types.Field {
	if requested.Type.Oid == types.T_map && len(requested.Children) == 2 {
		return requested.Children[i]
	}
	return stored.Children[i]
}

func buildStruct(ctx context.Context, requested, stored *types.Field, ids map[*types.Field]uint32, params *BuildParams, spec *scanspec.Spec, base baseReader) (SelectiveColumnReader, error) {
	sr := &structReader{baseReader: base, byName: make(map[string]SelectiveColumnReader)}
	if spec == nil {
		return sr, nil
	}
	// child order follows the spec: filtered children are read first so
	// unfiltered ones decode fewer rows
	ordered := make([]*scanspec.Spec, 0, len(spec.Children()))
	for _, c := range spec.Children() {
		if c.HasFilter() {
			ordered = append(ordered, c)
		}
	}
	for _, c := range spec.Children() {
		if !c.HasFilter() {
			ordered = append(ordered, c)
		}
	}
	for _, cs := range ordered {
		if cs.Constant != nil {
			continue
		}
		storedChild := stored.ChildByName(cs.Name)
		if storedChild == nil {
			// column missing from the file, the scan materializes it
			// as a null constant
			continue
		}
		reqChild := requested.ChildByName(cs.Name)
		if reqChild == nil {
			reqChild = storedChild
		}
		child, err := build(ctx, reqChild, storedChild, ids, params, cs)
		if err != nil {
			return nil, err
		}
		sr.children = append(sr.children, child)
		sr.names = append(sr.names, cs.Name)
		sr.byName[cs.Name] = child
	}
	// output keeps the spec's child order, filter-only children excluded
	for _, cs := range spec.Children() {
		if cs.ReadsValues() && sr.byName[cs.Name] != nil {
			sr.outOrder = append(sr.outOrder, cs.Name)
		}
	}
	return sr, nil
}

// TestZoneMap reports whether a stripe whose statistics are zm may
// contain rows passing f.  Absent statistics never prune.
func TestZoneMap(f filter.Filter, zm *dwio.ZoneMap) bool {
	if f == nil || zm.Kind == types.T_any {
		return true
	}
	if zm.AllNull {
		return f.TestNull()
	}
	switch zm.Kind {
	case types.T_float32, types.T_float64:
		return f.TestFloat64Range(zm.FloatMin, zm.FloatMax, zm.HasNull)
	case types.T_varchar, types.T_varbinary:
		return f.TestBytesRange(zm.BytesMin, zm.BytesMax, zm.HasNull)
	default:
		return f.TestInt64Range(zm.IntMin, zm.IntMax, zm.HasNull)
	}
}
