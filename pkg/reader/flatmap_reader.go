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
	"context"

	"github.com/shenh062326/velox/pkg/common/moerr"
	"github.com/shenh062326/velox/pkg/container/nulls"
	"github.com/shenh062326/velox/pkg/container/types"
	"github.com/shenh062326/velox/pkg/container/vector"
	"github.com/shenh062326/velox/pkg/dwio"
)

// flatMapKey is one key child of a flat map within the current stripe:
// an in-map bitstream with one bit per row, and a scalar sub-reader
// whose rows are the occurrences of that key.
type flatMapKey struct {
	key   string
	inMap *dwio.BoolDecoder
	rd    SelectiveColumnReader

	// per batch: the parent row of each occurrence, and the occurrence
	// selection handed to the sub-reader
	occRows []int64
	occSel  SelectivityVector
}

// flatMapReader reads a flat-map encoded map column.  The key set is a
// stripe-level property, so the key children are rebuilt per stripe from
// the stripe metadata.
type flatMapReader struct {
	baseReader
	reqValue *types.Field
	stoValue *types.Field

	keys []*flatMapKey

	// scratch for the per-key cursors used during assembly
	cursors []int
}

func newFlatMapReader(ctx context.Context, requested, stored *types.Field, ids map[*types.Field]uint32, base baseReader) (SelectiveColumnReader, error) {
	keyOid := stored.Children[0].Type.Oid
	if keyOid != types.T_varchar && keyOid != types.T_varbinary {
		return nil, moerr.NewNYI(ctx, "flat map with %s keys", keyOid)
	}
	stoVal := stored.Children[1]
	switch stoVal.Type.Oid {
	case types.T_row, types.T_array, types.T_map:
		return nil, moerr.NewNYI(ctx, "flat map with %s values", stoVal.Type.Oid)
	}
	return &flatMapReader{
		baseReader: base,
		reqValue:   mapField(requested, stored, 1),
		stoValue:   stoVal,
	}, nil
}

// newValueReader builds the scalar sub-reader for one key child.  Its
// rows are the key's occurrences, identified by the child's sequence.
func (r *flatMapReader) newValueReader(ctx context.Context, seq uint32) (SelectiveColumnReader, error) {
	kb := baseReader{
		col:       r.col,
		seq:       seq,
		requested: r.reqValue.Type,
		stored:    r.stoValue.Type,
		wantVals:  true,
	}
	switch r.stoValue.Type.Oid {
	case types.T_bool, types.T_int8:
		return &byteReader{baseReader: kb}, nil
	case types.T_int16, types.T_int32, types.T_int64:
		return &intReader{baseReader: kb}, nil
	case types.T_decimal64:
		return newDecimalReader(kb), nil
	case types.T_timestamp:
		return &timestampReader{baseReader: kb}, nil
	case types.T_float32, types.T_float64:
		return &floatReader{baseReader: kb}, nil
	case types.T_varchar, types.T_varbinary:
		return &stringReader{baseReader: kb}, nil
	}
	return nil, moerr.NewNYI(ctx, "flat map with %s values", r.stoValue.Type.Oid)
}

func (r *flatMapReader) StartStripe(ctx context.Context, stripe *dwio.StripeReader) error {
	r.startStripe(stripe)
	if _, err := r.columnMetaOf(ctx, stripe); err != nil {
		return err
	}
	r.keys = r.keys[:0]
	for _, cm := range stripe.Meta().ColumnsOf(r.col) {
		if cm.Sequence == 0 {
			continue
		}
		bits := stripe.Stream(r.col, cm.Sequence, dwio.StreamInMap)
		if bits == nil {
			return moerr.NewCorruptData(ctx, r.col, 0, "flat map key %q lacks an in-map stream", cm.Key)
		}
		rd, err := r.newValueReader(ctx, cm.Sequence)
		if err != nil {
			return err
		}
		if err := rd.StartStripe(ctx, stripe); err != nil {
			return err
		}
		r.keys = append(r.keys, &flatMapKey{
			key:   cm.Key,
			inMap: dwio.NewBoolDecoder(r.col, bits),
			rd:    rd,
		})
	}
	return nil
}

func (r *flatMapReader) skipPending(ctx context.Context) error {
	n := r.pendingSkip
	if n == 0 {
		return nil
	}
	r.pendingSkip = 0
	for i := 0; i < n; i++ {
		if _, err := r.nextPresent(ctx); err != nil {
			return err
		}
	}
	for _, k := range r.keys {
		occ := 0
		for i := 0; i < n; i++ {
			in, err := k.inMap.Next(ctx)
			if err != nil {
				return err
			}
			if in {
				occ++
			}
		}
		k.occSel.resetEmpty(occ)
		if err := k.rd.Read(ctx, occ, &k.occSel); err != nil {
			return err
		}
	}
	return nil
}

func (r *flatMapReader) Read(ctx context.Context, numRows int, sel *SelectivityVector) error {
	if sel.IsEmpty() {
		r.pendingSkip += numRows
		return nil
	}
	if err := r.skipPending(ctx); err != nil {
		return err
	}
	r.beginBatch()
	for row := 0; row < numRows; row++ {
		isNull, err := r.nextPresent(ctx)
		if err != nil {
			return err
		}
		if !sel.Contains(uint64(row)) {
			continue
		}
		if !r.testContainerRow(isNull) {
			sel.Clear(uint64(row))
			continue
		}
		r.addRow(row, isNull)
	}
	// every key consumes one in-map bit per row, selected or not
	for _, k := range r.keys {
		k.occRows = k.occRows[:0]
		for row := 0; row < numRows; row++ {
			in, err := k.inMap.Next(ctx)
			if err != nil {
				return err
			}
			if in {
				k.occRows = append(k.occRows, int64(row))
			}
		}
		k.occSel.resetEmpty(len(k.occRows))
		for i, row := range k.occRows {
			if sel.Contains(uint64(row)) {
				k.occSel.bm.Add(uint64(i))
			}
		}
		if err := k.rd.Read(ctx, len(k.occRows), &k.occSel); err != nil {
			return err
		}
	}
	return nil
}

// copyValue moves one materialized cell between vectors of the same
// type.
func copyValue(ctx context.Context, dst, src *vector.Vector, i int) error {
	isNull := nulls.Contains(src.GetNulls(), uint64(i))
	switch src.GetType().Oid {
	case types.T_bool:
		vector.AppendFixed(dst, vector.GetFixedAt[bool](src, i), isNull)
	case types.T_int8:
		vector.AppendFixed(dst, vector.GetFixedAt[int8](src, i), isNull)
	case types.T_int16:
		vector.AppendFixed(dst, vector.GetFixedAt[int16](src, i), isNull)
	case types.T_int32:
		vector.AppendFixed(dst, vector.GetFixedAt[int32](src, i), isNull)
	case types.T_int64:
		vector.AppendFixed(dst, vector.GetFixedAt[int64](src, i), isNull)
	case types.T_decimal64:
		vector.AppendFixed(dst, vector.GetFixedAt[types.Decimal64](src, i), isNull)
	case types.T_timestamp:
		vector.AppendFixed(dst, vector.GetFixedAt[types.Timestamp](src, i), isNull)
	case types.T_float32:
		vector.AppendFixed(dst, vector.GetFixedAt[float32](src, i), isNull)
	case types.T_float64:
		vector.AppendFixed(dst, vector.GetFixedAt[float64](src, i), isNull)
	case types.T_varchar, types.T_varbinary:
		vector.AppendBytes(dst, src.GetBytes(i), isNull)
	default:
		return moerr.NewInternalError(ctx, "no cell copy for type %s", src.GetType().Oid)
	}
	return nil
}

func (r *flatMapReader) GetValues(ctx context.Context, sel *SelectivityVector, vec *vector.Vector) error {
	kv := vector.NewVec(types.New(types.T_varchar))
	vv := vector.NewVec(r.reqValue.Type)

	// per key, the occurrences of surviving rows and their values
	selRows := make([][]int64, len(r.keys))
	vals := make([]*vector.Vector, len(r.keys))
	for ki, k := range r.keys {
		k.occSel.resetEmpty(len(k.occRows))
		for i, row := range k.occRows {
			if sel.Contains(uint64(row)) {
				k.occSel.bm.Add(uint64(i))
				selRows[ki] = append(selRows[ki], row)
			}
		}
		vals[ki] = vector.NewVec(k.rd.Type())
		if err := k.rd.GetValues(ctx, &k.occSel, vals[ki]); err != nil {
			return err
		}
		if vals[ki].Length() != len(selRows[ki]) {
			return moerr.NewInternalError(ctx, "column %d: flat map key %q values %d out of step with occurrences %d",
				r.col, k.key, vals[ki].Length(), len(selRows[ki]))
		}
	}

	// interleave row-major: each surviving row takes its next occurrence
	// from every key that has one there
	r.cursors = r.cursors[:0]
	for range r.keys {
		r.cursors = append(r.cursors, 0)
	}
	cum := uint32(0)
	var emitErr error
	r.forEachEmit(sel, func(idx int, isNull bool) {
		if emitErr != nil {
			return
		}
		row := r.outputRows[idx]
		cnt := uint32(0)
		for ki, k := range r.keys {
			c := r.cursors[ki]
			if c < len(selRows[ki]) && selRows[ki][c] == row {
				vector.AppendBytes(kv, []byte(k.key), false)
				if err := copyValue(ctx, vv, vals[ki], c); err != nil {
					emitErr = err
					return
				}
				r.cursors[ki]++
				cnt++
			}
		}
		vec.AppendRange(cum, cnt, isNull)
		cum += cnt
	})
	if emitErr != nil {
		return emitErr
	}
	vec.SetChildren(kv, vv)
	return nil
}
