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
	"github.com/shenh062326/velox/pkg/container/vector"
	"github.com/shenh062326/velox/pkg/dwio"
	"github.com/shenh062326/velox/pkg/filter"
)

// testContainerRow applies a null-oriented filter to a container row.
// Value filters never reach container nodes, the factory rejects them.
func (b *baseReader) testContainerRow(isNull bool) bool {
	if b.filt == nil {
		return true
	}
	if isNull {
		return b.filt.TestNull()
	}
	return b.filt.Kind() != filter.KindIsNull
}

// repeatedLengths is the Length-stream state shared by list and map
// readers.  Per batch it records, for each buffered parent row, the
// span of child elements within the current element window.
type repeatedLengths struct {
	lens *dwio.VarintDecoder

	window   int
	rowOffs  []uint32
	rowLens  []uint32
	childSel SelectivityVector
	emptySel SelectivityVector
}

func (rl *repeatedLengths) startStripe(col, seq uint32, stripe *dwio.StripeReader) {
	rl.lens = dwio.NewVarintDecoder(col, stripe.Stream(col, seq, dwio.StreamLength))
}

func (rl *repeatedLengths) nextLength(ctx context.Context, col uint32) (uint64, error) {
	n, err := rl.lens.Next(ctx)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, moerr.NewCorruptData(ctx, col, n, "negative repeated length")
	}
	return uint64(n), nil
}

// skipRows consumes the lengths of n skipped non-null rows and returns
// the number of child elements they cover.
func (rl *repeatedLengths) skipRows(ctx context.Context, col uint32, n uint64) (uint64, error) {
	elems := uint64(0)
	for i := uint64(0); i < n; i++ {
		l, err := rl.nextLength(ctx, col)
		if err != nil {
			return 0, err
		}
		elems += l
	}
	return elems, nil
}

// listReader reads an array column: a Length stream giving the element
// count of each non-null row, and one element sub-reader whose rows are
// the flattened elements.
type listReader struct {
	baseReader
	repeatedLengths
	elem SelectiveColumnReader
}

func (r *listReader) StartStripe(ctx context.Context, stripe *dwio.StripeReader) error {
	r.baseReader.startStripe(stripe)
	if _, err := r.columnMetaOf(ctx, stripe); err != nil {
		return err
	}
	r.repeatedLengths.startStripe(r.col, r.seq, stripe)
	return r.elem.StartStripe(ctx, stripe)
}

func (r *listReader) skipPending(ctx context.Context) error {
	if r.pendingSkip == 0 {
		return nil
	}
	elems := uint64(0)
	err := r.applySkip(ctx, func(ctx context.Context, n uint64) error {
		e, err := r.skipRows(ctx, r.col, n)
		elems += e
		return err
	})
	if err != nil {
		return err
	}
	r.emptySel.resetEmpty(int(elems))
	return r.elem.Read(ctx, int(elems), &r.emptySel)
}

func (r *listReader) Read(ctx context.Context, numRows int, sel *SelectivityVector) error {
	if sel.IsEmpty() {
		r.pendingSkip += numRows
		return nil
	}
	if err := r.skipPending(ctx); err != nil {
		return err
	}
	r.beginBatch()
	r.rowOffs = r.rowOffs[:0]
	r.rowLens = r.rowLens[:0]
	total := uint64(0)
	for row := 0; row < numRows; row++ {
		isNull, err := r.nextPresent(ctx)
		if err != nil {
			return err
		}
		var l uint64
		if !isNull {
			if l, err = r.nextLength(ctx, r.col); err != nil {
				return err
			}
		}
		start := total
		total += l
		if !sel.Contains(uint64(row)) {
			continue
		}
		if !r.testContainerRow(isNull) {
			sel.Clear(uint64(row))
			continue
		}
		r.addRow(row, isNull)
		r.rowOffs = append(r.rowOffs, uint32(start))
		r.rowLens = append(r.rowLens, uint32(l))
	}
	r.window = int(total)
	r.childSel.resetEmpty(r.window)
	for i := range r.rowOffs {
		r.childSel.addRange(uint64(r.rowOffs[i]), uint64(r.rowOffs[i])+uint64(r.rowLens[i]))
	}
	return r.elem.Read(ctx, r.window, &r.childSel)
}

func (r *listReader) GetValues(ctx context.Context, sel *SelectivityVector, vec *vector.Vector) error {
	// re-derive the element selection from the surviving parent rows
	r.childSel.resetEmpty(r.window)
	r.forEachEmit(sel, func(idx int, _ bool) {
		r.childSel.addRange(uint64(r.rowOffs[idx]), uint64(r.rowOffs[idx])+uint64(r.rowLens[idx]))
	})
	cv := vector.NewVec(r.elem.Type())
	if err := r.elem.GetValues(ctx, &r.childSel, cv); err != nil {
		return err
	}
	vec.SetChildren(cv)
	cum := uint32(0)
	r.forEachEmit(sel, func(idx int, isNull bool) {
		vec.AppendRange(cum, r.rowLens[idx], isNull)
		cum += r.rowLens[idx]
	})
	if int(cum) != cv.Length() {
		return moerr.NewInternalError(ctx, "column %d: array elements %d out of step with child rows %d",
			r.col, cum, cv.Length())
	}
	return nil
}

// mapReader reads a directly encoded map column.  It shares the array
// layout, with two child streams keyed and valued in lockstep.
type mapReader struct {
	baseReader
	repeatedLengths
	keys SelectiveColumnReader
	vals SelectiveColumnReader
}

func (r *mapReader) StartStripe(ctx context.Context, stripe *dwio.StripeReader) error {
	r.baseReader.startStripe(stripe)
	if _, err := r.columnMetaOf(ctx, stripe); err != nil {
		return err
	}
	r.repeatedLengths.startStripe(r.col, r.seq, stripe)
	if err := r.keys.StartStripe(ctx, stripe); err != nil {
		return err
	}
	return r.vals.StartStripe(ctx, stripe)
}

func (r *mapReader) skipPending(ctx context.Context) error {
	if r.pendingSkip == 0 {
		return nil
	}
	elems := uint64(0)
	err := r.applySkip(ctx, func(ctx context.Context, n uint64) error {
		e, err := r.skipRows(ctx, r.col, n)
		elems += e
		return err
	})
	if err != nil {
		return err
	}
	r.emptySel.resetEmpty(int(elems))
	if err := r.keys.Read(ctx, int(elems), &r.emptySel); err != nil {
		return err
	}
	r.emptySel.resetEmpty(int(elems))
	return r.vals.Read(ctx, int(elems), &r.emptySel)
}

func (r *mapReader) Read(ctx context.Context, numRows int, sel *SelectivityVector) error {
	if sel.IsEmpty() {
		r.pendingSkip += numRows
		return nil
	}
	if err := r.skipPending(ctx); err != nil {
		return err
	}
	r.beginBatch()
	r.rowOffs = r.rowOffs[:0]
	r.rowLens = r.rowLens[:0]
	total := uint64(0)
	for row := 0; row < numRows; row++ {
		isNull, err := r.nextPresent(ctx)
		if err != nil {
			return err
		}
		var l uint64
		if !isNull {
			if l, err = r.nextLength(ctx, r.col); err != nil {
				return err
			}
		}
		start := total
		total += l
		if !sel.Contains(uint64(row)) {
			continue
		}
		if !r.testContainerRow(isNull) {
			sel.Clear(uint64(row))
			continue
		}
		r.addRow(row, isNull)
		r.rowOffs = append(r.rowOffs, uint32(start))
		r.rowLens = append(r.rowLens, uint32(l))
	}
	r.window = int(total)
	r.childSel.resetEmpty(r.window)
	for i := range r.rowOffs {
		r.childSel.addRange(uint64(r.rowOffs[i]), uint64(r.rowOffs[i])+uint64(r.rowLens[i]))
	}
	if err := r.keys.Read(ctx, r.window, &r.childSel); err != nil {
		return err
	}
	return r.vals.Read(ctx, r.window, &r.childSel)
}

func (r *mapReader) GetValues(ctx context.Context, sel *SelectivityVector, vec *vector.Vector) error {
	r.childSel.resetEmpty(r.window)
	r.forEachEmit(sel, func(idx int, _ bool) {
		r.childSel.addRange(uint64(r.rowOffs[idx]), uint64(r.rowOffs[idx])+uint64(r.rowLens[idx]))
	})
	kv := vector.NewVec(r.keys.Type())
	if err := r.keys.GetValues(ctx, &r.childSel, kv); err != nil {
		return err
	}
	vv := vector.NewVec(r.vals.Type())
	if err := r.vals.GetValues(ctx, &r.childSel, vv); err != nil {
		return err
	}
	vec.SetChildren(kv, vv)
	cum := uint32(0)
	r.forEachEmit(sel, func(idx int, isNull bool) {
		vec.AppendRange(cum, r.rowLens[idx], isNull)
		cum += r.rowLens[idx]
	})
	if int(cum) != kv.Length() || kv.Length() != vv.Length() {
		return moerr.NewInternalError(ctx, "column %d: map entries %d out of step with children %d/%d",
			r.col, cum, kv.Length(), vv.Length())
	}
	return nil
}
