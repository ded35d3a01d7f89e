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

	"github.com/shenh062326/velox/pkg/container/types"
	"github.com/shenh062326/velox/pkg/container/vector"
	"github.com/shenh062326/velox/pkg/dwio"
)

// floatReader decodes float columns.  A float32 column may be read as
// float64, the promotion happens value by value during decode.
type floatReader struct {
	baseReader

	d32 *dwio.FixedDecoder[float32]
	d64 *dwio.FixedDecoder[float64]

	vals []float64
}

func (r *floatReader) StartStripe(ctx context.Context, stripe *dwio.StripeReader) error {
	r.startStripe(stripe)
	if _, err := r.columnMetaOf(ctx, stripe); err != nil {
		return err
	}
	data := stripe.Stream(r.col, r.seq, dwio.StreamData)
	if r.stored.Oid == types.T_float32 {
		r.d32 = dwio.NewFixedDecoder[float32](r.col, data)
		r.d64 = nil
	} else {
		r.d64 = dwio.NewFixedDecoder[float64](r.col, data)
		r.d32 = nil
	}
	return nil
}

func (r *floatReader) skipValues(ctx context.Context, n uint64) error {
	if r.d32 != nil {
		return r.d32.Skip(ctx, n)
	}
	return r.d64.Skip(ctx, n)
}

func (r *floatReader) nextValue(ctx context.Context) (float64, error) {
	if r.d32 != nil {
		v, err := r.d32.Next(ctx)
		return float64(v), err
	}
	return r.d64.Next(ctx)
}

func (r *floatReader) Read(ctx context.Context, numRows int, sel *SelectivityVector) error {
	if sel.IsEmpty() {
		r.pendingSkip += numRows
		return nil
	}
	if err := r.applySkip(ctx, r.skipValues); err != nil {
		return err
	}
	r.beginBatch()
	r.vals = r.vals[:0]
	for row := 0; row < numRows; row++ {
		isNull, err := r.nextPresent(ctx)
		if err != nil {
			return err
		}
		if !sel.Contains(uint64(row)) {
			if !isNull {
				if err := r.skipValues(ctx, 1); err != nil {
					return err
				}
			}
			continue
		}
		if isNull {
			if !r.testNull() {
				sel.Clear(uint64(row))
				continue
			}
			if r.wantVals {
				r.addRow(row, true)
				r.vals = append(r.vals, 0)
			}
			continue
		}
		v, err := r.nextValue(ctx)
		if err != nil {
			return err
		}
		if r.filt != nil && !r.filt.TestFloat64(v) {
			sel.Clear(uint64(row))
			continue
		}
		if r.wantVals {
			r.addRow(row, false)
			r.vals = append(r.vals, v)
		}
	}
	return nil
}

func (r *floatReader) GetValues(_ context.Context, sel *SelectivityVector, vec *vector.Vector) error {
	r.forEachEmit(sel, func(idx int, isNull bool) {
		if r.requested.Oid == types.T_float32 {
			vector.AppendFixed(vec, float32(r.vals[idx]), isNull)
		} else {
			vector.AppendFixed(vec, r.vals[idx], isNull)
		}
	})
	return nil
}
