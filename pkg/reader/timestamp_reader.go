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
	"github.com/shenh062326/velox/pkg/container/types"
	"github.com/shenh062326/velox/pkg/container/vector"
	"github.com/shenh062326/velox/pkg/dwio"
)

// timestampReader recombines the seconds and nanosecond remainder
// streams into nanosecond instants.
type timestampReader struct {
	baseReader

	secs  *dwio.VarintDecoder
	nanos *dwio.VarintDecoder
	vals  []int64
}

func (r *timestampReader) StartStripe(ctx context.Context, stripe *dwio.StripeReader) error {
	r.startStripe(stripe)
	if _, err := r.columnMetaOf(ctx, stripe); err != nil {
		return err
	}
	r.secs = dwio.NewVarintDecoder(r.col, stripe.Stream(r.col, r.seq, dwio.StreamData))
	r.nanos = dwio.NewVarintDecoder(r.col, stripe.Stream(r.col, r.seq, dwio.StreamSecondary))
	return nil
}

func (r *timestampReader) skipValues(ctx context.Context, n uint64) error {
	if err := r.secs.Skip(ctx, n); err != nil {
		return err
	}
	return r.nanos.Skip(ctx, n)
}

func (r *timestampReader) nextValue(ctx context.Context) (int64, error) {
	secs, err := r.secs.Next(ctx)
	if err != nil {
		return 0, err
	}
	nanos, err := r.nanos.Next(ctx)
	if err != nil {
		return 0, err
	}
	if nanos < 0 || nanos >= 1e9 {
		return 0, moerr.NewCorruptData(ctx, r.col, nanos, "nanosecond remainder %d out of range", nanos)
	}
	return secs*1e9 + nanos, nil
}

func (r *timestampReader) Read(ctx context.Context, numRows int, sel *SelectivityVector) error {
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
		if r.filt != nil && !r.filt.TestInt64(v) {
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

func (r *timestampReader) GetValues(_ context.Context, sel *SelectivityVector, vec *vector.Vector) error {
	r.forEachEmit(sel, func(idx int, isNull bool) {
		vector.AppendFixed(vec, types.Timestamp(r.vals[idx]), isNull)
	})
	return nil
}
