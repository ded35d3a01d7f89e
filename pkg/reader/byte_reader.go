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

// byteReader decodes run-length encoded byte streams, serving both bool
// and tinyint columns.
type byteReader struct {
	baseReader

	rle  *dwio.ByteRLEDecoder
	vals []byte
}

func (r *byteReader) StartStripe(ctx context.Context, stripe *dwio.StripeReader) error {
	r.startStripe(stripe)
	if _, err := r.columnMetaOf(ctx, stripe); err != nil {
		return err
	}
	r.rle = dwio.NewByteRLEDecoder(r.col, stripe.Stream(r.col, r.seq, dwio.StreamData))
	return nil
}

func (r *byteReader) testValue(b byte) bool {
	if r.filt == nil {
		return true
	}
	if r.stored.Oid == types.T_bool {
		return r.filt.TestBool(b != 0)
	}
	return r.filt.TestInt64(int64(int8(b)))
}

func (r *byteReader) Read(ctx context.Context, numRows int, sel *SelectivityVector) error {
	if sel.IsEmpty() {
		r.pendingSkip += numRows
		return nil
	}
	if err := r.applySkip(ctx, r.rle.Skip); err != nil {
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
				if err := r.rle.Skip(ctx, 1); err != nil {
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
		v, err := r.rle.Next(ctx)
		if err != nil {
			return err
		}
		if !r.testValue(v) {
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

func (r *byteReader) GetValues(ctx context.Context, sel *SelectivityVector, vec *vector.Vector) error {
	var err error
	r.forEachEmit(sel, func(idx int, isNull bool) {
		v := int8(r.vals[idx])
		switch r.requested.Oid {
		case types.T_bool:
			vector.AppendFixed(vec, r.vals[idx] != 0, isNull)
		case types.T_int8:
			vector.AppendFixed(vec, v, isNull)
		case types.T_int16:
			vector.AppendFixed(vec, int16(v), isNull)
		case types.T_int32:
			vector.AppendFixed(vec, int32(v), isNull)
		case types.T_int64:
			vector.AppendFixed(vec, int64(v), isNull)
		default:
			err = moerr.NewInternalError(ctx, "byte reader cannot emit %s", r.requested.Oid)
		}
	})
	return err
}
