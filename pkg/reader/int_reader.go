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
	"github.com/shenh062326/velox/pkg/filter"
)

type intMode uint8

const (
	intModeDirect16 intMode = iota
	intModeDirect32
	intModeDirect64
	intModeVarint
	intModeDict
)

const (
	dictUntested = iota
	dictPassed
	dictFailed
)

// columnMetaOf finds this reader's column entry in a stripe.
func (b *baseReader) columnMetaOf(ctx context.Context, stripe *dwio.StripeReader) (*dwio.ColumnMeta, error) {
	for _, cm := range stripe.Meta().ColumnsOf(b.col) {
		if cm.Sequence == b.seq {
			return cm, nil
		}
	}
	return nil, moerr.NewCorruptData(ctx, b.col, 0, "column missing from stripe")
}

// intReader decodes the integer family: direct fixed-width, zigzag
// varint and dictionary encodings.  It also serves decimals, rescaling
// when the requested scale differs from the stored one.
type intReader struct {
	baseReader

	// rescale is applied to every decoded value: multiply when
	// positive, divide when negative, identity when zero
	rescale int64

	mode intMode
	d16  *dwio.FixedDecoder[int16]
	d32  *dwio.FixedDecoder[int32]
	d64  *dwio.FixedDecoder[int64]
	vd   *dwio.VarintDecoder
	id   *dwio.VarintDecoder

	// dictionary state, valid in intModeDict: values plus the
	// per-distinct filter verdict cache
	dict      []int64
	dictCache []uint8

	// the filter the cache verdicts were computed under; a dynamic
	// filter arriving between batches invalidates them
	cachedFilt filter.Filter

	vals []int64
}

func newDecimalReader(base baseReader) *intReader {
	r := &intReader{baseReader: base}
	diff := base.requested.Scale - base.stored.Scale
	for ; diff > 0; diff-- {
		if r.rescale == 0 {
			r.rescale = 1
		}
		r.rescale *= 10
	}
	for ; diff < 0; diff++ {
		if r.rescale == 0 {
			r.rescale = -1
		}
		r.rescale *= 10
	}
	return r
}

func (r *intReader) StartStripe(ctx context.Context, stripe *dwio.StripeReader) error {
	r.startStripe(stripe)
	cm, err := r.columnMetaOf(ctx, stripe)
	if err != nil {
		return err
	}
	data := stripe.Stream(r.col, r.seq, dwio.StreamData)
	switch cm.Encoding.Kind {
	case dwio.EncodingDirect:
		switch r.stored.Oid {
		case types.T_int16:
			r.mode = intModeDirect16
			r.d16 = dwio.NewFixedDecoder[int16](r.col, data)
		case types.T_int32:
			r.mode = intModeDirect32
			r.d32 = dwio.NewFixedDecoder[int32](r.col, data)
		default:
			r.mode = intModeDirect64
			r.d64 = dwio.NewFixedDecoder[int64](r.col, data)
		}
	case dwio.EncodingDirectV2:
		r.mode = intModeVarint
		r.vd = dwio.NewVarintDecoder(r.col, data)
	case dwio.EncodingDictionary:
		r.mode = intModeDict
		r.id = dwio.NewVarintDecoder(r.col, data)
		dd := dwio.NewVarintDecoder(r.col, stripe.Stream(r.col, r.seq, dwio.StreamDictionaryData))
		n := int(cm.Encoding.DictionarySize)
		r.dict = r.dict[:0]
		for i := 0; i < n; i++ {
			v, err := dd.Next(ctx)
			if err != nil {
				return err
			}
			r.dict = append(r.dict, r.applyScale(v))
		}
		r.dictCache = r.dictCache[:0]
		for i := 0; i < n; i++ {
			r.dictCache = append(r.dictCache, dictUntested)
		}
	default:
		return moerr.NewUnsupportedEncoding(ctx, cm.Encoding.Kind.String(), r.stored.Oid.String())
	}
	return nil
}

func (r *intReader) applyScale(v int64) int64 {
	if r.rescale > 0 {
		return v * r.rescale
	}
	if r.rescale < 0 {
		return v / -r.rescale
	}
	return v
}

func (r *intReader) skipValues(ctx context.Context, n uint64) error {
	switch r.mode {
	case intModeDirect16:
		return r.d16.Skip(ctx, n)
	case intModeDirect32:
		return r.d32.Skip(ctx, n)
	case intModeDirect64:
		return r.d64.Skip(ctx, n)
	case intModeVarint:
		return r.vd.Skip(ctx, n)
	default:
		return r.id.Skip(ctx, n)
	}
}

// nextValue decodes one non-null value.  The returned verdict is
// non-nil when the dictionary cache already decided the filter.
func (r *intReader) nextValue(ctx context.Context) (int64, *bool, error) {
	switch r.mode {
	case intModeDirect16:
		v, err := r.d16.Next(ctx)
		return r.applyScale(int64(v)), nil, err
	case intModeDirect32:
		v, err := r.d32.Next(ctx)
		return r.applyScale(int64(v)), nil, err
	case intModeDirect64:
		v, err := r.d64.Next(ctx)
		return r.applyScale(v), nil, err
	case intModeVarint:
		v, err := r.vd.Next(ctx)
		return r.applyScale(v), nil, err
	}
	di, err := r.id.Next(ctx)
	if err != nil {
		return 0, nil, err
	}
	if di < 0 || di >= int64(len(r.dict)) {
		return 0, nil, moerr.NewCorruptData(ctx, r.col, di, "dictionary index %d out of %d entries", di, len(r.dict))
	}
	v := r.dict[di]
	if r.filt == nil {
		return v, nil, nil
	}
	// the filter verdict for one distinct value is computed once and
	// broadcast to every row sharing the entry
	if r.dictCache[di] == dictUntested {
		if r.filt.TestInt64(v) {
			r.dictCache[di] = dictPassed
		} else {
			r.dictCache[di] = dictFailed
		}
	}
	verdict := r.dictCache[di] == dictPassed
	return v, &verdict, nil
}

func (r *intReader) Read(ctx context.Context, numRows int, sel *SelectivityVector) error {
	if sel.IsEmpty() {
		r.pendingSkip += numRows
		return nil
	}
	if err := r.applySkip(ctx, r.skipValues); err != nil {
		return err
	}
	r.beginBatch()
	if r.filt != r.cachedFilt {
		for i := range r.dictCache {
			r.dictCache[i] = dictUntested
		}
		r.cachedFilt = r.filt
	}
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
		v, verdict, err := r.nextValue(ctx)
		if err != nil {
			return err
		}
		if r.filt != nil {
			pass := verdict != nil && *verdict
			if verdict == nil {
				pass = r.filt.TestInt64(v)
			}
			if !pass {
				sel.Clear(uint64(row))
				continue
			}
		}
		if r.wantVals {
			r.addRow(row, false)
			r.vals = append(r.vals, v)
		}
	}
	return nil
}

func (r *intReader) GetValues(ctx context.Context, sel *SelectivityVector, vec *vector.Vector) error {
	var err error
	r.forEachEmit(sel, func(idx int, isNull bool) {
		v := r.vals[idx]
		switch r.requested.Oid {
		case types.T_int16:
			vector.AppendFixed(vec, int16(v), isNull)
		case types.T_int32:
			vector.AppendFixed(vec, int32(v), isNull)
		case types.T_int64:
			vector.AppendFixed(vec, v, isNull)
		case types.T_decimal64:
			vector.AppendFixed(vec, types.Decimal64(v), isNull)
		default:
			err = moerr.NewInternalError(ctx, "integer reader cannot emit %s", r.requested.Oid)
		}
	})
	return err
}

// applySkip consumes rows deferred by empty-selection batches before
// the next real decode.
func (b *baseReader) applySkip(ctx context.Context, skip func(context.Context, uint64) error) error {
	for ; b.pendingSkip > 0; b.pendingSkip-- {
		isNull, err := b.nextPresent(ctx)
		if err != nil {
			return err
		}
		if !isNull && skip != nil {
			if err := skip(ctx, 1); err != nil {
				return err
			}
		}
	}
	return nil
}
