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

	"github.com/RoaringBitmap/roaring"
	"github.com/shenh062326/velox/pkg/common/moerr"
	"github.com/shenh062326/velox/pkg/container/vector"
	"github.com/shenh062326/velox/pkg/dwio"
	"github.com/shenh062326/velox/pkg/filter"
)

// smallDictLimit bounds the flat verdict cache; larger dictionaries use
// roaring bitmaps so a sparse set of touched entries stays cheap.
const smallDictLimit = 1024

// dictVerdicts caches per-distinct-entry filter results.
type dictVerdicts struct {
	small []uint8

	tested *roaring.Bitmap
	passed *roaring.Bitmap
}

func newDictVerdicts(n int) *dictVerdicts {
	if n <= smallDictLimit {
		return &dictVerdicts{small: make([]uint8, n)}
	}
	return &dictVerdicts{tested: roaring.New(), passed: roaring.New()}
}

// lookup returns the cached verdict, or miss.
func (d *dictVerdicts) lookup(i uint32) (pass, hit bool) {
	if d.small != nil {
		switch d.small[i] {
		case dictPassed:
			return true, true
		case dictFailed:
			return false, true
		}
		return false, false
	}
	if !d.tested.Contains(i) {
		return false, false
	}
	return d.passed.Contains(i), true
}

func (d *dictVerdicts) store(i uint32, pass bool) {
	if d.small != nil {
		if pass {
			d.small[i] = dictPassed
		} else {
			d.small[i] = dictFailed
		}
		return
	}
	d.tested.Add(i)
	if pass {
		d.passed.Add(i)
	}
}

// stringReader decodes variable-length byte columns, direct or
// dictionary encoded.
type stringReader struct {
	baseReader

	// direct state
	data    []byte
	dataPos int
	lens    *dwio.VarintDecoder

	// dictionary state
	id       *dwio.VarintDecoder
	dict     [][]byte
	verdicts *dictVerdicts

	// the filter the cached verdicts were computed under
	cachedFilt filter.Filter

	vals [][]byte
}

func (r *stringReader) StartStripe(ctx context.Context, stripe *dwio.StripeReader) error {
	r.startStripe(stripe)
	cm, err := r.columnMetaOf(ctx, stripe)
	if err != nil {
		return err
	}
	switch cm.Encoding.Kind {
	case dwio.EncodingDirect:
		r.data = stripe.Stream(r.col, r.seq, dwio.StreamData)
		r.dataPos = 0
		r.lens = dwio.NewVarintDecoder(r.col, stripe.Stream(r.col, r.seq, dwio.StreamLength))
		r.id = nil
	case dwio.EncodingDictionary:
		r.id = dwio.NewVarintDecoder(r.col, stripe.Stream(r.col, r.seq, dwio.StreamData))
		dictData := stripe.Stream(r.col, r.seq, dwio.StreamDictionaryData)
		dl := dwio.NewVarintDecoder(r.col, stripe.Stream(r.col, r.seq, dwio.StreamDictionaryLength))
		n := int(cm.Encoding.DictionarySize)
		r.dict = r.dict[:0]
		pos := 0
		for i := 0; i < n; i++ {
			l, err := dl.Next(ctx)
			if err != nil {
				return err
			}
			if l < 0 || pos+int(l) > len(dictData) {
				return moerr.NewCorruptData(ctx, r.col, int64(pos), "dictionary entry %d length %d beyond stream", i, l)
			}
			r.dict = append(r.dict, dictData[pos:pos+int(l)])
			pos += int(l)
		}
		if r.filt != nil {
			r.verdicts = newDictVerdicts(n)
		}
	default:
		return moerr.NewUnsupportedEncoding(ctx, cm.Encoding.Kind.String(), r.stored.Oid.String())
	}
	return nil
}

func (r *stringReader) skipValues(ctx context.Context, n uint64) error {
	if r.id != nil {
		return r.id.Skip(ctx, n)
	}
	for ; n > 0; n-- {
		l, err := r.lens.Next(ctx)
		if err != nil {
			return err
		}
		r.dataPos += int(l)
	}
	return nil
}

// nextValue decodes one non-null value.  The verdict is non-nil when
// the dictionary cache already decided the filter for it.
func (r *stringReader) nextValue(ctx context.Context) ([]byte, *bool, error) {
	if r.id == nil {
		l, err := r.lens.Next(ctx)
		if err != nil {
			return nil, nil, err
		}
		if l < 0 || r.dataPos+int(l) > len(r.data) {
			return nil, nil, moerr.NewCorruptData(ctx, r.col, int64(r.dataPos), "value length %d beyond stream", l)
		}
		v := r.data[r.dataPos : r.dataPos+int(l)]
		r.dataPos += int(l)
		return v, nil, nil
	}
	di, err := r.id.Next(ctx)
	if err != nil {
		return nil, nil, err
	}
	if di < 0 || di >= int64(len(r.dict)) {
		return nil, nil, moerr.NewCorruptData(ctx, r.col, di, "dictionary index %d out of %d entries", di, len(r.dict))
	}
	v := r.dict[di]
	if r.filt == nil {
		return v, nil, nil
	}
	pass, hit := r.verdicts.lookup(uint32(di))
	if !hit {
		pass = r.filt.TestBytes(v)
		r.verdicts.store(uint32(di), pass)
	}
	return v, &pass, nil
}

func (r *stringReader) Read(ctx context.Context, numRows int, sel *SelectivityVector) error {
	if sel.IsEmpty() {
		r.pendingSkip += numRows
		return nil
	}
	if err := r.applySkip(ctx, r.skipValues); err != nil {
		return err
	}
	r.beginBatch()
	if r.filt != r.cachedFilt {
		if r.id != nil && r.filt != nil {
			r.verdicts = newDictVerdicts(len(r.dict))
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
				r.vals = append(r.vals, nil)
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
				pass = r.filt.TestBytes(v)
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

func (r *stringReader) GetValues(_ context.Context, sel *SelectivityVector, vec *vector.Vector) error {
	r.forEachEmit(sel, func(idx int, isNull bool) {
		vector.AppendBytes(vec, r.vals[idx], isNull)
	})
	return nil
}
