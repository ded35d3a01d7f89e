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

package dwio

import (
	"context"

	"github.com/shenh062326/velox/pkg/common/moerr"
	"github.com/shenh062326/velox/pkg/container/types"
	"github.com/shenh062326/velox/pkg/container/vector"
)

func (b *writerBase) setInMap(bits []byte) {
	b.inMap = bits
}

func isScalarKind(t types.T) bool {
	switch t {
	case types.T_bool, types.T_int8, types.T_int16, types.T_int32, types.T_int64,
		types.T_float32, types.T_float64, types.T_decimal64, types.T_timestamp,
		types.T_varchar, types.T_varbinary:
		return true
	}
	return false
}

// flatMapColWriter writes a map column as one value child per distinct
// key.  Each child carries an IN_MAP stream marking the rows in which
// its key occurs.  Children are created on first sight of a key and
// live for one stripe.
type flatMapColWriter struct {
	writerBase
	makeChild func(seq uint32, key string) colWriter

	rows     int
	keyOrder []string
	children map[string]*flatMapKeyState
}

type flatMapKeyState struct {
	w     colWriter
	inMap []bool
}

func (s *flatMapKeyState) mark(row int) bool {
	for len(s.inMap) < row {
		s.inMap = append(s.inMap, false)
	}
	if len(s.inMap) > row {
		// duplicate key within one row, first occurrence wins
		return false
	}
	s.inMap = append(s.inMap, true)
	return true
}

func (w *Writer) newFlatMapWriter(ctx context.Context, f *types.Field, base writerBase) (colWriter, error) {
	keyT := f.Children[0].Type.Oid
	if keyT != types.T_varchar && keyT != types.T_varbinary {
		return nil, moerr.NewNYI(ctx, "flat map with %s keys", keyT)
	}
	valueField := f.Children[1]
	if !isScalarKind(valueField.Type.Oid) {
		return nil, moerr.NewNYI(ctx, "flat map with %s values", valueField.Type.Oid)
	}
	ratio := w.opts.DictionaryRatio
	fm := &flatMapColWriter{
		writerBase: base,
		children:   make(map[string]*flatMapKeyState),
	}
	// key children share the map's column id, told apart by Sequence
	fm.makeChild = func(seq uint32, key string) colWriter {
		cb := writerBase{col: base.col, seq: seq, key: key}
		switch valueField.Type.Oid {
		case types.T_bool, types.T_int8:
			return &byteColWriter{writerBase: cb, typ: valueField.Type}
		case types.T_float32, types.T_float64:
			return &floatColWriter{writerBase: cb, typ: valueField.Type}
		case types.T_varchar, types.T_varbinary:
			return &stringColWriter{writerBase: cb, typ: valueField.Type, ratio: ratio}
		case types.T_timestamp:
			return &timestampColWriter{writerBase: cb}
		default:
			return &intColWriter{writerBase: cb, typ: valueField.Type, ratio: ratio}
		}
	}
	return fm, nil
}

func (w *flatMapColWriter) child(key string) *flatMapKeyState {
	st, ok := w.children[key]
	if !ok {
		seq := uint32(len(w.keyOrder) + 1)
		st = &flatMapKeyState{w: w.makeChild(seq, key)}
		w.children[key] = st
		w.keyOrder = append(w.keyOrder, key)
	}
	return st
}

func (w *flatMapColWriter) append(ctx context.Context, vec *vector.Vector, start, n int) error {
	offsets, lengths := vec.Offsets(), vec.Lengths()
	keyVec, valVec := vec.Children()[0], vec.Children()[1]
	for i := start; i < start+n; i++ {
		if vec.GetNulls().Contains(uint64(i)) {
			w.note(true)
			w.rows++
			continue
		}
		w.note(false)
		for j := int(offsets[i]); j < int(offsets[i])+int(lengths[i]); j++ {
			st := w.child(keyVec.GetString(j))
			if !st.mark(w.rows) {
				continue
			}
			if err := st.w.append(ctx, valVec, j, 1); err != nil {
				return err
			}
		}
		w.rows++
	}
	return nil
}

func (w *flatMapColWriter) flush(ctx context.Context, sb *stripeBuilder) error {
	cm := w.newMeta(EncodingDescriptor{Kind: EncodingFlatMap}, ZoneMap{})
	w.flushPresence(&cm, sb)
	sb.cols = append(sb.cols, cm)
	for _, key := range w.keyOrder {
		st := w.children[key]
		bits := make([]byte, w.rows)
		for i, in := range st.inMap {
			if in {
				bits[i] = 1
			}
		}
		st.w.(interface{ setInMap([]byte) }).setInMap(bits)
		if err := st.w.flush(ctx, sb); err != nil {
			return err
		}
	}
	w.rows = 0
	w.keyOrder = w.keyOrder[:0]
	w.children = make(map[string]*flatMapKeyState)
	w.reset()
	return nil
}
