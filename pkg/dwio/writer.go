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
	"bytes"
	"context"

	"github.com/pierrec/lz4/v4"
	"github.com/shenh062326/velox/pkg/common/moerr"
	"github.com/shenh062326/velox/pkg/container/batch"
	"github.com/shenh062326/velox/pkg/container/types"
	"github.com/shenh062326/velox/pkg/container/vector"
	"github.com/shenh062326/velox/pkg/fileservice"
)

// WriterOptions tunes stripe layout and encoding choice.
type WriterOptions struct {
	// StripeRows is the row count at which a stripe is cut.
	StripeRows int
	// DisableCompression writes streams raw.
	DisableCompression bool
	// DictionaryRatio switches a column to dictionary encoding when
	// distinct/total is at or below it.
	DictionaryRatio float64
	// ForceEncoding pins the encoding of a column, keyed by dotted
	// field path, overriding the heuristic.  Useful to produce files
	// with a known layout.
	ForceEncoding map[string]EncodingKind
	// FlatMapColumns names map columns, by dotted field path, to write
	// column-per-key.  Keys must be strings and values scalar.
	FlatMapColumns map[string]bool
}

func (o *WriterOptions) fill() {
	if o.StripeRows <= 0 {
		o.StripeRows = 8192
	}
	if o.DictionaryRatio <= 0 {
		o.DictionaryRatio = 0.5
	}
}

// Writer assembles a columnar file stripe by stripe and stores it
// through a WritableFS on Close.
type Writer struct {
	fs     fileservice.WritableFS
	path   string
	schema *types.Field
	opts   WriterOptions

	root       colWriter
	body       []byte
	stripes    []StripeMeta
	rows       uint64
	stripeRows int
}

func NewWriter(fs fileservice.WritableFS, path string, schema *types.Field, opts WriterOptions) (*Writer, error) {
	ctx := context.Background()
	if schema.Type.Oid != types.T_row {
		return nil, moerr.NewInvalidArg(ctx, "writer schema root", schema.Type.Oid.String())
	}
	opts.fill()
	w := &Writer{fs: fs, path: path, schema: schema, opts: opts}
	ids := ColumnIDs(schema)
	root, err := w.newColWriter(ctx, schema, ids, "")
	if err != nil {
		return nil, err
	}
	w.root = root
	return w, nil
}

// Write appends all rows of bat, cutting stripes as it goes.
func (w *Writer) Write(ctx context.Context, bat *batch.Batch) error {
	vec := vector.NewVec(w.schema.Type)
	vec.SetChildren(bat.Vecs...)
	vec.SetLength(bat.RowCount())
	start := 0
	for start < bat.RowCount() {
		n := w.opts.StripeRows - w.stripeRows
		if n > bat.RowCount()-start {
			n = bat.RowCount() - start
		}
		if err := w.root.append(ctx, vec, start, n); err != nil {
			return err
		}
		w.stripeRows += n
		start += n
		if w.stripeRows == w.opts.StripeRows {
			if err := w.cutStripe(ctx); err != nil {
				return err
			}
		}
	}
	return nil
}

func (w *Writer) cutStripe(ctx context.Context) error {
	if w.stripeRows == 0 {
		return nil
	}
	sb := &stripeBuilder{compress: !w.opts.DisableCompression}
	if err := w.root.flush(ctx, sb); err != nil {
		return err
	}
	meta := StripeMeta{
		Offset:   uint64(len(w.body)),
		Length:   uint64(len(sb.data)),
		RowCount: uint32(w.stripeRows),
		Columns:  sb.cols,
	}
	w.body = append(w.body, sb.data...)
	w.stripes = append(w.stripes, meta)
	w.rows += uint64(w.stripeRows)
	w.stripeRows = 0
	return nil
}

// Close flushes the last stripe, appends the footer and writes the file.
func (w *Writer) Close(ctx context.Context) error {
	if err := w.cutStripe(ctx); err != nil {
		return err
	}
	footer := Footer{
		Version:  FormatVersion,
		RowCount: w.rows,
		Schema:   w.schema,
		Stripes:  w.stripes,
	}
	fb := footer.Marshal()
	file := append(w.body, fb...)
	file = appendFixed(file, uint32(len(fb)))
	file = append(file, Magic...)
	return w.fs.Write(ctx, w.path, file)
}

// stripeBuilder accumulates encoded streams and column metadata for one
// stripe.
type stripeBuilder struct {
	data     []byte
	cols     []ColumnMeta
	compress bool
}

func (sb *stripeBuilder) addStream(cm *ColumnMeta, kind StreamKind, raw []byte) {
	st := StreamMeta{
		Kind:   kind,
		Offset: uint64(len(sb.data)),
		RawLen: uint32(len(raw)),
	}
	out := raw
	if sb.compress && len(raw) > 0 {
		dst := make([]byte, len(raw))
		if n, err := lz4.CompressBlock(raw, dst, nil); err == nil && n > 0 && n < len(raw) {
			out = dst[:n]
		}
	}
	st.CompLen = uint32(len(out))
	sb.data = append(sb.data, out...)
	cm.Streams = append(cm.Streams, st)
}

type colWriter interface {
	// append buffers rows [start, start+n) of vec.
	append(ctx context.Context, vec *vector.Vector, start, n int) error
	// flush encodes the buffered rows into streams and column metadata.
	flush(ctx context.Context, sb *stripeBuilder) error
}

// writerBase carries the identity and presence state shared by all
// column writers.  Value streams hold non-null rows only.
type writerBase struct {
	col     uint32
	seq     uint32
	key     string
	forced  EncodingKind
	hasForce bool

	present []bool
	inMap   []byte
}

func (b *writerBase) note(isNull bool) {
	b.present = append(b.present, !isNull)
}

func (b *writerBase) anyNull() bool {
	for _, p := range b.present {
		if !p {
			return true
		}
	}
	return false
}

func (b *writerBase) newMeta(enc EncodingDescriptor, zm ZoneMap) ColumnMeta {
	return ColumnMeta{
		Column:   b.col,
		Sequence: b.seq,
		Key:      b.key,
		Encoding: enc,
		ZoneMap:  zm,
	}
}

func (b *writerBase) flushPresence(cm *ColumnMeta, sb *stripeBuilder) {
	if len(b.inMap) > 0 {
		var e boolEncoder
		for _, v := range b.inMap {
			e.Put(v != 0)
		}
		sb.addStream(cm, StreamInMap, e.Finish())
	}
	if !b.anyNull() {
		return
	}
	var e boolEncoder
	for _, p := range b.present {
		e.Put(p)
	}
	sb.addStream(cm, StreamPresent, e.Finish())
}

func (b *writerBase) reset() {
	b.present = b.present[:0]
	b.inMap = b.inMap[:0]
}

func (w *Writer) newColWriter(ctx context.Context, f *types.Field, ids map[*types.Field]uint32, path string) (colWriter, error) {
	childPath := func(name string) string {
		if path == "" {
			return name
		}
		return path + "." + name
	}
	base := writerBase{col: ids[f]}
	if enc, ok := w.opts.ForceEncoding[path]; ok {
		base.forced, base.hasForce = enc, true
		if err := CheckEncoding(ctx, enc, f.Type); err != nil {
			return nil, err
		}
	}
	switch f.Type.Oid {
	case types.T_bool, types.T_int8:
		return &byteColWriter{writerBase: base, typ: f.Type}, nil
	case types.T_int16, types.T_int32, types.T_int64, types.T_decimal64:
		return &intColWriter{writerBase: base, typ: f.Type, ratio: w.opts.DictionaryRatio}, nil
	case types.T_timestamp:
		return &timestampColWriter{writerBase: base}, nil
	case types.T_float32, types.T_float64:
		return &floatColWriter{writerBase: base, typ: f.Type}, nil
	case types.T_varchar, types.T_varbinary:
		return &stringColWriter{writerBase: base, typ: f.Type, ratio: w.opts.DictionaryRatio}, nil
	case types.T_row:
		sw := &structColWriter{writerBase: base}
		for _, c := range f.Children {
			cw, err := w.newColWriter(ctx, c, ids, childPath(c.Name))
			if err != nil {
				return nil, err
			}
			sw.children = append(sw.children, cw)
		}
		return sw, nil
	case types.T_array:
		cw, err := w.newColWriter(ctx, f.Children[0], ids, childPath(f.Children[0].Name))
		if err != nil {
			return nil, err
		}
		return &listColWriter{writerBase: base, elem: cw}, nil
	case types.T_map:
		if w.opts.FlatMapColumns[path] {
			return w.newFlatMapWriter(ctx, f, base)
		}
		kw, err := w.newColWriter(ctx, f.Children[0], ids, childPath(f.Children[0].Name))
		if err != nil {
			return nil, err
		}
		vw, err := w.newColWriter(ctx, f.Children[1], ids, childPath(f.Children[1].Name))
		if err != nil {
			return nil, err
		}
		return &mapColWriter{writerBase: base, keys: kw, vals: vw}, nil
	}
	return nil, moerr.NewNYI(ctx, "writer for type %s", f.Type.Oid)
}

// intAt widens one integer-family cell to int64.
func intAt(vec *vector.Vector, i int) int64 {
	switch vec.GetType().Oid {
	case types.T_int16:
		return int64(vector.GetFixedAt[int16](vec, i))
	case types.T_int32:
		return int64(vector.GetFixedAt[int32](vec, i))
	case types.T_int64:
		return vector.GetFixedAt[int64](vec, i)
	case types.T_decimal64:
		return int64(vector.GetFixedAt[types.Decimal64](vec, i))
	}
	panic("not an integer column")
}

type intColWriter struct {
	writerBase
	typ   types.Type
	ratio float64
	vals  []int64
}

func (w *intColWriter) append(_ context.Context, vec *vector.Vector, start, n int) error {
	for i := start; i < start+n; i++ {
		if vec.GetNulls().Contains(uint64(i)) {
			w.note(true)
			continue
		}
		w.note(false)
		w.vals = append(w.vals, intAt(vec, i))
	}
	return nil
}

func (w *intColWriter) pickEncoding() EncodingDescriptor {
	if w.hasForce {
		desc := EncodingDescriptor{Kind: w.forced}
		if w.forced == EncodingDictionary {
			desc.DictionarySize = uint32(len(distinctInts(w.vals)))
		}
		return desc
	}
	if len(w.vals) >= 16 {
		dict := distinctInts(w.vals)
		if float64(len(dict)) <= w.ratio*float64(len(w.vals)) {
			return EncodingDescriptor{Kind: EncodingDictionary, DictionarySize: uint32(len(dict))}
		}
	}
	return EncodingDescriptor{Kind: EncodingDirectV2}
}

func distinctInts(vals []int64) []int64 {
	seen := make(map[int64]struct{}, len(vals))
	var out []int64
	for _, v := range vals {
		if _, ok := seen[v]; !ok {
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	return out
}

func (w *intColWriter) zoneMap() ZoneMap {
	zm := ZoneMap{Kind: w.typ.Oid, HasNull: w.anyNull(), AllNull: len(w.vals) == 0}
	for i, v := range w.vals {
		if i == 0 || v < zm.IntMin {
			zm.IntMin = v
		}
		if i == 0 || v > zm.IntMax {
			zm.IntMax = v
		}
	}
	return zm
}

func (w *intColWriter) flush(ctx context.Context, sb *stripeBuilder) error {
	enc := w.pickEncoding()
	cm := w.newMeta(enc, w.zoneMap())
	w.flushPresence(&cm, sb)
	switch enc.Kind {
	case EncodingDirect:
		var data []byte
		for _, v := range w.vals {
			switch w.typ.Oid {
			case types.T_int16:
				data = appendFixed(data, int16(v))
			case types.T_int32:
				data = appendFixed(data, int32(v))
			default:
				data = appendFixed(data, v)
			}
		}
		sb.addStream(&cm, StreamData, data)
	case EncodingDirectV2:
		var data []byte
		for _, v := range w.vals {
			data = appendVarint(data, v)
		}
		sb.addStream(&cm, StreamData, data)
	case EncodingDictionary:
		dict := distinctInts(w.vals)
		index := make(map[int64]int64, len(dict))
		var dictData []byte
		for i, v := range dict {
			index[v] = int64(i)
			dictData = appendVarint(dictData, v)
		}
		var data []byte
		for _, v := range w.vals {
			data = appendVarint(data, index[v])
		}
		sb.addStream(&cm, StreamData, data)
		sb.addStream(&cm, StreamDictionaryData, dictData)
	default:
		return moerr.NewUnsupportedEncoding(ctx, enc.Kind.String(), w.typ.Oid.String())
	}
	sb.cols = append(sb.cols, cm)
	w.vals = w.vals[:0]
	w.reset()
	return nil
}

// timestampColWriter splits nanosecond instants into a seconds stream
// and a nanosecond remainder stream.
type timestampColWriter struct {
	writerBase
	vals []int64
}

func (w *timestampColWriter) append(_ context.Context, vec *vector.Vector, start, n int) error {
	for i := start; i < start+n; i++ {
		if vec.GetNulls().Contains(uint64(i)) {
			w.note(true)
			continue
		}
		w.note(false)
		w.vals = append(w.vals, int64(vector.GetFixedAt[types.Timestamp](vec, i)))
	}
	return nil
}

func (w *timestampColWriter) flush(_ context.Context, sb *stripeBuilder) error {
	zm := ZoneMap{Kind: types.T_timestamp, HasNull: w.anyNull(), AllNull: len(w.vals) == 0}
	for i, v := range w.vals {
		if i == 0 || v < zm.IntMin {
			zm.IntMin = v
		}
		if i == 0 || v > zm.IntMax {
			zm.IntMax = v
		}
	}
	cm := w.newMeta(EncodingDescriptor{Kind: EncodingDirectV2}, zm)
	w.flushPresence(&cm, sb)
	var secData, nanoData []byte
	for _, v := range w.vals {
		secs := v / 1e9
		nanos := v % 1e9
		if nanos < 0 {
			secs--
			nanos += 1e9
		}
		secData = appendVarint(secData, secs)
		nanoData = appendVarint(nanoData, nanos)
	}
	sb.addStream(&cm, StreamData, secData)
	sb.addStream(&cm, StreamSecondary, nanoData)
	sb.cols = append(sb.cols, cm)
	w.vals = w.vals[:0]
	w.reset()
	return nil
}

type floatColWriter struct {
	writerBase
	typ  types.Type
	vals []float64
}

func (w *floatColWriter) append(_ context.Context, vec *vector.Vector, start, n int) error {
	for i := start; i < start+n; i++ {
		if vec.GetNulls().Contains(uint64(i)) {
			w.note(true)
			continue
		}
		w.note(false)
		if vec.GetType().Oid == types.T_float32 {
			w.vals = append(w.vals, float64(vector.GetFixedAt[float32](vec, i)))
		} else {
			w.vals = append(w.vals, vector.GetFixedAt[float64](vec, i))
		}
	}
	return nil
}

func (w *floatColWriter) flush(_ context.Context, sb *stripeBuilder) error {
	zm := ZoneMap{Kind: w.typ.Oid, HasNull: w.anyNull(), AllNull: len(w.vals) == 0}
	for i, v := range w.vals {
		if i == 0 || v < zm.FloatMin {
			zm.FloatMin = v
		}
		if i == 0 || v > zm.FloatMax {
			zm.FloatMax = v
		}
	}
	cm := w.newMeta(EncodingDescriptor{Kind: EncodingDirect}, zm)
	w.flushPresence(&cm, sb)
	var data []byte
	for _, v := range w.vals {
		if w.typ.Oid == types.T_float32 {
			data = appendFixed(data, float32(v))
		} else {
			data = appendFixed(data, v)
		}
	}
	sb.addStream(&cm, StreamData, data)
	sb.cols = append(sb.cols, cm)
	w.vals = w.vals[:0]
	w.reset()
	return nil
}

type byteColWriter struct {
	writerBase
	typ  types.Type
	vals []byte
}

func (w *byteColWriter) append(_ context.Context, vec *vector.Vector, start, n int) error {
	for i := start; i < start+n; i++ {
		if vec.GetNulls().Contains(uint64(i)) {
			w.note(true)
			continue
		}
		w.note(false)
		if w.typ.Oid == types.T_bool {
			if vector.GetFixedAt[bool](vec, i) {
				w.vals = append(w.vals, 1)
			} else {
				w.vals = append(w.vals, 0)
			}
		} else {
			w.vals = append(w.vals, byte(vector.GetFixedAt[int8](vec, i)))
		}
	}
	return nil
}

func (w *byteColWriter) flush(_ context.Context, sb *stripeBuilder) error {
	zm := ZoneMap{Kind: w.typ.Oid, HasNull: w.anyNull(), AllNull: len(w.vals) == 0}
	for i, b := range w.vals {
		v := int64(int8(b))
		if i == 0 || v < zm.IntMin {
			zm.IntMin = v
		}
		if i == 0 || v > zm.IntMax {
			zm.IntMax = v
		}
	}
	cm := w.newMeta(EncodingDescriptor{Kind: EncodingByteRLE}, zm)
	w.flushPresence(&cm, sb)
	var e byteRLEEncoder
	for _, b := range w.vals {
		e.Put(b)
	}
	sb.addStream(&cm, StreamData, e.Finish())
	sb.cols = append(sb.cols, cm)
	w.vals = w.vals[:0]
	w.reset()
	return nil
}

type stringColWriter struct {
	writerBase
	typ   types.Type
	ratio float64
	vals  [][]byte
}

func (w *stringColWriter) append(_ context.Context, vec *vector.Vector, start, n int) error {
	for i := start; i < start+n; i++ {
		if vec.GetNulls().Contains(uint64(i)) {
			w.note(true)
			continue
		}
		w.note(false)
		w.vals = append(w.vals, bytes.Clone(vec.GetBytes(i)))
	}
	return nil
}

func (w *stringColWriter) zoneMap() ZoneMap {
	zm := ZoneMap{Kind: w.typ.Oid, HasNull: w.anyNull(), AllNull: len(w.vals) == 0}
	for i, v := range w.vals {
		if i == 0 || bytes.Compare(v, zm.BytesMin) < 0 {
			zm.BytesMin = v
		}
		if i == 0 || bytes.Compare(v, zm.BytesMax) > 0 {
			zm.BytesMax = v
		}
	}
	if len(zm.BytesMin) > zoneMapMaxBytes {
		zm.BytesMin = zm.BytesMin[:zoneMapMaxBytes]
	}
	if len(zm.BytesMax) > zoneMapMaxBytes {
		// truncating the max keeps it a lower bound of itself, pad to
		// stay an upper bound
		zm.BytesMax = append(bytes.Clone(zm.BytesMax[:zoneMapMaxBytes]), 0xff)
	}
	return zm
}

func (w *stringColWriter) flush(ctx context.Context, sb *stripeBuilder) error {
	useDict := false
	var dict [][]byte
	index := make(map[string]int64)
	for _, v := range w.vals {
		if _, ok := index[string(v)]; !ok {
			index[string(v)] = int64(len(dict))
			dict = append(dict, v)
		}
	}
	if w.hasForce {
		useDict = w.forced == EncodingDictionary
	} else if len(w.vals) >= 16 {
		useDict = float64(len(dict)) <= w.ratio*float64(len(w.vals))
	}

	enc := EncodingDescriptor{Kind: EncodingDirect}
	if useDict {
		enc = EncodingDescriptor{Kind: EncodingDictionary, DictionarySize: uint32(len(dict))}
	}
	cm := w.newMeta(enc, w.zoneMap())
	w.flushPresence(&cm, sb)

	if useDict {
		var data, dictData, dictLen []byte
		for _, v := range w.vals {
			data = appendVarint(data, index[string(v)])
		}
		for _, v := range dict {
			dictData = append(dictData, v...)
			dictLen = appendVarint(dictLen, int64(len(v)))
		}
		sb.addStream(&cm, StreamData, data)
		sb.addStream(&cm, StreamDictionaryData, dictData)
		sb.addStream(&cm, StreamDictionaryLength, dictLen)
	} else {
		var data, lens []byte
		for _, v := range w.vals {
			data = append(data, v...)
			lens = appendVarint(lens, int64(len(v)))
		}
		sb.addStream(&cm, StreamData, data)
		sb.addStream(&cm, StreamLength, lens)
	}
	sb.cols = append(sb.cols, cm)
	w.vals = w.vals[:0]
	w.reset()
	return nil
}

type structColWriter struct {
	writerBase
	children []colWriter
}

func (w *structColWriter) append(ctx context.Context, vec *vector.Vector, start, n int) error {
	for i := start; i < start+n; i++ {
		w.note(vec.GetNulls().Contains(uint64(i)))
	}
	for i, c := range w.children {
		if err := c.append(ctx, vec.Children()[i], start, n); err != nil {
			return err
		}
	}
	return nil
}

func (w *structColWriter) flush(ctx context.Context, sb *stripeBuilder) error {
	cm := w.newMeta(EncodingDescriptor{Kind: EncodingDirect}, ZoneMap{})
	w.flushPresence(&cm, sb)
	sb.cols = append(sb.cols, cm)
	w.reset()
	for _, c := range w.children {
		if err := c.flush(ctx, sb); err != nil {
			return err
		}
	}
	return nil
}

type listColWriter struct {
	writerBase
	elem   colWriter
	counts []int64
}

func (w *listColWriter) append(ctx context.Context, vec *vector.Vector, start, n int) error {
	offsets, lengths := vec.Offsets(), vec.Lengths()
	for i := start; i < start+n; i++ {
		if vec.GetNulls().Contains(uint64(i)) {
			w.note(true)
			continue
		}
		w.note(false)
		w.counts = append(w.counts, int64(lengths[i]))
		if lengths[i] > 0 {
			if err := w.elem.append(ctx, vec.Children()[0], int(offsets[i]), int(lengths[i])); err != nil {
				return err
			}
		}
	}
	return nil
}

func (w *listColWriter) flush(ctx context.Context, sb *stripeBuilder) error {
	cm := w.newMeta(EncodingDescriptor{Kind: EncodingDirect}, ZoneMap{})
	w.flushPresence(&cm, sb)
	var lens []byte
	for _, c := range w.counts {
		lens = appendVarint(lens, c)
	}
	sb.addStream(&cm, StreamLength, lens)
	sb.cols = append(sb.cols, cm)
	w.counts = w.counts[:0]
	w.reset()
	return w.elem.flush(ctx, sb)
}

type mapColWriter struct {
	writerBase
	keys   colWriter
	vals   colWriter
	counts []int64
}

func (w *mapColWriter) append(ctx context.Context, vec *vector.Vector, start, n int) error {
	offsets, lengths := vec.Offsets(), vec.Lengths()
	for i := start; i < start+n; i++ {
		if vec.GetNulls().Contains(uint64(i)) {
			w.note(true)
			continue
		}
		w.note(false)
		w.counts = append(w.counts, int64(lengths[i]))
		if lengths[i] > 0 {
			if err := w.keys.append(ctx, vec.Children()[0], int(offsets[i]), int(lengths[i])); err != nil {
				return err
			}
			if err := w.vals.append(ctx, vec.Children()[1], int(offsets[i]), int(lengths[i])); err != nil {
				return err
			}
		}
	}
	return nil
}

func (w *mapColWriter) flush(ctx context.Context, sb *stripeBuilder) error {
	cm := w.newMeta(EncodingDescriptor{Kind: EncodingDirect}, ZoneMap{})
	w.flushPresence(&cm, sb)
	var lens []byte
	for _, c := range w.counts {
		lens = appendVarint(lens, c)
	}
	sb.addStream(&cm, StreamLength, lens)
	sb.cols = append(sb.cols, cm)
	w.counts = w.counts[:0]
	w.reset()
	if err := w.keys.flush(ctx, sb); err != nil {
		return err
	}
	return w.vals.flush(ctx, sb)
}
