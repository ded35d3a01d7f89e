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

	"github.com/shenh062326/velox/pkg/common/moerr"
	"github.com/shenh062326/velox/pkg/container/types"
)

const (
	// Magic trails the file, preceded by the footer length.
	Magic = "VXSCAN01"

	FormatVersion = 1

	// zone map byte values are truncated to this many bytes
	zoneMapMaxBytes = 32
)

// ZoneMap holds per-stripe min/max statistics for one column.  Absent
// statistics (Kind == types.T_any) never prune.
type ZoneMap struct {
	Kind    types.T
	HasNull bool
	AllNull bool

	IntMin, IntMax     int64
	FloatMin, FloatMax float64
	BytesMin, BytesMax []byte
}

// StreamMeta locates one physical stream inside a stripe.  Offset is
// relative to the stripe start.  A stream with CompLen < RawLen is lz4
// block compressed.
type StreamMeta struct {
	Kind    StreamKind
	Offset  uint64
	CompLen uint32
	RawLen  uint32
}

// ColumnMeta describes one column, or one flat-map key child, within a
// stripe.  Sequence is zero for ordinary columns; flat-map children of a
// map column share the map's Column id and are told apart by Sequence
// and Key.
type ColumnMeta struct {
	Column   uint32
	Sequence uint32
	Key      string
	Encoding EncodingDescriptor
	ZoneMap  ZoneMap
	Streams  []StreamMeta
}

// Stream returns the metadata of the stream with the given kind, or nil.
func (c *ColumnMeta) Stream(kind StreamKind) *StreamMeta {
	for i := range c.Streams {
		if c.Streams[i].Kind == kind {
			return &c.Streams[i]
		}
	}
	return nil
}

// StripeMeta describes one stripe: its extent in the file and the
// columns it holds.
type StripeMeta struct {
	Offset   uint64
	Length   uint64
	RowCount uint32
	Columns  []ColumnMeta
}

// ColumnsOf returns all column entries with the given id, in sequence
// order.  Ordinary columns yield one entry, flat maps one per key.
func (s *StripeMeta) ColumnsOf(col uint32) []*ColumnMeta {
	var out []*ColumnMeta
	for i := range s.Columns {
		if s.Columns[i].Column == col {
			out = append(out, &s.Columns[i])
		}
	}
	return out
}

// Footer is the file tail: schema, row count and the stripe directory.
type Footer struct {
	Version  uint32
	RowCount uint64
	Schema   *types.Field
	Stripes  []StripeMeta
}

func marshalString(buf []byte, s string) []byte {
	buf = appendVarint(buf, int64(len(s)))
	return append(buf, s...)
}

func marshalBytes(buf []byte, b []byte) []byte {
	buf = appendVarint(buf, int64(len(b)))
	return append(buf, b...)
}

func marshalField(buf []byte, f *types.Field) []byte {
	buf = marshalString(buf, f.Name)
	buf = append(buf, byte(f.Type.Oid))
	buf = appendVarint(buf, int64(f.Type.Width))
	buf = appendVarint(buf, int64(f.Type.Scale))
	buf = appendVarint(buf, int64(len(f.Children)))
	for _, c := range f.Children {
		buf = marshalField(buf, c)
	}
	return buf
}

func marshalZoneMap(buf []byte, z *ZoneMap) []byte {
	buf = append(buf, byte(z.Kind))
	if z.Kind == types.T_any {
		return buf
	}
	var flags byte
	if z.HasNull {
		flags |= 1
	}
	if z.AllNull {
		flags |= 2
	}
	buf = append(buf, flags)
	switch z.Kind {
	case types.T_float32, types.T_float64:
		buf = appendFixed(buf, z.FloatMin)
		buf = appendFixed(buf, z.FloatMax)
	case types.T_varchar, types.T_varbinary:
		buf = marshalBytes(buf, z.BytesMin)
		buf = marshalBytes(buf, z.BytesMax)
	default:
		buf = appendVarint(buf, z.IntMin)
		buf = appendVarint(buf, z.IntMax)
	}
	return buf
}

func marshalColumnMeta(buf []byte, c *ColumnMeta) []byte {
	buf = appendFixed(buf, c.Column)
	buf = appendFixed(buf, c.Sequence)
	buf = marshalString(buf, c.Key)
	buf = append(buf, byte(c.Encoding.Kind))
	buf = appendFixed(buf, c.Encoding.DictionarySize)
	buf = marshalZoneMap(buf, &c.ZoneMap)
	buf = append(buf, byte(len(c.Streams)))
	for _, st := range c.Streams {
		buf = append(buf, byte(st.Kind))
		buf = appendFixed(buf, st.Offset)
		buf = appendFixed(buf, st.CompLen)
		buf = appendFixed(buf, st.RawLen)
	}
	return buf
}

// Marshal serializes the footer.
func (f *Footer) Marshal() []byte {
	var buf []byte
	buf = appendFixed(buf, f.Version)
	buf = appendFixed(buf, f.RowCount)
	buf = marshalField(buf, f.Schema)
	buf = appendFixed(buf, uint32(len(f.Stripes)))
	for i := range f.Stripes {
		s := &f.Stripes[i]
		buf = appendFixed(buf, s.Offset)
		buf = appendFixed(buf, s.Length)
		buf = appendFixed(buf, s.RowCount)
		buf = appendFixed(buf, uint32(len(s.Columns)))
		for j := range s.Columns {
			buf = marshalColumnMeta(buf, &s.Columns[j])
		}
	}
	return buf
}

type metaReader struct {
	s byteStream
}

func (r *metaReader) varint(ctx context.Context) (int64, error) {
	d := VarintDecoder{s: r.s}
	v, err := d.Next(ctx)
	r.s = d.s
	return v, err
}

func (r *metaReader) length(ctx context.Context, what string, limit int64) (int, error) {
	n, err := r.varint(ctx)
	if err != nil {
		return 0, err
	}
	if n < 0 || n > limit {
		return 0, r.s.corrupt(ctx, "%s length %d out of range", what, n)
	}
	return int(n), nil
}

func (r *metaReader) bytes(ctx context.Context, what string) ([]byte, error) {
	n, err := r.length(ctx, what, int64(len(r.s.buf)))
	if err != nil {
		return nil, err
	}
	b, err := r.s.readN(ctx, n)
	if err != nil {
		return nil, err
	}
	return bytes.Clone(b), nil
}

func (r *metaReader) fixed32(ctx context.Context) (uint32, error) {
	b, err := r.s.readN(ctx, 4)
	if err != nil {
		return 0, err
	}
	return types.DecodeFixed[uint32](b), nil
}

func (r *metaReader) fixed64(ctx context.Context) (uint64, error) {
	b, err := r.s.readN(ctx, 8)
	if err != nil {
		return 0, err
	}
	return types.DecodeFixed[uint64](b), nil
}

func (r *metaReader) field(ctx context.Context, depth int) (*types.Field, error) {
	if depth > 64 {
		return nil, r.s.corrupt(ctx, "schema nesting too deep")
	}
	name, err := r.bytes(ctx, "field name")
	if err != nil {
		return nil, err
	}
	oid, err := r.s.readByte(ctx)
	if err != nil {
		return nil, err
	}
	width, err := r.varint(ctx)
	if err != nil {
		return nil, err
	}
	scale, err := r.varint(ctx)
	if err != nil {
		return nil, err
	}
	nchild, err := r.length(ctx, "child count", 1<<20)
	if err != nil {
		return nil, err
	}
	f := &types.Field{
		Name: string(name),
		Type: types.Type{Oid: types.T(oid), Width: int32(width), Scale: int32(scale)},
	}
	f.Type.Size = types.New(f.Type.Oid).Size
	for i := 0; i < nchild; i++ {
		c, err := r.field(ctx, depth+1)
		if err != nil {
			return nil, err
		}
		f.Children = append(f.Children, c)
	}
	return f, nil
}

func (r *metaReader) zoneMap(ctx context.Context) (ZoneMap, error) {
	var z ZoneMap
	kind, err := r.s.readByte(ctx)
	if err != nil {
		return z, err
	}
	z.Kind = types.T(kind)
	if z.Kind == types.T_any {
		return z, nil
	}
	flags, err := r.s.readByte(ctx)
	if err != nil {
		return z, err
	}
	z.HasNull = flags&1 != 0
	z.AllNull = flags&2 != 0
	switch z.Kind {
	case types.T_float32, types.T_float64:
		b, err := r.s.readN(ctx, 16)
		if err != nil {
			return z, err
		}
		z.FloatMin = types.DecodeFixed[float64](b[:8])
		z.FloatMax = types.DecodeFixed[float64](b[8:])
	case types.T_varchar, types.T_varbinary:
		if z.BytesMin, err = r.bytes(ctx, "zone map min"); err != nil {
			return z, err
		}
		if z.BytesMax, err = r.bytes(ctx, "zone map max"); err != nil {
			return z, err
		}
	default:
		if z.IntMin, err = r.varint(ctx); err != nil {
			return z, err
		}
		if z.IntMax, err = r.varint(ctx); err != nil {
			return z, err
		}
	}
	return z, nil
}

func (r *metaReader) columnMeta(ctx context.Context) (ColumnMeta, error) {
	var c ColumnMeta
	var err error
	if c.Column, err = r.fixed32(ctx); err != nil {
		return c, err
	}
	if c.Sequence, err = r.fixed32(ctx); err != nil {
		return c, err
	}
	key, err := r.bytes(ctx, "flat map key")
	if err != nil {
		return c, err
	}
	c.Key = string(key)
	enc, err := r.s.readByte(ctx)
	if err != nil {
		return c, err
	}
	c.Encoding.Kind = EncodingKind(enc)
	if c.Encoding.DictionarySize, err = r.fixed32(ctx); err != nil {
		return c, err
	}
	if c.ZoneMap, err = r.zoneMap(ctx); err != nil {
		return c, err
	}
	nstreams, err := r.s.readByte(ctx)
	if err != nil {
		return c, err
	}
	for i := 0; i < int(nstreams); i++ {
		var st StreamMeta
		kind, err := r.s.readByte(ctx)
		if err != nil {
			return c, err
		}
		st.Kind = StreamKind(kind)
		if st.Offset, err = r.fixed64(ctx); err != nil {
			return c, err
		}
		if st.CompLen, err = r.fixed32(ctx); err != nil {
			return c, err
		}
		if st.RawLen, err = r.fixed32(ctx); err != nil {
			return c, err
		}
		c.Streams = append(c.Streams, st)
	}
	return c, nil
}

// UnmarshalFooter parses a serialized footer, validating every length
// it reads.
func UnmarshalFooter(ctx context.Context, buf []byte, fileSize int64) (*Footer, error) {
	r := &metaReader{s: newByteStream(0, buf)}
	var f Footer
	var err error
	if f.Version, err = r.fixed32(ctx); err != nil {
		return nil, err
	}
	if f.Version != FormatVersion {
		return nil, r.s.corrupt(ctx, "unknown format version %d", f.Version)
	}
	if f.RowCount, err = r.fixed64(ctx); err != nil {
		return nil, err
	}
	if f.Schema, err = r.field(ctx, 0); err != nil {
		return nil, err
	}
	nstripes, err := r.fixed32(ctx)
	if err != nil {
		return nil, err
	}
	for i := uint32(0); i < nstripes; i++ {
		var s StripeMeta
		if s.Offset, err = r.fixed64(ctx); err != nil {
			return nil, err
		}
		if s.Length, err = r.fixed64(ctx); err != nil {
			return nil, err
		}
		if s.Offset+s.Length > uint64(fileSize) {
			return nil, r.s.corrupt(ctx, "stripe %d extent [%d,%d) beyond file size %d",
				i, s.Offset, s.Offset+s.Length, fileSize)
		}
		if s.RowCount, err = r.fixed32(ctx); err != nil {
			return nil, err
		}
		ncols, err := r.fixed32(ctx)
		if err != nil {
			return nil, err
		}
		for j := uint32(0); j < ncols; j++ {
			c, err := r.columnMeta(ctx)
			if err != nil {
				return nil, err
			}
			for _, st := range c.Streams {
				if st.Offset+uint64(st.CompLen) > s.Length {
					return nil, moerr.NewCorruptData(ctx, c.Column, int64(st.Offset),
						"stream %s beyond stripe length %d", st.Kind, s.Length)
				}
			}
			s.Columns = append(s.Columns, c)
		}
		f.Stripes = append(f.Stripes, s)
	}
	return &f, nil
}
