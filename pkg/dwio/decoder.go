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
)

// byteStream is a cursor over one decoded stream.  Every decode error
// carries the owning column id and the byte position at which decoding
// failed, so a corrupt file can be reported precisely.
type byteStream struct {
	col uint32
	buf []byte
	pos int
}

func newByteStream(col uint32, buf []byte) byteStream {
	return byteStream{col: col, buf: buf}
}

func (s *byteStream) corrupt(ctx context.Context, msg string, args ...any) error {
	return moerr.NewCorruptData(ctx, s.col, int64(s.pos), msg, args...)
}

func (s *byteStream) readByte(ctx context.Context) (byte, error) {
	if s.pos >= len(s.buf) {
		return 0, s.corrupt(ctx, "stream exhausted")
	}
	b := s.buf[s.pos]
	s.pos++
	return b, nil
}

func (s *byteStream) readN(ctx context.Context, n int) ([]byte, error) {
	if s.pos+n > len(s.buf) {
		return nil, s.corrupt(ctx, "stream exhausted, need %d bytes, have %d", n, len(s.buf)-s.pos)
	}
	b := s.buf[s.pos : s.pos+n]
	s.pos += n
	return b, nil
}

// FixedDecoder reads fixed-width little-endian values.
type FixedDecoder[T types.FixedSizeT] struct {
	s    byteStream
	size int
}

func NewFixedDecoder[T types.FixedSizeT](col uint32, buf []byte) *FixedDecoder[T] {
	var zero T
	return &FixedDecoder[T]{s: newByteStream(col, buf), size: int(types.SizeOf(zero))}
}

func (d *FixedDecoder[T]) Next(ctx context.Context) (T, error) {
	var zero T
	b, err := d.s.readN(ctx, d.size)
	if err != nil {
		return zero, err
	}
	return types.DecodeFixed[T](b), nil
}

func (d *FixedDecoder[T]) Skip(ctx context.Context, n uint64) error {
	_, err := d.s.readN(ctx, d.size*int(n))
	return err
}

// VarintDecoder reads zigzag encoded varints.
type VarintDecoder struct {
	s byteStream
}

func NewVarintDecoder(col uint32, buf []byte) *VarintDecoder {
	return &VarintDecoder{s: newByteStream(col, buf)}
}

func (d *VarintDecoder) Next(ctx context.Context) (int64, error) {
	var x uint64
	var shift uint
	for {
		b, err := d.s.readByte(ctx)
		if err != nil {
			return 0, err
		}
		if shift >= 64 {
			return 0, d.s.corrupt(ctx, "varint overflows 64 bits")
		}
		x |= uint64(b&0x7f) << shift
		if b < 0x80 {
			break
		}
		shift += 7
	}
	// zigzag decode
	return int64(x>>1) ^ -int64(x&1), nil
}

func (d *VarintDecoder) Skip(ctx context.Context, n uint64) error {
	for ; n > 0; n-- {
		if _, err := d.Next(ctx); err != nil {
			return err
		}
	}
	return nil
}

// ByteRLEDecoder reads the byte run-length encoding used for bool and
// int8 columns.  A control byte below 0x80 starts a run of control+3
// copies of the following byte, otherwise 256-control literal bytes
// follow.
type ByteRLEDecoder struct {
	s byteStream

	// current run
	repeat  bool
	value   byte
	left    int
	literal []byte
}

func NewByteRLEDecoder(col uint32, buf []byte) *ByteRLEDecoder {
	return &ByteRLEDecoder{s: newByteStream(col, buf)}
}

const (
	byteRLEMinRun = 3
	byteRLEMaxRun = 127 + byteRLEMinRun
	byteRLEMaxLit = 128
)

func (d *ByteRLEDecoder) nextRun(ctx context.Context) error {
	ctl, err := d.s.readByte(ctx)
	if err != nil {
		return err
	}
	if ctl < 0x80 {
		d.repeat = true
		d.left = int(ctl) + byteRLEMinRun
		d.value, err = d.s.readByte(ctx)
		return err
	}
	d.repeat = false
	d.left = 256 - int(ctl)
	d.literal, err = d.s.readN(ctx, d.left)
	return err
}

func (d *ByteRLEDecoder) Next(ctx context.Context) (byte, error) {
	if d.left == 0 {
		if err := d.nextRun(ctx); err != nil {
			return 0, err
		}
	}
	d.left--
	if d.repeat {
		return d.value, nil
	}
	return d.literal[len(d.literal)-d.left-1], nil
}

func (d *ByteRLEDecoder) Skip(ctx context.Context, n uint64) error {
	for n > 0 {
		if d.left == 0 {
			if err := d.nextRun(ctx); err != nil {
				return err
			}
		}
		take := d.left
		if uint64(take) > n {
			take = int(n)
		}
		d.left -= take
		n -= uint64(take)
	}
	return nil
}

// BoolDecoder reads one bit per value, most significant bit first, the
// packed bytes themselves run-length encoded.
type BoolDecoder struct {
	rle  *ByteRLEDecoder
	cur  byte
	bits int
}

func NewBoolDecoder(col uint32, buf []byte) *BoolDecoder {
	return &BoolDecoder{rle: NewByteRLEDecoder(col, buf)}
}

func (d *BoolDecoder) Next(ctx context.Context) (bool, error) {
	if d.bits == 0 {
		b, err := d.rle.Next(ctx)
		if err != nil {
			return false, err
		}
		d.cur = b
		d.bits = 8
	}
	d.bits--
	return d.cur&(1<<uint(d.bits)) != 0, nil
}

func (d *BoolDecoder) Skip(ctx context.Context, n uint64) error {
	for ; n > 0; n-- {
		if _, err := d.Next(ctx); err != nil {
			return err
		}
	}
	return nil
}
