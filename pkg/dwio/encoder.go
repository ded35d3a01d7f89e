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
	"github.com/shenh062326/velox/pkg/container/types"
)

// appendFixed appends a fixed-width little-endian value.
func appendFixed[T types.FixedSizeT](buf []byte, v T) []byte {
	return append(buf, types.EncodeFixed(v)...)
}

// appendVarint appends a zigzag encoded varint.
func appendVarint(buf []byte, v int64) []byte {
	x := uint64(v<<1) ^ uint64(v>>63)
	for x >= 0x80 {
		buf = append(buf, byte(x)|0x80)
		x >>= 7
	}
	return append(buf, byte(x))
}

// byteRLEEncoder produces the byte run-length encoding read by
// ByteRLEDecoder.
type byteRLEEncoder struct {
	buf []byte

	lit     []byte
	runVal  byte
	runLen  int
	started bool
}

func (e *byteRLEEncoder) flushLiterals() {
	for len(e.lit) > 0 {
		n := len(e.lit)
		if n > byteRLEMaxLit {
			n = byteRLEMaxLit
		}
		e.buf = append(e.buf, byte(256-n))
		e.buf = append(e.buf, e.lit[:n]...)
		e.lit = e.lit[n:]
	}
	e.lit = e.lit[:0]
}

func (e *byteRLEEncoder) flushRun() {
	for e.runLen >= byteRLEMinRun {
		n := e.runLen
		if n > byteRLEMaxRun {
			n = byteRLEMaxRun
		}
		e.buf = append(e.buf, byte(n-byteRLEMinRun), e.runVal)
		e.runLen -= n
	}
	for ; e.runLen > 0; e.runLen-- {
		e.lit = append(e.lit, e.runVal)
	}
}

func (e *byteRLEEncoder) Put(b byte) {
	if e.started && b == e.runVal {
		e.runLen++
		return
	}
	if e.started {
		if e.runLen >= byteRLEMinRun {
			e.flushLiterals()
			e.flushRun()
		} else {
			e.flushRun()
		}
	}
	e.started = true
	e.runVal = b
	e.runLen = 1
}

// Finish flushes pending state and returns the encoded bytes.
func (e *byteRLEEncoder) Finish() []byte {
	if e.started {
		if e.runLen >= byteRLEMinRun {
			e.flushLiterals()
			e.flushRun()
		} else {
			e.flushRun()
		}
		e.started = false
	}
	e.flushLiterals()
	return e.buf
}

// boolEncoder bit-packs booleans most significant bit first and feeds
// the packed bytes through byte RLE.  The final partial byte is padded
// with zero bits.
type boolEncoder struct {
	rle  byteRLEEncoder
	cur  byte
	bits int
}

func (e *boolEncoder) Put(v bool) {
	e.cur <<= 1
	if v {
		e.cur |= 1
	}
	e.bits++
	if e.bits == 8 {
		e.rle.Put(e.cur)
		e.cur = 0
		e.bits = 0
	}
}

func (e *boolEncoder) Finish() []byte {
	if e.bits > 0 {
		e.rle.Put(e.cur << uint(8-e.bits))
		e.cur = 0
		e.bits = 0
	}
	return e.rle.Finish()
}
