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

// Package dwio implements the on-disk columnar format: per-column encoded
// streams grouped into stripes, a file footer describing them, and the
// codecs used to read and write the streams.
package dwio

import (
	"context"
	"fmt"

	"github.com/shenh062326/velox/pkg/common/moerr"
	"github.com/shenh062326/velox/pkg/container/types"
)

// EncodingKind identifies how a column's value stream is encoded.
type EncodingKind uint8

const (
	// EncodingDirect stores fixed-width little-endian values.
	EncodingDirect EncodingKind = iota
	// EncodingDirectV2 stores zigzag varint integers.
	EncodingDirectV2
	// EncodingDictionary stores varint indexes into a dictionary stream.
	EncodingDictionary
	// EncodingByteRLE stores run-length encoded bytes, used for bool
	// and int8 columns.
	EncodingByteRLE
	// EncodingFlatMap stores a map column as one value child per
	// distinct key, each with its own in-map presence stream.
	EncodingFlatMap
)

func (e EncodingKind) String() string {
	switch e {
	case EncodingDirect:
		return "DIRECT"
	case EncodingDirectV2:
		return "DIRECT_V2"
	case EncodingDictionary:
		return "DICTIONARY"
	case EncodingByteRLE:
		return "BYTE_RLE"
	case EncodingFlatMap:
		return "FLAT_MAP"
	}
	return fmt.Sprintf("EncodingKind(%d)", uint8(e))
}

// StreamKind identifies the role of one physical stream within a column.
type StreamKind uint8

const (
	// StreamPresent holds one bit per row, 0 marking null.
	StreamPresent StreamKind = iota
	// StreamData holds the primary value stream.
	StreamData
	// StreamLength holds byte lengths for strings or element counts
	// for lists and maps.
	StreamLength
	// StreamDictionaryData holds the distinct values of a dictionary
	// encoded column.
	StreamDictionaryData
	// StreamDictionaryLength holds byte lengths for string dictionaries.
	StreamDictionaryLength
	// StreamSecondary holds the nanosecond stream of timestamps.
	StreamSecondary
	// StreamInMap holds one bit per outer map row, 0 marking a row in
	// which a flat-map key is absent.
	StreamInMap
)

func (s StreamKind) String() string {
	switch s {
	case StreamPresent:
		return "PRESENT"
	case StreamData:
		return "DATA"
	case StreamLength:
		return "LENGTH"
	case StreamDictionaryData:
		return "DICTIONARY_DATA"
	case StreamDictionaryLength:
		return "DICTIONARY_LENGTH"
	case StreamSecondary:
		return "SECONDARY"
	case StreamInMap:
		return "IN_MAP"
	}
	return fmt.Sprintf("StreamKind(%d)", uint8(s))
}

// EncodingDescriptor describes the encoding of one column within a stripe.
type EncodingDescriptor struct {
	Kind EncodingKind
	// DictionarySize is the number of distinct entries when Kind is
	// EncodingDictionary, zero otherwise.
	DictionarySize uint32
}

// CheckEncoding validates that an encoding is defined for the given type
// kind.  Unknown combinations fail at construction, before any data is
// decoded.
func CheckEncoding(ctx context.Context, enc EncodingKind, typ types.Type) error {
	switch typ.Oid {
	case types.T_bool, types.T_int8:
		if enc == EncodingByteRLE {
			return nil
		}
	case types.T_int16, types.T_int32, types.T_int64, types.T_decimal64:
		if enc == EncodingDirect || enc == EncodingDirectV2 || enc == EncodingDictionary {
			return nil
		}
	case types.T_timestamp:
		if enc == EncodingDirectV2 {
			return nil
		}
	case types.T_float32, types.T_float64:
		if enc == EncodingDirect {
			return nil
		}
	case types.T_varchar, types.T_varbinary:
		if enc == EncodingDirect || enc == EncodingDictionary {
			return nil
		}
	case types.T_row, types.T_array:
		if enc == EncodingDirect {
			return nil
		}
	case types.T_map:
		if enc == EncodingDirect || enc == EncodingFlatMap {
			return nil
		}
	}
	return moerr.NewUnsupportedEncoding(ctx, enc.String(), typ.Oid.String())
}

// ColumnIDs assigns a stable id to every node of a schema tree by
// pre-order walk, root first.  Writer and reader derive the same mapping
// from the same schema.
func ColumnIDs(root *types.Field) map[*types.Field]uint32 {
	ids := make(map[*types.Field]uint32)
	var next uint32
	var walk func(f *types.Field)
	walk = func(f *types.Field) {
		ids[f] = next
		next++
		for _, c := range f.Children {
			walk(c)
		}
	}
	walk(root)
	return ids
}

// NumColumns returns the number of schema nodes, which is also one past
// the largest column id.
func NumColumns(root *types.Field) uint32 {
	n := uint32(1)
	for _, c := range root.Children {
		n += NumColumns(c)
	}
	return n
}
