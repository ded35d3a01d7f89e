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

	"github.com/pierrec/lz4/v4"
	"github.com/shenh062326/velox/pkg/common/moerr"
	"github.com/shenh062326/velox/pkg/container/types"
	"github.com/shenh062326/velox/pkg/fileservice"
)

const fileTailSize = int64(len(Magic)) + 4

// FileReader parses the footer of one file and hands out stripe readers.
// Loading is non-blocking throughout: any step that needs bytes which
// are not yet resident returns a readiness channel instead of waiting.
type FileReader struct {
	src  fileservice.ByteSource
	size int64

	footerLen uint32
	footer    *Footer
}

func NewFileReader(src fileservice.ByteSource) *FileReader {
	return &FileReader{src: src, size: src.Size()}
}

// Footer returns the parsed footer.  When the tail of the file is still
// loading it returns a nil footer and a channel that is closed once the
// bytes arrive.
func (f *FileReader) Footer(ctx context.Context) (*Footer, <-chan struct{}, error) {
	if f.footer != nil {
		return f.footer, nil, nil
	}
	if f.size < fileTailSize {
		return nil, nil, moerr.NewCorruptData(ctx, 0, f.size, "file too small for tail")
	}
	if f.footerLen == 0 {
		tail, ready, err := f.src.Read(ctx, fileservice.Extent{
			Offset: f.size - fileTailSize,
			Length: fileTailSize,
		})
		if err != nil || ready != nil {
			return nil, ready, err
		}
		if string(tail[4:]) != Magic {
			return nil, nil, moerr.NewCorruptData(ctx, 0, f.size-int64(len(Magic)),
				"bad magic %q", tail[4:])
		}
		f.footerLen = types.DecodeFixed[uint32](tail[:4])
		if int64(f.footerLen) > f.size-fileTailSize {
			return nil, nil, moerr.NewCorruptData(ctx, 0, f.size-fileTailSize,
				"footer length %d beyond file size %d", f.footerLen, f.size)
		}
	}
	buf, ready, err := f.src.Read(ctx, fileservice.Extent{
		Offset: f.size - fileTailSize - int64(f.footerLen),
		Length: int64(f.footerLen),
	})
	if err != nil || ready != nil {
		return nil, ready, err
	}
	footer, err := UnmarshalFooter(ctx, buf, f.size)
	if err != nil {
		return nil, nil, err
	}
	f.footer = footer
	return f.footer, nil, nil
}

// NumStripes is valid once Footer has returned.
func (f *FileReader) NumStripes() int {
	if f.footer == nil {
		return 0
	}
	return len(f.footer.Stripes)
}

// Stripe returns a reader over the i-th stripe.  Footer must have
// returned before calling.
func (f *FileReader) Stripe(i int) *StripeReader {
	return &StripeReader{fr: f, meta: &f.footer.Stripes[i]}
}

// Prefetch issues background loads for the given stripes.
func (f *FileReader) Prefetch(stripes ...int) {
	exts := make([]fileservice.Extent, 0, len(stripes))
	for _, i := range stripes {
		s := &f.footer.Stripes[i]
		exts = append(exts, fileservice.Extent{
			Offset: int64(s.Offset),
			Length: int64(s.Length),
		})
	}
	f.src.Prefetch(exts...)
}

type streamKey struct {
	col, seq uint32
	kind     StreamKind
}

// StripeReader loads one stripe's bytes and exposes its decompressed
// streams.
type StripeReader struct {
	fr      *FileReader
	meta    *StripeMeta
	streams map[streamKey][]byte
}

func (s *StripeReader) Meta() *StripeMeta {
	return s.meta
}

// Load makes all of the stripe's streams resident and decompressed.
// It returns a readiness channel while the stripe extent is loading.
func (s *StripeReader) Load(ctx context.Context) (<-chan struct{}, error) {
	if s.streams != nil {
		return nil, nil
	}
	raw, ready, err := s.fr.src.Read(ctx, fileservice.Extent{
		Offset: int64(s.meta.Offset),
		Length: int64(s.meta.Length),
	})
	if err != nil || ready != nil {
		return ready, err
	}
	streams := make(map[streamKey][]byte)
	for i := range s.meta.Columns {
		c := &s.meta.Columns[i]
		for _, st := range c.Streams {
			data := raw[st.Offset : st.Offset+uint64(st.CompLen)]
			if st.CompLen < st.RawLen {
				dst := make([]byte, st.RawLen)
				n, err := lz4.UncompressBlock(data, dst)
				if err != nil {
					return nil, moerr.NewCorruptData(ctx, c.Column, int64(st.Offset),
						"lz4: %v", err)
				}
				if n != int(st.RawLen) {
					return nil, moerr.NewCorruptData(ctx, c.Column, int64(st.Offset),
						"lz4 expanded to %d bytes, want %d", n, st.RawLen)
				}
				data = dst
			}
			streams[streamKey{c.Column, c.Sequence, st.Kind}] = data
		}
	}
	s.streams = streams
	return nil, nil
}

// Stream returns the decompressed bytes of one stream, or nil when the
// column has no stream of that kind.  Load must have completed.
func (s *StripeReader) Stream(col, seq uint32, kind StreamKind) []byte {
	return s.streams[streamKey{col, seq, kind}]
}

// Release drops the decoded stream buffers.
func (s *StripeReader) Release() {
	s.streams = nil
}
