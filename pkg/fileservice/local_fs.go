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

package fileservice

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/btree"
	"github.com/panjf2000/ants/v2"

	"github.com/shenh062326/velox/pkg/common/moerr"
	"github.com/shenh062326/velox/pkg/logutil"
	"github.com/shenh062326/velox/pkg/perfcounter"
)

const defaultPrefetchWorkers = 4

// LocalFS serves files under a root directory.  Loads run on a shared
// worker pool; loaded segments are cached per byte source, indexed by
// offset in a btree so Read can find a covering segment cheaply.
type LocalFS struct {
	root     string
	pool     *ants.Pool
	counters *perfcounter.CounterSet
}

func NewLocalFS(root string, counters *perfcounter.CounterSet) (*LocalFS, error) {
	pool, err := ants.NewPool(defaultPrefetchWorkers)
	if err != nil {
		return nil, moerr.ConvertGoError(context.Background(), err)
	}
	return &LocalFS{
		root:     root,
		pool:     pool,
		counters: counters,
	}, nil
}

func (l *LocalFS) Open(ctx context.Context, path string) (ByteSource, error) {
	full := filepath.Join(l.root, path)
	f, err := os.Open(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, moerr.NewFileNotFound(ctx, path)
		}
		return nil, moerr.NewIOTransient(ctx, path, err)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, moerr.NewIOTransient(ctx, path, err)
	}
	return &localSource{
		fs:   l,
		path: path,
		f:    f,
		size: st.Size(),
		segs: btree.NewG(2, segLess),
	}, nil
}

func (l *LocalFS) Write(ctx context.Context, path string, data []byte) error {
	full := filepath.Join(l.root, path)
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return moerr.NewIOTransient(ctx, path, err)
	}
	if err := os.WriteFile(full, data, 0644); err != nil {
		return moerr.NewIOTransient(ctx, path, err)
	}
	return nil
}

func (l *LocalFS) Close() {
	// Release alone leaves the pool's purge goroutines running.
	_ = l.pool.ReleaseTimeout(time.Second)
}

type segment struct {
	ext   Extent
	data  []byte
	err   error
	ready chan struct{}
}

func segLess(a, b *segment) bool {
	return a.ext.Offset < b.ext.Offset
}

func (s *segment) loaded() bool {
	select {
	case <-s.ready:
		return true
	default:
		return false
	}
}

type localSource struct {
	fs   *LocalFS
	path string
	f    *os.File
	size int64

	mu       sync.Mutex
	segs     *btree.BTreeG[*segment]
	inflight int
	closed   bool
}

func (s *localSource) Size() int64 {
	return s.size
}

// lookup finds a loaded-or-loading segment covering ext, or nil.
// Caller holds s.mu.
func (s *localSource) lookup(ext Extent) *segment {
	var found *segment
	s.segs.DescendLessOrEqual(&segment{ext: ext}, func(seg *segment) bool {
		if seg.ext.Contains(ext) {
			found = seg
		}
		return false
	})
	return found
}

// register records a loading segment for ext.  Caller holds s.mu; the
// load itself must be submitted after the lock is released, the pool
// blocks when all workers are busy and every worker takes s.mu to
// publish its result.
func (s *localSource) register(ext Extent) *segment {
	seg := &segment{ext: ext, ready: make(chan struct{})}
	s.segs.ReplaceOrInsert(seg)
	s.inflight++
	if s.fs.counters != nil {
		s.fs.counters.FileService.Prefetch.Add(1)
	}
	return seg
}

// submit hands a registered segment to the worker pool.  Caller must
// not hold s.mu.
func (s *localSource) submit(seg *segment) {
	ext := seg.ext
	err := s.fs.pool.Submit(func() {
		buf := make([]byte, ext.Length)
		_, rerr := s.f.ReadAt(buf, ext.Offset)

		s.mu.Lock()
		defer s.mu.Unlock()
		s.inflight--
		if s.closed {
			// Discard: the split was released mid-load.
			close(seg.ready)
			return
		}
		if rerr != nil {
			seg.err = moerr.NewIOTransient(context.Background(), s.path, rerr)
		} else {
			seg.data = buf
		}
		close(seg.ready)
	})
	if err != nil {
		// Pool rejected the task; fail the segment in place.
		s.mu.Lock()
		defer s.mu.Unlock()
		s.inflight--
		seg.err = moerr.NewIOTransient(context.Background(), s.path, err)
		close(seg.ready)
	}
}

func (s *localSource) Read(ctx context.Context, ext Extent) ([]byte, <-chan struct{}, error) {
	if ext.Length <= 0 {
		return nil, nil, moerr.NewEmptyRange(ctx, s.path)
	}
	if ext.End() > s.size {
		return nil, nil, moerr.NewSizeNotMatch(ctx, s.path)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, nil, moerr.NewInvalidState(ctx, "byte source closed")
	}
	if s.fs.counters != nil {
		s.fs.counters.FileService.Read.Add(1)
		s.fs.counters.FileService.Cache.Read.Add(1)
	}

	seg := s.lookup(ext)
	if seg == nil {
		seg = s.register(ext)
		s.mu.Unlock()
		s.submit(seg)
		return nil, seg.ready, nil
	}
	if !seg.loaded() {
		s.mu.Unlock()
		return nil, seg.ready, nil
	}
	defer s.mu.Unlock()
	if seg.err != nil {
		return nil, nil, seg.err
	}
	if s.fs.counters != nil {
		s.fs.counters.FileService.Cache.Hit.Add(1)
		s.fs.counters.FileService.ReadBytes.Add(ext.Length)
	}
	off := ext.Offset - seg.ext.Offset
	return seg.data[off : off+ext.Length], nil, nil
}

func (s *localSource) Prefetch(exts ...Extent) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	var pending []*segment
	for _, ext := range exts {
		if ext.Length <= 0 || ext.End() > s.size {
			continue
		}
		if s.lookup(ext) == nil {
			pending = append(pending, s.register(ext))
		}
	}
	s.mu.Unlock()
	for _, seg := range pending {
		s.submit(seg)
	}
}

func (s *localSource) AllPrefetchIssued() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inflight == 0
}

func (s *localSource) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.segs.Clear(false)
	s.mu.Unlock()

	if err := s.f.Close(); err != nil {
		logutil.Warnf("close %s: %v", s.path, err)
	}
	return nil
}
