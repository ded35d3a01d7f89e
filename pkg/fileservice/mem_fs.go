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
	"sync"

	"github.com/shenh062326/velox/pkg/common/moerr"
)

// MemFS keeps whole files in memory.  Every byte is always resident,
// so Read never returns a readiness channel.
type MemFS struct {
	mu    sync.RWMutex
	files map[string][]byte
}

func NewMemFS() *MemFS {
	return &MemFS{files: make(map[string][]byte)}
}

func (m *MemFS) Open(ctx context.Context, path string) (ByteSource, error) {
	m.mu.RLock()
	data, ok := m.files[path]
	m.mu.RUnlock()
	if !ok {
		return nil, moerr.NewFileNotFound(ctx, path)
	}
	return &memSource{path: path, data: data}, nil
}

func (m *MemFS) Write(ctx context.Context, path string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[path] = append([]byte(nil), data...)
	return nil
}

type memSource struct {
	path string
	data []byte
}

func (s *memSource) Size() int64 {
	return int64(len(s.data))
}

func (s *memSource) Read(ctx context.Context, ext Extent) ([]byte, <-chan struct{}, error) {
	if ext.Length <= 0 {
		return nil, nil, moerr.NewEmptyRange(ctx, s.path)
	}
	if ext.End() > int64(len(s.data)) {
		return nil, nil, moerr.NewSizeNotMatch(ctx, s.path)
	}
	return s.data[ext.Offset:ext.End()], nil, nil
}

func (s *memSource) Prefetch(...Extent) {}

func (s *memSource) AllPrefetchIssued() bool {
	return true
}

func (s *memSource) Close() error {
	return nil
}
