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
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/lni/goutils/leaktest"
	"github.com/shenh062326/velox/pkg/common/moerr"
	"github.com/shenh062326/velox/pkg/perfcounter"
	"github.com/stretchr/testify/require"
)

func TestMemFS(t *testing.T) {
	ctx := context.Background()
	fs := NewMemFS()
	require.NoError(t, fs.Write(ctx, "f1", []byte("hello world")))

	src, err := fs.Open(ctx, "f1")
	require.NoError(t, err)
	require.Equal(t, int64(11), src.Size())

	data, ready, err := src.Read(ctx, Extent{Offset: 6, Length: 5})
	require.NoError(t, err)
	require.Nil(t, ready)
	require.Equal(t, []byte("world"), data)

	_, _, err = src.Read(ctx, Extent{Offset: 6, Length: 100})
	require.True(t, moerr.IsMoErrCode(err, moerr.ErrSizeNotMatch))

	_, err = fs.Open(ctx, "nope")
	require.True(t, moerr.IsMoErrCode(err, moerr.ErrFileNotFound))
}

func readWhenReady(t *testing.T, src ByteSource, ext Extent) []byte {
	ctx := context.Background()
	for {
		data, ready, err := src.Read(ctx, ext)
		require.NoError(t, err)
		if ready == nil {
			return data
		}
		select {
		case <-ready:
		case <-time.After(5 * time.Second):
			t.Fatal("load never became ready")
		}
	}
}

func TestLocalFSReadiness(t *testing.T) {
	defer leaktest.AfterTest(t)()
	ctx := context.Background()

	var counters perfcounter.CounterSet
	fs, err := NewLocalFS(t.TempDir(), &counters)
	require.NoError(t, err)
	defer fs.Close()

	payload := bytes.Repeat([]byte("0123456789"), 100)
	require.NoError(t, fs.Write(ctx, "data/f1", payload))

	src, err := fs.Open(ctx, "data/f1")
	require.NoError(t, err)
	defer src.Close()

	ext := Extent{Offset: 10, Length: 20}
	// first read misses and returns a readiness channel
	data, ready, err := src.Read(ctx, ext)
	require.NoError(t, err)
	require.Nil(t, data)
	require.NotNil(t, ready)

	got := readWhenReady(t, src, ext)
	require.Equal(t, payload[10:30], got)

	// a sub-range of a resident segment is served from cache
	sub := readWhenReady(t, src, Extent{Offset: 15, Length: 5})
	require.Equal(t, payload[15:20], sub)
	require.Greater(t, counters.FileService.Cache.Hit.Load(), int64(0))
}

func TestLocalFSPrefetch(t *testing.T) {
	defer leaktest.AfterTest(t)()
	ctx := context.Background()

	fs, err := NewLocalFS(t.TempDir(), nil)
	require.NoError(t, err)
	defer fs.Close()
	require.NoError(t, fs.Write(ctx, "f2", bytes.Repeat([]byte("ab"), 512)))

	src, err := fs.Open(ctx, "f2")
	require.NoError(t, err)
	defer src.Close()

	src.Prefetch(Extent{Offset: 0, Length: 256}, Extent{Offset: 256, Length: 256})
	require.Eventually(t, src.AllPrefetchIssued, 5*time.Second, time.Millisecond)

	data, ready, err := src.Read(ctx, Extent{Offset: 100, Length: 56})
	require.NoError(t, err)
	require.Nil(t, ready)
	require.Len(t, data, 56)
}

func TestLocalFSPrefetchBeyondPoolSize(t *testing.T) {
	defer leaktest.AfterTest(t)()
	ctx := context.Background()

	fs, err := NewLocalFS(t.TempDir(), nil)
	require.NoError(t, err)
	defer fs.Close()

	const segLen = 64
	const nSegs = 4 * defaultPrefetchWorkers
	payload := bytes.Repeat([]byte("velox-fs"), segLen*nSegs/8)
	require.NoError(t, fs.Write(ctx, "f4", payload))

	src, err := fs.Open(ctx, "f4")
	require.NoError(t, err)
	defer src.Close()

	// one Prefetch call issuing far more loads than the pool has
	// workers must not wedge the caller
	exts := make([]Extent, 0, nSegs)
	for i := 0; i < nSegs; i++ {
		exts = append(exts, Extent{Offset: int64(i * segLen), Length: segLen})
	}
	done := make(chan struct{})
	go func() {
		src.Prefetch(exts...)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("prefetch blocked on a saturated pool")
	}
	require.Eventually(t, src.AllPrefetchIssued, 5*time.Second, time.Millisecond)

	for _, ext := range exts {
		got := readWhenReady(t, src, ext)
		require.Equal(t, payload[ext.Offset:ext.End()], got)
	}
}

func TestLocalFSCloseMidLoad(t *testing.T) {
	defer leaktest.AfterTest(t)()
	ctx := context.Background()

	fs, err := NewLocalFS(t.TempDir(), nil)
	require.NoError(t, err)
	defer fs.Close()
	require.NoError(t, fs.Write(ctx, "f3", make([]byte, 1<<16)))

	src, err := fs.Open(ctx, "f3")
	require.NoError(t, err)

	src.Prefetch(Extent{Offset: 0, Length: 1 << 16})
	require.NoError(t, src.Close())
	// closing twice is fine
	require.NoError(t, src.Close())

	_, _, err = src.Read(ctx, Extent{Offset: 0, Length: 8})
	require.True(t, moerr.IsMoErrCode(err, moerr.ErrInvalidState))
}
