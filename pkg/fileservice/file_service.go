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

// Package fileservice provides buffered, readiness-aware access to the
// byte ranges of scan files.  The scan engine never touches file
// descriptors or eviction policy directly; it sees extents, resident
// bytes and readiness channels.
package fileservice

import (
	"context"
)

// Extent is one byte range of a file.
type Extent struct {
	Offset int64
	Length int64
}

func (e Extent) End() int64 {
	return e.Offset + e.Length
}

// Contains reports whether e wholly covers o.
func (e Extent) Contains(o Extent) bool {
	return o.Offset >= e.Offset && o.End() <= e.End()
}

// FileService opens byte sources by path.  Implementations must be
// safe for concurrent use; byte sources themselves are used by one
// scan task sequentially.
type FileService interface {
	Open(ctx context.Context, path string) (ByteSource, error)
}

// WritableFS is a FileService that also accepts whole-file writes.
// The stripe writer and tests use it; the scan path never does.
type WritableFS interface {
	FileService
	Write(ctx context.Context, path string, data []byte) error
}

// ByteSource hands back buffered segments of one file.
//
// Read returns the extent's bytes when they are resident.  When they
// are not, it issues (or joins) an asynchronous load and returns a nil
// buffer together with a readiness channel; the caller must wait on
// the channel before retrying.  This is the engine's only suspension
// point: no goroutine is ever parked inside Read.
type ByteSource interface {
	Size() int64
	Read(ctx context.Context, ext Extent) (data []byte, ready <-chan struct{}, err error)

	// Prefetch eagerly schedules loads for future extents.
	Prefetch(exts ...Extent)

	// AllPrefetchIssued reports that every scheduled load has been
	// submitted and completed, so no further readiness events are
	// pending.
	AllPrefetchIssued() bool

	// Close stops issuing loads and releases buffers.  In-flight
	// loads are discarded.
	Close() error
}
