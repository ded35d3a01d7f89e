// Copyright 2023 Matrix Origin
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

package perfcounter

import (
	"sync/atomic"
)

// CounterSet holds the runtime counters of one data source.  They are
// observability only, not load-bearing for correctness.
type CounterSet struct {
	Scan ScanCounterSet

	FileService FileServiceCounterSet
}

type ScanCounterSet struct {
	RowsRead       atomic.Int64 // rows surviving decode-time filters
	RowsScanned    atomic.Int64 // rows visited by the reader tree
	BytesProduced  atomic.Int64 // bytes in returned batches
	StripesRead    atomic.Int64
	StripesSkipped atomic.Int64 // skipped by metadata filters
	SplitsDone     atomic.Int64
}

type FileServiceCounterSet struct {
	Read      atomic.Int64 // read calls
	ReadBytes atomic.Int64 // bytes handed to decoders
	Prefetch  atomic.Int64 // prefetches issued

	Cache struct {
		Read atomic.Int64
		Hit  atomic.Int64
	}
}

func (c *CounterSet) Reset() {
	c.Scan.RowsRead.Store(0)
	c.Scan.RowsScanned.Store(0)
	c.Scan.BytesProduced.Store(0)
	c.Scan.StripesRead.Store(0)
	c.Scan.StripesSkipped.Store(0)
	c.Scan.SplitsDone.Store(0)

	c.FileService.Read.Store(0)
	c.FileService.ReadBytes.Store(0)
	c.FileService.Prefetch.Store(0)
	c.FileService.Cache.Read.Store(0)
	c.FileService.Cache.Hit.Store(0)
}

// Snapshot exports the counters as a name to value mapping.
func (c *CounterSet) Snapshot() map[string]int64 {
	return map[string]int64{
		"scan.rows-read":       c.Scan.RowsRead.Load(),
		"scan.rows-scanned":    c.Scan.RowsScanned.Load(),
		"scan.bytes-produced":  c.Scan.BytesProduced.Load(),
		"scan.stripes-read":    c.Scan.StripesRead.Load(),
		"scan.stripes-skipped": c.Scan.StripesSkipped.Load(),
		"scan.splits-done":     c.Scan.SplitsDone.Load(),
		"fs.read":              c.FileService.Read.Load(),
		"fs.read-bytes":        c.FileService.ReadBytes.Load(),
		"fs.prefetch":          c.FileService.Prefetch.Load(),
		"fs.cache-read":        c.FileService.Cache.Read.Load(),
		"fs.cache-hit":         c.FileService.Cache.Hit.Load(),
	}
}
