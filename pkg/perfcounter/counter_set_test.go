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
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSnapshotAndReset(t *testing.T) {
	var c CounterSet
	c.Scan.RowsRead.Add(7)
	c.FileService.Cache.Hit.Add(3)

	snap := c.Snapshot()
	require.Equal(t, int64(7), snap["scan.rows-read"])
	require.Equal(t, int64(3), snap["fs.cache-hit"])
	require.Equal(t, int64(0), snap["scan.stripes-read"])

	c.Reset()
	for name, v := range c.Snapshot() {
		require.Equal(t, int64(0), v, name)
	}
}

func TestConcurrentAdd(t *testing.T) {
	var c CounterSet
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				c.Scan.RowsScanned.Add(1)
			}
		}()
	}
	wg.Wait()
	require.Equal(t, int64(8000), c.Snapshot()["scan.rows-scanned"])
}
