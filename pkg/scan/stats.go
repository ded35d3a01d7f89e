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

package scan

import (
	"github.com/axiomhq/hyperloglog"
	"github.com/shenh062326/velox/pkg/container/nulls"
	"github.com/shenh062326/velox/pkg/container/types"
	"github.com/shenh062326/velox/pkg/container/vector"
)

// adaptiveStats tracks per-column distinct-value sketches across the
// splits of one data source.  They survive Reset, so later splits can
// be scanned with knowledge gathered from earlier ones.
type adaptiveStats struct {
	byColumn map[string]*hyperloglog.Sketch
}

func newAdaptiveStats() *adaptiveStats {
	return &adaptiveStats{byColumn: make(map[string]*hyperloglog.Sketch)}
}

func (s *adaptiveStats) sketch(name string) *hyperloglog.Sketch {
	sk := s.byColumn[name]
	if sk == nil {
		sk = hyperloglog.New14()
		s.byColumn[name] = sk
	}
	return sk
}

// observe feeds one output column into its sketch.  Nested columns are
// not sketched, their distinct counts do not inform encoding choices.
func (s *adaptiveStats) observe(name string, vec *vector.Vector) {
	if vec.IsConst() {
		return
	}
	oid := vec.GetType().Oid
	switch oid {
	case types.T_row, types.T_array, types.T_map:
		return
	}
	sk := s.sketch(name)
	n := vec.Length()
	if oid == types.T_varchar || oid == types.T_varbinary {
		for i := 0; i < n; i++ {
			if !nulls.Contains(vec.GetNulls(), uint64(i)) {
				sk.Insert(vec.GetBytes(i))
			}
		}
		return
	}
	sz := vec.GetType().TypeSize()
	data := vec.Data()
	for i := 0; i < n; i++ {
		if !nulls.Contains(vec.GetNulls(), uint64(i)) {
			sk.Insert(data[i*sz : (i+1)*sz])
		}
	}
}

// estimates exports the sketches as counter values.
func (s *adaptiveStats) estimates(out map[string]int64) {
	for name, sk := range s.byColumn {
		out["scan.ndv."+name] = int64(sk.Estimate())
	}
}
