// Copyright 2021 Matrix Origin
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

package batch

import (
	"bytes"
	"fmt"

	"github.com/shenh062326/velox/pkg/container/vector"
)

// Batch is a set of parallel column vectors of equal length.  A
// zero-row batch is valid and means "no rows this call", not end of
// data.
type Batch struct {
	Attrs    []string
	Vecs     []*vector.Vector
	rowCount int
}

func New(attrs []string) *Batch {
	return &Batch{
		Attrs: attrs,
		Vecs:  make([]*vector.Vector, len(attrs)),
	}
}

func NewWithSize(n int) *Batch {
	return &Batch{
		Vecs: make([]*vector.Vector, n),
	}
}

func (bat *Batch) RowCount() int {
	return bat.rowCount
}

func (bat *Batch) SetRowCount(rowCount int) {
	bat.rowCount = rowCount
}

func (bat *Batch) VectorCount() int {
	return len(bat.Vecs)
}

func (bat *Batch) SetAttributes(attrs []string) {
	bat.Attrs = attrs
}

func (bat *Batch) SetVector(pos int32, vec *vector.Vector) {
	bat.Vecs[pos] = vec
}

func (bat *Batch) GetVector(pos int32) *vector.Vector {
	return bat.Vecs[pos]
}

func (bat *Batch) GetVectorByName(name string) *vector.Vector {
	for i, attr := range bat.Attrs {
		if attr == name {
			return bat.Vecs[i]
		}
	}
	return nil
}

func (bat *Batch) Size() int {
	var size int
	for _, vec := range bat.Vecs {
		size += vec.Size()
	}
	return size
}

func (bat *Batch) IsEmpty() bool {
	return bat.rowCount == 0
}

// Shrink keeps only the rows addressed by sels, in sels order, in every
// vector of the batch.
func (bat *Batch) Shrink(sels []int64) {
	if len(sels) == bat.rowCount {
		return
	}
	for _, vec := range bat.Vecs {
		vec.Shrink(sels)
	}
	bat.rowCount = len(sels)
}

// CleanOnlyData resets the batch to zero rows keeping vector buffers.
func (bat *Batch) CleanOnlyData() {
	for _, vec := range bat.Vecs {
		if vec != nil {
			vec.CleanOnlyData()
		}
	}
	bat.rowCount = 0
}

func (bat *Batch) String() string {
	var buf bytes.Buffer
	buf.WriteString(fmt.Sprintf("rows=%d\n", bat.rowCount))
	for i, vec := range bat.Vecs {
		name := ""
		if i < len(bat.Attrs) {
			name = bat.Attrs[i]
		}
		buf.WriteString(fmt.Sprintf("%d %s: %s\n", i, name, vec.String()))
	}
	return buf.String()
}
