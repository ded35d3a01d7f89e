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

package reader

import (
	"context"

	"github.com/shenh062326/velox/pkg/common/moerr"
	"github.com/shenh062326/velox/pkg/container/nulls"
	"github.com/shenh062326/velox/pkg/container/vector"
	"github.com/shenh062326/velox/pkg/dwio"
)

// structReader reads a struct column: its own presence stream plus one
// child reader per needed field.  Filtered children are read first, so
// every later child decodes only the rows that survived.
type structReader struct {
	baseReader

	children []SelectiveColumnReader
	names    []string
	byName   map[string]SelectiveColumnReader

	// outOrder lists the projected children in output order, which may
	// differ from read order
	outOrder []string
}

// ChildByName exposes a child reader, used by the scan to materialize
// top-level output columns.
func (r *structReader) ChildByName(name string) SelectiveColumnReader {
	return r.byName[name]
}

func (r *structReader) StartStripe(ctx context.Context, stripe *dwio.StripeReader) error {
	r.startStripe(stripe)
	if _, err := r.columnMetaOf(ctx, stripe); err != nil {
		return err
	}
	for _, c := range r.children {
		if err := c.StartStripe(ctx, stripe); err != nil {
			return err
		}
	}
	return nil
}

func (r *structReader) Read(ctx context.Context, numRows int, sel *SelectivityVector) error {
	if sel.IsEmpty() {
		r.pendingSkip += numRows
		for _, c := range r.children {
			if err := c.Read(ctx, numRows, sel); err != nil {
				return err
			}
		}
		return nil
	}
	if err := r.applySkip(ctx, nil); err != nil {
		return err
	}
	r.beginBatch()
	for row := 0; row < numRows; row++ {
		isNull, err := r.nextPresent(ctx)
		if err != nil {
			return err
		}
		if !sel.Contains(uint64(row)) {
			continue
		}
		if !r.testContainerRow(isNull) {
			sel.Clear(uint64(row))
			continue
		}
		r.addRow(row, isNull)
	}
	for _, c := range r.children {
		if err := c.Read(ctx, numRows, sel); err != nil {
			return err
		}
	}
	return nil
}

func (r *structReader) GetValues(ctx context.Context, sel *SelectivityVector, vec *vector.Vector) error {
	kids := make([]*vector.Vector, 0, len(r.outOrder))
	for _, name := range r.outOrder {
		child := r.byName[name]
		cv := vector.NewVec(child.Type())
		if err := child.GetValues(ctx, sel, cv); err != nil {
			return err
		}
		kids = append(kids, cv)
	}
	vec.SetChildren(kids...)
	n := 0
	r.forEachEmit(sel, func(_ int, isNull bool) {
		if isNull {
			nulls.Add(vec.GetNulls(), uint64(n))
		}
		n++
	})
	vec.SetLength(n)
	if len(kids) > 0 && kids[0].Length() != n {
		return moerr.NewInternalError(ctx, "struct children rows %d out of step with parent %d",
			kids[0].Length(), n)
	}
	return nil
}
