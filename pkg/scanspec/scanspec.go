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

// Package scanspec describes what a scan reads: which columns and
// subfields are projected into output batches, which carry pushed-down
// filters, and which are materialized only as inputs of a remaining
// filter expression.
package scanspec

import (
	"context"
	"strings"

	"github.com/shenh062326/velox/pkg/common/moerr"
	"github.com/shenh062326/velox/pkg/container/types"
	"github.com/shenh062326/velox/pkg/container/vector"
	"github.com/shenh062326/velox/pkg/filter"
)

// Spec is one node of the scan spec tree, mirroring the shape of the
// file schema.
type Spec struct {
	Name string

	// Filter is the pushed-down predicate on this column, nil when
	// unfiltered.  Merged filters only ever narrow.
	Filter filter.Filter

	// Projected marks columns whose values appear in output batches.
	Projected bool

	// ExtractValues marks columns whose values must be materialized
	// even though they are not projected, as inputs of a remaining
	// filter.
	ExtractValues bool

	// Constant, when set, short-circuits reading: every row gets this
	// value.  Used for partition keys and columns missing from the
	// file.
	Constant *vector.Vector

	children []*Spec
	byName   map[string]*Spec
}

func New(name string) *Spec {
	return &Spec{Name: name, byName: make(map[string]*Spec)}
}

func (s *Spec) Children() []*Spec {
	return s.children
}

func (s *Spec) ChildByName(name string) *Spec {
	return s.byName[name]
}

func (s *Spec) GetOrCreateChild(name string) *Spec {
	if c, ok := s.byName[name]; ok {
		return c
	}
	c := New(name)
	s.children = append(s.children, c)
	s.byName[name] = c
	return c
}

// ReadsValues reports whether the column's values are needed at all.
// A filter-only column is decoded but never materialized.
func (s *Spec) ReadsValues() bool {
	return s.Projected || s.ExtractValues
}

// HasFilter reports whether this node or any descendant carries a
// filter.
func (s *Spec) HasFilter() bool {
	if s.Filter != nil {
		return true
	}
	for _, c := range s.children {
		if c.HasFilter() {
			return true
		}
	}
	return false
}

// Resolve walks a dotted path below this node, nil when absent.
func (s *Spec) Resolve(path string) *Spec {
	cur := s
	for _, part := range strings.Split(path, ".") {
		cur = cur.byName[part]
		if cur == nil {
			return nil
		}
	}
	return cur
}

// ApplyFilter merges a filter into the column at path.  The merge is a
// conjunction, so an existing filter can only get stricter.
func (s *Spec) ApplyFilter(ctx context.Context, path string, f filter.Filter) error {
	node := s.Resolve(path)
	if node == nil {
		return moerr.NewNoSuchColumn(ctx, path)
	}
	merged, err := filter.Merge(ctx, node.Filter, f)
	if err != nil {
		return err
	}
	node.Filter = merged
	return nil
}

func resolveField(root *types.Field, path string) *types.Field {
	cur := root
	for _, part := range strings.Split(path, ".") {
		cur = cur.ChildByName(part)
		if cur == nil {
			return nil
		}
	}
	return cur
}

// Make builds the spec for a scan.
//
// Every field of outputType becomes a projected column.  When
// outputSubfields names subfield paths for a column, only those
// subfields are projected; the rest of the struct is pruned.  filters
// and extractPaths are keyed by dotted path over dataColumns; a filter
// on a column absent from dataColumns fails, it will never pass or
// reject anything meaningful.
func Make(
	ctx context.Context,
	outputType *types.Field,
	outputSubfields map[string][]string,
	filters map[string]filter.Filter,
	extractPaths []string,
	dataColumns *types.Field,
) (*Spec, error) {
	if outputType.Type.Oid != types.T_row {
		return nil, moerr.NewInvalidArg(ctx, "scan output type", outputType.Type.Oid.String())
	}
	root := New("")
	root.Projected = true
	for _, f := range outputType.Children {
		child := root.GetOrCreateChild(f.Name)
		if subs := outputSubfields[f.Name]; len(subs) > 0 {
			// project only the named subfields, the ancestors along
			// each path are kept as containers
			for _, sub := range subs {
				cur, field := child, dataColumns.ChildByName(f.Name)
				for _, part := range strings.Split(sub, ".") {
					if field != nil {
						field = field.ChildByName(part)
					}
					cur = cur.GetOrCreateChild(part)
				}
				cur.Projected = true
				markSubtree(cur, field)
			}
		} else {
			child.Projected = true
			markSubtree(child, dataColumns.ChildByName(f.Name))
		}
	}
	for path, f := range filters {
		if resolveField(dataColumns, path) == nil {
			return nil, moerr.NewNoSuchColumn(ctx, path)
		}
		node := root
		for _, part := range strings.Split(path, ".") {
			node = node.GetOrCreateChild(part)
		}
		merged, err := filter.Merge(ctx, node.Filter, f)
		if err != nil {
			return nil, err
		}
		node.Filter = merged
	}
	for _, path := range extractPaths {
		if resolveField(dataColumns, path) == nil {
			return nil, moerr.NewNoSuchColumn(ctx, path)
		}
		node := root
		for _, part := range strings.Split(path, ".") {
			node = node.GetOrCreateChild(part)
		}
		if !node.Projected {
			node.ExtractValues = true
			markSubtree(node, resolveField(dataColumns, path))
		}
	}
	return root, nil
}

// markSubtree expands a projected nested column to cover all of its
// subfields.
func markSubtree(s *Spec, f *types.Field) {
	if f == nil {
		return
	}
	for _, c := range f.Children {
		child := s.GetOrCreateChild(c.Name)
		child.Projected = s.Projected
		child.ExtractValues = s.ExtractValues
		markSubtree(child, c)
	}
}

func (s *Spec) String() string {
	var b strings.Builder
	s.format(&b, 0)
	return b.String()
}

func (s *Spec) format(b *strings.Builder, depth int) {
	b.WriteString(strings.Repeat("  ", depth))
	if s.Name == "" {
		b.WriteString("<root>")
	} else {
		b.WriteString(s.Name)
	}
	if s.Projected {
		b.WriteString(" projected")
	}
	if s.ExtractValues {
		b.WriteString(" extract")
	}
	if s.Filter != nil {
		b.WriteString(" filter=")
		b.WriteString(s.Filter.String())
	}
	if s.Constant != nil {
		b.WriteString(" constant")
	}
	b.WriteString("\n")
	for _, c := range s.children {
		c.format(b, depth+1)
	}
}
