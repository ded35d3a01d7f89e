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

// Package scan drives the selective readers over one split at a time:
// it owns the split state machine, pushes filter expressions into the
// scan spec, prunes stripes by zone map, and assembles output batches
// with partition-key constants.
package scan

import (
	"context"
	"strings"

	"github.com/shenh062326/velox/pkg/common/moerr"
	"github.com/shenh062326/velox/pkg/container/batch"
	"github.com/shenh062326/velox/pkg/container/types"
	"github.com/shenh062326/velox/pkg/container/vector"
	"github.com/shenh062326/velox/pkg/dwio"
	"github.com/shenh062326/velox/pkg/fileservice"
	"github.com/shenh062326/velox/pkg/filter"
	"github.com/shenh062326/velox/pkg/perfcounter"
	"github.com/shenh062326/velox/pkg/reader"
	"github.com/shenh062326/velox/pkg/scanspec"
)

// State is the data source's position in the split lifecycle.
type State uint8

const (
	StateIdle State = iota
	StateSplitAssigned
	StateProducing
	StateDraining
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSplitAssigned:
		return "split-assigned"
	case StateProducing:
		return "producing"
	case StateDraining:
		return "draining"
	}
	return "unknown"
}

// ResumeToken is the continuation signal of a Pending Next call.  The
// caller waits for the channel to close, then calls Next again; no
// goroutine is parked inside the data source meanwhile.
type ResumeToken <-chan struct{}

// Options configures a data source for one table.
type Options struct {
	// OutputType names and types the batch columns, in order.  Columns
	// may be partition keys or missing from individual files.
	OutputType *types.Field

	// OutputSubfields prunes struct columns to the named subfield
	// paths.
	OutputSubfields map[string][]string

	// Filter is the scan predicate.  Sargable conjuncts are pushed into
	// the decode path; the rest runs through Evaluator on materialized
	// batches.
	Filter *Expr

	// Evaluator is required when Filter has a non-sargable residue.
	Evaluator ExpressionEvaluator

	// ExtractPaths forces decoding of filter-only columns, for callers
	// that feed their values elsewhere.
	ExtractPaths []string

	// Counters receives runtime statistics; a private set is allocated
	// when nil.
	Counters *perfcounter.CounterSet
}

// structAccess is how the scan reaches the per-column readers under the
// root.
type structAccess interface {
	ChildByName(name string) reader.SelectiveColumnReader
}

// pruneEntry pairs a filtered spec node with its column id in the
// current file, for zone-map stripe pruning.  The filter is read from
// the node at prune time, so dynamic filters tighten the pruning of
// later stripes.
type pruneEntry struct {
	col  uint32
	node *scanspec.Spec
}

// DataSource produces batches for one split at a time.  It is used by
// exactly one task sequentially; concurrency across splits comes from
// independent instances.
type DataSource struct {
	fs       fileservice.FileService
	schema   *types.Field
	opts     Options
	spec     *scanspec.Spec
	rest     *remainingFilter
	counters *perfcounter.CounterSet
	stats    *adaptiveStats

	state State
	split *Split

	// split-scoped readers, released on Reset or the next AddSplit
	src           fileservice.ByteSource
	fr            *dwio.FileReader
	rd            reader.SelectiveColumnReader
	root          structAccess
	prune         []pruneEntry
	sr            *dwio.StripeReader
	stripe        int
	stripeStarted bool
	rowInStripe   int
	stripeRows    int

	sel      *reader.SelectivityVector
	emptyBat *batch.Batch
}

// NewDataSource builds the scan spec for schema up front: filter
// extraction is a one-time transform, never rerun during decode.
func NewDataSource(ctx context.Context, fs fileservice.FileService, schema *types.Field, opts Options) (*DataSource, error) {
	filters, restExpr, err := ExtractFilters(ctx, opts.Filter, schema)
	if err != nil {
		return nil, err
	}
	spec, err := scanspec.Make(ctx, opts.OutputType, opts.OutputSubfields, filters, opts.ExtractPaths, schema)
	if err != nil {
		return nil, err
	}
	d := &DataSource{
		fs:       fs,
		schema:   schema,
		opts:     opts,
		spec:     spec,
		counters: opts.Counters,
		stats:    newAdaptiveStats(),
		sel:      reader.NewSelectivityVector(0),
	}
	if d.counters == nil {
		d.counters = &perfcounter.CounterSet{}
	}
	if restExpr != nil {
		if opts.Evaluator == nil {
			return nil, moerr.NewInvalidArg(ctx, "remaining filter without evaluator", restExpr.String())
		}
		exec, err := opts.Evaluator.Compile(ctx, restExpr)
		if err != nil {
			return nil, moerr.NewFilterEvaluation(ctx, err)
		}
		d.rest = &remainingFilter{exec: exec}
	}
	return d, nil
}

func (d *DataSource) State() State {
	return d.state
}

// AddSplit assigns the next unit of work.  It fails while a prior split
// is still unfinished; Draining and Idle accept a new split and release
// the previous one's readers.
func (d *DataSource) AddSplit(s *Split) error {
	ctx := context.Background()
	if d.state == StateSplitAssigned || d.state == StateProducing {
		return moerr.NewSplitActive(ctx, d.split.Path)
	}
	d.releaseSplit()
	d.split = s
	d.state = StateSplitAssigned
	return nil
}

// AddDynamicFilter narrows the predicate on one column mid-scan, e.g.
// from a join build side.  Merging can only tighten; a filter that
// would loosen an existing one fails inside filter.Merge.
func (d *DataSource) AddDynamicFilter(column string, f filter.Filter) error {
	ctx := context.Background()
	field := d.schema
	for _, part := range strings.Split(column, ".") {
		field = field.ChildByName(part)
		if field == nil {
			return moerr.NewNoSuchColumn(ctx, column)
		}
	}
	if !f.AppliesTo(field.Type.Oid) {
		return moerr.NewSchemaMismatch(ctx, f.String(), field.Type.Oid.String())
	}
	return d.spec.ApplyFilter(ctx, column, f)
}

// Reset returns to Idle, releasing all split-scoped readers.  Adaptive
// state survives: statistics gathered from earlier splits keep
// informing later ones.
func (d *DataSource) Reset() {
	d.releaseSplit()
	d.state = StateIdle
}

// Close releases the current split.  Closing mid-scan stops further
// prefetches and discards in-flight decode state.
func (d *DataSource) Close() {
	d.releaseSplit()
	d.state = StateIdle
}

func (d *DataSource) releaseSplit() {
	if d.sr != nil {
		d.sr.Release()
		d.sr = nil
	}
	if d.src != nil {
		_ = d.src.Close()
		d.src = nil
	}
	d.fr = nil
	d.rd = nil
	d.root = nil
	d.prune = nil
	d.split = nil
	d.stripe = 0
	d.stripeStarted = false
	d.rowInStripe = 0
	d.stripeRows = 0
}

// AllPrefetchIssued reports that no readiness events are pending for
// the current split.
func (d *DataSource) AllPrefetchIssued() bool {
	return d.src != nil && d.src.AllPrefetchIssued()
}

// RuntimeStats exports the counters plus the adaptive distinct-value
// estimates.
func (d *DataSource) RuntimeStats() map[string]int64 {
	out := d.counters.Snapshot()
	d.stats.estimates(out)
	return out
}

// readType prunes the output type to the columns the file actually
// stores; partition keys and absent columns are materialized without
// touching the reader tree.
func (d *DataSource) readType(stored *types.Field) *types.Field {
	kept := make([]*types.Field, 0, len(d.opts.OutputType.Children))
	for _, f := range d.opts.OutputType.Children {
		if _, isPartition := d.split.PartitionKeys[f.Name]; isPartition {
			continue
		}
		if stored.ChildByName(f.Name) == nil {
			continue
		}
		kept = append(kept, f)
	}
	return types.NewRow(kept...)
}

func collectPruneEntries(spec *scanspec.Spec, field *types.Field, ids map[*types.Field]uint32, out []pruneEntry) []pruneEntry {
	for _, c := range spec.Children() {
		cf := field.ChildByName(c.Name)
		if cf == nil {
			continue
		}
		// unfiltered nodes are collected too: a dynamic filter may
		// arrive after the split is opened
		out = append(out, pruneEntry{col: ids[cf], node: c})
		out = collectPruneEntries(c, cf, ids, out)
	}
	return out
}

// openSplit opens the byte source, parses the footer and builds the
// reader tree.  A non-nil token means the footer bytes are still
// loading.
func (d *DataSource) openSplit(ctx context.Context) (ResumeToken, error) {
	if d.src == nil {
		src, err := d.fs.Open(ctx, d.split.Path)
		if err != nil {
			return nil, err
		}
		d.src = src
		d.fr = dwio.NewFileReader(src)
	}
	footer, ready, err := d.fr.Footer(ctx)
	if err != nil {
		return nil, err
	}
	if ready != nil {
		return ResumeToken(ready), nil
	}
	if d.rd == nil {
		rd, err := reader.Build(ctx, d.readType(footer.Schema), footer.Schema,
			&reader.BuildParams{Stripes: footer.Stripes}, d.spec, true)
		if err != nil {
			return nil, err
		}
		d.rd = rd
		d.root, _ = rd.(structAccess)
		ids := dwio.ColumnIDs(footer.Schema)
		d.prune = collectPruneEntries(d.spec, footer.Schema, ids, nil)
		all := make([]int, d.fr.NumStripes())
		for i := range all {
			all[i] = i
		}
		d.fr.Prefetch(all...)
		d.stripe = 0
	}
	return nil, nil
}

// stripePrunable reports whether every filter rules the stripe out by
// its zone map.
func (d *DataSource) stripePrunable(meta *dwio.StripeMeta) bool {
	for _, p := range d.prune {
		if p.node.Filter == nil {
			continue
		}
		cms := meta.ColumnsOf(p.col)
		if len(cms) == 0 {
			continue
		}
		if !reader.TestZoneMap(p.node.Filter, &cms[0].ZoneMap) {
			return true
		}
	}
	return false
}

// emptyOutput returns the reusable zero-row batch: "no rows this call",
// never "end of data".
func (d *DataSource) emptyOutput() *batch.Batch {
	if d.emptyBat == nil {
		attrs := make([]string, 0, len(d.opts.OutputType.Children))
		for _, f := range d.opts.OutputType.Children {
			attrs = append(attrs, f.Name)
		}
		d.emptyBat = batch.New(attrs)
		for i, f := range d.opts.OutputType.Children {
			d.emptyBat.SetVector(int32(i), vector.NewVec(f.Type))
		}
	}
	d.emptyBat.SetRowCount(0)
	return d.emptyBat
}

// assemble materializes the output batch for the rows surviving this
// call's filters.
func (d *DataSource) assemble(ctx context.Context, rows int) (*batch.Batch, error) {
	attrs := make([]string, 0, len(d.opts.OutputType.Children))
	for _, f := range d.opts.OutputType.Children {
		attrs = append(attrs, f.Name)
	}
	bat := batch.New(attrs)
	for i, f := range d.opts.OutputType.Children {
		if v, isPartition := d.split.PartitionKeys[f.Name]; isPartition {
			vec, err := partitionVector(ctx, f.Type, v, rows)
			if err != nil {
				return nil, err
			}
			bat.SetVector(int32(i), vec)
			continue
		}
		child := d.root.ChildByName(f.Name)
		if child == nil {
			// column absent from this file
			bat.SetVector(int32(i), vector.NewConstNull(f.Type, rows))
			continue
		}
		vec := vector.NewVec(child.Type())
		if err := child.GetValues(ctx, d.sel, vec); err != nil {
			return nil, err
		}
		bat.SetVector(int32(i), vec)
	}
	bat.SetRowCount(rows)
	return bat, nil
}

// Next produces up to size rows.  The three outcomes are Ready
// (bat, nil, nil) where bat may have zero rows, Pending (nil, token,
// nil) while bytes are loading, and end-of-split (nil, nil, nil) once
// the split is drained.
func (d *DataSource) Next(ctx context.Context, size int) (*batch.Batch, ResumeToken, error) {
	switch d.state {
	case StateIdle:
		return nil, nil, moerr.NewInvalidState(ctx, "no split assigned")
	case StateDraining:
		return nil, nil, nil
	}
	if d.state == StateSplitAssigned {
		token, err := d.openSplit(ctx)
		if err != nil || token != nil {
			return nil, token, err
		}
		d.state = StateProducing
	}

	footer, _, err := d.fr.Footer(ctx)
	if err != nil {
		return nil, nil, err
	}
	for !d.stripeStarted {
		if d.stripe >= d.fr.NumStripes() {
			d.state = StateDraining
			d.counters.Scan.SplitsDone.Add(1)
			return nil, nil, nil
		}
		meta := &footer.Stripes[d.stripe]
		if d.sr == nil {
			if d.stripePrunable(meta) {
				d.counters.Scan.StripesSkipped.Add(1)
				d.stripe++
				continue
			}
			d.sr = d.fr.Stripe(d.stripe)
		}
		ready, err := d.sr.Load(ctx)
		if err != nil {
			return nil, nil, err
		}
		if ready != nil {
			return nil, ResumeToken(ready), nil
		}
		if err := d.rd.StartStripe(ctx, d.sr); err != nil {
			return nil, nil, err
		}
		d.stripeStarted = true
		d.rowInStripe = 0
		d.stripeRows = int(meta.RowCount)
		d.counters.Scan.StripesRead.Add(1)
	}

	n := min(size, d.stripeRows-d.rowInStripe)
	d.sel.Reset(n)
	if err := d.rd.Read(ctx, n, d.sel); err != nil {
		return nil, nil, err
	}
	d.counters.Scan.RowsScanned.Add(int64(n))
	d.rowInStripe += n
	if d.rowInStripe == d.stripeRows {
		d.sr.Release()
		d.sr = nil
		d.stripeStarted = false
		d.stripe++
	}

	rows := d.sel.Count()
	if rows == 0 {
		return d.emptyOutput(), nil, nil
	}
	bat, err := d.assemble(ctx, rows)
	if err != nil {
		return nil, nil, err
	}
	if d.rest != nil {
		pass, err := d.rest.evaluate(ctx, bat)
		if err != nil {
			return nil, nil, err
		}
		switch {
		case pass == 0:
			return d.emptyOutput(), nil, nil
		case pass < rows:
			bat.Shrink(d.rest.evalCtx.SelectedIndices)
			rows = pass
		}
	}
	d.counters.Scan.RowsRead.Add(int64(rows))
	d.counters.Scan.BytesProduced.Add(int64(bat.Size()))
	for i, f := range d.opts.OutputType.Children {
		d.stats.observe(f.Name, bat.GetVector(int32(i)))
	}
	return bat, nil, nil
}
