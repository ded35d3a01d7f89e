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
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/lni/goutils/leaktest"
	"github.com/shenh062326/velox/pkg/common/moerr"
	"github.com/shenh062326/velox/pkg/container/batch"
	"github.com/shenh062326/velox/pkg/container/types"
	"github.com/shenh062326/velox/pkg/container/vector"
	"github.com/shenh062326/velox/pkg/dwio"
	"github.com/shenh062326/velox/pkg/fileservice"
	"github.com/shenh062326/velox/pkg/filter"
	"github.com/stretchr/testify/require"
)

func i64(v int64) *int64 { return &v }

func str(v string) *string { return &v }

func testSchema() *types.Field {
	return types.NewRow(
		types.NewField("id", types.New(types.T_int64)),
		types.NewField("name", types.New(types.T_varchar)),
	)
}

func writeRows(t *testing.T, fs fileservice.WritableFS, path string, rows int, opts dwio.WriterOptions) {
	ctx := context.Background()
	w, err := dwio.NewWriter(fs, path, testSchema(), opts)
	require.NoError(t, err)
	bat := batch.New([]string{"id", "name"})
	id := vector.NewVec(types.New(types.T_int64))
	name := vector.NewVec(types.New(types.T_varchar))
	for i := 0; i < rows; i++ {
		vector.AppendFixed(id, int64(i), false)
		vector.AppendBytes(name, []byte(fmt.Sprintf("name-%d", i%5)), false)
	}
	bat.SetVector(0, id)
	bat.SetVector(1, name)
	bat.SetRowCount(rows)
	require.NoError(t, w.Write(ctx, bat))
	require.NoError(t, w.Close(ctx))
}

// drain runs the split to completion, waiting on resume tokens.
func drain(t *testing.T, d *DataSource, size int) []*batch.Batch {
	ctx := context.Background()
	var out []*batch.Batch
	for {
		bat, token, err := d.Next(ctx, size)
		require.NoError(t, err)
		if token != nil {
			<-token
			continue
		}
		if bat == nil {
			return out
		}
		if bat.RowCount() > 0 {
			out = append(out, bat)
		}
	}
}

func collectIDs(bats []*batch.Batch) []int64 {
	var ids []int64
	for _, bat := range bats {
		ids = append(ids, vector.MustFixedCol[int64](bat.GetVector(0))...)
	}
	return ids
}

func TestDataSourceScan(t *testing.T) {
	ctx := context.Background()
	fs := fileservice.NewMemFS()
	writeRows(t, fs, "f1", 100, dwio.WriterOptions{})

	d, err := NewDataSource(ctx, fs, testSchema(), Options{
		OutputType: testSchema(),
		Filter:     &Expr{Op: OpGe, Column: "id", Int: i64(50)},
	})
	require.NoError(t, err)
	require.Equal(t, StateIdle, d.State())

	require.NoError(t, d.AddSplit(&Split{Path: "f1"}))
	require.Equal(t, StateSplitAssigned, d.State())

	bats := drain(t, d, 30)
	require.Equal(t, StateDraining, d.State())
	ids := collectIDs(bats)
	require.Len(t, ids, 50)
	require.Equal(t, int64(50), ids[0])
	require.Equal(t, int64(99), ids[49])

	stats := d.RuntimeStats()
	require.Equal(t, int64(50), stats["scan.rows-read"])
	require.Equal(t, int64(100), stats["scan.rows-scanned"])
	require.Equal(t, int64(1), stats["scan.splits-done"])
}

func TestDataSourceBatchSizeBound(t *testing.T) {
	ctx := context.Background()
	fs := fileservice.NewMemFS()
	writeRows(t, fs, "f1", 100, dwio.WriterOptions{})

	d, err := NewDataSource(ctx, fs, testSchema(), Options{OutputType: testSchema()})
	require.NoError(t, err)
	require.NoError(t, d.AddSplit(&Split{Path: "f1"}))
	for _, bat := range drain(t, d, 7) {
		require.LessOrEqual(t, bat.RowCount(), 7)
		require.Equal(t, bat.GetVector(0).Length(), bat.GetVector(1).Length())
	}
}

func TestDataSourceStateErrors(t *testing.T) {
	ctx := context.Background()
	fs := fileservice.NewMemFS()
	writeRows(t, fs, "f1", 10, dwio.WriterOptions{})

	d, err := NewDataSource(ctx, fs, testSchema(), Options{OutputType: testSchema()})
	require.NoError(t, err)

	_, _, err = d.Next(ctx, 10)
	require.True(t, moerr.IsMoErrCode(err, moerr.ErrInvalidState))

	require.NoError(t, d.AddSplit(&Split{Path: "f1"}))
	err = d.AddSplit(&Split{Path: "f1"})
	require.True(t, moerr.IsMoErrCode(err, moerr.ErrSplitActive))

	// draining accepts the next split
	drain(t, d, 100)
	require.NoError(t, d.AddSplit(&Split{Path: "f1"}))
}

func TestPartitionKeysAndMissingColumns(t *testing.T) {
	ctx := context.Background()
	fs := fileservice.NewMemFS()
	writeRows(t, fs, "f1", 10, dwio.WriterOptions{})

	// ds is a partition key, ghost is in the table schema but not in
	// this file
	schema := types.NewRow(
		types.NewField("id", types.New(types.T_int64)),
		types.NewField("name", types.New(types.T_varchar)),
		types.NewField("ghost", types.New(types.T_int64)),
	)
	output := types.NewRow(
		types.NewField("id", types.New(types.T_int64)),
		types.NewField("ds", types.New(types.T_varchar)),
		types.NewField("ghost", types.New(types.T_int64)),
	)
	d, err := NewDataSource(ctx, fs, schema, Options{OutputType: output})
	require.NoError(t, err)
	require.NoError(t, d.AddSplit(&Split{
		Path:          "f1",
		PartitionKeys: map[string]*string{"ds": str("2024-01-01")},
	}))
	bats := drain(t, d, 100)
	require.Len(t, bats, 1)
	bat := bats[0]
	require.Equal(t, 10, bat.RowCount())
	ds := bat.GetVector(1)
	require.True(t, ds.IsConst())
	require.Equal(t, "2024-01-01", ds.GetString(0))
	ghost := bat.GetVector(2)
	require.True(t, ghost.IsConstNull())
}

func TestZoneMapStripePruning(t *testing.T) {
	ctx := context.Background()
	fs := fileservice.NewMemFS()
	writeRows(t, fs, "f1", 1200, dwio.WriterOptions{StripeRows: 300})

	d, err := NewDataSource(ctx, fs, testSchema(), Options{
		OutputType: testSchema(),
		Filter:     &Expr{Op: OpGe, Column: "id", Int: i64(600)},
	})
	require.NoError(t, err)
	require.NoError(t, d.AddSplit(&Split{Path: "f1"}))
	ids := collectIDs(drain(t, d, 1000))
	require.Len(t, ids, 600)
	require.Equal(t, int64(600), ids[0])

	stats := d.RuntimeStats()
	require.Equal(t, int64(2), stats["scan.stripes-skipped"])
	require.Equal(t, int64(2), stats["scan.stripes-read"])
	// pruned stripes contribute no scanned rows
	require.Equal(t, int64(600), stats["scan.rows-scanned"])
}

func TestDynamicFilterMidScan(t *testing.T) {
	ctx := context.Background()
	fs := fileservice.NewMemFS()
	writeRows(t, fs, "f1", 900, dwio.WriterOptions{StripeRows: 300})

	d, err := NewDataSource(ctx, fs, testSchema(), Options{OutputType: testSchema()})
	require.NoError(t, err)
	require.NoError(t, d.AddSplit(&Split{Path: "f1"}))

	// first batch covers stripe 0 unfiltered
	bat, token, err := d.Next(ctx, 300)
	require.NoError(t, err)
	require.Nil(t, token)
	require.Equal(t, 300, bat.RowCount())

	// a join build side narrows id; stripe 2 is now prunable and the
	// rows of stripe 1 are filtered during decode
	require.NoError(t, d.AddDynamicFilter("id", filter.NewBigintRange(0, 350, false)))
	ids := collectIDs(drain(t, d, 300))
	require.Len(t, ids, 51)
	require.Equal(t, int64(300), ids[0])
	require.Equal(t, int64(350), ids[50])
	require.Equal(t, int64(1), d.RuntimeStats()["scan.stripes-skipped"])
}

func TestDynamicFilterValidation(t *testing.T) {
	ctx := context.Background()
	fs := fileservice.NewMemFS()
	d, err := NewDataSource(ctx, fs, testSchema(), Options{OutputType: testSchema()})
	require.NoError(t, err)
	err = d.AddDynamicFilter("nope", filter.NewIsNotNull())
	require.True(t, moerr.IsMoErrCode(err, moerr.ErrNoSuchColumn))
	err = d.AddDynamicFilter("id", filter.NewBytesEq([]byte("x"), false))
	require.True(t, moerr.IsMoErrCode(err, moerr.ErrSchemaMismatch))
}

// evenIDs passes rows with an even id, standing in for a predicate the
// extractor cannot push down.
type evenIDs struct{}

func (evenIDs) Run(_ context.Context, bat *batch.Batch) ([]bool, error) {
	ids := vector.MustFixedCol[int64](bat.GetVector(0))
	out := make([]bool, bat.RowCount())
	for i := range out {
		out[i] = ids[i]%2 == 0
	}
	return out, nil
}

type evenEvaluator struct{}

func (evenEvaluator) Compile(context.Context, *Expr) (Executable, error) {
	return evenIDs{}, nil
}

func TestRemainingFilter(t *testing.T) {
	ctx := context.Background()
	fs := fileservice.NewMemFS()
	writeRows(t, fs, "f1", 20, dwio.WriterOptions{})

	d, err := NewDataSource(ctx, fs, testSchema(), Options{
		OutputType: testSchema(),
		Filter: &Expr{Op: OpAnd, Args: []*Expr{
			{Op: OpGe, Column: "id", Int: i64(5)},
			{Op: OpCall, Fn: "is_even"},
		}},
		Evaluator: evenEvaluator{},
	})
	require.NoError(t, err)
	require.NoError(t, d.AddSplit(&Split{Path: "f1"}))
	ids := collectIDs(drain(t, d, 100))
	require.Equal(t, []int64{6, 8, 10, 12, 14, 16, 18}, ids)
}

func TestRemainingFilterRequiresEvaluator(t *testing.T) {
	ctx := context.Background()
	fs := fileservice.NewMemFS()
	_, err := NewDataSource(ctx, fs, testSchema(), Options{
		OutputType: testSchema(),
		Filter:     &Expr{Op: OpCall, Fn: "mystery"},
	})
	require.True(t, moerr.IsMoErrCode(err, moerr.ErrInvalidArg))
}

func TestResetKeepsAdaptiveState(t *testing.T) {
	ctx := context.Background()
	fs := fileservice.NewMemFS()
	writeRows(t, fs, "f1", 100, dwio.WriterOptions{})

	d, err := NewDataSource(ctx, fs, testSchema(), Options{OutputType: testSchema()})
	require.NoError(t, err)
	require.NoError(t, d.AddSplit(&Split{Path: "f1"}))
	drain(t, d, 100)
	require.Equal(t, int64(5), d.RuntimeStats()["scan.ndv.name"])

	d.Reset()
	require.Equal(t, StateIdle, d.State())
	require.Equal(t, int64(5), d.RuntimeStats()["scan.ndv.name"])

	require.NoError(t, d.AddSplit(&Split{Path: "f1"}))
	require.Len(t, collectIDs(drain(t, d, 100)), 100)
}

func TestPendingResumeOnLocalFS(t *testing.T) {
	defer leaktest.AfterTest(t)()
	ctx := context.Background()
	lfs, err := fileservice.NewLocalFS(t.TempDir(), nil)
	require.NoError(t, err)
	defer lfs.Close()
	writeRows(t, lfs, "f1", 500, dwio.WriterOptions{StripeRows: 100})

	d, err := NewDataSource(ctx, lfs, testSchema(), Options{
		OutputType: testSchema(),
		Filter:     &Expr{Op: OpLt, Column: "id", Int: i64(250)},
	})
	require.NoError(t, err)
	require.NoError(t, d.AddSplit(&Split{Path: "f1"}))

	pendings := 0
	var ids []int64
	for {
		bat, token, err := d.Next(ctx, 64)
		require.NoError(t, err)
		if token != nil {
			pendings++
			<-token
			continue
		}
		if bat == nil {
			break
		}
		ids = append(ids, vector.MustFixedCol[int64](bat.GetVector(0))...)
	}
	// cold reads must suspend at least once and resume cleanly
	require.Greater(t, pendings, 0)
	require.Len(t, ids, 250)
	require.Eventually(t, d.AllPrefetchIssued, time.Second, time.Millisecond)
	d.Close()
}

func TestCloseMidScanReleases(t *testing.T) {
	defer leaktest.AfterTest(t)()
	ctx := context.Background()
	lfs, err := fileservice.NewLocalFS(t.TempDir(), nil)
	require.NoError(t, err)
	defer lfs.Close()
	writeRows(t, lfs, "f1", 1000, dwio.WriterOptions{StripeRows: 100})

	d, err := NewDataSource(ctx, lfs, testSchema(), Options{OutputType: testSchema()})
	require.NoError(t, err)
	require.NoError(t, d.AddSplit(&Split{Path: "f1"}))
	for i := 0; i < 3; i++ {
		bat, token, err := d.Next(ctx, 50)
		require.NoError(t, err)
		if token != nil {
			<-token
			continue
		}
		require.NotNil(t, bat)
	}
	d.Close()
	require.Equal(t, StateIdle, d.State())
	_, _, err = d.Next(ctx, 50)
	require.True(t, moerr.IsMoErrCode(err, moerr.ErrInvalidState))
}

func TestExtractFilters(t *testing.T) {
	ctx := context.Background()
	schema := testSchema()
	expr := &Expr{Op: OpAnd, Args: []*Expr{
		{Op: OpGe, Column: "id", Int: i64(10)},
		{Op: OpLe, Column: "id", Int: i64(90)},
		{Op: OpEq, Column: "name", Bytes: []byte("x")},
		{Op: OpCall, Fn: "custom"},
	}}
	filters, rest, err := ExtractFilters(ctx, expr, schema)
	require.NoError(t, err)
	require.Len(t, filters, 2)
	rng, ok := filters["id"].(*filter.BigintRange)
	require.True(t, ok)
	require.Equal(t, int64(10), rng.Lower)
	require.Equal(t, int64(90), rng.Upper)
	require.NotNil(t, rest)
	require.Equal(t, OpCall, rest.Op)

	// fully sargable expressions leave no residue
	filters, rest, err = ExtractFilters(ctx, &Expr{Op: OpIn, Column: "id", Ints: []int64{1, 2}}, schema)
	require.NoError(t, err)
	require.Nil(t, rest)
	require.Len(t, filters, 1)
}
