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
	"fmt"
	"math"
	"testing"

	"github.com/shenh062326/velox/pkg/common/moerr"
	"github.com/shenh062326/velox/pkg/container/batch"
	"github.com/shenh062326/velox/pkg/container/nulls"
	"github.com/shenh062326/velox/pkg/container/types"
	"github.com/shenh062326/velox/pkg/container/vector"
	"github.com/shenh062326/velox/pkg/dwio"
	"github.com/shenh062326/velox/pkg/fileservice"
	"github.com/shenh062326/velox/pkg/filter"
	"github.com/shenh062326/velox/pkg/scanspec"
	"github.com/stretchr/testify/require"
)

func idNameSchema() *types.Field {
	return types.NewRow(
		types.NewField("id", types.New(types.T_int64)),
		types.NewField("name", types.New(types.T_varchar)),
	)
}

func idNameBatch(ids []int64, names []string, nameNull func(i int) bool) *batch.Batch {
	bat := batch.New([]string{"id", "name"})
	id := vector.NewVec(types.New(types.T_int64))
	name := vector.NewVec(types.New(types.T_varchar))
	for i := range ids {
		vector.AppendFixed(id, ids[i], false)
		isNull := nameNull != nil && nameNull(i)
		vector.AppendBytes(name, []byte(names[i]), isNull)
	}
	bat.SetVector(0, id)
	bat.SetVector(1, name)
	bat.SetRowCount(len(ids))
	return bat
}

func writeFile(t *testing.T, fs fileservice.WritableFS, path string, schema *types.Field, bat *batch.Batch, opts dwio.WriterOptions) {
	ctx := context.Background()
	w, err := dwio.NewWriter(fs, path, schema, opts)
	require.NoError(t, err)
	require.NoError(t, w.Write(ctx, bat))
	require.NoError(t, w.Close(ctx))
}

func openFile(t *testing.T, fs *fileservice.MemFS, path string) (*dwio.FileReader, *dwio.Footer) {
	ctx := context.Background()
	src, err := fs.Open(ctx, path)
	require.NoError(t, err)
	fr := dwio.NewFileReader(src)
	footer, ready, err := fr.Footer(ctx)
	require.NoError(t, err)
	require.Nil(t, ready)
	return fr, footer
}

func startStripe(t *testing.T, fr *dwio.FileReader, rd SelectiveColumnReader, i int) {
	ctx := context.Background()
	sr := fr.Stripe(i)
	ready, err := sr.Load(ctx)
	require.NoError(t, err)
	require.Nil(t, ready)
	require.NoError(t, rd.StartStripe(ctx, sr))
}

func TestReadFilterNarrowing(t *testing.T) {
	ctx := context.Background()
	fs := fileservice.NewMemFS()
	schema := idNameSchema()
	writeFile(t, fs, "t", schema,
		idNameBatch([]int64{5, 12, 7, 20, 3}, []string{"a", "b", "c", "d", "e"}, nil),
		dwio.WriterOptions{})

	fr, footer := openFile(t, fs, "t")
	spec, err := scanspec.Make(ctx, schema, nil,
		map[string]filter.Filter{"id": filter.NewBigintRange(10, math.MaxInt64, false)},
		nil, footer.Schema)
	require.NoError(t, err)
	rd, err := Build(ctx, schema, footer.Schema, &BuildParams{Stripes: footer.Stripes}, spec, true)
	require.NoError(t, err)
	startStripe(t, fr, rd, 0)

	sel := NewSelectivityVector(5)
	require.NoError(t, rd.Read(ctx, 5, sel))
	require.Equal(t, []int64{1, 3}, sel.Rows())

	out := vector.NewVec(types.New(types.T_row))
	require.NoError(t, rd.GetValues(ctx, sel, out))
	require.Equal(t, 2, out.Length())
	kids := out.Children()
	require.Len(t, kids, 2)
	require.Equal(t, []int64{12, 20}, vector.MustFixedCol[int64](kids[0]))
	require.Equal(t, "b", kids[1].GetString(0))
	require.Equal(t, "d", kids[1].GetString(1))
}

func TestFilterOnlyColumnExcludedFromOutput(t *testing.T) {
	ctx := context.Background()
	fs := fileservice.NewMemFS()
	schema := idNameSchema()
	writeFile(t, fs, "t", schema,
		idNameBatch([]int64{5, 12, 7, 20, 3}, []string{"a", "b", "c", "d", "e"}, nil),
		dwio.WriterOptions{})

	fr, footer := openFile(t, fs, "t")
	output := types.NewRow(types.NewField("name", types.New(types.T_varchar)))
	spec, err := scanspec.Make(ctx, output, nil,
		map[string]filter.Filter{"id": filter.NewBigintRange(10, math.MaxInt64, false)},
		nil, footer.Schema)
	require.NoError(t, err)
	rd, err := Build(ctx, output, footer.Schema, &BuildParams{Stripes: footer.Stripes}, spec, true)
	require.NoError(t, err)
	startStripe(t, fr, rd, 0)

	sel := NewSelectivityVector(5)
	require.NoError(t, rd.Read(ctx, 5, sel))
	require.Equal(t, 2, sel.Count())

	out := vector.NewVec(types.New(types.T_row))
	require.NoError(t, rd.GetValues(ctx, sel, out))
	kids := out.Children()
	require.Len(t, kids, 1)
	require.Equal(t, "b", kids[0].GetString(0))
	require.Equal(t, "d", kids[0].GetString(1))
}

func TestEmptySelectionDefersSkip(t *testing.T) {
	ctx := context.Background()
	fs := fileservice.NewMemFS()
	schema := idNameSchema()
	ids := make([]int64, 100)
	names := make([]string, 100)
	for i := range ids {
		ids[i] = int64(i)
		names[i] = fmt.Sprintf("n-%d", i)
	}
	writeFile(t, fs, "t", schema, idNameBatch(ids, names, nil), dwio.WriterOptions{})

	fr, footer := openFile(t, fs, "t")
	spec, err := scanspec.Make(ctx, schema, nil,
		map[string]filter.Filter{"id": filter.NewBigintRange(50, math.MaxInt64, false)},
		nil, footer.Schema)
	require.NoError(t, err)
	rd, err := Build(ctx, schema, footer.Schema, &BuildParams{Stripes: footer.Stripes}, spec, true)
	require.NoError(t, err)
	startStripe(t, fr, rd, 0)

	// first batch fails the filter entirely, so the name column never
	// decodes those rows
	sel := NewSelectivityVector(50)
	require.NoError(t, rd.Read(ctx, 50, sel))
	require.True(t, sel.IsEmpty())

	// the second batch must still come out aligned
	sel.Reset(50)
	require.NoError(t, rd.Read(ctx, 50, sel))
	require.Equal(t, 50, sel.Count())
	out := vector.NewVec(types.New(types.T_row))
	require.NoError(t, rd.GetValues(ctx, sel, out))
	kids := out.Children()
	require.Equal(t, int64(50), vector.MustFixedCol[int64](kids[0])[0])
	require.Equal(t, "n-50", kids[1].GetString(0))
	require.Equal(t, "n-99", kids[1].GetString(49))
}

func TestDictionaryAndDirectAgree(t *testing.T) {
	ctx := context.Background()
	fs := fileservice.NewMemFS()
	schema := idNameSchema()
	ids := make([]int64, 200)
	names := make([]string, 200)
	for i := range ids {
		ids[i] = int64(i)
		names[i] = fmt.Sprintf("name-%d", i%5)
	}
	bat := idNameBatch(ids, names, nil)
	writeFile(t, fs, "dict", schema, bat, dwio.WriterOptions{})
	writeFile(t, fs, "direct", schema, idNameBatch(ids, names, nil), dwio.WriterOptions{
		ForceEncoding: map[string]dwio.EncodingKind{"name": dwio.EncodingDirect},
	})

	scan := func(path string) []int64 {
		fr, footer := openFile(t, fs, path)
		spec, err := scanspec.Make(ctx, schema, nil,
			map[string]filter.Filter{"name": filter.NewBytesEq([]byte("name-2"), false)},
			nil, footer.Schema)
		require.NoError(t, err)
		rd, err := Build(ctx, schema, footer.Schema, &BuildParams{Stripes: footer.Stripes}, spec, true)
		require.NoError(t, err)
		startStripe(t, fr, rd, 0)
		sel := NewSelectivityVector(200)
		require.NoError(t, rd.Read(ctx, 200, sel))
		out := vector.NewVec(types.New(types.T_row))
		require.NoError(t, rd.GetValues(ctx, sel, out))
		got := make([]int64, 0, out.Length())
		got = append(got, vector.MustFixedCol[int64](out.Children()[0])...)
		return got
	}
	fromDict := scan("dict")
	fromDirect := scan("direct")
	require.Equal(t, 40, len(fromDict))
	require.Equal(t, fromDict, fromDirect)
	require.Equal(t, int64(2), fromDict[0])
	require.Equal(t, int64(7), fromDict[1])
}

func TestNotNullFilter(t *testing.T) {
	ctx := context.Background()
	fs := fileservice.NewMemFS()
	schema := idNameSchema()
	ids := make([]int64, 40)
	names := make([]string, 40)
	for i := range ids {
		ids[i] = int64(i)
		names[i] = fmt.Sprintf("x-%d", i)
	}
	writeFile(t, fs, "t", schema,
		idNameBatch(ids, names, func(i int) bool { return i%10 == 3 }),
		dwio.WriterOptions{})

	fr, footer := openFile(t, fs, "t")
	spec, err := scanspec.Make(ctx, schema, nil,
		map[string]filter.Filter{"name": filter.NewIsNotNull()},
		nil, footer.Schema)
	require.NoError(t, err)
	rd, err := Build(ctx, schema, footer.Schema, &BuildParams{Stripes: footer.Stripes}, spec, true)
	require.NoError(t, err)
	startStripe(t, fr, rd, 0)

	sel := NewSelectivityVector(40)
	require.NoError(t, rd.Read(ctx, 40, sel))
	require.Equal(t, 36, sel.Count())
	require.False(t, sel.Contains(3))
	require.False(t, sel.Contains(33))

	out := vector.NewVec(types.New(types.T_row))
	require.NoError(t, rd.GetValues(ctx, sel, out))
	require.Equal(t, 0, out.Children()[1].GetNulls().Count())
}

func arraySchema() *types.Field {
	return types.NewRow(
		types.NewField("id", types.New(types.T_int64)),
		types.NewField("tags", types.New(types.T_array),
			types.NewField("item", types.New(types.T_int64))),
	)
}

func arrayBatch(rows [][]int64, nullAt map[int]bool) *batch.Batch {
	bat := batch.New([]string{"id", "tags"})
	id := vector.NewVec(types.New(types.T_int64))
	tags := vector.NewVec(types.New(types.T_array))
	items := vector.NewVec(types.New(types.T_int64))
	off := uint32(0)
	for i, row := range rows {
		vector.AppendFixed(id, int64(i), false)
		if nullAt[i] {
			tags.AppendRange(0, 0, true)
			continue
		}
		for _, v := range row {
			vector.AppendFixed(items, v, false)
		}
		tags.AppendRange(off, uint32(len(row)), false)
		off += uint32(len(row))
	}
	tags.SetChildren(items)
	bat.SetVector(0, id)
	bat.SetVector(1, tags)
	bat.SetRowCount(len(rows))
	return bat
}

func TestArrayRoundTrip(t *testing.T) {
	ctx := context.Background()
	fs := fileservice.NewMemFS()
	schema := arraySchema()
	writeFile(t, fs, "t", schema,
		arrayBatch([][]int64{{1, 2}, nil, {}, {7}}, map[int]bool{1: true}),
		dwio.WriterOptions{})

	fr, footer := openFile(t, fs, "t")
	spec, err := scanspec.Make(ctx, schema, nil, nil, nil, footer.Schema)
	require.NoError(t, err)
	rd, err := Build(ctx, schema, footer.Schema, &BuildParams{Stripes: footer.Stripes}, spec, true)
	require.NoError(t, err)
	startStripe(t, fr, rd, 0)

	sel := NewSelectivityVector(4)
	require.NoError(t, rd.Read(ctx, 4, sel))
	require.Equal(t, 4, sel.Count())

	out := vector.NewVec(types.New(types.T_row))
	require.NoError(t, rd.GetValues(ctx, sel, out))
	tags := out.Children()[1]
	require.Equal(t, 4, tags.Length())
	require.Equal(t, []uint32{2, 0, 0, 1}, tags.Lengths())
	require.True(t, nulls.Contains(tags.GetNulls(), 1))
	require.Equal(t, []int64{1, 2, 7}, vector.MustFixedCol[int64](tags.Children()[0]))
}

func TestArrayFilteredParentRows(t *testing.T) {
	ctx := context.Background()
	fs := fileservice.NewMemFS()
	schema := arraySchema()
	writeFile(t, fs, "t", schema,
		arrayBatch([][]int64{{1, 2}, {3}, {4, 5, 6}, {7}}, nil),
		dwio.WriterOptions{})

	fr, footer := openFile(t, fs, "t")
	spec, err := scanspec.Make(ctx, schema, nil,
		map[string]filter.Filter{"id": filter.NewBigintValues([]int64{0, 3}, false)},
		nil, footer.Schema)
	require.NoError(t, err)
	rd, err := Build(ctx, schema, footer.Schema, &BuildParams{Stripes: footer.Stripes}, spec, true)
	require.NoError(t, err)
	startStripe(t, fr, rd, 0)

	sel := NewSelectivityVector(4)
	require.NoError(t, rd.Read(ctx, 4, sel))
	require.Equal(t, []int64{0, 3}, sel.Rows())

	out := vector.NewVec(types.New(types.T_row))
	require.NoError(t, rd.GetValues(ctx, sel, out))
	tags := out.Children()[1]
	require.Equal(t, []uint32{2, 1}, tags.Lengths())
	require.Equal(t, []int64{1, 2, 7}, vector.MustFixedCol[int64](tags.Children()[0]))
}

func mapSchema() *types.Field {
	return types.NewRow(
		types.NewField("id", types.New(types.T_int64)),
		types.NewField("attrs", types.New(types.T_map),
			types.NewField("key", types.New(types.T_varchar)),
			types.NewField("value", types.New(types.T_int64))),
	)
}

func mapBatch(rows []map[string]int64, order [][]string, nullAt map[int]bool) *batch.Batch {
	bat := batch.New([]string{"id", "attrs"})
	id := vector.NewVec(types.New(types.T_int64))
	attrs := vector.NewVec(types.New(types.T_map))
	keys := vector.NewVec(types.New(types.T_varchar))
	vals := vector.NewVec(types.New(types.T_int64))
	off := uint32(0)
	for i, row := range rows {
		vector.AppendFixed(id, int64(i), false)
		if nullAt[i] {
			attrs.AppendRange(0, 0, true)
			continue
		}
		for _, k := range order[i] {
			vector.AppendBytes(keys, []byte(k), false)
			vector.AppendFixed(vals, row[k], false)
		}
		attrs.AppendRange(off, uint32(len(order[i])), false)
		off += uint32(len(order[i]))
	}
	attrs.SetChildren(keys, vals)
	bat.SetVector(0, id)
	bat.SetVector(1, attrs)
	bat.SetRowCount(len(rows))
	return bat
}

func TestFlatMapRoundTrip(t *testing.T) {
	ctx := context.Background()
	fs := fileservice.NewMemFS()
	schema := mapSchema()
	writeFile(t, fs, "t", schema,
		mapBatch(
			[]map[string]int64{{"a": 1, "b": 2}, {"b": 3}, nil, {}},
			[][]string{{"a", "b"}, {"b"}, nil, {}},
			map[int]bool{2: true}),
		dwio.WriterOptions{FlatMapColumns: map[string]bool{"attrs": true}})

	fr, footer := openFile(t, fs, "t")
	spec, err := scanspec.Make(ctx, schema, nil, nil, nil, footer.Schema)
	require.NoError(t, err)
	rd, err := Build(ctx, schema, footer.Schema, &BuildParams{Stripes: footer.Stripes}, spec, true)
	require.NoError(t, err)
	startStripe(t, fr, rd, 0)

	sel := NewSelectivityVector(4)
	require.NoError(t, rd.Read(ctx, 4, sel))
	require.Equal(t, 4, sel.Count())

	out := vector.NewVec(types.New(types.T_row))
	require.NoError(t, rd.GetValues(ctx, sel, out))
	attrs := out.Children()[1]
	require.Equal(t, []uint32{2, 1, 0, 0}, attrs.Lengths())
	require.True(t, nulls.Contains(attrs.GetNulls(), 2))
	keys := attrs.Children()[0]
	vals := attrs.Children()[1]
	require.Equal(t, 3, keys.Length())
	require.Equal(t, "a", keys.GetString(0))
	require.Equal(t, "b", keys.GetString(1))
	require.Equal(t, "b", keys.GetString(2))
	require.Equal(t, []int64{1, 2, 3}, vector.MustFixedCol[int64](vals))
}

func TestFlatMapFilteredParentRows(t *testing.T) {
	ctx := context.Background()
	fs := fileservice.NewMemFS()
	schema := mapSchema()
	writeFile(t, fs, "t", schema,
		mapBatch(
			[]map[string]int64{{"a": 1}, {"a": 2, "b": 9}, {"b": 4}, {"a": 5}},
			[][]string{{"a"}, {"a", "b"}, {"b"}, {"a"}},
			nil),
		dwio.WriterOptions{FlatMapColumns: map[string]bool{"attrs": true}})

	fr, footer := openFile(t, fs, "t")
	spec, err := scanspec.Make(ctx, schema, nil,
		map[string]filter.Filter{"id": filter.NewBigintValues([]int64{1, 2}, false)},
		nil, footer.Schema)
	require.NoError(t, err)
	rd, err := Build(ctx, schema, footer.Schema, &BuildParams{Stripes: footer.Stripes}, spec, true)
	require.NoError(t, err)
	startStripe(t, fr, rd, 0)

	sel := NewSelectivityVector(4)
	require.NoError(t, rd.Read(ctx, 4, sel))
	require.Equal(t, []int64{1, 2}, sel.Rows())

	out := vector.NewVec(types.New(types.T_row))
	require.NoError(t, rd.GetValues(ctx, sel, out))
	attrs := out.Children()[1]
	require.Equal(t, []uint32{2, 1}, attrs.Lengths())
	keys := attrs.Children()[0]
	vals := attrs.Children()[1]
	require.Equal(t, "a", keys.GetString(0))
	require.Equal(t, "b", keys.GetString(1))
	require.Equal(t, "b", keys.GetString(2))
	require.Equal(t, []int64{2, 9, 4}, vector.MustFixedCol[int64](vals))
}

func TestIntegerWideningRoundTrip(t *testing.T) {
	ctx := context.Background()
	fs := fileservice.NewMemFS()
	schema := types.NewRow(
		types.NewField("c8", types.New(types.T_int8)),
		types.NewField("c16", types.New(types.T_int16)),
		types.NewField("c32", types.New(types.T_int32)),
		types.NewField("f32", types.New(types.T_float32)),
	)
	c8 := []int8{math.MinInt8, -7, 0, math.MaxInt8}
	c16 := []int16{math.MinInt16, -300, 0, math.MaxInt16}
	c32 := []int32{math.MinInt32, -70000, 0, math.MaxInt32}
	f32 := []float32{-1.5, 0, 3.25, 1024}

	bat := batch.New([]string{"c8", "c16", "c32", "f32"})
	v8 := vector.NewVec(types.New(types.T_int8))
	v16 := vector.NewVec(types.New(types.T_int16))
	v32 := vector.NewVec(types.New(types.T_int32))
	vf := vector.NewVec(types.New(types.T_float32))
	for i := 0; i < 4; i++ {
		vector.AppendFixed(v8, c8[i], false)
		vector.AppendFixed(v16, c16[i], false)
		vector.AppendFixed(v32, c32[i], false)
		vector.AppendFixed(vf, f32[i], false)
	}
	bat.SetVector(0, v8)
	bat.SetVector(1, v16)
	bat.SetVector(2, v32)
	bat.SetVector(3, vf)
	bat.SetRowCount(4)
	writeFile(t, fs, "t", schema, bat, dwio.WriterOptions{})

	readAs := func(name string, typ types.T) *vector.Vector {
		fr, footer := openFile(t, fs, "t")
		requested := types.NewRow(types.NewField(name, types.New(typ)))
		spec, err := scanspec.Make(ctx, requested, nil, nil, nil, footer.Schema)
		require.NoError(t, err)
		rd, err := Build(ctx, requested, footer.Schema, &BuildParams{Stripes: footer.Stripes}, spec, true)
		require.NoError(t, err)
		startStripe(t, fr, rd, 0)
		sel := NewSelectivityVector(4)
		require.NoError(t, rd.Read(ctx, 4, sel))
		require.Equal(t, 4, sel.Count())
		out := vector.NewVec(types.New(types.T_row))
		require.NoError(t, rd.GetValues(ctx, sel, out))
		require.Equal(t, 4, out.Length())
		return out.Children()[0]
	}

	require.Equal(t, []int16{math.MinInt8, -7, 0, math.MaxInt8},
		vector.MustFixedCol[int16](readAs("c8", types.T_int16)))
	require.Equal(t, []int32{math.MinInt8, -7, 0, math.MaxInt8},
		vector.MustFixedCol[int32](readAs("c8", types.T_int32)))
	require.Equal(t, []int64{math.MinInt8, -7, 0, math.MaxInt8},
		vector.MustFixedCol[int64](readAs("c8", types.T_int64)))

	require.Equal(t, []int32{math.MinInt16, -300, 0, math.MaxInt16},
		vector.MustFixedCol[int32](readAs("c16", types.T_int32)))
	require.Equal(t, []int64{math.MinInt16, -300, 0, math.MaxInt16},
		vector.MustFixedCol[int64](readAs("c16", types.T_int64)))

	require.Equal(t, []int64{math.MinInt32, -70000, 0, math.MaxInt32},
		vector.MustFixedCol[int64](readAs("c32", types.T_int64)))

	require.Equal(t, []float64{-1.5, 0, 3.25, 1024},
		vector.MustFixedCol[float64](readAs("f32", types.T_float64)))
}

func TestBuildRejectsMistypedFilter(t *testing.T) {
	ctx := context.Background()
	fs := fileservice.NewMemFS()
	schema := idNameSchema()
	writeFile(t, fs, "t", schema,
		idNameBatch([]int64{1}, []string{"a"}, nil), dwio.WriterOptions{})

	_, footer := openFile(t, fs, "t")
	spec, err := scanspec.Make(ctx, schema, nil,
		map[string]filter.Filter{"id": filter.NewBytesEq([]byte("x"), false)},
		nil, footer.Schema)
	require.NoError(t, err)
	_, err = Build(ctx, schema, footer.Schema, &BuildParams{Stripes: footer.Stripes}, spec, true)
	require.True(t, moerr.IsMoErrCode(err, moerr.ErrSchemaMismatch))
}

func TestZoneMapPruning(t *testing.T) {
	f := filter.NewBigintRange(100, 200, false)
	require.False(t, TestZoneMap(f, &dwio.ZoneMap{Kind: types.T_int64, IntMin: 0, IntMax: 50}))
	require.True(t, TestZoneMap(f, &dwio.ZoneMap{Kind: types.T_int64, IntMin: 150, IntMax: 300}))
	require.True(t, TestZoneMap(nil, &dwio.ZoneMap{Kind: types.T_int64, IntMin: 0, IntMax: 1}))
	require.True(t, TestZoneMap(f, &dwio.ZoneMap{Kind: types.T_any}))
	require.False(t, TestZoneMap(f, &dwio.ZoneMap{Kind: types.T_int64, AllNull: true}))
	require.True(t, TestZoneMap(filter.NewIsNull(), &dwio.ZoneMap{Kind: types.T_int64, AllNull: true}))

	s := filter.NewBytesRange([]byte("m"), false, false, nil, true, false, false)
	require.False(t, TestZoneMap(s, &dwio.ZoneMap{Kind: types.T_varchar, BytesMin: []byte("a"), BytesMax: []byte("c")}))
	require.True(t, TestZoneMap(s, &dwio.ZoneMap{Kind: types.T_varchar, BytesMin: []byte("a"), BytesMax: []byte("z")}))
}
