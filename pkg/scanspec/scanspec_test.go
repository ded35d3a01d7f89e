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

package scanspec

import (
	"context"
	"testing"

	"github.com/shenh062326/velox/pkg/common/moerr"
	"github.com/shenh062326/velox/pkg/container/types"
	"github.com/shenh062326/velox/pkg/filter"
	"github.com/stretchr/testify/require"
)

func dataColumns() *types.Field {
	return types.NewRow(
		types.NewField("c0", types.New(types.T_int64)),
		types.NewField("c1", types.New(types.T_varchar)),
		types.NewField("nested", types.New(types.T_row),
			types.NewField("a", types.New(types.T_int64)),
			types.NewField("b", types.New(types.T_float64)),
		),
	)
}

func TestMakeProjectsOutput(t *testing.T) {
	ctx := context.Background()
	out := types.NewRow(
		types.NewField("c0", types.New(types.T_int64)),
	)
	spec, err := Make(ctx, out, nil, map[string]filter.Filter{
		"c1": filter.NewBytesEq([]byte("x"), false),
	}, nil, dataColumns())
	require.NoError(t, err)

	c0 := spec.ChildByName("c0")
	require.NotNil(t, c0)
	require.True(t, c0.Projected)
	require.Nil(t, c0.Filter)

	// filter-only column is created but not projected
	c1 := spec.ChildByName("c1")
	require.NotNil(t, c1)
	require.False(t, c1.ReadsValues())
	require.NotNil(t, c1.Filter)
	require.True(t, spec.HasFilter())
}

func TestMakeSubfields(t *testing.T) {
	ctx := context.Background()
	out := types.NewRow(
		types.NewField("nested", types.New(types.T_row)),
	)
	spec, err := Make(ctx, out, map[string][]string{"nested": {"a"}}, nil, nil, dataColumns())
	require.NoError(t, err)

	nested := spec.ChildByName("nested")
	require.NotNil(t, nested)
	require.False(t, nested.Projected)
	require.True(t, nested.ChildByName("a").Projected)
	require.Nil(t, nested.ChildByName("b"))
}

func TestMakeUnknownFilterColumn(t *testing.T) {
	ctx := context.Background()
	out := types.NewRow(types.NewField("c0", types.New(types.T_int64)))
	_, err := Make(ctx, out, nil, map[string]filter.Filter{
		"missing": filter.NewBigintRange(0, 1, false),
	}, nil, dataColumns())
	require.True(t, moerr.IsMoErrCode(err, moerr.ErrNoSuchColumn))
}

func TestApplyFilterNarrows(t *testing.T) {
	ctx := context.Background()
	out := types.NewRow(types.NewField("c0", types.New(types.T_int64)))
	spec, err := Make(ctx, out, nil, map[string]filter.Filter{
		"c0": filter.NewBigintRange(0, 100, false),
	}, nil, dataColumns())
	require.NoError(t, err)

	require.NoError(t, spec.ApplyFilter(ctx, "c0", filter.NewBigintRange(50, 200, false)))
	r := spec.ChildByName("c0").Filter.(*filter.BigintRange)
	require.Equal(t, int64(50), r.Lower)
	require.Equal(t, int64(100), r.Upper)

	err = spec.ApplyFilter(ctx, "nope", filter.NewBigintRange(0, 1, false))
	require.True(t, moerr.IsMoErrCode(err, moerr.ErrNoSuchColumn))
}

func TestResolveNestedPath(t *testing.T) {
	ctx := context.Background()
	out := types.NewRow(types.NewField("nested", types.New(types.T_row)))
	spec, err := Make(ctx, out, nil, map[string]filter.Filter{
		"nested.a": filter.NewBigintRange(1, 2, false),
	}, nil, dataColumns())
	require.NoError(t, err)
	require.NotNil(t, spec.Resolve("nested.a").Filter)
	require.Nil(t, spec.Resolve("nested.zzz"))
}

func TestExtractPaths(t *testing.T) {
	ctx := context.Background()
	out := types.NewRow(types.NewField("c0", types.New(types.T_int64)))
	spec, err := Make(ctx, out, nil, nil, []string{"c1"}, dataColumns())
	require.NoError(t, err)
	c1 := spec.ChildByName("c1")
	require.True(t, c1.ExtractValues)
	require.False(t, c1.Projected)
	require.True(t, c1.ReadsValues())
}
