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

package main

import (
	"context"
	"flag"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/shenh062326/velox/pkg/common/moerr"
	"github.com/shenh062326/velox/pkg/container/batch"
	"github.com/shenh062326/velox/pkg/container/types"
	"github.com/shenh062326/velox/pkg/container/vector"
	"github.com/shenh062326/velox/pkg/dwio"
	"github.com/shenh062326/velox/pkg/fileservice"
	"github.com/shenh062326/velox/pkg/logutil"
)

func demoSchema() *types.Field {
	return types.NewRow(
		types.NewField("id", types.New(types.T_int64)),
		types.NewField("name", types.New(types.T_varchar)),
		types.NewField("score", types.New(types.T_float64)),
		types.NewField("tags", types.New(types.T_array),
			types.NewField("item", types.New(types.T_int64))),
	)
}

func demoBatch(start, rows int) *batch.Batch {
	bat := batch.New([]string{"id", "name", "score", "tags"})
	id := vector.NewVec(types.New(types.T_int64))
	name := vector.NewVec(types.New(types.T_varchar))
	score := vector.NewVec(types.New(types.T_float64))
	tags := vector.NewVec(types.New(types.T_array))
	items := vector.NewVec(types.New(types.T_int64))
	off := uint32(0)
	for i := start; i < start+rows; i++ {
		vector.AppendFixed(id, int64(i), false)
		vector.AppendBytes(name, []byte(fmt.Sprintf("user-%d", i%100)), false)
		vector.AppendFixed(score, float64(i%1000)/10, false)
		n := uint32(i % 4)
		for j := uint32(0); j < n; j++ {
			vector.AppendFixed(items, int64(i)*10+int64(j), false)
		}
		tags.AppendRange(off, n, false)
		off += n
	}
	tags.SetChildren(items)
	bat.SetVector(0, id)
	bat.SetVector(1, name)
	bat.SetVector(2, score)
	bat.SetVector(3, tags)
	bat.SetRowCount(rows)
	return bat
}

func runWriteDemo(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("write-demo", flag.ExitOnError)
	cfgPath := fs.String("config", "", "toml configuration file")
	file := fs.String("file", "demo.vx", "target file, relative to data-dir")
	rows := fs.Int("rows", 100000, "rows to write")

	cfg, lfs, err := newLocalFS(ctx, cfgPath, fs, args)
	if err != nil {
		return err
	}
	defer lfs.Close()

	w, err := dwio.NewWriter(lfs, *file, demoSchema(), dwio.WriterOptions{
		StripeRows:         cfg.Scan.StripeRows,
		DisableCompression: cfg.Scan.DisableCompression,
	})
	if err != nil {
		return err
	}
	const chunk = 8192
	for start := 0; start < *rows; start += chunk {
		n := min(chunk, *rows-start)
		if err := w.Write(ctx, demoBatch(start, n)); err != nil {
			return err
		}
	}
	if err := w.Close(ctx); err != nil {
		return err
	}
	logutil.Info("demo file written",
		zap.String("file", *file), zap.Int("rows", *rows))
	return nil
}

// readSchema parses the file footer, waiting out async loads.
func readSchema(ctx context.Context, lfs *fileservice.LocalFS, path string) (*types.Field, error) {
	src, err := lfs.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer src.Close()
	fr := dwio.NewFileReader(src)
	for {
		footer, ready, err := fr.Footer(ctx)
		if err != nil {
			return nil, err
		}
		if ready == nil {
			return footer.Schema, nil
		}
		<-ready
	}
}

func projectSchema(ctx context.Context, schema *types.Field, names []string) (*types.Field, error) {
	kept := make([]*types.Field, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		f := schema.ChildByName(name)
		if f == nil {
			return nil, moerr.NewNoSuchColumn(ctx, name)
		}
		kept = append(kept, f)
	}
	return types.NewRow(kept...), nil
}

func printBatch(bat *batch.Batch, output *types.Field) {
	var sb strings.Builder
	for i := 0; i < bat.RowCount(); i++ {
		sb.Reset()
		for j := range output.Children {
			if j > 0 {
				sb.WriteByte('\t')
			}
			writeCell(&sb, bat.GetVector(int32(j)), i)
		}
		fmt.Println(sb.String())
	}
}

func writeCell(sb *strings.Builder, v *vector.Vector, i int) {
	if v.IsConstNull() {
		sb.WriteString("NULL")
		return
	}
	if v.IsConst() {
		i = 0
	}
	if v.GetNulls().Contains(uint64(i)) {
		sb.WriteString("NULL")
		return
	}
	switch v.GetType().Oid {
	case types.T_bool:
		fmt.Fprintf(sb, "%t", vector.GetFixedAt[bool](v, i))
	case types.T_int8:
		fmt.Fprintf(sb, "%d", vector.GetFixedAt[int8](v, i))
	case types.T_int16:
		fmt.Fprintf(sb, "%d", vector.GetFixedAt[int16](v, i))
	case types.T_int32:
		fmt.Fprintf(sb, "%d", vector.GetFixedAt[int32](v, i))
	case types.T_int64, types.T_timestamp, types.T_decimal64:
		fmt.Fprintf(sb, "%d", vector.GetFixedAt[int64](v, i))
	case types.T_float32:
		fmt.Fprintf(sb, "%g", vector.GetFixedAt[float32](v, i))
	case types.T_float64:
		fmt.Fprintf(sb, "%g", vector.GetFixedAt[float64](v, i))
	case types.T_varchar:
		sb.WriteString(v.GetString(i))
	case types.T_varbinary:
		fmt.Fprintf(sb, "%x", v.GetBytes(i))
	case types.T_array:
		elems := v.Children()[0]
		off, n := v.Offsets()[i], v.Lengths()[i]
		sb.WriteByte('[')
		for k := uint32(0); k < n; k++ {
			if k > 0 {
				sb.WriteByte(',')
			}
			writeCell(sb, elems, int(off+k))
		}
		sb.WriteByte(']')
	case types.T_map:
		keys, vals := v.Children()[0], v.Children()[1]
		off, n := v.Offsets()[i], v.Lengths()[i]
		sb.WriteByte('{')
		for k := uint32(0); k < n; k++ {
			if k > 0 {
				sb.WriteByte(',')
			}
			writeCell(sb, keys, int(off+k))
			sb.WriteByte(':')
			writeCell(sb, vals, int(off+k))
		}
		sb.WriteByte('}')
	default:
		sb.WriteString(v.GetType().String())
	}
}
